// SPDX-License-Identifier: EPL-2.0

package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/ik5/voxframe/audio"
)

var (
	outputRates = []int{0, 8000, 16000, 32000, 44100, 48000}
	evsRates    = []int{0, 8000, 16000, 32000, 48000}
	g7221Rates  = []int{0, 24000, 32000, 48000}
)

// Load reads the YAML configuration file at path and returns a validated
// [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result. An
// empty document gives the zero configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate returns a joined error listing every problem in cfg.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers %d must not be negative", cfg.Workers))
	}

	if !slices.Contains(outputRates, cfg.Output.SampleRate) {
		errs = append(errs, fmt.Errorf("output.sample_rate %d is invalid; valid values: %v", cfg.Output.SampleRate, outputRates[1:]))
	}

	for pt, name := range cfg.Stream.PayloadTypes {
		if pt < 96 || pt > 127 {
			errs = append(errs, fmt.Errorf("stream.payload_types: %d is not a dynamic payload type", pt))
		}
		if _, err := audio.ParseCodec(name); err != nil {
			errs = append(errs, fmt.Errorf("stream.payload_types[%d]: %w", pt, err))
		}
	}
	if cfg.Stream.MaxGapFrames < 0 {
		errs = append(errs, fmt.Errorf("stream.max_gap_frames %d must not be negative", cfg.Stream.MaxGapFrames))
	}
	if cfg.Stream.TelephoneEventPT > 127 {
		errs = append(errs, fmt.Errorf("stream.telephone_event_pt %d is out of range [0, 127]", cfg.Stream.TelephoneEventPT))
	}

	if !slices.Contains(evsRates, cfg.Codec.EVSSampleRate) {
		errs = append(errs, fmt.Errorf("codec.evs_sample_rate %d is invalid; valid values: %v", cfg.Codec.EVSSampleRate, evsRates[1:]))
	}
	if !slices.Contains(g7221Rates, cfg.Codec.G7221BitRate) {
		errs = append(errs, fmt.Errorf("codec.g7221_bit_rate %d is invalid; valid values: %v", cfg.Codec.G7221BitRate, g7221Rates[1:]))
	}
	if cfg.Codec.BitRate < 0 {
		errs = append(errs, fmt.Errorf("codec.bit_rate %d must not be negative", cfg.Codec.BitRate))
	}

	return errors.Join(errs...)
}
