// SPDX-License-Identifier: EPL-2.0

// Package config holds the YAML configuration of the voxframe command.
package config

import (
	"log/slog"

	"github.com/ik5/voxframe/audio"
	"github.com/ik5/voxframe/formats/rtpdump"
	"github.com/ik5/voxframe/payload"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to a slog level. The empty level is info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Config is the root of the configuration file.
type Config struct {
	LogLevel LogLevel      `yaml:"log_level"`
	Output   OutputConfig  `yaml:"output"`
	Stream   StreamConfig  `yaml:"stream"`
	Codec    CodecConfig   `yaml:"codec"`
	Metrics  MetricsConfig `yaml:"metrics"`

	// FeaturesFile replaces the built-in codec detection features.
	FeaturesFile string `yaml:"features_file"`
	// Workers bounds how many files are processed at once; 0 means one
	// per CPU.
	Workers int `yaml:"workers"`
}

// OutputConfig shapes decoded PCM.
type OutputConfig struct {
	// SampleRate resamples the output; 0 keeps the decoder rate.
	SampleRate int  `yaml:"sample_rate"`
	Mono       bool `yaml:"mono"`
}

// StreamConfig selects and interprets the RTP stream of a capture.
type StreamConfig struct {
	// SSRC pins the stream; unset takes the first one with a known codec.
	SSRC *uint32 `yaml:"ssrc"`
	// PayloadTypes maps dynamic payload types to codec names.
	PayloadTypes     map[uint8]string `yaml:"payload_types"`
	OctetAligned     bool             `yaml:"octet_aligned"`
	FillGaps         bool             `yaml:"fill_gaps"`
	MaxGapFrames     int              `yaml:"max_gap_frames"`
	TelephoneEventPT uint8            `yaml:"telephone_event_pt"`
	// Detect classifies unmapped dynamic payload types before decoding.
	Detect bool `yaml:"detect"`
	// Port keeps only UDP datagrams to or from this port in pcap files.
	Port uint16 `yaml:"port"`
}

// CodecConfig tunes the codec handles.
type CodecConfig struct {
	// EVSSampleRate is the EVS output rate; 0 means 16 kHz.
	EVSSampleRate int `yaml:"evs_sample_rate"`
	G7221BitRate  int `yaml:"g7221_bit_rate"`
	// BitRate is the encoder rate in bit/s for the encode command.
	BitRate int `yaml:"bit_rate"`
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	// ListenAddr serves /metrics when set (e.g., ":9090").
	ListenAddr string `yaml:"listen_addr"`
}

// StreamOptions converts the stream section. The configuration must be
// valid.
func (c *Config) StreamOptions(features []payload.CodecEntry) rtpdump.StreamOptions {
	opts := rtpdump.StreamOptions{
		PayloadTypes:     make(map[uint8]audio.Codec, len(c.Stream.PayloadTypes)),
		Payload:          payload.Options{OctetAligned: c.Stream.OctetAligned, G7221Bitrate: c.Codec.G7221BitRate},
		Detect:           c.Stream.Detect,
		Features:         features,
		FillGaps:         c.Stream.FillGaps,
		MaxGapFrames:     c.Stream.MaxGapFrames,
		TelephoneEventPT: c.Stream.TelephoneEventPT,
	}
	if c.Stream.SSRC != nil {
		opts.SSRC, opts.PinSSRC = *c.Stream.SSRC, true
	}
	for pt, name := range c.Stream.PayloadTypes {
		// Validate rejected unknown names
		codec, _ := audio.ParseCodec(name)
		opts.PayloadTypes[pt] = codec
	}
	return opts
}
