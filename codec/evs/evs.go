// SPDX-License-Identifier: EPL-2.0

// Package evs adapts a host-supplied EVS implementation (for example the
// 3GPP reference decoder built as a library) to package codec.
//
// The EVS DSP is not part of this module. The host implements Native and
// registers it:
//
//	codec.Register(evs.Wrap("evs-ref", native))
//
// Wrap checks the configuration before the native code sees it.
package evs

import (
	"fmt"

	"github.com/ik5/voxframe/audio"
	"github.com/ik5/voxframe/codec"
)

const (
	// DefaultBitRate is the encoder rate used when none is configured.
	DefaultBitRate = 24400
	// DefaultIOBitRate is the AMR-WB IO encoder default.
	DefaultIOBitRate = 12650
)

// OutputRates are the PCM rates an EVS decoder can produce.
var OutputRates = []int{8000, 16000, 32000, 48000}

// Params is a checked configuration for one native instance.
type Params struct {
	SampleRate int
	// AMRWBIO starts the encoder in AMR-WB IO mode.
	AMRWBIO bool
	// Mode is the initial encoder mode for BitRate.
	BitRate int
	Mode    audio.Mode
}

// FrameSamples is the PCM length of one 20 ms frame at rate.
func (p Params) FrameSamples() int { return audio.CodecEVS.SamplesPerFrame(p.SampleRate) }

// Native is the host's EVS implementation.
type Native interface {
	Init() error
	NewTransform(p Params) (codec.Transform, error)
}

// Validate turns a codec.Config into Params.
func Validate(cfg codec.Config) (Params, error) {
	if cfg.Codec != audio.CodecEVS {
		return Params{}, fmt.Errorf("evs: codec %s", cfg.Codec)
	}
	p := Params{SampleRate: cfg.SampleRate, AMRWBIO: cfg.AMRWBIO, BitRate: cfg.BitRate}
	if p.SampleRate == 0 {
		p.SampleRate = audio.CodecEVS.SampleRate()
	}
	if p.BitRate == 0 {
		p.BitRate = DefaultBitRate
		if p.AMRWBIO {
			p.BitRate = DefaultIOBitRate
		}
	}

	mode, err := audio.ModeForBitrate(audio.CodecEVS, p.BitRate, p.AMRWBIO)
	if err != nil {
		return Params{}, fmt.Errorf("evs: %w", err)
	}
	p.Mode = mode
	// narrowband EVS stops at 24.4 kbit/s
	if !p.AMRWBIO && p.SampleRate == 8000 && p.BitRate > 24400 {
		return Params{}, fmt.Errorf("evs: %d bit/s needs at least 16 kHz", p.BitRate)
	}
	return p, nil
}

type library struct {
	name   string
	native Native
}

// Wrap makes native a codec.Library serving audio.CodecEVS.
func Wrap(name string, native Native) codec.Library {
	return &library{name: name, native: native}
}

func (l *library) Name() string          { return l.name }
func (l *library) Codecs() []audio.Codec { return []audio.Codec{audio.CodecEVS} }
func (l *library) Init() error           { return l.native.Init() }

func (l *library) NewTransform(cfg codec.Config) (codec.Transform, error) {
	p, err := Validate(cfg)
	if err != nil {
		return nil, err
	}
	return l.native.NewTransform(p)
}
