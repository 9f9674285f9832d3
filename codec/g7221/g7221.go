// SPDX-License-Identifier: EPL-2.0

// Package g7221 adapts a host-supplied G.722.1 (Siren) implementation to
// package codec. The mode of a G.722.1 frame is its bit rate index: 24, 32
// and, at 32 kHz (Annex C), 48 kbit/s.
package g7221

import (
	"fmt"

	"github.com/ik5/voxframe/audio"
	"github.com/ik5/voxframe/codec"
)

const DefaultBitRate = 32000

// Params is a checked configuration for one native instance.
type Params struct {
	SampleRate int
	BitRate    int
	Mode       audio.Mode
	// FrameBytes is the payload size every frame has.
	FrameBytes int
}

func (p Params) FrameSamples() int { return audio.CodecG7221.SamplesPerFrame(p.SampleRate) }

type Native interface {
	Init() error
	NewTransform(p Params) (codec.Transform, error)
}

// Validate turns a codec.Config into Params. 48 kbit/s is only defined for
// 32 kHz.
func Validate(cfg codec.Config) (Params, error) {
	if cfg.Codec != audio.CodecG7221 {
		return Params{}, fmt.Errorf("g7221: codec %s", cfg.Codec)
	}
	p := Params{SampleRate: cfg.SampleRate, BitRate: cfg.BitRate}
	if p.SampleRate == 0 {
		p.SampleRate = audio.CodecG7221.SampleRate()
	}
	if p.BitRate == 0 {
		p.BitRate = DefaultBitRate
	}

	mode, err := audio.ModeForBitrate(audio.CodecG7221, p.BitRate, false)
	if err != nil {
		return Params{}, fmt.Errorf("g7221: %w", err)
	}
	if p.BitRate == 48000 && p.SampleRate != 32000 {
		return Params{}, fmt.Errorf("g7221: 48000 bit/s needs 32 kHz, have %d Hz", p.SampleRate)
	}
	size, _ := audio.PayloadSize(audio.CodecG7221, mode, false)
	p.Mode, p.FrameBytes = mode, size
	return p, nil
}

type library struct {
	name   string
	native Native
}

// Wrap makes native a codec.Library serving audio.CodecG7221. Handles accept
// only the mode of the configured bit rate.
func Wrap(name string, native Native) codec.Library {
	return &library{name: name, native: native}
}

func (l *library) Name() string          { return l.name }
func (l *library) Codecs() []audio.Codec { return []audio.Codec{audio.CodecG7221} }
func (l *library) Init() error           { return l.native.Init() }

func (l *library) NewTransform(cfg codec.Config) (codec.Transform, error) {
	p, err := Validate(cfg)
	if err != nil {
		return nil, err
	}
	tr, err := l.native.NewTransform(p)
	if err != nil {
		return nil, err
	}
	if et, ok := tr.(codec.EncodeTransform); ok {
		return &fixedRateEncoder{fixedRate{tr, p.Mode}, et}, nil
	}
	return &fixedRate{tr, p.Mode}, nil
}

// fixedRate pins a transform to one mode; G.722.1 cannot switch rates
// mid-stream.
type fixedRate struct {
	codec.Transform
	mode audio.Mode
}

func (t *fixedRate) AcceptsMode(mode audio.Mode, _ bool) bool { return mode == t.mode }

type fixedRateEncoder struct {
	fixedRate
	enc codec.EncodeTransform
}

func (t *fixedRateEncoder) Encode(pcm []int16, f *audio.Frame) error { return t.enc.Encode(pcm, f) }
