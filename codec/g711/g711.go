// SPDX-License-Identifier: EPL-2.0

// Package g711 registers PCMU and PCMA, backed by github.com/zaf/g711.
package g711

import (
	"fmt"

	"github.com/zaf/g711"

	"github.com/ik5/voxframe/audio"
	"github.com/ik5/voxframe/codec"
)

func init() {
	codec.Register(Library{})
}

// Library serves μ-law and A-law at 8 kHz.
type Library struct{}

func (Library) Name() string          { return "g711" }
func (Library) Codecs() []audio.Codec { return []audio.Codec{audio.CodecPCMU, audio.CodecPCMA} }
func (Library) Init() error           { return nil }

func (Library) NewTransform(cfg codec.Config) (codec.Transform, error) {
	switch cfg.Codec {
	case audio.CodecPCMU:
		return &transform{decode: g711.DecodeUlawFrame, encode: g711.EncodeUlawFrame}, nil
	case audio.CodecPCMA:
		return &transform{decode: g711.DecodeAlawFrame, encode: g711.EncodeAlawFrame}, nil
	}
	return nil, fmt.Errorf("g711: codec %s", cfg.Codec)
}

type transform struct {
	decode func(uint8) int16
	encode func(int16) uint8
}

func (t *transform) Decode(f audio.Frame, pcm []int16) (int, error) {
	if len(pcm) < len(f.Payload) {
		return 0, fmt.Errorf("g711: %d samples do not fit %d", len(f.Payload), len(pcm))
	}
	for i, b := range f.Payload {
		pcm[i] = t.decode(b)
	}
	return len(f.Payload), nil
}

func (t *transform) Encode(pcm []int16, f *audio.Frame) error {
	f.Payload = make([]byte, len(pcm))
	for i, s := range pcm {
		f.Payload[i] = t.encode(s)
	}
	return nil
}

func (t *transform) Close() error { return nil }
