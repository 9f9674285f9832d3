// SPDX-License-Identifier: EPL-2.0

// Package g722 registers G.722, backed by github.com/gotranspile/g722.
//
// Payloads are unpacked: every byte holds one sub-band sample pair, so two
// 16 kHz samples, at every bit rate. At 56 and 48 kbit/s the unused low-band
// bits are ignored.
package g722

import (
	"fmt"

	"github.com/gotranspile/g722"

	"github.com/ik5/voxframe/audio"
	"github.com/ik5/voxframe/codec"
)

func init() {
	codec.Register(Library{})
}

// DefaultBitRate is used when codec.Config.BitRate is 0.
const DefaultBitRate = g722.Rate64000

type Library struct{}

func (Library) Name() string          { return "g722" }
func (Library) Codecs() []audio.Codec { return []audio.Codec{audio.CodecG722} }
func (Library) Init() error           { return nil }

func (Library) NewTransform(cfg codec.Config) (codec.Transform, error) {
	rate := cfg.BitRate
	if rate == 0 {
		rate = DefaultBitRate
	}
	switch rate {
	case g722.Rate64000, g722.Rate56000, g722.Rate48000:
	default:
		return nil, fmt.Errorf("g722: bit rate %d", rate)
	}

	return &transform{
		dec: g722.NewDecoder(rate, 0),
		enc: g722.NewEncoder(rate, 0),
	}, nil
}

type transform struct {
	dec *g722.Decoder
	enc *g722.Encoder
}

func (t *transform) Decode(f audio.Frame, pcm []int16) (int, error) {
	if len(f.Payload) == 0 {
		return 0, nil
	}
	if n := t.dec.Decode(pcm, f.Payload); n != 2*len(f.Payload) {
		return n, fmt.Errorf("g722: decoded %d samples from %d bytes", n, len(f.Payload))
	}
	return 2 * len(f.Payload), nil
}

func (t *transform) Encode(pcm []int16, f *audio.Frame) error {
	f.Payload = make([]byte, len(pcm)/2)
	if len(pcm) == 0 {
		return nil
	}
	if n := t.enc.Encode(f.Payload, pcm); n != len(f.Payload) {
		return fmt.Errorf("g722: encoded %d bytes from %d samples", n, len(pcm))
	}
	return nil
}

func (t *transform) Close() error { return nil }
