// SPDX-License-Identifier: EPL-2.0

package payload

import (
	"fmt"
	"slices"

	"github.com/ik5/voxframe/audio"
)

// passthrough handles the sample-based codecs (RFC 3551 PCMU, PCMA and
// G722): the whole payload is one frame.
type passthrough struct {
	codec audio.Codec
}

func (p passthrough) Depacketize(b []byte) ([]audio.Frame, error) {
	if len(b) == 0 {
		return nil, ErrEmptyPayload
	}
	return []audio.Frame{{Codec: p.codec, Quality: true, Payload: b}}, nil
}

func (p passthrough) Packetize(frames []audio.Frame) ([]byte, error) {
	var out []byte
	for _, f := range frames {
		if f.Codec != p.codec {
			return nil, fmt.Errorf("%w: %s frame in a %s packet", ErrNotPacketizing, f.Codec, p.codec)
		}
		out = append(out, f.Payload...)
	}
	if len(out) == 0 {
		return nil, ErrEmptyPayload
	}
	return out, nil
}

// g7221Format splits RFC 5577 payloads into frames of the negotiated rate.
type g7221Format struct {
	mode audio.Mode
}

func (g g7221Format) Depacketize(b []byte) ([]audio.Frame, error) {
	if len(b) == 0 {
		return nil, ErrEmptyPayload
	}
	size, _ := audio.PayloadSize(audio.CodecG7221, g.mode, false)
	if len(b)%size != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", audio.ErrPayloadSize, len(b), size)
	}

	frames := make([]audio.Frame, 0, len(b)/size)
	for chunk := range slices.Chunk(b, size) {
		frames = append(frames, audio.Frame{Codec: audio.CodecG7221, Mode: g.mode, Quality: true, Payload: chunk})
	}
	return frames, nil
}

func (g g7221Format) Packetize(frames []audio.Frame) ([]byte, error) {
	if len(frames) == 0 {
		return nil, ErrEmptyPayload
	}
	size, _ := audio.PayloadSize(audio.CodecG7221, g.mode, false)

	out := make([]byte, 0, len(frames)*size)
	for _, f := range frames {
		if f.Codec != audio.CodecG7221 || f.Mode != g.mode {
			return nil, fmt.Errorf("%w: %s mode %d", ErrNotPacketizing, f.Codec, f.Mode)
		}
		if len(f.Payload) != size {
			return nil, fmt.Errorf("%w: mode %d wants %d bytes, got %d", audio.ErrPayloadSize, f.Mode, size, len(f.Payload))
		}
		out = append(out, f.Payload...)
	}
	return out, nil
}
