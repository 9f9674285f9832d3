// SPDX-License-Identifier: EPL-2.0

package payload

import (
	"fmt"

	"github.com/ik5/voxframe/audio"
)

// Depacketizer turns one RTP payload into storage frames. The returned
// frames carry Codec, Mode, AMRWBIO, Quality and Payload; position fields
// are left for the caller.
type Depacketizer interface {
	Depacketize(p []byte) ([]audio.Frame, error)
}

// Packetizer is the inverse of Depacketizer.
type Packetizer interface {
	Packetize(frames []audio.Frame) ([]byte, error)
}

// Options select the RTP payload format variant.
type Options struct {
	// OctetAligned selects the RFC 4867 octet-aligned mode for AMR and
	// AMR-WB; the default is bandwidth-efficient.
	OctetAligned bool
	// G7221Bitrate is the G.722.1 rate in bit/s (24000, 32000 or 48000).
	G7221Bitrate int
}

// New returns the payload format handler of codec.
func New(codec audio.Codec, opts Options) (*Format, error) {
	switch codec {
	case audio.CodecAMR, audio.CodecAMRWB:
		return &Format{Depacketizer: amrFormat{codec: codec, octetAligned: opts.OctetAligned}, Packetizer: amrFormat{codec: codec, octetAligned: opts.OctetAligned}}, nil
	case audio.CodecEVS:
		return &Format{Depacketizer: evsFormat{}, Packetizer: evsFormat{}}, nil
	case audio.CodecPCMU, audio.CodecPCMA, audio.CodecG722:
		return &Format{Depacketizer: passthrough{codec: codec}, Packetizer: passthrough{codec: codec}}, nil
	case audio.CodecG7221:
		rate := opts.G7221Bitrate
		if rate == 0 {
			rate = 32000
		}
		mode, err := audio.ModeForBitrate(codec, rate, false)
		if err != nil {
			return nil, err
		}
		return &Format{Depacketizer: g7221Format{mode: mode}, Packetizer: g7221Format{mode: mode}}, nil
	}

	return nil, fmt.Errorf("payload: %w: %s", audio.ErrUnknownCodec, codec)
}

// Format bundles both directions of a payload format.
type Format struct {
	Depacketizer
	Packetizer
}
