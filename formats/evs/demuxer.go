// SPDX-License-Identifier: EPL-2.0

package evs

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ik5/voxframe/audio"
	"github.com/ik5/voxframe/bitstream"
	"github.com/ik5/voxframe/internal/framing"
)

// Magic opens every EVS storage file (3GPP TS 26.445 annex A.2.6).
const Magic = "#!EVS_MC1.0\n"

const maxChannels = 15

// ToC byte layout.
const (
	tocHeader  = 0x80
	tocFollow  = 0x40
	tocIOMode  = 0x20
	tocQuality = 0x10
	tocType    = 0x0F
)

type Demuxer struct {
	*framing.Reader
}

// Open checks the magic, reads the channel description field and returns a
// demuxer positioned at the first frame.
func Open(r io.Reader) (*Demuxer, error) {
	br, err := bitstream.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("evs: %w", err)
	}

	head, err := br.Peek(int(min(br.Remaining(), int64(len(Magic)))))
	if err != nil {
		return nil, fmt.Errorf("evs: %w", err)
	}
	if !bytes.Equal(head, []byte(Magic)) {
		return nil, audio.NewFormatError("evs", audio.ErrBadMagic, 0, nil)
	}
	if err := br.Skip(int64(len(Magic))); err != nil {
		return nil, fmt.Errorf("evs: %w", err)
	}

	desc, err := br.ReadUint32()
	if err != nil {
		return nil, audio.NewFormatError("evs", audio.ErrTruncatedFrame, br.Position(), err)
	}
	// the upper 28 bits are reserved
	channels := int(desc & 0x0F)
	if channels == 0 {
		return nil, audio.NewFormatError("evs", audio.ErrUnsupportedVariant, int64(len(Magic)),
			fmt.Errorf("channel description %#08x has no channels", desc))
	}

	hdr := audio.StreamHeader{
		Format:     "evs",
		Variant:    Magic,
		Codec:      audio.CodecEVS,
		Channels:   channels,
		SampleRate: audio.CodecEVS.SampleRate(),
		HeaderSize: br.Position(),
	}

	return &Demuxer{Reader: framing.NewReader(br, hdr, ParseToC, nil)}, nil
}

// ParseToC decodes a storage ToC byte: H, F, EVS mode bit, Q, FT(4). The H
// bit marks a codec mode request, which has no place in a storage file. The
// F bit is ignored.
func ParseToC(b byte) (audio.Frame, error) {
	if b&tocHeader != 0 {
		return audio.Frame{}, fmt.Errorf("%w: ToC %#02x has the header bit set", audio.ErrUnknownMode, b)
	}

	f := audio.Frame{
		Codec:   audio.CodecEVS,
		Mode:    audio.Mode(b & tocType),
		AMRWBIO: b&tocIOMode != 0,
		// primary frames carry no quality bit
		Quality: true,
	}
	if f.AMRWBIO {
		f.Quality = b&tocQuality != 0
	}
	if _, err := audio.LookupMode(f.Codec, f.Mode, f.AMRWBIO); err != nil {
		return audio.Frame{}, err
	}

	return f, nil
}

// ToC is the inverse of ParseToC.
func ToC(f audio.Frame) byte {
	b := byte(f.Mode) & tocType
	if f.AMRWBIO {
		b |= tocIOMode
		if f.Quality {
			b |= tocQuality
		}
	}
	return b
}

// Descriptor registers EVS storage with a host registry.
func Descriptor() audio.FormatDescriptor {
	return audio.FormatDescriptor{
		Name:       "evs",
		LongName:   "Enhanced Voice Services storage format",
		Extensions: []string{"evs"},
		MIMETypes:  []string{"audio/evs"},
		Magic:      [][]byte{[]byte(Magic)},
		Codecs:     []audio.Codec{audio.CodecEVS},
		Open: func(r io.Reader) (audio.Demuxer, error) {
			d, err := Open(r)
			if err != nil {
				return nil, err
			}
			return d, nil
		},
	}
}
