// SPDX-License-Identifier: EPL-2.0

package amr

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ik5/voxframe/audio"
	"github.com/ik5/voxframe/bitstream"
	"github.com/ik5/voxframe/internal/framing"
)

// RFC 4867 section 5 storage magics.
const (
	MagicAMR     = "#!AMR\n"
	MagicAMRWB   = "#!AMR-WB\n"
	MagicAMRMC   = "#!AMR_MC1.0\n"
	MagicAMRWBMC = "#!AMR-WB_MC1.0\n"

	magicPrefix = "#!AMR"
	maxChannels = 15
)

type variant struct {
	magic string
	codec audio.Codec
	multi bool
}

var variants = []variant{
	{MagicAMRWBMC, audio.CodecAMRWB, true},
	{MagicAMRMC, audio.CodecAMR, true},
	{MagicAMRWB, audio.CodecAMRWB, false},
	{MagicAMR, audio.CodecAMR, false},
}

// Demuxer reads AMR and AMR-WB storage files.
type Demuxer struct {
	*framing.Reader
}

// Open parses the storage header of r and returns a demuxer positioned at
// the first frame. r is not closed by the demuxer.
func Open(r io.Reader) (*Demuxer, error) {
	br, err := bitstream.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("amr: %w", err)
	}

	head, err := br.Peek(int(min(br.Remaining(), int64(len(MagicAMRWBMC)))))
	if err != nil {
		return nil, fmt.Errorf("amr: %w", err)
	}

	var v *variant
	for i := range variants {
		if bytes.HasPrefix(head, []byte(variants[i].magic)) {
			v = &variants[i]
			break
		}
	}
	if v == nil {
		if bytes.HasPrefix(head, []byte(magicPrefix)) {
			return nil, audio.NewFormatError("amr", audio.ErrUnsupportedVariant, 0, nil)
		}
		return nil, audio.NewFormatError("amr", audio.ErrBadMagic, 0, nil)
	}
	if err := br.Skip(int64(len(v.magic))); err != nil {
		return nil, fmt.Errorf("amr: %w", err)
	}

	channels := 1
	if v.multi {
		desc, err := br.ReadUint32()
		if err != nil {
			return nil, audio.NewFormatError("amr", audio.ErrTruncatedFrame, br.Position(), err)
		}
		// 28 reserved bits, 4 bit channel count
		channels = int(desc & 0x0F)
		if channels == 0 {
			return nil, audio.NewFormatError("amr", audio.ErrUnsupportedVariant, int64(len(v.magic)),
				fmt.Errorf("channel description %#08x has no channels", desc))
		}
	}

	hdr := audio.StreamHeader{
		Format:     v.codec.String(),
		Variant:    v.magic,
		Codec:      v.codec,
		Channels:   channels,
		SampleRate: v.codec.SampleRate(),
		HeaderSize: br.Position(),
	}
	codec := v.codec
	parse := func(b byte) (audio.Frame, error) {
		return ParseFrameHeader(codec, b)
	}

	return &Demuxer{Reader: framing.NewReader(br, hdr, parse, nil)}, nil
}

// ParseFrameHeader decodes a storage frame header byte: P, FT(4), Q, P, P.
// Padding bits are ignored.
func ParseFrameHeader(codec audio.Codec, b byte) (audio.Frame, error) {
	f := audio.Frame{
		Codec:   codec,
		Mode:    audio.Mode(b >> 3 & 0x0F),
		Quality: b&0x04 != 0,
	}
	if _, err := audio.LookupMode(codec, f.Mode, false); err != nil {
		return audio.Frame{}, err
	}

	return f, nil
}

// FrameHeader is the inverse of ParseFrameHeader.
func FrameHeader(f audio.Frame) byte {
	b := byte(f.Mode&0x0F) << 3
	if f.Quality {
		b |= 0x04
	}
	return b
}

// Descriptor registers narrowband AMR storage with a host registry.
func Descriptor() audio.FormatDescriptor {
	return audio.FormatDescriptor{
		Name:       "amr",
		LongName:   "Adaptive Multi-Rate storage format",
		Extensions: []string{"amr"},
		MIMETypes:  []string{"audio/amr"},
		Magic:      [][]byte{[]byte(MagicAMR), []byte(MagicAMRMC)},
		Codecs:     []audio.Codec{audio.CodecAMR},
		Open:       openDemuxer,
	}
}

// DescriptorWB registers AMR-WB storage with a host registry.
func DescriptorWB() audio.FormatDescriptor {
	return audio.FormatDescriptor{
		Name:       "amr-wb",
		LongName:   "Adaptive Multi-Rate Wideband storage format",
		Extensions: []string{"awb"},
		MIMETypes:  []string{"audio/amr-wb"},
		Magic:      [][]byte{[]byte(MagicAMRWB), []byte(MagicAMRWBMC)},
		Codecs:     []audio.Codec{audio.CodecAMRWB},
		Open:       openDemuxer,
	}
}

func openDemuxer(r io.Reader) (audio.Demuxer, error) {
	d, err := Open(r)
	if err != nil {
		return nil, err
	}
	return d, nil
}
