// SPDX-License-Identifier: EPL-2.0

package amr

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ik5/voxframe/audio"
	"github.com/ik5/voxframe/internal/framing"
)

// Writer produces AMR or AMR-WB storage files. Single channel streams use
// the plain magic, anything wider the multi-channel one.
type Writer struct {
	fw    *framing.Writer
	codec audio.Codec
}

// NewWriter writes the storage header to w.
func NewWriter(w io.Writer, codec audio.Codec, channels int) (*Writer, error) {
	if codec != audio.CodecAMR && codec != audio.CodecAMRWB {
		return nil, fmt.Errorf("amr: %w: %s", audio.ErrUnsupportedVariant, codec)
	}
	if channels < 1 || channels > maxChannels {
		return nil, fmt.Errorf("amr: %w: %d channels", audio.ErrUnsupportedVariant, channels)
	}

	var hdr []byte
	switch {
	case codec == audio.CodecAMR && channels == 1:
		hdr = []byte(MagicAMR)
	case codec == audio.CodecAMRWB && channels == 1:
		hdr = []byte(MagicAMRWB)
	case codec == audio.CodecAMR:
		hdr = binary.BigEndian.AppendUint32([]byte(MagicAMRMC), uint32(channels))
	default:
		hdr = binary.BigEndian.AppendUint32([]byte(MagicAMRWBMC), uint32(channels))
	}
	if _, err := w.Write(hdr); err != nil {
		return nil, fmt.Errorf("amr: writing header: %w", err)
	}

	encode := func(f audio.Frame) (byte, error) {
		if f.Codec != codec {
			return 0, fmt.Errorf("%w: %s frame in %s stream", audio.ErrUnsupportedVariant, f.Codec, codec)
		}
		return FrameHeader(f), nil
	}

	return &Writer{fw: framing.NewWriter(w, codec.String(), channels, encode), codec: codec}, nil
}

func (w *Writer) WriteFrame(f audio.Frame) error {
	return w.fw.WriteFrame(f)
}

// Close fails if the last time slot is missing channels. It does not close
// the underlying writer.
func (w *Writer) Close() error {
	if !w.fw.Complete() {
		return fmt.Errorf("%s: %w: incomplete time slot", w.codec, audio.ErrChannelOrder)
	}
	return nil
}
