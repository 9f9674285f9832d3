// SPDX-License-Identifier: EPL-2.0

package evs

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ik5/voxframe/audio"
	"github.com/ik5/voxframe/internal/framing"
)

// Writer produces EVS storage files.
type Writer struct {
	fw *framing.Writer
}

// NewWriter writes the magic and channel description field to w.
func NewWriter(w io.Writer, channels int) (*Writer, error) {
	if channels < 1 || channels > maxChannels {
		return nil, fmt.Errorf("evs: %w: %d channels", audio.ErrUnsupportedVariant, channels)
	}

	hdr := binary.BigEndian.AppendUint32([]byte(Magic), uint32(channels))
	if _, err := w.Write(hdr); err != nil {
		return nil, fmt.Errorf("evs: writing header: %w", err)
	}

	encode := func(f audio.Frame) (byte, error) {
		if f.Codec != audio.CodecEVS {
			return 0, fmt.Errorf("%w: %s frame in evs stream", audio.ErrUnsupportedVariant, f.Codec)
		}
		return ToC(f), nil
	}

	return &Writer{fw: framing.NewWriter(w, "evs", channels, encode)}, nil
}

func (w *Writer) WriteFrame(f audio.Frame) error {
	return w.fw.WriteFrame(f)
}

// Close fails if the last time slot is missing channels.
func (w *Writer) Close() error {
	if !w.fw.Complete() {
		return fmt.Errorf("evs: %w: incomplete time slot", audio.ErrChannelOrder)
	}
	return nil
}
