// SPDX-License-Identifier: EPL-2.0

package framing

import (
	"fmt"
	"io"

	"github.com/ik5/voxframe/audio"
)

// EncodeFunc builds the header byte for a frame.
type EncodeFunc func(f audio.Frame) (byte, error)

// Writer emits header-prefixed frames in interleave order. The stream
// header must already be written.
type Writer struct {
	w        io.Writer
	format   string
	channels int
	encode   EncodeFunc

	ch  int
	buf []byte
}

func NewWriter(w io.Writer, format string, channels int, encode EncodeFunc) *Writer {
	return &Writer{w: w, format: format, channels: channels, encode: encode}
}

// WriteFrame validates f against the mode tables and writes it. Frames must
// arrive in channel order, one per channel per time slot.
func (w *Writer) WriteFrame(f audio.Frame) error {
	if f.Channel != w.ch {
		return fmt.Errorf("%s: %w: got channel %d, want %d", w.format, audio.ErrChannelOrder, f.Channel, w.ch)
	}

	size, err := audio.PayloadSize(f.Codec, f.Mode, f.AMRWBIO)
	if err != nil {
		return fmt.Errorf("%s: %w", w.format, err)
	}
	if size != len(f.Payload) {
		return fmt.Errorf("%s: %w: mode %d wants %d bytes, got %d", w.format, audio.ErrPayloadSize, f.Mode, size, len(f.Payload))
	}

	hdr, err := w.encode(f)
	if err != nil {
		return fmt.Errorf("%s: %w", w.format, err)
	}

	w.buf = append(w.buf[:0], hdr)
	w.buf = append(w.buf, f.Payload...)
	if _, err := w.w.Write(w.buf); err != nil {
		return fmt.Errorf("%s: %w", w.format, err)
	}

	w.ch = (w.ch + 1) % w.channels
	return nil
}

// Complete reports whether the last time slot has a frame for every channel.
func (w *Writer) Complete() bool { return w.ch == 0 }
