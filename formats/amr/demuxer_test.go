// SPDX-License-Identifier: EPL-2.0

package amr

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/ik5/voxframe/audio"
)

// frameBytes builds a header byte plus a zero payload sized for ft
func frameBytes(t *testing.T, codec audio.Codec, ft byte, q bool) []byte {
	t.Helper()

	size, err := audio.PayloadSize(codec, audio.Mode(ft), false)
	if err != nil {
		t.Fatalf("PayloadSize(%s, %d): %v", codec, ft, err)
	}
	b := ft << 3
	if q {
		b |= 0x04
	}
	out := []byte{b}
	for i := range size {
		out = append(out, byte(i+1))
	}
	return out
}

func TestOpen_Magic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		data         string
		wantErr      error
		wantCodec    audio.Codec
		wantChannels int
		wantHeader   int64
	}{
		{"amr", "#!AMR\n", nil, audio.CodecAMR, 1, 6},
		{"amr-wb", "#!AMR-WB\n", nil, audio.CodecAMRWB, 1, 9},
		{"amr mc", "#!AMR_MC1.0\n\x00\x00\x00\x02", nil, audio.CodecAMR, 2, 16},
		{"amr-wb mc", "#!AMR-WB_MC1.0\n\x00\x00\x00\x03", nil, audio.CodecAMRWB, 3, 19},
		{"not amr", "RIFF....WAVE", audio.ErrBadMagic, 0, 0, 0},
		{"empty", "", audio.ErrBadMagic, 0, 0, 0},
		{"unknown variant", "#!AMR-XB\n", audio.ErrUnsupportedVariant, 0, 0, 0},
		{"zero channels", "#!AMR_MC1.0\n\x00\x00\x00\x00", audio.ErrUnsupportedVariant, 0, 0, 0},
		{"short channel field", "#!AMR_MC1.0\n\x00\x00", audio.ErrTruncatedFrame, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d, err := Open(bytes.NewReader([]byte(tt.data)))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Open() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}

			hdr := d.Header()
			if hdr.Codec != tt.wantCodec || hdr.Channels != tt.wantChannels || hdr.HeaderSize != tt.wantHeader {
				t.Errorf("Header() = %+v, want codec %s, %d channels, header %d", hdr, tt.wantCodec, tt.wantChannels, tt.wantHeader)
			}
			if d.State() != audio.StateHeaderParsed {
				t.Errorf("State() = %s, want header-parsed", d.State())
			}
		})
	}
}

func TestNextFrame_AllValidModes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		codec audio.Codec
		magic string
		modes []byte
	}{
		{audio.CodecAMR, MagicAMR, []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 15}},
		{audio.CodecAMRWB, MagicAMRWB, []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 14, 15}},
	}

	for _, tt := range tests {
		t.Run(tt.codec.String(), func(t *testing.T) {
			t.Parallel()

			data := []byte(tt.magic)
			for _, ft := range tt.modes {
				data = append(data, frameBytes(t, tt.codec, ft, true)...)
			}

			d, err := Open(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}

			var consumed int
			for i, ft := range tt.modes {
				f, err := d.NextFrame()
				if err != nil {
					t.Fatalf("frame %d: NextFrame() error = %v", i, err)
				}
				want, _ := audio.PayloadSize(tt.codec, audio.Mode(ft), false)
				if f.Mode != audio.Mode(ft) || len(f.Payload) != want || !f.Quality {
					t.Errorf("frame %d = %s, want mode %d with %d bytes", i, f, ft, want)
				}
				if f.Index != uint64(i) || f.Channel != 0 {
					t.Errorf("frame %d: Index=%d Channel=%d", i, f.Index, f.Channel)
				}
				consumed += 1 + len(f.Payload)
			}

			if _, err := d.NextFrame(); err != io.EOF {
				t.Errorf("NextFrame() at end error = %v, want io.EOF", err)
			}
			if _, err := d.NextFrame(); err != io.EOF {
				t.Errorf("NextFrame() after end error = %v, want io.EOF", err)
			}
			if d.State() != audio.StateEnded {
				t.Errorf("State() = %s, want ended", d.State())
			}
			if consumed != len(data)-len(tt.magic) {
				t.Errorf("consumed %d bytes, want %d", consumed, len(data)-len(tt.magic))
			}
		})
	}
}

func TestNextFrame_UnknownMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		codec audio.Codec
		magic string
		ft    byte
	}{
		{audio.CodecAMR, MagicAMR, 9},
		{audio.CodecAMR, MagicAMR, 14},
		{audio.CodecAMRWB, MagicAMRWB, 10},
		{audio.CodecAMRWB, MagicAMRWB, 13},
	}

	for _, tt := range tests {
		data := append([]byte(tt.magic), frameBytes(t, tt.codec, 7, false)...)
		data = append(data, tt.ft<<3, 0, 0, 0)

		d, err := Open(bytes.NewReader(data))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := d.NextFrame(); err != nil {
			t.Fatalf("%s: first frame error = %v", tt.codec, err)
		}

		_, err = d.NextFrame()
		if !errors.Is(err, audio.ErrUnknownMode) {
			t.Errorf("%s ft %d: error = %v, want ErrUnknownMode", tt.codec, tt.ft, err)
		}
		var fe *audio.FormatError
		if errors.As(err, &fe) && fe.Offset != int64(len(data)-4) {
			t.Errorf("%s ft %d: offset = %d, want %d", tt.codec, tt.ft, fe.Offset, len(data)-4)
		}

		// sticky
		if _, again := d.NextFrame(); !errors.Is(again, audio.ErrUnknownMode) {
			t.Errorf("%s: repeated NextFrame() error = %v, want the same error", tt.codec, again)
		}
		if d.State() != audio.StateErrored {
			t.Errorf("State() = %s, want errored", d.State())
		}
	}
}

func TestNextFrame_TruncatedPayload(t *testing.T) {
	t.Parallel()

	full := append([]byte(MagicAMR), frameBytes(t, audio.CodecAMR, 7, true)...)
	full = append(full, frameBytes(t, audio.CodecAMR, 7, true)...)
	cut := full[:len(full)-10]

	d, err := Open(bytes.NewReader(cut))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.NextFrame(); err != nil {
		t.Fatalf("first frame error = %v", err)
	}

	_, err = d.NextFrame()
	if !errors.Is(err, audio.ErrTruncatedFrame) {
		t.Fatalf("NextFrame() error = %v, want ErrTruncatedFrame", err)
	}
	if errors.Is(err, io.EOF) {
		t.Error("truncation must not look like a clean io.EOF")
	}
}

func TestNextFrame_NoDataIsEmitted(t *testing.T) {
	t.Parallel()

	data := append([]byte(MagicAMRWB), 15<<3, 14<<3)
	d, err := Open(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []audio.FrameClass{audio.ClassNoData, audio.ClassSpeechLost} {
		f, err := d.NextFrame()
		if err != nil {
			t.Fatalf("NextFrame() error = %v", err)
		}
		if len(f.Payload) != 0 {
			t.Errorf("payload = %d bytes, want 0", len(f.Payload))
		}
		if c, _ := f.Class(); c != want {
			t.Errorf("Class() = %s, want %s", c, want)
		}
	}
}

func TestNextSlot_MultiChannel(t *testing.T) {
	t.Parallel()

	data := []byte(MagicAMRMC + "\x00\x00\x00\x02")
	for range 3 {
		data = append(data, frameBytes(t, audio.CodecAMR, 7, true)...)
		data = append(data, frameBytes(t, audio.CodecAMR, 8, true)...)
	}

	d, err := Open(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}

	for slot := range 3 {
		frames, err := d.NextSlot()
		if err != nil {
			t.Fatalf("slot %d: NextSlot() error = %v", slot, err)
		}
		if len(frames) != 2 {
			t.Fatalf("slot %d: %d frames, want 2", slot, len(frames))
		}
		for ch, f := range frames {
			if f.Channel != ch || f.Index != uint64(slot) {
				t.Errorf("slot %d: frame %s has wrong position", slot, f)
			}
		}
		if frames[1].Mode != 8 {
			t.Errorf("slot %d: channel 1 mode = %d, want 8", slot, frames[1].Mode)
		}
	}

	if _, err := d.NextSlot(); err != io.EOF {
		t.Errorf("NextSlot() at end error = %v, want io.EOF", err)
	}
}

func TestNextFrame_IncompleteSlot(t *testing.T) {
	t.Parallel()

	data := []byte(MagicAMRMC + "\x00\x00\x00\x02")
	data = append(data, frameBytes(t, audio.CodecAMR, 7, true)...)

	d, err := Open(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.NextFrame(); err != nil {
		t.Fatal(err)
	}
	if _, err := d.NextFrame(); !errors.Is(err, audio.ErrTruncatedFrame) {
		t.Errorf("NextFrame() error = %v, want ErrTruncatedFrame", err)
	}
}

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error { c.closed = true; return nil }

func TestOpen_DoesNotCloseSource(t *testing.T) {
	t.Parallel()

	src := &closeTracker{Reader: bytes.NewReader([]byte(MagicAMR))}
	d, err := Open(src)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if src.closed {
		t.Error("Close() closed the caller's reader")
	}
}

func BenchmarkNextFrame(b *testing.B) {
	data := []byte(MagicAMRWB)
	frame := make([]byte, 61)
	frame[0] = 8 << 3
	for range 500 {
		data = append(data, frame...)
	}

	b.ReportAllocs()
	b.ResetTimer()

	for b.Loop() {
		d, _ := Open(bytes.NewReader(data))
		for {
			if _, err := d.NextFrame(); err != nil {
				break
			}
		}
	}
}
