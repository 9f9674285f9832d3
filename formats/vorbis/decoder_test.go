// SPDX-License-Identifier: EPL-2.0

package vorbis

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/ik5/voxframe/audio"
)

// fakeVorbis hands out one packet of samples per Read.
type fakeVorbis struct {
	rate, channels int
	packets        [][]float32
}

func (f *fakeVorbis) SampleRate() int { return f.rate }
func (f *fakeVorbis) Channels() int   { return f.channels }

func (f *fakeVorbis) Read(p []float32) (int, error) {
	if len(f.packets) == 0 {
		return 0, io.EOF
	}
	n := copy(p, f.packets[0])
	f.packets[0] = f.packets[0][n:]
	if len(f.packets[0]) == 0 {
		f.packets = f.packets[1:]
	}
	return n, nil
}

func TestSource_ReadSamples(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		channels int
		packets  [][]float32
		bufLen   int
		want     []int
	}{
		{"mono fills across packets", 1, [][]float32{{0.1, 0.2}, {0.3, 0.4, 0.5}}, 4, []int{4, 1}},
		{"stereo", 2, [][]float32{{0.1, -0.1, 0.2, -0.2}}, 2, []int{2, 2}},
		{"empty", 2, nil, 4, []int{0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src := &source{dec: &fakeVorbis{rate: 48000, channels: tt.channels, packets: tt.packets}}
			buf := make([]float32, tt.bufLen)

			var got []int
			var err error
			for err == nil {
				var n int
				n, err = src.ReadSamples(buf)
				got = append(got, n)
			}
			if !errors.Is(err, io.EOF) {
				t.Fatalf("ReadSamples() error = %v, want io.EOF", err)
			}
			// the last read may hit EOF with nothing left
			if len(got) > len(tt.want) && got[len(got)-1] == 0 {
				got = got[:len(got)-1]
			}
			if len(got) != len(tt.want) {
				t.Fatalf("read sizes = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("read sizes = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestSource_InvalidDstSize(t *testing.T) {
	t.Parallel()

	src := &source{dec: &fakeVorbis{rate: 48000, channels: 2}}
	if _, err := src.ReadSamples(make([]float32, 3)); !errors.Is(err, audio.ErrInvalidDstSize) {
		t.Errorf("ReadSamples(3) error = %v, want ErrInvalidDstSize", err)
	}
	if src.SampleRate() != 48000 || src.Channels() != 2 {
		t.Errorf("format = %d Hz %d ch", src.SampleRate(), src.Channels())
	}
}

func TestDecoder_InvalidInput(t *testing.T) {
	t.Parallel()

	if _, err := (Decoder{}).Decode(bytes.NewReader([]byte("OggS but not really"))); err == nil {
		t.Error("Decode() error = nil, want an error")
	}
}
