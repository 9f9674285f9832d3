// SPDX-License-Identifier: EPL-2.0

package g722_test

import (
	"errors"
	"math"
	"testing"

	"github.com/ik5/voxframe/audio"
	"github.com/ik5/voxframe/codec"
	_ "github.com/ik5/voxframe/codec/g722"
)

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	for _, rate := range []int{0, 64000, 56000, 48000} {
		enc, err := codec.OpenEncoder(codec.Config{Codec: audio.CodecG722, BitRate: rate})
		if err != nil {
			t.Fatalf("OpenEncoder(%d) error = %v", rate, err)
		}
		dec, err := codec.Open(codec.Config{Codec: audio.CodecG722, BitRate: rate})
		if err != nil {
			t.Fatalf("Open(%d) error = %v", rate, err)
		}

		pcm := make([]int16, 320)
		for i := range pcm {
			pcm[i] = int16(8000 * math.Sin(2*math.Pi*440*float64(i)/16000))
		}

		var f audio.Frame
		for range 5 {
			if f, err = enc.Encode(pcm, 0); err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
		}
		if len(f.Payload) != 160 {
			t.Errorf("rate %d: %d bytes, want 160", rate, len(f.Payload))
		}

		out, err := dec.Decode(f)
		if err != nil || len(out) != 320 {
			t.Fatalf("rate %d: Decode() = %d samples, %v; want 320", rate, len(out), err)
		}
		again, err := enc.Encode(out, 0)
		if err != nil || len(again.Payload) != len(f.Payload) {
			t.Errorf("rate %d: re-Encode() = %d bytes, %v", rate, len(again.Payload), err)
		}

		enc.Close()
		dec.Close()
	}
}

func TestBitRate(t *testing.T) {
	t.Parallel()

	if _, err := codec.Open(codec.Config{Codec: audio.CodecG722, BitRate: 32000}); !errors.Is(err, codec.ErrUnsupportedConfig) {
		t.Errorf("Open(32000) error = %v, want ErrUnsupportedConfig", err)
	}
	if _, err := codec.Open(codec.Config{Codec: audio.CodecG722, SampleRate: 8000}); !errors.Is(err, codec.ErrUnsupportedConfig) {
		t.Errorf("Open(8 kHz) error = %v, want ErrUnsupportedConfig", err)
	}
}
