// SPDX-License-Identifier: EPL-2.0

package codec_test

import (
	"errors"
	"slices"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ik5/voxframe/audio"
	"github.com/ik5/voxframe/codec"
	"github.com/ik5/voxframe/internal/audiotest"
)

func newRegistry(t *testing.T, libs ...codec.Library) *codec.Registry {
	t.Helper()

	r := codec.NewRegistry()
	for _, l := range libs {
		r.Register(l)
	}
	return r
}

func speechFrame(t *testing.T, c audio.Codec, mode audio.Mode, fill byte) audio.Frame {
	t.Helper()

	n, err := audio.PayloadSize(c, mode, false)
	if err != nil {
		t.Fatal(err)
	}
	if n < 0 {
		n = 160
	}
	p := make([]byte, n)
	for i := range p {
		p[i] = fill + byte(i)
	}
	return audio.Frame{Codec: c, Mode: mode, Quality: true, Payload: p}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	r := newRegistry(t, audiotest.NewFakeLibrary(audio.CodecAMR, audio.CodecAMRWB, audio.CodecEVS))

	tests := []struct {
		name     string
		cfg      codec.Config
		wantRate int
		wantErr  error
	}{
		{"amr defaults", codec.Config{Codec: audio.CodecAMR}, 8000, nil},
		{"amr-wb defaults", codec.Config{Codec: audio.CodecAMRWB}, 16000, nil},
		{"evs at 48 kHz", codec.Config{Codec: audio.CodecEVS, SampleRate: 48000}, 48000, nil},
		{"evs io", codec.Config{Codec: audio.CodecEVS, AMRWBIO: true, ModeSet: []audio.Mode{2, 8}}, 16000, nil},
		{"mode set", codec.Config{Codec: audio.CodecAMR, ModeSet: []audio.Mode{0, 7}}, 8000, nil},
		{"no library", codec.Config{Codec: audio.CodecPCMU}, 0, codec.ErrUnsupportedConfig},
		{"unknown codec", codec.Config{Codec: audio.CodecUnknown}, 0, codec.ErrUnsupportedConfig},
		{"bad rate", codec.Config{Codec: audio.CodecAMR, SampleRate: 16000}, 0, codec.ErrUnsupportedConfig},
		{"two channels", codec.Config{Codec: audio.CodecAMR, Channels: 2}, 0, codec.ErrUnsupportedConfig},
		{"io outside evs", codec.Config{Codec: audio.CodecAMRWB, AMRWBIO: true}, 0, codec.ErrUnsupportedConfig},
		{"sid in mode set", codec.Config{Codec: audio.CodecAMR, ModeSet: []audio.Mode{8}}, 0, codec.ErrUnsupportedConfig},
		{"unknown mode in set", codec.Config{Codec: audio.CodecEVS, ModeSet: []audio.Mode{13}}, 0, codec.ErrUnsupportedConfig},
		{"library refuses", codec.Config{Codec: audio.CodecAMR, BitRate: -1}, 0, codec.ErrUnsupportedConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d, err := r.Open(tt.cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Open() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer d.Close()

			if got := d.Config(); got.SampleRate != tt.wantRate || got.Channels != 1 {
				t.Errorf("Config() = %+v, want %d Hz mono", got, tt.wantRate)
			}
		})
	}
}

func TestDecoder_RejectsFrames(t *testing.T) {
	t.Parallel()

	r := newRegistry(t, audiotest.NewFakeLibrary(audio.CodecAMR, audio.CodecAMRWB, audio.CodecEVS, audio.CodecPCMU))
	d, err := r.Open(codec.Config{Codec: audio.CodecAMR, ModeSet: []audio.Mode{0, 7}})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	good := speechFrame(t, audio.CodecAMR, 7, 1)
	short := good
	short.Payload = good.Payload[:30]

	tests := []struct {
		name    string
		frame   audio.Frame
		wantErr error
	}{
		{"other codec", speechFrame(t, audio.CodecAMRWB, 2, 1), codec.ErrUnsupportedMode},
		{"reserved mode", audio.Frame{Codec: audio.CodecAMR, Mode: 12}, codec.ErrUnsupportedMode},
		{"outside mode set", speechFrame(t, audio.CodecAMR, 5, 1), codec.ErrUnsupportedMode},
		{"io flag", audio.Frame{Codec: audio.CodecAMR, Mode: 15, AMRWBIO: true}, codec.ErrUnsupportedMode},
		{"short payload", short, codec.ErrSizeMismatch},
		{"no data with bytes", audio.Frame{Codec: audio.CodecAMR, Mode: 15, Payload: []byte{0}}, codec.ErrSizeMismatch},
	}

	for _, tt := range tests {
		_, err := d.Decode(tt.frame)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("%s: Decode() error = %v, want %v", tt.name, err, tt.wantErr)
		}
		var de *codec.DecodeError
		if !errors.As(err, &de) || de.Codec != tt.frame.Codec || de.Mode != tt.frame.Mode {
			t.Errorf("%s: error %v is not a *DecodeError for the frame", tt.name, err)
		}

		// still usable
		pcm, err := d.Decode(good)
		if err != nil || len(pcm) != 160 {
			t.Fatalf("%s: Decode(good) = %d samples, %v; want 160", tt.name, len(pcm), err)
		}
	}

	for _, f := range []audio.Frame{
		{Codec: audio.CodecAMR, Mode: 8, Payload: make([]byte, 5)},
		{Codec: audio.CodecAMR, Mode: 15},
	} {
		if _, err := d.Decode(f); err != nil {
			t.Errorf("Decode(%s) error = %v; SID and NO_DATA are always accepted", f, err)
		}
	}
}

func TestDecoder_FreeSizedCodecs(t *testing.T) {
	t.Parallel()

	r := newRegistry(t, audiotest.NewFakeLibrary(audio.CodecPCMU, audio.CodecG722))

	tests := []struct {
		codec audio.Codec
		bytes int
		want  int
	}{
		{audio.CodecPCMU, 160, 160},
		{audio.CodecPCMU, 80, 80},
		{audio.CodecG722, 160, 320},
	}

	for _, tt := range tests {
		d, err := r.Open(codec.Config{Codec: tt.codec})
		if err != nil {
			t.Fatal(err)
		}
		pcm, err := d.Decode(audio.Frame{Codec: tt.codec, Payload: make([]byte, tt.bytes)})
		if err != nil || len(pcm) != tt.want {
			t.Errorf("%s Decode(%d bytes) = %d samples, %v; want %d", tt.codec, tt.bytes, len(pcm), err, tt.want)
		}
		if _, err := d.Decode(audio.Frame{Codec: tt.codec, Mode: 1}); !errors.Is(err, codec.ErrUnsupportedMode) {
			t.Errorf("%s Decode(mode 1) error = %v, want ErrUnsupportedMode", tt.codec, err)
		}
		d.Close()
	}
}

func TestDecoder_InternalFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		lib  *audiotest.FakeLibrary
	}{
		{"transform error", &audiotest.FakeLibrary{Served: []audio.Codec{audio.CodecAMRWB}, DecodeErr: errors.New("boom")}},
		{"bad sample count", &audiotest.FakeLibrary{Served: []audio.Codec{audio.CodecAMRWB}, BadCount: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := newRegistry(t, tt.lib)
			d, err := r.Open(codec.Config{Codec: audio.CodecAMRWB})
			if err != nil {
				t.Fatal(err)
			}
			defer d.Close()

			f := speechFrame(t, audio.CodecAMRWB, 2, 3)
			_, err = d.Decode(f)
			if !errors.Is(err, codec.ErrInternalCodecFailure) {
				t.Fatalf("Decode() error = %v, want ErrInternalCodecFailure", err)
			}
			if _, again := d.Decode(f); again != err {
				t.Errorf("Decode() after failure = %v, want the same error", again)
			}
		})
	}
}

func TestDecoder_Close(t *testing.T) {
	t.Parallel()

	lib := audiotest.NewFakeLibrary(audio.CodecEVS)
	r := newRegistry(t, lib)
	d, err := r.Open(codec.Config{Codec: audio.CodecEVS})
	if err != nil {
		t.Fatal(err)
	}
	if lib.Open() != 1 {
		t.Fatalf("open transforms = %d, want 1", lib.Open())
	}

	for range 2 {
		if err := d.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	}
	if lib.Open() != 0 {
		t.Errorf("open transforms after Close = %d, want 0", lib.Open())
	}
	if _, err := d.Decode(speechFrame(t, audio.CodecEVS, 4, 0)); !errors.Is(err, codec.ErrClosed) {
		t.Errorf("Decode() after Close error = %v, want ErrClosed", err)
	}
}

func TestInit_ExactlyOnce(t *testing.T) {
	t.Parallel()

	lib := audiotest.NewFakeLibrary(audio.CodecAMR, audio.CodecAMRWB)
	lib.InitDelay = 20 * time.Millisecond
	r := newRegistry(t, lib)

	var g errgroup.Group
	for i := range 32 {
		c := audio.CodecAMR
		if i%2 == 1 {
			c = audio.CodecAMRWB
		}
		g.Go(func() error {
			d, err := r.Open(codec.Config{Codec: c})
			if err != nil {
				return err
			}
			return d.Close()
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if got := lib.Inits(); got != 1 {
		t.Errorf("Init called %d times, want 1", got)
	}
}

func TestInit_FailureIsSticky(t *testing.T) {
	t.Parallel()

	lib := audiotest.NewFakeLibrary(audio.CodecEVS)
	lib.InitErr = errors.New("no license")
	r := newRegistry(t, lib)

	for range 3 {
		_, err := r.Open(codec.Config{Codec: audio.CodecEVS})
		if !errors.Is(err, codec.ErrUnsupportedConfig) || !errors.Is(err, lib.InitErr) {
			t.Errorf("Open() error = %v, want the init failure", err)
		}
	}
	if got := lib.Inits(); got != 1 {
		t.Errorf("Init called %d times, want 1", got)
	}
}

func TestInit_SerializedAcrossLibraries(t *testing.T) {
	t.Parallel()

	gauge := &audiotest.InitGauge{}
	amr := &audiotest.FakeLibrary{LibName: "amr", Served: []audio.Codec{audio.CodecAMR}, InitDelay: 20 * time.Millisecond, Gauge: gauge}
	evs := &audiotest.FakeLibrary{LibName: "evs", Served: []audio.Codec{audio.CodecEVS}, InitDelay: 20 * time.Millisecond, Gauge: gauge}
	r := newRegistry(t, amr, evs)

	var g errgroup.Group
	for _, c := range []audio.Codec{audio.CodecAMR, audio.CodecEVS, audio.CodecAMR, audio.CodecEVS} {
		g.Go(func() error {
			d, err := r.Open(codec.Config{Codec: c})
			if err != nil {
				return err
			}
			return d.Close()
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if amr.Inits() != 1 || evs.Inits() != 1 {
		t.Errorf("Init calls = %d, %d; want 1, 1", amr.Inits(), evs.Inits())
	}
	if got := gauge.Peak(); got != 1 {
		t.Errorf("overlapping Init calls = %d, want 1", got)
	}
}

func TestRegister_SameLibraryKeepsInit(t *testing.T) {
	t.Parallel()

	lib := audiotest.NewFakeLibrary(audio.CodecAMR, audio.CodecAMRWB)
	other := &audiotest.FakeLibrary{LibName: "other", Served: []audio.Codec{audio.CodecAMR}}
	r := newRegistry(t, lib)

	open := func() {
		t.Helper()
		d, err := r.Open(codec.Config{Codec: audio.CodecAMR})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		_ = d.Close()
	}

	open()
	r.Register(other)
	r.Register(lib)
	open()

	if got := lib.Inits(); got != 1 {
		t.Errorf("Init called %d times, want 1", got)
	}
	if l, ok := r.Lookup(audio.CodecAMR); !ok || l.Name() != "fake" {
		t.Errorf("Lookup(amr) = %v, %v; want fake", l, ok)
	}
	if libs := r.Libraries(); len(libs) != 1 {
		t.Errorf("Libraries() = %d entries, want 1", len(libs))
	}
}

func decodeAll(t *testing.T, r *codec.Registry, frames []audio.Frame) []int16 {
	t.Helper()

	d, err := r.Open(codec.Config{Codec: frames[0].Codec})
	if err != nil {
		t.Error(err)
		return nil
	}
	defer d.Close()

	var out []int16
	for _, f := range frames {
		pcm, err := d.Decode(f)
		if err != nil {
			t.Error(err)
			return nil
		}
		out = append(out, pcm...)
	}
	return out
}

func TestDecoder_ConcurrentStreams(t *testing.T) {
	t.Parallel()

	r := newRegistry(t, audiotest.NewFakeLibrary(audio.CodecAMR, audio.CodecEVS))

	var a, b []audio.Frame
	for i := range 200 {
		a = append(a, speechFrame(t, audio.CodecAMR, audio.Mode(i%8), byte(i)))
		b = append(b, speechFrame(t, audio.CodecEVS, audio.Mode(i%12), byte(3*i)))
	}

	wantA := decodeAll(t, r, a)
	wantB := decodeAll(t, r, b)

	var gotA, gotB []int16
	var g errgroup.Group
	g.Go(func() error { gotA = decodeAll(t, r, a); return nil })
	g.Go(func() error { gotB = decodeAll(t, r, b); return nil })
	_ = g.Wait()

	if !slices.Equal(gotA, wantA) || !slices.Equal(gotB, wantB) {
		t.Error("concurrent decoding differs from sequential decoding")
	}
}

func TestEncoder_RoundTrip(t *testing.T) {
	t.Parallel()

	r := newRegistry(t, audiotest.NewFakeLibrary(audio.CodecAMR, audio.CodecAMRWB, audio.CodecEVS, audio.CodecPCMA))

	tests := []struct {
		codec audio.Codec
		io    bool
		modes int
	}{
		{audio.CodecAMR, false, 8},
		{audio.CodecAMRWB, false, 9},
		{audio.CodecEVS, false, 12},
		{audio.CodecEVS, true, 9},
		{audio.CodecPCMA, false, 1},
	}

	for _, tt := range tests {
		enc, err := r.OpenEncoder(codec.Config{Codec: tt.codec, AMRWBIO: tt.io})
		if err != nil {
			t.Fatal(err)
		}
		dec, err := r.Open(codec.Config{Codec: tt.codec})
		if err != nil {
			t.Fatal(err)
		}

		pcm := make([]int16, enc.FrameSamples())
		for i := range pcm {
			pcm[i] = int16(i * 97)
		}
		for m := range tt.modes {
			mode := audio.Mode(m)
			first, err := enc.Encode(pcm, mode)
			if err != nil {
				t.Fatalf("%s/%d Encode() error = %v", tt.codec, m, err)
			}
			decoded, err := dec.Decode(first)
			if err != nil {
				t.Fatalf("%s/%d Decode() error = %v", tt.codec, m, err)
			}
			again, err := enc.Encode(decoded, mode)
			if err != nil {
				t.Fatalf("%s/%d re-Encode() error = %v", tt.codec, m, err)
			}
			if len(again.Payload) != len(first.Payload) || again.AMRWBIO != tt.io {
				t.Errorf("%s/%d re-encoded %d bytes, want %d", tt.codec, m, len(again.Payload), len(first.Payload))
			}
			if again.Index != first.Index+1 {
				t.Errorf("%s/%d Index = %d, want %d", tt.codec, m, again.Index, first.Index+1)
			}
		}
		enc.Close()
		dec.Close()
	}
}

func TestEncoder_Rejects(t *testing.T) {
	t.Parallel()

	r := newRegistry(t, audiotest.NewFakeLibrary(audio.CodecAMRWB, audio.CodecG722))
	enc, err := r.OpenEncoder(codec.Config{Codec: audio.CodecAMRWB, ModeSet: []audio.Mode{2}})
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()

	if _, err := enc.Encode(make([]int16, 319), 2); !errors.Is(err, codec.ErrSizeMismatch) {
		t.Errorf("Encode(319 samples) error = %v, want ErrSizeMismatch", err)
	}
	if _, err := enc.Encode(make([]int16, 320), 3); !errors.Is(err, codec.ErrUnsupportedMode) {
		t.Errorf("Encode(mode 3) error = %v, want ErrUnsupportedMode", err)
	}
	if _, err := enc.Encode(make([]int16, 320), 2); err != nil {
		t.Errorf("Encode() error = %v", err)
	}

	g722, err := r.OpenEncoder(codec.Config{Codec: audio.CodecG722})
	if err != nil {
		t.Fatal(err)
	}
	defer g722.Close()
	if _, err := g722.Encode(make([]int16, 321), 0); !errors.Is(err, codec.ErrSizeMismatch) {
		t.Errorf("G.722 Encode(321 samples) error = %v, want ErrSizeMismatch", err)
	}
	f, err := g722.Encode(make([]int16, 320), 0)
	if err != nil || len(f.Payload) != 160 {
		t.Errorf("G.722 Encode(320 samples) = %d bytes, %v; want 160", len(f.Payload), err)
	}
}

func TestOpenEncoder_DecodeOnlyLibrary(t *testing.T) {
	t.Parallel()

	lib := audiotest.NewFakeLibrary(audio.CodecEVS)
	lib.NoEncoder = true
	r := newRegistry(t, lib)

	if _, err := r.OpenEncoder(codec.Config{Codec: audio.CodecEVS}); !errors.Is(err, codec.ErrUnsupportedConfig) {
		t.Errorf("OpenEncoder() error = %v, want ErrUnsupportedConfig", err)
	}
	if lib.Open() != 0 {
		t.Errorf("open transforms = %d, want 0", lib.Open())
	}
}

func TestRegistry_Replace(t *testing.T) {
	t.Parallel()

	first := audiotest.NewFakeLibrary(audio.CodecAMR, audio.CodecAMRWB)
	second := &audiotest.FakeLibrary{LibName: "second", Served: []audio.Codec{audio.CodecAMR, audio.CodecAMRWB}}
	r := newRegistry(t, first, second)

	if lib, ok := r.Lookup(audio.CodecAMR); !ok || lib.Name() != "second" {
		t.Errorf("Lookup(amr) = %v, %v; want second", lib, ok)
	}
	if libs := r.Libraries(); len(libs) != 1 || libs[0].Name() != "second" {
		t.Errorf("Libraries() = %d entries, want only second", len(libs))
	}
	if _, ok := r.Lookup(audio.CodecEVS); ok {
		t.Error("Lookup(evs) found a library")
	}
}

func TestDecodeError(t *testing.T) {
	t.Parallel()

	cause := errors.New("cause")
	err := error(&codec.DecodeError{Kind: codec.ErrSizeMismatch, Codec: audio.CodecEVS, Mode: 4, Offset: 42, Err: cause})

	if want := "codec: evs mode 4 at offset 42: payload size does not match mode: cause"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, codec.ErrSizeMismatch) || !errors.Is(err, cause) {
		t.Errorf("errors.Is failed for %v", err)
	}
}

func BenchmarkDecoder_Decode(b *testing.B) {
	r := codec.NewRegistry()
	r.Register(audiotest.NewFakeLibrary(audio.CodecAMRWB))
	d, err := r.Open(codec.Config{Codec: audio.CodecAMRWB})
	if err != nil {
		b.Fatal(err)
	}
	defer d.Close()
	f := audio.Frame{Codec: audio.CodecAMRWB, Mode: 8, Payload: make([]byte, 60)}

	b.ReportAllocs()
	b.ResetTimer()
	for b.Loop() {
		if _, err := d.Decode(f); err != nil {
			b.Fatal(err)
		}
	}
}
