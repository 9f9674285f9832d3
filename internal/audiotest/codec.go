// SPDX-License-Identifier: EPL-2.0

package audiotest

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/ik5/voxframe/audio"
	"github.com/ik5/voxframe/codec"
)

// FakeLibrary is a deterministic stand-in for a native codec library.
// Decoded PCM depends on every frame the transform has seen, so output
// mixed up between handles shows.
type FakeLibrary struct {
	LibName string
	Served  []audio.Codec

	// InitErr is returned by Init; InitDelay widens the window for
	// concurrent first opens.
	InitErr   error
	InitDelay time.Duration
	// Gauge, when set, tracks Init calls running at the same time.
	Gauge *InitGauge
	// DecodeErr fails every Decode and Encode when set.
	DecodeErr error
	// BadCount makes Decode claim one sample fewer than a full frame.
	BadCount bool
	// NoEncoder hands out transforms without Encode.
	NoEncoder bool

	inits atomic.Int32
	open  atomic.Int32
}

// NewFakeLibrary serves codecs under the name "fake".
func NewFakeLibrary(codecs ...audio.Codec) *FakeLibrary {
	return &FakeLibrary{LibName: "fake", Served: codecs}
}

func (l *FakeLibrary) Name() string          { return l.LibName }
func (l *FakeLibrary) Codecs() []audio.Codec { return l.Served }

func (l *FakeLibrary) Init() error {
	l.inits.Add(1)
	if l.Gauge != nil {
		l.Gauge.enter()
		defer l.Gauge.leave()
	}
	time.Sleep(l.InitDelay)
	return l.InitErr
}

// InitGauge can be shared by several fake libraries.
type InitGauge struct {
	cur, peak atomic.Int32
}

func (g *InitGauge) enter() {
	n := g.cur.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (g *InitGauge) leave() { g.cur.Add(-1) }

// Peak is the largest number of overlapping Init calls seen.
func (g *InitGauge) Peak() int { return int(g.peak.Load()) }

// Inits counts Init calls.
func (l *FakeLibrary) Inits() int { return int(l.inits.Load()) }

// Open counts transforms created and not yet closed.
func (l *FakeLibrary) Open() int { return int(l.open.Load()) }

func (l *FakeLibrary) NewTransform(cfg codec.Config) (codec.Transform, error) {
	if cfg.BitRate < 0 {
		return nil, fmt.Errorf("fake: bit rate %d", cfg.BitRate)
	}
	l.open.Add(1)
	t := &fakeTransform{lib: l, cfg: cfg}
	if l.NoEncoder {
		return decodeOnly{t}, nil
	}
	return t, nil
}

type fakeTransform struct {
	lib    *FakeLibrary
	cfg    codec.Config
	acc    uint32
	closed bool
}

func (t *fakeTransform) samples(payload int) int {
	switch t.cfg.Codec {
	case audio.CodecPCMU, audio.CodecPCMA:
		return payload
	case audio.CodecG722:
		return 2 * payload
	}
	return t.cfg.Codec.SamplesPerFrame(t.cfg.SampleRate)
}

func (t *fakeTransform) Decode(f audio.Frame, pcm []int16) (int, error) {
	if t.lib.DecodeErr != nil {
		return 0, t.lib.DecodeErr
	}
	for _, b := range f.Payload {
		t.acc = t.acc*31 + uint32(b)
	}
	t.acc += uint32(f.Mode)

	n := min(t.samples(len(f.Payload)), len(pcm))
	for i := range n {
		pcm[i] = int16(t.acc + uint32(i))
	}
	if t.lib.BadCount && n > 0 {
		n--
	}
	return n, nil
}

// Encode keeps the high byte of the samples, enough for round trips of
// payload sizes.
func (t *fakeTransform) Encode(pcm []int16, f *audio.Frame) error {
	if t.lib.DecodeErr != nil {
		return t.lib.DecodeErr
	}
	size, err := audio.PayloadSize(f.Codec, f.Mode, f.AMRWBIO)
	if err != nil {
		return err
	}
	if size < 0 {
		size = len(pcm)
		if f.Codec == audio.CodecG722 {
			size /= 2
		}
	}
	f.Payload = make([]byte, size)
	for i := range f.Payload {
		if len(pcm) > 0 {
			f.Payload[i] = byte(pcm[i%len(pcm)] >> 8)
		}
	}
	return nil
}

func (t *fakeTransform) Close() error {
	if !t.closed {
		t.closed = true
		t.lib.open.Add(-1)
	}
	return nil
}

type decodeOnly struct{ t *fakeTransform }

func (d decodeOnly) Decode(f audio.Frame, pcm []int16) (int, error) { return d.t.Decode(f, pcm) }
func (d decodeOnly) Close() error                                  { return d.t.Close() }

// FrameDemuxer replays frames as an audio.Demuxer.
type FrameDemuxer struct {
	Hdr    audio.StreamHeader
	Frames []audio.Frame
	// Err is returned once the frames run out; nil means io.EOF.
	Err    error
	next   int
	Closed bool
}

func (d *FrameDemuxer) Header() audio.StreamHeader { return d.Hdr }

func (d *FrameDemuxer) NextFrame() (audio.Frame, error) {
	if d.next >= len(d.Frames) {
		if d.Err != nil {
			return audio.Frame{}, d.Err
		}
		return audio.Frame{}, io.EOF
	}
	f := d.Frames[d.next]
	d.next++
	return f, nil
}

func (d *FrameDemuxer) Close() error {
	d.Closed = true
	return nil
}
