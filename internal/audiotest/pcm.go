// SPDX-License-Identifier: EPL-2.0

package audiotest

import (
	"io"
	"math"
)

// Waveform returns the sample of one channel at frame index i.
type Waveform func(i, ch int) float32

// MockSource is an audio.Source that renders a Waveform for a fixed
// number of frames.
type MockSource struct {
	rate     int
	channels int
	frames   int
	pos      int
	wave     Waveform

	// MaxRead caps the samples returned by one ReadSamples call so tests
	// can exercise short reads. Zero means no cap.
	MaxRead int
}

func NewMockSource(rate, channels, frames int, wave Waveform) *MockSource {
	return &MockSource{rate: rate, channels: channels, frames: frames, wave: wave}
}

// NewConstantSource holds every sample at v.
func NewConstantSource(rate, channels, frames int, v float32) *MockSource {
	return NewMockSource(rate, channels, frames, func(int, int) float32 { return v })
}

// NewSineSource plays a sine of hz on every channel.
func NewSineSource(rate, channels, frames int, hz float64) *MockSource {
	step := 2 * math.Pi * hz / float64(rate)
	return NewMockSource(rate, channels, frames, func(i, _ int) float32 {
		return float32(math.Sin(step * float64(i)))
	})
}

func (m *MockSource) SampleRate() int { return m.rate }
func (m *MockSource) Channels() int   { return m.channels }
func (m *MockSource) BufSize() int    { return 160 * m.channels }
func (m *MockSource) Close() error    { return nil }

func (m *MockSource) ReadSamples(dst []float32) (int, error) {
	if m.pos >= m.frames {
		return 0, io.EOF
	}
	if m.MaxRead > 0 && len(dst) > m.MaxRead {
		dst = dst[:m.MaxRead]
	}

	n := min(len(dst)/m.channels, m.frames-m.pos)
	for i := range n {
		for ch := range m.channels {
			dst[i*m.channels+ch] = m.wave(m.pos+i, ch)
		}
	}
	m.pos += n

	if m.pos >= m.frames {
		return n * m.channels, io.EOF
	}
	return n * m.channels, nil
}
