// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"errors"
	"fmt"
	"io"

	"github.com/ik5/voxframe/utils"
)

// lowPassAlpha is the one-pole filter coefficient applied before
// downsampling.
const lowPassAlpha = 0.5

// Resampler converts an interleaved source to another sample rate with
// Catmull-Rom interpolation. The channel count is kept. A source of N
// frames gives every output frame whose position falls on [0, N-1], so a
// same-rate Resampler returns its input unchanged.
type Resampler struct {
	src      Source
	dstRate  int
	ratio    float64 // source frames per output frame
	channels int

	// win holds frames t-1, t, t+1 and t+2; real marks the ones read from
	// the source rather than repeated at an edge
	win    [4][]float32
	real   [4]bool
	pos    float64
	primed bool

	in      []float32
	inPos   int
	inLen   int
	srcDone bool

	lp     []float32
	lpInit bool
}

func NewResampler(src Source, dstRate int) *Resampler {
	channels := src.Channels()
	r := &Resampler{
		src:      src,
		dstRate:  dstRate,
		ratio:    float64(src.SampleRate()) / float64(dstRate),
		channels: channels,
		in:       make([]float32, max(src.BufSize(), 256)/channels*channels),
	}
	for i := range r.win {
		r.win[i] = make([]float32, channels)
	}
	if r.ratio > 1 {
		r.lp = make([]float32, channels)
	}
	return r
}

func (r *Resampler) SampleRate() int { return r.dstRate }
func (r *Resampler) Channels() int   { return r.channels }
func (r *Resampler) BufSize() int    { return r.src.BufSize() }

func (r *Resampler) Close() error {
	if err := r.src.Close(); err != nil {
		return fmt.Errorf("resampler: %w", err)
	}
	return nil
}

// load copies the next source frame to dst. It reports false once the
// source is exhausted.
func (r *Resampler) load(dst []float32) (bool, error) {
	for r.inPos == r.inLen {
		if r.srcDone {
			return false, nil
		}
		n, err := r.src.ReadSamples(r.in)
		r.inPos, r.inLen = 0, n-n%r.channels
		if errors.Is(err, io.EOF) {
			r.srcDone = true
		} else if err != nil {
			return false, err
		}
	}

	copy(dst, r.in[r.inPos:r.inPos+r.channels])
	r.inPos += r.channels

	if r.lp != nil {
		if !r.lpInit {
			copy(r.lp, dst)
			r.lpInit = true
		}
		for c := range dst {
			dst[c] = lowPassAlpha*dst[c] + (1-lowPassAlpha)*r.lp[c]
			r.lp[c] = dst[c]
		}
	}
	return true, nil
}

func (r *Resampler) prime() error {
	r.primed = true

	ok, err := r.load(r.win[1])
	if err != nil || !ok {
		return err
	}
	r.real[1] = true
	copy(r.win[0], r.win[1])

	for i := 2; i < 4; i++ {
		if r.real[i], err = r.load(r.win[i]); err != nil {
			return err
		}
		if !r.real[i] {
			copy(r.win[i], r.win[i-1])
		}
	}
	return nil
}

func (r *Resampler) advance() error {
	r.win[0], r.win[1], r.win[2], r.win[3] = r.win[1], r.win[2], r.win[3], r.win[0]
	r.real[0], r.real[1], r.real[2] = r.real[1], r.real[2], r.real[3]

	ok, err := r.load(r.win[3])
	if err != nil {
		return err
	}
	if !ok {
		copy(r.win[3], r.win[2])
	}
	r.real[3] = ok
	return nil
}

// ReadSamples fills dst with frames at the target rate. len(dst) must be a
// multiple of Channels().
func (r *Resampler) ReadSamples(dst []float32) (int, error) {
	if len(dst)%r.channels != 0 {
		return 0, ErrInvalidDstSize
	}
	if !r.primed {
		if err := r.prime(); err != nil {
			return 0, err
		}
	}

	written := 0
	for written < len(dst) {
		for r.pos >= 1 {
			r.pos--
			if err := r.advance(); err != nil {
				return written, err
			}
		}
		if !r.real[1] || (r.pos > 0 && !r.real[2]) {
			return written, io.EOF
		}

		x := float32(r.pos)
		for c := range r.channels {
			dst[written+c] = utils.CubicInterpolate(r.win[0][c], r.win[1][c], r.win[2][c], r.win[3][c], x)
		}
		written += r.channels
		r.pos += r.ratio
	}
	return written, nil
}
