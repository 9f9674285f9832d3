// SPDX-License-Identifier: EPL-2.0

package vorbis

import (
	"errors"
	"fmt"
	"io"

	"github.com/jfreymuth/oggvorbis"

	"github.com/ik5/voxframe/audio"
)

// floatReader is the part of oggvorbis.Reader the source uses. Read returns
// a count of values, always whole frames.
type floatReader interface {
	SampleRate() int
	Channels() int
	Read([]float32) (int, error)
}

type source struct {
	dec  floatReader
	done bool
}

func (s *source) SampleRate() int { return s.dec.SampleRate() }
func (s *source) Channels() int   { return s.dec.Channels() }
func (s *source) BufSize() int    { return 4096 }
func (s *source) Close() error    { return nil }

func (s *source) ReadSamples(dst []float32) (int, error) {
	if len(dst)%s.dec.Channels() != 0 {
		return 0, audio.ErrInvalidDstSize
	}
	if s.done {
		return 0, io.EOF
	}

	total := 0
	for total < len(dst) {
		n, err := s.dec.Read(dst[total:])
		total += n
		switch {
		case errors.Is(err, io.EOF):
			s.done = true
			return total, io.EOF
		case err != nil:
			return total, fmt.Errorf("vorbis: %w", err)
		case n == 0:
			return total, nil
		}
	}
	return total, nil
}

type Decoder struct{}

func (Decoder) Decode(r io.Reader) (audio.Source, error) {
	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("vorbis: %w", err)
	}
	return &source{dec: dec}, nil
}
