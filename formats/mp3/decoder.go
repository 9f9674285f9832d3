// SPDX-License-Identifier: EPL-2.0

package mp3

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	gomp3 "github.com/hajimehoshi/go-mp3"

	"github.com/ik5/voxframe/audio"
	"github.com/ik5/voxframe/utils"
)

const channels = 2

// pcmReader is the part of gomp3.Decoder the source uses.
type pcmReader interface {
	io.Reader
	SampleRate() int
}

type source struct {
	dec  pcmReader
	rate int
	buf  []byte
	done bool
}

func newSource(dec pcmReader) *source {
	return &source{dec: dec, rate: dec.SampleRate()}
}

func (s *source) SampleRate() int { return s.rate }
func (s *source) Channels() int   { return channels }
func (s *source) BufSize() int    { return 4608 }
func (s *source) Close() error    { return nil }

func (s *source) ReadSamples(dst []float32) (int, error) {
	if len(dst)%channels != 0 {
		return 0, audio.ErrInvalidDstSize
	}
	if s.done {
		return 0, io.EOF
	}

	if cap(s.buf) < len(dst)*2 {
		s.buf = make([]byte, len(dst)*2)
	}
	s.buf = s.buf[:len(dst)*2]

	n, err := io.ReadFull(s.dec, s.buf)
	// whole stereo frames only
	n -= n % (2 * channels)
	for i := range n / 2 {
		dst[i] = utils.Int16ToFloat32(int16(binary.LittleEndian.Uint16(s.buf[2*i:])))
	}

	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		s.done = true
		return n / 2, io.EOF
	case err != nil:
		return n / 2, fmt.Errorf("mp3: %w", err)
	}
	return n / 2, nil
}

type Decoder struct{}

func (Decoder) Decode(r io.Reader) (audio.Source, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("mp3: %w", err)
	}
	return newSource(dec), nil
}
