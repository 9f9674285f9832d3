// SPDX-License-Identifier: EPL-2.0

// Package pcm adapts go-audio integer buffers to audio.Source.
package pcm

import (
	"bytes"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
)

// IntReader is the read side of the go-audio wav and aiff decoders.
type IntReader interface {
	PCMBuffer(buf *goaudio.IntBuffer) (int, error)
}

// IntSource reads integer PCM of one bit depth and scales it to [-1, 1].
// It implements audio.Source.
type IntSource struct {
	dec      IntReader
	format   *goaudio.Format
	scale    float32
	buf      *goaudio.IntBuffer
	closer   io.Closer
	finished bool
}

// NewIntSource wraps dec. closer may be nil.
func NewIntSource(dec IntReader, format *goaudio.Format, bitDepth int, closer io.Closer) (*IntSource, error) {
	if bitDepth != 8 && bitDepth != 16 && bitDepth != 24 && bitDepth != 32 {
		return nil, fmt.Errorf("pcm: %d-bit samples", bitDepth)
	}
	if format == nil || format.NumChannels < 1 || format.SampleRate <= 0 {
		return nil, fmt.Errorf("pcm: invalid format %+v", format)
	}

	return &IntSource{
		dec:    dec,
		format: format,
		scale:  float32(int64(1) << (bitDepth - 1)),
		closer: closer,
	}, nil
}

func (s *IntSource) SampleRate() int { return s.format.SampleRate }
func (s *IntSource) Channels() int   { return s.format.NumChannels }
func (s *IntSource) BufSize() int    { return 4096 }

func (s *IntSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// ReadSamples fills dst and returns io.EOF with the last samples.
func (s *IntSource) ReadSamples(dst []float32) (int, error) {
	if s.finished {
		return 0, io.EOF
	}
	if len(dst) == 0 {
		return 0, nil
	}

	if s.buf == nil || cap(s.buf.Data) < len(dst) {
		s.buf = &goaudio.IntBuffer{Data: make([]int, len(dst)), Format: s.format}
	}
	s.buf.Data = s.buf.Data[:len(dst)]

	n, err := s.dec.PCMBuffer(s.buf)
	for i := range n {
		dst[i] = float32(s.buf.Data[i]) / s.scale
	}

	switch {
	case err == io.EOF || (err == nil && n < len(dst)):
		s.finished = true
		return n, io.EOF
	case err != nil:
		return n, fmt.Errorf("pcm: %w", err)
	}
	return n, nil
}

// Seekable returns r when it can seek and an in-memory copy otherwise. The
// go-audio decoders need to seek between chunks.
func Seekable(r io.Reader) (io.ReadSeeker, error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		return rs, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("pcm: buffering input: %w", err)
	}
	return bytes.NewReader(data), nil
}
