// SPDX-License-Identifier: EPL-2.0

// Package framing implements the frame loop shared by the storage formats
// that prefix every frame with a one-byte header and interleave channels
// frame by frame (RFC 4867 section 5, 3GPP TS 26.445 annex A.2.6).
package framing

import (
	"errors"
	"fmt"
	"io"

	"github.com/ik5/voxframe/audio"
	"github.com/ik5/voxframe/bitstream"
)

// HeaderFunc decodes a frame header byte. It fills Codec, Mode, AMRWBIO and
// Quality of the returned frame.
type HeaderFunc func(b byte) (audio.Frame, error)

// Reader pulls frames from a stream whose header has already been parsed.
type Reader struct {
	br     *bitstream.Reader
	hdr    audio.StreamHeader
	parse  HeaderFunc
	closer io.Closer

	state audio.State
	err   error

	ch    int
	index uint64
}

// NewReader takes over br positioned at the first frame.
func NewReader(br *bitstream.Reader, hdr audio.StreamHeader, parse HeaderFunc, closer io.Closer) *Reader {
	return &Reader{
		br:     br,
		hdr:    hdr,
		parse:  parse,
		closer: closer,
		state:  audio.StateHeaderParsed,
	}
}

func (r *Reader) Header() audio.StreamHeader { return r.hdr }
func (r *Reader) State() audio.State         { return r.state }

// Position is the byte offset of the next frame header.
func (r *Reader) Position() int64 { return r.br.Position() }

// NextFrame returns the next frame in interleave order. It returns io.EOF
// at the end of a complete time slot. A stream ending anywhere else is
// truncated. Errors other than io.EOF are sticky.
func (r *Reader) NextFrame() (audio.Frame, error) {
	switch r.state {
	case audio.StateEnded:
		return audio.Frame{}, io.EOF
	case audio.StateErrored:
		return audio.Frame{}, r.err
	}
	r.state = audio.StateStreaming

	off := r.br.Position()
	b, err := r.br.ReadUint8()
	if err != nil {
		if errors.Is(err, io.EOF) && r.ch == 0 {
			r.state = audio.StateEnded
			return audio.Frame{}, io.EOF
		}
		if errors.Is(err, io.EOF) {
			// the slot is incomplete; never surface a bare io.EOF here
			err = io.ErrUnexpectedEOF
		}
		return audio.Frame{}, r.fail(audio.ErrTruncatedFrame, off, err)
	}

	f, err := r.parse(b)
	if err != nil {
		return audio.Frame{}, r.fail(audio.ErrUnknownMode, off, err)
	}

	size, err := audio.PayloadSize(f.Codec, f.Mode, f.AMRWBIO)
	if err != nil {
		return audio.Frame{}, r.fail(audio.ErrUnknownMode, off, err)
	}

	payload, err := r.br.ReadExact(size)
	if err != nil {
		return audio.Frame{}, r.fail(audio.ErrTruncatedFrame, off, err)
	}

	f.Channel = r.ch
	f.Index = r.index
	f.Offset = off
	f.Payload = payload

	r.ch++
	if r.ch == r.hdr.Channels {
		r.ch = 0
		r.index++
	}

	return f, nil
}

// NextSlot returns one frame per channel.
func (r *Reader) NextSlot() ([]audio.Frame, error) {
	slot := make([]audio.Frame, 0, r.hdr.Channels)
	for range r.hdr.Channels {
		f, err := r.NextFrame()
		if err != nil {
			return nil, err
		}
		slot = append(slot, f)
	}

	return slot, nil
}

func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	c := r.closer
	r.closer = nil
	if err := c.Close(); err != nil {
		return fmt.Errorf("%s: %w", r.hdr.Format, err)
	}
	return nil
}

func (r *Reader) fail(kind error, off int64, err error) error {
	// I/O failures of the source are not format errors
	if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && kind == audio.ErrTruncatedFrame {
		r.err = fmt.Errorf("%s: read at offset %d: %w", r.hdr.Format, off, err)
	} else {
		r.err = audio.NewFormatError(r.hdr.Format, kind, off, err)
	}
	r.state = audio.StateErrored

	return r.err
}
