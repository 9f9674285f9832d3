// SPDX-License-Identifier: EPL-2.0

package bitstream

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Reader is a byte and bit cursor over a seekable source.
//
// Reads are all-or-nothing: when fewer bytes remain than requested, the
// cursor does not move and the returned error is io.EOF (nothing left) or
// io.ErrUnexpectedEOF (something left, but not enough). Byte reads that
// follow bit reads start at the next whole byte.
type Reader struct {
	src  io.ReadSeeker
	size int64
	pos  int64

	// partially consumed byte for ReadBits
	cur      byte
	bitsLeft uint
}

// NewReader wraps r. Non-seekable readers are buffered fully into memory.
func NewReader(r io.Reader) (*Reader, error) {
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("bitstream: buffering input: %w", err)
		}
		rs = bytes.NewReader(data)
	}

	start, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("bitstream: %w", err)
	}
	end, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("bitstream: %w", err)
	}
	if _, err := rs.Seek(start, io.SeekStart); err != nil {
		return nil, fmt.Errorf("bitstream: %w", err)
	}

	return &Reader{src: rs, size: end, pos: start}, nil
}

// NewBytesReader is a shortcut for in-memory data.
func NewBytesReader(b []byte) *Reader {
	return &Reader{src: bytes.NewReader(b), size: int64(len(b))}
}

// Position returns the byte offset of the next unread byte. While a byte is
// partially consumed by ReadBits, that byte is counted as read.
func (r *Reader) Position() int64 { return r.pos }

func (r *Reader) Size() int64 { return r.size }

// Remaining is the number of whole bytes left after Position.
func (r *Reader) Remaining() int64 { return r.size - r.pos }

// Align drops the unread bits of a partially consumed byte.
func (r *Reader) Align() { r.bitsLeft = 0 }

// ReadExact reads exactly n bytes.
func (r *Reader) ReadExact(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrOutOfRange, n)
	}
	r.Align()
	if err := r.need(int64(n)); err != nil {
		return nil, err
	}

	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	if _, err := io.ReadFull(r.src, buf); err != nil {
		// the source shrank underneath us; put the cursor back
		_, _ = r.src.Seek(r.pos, io.SeekStart)
		return nil, fmt.Errorf("bitstream: read at %d: %w", r.pos, err)
	}
	r.pos += int64(n)

	return buf, nil
}

// Peek returns the next n whole bytes without consuming them. Unread bits
// of a partially consumed byte stay available to ReadBits.
func (r *Reader) Peek(n int) ([]byte, error) {
	pos, cur, bitsLeft := r.pos, r.cur, r.bitsLeft
	buf, err := r.ReadExact(n)
	if err != nil {
		r.cur, r.bitsLeft = cur, bitsLeft
		return nil, err
	}
	if err := r.Seek(pos); err != nil {
		return nil, err
	}
	r.cur, r.bitsLeft = cur, bitsLeft

	return buf, nil
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int64) error {
	r.Align()
	if n < 0 {
		return fmt.Errorf("%w: negative skip %d", ErrOutOfRange, n)
	}
	if err := r.need(n); err != nil {
		return err
	}

	return r.Seek(r.pos + n)
}

// Seek moves the cursor to the absolute byte offset pos.
func (r *Reader) Seek(pos int64) error {
	if pos < 0 || pos > r.size {
		return fmt.Errorf("%w: %d not in [0,%d]", ErrOutOfRange, pos, r.size)
	}
	if _, err := r.src.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("bitstream: seek to %d: %w", pos, err)
	}
	r.pos = pos
	r.bitsLeft = 0

	return nil
}

// ReadBits reads n bits (at most 64), most significant bit first.
func (r *Reader) ReadBits(n uint) (uint64, error) {
	if n > 64 {
		return 0, fmt.Errorf("%w: %d bits", ErrOutOfRange, n)
	}

	// bytes that have to be pulled from the source
	var extra int64
	if n > r.bitsLeft {
		extra = int64((n - r.bitsLeft + 7) / 8)
	}
	if err := r.need(extra); err != nil {
		return 0, err
	}

	var v uint64
	for n > 0 {
		if r.bitsLeft == 0 {
			b, err := r.ReadExact(1)
			if err != nil {
				return 0, err
			}
			r.cur = b[0]
			r.bitsLeft = 8
		}

		take := min(n, r.bitsLeft)
		shift := r.bitsLeft - take
		v = v<<take | uint64(r.cur>>shift)&(1<<take-1)
		r.bitsLeft -= take
		n -= take
	}

	return v, nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.ReadExact(1)
	if err != nil {
		return 0, err
	}

	return b[0], nil
}

// ReadUint16 reads a big-endian uint16.
func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.ReadExact(2)
	if err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint16(b), nil
}

// ReadUint32 reads a big-endian uint32.
func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.ReadExact(4)
	if err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) need(n int64) error {
	left := r.size - r.pos
	switch {
	case n == 0:
		return nil
	case left == 0:
		return io.EOF
	case left < n:
		return io.ErrUnexpectedEOF
	}

	return nil
}
