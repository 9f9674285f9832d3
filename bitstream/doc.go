// SPDX-License-Identifier: EPL-2.0

// Package bitstream provides the byte and bit cursor used by the storage
// format demuxers.
//
// A Reader never returns a short read. Asking for more bytes than remain
// fails with io.EOF when the source is exhausted, or io.ErrUnexpectedEOF when
// a partial tail is left, and in both cases the cursor stays where it was.
// Demuxers rely on this to tell a clean end of stream (EOF at a frame
// boundary) from a truncated frame.
//
//	r := bitstream.NewBytesReader(data)
//	magic, err := r.ReadExact(6)
//	...
//	ft, err := r.ReadBits(4)
package bitstream
