// SPDX-License-Identifier: EPL-2.0

package payload

import (
	"bytes"
	"fmt"

	"github.com/icza/bitio"

	"github.com/ik5/voxframe/audio"
)

// RFC 4867 section 4.3 and 4.4. Interleaving and frame CRCs are not
// supported; a payload carries one CMR, a ToC run and the frames in ToC
// order.
const (
	tocFollow  = 0x80
	tocQuality = 0x04
	noDataMode = 15

	// a 20 ms packet never carries more than this many frames in practice
	maxFrames = 64
)

type amrFormat struct {
	codec        audio.Codec
	octetAligned bool
}

type tocEntry struct {
	mode    audio.Mode
	quality bool
	info    audio.ModeInfo
}

func (a amrFormat) lookup(ft uint64, q bool) (tocEntry, error) {
	info, err := audio.LookupMode(a.codec, audio.Mode(ft), false)
	if err != nil {
		return tocEntry{}, err
	}
	return tocEntry{mode: audio.Mode(ft), quality: q, info: info}, nil
}

func (a amrFormat) frames(toc []tocEntry, payloads [][]byte) []audio.Frame {
	out := make([]audio.Frame, len(toc))
	for i, e := range toc {
		out[i] = audio.Frame{Codec: a.codec, Mode: e.mode, Quality: e.quality, Payload: payloads[i]}
	}
	return out
}

func (a amrFormat) Depacketize(p []byte) ([]audio.Frame, error) {
	if len(p) == 0 {
		return nil, ErrEmptyPayload
	}
	if a.octetAligned {
		return a.depacketizeOA(p)
	}
	return a.depacketizeBE(p)
}

func (a amrFormat) depacketizeOA(p []byte) ([]audio.Frame, error) {
	// the CMR byte is not interpreted; senders put anything from 0xf0 to a
	// real mode request there
	pos := 1

	var toc []tocEntry
	for {
		if pos >= len(p) {
			return nil, fmt.Errorf("%w: ToC runs past the end", ErrShortPayload)
		}
		b := p[pos]
		pos++

		if b&0x03 != 0 {
			return nil, fmt.Errorf("%w: ToC entry %#02x", ErrReservedBits, b)
		}
		e, err := a.lookup(uint64(b>>3)&0x0f, b&tocQuality != 0)
		if err != nil {
			return nil, err
		}
		toc = append(toc, e)
		if len(toc) > maxFrames {
			return nil, ErrTooManyFrames
		}
		if b&tocFollow == 0 {
			break
		}
	}

	payloads := make([][]byte, len(toc))
	for i, e := range toc {
		if pos+e.info.Bytes > len(p) {
			return nil, fmt.Errorf("%w: frame %d needs %d bytes, %d left", ErrShortPayload, i, e.info.Bytes, len(p)-pos)
		}
		payloads[i] = p[pos : pos+e.info.Bytes]
		pos += e.info.Bytes
	}
	if pos != len(p) {
		return nil, fmt.Errorf("%w: %d bytes", ErrTrailingData, len(p)-pos)
	}

	return a.frames(toc, payloads), nil
}

func (a amrFormat) depacketizeBE(p []byte) ([]audio.Frame, error) {
	r := bitio.NewReader(bytes.NewReader(p))
	total := len(p) * 8

	if _, err := r.ReadBits(4); err != nil {
		return nil, fmt.Errorf("%w: CMR", ErrShortPayload)
	}
	used := 4

	var toc []tocEntry
	for {
		v, err := r.ReadBits(6)
		if err != nil {
			return nil, fmt.Errorf("%w: ToC runs past the end", ErrShortPayload)
		}
		used += 6

		e, err := a.lookup((v>>1)&0x0f, v&0x01 != 0)
		if err != nil {
			return nil, err
		}
		toc = append(toc, e)
		if len(toc) > maxFrames {
			return nil, ErrTooManyFrames
		}
		if v&0x20 == 0 {
			break
		}
	}

	for _, e := range toc {
		used += e.info.Bits
	}
	if used > total {
		return nil, fmt.Errorf("%w: %d bits declared, %d present", ErrShortPayload, used, total)
	}
	if total-used >= 8 {
		return nil, fmt.Errorf("%w: %d bits", ErrTrailingData, total-used)
	}

	payloads := make([][]byte, len(toc))
	for i, e := range toc {
		buf, err := readBits(r, e.info.Bits, e.info.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: frame %d", ErrShortPayload, i)
		}
		payloads[i] = buf
	}

	if pad := total - used; pad > 0 {
		v, err := r.ReadBits(uint8(pad))
		if err != nil {
			return nil, fmt.Errorf("%w: padding", ErrShortPayload)
		}
		if v != 0 {
			return nil, ErrBadPadding
		}
	}

	return a.frames(toc, payloads), nil
}

// readBits reads n bits into a left-aligned, zero-padded buffer of size
// bytes.
func readBits(r *bitio.Reader, n, size int) ([]byte, error) {
	buf := make([]byte, size)
	for i := 0; n > 0; i++ {
		k := min(n, 8)
		v, err := r.ReadBits(uint8(k))
		if err != nil {
			return nil, err
		}
		buf[i] = byte(v << (8 - k))
		n -= k
	}
	return buf, nil
}

func writeBits(w *bitio.Writer, p []byte, n int) error {
	for i := 0; n > 0; i++ {
		k := min(n, 8)
		if err := w.WriteBits(uint64(p[i]>>(8-k)), uint8(k)); err != nil {
			return err
		}
		n -= k
	}
	return nil
}

// Packetize builds one payload from frames with a "no mode request" CMR.
func (a amrFormat) Packetize(frames []audio.Frame) ([]byte, error) {
	if len(frames) == 0 {
		return nil, ErrEmptyPayload
	}
	if len(frames) > maxFrames {
		return nil, ErrTooManyFrames
	}

	toc := make([]tocEntry, len(frames))
	for i, f := range frames {
		if f.Codec != a.codec {
			return nil, fmt.Errorf("%w: %s frame in a %s packet", ErrNotPacketizing, f.Codec, a.codec)
		}
		e, err := a.lookup(uint64(f.Mode), f.Quality)
		if err != nil {
			return nil, err
		}
		if len(f.Payload) != e.info.Bytes {
			return nil, fmt.Errorf("%w: mode %d wants %d bytes, got %d", audio.ErrPayloadSize, f.Mode, e.info.Bytes, len(f.Payload))
		}
		toc[i] = e
	}

	if a.octetAligned {
		out := []byte{noDataMode << 4}
		for i, e := range toc {
			b := byte(e.mode) << 3
			if e.quality {
				b |= tocQuality
			}
			if i < len(toc)-1 {
				b |= tocFollow
			}
			out = append(out, b)
		}
		for _, f := range frames {
			out = append(out, f.Payload...)
		}
		return out, nil
	}

	var buf bytes.Buffer
	w := bitio.NewWriter(&buf)
	if err := w.WriteBits(noDataMode, 4); err != nil {
		return nil, err
	}
	for i, e := range toc {
		if err := w.WriteBool(i < len(toc)-1); err != nil {
			return nil, err
		}
		if err := w.WriteBits(uint64(e.mode), 4); err != nil {
			return nil, err
		}
		if err := w.WriteBool(e.quality); err != nil {
			return nil, err
		}
	}
	for i, f := range frames {
		if err := writeBits(w, f.Payload, toc[i].info.Bits); err != nil {
			return nil, err
		}
	}
	// Close pads the last octet with zero bits
	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// IsAMR reports whether p parses as an AMR (or AMR-WB when wideband is set)
// payload in either packing mode.
func IsAMR(p []byte, wideband bool) bool {
	codec := audio.CodecAMR
	if wideband {
		codec = audio.CodecAMRWB
	}
	for _, oa := range []bool{false, true} {
		if _, err := (amrFormat{codec: codec, octetAligned: oa}).Depacketize(p); err == nil {
			return true
		}
	}
	return false
}
