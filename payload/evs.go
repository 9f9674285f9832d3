// SPDX-License-Identifier: EPL-2.0

package payload

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/icza/bitio"

	"github.com/ik5/voxframe/audio"
)

// 3GPP TS 26.445 annex A.2. The header-full ToC shares its layout with the
// storage ToC; the F bit means another ToC entry follows.
const (
	evsCMRFlag  = 0x80
	evsTocMore  = 0x40
	evsTocIO    = 0x20
	evsTocQ     = 0x10
	evsTocFT    = 0x0f
	evsIOCMRLen = 3
)

// Compact payload sizes of the primary modes (table A.1). 2.8 kbit/s has
// no compact form.
var evsCompactPrimary = []int{6, 18, 20, 24, 33, 41, 61, 80, 120, 160, 240, 320}

// Compact AMR-WB IO payloads: 3-bit CMR plus the speech bits, octet padded.
var evsCompactIO = map[int]audio.Mode{
	17: 0, 23: 1, 32: 2, 36: 3, 40: 4, 46: 5, 50: 6, 58: 7, 60: 8,
}

type evsFormat struct{}

func (evsFormat) Depacketize(p []byte) ([]audio.Frame, error) {
	if len(p) == 0 {
		return nil, ErrEmptyPayload
	}

	if slices.Contains(evsCompactPrimary, len(p)) {
		mode, _ := audio.EVSPrimaryModeBySize(len(p))
		return []audio.Frame{{Codec: audio.CodecEVS, Mode: mode, Quality: true, Payload: p}}, nil
	}
	if mode, ok := evsCompactIO[len(p)]; ok {
		return depacketizeCompactIO(p, mode)
	}

	return depacketizeHeaderFull(p)
}

func depacketizeCompactIO(p []byte, mode audio.Mode) ([]audio.Frame, error) {
	info, err := audio.LookupMode(audio.CodecEVS, mode, true)
	if err != nil {
		return nil, err
	}

	r := bitio.NewReader(bytes.NewReader(p))
	if _, err := r.ReadBits(evsIOCMRLen); err != nil {
		return nil, fmt.Errorf("%w: CMR", ErrShortPayload)
	}
	buf, err := readBits(r, info.Bits, info.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: AMR-WB IO frame", ErrShortPayload)
	}

	return []audio.Frame{{Codec: audio.CodecEVS, Mode: mode, AMRWBIO: true, Quality: true, Payload: buf}}, nil
}

func depacketizeHeaderFull(p []byte) ([]audio.Frame, error) {
	pos := 0
	if p[0]&evsCMRFlag != 0 {
		pos++
	}

	var frames []audio.Frame
	for {
		if pos >= len(p) {
			return nil, fmt.Errorf("%w: ToC runs past the end", ErrShortPayload)
		}
		b := p[pos]
		pos++

		if b&evsCMRFlag != 0 {
			return nil, fmt.Errorf("%w: ToC entry %#02x", ErrReservedBits, b)
		}
		f := audio.Frame{
			Codec:   audio.CodecEVS,
			Mode:    audio.Mode(b & evsTocFT),
			AMRWBIO: b&evsTocIO != 0,
			Quality: true,
		}
		if f.AMRWBIO {
			f.Quality = b&evsTocQ != 0
		}
		if _, err := audio.LookupMode(f.Codec, f.Mode, f.AMRWBIO); err != nil {
			return nil, err
		}
		frames = append(frames, f)
		if len(frames) > maxFrames {
			return nil, ErrTooManyFrames
		}
		if b&evsTocMore == 0 {
			break
		}
	}

	for i := range frames {
		size, _ := audio.PayloadSize(frames[i].Codec, frames[i].Mode, frames[i].AMRWBIO)
		if pos+size > len(p) {
			return nil, fmt.Errorf("%w: frame %d needs %d bytes, %d left", ErrShortPayload, i, size, len(p)-pos)
		}
		frames[i].Payload = p[pos : pos+size]
		pos += size
	}
	// zero octets pad a payload away from the compact sizes
	for _, b := range p[pos:] {
		if b != 0 {
			return nil, fmt.Errorf("%w: %d bytes", ErrTrailingData, len(p)-pos)
		}
	}

	return frames, nil
}

// Packetize emits a compact payload for a single primary frame and the
// header-full format otherwise. Header-full payloads carry no CMR byte and
// are zero padded when their length equals a compact size.
func (evsFormat) Packetize(frames []audio.Frame) ([]byte, error) {
	if len(frames) == 0 {
		return nil, ErrEmptyPayload
	}
	if len(frames) > maxFrames {
		return nil, ErrTooManyFrames
	}

	for _, f := range frames {
		if f.Codec != audio.CodecEVS {
			return nil, fmt.Errorf("%w: %s frame in an EVS packet", ErrNotPacketizing, f.Codec)
		}
		size, err := audio.PayloadSize(f.Codec, f.Mode, f.AMRWBIO)
		if err != nil {
			return nil, err
		}
		if size != len(f.Payload) {
			return nil, fmt.Errorf("%w: mode %d wants %d bytes, got %d", audio.ErrPayloadSize, f.Mode, size, len(f.Payload))
		}
	}

	if f := frames[0]; len(frames) == 1 && !f.AMRWBIO && slices.Contains(evsCompactPrimary, len(f.Payload)) {
		return slices.Clone(f.Payload), nil
	}

	var out []byte
	for i, f := range frames {
		b := byte(f.Mode) & evsTocFT
		if f.AMRWBIO {
			b |= evsTocIO
			if f.Quality {
				b |= evsTocQ
			}
		}
		if i < len(frames)-1 {
			b |= evsTocMore
		}
		out = append(out, b)
	}
	for _, f := range frames {
		out = append(out, f.Payload...)
	}

	// a header-full payload must not be mistaken for a compact one
	for isCompactSize(len(out)) {
		out = append(out, 0)
	}

	return out, nil
}

func isCompactSize(n int) bool {
	_, ok := evsCompactIO[n]
	return ok || slices.Contains(evsCompactPrimary, n)
}

// IsEVS reports whether p parses as an EVS payload.
func IsEVS(p []byte) bool {
	_, err := evsFormat{}.Depacketize(p)
	return err == nil
}
