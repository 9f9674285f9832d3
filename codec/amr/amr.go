// SPDX-License-Identifier: EPL-2.0

// Package amr binds opencore-amr (AMR-NB decode and encode, AMR-WB decode)
// and vo-amrwbenc (AMR-WB encode) to package codec.
//
// The binding uses cgo and is only built with the opencore build tag:
//
//	go build -tags opencore ./...
//
// It registers itself on import. Without the tag the package only exposes
// the storage-frame helpers below and Available reports false.
package amr

import (
	"fmt"

	"github.com/ik5/voxframe/audio"
)

// storageFrame rebuilds the RFC 4867 storage frame (header byte and
// payload) opencore reads.
func storageFrame(dst []byte, f audio.Frame) []byte {
	h := byte(f.Mode&0x0f) << 3
	if f.Quality {
		h |= 0x04
	}
	dst = append(dst[:0], h)
	return append(dst, f.Payload...)
}

// parseStorageFrame splits an encoder output frame into mode and payload.
func parseStorageFrame(c audio.Codec, b []byte) (audio.Mode, []byte, error) {
	if len(b) == 0 {
		return 0, nil, fmt.Errorf("amr: empty encoder output")
	}
	mode := audio.Mode(b[0]>>3) & 0x0f
	size, err := audio.PayloadSize(c, mode, false)
	if err != nil {
		return 0, nil, err
	}
	if len(b)-1 != size {
		return 0, nil, fmt.Errorf("amr: encoder wrote %d bytes for mode %d, want %d", len(b)-1, mode, size)
	}
	return mode, append([]byte(nil), b[1:]...), nil
}

// badFrame reports frames opencore must conceal rather than decode.
func badFrame(f audio.Frame) bool {
	cls, err := f.Class()
	return err != nil || !f.Quality || cls == audio.ClassSpeechLost
}
