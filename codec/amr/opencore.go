// SPDX-License-Identifier: EPL-2.0

//go:build opencore && cgo

package amr

/*
#cgo LDFLAGS: -lopencore-amrnb -lopencore-amrwb -lvo-amrwbenc
#include <stdlib.h>
#include <opencore-amrnb/interf_dec.h>
#include <opencore-amrnb/interf_enc.h>
#include <opencore-amrwb/dec_if.h>
#include <vo-amrwbenc/enc_if.h>
*/
import "C"

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/ik5/voxframe/audio"
	"github.com/ik5/voxframe/codec"
)

const Available = true

// largest storage frame: AMR-WB 23.85 kbit/s plus the header byte
const maxFrame = 61

func init() {
	codec.Register(Library{})
}

type Library struct{}

func (Library) Name() string          { return "opencore-amr" }
func (Library) Codecs() []audio.Codec { return []audio.Codec{audio.CodecAMR, audio.CodecAMRWB} }
func (Library) Init() error           { return nil }

func (Library) NewTransform(cfg codec.Config) (codec.Transform, error) {
	t := &transform{codec: cfg.Codec, buf: make([]byte, 0, maxFrame)}
	switch cfg.Codec {
	case audio.CodecAMR:
		t.dec = C.Decoder_Interface_init()
		t.enc = C.Encoder_Interface_init(0)
	case audio.CodecAMRWB:
		t.dec = C.D_IF_init()
		t.enc = C.E_IF_init()
	default:
		return nil, fmt.Errorf("amr: codec %s", cfg.Codec)
	}
	if t.dec == nil || t.enc == nil {
		t.Close()
		return nil, errors.New("amr: opencore init failed")
	}
	return t, nil
}

type transform struct {
	codec audio.Codec
	dec   unsafe.Pointer
	enc   unsafe.Pointer
	buf   []byte
}

func (t *transform) Decode(f audio.Frame, pcm []int16) (int, error) {
	n := t.codec.SamplesPerFrame(0)
	if len(pcm) < n {
		return 0, fmt.Errorf("amr: %d samples do not fit %d", n, len(pcm))
	}
	t.buf = storageFrame(t.buf, f)
	bfi := C.int(0)
	if badFrame(f) {
		bfi = 1
	}

	in := (*C.uchar)(unsafe.Pointer(&t.buf[0]))
	out := (*C.short)(unsafe.Pointer(&pcm[0]))
	if t.codec == audio.CodecAMR {
		C.Decoder_Interface_Decode(t.dec, in, out, bfi)
	} else {
		C.D_IF_decode(t.dec, in, out, bfi)
	}
	return n, nil
}

func (t *transform) Encode(pcm []int16, f *audio.Frame) error {
	out := make([]byte, maxFrame)
	speech := (*C.short)(unsafe.Pointer(&pcm[0]))
	dst := (*C.uchar)(unsafe.Pointer(&out[0]))

	var n C.int
	if t.codec == audio.CodecAMR {
		n = C.Encoder_Interface_Encode(t.enc, C.enum_Mode(f.Mode), speech, dst, 0)
	} else {
		n = C.E_IF_encode(t.enc, C.int(f.Mode), speech, dst, 0)
	}
	if n <= 0 {
		return fmt.Errorf("amr: encoder returned %d", int(n))
	}

	mode, payload, err := parseStorageFrame(t.codec, out[:n])
	if err != nil {
		return err
	}
	f.Mode, f.Payload = mode, payload
	return nil
}

func (t *transform) Close() error {
	switch t.codec {
	case audio.CodecAMR:
		if t.dec != nil {
			C.Decoder_Interface_exit(t.dec)
		}
		if t.enc != nil {
			C.Encoder_Interface_exit(t.enc)
		}
	case audio.CodecAMRWB:
		if t.dec != nil {
			C.D_IF_exit(t.dec)
		}
		if t.enc != nil {
			C.E_IF_exit(t.enc)
		}
	}
	t.dec, t.enc = nil, nil
	return nil
}
