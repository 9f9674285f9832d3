// SPDX-License-Identifier: EPL-2.0

package codec

import (
	"fmt"

	"github.com/ik5/voxframe/audio"
)

// Decoder is a codec handle turning frames into 16-bit PCM. It is not safe
// for concurrent use.
type Decoder struct {
	cfg Config
	tr  Transform
	pcm []int16

	// dead holds the failure that made the transform unusable
	dead   error
	closed bool
}

// Open creates a decoder. It fails with ErrUnsupportedConfig when no library
// serves cfg.Codec, cfg is invalid or the library refuses it.
func (r *Registry) Open(cfg Config) (*Decoder, error) {
	cfg, tr, err := r.transform(cfg)
	if err != nil {
		return nil, err
	}
	return &Decoder{cfg: cfg, tr: tr}, nil
}

// Config returns the configuration with defaults filled in.
func (d *Decoder) Config() Config { return d.cfg }

// Decode returns the PCM of f. The slice belongs to d and is overwritten by
// the next call.
//
// A frame with a mode outside the table or the mode set fails with
// ErrUnsupportedMode and a payload of the wrong length with ErrSizeMismatch;
// the decoder stays usable after both.
func (d *Decoder) Decode(f audio.Frame) ([]int16, error) {
	switch {
	case d.closed:
		return nil, ErrClosed
	case d.dead != nil:
		return nil, d.dead
	}

	if f.Codec != d.cfg.Codec {
		return nil, frameError(ErrUnsupportedMode, f, fmt.Errorf("frame codec %s, handle codec %s", f.Codec, d.cfg.Codec))
	}
	if f.AMRWBIO && f.Codec != audio.CodecEVS {
		return nil, frameError(ErrUnsupportedMode, f, fmt.Errorf("AMR-WB IO flag on a %s frame", f.Codec))
	}
	info, err := d.cfg.checkMode(f.Mode, f.AMRWBIO)
	if err == nil {
		err = restricted(d.tr, info, f.Mode, f.AMRWBIO)
	}
	if err != nil {
		return nil, frameError(ErrUnsupportedMode, f, err)
	}
	if info.Bytes >= 0 && len(f.Payload) != info.Bytes {
		return nil, frameError(ErrSizeMismatch, f, fmt.Errorf("%d bytes, want %d", len(f.Payload), info.Bytes))
	}

	want, exact := d.cfg.samples(len(f.Payload))
	if cap(d.pcm) < want {
		d.pcm = make([]int16, want)
	}
	buf := d.pcm[:want:want]

	n, err := d.tr.Decode(f, buf)
	switch {
	case err != nil:
		d.dead = frameError(ErrInternalCodecFailure, f, err)
		return nil, d.dead
	case n < 0 || n > want || (exact && n != want) || (!exact && n != 0 && n != want):
		d.dead = frameError(ErrInternalCodecFailure, f, fmt.Errorf("transform returned %d samples, want %d", n, want))
		return nil, d.dead
	}

	return buf[:n], nil
}

func restricted(tr Transform, info audio.ModeInfo, mode audio.Mode, amrwbIO bool) error {
	mr, ok := tr.(ModeRestricter)
	if !ok || info.Class != audio.ClassSpeech || mr.AcceptsMode(mode, amrwbIO) {
		return nil
	}
	return fmt.Errorf("mode %d refused by the codec instance", mode)
}

// Close releases the transform. Calling it again does nothing.
func (d *Decoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.pcm = nil
	return d.tr.Close()
}
