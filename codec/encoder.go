// SPDX-License-Identifier: EPL-2.0

package codec

import (
	"fmt"

	"github.com/ik5/voxframe/audio"
)

// Encoder is a codec handle turning 16-bit PCM into frames. It is not safe
// for concurrent use.
type Encoder struct {
	cfg   Config
	tr    EncodeTransform
	index uint64

	dead   error
	closed bool
}

// OpenEncoder creates an encoder. Libraries whose transforms cannot encode
// fail with ErrUnsupportedConfig.
func (r *Registry) OpenEncoder(cfg Config) (*Encoder, error) {
	cfg, tr, err := r.transform(cfg)
	if err != nil {
		return nil, err
	}
	et, ok := tr.(EncodeTransform)
	if !ok {
		_ = tr.Close()
		return nil, fmt.Errorf("%w: %s has no encoder", ErrUnsupportedConfig, cfg.Codec)
	}
	return &Encoder{cfg: cfg, tr: et}, nil
}

func (e *Encoder) Config() Config { return e.cfg }

// FrameSamples is the number of PCM samples Encode expects for fixed-frame
// codecs. G.711 takes any count and G.722 any even count.
func (e *Encoder) FrameSamples() int {
	return e.cfg.Codec.SamplesPerFrame(e.cfg.SampleRate)
}

// Encode compresses one frame of pcm at mode. The returned payload size is
// checked against the mode table.
func (e *Encoder) Encode(pcm []int16, mode audio.Mode) (audio.Frame, error) {
	f := audio.Frame{
		Codec:   e.cfg.Codec,
		Mode:    mode,
		AMRWBIO: e.cfg.AMRWBIO,
		Quality: true,
		Index:   e.index,
	}
	switch {
	case e.closed:
		return audio.Frame{}, ErrClosed
	case e.dead != nil:
		return audio.Frame{}, e.dead
	}

	info, err := e.cfg.checkMode(mode, e.cfg.AMRWBIO)
	if err == nil {
		err = restricted(e.tr, info, mode, e.cfg.AMRWBIO)
	}
	if err != nil {
		return audio.Frame{}, frameError(ErrUnsupportedMode, f, err)
	}
	if e.cfg.Codec.HasFixedFrames() {
		if want := e.FrameSamples(); len(pcm) != want {
			return audio.Frame{}, frameError(ErrSizeMismatch, f, fmt.Errorf("%d samples, want %d", len(pcm), want))
		}
	} else if e.cfg.Codec == audio.CodecG722 && len(pcm)%2 != 0 {
		return audio.Frame{}, frameError(ErrSizeMismatch, f, fmt.Errorf("odd sample count %d", len(pcm)))
	}

	if err := e.tr.Encode(pcm, &f); err != nil {
		e.dead = frameError(ErrInternalCodecFailure, f, err)
		return audio.Frame{}, e.dead
	}
	if err := e.checkOutput(f, len(pcm)); err != nil {
		e.dead = frameError(ErrInternalCodecFailure, f, err)
		return audio.Frame{}, e.dead
	}

	e.index++
	return f, nil
}

func (e *Encoder) checkOutput(f audio.Frame, samples int) error {
	if f.Codec != e.cfg.Codec {
		return fmt.Errorf("transform produced a %s frame", f.Codec)
	}
	info, err := audio.LookupMode(f.Codec, f.Mode, f.AMRWBIO)
	if err != nil {
		return err
	}
	want := info.Bytes
	if want < 0 {
		want = e.cfg.payloadLen(samples)
	}
	if len(f.Payload) != want {
		return fmt.Errorf("transform produced %d bytes for mode %d, want %d", len(f.Payload), f.Mode, want)
	}
	return nil
}

// Close releases the transform. Calling it again does nothing.
func (e *Encoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	return e.tr.Close()
}
