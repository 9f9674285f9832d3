// SPDX-License-Identifier: EPL-2.0

package codec

import (
	"errors"
	"fmt"

	"github.com/ik5/voxframe/audio"
)

var (
	ErrUnsupportedConfig = errors.New("unsupported codec configuration")
	ErrUnsupportedMode   = errors.New("unsupported mode")
	ErrSizeMismatch      = errors.New("payload size does not match mode")
	// ErrInternalCodecFailure means the native transform failed or broke
	// its contract. The handle is unusable afterwards.
	ErrInternalCodecFailure = errors.New("internal codec failure")
	ErrClosed               = errors.New("codec handle closed")
)

// DecodeError describes a frame a Decoder or Encoder rejected.
type DecodeError struct {
	// Kind is one of the sentinels above.
	Kind   error
	Codec  audio.Codec
	Mode   audio.Mode
	Offset int64
	Err    error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("codec: %s mode %d at offset %d: %v", e.Codec, e.Mode, e.Offset, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func frameError(kind error, f audio.Frame, err error) error {
	return &DecodeError{Kind: kind, Codec: f.Codec, Mode: f.Mode, Offset: f.Offset, Err: err}
}
