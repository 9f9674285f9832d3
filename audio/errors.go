// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDstSize = errors.New("dst size must be multiple of channels")

	// Structural stream errors. All of them are fatal for the demuxer that
	// returns them.
	ErrBadMagic           = errors.New("bad magic")
	ErrUnsupportedVariant = errors.New("unsupported format variant")
	ErrUnknownMode        = errors.New("unknown frame mode")
	ErrTruncatedFrame     = errors.New("truncated frame")
	ErrMalformedRecord    = errors.New("malformed record")

	// Writer errors.
	ErrPayloadSize  = errors.New("payload size does not match frame mode")
	ErrChannelOrder = errors.New("frame written out of channel order")

	ErrUnknownCodec  = errors.New("unknown codec")
	ErrUnknownFormat = errors.New("unknown format")
)

// FormatError reports a structural problem at a byte offset of a stream.
type FormatError struct {
	Format string
	// Kind is one of the structural sentinels above.
	Kind   error
	Offset int64
	Err    error
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("%s: %v at offset %d", e.Format, e.Kind, e.Offset)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewFormatError builds a *FormatError.
func NewFormatError(format string, kind error, offset int64, err error) error {
	return &FormatError{Format: format, Kind: kind, Offset: offset, Err: err}
}
