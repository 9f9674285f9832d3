// SPDX-License-Identifier: EPL-2.0

package payload

import "errors"

var (
	ErrShortPayload   = errors.New("payload: shorter than its table of contents declares")
	ErrTrailingData   = errors.New("payload: trailing data after last frame")
	ErrBadPadding     = errors.New("payload: non-zero padding bits")
	ErrReservedBits   = errors.New("payload: reserved bits set")
	ErrEmptyPayload   = errors.New("payload: empty")
	ErrTooManyFrames  = errors.New("payload: too many frames")
	ErrNotPacketizing = errors.New("payload: frames cannot share one packet")
)
