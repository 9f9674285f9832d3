// SPDX-License-Identifier: EPL-2.0

package rtpdump

import (
	"errors"
	"fmt"

	"github.com/ik5/voxframe/audio"
)

var (
	ErrShortLength   = errors.New("record length below the record header size")
	ErrLengthOverrun = errors.New("record length runs past the end of the file")
	ErrShortRTP      = errors.New("record too short for an RTP header")
	ErrRTPVersion    = errors.New("unsupported RTP version")
	ErrBadRTP        = errors.New("invalid RTP packet")
	ErrNoStream      = errors.New("no decodable RTP stream")
)

// RecordError reports a malformed record. It matches audio.ErrMalformedRecord
// with errors.Is.
type RecordError struct {
	Offset int64
	// Length is the record length field.
	Length int
	Err    error

	recoverable bool
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("rtpdump: %v at offset %d (length %d): %v", audio.ErrMalformedRecord, e.Offset, e.Length, e.Err)
}

func (e *RecordError) Unwrap() []error {
	return []error{audio.ErrMalformedRecord, e.Err}
}

// Recoverable reports whether reading may continue with the next record.
func (e *RecordError) Recoverable() bool { return e.recoverable }
