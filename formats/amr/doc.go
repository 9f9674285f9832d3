// SPDX-License-Identifier: EPL-2.0

// Package amr reads and writes the AMR and AMR-WB storage format of
// RFC 4867 section 5, including the multi-channel variants.
//
// Every frame starts with a one-byte header (P, FT, Q, P, P). The frame
// type selects the payload size from a fixed table; a frame type outside
// the table is a fatal ErrUnknownMode, a stream ending inside a frame a
// fatal ErrTruncatedFrame. NO_DATA frames are returned with an empty
// payload.
//
// Usage:
//
//	f, _ := os.Open("call.awb")
//	d, err := amr.Open(f)
//	for {
//	    frame, err := d.NextFrame()
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
package amr
