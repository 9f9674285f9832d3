// SPDX-License-Identifier: EPL-2.0

// Package rtpdump reads and writes rtptools capture files and rebuilds the
// frame sequence of one RTP stream from them.
//
// A file is a text line "#!rtpplay1.0 addr/port", a 16-byte binary header
// and a sequence of records. Each record has an 8-byte header (length,
// packet length, offset in milliseconds) followed by the packet. A packet
// length of 0 marks an RTCP or other non-RTP record.
//
// Reader surfaces records. Records whose bytes are not a valid RTP packet
// are reported as recoverable *RecordError values and skipped; a record
// length that runs past the end of the file ends the stream. Stream picks
// one SSRC from a RecordSource and depacketizes it into audio.Frames.
package rtpdump
