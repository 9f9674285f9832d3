// SPDX-License-Identifier: EPL-2.0

package rtpdump

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/pion/rtp"

	"github.com/ik5/voxframe/audio"
	"github.com/ik5/voxframe/bitstream"
)

// Magic opens the text line of every rtpdump file.
const Magic = "#!rtpplay1.0 "

const (
	maxLineLen      = 256
	fileHeaderLen   = 16
	recordHeaderLen = 8
	rtpHeaderLen    = 12
)

// Kind tells what a record holds.
type Kind uint8

const (
	KindRTP Kind = iota + 1
	// KindRTCP covers RTCP and any other non-RTP record (plen == 0).
	KindRTCP
)

func (k Kind) String() string {
	switch k {
	case KindRTP:
		return "rtp"
	case KindRTCP:
		return "rtcp"
	}
	return "invalid"
}

// Record is one captured packet.
type Record struct {
	// Time is the capture time relative to the file start.
	Time time.Duration
	Kind Kind
	// Header is only set for RTP records.
	Header rtp.Header
	// Payload is the RTP payload without padding, or the whole record data
	// for RTCP records.
	Payload []byte
	// OriginalLength is the packet length on the wire.
	OriginalLength int
	FileOffset     int64
}

// FileHeader is the binary header following the text line. rtpdump writes
// the first packet's capture time and source there; readers treat it as
// informational.
type FileHeader struct {
	Start  time.Time
	Source netip.Addr
	Port   uint16
}

// Reader pulls records from an rtpdump file.
type Reader struct {
	br    *bitstream.Reader
	hdr   audio.StreamHeader
	file  FileHeader
	first int64

	state audio.State
	err   error
}

// Open parses the text line and the file header.
func Open(r io.Reader) (*Reader, error) {
	br, err := bitstream.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("rtpdump: %w", err)
	}

	head, err := br.Peek(int(min(br.Remaining(), int64(len(Magic)))))
	if err != nil {
		return nil, fmt.Errorf("rtpdump: %w", err)
	}
	if string(head) != Magic {
		return nil, audio.NewFormatError("rtpdump", audio.ErrBadMagic, 0, nil)
	}

	line, err := readLine(br)
	if err != nil {
		return nil, audio.NewFormatError("rtpdump", audio.ErrBadMagic, 0, err)
	}
	src, err := parseSource(strings.TrimPrefix(line, Magic))
	if err != nil {
		return nil, audio.NewFormatError("rtpdump", audio.ErrBadMagic, 0, err)
	}

	off := br.Position()
	raw, err := br.ReadExact(fileHeaderLen)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, audio.NewFormatError("rtpdump", audio.ErrTruncatedFrame, off, err)
	}
	fh := FileHeader{
		Start: time.Unix(int64(binary.BigEndian.Uint32(raw[0:4])), int64(binary.BigEndian.Uint32(raw[4:8]))*int64(time.Microsecond)).UTC(),
		Port:  binary.BigEndian.Uint16(raw[12:14]),
	}
	fh.Source = netip.AddrFrom4([4]byte(raw[8:12]))

	return &Reader{
		br:   br,
		file: fh,
		hdr: audio.StreamHeader{
			Format:     "rtpdump",
			Variant:    strings.TrimSpace(Magic[2:]),
			HeaderSize: br.Position(),
			Start:      fh.Start,
			Source:     src,
		},
		first: br.Position(),
		state: audio.StateHeaderParsed,
	}, nil
}

func readLine(br *bitstream.Reader) (string, error) {
	var sb strings.Builder
	for sb.Len() < maxLineLen {
		b, err := br.ReadUint8()
		if err != nil {
			return "", fmt.Errorf("text line: %w", err)
		}
		if b == '\n' {
			return sb.String(), nil
		}
		sb.WriteByte(b)
	}
	return "", fmt.Errorf("text line longer than %d bytes", maxLineLen)
}

// parseSource reads "addr/port". rtptools writes IPv6 addresses bare.
func parseSource(s string) (netip.AddrPort, error) {
	s = strings.TrimSpace(s)
	i := strings.LastIndexByte(s, '/')
	if i < 0 {
		return netip.AddrPort{}, fmt.Errorf("source %q has no port", s)
	}
	addr, err := netip.ParseAddr(s[:i])
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("source address: %w", err)
	}
	port, err := strconv.ParseUint(s[i+1:], 10, 16)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("source port: %w", err)
	}
	return netip.AddrPortFrom(addr, uint16(port)), nil
}

func (r *Reader) Header() audio.StreamHeader { return r.hdr }
func (r *Reader) FileHeader() FileHeader     { return r.file }
func (r *Reader) State() audio.State         { return r.state }

// Rewind moves back to the first record and forgets the end or error
// state, so a second pass reports the same errors again.
func (r *Reader) Rewind() error {
	if err := r.br.Seek(r.first); err != nil {
		return fmt.Errorf("rtpdump: %w", err)
	}
	r.state = audio.StateHeaderParsed
	r.err = nil
	return nil
}

// NextRecord returns the next record. A *RecordError with Recoverable()
// true concerns that record only; the reader is already positioned at the
// next one. Every other error ends the stream and is returned again by
// later calls.
func (r *Reader) NextRecord() (Record, error) {
	switch r.state {
	case audio.StateEnded:
		return Record{}, io.EOF
	case audio.StateErrored:
		return Record{}, r.err
	}
	r.state = audio.StateStreaming

	off := r.br.Position()
	raw, err := r.br.ReadExact(recordHeaderLen)
	switch {
	case errors.Is(err, io.EOF):
		r.state = audio.StateEnded
		return Record{}, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return Record{}, r.fail(audio.NewFormatError("rtpdump", audio.ErrTruncatedFrame, off, err))
	case err != nil:
		return Record{}, r.fail(fmt.Errorf("rtpdump: read at offset %d: %w", off, err))
	}

	length := int(binary.BigEndian.Uint16(raw[0:2]))
	plen := int(binary.BigEndian.Uint16(raw[2:4]))
	ms := binary.BigEndian.Uint32(raw[4:8])

	if length < recordHeaderLen {
		return Record{}, r.skip(&RecordError{Offset: off, Length: length, Err: ErrShortLength}, plen)
	}
	data, err := r.br.ReadExact(length - recordHeaderLen)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return Record{}, r.skip(&RecordError{Offset: off, Length: length, Err: fmt.Errorf("%w: %d bytes left", ErrLengthOverrun, r.br.Remaining())}, plen)
	case err != nil:
		return Record{}, r.fail(fmt.Errorf("rtpdump: read at offset %d: %w", off, err))
	}

	rec := Record{
		Time:           time.Duration(ms) * time.Millisecond,
		OriginalLength: plen,
		FileOffset:     off,
	}
	if plen == 0 {
		rec.Kind = KindRTCP
		rec.Payload = data
		return rec, nil
	}

	rec.Kind = KindRTP
	if err := parseRTP(data, &rec); err != nil {
		return Record{}, &RecordError{Offset: off, Length: length, Err: err, recoverable: true}
	}
	return rec, nil
}

// ParseRTP builds an RTP record from a raw packet. The error is a
// recoverable *RecordError.
func ParseRTP(data []byte, at time.Duration, off int64) (Record, error) {
	rec := Record{Kind: KindRTP, Time: at, OriginalLength: len(data), FileOffset: off}
	if err := parseRTP(data, &rec); err != nil {
		return Record{}, &RecordError{Offset: off, Length: len(data), Err: err, recoverable: true}
	}
	return rec, nil
}

func parseRTP(data []byte, rec *Record) error {
	if len(data) < rtpHeaderLen {
		return fmt.Errorf("%w: %d bytes", ErrShortRTP, len(data))
	}
	if v := data[0] >> 6; v != 2 {
		return fmt.Errorf("%w: %d", ErrRTPVersion, v)
	}

	var pkt rtp.Packet
	if err := pkt.Unmarshal(data); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRTP, err)
	}
	rec.Header = pkt.Header
	rec.Payload = pkt.Payload
	return nil
}

// skip handles a record whose length field cannot be trusted. An RTP
// record also carries the captured packet length, so the next record
// starts at Offset+8+plen. When that lands on the end of the file or on a
// plausible record header, the error is recoverable and the reader moves
// there; otherwise the stream ends.
func (r *Reader) skip(re *RecordError, plen int) error {
	if plen == 0 {
		return r.fail(re)
	}
	next := re.Offset + recordHeaderLen + int64(plen)
	if next > r.br.Size() || r.br.Seek(next) != nil {
		return r.fail(re)
	}
	if next < r.br.Size() {
		raw, err := r.br.Peek(recordHeaderLen)
		if err != nil {
			return r.fail(re)
		}
		length := int64(binary.BigEndian.Uint16(raw[0:2]))
		if length < recordHeaderLen || next+length > r.br.Size() {
			return r.fail(re)
		}
	}

	re.recoverable = true
	return re
}

func (r *Reader) fail(err error) error {
	r.err = err
	r.state = audio.StateErrored
	return err
}

// Close does not close the source.
func (r *Reader) Close() error { return nil }
