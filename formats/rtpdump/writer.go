// SPDX-License-Identifier: EPL-2.0

package rtpdump

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net/netip"
	"time"

	"github.com/pion/rtp"
)

// Writer produces rtpdump files in the rtptools "dump" layout.
type Writer struct {
	w   io.Writer
	buf []byte
}

// NewWriter writes the text line and the file header. An IPv6 source is
// written to the text line only; the binary header keeps 0.0.0.0. The zero
// address is written as 0.0.0.0.
func NewWriter(w io.Writer, src netip.AddrPort, start time.Time) (*Writer, error) {
	if !src.Addr().IsValid() {
		src = netip.AddrPortFrom(netip.IPv4Unspecified(), src.Port())
	}
	hdr := fmt.Appendf(nil, "%s%s/%d\n", Magic, src.Addr().Unmap(), src.Port())

	hdr = binary.BigEndian.AppendUint32(hdr, uint32(start.Unix()))
	hdr = binary.BigEndian.AppendUint32(hdr, uint32(start.Nanosecond()/int(time.Microsecond)))
	var ip4 [4]byte
	if a := src.Addr().Unmap(); a.Is4() {
		ip4 = a.As4()
	}
	hdr = append(hdr, ip4[:]...)
	hdr = binary.BigEndian.AppendUint16(hdr, src.Port())
	hdr = append(hdr, 0, 0)

	if _, err := w.Write(hdr); err != nil {
		return nil, fmt.Errorf("rtpdump: writing header: %w", err)
	}
	return &Writer{w: w}, nil
}

// WriteRecord appends rec. RTP records are marshalled from Header and
// Payload; RTCP records store Payload as is.
func (w *Writer) WriteRecord(rec Record) error {
	var data []byte
	switch rec.Kind {
	case KindRTP:
		pkt := rtp.Packet{Header: rec.Header, Payload: rec.Payload}
		pkt.Header.Version = 2
		pkt.Header.Padding = false
		b, err := pkt.Marshal()
		if err != nil {
			return fmt.Errorf("rtpdump: marshal RTP: %w", err)
		}
		data = b
	case KindRTCP:
		data = rec.Payload
	default:
		return fmt.Errorf("rtpdump: record kind %d", rec.Kind)
	}

	length := len(data) + recordHeaderLen
	if length > math.MaxUint16 {
		return fmt.Errorf("rtpdump: record of %d bytes does not fit", length)
	}
	plen := 0
	if rec.Kind == KindRTP {
		plen = len(data)
	}

	w.buf = binary.BigEndian.AppendUint16(w.buf[:0], uint16(length))
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(plen))
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(rec.Time.Milliseconds()))
	w.buf = append(w.buf, data...)
	if _, err := w.w.Write(w.buf); err != nil {
		return fmt.Errorf("rtpdump: %w", err)
	}
	return nil
}
