// SPDX-License-Identifier: EPL-2.0

package pcap

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/ik5/voxframe/audio"
	"github.com/ik5/voxframe/formats/rtpdump"
)

const (
	ngMagic     = 0x0a0d0d0a
	pcapHdrLen  = 24
	minRTPLen   = 12
	minRTCPLen  = 8
	rtcpPTFirst = 192
	rtcpPTLast  = 223
)

// Magic prefixes of classic pcap (both byte orders, micro and nanosecond
// timestamps) and pcapng.
var Magic = [][]byte{
	{0xd4, 0xc3, 0xb2, 0xa1},
	{0xa1, 0xb2, 0xc3, 0xd4},
	{0x4d, 0x3c, 0xb2, 0xa1},
	{0xa1, 0xb2, 0x3c, 0x4d},
	{0x0a, 0x0d, 0x0d, 0x0a},
}

// Options narrow what a Reader returns.
type Options struct {
	// Port keeps only datagrams with this UDP source or destination port.
	// 0 keeps all.
	Port uint16
}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Reader turns the UDP datagrams of a capture into rtpdump records.
// Record.FileOffset holds the packet's index in the capture.
type Reader struct {
	rs   io.ReadSeeker
	opts Options
	pr   packetReader
	hdr  audio.StreamHeader

	start time.Time
	index int64

	state audio.State
	err   error
}

// Open reads the capture header. Readers that cannot seek are buffered in
// memory so the capture can be rewound.
func Open(r io.Reader, opts Options) (*Reader, error) {
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("pcap: %w", err)
		}
		rs = bytes.NewReader(b)
	}

	rd := &Reader{rs: rs, opts: opts, hdr: audio.StreamHeader{Format: "pcap"}}
	if err := rd.open(); err != nil {
		return nil, err
	}
	if err := rd.prime(); err != nil {
		return nil, err
	}
	return rd, nil
}

func (r *Reader) open() error {
	if _, err := r.rs.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("pcap: %w", err)
	}
	var head [4]byte
	if _, err := io.ReadFull(r.rs, head[:]); err != nil {
		return audio.NewFormatError("pcap", audio.ErrBadMagic, 0, err)
	}
	if _, err := r.rs.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("pcap: %w", err)
	}

	if binary.BigEndian.Uint32(head[:]) == ngMagic {
		ng, err := pcapgo.NewNgReader(r.rs, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return audio.NewFormatError("pcap", audio.ErrBadMagic, 0, err)
		}
		r.pr = ng
		r.hdr.Variant = "pcapng"
	} else {
		pr, err := pcapgo.NewReader(r.rs)
		if err != nil {
			return audio.NewFormatError("pcap", audio.ErrBadMagic, 0, err)
		}
		r.pr = pr
		r.hdr.Variant = "pcap"
		r.hdr.HeaderSize = pcapHdrLen
	}

	r.index = 0
	r.state = audio.StateHeaderParsed
	r.err = nil
	return nil
}

// prime takes the capture start from the first packet and the stream
// source from the first UDP datagram, then rewinds.
func (r *Reader) prime() error {
	for {
		data, ci, err := r.pr.ReadPacketData()
		if err != nil {
			break
		}
		if r.start.IsZero() {
			r.start = ci.Timestamp
			r.hdr.Start = ci.Timestamp.UTC()
		}
		pkt := gopacket.NewPacket(data, r.pr.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		if udp, ok := r.match(pkt); ok {
			r.hdr.Source = destination(pkt, udp)
			break
		}
	}
	return r.open()
}

func (r *Reader) match(pkt gopacket.Packet) (*layers.UDP, bool) {
	l := pkt.Layer(layers.LayerTypeUDP)
	if l == nil {
		return nil, false
	}
	udp, ok := l.(*layers.UDP)
	if !ok {
		return nil, false
	}
	if p := r.opts.Port; p != 0 && uint16(udp.SrcPort) != p && uint16(udp.DstPort) != p {
		return nil, false
	}
	return udp, true
}

func destination(pkt gopacket.Packet, udp *layers.UDP) netip.AddrPort {
	var addr netip.Addr
	switch ip := pkt.NetworkLayer().(type) {
	case *layers.IPv4:
		addr, _ = netip.AddrFromSlice(ip.DstIP.To4())
	case *layers.IPv6:
		addr, _ = netip.AddrFromSlice(ip.DstIP)
	}
	return netip.AddrPortFrom(addr, uint16(udp.DstPort))
}

func (r *Reader) Header() audio.StreamHeader { return r.hdr }
func (r *Reader) State() audio.State         { return r.state }

// Rewind restarts at the first packet.
func (r *Reader) Rewind() error { return r.open() }

// NextRecord returns the next RTP or RTCP datagram. Datagrams that are
// neither are skipped. An RTP packet pion cannot parse comes back as a
// recoverable *rtpdump.RecordError; a damaged capture ends the stream.
func (r *Reader) NextRecord() (rtpdump.Record, error) {
	switch r.state {
	case audio.StateEnded:
		return rtpdump.Record{}, io.EOF
	case audio.StateErrored:
		return rtpdump.Record{}, r.err
	}
	r.state = audio.StateStreaming

	for {
		data, ci, err := r.pr.ReadPacketData()
		switch {
		case errors.Is(err, io.EOF):
			r.state = audio.StateEnded
			return rtpdump.Record{}, io.EOF
		case errors.Is(err, io.ErrUnexpectedEOF):
			return rtpdump.Record{}, r.fail(audio.NewFormatError("pcap", audio.ErrTruncatedFrame, r.index, err))
		case err != nil:
			return rtpdump.Record{}, r.fail(audio.NewFormatError("pcap", audio.ErrMalformedRecord, r.index, err))
		}
		idx := r.index
		r.index++

		pkt := gopacket.NewPacket(data, r.pr.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		udp, ok := r.match(pkt)
		if !ok {
			continue
		}
		p := udp.Payload
		at := ci.Timestamp.Sub(r.start)

		switch {
		case isRTCP(p):
			return rtpdump.Record{
				Time:           at,
				Kind:           rtpdump.KindRTCP,
				Payload:        p,
				OriginalLength: len(p),
				FileOffset:     idx,
			}, nil
		case len(p) >= minRTPLen && p[0]>>6 == 2:
			return rtpdump.ParseRTP(p, at, idx)
		}
	}
}

// isRTCP applies the RTP/RTCP demultiplexing rule of RFC 5761.
func isRTCP(p []byte) bool {
	return len(p) >= minRTCPLen && p[0]>>6 == 2 && p[1] >= rtcpPTFirst && p[1] <= rtcpPTLast
}

func (r *Reader) fail(err error) error {
	r.err = err
	r.state = audio.StateErrored
	return err
}

// Close does not close the source.
func (r *Reader) Close() error { return nil }

// OpenStream opens a capture and wraps it in an rtpdump.Stream. With
// sopts.Detect the capture is scanned once to classify dynamic payload
// types.
func OpenStream(r io.Reader, opts Options, sopts rtpdump.StreamOptions) (*rtpdump.Stream, error) {
	rd, err := Open(r, opts)
	if err != nil {
		return nil, err
	}
	if sopts.Detect {
		if err := rtpdump.Detect(rd, &sopts); err != nil {
			return nil, err
		}
	}
	return rtpdump.NewStream(rd, sopts), nil
}

// Descriptor registers pcap and pcapng captures with a host registry.
func Descriptor() audio.FormatDescriptor {
	return audio.FormatDescriptor{
		Name:       "pcap",
		LongName:   "libpcap / pcapng packet capture",
		Extensions: []string{"pcap", "pcapng", "cap"},
		MIMETypes:  []string{"application/vnd.tcpdump.pcap"},
		Magic:      Magic,
		Codecs: []audio.Codec{
			audio.CodecAMR, audio.CodecAMRWB, audio.CodecEVS,
			audio.CodecPCMU, audio.CodecPCMA, audio.CodecG722, audio.CodecG7221,
		},
		Open: func(r io.Reader) (audio.Demuxer, error) {
			return OpenStream(r, Options{}, rtpdump.StreamOptions{Detect: true})
		},
	}
}
