// SPDX-License-Identifier: EPL-2.0

package pcap

import (
	"bytes"
	"errors"
	"io"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pion/rtp"

	"github.com/ik5/voxframe/audio"
	"github.com/ik5/voxframe/formats/rtpdump"
	"github.com/ik5/voxframe/payload"
)

var captureStart = time.Unix(1700000000, 0).UTC()

type datagram struct {
	port    uint16
	tcp     bool
	payload []byte
}

func rtpBytes(t testing.TB, ssrc uint32, pt uint8, seq uint16, ts uint32, p []byte) []byte {
	t.Helper()

	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    pt,
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           ssrc,
		},
		Payload: p,
	}
	b, err := pkt.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func frame(t testing.TB, d datagram) []byte {
	t.Helper()

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version: 4,
		IHL:     5,
		TTL:     64,
		SrcIP:   net.IP{192, 0, 2, 1},
		DstIP:   net.IP{192, 0, 2, 10},
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

	var err error
	if d.tcp {
		ip.Protocol = layers.IPProtocolTCP
		tcp := &layers.TCP{SrcPort: 5060, DstPort: layers.TCPPort(d.port), Seq: 1, Window: 1024, ACK: true}
		if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
			t.Fatal(err)
		}
		err = gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(d.payload))
	} else {
		ip.Protocol = layers.IPProtocolUDP
		udp := &layers.UDP{SrcPort: 4000, DstPort: layers.UDPPort(d.port)}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			t.Fatal(err)
		}
		err = gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(d.payload))
	}
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// capture writes one packet every 20 ms.
func capture(t testing.TB, ds ...datagram) []byte {
	t.Helper()

	var out bytes.Buffer
	w := pcapgo.NewWriter(&out)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		t.Fatal(err)
	}
	for i, d := range ds {
		data := frame(t, d)
		ci := gopacket.CaptureInfo{
			Timestamp:     captureStart.Add(time.Duration(i) * 20 * time.Millisecond),
			CaptureLength: len(data),
			Length:        len(data),
		}
		if err := w.WritePacket(ci, data); err != nil {
			t.Fatal(err)
		}
	}
	return out.Bytes()
}

func captureNg(t testing.TB, ds ...datagram) []byte {
	t.Helper()

	var out bytes.Buffer
	w, err := pcapgo.NewNgWriter(&out, layers.LinkTypeEthernet)
	if err != nil {
		t.Fatal(err)
	}
	for i, d := range ds {
		data := frame(t, d)
		ci := gopacket.CaptureInfo{
			Timestamp:     captureStart.Add(time.Duration(i) * 20 * time.Millisecond),
			CaptureLength: len(data),
			Length:        len(data),
		}
		if err := w.WritePacket(ci, data); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	return out.Bytes()
}

func records(t *testing.T, r *Reader) []rtpdump.Record {
	t.Helper()

	var recs []rtpdump.Record
	for range 1000 {
		rec, err := r.NextRecord()
		if err == io.EOF {
			return recs
		}
		if err != nil {
			t.Fatalf("NextRecord() error = %v", err)
		}
		recs = append(recs, rec)
	}
	t.Fatal("reader did not end")
	return nil
}

func mixed(t *testing.T) []datagram {
	t.Helper()

	return []datagram{
		{port: 5060, tcp: true, payload: []byte("INVITE sip:bob@example.com SIP/2.0\r\n")},
		{port: 5004, payload: rtpBytes(t, 7, 0, 1, 0, make([]byte, 160))},
		{port: 53, payload: []byte{0x12, 0x34, 0x01, 0x00, 0, 1, 0, 0, 0, 0, 0, 0}},
		{port: 5005, payload: []byte{0x80, 200, 0, 1, 0, 0, 0, 7}},
		{port: 5004, payload: rtpBytes(t, 7, 0, 2, 160, make([]byte, 160))},
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    []byte
		variant string
		wantErr error
	}{
		{"pcap", capture(t, mixed(t)...), "pcap", nil},
		{"pcapng", captureNg(t, mixed(t)...), "pcapng", nil},
		{"empty", nil, "", audio.ErrBadMagic},
		{"not a capture", []byte("#!rtpplay1.0 127.0.0.1/5004\n"), "", audio.ErrBadMagic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r, err := Open(bytes.NewReader(tt.data), Options{})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Open() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}

			hdr := r.Header()
			if hdr.Format != "pcap" || hdr.Variant != tt.variant {
				t.Errorf("Header() = %s/%s, want pcap/%s", hdr.Format, hdr.Variant, tt.variant)
			}
			if !hdr.Start.Equal(captureStart) {
				t.Errorf("Start = %v, want %v", hdr.Start, captureStart)
			}
			if want := netip.MustParseAddrPort("192.0.2.10:5004"); hdr.Source != want {
				t.Errorf("Source = %v, want %v", hdr.Source, want)
			}
		})
	}
}

func TestNextRecord(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name string
		data []byte
	}{
		{"pcap", capture(t, mixed(t)...)},
		{"pcapng", captureNg(t, mixed(t)...)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r, err := Open(bytes.NewReader(tc.data), Options{})
			if err != nil {
				t.Fatal(err)
			}
			recs := records(t, r)
			if len(recs) != 3 {
				t.Fatalf("got %d records, want 3", len(recs))
			}

			want := []struct {
				kind rtpdump.Kind
				at   time.Duration
				idx  int64
			}{
				{rtpdump.KindRTP, 20 * time.Millisecond, 1},
				{rtpdump.KindRTCP, 60 * time.Millisecond, 3},
				{rtpdump.KindRTP, 80 * time.Millisecond, 4},
			}
			for i, w := range want {
				rec := recs[i]
				if rec.Kind != w.kind || rec.Time != w.at || rec.FileOffset != w.idx {
					t.Errorf("record %d = %s at %v index %d, want %s at %v index %d",
						i, rec.Kind, rec.Time, rec.FileOffset, w.kind, w.at, w.idx)
				}
			}
			if h := recs[2].Header; h.SSRC != 7 || h.SequenceNumber != 2 || h.Timestamp != 160 {
				t.Errorf("record 2 header = %+v", h)
			}
			if len(recs[0].Payload) != 160 {
				t.Errorf("record 0 payload = %d bytes, want 160", len(recs[0].Payload))
			}
			if r.State() != audio.StateEnded {
				t.Errorf("State() = %s, want ended", r.State())
			}
		})
	}
}

func TestNextRecord_Port(t *testing.T) {
	t.Parallel()

	r, err := Open(bytes.NewReader(capture(t, mixed(t)...)), Options{Port: 5005})
	if err != nil {
		t.Fatal(err)
	}
	recs := records(t, r)
	if len(recs) != 1 || recs[0].Kind != rtpdump.KindRTCP {
		t.Fatalf("got %d records, want the RTCP packet only", len(recs))
	}
	if src := r.Header().Source; src.Port() != 5005 {
		t.Errorf("Source = %v, want port 5005", src)
	}
}

func TestNextRecord_BadRTP(t *testing.T) {
	t.Parallel()

	bad := rtpBytes(t, 7, 0, 2, 160, make([]byte, 20))
	bad[0] |= 0x20 // padding bit with a zero padding count
	r, err := Open(bytes.NewReader(capture(t,
		datagram{port: 5004, payload: rtpBytes(t, 7, 0, 1, 0, make([]byte, 20))},
		datagram{port: 5004, payload: bad},
		datagram{port: 5004, payload: rtpBytes(t, 7, 0, 3, 320, make([]byte, 20))},
	)), Options{})
	if err != nil {
		t.Fatal(err)
	}

	var seqs []uint16
	var errs int
	for {
		rec, err := r.NextRecord()
		if err == io.EOF {
			break
		}
		var re *rtpdump.RecordError
		if errors.As(err, &re) && re.Recoverable() {
			errs++
			if re.Offset != 1 {
				t.Errorf("RecordError.Offset = %d, want 1", re.Offset)
			}
			continue
		}
		if err != nil {
			t.Fatalf("NextRecord() error = %v", err)
		}
		seqs = append(seqs, rec.Header.SequenceNumber)
	}
	if errs != 1 || len(seqs) != 2 || seqs[0] != 1 || seqs[1] != 3 {
		t.Errorf("got seqs %v and %d errors, want [1 3] and 1", seqs, errs)
	}
}

func TestNextRecord_Truncated(t *testing.T) {
	t.Parallel()

	data := capture(t, mixed(t)...)
	r, err := Open(bytes.NewReader(data[:len(data)-5]), Options{})
	if err != nil {
		t.Fatal(err)
	}

	var got error
	for range 10 {
		if _, err := r.NextRecord(); err != nil {
			got = err
			break
		}
	}
	if !errors.Is(got, audio.ErrTruncatedFrame) {
		t.Fatalf("NextRecord() error = %v, want ErrTruncatedFrame", got)
	}
	if _, again := r.NextRecord(); again != got {
		t.Errorf("NextRecord() after the error = %v, want the same error", again)
	}
}

func TestRewind(t *testing.T) {
	t.Parallel()

	r, err := Open(bytes.NewReader(capture(t, mixed(t)...)), Options{})
	if err != nil {
		t.Fatal(err)
	}
	first := records(t, r)
	if err := r.Rewind(); err != nil {
		t.Fatalf("Rewind() error = %v", err)
	}
	second := records(t, r)
	if len(first) != len(second) || second[0].FileOffset != first[0].FileOffset {
		t.Errorf("second pass = %d records, want %d", len(second), len(first))
	}
}

// io.Reader without Seek
type onlyReader struct{ r io.Reader }

func (o onlyReader) Read(p []byte) (int, error) { return o.r.Read(p) }

func TestDescriptor_DetectsAMRWB(t *testing.T) {
	t.Parallel()

	f, err := payload.New(audio.CodecAMRWB, payload.Options{})
	if err != nil {
		t.Fatal(err)
	}
	speech := make([]byte, 32)
	p, err := f.Packetize([]audio.Frame{{Codec: audio.CodecAMRWB, Mode: 2, Quality: true, Payload: speech}})
	if err != nil {
		t.Fatal(err)
	}

	var ds []datagram
	for i := range 30 {
		ds = append(ds, datagram{port: 5004, payload: rtpBytes(t, 11, 110, uint16(i+1), uint32(i)*320, p)})
	}
	data := capture(t, ds...)

	reg := audio.NewRegistry()
	if err := reg.RegisterFormat(Descriptor()); err != nil {
		t.Fatal(err)
	}
	desc, ok := reg.Probe(data)
	if !ok || desc.Name != "pcap" {
		t.Fatalf("Probe() = %q, %v; want pcap", desc.Name, ok)
	}

	d, err := desc.Open(onlyReader{bytes.NewReader(data)})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer d.Close()

	var n int
	for {
		fr, err := d.NextFrame()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("NextFrame() error = %v", err)
		}
		if fr.Codec != audio.CodecAMRWB || fr.Mode != 2 {
			t.Errorf("frame %d = %s, want amr-wb mode 2", n, fr)
		}
		n++
	}
	if n != 30 {
		t.Errorf("got %d frames, want 30", n)
	}
	if hdr := d.Header(); hdr.Codec != audio.CodecAMRWB || hdr.SampleRate != 16000 {
		t.Errorf("Header() = %+v", hdr)
	}
}

func BenchmarkNextRecord(b *testing.B) {
	var ds []datagram
	for i := range 500 {
		ds = append(ds, datagram{port: 5004, payload: rtpBytes(b, 1, 0, uint16(i), uint32(i)*160, make([]byte, 160))})
	}
	data := capture(b, ds...)

	b.ReportAllocs()
	b.ResetTimer()
	for b.Loop() {
		r, err := Open(bytes.NewReader(data), Options{})
		if err != nil {
			b.Fatal(err)
		}
		for {
			if _, err := r.NextRecord(); err != nil {
				break
			}
		}
	}
}
