// SPDX-License-Identifier: EPL-2.0

// Package pcap pulls RTP packets out of libpcap and pcapng captures so the
// rtpdump stream logic can rebuild audio frames from them.
//
// Every UDP datagram is inspected. Datagrams that look like RTCP (second
// byte 192 to 223) become rtpdump.KindRTCP records, version 2 datagrams
// are parsed as RTP, and everything else is ignored. The file is read with
// the pure Go readers of gopacket/pcapgo; libpcap is not needed.
package pcap
