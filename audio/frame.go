// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// Codec identifies a compressed audio codec.
type Codec uint8

const (
	CodecUnknown Codec = iota
	CodecAMR
	CodecAMRWB
	CodecEVS
	CodecPCMU
	CodecPCMA
	CodecG722
	CodecG7221
)

var codecNames = [...]string{
	CodecUnknown: "unknown",
	CodecAMR:     "amr",
	CodecAMRWB:   "amr-wb",
	CodecEVS:     "evs",
	CodecPCMU:    "pcmu",
	CodecPCMA:    "pcma",
	CodecG722:    "g722",
	CodecG7221:   "g7221",
}

func (c Codec) String() string {
	if int(c) < len(codecNames) {
		return codecNames[c]
	}
	return fmt.Sprintf("codec(%d)", uint8(c))
}

// ParseCodec maps a codec name (case insensitive, as printed by String or as
// used in SDP encoding names) back to a Codec.
func ParseCodec(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "amr", "amr-nb":
		return CodecAMR, nil
	case "amr-wb", "amrwb":
		return CodecAMRWB, nil
	case "evs":
		return CodecEVS, nil
	case "pcmu", "g711u", "ulaw":
		return CodecPCMU, nil
	case "pcma", "g711a", "alaw":
		return CodecPCMA, nil
	case "g722":
		return CodecG722, nil
	case "g7221", "g722.1":
		return CodecG7221, nil
	}

	return CodecUnknown, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
}

// SampleRate is the codec's native output rate in Hz. EVS and G.722.1 can
// run at other rates; this is the rate a decoder uses when not told
// otherwise.
func (c Codec) SampleRate() int {
	switch c {
	case CodecAMR, CodecPCMU, CodecPCMA:
		return 8000
	case CodecAMRWB, CodecEVS, CodecG722, CodecG7221:
		return 16000
	}
	return 0
}

// FrameDuration is the fixed frame length of every supported codec.
const FrameDuration = 20 * time.Millisecond

// SamplesPerFrame returns the number of PCM samples in one 20 ms frame at
// rate (0 = the codec's native rate).
func (c Codec) SamplesPerFrame(rate int) int {
	if rate == 0 {
		rate = c.SampleRate()
	}
	return rate / 50
}

// ClockRate is the RTP timestamp clock of the codec. G.722 keeps the
// historical 8 kHz clock.
func (c Codec) ClockRate() int {
	if c == CodecG722 {
		return 8000
	}
	return c.SampleRate()
}

// Mode is a frame-type index as carried in the storage or payload header.
type Mode uint8

// Frame is one decodable unit of compressed audio.
type Frame struct {
	Codec Codec
	Mode  Mode
	// AMRWBIO marks an EVS frame whose mode indexes the AMR-WB IO table.
	AMRWBIO bool
	// Quality is the Q bit of the frame header. A cleared bit marks a
	// damaged frame.
	Quality bool
	Channel int
	// Index counts frames per channel, starting at 0.
	Index uint64
	// Offset is the byte offset of the frame header in the source, or -1
	// when the frame did not come from a file.
	Offset  int64
	Payload []byte
}

// Timestamp is the frame start in samples of the codec clock.
func (f Frame) Timestamp() uint64 {
	return f.Index * uint64(f.Codec.SamplesPerFrame(f.Codec.ClockRate()))
}

// Class looks the frame mode up in the size tables.
func (f Frame) Class() (FrameClass, error) {
	return Classify(f.Codec, f.Mode, f.AMRWBIO)
}

func (f Frame) String() string {
	tag := ""
	if f.AMRWBIO {
		tag = " io"
	}
	return fmt.Sprintf("%s ch%d #%d mode %d%s q=%t %d bytes", f.Codec, f.Channel, f.Index, f.Mode, tag, f.Quality, len(f.Payload))
}

// StreamHeader describes a stream once its header has been parsed. It does
// not change afterwards.
type StreamHeader struct {
	Format     string
	Variant    string
	Codec      Codec
	Channels   int
	SampleRate int
	HeaderSize int64

	// capture metadata (rtpdump)
	Start  time.Time
	Source netip.AddrPort
}

// State is the lifecycle of a demuxer.
type State uint8

const (
	StateUnopened State = iota
	StateHeaderParsed
	StateStreaming
	StateEnded
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateHeaderParsed:
		return "header-parsed"
	case StateStreaming:
		return "streaming"
	case StateEnded:
		return "ended"
	case StateErrored:
		return "errored"
	}
	return "invalid"
}

// Demuxer yields frames from a storage format.
//
// NextFrame returns io.EOF at a clean end of stream. Any other error is
// terminal unless the concrete type documents otherwise.
type Demuxer interface {
	Header() StreamHeader
	NextFrame() (Frame, error)
	Close() error
}
