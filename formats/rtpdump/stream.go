// SPDX-License-Identifier: EPL-2.0

package rtpdump

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ik5/voxframe/audio"
	"github.com/ik5/voxframe/payload"
)

// RecordSource yields captured packets. *Reader and the pcap reader
// implement it.
type RecordSource interface {
	NextRecord() (Record, error)
}

// RewindSource can be read more than once.
type RewindSource interface {
	RecordSource
	Rewind() error
}

// StreamOptions select and interpret one RTP stream.
type StreamOptions struct {
	// SSRC is used when PinSSRC is set. Otherwise the first RTP stream
	// with a known codec is taken.
	SSRC    uint32
	PinSSRC bool

	// PayloadTypes maps dynamic payload types to codecs. Static types 0
	// (PCMU), 8 (PCMA) and 9 (G722) are known without it.
	PayloadTypes map[uint8]audio.Codec
	Payload      payload.Options

	// Detect makes OpenStream classify unmapped dynamic payload types
	// before streaming.
	Detect   bool
	Features []payload.CodecEntry

	// FillGaps emits NO_DATA frames for every frame interval the RTP
	// timestamp skips. Codecs without a NO_DATA mode are not filled.
	FillGaps bool
	// MaxGapFrames caps one fill; 0 means 3000 frames (one minute).
	MaxGapFrames int

	// TelephoneEventPT is the RFC 4733 payload type to drop; 0 for none.
	TelephoneEventPT uint8

	// OnError sees every record and payload error the stream skips.
	OnError func(error)
	Logger  *slog.Logger
}

// StreamStats counts what a Stream did with its input.
type StreamStats struct {
	Records      uint64
	Packets      uint64
	Skipped      uint64
	RecordErrors uint64
	PacketErrors uint64
	GapFrames    uint64
}

// PacketError reports an RTP payload the depacketizer rejected.
type PacketError struct {
	Offset int64
	Seq    uint16
	Err    error
}

func (e *PacketError) Error() string {
	return fmt.Sprintf("rtpdump: packet seq %d at offset %d: %v", e.Seq, e.Offset, e.Err)
}

func (e *PacketError) Unwrap() error { return e.Err }

const defaultMaxGap = 3000

var staticPayloadTypes = map[uint8]audio.Codec{
	0: audio.CodecPCMU,
	8: audio.CodecPCMA,
	9: audio.CodecG722,
}

// NO_DATA frame types
var noDataMode = map[audio.Codec]audio.Mode{
	audio.CodecAMR:   15,
	audio.CodecAMRWB: 15,
	audio.CodecEVS:   15,
}

// Stream rebuilds the frame sequence of one RTP stream. Frames come out in
// arrival order; packets are not reordered.
type Stream struct {
	src  RecordSource
	opts StreamOptions
	log  *slog.Logger
	hdr  audio.StreamHeader

	locked bool
	ssrc   uint32
	pt     uint8
	codec  audio.Codec
	format *payload.Format

	pending []audio.Frame
	index   uint64
	lastTS  uint32
	lastN   int
	haveTS  bool

	state audio.State
	err   error
	stats StreamStats
}

// NewStream reads frames from src. The stream header starts out as the
// source's header, when it has one, and gains the codec once a stream is
// selected.
func NewStream(src RecordSource, opts StreamOptions) *Stream {
	s := &Stream{
		src:   src,
		opts:  opts,
		log:   opts.Logger,
		state: audio.StateHeaderParsed,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.opts.MaxGapFrames <= 0 {
		s.opts.MaxGapFrames = defaultMaxGap
	}
	if h, ok := src.(interface{ Header() audio.StreamHeader }); ok {
		s.hdr = h.Header()
	}
	s.hdr.Channels = 1
	return s
}

// OpenStream opens an rtpdump file and wraps it in a Stream. With
// opts.Detect it first scans the whole file to classify dynamic payload
// types.
func OpenStream(r io.Reader, opts StreamOptions) (*Stream, error) {
	rd, err := Open(r)
	if err != nil {
		return nil, err
	}

	if opts.Detect {
		if err := Detect(rd, &opts); err != nil {
			return nil, err
		}
	}

	return NewStream(rd, opts), nil
}

// Detect scans src once, adds the codecs it recognises to
// opts.PayloadTypes and rewinds src. Payload types already mapped are kept.
func Detect(src RewindSource, opts *StreamOptions) error {
	features := opts.Features
	if features == nil {
		features = payload.DefaultFeatures()
	}
	d := payload.NewDetector(features)
	if opts.TelephoneEventPT != 0 {
		d.TelephoneEventPT = int(opts.TelephoneEventPT)
	}

	for {
		rec, err := src.NextRecord()
		if err != nil {
			var re *RecordError
			if errors.As(err, &re) && re.Recoverable() {
				continue
			}
			// the streaming pass reports the error again
			break
		}
		if rec.Kind == KindRTP {
			d.Observe(&rec.Header, rec.Payload)
		}
	}

	mapped := make(map[uint8]audio.Codec, len(opts.PayloadTypes))
	for pt, c := range opts.PayloadTypes {
		mapped[pt] = c
	}
	for pt, det := range d.Result() {
		if _, ok := mapped[pt]; ok {
			continue
		}
		mapped[pt] = det.Entry.Codec()
		if det.Entry.OctetAligned() {
			opts.Payload.OctetAligned = true
		}
	}
	opts.PayloadTypes = mapped

	return src.Rewind()
}

func (s *Stream) Header() audio.StreamHeader { return s.hdr }
func (s *Stream) State() audio.State         { return s.state }
func (s *Stream) Stats() StreamStats         { return s.stats }

// SSRC returns the selected stream, if any.
func (s *Stream) SSRC() (uint32, bool) { return s.ssrc, s.locked }

// NextFrame returns the next frame of the selected stream. Malformed records
// and payloads are skipped and reported through OnError. It fails with
// ErrNoStream when the input ends before any stream was found.
func (s *Stream) NextFrame() (audio.Frame, error) {
	for len(s.pending) == 0 {
		switch s.state {
		case audio.StateEnded:
			return audio.Frame{}, io.EOF
		case audio.StateErrored:
			return audio.Frame{}, s.err
		}
		s.state = audio.StateStreaming

		rec, err := s.src.NextRecord()
		if err == io.EOF {
			if !s.locked {
				return audio.Frame{}, s.fail(ErrNoStream)
			}
			s.state = audio.StateEnded
			return audio.Frame{}, io.EOF
		}
		if err != nil {
			var re *RecordError
			if errors.As(err, &re) && re.Recoverable() {
				s.stats.RecordErrors++
				s.report(err)
				continue
			}
			if errors.As(err, &re) {
				s.stats.RecordErrors++
			}
			return audio.Frame{}, s.fail(err)
		}

		s.stats.Records++
		if err := s.handle(rec); err != nil {
			return audio.Frame{}, s.fail(err)
		}
	}

	f := s.pending[0]
	s.pending = s.pending[1:]
	return f, nil
}

func (s *Stream) codecFor(pt uint8) audio.Codec {
	if c, ok := s.opts.PayloadTypes[pt]; ok {
		return c
	}
	return staticPayloadTypes[pt]
}

func (s *Stream) handle(rec Record) error {
	if rec.Kind != KindRTP {
		s.stats.Skipped++
		return nil
	}
	h := rec.Header
	if s.opts.TelephoneEventPT != 0 && h.PayloadType == s.opts.TelephoneEventPT {
		s.stats.Skipped++
		return nil
	}

	if !s.locked {
		codec := s.codecFor(h.PayloadType)
		if (s.opts.PinSSRC && h.SSRC != s.opts.SSRC) || codec == audio.CodecUnknown {
			s.stats.Skipped++
			return nil
		}
		if err := s.lock(h.SSRC, h.PayloadType, codec); err != nil {
			return err
		}
	}

	if h.SSRC != s.ssrc {
		s.stats.Skipped++
		return nil
	}
	if h.PayloadType != s.pt && s.codecFor(h.PayloadType) != s.codec {
		// comfort noise or a codec switch the stream cannot follow
		s.log.Debug("rtpdump: skipping foreign payload type", "pt", h.PayloadType, "seq", h.SequenceNumber)
		s.stats.Skipped++
		return nil
	}
	s.stats.Packets++

	frames, err := s.format.Depacketize(rec.Payload)
	if err != nil {
		s.stats.PacketErrors++
		s.report(&PacketError{Offset: rec.FileOffset, Seq: h.SequenceNumber, Err: err})
		return nil
	}

	if s.opts.FillGaps && s.haveTS {
		s.fillGap(h.Timestamp, rec.FileOffset)
	}
	s.lastTS, s.lastN, s.haveTS = h.Timestamp, len(frames), true

	for _, f := range frames {
		s.push(f, rec.FileOffset)
	}
	return nil
}

func (s *Stream) lock(ssrc uint32, pt uint8, codec audio.Codec) error {
	format, err := payload.New(codec, s.opts.Payload)
	if err != nil {
		return fmt.Errorf("rtpdump: %w", err)
	}

	s.locked = true
	s.ssrc, s.pt, s.codec, s.format = ssrc, pt, codec, format
	s.hdr.Codec = codec
	s.hdr.SampleRate = codec.SampleRate()

	s.log.Debug("rtpdump: selected stream", "ssrc", ssrc, "pt", pt, "codec", codec)
	return nil
}

func (s *Stream) fillGap(ts uint32, off int64) {
	mode, ok := noDataMode[s.codec]
	if !ok {
		return
	}
	step := uint32(s.codec.SamplesPerFrame(s.codec.ClockRate()))
	expected := s.lastTS + uint32(s.lastN)*step

	gap := int32(ts - expected)
	if gap <= 0 || uint32(gap)%step != 0 {
		return
	}
	n := int(uint32(gap) / step)
	if n > s.opts.MaxGapFrames {
		s.log.Warn("rtpdump: timestamp jump too large to fill", "frames", n, "offset", off)
		return
	}

	s.log.Debug("rtpdump: filling gap", "frames", n, "offset", off)
	for range n {
		s.push(audio.Frame{Codec: s.codec, Mode: mode, Quality: true, Payload: []byte{}}, off)
	}
	s.stats.GapFrames += uint64(n)
}

func (s *Stream) push(f audio.Frame, off int64) {
	f.Channel = 0
	f.Index = s.index
	f.Offset = off
	s.index++
	s.pending = append(s.pending, f)
}

func (s *Stream) report(err error) {
	s.log.Warn("rtpdump: skipped", "err", err)
	if s.opts.OnError != nil {
		s.opts.OnError(err)
	}
}

func (s *Stream) fail(err error) error {
	s.err = err
	s.state = audio.StateErrored
	return err
}

// Close closes the record source when it is an io.Closer.
func (s *Stream) Close() error {
	if c, ok := s.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Descriptor registers rtpdump with a host registry. Opening through the
// registry classifies dynamic payload types and picks the first stream.
func Descriptor() audio.FormatDescriptor {
	return audio.FormatDescriptor{
		Name:       "rtpdump",
		LongName:   "rtptools rtpdump capture",
		Extensions: []string{"rtpdump", "rtp"},
		MIMETypes:  []string{"application/x-rtpdump"},
		Magic:      [][]byte{[]byte(Magic)},
		Codecs: []audio.Codec{
			audio.CodecAMR, audio.CodecAMRWB, audio.CodecEVS,
			audio.CodecPCMU, audio.CodecPCMA, audio.CodecG722, audio.CodecG7221,
		},
		Open: func(r io.Reader) (audio.Demuxer, error) {
			return OpenStream(r, StreamOptions{Detect: true})
		},
	}
}
