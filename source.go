// SPDX-License-Identifier: EPL-2.0

package voxframe

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ik5/voxframe/audio"
	"github.com/ik5/voxframe/codec"
	"github.com/ik5/voxframe/utils"
)

// Source decodes a demuxed stream into interleaved PCM. It implements
// audio.Source.
type Source struct {
	dmx  audio.Demuxer
	decs []*codec.Decoder
	hdr  audio.StreamHeader
	log  *slog.Logger

	onError  func(error)
	rate     int
	channels int
	frameLen int

	first  *audio.Frame
	queues [][]int16
	out    []float32
	eof    bool
	err    error

	frames  uint64
	skipped uint64
}

// NewSource decodes the frames of d. It reads the first frame, which names
// the codec for formats (rtpdump) whose header does not. d is closed by
// Source.Close, but not when NewSource fails. Registry and Format in opts
// are ignored.
func NewSource(d audio.Demuxer, opts Options) (*Source, error) {
	if opts.Codecs == nil {
		opts.Codecs = codec.Default()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	f, err := d.NextFrame()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoFrames
	}
	if err != nil {
		return nil, err
	}

	hdr := d.Header()
	channels := max(hdr.Channels, 1)

	cfg := codec.Config{Codec: f.Codec}
	if f.Codec == audio.CodecEVS || f.Codec == audio.CodecG7221 {
		cfg.SampleRate = opts.SampleRate
	}
	if f.Codec == audio.CodecG7221 {
		cfg.BitRate = opts.BitRate
	}

	s := &Source{
		dmx:      d,
		hdr:      hdr,
		log:      opts.Logger,
		onError:  opts.OnError,
		channels: channels,
		first:    &f,
		queues:   make([][]int16, channels),
	}
	for range channels {
		dec, err := opts.Codecs.Open(cfg)
		if err != nil {
			s.closeDecoders()
			return nil, err
		}
		s.decs = append(s.decs, dec)
	}
	s.rate = s.decs[0].Config().SampleRate
	s.frameLen = f.Codec.SamplesPerFrame(s.rate)
	return s, nil
}

func (s *Source) SampleRate() int            { return s.rate }
func (s *Source) Channels() int              { return s.channels }
func (s *Source) BufSize() int               { return s.frameLen * s.channels * 10 }
func (s *Source) Header() audio.StreamHeader { return s.hdr }

// Frames counts decoded frames; Skipped counts frames replaced with silence.
func (s *Source) Frames() uint64  { return s.frames }
func (s *Source) Skipped() uint64 { return s.skipped }

// ReadSamples fills dst with interleaved samples in [-1, 1]. len(dst) must
// be a multiple of Channels().
func (s *Source) ReadSamples(dst []float32) (int, error) {
	if len(dst)%s.channels != 0 {
		return 0, audio.ErrInvalidDstSize
	}

	for len(s.out) < len(dst) && !s.eof && s.err == nil {
		s.err = s.decodeNext()
	}

	n := copy(dst, s.out)
	s.out = s.out[n:]
	if len(s.out) == 0 {
		s.out = s.out[:0:0]
	}

	switch {
	case len(s.out) > 0:
		return n, nil
	case s.err != nil:
		return n, s.err
	case s.eof:
		return n, io.EOF
	}
	return n, nil
}

func (s *Source) decodeNext() error {
	var f audio.Frame
	if s.first != nil {
		f, s.first = *s.first, nil
	} else {
		var err error
		f, err = s.dmx.NextFrame()
		if errors.Is(err, io.EOF) {
			s.eof = true
			s.flush()
			return nil
		}
		if err != nil {
			return err
		}
	}

	if f.Channel < 0 || f.Channel >= s.channels {
		return fmt.Errorf("voxframe: frame for channel %d of %d", f.Channel, s.channels)
	}

	pcm, err := s.decs[f.Channel].Decode(f)
	switch {
	case errors.Is(err, codec.ErrUnsupportedMode), errors.Is(err, codec.ErrSizeMismatch):
		s.skipped++
		s.log.Warn("voxframe: frame replaced with silence", "err", err)
		if s.onError != nil {
			s.onError(err)
		}
		pcm = nil
	case err != nil:
		return err
	}
	s.frames++

	// codecs may stay silent for NO_DATA frames; keep channels in step
	if len(pcm) == 0 && f.Codec.HasFixedFrames() {
		s.queues[f.Channel] = append(s.queues[f.Channel], make([]int16, s.frameLen)...)
	} else {
		s.queues[f.Channel] = append(s.queues[f.Channel], pcm...)
	}
	s.interleave()
	return nil
}

// interleave moves the samples every channel has to s.out.
func (s *Source) interleave() {
	n := len(s.queues[0])
	for _, q := range s.queues[1:] {
		n = min(n, len(q))
	}
	if n == 0 {
		return
	}

	for i := range n {
		for ch := range s.channels {
			s.out = append(s.out, utils.Int16ToFloat32(s.queues[ch][i]))
		}
	}
	for ch := range s.queues {
		s.queues[ch] = s.queues[ch][n:]
	}
}

// flush pads short channels at the end of the stream.
func (s *Source) flush() {
	n := 0
	for _, q := range s.queues {
		n = max(n, len(q))
	}
	for ch, q := range s.queues {
		s.queues[ch] = append(q, make([]int16, n-len(q))...)
	}
	s.interleave()
}

func (s *Source) closeDecoders() error {
	var errs []error
	for _, d := range s.decs {
		errs = append(errs, d.Close())
	}
	return errors.Join(errs...)
}

// Close releases the decoders and the demuxer.
func (s *Source) Close() error {
	return errors.Join(s.closeDecoders(), s.dmx.Close())
}
