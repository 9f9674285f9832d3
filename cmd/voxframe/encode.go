// SPDX-License-Identifier: EPL-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pion/rtp"

	"github.com/ik5/voxframe/audio"
	"github.com/ik5/voxframe/codec"
	"github.com/ik5/voxframe/formats/amr"
	"github.com/ik5/voxframe/formats/evs"
	"github.com/ik5/voxframe/formats/rtpdump"
	"github.com/ik5/voxframe/payload"
	"github.com/ik5/voxframe/utils"
)

// PCM decoder names by file extension
var pcmExtensions = map[string]string{
	".wav":  "wav",
	".wave": "wav",
	".mp3":  "mp3",
	".ogg":  "ogg",
	".oga":  "ogg",
	".aif":  "aiff",
	".aiff": "aiff",
}

// speech rates used when no bit rate is given
var defaultBitRates = map[audio.Codec]int{
	audio.CodecAMR:   12200,
	audio.CodecAMRWB: 12650,
	audio.CodecEVS:   13200,
	audio.CodecG7221: 32000,
}

// frameWriter stores encoded frames.
type frameWriter interface {
	WriteFrame(f audio.Frame) error
	Close() error
}

type encodeOptions struct {
	codec   audio.Codec
	bitRate int
	pt      uint8
	amrwbIO bool
}

func (a *app) encode(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("encode", flag.ContinueOnError)
	codecName := fs.String("codec", "amr-wb", "amr, amr-wb, evs, pcmu, pcma, g722 or g7221")
	bitRate := fs.Int("bitrate", a.cfg.Codec.BitRate, "bit rate in bit/s; 0 picks the codec default")
	pt := fs.Uint("pt", 96, "RTP payload type for dynamic codecs in rtpdump output")
	amrwbIO := fs.Bool("amrwb-io", false, "produce EVS AMR-WB IO frames")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(fs.Output(), "usage: voxframe encode [-codec name] [-bitrate bps] [-pt n] input output(.amr|.awb|.evs|.rtpdump)")
		return errUsage
	}
	c, err := audio.ParseCodec(*codecName)
	if err != nil {
		return err
	}
	if *pt > 127 {
		return fmt.Errorf("payload type %d is out of range [0, 127]", *pt)
	}

	opts := encodeOptions{codec: c, bitRate: *bitRate, pt: uint8(*pt), amrwbIO: *amrwbIO}
	start := time.Now()
	err = a.encodeFile(ctx, fs.Arg(0), fs.Arg(1), opts)
	a.metrics.RecordFile(ctx, "encode", time.Since(start), err)
	return err
}

// speechMode picks the frame type for the configured bit rate.
func (o encodeOptions) speechMode() (audio.Mode, error) {
	if !o.codec.HasFixedFrames() {
		return 0, nil
	}
	rate := o.bitRate
	if rate == 0 {
		rate = defaultBitRates[o.codec]
		if o.codec == audio.CodecEVS && o.amrwbIO {
			rate = defaultBitRates[audio.CodecAMRWB]
		}
	}
	return audio.ModeForBitrate(o.codec, rate, o.amrwbIO)
}

func (a *app) encodeFile(ctx context.Context, path, dst string, opts encodeOptions) (err error) {
	name, ok := pcmExtensions[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return fmt.Errorf("%s: %w: no PCM decoder for this extension", path, audio.ErrUnknownFormat)
	}
	dec, ok := a.reg.Get(name)
	if !ok {
		return fmt.Errorf("%s: %w: %s", path, audio.ErrUnknownFormat, name)
	}
	mode, err := opts.speechMode()
	if err != nil {
		return err
	}

	cfg := codec.Config{Codec: opts.codec, Channels: 1, AMRWBIO: opts.amrwbIO}
	if opts.codec == audio.CodecG722 || opts.codec == audio.CodecG7221 {
		cfg.BitRate = opts.bitRate
	}
	enc, err := codec.OpenEncoder(cfg)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, enc.Close()) }()

	in, err := os.Open(path)
	if err != nil {
		return err
	}
	src, err := dec.Decode(in)
	if err != nil {
		_ = in.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	rate := enc.Config().SampleRate
	var pcm audio.Source = src
	if src.SampleRate() != rate {
		pcm = audio.NewResampler(pcm, rate)
	}
	pcm = audio.NewMonoMixer(pcm)
	// the PCM decoders do not own the file
	defer func() { err = errors.Join(err, pcm.Close(), in.Close()) }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, out.Close()) }()

	w, err := a.frameWriter(out, dst, opts)
	if err != nil {
		return err
	}

	frames, err := encodeFrames(ctx, ctxSource{ctx: ctx, Source: pcm}, enc, mode, w)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	a.log.Info("encoded", "input", path, "output", dst, "codec", opts.codec, "mode", mode, "frames", frames)
	return nil
}

// encodeFrames feeds src to enc one 20 ms frame at a time. The last frame
// is padded with silence.
func encodeFrames(ctx context.Context, src audio.Source, enc *codec.Encoder, mode audio.Mode, w frameWriter) (int, error) {
	n := enc.FrameSamples()
	buf := make([]float32, n)
	pcm := make([]int16, n)

	frames := 0
	for {
		got, err := readFull(src, buf)
		if got > 0 {
			for i := range buf {
				if i < got {
					pcm[i] = utils.Float32ToInt16(buf[i])
				} else {
					pcm[i] = 0
				}
			}
			f, eerr := enc.Encode(pcm, mode)
			if eerr != nil {
				return frames, eerr
			}
			if werr := w.WriteFrame(f); werr != nil {
				return frames, werr
			}
			frames++
		}
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		if cerr := ctx.Err(); cerr != nil {
			return frames, cerr
		}
	}
}

// readFull reads until buf is full or src ends.
func readFull(src audio.Source, buf []float32) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := src.ReadSamples(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.ErrNoProgress
		}
	}
	return total, nil
}

// frameWriter picks the container from the output extension.
func (a *app) frameWriter(w io.Writer, dst string, opts encodeOptions) (frameWriter, error) {
	switch strings.ToLower(filepath.Ext(dst)) {
	case ".rtpdump", ".rtp":
		return newPacketWriter(w, opts, a.cfg.Stream.OctetAligned, a.cfg.Codec.G7221BitRate)
	case ".evs":
		if opts.codec == audio.CodecEVS {
			return evs.NewWriter(w, 1)
		}
	case ".amr", ".awb":
		if opts.codec == audio.CodecAMR || opts.codec == audio.CodecAMRWB {
			return amr.NewWriter(w, opts.codec, 1)
		}
	}
	return nil, fmt.Errorf("%s: no storage format for %s; use .amr, .awb, .evs or .rtpdump", dst, opts.codec)
}

var staticPayloadTypes = map[audio.Codec]uint8{
	audio.CodecPCMU: 0,
	audio.CodecPCMA: 8,
	audio.CodecG722: 9,
}

// packetWriter sends every frame as one RTP packet of an rtpdump file.
type packetWriter struct {
	w      *rtpdump.Writer
	format *payload.Format
	hdr    rtp.Header
	step   uint32
	n      int
}

func newPacketWriter(w io.Writer, opts encodeOptions, octetAligned bool, g7221Rate int) (*packetWriter, error) {
	if g7221Rate == 0 && opts.codec == audio.CodecG7221 {
		g7221Rate = opts.bitRate
	}
	format, err := payload.New(opts.codec, payload.Options{OctetAligned: octetAligned, G7221Bitrate: g7221Rate})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rw, err := rtpdump.NewWriter(w, netip.AddrPortFrom(netip.AddrFrom4([4]byte{127, 0, 0, 1}), 5004), start)
	if err != nil {
		return nil, err
	}

	pt, ok := staticPayloadTypes[opts.codec]
	if !ok {
		pt = opts.pt
	}
	return &packetWriter{
		w:      rw,
		format: format,
		hdr: rtp.Header{
			Version:        2,
			Marker:         true,
			PayloadType:    pt,
			SequenceNumber: uint16(rand.Uint32()),
			Timestamp:      rand.Uint32(),
			SSRC:           rand.Uint32(),
		},
		step: uint32(opts.codec.SamplesPerFrame(opts.codec.ClockRate())),
	}, nil
}

func (p *packetWriter) WriteFrame(f audio.Frame) error {
	data, err := p.format.Packetize([]audio.Frame{f})
	if err != nil {
		return err
	}
	rec := rtpdump.Record{
		Time:    time.Duration(p.n) * audio.FrameDuration,
		Kind:    rtpdump.KindRTP,
		Header:  p.hdr,
		Payload: data,
	}
	if err := p.w.WriteRecord(rec); err != nil {
		return err
	}

	p.n++
	p.hdr.Marker = false
	p.hdr.SequenceNumber++
	p.hdr.Timestamp += p.step
	return nil
}

func (p *packetWriter) Close() error { return nil }
