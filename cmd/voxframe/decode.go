// SPDX-License-Identifier: EPL-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ik5/voxframe"
	"github.com/ik5/voxframe/audio"
	"github.com/ik5/voxframe/formats/wav"
)

type decodeOptions struct {
	format string
	rate   int
	mono   bool
}

func (a *app) decode(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	format := fs.String("format", "", "storage format; empty probes each file")
	out := fs.String("o", "", "output WAV file (one input only)")
	dir := fs.String("d", "", "output directory; defaults to each input's directory")
	rate := fs.Int("rate", a.cfg.Output.SampleRate, "resample to this rate; 0 keeps the decoder rate")
	mono := fs.Bool("mono", a.cfg.Output.Mono, "mix channels down to mono")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 || (*out != "" && fs.NArg() > 1) {
		fmt.Fprintln(fs.Output(), "usage: voxframe decode [-format name] [-rate hz] [-mono] (-o out.wav input | [-d dir] input...)")
		return errUsage
	}
	if *rate < 0 {
		return fmt.Errorf("rate %d must not be negative", *rate)
	}
	opts := decodeOptions{format: *format, rate: *rate, mono: *mono}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers())
	for _, in := range fs.Args() {
		dst := *out
		if dst == "" {
			dst = wavPath(in, *dir)
		}
		g.Go(func() error {
			start := time.Now()
			err := a.decodeFile(gctx, in, dst, opts)
			a.metrics.RecordFile(gctx, "decode", time.Since(start), err)
			if err != nil {
				return fmt.Errorf("%s: %w", in, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// wavPath replaces the extension of in with .wav.
func wavPath(in, dir string) string {
	base := filepath.Base(in)
	base = strings.TrimSuffix(base, filepath.Ext(base)) + ".wav"
	if dir == "" {
		dir = filepath.Dir(in)
	}
	return filepath.Join(dir, base)
}

func (a *app) decodeFile(ctx context.Context, path, dst string, opts decodeOptions) (err error) {
	in, err := a.openInput(ctx, path, opts.format)
	if err != nil {
		return err
	}

	src, err := voxframe.NewSource(in, a.sourceOptions(ctx))
	if err != nil {
		_ = in.Close()
		return err
	}

	var pcm audio.Source = src
	if opts.rate != 0 && opts.rate != src.SampleRate() {
		pcm = audio.NewResampler(pcm, opts.rate)
	}
	if opts.mono {
		pcm = audio.NewMonoMixer(pcm)
	}
	defer func() { err = errors.Join(err, pcm.Close()) }()

	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, f.Close()) }()

	n, err := wav.Encode(f, ctxSource{ctx: ctx, Source: pcm})
	if err != nil {
		return err
	}

	hdr := src.Header()
	a.log.Info("decoded", "input", path, "output", dst,
		"format", hdr.Format, "codec", hdr.Codec, "channels", pcm.Channels(), "rate", pcm.SampleRate(),
		"frames", src.Frames(), "skipped", src.Skipped(), "samples", n)
	return nil
}

// ctxSource stops reading once ctx is done.
type ctxSource struct {
	ctx context.Context
	audio.Source
}

func (s ctxSource) ReadSamples(dst []float32) (int, error) {
	if err := s.ctx.Err(); err != nil {
		return 0, err
	}
	return s.Source.ReadSamples(dst)
}
