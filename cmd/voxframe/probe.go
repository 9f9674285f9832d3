// SPDX-License-Identifier: EPL-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ik5/voxframe/audio"
)

// probeResult summarises one file.
type probeResult struct {
	path    string
	hdr     audio.StreamHeader
	frames  map[audio.FrameClass]uint64
	bytes   uint64
	slots   uint64
	ssrc    uint32
	hasSSRC bool
	err     error
}

func (p probeResult) duration() time.Duration {
	return time.Duration(p.slots) * audio.FrameDuration
}

func (p probeResult) String() string {
	if p.err != nil {
		return fmt.Sprintf("%s: error: %v", p.path, p.err)
	}
	s := fmt.Sprintf("%s: format=%s", p.path, p.hdr.Format)
	if p.hdr.Variant != "" {
		s += " variant=" + p.hdr.Variant
	}
	s += fmt.Sprintf(" codec=%s channels=%d rate=%d", p.hdr.Codec, p.hdr.Channels, p.hdr.SampleRate)
	if p.hasSSRC {
		s += fmt.Sprintf(" ssrc=%#08x", p.ssrc)
	}
	s += fmt.Sprintf(" speech=%d sid=%d no_data=%d lost=%d bytes=%d duration=%s",
		p.frames[audio.ClassSpeech], p.frames[audio.ClassSID], p.frames[audio.ClassNoData], p.frames[audio.ClassSpeechLost],
		p.bytes, p.duration())
	return s
}

func (a *app) probe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	format := fs.String("format", "", "storage format; empty probes each file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(fs.Output(), "usage: voxframe probe [-format name] file...")
		return errUsage
	}

	results := make([]probeResult, fs.NArg())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers())
	for i, path := range fs.Args() {
		g.Go(func() error {
			start := time.Now()
			results[i] = a.probeFile(gctx, path, *format)
			a.metrics.RecordFile(gctx, "probe", time.Since(start), results[i].err)
			// one bad file does not stop the others
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var failed int
	for _, r := range results {
		fmt.Fprintln(a.stdout, r)
		if r.err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}

func (a *app) probeFile(ctx context.Context, path, format string) probeResult {
	res := probeResult{path: path, frames: make(map[audio.FrameClass]uint64)}

	in, err := a.openInput(ctx, path, format)
	if err != nil {
		res.err = err
		return res
	}
	defer in.Close()

	for {
		if err := ctx.Err(); err != nil {
			res.err = err
			return res
		}
		f, err := in.NextFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			res.err = err
			break
		}

		class, err := f.Class()
		if err != nil {
			res.err = err
			break
		}
		res.frames[class]++
		res.bytes += uint64(len(f.Payload))
		if f.Channel == 0 {
			res.slots++
		}
	}

	res.hdr = in.Header()
	if in.stream != nil {
		res.ssrc, res.hasSSRC = in.stream.SSRC()
		st := in.stream.Stats()
		a.log.Debug("stream stats", "path", path,
			"records", st.Records, "packets", st.Packets, "skipped", st.Skipped,
			"record_errors", st.RecordErrors, "packet_errors", st.PacketErrors, "gap_frames", st.GapFrames)
	}
	return res
}

// frames lists every frame of one file.
func (a *app) frames(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("frames", flag.ContinueOnError)
	format := fs.String("format", "", "storage format; empty probes the file")
	limit := fs.Int("n", 0, "stop after this many frames; 0 lists all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(fs.Output(), "usage: voxframe frames [-format name] [-n count] file")
		return errUsage
	}

	in, err := a.openInput(ctx, fs.Arg(0), *format)
	if err != nil {
		return err
	}
	defer in.Close()

	for n := 0; *limit == 0 || n < *limit; n++ {
		f, err := in.NextFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		class, err := f.Class()
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "%8d\t%s\t%s\n", f.Offset, class, f)
	}
	return nil
}
