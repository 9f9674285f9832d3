// SPDX-License-Identifier: EPL-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ik5/voxframe/formats/pcap"
	"github.com/ik5/voxframe/formats/rtpdump"
)

func (a *app) convert(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	port := fs.Uint("port", uint(a.cfg.Stream.Port), "keep only UDP datagrams to or from this port; 0 keeps all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(fs.Output(), "usage: voxframe convert [-port n] capture.pcap out.rtpdump")
		return errUsage
	}
	if *port > 65535 {
		return fmt.Errorf("port %d is out of range", *port)
	}

	start := time.Now()
	n, err := a.convertFile(ctx, fs.Arg(0), fs.Arg(1), uint16(*port))
	a.metrics.RecordFile(ctx, "convert", time.Since(start), err)
	if err != nil {
		return err
	}
	a.log.Info("converted", "input", fs.Arg(0), "output", fs.Arg(1), "records", n)
	return nil
}

// convertFile copies the RTP and RTCP datagrams of a capture into an
// rtpdump file. Unparsable RTP datagrams are skipped.
func (a *app) convertFile(ctx context.Context, path, dst string, port uint16) (n int, err error) {
	in, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	rd, err := pcap.Open(in, pcap.Options{Port: port})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	hdr := rd.Header()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	defer func() { err = errors.Join(err, out.Close()) }()

	w, err := rtpdump.NewWriter(out, hdr.Source, hdr.Start)
	if err != nil {
		return 0, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		rec, err := rd.NextRecord()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			var re *rtpdump.RecordError
			if errors.As(err, &re) && re.Recoverable() {
				a.log.Warn("skipping datagram", "packet", re.Offset, "err", err)
				a.metrics.RecordError(ctx, hdr.Format)
				continue
			}
			return n, fmt.Errorf("%s: %w", path, err)
		}

		if err := w.WriteRecord(rec); err != nil {
			return n, err
		}
		n++
	}
}
