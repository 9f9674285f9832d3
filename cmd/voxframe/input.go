// SPDX-License-Identifier: EPL-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ik5/voxframe"
	"github.com/ik5/voxframe/audio"
	"github.com/ik5/voxframe/codec"
	"github.com/ik5/voxframe/formats/pcap"
	"github.com/ik5/voxframe/formats/rtpdump"
)

// input is an opened coded file.
type input struct {
	audio.Demuxer
	// stream is set for rtpdump and pcap inputs.
	stream *rtpdump.Stream
	file   *os.File
}

func (in *input) Close() error {
	return errors.Join(in.Demuxer.Close(), in.file.Close())
}

// openInput opens a coded file. format names the storage format; empty
// probes the file. Captures are read with the stream settings of the
// configuration.
func (a *app) openInput(ctx context.Context, path, format string) (*input, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	desc, r, err := voxframe.Probe(f, a.reg, format)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	in := &input{file: f}
	var d audio.Demuxer
	switch desc.Name {
	case "rtpdump":
		in.stream, err = rtpdump.OpenStream(r, a.streamOptions(ctx, desc.Name))
		d = in.stream
	case "pcap":
		in.stream, err = pcap.OpenStream(r, pcap.Options{Port: a.cfg.Stream.Port}, a.streamOptions(ctx, desc.Name))
		d = in.stream
	default:
		d, err = desc.Open(r)
	}
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	in.Demuxer = a.metrics.CountFrames(ctx, d)
	return in, nil
}

// streamOptions detects dynamic payload types unless the configuration
// maps some of them.
func (a *app) streamOptions(ctx context.Context, format string) rtpdump.StreamOptions {
	opts := a.cfg.StreamOptions(a.features)
	opts.Detect = opts.Detect || len(opts.PayloadTypes) == 0
	opts.Logger = a.log
	opts.OnError = func(error) { a.metrics.RecordError(ctx, format) }
	return opts
}

// sourceOptions configures the codec handles of a decode.
func (a *app) sourceOptions(ctx context.Context) voxframe.Options {
	return voxframe.Options{
		Codecs:     codec.Default(),
		SampleRate: a.cfg.Codec.EVSSampleRate,
		BitRate:    a.cfg.Codec.G7221BitRate,
		Logger:     a.log,
		OnError: func(err error) {
			var de *codec.DecodeError
			if errors.As(err, &de) {
				a.metrics.RecordDecodeError(ctx, de.Codec)
			}
		},
	}
}
