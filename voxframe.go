// SPDX-License-Identifier: EPL-2.0

package voxframe

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ik5/voxframe/audio"
	"github.com/ik5/voxframe/codec"
	_ "github.com/ik5/voxframe/codec/g711"
	_ "github.com/ik5/voxframe/codec/g722"
	"github.com/ik5/voxframe/formats/aiff"
	"github.com/ik5/voxframe/formats/amr"
	"github.com/ik5/voxframe/formats/evs"
	"github.com/ik5/voxframe/formats/mp3"
	"github.com/ik5/voxframe/formats/pcap"
	"github.com/ik5/voxframe/formats/rtpdump"
	"github.com/ik5/voxframe/formats/vorbis"
	"github.com/ik5/voxframe/formats/wav"
)

// NewRegistry returns a registry with every storage format and PCM decoder
// of this module.
func NewRegistry() *audio.Registry {
	reg := audio.NewRegistry()

	for _, d := range []audio.FormatDescriptor{
		evs.Descriptor(),
		amr.Descriptor(),
		amr.DescriptorWB(),
		rtpdump.Descriptor(),
		pcap.Descriptor(),
	} {
		// the built-in descriptors are complete
		_ = reg.RegisterFormat(d)
	}

	reg.Register("wav", wav.Decoder{})
	reg.Register("mp3", mp3.Decoder{})
	reg.Register("ogg", vorbis.Decoder{})
	reg.Register("aiff", aiff.Decoder{})

	return reg
}

// Options tune Open.
type Options struct {
	// Registry defaults to NewRegistry().
	Registry *audio.Registry
	// Codecs defaults to codec.Default().
	Codecs *codec.Registry
	// Format skips probing and opens the named storage format.
	Format string

	// SampleRate asks EVS and G.722.1 decoders for this output rate. Other
	// codecs ignore it.
	SampleRate int
	// BitRate selects the G.722.1 rate. G.722 decoders run at 64 kbit/s.
	BitRate int

	// OnError sees frames the decoder rejected; they are replaced with
	// silence. A nil OnError only logs them.
	OnError func(error)
	Logger  *slog.Logger
}

var ErrNoFrames = errors.New("voxframe: stream has no frames")

// Open probes r, demuxes it and decodes every channel. The returned source
// yields interleaved float32 PCM at the decoder rate.
func Open(r io.Reader, opts Options) (*Source, error) {
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}

	d, err := Demux(r, opts.Registry, opts.Format)
	if err != nil {
		return nil, err
	}

	s, err := NewSource(d, opts)
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	return s, nil
}

// Demux opens the storage format named by format, or the one whose magic r
// starts with when format is empty.
func Demux(r io.Reader, reg *audio.Registry, format string) (audio.Demuxer, error) {
	desc, br, err := Probe(r, reg, format)
	if err != nil {
		return nil, err
	}
	return desc.Open(br)
}

// Probe finds the storage format of r like Demux does, without opening it.
// Read the stream from the returned reader; it replays the bytes Probe
// looked at.
func Probe(r io.Reader, reg *audio.Registry, format string) (audio.FormatDescriptor, io.Reader, error) {
	if format != "" {
		desc, ok := reg.Format(format)
		if !ok {
			return audio.FormatDescriptor{}, nil, fmt.Errorf("%w: %q", audio.ErrUnknownFormat, format)
		}
		return desc, r, nil
	}

	br := bufio.NewReaderSize(r, max(reg.MaxMagicLen(), 16))
	head, err := br.Peek(reg.MaxMagicLen())
	if err != nil && !errors.Is(err, io.EOF) {
		return audio.FormatDescriptor{}, nil, fmt.Errorf("voxframe: probing: %w", err)
	}
	desc, ok := reg.Probe(head)
	if !ok {
		return audio.FormatDescriptor{}, nil, fmt.Errorf("%w: no magic matches", audio.ErrUnknownFormat)
	}
	return desc, br, nil
}

// ResampleToMono16 decodes src to mono 16-bit PCM at targetRate.
func ResampleToMono16(src audio.Source, targetRate int, bufferSize int) ([]int16, int, error) {
	return audio.ResampleToMono16(src, targetRate, bufferSize)
}
