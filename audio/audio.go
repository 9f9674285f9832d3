// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

type Source interface {
	// SampleRate of the PCM stream in Hz.
	SampleRate() int
	// Channels count (e.g., 1=mono, 2=stereo).
	Channels() int
	// ReadSamples fills dst with interleaved float32 samples in [-1,1].
	// Returns number of float32 values written (not frames). When n == 0 with err == io.EOF, the stream is finished.
	ReadSamples(dst []float32) (n int, err error)

	BufSize() int

	// Close releases any resources.
	Close() error
}

// Decoder constructs a PCM Source from an input reader.
type Decoder interface {
	Decode(r io.Reader) (Source, error)
}

// FormatDescriptor is what a storage format registers with the host.
type FormatDescriptor struct {
	Name       string
	LongName   string
	Extensions []string
	MIMETypes  []string
	// Magic lists the byte prefixes that identify the format. The longest
	// match wins when probing.
	Magic  [][]byte
	Codecs []Codec
	Open   func(r io.Reader) (Demuxer, error)
}

// Registry keeps PCM decoders by format key (e.g., "wav", "mp3", "ogg
// vorbis") and compressed storage formats by name.
type Registry struct {
	codecs  map[string]Decoder
	formats map[string]FormatDescriptor
	order   []string

	mtx *sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		codecs:  make(map[string]Decoder),
		formats: make(map[string]FormatDescriptor),
		mtx:     &sync.RWMutex{},
	}
}

func (r *Registry) Register(format string, d Decoder) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.codecs[format] = d
}

func (r *Registry) Get(format string) (Decoder, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	d, ok := r.codecs[format]
	return d, ok
}

// RegisterFormat adds or replaces a storage format.
func (r *Registry) RegisterFormat(desc FormatDescriptor) error {
	if desc.Name == "" || desc.Open == nil {
		return fmt.Errorf("%w: descriptor needs a name and an Open func", ErrUnknownFormat)
	}

	r.mtx.Lock()
	defer r.mtx.Unlock()

	if _, ok := r.formats[desc.Name]; !ok {
		r.order = append(r.order, desc.Name)
	}
	r.formats[desc.Name] = desc

	return nil
}

func (r *Registry) Format(name string) (FormatDescriptor, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	d, ok := r.formats[name]
	return d, ok
}

// Formats lists the registered storage formats in registration order.
func (r *Registry) Formats() []FormatDescriptor {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	out := make([]FormatDescriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.formats[name])
	}
	return out
}

// ByExtension finds a format by file extension or file name.
func (r *Registry) ByExtension(name string) (FormatDescriptor, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" {
		ext = strings.ToLower(strings.TrimPrefix(name, "."))
	}

	for _, d := range r.Formats() {
		if slices.Contains(d.Extensions, ext) {
			return d, true
		}
	}
	return FormatDescriptor{}, false
}

func (r *Registry) ByMIME(mime string) (FormatDescriptor, bool) {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}

	for _, d := range r.Formats() {
		if slices.Contains(d.MIMETypes, mime) {
			return d, true
		}
	}
	return FormatDescriptor{}, false
}

// Probe matches the first bytes of a stream against the registered magics.
func (r *Registry) Probe(head []byte) (FormatDescriptor, bool) {
	var (
		best    FormatDescriptor
		bestLen int
	)
	for _, d := range r.Formats() {
		for _, m := range d.Magic {
			if len(m) > bestLen && bytes.HasPrefix(head, m) {
				best, bestLen = d, len(m)
			}
		}
	}

	return best, bestLen > 0
}

// MaxMagicLen is how many bytes Probe may look at.
func (r *Registry) MaxMagicLen() int {
	n := 0
	for _, d := range r.Formats() {
		for _, m := range d.Magic {
			n = max(n, len(m))
		}
	}
	return n
}
