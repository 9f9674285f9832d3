// SPDX-License-Identifier: EPL-2.0

package payload

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/pion/rtp"
	"gopkg.in/yaml.v3"

	"github.com/ik5/voxframe/audio"
)

//go:embed codecs.yaml
var defaultFeatures []byte

// Feature is one packet shape a codec produces.
type Feature struct {
	PayloadSize int  `yaml:"payloadSize"`
	DeltaTime   int  `yaml:"deltaTime"`
	SIDFrame    bool `yaml:"sidFrame"`
}

// CodecEntry names a codec configuration and the packet shapes it produces.
// PayloadType is set for static RTP payload types only.
type CodecEntry struct {
	Name        string    `yaml:"name"`
	SampleRate  int       `yaml:"sampleRate"`
	PayloadType *uint8    `yaml:"payloadType"`
	Params      string    `yaml:"params"`
	Features    []Feature `yaml:"features"`

	codec audio.Codec
}

// Codec is the parsed Name.
func (e CodecEntry) Codec() audio.Codec { return e.codec }

// OctetAligned reports whether Params select the AMR octet-aligned mode.
func (e CodecEntry) OctetAligned() bool {
	for p := range strings.SplitSeq(e.Params, ";") {
		k, v, _ := strings.Cut(strings.TrimSpace(p), "=")
		if strings.EqualFold(k, "octet-align") && v == "1" {
			return true
		}
	}
	return false
}

type featureFile struct {
	Codecs []CodecEntry `yaml:"codecs"`
}

// LoadFeatures decodes a codec feature file.
func LoadFeatures(r io.Reader) ([]CodecEntry, error) {
	var ff featureFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&ff); err != nil {
		return nil, fmt.Errorf("payload: decode features: %w", err)
	}

	var errs []error
	for i := range ff.Codecs {
		e := &ff.Codecs[i]
		c, err := audio.ParseCodec(e.Name)
		if err != nil {
			errs = append(errs, fmt.Errorf("codecs[%d].name: %w", i, err))
			continue
		}
		e.codec = c
		if e.SampleRate <= 0 {
			errs = append(errs, fmt.Errorf("codecs[%d].sampleRate must be positive", i))
		}
		if e.PayloadType == nil && len(e.Features) == 0 {
			errs = append(errs, fmt.Errorf("codecs[%d] needs a payloadType or features", i))
		}
		for j, f := range e.Features {
			if f.PayloadSize <= 0 || f.DeltaTime <= 0 {
				errs = append(errs, fmt.Errorf("codecs[%d].features[%d]: payloadSize and deltaTime must be positive", i, j))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("payload: features: %w", err)
	}

	return ff.Codecs, nil
}

// DefaultFeatures returns the built-in feature set.
func DefaultFeatures() []CodecEntry {
	entries, err := LoadFeatures(bytes.NewReader(defaultFeatures))
	if err != nil {
		panic(err)
	}
	return entries
}

// Detection is the outcome for one payload type.
type Detection struct {
	Entry   CodecEntry
	Matches uint64
	Packets uint64
}

const (
	firstDynamicPT = 96
	// share of a payload type's packets a codec must match, in permille
	winThreshold = 618
	// more distinct payload sizes than this make the size unusable
	defaultMaxSizes = 3
)

type lastPacket struct {
	seq uint16
	ts  uint32
}

// Detector classifies RTP payload types by watching their packets. Static
// payload types are looked up; dynamic ones are matched against codec
// features by the ratio of timestamp step to payload size and confirmed by
// parsing the payload.
//
// A Detector is not safe for concurrent use.
type Detector struct {
	// TelephoneEventPT is skipped; -1 relies on payload shape only.
	TelephoneEventPT int
	MaxDistinctSizes int

	entries []CodecEntry
	packets map[uint8]uint64
	matches map[uint8][]uint64
	sizes   map[uint8]map[int]struct{}
	last    map[uint32]lastPacket
}

func NewDetector(entries []CodecEntry) *Detector {
	return &Detector{
		TelephoneEventPT: -1,
		MaxDistinctSizes: defaultMaxSizes,
		entries:          entries,
		packets:          make(map[uint8]uint64),
		matches:          make(map[uint8][]uint64),
		sizes:            make(map[uint8]map[int]struct{}),
		last:             make(map[uint32]lastPacket),
	}
}

// isTelephoneEvent matches RFC 4733 events: the configured payload type or
// a bare 4-byte event payload with a sane volume field.
func (d *Detector) isTelephoneEvent(h *rtp.Header, p []byte) bool {
	if d.TelephoneEventPT >= 0 && int(h.PayloadType) == d.TelephoneEventPT {
		return true
	}
	return len(p) == 4 && p[0] <= 16 && p[1]&0x40 == 0
}

func (d *Detector) count(pt uint8, i int) {
	m, ok := d.matches[pt]
	if !ok {
		m = make([]uint64, len(d.entries))
		d.matches[pt] = m
	}
	m[i]++
}

// Observe feeds one packet.
func (d *Detector) Observe(h *rtp.Header, p []byte) {
	if d.isTelephoneEvent(h, p) {
		return
	}

	pt := h.PayloadType
	if pt < firstDynamicPT {
		for i, e := range d.entries {
			if e.PayloadType != nil && *e.PayloadType == pt {
				d.packets[pt]++
				d.count(pt, i)
				return
			}
		}
		return
	}

	prev, seen := d.last[h.SSRC]
	if seen && prev.seq == h.SequenceNumber {
		return
	}
	d.last[h.SSRC] = lastPacket{seq: h.SequenceNumber, ts: h.Timestamp}
	if !seen {
		return
	}

	d.packets[pt]++
	sizes, ok := d.sizes[pt]
	if !ok {
		sizes = make(map[int]struct{})
		d.sizes[pt] = sizes
	}
	sizes[len(p)] = struct{}{}

	delta := int((h.Timestamp - prev.ts) / uint32(h.SequenceNumber-prev.seq))
	size := len(p)
	if len(sizes) > d.MaxDistinctSizes {
		size = 0
	}

	for i, e := range d.entries {
		if e.PayloadType != nil || !matchesAny(e.Features, size, delta) {
			continue
		}
		if !d.plausible(e, p) {
			continue
		}
		d.count(pt, i)
	}
}

func matchesAny(features []Feature, size, delta int) bool {
	for _, f := range features {
		switch {
		case size == 0:
			if f.DeltaTime == delta {
				return true
			}
		case f.SIDFrame:
			// SID packets are sent at irregular intervals
			if f.PayloadSize == size {
				return true
			}
		case delta*f.PayloadSize == f.DeltaTime*size:
			return true
		}
	}
	return false
}

// plausible parses the payload with the entry's format. AMR-WB and EVS
// overlap in size and rate, so EVS only wins packets that are not valid
// AMR-WB.
func (d *Detector) plausible(e CodecEntry, p []byte) bool {
	switch e.codec {
	case audio.CodecAMR, audio.CodecAMRWB:
		_, err := amrFormat{codec: e.codec, octetAligned: e.OctetAligned()}.Depacketize(p)
		return err == nil
	case audio.CodecEVS:
		return !IsAMR(p, true) && IsEVS(p)
	}
	return true
}

// PayloadTypes lists the payload types seen so far, in ascending order.
func (d *Detector) PayloadTypes() []uint8 {
	pts := make([]uint8, 0, len(d.packets))
	for pt := range d.packets {
		pts = append(pts, pt)
	}
	slices.Sort(pts)
	return pts
}

// Result returns the codec of every payload type where one codec matched
// more than 61.8% of the packets. Ties go to the entry listed first.
func (d *Detector) Result() map[uint8]Detection {
	out := make(map[uint8]Detection)
	for pt, m := range d.matches {
		total := d.packets[pt]
		best := -1
		for i, n := range m {
			if n*1000 > total*winThreshold && (best < 0 || n > m[best]) {
				best = i
			}
		}
		if best >= 0 {
			out[pt] = Detection{Entry: d.entries[best], Matches: m[best], Packets: total}
		}
	}
	return out
}
