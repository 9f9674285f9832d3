// SPDX-License-Identifier: EPL-2.0

package codec

import (
	"fmt"
	"slices"

	"github.com/ik5/voxframe/audio"
)

// Transform is one native codec instance. It keeps the codec state between
// frames and is used by a single handle.
type Transform interface {
	// Decode writes the PCM of f into pcm and returns the sample count.
	Decode(f audio.Frame, pcm []int16) (int, error)
	Close() error
}

// EncodeTransform is a Transform that can also encode. Encode sets
// f.Payload and may change f.Mode, for example to a SID frame under DTX.
type EncodeTransform interface {
	Transform
	Encode(pcm []int16, f *audio.Frame) error
}

// ModeRestricter is implemented by transforms that accept only part of the
// codec's speech modes. Frames it refuses fail with ErrUnsupportedMode and
// never reach the transform.
type ModeRestricter interface {
	AcceptsMode(mode audio.Mode, amrwbIO bool) bool
}

// Library is a native codec implementation.
type Library interface {
	Name() string
	Codecs() []audio.Codec
	// Init prepares process-wide state. It is called once, before the
	// first transform is created.
	Init() error
	NewTransform(cfg Config) (Transform, error)
}

// Config selects a codec instance.
type Config struct {
	Codec audio.Codec
	// SampleRate is the PCM rate; 0 means the codec's native rate.
	SampleRate int
	// Channels must be 1; multi-channel streams use one handle per channel.
	Channels int
	// ModeSet restricts the speech modes accepted or produced. Empty means
	// every mode of the codec's table. SID and NO_DATA are always allowed.
	ModeSet []audio.Mode
	// AMRWBIO makes an EVS encoder produce AMR-WB IO frames.
	AMRWBIO bool
	// BitRate selects the G.722 and G.722.1 rate in bit/s.
	BitRate int
}

var sampleRates = map[audio.Codec][]int{
	audio.CodecAMR:   {8000},
	audio.CodecAMRWB: {16000},
	audio.CodecEVS:   {8000, 16000, 32000, 48000},
	audio.CodecPCMU:  {8000},
	audio.CodecPCMA:  {8000},
	audio.CodecG722:  {16000},
	audio.CodecG7221: {16000, 32000},
}

// normalize fills defaults and checks what does not depend on the library.
func (c Config) normalize() (Config, error) {
	rates, ok := sampleRates[c.Codec]
	if !ok {
		return c, fmt.Errorf("%w: codec %s", ErrUnsupportedConfig, c.Codec)
	}
	if c.SampleRate == 0 {
		c.SampleRate = c.Codec.SampleRate()
	}
	if !slices.Contains(rates, c.SampleRate) {
		return c, fmt.Errorf("%w: %s at %d Hz", ErrUnsupportedConfig, c.Codec, c.SampleRate)
	}
	if c.Channels == 0 {
		c.Channels = 1
	}
	if c.Channels != 1 {
		return c, fmt.Errorf("%w: %d channels, want 1 per handle", ErrUnsupportedConfig, c.Channels)
	}
	if c.AMRWBIO && c.Codec != audio.CodecEVS {
		return c, fmt.Errorf("%w: AMR-WB IO is an EVS option", ErrUnsupportedConfig)
	}
	for _, m := range c.ModeSet {
		cls, err := audio.Classify(c.Codec, m, c.AMRWBIO)
		if err != nil || cls != audio.ClassSpeech {
			return c, fmt.Errorf("%w: mode set entry %d is not a %s speech mode", ErrUnsupportedConfig, m, c.Codec)
		}
	}
	c.ModeSet = slices.Clone(c.ModeSet)
	return c, nil
}

// checkMode validates mode against the tables and the mode set.
func (c Config) checkMode(mode audio.Mode, amrwbIO bool) (audio.ModeInfo, error) {
	info, err := audio.LookupMode(c.Codec, mode, amrwbIO)
	if err != nil {
		return info, err
	}
	// EVS IO frames are outside a primary mode set
	if info.Class == audio.ClassSpeech && len(c.ModeSet) > 0 && amrwbIO == c.AMRWBIO && !slices.Contains(c.ModeSet, mode) {
		return info, fmt.Errorf("mode %d not in the configured mode set", mode)
	}
	return info, nil
}

// samples returns the PCM sample count for a frame of n payload bytes.
// exact is false for fixed-frame codecs, which may return 0 samples for a
// frame they have nothing to say about.
func (c Config) samples(n int) (count int, exact bool) {
	switch c.Codec {
	case audio.CodecPCMU, audio.CodecPCMA:
		return n, true
	case audio.CodecG722:
		return 2 * n, true
	}
	return c.Codec.SamplesPerFrame(c.SampleRate), false
}

// payloadLen is the payload size for pcm samples of a free-size codec.
func (c Config) payloadLen(samples int) int {
	if c.Codec == audio.CodecG722 {
		return samples / 2
	}
	return samples
}
