// SPDX-License-Identifier: EPL-2.0

package audio

import "fmt"

// FrameClass tells what a frame carries.
type FrameClass uint8

const (
	ClassSpeech FrameClass = iota + 1
	// ClassSID is a comfort-noise descriptor.
	ClassSID
	// ClassNoData is an empty frame (DTX pause or nothing transmitted).
	ClassNoData
	// ClassSpeechLost marks a frame the sender knows was lost.
	ClassSpeechLost
)

func (c FrameClass) String() string {
	switch c {
	case ClassSpeech:
		return "speech"
	case ClassSID:
		return "sid"
	case ClassNoData:
		return "no-data"
	case ClassSpeechLost:
		return "speech-lost"
	}
	return "invalid"
}

// ModeInfo describes one entry of a size table.
type ModeInfo struct {
	// Bitrate in bit/s; 0 for NO_DATA and speech lost.
	Bitrate int
	// Bits is the exact number of speech bits, before octet padding.
	Bits  int
	Bytes int
	Class FrameClass
}

func speech(bitrate, bits int) ModeInfo {
	return ModeInfo{Bitrate: bitrate, Bits: bits, Bytes: (bits + 7) / 8, Class: ClassSpeech}
}

func sid(bitrate, bits int) ModeInfo {
	return ModeInfo{Bitrate: bitrate, Bits: bits, Bytes: (bits + 7) / 8, Class: ClassSID}
}

var (
	noData     = ModeInfo{Class: ClassNoData}
	speechLost = ModeInfo{Class: ClassSpeechLost}
)

// Frame type tables. Missing indexes are reserved or future frame types and
// are rejected.
var (
	// 3GPP TS 26.101, RFC 4867 table 1
	amrModes = map[Mode]ModeInfo{
		0:  speech(4750, 95),
		1:  speech(5150, 103),
		2:  speech(5900, 118),
		3:  speech(6700, 134),
		4:  speech(7400, 148),
		5:  speech(7950, 159),
		6:  speech(10200, 204),
		7:  speech(12200, 244),
		8:  sid(1800, 39),
		15: noData,
	}

	// 3GPP TS 26.201
	amrwbModes = map[Mode]ModeInfo{
		0:  speech(6600, 132),
		1:  speech(8850, 177),
		2:  speech(12650, 253),
		3:  speech(14250, 285),
		4:  speech(15850, 317),
		5:  speech(18250, 365),
		6:  speech(19850, 397),
		7:  speech(23050, 461),
		8:  speech(23850, 477),
		9:  sid(1750, 40),
		14: speechLost,
		15: noData,
	}

	// 3GPP TS 26.445 table A.4, primary modes
	evsPrimaryModes = map[Mode]ModeInfo{
		0:  speech(2800, 56),
		1:  speech(7200, 144),
		2:  speech(8000, 160),
		3:  speech(9600, 192),
		4:  speech(13200, 264),
		5:  speech(16400, 328),
		6:  speech(24400, 488),
		7:  speech(32000, 640),
		8:  speech(48000, 960),
		9:  speech(64000, 1280),
		10: speech(96000, 1920),
		11: speech(128000, 2560),
		12: sid(2400, 48),
		14: speechLost,
		15: noData,
	}

	// G.722.1 modes index the bit rate; 20 ms frames.
	g7221Modes = map[Mode]ModeInfo{
		0: speech(24000, 480),
		1: speech(32000, 640),
		2: speech(48000, 960),
	}
)

// EVS AMR-WB IO frames carry the AMR-WB bit budget, so the IO table is the
// AMR-WB table.
func modeTable(c Codec, amrwbIO bool) (map[Mode]ModeInfo, bool) {
	switch c {
	case CodecAMR:
		return amrModes, true
	case CodecAMRWB:
		return amrwbModes, true
	case CodecEVS:
		if amrwbIO {
			return amrwbModes, true
		}
		return evsPrimaryModes, true
	case CodecG7221:
		return g7221Modes, true
	}

	return nil, false
}

// HasFixedFrames reports whether the frame size of c is set by a mode table.
// G.711 and G.722 frames are sized by the packetization time instead.
func (c Codec) HasFixedFrames() bool {
	_, ok := modeTable(c, false)
	return ok
}

// LookupMode returns the table entry for mode. It fails with ErrUnknownMode
// for reserved or future frame types.
func LookupMode(c Codec, mode Mode, amrwbIO bool) (ModeInfo, error) {
	if !c.HasFixedFrames() {
		if mode != 0 {
			return ModeInfo{}, fmt.Errorf("%w: %s mode %d", ErrUnknownMode, c, mode)
		}
		return ModeInfo{Class: ClassSpeech, Bytes: -1}, nil
	}

	table, _ := modeTable(c, amrwbIO)
	info, ok := table[mode]
	if !ok {
		return ModeInfo{}, fmt.Errorf("%w: %s mode %d", ErrUnknownMode, c, mode)
	}

	return info, nil
}

// PayloadSize is the number of payload bytes (storage header excluded) of a
// frame of the given mode. It is -1 for codecs without fixed frames.
func PayloadSize(c Codec, mode Mode, amrwbIO bool) (int, error) {
	info, err := LookupMode(c, mode, amrwbIO)
	if err != nil {
		return 0, err
	}
	return info.Bytes, nil
}

func Classify(c Codec, mode Mode, amrwbIO bool) (FrameClass, error) {
	info, err := LookupMode(c, mode, amrwbIO)
	if err != nil {
		return 0, err
	}
	return info.Class, nil
}

// ModeForBitrate finds the speech mode of c with the given bit rate.
func ModeForBitrate(c Codec, bitrate int, amrwbIO bool) (Mode, error) {
	table, ok := modeTable(c, amrwbIO)
	if !ok {
		return 0, fmt.Errorf("%w: %s has no rate modes", ErrUnknownMode, c)
	}
	for m, info := range table {
		if info.Class == ClassSpeech && info.Bitrate == bitrate {
			return m, nil
		}
	}

	return 0, fmt.Errorf("%w: %s at %d bit/s", ErrUnknownMode, c, bitrate)
}

// EVSPrimaryModeBySize maps an EVS payload length to the primary mode with
// exactly that many bytes. EVS compact RTP payloads are recognised this way.
func EVSPrimaryModeBySize(n int) (Mode, bool) {
	for m, info := range evsPrimaryModes {
		if info.Bytes == n && info.Bytes > 0 {
			return m, true
		}
	}
	return 0, false
}
