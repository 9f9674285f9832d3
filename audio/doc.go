// SPDX-License-Identifier: EPL-2.0

// Package audio holds the shared model of the voxframe readers: coded
// frames, the codec mode tables, the format registry and the PCM pipeline.
//
// # Frames
//
// A Demuxer yields Frame values. A frame carries one codec frame as it was
// stored, with its Codec, frame type (Mode), quality flag, channel and
// index. Frame types follow the codec's own numbering:
//
//	AMR-NB   0-7 speech, 8 SID, 15 NO_DATA
//	AMR-WB   0-8 speech, 9 SID, 14 SPEECH_LOST, 15 NO_DATA
//	EVS      0-11 primary or AMR-WB IO rates, 12 SID, 15 NO_DATA
//
// LookupMode, PayloadSize and Classify read those tables. EVS frames carry
// AMRWBIO to select between the two EVS tables.
//
// # Registry
//
// A Registry maps names to FormatDescriptor values and PCM Decoder values:
//
//	reg := audio.NewRegistry()
//	if err := reg.RegisterFormat(amr.Descriptor()); err != nil {
//		return err
//	}
//	desc, ok := reg.Probe(head)
//
// Probe matches the longest magic first. A later registration under the
// same name replaces the earlier one.
//
// # PCM pipeline
//
// Source delivers interleaved float32 samples in [-1, 1]. Resampler and
// MonoMixer wrap a Source and are themselves Sources:
//
//	mono := audio.NewMonoMixer(audio.NewResampler(src, 16000))
//
// ReadSamples returns io.EOF together with the last samples or on the call
// after them.
package audio
