// SPDX-License-Identifier: EPL-2.0

// Package voxframe reads and writes compressed speech: AMR, AMR-WB and EVS
// storage files, rtpdump and pcap captures of RTP streams, and the codec
// handles that turn their frames into PCM.
//
// Open probes a stream, picks the storage format by its magic and decodes
// every channel:
//
//	f, _ := os.Open("call.rtpdump")
//	src, err := voxframe.Open(f, voxframe.Options{})
//	if err != nil {
//		return err
//	}
//	defer src.Close()
//
//	pcm, rate, err := voxframe.ResampleToMono16(src, 8000, 4096)
//
// The subpackages can be used alone:
//   - formats/amr, formats/evs: storage demuxers and writers
//   - formats/rtpdump, formats/pcap: captured RTP streams
//   - payload: RTP payload formats and codec detection
//   - codec: the codec handle registry; codec/g711 and codec/g722 register
//     themselves, AMR needs the opencore build tag
//   - formats/wav, formats/mp3, formats/vorbis, formats/aiff: PCM decoders
//   - audio: frame model, mode tables, resampling and channel mixing
//
// Decoded samples are float32 in [-1, 1], interleaved by channel.
package voxframe
