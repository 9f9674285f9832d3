// SPDX-License-Identifier: EPL-2.0

package evs_test

import (
	"bytes"
	"fmt"

	"github.com/ik5/voxframe/audio"
	"github.com/ik5/voxframe/formats/evs"
)

// Example_stereo reads one time slot of a two-channel EVS file.
func Example_stereo() {
	var file bytes.Buffer
	w, _ := evs.NewWriter(&file, 2)
	w.WriteFrame(audio.Frame{Codec: audio.CodecEVS, Mode: 4, Channel: 0, Payload: make([]byte, 33)})
	w.WriteFrame(audio.Frame{Codec: audio.CodecEVS, Mode: 2, AMRWBIO: true, Quality: true, Channel: 1, Payload: make([]byte, 32)})

	d, _ := evs.Open(&file)
	slot, err := d.NextSlot()
	if err != nil {
		fmt.Println(err)
		return
	}
	for _, f := range slot {
		info, _ := audio.LookupMode(f.Codec, f.Mode, f.AMRWBIO)
		fmt.Printf("channel %d: %d bit/s, io=%v, %d bytes\n", f.Channel, info.Bitrate, f.AMRWBIO, len(f.Payload))
	}
	// Output:
	// channel 0: 13200 bit/s, io=false, 33 bytes
	// channel 1: 12650 bit/s, io=true, 32 bytes
}
