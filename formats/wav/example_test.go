// SPDX-License-Identifier: EPL-2.0

package wav_test

import (
	"bytes"
	"fmt"

	"github.com/ik5/voxframe/formats/wav"
)

func ExampleDecoder() {
	var file bytes.Buffer
	_ = wav.WriteWAV16(&file, 8000, []int16{0, 16384, -16384, -32768})

	src, err := wav.Decoder{}.Decode(&file)
	if err != nil {
		fmt.Println(err)
		return
	}

	buf := make([]float32, 8)
	n, _ := src.ReadSamples(buf)
	fmt.Println(src.SampleRate(), src.Channels(), buf[:n])
	// Output: 8000 1 [0 0.5 -0.5 -1]
}
