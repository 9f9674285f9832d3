// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"errors"
	"fmt"
	"io"

	"github.com/ik5/voxframe/utils"
)

// ResampleToMono16 drains src through a Resampler and a MonoMixer and
// returns the result as 16-bit PCM at targetRate. bufferSize is the read
// size in samples.
func ResampleToMono16(src Source, targetRate int, bufferSize int) ([]int16, int, error) {
	if targetRate <= 0 || bufferSize <= 0 {
		return nil, targetRate, fmt.Errorf("resample: rate %d, buffer %d", targetRate, bufferSize)
	}
	mono := NewMonoMixer(NewResampler(src, targetRate))

	var pcm16 []int16
	buf := make([]float32, bufferSize)
	for {
		n, err := mono.ReadSamples(buf)
		for _, s := range buf[:n] {
			pcm16 = append(pcm16, utils.Float32ToInt16(s))
		}

		if errors.Is(err, io.EOF) {
			return pcm16, targetRate, nil
		}
		if err != nil {
			return nil, targetRate, fmt.Errorf("resample: %w", err)
		}
	}
}
