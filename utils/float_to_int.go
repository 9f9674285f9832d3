// SPDX-License-Identifier: EPL-2.0

package utils

// Float32ToInt16 clamps x to [-1, 1] and scales it so that -1 maps to -32768
// and 1 to 32767. Int16ToFloat32 followed by Float32ToInt16 is lossless.
func Float32ToInt16(x float32) int16 {
	switch {
	case x >= 1:
		return 32767
	case x <= -1:
		return -32768
	}
	return int16(x * 32768)
}

// Int16ToFloat32 scales a sample to [-1, 1).
func Int16ToFloat32(s int16) float32 {
	return float32(s) / 32768
}
