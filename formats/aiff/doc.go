// SPDX-License-Identifier: EPL-2.0

// Package aiff decodes AIFF files with github.com/go-audio/aiff.
//
// AIFF chunks are located by seeking; readers that cannot seek are buffered
// in memory. Samples come out as interleaved float32 in [-1, 1].
package aiff
