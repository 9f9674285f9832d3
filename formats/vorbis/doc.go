// SPDX-License-Identifier: EPL-2.0

// Package vorbis decodes Ogg Vorbis with github.com/jfreymuth/oggvorbis.
// Samples come out as the library produces them: interleaved float32 in
// [-1, 1], any channel count.
package vorbis
