// SPDX-License-Identifier: EPL-2.0

// Package mp3 decodes MPEG-1/2 Layer III with github.com/hajimehoshi/go-mp3.
//
// go-mp3 always produces 16-bit stereo, so every source has two channels;
// wrap it in audio.NewMonoMixer for mono input to the encoders.
package mp3
