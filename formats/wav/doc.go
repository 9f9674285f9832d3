// SPDX-License-Identifier: EPL-2.0

// Package wav reads and writes PCM WAV files with github.com/go-audio/wav.
//
// The Decoder accepts 8, 16, 24 and 32-bit integer PCM with any channel
// count and returns an audio.Source of float32 samples. Writer and Encode
// produce 16-bit files; they patch the header on Close and need an
// io.WriteSeeker such as *os.File. WriteWAV16 writes a whole mono buffer to
// any io.Writer.
//
//	f, _ := os.Create("call.wav")
//	defer f.Close()
//	n, err := wav.Encode(f, src)
package wav
