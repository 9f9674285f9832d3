// SPDX-License-Identifier: EPL-2.0

package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/ik5/voxframe/audio"
	"github.com/ik5/voxframe/utils"
)

// Writer streams 16-bit PCM into a WAV file. The header sizes are patched
// on Close, so the destination must seek.
type Writer struct {
	enc *wav.Encoder
	buf *goaudio.IntBuffer
}

func NewWriter(ws io.WriteSeeker, sampleRate, channels int) (*Writer, error) {
	if sampleRate <= 0 || channels < 1 {
		return nil, fmt.Errorf("wav: %d Hz with %d channels", sampleRate, channels)
	}
	return &Writer{
		enc: wav.NewEncoder(ws, sampleRate, 16, channels, formatPCM),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
			SourceBitDepth: 16,
		},
	}, nil
}

// WriteInt16 appends interleaved samples.
func (w *Writer) WriteInt16(samples []int16) error {
	w.buf.Data = w.buf.Data[:0]
	for _, s := range samples {
		w.buf.Data = append(w.buf.Data, int(s))
	}
	return w.write()
}

// WriteFloat32 appends interleaved samples in [-1, 1].
func (w *Writer) WriteFloat32(samples []float32) error {
	w.buf.Data = w.buf.Data[:0]
	for _, s := range samples {
		w.buf.Data = append(w.buf.Data, int(utils.Float32ToInt16(s)))
	}
	return w.write()
}

func (w *Writer) write() error {
	if err := w.enc.Write(w.buf); err != nil {
		return fmt.Errorf("wav: %w", err)
	}
	return nil
}

// Close finishes the header. It does not close the destination.
func (w *Writer) Close() error {
	if err := w.enc.Close(); err != nil {
		return fmt.Errorf("wav: %w", err)
	}
	return nil
}

// Encode drains src into a new WAV file on ws and returns the number of
// samples written.
func Encode(ws io.WriteSeeker, src audio.Source) (int, error) {
	w, err := NewWriter(ws, src.SampleRate(), src.Channels())
	if err != nil {
		return 0, err
	}

	buf := make([]float32, max(src.BufSize(), 1024)/src.Channels()*src.Channels())
	total := 0
	for {
		n, err := src.ReadSamples(buf)
		if n > 0 {
			if werr := w.WriteFloat32(buf[:n]); werr != nil {
				return total, werr
			}
			total += n
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return total, err
		}
	}
	return total, w.Close()
}

// WriteWAV16 writes a complete mono 16-bit PCM WAV to a plain writer.
func WriteWAV16(w io.Writer, sampleRate int, samples []int16) error {
	dataSize := uint32(len(samples) * 2)

	buf := make([]byte, 0, 44+dataSize)
	buf = append(buf, "RIFF"...)
	buf = binary.LittleEndian.AppendUint32(buf, 36+dataSize)
	buf = append(buf, "WAVEfmt "...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, formatPCM)
	buf = binary.LittleEndian.AppendUint16(buf, 1)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(sampleRate))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(sampleRate)*2)
	buf = binary.LittleEndian.AppendUint16(buf, 2)
	buf = binary.LittleEndian.AppendUint16(buf, 16)
	buf = append(buf, "data"...)
	buf = binary.LittleEndian.AppendUint32(buf, dataSize)
	for _, s := range samples {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(s))
	}

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("wav: %w", err)
	}
	return nil
}
