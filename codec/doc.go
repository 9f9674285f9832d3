// SPDX-License-Identifier: EPL-2.0

// Package codec puts validated handles in front of native codec
// implementations.
//
// A Library wraps one native implementation (opencore-amr, an EVS build,
// zaf/g711, ...). It is registered once, initialised on the first Open and
// never again, and hands out one Transform per handle. Decoder and Encoder
// check every frame against the mode tables of package audio before the
// transform sees it, and check what the transform returns afterwards:
//
//	dec, err := codec.Open(codec.Config{Codec: audio.CodecPCMU})
//	if err != nil {
//		return err
//	}
//	defer dec.Close()
//
//	pcm, err := dec.Decode(frame)
//
// Rejected input (ErrUnsupportedMode, ErrSizeMismatch) leaves the handle
// usable. A transform failure (ErrInternalCodecFailure) does not.
package codec
