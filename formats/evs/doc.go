// SPDX-License-Identifier: EPL-2.0

// Package evs reads and writes the EVS storage format (3GPP TS 26.445,
// annex A.2.6).
//
// A file is the magic "#!EVS_MC1.0\n", a 32-bit channel description whose
// low four bits hold the channel count, and then frames interleaved channel
// by channel. Each frame is a ToC byte followed by ceil(bitrate/50/8) bytes
// of speech data. Primary and AMR-WB IO frames may be mixed freely; the EVS
// mode bit of the ToC picks the size table.
package evs
