// SPDX-License-Identifier: EPL-2.0

// Package payload converts RTP payloads to storage frames and back.
//
// Supported payload formats:
//   - AMR and AMR-WB (RFC 4867), octet-aligned and bandwidth-efficient,
//     several frames per packet; no interleaving, no frame CRC
//   - EVS (3GPP TS 26.445 annex A), compact and header-full, AMR-WB IO
//   - PCMU, PCMA and G.722 (RFC 3551), one frame per packet
//   - G.722.1 (RFC 5577), several fixed-size frames per packet
//
// The Detector guesses the codec of dynamic payload types from packet
// sizes and timestamp steps, using the features in codecs.yaml or a file
// loaded with LoadFeatures.
package payload
