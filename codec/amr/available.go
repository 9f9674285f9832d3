// SPDX-License-Identifier: EPL-2.0

//go:build !opencore || !cgo

package amr

// Available reports whether the opencore binding is compiled in.
const Available = false
