// SPDX-License-Identifier: EPL-2.0

package bitstream

import "errors"

var (
	ErrOutOfRange = errors.New("bitstream: position out of range")
)
