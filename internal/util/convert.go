// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import "math"

// ToInt converts an int64 to int, reporting whether the value fits.
func ToInt(v int64) (int, bool) {
	if v < math.MinInt || v > math.MaxInt {
		return 0, false
	}
	return int(v), true
}

// MBToBytes converts a megabyte count to bytes. Negative counts clamp to
// zero; counts that would overflow int64 clamp to MaxInt64.
func MBToBytes(mb int) int64 {
	if mb <= 0 {
		return 0
	}
	const mib = int64(1 << 20)
	if int64(mb) > math.MaxInt64/mib {
		return math.MaxInt64
	}
	return int64(mb) * mib
}
