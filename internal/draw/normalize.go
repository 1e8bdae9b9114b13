// Copyright (C) 2026 The cellflow authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package draw

import (
	"cellflow/internal/qsort"
	"cellflow/internal/stack"
)

// Contrast-stretches a stack to 8-bit range: clips lowPc percent of pixels
// at the low tail and highPc percent at the high tail, then rescales
// linearly to [0,255]. Clip points are computed across the whole stack and
// truncated to integers, matching the historical output of this analysis.
func Normalize8Bit(s *stack.Stack, lowPc, highPc float32) *Gray8 {
	scratch := append([]float32(nil), s.Data...)
	low := float32(int32(qsort.QSelectPercentileFloat32(scratch, lowPc)))
	high := float32(int32(qsort.QSelectPercentileFloat32(scratch, 100-highPc)))

	out := NewGray8(s.Frames, s.Height, s.Width)
	if high <= low {
		return out
	}
	scale := 255 / (high - low)
	for i, v := range s.Data {
		switch {
		case v <= low:
			out.Data[i] = 0
		case v >= high:
			out.Data[i] = 255
		default:
			out.Data[i] = uint8((v-low)*scale + 0.5)
		}
	}
	return out
}

// Converts a stack whose source data is already 8-bit, clamping without
// rescaling.
func Clip8Bit(s *stack.Stack) *Gray8 {
	out := NewGray8(s.Frames, s.Height, s.Width)
	for i, v := range s.Data {
		switch {
		case v <= 0:
			out.Data[i] = 0
		case v >= 255:
			out.Data[i] = 255
		default:
			out.Data[i] = uint8(v + 0.5)
		}
	}
	return out
}
