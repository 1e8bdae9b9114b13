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

// Package qsort provides partial selection on float32 slices, used for
// median and percentile extraction without fully sorting the data.
package qsort

// Returns the k-th smallest element of the slice, reordering it in place.
func QSelectFloat32(a []float32, k int) float32 {
	left, right := 0, len(a)-1
	for left < right {
		// median-of-three pivot guards against sorted inputs
		mid := (left + right) >> 1
		if a[mid] < a[left] {
			a[mid], a[left] = a[left], a[mid]
		}
		if a[right] < a[left] {
			a[right], a[left] = a[left], a[right]
		}
		if a[right] < a[mid] {
			a[right], a[mid] = a[mid], a[right]
		}
		pivot := a[mid]

		i, j := left, right
		for i <= j {
			for a[i] < pivot {
				i++
			}
			for a[j] > pivot {
				j--
			}
			if i <= j {
				a[i], a[j] = a[j], a[i]
				i++
				j--
			}
		}
		if k <= j {
			right = j
		} else if k >= i {
			left = i
		} else {
			break
		}
	}
	return a[k]
}

// Returns the median of the slice, reordering it in place. For slices of
// even length, returns the mean of the two central elements.
func QSelectMedianFloat32(a []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	mid := len(a) >> 1
	median := QSelectFloat32(a, mid)
	if len(a)&1 == 0 {
		// lower neighbor is the maximum of the left partition
		lower := a[0]
		for _, v := range a[1:mid] {
			if v > lower {
				lower = v
			}
		}
		median = 0.5 * (median + lower)
	}
	return median
}

// Returns the p-th percentile (0..100) of the slice using linear
// interpolation between closest ranks, reordering the slice in place.
func QSelectPercentileFloat32(a []float32, p float32) float32 {
	if len(a) == 0 {
		return 0
	}
	if len(a) == 1 {
		return a[0]
	}
	rank := p / 100 * float32(len(a)-1)
	lo := int(rank)
	if lo >= len(a)-1 {
		return QSelectFloat32(a, len(a)-1)
	}
	frac := rank - float32(lo)
	vHi := QSelectFloat32(a, lo+1)
	// maximum of the left partition is the lower closest rank
	vLo := a[0]
	for _, v := range a[1 : lo+1] {
		if v > vLo {
			vLo = v
		}
	}
	return vLo + frac*(vHi-vLo)
}
