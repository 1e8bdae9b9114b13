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

package qsort

import (
	"math"
	"testing"

	"github.com/valyala/fastrand"
)

func TestMedian(t *testing.T) {
	rng := fastrand.RNG{}
	for i := 1; i < 1000; i++ {
		// prepare array of given length with a random permutation of 1..n
		arr := make([]float32, i)
		for j := 0; j < len(arr); j++ {
			arr[j] = float32(j + 1)
		}
		for j := 0; j < len(arr); j++ {
			k := rng.Uint32n(uint32(len(arr)))
			arr[j], arr[k] = arr[k], arr[j]
		}

		// calculate expected result
		var expect float32
		if (i & 1) != 0 {
			expect = float32((i + 1) / 2)
		} else {
			expect = 0.5 * (float32(i/2) + float32(i/2+1))
		}

		// calculate actual result and compare
		res := QSelectMedianFloat32(arr)
		if res != expect {
			t.Logf("median(1..%d) got %f expect %f\n", i, res, expect)
			t.Fail()
		}
	}
}

func TestSelect(t *testing.T) {
	rng := fastrand.RNG{}
	for n := 2; n < 200; n++ {
		arr := make([]float32, n)
		for j := 0; j < len(arr); j++ {
			arr[j] = float32(j + 1)
		}
		for j := 0; j < len(arr); j++ {
			k := rng.Uint32n(uint32(len(arr)))
			arr[j], arr[k] = arr[k], arr[j]
		}

		k := int(rng.Uint32n(uint32(n)))
		if res := QSelectFloat32(arr, k); res != float32(k+1) {
			t.Errorf("select(1..%d, %d) got %f expect %d", n, k, res, k+1)
		}
	}
}

func TestPercentile(t *testing.T) {
	// percentiles of 1..101 are exact at integer ranks
	arr := make([]float32, 101)
	rng := fastrand.RNG{}
	for j := 0; j < len(arr); j++ {
		arr[j] = float32(j + 1)
	}
	for j := 0; j < len(arr); j++ {
		k := rng.Uint32n(uint32(len(arr)))
		arr[j], arr[k] = arr[k], arr[j]
	}

	for _, p := range []float32{0, 25, 50, 75, 100} {
		res := QSelectPercentileFloat32(arr, p)
		expect := p + 1
		if math.Abs(float64(res-expect)) > 1e-5 {
			t.Errorf("percentile(1..101, %.0f) got %f expect %f", p, res, expect)
		}
	}

	// interpolation between closest ranks
	vals := []float32{4, 1, 3, 2}
	if res := QSelectPercentileFloat32(vals, 50); math.Abs(float64(res-2.5)) > 1e-5 {
		t.Errorf("percentile(1..4, 50) got %f expect 2.5", res)
	}
}
