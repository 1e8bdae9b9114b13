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
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"

	"cellflow/internal/flow"
)

// Renders one pair of a displacement field as a direction-coded RGB frame:
// hue encodes flow direction on the color wheel, brightness encodes
// magnitude relative to the frame maximum. Returns interleaved RGB bytes
// of length 3*width*height. Useful as a quick visual sanity check of the
// solver output.
func DirectionFrame(f *flow.Field, t int32) []uint8 {
	pair := f.Pair(t)
	numPixels := int(f.Height) * int(f.Width)

	maxMag := float64(0)
	mags := make([]float64, numPixels)
	for i := 0; i < numPixels; i++ {
		dx, dy := float64(pair[2*i]), float64(pair[2*i+1])
		mags[i] = math.Sqrt(dx*dx + dy*dy)
		if mags[i] > maxMag {
			maxMag = mags[i]
		}
	}

	out := make([]uint8, 3*numPixels)
	if maxMag == 0 {
		return out
	}
	for i := 0; i < numPixels; i++ {
		dx, dy := float64(pair[2*i]), float64(pair[2*i+1])
		hue := math.Atan2(dy, dx) * 180 / math.Pi
		if hue < 0 {
			hue += 360
		}
		r, g, b := colorful.Hsv(hue, 1, mags[i]/maxMag).RGB255()
		out[3*i], out[3*i+1], out[3*i+2] = r, g, b
	}
	return out
}
