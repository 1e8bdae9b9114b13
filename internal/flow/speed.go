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

package flow

import (
	"errors"
	"fmt"
	"math"

	"cellflow/internal/stack"
)

// ErrNoFlow is returned when speed conversion is requested before any
// displacement field has been computed.
var ErrNoFlow = errors.New("no flow computed")

// Returns the scalar converting displacement in px/frame to speed in
// um/min: um/px * frames/min.
func Scaler(pixelSizeUm, fintervalMs float64) float64 {
	return pixelSizeUm * 60000 / fintervalMs
}

// Options for speed conversion.
type SpeedOptions struct {
	Histogram bool // per-frame density histograms
	Average   bool // per-frame spatial mean speeds
	Bins      int  // histogram buckets, 10 if zero
	// Histogram range; defaults to (0, maximum speed observed across the
	// whole map), so every frame shares the same bucket edges.
	HistMin, HistMax float32
	HistRangeSet     bool
}

// Per-pixel physical speeds derived from a displacement field, with
// optional per-frame histograms and means.
type SpeedMap struct {
	*stack.Stack // (pairs, height, width), um/min

	Scaler float64 // the px/frame -> um/min factor the map was built with

	Histograms [][]float32 // per frame: density per bucket, nil unless requested
	BinEdges   []float32   // len Bins+1, shared by all frames
	AvgSpeeds  []float32   // per-frame spatial mean, nil unless requested
}

// Converts a displacement field to per-pixel speeds: the Euclidean norm of
// each (dx, dy) vector scaled by scaler. Optionally accumulates per-frame
// density histograms over shared bucket edges and per-frame mean speeds.
func ToSpeed(f *Field, scaler float64, opt SpeedOptions) (*SpeedMap, error) {
	if f == nil || len(f.Data) == 0 {
		return nil, ErrNoFlow
	}

	out := &SpeedMap{
		Stack:  stack.New(f.Pairs, f.Height, f.Width, nil),
		Scaler: scaler,
	}
	s := float32(scaler)
	for i := range out.Data {
		dx, dy := f.Data[2*i], f.Data[2*i+1]
		out.Data[i] = float32(math.Sqrt(float64(dx*dx+dy*dy))) * s
	}

	if opt.Histogram {
		if err := out.computeHistograms(opt); err != nil {
			return nil, err
		}
	}
	if opt.Average {
		out.AvgSpeeds = make([]float32, out.Frames)
		n := float32(out.FramePixels())
		for t := int32(0); t < out.Frames; t++ {
			sum := float32(0)
			for _, v := range out.Frame(t) {
				sum += v
			}
			out.AvgSpeeds[t] = sum / n
		}
	}
	return out, nil
}

// Accumulates one density histogram per frame. The range defaults to
// (0, global maximum speed), computed once for the whole map rather than
// per frame, so that a single long-tail frame determines binning for all
// frames and bucket edges stay comparable across the series.
func (m *SpeedMap) computeHistograms(opt SpeedOptions) error {
	bins := opt.Bins
	if bins <= 0 {
		bins = 10
	}
	lo, hi := opt.HistMin, opt.HistMax
	if !opt.HistRangeSet {
		lo = 0
		_, hi = m.MinMax()
	}
	if hi <= lo {
		return fmt.Errorf("empty histogram range (%g, %g)", lo, hi)
	}

	m.BinEdges = make([]float32, bins+1)
	binWidth := (hi - lo) / float32(bins)
	for i := range m.BinEdges {
		m.BinEdges[i] = lo + float32(i)*binWidth
	}

	m.Histograms = make([][]float32, m.Frames)
	counts := make([]int, bins)
	for t := int32(0); t < m.Frames; t++ {
		for i := range counts {
			counts[i] = 0
		}
		total := 0
		for _, v := range m.Frame(t) {
			if v < lo || v > hi {
				continue
			}
			idx := int((v - lo) / binWidth)
			if idx >= bins { // the top edge belongs to the last bucket
				idx = bins - 1
			}
			counts[idx]++
			total++
		}

		hist := make([]float32, bins)
		if total > 0 {
			norm := 1 / (float32(total) * binWidth)
			for i, n := range counts {
				hist[i] = float32(n) * norm
			}
		}
		m.Histograms[t] = hist
	}
	return nil
}
