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

// Package flow estimates dense optical flow between consecutive frames of
// a filtered time-lapse stack, and converts the resulting displacement
// fields to physical speeds. The flow solver itself is an external
// collaborator behind the Estimator interface.
package flow

import (
	"fmt"
	"sync"

	"cellflow/internal/ops"
	"cellflow/internal/stack"
)

// Parameters for the Farnebäck dense flow solver.
type Params struct {
	PyrScale   float64 `json:"pyrScale"`   // pyramid downscale ratio
	Levels     int     `json:"levels"`     // pyramid levels
	WinSize    int     `json:"winSize"`    // averaging window size
	Iterations int     `json:"iterations"` // iterations per pyramid level
	PolyN      int     `json:"polyN"`      // polynomial expansion neighborhood
	PolySigma  float64 `json:"polySigma"`  // polynomial expansion smoothing sigma
	Flags      int     `json:"flags"`      // solver variant flags
}

// The defaults used for cell monolayer migration at 10-20x magnification.
func DefaultParams() Params {
	return Params{
		PyrScale:   0.5,
		Levels:     3,
		WinSize:    15,
		Iterations: 3,
		PolyN:      5,
		PolySigma:  1.2,
		Flags:      0,
	}
}

// A dense optical flow solver for one frame pair. Implementations return
// the per-pixel displacement from prev to next as an interleaved (dx, dy)
// slice of length 2*width*height, in pixels per frame. Must be
// deterministic given identical inputs and configuration.
type Estimator interface {
	EstimatePair(prev, next []float32, width, height int32, p Params) ([]float32, error)
}

// A per-pair displacement field: one (dx, dy) vector per pixel for each
// consecutive frame pair of the source stack, in pixels per frame.
// Immutable once computed.
type Field struct {
	Pairs  int32 // one fewer than the source stack's frame count
	Height int32
	Width  int32

	Data []float32 // interleaved dx, dy; len = Pairs*Height*Width*2
}

// Returns the interleaved (dx, dy) data of pair t without copying.
func (f *Field) Pair(t int32) []float32 {
	n := int(f.Height) * int(f.Width) * 2
	return f.Data[int(t)*n : (int(t)+1)*n]
}

// Returns the displacement vector at pair t, row y, column x.
func (f *Field) At(t, y, x int32) (dx, dy float32) {
	i := ((int(t)*int(f.Height)+int(y))*int(f.Width) + int(x)) * 2
	return f.Data[i], f.Data[i+1]
}

// Computes one displacement field per consecutive frame pair of the
// filtered stack. Pairs are independent and fan out across the context's
// thread limiter, each writing a disjoint slice of the output. Fractional
// progress is reported after each completed pair; reporting never alters
// results.
func Compute(in *stack.Stack, est Estimator, p Params, c *ops.Context) (*Field, error) {
	if in.Frames < 2 {
		return nil, fmt.Errorf("flow needs at least 2 frames, have %d", in.Frames)
	}
	pairs := in.Frames - 1
	field := &Field{
		Pairs:  pairs,
		Height: in.Height,
		Width:  in.Width,
		Data:   make([]float32, int(pairs)*in.FramePixels()*2),
	}

	// each in-flight pair holds its displacement buffer plus the solver's
	// pyramids and expansion planes, a small multiple of the frame size
	perPair := int64(in.FramePixels()) * 4 * 8

	var mu sync.Mutex
	done := int32(0)
	err := ops.RunLimited(int(pairs), c.LimitThreads(perPair), func(i int) error {
		uv, err := est.EstimatePair(in.Frame(int32(i)), in.Frame(int32(i)+1), in.Width, in.Height, p)
		if err != nil {
			return fmt.Errorf("flow pair %d: %w", i, err)
		}
		if len(uv) != in.FramePixels()*2 {
			return fmt.Errorf("flow pair %d: estimator returned %d values, want %d", i, len(uv), in.FramePixels()*2)
		}
		copy(field.Pair(int32(i)), uv)

		mu.Lock()
		done++
		percent := 100 * float32(done) / float32(pairs)
		fmt.Fprintf(c.Log, "flow progress: %.2f %%\n", percent)
		c.Progress(percent)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return field, nil
}
