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

// Package draw renders displacement fields as glyph overlays on top of
// the filtered image stack: short line segments on a regular grid, each
// scaled from the local flow vector, plus an optional scale bar.
package draw

import (
	"fmt"

	"cellflow/internal/flow"
	"cellflow/internal/stack"
)

// An 8-bit grayscale frame sequence, the rendered overlay output.
type Gray8 struct {
	Frames int32
	Height int32
	Width  int32
	Data   []uint8 // frame-major, rows width-major
}

func NewGray8(frames, height, width int32) *Gray8 {
	return &Gray8{
		Frames: frames,
		Height: height,
		Width:  width,
		Data:   make([]uint8, int(frames)*int(height)*int(width)),
	}
}

// Returns the data of frame t as a subslice, without copying.
func (g *Gray8) Frame(t int32) []uint8 {
	n := int(g.Height) * int(g.Width)
	return g.Data[int(t)*n : (int(t)+1)*n]
}

// Overlay rendering options.
type Options struct {
	Step          int32   // glyph grid spacing in pixels
	ArrowScale    float32 // multiplier from flow vector to segment length
	LineThickness int32

	ScaleBar         bool
	ScaleBarPhysical float64 // physical length the bar represents, e.g. 1 um/min
	Scaler           float64 // px/frame -> physical units factor of the run

	// Percentile clipped from each tail during 8-bit normalization
	LowPcClip  float32
	HighPcClip float32
}

func DefaultOptions() Options {
	return Options{
		Step:             15,
		ArrowScale:       20,
		LineThickness:    2,
		ScaleBarPhysical: 1,
		LowPcClip:        0.175,
		HighPcClip:       0.175,
	}
}

// Scale bar inset from the bottom right corner, and bar thickness.
const (
	barInsetX    = 32
	barInsetY    = 50
	barThickness = 5
	overlayValue = 255
)

// Returns the pixel length of a scale bar representing the given physical
// length: the length a glyph would have if the local speed equalled
// barPhysical per unit time.
func ScaleBarPx(arrowScale float32, barPhysical, scaler float64) int32 {
	return int32(float64(arrowScale) * barPhysical / scaler)
}

// Renders one overlay frame per displacement field pair on top of the
// background stack. The background is contrast-stretched to 8 bit unless
// its source was already 8-bit data.
func Overlay(f *flow.Field, bg *stack.Stack, opt Options) (*Gray8, error) {
	if bg.Frames < f.Pairs {
		return nil, fmt.Errorf("background has %d frames, flow needs %d", bg.Frames, f.Pairs)
	}
	if bg.Height != f.Height || bg.Width != f.Width {
		return nil, fmt.Errorf("background %dx%d does not match flow %dx%d",
			bg.Width, bg.Height, f.Width, f.Height)
	}

	var norm *Gray8
	if bg.Bits == 8 {
		norm = Clip8Bit(bg)
	} else {
		norm = Normalize8Bit(bg, opt.LowPcClip, opt.HighPcClip)
	}

	out := NewGray8(f.Pairs, f.Height, f.Width)
	var barPx int32
	if opt.ScaleBar {
		barPx = ScaleBarPx(opt.ArrowScale, opt.ScaleBarPhysical, opt.Scaler)
	}

	for t := int32(0); t < f.Pairs; t++ {
		frame := out.Frame(t)
		copy(frame, norm.Frame(t))
		drawGlyphs(frame, f, t, opt)
		if opt.ScaleBar {
			drawScaleBar(frame, f.Height, f.Width, barPx)
		}
	}
	return out, nil
}

// Draws one line segment per grid point, from the point along the local
// flow vector scaled by ArrowScale.
func drawGlyphs(frame []uint8, f *flow.Field, t int32, opt Options) {
	for y := opt.Step / 2; y < f.Height; y += opt.Step {
		for x := opt.Step / 2; x < f.Width; x += opt.Step {
			dx, dy := f.At(t, y, x)
			x1 := int32(float32(x) + dx*opt.ArrowScale + 0.5)
			y1 := int32(float32(y) + dy*opt.ArrowScale + 0.5)
			drawLine(frame, f.Height, f.Width, x, y, x1, y1, opt.LineThickness)
		}
	}
}

// Draws a horizontal scale bar near the bottom right corner.
func drawScaleBar(frame []uint8, height, width, lengthPx int32) {
	fromX := width - barInsetX
	y := height - barInsetY
	drawLine(frame, height, width, fromX, y, fromX-lengthPx, y, barThickness)
}

// Bresenham line with square pen of the given thickness, clipped to the
// frame bounds.
func drawLine(frame []uint8, height, width, x0, y0, x1, y1, thickness int32) {
	dx := x1 - x0
	if dx < 0 {
		dx = -dx
	}
	dy := y1 - y0
	if dy < 0 {
		dy = -dy
	}
	sx, sy := int32(1), int32(1)
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx - dy

	for {
		stamp(frame, height, width, x0, y0, thickness)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

func stamp(frame []uint8, height, width, x, y, thickness int32) {
	r := thickness / 2
	for yy := y - r; yy <= y+r; yy++ {
		if yy < 0 || yy >= height {
			continue
		}
		for xx := x - r; xx <= x+r; xx++ {
			if xx < 0 || xx >= width {
				continue
			}
			frame[yy*width+xx] = overlayValue
		}
	}
}
