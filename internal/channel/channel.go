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

// Package channel extracts a single (channel, slice) time series from a
// Micro-Manager acquisition and reconciles its acquisition metadata with
// the timestamps actually recorded per frame.
package channel

import (
	"errors"
	"fmt"
	"io"

	"gonum.org/v1/gonum/stat"

	"cellflow/internal/mmtiff"
	"cellflow/internal/stack"
)

// ErrNoMatchingPages is returned when a file contains no pages for the
// requested channel and slice indices.
var ErrNoMatchingPages = errors.New("no pages match requested channel and slice")

// Default relative tolerance for the frame interval sanity check.
const DefaultIntervalTolerance = 0.01

// A single (channel, slice) time series from one acquisition file. Pixel
// size and intended frame interval are read once at construction; the
// intended interval changes only through an explicit override after
// reconciliation. Frame and median arrays are computed lazily and cached.
type Channel struct {
	Index      int32
	SliceIndex int32
	Name       string

	PixelSizeUm float64
	FIntervalMs float64 // intended frame interval from the acquisition settings
	ElapsedMs   []float64

	file  *mmtiff.File
	pages []*mmtiff.Page

	frames *stack.Stack // nil until materialized

	median       *stack.Stack // nil until computed
	medianWindow int32        // window size the cached median was computed with
}

// Extracts the channel with the given channel and slice index from an
// opened file. Retains page references and elapsed timestamps; pixel data
// stays on disk until Frames is called.
func New(f *mmtiff.File, chIndex, sliceIndex int32, name string) (*Channel, error) {
	pixelSizeUm, fintervalMs, err := ResolveAcquisitionParams(f)
	if err != nil {
		return nil, err
	}

	c := &Channel{
		Index:       chIndex,
		SliceIndex:  sliceIndex,
		Name:        name,
		PixelSizeUm: pixelSizeUm,
		FIntervalMs: fintervalMs,
		file:        f,
	}

	slices, channels := f.SliceChannelMaps()
	for i, p := range f.Pages {
		if slices[i] == sliceIndex && channels[i] == chIndex {
			c.pages = append(c.pages, p)
			c.ElapsedMs = append(c.ElapsedMs, p.ElapsedMs)
		}
	}
	if len(c.pages) == 0 {
		return nil, fmt.Errorf("%w: channel %d slice %d", ErrNoMatchingPages, chIndex, sliceIndex)
	}
	return c, nil
}

// Returns the number of frames in the channel.
func (c *Channel) NumFrames() int32 { return int32(len(c.pages)) }

// Materializes the channel into a (frames, height, width) stack, decoding
// each retained page in order. The result is cached; use Reload to force
// a fresh decode.
func (c *Channel) Frames() (*stack.Stack, error) {
	if c.frames != nil {
		return c.frames, nil
	}
	return c.Reload()
}

// Decodes all pages again, replacing the cached frame stack.
func (c *Channel) Reload() (*stack.Stack, error) {
	first := c.pages[0]
	s := stack.New(int32(len(c.pages)), first.Height, first.Width, nil)
	s.Bits = first.Bits

	n := s.FramePixels()
	for i, p := range c.pages {
		data, err := p.Float32()
		if err != nil {
			return nil, fmt.Errorf("channel %s frame %d: %w", c.Name, i, err)
		}
		copy(s.Data[i*n:(i+1)*n], data)
	}
	c.frames = s
	return s, nil
}

// Returns the intervals between consecutive frames in ms. Returns nil for
// a single-frame channel; that is a valid terminal case, not an error.
func (c *Channel) ActualFrameIntervalsMs() []float64 {
	if len(c.ElapsedMs) < 2 {
		return nil
	}
	out := make([]float64, len(c.ElapsedMs)-1)
	for i := range out {
		out[i] = c.ElapsedMs[i+1] - c.ElapsedMs[i]
	}
	return out
}

// Returns mean and standard deviation of the actual frame intervals in ms.
func (c *Channel) IntervalStats() (mean, stdDev float64) {
	deltas := c.ActualFrameIntervalsMs()
	if deltas == nil {
		return 0, 0
	}
	return stat.Mean(deltas, nil), stat.StdDev(deltas, nil)
}

// Checks whether the intended frame interval matches the actual mean
// interval within the given relative tolerance. known is false for
// single-frame channels, where the check is undefined.
func (c *Channel) FrameIntervalOK(tolerance float64) (ok, known bool) {
	deltas := c.ActualFrameIntervalsMs()
	if deltas == nil {
		return false, false
	}
	fract := stat.Mean(deltas, nil) / c.FIntervalMs
	return fract > 1-tolerance && fract < 1+tolerance, true
}

// Validates the intended frame interval against the recorded timestamps
// and returns the interval to use downstream. When the divergence exceeds
// the tolerance, the actual mean interval replaces the intended one and
// the substitution is logged. The channel itself is not modified; adopt
// the correction with OverrideInterval.
func (c *Channel) ReconcileInterval(tolerance float64, log io.Writer) (fintervalMs float64, replaced bool) {
	ok, known := c.FrameIntervalOK(tolerance)
	if !known || ok {
		return c.FIntervalMs, false
	}

	mean, stdDev := c.IntervalStats()
	fmt.Fprintf(log, "%s: intended frame interval %.2f ms diverges from actual %.2f ms (sd %.2f) beyond %.1f%%, using actual\n",
		c.Name, c.FIntervalMs, mean, stdDev, tolerance*100)
	return mean, true
}

// Replaces the intended frame interval with an explicitly chosen value,
// typically the reconciled one. Any scale factor derived from the old
// interval must be recomputed by the caller.
func (c *Channel) OverrideInterval(fintervalMs float64) {
	c.FIntervalMs = fintervalMs
}
