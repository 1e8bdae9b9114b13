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

package channel

import (
	"cellflow/internal/median"
	"cellflow/internal/ops"
	"cellflow/internal/stack"
)

// Computes the gliding temporal median of the channel's frames and caches
// the result together with the window size that produced it. Subsequent
// calls return the cache; recalculate forces a fresh computation, replacing
// the cache and its window size.
func (c *Channel) TemporalMedian(startFrame, stopFrame, window int32, recalculate bool, ctx *ops.Context) (*stack.Stack, error) {
	if c.median != nil && !recalculate {
		return c.median, nil
	}

	frames, err := c.Frames()
	if err != nil {
		return nil, err
	}
	filtered, err := median.Filter(frames, startFrame, stopFrame, window, ctx)
	if err != nil {
		return nil, err
	}
	filtered.Bits = frames.Bits
	c.median = filtered
	c.medianWindow = window
	return filtered, nil
}

// Returns the window size of the cached temporal median, 0 if none has
// been computed yet.
func (c *Channel) MedianWindow() int32 { return c.medianWindow }
