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

// Package median implements the gliding temporal median filter used to
// denoise time-lapse stacks before flow estimation. The filter smooths
// sensor noise and suppresses fast-moving debris that is not migrating
// tissue, while preserving slow collective motion.
package median

import (
	"errors"
	"fmt"

	"cellflow/internal/ops"
	"cellflow/internal/qsort"
	"cellflow/internal/stack"
)

var (
	// ErrInvalidRange is returned when startFrame >= stopFrame.
	ErrInvalidRange = errors.New("start frame must be smaller than stop frame")
	// ErrWindowTooLarge is returned when the selected frame range holds
	// fewer frames than the median window.
	ErrWindowTooLarge = errors.New("not enough frames selected for median window")
)

// Applies a gliding per-pixel median of window consecutive frames over
// [startFrame, stopFrame). The window advances one frame per output frame,
// so the output holds (stopFrame-startFrame)-(window-1) frames. stopFrame
// clamps to the stack length; 0 or negative selects all remaining frames.
// Even windows average the two central values, odd windows reproduce exact
// input values.
func Filter(in *stack.Stack, startFrame, stopFrame, window int32, c *ops.Context) (*stack.Stack, error) {
	if stopFrame <= 0 || stopFrame > in.Frames {
		stopFrame = in.Frames
	}
	if startFrame < 0 || startFrame >= stopFrame {
		return nil, fmt.Errorf("%w: start %d, stop %d", ErrInvalidRange, startFrame, stopFrame)
	}
	if stopFrame-startFrame < window {
		return nil, fmt.Errorf("%w: %d frames selected, window %d", ErrWindowTooLarge, stopFrame-startFrame, window)
	}

	outFrames := (stopFrame - startFrame) - (window - 1)
	out := stack.New(outFrames, in.Height, in.Width, nil)

	// output frames are independent; fan out across the thread limiter
	err := ops.RunLimited(int(outFrames), c.MaxThreads, func(i int) error {
		frames := make([][]float32, window)
		for w := int32(0); w < window; w++ {
			frames[w] = in.Frame(startFrame + int32(i) + w)
		}
		medianOfFrames(frames, out.Frame(int32(i)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Computes the per-pixel median across the given frames into res.
func medianOfFrames(frames [][]float32, res []float32) {
	gathered := make([]float32, len(frames))
	for i := range res {
		for fi := range frames {
			gathered[fi] = frames[fi][i]
		}
		res[i] = qsort.QSelectMedianFloat32(gathered)
	}
}
