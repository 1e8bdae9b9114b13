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

// Package stack provides the in-memory representation of a time-lapse
// image stack: a flat float32 array of shape (frames, height, width),
// frame-major, rows within a frame stored width-major.
package stack

import (
	"fmt"
)

// A time-lapse image stack. Pixel values are float32 regardless of the
// acquisition bit depth; Bits records the source depth so that consumers
// can skip redundant normalization of data that is already 8-bit.
type Stack struct {
	Frames int32 // number of time points
	Height int32
	Width  int32
	Bits   int32 // bits per sample in the source data, 0 if synthetic

	Data []float32 // len = Frames*Height*Width
}

// Creates a stack of the given dimensions. Data is allocated if nil,
// adopted without copying otherwise.
func New(frames, height, width int32, data []float32) *Stack {
	if data == nil {
		data = make([]float32, int(frames)*int(height)*int(width))
	}
	return &Stack{
		Frames: frames,
		Height: height,
		Width:  width,
		Data:   data,
	}
}

// Returns the number of pixels in one frame.
func (s *Stack) FramePixels() int { return int(s.Height) * int(s.Width) }

// Returns the data of frame t as a subslice, without copying.
func (s *Stack) Frame(t int32) []float32 {
	n := s.FramePixels()
	return s.Data[int(t)*n : (int(t)+1)*n]
}

// Returns the minimum and maximum pixel value across the whole stack.
func (s *Stack) MinMax() (min, max float32) {
	if len(s.Data) == 0 {
		return 0, 0
	}
	min, max = s.Data[0], s.Data[0]
	for _, v := range s.Data[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

func (s *Stack) String() string {
	return fmt.Sprintf("%dx%dx%d stack (%d bit source)", s.Frames, s.Height, s.Width, s.Bits)
}
