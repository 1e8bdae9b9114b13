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
	"encoding/binary"
	"fmt"
	"math"

	"gocv.io/x/gocv"
)

// Farnebäck dense optical flow backed by OpenCV. The solver is treated as
// a black box: single-channel float32 frames in, a dense two-component
// displacement field in pixels per frame out, deterministic for identical
// inputs and parameters.
type Farneback struct{}

func (Farneback) EstimatePair(prev, next []float32, width, height int32, p Params) ([]float32, error) {
	prevMat, err := matFromFloat32(prev, width, height)
	if err != nil {
		return nil, err
	}
	defer prevMat.Close()

	nextMat, err := matFromFloat32(next, width, height)
	if err != nil {
		return nil, err
	}
	defer nextMat.Close()

	flowMat := gocv.NewMat()
	defer flowMat.Close()

	gocv.CalcOpticalFlowFarneback(prevMat, nextMat, &flowMat,
		p.PyrScale, p.Levels, p.WinSize, p.Iterations, p.PolyN, p.PolySigma, p.Flags)

	ptr, err := flowMat.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("reading flow result: %w", err)
	}
	return append([]float32(nil), ptr...), nil
}

func matFromFloat32(data []float32, width, height int32) (gocv.Mat, error) {
	if len(data) != int(width)*int(height) {
		return gocv.Mat{}, fmt.Errorf("frame has %d pixels, want %dx%d", len(data), width, height)
	}
	buf := make([]byte, len(data)*4)
	for i, v := range data {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return gocv.NewMatFromBytes(int(height), int(width), gocv.MatTypeCV32F, buf)
}
