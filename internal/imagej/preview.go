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

package imagej

import (
	"bufio"
	"image"
	"image/color"
	"os"

	"golang.org/x/image/tiff"
)

// Writes a single float32 frame as a 16-bit grayscale TIFF preview,
// linearly mapping [min, max] to the output range.
func WriteGrayPreview16(fileName string, frame []float32, width, height int32, min, max float32) error {
	img := image.NewGray16(image.Rect(0, 0, int(width), int(height)))
	scale := float32(0)
	if max > min {
		scale = 65535 / (max - min)
	}
	for y := int32(0); y < height; y++ {
		for x := int32(0); x < width; x++ {
			v := (frame[y*width+x] - min) * scale
			if v < 0 {
				v = 0
			}
			if v > 65535 {
				v = 65535
			}
			img.SetGray16(int(x), int(y), color.Gray16{Y: uint16(v)})
		}
	}
	return encodeTIFF(fileName, img)
}

// Writes an interleaved RGB byte frame, such as a direction-coded flow
// map, as an RGB TIFF preview.
func WriteRGBPreview(fileName string, rgb []uint8, width, height int32) error {
	img := image.NewRGBA(image.Rect(0, 0, int(width), int(height)))
	for y := int32(0); y < height; y++ {
		for x := int32(0); x < width; x++ {
			i := (y*width + x) * 3
			img.SetRGBA(int(x), int(y), color.RGBA{R: rgb[i], G: rgb[i+1], B: rgb[i+2], A: 255})
		}
	}
	return encodeTIFF(fileName, img)
}

func encodeTIFF(fileName string, img image.Image) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	return tiff.Encode(writer, img, &tiff.Options{Compression: tiff.Uncompressed, Predictor: false})
}
