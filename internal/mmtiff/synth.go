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

package mmtiff

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// One plane of a synthetic acquisition.
type SyntheticPlane struct {
	Channel     uint32
	Slice       uint32
	Frame       uint32
	Position    uint32
	ElapsedMs   float64
	PixelSizeUm float64
	Data        []float32
}

// Encodes a minimal Micro-Manager compatible acquisition: standard TIFF
// pages plus the summary metadata and index map header blocks that Read
// expects. Used to build synthetic validation stacks, such as fixed
// monolayers translated by a known offset between frames, and to
// round-trip the reader in tests. bits selects the sample type: 8 or 16
// bit unsigned, or 32 bit float.
func EncodeSynthetic(summaryJSON []byte, planes []SyntheticPlane, width, height, bits int32) ([]byte, error) {
	if len(planes) == 0 {
		return nil, fmt.Errorf("mmtiff: no planes to encode")
	}
	if bits != 8 && bits != 16 && bits != 32 {
		return nil, fmt.Errorf("mmtiff: unsupported bit depth %d", bits)
	}

	e := &encoder{}
	// standard TIFF header with the Micro-Manager blocks behind it
	e.bytes([]byte{'I', 'I'})
	e.u16(42)
	firstIFDPos := len(e.buf)
	e.u32(0) // patched below
	e.u32(indexMapOffsetHeader)
	indexMapOffsetPos := len(e.buf)
	e.u32(0) // patched below
	e.u32(0) // display settings block, unused
	e.u32(0)
	e.u32(0) // comments block, unused
	e.u32(0)
	e.u32(summaryMDHeader)
	e.u32(uint32(len(summaryJSON)))
	e.bytes(summaryJSON)
	e.pad()

	numPixels := int(width) * int(height)
	ifdOffs := make([]uint32, len(planes))

	for i, p := range planes {
		if len(p.Data) != numPixels {
			return nil, fmt.Errorf("mmtiff: plane %d has %d pixels, want %dx%d", i, len(p.Data), width, height)
		}

		meta := fmt.Sprintf(`{"ElapsedTime-ms":%g,"PixelSize_um":%g}`, p.ElapsedMs, p.PixelSizeUm)
		metaOff := uint32(len(e.buf))
		e.bytes([]byte(meta))
		e.u8(0)
		e.pad()

		dataOff := uint32(len(e.buf))
		e.samples(p.Data, bits)
		e.pad()

		ifdOffs[i] = uint32(len(e.buf))
		sampleFormat := uint32(1)
		if bits == 32 {
			sampleFormat = 3
		}
		e.u16(10)
		e.entry(tagImageWidth, 4, 1, uint32(width))
		e.entry(tagImageLength, 4, 1, uint32(height))
		e.entry(tagBitsPerSample, 3, 1, uint32(bits))
		e.entry(tagCompression, 3, 1, 1)
		e.entry(262, 3, 1, 1)
		e.entry(tagStripOffsets, 4, 1, dataOff)
		e.entry(tagRowsPerStrip, 4, 1, uint32(height))
		e.entry(tagStripByteCounts, 4, 1, uint32(numPixels)*uint32(bits)/8)
		e.entry(tagSampleFormat, 3, 1, sampleFormat)
		e.entry(tagMMMetadata, 2, uint32(len(meta)+1), metaOff)
		e.u32(0) // next IFD pointer, patched below
	}

	// chain the IFDs in plane order
	const ifdSize = 2 + 10*12 + 4
	for i := 0; i < len(planes)-1; i++ {
		binary.LittleEndian.PutUint32(e.buf[ifdOffs[i]+ifdSize-4:], ifdOffs[i+1])
	}

	indexMapOff := uint32(len(e.buf))
	e.u32(indexMapHeader)
	e.u32(uint32(len(planes)))
	for i, p := range planes {
		e.u32(p.Channel)
		e.u32(p.Slice)
		e.u32(p.Frame)
		e.u32(p.Position)
		e.u32(ifdOffs[i])
	}

	binary.LittleEndian.PutUint32(e.buf[firstIFDPos:], ifdOffs[0])
	binary.LittleEndian.PutUint32(e.buf[indexMapOffsetPos:], indexMapOff)
	return e.buf, nil
}

// Encodes a synthetic acquisition and writes it to disk.
func WriteSyntheticFile(fileName string, summaryJSON []byte, planes []SyntheticPlane, width, height, bits int32) error {
	buf, err := EncodeSynthetic(summaryJSON, planes, width, height, bits)
	if err != nil {
		return err
	}
	return os.WriteFile(fileName, buf, 0666)
}

type encoder struct {
	buf []byte
}

func (e *encoder) u8(v uint8)     { e.buf = append(e.buf, v) }
func (e *encoder) u16(v uint16)   { e.buf = binary.LittleEndian.AppendUint16(e.buf, v) }
func (e *encoder) u32(v uint32)   { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }
func (e *encoder) bytes(b []byte) { e.buf = append(e.buf, b...) }

func (e *encoder) pad() {
	if len(e.buf)&1 == 1 {
		e.u8(0)
	}
}

func (e *encoder) entry(tag, fieldType uint16, count, value uint32) {
	e.u16(tag)
	e.u16(fieldType)
	e.u32(count)
	if fieldType == 3 && count == 1 {
		e.u16(uint16(value))
		e.u16(0)
	} else {
		e.u32(value)
	}
}

func (e *encoder) samples(data []float32, bits int32) {
	switch bits {
	case 8:
		for _, v := range data {
			e.u8(uint8(clamp(v, 255)))
		}
	case 16:
		for _, v := range data {
			e.u16(uint16(clamp(v, 65535)))
		}
	case 32:
		for _, v := range data {
			e.u32(math.Float32bits(v))
		}
	}
}

func clamp(v, max float32) float32 {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
