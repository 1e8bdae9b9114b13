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

// Package imagej writes analysis results as ImageJ hyperstack TIFF files:
// little-endian multipage TIFF, one plane per IFD, plane order TZCYXS with
// channels varying fastest, and the ImageJ description block carrying
// frame, slice and channel counts plus physical units.
package imagej

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"cellflow/internal/stack"
)

// Embedded metadata for an output stack.
type Metadata struct {
	Unit       string  // spatial unit, "um"
	FIntervalS float64 // frame interval in seconds
	TUnit      string  // time unit, "s"
	Frames     int32
	Slices     int32
	Channels   int32
	Info       string // acquisition Info block carried from the source, optional

	PixelSizeUm float64 // spatial calibration for the resolution tags
}

// Writes a float32 stack (such as a speed map) as an ImageJ TIFF.
func WriteFloat32(fileName string, s *stack.Stack, md Metadata) error {
	planes := make([][]byte, s.Frames)
	n := s.FramePixels()
	for t := int32(0); t < s.Frames; t++ {
		plane := make([]byte, n*4)
		for i, v := range s.Frame(t) {
			binary.LittleEndian.PutUint32(plane[4*i:], math.Float32bits(v))
		}
		planes[t] = plane
	}
	return writeTIFF(fileName, planes, s.Height, s.Width, 32, 3, md)
}

// Writes 8-bit planes (such as rendered overlays) as an ImageJ TIFF. For
// multi-channel output, planes must be interleaved channel-fastest.
func WriteUint8(fileName string, planes [][]uint8, height, width int32, md Metadata) error {
	raw := make([][]byte, len(planes))
	for i, p := range planes {
		if int32(len(p)) != height*width {
			return fmt.Errorf("imagej: plane %d has %d pixels, want %dx%d", i, len(p), width, height)
		}
		raw[i] = p
	}
	return writeTIFF(fileName, raw, height, width, 8, 1, md)
}

const (
	typeByte     = 1
	typeASCII    = 2
	typeShort    = 3
	typeLong     = 4
	typeRational = 5
)

// Writes the planes as a classic little-endian TIFF via a temp file and
// rename, so a failed run leaves no partial output behind.
func writeTIFF(fileName string, planes [][]byte, height, width int32, bits int32, sampleFormat uint16, md Metadata) error {
	if len(planes) == 0 {
		return fmt.Errorf("imagej: no planes to write")
	}

	desc := describe(len(planes), md)
	descLen := uint32(len(desc) + 1) // ASCII count includes the NUL
	descBytes := append([]byte(desc), 0)
	if len(descBytes)&1 == 1 {
		descBytes = append(descBytes, 0)
	}

	var info, infoCounts []byte
	if md.Info != "" {
		info, infoCounts = encodeInfoBlock(md.Info)
	}

	// resolution in pixels per unit, as a rational
	resNum, resDen := uint32(1), uint32(1)
	if md.PixelSizeUm > 0 {
		resNum = 1000000
		resDen = uint32(md.PixelSizeUm*1000000 + 0.5)
	}

	numBase := 13 // tags on every IFD
	numFirst := numBase + 1
	if info != nil {
		numFirst += 2
	}
	ifdSize := func(entries int) uint32 { return uint32(2 + entries*12 + 4) }

	offset := uint32(8)
	descOff := offset
	offset += uint32(len(descBytes))
	xResOff := offset
	offset += 8
	yResOff := offset
	offset += 8
	infoCountsOff, infoOff := uint32(0), uint32(0)
	if info != nil {
		infoCountsOff = offset
		offset += uint32(len(infoCounts))
		infoOff = offset
		offset += uint32(len(info) + len(info)&1)
	}

	firstIFD := offset
	dataOff := firstIFD + ifdSize(numFirst) + uint32(len(planes)-1)*ifdSize(numBase)

	w := &leWriter{}
	w.bytes([]byte{'I', 'I'})
	w.u16(42)
	w.u32(firstIFD)
	w.bytes(descBytes)
	w.u32(resNum)
	w.u32(resDen)
	w.u32(resNum)
	w.u32(resDen)
	if info != nil {
		w.bytes(infoCounts)
		w.bytes(info)
		if len(info)&1 == 1 {
			w.u8(0)
		}
	}

	planeBytes := uint32(len(planes[0]))
	ifdOff := firstIFD
	for i := range planes {
		entries := numBase
		if i == 0 {
			entries = numFirst
		}
		next := ifdOff + ifdSize(entries)
		if i == len(planes)-1 {
			next = 0
		} else {
			ifdOff = next
		}

		w.u16(uint16(entries))
		w.entry(256, typeLong, 1, uint32(width))
		w.entry(257, typeLong, 1, uint32(height))
		w.entry(258, typeShort, 1, uint32(bits))
		w.entry(259, typeShort, 1, 1) // uncompressed
		w.entry(262, typeShort, 1, 1) // black is zero
		if i == 0 {
			w.entry(270, typeASCII, descLen, descOff)
		}
		w.entry(273, typeLong, 1, dataOff+uint32(i)*planeBytes)
		w.entry(277, typeShort, 1, 1)
		w.entry(278, typeLong, 1, uint32(height))
		w.entry(279, typeLong, 1, planeBytes)
		w.entry(282, typeRational, 1, xResOff)
		w.entry(283, typeRational, 1, yResOff)
		w.entry(296, typeShort, 1, 1) // unit carried in the description instead
		w.entry(339, typeShort, 1, uint32(sampleFormat))
		if i == 0 && info != nil {
			w.entry(50838, typeLong, uint32(len(infoCounts)/4), infoCountsOff)
			w.entry(50839, typeByte, uint32(len(info)), infoOff)
		}
		w.u32(next)
	}
	for _, p := range planes {
		w.bytes(p)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fileName), ".cellflow-*")
	if err != nil {
		return err
	}
	if _, err = tmp.Write(w.buf); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), fileName)
}

// Builds the ImageJ description block.
func describe(images int, md Metadata) string {
	return fmt.Sprintf("ImageJ=1.53k\nimages=%d\nchannels=%d\nslices=%d\nframes=%d\n"+
		"hyperstack=true\nmode=grayscale\nunit=%s\nfinterval=%g\ntunit=%s\nloop=false\n",
		images, md.Channels, md.Slices, md.Frames, md.Unit, md.FIntervalS, md.TUnit)
}

// Encodes the ImageJ metadata blob carrying the Info text: an IJIJ header
// with one "info" entry, text stored as 16-bit code units in file order,
// plus the matching byte-counts array for tag 50838.
func encodeInfoBlock(text string) (block, counts []byte) {
	runes := []rune(text)
	w := &leWriter{}
	w.bytes([]byte{'I', 'J', 'I', 'J'})
	w.bytes([]byte{'i', 'n', 'f', 'o'})
	w.u32(1)
	header := len(w.buf)
	for _, r := range runes {
		w.u16(uint16(r))
	}
	block = w.buf

	c := &leWriter{}
	c.u32(uint32(header))
	c.u32(uint32(len(block) - header))
	return block, c.buf
}

// Little-endian byte assembly for the TIFF structures.
type leWriter struct {
	buf []byte
}

func (w *leWriter) u8(v uint8)     { w.buf = append(w.buf, v) }
func (w *leWriter) u16(v uint16)   { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *leWriter) u32(v uint32)   { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *leWriter) bytes(b []byte) { w.buf = append(w.buf, b...) }

func (w *leWriter) entry(tag uint16, fieldType uint16, count, value uint32) {
	w.u16(tag)
	w.u16(fieldType)
	w.u32(count)
	if fieldType == typeShort && count == 1 {
		w.u16(uint16(value))
		w.u16(0)
	} else {
		w.u32(value)
	}
}
