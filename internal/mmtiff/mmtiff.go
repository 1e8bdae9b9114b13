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

// Package mmtiff reads Micro-Manager multipage OME-TIFF acquisition files:
// classic TIFF pages plus the Micro-Manager specific header blocks carrying
// the summary metadata JSON and the per-page (channel, slice) index map.
// Only the subset of TIFF needed for Micro-Manager stacks is handled:
// single-sample grayscale pages, uncompressed strips, 8/16 bit unsigned or
// 32 bit float samples.
package mmtiff

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
)

// Micro-Manager file header magic numbers, as written by the acquisition
// engine's MultipageTiffWriter.
const (
	indexMapOffsetHeader = 54773648
	indexMapHeader       = 3453623
	summaryMDHeader      = 2355492
)

// TIFF tags used by Micro-Manager stacks.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagStripOffsets    = 273
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagSampleFormat    = 339
	tagMMMetadata      = 51123
)

// Container-wide summary metadata. Fields not present in a given
// Micro-Manager version are left at their zero value; Raw retains the
// full JSON block for downstream embedding.
type Summary struct {
	Version    string  `json:"MicroManagerVersion"`
	Width      int32   `json:"Width"`
	Height     int32   `json:"Height"`
	Channels   int32   `json:"Channels"`
	Slices     int32   `json:"Slices"`
	Frames     int32   `json:"Frames"`
	IntervalMs float64 `json:"Interval_ms"`
	// 2.0-beta stores the wait interval instead of Interval_ms
	WaitInterval float64 `json:"WaitInterval"`
	// 1.4 and 2.0-gamma store the calibrated pixel size here
	PixelSizeUm float64 `json:"PixelSizeUm"`

	Raw json.RawMessage `json:"-"`
}

// One entry of the Micro-Manager index map, parallel to the page list.
type IndexEntry struct {
	Channel  uint32
	Slice    uint32
	Frame    uint32
	Position uint32
	Offset   uint32 // IFD offset of the page within the file
}

// A single TIFF page: decoded lazily, metadata eagerly.
type Page struct {
	Width        int32
	Height       int32
	Bits         int32
	SampleFormat uint16 // 1 = unsigned int, 3 = IEEE float

	// Per-page acquisition metadata from the MicroManagerMetadata tag.
	ElapsedMs float64
	// Pixel size as stored per page by 2.0-beta builds, 0 if absent.
	PixelSizeUm float64

	stripOffsets    []uint32
	stripByteCounts []uint32
	rowsPerStrip    uint32

	r     io.ReaderAt
	order binary.ByteOrder
}

// An opened Micro-Manager acquisition file.
type File struct {
	Summary Summary
	Index   []IndexEntry
	Pages   []*Page

	closer io.Closer
}

// Opens a Micro-Manager OME-TIFF file from disk.
func Open(fileName string) (*File, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	file, err := Read(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	file.closer = f
	return file, nil
}

// Closes the underlying file, if the File was produced by Open.
func (f *File) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}

// Returns the parallel per-page slice and channel index arrays from the
// index map, in page order.
func (f *File) SliceChannelMaps() (slices, channels []int32) {
	slices = make([]int32, len(f.Index))
	channels = make([]int32, len(f.Index))
	for i, e := range f.Index {
		slices[i] = int32(e.Slice)
		channels[i] = int32(e.Channel)
	}
	return slices, channels
}

// Decodes the page's pixel data into a freshly allocated float32 slice of
// length Width*Height, rows stored width-major.
func (p *Page) Float32() ([]float32, error) {
	raw := make([]byte, 0, int(p.Width)*int(p.Height)*int(p.Bits)/8)
	for i, off := range p.stripOffsets {
		strip := make([]byte, p.stripByteCounts[i])
		if _, err := p.r.ReadAt(strip, int64(off)); err != nil {
			return nil, fmt.Errorf("mmtiff: reading strip %d: %w", i, err)
		}
		raw = append(raw, strip...)
	}

	numPixels := int(p.Width) * int(p.Height)
	if len(raw)*8 < numPixels*int(p.Bits) {
		return nil, fmt.Errorf("mmtiff: page has %d strip bytes, need %d", len(raw), numPixels*int(p.Bits)/8)
	}

	out := make([]float32, numPixels)
	switch {
	case p.Bits == 8 && p.SampleFormat != 3:
		for i := range out {
			out[i] = float32(raw[i])
		}
	case p.Bits == 16 && p.SampleFormat != 3:
		for i := range out {
			out[i] = float32(p.order.Uint16(raw[2*i:]))
		}
	case p.Bits == 32 && p.SampleFormat == 3:
		for i := range out {
			out[i] = math.Float32frombits(p.order.Uint32(raw[4*i:]))
		}
	default:
		return nil, fmt.Errorf("mmtiff: unsupported sample type: %d bits, format %d", p.Bits, p.SampleFormat)
	}
	return out, nil
}
