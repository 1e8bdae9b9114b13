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
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

var testSummary = []byte(`{"MicroManagerVersion":"1.4.23 20180220",` +
	`"Width":4,"Height":3,"Channels":1,"Slices":1,"Frames":2,` +
	`"Interval_ms":1000,"PixelSizeUm":0.65}`)

func testPlanes(frames int, width, height int32) []SyntheticPlane {
	planes := make([]SyntheticPlane, frames)
	for i := range planes {
		data := make([]float32, int(width)*int(height))
		for j := range data {
			data[j] = float32(i*100 + j)
		}
		planes[i] = SyntheticPlane{
			Frame:       uint32(i),
			ElapsedMs:   float64(100 + 1000*i),
			PixelSizeUm: 0.65,
			Data:        data,
		}
	}
	return planes
}

func TestRoundTrip(t *testing.T) {
	planes := testPlanes(2, 4, 3)
	buf, err := EncodeSynthetic(testSummary, planes, 4, 3, 16)
	if err != nil {
		t.Fatalf("encode: %s", err)
	}

	f, err := Read(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("read: %s", err)
	}

	if f.Summary.Version != "1.4.23 20180220" {
		t.Errorf("version %q", f.Summary.Version)
	}
	if f.Summary.IntervalMs != 1000 || f.Summary.PixelSizeUm != 0.65 {
		t.Errorf("summary interval %g pixel size %g", f.Summary.IntervalMs, f.Summary.PixelSizeUm)
	}
	if len(f.Pages) != 2 || len(f.Index) != 2 {
		t.Fatalf("%d pages, %d index entries", len(f.Pages), len(f.Index))
	}

	for i, p := range f.Pages {
		if p.Width != 4 || p.Height != 3 || p.Bits != 16 {
			t.Errorf("page %d: %dx%d %d bits", i, p.Width, p.Height, p.Bits)
		}
		if p.ElapsedMs != float64(100+1000*i) {
			t.Errorf("page %d elapsed %g", i, p.ElapsedMs)
		}
		data, err := p.Float32()
		if err != nil {
			t.Fatalf("page %d decode: %s", i, err)
		}
		for j, v := range data {
			if v != float32(i*100+j) {
				t.Fatalf("page %d pixel %d: got %g want %d", i, j, v, i*100+j)
			}
		}
	}

	slices, channels := f.SliceChannelMaps()
	if len(slices) != 2 || slices[0] != 0 || channels[0] != 0 {
		t.Errorf("index maps %v %v", slices, channels)
	}
}

func TestFloat32Planes(t *testing.T) {
	planes := testPlanes(1, 4, 3)
	for j := range planes[0].Data {
		planes[0].Data[j] = float32(j) + 0.25
	}
	buf, err := EncodeSynthetic(testSummary, planes, 4, 3, 32)
	if err != nil {
		t.Fatalf("encode: %s", err)
	}
	f, err := Read(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("read: %s", err)
	}
	data, err := f.Pages[0].Float32()
	if err != nil {
		t.Fatalf("decode: %s", err)
	}
	for j, v := range data {
		if math.Abs(float64(v)-(float64(j)+0.25)) > 1e-6 {
			t.Fatalf("pixel %d: got %g", j, v)
		}
	}
}

func TestReadRejectsNonTiff(t *testing.T) {
	junk := make([]byte, 64)
	copy(junk, "not a tiff")
	if _, err := Read(bytes.NewReader(junk)); err == nil {
		t.Error("expected error for non-TIFF input")
	}
}

// locates an IFD entry by its leading (tag, field type) bytes
func findEntry(t *testing.T, buf []byte, pattern []byte) int {
	t.Helper()
	i := bytes.Index(buf, pattern)
	if i < 0 {
		t.Fatalf("IFD entry % x not found", pattern)
	}
	return i
}

func TestReadRejectsBadFieldType(t *testing.T) {
	buf, err := EncodeSynthetic(testSummary, testPlanes(1, 4, 3), 4, 3, 16)
	if err != nil {
		t.Fatalf("encode: %s", err)
	}
	// corrupt the strip offsets entry: tag 273, field type LONG -> 13
	i := findEntry(t, buf, []byte{0x11, 0x01, 0x04, 0x00})
	buf[i+2] = 13
	if _, err := Read(bytes.NewReader(buf)); err == nil {
		t.Error("expected error for corrupt IFD field type")
	}
}

func TestReadRejectsBadStripCount(t *testing.T) {
	buf, err := EncodeSynthetic(testSummary, testPlanes(1, 4, 3), 4, 3, 16)
	if err != nil {
		t.Fatalf("encode: %s", err)
	}
	// rows per strip 1 would require one strip per row, but only one
	// strip is present
	i := findEntry(t, buf, []byte{0x16, 0x01, 0x04, 0x00})
	binary.LittleEndian.PutUint32(buf[i+8:], 1)
	if _, err := Read(bytes.NewReader(buf)); err == nil {
		t.Error("expected error for inconsistent strip count")
	}
}

func TestReadRejectsPlainTiff(t *testing.T) {
	// a TIFF header without the Micro-Manager blocks must be refused
	buf := make([]byte, 64)
	copy(buf, []byte{'I', 'I', 42, 0, 8, 0, 0, 0})
	if _, err := Read(bytes.NewReader(buf)); err == nil {
		t.Error("expected error for plain TIFF input")
	}
}
