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
	"encoding/json"
	"fmt"
	"io"
)

// Reads a Micro-Manager acquisition file from the given reader. The reader
// is retained for lazy page decoding and must stay open while pages are in
// use.
func Read(r io.ReaderAt) (*File, error) {
	head := make([]byte, 40)
	if _, err := r.ReadAt(head, 0); err != nil {
		return nil, fmt.Errorf("mmtiff: reading file header: %w", err)
	}

	var order binary.ByteOrder
	switch {
	case head[0] == 'I' && head[1] == 'I':
		order = binary.LittleEndian
	case head[0] == 'M' && head[1] == 'M':
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("mmtiff: not a TIFF file, byte order mark %02x%02x", head[0], head[1])
	}
	if order.Uint16(head[2:]) != 42 {
		return nil, fmt.Errorf("mmtiff: bad TIFF magic %d", order.Uint16(head[2:]))
	}
	firstIFD := order.Uint32(head[4:])

	f := &File{}

	// Micro-Manager specific header blocks after the standard TIFF header
	if order.Uint32(head[8:]) != indexMapOffsetHeader {
		return nil, fmt.Errorf("mmtiff: missing Micro-Manager index map offset header")
	}
	indexMapOffset := order.Uint32(head[12:])

	if order.Uint32(head[32:]) != summaryMDHeader {
		return nil, fmt.Errorf("mmtiff: missing Micro-Manager summary metadata header")
	}
	summaryLen := order.Uint32(head[36:])
	summaryJSON := make([]byte, summaryLen)
	if _, err := r.ReadAt(summaryJSON, 40); err != nil {
		return nil, fmt.Errorf("mmtiff: reading summary metadata: %w", err)
	}
	if err := json.Unmarshal(summaryJSON, &f.Summary); err != nil {
		return nil, fmt.Errorf("mmtiff: parsing summary metadata: %w", err)
	}
	f.Summary.Raw = append(json.RawMessage(nil), summaryJSON...)

	if err := f.readIndexMap(r, order, indexMapOffset); err != nil {
		return nil, err
	}

	// walk the IFD chain in file order
	for offset := firstIFD; offset != 0; {
		page, next, err := readPage(r, order, offset)
		if err != nil {
			return nil, err
		}
		f.Pages = append(f.Pages, page)
		offset = next
	}

	if len(f.Index) != len(f.Pages) {
		return nil, fmt.Errorf("mmtiff: index map has %d entries for %d pages", len(f.Index), len(f.Pages))
	}
	return f, nil
}

func (f *File) readIndexMap(r io.ReaderAt, order binary.ByteOrder, offset uint32) error {
	head := make([]byte, 8)
	if _, err := r.ReadAt(head, int64(offset)); err != nil {
		return fmt.Errorf("mmtiff: reading index map header: %w", err)
	}
	if order.Uint32(head) != indexMapHeader {
		return fmt.Errorf("mmtiff: bad index map header %d", order.Uint32(head))
	}
	count := order.Uint32(head[4:])

	buf := make([]byte, count*20)
	if _, err := r.ReadAt(buf, int64(offset)+8); err != nil {
		return fmt.Errorf("mmtiff: reading index map entries: %w", err)
	}
	f.Index = make([]IndexEntry, count)
	for i := range f.Index {
		e := buf[i*20:]
		f.Index[i] = IndexEntry{
			Channel:  order.Uint32(e),
			Slice:    order.Uint32(e[4:]),
			Frame:    order.Uint32(e[8:]),
			Position: order.Uint32(e[12:]),
			Offset:   order.Uint32(e[16:]),
		}
	}
	return nil
}

// Reads one IFD and returns the page and the offset of the next IFD.
func readPage(r io.ReaderAt, order binary.ByteOrder, offset uint32) (page *Page, next uint32, err error) {
	countBuf := make([]byte, 2)
	if _, err = r.ReadAt(countBuf, int64(offset)); err != nil {
		return nil, 0, fmt.Errorf("mmtiff: reading IFD at %d: %w", offset, err)
	}
	numEntries := order.Uint16(countBuf)

	buf := make([]byte, int(numEntries)*12+4)
	if _, err = r.ReadAt(buf, int64(offset)+2); err != nil {
		return nil, 0, fmt.Errorf("mmtiff: reading IFD entries at %d: %w", offset, err)
	}
	next = order.Uint32(buf[int(numEntries)*12:])

	page = &Page{Bits: 1, SampleFormat: 1, r: r, order: order}
	compression := uint32(1)

	for i := 0; i < int(numEntries); i++ {
		e := buf[i*12 : i*12+12]
		tag := order.Uint16(e)
		fieldType := order.Uint16(e[2:])
		count := order.Uint32(e[4:])

		switch tag {
		case tagImageWidth:
			page.Width = int32(entryValue(e, order, fieldType))
		case tagImageLength:
			page.Height = int32(entryValue(e, order, fieldType))
		case tagBitsPerSample:
			page.Bits = int32(entryValue(e, order, fieldType))
		case tagCompression:
			compression = entryValue(e, order, fieldType)
		case tagRowsPerStrip:
			page.rowsPerStrip = entryValue(e, order, fieldType)
		case tagStripOffsets:
			if page.stripOffsets, err = entryValues(r, e, order, fieldType, count); err != nil {
				return nil, 0, err
			}
		case tagStripByteCounts:
			if page.stripByteCounts, err = entryValues(r, e, order, fieldType, count); err != nil {
				return nil, 0, err
			}
		case tagSampleFormat:
			page.SampleFormat = uint16(entryValue(e, order, fieldType))
		case tagMMMetadata:
			if err = page.readPlaneMetadata(r, e, order, count); err != nil {
				return nil, 0, err
			}
		}
	}

	if compression != 1 {
		return nil, 0, fmt.Errorf("mmtiff: compressed page (scheme %d) not supported", compression)
	}
	if page.Width == 0 || page.Height == 0 || len(page.stripOffsets) == 0 {
		return nil, 0, fmt.Errorf("mmtiff: IFD at %d lacks image dimensions or strips", offset)
	}
	if len(page.stripOffsets) != len(page.stripByteCounts) {
		return nil, 0, fmt.Errorf("mmtiff: IFD at %d has %d strip offsets, %d byte counts",
			offset, len(page.stripOffsets), len(page.stripByteCounts))
	}
	if page.rowsPerStrip > 0 {
		want := (uint32(page.Height) + page.rowsPerStrip - 1) / page.rowsPerStrip
		if uint32(len(page.stripOffsets)) != want {
			return nil, 0, fmt.Errorf("mmtiff: IFD at %d has %d strips for %d rows of %d",
				offset, len(page.stripOffsets), page.Height, page.rowsPerStrip)
		}
	}
	return page, next, nil
}

// Returns an inline (short or long) IFD entry value.
func entryValue(e []byte, order binary.ByteOrder, fieldType uint16) uint32 {
	if fieldType == 3 { // SHORT
		return uint32(order.Uint16(e[8:]))
	}
	return order.Uint32(e[8:])
}

// Returns an IFD entry's value array, following the offset indirection for
// arrays that do not fit in the entry itself. Only SHORT and LONG entries
// occur on the tags this is called for; anything else means a corrupt page.
func entryValues(r io.ReaderAt, e []byte, order binary.ByteOrder, fieldType uint16, count uint32) ([]uint32, error) {
	if fieldType != 3 && fieldType != 4 {
		return nil, fmt.Errorf("mmtiff: unsupported IFD entry field type %d", fieldType)
	}
	size := count * 4
	if fieldType == 3 {
		size = count * 2
	}
	data := e[8:12]
	if size > 4 {
		data = make([]byte, size)
		if _, err := r.ReadAt(data, int64(order.Uint32(e[8:]))); err != nil {
			return nil, fmt.Errorf("mmtiff: reading IFD entry array: %w", err)
		}
	}
	out := make([]uint32, count)
	for i := range out {
		if fieldType == 3 {
			out[i] = uint32(order.Uint16(data[2*i:]))
		} else {
			out[i] = order.Uint32(data[4*i:])
		}
	}
	return out, nil
}

// Parses the per-page MicroManagerMetadata JSON tag.
func (p *Page) readPlaneMetadata(r io.ReaderAt, e []byte, order binary.ByteOrder, count uint32) error {
	data := e[8:12]
	if count > 4 {
		data = make([]byte, count)
		if _, err := r.ReadAt(data, int64(order.Uint32(e[8:]))); err != nil {
			return fmt.Errorf("mmtiff: reading plane metadata: %w", err)
		}
	}
	// tag is written as ASCII with a trailing NUL
	for len(data) > 0 && data[len(data)-1] == 0 {
		data = data[:len(data)-1]
	}
	var meta struct {
		ElapsedMs   float64 `json:"ElapsedTime-ms"`
		PixelSizeUm float64 `json:"PixelSize_um"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("mmtiff: parsing plane metadata: %w", err)
	}
	p.ElapsedMs = meta.ElapsedMs
	p.PixelSizeUm = meta.PixelSizeUm
	return nil
}
