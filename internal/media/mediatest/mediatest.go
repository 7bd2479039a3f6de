// Package mediatest builds synthetic images, with or without an EXIF block,
// for tests across the pipeline.
package mediatest

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// Rational is an unsigned EXIF rational. The zero value means absent.
type Rational struct {
	Num, Den uint32
}

// EXIF lists the tags the pipeline reads. Zero values are left out.
type EXIF struct {
	Make             string
	Model            string
	DateTime         string
	DateTimeOriginal string
	Orientation      uint16
	ISO              uint16
	ExposureTime     Rational
	FNumber          Rational
	FocalLength      Rational
}

// Gradient returns a width x height image whose red channel runs left to
// right and green channel top to bottom, so rotations are observable.
func Gradient(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / max(width-1, 1)),
				G: uint8((y * 255) / max(height-1, 1)),
				B: 128,
				A: 255,
			})
		}
	}
	return img
}

// JPEG encodes a gradient as JPEG and, when tags is non-nil, splices an
// APP1 EXIF segment in after the SOI marker.
func JPEG(t testing.TB, width, height int, tags *EXIF) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Gradient(width, height), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode test JPEG: %v", err)
	}
	data := buf.Bytes()
	if tags == nil {
		return data
	}

	payload := append([]byte("Exif\x00\x00"), tags.tiff()...)
	segment := []byte{0xFF, 0xE1, 0, 0}
	binary.BigEndian.PutUint16(segment[2:], uint16(len(payload)+2))
	segment = append(segment, payload...)

	out := make([]byte, 0, len(data)+len(segment))
	out = append(out, data[:2]...)
	out = append(out, segment...)
	out = append(out, data[2:]...)
	return out
}

// PNG encodes a gradient as PNG.
func PNG(t testing.TB, width, height int) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, Gradient(width, height)); err != nil {
		t.Fatalf("encode test PNG: %v", err)
	}
	return buf.Bytes()
}

// WriteFile writes data to path, creating parent directories.
func WriteFile(t testing.TB, path string, data []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

const (
	typeASCII    = 2
	typeShort    = 3
	typeLong     = 4
	typeRational = 5
)

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

var order = binary.LittleEndian

func ascii(tag uint16, s string) ifdEntry {
	return ifdEntry{tag: tag, typ: typeASCII, count: uint32(len(s) + 1), data: append([]byte(s), 0)}
}

func short(tag uint16, v uint16) ifdEntry {
	b := make([]byte, 2)
	order.PutUint16(b, v)
	return ifdEntry{tag: tag, typ: typeShort, count: 1, data: b}
}

func long(tag uint16, v uint32) ifdEntry {
	b := make([]byte, 4)
	order.PutUint32(b, v)
	return ifdEntry{tag: tag, typ: typeLong, count: 1, data: b}
}

func rational(tag uint16, r Rational) ifdEntry {
	b := make([]byte, 8)
	order.PutUint32(b, r.Num)
	order.PutUint32(b[4:], r.Den)
	return ifdEntry{tag: tag, typ: typeRational, count: 1, data: b}
}

func (e *EXIF) tiff() []byte {
	var ifd0, sub []ifdEntry
	if e.Make != "" {
		ifd0 = append(ifd0, ascii(0x010F, e.Make))
	}
	if e.Model != "" {
		ifd0 = append(ifd0, ascii(0x0110, e.Model))
	}
	if e.Orientation != 0 {
		ifd0 = append(ifd0, short(0x0112, e.Orientation))
	}
	if e.DateTime != "" {
		ifd0 = append(ifd0, ascii(0x0132, e.DateTime))
	}
	if e.ExposureTime.Den != 0 {
		sub = append(sub, rational(0x829A, e.ExposureTime))
	}
	if e.FNumber.Den != 0 {
		sub = append(sub, rational(0x829D, e.FNumber))
	}
	if e.ISO != 0 {
		sub = append(sub, short(0x8827, e.ISO))
	}
	if e.DateTimeOriginal != "" {
		sub = append(sub, ascii(0x9003, e.DateTimeOriginal))
	}
	if e.FocalLength.Den != 0 {
		sub = append(sub, rational(0x920A, e.FocalLength))
	}

	// IFD0 carries a pointer to the Exif sub-IFD; its value is patched once
	// the size of IFD0 is known.
	if len(sub) > 0 {
		ifd0 = append(ifd0, long(0x8769, 0))
	}

	header := []byte{'I', 'I', 42, 0, 8, 0, 0, 0}
	ifd0Offset := uint32(len(header))
	subOffset := ifd0Offset + ifdSize(ifd0)
	if len(sub) > 0 {
		for i := range ifd0 {
			if ifd0[i].tag == 0x8769 {
				order.PutUint32(ifd0[i].data, subOffset)
			}
		}
	}

	out := append([]byte{}, header...)
	out = append(out, encodeIFD(ifd0, ifd0Offset)...)
	if len(sub) > 0 {
		out = append(out, encodeIFD(sub, subOffset)...)
	}
	return out
}

// ifdSize is the encoded size of an IFD including its out-of-line values.
func ifdSize(entries []ifdEntry) uint32 {
	size := uint32(2 + 12*len(entries) + 4)
	for _, e := range entries {
		if len(e.data) > 4 {
			size += uint32(len(e.data) + len(e.data)%2)
		}
	}
	return size
}

func encodeIFD(entries []ifdEntry, offset uint32) []byte {
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	dataOffset := offset + uint32(2+12*len(entries)+4)
	var table, extra []byte

	table = order.AppendUint16(table, uint16(len(entries)))
	for _, e := range entries {
		table = order.AppendUint16(table, e.tag)
		table = order.AppendUint16(table, e.typ)
		table = order.AppendUint32(table, e.count)
		if len(e.data) <= 4 {
			value := make([]byte, 4)
			copy(value, e.data)
			table = append(table, value...)
			continue
		}
		table = order.AppendUint32(table, dataOffset+uint32(len(extra)))
		extra = append(extra, e.data...)
		if len(e.data)%2 == 1 {
			extra = append(extra, 0)
		}
	}
	table = order.AppendUint32(table, 0)
	return append(table, extra...)
}
