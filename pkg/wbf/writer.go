package wbf

import (
	"errors"
	"io"
	"os"
	"sort"
)

// Writer builds a WBF file. Space for the header is reserved up-front and
// patched during Finalise.
type Writer struct {
	f        *os.File
	sections []Section
	seen     map[SectionType]struct{}
	closed   bool
	padBuf   []byte
}

// NewWriter creates a writer targeting the given file. The file is
// truncated.
func NewWriter(f *os.File) (*Writer, error) {
	if f == nil {
		return nil, errors.New("wbf: nil file")
	}
	if err := f.Truncate(0); err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	w := &Writer{
		f:      f,
		seen:   make(map[SectionType]struct{}),
		padBuf: make([]byte, 4096),
	}
	if err := w.writeZeros(wbfHeaderSize); err != nil {
		return nil, err
	}
	if err := w.alignTo(wbfAlign); err != nil {
		return nil, err
	}
	return w, nil
}

// WriteSection writes a section payload and records it in the section table.
// A section type may only be written once. Section starts are 8-byte aligned
// so consumers can take aligned views over the mapping. The absolute file
// offset of the payload is returned so callers can record absolute tensor
// offsets into a later index section.
func (w *Writer) WriteSection(typ SectionType, data []byte) (uint64, error) {
	if w.closed {
		return 0, errors.New("wbf: writer already finalised")
	}
	if _, ok := w.seen[typ]; ok {
		return 0, errors.New("wbf: duplicate section type")
	}
	if err := w.alignTo(wbfAlign); err != nil {
		return 0, err
	}
	offset, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	if len(data) > 0 {
		if err := writeFull(w.f, data); err != nil {
			return 0, err
		}
	}
	w.sections = append(w.sections, Section{
		Type:   typ,
		Offset: uint64(offset),
		Size:   uint64(len(data)),
	})
	w.seen[typ] = struct{}{}
	return uint64(offset), nil
}

// Finalise writes the section directory and patches the header. After
// Finalise the writer must not be used again.
func (w *Writer) Finalise() error {
	if w.closed {
		return errors.New("wbf: writer already finalised")
	}
	w.closed = true

	// Deterministic directory ordering.
	sort.Slice(w.sections, func(i, j int) bool {
		return w.sections[i].Type < w.sections[j].Type
	})

	if err := w.alignTo(wbfAlign); err != nil {
		return err
	}
	dirOffset, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	var secBuf [wbfSectionSize]byte
	for i := range w.sections {
		if !encodeSection(secBuf[:], w.sections[i]) {
			return errors.New("wbf: encode section failed")
		}
		if err := writeFull(w.f, secBuf[:]); err != nil {
			return err
		}
	}

	fileSize, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if err := w.f.Truncate(fileSize); err != nil {
		return err
	}

	var header Header
	copy(header.Magic[:], MagicWBF)
	header.Major = CurrentMajor
	header.Minor = CurrentMinor
	header.SectionCount = uint32(len(w.sections))
	header.SectionDirOffset = uint64(dirOffset)
	header.FileSize = uint64(fileSize)

	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	var hdrBuf [wbfHeaderSize]byte
	if !encodeHeader(hdrBuf[:], header) {
		return errors.New("wbf: encode header failed")
	}
	if err := writeFull(w.f, hdrBuf[:]); err != nil {
		return err
	}
	return w.f.Sync()
}

func (w *Writer) alignTo(n int64) error {
	if n <= 1 {
		return nil
	}
	pos, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	mod := pos % n
	if mod == 0 {
		return nil
	}
	return w.writeZeros(int(n - mod))
}

func (w *Writer) writeZeros(n int) error {
	for n > 0 {
		chunk := min(n, len(w.padBuf))
		if err := writeFull(w.f, w.padBuf[:chunk]); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

func writeFull(f *os.File, p []byte) error {
	for len(p) > 0 {
		n, err := f.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}
