package wbf

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// File is an opened, validated WBF container.
type File struct {
	Data     []byte
	Header   *Header
	Sections []Section
	mmapped  bool
}

// Open maps a WBF file read-only and validates its structure. If mmap is
// unavailable, it falls back to ReadAt-based loading. The returned file must
// be closed to release any mapping.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size64 := stat.Size()
	if size64 < wbfHeaderSize {
		return nil, ErrCorruptFile
	}
	if size64 > int64(int(^uint(0)>>1)) {
		// cannot index this file safely as []byte on this architecture.
		return nil, ErrCorruptFile
	}
	size := int(size64)

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		wf, parseErr := parseFileData(data, true)
		if parseErr != nil {
			_ = unix.Munmap(data)
			return nil, parseErr
		}
		return wf, nil
	}

	data, err = readAllAt(f, size)
	if err != nil {
		return nil, err
	}
	return parseFileData(data, false)
}

func readAllAt(r io.ReaderAt, size int) ([]byte, error) {
	out := make([]byte, size)
	var off int64
	for off < int64(size) {
		n, err := r.ReadAt(out[off:], off)
		off += int64(n)
		if err == nil {
			continue
		}
		if err == io.EOF && off == int64(size) {
			break
		}
		return nil, err
	}
	return out, nil
}

func parseFileData(data []byte, mmapped bool) (*File, error) {
	hdr, ok := decodeHeader(data)
	if !ok {
		return nil, ErrCorruptFile
	}
	if !hdr.Valid() {
		return nil, ErrInvalidMagic
	}
	if !hdr.Compatible() {
		return nil, ErrUnsupportedVersion
	}
	if hdr.FileSize != uint64(len(data)) {
		return nil, ErrCorruptFile
	}

	dirStart := hdr.SectionDirOffset
	dirEnd := dirStart + uint64(hdr.SectionCount)*wbfSectionSize
	if dirStart < wbfHeaderSize || dirEnd < dirStart || dirEnd > uint64(len(data)) {
		return nil, ErrCorruptFile
	}

	sections := make([]Section, hdr.SectionCount)
	for i := range sections {
		start := int(dirStart) + i*wbfSectionSize
		sec, ok := decodeSection(data[start : start+wbfSectionSize])
		if !ok {
			return nil, ErrCorruptFile
		}
		sections[i] = sec
	}

	for i := range sections {
		s := &sections[i]
		end := s.Offset + s.Size
		if end < s.Offset || end > uint64(len(data)) {
			return nil, fmt.Errorf("%w: section %d out of bounds", ErrCorruptFile, i)
		}
		if s.Offset < wbfHeaderSize {
			return nil, fmt.Errorf("%w: section %d overlaps header", ErrCorruptFile, i)
		}
		if rangesOverlap(s.Offset, end, dirStart, dirEnd) {
			return nil, fmt.Errorf("%w: section %d overlaps section directory", ErrCorruptFile, i)
		}
		if s.Offset%wbfAlign != 0 {
			return nil, fmt.Errorf("%w: section %d offset not %d-byte aligned", ErrCorruptFile, i, wbfAlign)
		}
	}

	return &File{
		Data:     data,
		Header:   &hdr,
		Sections: sections,
		mmapped:  mmapped,
	}, nil
}

// Close releases file resources and any mmap backing.
func (f *File) Close() error {
	if f == nil {
		return nil
	}
	var err error
	if f.Data != nil && f.mmapped {
		err = unix.Munmap(f.Data)
	}
	f.Data = nil
	f.Header = nil
	f.Sections = nil
	f.mmapped = false
	return err
}

// Section returns the first section matching the given type, or nil.
func (f *File) Section(t SectionType) *Section {
	for i := range f.Sections {
		if f.Sections[i].Type == t {
			return &f.Sections[i]
		}
	}
	return nil
}

// SectionData returns a zero-copy slice covering the section payload.
// The caller must not retain this slice after Close.
func (f *File) SectionData(s *Section) []byte {
	if f == nil || s == nil || f.Data == nil {
		return nil
	}
	end := s.Offset + s.Size
	if end < s.Offset || end > uint64(len(f.Data)) {
		return nil
	}
	return f.Data[s.Offset:end]
}
