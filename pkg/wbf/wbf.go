// Package wbf implements the Weight Bundle Format.
//
// WBF is a single-file, memory-mappable container for a flat set of named
// floating-point tensors. It describes data only and never implies runtime
// behaviour; the network architecture decides what each tensor means.
package wbf

import (
	"encoding/binary"
	"errors"
)

const (
	// MagicWBF is the file magic for all WBF containers, encoded as "WBF\0".
	MagicWBF = "WBF\x00"

	// CurrentMajor changes only on breaking format changes.
	CurrentMajor uint16 = 1

	// CurrentMinor may add new optional sections or fields.
	CurrentMinor uint16 = 0
)

const (
	wbfAlign       = 8
	wbfHeaderSize  = 32
	wbfSectionSize = 24
)

type SectionType uint32

const (
	SectionTensorIndex SectionType = 0x0001
	SectionTensorData  SectionType = 0x0002
)

var (
	ErrInvalidMagic       = errors.New("wbf: invalid magic")
	ErrUnsupportedVersion = errors.New("wbf: unsupported major version")
	ErrCorruptFile        = errors.New("wbf: corrupt file")
)

// DType identifies the tensor element encoding. Values are stable forever;
// add new ones only.
type DType uint32

const (
	DTypeUnknown DType = iota
	DTypeF32
	DTypeF64
)

// ElemSize returns the byte size of one element, or 0 for unknown dtypes.
func (d DType) ElemSize() int {
	switch d {
	case DTypeF32:
		return 4
	case DTypeF64:
		return 8
	default:
		return 0
	}
}

// Header is the fixed 32-byte file header.
//
// On-disk layout (little-endian):
//
//	magic[4] | major u16 | minor u16 | section_count u32 | reserved u32 |
//	section_dir_offset u64 | file_size u64
type Header struct {
	Magic            [4]byte
	Major            uint16
	Minor            uint16
	SectionCount     uint32
	SectionDirOffset uint64
	FileSize         uint64
}

func (h *Header) Valid() bool {
	return string(h.Magic[:]) == MagicWBF && h.SectionCount > 0
}

func (h *Header) Compatible() bool {
	return h.Major == CurrentMajor
}

// Section is one entry in the section directory.
//
// On-disk layout (little-endian): type u32 | reserved u32 | offset u64 | size u64
type Section struct {
	Type   SectionType
	Offset uint64
	Size   uint64
}

func (s *Section) End() uint64 { return s.Offset + s.Size }

func encodeHeader(dst []byte, h Header) bool {
	if len(dst) < wbfHeaderSize {
		return false
	}
	copy(dst[0:4], h.Magic[:])
	binary.LittleEndian.PutUint16(dst[4:6], h.Major)
	binary.LittleEndian.PutUint16(dst[6:8], h.Minor)
	binary.LittleEndian.PutUint32(dst[8:12], h.SectionCount)
	binary.LittleEndian.PutUint32(dst[12:16], 0)
	binary.LittleEndian.PutUint64(dst[16:24], h.SectionDirOffset)
	binary.LittleEndian.PutUint64(dst[24:32], h.FileSize)
	return true
}

func decodeHeader(src []byte) (Header, bool) {
	if len(src) < wbfHeaderSize {
		return Header{}, false
	}
	var h Header
	copy(h.Magic[:], src[0:4])
	h.Major = binary.LittleEndian.Uint16(src[4:6])
	h.Minor = binary.LittleEndian.Uint16(src[6:8])
	h.SectionCount = binary.LittleEndian.Uint32(src[8:12])
	h.SectionDirOffset = binary.LittleEndian.Uint64(src[16:24])
	h.FileSize = binary.LittleEndian.Uint64(src[24:32])
	return h, true
}

func encodeSection(dst []byte, s Section) bool {
	if len(dst) < wbfSectionSize {
		return false
	}
	binary.LittleEndian.PutUint32(dst[0:4], uint32(s.Type))
	binary.LittleEndian.PutUint32(dst[4:8], 0)
	binary.LittleEndian.PutUint64(dst[8:16], s.Offset)
	binary.LittleEndian.PutUint64(dst[16:24], s.Size)
	return true
}

func decodeSection(src []byte) (Section, bool) {
	if len(src) < wbfSectionSize {
		return Section{}, false
	}
	return Section{
		Type:   SectionType(binary.LittleEndian.Uint32(src[0:4])),
		Offset: binary.LittleEndian.Uint64(src[8:16]),
		Size:   binary.LittleEndian.Uint64(src[16:24]),
	}, true
}

func rangesOverlap(a0, a1, b0, b1 uint64) bool {
	// half-open ranges [a0,a1) and [b0,b1)
	return a0 < b1 && b0 < a1
}
