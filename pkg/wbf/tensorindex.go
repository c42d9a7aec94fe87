package wbf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

// TensorRecord describes one tensor in the bundle. DataOff is an absolute
// file offset (not section-relative), which makes slicing payloads out of
// the mapped file trivial.
type TensorRecord struct {
	Name     string
	DType    DType
	Shape    []uint64
	DataOff  uint64
	DataSize uint64
}

// NumElems returns the element count implied by the shape.
func (r TensorRecord) NumElems() uint64 {
	n := uint64(1)
	for _, d := range r.Shape {
		n *= d
	}
	return n
}

// EncodeTensorIndex builds a tensor index section payload. Records are
// sorted by name for deterministic output and binary-search lookup.
//
// Payload layout (little-endian):
//
//	count u32
//	per record: name_len u32 | name bytes | dtype u32 | rank u32 |
//	            dims u64[rank] | data_off u64 | data_size u64
func EncodeTensorIndex(records []TensorRecord) ([]byte, error) {
	if len(records) == 0 {
		return nil, errors.New("wbf: tensor index requires at least one record")
	}
	recs := make([]TensorRecord, len(records))
	copy(recs, records)
	sort.Slice(recs, func(i, j int) bool { return recs[i].Name < recs[j].Name })

	size := 4
	for _, r := range recs {
		if r.Name == "" {
			return nil, errors.New("wbf: tensor name must be non-empty")
		}
		size += 4 + len(r.Name) + 4 + 4 + 8*len(r.Shape) + 8 + 8
	}

	out := make([]byte, size)
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(recs)))
	p := 4
	for _, r := range recs {
		binary.LittleEndian.PutUint32(out[p:], uint32(len(r.Name)))
		p += 4
		copy(out[p:], r.Name)
		p += len(r.Name)
		binary.LittleEndian.PutUint32(out[p:], uint32(r.DType))
		p += 4
		binary.LittleEndian.PutUint32(out[p:], uint32(len(r.Shape)))
		p += 4
		for _, d := range r.Shape {
			binary.LittleEndian.PutUint64(out[p:], d)
			p += 8
		}
		binary.LittleEndian.PutUint64(out[p:], r.DataOff)
		p += 8
		binary.LittleEndian.PutUint64(out[p:], r.DataSize)
		p += 8
	}
	return out, nil
}

// TensorIndex is a parsed tensor index with name lookup.
type TensorIndex struct {
	records []TensorRecord
}

// ParseTensorIndex validates and decodes a tensor index section payload.
func ParseTensorIndex(sec []byte) (*TensorIndex, error) {
	if len(sec) < 4 {
		return nil, ErrCorruptFile
	}
	count := binary.LittleEndian.Uint32(sec[0:4])
	if count == 0 {
		return nil, ErrCorruptFile
	}
	p := uint64(4)
	secLen := uint64(len(sec))

	records := make([]TensorRecord, 0, count)
	for i := uint32(0); i < count; i++ {
		if p+4 > secLen {
			return nil, ErrCorruptFile
		}
		nameLen := uint64(binary.LittleEndian.Uint32(sec[p:]))
		p += 4
		if nameLen == 0 || p+nameLen > secLen {
			return nil, ErrCorruptFile
		}
		name := string(sec[p : p+nameLen])
		p += nameLen

		if p+8 > secLen {
			return nil, ErrCorruptFile
		}
		dtype := DType(binary.LittleEndian.Uint32(sec[p:]))
		rank := uint64(binary.LittleEndian.Uint32(sec[p+4:]))
		p += 8

		if rank > 8 || p+8*rank > secLen {
			return nil, ErrCorruptFile
		}
		shape := make([]uint64, rank)
		for d := range shape {
			shape[d] = binary.LittleEndian.Uint64(sec[p:])
			p += 8
		}

		if p+16 > secLen {
			return nil, ErrCorruptFile
		}
		rec := TensorRecord{
			Name:     name,
			DType:    dtype,
			Shape:    shape,
			DataOff:  binary.LittleEndian.Uint64(sec[p:]),
			DataSize: binary.LittleEndian.Uint64(sec[p+8:]),
		}
		p += 16

		if elem := dtype.ElemSize(); elem != 0 && rec.DataSize != rec.NumElems()*uint64(elem) {
			return nil, fmt.Errorf("%w: tensor %s size/shape mismatch", ErrCorruptFile, name)
		}
		records = append(records, rec)
	}

	// Encoded sorted; verify so lookup can rely on it.
	for i := 1; i < len(records); i++ {
		if records[i-1].Name >= records[i].Name {
			return nil, fmt.Errorf("%w: tensor index not sorted", ErrCorruptFile)
		}
	}
	return &TensorIndex{records: records}, nil
}

// Count returns the number of tensors in the index.
func (ti *TensorIndex) Count() int { return len(ti.records) }

// Records returns the sorted records. Callers must not modify the slice.
func (ti *TensorIndex) Records() []TensorRecord { return ti.records }

// Find returns the record for the given tensor name.
func (ti *TensorIndex) Find(name string) (TensorRecord, bool) {
	i := sort.Search(len(ti.records), func(i int) bool { return ti.records[i].Name >= name })
	if i < len(ti.records) && ti.records[i].Name == name {
		return ti.records[i], true
	}
	return TensorRecord{}, false
}

// TensorData returns a zero-copy view of the tensor payload bytes from the
// mapped file. The caller must not retain the slice after File.Close.
func (ti *TensorIndex) TensorData(f *File, rec TensorRecord) ([]byte, error) {
	if f == nil || f.Data == nil {
		return nil, ErrCorruptFile
	}
	end := rec.DataOff + rec.DataSize
	if end < rec.DataOff || end > uint64(len(f.Data)) {
		return nil, ErrCorruptFile
	}
	return f.Data[rec.DataOff:end], nil
}
