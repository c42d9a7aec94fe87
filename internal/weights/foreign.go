package weights

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/goccy/go-json"
)

// ForeignTensorInfo describes one tensor inside a foreign checkpoint export.
type ForeignTensorInfo struct {
	DType string
	Shape []int
	Start int64
	End   int64
}

// ForeignFile reads the exported checkpoint format the pretrained models are
// distributed in: a little-endian uint64 header length, a JSON tensor index,
// then the concatenated raw tensor payloads. Tensors are float32 and conv
// kernels are stored in HWIO layout (kernel height, kernel width, input
// channels, output channels).
type ForeignFile struct {
	Path      string
	DataStart int64
	Tensors   map[string]ForeignTensorInfo
}

type foreignHeader struct {
	DType       string  `json:"dtype"`
	Shape       []int   `json:"shape"`
	DataOffsets []int64 `json:"data_offsets"`
}

// OpenForeign parses the header of a foreign checkpoint export.
func OpenForeign(path string) (*ForeignFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var lenBuf [8]byte
	if _, err := io.ReadFull(f, lenBuf[:]); err != nil {
		return nil, err
	}
	headerLen := binary.LittleEndian.Uint64(lenBuf[:])
	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(f, headerBytes); err != nil {
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &raw); err != nil {
		return nil, err
	}
	delete(raw, "__metadata__")

	tensors := make(map[string]ForeignTensorInfo, len(raw))
	for name, msg := range raw {
		var th foreignHeader
		if err := json.Unmarshal(msg, &th); err != nil {
			return nil, fmt.Errorf("parse tensor %s: %w", name, err)
		}
		if len(th.DataOffsets) != 2 || th.DataOffsets[1] < th.DataOffsets[0] {
			return nil, fmt.Errorf("tensor %s: invalid data_offsets", name)
		}
		tensors[name] = ForeignTensorInfo{
			DType: th.DType,
			Shape: th.Shape,
			Start: th.DataOffsets[0],
			End:   th.DataOffsets[1],
		}
	}
	return &ForeignFile{
		Path:      path,
		DataStart: int64(8 + headerLen),
		Tensors:   tensors,
	}, nil
}

// Tensor returns the index entry for a tensor name.
func (f *ForeignFile) Tensor(name string) (ForeignTensorInfo, bool) {
	t, ok := f.Tensors[name]
	return t, ok
}

// ReadTensorF32 reads and decodes the named tensor.
func (f *ForeignFile) ReadTensorF32(name string) ([]float32, ForeignTensorInfo, error) {
	info, ok := f.Tensors[name]
	if !ok {
		return nil, ForeignTensorInfo{}, fmt.Errorf("%w: %s", ErrTensorNotFound, name)
	}
	if info.DType != "F32" {
		return nil, ForeignTensorInfo{}, fmt.Errorf("tensor %s: unsupported dtype %s", name, info.DType)
	}
	n := 1
	for _, d := range info.Shape {
		if d <= 0 {
			return nil, ForeignTensorInfo{}, fmt.Errorf("tensor %s: invalid dim %d", name, d)
		}
		n *= d
	}
	if info.End-info.Start != int64(n*4) {
		return nil, ForeignTensorInfo{}, fmt.Errorf("tensor %s: invalid f32 data size", name)
	}

	file, err := os.Open(f.Path)
	if err != nil {
		return nil, ForeignTensorInfo{}, err
	}
	defer func() { _ = file.Close() }()

	raw := make([]byte, n*4)
	if _, err := file.ReadAt(raw, f.DataStart+info.Start); err != nil {
		return nil, ForeignTensorInfo{}, fmt.Errorf("read tensor %s: %w", name, err)
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, info, nil
}
