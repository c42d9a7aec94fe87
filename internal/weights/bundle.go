package weights

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/hyeh20/protein-sequence/pkg/wbf"
)

var ErrTensorNotFound = errors.New("weights: tensor not found")

// Bundle is a read-only view over a native weight file: a name -> tensor
// lookup on top of the WBF container.
type Bundle struct {
	file  *wbf.File
	index *wbf.TensorIndex
}

// OpenBundle opens and validates a native weight bundle.
func OpenBundle(path string) (*Bundle, error) {
	wf, err := wbf.Open(path)
	if err != nil {
		return nil, err
	}
	cleanup := func(err error) (*Bundle, error) {
		_ = wf.Close()
		return nil, err
	}

	indexSec := wf.Section(wbf.SectionTensorIndex)
	if indexSec == nil {
		return cleanup(errors.New("wbf: missing tensor index section"))
	}
	index, err := wbf.ParseTensorIndex(wf.SectionData(indexSec))
	if err != nil {
		return cleanup(err)
	}
	if wf.Section(wbf.SectionTensorData) == nil {
		return cleanup(errors.New("wbf: missing tensor data section"))
	}
	return &Bundle{file: wf, index: index}, nil
}

// Close releases the underlying mapping.
func (b *Bundle) Close() error {
	if b == nil || b.file == nil {
		return nil
	}
	err := b.file.Close()
	b.file = nil
	b.index = nil
	return err
}

// Records returns the sorted tensor records in the bundle.
func (b *Bundle) Records() []wbf.TensorRecord {
	if b == nil || b.index == nil {
		return nil
	}
	return b.index.Records()
}

// Tensor decodes the named tensor to float64 and returns its shape.
func (b *Bundle) Tensor(name string) ([]float64, []int, error) {
	if b == nil || b.index == nil {
		return nil, nil, ErrTensorNotFound
	}
	rec, ok := b.index.Find(name)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrTensorNotFound, name)
	}
	raw, err := b.index.TensorData(b.file, rec)
	if err != nil {
		return nil, nil, err
	}

	n := int(rec.NumElems())
	shape := make([]int, len(rec.Shape))
	for i, d := range rec.Shape {
		shape[i] = int(d)
	}

	out := make([]float64, n)
	switch rec.DType {
	case wbf.DTypeF64:
		for i := 0; i < n; i++ {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
		}
	case wbf.DTypeF32:
		for i := 0; i < n; i++ {
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
		}
	default:
		return nil, nil, fmt.Errorf("weights: tensor %s: unsupported dtype %d", name, rec.DType)
	}
	return out, shape, nil
}

// BundleTensor is one tensor to be written into a native bundle.
type BundleTensor struct {
	Name  string
	Shape []int
	Data  []float64
}

// WriteBundle writes the tensors to path as a WBF container. The write is
// atomic: data goes to a temp file in the same directory which is renamed
// over the target only after a successful Finalise.
func WriteBundle(path string, tensors []BundleTensor) (err error) {
	if len(tensors) == 0 {
		return errors.New("weights: no tensors to write")
	}

	// Build the data blob and index records with blob-relative offsets.
	var blobSize int
	for _, t := range tensors {
		n := 1
		for _, d := range t.Shape {
			n *= d
		}
		if n != len(t.Data) {
			return fmt.Errorf("weights: tensor %s: shape/data mismatch", t.Name)
		}
		blobSize += n * 8
	}
	blob := make([]byte, blobSize)
	records := make([]wbf.TensorRecord, 0, len(tensors))
	off := 0
	for _, t := range tensors {
		shape := make([]uint64, len(t.Shape))
		for i, d := range t.Shape {
			shape[i] = uint64(d)
		}
		for i, v := range t.Data {
			binary.LittleEndian.PutUint64(blob[off+i*8:], math.Float64bits(v))
		}
		records = append(records, wbf.TensorRecord{
			Name:     t.Name,
			DType:    wbf.DTypeF64,
			Shape:    shape,
			DataOff:  uint64(off),
			DataSize: uint64(len(t.Data) * 8),
		})
		off += len(t.Data) * 8
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".wbf-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	w, err := wbf.NewWriter(tmp)
	if err != nil {
		return err
	}
	dataOff, err := w.WriteSection(wbf.SectionTensorData, blob)
	if err != nil {
		return err
	}
	for i := range records {
		records[i].DataOff += dataOff
	}
	indexPayload, err := wbf.EncodeTensorIndex(records)
	if err != nil {
		return err
	}
	if _, err = w.WriteSection(wbf.SectionTensorIndex, indexPayload); err != nil {
		return err
	}
	if err = w.Finalise(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
