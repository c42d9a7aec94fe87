package weights

import (
	"fmt"
	"strings"
)

// NamedParam is the name and shape of one model parameter, used to drive
// conversion without depending on the network implementation.
type NamedParam struct {
	Name  string
	Shape []int
}

// ForeignName translates a native parameter name to the tensor name used in
// the foreign checkpoint export. Foreign names are slash-separated; conv
// kernels are called "kernel", normalisation scale/shift are "gamma"/"beta".
func ForeignName(native string) string {
	prefix, suffix := native, ""
	if i := strings.LastIndex(native, "."); i >= 0 {
		prefix, suffix = native[:i], native[i+1:]
	}
	norm := strings.Contains(prefix, "instnorm")
	switch {
	case norm && suffix == "weight":
		suffix = "gamma"
	case norm && suffix == "bias":
		suffix = "beta"
	case suffix == "weight":
		suffix = "kernel"
	}
	return strings.ReplaceAll(prefix, ".", "/") + "/" + suffix
}

// Convert derives a native bundle at nativePath from a foreign checkpoint
// export, keyed by the given parameter table. Conv kernels are transposed
// from the foreign HWIO layout to the native OIHW layout and all values are
// widened from float32 to float64.
func Convert(f *ForeignFile, nativePath string, params []NamedParam) error {
	tensors := make([]BundleTensor, 0, len(params))
	for _, p := range params {
		fname := ForeignName(p.Name)
		data, info, err := f.ReadTensorF32(fname)
		if err != nil {
			return fmt.Errorf("convert %s (foreign %s): %w", p.Name, fname, err)
		}

		var out []float64
		switch {
		case len(p.Shape) == 4:
			out, err = transposeHWIOtoOIHW(data, info.Shape, p.Shape)
			if err != nil {
				return fmt.Errorf("convert %s (foreign %s): %w", p.Name, fname, err)
			}
		default:
			if !shapesEqual(info.Shape, p.Shape) {
				return fmt.Errorf("convert %s: foreign shape %v does not match %v", p.Name, info.Shape, p.Shape)
			}
			out = make([]float64, len(data))
			for i, v := range data {
				out[i] = float64(v)
			}
		}

		tensors = append(tensors, BundleTensor{Name: p.Name, Shape: p.Shape, Data: out})
	}
	return WriteBundle(nativePath, tensors)
}

// transposeHWIOtoOIHW rearranges a conv kernel from foreign [kh, kw, in, out]
// order to native [out, in, kh, kw] order.
func transposeHWIOtoOIHW(data []float32, foreignShape, nativeShape []int) ([]float64, error) {
	if len(foreignShape) != 4 {
		return nil, fmt.Errorf("expected rank-4 foreign kernel, got shape %v", foreignShape)
	}
	kh, kw, in, out := foreignShape[0], foreignShape[1], foreignShape[2], foreignShape[3]
	want := []int{out, in, kh, kw}
	if !shapesEqual(want, nativeShape) {
		return nil, fmt.Errorf("foreign kernel shape %v does not transpose to %v", foreignShape, nativeShape)
	}
	res := make([]float64, len(data))
	for y := 0; y < kh; y++ {
		for x := 0; x < kw; x++ {
			for i := 0; i < in; i++ {
				for o := 0; o < out; o++ {
					src := ((y*kw+x)*in + i) * out
					dst := ((o*in+i)*kh + y) * kw
					res[dst+x] = float64(data[src+o])
				}
			}
		}
	}
	return res, nil
}

func shapesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
