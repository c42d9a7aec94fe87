package tensor

import "math/rand"

// Tensor is a dense rank-4 array in NCHW order (batch, channel, row, column)
// backed by a flat row-major float64 slice.
//
// Tensor does not perform any memory safety beyond the checks performed by
// Go's slice types; out-of-range indices will panic.
type Tensor struct {
	N, C, H, W int
	Data       []float64
}

// New allocates a zero-initialised tensor with the given dimensions.
func New(n, c, h, w int) *Tensor {
	if n < 0 || c < 0 || h < 0 || w < 0 {
		panic("negative dimension for tensor")
	}
	return &Tensor{N: n, C: c, H: h, W: w, Data: make([]float64, n*c*h*w)}
}

// NewFromData wraps existing data without copying. The data length must
// match n*c*h*w.
func NewFromData(n, c, h, w int, data []float64) *Tensor {
	if n*c*h*w != len(data) {
		panic("data length mismatch")
	}
	return &Tensor{N: n, C: c, H: h, W: w, Data: data}
}

// NumElems returns the total number of elements.
func (t *Tensor) NumElems() int { return t.N * t.C * t.H * t.W }

// Index returns the flat index of (n, c, y, x).
func (t *Tensor) Index(n, c, y, x int) int {
	return ((n*t.C+c)*t.H+y)*t.W + x
}

// At returns the element at (n, c, y, x).
func (t *Tensor) At(n, c, y, x int) float64 { return t.Data[t.Index(n, c, y, x)] }

// Set stores v at (n, c, y, x).
func (t *Tensor) Set(n, c, y, x int, v float64) { t.Data[t.Index(n, c, y, x)] = v }

// Plane returns the contiguous (n, c) spatial plane as a slice view.
// Modifications to the returned slice update the tensor.
func (t *Tensor) Plane(n, c int) []float64 {
	start := (n*t.C + c) * t.H * t.W
	return t.Data[start : start+t.H*t.W]
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	out := &Tensor{N: t.N, C: t.C, H: t.H, W: t.W, Data: make([]float64, len(t.Data))}
	copy(out.Data, t.Data)
	return out
}

// SameShape reports whether t and o have identical dimensions.
func (t *Tensor) SameShape(o *Tensor) bool {
	return t.N == o.N && t.C == o.C && t.H == o.H && t.W == o.W
}

// Shape returns the dimensions as a slice.
func (t *Tensor) Shape() []int { return []int{t.N, t.C, t.H, t.W} }

// FillRand fills the tensor with reproducible pseudo-random values in a small
// range around zero. Multiple calls with the same seed produce identical
// tensors.
func FillRand(t *Tensor, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for i := range t.Data {
		t.Data[i] = (rng.Float64() - 0.5) * 0.2
	}
}
