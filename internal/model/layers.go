package model

import (
	"fmt"
	"math/rand"

	"github.com/hyeh20/protein-sequence/internal/tensor"
)

// conv2d is a square-kernel convolution with learnable weight and bias.
// Weight layout is flat [outChan, inChan, k, k]; padding is derived from the
// dilation via Pad so that stride-1 convolutions preserve spatial size.
type conv2d struct {
	inChan, outChan int
	kernel          int
	dilation        int
	pad             int

	weight []float64
	bias   []float64
}

func newConv2D(inChan, outChan, kernel, dilation int, rng *rand.Rand) *conv2d {
	c := &conv2d{
		inChan:   inChan,
		outChan:  outChan,
		kernel:   kernel,
		dilation: dilation,
		pad:      Pad(dilation, kernel, 1),
		weight:   make([]float64, outChan*inChan*kernel*kernel),
		bias:     make([]float64, outChan),
	}
	// Small random init so an unloaded network still produces finite,
	// non-degenerate activations.
	scale := 1 / float64(inChan*kernel*kernel)
	for i := range c.weight {
		c.weight[i] = (rng.Float64() - 0.5) * scale
	}
	return c
}

// forward applies the convolution and verifies the padding rule preserved
// the spatial size (the rule is an approximation calibrated at size 139).
func (c *conv2d) forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if x.C != c.inChan {
		return nil, fmt.Errorf("%w: conv expects %d input channels, got %d", ErrShapeMismatch, c.inChan, x.C)
	}
	out := tensor.Conv2D(x, c.weight, c.bias, c.outChan, c.kernel, 1, c.dilation, c.pad)
	if out.H != x.H || out.W != x.W {
		return nil, fmt.Errorf("%w: padding rule did not preserve spatial size %dx%d (got %dx%d, dilation %d)",
			ErrShapeMismatch, x.H, x.W, out.H, out.W, c.dilation)
	}
	return out, nil
}

// instanceNorm holds the learnable per-channel scale and shift for an
// affine instance normalisation.
type instanceNorm struct {
	scale []float64
	shift []float64
	eps   float64
}

func newInstanceNorm(channels int, eps float64) *instanceNorm {
	n := &instanceNorm{
		scale: make([]float64, channels),
		shift: make([]float64, channels),
		eps:   eps,
	}
	for i := range n.scale {
		n.scale[i] = 1
	}
	return n
}

func (n *instanceNorm) forward(x *tensor.Tensor) {
	tensor.InstanceNorm(x, n.scale, n.shift, n.eps)
}
