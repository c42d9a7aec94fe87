package model

import (
	"math/rand"

	"github.com/hyeh20/protein-sequence/internal/tensor"
)

// Block is the two-convolution residual unit of the trunk. Each block feeds
// its final activation into the next block's second convolution output (a
// cascading residual), rather than adding a skip around itself.
type Block struct {
	dilation int

	conv1 *conv2d
	norm1 *instanceNorm
	conv2 *conv2d
	norm2 *instanceNorm
}

// NewBlock constructs a 64->64 channel block with 3x3 kernels at the given
// dilation.
func NewBlock(dilation int, rng *rand.Rand) *Block {
	return &Block{
		dilation: dilation,
		conv1:    newConv2D(TrunkChannels, TrunkChannels, KernelSize, dilation, rng),
		norm1:    newInstanceNorm(TrunkChannels, NormEpsilon),
		conv2:    newConv2D(TrunkChannels, TrunkChannels, KernelSize, dilation, rng),
		norm2:    newInstanceNorm(TrunkChannels, NormEpsilon),
	}
}

// Dilation returns the dilation this block was constructed with.
func (b *Block) Dilation() int { return b.dilation }

// Forward runs the block. acc is the residual accumulator produced by the
// previous block (or the input projection for the first block); it is added
// to the second convolution's normalised output before the final activation.
// The returned accumulator is a copy of the block output, to be threaded
// into the next block.
func (b *Block) Forward(x, acc *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	h, err := b.conv1.forward(x)
	if err != nil {
		return nil, nil, err
	}
	b.norm1.forward(h)
	tensor.ELU(h)

	out, err := b.conv2.forward(h)
	if err != nil {
		return nil, nil, err
	}
	b.norm2.forward(out)
	for i, v := range acc.Data {
		out.Data[i] += v
	}
	tensor.ELU(out)

	return out, out.Clone(), nil
}
