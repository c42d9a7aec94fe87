package model

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/hyeh20/protein-sequence/internal/tensor"
)

// Architecture constants. These are fixed by the pretrained weights and must
// not change.
const (
	InputChannels = 526
	TrunkChannels = 64
	KernelSize    = 3
	NormEpsilon   = 1e-6

	DefaultBlockCount = 61

	DistBins     = 37
	ThetaBins    = 25
	PhiBins      = 13
	OmegaBins    = 25
	BackboneBins = 3
)

// ErrShapeMismatch reports an input tensor that violates the network's
// rank-4, 526-channel, square-spatial contract.
var ErrShapeMismatch = errors.New("model: shape mismatch")

// Config holds the construction parameters shared by all ensemble members.
type Config struct {
	// Blocks is the number of residual blocks in the trunk.
	// Zero means DefaultBlockCount.
	Blocks int

	// Decoder enables the output heads that turn the trunk features into
	// distance and orientation distributions.
	Decoder bool

	// Seed drives the deterministic initialisation used before weights are
	// loaded.
	Seed int64
}

func (c Config) blockCount() int {
	if c.Blocks <= 0 {
		return DefaultBlockCount
	}
	return c.Blocks
}

// Network predicts inter-residue distance and orientation distributions from
// a (1, 526, L, L) pairwise feature tensor.
type Network struct {
	cfg Config

	conv0 *conv2d
	norm0 *instanceNorm

	blocks []*Block

	// Decoder heads. convBackbone exists only so that weight loading finds
	// its parameters; the forward path never invokes it.
	convTheta    *conv2d
	convPhi      *conv2d
	convDist     *conv2d
	convBackbone *conv2d
	convOmega    *conv2d
}

// Prediction is the result of a forward pass. In decoder mode the four
// distribution tensors are set; otherwise only Trunk is.
type Prediction struct {
	Dist  *tensor.Tensor
	Theta *tensor.Tensor
	Phi   *tensor.Tensor
	Omega *tensor.Tensor

	Trunk *tensor.Tensor
}

// New constructs a network. Dilations are assigned to blocks by cycling
// 1, 2, 4, 8, 16 regardless of the block count.
func New(cfg Config) *Network {
	rng := rand.New(rand.NewSource(cfg.Seed))
	n := &Network{
		cfg:   cfg,
		conv0: newConv2D(InputChannels, TrunkChannels, 1, 1, rng),
		norm0: newInstanceNorm(TrunkChannels, NormEpsilon),
	}
	count := cfg.blockCount()
	n.blocks = make([]*Block, count)
	for i := range n.blocks {
		n.blocks[i] = NewBlock(BlockDilation(i), rng)
	}
	if cfg.Decoder {
		n.convTheta = newConv2D(TrunkChannels, ThetaBins, 1, 1, rng)
		n.convPhi = newConv2D(TrunkChannels, PhiBins, 1, 1, rng)
		n.convDist = newConv2D(TrunkChannels, DistBins, 1, 1, rng)
		n.convBackbone = newConv2D(TrunkChannels, BackboneBins, 1, 1, rng)
		n.convOmega = newConv2D(TrunkChannels, OmegaBins, 1, 1, rng)
	}
	return n
}

// Config returns the construction parameters.
func (n *Network) Config() Config { return n.cfg }

// BlockCount returns the number of residual blocks in the trunk.
func (n *Network) BlockCount() int { return len(n.blocks) }

// Forward runs the network on a (1, 526, L, L) feature tensor.
//
// In decoder mode the theta and phi heads read the raw trunk output, the
// trunk is then symmetrised across the two position axes, and the distance
// and omega heads read the symmetrised features. Distance and omega are
// physically symmetric under residue-pair exchange; theta and phi are not.
func (n *Network) Forward(x *tensor.Tensor) (*Prediction, error) {
	if x == nil {
		return nil, fmt.Errorf("%w: nil input", ErrShapeMismatch)
	}
	if x.C != InputChannels {
		return nil, fmt.Errorf("%w: expected %d input channels, got %d", ErrShapeMismatch, InputChannels, x.C)
	}
	if x.H != x.W {
		return nil, fmt.Errorf("%w: expected square spatial dimensions, got %dx%d", ErrShapeMismatch, x.H, x.W)
	}

	h, err := n.conv0.forward(x)
	if err != nil {
		return nil, err
	}
	n.norm0.forward(h)
	tensor.ELU(h)

	acc := h.Clone()
	for _, b := range n.blocks {
		h, acc, err = b.Forward(h, acc)
		if err != nil {
			return nil, err
		}
	}

	if !n.cfg.Decoder {
		return &Prediction{Trunk: h}, nil
	}

	theta, err := n.convTheta.forward(h)
	if err != nil {
		return nil, err
	}
	tensor.SoftmaxChannels(theta)

	phi, err := n.convPhi.forward(h)
	if err != nil {
		return nil, err
	}
	tensor.SoftmaxChannels(phi)

	sym := tensor.Symmetrize(h)

	dist, err := n.convDist.forward(sym)
	if err != nil {
		return nil, err
	}
	tensor.SoftmaxChannels(dist)

	omega, err := n.convOmega.forward(sym)
	if err != nil {
		return nil, err
	}
	tensor.SoftmaxChannels(omega)

	return &Prediction{Dist: dist, Theta: theta, Phi: phi, Omega: omega}, nil
}
