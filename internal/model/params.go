package model

import "fmt"

// Param is one named parameter of the network. Data is a mutable view into
// the model's storage, so writing into it updates the model.
type Param struct {
	Name  string
	Shape []int
	Data  []float64
}

// NumElems returns the element count implied by the shape.
func (p Param) NumElems() int {
	n := 1
	for _, d := range p.Shape {
		n *= d
	}
	return n
}

func convParams(name string, c *conv2d) []Param {
	return []Param{
		{Name: name + ".weight", Shape: []int{c.outChan, c.inChan, c.kernel, c.kernel}, Data: c.weight},
		{Name: name + ".bias", Shape: []int{c.outChan}, Data: c.bias},
	}
}

func normParams(name string, n *instanceNorm) []Param {
	return []Param{
		{Name: name + ".weight", Shape: []int{len(n.scale)}, Data: n.scale},
		{Name: name + ".bias", Shape: []int{len(n.shift)}, Data: n.shift},
	}
}

// Parameters returns the ordered named-parameter table used by weight
// loading. Names follow the serialised layout of the pretrained bundles:
// conv0, instnorm0, layers.<i>.{conv1,instnorm1,conv2,instnorm2} and, in
// decoder mode, conv_{theta,phi,dist,bb,omega}.
func (n *Network) Parameters() []Param {
	params := make([]Param, 0, 4+len(n.blocks)*8+10)
	params = append(params, convParams("conv0", n.conv0)...)
	params = append(params, normParams("instnorm0", n.norm0)...)
	for i, b := range n.blocks {
		prefix := fmt.Sprintf("layers.%d", i)
		params = append(params, convParams(prefix+".conv1", b.conv1)...)
		params = append(params, normParams(prefix+".instnorm1", b.norm1)...)
		params = append(params, convParams(prefix+".conv2", b.conv2)...)
		params = append(params, normParams(prefix+".instnorm2", b.norm2)...)
	}
	if n.cfg.Decoder {
		params = append(params, convParams("conv_theta", n.convTheta)...)
		params = append(params, convParams("conv_phi", n.convPhi)...)
		params = append(params, convParams("conv_dist", n.convDist)...)
		params = append(params, convParams("conv_bb", n.convBackbone)...)
		params = append(params, convParams("conv_omega", n.convOmega)...)
	}
	return params
}
