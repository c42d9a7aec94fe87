package tensor

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Conv2D applies a 2-D convolution with square kernel k, the given stride,
// dilation and symmetric zero padding. Weights are laid out flat as
// [outChan, inChan, k, k]; bias has one entry per output channel.
//
// Output spatial size follows the usual formula
// (H + 2*pad - dilation*(k-1) - 1)/stride + 1.
func Conv2D(x *Tensor, weight []float64, bias []float64, outChan, k, stride, dilation, pad int) *Tensor {
	inChan := x.C
	if len(weight) != outChan*inChan*k*k {
		panic("conv weight length mismatch")
	}
	if len(bias) != outChan {
		panic("conv bias length mismatch")
	}
	span := dilation*(k-1) + 1
	outH := (x.H+2*pad-span)/stride + 1
	outW := (x.W+2*pad-span)/stride + 1

	out := New(x.N, outChan, outH, outW)
	for n := 0; n < x.N; n++ {
		for oc := 0; oc < outChan; oc++ {
			for oy := 0; oy < outH; oy++ {
				for ox := 0; ox < outW; ox++ {
					sum := bias[oc]
					for ic := 0; ic < inChan; ic++ {
						wBase := ((oc*inChan + ic) * k) * k
						for dy := 0; dy < k; dy++ {
							iy := oy*stride - pad + dy*dilation
							if iy < 0 || iy >= x.H {
								continue
							}
							for dx := 0; dx < k; dx++ {
								ix := ox*stride - pad + dx*dilation
								if ix < 0 || ix >= x.W {
									continue
								}
								sum += x.Data[x.Index(n, ic, iy, ix)] * weight[wBase+dy*k+dx]
							}
						}
					}
					out.Data[out.Index(n, oc, oy, ox)] = sum
				}
			}
		}
	}
	return out
}

// InstanceNorm normalises each (batch, channel) spatial plane to zero mean
// and unit variance, then applies the learnable per-channel scale and shift.
// The transform is done in place.
func InstanceNorm(x *Tensor, scale, shift []float64, eps float64) {
	if len(scale) != x.C || len(shift) != x.C {
		panic("instance norm parameter length mismatch")
	}
	area := float64(x.H * x.W)
	for n := 0; n < x.N; n++ {
		for c := 0; c < x.C; c++ {
			plane := x.Plane(n, c)
			mean := floats.Sum(plane) / area
			var variance float64
			for _, v := range plane {
				d := v - mean
				variance += d * d
			}
			variance /= area
			inv := 1 / math.Sqrt(variance+eps)
			for i, v := range plane {
				plane[i] = (v-mean)*inv*scale[c] + shift[c]
			}
		}
	}
}

// ELU applies the exponential linear unit in place: x for x > 0,
// exp(x)-1 otherwise.
func ELU(x *Tensor) {
	for i, v := range x.Data {
		if v < 0 {
			x.Data[i] = math.Exp(v) - 1
		}
	}
}

// SoftmaxChannels converts raw per-channel scores into a probability
// distribution over channels at each (batch, row, column) position, in place.
func SoftmaxChannels(x *Tensor) {
	stride := x.H * x.W
	for n := 0; n < x.N; n++ {
		base := n * x.C * stride
		for p := 0; p < stride; p++ {
			maxV := math.Inf(-1)
			for c := 0; c < x.C; c++ {
				if v := x.Data[base+c*stride+p]; v > maxV {
					maxV = v
				}
			}
			var sum float64
			for c := 0; c < x.C; c++ {
				e := math.Exp(x.Data[base+c*stride+p] - maxV)
				x.Data[base+c*stride+p] = e
				sum += e
			}
			inv := 1 / sum
			for c := 0; c < x.C; c++ {
				x.Data[base+c*stride+p] *= inv
			}
		}
	}
}

// Transpose23 returns a copy with the two spatial axes swapped, so that
// out[n, c, y, x] = in[n, c, x, y].
func Transpose23(x *Tensor) *Tensor {
	out := New(x.N, x.C, x.W, x.H)
	for n := 0; n < x.N; n++ {
		for c := 0; c < x.C; c++ {
			for y := 0; y < x.H; y++ {
				for xx := 0; xx < x.W; xx++ {
					out.Data[out.Index(n, c, xx, y)] = x.Data[x.Index(n, c, y, xx)]
				}
			}
		}
	}
	return out
}

// Symmetrize returns 0.5 * (x + transpose(x)) across the two spatial axes,
// enforcing symmetry under exchange of the two position indices. The spatial
// dimensions must be square.
func Symmetrize(x *Tensor) *Tensor {
	if x.H != x.W {
		panic("symmetrize requires square spatial dimensions")
	}
	out := Transpose23(x)
	floats.Add(out.Data, x.Data)
	floats.Scale(0.5, out.Data)
	return out
}
