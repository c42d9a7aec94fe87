package model

// Pad computes the symmetric spatial padding for a convolution with the
// given dilation, kernel size and stride so that output spatial size matches
// input size when stride is 1.
//
// The formula is calibrated against a reference spatial size of 139 and is
// not an exact size-preserving closed form for arbitrary sizes; convolutions
// in this package verify at runtime that the spatial size was preserved.
func Pad(dilation, kernel, stride int) int {
	return ((139 * stride) - 140 + kernel + (kernel-1)*(dilation-1)) / 2
}

// BlockDilation returns the dilation assigned to the i-th residual block
// (0-indexed): the cycle 1, 2, 4, 8, 16, restarting at 1 after 16.
func BlockDilation(i int) int {
	return 1 << (i % 5)
}
