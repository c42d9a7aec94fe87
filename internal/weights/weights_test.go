package weights

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"

	"github.com/hyeh20/protein-sequence/internal/model"
)

func TestForeignName(t *testing.T) {
	t.Parallel()
	cases := []struct {
		native  string
		foreign string
	}{
		{"conv0.weight", "conv0/kernel"},
		{"conv0.bias", "conv0/bias"},
		{"instnorm0.weight", "instnorm0/gamma"},
		{"instnorm0.bias", "instnorm0/beta"},
		{"layers.3.conv1.weight", "layers/3/conv1/kernel"},
		{"layers.3.instnorm2.bias", "layers/3/instnorm2/beta"},
		{"conv_theta.weight", "conv_theta/kernel"},
		{"conv_bb.bias", "conv_bb/bias"},
	}
	for _, tc := range cases {
		if got := ForeignName(tc.native); got != tc.foreign {
			t.Fatalf("ForeignName(%q): got %q, want %q", tc.native, got, tc.foreign)
		}
	}
}

func TestWriteBundleRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "model.wbf")
	tensors := []BundleTensor{
		{Name: "beta", Shape: []int{3}, Data: []float64{4, 5, 6}},
		{Name: "alpha", Shape: []int{2, 2}, Data: []float64{1, 2, 3, 4.5}},
	}
	if err := WriteBundle(path, tensors); err != nil {
		t.Fatalf("write: %v", err)
	}

	b, err := OpenBundle(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = b.Close() }()

	recs := b.Records()
	if len(recs) != 2 || recs[0].Name != "alpha" || recs[1].Name != "beta" {
		t.Fatalf("records: %+v", recs)
	}

	data, shape, err := b.Tensor("alpha")
	if err != nil {
		t.Fatalf("tensor alpha: %v", err)
	}
	if len(shape) != 2 || shape[0] != 2 || shape[1] != 2 {
		t.Fatalf("alpha shape: %v", shape)
	}
	want := []float64{1, 2, 3, 4.5}
	for i := range want {
		if data[i] != want[i] {
			t.Fatalf("alpha[%d]: got %v, want %v", i, data[i], want[i])
		}
	}

	if _, _, err := b.Tensor("gamma"); !errors.Is(err, ErrTensorNotFound) {
		t.Fatalf("got %v, want ErrTensorNotFound", err)
	}
}

func TestWriteBundleRejectsShapeMismatch(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.wbf")
	err := WriteBundle(path, []BundleTensor{
		{Name: "x", Shape: []int{3}, Data: []float64{1, 2}},
	})
	if err == nil {
		t.Fatal("shape/data mismatch accepted")
	}
	if _, statErr := os.Stat(path); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatal("failed write left a file behind")
	}
}

type foreignTensor struct {
	shape []int
	data  []float32
}

// writeForeignFile builds a checkpoint export: u64 header length, JSON tensor
// index, then concatenated little-endian f32 payloads.
func writeForeignFile(t *testing.T, path string, tensors map[string]foreignTensor) {
	t.Helper()

	header := make(map[string]map[string]any, len(tensors))
	var blob []byte
	off := 0
	for name, ft := range tensors {
		n := len(ft.data)
		raw := make([]byte, n*4)
		for i, v := range ft.data {
			binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
		}
		header[name] = map[string]any{
			"dtype":        "F32",
			"shape":        ft.shape,
			"data_offsets": []int{off, off + n*4},
		}
		blob = append(blob, raw...)
		off += n * 4
	}

	headerBytes, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	out := make([]byte, 8, 8+len(headerBytes)+len(blob))
	binary.LittleEndian.PutUint64(out, uint64(len(headerBytes)))
	out = append(out, headerBytes...)
	out = append(out, blob...)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		t.Fatalf("write foreign file: %v", err)
	}
}

func TestOpenForeignAndRead(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "ckpt.fwt")
	writeForeignFile(t, path, map[string]foreignTensor{
		"conv0/bias": {shape: []int{3}, data: []float32{1, 2, 3}},
	})

	ff, err := OpenForeign(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	info, ok := ff.Tensor("conv0/bias")
	if !ok {
		t.Fatal("tensor missing from index")
	}
	if info.DType != "F32" || len(info.Shape) != 1 || info.Shape[0] != 3 {
		t.Fatalf("info: %+v", info)
	}

	data, _, err := ff.ReadTensorF32("conv0/bias")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for i, want := range []float32{1, 2, 3} {
		if data[i] != want {
			t.Fatalf("data[%d]: got %v, want %v", i, data[i], want)
		}
	}

	if _, _, err := ff.ReadTensorF32("nope"); !errors.Is(err, ErrTensorNotFound) {
		t.Fatalf("got %v, want ErrTensorNotFound", err)
	}
}

func TestConvertTransposesKernels(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	foreignPath := filepath.Join(dir, "ckpt.fwt")
	nativePath := filepath.Join(dir, "out.wbf")

	// Foreign kernel in HWIO [1, 1, 3, 2]; value encodes (in, out) as 10*i+o.
	kernel := make([]float32, 6)
	for i := 0; i < 3; i++ {
		for o := 0; o < 2; o++ {
			kernel[i*2+o] = float32(10*i + o)
		}
	}
	writeForeignFile(t, foreignPath, map[string]foreignTensor{
		"conv0/kernel":    {shape: []int{1, 1, 3, 2}, data: kernel},
		"conv0/bias":      {shape: []int{2}, data: []float32{0.5, 1.5}},
		"instnorm0/gamma": {shape: []int{2}, data: []float32{1, 1}},
		"instnorm0/beta":  {shape: []int{2}, data: []float32{0, 0}},
	})

	ff, err := OpenForeign(foreignPath)
	if err != nil {
		t.Fatalf("open foreign: %v", err)
	}
	params := []NamedParam{
		{Name: "conv0.weight", Shape: []int{2, 3, 1, 1}},
		{Name: "conv0.bias", Shape: []int{2}},
		{Name: "instnorm0.weight", Shape: []int{2}},
		{Name: "instnorm0.bias", Shape: []int{2}},
	}
	if err := Convert(ff, nativePath, params); err != nil {
		t.Fatalf("convert: %v", err)
	}

	b, err := OpenBundle(nativePath)
	if err != nil {
		t.Fatalf("open bundle: %v", err)
	}
	defer func() { _ = b.Close() }()

	// Native OIHW [2, 3, 1, 1]: flat index o*3+i.
	data, _, err := b.Tensor("conv0.weight")
	if err != nil {
		t.Fatalf("read kernel: %v", err)
	}
	for o := 0; o < 2; o++ {
		for i := 0; i < 3; i++ {
			if got, want := data[o*3+i], float64(10*i+o); got != want {
				t.Fatalf("kernel[o=%d,i=%d]: got %v, want %v", o, i, got, want)
			}
		}
	}

	bias, _, err := b.Tensor("conv0.bias")
	if err != nil {
		t.Fatalf("read bias: %v", err)
	}
	if bias[0] != 0.5 || bias[1] != 1.5 {
		t.Fatalf("bias: got %v", bias)
	}
}

func TestConvertRejectsMissingTensor(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	foreignPath := filepath.Join(dir, "ckpt.fwt")
	writeForeignFile(t, foreignPath, map[string]foreignTensor{
		"conv0/bias": {shape: []int{2}, data: []float32{1, 2}},
	})
	ff, err := OpenForeign(foreignPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	err = Convert(ff, filepath.Join(dir, "out.wbf"), []NamedParam{
		{Name: "conv0.weight", Shape: []int{2, 3, 1, 1}},
	})
	if !errors.Is(err, ErrTensorNotFound) {
		t.Fatalf("got %v, want ErrTensorNotFound", err)
	}
}

// writeForeignForNet exports a full parameter set for the network, each
// tensor filled with a distinct constant.
func writeForeignForNet(t *testing.T, path string, params []NamedParam) map[string]float64 {
	t.Helper()
	tensors := make(map[string]foreignTensor, len(params))
	values := make(map[string]float64, len(params))
	for j, p := range params {
		n := 1
		for _, d := range p.Shape {
			n *= d
		}
		v := float64(j) + 0.25
		values[p.Name] = v
		data := make([]float32, n)
		for i := range data {
			data[i] = float32(v)
		}
		shape := p.Shape
		if len(shape) == 4 {
			// HWIO export layout.
			shape = []int{p.Shape[2], p.Shape[3], p.Shape[1], p.Shape[0]}
		}
		tensors[ForeignName(p.Name)] = foreignTensor{shape: shape, data: data}
	}
	writeForeignFile(t, path, tensors)
	return values
}

func TestProvisionerConvertsOnce(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "foreign"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	net := model.New(model.Config{Blocks: 1, Seed: 1})
	params := ParamTable(net.Parameters())
	values := writeForeignForNet(t, filepath.Join(dir, "foreign", "a.fwt"), params)

	prov := NewProvisioner(dir, nil)
	path, err := prov.EnsureNative("a", params)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if path != prov.NativePath("a") {
		t.Fatalf("path: got %s", path)
	}

	firstBytes, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read bundle: %v", err)
	}

	// A second call must reuse the bundle; removing the foreign source proves
	// no re-conversion happens.
	if err := os.Remove(prov.ForeignPath("a")); err != nil {
		t.Fatalf("remove foreign: %v", err)
	}
	if _, err := prov.EnsureNative("a", params); err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	secondBytes, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("re-read bundle: %v", err)
	}
	if !bytes.Equal(firstBytes, secondBytes) {
		t.Fatal("bundle changed across idempotent ensures")
	}

	if err := prov.LoadInto(net, "a"); err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, p := range net.Parameters() {
		want := values[p.Name]
		for i, v := range p.Data {
			if v != want {
				t.Fatalf("%s[%d]: got %v, want %v", p.Name, i, v, want)
			}
		}
	}
}

func TestProvisionerSourceUnavailable(t *testing.T) {
	t.Parallel()
	prov := NewProvisioner(t.TempDir(), nil)
	_, err := prov.EnsureNative("z", nil)
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("got %v, want ErrSourceUnavailable", err)
	}
}

func TestLoadIntoPartial(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	net := model.New(model.Config{Blocks: 1, Seed: 1})

	// Bundle with one loadable tensor, one shape mismatch, everything else
	// missing. Loading is best-effort and must not fail.
	prov := NewProvisioner(dir, nil)
	err := WriteBundle(prov.NativePath("a"), []BundleTensor{
		{Name: "conv0.bias", Shape: []int{model.TrunkChannels}, Data: constSlice(model.TrunkChannels, 7)},
		{Name: "instnorm0.weight", Shape: []int{3}, Data: []float64{9, 9, 9}},
	})
	if err != nil {
		t.Fatalf("write bundle: %v", err)
	}

	if err := prov.LoadInto(net, "a"); err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, p := range net.Parameters() {
		switch p.Name {
		case "conv0.bias":
			for i, v := range p.Data {
				if v != 7 {
					t.Fatalf("conv0.bias[%d]: got %v, want 7", i, v)
				}
			}
		case "instnorm0.weight":
			// Mismatched shape is skipped; the init value survives.
			for i, v := range p.Data {
				if v != 1 {
					t.Fatalf("instnorm0.weight[%d]: got %v, want untouched 1", i, v)
				}
			}
		}
	}
}

func constSlice(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
