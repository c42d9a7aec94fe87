package ensemble

import (
	"testing"

	"github.com/hyeh20/protein-sequence/internal/model"
	"github.com/hyeh20/protein-sequence/internal/tensor"
	"github.com/hyeh20/protein-sequence/internal/weights"
)

func testInput(l int, seed int64) *tensor.Tensor {
	x := tensor.New(1, model.InputChannels, l, l)
	tensor.FillRand(x, seed)
	return x
}

func TestNewDefaultRoster(t *testing.T) {
	t.Parallel()
	ens, err := New(model.Config{Blocks: 1}, nil, nil, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if ens.Size() != 5 {
		t.Fatalf("size: got %d, want 5", ens.Size())
	}
	want := []string{"a", "b", "c", "d", "e"}
	for i, m := range ens.Members() {
		if m.ID != want[i] {
			t.Fatalf("member %d: got %q, want %q", i, m.ID, want[i])
		}
	}
}

func TestForwardOnePredictionPerMember(t *testing.T) {
	t.Parallel()
	ens, err := New(model.Config{Blocks: 1}, []string{"a", "b", "c"}, nil, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	preds, err := ens.Forward(testInput(3, 1))
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if len(preds) != 3 {
		t.Fatalf("predictions: got %d, want 3", len(preds))
	}
	for i, p := range preds {
		if p.Trunk == nil {
			t.Fatalf("prediction %d missing trunk", i)
		}
	}
}

func TestMembersDifferByID(t *testing.T) {
	t.Parallel()
	ens, err := New(model.Config{Blocks: 1}, []string{"a", "b"}, nil, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	preds, err := ens.Forward(testInput(3, 2))
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	same := true
	for i := range preds[0].Trunk.Data {
		if preds[0].Trunk.Data[i] != preds[1].Trunk.Data[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("members with different ids produced identical outputs")
	}
}

func TestRosterIsReproducible(t *testing.T) {
	t.Parallel()
	ens1, err := New(model.Config{Blocks: 1}, []string{"a", "b"}, nil, nil)
	if err != nil {
		t.Fatalf("new 1: %v", err)
	}
	ens2, err := New(model.Config{Blocks: 1}, []string{"a", "b"}, nil, nil)
	if err != nil {
		t.Fatalf("new 2: %v", err)
	}
	p1, err := ens1.Forward(testInput(3, 4))
	if err != nil {
		t.Fatalf("forward 1: %v", err)
	}
	p2, err := ens2.Forward(testInput(3, 4))
	if err != nil {
		t.Fatalf("forward 2: %v", err)
	}
	for m := range p1 {
		for i := range p1[m].Trunk.Data {
			if p1[m].Trunk.Data[i] != p2[m].Trunk.Data[i] {
				t.Fatalf("member %d: identical rosters diverge at %d", m, i)
			}
		}
	}
}

func TestMembersIndependentOfRoster(t *testing.T) {
	t.Parallel()
	full, err := New(model.Config{Blocks: 1}, []string{"a", "b", "c"}, nil, nil)
	if err != nil {
		t.Fatalf("new full: %v", err)
	}
	reduced, err := New(model.Config{Blocks: 1}, []string{"a", "c"}, nil, nil)
	if err != nil {
		t.Fatalf("new reduced: %v", err)
	}

	x := testInput(3, 6)
	pf, err := full.Forward(x)
	if err != nil {
		t.Fatalf("forward full: %v", err)
	}
	pr, err := reduced.Forward(x)
	if err != nil {
		t.Fatalf("forward reduced: %v", err)
	}

	// Dropping "b" must not change what "a" and "c" compute.
	pairs := [][2]int{{0, 0}, {2, 1}}
	for _, p := range pairs {
		a, b := pf[p[0]].Trunk.Data, pr[p[1]].Trunk.Data
		for i := range a {
			if a[i] != b[i] {
				t.Fatalf("member output depends on roster composition at %d", i)
			}
		}
	}
}

func TestPartialEnsemble(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	prov := weights.NewProvisioner(dir, nil)

	// Native bundle for "a" only; "b" has no artifact and must be dropped.
	cfg := model.Config{Blocks: 1}
	net := model.New(cfg)
	params := net.Parameters()
	tensors := make([]weights.BundleTensor, 0, len(params))
	for _, p := range params {
		data := make([]float64, len(p.Data))
		copy(data, p.Data)
		tensors = append(tensors, weights.BundleTensor{Name: p.Name, Shape: p.Shape, Data: data})
	}
	if err := weights.WriteBundle(prov.NativePath("a"), tensors); err != nil {
		t.Fatalf("write bundle: %v", err)
	}

	ens, err := New(cfg, []string{"a", "b"}, prov, nil)
	if err == nil {
		t.Fatal("expected a joined error for the missing member")
	}
	if ens == nil {
		t.Fatal("usable member was not kept")
	}
	if ens.Size() != 1 || ens.Members()[0].ID != "a" {
		t.Fatalf("members: got %d, want just a", ens.Size())
	}

	if _, err := ens.Forward(testInput(3, 1)); err != nil {
		t.Fatalf("forward on partial ensemble: %v", err)
	}
}

func TestAllMembersUnavailable(t *testing.T) {
	t.Parallel()
	prov := weights.NewProvisioner(t.TempDir(), nil)
	ens, err := New(model.Config{Blocks: 1}, []string{"a", "b"}, prov, nil)
	if err == nil {
		t.Fatal("expected error when no member is usable")
	}
	if ens != nil {
		t.Fatal("expected nil ensemble when no member is usable")
	}
}
