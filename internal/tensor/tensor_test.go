package tensor

import "testing"

func TestNewZeroInitialised(t *testing.T) {
	t.Parallel()
	x := New(1, 2, 3, 4)
	if got := x.NumElems(); got != 24 {
		t.Fatalf("NumElems: got %d, want 24", got)
	}
	for i, v := range x.Data {
		if v != 0 {
			t.Fatalf("element %d not zero: %v", i, v)
		}
	}
}

func TestNewPanicsOnNegativeDim(t *testing.T) {
	t.Parallel()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for negative dimension")
		}
	}()
	New(1, -1, 3, 3)
}

func TestNewFromDataPanicsOnLengthMismatch(t *testing.T) {
	t.Parallel()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for length mismatch")
		}
	}()
	NewFromData(1, 1, 2, 2, []float64{1, 2, 3})
}

func TestIndexRowMajor(t *testing.T) {
	t.Parallel()
	x := New(2, 3, 4, 5)
	if got := x.Index(0, 0, 0, 0); got != 0 {
		t.Fatalf("Index(0,0,0,0): got %d", got)
	}
	if got := x.Index(0, 0, 0, 1); got != 1 {
		t.Fatalf("adjacent column should be adjacent in memory, got %d", got)
	}
	if got := x.Index(1, 2, 3, 4); got != x.NumElems()-1 {
		t.Fatalf("last index: got %d, want %d", got, x.NumElems()-1)
	}
}

func TestAtSetRoundTrip(t *testing.T) {
	t.Parallel()
	x := New(1, 2, 3, 3)
	x.Set(0, 1, 2, 0, 7.5)
	if got := x.At(0, 1, 2, 0); got != 7.5 {
		t.Fatalf("At after Set: got %v", got)
	}
}

func TestPlaneIsView(t *testing.T) {
	t.Parallel()
	x := New(1, 2, 2, 2)
	p := x.Plane(0, 1)
	if len(p) != 4 {
		t.Fatalf("plane length: got %d, want 4", len(p))
	}
	p[3] = 9
	if got := x.At(0, 1, 1, 1); got != 9 {
		t.Fatalf("plane write did not reach tensor: got %v", got)
	}
}

func TestCloneIndependence(t *testing.T) {
	t.Parallel()
	x := New(1, 1, 2, 2)
	x.Set(0, 0, 0, 0, 1)
	y := x.Clone()
	y.Set(0, 0, 0, 0, 2)
	if got := x.At(0, 0, 0, 0); got != 1 {
		t.Fatalf("clone shares storage with original: got %v", got)
	}
	if !x.SameShape(y) {
		t.Fatal("clone shape differs")
	}
}

func TestFillRandDeterministic(t *testing.T) {
	t.Parallel()
	a := New(1, 2, 3, 3)
	b := New(1, 2, 3, 3)
	FillRand(a, 42)
	FillRand(b, 42)
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			t.Fatalf("element %d differs across same-seed fills", i)
		}
	}
	c := New(1, 2, 3, 3)
	FillRand(c, 43)
	same := true
	for i := range a.Data {
		if a.Data[i] != c.Data[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different seeds produced identical data")
	}
}
