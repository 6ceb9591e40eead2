package rangeset

import "testing"

func intCmp(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func TestRangeContains(t *testing.T) {
	r := NewHalfOpen(2, 5) // [2, 5)
	tests := []struct {
		v    int
		want bool
	}{
		{1, false},
		{2, true},
		{3, true},
		{4, true},
		{5, false},
		{6, false},
	}
	for _, tc := range tests {
		got := r.Contains(tc.v, intCmp)
		if got != tc.want {
			t.Errorf("Contains(%d) = %v, want %v", tc.v, got, tc.want)
		}
		want := !r.Before(tc.v, intCmp) && !r.After(tc.v, intCmp)
		if got != want {
			t.Errorf("Contains(%d) disagrees with !Before && !After", tc.v)
		}
	}
}

func TestRangeOverlapsSymmetric(t *testing.T) {
	a := NewHalfOpen(0, 10)
	b := NewHalfOpen(5, 15)
	c := NewHalfOpen(10, 20)

	if !a.Overlaps(b, intCmp) || !b.Overlaps(a, intCmp) {
		t.Fatal("expected a and b to overlap symmetrically")
	}
	if a.Overlaps(c, intCmp) || c.Overlaps(a, intCmp) {
		t.Fatal("expected half-open a=[0,10) and c=[10,20) not to overlap")
	}
}

func TestRangeSubtractSelfIsEmpty(t *testing.T) {
	a := NewHalfOpen(0, 10)
	got := a.Subtract(a, intCmp)
	if len(got) != 0 {
		t.Fatalf("A.subtract(A) = %v, want empty", got)
	}
}

func TestRangeSubtractEmptyIsIdentity(t *testing.T) {
	a := NewHalfOpen(0, 10)
	empty := Range[int]{Start: &Bound[int]{Value: 5, Inclusive: true}, End: &Bound[int]{Value: 5, Inclusive: false}}
	got := a.Subtract(empty, intCmp)
	if len(got) != 1 {
		t.Fatalf("A.subtract(empty) = %v, want [A]", got)
	}
	if !got[0].Contains(0, intCmp) || got[0].Contains(10, intCmp) {
		t.Fatalf("A.subtract(empty) changed bounds: %+v", got[0])
	}
}

func TestRangeSubtractMiddleLeavesTwoPieces(t *testing.T) {
	a := NewHalfOpen(0, 10)
	b := NewHalfOpen(3, 7)
	got := a.Subtract(b, intCmp)
	if len(got) != 2 {
		t.Fatalf("expected 2 pieces, got %d: %+v", len(got), got)
	}
	for _, v := range []int{0, 1, 2} {
		if !got[0].Contains(v, intCmp) {
			t.Errorf("left piece should contain %d", v)
		}
	}
	for _, v := range []int{7, 8, 9} {
		if !got[1].Contains(v, intCmp) {
			t.Errorf("right piece should contain %d", v)
		}
	}
	for _, v := range []int{3, 4, 5, 6} {
		if got[0].Contains(v, intCmp) || got[1].Contains(v, intCmp) {
			t.Errorf("subtracted range leaked %d", v)
		}
	}
}

func TestWrapAroundUnwrap(t *testing.T) {
	// [8, 3) on a ring wraps: end(3) < start(8).
	r := NewHalfOpen(8, 3)
	if !r.IsWrapAround(intCmp) {
		t.Fatal("expected wrap-around range")
	}
	left, right := r.Unwrap(intCmp)
	if left.End == nil || compareEnds(left.End, right.Start, intCmp) >= 0 {
		t.Fatalf("unwrap halves not ordered: left=%+v right=%+v", left, right)
	}
	for _, v := range []int{0, 1, 2, 8, 9, 10} {
		if !r.Contains(v, intCmp) {
			t.Errorf("wrapping range should contain %d", v)
		}
	}
	for _, v := range []int{3, 4, 7} {
		if r.Contains(v, intCmp) {
			t.Errorf("wrapping range should not contain %d", v)
		}
	}
}

func TestBothWrapOverlap(t *testing.T) {
	a := NewHalfOpen(8, 3)
	b := NewHalfOpen(9, 2)
	if !a.Overlaps(b, intCmp) {
		t.Fatal("two wrapping ranges always overlap (share the ring minimum)")
	}
}

func TestSplitIncludesPoint(t *testing.T) {
	r := NewClosed(0, 10)
	left, right := r.Split(5, intCmp)
	if !left.Contains(5, intCmp) {
		t.Fatal("left half must include the split point")
	}
	if right.Contains(5, intCmp) {
		t.Fatal("right half must exclude the split point")
	}
	if !left.Contains(0, intCmp) || !right.Contains(10, intCmp) {
		t.Fatal("split halves lost original bounds")
	}
}

func TestTransformPreservesInclusivity(t *testing.T) {
	r := NewHalfOpen(1, 2)
	out := Transform(r, func(v int) string {
		if v == 1 {
			return "a"
		}
		return "b"
	})
	if !out.Start.Inclusive || out.End.Inclusive {
		t.Fatal("transform must preserve bound inclusivity")
	}
}

func TestHashMatchesFormula(t *testing.T) {
	r := NewClosed(3, 7)
	hashFn := func(v int) uint64 { return uint64(v) }
	want := uint64(31*3 + 7)
	if got := r.Hash(hashFn); got != want {
		t.Fatalf("Hash() = %d, want %d", got, want)
	}
}

func TestContainsRangeWithWrap(t *testing.T) {
	outer := NewHalfOpen(8, 3) // wraps
	inner := NewHalfOpen(9, 1) // wraps, subset of outer
	if !outer.ContainsRange(inner, intCmp) {
		t.Fatal("expected outer wrapping range to contain inner wrapping range")
	}
}
