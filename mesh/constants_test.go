package mesh

import (
	"testing"
)

func TestConstantsTables(t *testing.T) {
	for _, d := range []int{2, 3} {
		c, err := NewConstants(d)
		if err != nil {
			t.Fatalf("NewConstants(%d): %v", d, err)
		}
		if c.NumNeighbors != 2*d {
			t.Errorf("D=%d: NumNeighbors = %d, want %d", d, c.NumNeighbors, 2*d)
		}
		if c.NumChildren != 1<<d {
			t.Errorf("D=%d: NumChildren = %d, want %d", d, c.NumChildren, 1<<d)
		}

		for k := 0; k < c.NumNeighbors; k++ {
			if c.Rev[c.Rev[k]] != k {
				t.Errorf("D=%d: Rev is not an involution at face %d", d, k)
			}
			if c.Dim[c.Rev[k]] != c.Dim[k] {
				t.Errorf("D=%d: face %d and its reverse disagree on axis", d, k)
			}
			if c.Low[k] == c.Low[c.Rev[k]] {
				t.Errorf("D=%d: face %d and its reverse are on the same side", d, k)
			}

			if len(c.ChildAdjNb[k]) != c.NumChildren/2 {
				t.Fatalf("D=%d: face %d touches %d children, want %d",
					d, k, len(c.ChildAdjNb[k]), c.NumChildren/2)
			}
			side := 0
			if !c.Low[k] {
				side = 1
			}
			prev := -1
			for _, ci := range c.ChildAdjNb[k] {
				if ci <= prev {
					t.Errorf("D=%d: ChildAdjNb[%d] is not ascending", d, k)
				}
				prev = ci
				if c.ChildOffsets[ci][c.Dim[k]] != side {
					t.Errorf("D=%d: child %d listed on face %d but sits on the other side", d, ci, k)
				}
			}
		}

		for ci := 0; ci < c.NumChildren; ci++ {
			for a := 0; a < d; a++ {
				if got, want := c.ChildOffsets[ci][a], (ci>>a)&1; got != want {
					t.Errorf("D=%d: ChildOffsets[%d][%d] = %d, want %d", d, ci, a, got, want)
				}
			}
		}
	}
}

func TestConstantsRejectsBadDimension(t *testing.T) {
	for _, d := range []int{0, 1, 4} {
		if _, err := NewConstants(d); err == nil {
			t.Errorf("NewConstants(%d) succeeded, want error", d)
		}
	}
}
