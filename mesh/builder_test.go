package mesh

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// checkNeighborSymmetry verifies that every valid neighbor link is
// mirrored by the opposite face of the neighbor.
func checkNeighborSymmetry(t *testing.T, tr *Tree) {
	t.Helper()
	for i := range tr.Blocks {
		b := &tr.Blocks[i]
		for k, nb := range b.Neighbors {
			if nb < 0 {
				continue
			}
			n := tr.Block(nb)
			if n.Lvl != b.Lvl {
				t.Errorf("block %d face %d: neighbor %d at level %d, want %d", b.ID, k, nb, n.Lvl, b.Lvl)
			}
			if n.Neighbors[tr.Cst.Rev[k]] != b.ID {
				t.Errorf("block %d face %d -> %d, but reverse face points to %d",
					b.ID, k, nb, n.Neighbors[tr.Cst.Rev[k]])
			}
		}
	}
}

func TestUniformTree2D(t *testing.T) {
	tr, err := NewUniformTree(2, 8, []int{4, 4}, 2, 1.0)
	require.NoError(t, err)

	require.Equal(t, 2, tr.NumLevels)
	require.Len(t, tr.Levels[1].IDs, 16)
	require.Len(t, tr.Levels[2].IDs, 64)
	require.Equal(t, 1.0/8, tr.DrLvl(1))
	require.Equal(t, 1.0/16, tr.DrLvl(2))

	checkNeighborSymmetry(t, tr)

	// Corner root block: low faces physical.
	b0 := tr.Block(tr.Levels[1].IDs[0])
	require.Equal(t, Physical, b0.Neighbors[0])
	require.Equal(t, Physical, b0.Neighbors[2])
	require.GreaterOrEqual(t, b0.Neighbors[1], 0)

	// Children cover the parent exactly.
	for _, id := range tr.Levels[1].IDs {
		p := tr.Block(id)
		require.True(t, p.HasChildren())
		for ci, ch := range p.Children {
			c := tr.Block(ch)
			require.Equal(t, id, c.Parent)
			require.Equal(t, ci, c.ChildIdx)
			for a := 0; a < 2; a++ {
				want := p.Rmin[a] + float64(tr.Cst.ChildOffsets[ci][a])*0.5
				require.InDelta(t, want, c.Rmin[a], 1e-14)
			}
		}
	}
}

func TestUniformTree3D(t *testing.T) {
	tr, err := NewUniformTree(3, 4, []int{2, 2, 2}, 3, 1.0)
	require.NoError(t, err)
	require.Len(t, tr.Levels[1].IDs, 8)
	require.Len(t, tr.Levels[2].IDs, 64)
	require.Len(t, tr.Levels[3].IDs, 512)
	checkNeighborSymmetry(t, tr)
}

func TestPartialRefinementBoundaries(t *testing.T) {
	// 2x2 root grid, refine only the low-left block: its children's
	// outward-facing interior faces become refinement boundaries seen
	// from the fine side, while the coarse neighbors keep valid links.
	tr, err := NewUniformTree(2, 8, []int{2, 2}, 1, 1.0)
	require.NoError(t, err)
	require.NoError(t, tr.RefineBlocks([]int{0}))

	checkNeighborSymmetry(t, tr)

	p := tr.Block(0)
	require.True(t, p.HasChildren())

	// Child 1 sits on the high-x half: its high-x face crosses into the
	// unrefined block 1, so the fine side sees NoBox.
	c1 := tr.Block(p.Children[1])
	require.Equal(t, NoBox, c1.Neighbors[1])
	// Its low-x neighbor is the sibling child 0.
	require.Equal(t, p.Children[0], c1.Neighbors[0])
	// Low-y face is the physical domain boundary.
	require.Equal(t, Physical, c1.Neighbors[2])

	// Child 3 (high-x, high-y) sees NoBox on both outward faces.
	c3 := tr.Block(p.Children[3])
	require.Equal(t, NoBox, c3.Neighbors[1])
	require.Equal(t, NoBox, c3.Neighbors[3])
}

func TestPartitionAndRankViews(t *testing.T) {
	tr, err := NewUniformTree(2, 8, []int{2, 2}, 3, 1.0)
	require.NoError(t, err)
	tr.Partition(4)

	// Contiguous chunks in id order, all blocks assigned, and the
	// assignment is reproducible.
	for lvl := 1; lvl <= tr.NumLevels; lvl++ {
		prev := 0
		for _, id := range tr.Levels[lvl].IDs {
			r := tr.Block(id).Rank
			require.GreaterOrEqual(t, r, prev, "ranks must be non-decreasing in id order")
			require.Less(t, r, 4)
			prev = r
		}
	}

	require.NoError(t, tr.SetRank(2))
	for lvl := 1; lvl <= tr.NumLevels; lvl++ {
		l := tr.Levels[lvl]
		prev := -1
		for _, id := range l.MyIDs {
			require.Equal(t, 2, tr.Block(id).Rank)
			require.Greater(t, id, prev, "MyIDs must be ascending")
			require.True(t, tr.Block(id).Owned())
			prev = id
		}
		for _, id := range l.MyParents {
			require.True(t, tr.Block(id).HasChildren())
		}
	}

	// Level 1 of a 3-level fully refined tree has only parents, so no
	// refinement boundaries exist anywhere.
	require.Empty(t, tr.Levels[1].MyRefBnds)
	require.Empty(t, tr.Levels[tr.NumLevels].MyParents)
}

func TestRefBndViews(t *testing.T) {
	tr, err := NewUniformTree(2, 8, []int{2, 2}, 1, 1.0)
	require.NoError(t, err)
	require.NoError(t, tr.RefineBlocks([]int{0}))
	tr.Partition(1)
	require.NoError(t, tr.SetRank(0))

	// Blocks 1 and 2 are unrefined leaves adjacent to the refined block
	// 0; block 3 only touches 0 diagonally and is not a ref boundary.
	require.Equal(t, []int{1, 2}, tr.Levels[1].MyRefBnds)
	require.Equal(t, []int{0}, tr.Levels[1].MyParents)
}

func TestCellIndexing(t *testing.T) {
	tr, err := NewUniformTree(2, 8, []int{1, 1}, 1, 1.0)
	require.NoError(t, err)

	require.Equal(t, 100, tr.CellsPerVar())
	require.Equal(t, []int{1, 10}, tr.Strides())
	require.Equal(t, 8, tr.FaceSlabSize())

	n := 0
	last := -1
	tr.ForEachInterior(func(c int, ix []int) {
		require.Greater(t, c, last, "interior iteration must be ascending")
		last = c
		n++
	})
	require.Equal(t, 64, n)

	// Face iteration covers B cells with the in-plane odometer.
	count := 0
	tr.ForEachFaceCell(1, func(i int, ip []int) {
		require.Equal(t, count, i)
		require.Equal(t, count+1, ip[1])
		count++
	})
	require.Equal(t, 8, count)
}

func TestTreeGeometrySpacing(t *testing.T) {
	tr, err := NewUniformTree(2, 8, []int{1, 1}, 4, 1.0)
	require.NoError(t, err)
	for lvl := 2; lvl <= 4; lvl++ {
		require.InEpsilon(t, tr.DrLvl(lvl-1)/2, tr.DrLvl(lvl), 1e-15)
	}
	require.True(t, math.Abs(tr.DrLvl(1)-0.125) < 1e-15)
}
