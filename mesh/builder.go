package mesh

import (
	"fmt"
	"sort"
)

// NewUniformTree builds a block tree whose coarsest level is a shape[0] x
// shape[1] (x shape[2]) grid of blocks of blockWidth physical extent, with
// every subsequent level refining all blocks of the previous one. Ids are
// assigned level-major in lexicographic order, so the global id sequence is
// identical on every rank. The tree comes partitioned for a single rank;
// call Partition and SetRank to distribute it.
func NewUniformTree(d, blockSize int, shape []int, numLevels int, blockWidth float64) (*Tree, error) {
	cst, err := NewConstants(d)
	if err != nil {
		return nil, err
	}
	if blockSize < 2 || blockSize%2 != 0 {
		return nil, fmt.Errorf("mesh: block size must be even and >= 2, got %d", blockSize)
	}
	if len(shape) != d {
		return nil, fmt.Errorf("mesh: shape has %d entries for %d dimensions", len(shape), d)
	}
	if numLevels < 1 {
		return nil, fmt.Errorf("mesh: need at least one level, got %d", numLevels)
	}

	t := &Tree{
		Cst:       cst,
		BlockSize: blockSize,
		NumLevels: 1,
		Levels:    make([]Level, 2),
		Dr:        []float64{0, blockWidth / float64(blockSize)},
		NRanks:    1,
	}
	t.finishGeometry()
	t.buildRootGrid(shape, blockWidth)

	for lvl := 1; lvl < numLevels; lvl++ {
		if err := t.RefineBlocks(t.Levels[lvl].IDs); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// buildRootGrid creates the level-1 blocks on a regular grid.
func (t *Tree) buildRootGrid(shape []int, blockWidth float64) {
	d := t.Cst.D
	n := 1
	for _, s := range shape {
		n *= s
	}

	gridIdx := func(id int) []int {
		ix := make([]int, d)
		for a := 0; a < d; a++ {
			ix[a] = id % shape[a]
			id /= shape[a]
		}
		return ix
	}
	gridID := func(ix []int) int {
		id := 0
		for a := d - 1; a >= 0; a-- {
			id = id*shape[a] + ix[a]
		}
		return id
	}

	t.Blocks = make([]Block, n)
	ids := make([]int, n)
	for id := 0; id < n; id++ {
		ix := gridIdx(id)
		b := &t.Blocks[id]
		b.ID = id
		b.Lvl = 1
		b.Parent = NoBox
		b.ChildIdx = -1
		b.Children = make([]int, t.Cst.NumChildren)
		for i := range b.Children {
			b.Children[i] = NoBox
		}
		b.Neighbors = make([]int, t.Cst.NumNeighbors)
		b.Rmin = make([]float64, d)
		for a := 0; a < d; a++ {
			b.Rmin[a] = float64(ix[a]) * blockWidth
		}
		for k := 0; k < t.Cst.NumNeighbors; k++ {
			a := t.Cst.Dim[k]
			step := 1
			if t.Cst.Low[k] {
				step = -1
			}
			nix := ix[a] + step
			if nix < 0 || nix >= shape[a] {
				b.Neighbors[k] = Physical
				continue
			}
			ix[a] = nix
			b.Neighbors[k] = gridID(ix)
			ix[a] -= step
		}
		ids[id] = id
	}
	t.Levels[1] = Level{IDs: ids}
}

// RefineBlocks refines a set of leaf blocks on the current finest level,
// creating the next level. All refinements of a level must happen in a
// single call so that fine-fine neighbor links can be wired symmetrically.
func (t *Tree) RefineBlocks(parentIDs []int) error {
	if len(parentIDs) == 0 {
		return fmt.Errorf("mesh: no blocks to refine")
	}
	lvl := t.Blocks[parentIDs[0]].Lvl
	if lvl != t.NumLevels {
		return fmt.Errorf("mesh: can only refine the finest level %d, got level %d", t.NumLevels, lvl)
	}
	parents := append([]int(nil), parentIDs...)
	sort.Ints(parents)

	d := t.Cst.D
	nc := t.Cst.NumChildren
	drF := t.Dr[lvl] / 2
	half := float64(t.BlockSize) * drF

	var fineIDs []int
	for _, pid := range parents {
		if t.Blocks[pid].Lvl != lvl {
			return fmt.Errorf("mesh: block %d is at level %d, expected %d", pid, t.Blocks[pid].Lvl, lvl)
		}
		if t.Blocks[pid].HasChildren() {
			return fmt.Errorf("mesh: block %d is already refined", pid)
		}
		pRmin := append([]float64(nil), t.Blocks[pid].Rmin...)
		for ci := 0; ci < nc; ci++ {
			id := len(t.Blocks)
			rmin := make([]float64, d)
			for a := 0; a < d; a++ {
				rmin[a] = pRmin[a] + float64(t.Cst.ChildOffsets[ci][a])*half
			}
			children := make([]int, nc)
			for i := range children {
				children[i] = NoBox
			}
			t.Blocks = append(t.Blocks, Block{
				ID:        id,
				Lvl:       lvl + 1,
				Parent:    pid,
				ChildIdx:  ci,
				Children:  children,
				Neighbors: make([]int, t.Cst.NumNeighbors),
				Rmin:      rmin,
			})
			t.Blocks[pid].Children[ci] = id
			fineIDs = append(fineIDs, id)
		}
	}

	// Wire fine-level neighbor links now that all children of this batch
	// exist. Crossing a face flips the child-offset bit of the face axis.
	for _, id := range fineIDs {
		b := &t.Blocks[id]
		p := &t.Blocks[b.Parent]
		for k := 0; k < t.Cst.NumNeighbors; k++ {
			a := t.Cst.Dim[k]
			bit := 1 << a
			inside := t.Cst.ChildOffsets[b.ChildIdx][a] == 1
			if !t.Cst.Low[k] {
				inside = !inside
			}
			if inside {
				// Sibling within the same parent.
				b.Neighbors[k] = p.Children[b.ChildIdx^bit]
				continue
			}
			switch q := p.Neighbors[k]; {
			case q == Physical:
				b.Neighbors[k] = Physical
			case q < 0:
				b.Neighbors[k] = NoBox
			case t.Blocks[q].HasChildren():
				b.Neighbors[k] = t.Blocks[q].Children[b.ChildIdx^bit]
			default:
				b.Neighbors[k] = NoBox
			}
		}
	}

	t.NumLevels++
	t.Levels = append(t.Levels, Level{IDs: fineIDs})
	t.Dr = append(t.Dr, drF)
	return nil
}
