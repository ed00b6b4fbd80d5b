package solver

import (
	"fmt"
	"runtime/debug"
	"sync"
	"testing"

	"github.com/notargets/OctreeMG/comms"
	"github.com/notargets/OctreeMG/mesh"
)

// runSPMD executes fn as nRanks goroutine ranks sharing one in-process
// fabric, failing the test if any rank panics.
func runSPMD(t *testing.T, nRanks int, fn func(rank int, c comms.Comm)) {
	t.Helper()
	fabric := comms.NewChannelFabric(nRanks)
	panics := make(chan string, nRanks)
	var wg sync.WaitGroup
	for r := 0; r < nRanks; r++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					panics <- fmt.Sprintf("rank %d panicked: %v\n%s", rank, p, debug.Stack())
				}
			}()
			fn(rank, fabric.Comm(rank))
		}(r)
	}
	wg.Wait()
	close(panics)
	for msg := range panics {
		t.Fatal(msg)
	}
}

// countPanics is runSPMD for tests that expect every rank to abort.
func countPanics(t *testing.T, nRanks int, fn func(rank int, c comms.Comm)) int {
	t.Helper()
	fabric := comms.NewChannelFabric(nRanks)
	var mu sync.Mutex
	n := 0
	var wg sync.WaitGroup
	for r := 0; r < nRanks; r++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			defer func() {
				if recover() != nil {
					mu.Lock()
					n++
					mu.Unlock()
				}
			}()
			fn(rank, fabric.Comm(rank))
		}(r)
	}
	wg.Wait()
	return n
}

// treeSpec describes a test tree; refine lists extra leaf refinements of
// the finest uniform level.
type treeSpec struct {
	d      int
	bs     int
	shape  []int
	levels int
	width  float64
	refine []int
}

func (ts treeSpec) build(t *testing.T, nRanks, rank int) *mesh.Tree {
	t.Helper()
	tr, err := mesh.NewUniformTree(ts.d, ts.bs, ts.shape, ts.levels, ts.width)
	if err != nil {
		t.Fatalf("building tree: %v", err)
	}
	if len(ts.refine) > 0 {
		if err := tr.RefineBlocks(ts.refine); err != nil {
			t.Fatalf("refining tree: %v", err)
		}
	}
	tr.Partition(nRanks)
	if err := tr.SetRank(rank); err != nil {
		t.Fatalf("setting rank: %v", err)
	}
	return tr
}

func newTestSolver(t *testing.T, tr *mesh.Tree, c comms.Comm, set Settings) *Solver {
	t.Helper()
	s, err := New(tr, c, set)
	if err != nil {
		t.Fatalf("creating solver: %v", err)
	}
	return s
}

// cellCenter returns the physical center of interior cell ix of a block.
func cellCenter(tr *mesh.Tree, b *mesh.Block, ix []int, x []float64) {
	dr := tr.DrLvl(b.Lvl)
	for a := 0; a < tr.Cst.D; a++ {
		x[a] = b.Rmin[a] + (float64(ix[a])-0.5)*dr
	}
}

// setVar evaluates f at every owned interior cell center of every level.
func setVar(tr *mesh.Tree, v mesh.Var, f func(x []float64) float64) {
	x := make([]float64, tr.Cst.D)
	for lvl := 1; lvl <= tr.NumLevels; lvl++ {
		for _, id := range tr.Levels[lvl].MyIDs {
			b := tr.Block(id)
			cc := b.VarSlab(tr.CellsPerVar(), v)
			tr.ForEachInterior(func(c int, ix []int) {
				cellCenter(tr, b, ix, x)
				cc[c] = f(x)
			})
		}
	}
}

// maxErrLvl returns the owned max-norm error of phi against f at a level.
func maxErrLvl(tr *mesh.Tree, lvl int, f func(x []float64) float64) float64 {
	x := make([]float64, tr.Cst.D)
	maxErr := 0.0
	for _, id := range tr.Levels[lvl].MyIDs {
		b := tr.Block(id)
		phi := b.VarSlab(tr.CellsPerVar(), mesh.IPhi)
		tr.ForEachInterior(func(c int, ix []int) {
			cellCenter(tr, b, ix, x)
			if e := abs(phi[c] - f(x)); e > maxErr {
				maxErr = e
			}
		})
	}
	return maxErr
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
