package solver

import (
	"fmt"
	"math"

	"github.com/notargets/OctreeMG/mesh"
)

// FASVCycle runs one Full Approximation Scheme V-cycle from maxLvl (or the
// finest level when maxLvl <= 0) down to the coarsest level and back.
// Precondition: phi ghost cells are valid at every level in use. When
// setResidual is true, res holds rho - L(phi) on every level on return.
func (s *Solver) FASVCycle(setResidual bool, maxLvl int) {
	t := s.Tree
	if maxLvl <= 0 {
		maxLvl = t.NumLevels
	}
	if maxLvl > t.NumLevels {
		panic(fmt.Sprintf("solver: V-cycle at level %d but tree has %d levels", maxLvl, t.NumLevels))
	}

	for lvl := maxLvl; lvl > 1; lvl-- {
		s.smoothLvl(lvl, s.Set.NCycleDown)
		s.updateCoarse(lvl)
	}

	s.coarseSolve()

	for lvl := 2; lvl <= maxLvl; lvl++ {
		s.correctChildren(lvl)
		s.FillGhostCellsLvl(lvl, mesh.IPhi)
		s.smoothLvl(lvl, s.Set.NCycleUp)
	}

	if setResidual {
		for lvl := 1; lvl <= maxLvl; lvl++ {
			s.residualLvl(lvl)
		}
	}
}

// updateCoarse prepares level lvl-1 for the coarse-grid solve: it computes
// the fine residual, restricts both phi and the residual, rebuilds the
// coarse right-hand side as L(phi_c) + restricted residual on the refined
// region, and snapshots phi_c into old for the later correction.
func (s *Solver) updateCoarse(lvl int) {
	t := s.Tree

	s.residualLvl(lvl)
	s.restrictLvl(lvl, mesh.IPhi)
	s.restrictLvl(lvl, mesh.IRes)
	s.FillGhostCellsLvl(lvl-1, mesh.IPhi)

	for _, pid := range t.Levels[lvl-1].MyParents {
		p := t.Block(pid)
		s.BoxLpl(pid, mesh.IRho)
		rho := p.VarSlab(t.CellsPerVar(), mesh.IRho)
		res := p.VarSlab(t.CellsPerVar(), mesh.IRes)
		phi := p.VarSlab(t.CellsPerVar(), mesh.IPhi)
		old := p.VarSlab(t.CellsPerVar(), mesh.IOld)
		t.ForEachInterior(func(c int, ix []int) {
			rho[c] += res[c]
			old[c] = phi[c]
		})
	}
}

// correctChildren applies the FAS coarse-grid correction: the coarse
// improvement phi - old is prolonged additively onto the children at lvl.
func (s *Solver) correctChildren(lvl int) {
	t := s.Tree
	for _, pid := range t.Levels[lvl-1].MyParents {
		p := t.Block(pid)
		phi := p.VarSlab(t.CellsPerVar(), mesh.IPhi)
		old := p.VarSlab(t.CellsPerVar(), mesh.IOld)
		res := p.VarSlab(t.CellsPerVar(), mesh.IRes)
		t.ForEachInterior(func(c int, ix []int) {
			res[c] = phi[c] - old[c]
		})
	}
	s.prolongLvl(lvl, mesh.IRes, mesh.IPhi, true)
}

// coarseSolve solves the coarsest-level problem. The partitioner must put
// the whole coarsest level on a single rank: ranks owning none of it
// return at once (the exchange-free invariant makes that safe), partial
// ownership is a structural violation. The owner either runs the direct
// solver (single root block) or smooths until the residual drops below
// max(rel*initial, abs) or MaxCoarseCycles is exhausted; running out of
// cycles is not an error, the caller inspects the residual.
func (s *Solver) coarseSolve() {
	t := s.Tree
	mine := len(t.Levels[1].MyIDs)
	total := t.TotalBlocks(1)
	if mine == 0 {
		return
	}
	if mine != total {
		panic(fmt.Sprintf("solver: rank %d owns %d of %d coarsest-level blocks; the coarsest level must live on one rank",
			t.MyRank, mine, total))
	}

	s.Timers.Start("coarse")
	defer s.Timers.Stop("coarse")

	if s.Set.UseDirectCoarse && total == 1 {
		s.directSolve(t.Levels[1].IDs[0])
		s.Timers.Stop("coarse")
		s.FillGhostCellsLvl(1, mesh.IPhi)
		s.Timers.Start("coarse")
		return
	}

	initRes := s.residualLvl(1)
	tol := math.Max(s.Set.ResidualCoarseRel*initRes, s.Set.ResidualCoarseAbs)
	for n := 0; n < s.Set.MaxCoarseCycles; n++ {
		s.Timers.Stop("coarse")
		s.smoothLvl(1, 1)
		s.Timers.Start("coarse")
		if s.residualLvl(1) <= tol {
			break
		}
	}
}

// FASFMG runs one full multigrid cycle: restrict the current state to all
// levels, then work upward solving each level with a V-cycle and
// interpolating the result to the next finer level as its initial guess.
// When haveGuess is false, phi is zeroed first. setResidual applies to the
// final (finest) V-cycle only.
func (s *Solver) FASFMG(setResidual, haveGuess bool) {
	t := s.Tree

	if !haveGuess {
		for lvl := 1; lvl <= t.NumLevels; lvl++ {
			for _, id := range t.Levels[lvl].MyIDs {
				phi := t.Block(id).VarSlab(t.CellsPerVar(), mesh.IPhi)
				for c := range phi {
					phi[c] = 0
				}
			}
		}
	}

	s.FillGhostCellsLvl(t.NumLevels, mesh.IPhi)
	for lvl := t.NumLevels; lvl > 1; lvl-- {
		s.updateCoarse(lvl)
	}

	for lvl := 1; lvl <= t.NumLevels; lvl++ {
		for _, id := range t.Levels[lvl].MyIDs {
			b := t.Block(id)
			copy(b.VarSlab(t.CellsPerVar(), mesh.IOld), b.VarSlab(t.CellsPerVar(), mesh.IPhi))
		}
		if lvl > 1 {
			s.correctChildren(lvl)
			s.FillGhostCellsLvl(lvl, mesh.IPhi)
		}
		s.FASVCycle(setResidual && lvl == t.NumLevels, lvl)
	}
}
