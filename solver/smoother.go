package solver

import (
	"github.com/notargets/OctreeMG/mesh"
)

// jacobiWeight is the damped-Jacobi relaxation factor.
const jacobiWeight = 2.0 / 3.0

// smoothLvl runs the configured smoother on one level. Every sweep (every
// half-sweep for red-black) ends with a ghost refill, so phi ghosts are
// valid on return.
func (s *Solver) smoothLvl(lvl, cycles int) {
	s.Timers.Start("smooth")
	for n := 0; n < cycles; n++ {
		switch s.Set.Smoother {
		case SmootherGSRB:
			for half := 0; half < 2; half++ {
				for _, id := range s.Tree.Levels[lvl].MyIDs {
					s.boxGSRB(id, n+half)
				}
				s.Timers.Stop("smooth")
				s.FillGhostCellsLvl(lvl, mesh.IPhi)
				s.Timers.Start("smooth")
			}
		case SmootherGS:
			for _, id := range s.Tree.Levels[lvl].MyIDs {
				s.boxGS(id)
			}
			s.Timers.Stop("smooth")
			s.FillGhostCellsLvl(lvl, mesh.IPhi)
			s.Timers.Start("smooth")
		case SmootherJacobi:
			for _, id := range s.Tree.Levels[lvl].MyIDs {
				s.boxJacobi(id)
			}
			s.Timers.Stop("smooth")
			s.FillGhostCellsLvl(lvl, mesh.IPhi)
			s.Timers.Start("smooth")
		}
	}
	s.Timers.Stop("smooth")
}

// boxGS performs one in-place lexicographic Gauss-Seidel sweep.
func (s *Solver) boxGS(id int) {
	t := s.Tree
	b := t.Block(id)
	dr2 := t.DrLvl(b.Lvl) * t.DrLvl(b.Lvl)
	inv := 1.0 / float64(2*t.Cst.D)
	str := t.Strides()

	phi := b.VarSlab(t.CellsPerVar(), mesh.IPhi)
	rho := b.VarSlab(t.CellsPerVar(), mesh.IRho)
	t.ForEachInterior(func(c int, ix []int) {
		sum := 0.0
		for a := 0; a < t.Cst.D; a++ {
			sum += phi[c-str[a]] + phi[c+str[a]]
		}
		phi[c] = (sum - dr2*rho[c]) * inv
	})
}

// boxGSRB performs one colored half-sweep. A cell belongs to the current
// color iff the parity of its index sum matches the sweep counter, so the
// red set alternates between consecutive sweeps.
func (s *Solver) boxGSRB(id, sweep int) {
	t := s.Tree
	b := t.Block(id)
	dr2 := t.DrLvl(b.Lvl) * t.DrLvl(b.Lvl)
	inv := 1.0 / float64(2*t.Cst.D)
	str := t.Strides()

	phi := b.VarSlab(t.CellsPerVar(), mesh.IPhi)
	rho := b.VarSlab(t.CellsPerVar(), mesh.IRho)
	t.ForEachInterior(func(c int, ix []int) {
		sum := 0
		for _, v := range ix {
			sum += v
		}
		if (sum+sweep)%2 != 0 {
			return
		}
		nb := 0.0
		for a := 0; a < t.Cst.D; a++ {
			nb += phi[c-str[a]] + phi[c+str[a]]
		}
		phi[c] = (nb - dr2*rho[c]) * inv
	})
}

// boxJacobi performs one damped-Jacobi sweep, reading neighbor values from
// a snapshot of phi so the update order is immaterial.
func (s *Solver) boxJacobi(id int) {
	t := s.Tree
	b := t.Block(id)
	dr2 := t.DrLvl(b.Lvl) * t.DrLvl(b.Lvl)
	inv := jacobiWeight / float64(2*t.Cst.D)
	str := t.Strides()

	phi := b.VarSlab(t.CellsPerVar(), mesh.IPhi)
	rho := b.VarSlab(t.CellsPerVar(), mesh.IRho)
	old := s.varScratch
	copy(old, phi)
	t.ForEachInterior(func(c int, ix []int) {
		sum := 0.0
		for a := 0; a < t.Cst.D; a++ {
			sum += old[c-str[a]] + old[c+str[a]]
		}
		phi[c] = (1-jacobiWeight)*old[c] + inv*(sum-dr2*rho[c])
	})
}
