package solver

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/OctreeMG/mesh"
)

// directSolve solves L(phi) = rho exactly on a single root block by dense
// LU factorization: the discrete Laplacian is assembled with the physical
// boundary conditions eliminated through the same ghost-update
// coefficients the ghost engine applies, so the direct answer is the fixed
// point of the iterative path.
func (s *Solver) directSolve(id int) {
	t := s.Tree
	b := t.Block(id)
	d := t.Cst.D
	nb := t.BlockSize
	n := pow(nb, d)
	dr := t.DrLvl(b.Lvl)
	idr2 := 1.0 / (dr * dr)

	a := mat.NewDense(n, n, nil)
	rhs := mat.NewVecDense(n, nil)

	// Interior lexicographic index of a cell, x fastest.
	rowOf := func(ix []int) int {
		m := 0
		for ax := d - 1; ax >= 0; ax-- {
			m = m*nb + ix[ax] - 1
		}
		return m
	}

	x := make([]float64, d)
	rho := b.VarSlab(t.CellsPerVar(), mesh.IRho)
	t.ForEachInterior(func(c int, ix []int) {
		m := rowOf(ix)
		a.Set(m, m, a.At(m, m)-float64(2*d)*idr2)
		rhs.SetVec(m, rho[c])

		for k := 0; k < t.Cst.NumNeighbors; k++ {
			ax := t.Cst.Dim[k]
			step := 1
			if t.Cst.Low[k] {
				step = -1
			}
			ix[ax] += step
			inside := ix[ax] >= 1 && ix[ax] <= nb
			if inside {
				mn := rowOf(ix)
				a.Set(m, mn, a.At(m, mn)+idr2)
				ix[ax] -= step
				continue
			}
			ix[ax] -= step

			// Physical ghost: x0 = c0*datum + c1*x1 + c2*x2 with x1 the
			// cell itself and x2 one step inward.
			if b.Neighbors[k] != mesh.Physical {
				panic(fmt.Sprintf("solver: direct solve on block %d with non-physical face %d", id, k))
			}
			spec := s.bc[mesh.IPhi][k]
			c0, c1, c2 := bcToGc(spec.Kind, t.Cst.Low[k], dr)
			datum := spec.Value
			if spec.Func != nil {
				s.faceCenter(b, k, ix, x)
				datum = spec.Func(x)
			}
			a.Set(m, m, a.At(m, m)+c1*idr2)
			if c2 != 0 {
				ix[ax] -= step
				m2 := rowOf(ix)
				ix[ax] += step
				a.Set(m, m2, a.At(m, m2)+c2*idr2)
			}
			rhs.SetVec(m, rhs.AtVec(m)-c0*datum*idr2)
		}
	})

	var lu mat.LU
	lu.Factorize(a)
	sol := mat.NewVecDense(n, nil)
	if err := lu.SolveVecTo(sol, false, rhs); err != nil {
		panic(fmt.Errorf("solver: singular coarse operator: %w", err))
	}

	phi := b.VarSlab(t.CellsPerVar(), mesh.IPhi)
	t.ForEachInterior(func(c int, ix []int) {
		phi[c] = sol.AtVec(rowOf(ix))
	})
}
