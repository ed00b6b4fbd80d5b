package solver

import (
	"fmt"

	"github.com/notargets/OctreeMG/mesh"
)

// BoundaryKind selects how a physical-boundary ghost layer is computed
// from the boundary datum and the first interior cells.
type BoundaryKind uint8

const (
	// BcDirichlet prescribes the value on the face: x0 = 2b - x1.
	BcDirichlet BoundaryKind = iota
	// BcNeumann prescribes the derivative along the face axis:
	// x0 = x1 +/- dr*b, positive on high faces.
	BcNeumann
	// BcContinuous extrapolates with zero curvature: x0 = 2*x1 - x2.
	BcContinuous
)

// BoundarySpec is one (face, variable) boundary entry: either a constant
// datum or a callback evaluated at the face-cell center.
type BoundarySpec struct {
	Kind  BoundaryKind
	Value float64
	Func  func(x []float64) float64
}

// SetBoundary registers the boundary entry for one variable and face.
func (s *Solver) SetBoundary(v mesh.Var, face int, spec BoundarySpec) {
	s.bc[v][face] = spec
}

// SetAllBoundaries registers the same entry on every face of a variable.
func (s *Solver) SetAllBoundaries(v mesh.Var, spec BoundarySpec) {
	for k := range s.bc[v] {
		s.bc[v][k] = spec
	}
}

// bcToGc returns the ghost-update coefficients (c0, c1, c2) such that
// x0 = c0*b + c1*x1 + c2*x2 for boundary datum b and interior cells x1,
// x2. Unknown kinds are a fatal configuration error.
func bcToGc(kind BoundaryKind, low bool, dr float64) (c0, c1, c2 float64) {
	switch kind {
	case BcDirichlet:
		return 2, -1, 0
	case BcNeumann:
		if low {
			return -dr, 1, 0
		}
		return dr, 1, 0
	case BcContinuous:
		return 0, 2, -1
	default:
		panic(fmt.Sprintf("solver: unknown boundary kind %d", kind))
	}
}

// applyBC fills the ghost layer of a physical-boundary face.
func (s *Solver) applyBC(b *mesh.Block, k int, v mesh.Var) {
	t := s.Tree
	spec := s.bc[v][k]
	dr := t.DrLvl(b.Lvl)
	low := t.Cst.Low[k]
	c0, c1, c2 := bcToGc(spec.Kind, low, dr)

	gpos, step := 0, 1
	if !low {
		gpos, step = t.BlockSize+1, -1
	}

	var x []float64
	if spec.Func != nil {
		x = make([]float64, t.Cst.D)
	}
	cc := b.VarSlab(t.CellsPerVar(), v)
	t.ForEachFaceCell(k, func(n int, ip []int) {
		datum := spec.Value
		if spec.Func != nil {
			s.faceCenter(b, k, ip, x)
			datum = spec.Func(x)
		}
		x1 := cc[t.FaceCellIndex(k, ip, gpos+step)]
		x2 := cc[t.FaceCellIndex(k, ip, gpos+2*step)]
		cc[t.FaceCellIndex(k, ip, gpos)] = c0*datum + c1*x1 + c2*x2
	})
}

// faceCenter computes the physical coordinates of a face-cell center: on
// the boundary plane along the face axis, at the cell center in-plane.
func (s *Solver) faceCenter(b *mesh.Block, k int, ip []int, x []float64) {
	t := s.Tree
	dr := t.DrLvl(b.Lvl)
	fa := t.Cst.Dim[k]
	for a := 0; a < t.Cst.D; a++ {
		if a == fa {
			x[a] = b.Rmin[a]
			if !t.Cst.Low[k] {
				x[a] += float64(t.BlockSize) * dr
			}
		} else {
			x[a] = b.Rmin[a] + (float64(ip[a])-0.5)*dr
		}
	}
}
