package solver

import (
	"github.com/notargets/OctreeMG/mesh"
)

// Grid transfers move data between a level and its parent level. The
// stencils are single-block (restriction averages the 2^D fine cells under
// each coarse cell; prolongation is sparse linear interpolation clamped to
// the parent interior), but a child and its parent may live on different
// ranks, so both directions run through the same staged buffer exchange as
// the ghost engine.

// restrictLvl restricts variable v from level lvl onto the child-covered
// interiors of the level-(lvl-1) parents.
func (s *Solver) restrictLvl(lvl int, v mesh.Var) {
	t := s.Tree
	s.Timers.Start("transfer")
	defer s.Timers.Stop("transfer")

	s.pool.ResetCursors()
	s.packRestrictSends(lvl, v, false)
	for r := 0; r < s.Comm.Size(); r++ {
		s.pool.SetExpectedRecv(r, s.restrictRecvN[lvl][r]*s.dsizeRestrict)
	}
	fatal(s.pool.SortAndTransfer(s.Comm, xferTag(xferRestrict, lvl), s.dsizeRestrict))

	s.pool.ResetRecvCursors()
	me := t.MyRank
	for _, pid := range t.Levels[lvl-1].MyParents {
		p := t.Block(pid)
		for ci := 0; ci < t.Cst.NumChildren; ci++ {
			ch := p.Children[ci]
			if s.rankOf(ch) == me {
				s.restrictQuadrant(t.Block(ch), v, s.quadScratch)
				s.writeQuadrant(p, ci, v, s.quadScratch)
			} else {
				s.writeQuadrant(p, ci, v, s.pool.ReadRecv(s.rankOf(ch), s.dsizeRestrict))
			}
		}
	}
}

// packRestrictSends stages the restricted quadrant of every owned block
// whose parent is remote. Receivers consume parents in ascending id and
// children in fixed order, so the key is numChildren*parent + childIndex.
func (s *Solver) packRestrictSends(lvl int, v mesh.Var, dry bool) {
	t := s.Tree
	me := t.MyRank
	for _, id := range t.Levels[lvl].MyIDs {
		b := t.Block(id)
		r := s.rankOf(b.Parent)
		if r == me {
			continue
		}
		off := s.pool.ReserveSend(r, s.dsizeRestrict)
		if !dry {
			s.restrictQuadrant(b, v, s.pool.Send[r][off:off+s.dsizeRestrict])
			s.pool.PushKey(r, t.Cst.NumChildren*b.Parent+b.ChildIdx)
		}
	}
}

func (s *Solver) countRestrictRecvs(lvl int, recvN []int) {
	t := s.Tree
	me := t.MyRank
	for r := range recvN {
		recvN[r] = 0
	}
	for _, pid := range t.Levels[lvl-1].MyParents {
		p := t.Block(pid)
		for _, ch := range p.Children {
			if s.rankOf(ch) != me {
				recvN[s.rankOf(ch)]++
			}
		}
	}
}

// restrictQuadrant averages each 2^D group of fine cells into dst, coarse
// lexicographic order, (B/2)^D values.
func (s *Solver) restrictQuadrant(b *mesh.Block, v mesh.Var, dst []float64) {
	t := s.Tree
	d := t.Cst.D
	nb2 := t.BlockSize / 2
	str := t.Strides()
	inv := 1.0 / float64(t.Cst.NumChildren)
	cc := b.VarSlab(t.CellsPerVar(), v)

	ic := s.ipScratch
	for a := 0; a < d; a++ {
		ic[a] = 1
	}
	n := 0
	for {
		// Fine corner cell of this coarse cell.
		base := 0
		for a := 0; a < d; a++ {
			base += (2*ic[a] - 1) * str[a]
		}
		sum := 0.0
		for bits := 0; bits < t.Cst.NumChildren; bits++ {
			c := base
			for a := 0; a < d; a++ {
				c += ((bits >> a) & 1) * str[a]
			}
			sum += cc[c]
		}
		dst[n] = sum * inv
		n++

		a := 0
		for a < d {
			ic[a]++
			if ic[a] <= nb2 {
				break
			}
			ic[a] = 1
			a++
		}
		if a == d {
			return
		}
	}
}

// writeQuadrant stores a restricted child quadrant into the parent at the
// child's offset.
func (s *Solver) writeQuadrant(p *mesh.Block, ci int, v mesh.Var, quad []float64) {
	t := s.Tree
	d := t.Cst.D
	nb2 := t.BlockSize / 2
	str := t.Strides()
	off := t.Cst.ChildOffsets[ci]
	cc := p.VarSlab(t.CellsPerVar(), v)

	base := 0
	for a := 0; a < d; a++ {
		base += (off[a]*nb2 + 1) * str[a]
	}
	ic := make([]int, d)
	n := 0
	for {
		c := base
		for a := 0; a < d; a++ {
			c += ic[a] * str[a]
		}
		cc[c] = quad[n]
		n++

		a := 0
		for a < d {
			ic[a]++
			if ic[a] < nb2 {
				break
			}
			ic[a] = 0
			a++
		}
		if a == d {
			return
		}
	}
}

// prolongLvl interpolates variable src on the level-(lvl-1) parents onto
// variable dst of their level-lvl children, adding when add is set.
func (s *Solver) prolongLvl(lvl int, src, dst mesh.Var, add bool) {
	t := s.Tree
	s.Timers.Start("transfer")
	defer s.Timers.Stop("transfer")

	s.pool.ResetCursors()
	s.packProlongSends(lvl, src, false)
	for r := 0; r < s.Comm.Size(); r++ {
		s.pool.SetExpectedRecv(r, s.prolongRecvN[lvl][r]*s.dsizeProlong)
	}
	fatal(s.pool.SortAndTransfer(s.Comm, xferTag(xferProlong, lvl), s.dsizeProlong))

	s.pool.ResetRecvCursors()
	me := t.MyRank
	for _, id := range t.Levels[lvl].MyIDs {
		b := t.Block(id)
		var fine []float64
		if s.rankOf(b.Parent) == me {
			s.prolongChild(t.Block(b.Parent), b.ChildIdx, src, s.fineScratch)
			fine = s.fineScratch
		} else {
			fine = s.pool.ReadRecv(s.rankOf(b.Parent), s.dsizeProlong)
		}
		cc := b.VarSlab(t.CellsPerVar(), dst)
		n := 0
		t.ForEachInterior(func(c int, ix []int) {
			if add {
				cc[c] += fine[n]
			} else {
				cc[c] = fine[n]
			}
			n++
		})
	}
}

// packProlongSends stages a prolonged fine block for every remote child of
// an owned parent. Receivers consume their owned blocks in ascending id,
// so the child id itself is the key.
func (s *Solver) packProlongSends(lvl int, src mesh.Var, dry bool) {
	t := s.Tree
	me := t.MyRank
	for _, pid := range t.Levels[lvl-1].MyParents {
		p := t.Block(pid)
		for ci := 0; ci < t.Cst.NumChildren; ci++ {
			ch := p.Children[ci]
			r := s.rankOf(ch)
			if r == me {
				continue
			}
			off := s.pool.ReserveSend(r, s.dsizeProlong)
			if !dry {
				s.prolongChild(p, ci, src, s.pool.Send[r][off:off+s.dsizeProlong])
				s.pool.PushKey(r, ch)
			}
		}
	}
}

func (s *Solver) countProlongRecvs(lvl int, recvN []int) {
	t := s.Tree
	me := t.MyRank
	for r := range recvN {
		recvN[r] = 0
	}
	for _, id := range t.Levels[lvl].MyIDs {
		b := t.Block(id)
		if s.rankOf(b.Parent) != me {
			recvN[s.rankOf(b.Parent)]++
		}
	}
}

// prolongChild interpolates one child's fine block from its parent's
// interior: half weight on the co-located coarse cell in 2D (quarter in
// 3D) and a quarter on the parity-chosen coarse neighbor per axis,
// clamped to the interior at block edges (the clamped neighbor's weight
// folds into the center). Constants are reproduced exactly.
func (s *Solver) prolongChild(p *mesh.Block, ci int, src mesh.Var, dst []float64) {
	t := s.Tree
	d := t.Cst.D
	nb2 := t.BlockSize / 2
	str := t.Strides()
	off := t.Cst.ChildOffsets[ci]
	w0 := 0.5
	if d == 3 {
		w0 = 0.25
	}
	cc := p.VarSlab(t.CellsPerVar(), src)

	ix := make([]int, d)
	for a := 0; a < d; a++ {
		ix[a] = 1
	}
	n := 0
	for {
		c := 0
		for a := 0; a < d; a++ {
			c += (off[a]*nb2 + (ix[a]+1)/2) * str[a]
		}
		val := w0 * cc[c]
		for a := 0; a < d; a++ {
			ia := off[a]*nb2 + (ix[a]+1)/2
			da := 1 - 2*(ix[a]&1)
			if na := ia + da; na >= 1 && na <= t.BlockSize {
				val += 0.25 * cc[c+da*str[a]]
			} else {
				val += 0.25 * cc[c]
			}
		}
		dst[n] = val
		n++

		a := 0
		for a < d {
			ix[a]++
			if ix[a] <= t.BlockSize {
				break
			}
			ix[a] = 1
			a++
		}
		if a == d {
			return
		}
	}
}
