package solver

import (
	"fmt"

	"github.com/notargets/OctreeMG/mesh"
)

// FillGhostCells refreshes the ghost layer of variable v on every owned
// block at every level, coarsest first.
func (s *Solver) FillGhostCells(v mesh.Var) {
	for lvl := 1; lvl <= s.Tree.NumLevels; lvl++ {
		s.FillGhostCellsLvl(lvl, v)
	}
}

// FillGhostCellsLvl refreshes the ghost layer of variable v on every owned
// block at level lvl. On return each ghost cell holds the value dictated
// by its face's neighbor policy: a same-level neighbor's interior slab
// (copied locally or received), a refinement-boundary reconstruction from
// the coarse side, or the physical boundary condition.
func (s *Solver) FillGhostCellsLvl(lvl int, v mesh.Var) {
	t := s.Tree
	if lvl < 1 || lvl > t.NumLevels {
		panic(fmt.Sprintf("solver: ghost fill at level %d outside [1,%d]", lvl, t.NumLevels))
	}
	s.Timers.Start("ghost")
	defer s.Timers.Stop("ghost")

	s.pool.ResetCursors()
	s.packGhostSends(lvl, v, false)
	for r := 0; r < s.Comm.Size(); r++ {
		s.pool.SetExpectedRecv(r, s.ghostRecvN[lvl][r]*s.dsizeGhost)
	}
	fatal(s.pool.SortAndTransfer(s.Comm, xferTag(xferGhost, lvl), s.dsizeGhost))

	s.pool.ResetRecvCursors()
	for _, id := range t.Levels[lvl].MyIDs {
		s.setGhostCells(t.Block(id), v)
	}
}

// packGhostSends stages every outgoing halo record for one level: the face
// slabs headed to remote same-level neighbors, and (for lvl > 1) the
// coarse face slabs that remote fine blocks need to reconstruct their
// refinement-boundary ghosts. In dry mode only the cursors advance; the
// real pass also writes data and pushes the sort keys.
func (s *Solver) packGhostSends(lvl int, v mesh.Var, dry bool) {
	t := s.Tree
	nn := t.Cst.NumNeighbors
	me := t.MyRank

	for _, id := range t.Levels[lvl].MyIDs {
		b := t.Block(id)
		for k := 0; k < nn; k++ {
			nb := b.Neighbors[k]
			if nb < 0 || s.rankOf(nb) == me {
				continue
			}
			r := s.rankOf(nb)
			off := s.pool.ReserveSend(r, s.dsizeGhost)
			if !dry {
				s.packFaceSlab(b, k, v, s.pool.Send[r][off:off+s.dsizeGhost])
				s.pool.PushKey(r, nn*nb+t.Cst.Rev[k])
			}
		}
	}

	if lvl < 2 {
		return
	}
	// Coarse side of every refinement boundary: ship the whole coarse
	// face once per remote fine child on the far side.
	for _, id := range t.Levels[lvl-1].MyRefBnds {
		c := t.Block(id)
		for k := 0; k < nn; k++ {
			nb := c.Neighbors[k]
			if nb < 0 || !t.Block(nb).HasChildren() {
				continue
			}
			for _, ci := range t.Cst.ChildAdjNb[t.Cst.Rev[k]] {
				ch := t.Block(nb).Children[ci]
				if s.rankOf(ch) == me {
					continue
				}
				r := s.rankOf(ch)
				off := s.pool.ReserveSend(r, s.dsizeGhost)
				if !dry {
					s.packFaceSlab(c, k, v, s.pool.Send[r][off:off+s.dsizeGhost])
					s.pool.PushKey(r, nn*ch+t.Cst.Rev[k])
				}
			}
		}
	}
}

// countGhostRecvs fills recvN with the per-peer expected record counts for
// one level, walking the owned blocks in exactly the consumption order of
// setGhostCells.
func (s *Solver) countGhostRecvs(lvl int, recvN []int) {
	t := s.Tree
	me := t.MyRank
	for r := range recvN {
		recvN[r] = 0
	}
	for _, id := range t.Levels[lvl].MyIDs {
		b := t.Block(id)
		for k := 0; k < t.Cst.NumNeighbors; k++ {
			switch nb := b.Neighbors[k]; {
			case nb >= 0:
				if s.rankOf(nb) != me {
					recvN[s.rankOf(nb)]++
				}
			case nb == mesh.NoBox:
				if cn := s.coarseNeighbor(b, k); s.rankOf(cn) != me {
					recvN[s.rankOf(cn)]++
				}
			}
		}
	}
}

// setGhostCells dispatches one owned block's faces in fixed order,
// consuming received records as it goes.
func (s *Solver) setGhostCells(b *mesh.Block, v mesh.Var) {
	t := s.Tree
	me := t.MyRank
	for k := 0; k < t.Cst.NumNeighbors; k++ {
		switch nb := b.Neighbors[k]; {
		case nb >= 0 && s.rankOf(nb) == me:
			s.copyFromNb(b, t.Block(nb), k, v)
		case nb >= 0:
			buf := s.pool.ReadRecv(s.rankOf(nb), s.dsizeGhost)
			s.writeGhostSlab(b, k, v, buf)
		case nb == mesh.NoBox:
			cn := s.coarseNeighbor(b, k)
			var cgc []float64
			if s.rankOf(cn) == me {
				// The coarse neighbor's slab facing us is its Rev[k] side.
				cgc = s.varScratch[:s.dsizeGhost]
				s.packFaceSlab(t.Block(cn), t.Cst.Rev[k], v, cgc)
			} else {
				cgc = s.pool.ReadRecv(s.rankOf(cn), s.dsizeGhost)
			}
			s.sidesRB(b, k, v, cgc)
		case nb == mesh.Physical:
			s.applyBC(b, k, v)
		default:
			panic(fmt.Sprintf("solver: block %d face %d has invalid neighbor %d", b.ID, k, nb))
		}
	}
}

// coarseNeighbor resolves the coarse block across a refinement-boundary
// face: the parent's neighbor on the same face.
func (s *Solver) coarseNeighbor(b *mesh.Block, k int) int {
	p := s.Tree.Block(b.Parent)
	cn := p.Neighbors[k]
	if cn < 0 {
		panic(fmt.Sprintf("solver: block %d face %d: refinement boundary without coarse neighbor", b.ID, k))
	}
	return cn
}

// packFaceSlab copies the interior cells adjacent to face k (the outward
// face slab) into dst, in-plane lexicographic order.
func (s *Solver) packFaceSlab(b *mesh.Block, k int, v mesh.Var, dst []float64) {
	t := s.Tree
	pos := t.BlockSize
	if t.Cst.Low[k] {
		pos = 1
	}
	cc := b.VarSlab(t.CellsPerVar(), v)
	t.ForEachFaceCell(k, func(n int, ip []int) {
		dst[n] = cc[t.FaceCellIndex(k, ip, pos)]
	})
}

// writeGhostSlab stores src into the ghost layer of face k.
func (s *Solver) writeGhostSlab(b *mesh.Block, k int, v mesh.Var, src []float64) {
	t := s.Tree
	pos := 0
	if !t.Cst.Low[k] {
		pos = t.BlockSize + 1
	}
	cc := b.VarSlab(t.CellsPerVar(), v)
	t.ForEachFaceCell(k, func(n int, ip []int) {
		cc[t.FaceCellIndex(k, ip, pos)] = src[n]
	})
}

// copyFromNb fills b's ghost layer on face k from a same-rank neighbor's
// interior slab on the opposite face.
func (s *Solver) copyFromNb(b, nb *mesh.Block, k int, v mesh.Var) {
	t := s.Tree
	gpos := 0
	ipos := t.BlockSize
	if !t.Cst.Low[k] {
		gpos = t.BlockSize + 1
		ipos = 1
	}
	dst := b.VarSlab(t.CellsPerVar(), v)
	src := nb.VarSlab(t.CellsPerVar(), v)
	t.ForEachFaceCell(k, func(n int, ip []int) {
		dst[t.FaceCellIndex(k, ip, gpos)] = src[t.FaceCellIndex(k, ip, ipos)]
	})
}

// sidesRB reconstructs the fine ghost layer on a refinement-boundary face
// from the coarse neighbor's face slab cgc and the block's own interior.
// The stencil averages a fine-side extrapolation toward the corner with
// the co-located coarse value, which preserves diffusive fluxes across the
// level jump; constants are reproduced exactly.
func (s *Solver) sidesRB(b *mesh.Block, k int, v mesh.Var, cgc []float64) {
	t := s.Tree
	d := t.Cst.D
	fa := t.Cst.Dim[k]
	nb2 := t.BlockSize / 2

	gpos, step := 0, 1
	if !t.Cst.Low[k] {
		gpos, step = t.BlockSize+1, -1
	}

	// In-plane axes in ascending order and the child's coarse offset on
	// each of them.
	var tAxes [2]int
	nt := 0
	for a := 0; a < d; a++ {
		if a != fa {
			tAxes[nt] = a
			nt++
		}
	}
	off := t.Cst.ChildOffsets[b.ChildIdx]

	cc := b.VarSlab(t.CellsPerVar(), v)
	ip2 := s.ipScratch
	t.ForEachFaceCell(k, func(n int, ip []int) {
		// Coarse cell co-located with this fine face cell.
		cIdx := 0
		cStride := 1
		for i := 0; i < nt; i++ {
			a := tAxes[i]
			c := off[a]*nb2 + (ip[a]+1)/2
			cIdx += (c - 1) * cStride
			cStride *= t.BlockSize
		}
		c := cgc[cIdx]

		x1 := cc[t.FaceCellIndex(k, ip, gpos+step)]
		if d == 2 {
			a := tAxes[0]
			di := -1 + 2*(ip[a]&1)
			x2 := cc[t.FaceCellIndex(k, ip, gpos+2*step)]
			copy(ip2, ip)
			ip2[a] = ip[a] + di
			xp := cc[t.FaceCellIndex(k, ip2, gpos+step)]
			cc[t.FaceCellIndex(k, ip, gpos)] = 0.5*c + x1 - 0.25*(x2+xp)
			return
		}
		copy(ip2, ip)
		for i := 0; i < nt; i++ {
			a := tAxes[i]
			ip2[a] = ip[a] - 1 + 2*(ip[a]&1)
		}
		xd := cc[t.FaceCellIndex(k, ip2, gpos+step)]
		cc[t.FaceCellIndex(k, ip, gpos)] = 0.5*c + 0.75*x1 - 0.25*xd
	})
}
