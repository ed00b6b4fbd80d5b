// Package solver implements a distributed-memory Full Approximation Scheme
// geometric multigrid solver for cell-centered elliptic problems on
// block-structured quadtree/octree meshes. One Solver instance runs per
// rank; ranks coordinate only through buffered point-to-point exchanges
// whose sizes both sides precompute, so no handshaking is needed.
package solver

import (
	"fmt"

	"github.com/notargets/OctreeMG/buffers"
	"github.com/notargets/OctreeMG/comms"
	"github.com/notargets/OctreeMG/mesh"
	"github.com/notargets/OctreeMG/utils"
)

// SmootherKind selects the relaxation method used on every level.
type SmootherKind uint8

const (
	SmootherGSRB SmootherKind = iota // Gauss-Seidel red-black
	SmootherGS                       // lexicographic Gauss-Seidel
	SmootherJacobi
)

// Settings are the multigrid cycle parameters. Zero values are not
// meaningful; start from DefaultSettings.
type Settings struct {
	Smoother   SmootherKind
	NCycleDown int // smoother cycles on the way down
	NCycleUp   int // smoother cycles on the way up

	// Coarse-grid solve controls.
	MaxCoarseCycles   int
	ResidualCoarseRel float64
	ResidualCoarseAbs float64
	UseDirectCoarse   bool // dense LU when the coarsest level is one block
}

// DefaultSettings returns the parameters used by the test suite.
func DefaultSettings() Settings {
	return Settings{
		Smoother:          SmootherGSRB,
		NCycleDown:        2,
		NCycleUp:          2,
		MaxCoarseCycles:   500,
		ResidualCoarseRel: 1e-8,
		ResidualCoarseAbs: 1e-14,
		UseDirectCoarse:   true,
	}
}

// Exchange kinds, combined with the level into a message tag so that
// back-to-back exchanges between the same rank pair cannot be confused.
const (
	xferGhost = iota
	xferRestrict
	xferProlong
	numXferKinds
)

func xferTag(kind, lvl int) int { return numXferKinds*lvl + kind }

// Solver owns this rank's share of a partitioned block tree and drives
// ghost exchange, smoothing, grid transfer and the FAS cycles on it.
type Solver struct {
	Tree *mesh.Tree
	Comm comms.Comm
	Set  Settings

	// Timers accumulate wall-clock time of the major phases.
	Timers *utils.TimerSet

	pool *buffers.Pool
	bc   [][]BoundarySpec // [variable][face]

	dsizeGhost    int // B^(D-1)
	dsizeRestrict int // (B/2)^D
	dsizeProlong  int // B^D

	// Expected incoming record counts, precomputed by the dry-run sizing
	// pass: indexed [level][peer].
	ghostRecvN    [][]int
	restrictRecvN [][]int
	prolongRecvN  [][]int

	// Per-peer maximum send/recv record counts over all levels of the
	// ghost exchange, reported by GhostCellBufferSize.
	ghostSendMax []int
	ghostRecvMax []int

	// Reused scratch: a full variable slab, one restricted quadrant and
	// one prolonged fine block.
	varScratch  []float64
	quadScratch []float64
	fineScratch []float64
	ipScratch   []int
}

// New builds a solver for the tree partition owned by comm's rank. It runs
// the dry-run sizing pass for every exchange kind and level and allocates
// the peer buffers once, sized to the maxima.
func New(tree *mesh.Tree, comm comms.Comm, set Settings) (*Solver, error) {
	if comm.Size() != tree.NRanks {
		return nil, fmt.Errorf("solver: fabric has %d ranks but tree is partitioned for %d",
			comm.Size(), tree.NRanks)
	}
	if comm.Rank() != tree.MyRank {
		return nil, fmt.Errorf("solver: comm rank %d does not match tree rank %d",
			comm.Rank(), tree.MyRank)
	}

	d := tree.Cst.D
	b := tree.BlockSize
	s := &Solver{
		Tree:          tree,
		Comm:          comm,
		Set:           set,
		Timers:        utils.NewTimerSet(),
		pool:          buffers.NewPool(comm.Size(), comm.Rank()),
		dsizeGhost:    tree.FaceSlabSize(),
		dsizeRestrict: pow(b/2, d),
		dsizeProlong:  pow(b, d),
		varScratch:    make([]float64, tree.CellsPerVar()),
		quadScratch:   make([]float64, pow(b/2, d)),
		fineScratch:   make([]float64, pow(b, d)),
		ipScratch:     make([]int, d),
	}

	s.bc = make([][]BoundarySpec, mesh.NumVars)
	for v := range s.bc {
		s.bc[v] = make([]BoundarySpec, tree.Cst.NumNeighbors)
		for k := range s.bc[v] {
			s.bc[v][k] = BoundarySpec{Kind: BcDirichlet}
		}
	}

	if err := s.sizeBuffers(); err != nil {
		return nil, err
	}
	return s, nil
}

func pow(base, exp int) int {
	n := 1
	for i := 0; i < exp; i++ {
		n *= base
	}
	return n
}

// sizeBuffers runs every packing pass in dry mode, records the expected
// incoming record counts per (kind, level, peer), and allocates the peer
// buffers to the per-peer maximum record count times the largest record
// size.
func (s *Solver) sizeBuffers() error {
	t := s.Tree
	nPeers := s.Comm.Size()
	nLvl := t.NumLevels

	s.ghostRecvN = makeCounts(nLvl, nPeers)
	s.restrictRecvN = makeCounts(nLvl, nPeers)
	s.prolongRecvN = makeCounts(nLvl, nPeers)
	s.ghostSendMax = make([]int, nPeers)
	s.ghostRecvMax = make([]int, nPeers)

	maxSend := make([]int, nPeers)
	maxRecv := make([]int, nPeers)

	track := func(dsize int, recvN []int) {
		for r := 0; r < nPeers; r++ {
			if n := s.pool.ISend[r] / dsize; n > maxSend[r] {
				maxSend[r] = n
			}
			if recvN[r] > maxRecv[r] {
				maxRecv[r] = recvN[r]
			}
		}
	}

	for lvl := 1; lvl <= nLvl; lvl++ {
		s.pool.ResetCursors()
		s.packGhostSends(lvl, mesh.IPhi, true)
		s.countGhostRecvs(lvl, s.ghostRecvN[lvl])
		track(s.dsizeGhost, s.ghostRecvN[lvl])
		for r := 0; r < nPeers; r++ {
			if n := s.pool.ISend[r] / s.dsizeGhost; n > s.ghostSendMax[r] {
				s.ghostSendMax[r] = n
			}
			if s.ghostRecvN[lvl][r] > s.ghostRecvMax[r] {
				s.ghostRecvMax[r] = s.ghostRecvN[lvl][r]
			}
		}

		if lvl < 2 {
			continue
		}
		s.pool.ResetCursors()
		s.packRestrictSends(lvl, mesh.IPhi, true)
		s.countRestrictRecvs(lvl, s.restrictRecvN[lvl])
		track(s.dsizeRestrict, s.restrictRecvN[lvl])

		s.pool.ResetCursors()
		s.packProlongSends(lvl, mesh.IPhi, true)
		s.countProlongRecvs(lvl, s.prolongRecvN[lvl])
		track(s.dsizeProlong, s.prolongRecvN[lvl])
	}

	s.pool.ResetCursors()
	return s.pool.Allocate(maxSend, maxRecv, s.dsizeProlong)
}

func makeCounts(nLvl, nPeers int) [][]int {
	c := make([][]int, nLvl+1)
	for l := 1; l <= nLvl; l++ {
		c[l] = make([]int, nPeers)
	}
	return c
}

// GhostCellBufferSize reports the per-peer ghost-exchange staging sizes in
// records, plus the record length in floats, for callers that allocate
// transport-side resources.
func (s *Solver) GhostCellBufferSize() (nSend, nRecv []int, dsize int) {
	return append([]int(nil), s.ghostSendMax...),
		append([]int(nil), s.ghostRecvMax...),
		s.dsizeGhost
}

// rankOf returns the owning rank of a block id.
func (s *Solver) rankOf(id int) int { return s.Tree.Blocks[id].Rank }

// fatal converts a transport or structural error into the abort the
// concurrency model mandates: there is no local recovery in the SPMD
// compute path.
func fatal(err error) {
	if err != nil {
		panic(err)
	}
}
