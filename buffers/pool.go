// Package buffers provides the per-peer staging areas used by every
// cross-rank exchange: a send buffer, a receive buffer and an integer key
// array per remote rank, with cursor-style reservation so that a dry run
// and a real packing pass advance identically.
package buffers

import (
	"fmt"
	"sort"

	"github.com/notargets/OctreeMG/comms"
)

// Pool holds one send/recv staging slot per peer rank. Cursors are in
// floats; keys count one per packed record. Buffers are allocated once by
// Allocate and reused for every exchange.
type Pool struct {
	NumPeers int
	MyRank   int

	Send [][]float64
	Recv [][]float64
	Ix   [][]int

	ISend []int
	IRecv []int
	IIx   []int

	sorted [][]float64 // scratch for the key-sorted send stream
}

// NewPool creates an empty pool for nPeers ranks. Allocate must be called
// with the dry-run sizes before the pool is used.
func NewPool(nPeers, myRank int) *Pool {
	return &Pool{
		NumPeers: nPeers,
		MyRank:   myRank,
		Send:     make([][]float64, nPeers),
		Recv:     make([][]float64, nPeers),
		Ix:       make([][]int, nPeers),
		ISend:    make([]int, nPeers),
		IRecv:    make([]int, nPeers),
		IIx:      make([]int, nPeers),
		sorted:   make([][]float64, nPeers),
	}
}

// Allocate sizes every peer slot: sendRecords/recvRecords are the maximum
// record counts per peer over all exchange kinds and levels, dsize the
// largest record length in floats.
func (p *Pool) Allocate(sendRecords, recvRecords []int, dsize int) error {
	if len(sendRecords) != p.NumPeers || len(recvRecords) != p.NumPeers {
		return fmt.Errorf("buffers: size arrays have %d/%d entries for %d peers",
			len(sendRecords), len(recvRecords), p.NumPeers)
	}
	for r := 0; r < p.NumPeers; r++ {
		p.Send[r] = make([]float64, sendRecords[r]*dsize)
		p.sorted[r] = make([]float64, sendRecords[r]*dsize)
		p.Recv[r] = make([]float64, recvRecords[r]*dsize)
		p.Ix[r] = make([]int, sendRecords[r])
	}
	p.ResetCursors()
	return nil
}

// ResetCursors zeroes all send, receive and key cursors.
func (p *Pool) ResetCursors() {
	for r := 0; r < p.NumPeers; r++ {
		p.ISend[r] = 0
		p.IRecv[r] = 0
		p.IIx[r] = 0
	}
}

// ResetRecvCursors zeroes only the receive cursors, for the consumption
// walk after a transfer.
func (p *Pool) ResetRecvCursors() {
	for r := 0; r < p.NumPeers; r++ {
		p.IRecv[r] = 0
	}
}

// ReserveSend returns the current send cursor for peer r and advances it
// by n floats. In a dry run the returned offset is ignored.
func (p *Pool) ReserveSend(r, n int) int {
	off := p.ISend[r]
	p.ISend[r] += n
	return off
}

// ReserveRecv returns the current receive cursor for peer r and advances
// it by n floats.
func (p *Pool) ReserveRecv(r, n int) int {
	off := p.IRecv[r]
	p.IRecv[r] += n
	return off
}

// PushKey appends a sort key for the most recently reserved send record.
func (p *Pool) PushKey(r, k int) {
	p.Ix[r][p.IIx[r]] = k
	p.IIx[r]++
}

// SetExpectedRecv sets peer r's receive cursor to the precomputed incoming
// float count before a transfer.
func (p *Pool) SetExpectedRecv(r, n int) {
	p.IRecv[r] = n
}

// ReadRecv consumes the next n floats from peer r's receive buffer.
func (p *Pool) ReadRecv(r, n int) []float64 {
	off := p.IRecv[r]
	p.IRecv[r] += n
	return p.Recv[r][off : off+n]
}

// SortAndTransfer permutes each peer's packed send records into ascending
// key order and exchanges them: one send and one receive per peer with a
// nonzero precomputed count, no handshake. Because the keys are a
// deterministic function of global block ids and face indices, the sorted
// sender order equals the receiver's consumption order exactly.
//
// The call returns when all of this rank's sends are posted and all
// expected messages have been received, which orders this exchange against
// the next one on the same rank pair.
func (p *Pool) SortAndTransfer(c comms.Comm, tag, dsize int) error {
	me := c.Rank()
	for r := 0; r < p.NumPeers; r++ {
		if r == me || p.ISend[r] == 0 {
			continue
		}
		n := p.ISend[r] / dsize
		if n != p.IIx[r] {
			return fmt.Errorf("buffers: peer %d has %d records but %d keys", r, n, p.IIx[r])
		}

		// Index permutation: sort record indices by key, then gather once.
		perm := make([]int, n)
		for i := range perm {
			perm[i] = i
		}
		keys := p.Ix[r][:n]
		sort.SliceStable(perm, func(a, b int) bool { return keys[perm[a]] < keys[perm[b]] })

		dst := p.sorted[r]
		for i, src := range perm {
			copy(dst[i*dsize:(i+1)*dsize], p.Send[r][src*dsize:(src+1)*dsize])
		}
		if err := c.Send(r, tag, dst[:p.ISend[r]]); err != nil {
			return fmt.Errorf("buffers: send to rank %d: %w", r, err)
		}
	}

	for r := 0; r < p.NumPeers; r++ {
		if r == me || p.IRecv[r] == 0 {
			continue
		}
		if err := c.Recv(r, tag, p.Recv[r][:p.IRecv[r]]); err != nil {
			return fmt.Errorf("buffers: recv from rank %d: %w", r, err)
		}
	}
	return nil
}
