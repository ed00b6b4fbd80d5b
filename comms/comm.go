// Package comms abstracts the point-to-point message transport used by the
// solver. The solver only needs buffered sends, blocking receives with
// known sizes, and a collective barrier; any MPI-like backend can satisfy
// the interface. The in-process implementation in this package runs each
// rank as a goroutine and is what the multi-rank tests use.
package comms

import "fmt"

// Comm is one rank's endpoint of the transport.
//
// Send must not block waiting for the matching receive: the solver posts
// all of an exchange's sends before any of its receives, and both sides
// precompute message sizes, so a rendezvous send would deadlock. Recv
// blocks until the matching message arrives and must fill data exactly.
type Comm interface {
	Rank() int
	Size() int
	Send(dst, tag int, data []float64) error
	Recv(src, tag int, data []float64) error
	Barrier() error
}

// TagMismatchError reports a message arriving out of the agreed program
// order. The SPMD schedule makes tags deterministic, so this is always a
// protocol bug, not a recoverable condition.
type TagMismatchError struct {
	Src, Want, Got int
}

func (e *TagMismatchError) Error() string {
	return fmt.Sprintf("comms: message from rank %d has tag %d, expected %d", e.Src, e.Got, e.Want)
}
