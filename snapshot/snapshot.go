// Package snapshot serializes one rank's share of a block tree to a
// compact binary stream: a small fixed header, the owned block ids, and a
// zstd-compressed float64 payload. Each rank writes its own stream; there
// is no cross-rank coordination.
package snapshot

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/DataDog/zstd"

	"github.com/notargets/OctreeMG/mesh"
)

const (
	// MagicNumber marks snapshot streams so that reading something else by
	// accident fails fast.
	MagicNumber = 0x0c78ee36
	Version     = 1
)

// Header describes the stream contents.
type Header struct {
	D         int32
	BlockSize int32
	NumVars   int32
	NumBlocks int32
	IDs       []int32
}

// Write dumps the listed variables of every owned block, ascending id over
// all levels.
func Write(w io.Writer, t *mesh.Tree, vars []mesh.Var) error {
	var ids []int32
	for lvl := 1; lvl <= t.NumLevels; lvl++ {
		for _, id := range t.Levels[lvl].MyIDs {
			ids = append(ids, int32(id))
		}
	}

	head := []int32{MagicNumber, Version, int32(t.Cst.D), int32(t.BlockSize),
		int32(len(vars)), int32(len(ids))}
	if err := binary.Write(w, binary.LittleEndian, head); err != nil {
		return fmt.Errorf("snapshot: writing header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, ids); err != nil {
		return fmt.Errorf("snapshot: writing ids: %w", err)
	}

	stride := t.CellsPerVar()
	raw := make([]byte, 0, len(ids)*len(vars)*stride*8)
	var scratch [8]byte
	for _, id := range ids {
		b := t.Block(int(id))
		for _, v := range vars {
			for _, f := range b.VarSlab(stride, v) {
				binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(f))
				raw = append(raw, scratch[:]...)
			}
		}
	}

	comp, err := zstd.Compress(nil, raw)
	if err != nil {
		return fmt.Errorf("snapshot: compressing payload: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, int64(len(comp))); err != nil {
		return fmt.Errorf("snapshot: writing payload size: %w", err)
	}
	if _, err := w.Write(comp); err != nil {
		return fmt.Errorf("snapshot: writing payload: %w", err)
	}
	return nil
}

// Read parses a stream written by Write, returning the header and the
// per-block, per-variable cell data in write order.
func Read(r io.Reader) (*Header, [][]float64, error) {
	head := make([]int32, 6)
	if err := binary.Read(r, binary.LittleEndian, head); err != nil {
		return nil, nil, fmt.Errorf("snapshot: reading header: %w", err)
	}
	if head[0] != MagicNumber {
		return nil, nil, fmt.Errorf("snapshot: bad magic number %#x", head[0])
	}
	if head[1] != Version {
		return nil, nil, fmt.Errorf("snapshot: unsupported version %d", head[1])
	}
	h := &Header{D: head[2], BlockSize: head[3], NumVars: head[4], NumBlocks: head[5]}

	h.IDs = make([]int32, h.NumBlocks)
	if err := binary.Read(r, binary.LittleEndian, h.IDs); err != nil {
		return nil, nil, fmt.Errorf("snapshot: reading ids: %w", err)
	}

	var compLen int64
	if err := binary.Read(r, binary.LittleEndian, &compLen); err != nil {
		return nil, nil, fmt.Errorf("snapshot: reading payload size: %w", err)
	}
	comp := make([]byte, compLen)
	if _, err := io.ReadFull(r, comp); err != nil {
		return nil, nil, fmt.Errorf("snapshot: reading payload: %w", err)
	}
	raw, err := zstd.Decompress(nil, comp)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: decompressing payload: %w", err)
	}

	stride := 1
	for a := int32(0); a < h.D; a++ {
		stride *= int(h.BlockSize) + 2
	}
	want := int(h.NumBlocks) * int(h.NumVars) * stride * 8
	if len(raw) != want {
		return nil, nil, fmt.Errorf("snapshot: payload is %d bytes, expected %d", len(raw), want)
	}

	slabs := make([][]float64, int(h.NumBlocks)*int(h.NumVars))
	pos := 0
	for i := range slabs {
		slab := make([]float64, stride)
		for c := range slab {
			slab[c] = math.Float64frombits(binary.LittleEndian.Uint64(raw[pos:]))
			pos += 8
		}
		slabs[i] = slab
	}
	return h, slabs, nil
}
