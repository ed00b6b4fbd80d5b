package mesh

// Block is the unit of domain decomposition: a B^D grid of cell-centered
// values with a one-cell ghost border on every face. Cell data is allocated
// only on the owning rank; tree metadata is replicated everywhere.
type Block struct {
	ID   int
	Rank int
	Lvl  int

	Parent   int // NoBox for level-1 blocks
	ChildIdx int // index within Parent's Children, -1 for level-1 blocks

	// Children holds 2^D ids, all NoBox for leaves. A block is either
	// fully refined or a leaf.
	Children []int

	// Neighbors holds 2*D ids in face order (low-x, high-x, low-y,
	// high-y[, low-z, high-z]), or the NoBox / Physical sentinels.
	Neighbors []int

	// Rmin is the physical coordinate of the block's lowest corner.
	Rmin []float64

	// CC is the cell data, variable-major: CC[int(v)*cellsPerVar + cell],
	// where cell indexes the (B+2)^D ghost-inclusive grid with x fastest.
	// Nil on ranks that do not own the block.
	CC []float64
}

// HasChildren reports whether the block is refined.
func (b *Block) HasChildren() bool {
	return len(b.Children) > 0 && b.Children[0] != NoBox
}

// Owned reports whether cell data is allocated locally.
func (b *Block) Owned() bool {
	return b.CC != nil
}

// Value returns the cell value of variable v at flat cell index c.
func (b *Block) Value(stride int, v Var, c int) float64 {
	return b.CC[int(v)*stride+c]
}

// VarSlab returns the full ghost-inclusive data slab of variable v.
func (b *Block) VarSlab(stride int, v Var) []float64 {
	off := int(v) * stride
	return b.CC[off : off+stride]
}
