package align

import (
	"fmt"
	"strings"
)

// Operation is one CIGAR alignment operation.  Insertion consumes a query
// symbol only, deletion a reference symbol only, matching SAM semantics.
type Operation byte

const (
	OpMatch Operation = iota
	OpMismatch
	OpInsertion
	OpDeletion
)

// Char returns the SAM CIGAR character of the operation.
func (op Operation) Char() byte {
	switch op {
	case OpMatch:
		return '='
	case OpMismatch:
		return 'X'
	case OpInsertion:
		return 'I'
	case OpDeletion:
		return 'D'
	}
	panic(fmt.Sprintf("unexpected alignment operation %d", op))
}

// OpBlock is a run-length encoded CIGAR element.
type OpBlock struct {
	Op    Operation
	Count int
}

// Cigar is a compact run-length encoded CIGAR sequence.
type Cigar struct {
	Blocks []OpBlock
}

// Add appends one operation, extending the final block when it matches.
func (c *Cigar) Add(op Operation) {
	if n := len(c.Blocks); n > 0 && c.Blocks[n-1].Op == op {
		c.Blocks[n-1].Count++
		return
	}
	c.Blocks = append(c.Blocks, OpBlock{Op: op, Count: 1})
}

// Reverse reverses the block order in place.
func (c *Cigar) Reverse() {
	for i, j := 0, len(c.Blocks)-1; i < j; i, j = i+1, j-1 {
		c.Blocks[i], c.Blocks[j] = c.Blocks[j], c.Blocks[i]
	}
}

func (c Cigar) String() string {
	var b strings.Builder
	for _, block := range c.Blocks {
		fmt.Fprintf(&b, "%d%c", block.Count, block.Op.Char())
	}
	return b.String()
}
