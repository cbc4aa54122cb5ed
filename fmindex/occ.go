package fmindex

import (
	"math/bits"

	"github.com/feldroop/floxer/dna"
)

// occCheckpointStride is the number of BWT positions between checkpointed
// symbol counts.  Ranks between checkpoints are resolved by a short scan.
const occCheckpointStride = 128

// occTable answers rank queries over a BWT: how many occurrences of a
// symbol appear strictly before a position.
type occTable struct {
	bwt []byte
	// checkpoints[b*dna.NumRanks+sym] is the number of occurrences of sym in
	// bwt[:b*occCheckpointStride].
	checkpoints []int32
}

func newOccTable(bwt []byte) occTable {
	numBlocks := len(bwt)/occCheckpointStride + 1
	checkpoints := make([]int32, numBlocks*dna.NumRanks)
	var running [dna.NumRanks]int32
	for i, c := range bwt {
		if i%occCheckpointStride == 0 {
			copy(checkpoints[i/occCheckpointStride*dna.NumRanks:], running[:])
		}
		running[c]++
	}
	if len(bwt)%occCheckpointStride == 0 {
		copy(checkpoints[len(bwt)/occCheckpointStride*dna.NumRanks:], running[:])
	}
	return occTable{bwt: bwt, checkpoints: checkpoints}
}

// rank returns the number of occurrences of sym in bwt[:pos].
func (t *occTable) rank(sym byte, pos int) int {
	block := pos / occCheckpointStride
	n := int(t.checkpoints[block*dna.NumRanks+int(sym)])
	for i := block * occCheckpointStride; i < pos; i++ {
		if t.bwt[i] == sym {
			n++
		}
	}
	return n
}

// ranksAll returns the rank of every symbol at pos in one scan.
func (t *occTable) ranksAll(pos int) [dna.NumRanks]int {
	block := pos / occCheckpointStride
	var n [dna.NumRanks]int
	for sym := 0; sym < dna.NumRanks; sym++ {
		n[sym] = int(t.checkpoints[block*dna.NumRanks+sym])
	}
	for i := block * occCheckpointStride; i < pos; i++ {
		n[t.bwt[i]]++
	}
	return n
}

// markBitmap is a bitvector with rank support, used to find sampled suffix
// array entries.
type markBitmap struct {
	words []uint64
	// blockRanks[i] is the number of set bits in words[:i].
	blockRanks []int32
}

func newMarkBitmap(n int) markBitmap {
	numWords := (n + 63) / 64
	return markBitmap{
		words:      make([]uint64, numWords),
		blockRanks: make([]int32, numWords+1),
	}
}

func (m *markBitmap) set(i int) {
	m.words[i/64] |= 1 << (uint(i) % 64)
}

func (m *markBitmap) get(i int) bool {
	return m.words[i/64]&(1<<(uint(i)%64)) != 0
}

// finish computes the block rank index after all bits are set.
func (m *markBitmap) finish() {
	var running int32
	for i, w := range m.words {
		m.blockRanks[i] = running
		running += int32(bits.OnesCount64(w))
	}
	m.blockRanks[len(m.words)] = running
}

// rank returns the number of set bits in [0, i).
func (m *markBitmap) rank(i int) int {
	word := i / 64
	n := int(m.blockRanks[word])
	if rem := uint(i) % 64; rem != 0 {
		n += bits.OnesCount64(m.words[word] << (64 - rem))
	}
	return n
}
