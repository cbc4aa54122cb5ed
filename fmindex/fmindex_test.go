package fmindex

import (
	"bytes"
	"sort"
	"testing"

	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"

	"github.com/feldroop/floxer/dna"
)

func ranks(s string) []byte { return dna.RanksFromChars([]byte(s)) }

// matchCursor matches the pattern starting from its middle, extending right
// to the end and then left to the start, to exercise both sides of the
// bidirectional index.
func matchCursor(ix *Index, pattern []byte) Cursor {
	cur := ix.Root()
	mid := len(pattern) / 2
	for i := mid; i < len(pattern); i++ {
		cur = cur.ExtendRight(pattern[i])
	}
	for i := mid - 1; i >= 0; i-- {
		cur = cur.ExtendLeft(pattern[i])
	}
	return cur
}

func locatedPositions(cur Cursor) map[int][]int {
	bySeq := make(map[int][]int)
	for _, occ := range cur.Locate() {
		bySeq[occ.SeqID] = append(bySeq[occ.SeqID], occ.Position)
	}
	for _, positions := range bySeq {
		sort.Ints(positions)
	}
	return bySeq
}

func TestCursorExtension(t *testing.T) {
	ix := New([][]byte{ranks("ACG")}, DefaultSamplingRate)

	cur := ix.Root().ExtendRight(dna.RankA)
	expect.EQ(t, cur.Count(), 1)
	cur = cur.ExtendRight(dna.RankC)
	expect.EQ(t, cur.Count(), 1)
	cur = cur.ExtendRight(dna.RankG)
	expect.EQ(t, cur.Count(), 1)
	expect.EQ(t, locatedPositions(cur), map[int][]int{0: {0}})

	expect.True(t, ix.Root().ExtendLeft(dna.RankT).Empty())

	gc := ix.Root().ExtendLeft(dna.RankC).ExtendLeft(dna.RankA)
	expect.EQ(t, gc.Count(), 1)
	expect.EQ(t, locatedPositions(gc), map[int][]int{0: {0}})
}

func TestRepeatedPattern(t *testing.T) {
	ix := New([][]byte{ranks("AAAAAAAAAACCCCCCCCCC")}, DefaultSamplingRate)

	cur := matchCursor(ix, ranks("AAAA"))
	expect.EQ(t, cur.Count(), 7)
	expect.EQ(t, locatedPositions(cur), map[int][]int{0: {0, 1, 2, 3, 4, 5, 6}})

	boundary := matchCursor(ix, ranks("AACC"))
	expect.EQ(t, boundary.Count(), 1)
	expect.EQ(t, locatedPositions(boundary), map[int][]int{0: {8}})
}

func TestMultipleSequences(t *testing.T) {
	ix := New([][]byte{ranks("ACGT"), ranks("TTTT")}, DefaultSamplingRate)
	expect.EQ(t, ix.NumSequences(), 2)

	tt := matchCursor(ix, ranks("TT"))
	expect.EQ(t, locatedPositions(tt), map[int][]int{1: {0, 1, 2}})

	gt := matchCursor(ix, ranks("GT"))
	expect.EQ(t, locatedPositions(gt), map[int][]int{0: {2}})

	// Patterns never match across the sequence boundary sentinel.
	expect.True(t, matchCursor(ix, ranks("TTTTT")).Empty())
}

func TestMatchedLength(t *testing.T) {
	ix := New([][]byte{ranks("ACGT")}, DefaultSamplingRate)
	cur := matchCursor(ix, ranks("CG"))
	expect.EQ(t, cur.MatchedLength(), 2)
}

func TestSerializationRoundTrip(t *testing.T) {
	original := New([][]byte{ranks("ACGTACGTTTACGGTA"), ranks("GGGGCCCC")}, DefaultSamplingRate)

	var buf bytes.Buffer
	assert.NoError(t, original.WriteTo(&buf))
	restored, err := Read(&buf)
	assert.NoError(t, err)

	for _, pattern := range []string{"ACG", "GG", "TTA", "CCC", "A"} {
		want := locatedPositions(matchCursor(original, ranks(pattern)))
		got := locatedPositions(matchCursor(restored, ranks(pattern)))
		expect.EQ(t, got, want)
	}
	expect.EQ(t, restored.NumSequences(), original.NumSequences())
}

func TestReadRejectsGarbage(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte("not an index")))
	expect.True(t, err != nil)
}
