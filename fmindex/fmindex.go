// Package fmindex implements a bidirectional FM-index over a collection of
// DNA rank sequences.  Cursors can be extended with symbols on either side;
// matches are located back to (sequence id, position) pairs through a
// sampled suffix array.
//
// The index is built over the concatenation of all sequences, each followed
// by a rank-0 sentinel.  Patterns never contain the sentinel, so a match can
// never straddle a sequence boundary.
package fmindex

import (
	"sort"

	"github.com/feldroop/floxer/dna"
)

// DefaultSamplingRate is the suffix-array sampling rate used when building
// an index.  It trades locate speed for a small memory footprint.
const DefaultSamplingRate = 4

// Index is an immutable FM-index; it is safe for concurrent use.
type Index struct {
	textLen      int
	seqOffsets   []int32 // start of each sequence in the concatenated text
	seqLens      []int32
	counts       [dna.NumRanks + 1]int // counts[c] = # text symbols < c
	occ          occTable              // over BWT of the text
	revOcc       occTable              // over BWT of the reversed text
	samplingRate int
	marked       markBitmap // SA positions with a stored sample
	samples      []int32    // SA values at marked positions, in rank order
}

// New builds an index over the given rank sequences.  samplingRate controls
// suffix-array sampling; pass DefaultSamplingRate unless profiling says
// otherwise.
func New(seqs [][]byte, samplingRate int) *Index {
	totalLen := 0
	for _, s := range seqs {
		totalLen += len(s) + 1
	}
	text := make([]byte, 0, totalLen)
	ix := &Index{samplingRate: samplingRate}
	for _, s := range seqs {
		ix.seqOffsets = append(ix.seqOffsets, int32(len(text)))
		ix.seqLens = append(ix.seqLens, int32(len(s)))
		text = append(text, s...)
		text = append(text, dna.RankSentinel)
	}
	ix.textLen = len(text)

	for _, c := range text {
		ix.counts[c+1]++
	}
	for c := 1; c <= dna.NumRanks; c++ {
		ix.counts[c] += ix.counts[c-1]
	}

	sa := suffixArray(text)
	ix.occ = newOccTable(bwtFromSA(text, sa))

	revText := reversed(text)
	revSA := suffixArray(revText)
	ix.revOcc = newOccTable(bwtFromSA(revText, revSA))

	ix.marked = newMarkBitmap(len(sa))
	for i, p := range sa {
		if int(p)%samplingRate == 0 {
			ix.marked.set(i)
		}
	}
	ix.marked.finish()
	for i, p := range sa {
		if ix.marked.get(i) {
			ix.samples = append(ix.samples, p)
		}
	}
	return ix
}

// NumSequences returns the number of indexed sequences.
func (ix *Index) NumSequences() int { return len(ix.seqOffsets) }

// Cursor denotes the suffix-array interval of all occurrences of a matched
// string, together with the mirror interval in the reversed text that
// enables extension to the right.
type Cursor struct {
	ix            *Index
	lo, hi        int
	revLo, revHi  int
	matchedLength int
}

// Root returns the cursor matching the empty string.
func (ix *Index) Root() Cursor {
	return Cursor{ix: ix, lo: 0, hi: ix.textLen, revLo: 0, revHi: ix.textLen}
}

// Count returns the number of occurrences under the cursor.
func (c Cursor) Count() int { return c.hi - c.lo }

// Empty reports whether the cursor matches nothing.
func (c Cursor) Empty() bool { return c.hi <= c.lo }

// MatchedLength returns the number of symbols matched so far.
func (c Cursor) MatchedLength() int { return c.matchedLength }

// ExtendLeft prepends sym to the matched string.
func (c Cursor) ExtendLeft(sym byte) Cursor {
	ix := c.ix
	losRanks := ix.occ.ranksAll(c.lo)
	hisRanks := ix.occ.ranksAll(c.hi)
	smaller := 0
	for s := 0; s < int(sym); s++ {
		smaller += hisRanks[s] - losRanks[s]
	}
	cnt := hisRanks[sym] - losRanks[sym]
	return Cursor{
		ix:            ix,
		lo:            ix.counts[sym] + losRanks[sym],
		hi:            ix.counts[sym] + losRanks[sym] + cnt,
		revLo:         c.revLo + smaller,
		revHi:         c.revLo + smaller + cnt,
		matchedLength: c.matchedLength + 1,
	}
}

// ExtendRight appends sym to the matched string.
func (c Cursor) ExtendRight(sym byte) Cursor {
	ix := c.ix
	losRanks := ix.revOcc.ranksAll(c.revLo)
	hisRanks := ix.revOcc.ranksAll(c.revHi)
	smaller := 0
	for s := 0; s < int(sym); s++ {
		smaller += hisRanks[s] - losRanks[s]
	}
	cnt := hisRanks[sym] - losRanks[sym]
	return Cursor{
		ix:            ix,
		lo:            c.lo + smaller,
		hi:            c.lo + smaller + cnt,
		revLo:         ix.counts[sym] + losRanks[sym],
		revHi:         ix.counts[sym] + losRanks[sym] + cnt,
		matchedLength: c.matchedLength + 1,
	}
}

// Occurrence is a located match.
type Occurrence struct {
	SeqID    int
	Position int
}

// Locate resolves every occurrence under the cursor to a sequence id and a
// start position within that sequence.
func (c Cursor) Locate() []Occurrence {
	ix := c.ix
	occurrences := make([]Occurrence, 0, c.Count())
	for i := c.lo; i < c.hi; i++ {
		textPos := ix.resolve(i)
		seq := sort.Search(len(ix.seqOffsets), func(k int) bool {
			return int(ix.seqOffsets[k]) > textPos
		}) - 1
		occurrences = append(occurrences, Occurrence{
			SeqID:    seq,
			Position: textPos - int(ix.seqOffsets[seq]),
		})
	}
	return occurrences
}

// resolve walks backwards with LF steps until a sampled suffix-array entry
// is reached.
func (ix *Index) resolve(i int) int {
	steps := 0
	for !ix.marked.get(i) {
		sym := ix.occ.bwt[i]
		i = ix.counts[sym] + ix.occ.rank(sym, i)
		steps++
	}
	return int(ix.samples[ix.marked.rank(i)]) + steps
}
