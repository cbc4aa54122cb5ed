package align

import (
	"sort"

	"github.com/grailbio/base/log"
)

// QueryAlignments stores all useful alignments of one query across all
// references and tracks the primary alignment.  Per reference, at most one
// alignment is kept per local neighborhood: strictly better candidates
// evict strictly worse incumbents, equal-or-better incumbents reject the
// candidate.
type QueryAlignments struct {
	// perReference[r] is sorted by StartInReference.
	perReference [][]Alignment

	hasPrimary   bool
	primaryScore int
	primaryEnd   int
	primaryRefID int
	primaryStart int
}

// NewQueryAlignments returns an empty collection for the given number of
// references.
func NewQueryAlignments(numReferences int) *QueryAlignments {
	return &QueryAlignments{perReference: make([][]Alignment, numReferences)}
}

// Size returns the total number of stored alignments.
func (qa *QueryAlignments) Size() int {
	n := 0
	for _, alignments := range qa.perReference {
		n += len(alignments)
	}
	return n
}

// ToReference returns the stored alignments of one reference, ordered by
// start position.
func (qa *QueryAlignments) ToReference(referenceID int) []Alignment {
	return qa.perReference[referenceID]
}

// BestNumErrors returns the error count of the primary alignment; ok is
// false when no alignment is stored.
func (qa *QueryAlignments) BestNumErrors() (numErrors int, ok bool) {
	if !qa.hasPrimary {
		return 0, false
	}
	return -qa.primaryScore, true
}

// IsPrimary reports whether a is the primary alignment of this query.  The
// primary is unique: it minimizes (errors, end position, reference id).
func (qa *QueryAlignments) IsPrimary(a *Alignment) bool {
	return qa.hasPrimary &&
		a.ReferenceID == qa.primaryRefID &&
		a.StartInReference == qa.primaryStart &&
		a.EndInReference == qa.primaryEnd
}

func (qa *QueryAlignments) updatePrimary(a *Alignment) {
	if !qa.hasPrimary ||
		qa.primaryScore < a.Score ||
		(qa.primaryScore == a.Score && qa.primaryEnd > a.EndInReference) ||
		(qa.primaryScore == a.Score && qa.primaryEnd == a.EndInReference &&
			qa.primaryRefID > a.ReferenceID) {
		qa.hasPrimary = true
		qa.primaryScore = a.Score
		qa.primaryEnd = a.EndInReference
		qa.primaryRefID = a.ReferenceID
		qa.primaryStart = a.StartInReference
	}
}

// InsertionGatekeeper decides for every candidate endpoint of a full
// verification whether the alignment is worth computing and storing.  The
// traceback is deferred behind a closure so rejected candidates cost no
// work.
type InsertionGatekeeper struct {
	qa              *QueryAlignments
	referenceID     int
	spanStartOffset int
	spanLength      int
	orientation     Orientation
}

// Gatekeeper returns a gatekeeper for offers out of one verification of a
// reference span.  The engine works on reversed sequences, so offers carry
// end positions in the reversed span; the gatekeeper transforms them back.
func (qa *QueryAlignments) Gatekeeper(referenceID, spanStartOffset, spanLength int, orientation Orientation) InsertionGatekeeper {
	return InsertionGatekeeper{
		qa:              qa,
		referenceID:     referenceID,
		spanStartOffset: spanStartOffset,
		spanLength:      spanLength,
		orientation:     orientation,
	}
}

// OfferAlignment checks the candidate described by its end position in the
// reversed reference span and its error count against the stored neighbors
// and, if it survives, computes and inserts the full alignment.  It returns
// whether the candidate was inserted.
func (g *InsertionGatekeeper) OfferAlignment(reverseEndPosition, numErrors int, computeAlignment func() Alignment) bool {
	alignments := g.qa.perReference[g.referenceID]

	// Undo the sequence reversal: the end position in the reversed span is
	// the start position in the forward span.
	candidateStart := g.spanStartOffset + g.spanLength - reverseEndPosition

	idx := sort.Search(len(alignments), func(i int) bool {
		return alignments[i].StartInReference >= candidateStart
	})

	removeRight := false
	if idx < len(alignments) {
		switch alignments[idx].LocalQualityVersus(candidateStart, numErrors) {
		case Equal, Better:
			return false
		case Worse:
			removeRight = true
		}
	}

	removeLeft := false
	if idx > 0 {
		switch alignments[idx-1].LocalQualityVersus(candidateStart, numErrors) {
		case Better:
			if removeRight {
				// The store was locally dominance-free, so a better left
				// neighbor excludes a worse right neighbor.
				log.Panicf("alignment collector invariant violated at reference position %d", candidateStart)
			}
			return false
		case Worse:
			removeLeft = true
		case Equal:
			// Distinct stored starts with equal relation cannot occur: the
			// candidate would have been rejected against the right side.
			return false
		}
	}

	if removeRight {
		alignments = append(alignments[:idx], alignments[idx+1:]...)
	}
	if removeLeft {
		alignments = append(alignments[:idx-1], alignments[idx:]...)
		idx--
	}

	spanAlignment := computeAlignment()
	inserted := Alignment{
		StartInReference: candidateStart,
		EndInReference:   candidateStart + spanAlignment.LengthInReference(),
		ReferenceID:      g.referenceID,
		NumErrors:        spanAlignment.NumErrors,
		Score:            -spanAlignment.NumErrors,
		Orientation:      g.orientation,
		Cigar:            spanAlignment.Cigar,
	}

	alignments = append(alignments, Alignment{})
	copy(alignments[idx+1:], alignments[idx:])
	alignments[idx] = inserted
	g.qa.perReference[g.referenceID] = alignments

	g.qa.updatePrimary(&inserted)
	return true
}
