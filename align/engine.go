package align

// Semi-global edit-distance verification.  The reference side has free end
// gaps, the query side does not: the full query must be consumed, the
// reference window only partially.  Scores are 0 for a match and -1 for a
// mismatch or gap, so a score of -k means k edit errors.

type trace byte

const (
	traceNone trace = iota
	traceTakeBothMatch
	traceTakeBothMismatch
	traceOnlyQuery
	traceOnlyReference
)

// Aligner owns reusable DP matrices.  It is not safe for concurrent use;
// every worker holds its own.
type Aligner struct {
	scores []int
	traces []trace
}

// NewAligner returns an aligner with empty matrix buffers.
func NewAligner() *Aligner { return &Aligner{} }

// AlignQuery reports whether query aligns into reference with at most
// maxErrors edit errors.  When collect is true, reference and query must be
// passed reversed; every locally optimal endpoint of the last DP row within
// the budget is then offered to the gatekeeper, with the traceback deferred
// until the gatekeeper accepts.
//
// Equal-score transitions prefer match/mismatch over insertion (query
// symbol only) over deletion (reference symbol only), which makes tracebacks
// take the shortest reference span.
func (a *Aligner) AlignQuery(reference, query []byte, maxErrors int, collect bool, gatekeeper *InsertionGatekeeper) bool {
	if len(reference) == 0 || len(query) == 0 {
		panic("empty sequences for verification alignment not allowed")
	}

	numRows, numCols := len(query)+1, len(reference)+1
	a.resize(numRows * numCols)
	scores, traces := a.scores, a.traces

	for i := 0; i < numRows; i++ {
		scores[i*numCols] = -i
		traces[i*numCols] = traceOnlyQuery
	}
	for j := 0; j < numCols; j++ {
		// The first score row stays zero: end gaps on the reference are free.
		scores[j] = 0
		traces[j] = traceNone
	}

	for i := 0; i < len(query); i++ {
		row := (i + 1) * numCols
		prevRow := i * numCols
		for j := 0; j < len(reference); j++ {
			score := scores[prevRow+j]
			var tr trace
			if query[i] == reference[j] {
				tr = traceTakeBothMatch
			} else {
				score--
				tr = traceTakeBothMismatch
			}
			if onlyQuery := scores[prevRow+j+1] - 1; onlyQuery > score {
				score = onlyQuery
				tr = traceOnlyQuery
			}
			if onlyReference := scores[row+j] - 1; onlyReference > score {
				score = onlyReference
				tr = traceOnlyReference
			}
			scores[row+j+1] = score
			traces[row+j+1] = tr
		}
	}

	lastRow := scores[len(query)*numCols:]
	bestScore := lastRow[0]
	for _, s := range lastRow[1:] {
		if s > bestScore {
			bestScore = s
		}
	}
	if -bestScore > maxErrors {
		return false
	}

	if collect {
		a.collectAlignments(lastRow, numCols, maxErrors, gatekeeper)
	}
	return true
}

func (a *Aligner) resize(n int) {
	if cap(a.scores) < n {
		a.scores = make([]int, n)
		a.traces = make([]trace, n)
	}
	a.scores = a.scores[:n]
	a.traces = a.traces[:n]
}

// collectAlignments offers every endpoint of the last row that is within
// the error budget and not beaten by an immediate neighbor.
func (a *Aligner) collectAlignments(lastRow []int, numCols, maxErrors int, gatekeeper *InsertionGatekeeper) {
	for j, score := range lastRow {
		numErrors := -score
		if numErrors > maxErrors {
			continue
		}
		left := j
		if j > 0 {
			left = j - 1
		}
		right := j
		if j < len(lastRow)-1 {
			right = j + 1
		}
		if score < lastRow[left] || score < lastRow[right] {
			continue
		}
		endPosition := j
		gatekeeper.OfferAlignment(endPosition, numErrors, func() Alignment {
			return a.traceback(endPosition, numCols, numErrors)
		})
	}
}

// traceback walks from the given endpoint of the last row back to the first
// row.  The caller passed reversed sequences, so the CIGAR comes out in
// forward order without a final reversal, and the returned positions are in
// reversed-span coordinates.
func (a *Aligner) traceback(endPosition, numCols, numErrors int) Alignment {
	i := len(a.traces)/numCols - 1
	j := endPosition
	var cigar Cigar
	for {
		switch a.traces[i*numCols+j] {
		case traceNone:
			return Alignment{
				StartInReference: j,
				EndInReference:   endPosition,
				NumErrors:        numErrors,
				Score:            -numErrors,
				Cigar:            cigar,
			}
		case traceTakeBothMatch:
			cigar.Add(OpMatch)
			i--
			j--
		case traceTakeBothMismatch:
			cigar.Add(OpMismatch)
			i--
			j--
		case traceOnlyQuery:
			cigar.Add(OpInsertion)
			i--
		case traceOnlyReference:
			cigar.Add(OpDeletion)
			j--
		}
	}
}
