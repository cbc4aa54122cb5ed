// Package search locates seeds in the reference via the FM-index and prunes
// the resulting anchors down to a useful set.
package search

import (
	"math"
	"sort"

	"github.com/feldroop/floxer/fmindex"
	"github.com/feldroop/floxer/searchscheme"
)

// Seed is the query slice of one PEX leaf, searched approximately against
// the index.
type Seed struct {
	Sequence    []byte
	NumErrors   int
	QueryOffset int
	LeafIndex   int
}

// Anchor is a candidate occurrence of a seed in one reference.
type Anchor struct {
	Position  int
	NumErrors int
}

const eraseMarker = math.MaxInt

// IsBetterThan reports whether a dominates other: it has at most as many
// errors, and lies so close that other's alignments are reachable from a.
func (a Anchor) IsBetterThan(other Anchor) bool {
	positionDifference := a.Position - other.Position
	if positionDifference < 0 {
		positionDifference = -positionDifference
	}
	return a.NumErrors <= other.NumErrors &&
		positionDifference <= other.NumErrors-a.NumErrors
}

func (a *Anchor) markForErasure() { a.NumErrors = eraseMarker }

func (a Anchor) shouldBeErased() bool { return a.NumErrors == eraseMarker }

// SeedStatus describes how the anchor cap affected a seed.
type SeedStatus int

const (
	SeedNotExcluded SeedStatus = iota
	SeedPartlyExcluded
	SeedFullyExcluded
)

// AnchorsOfSeed is the per-seed search report.
type AnchorsOfSeed struct {
	Status                SeedStatus
	NumKeptUsefulAnchors  int
	NumExcludedRawAnchors int
	ByReference           [][]Anchor
}

// Result is the search report for all seeds of one query orientation.
type Result struct {
	BySeed                []AnchorsOfSeed
	NumFullyExcludedSeeds int
}

// Searcher searches seeds against a shared FM-index.  The scheme cache is
// per-worker; a Searcher must not be shared across goroutines.
type Searcher struct {
	Index         *fmindex.Index
	NumReferences int
	Schemes       *searchscheme.Cache
	// MaxRawAnchors is the per-seed raw anchor cap: error layers are kept
	// from zero errors upward until the cumulative raw count reaches this
	// value; the remaining layers are excluded.
	MaxRawAnchors int
}

type cursorsOfErrorLayer struct {
	totalRawAnchors int
	cursors         []fmindex.Cursor
}

// SearchSeeds searches every seed and returns the kept useful anchors per
// (seed, reference) along with exclusion bookkeeping.
func (s *Searcher) SearchSeeds(seeds []Seed) Result {
	result := Result{BySeed: make([]AnchorsOfSeed, 0, len(seeds))}

	for _, seed := range seeds {
		scheme := s.Schemes.Get(len(seed.Sequence), seed.NumErrors)

		layers := make([]cursorsOfErrorLayer, seed.NumErrors+1)
		totalRawAnchors := 0
		searchscheme.SearchPattern(s.Index, seed.Sequence, scheme, func(cursor fmindex.Cursor, numErrors int) {
			layer := &layers[numErrors]
			layer.totalRawAnchors += cursor.Count()
			layer.cursors = append(layer.cursors, cursor)
			totalRawAnchors += cursor.Count()
		})

		// Find the smallest error threshold at which the cumulative raw
		// anchor count reaches the cap; only layers below it are kept.
		errorsThreshold := 0
		rawAnchorsBelowThreshold := 0
		for errorsThreshold <= seed.NumErrors {
			rawAnchorsBelowThreshold += layers[errorsThreshold].totalRawAnchors
			if rawAnchorsBelowThreshold >= s.MaxRawAnchors {
				break
			}
			errorsThreshold++
		}

		if errorsThreshold == 0 {
			result.BySeed = append(result.BySeed, AnchorsOfSeed{
				Status:                SeedFullyExcluded,
				NumExcludedRawAnchors: totalRawAnchors,
			})
			result.NumFullyExcludedSeeds++
			continue
		}

		numKeptRawAnchors := 0
		byReference := make([][]Anchor, s.NumReferences)
		for numErrors := 0; numErrors < errorsThreshold && numErrors <= seed.NumErrors; numErrors++ {
			layer := &layers[numErrors]
			numKeptRawAnchors += layer.totalRawAnchors
			for _, cursor := range layer.cursors {
				for _, occurrence := range cursor.Locate() {
					byReference[occurrence.SeqID] = append(byReference[occurrence.SeqID], Anchor{
						Position:  occurrence.Position,
						NumErrors: numErrors,
					})
				}
			}
		}

		numUsefulAnchors := 0
		for referenceID := range byReference {
			byReference[referenceID] = eraseUselessAnchors(byReference[referenceID])
			numUsefulAnchors += len(byReference[referenceID])
		}

		numExcludedRawAnchors := totalRawAnchors - numKeptRawAnchors
		status := SeedNotExcluded
		if numExcludedRawAnchors > 0 {
			status = SeedPartlyExcluded
		}
		result.BySeed = append(result.BySeed, AnchorsOfSeed{
			Status:                status,
			NumKeptUsefulAnchors:  numUsefulAnchors,
			NumExcludedRawAnchors: numExcludedRawAnchors,
			ByReference:           byReference,
		})
	}
	return result
}

// eraseUselessAnchors removes every anchor dominated by another one of the
// same (seed, reference) bucket.  A two-pointer sweep marks dominated
// anchors and a final compaction drops them.
func eraseUselessAnchors(anchors []Anchor) []Anchor {
	if len(anchors) == 0 {
		return anchors
	}
	sort.Slice(anchors, func(i, j int) bool { return anchors[i].Position < anchors[j].Position })

	for current := 0; current < len(anchors)-1; {
		other := current + 1
		for other < len(anchors) && anchors[current].IsBetterThan(anchors[other]) {
			anchors[other].markForErasure()
			other++
		}
		if other < len(anchors) && anchors[other].IsBetterThan(anchors[current]) {
			anchors[current].markForErasure()
		}
		current = other
	}

	kept := anchors[:0]
	for _, anchor := range anchors {
		if !anchor.shouldBeErased() {
			kept = append(kept, anchor)
		}
	}
	return kept
}
