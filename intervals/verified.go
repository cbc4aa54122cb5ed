package intervals

import (
	"github.com/biogo/store/interval"
)

const containmentEpsilon = 1e-9

// storedInterval is the element type held in the interval tree.
type storedInterval struct {
	HalfOpen
	id uintptr
}

func (s storedInterval) Range() interval.IntRange {
	return interval.IntRange{Start: s.Start, End: s.End}
}

func (s storedInterval) Overlap(b interval.IntRange) bool {
	return s.End > b.Start && s.Start < b.End
}

func (s storedInterval) ID() uintptr { return s.id }

// queryInterval is used for strict half-open overlap queries during
// Contains; touching intervals carry no usable overlap.
type queryInterval struct {
	HalfOpen
}

func (q queryInterval) Range() interval.IntRange {
	return interval.IntRange{Start: q.Start, End: q.End}
}

func (q queryInterval) Overlap(b interval.IntRange) bool {
	return q.End > b.Start && q.Start < b.End
}

func (q queryInterval) ID() uintptr { return 0 }

// VerifiedStore records the reference intervals for which a full-query root
// verification has already been performed.  Stored intervals are kept
// pairwise disjoint by merging on insert.  A disabled store is a no-op stub:
// Insert does nothing and Contains always answers false.
type VerifiedStore struct {
	enabled bool
	// overlapRate is the fraction of the target that must be covered by a
	// single stored interval for Contains to answer true.  Completeness of
	// the aligner holds only at 1.0 (strict containment).
	overlapRate float64

	tree   interval.IntTree
	nextID uintptr
	size   int
}

// NewVerifiedStore returns a store; pass enabled=false for the no-op stub
// used when interval optimization is switched off.
func NewVerifiedStore(enabled bool, overlapRate float64) *VerifiedStore {
	return &VerifiedStore{enabled: enabled, overlapRate: overlapRate}
}

// Len returns the number of disjoint stored intervals.
func (s *VerifiedStore) Len() int { return s.size }

// Insert adds [v.Start, v.End) to the store, merging it with any
// overlapping or touching stored intervals.
func (s *VerifiedStore) Insert(v HalfOpen) {
	if !s.enabled {
		return
	}
	merged := v
	// The probe is widened by one position on each side so that stored
	// intervals merely touching v are found and merged as well.
	probe := queryInterval{HalfOpen{Start: v.Start - 1, End: v.End + 1}}
	for _, e := range s.tree.Get(probe) {
		old := e.(storedInterval)
		if old.Start < merged.Start {
			merged.Start = old.Start
		}
		if old.End > merged.End {
			merged.End = old.End
		}
		s.tree.Delete(old, false)
		s.size--
	}
	s.nextID++
	s.tree.Insert(storedInterval{HalfOpen: merged, id: s.nextID}, false)
	s.size++
}

// Contains reports whether target is covered by a stored interval.  In
// strict mode (overlap rate 1.0) that means full containment; with a lower
// rate, a single stored interval overlapping at least that fraction of the
// target counts as well.
func (s *VerifiedStore) Contains(target HalfOpen) bool {
	if !s.enabled {
		return false
	}
	found := false
	s.tree.DoMatching(func(e interval.IntInterface) (done bool) {
		existing := e.(storedInterval).HalfOpen
		switch existing.RelationshipWith(target) {
		case Equal, Contains:
			found = true
		case Inside, OverlappingOrTouchingAbove, OverlappingOrTouchingBelow:
			rate := float64(target.Overlap(existing).Size()) / float64(target.Size())
			found = rate+containmentEpsilon >= s.overlapRate
		}
		return found
	}, queryInterval{target})
	return found
}
