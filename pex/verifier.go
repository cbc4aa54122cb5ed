package pex

import (
	"github.com/feldroop/floxer/align"
	"github.com/feldroop/floxer/input"
	"github.com/feldroop/floxer/intervals"
	"github.com/feldroop/floxer/search"
	"github.com/feldroop/floxer/stats"
	"github.com/feldroop/floxer/util"
)

// VerificationKind selects between verifying the whole query directly for
// every anchor and climbing the tree from the seed leaf upward.
type VerificationKind int

const (
	Hierarchical VerificationKind = iota
	DirectFull
)

// spanConfig describes the reference window verified against one PEX node.
type spanConfig struct {
	Offset int
	Length int
	// AppliedExtraPerSide is the padding added to each side, needed to trim
	// the window back to its essential interval for memoization.
	AppliedExtraPerSide int
}

func (c spanConfig) asHalfOpenInterval() intervals.HalfOpen {
	return intervals.HalfOpen{Start: c.Offset, End: c.Offset + c.Length}
}

// computeReferenceSpan returns the window that contains every alignment of
// the node's query span with up to its budget of errors passing through the
// anchor, padded on both sides by the extra verification ratio to absorb
// neighboring locally optimal endpoints.
func computeReferenceSpan(
	anchor search.Anchor,
	node Node,
	leafQueryIndexFrom int,
	fullReferenceLength int,
	extraVerificationRatio float64,
) spanConfig {
	baseLength := node.LengthOfQuerySpan() + 2*node.NumErrors + 1
	extraLength := util.FloatErrorAwareCeil(float64(baseLength) * extraVerificationRatio)

	start := anchor.Position - (leafQueryIndexFrom - node.QueryIndexFrom) - node.NumErrors - extraLength
	if start < 0 {
		start = 0
	}
	length := baseLength + 2*extraLength
	if length > fullReferenceLength-start {
		length = fullReferenceLength - start
	}
	return spanConfig{Offset: start, Length: length, AppliedExtraPerSide: extraLength}
}

// queryVerifier drives the verification of a single anchor in one
// orientation.
type queryVerifier struct {
	tree        *Tree
	anchor      search.Anchor
	leaf        Node
	query       []byte
	orientation align.Orientation
	reference   *input.ReferenceRecord

	verifiedIntervals      *intervals.VerifiedStore
	alignments             *align.QueryAlignments
	aligner                *align.Aligner
	extraVerificationRatio float64
	stats                  *stats.Stats
}

func (v *queryVerifier) verify(kind VerificationKind) {
	switch kind {
	case DirectFull:
		v.directFullVerification()
	case Hierarchical:
		v.hierarchicalVerification()
	}
}

func (v *queryVerifier) directFullVerification() {
	if v.rootWasAlreadyVerified() {
		return
	}
	rootSpan := v.computeRootReferenceSpan()
	v.tryToAlignNodeWithReferenceSpan(v.tree.Root(), rootSpan)
	v.verifiedIntervals.Insert(rootSpan.asHalfOpenInterval())
}

func (v *queryVerifier) hierarchicalVerification() {
	if v.rootWasAlreadyVerified() {
		return
	}

	// A tree that is only a root verifies the whole query right away.
	if v.leaf.IsRoot() {
		rootSpan := v.computeRootReferenceSpan()
		v.tryToAlignNodeWithReferenceSpan(v.leaf, rootSpan)
		v.verifiedIntervals.Insert(rootSpan.asHalfOpenInterval())
		return
	}

	seedQueryIndexFrom := v.leaf.QueryIndexFrom
	node := v.tree.Parent(v.leaf)

	for {
		span := computeReferenceSpan(
			v.anchor, node, seedQueryIndexFrom,
			len(v.reference.RankSequence), v.extraVerificationRatio,
		)
		alignmentExists := v.tryToAlignNodeWithReferenceSpan(node, span)

		if node.IsRoot() {
			// The root span is memoized whether or not an alignment was
			// found; either way this window is settled.
			v.verifiedIntervals.Insert(span.asHalfOpenInterval())
		}
		if !alignmentExists || node.IsRoot() {
			return
		}
		node = v.tree.Parent(node)
	}
}

// rootWasAlreadyVerified checks the verified-interval store against the
// essential root interval (the root span without its padding).  A hit means
// a previous anchor already triggered a full verification covering every
// alignment this anchor could produce.
func (v *queryVerifier) rootWasAlreadyVerified() bool {
	rootSpan := v.computeRootReferenceSpan()
	essential := rootSpan.asHalfOpenInterval().TrimBothSides(rootSpan.AppliedExtraPerSide)
	if v.verifiedIntervals.Contains(essential) {
		v.stats.AvoidedRootSpanSizes.Add(rootSpan.Length)
		return true
	}
	return false
}

func (v *queryVerifier) computeRootReferenceSpan() spanConfig {
	return computeReferenceSpan(
		v.anchor, v.tree.Root(), v.leaf.QueryIndexFrom,
		len(v.reference.RankSequence), v.extraVerificationRatio,
	)
}

// tryToAlignNodeWithReferenceSpan runs the alignment engine for the node's
// query span against the reference window.  Non-root nodes only verify
// existence; the root additionally collects every locally optimal alignment
// into the query's collection.
func (v *queryVerifier) tryToAlignNodeWithReferenceSpan(node Node, span spanConfig) bool {
	querySpan := v.query[node.QueryIndexFrom:node.QueryIndexTo]
	referenceSpan := v.reference.RankSequence[span.Offset : span.Offset+span.Length]

	if !node.IsRoot() {
		v.stats.InnerNodeSpanSizes.Add(span.Length)
		return v.aligner.AlignQuery(referenceSpan, querySpan, node.NumErrors, false, nil)
	}

	v.stats.AlignedRootSpanSizes.Add(span.Length)
	gatekeeper := v.alignments.Gatekeeper(
		v.reference.InternalID, span.Offset, span.Length, v.orientation,
	)
	return v.aligner.AlignQuery(
		reversedSequence(referenceSpan), reversedSequence(querySpan),
		node.NumErrors, true, &gatekeeper,
	)
}

func reversedSequence(seq []byte) []byte {
	out := make([]byte, len(seq))
	for i, c := range seq {
		out[len(seq)-1-i] = c
	}
	return out
}
