package pex

import (
	"github.com/feldroop/floxer/align"
	"github.com/feldroop/floxer/input"
	"github.com/feldroop/floxer/intervals"
	"github.com/feldroop/floxer/search"
	"github.com/feldroop/floxer/stats"
)

// AlignmentConfig bundles the collaborators and tunables of the per-query
// alignment pipeline.  All fields are worker-local except the shared
// immutable FM-index inside the searcher.
type AlignmentConfig struct {
	Searcher *search.Searcher
	Aligner  *align.Aligner

	UseIntervalOptimization bool
	// OverlapRateContained is the fraction of an essential root interval
	// that must be covered by an already verified interval to skip the
	// verification.  Completeness holds only at 1.0.
	OverlapRateContained   float64
	ExtraVerificationRatio float64
	Kind                   VerificationKind
}

// AlignForwardAndReverseComplement runs the full pipeline for one query:
// both orientations are seeded, searched and verified independently into a
// single alignment collection.
func (t *Tree) AlignForwardAndReverseComplement(
	references []input.ReferenceRecord,
	query *input.QueryRecord,
	config AlignmentConfig,
	st *stats.Stats,
) *align.QueryAlignments {
	alignments := align.NewQueryAlignments(len(references))

	t.alignQueryInOrientation(references, query.RankSequence, align.Forward, alignments, config, st)
	t.alignQueryInOrientation(references, query.ReverseComplementRankSequence, align.ReverseComplement, alignments, config, st)

	st.AlignmentsPerQuery.Add(alignments.Size())
	for referenceID := range references {
		for _, alignment := range alignments.ToReference(referenceID) {
			st.AlignmentEditDistances.Add(alignment.NumErrors)
		}
	}
	return alignments
}

func (t *Tree) alignQueryInOrientation(
	references []input.ReferenceRecord,
	query []byte,
	orientation align.Orientation,
	alignments *align.QueryAlignments,
	config AlignmentConfig,
	st *stats.Stats,
) {
	seeds := t.GenerateSeeds(query)
	addSeedStats(st, seeds)

	searchResult := config.Searcher.SearchSeeds(seeds)
	addSearchResultStats(st, searchResult)

	verifiedIntervalsPerReference := make([]*intervals.VerifiedStore, len(references))
	for i := range references {
		verifiedIntervalsPerReference[i] = intervals.NewVerifiedStore(
			config.UseIntervalOptimization, config.OverlapRateContained,
		)
	}

	for seedID := range seeds {
		anchorsOfSeed := &searchResult.BySeed[seedID]
		if anchorsOfSeed.Status == search.SeedFullyExcluded {
			continue
		}
		for referenceID := range references {
			for _, anchor := range anchorsOfSeed.ByReference[referenceID] {
				// Seeds are generated in leaf order, so the seed id selects
				// the leaf the verifier starts climbing from.
				verifier := queryVerifier{
					tree:                   t,
					anchor:                 anchor,
					leaf:                   t.leaves[seedID],
					query:                  query,
					orientation:            orientation,
					reference:              &references[referenceID],
					verifiedIntervals:      verifiedIntervalsPerReference[referenceID],
					alignments:             alignments,
					aligner:                config.Aligner,
					extraVerificationRatio: config.ExtraVerificationRatio,
					stats:                  st,
				}
				verifier.verify(config.Kind)
			}
		}
	}
}

func addSeedStats(st *stats.Stats, seeds []search.Seed) {
	st.SeedsPerQuery.Add(len(seeds))
	for _, seed := range seeds {
		st.ErrorsPerSeed.Add(seed.NumErrors)
		st.SeedLengths.Add(len(seed.Sequence))
	}
}

func addSearchResultStats(st *stats.Stats, result search.Result) {
	numAnchorsOfQuery := 0
	numExcludedAnchorsOfQuery := 0
	allExcluded := true

	for i := range result.BySeed {
		anchorsOfSeed := &result.BySeed[i]
		if anchorsOfSeed.Status == search.SeedFullyExcluded {
			st.RawAnchorsPerExcludedSeed.Add(anchorsOfSeed.NumExcludedRawAnchors)
			numExcludedAnchorsOfQuery += anchorsOfSeed.NumExcludedRawAnchors
		} else {
			st.AnchorsPerSeed.Add(anchorsOfSeed.NumKeptUsefulAnchors)
			numAnchorsOfQuery += anchorsOfSeed.NumKeptUsefulAnchors
			numExcludedAnchorsOfQuery += anchorsOfSeed.NumExcludedRawAnchors
			allExcluded = false
		}
	}

	st.AnchorsPerQuery.Add(numAnchorsOfQuery)
	st.ExcludedRawAnchorsPerQuery.Add(numExcludedAnchorsOfQuery)
	if allExcluded {
		st.CompletelyExcludedQueries++
	}
}
