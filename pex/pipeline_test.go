package pex

import (
	"math/rand"
	"testing"

	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"

	"github.com/feldroop/floxer/align"
	"github.com/feldroop/floxer/dna"
	"github.com/feldroop/floxer/fmindex"
	"github.com/feldroop/floxer/input"
	"github.com/feldroop/floxer/search"
	"github.com/feldroop/floxer/searchscheme"
	"github.com/feldroop/floxer/stats"
)

func makeReferences(seqs ...string) []input.ReferenceRecord {
	references := make([]input.ReferenceRecord, 0, len(seqs))
	for i, seq := range seqs {
		references = append(references, input.ReferenceRecord{
			ID:           "ref",
			InternalID:   i,
			RankSequence: dna.RanksFromChars([]byte(seq)),
		})
	}
	return references
}

type pipelineOpts struct {
	bottomUp             bool
	directFull           bool
	intervalOptimization bool
}

func runPipeline(
	t *testing.T,
	references []input.ReferenceRecord,
	querySeq string,
	queryNumErrors, seedNumErrors int,
	opts pipelineOpts,
) (*align.QueryAlignments, *stats.Stats) {
	t.Helper()

	sequences := make([][]byte, len(references))
	for i := range references {
		sequences[i] = references[i].RankSequence
	}
	index := fmindex.New(sequences, fmindex.DefaultSamplingRate)

	query := input.NewQueryRecord("query", []byte(querySeq), nil, 0)
	assert.NotNil(t, query)

	strategy := Recursive
	if opts.bottomUp {
		strategy = BottomUp
	}
	tree := New(Config{
		TotalQueryLength: len(querySeq),
		QueryNumErrors:   queryNumErrors,
		LeafMaxNumErrors: seedNumErrors,
		Strategy:         strategy,
	})

	kind := Hierarchical
	if opts.directFull {
		kind = DirectFull
	}
	config := AlignmentConfig{
		Searcher: &search.Searcher{
			Index:         index,
			NumReferences: len(references),
			Schemes:       searchscheme.NewCache(),
			MaxRawAnchors: 1000,
		},
		Aligner:                 align.NewAligner(),
		UseIntervalOptimization: opts.intervalOptimization,
		OverlapRateContained:    1.0,
		ExtraVerificationRatio:  0.02,
		Kind:                    kind,
	}

	st := stats.New()
	return tree.AlignForwardAndReverseComplement(references, query, config, st), st
}

// alignmentKey flattens an alignment for set comparisons.
type alignmentKey struct {
	referenceID int
	start       int
	end         int
	numErrors   int
	orientation align.Orientation
}

func alignmentSet(qa *align.QueryAlignments, numReferences int) map[alignmentKey]bool {
	set := make(map[alignmentKey]bool)
	for referenceID := 0; referenceID < numReferences; referenceID++ {
		for _, a := range qa.ToReference(referenceID) {
			set[alignmentKey{referenceID, a.StartInReference, a.EndInReference, a.NumErrors, a.Orientation}] = true
		}
	}
	return set
}

const fourBlockReference = "AAAAAAAAAACCCCCCCCCCGGGGGGGGGGTTTTTTTTTT"

func TestPipelineExactQuery(t *testing.T) {
	references := makeReferences(fourBlockReference)
	qa, _ := runPipeline(t, references, "AAAAAACCCCCC", 0, 0, pipelineOpts{})

	stored := qa.ToReference(0)
	var forward, reverse []align.Alignment
	for _, a := range stored {
		if a.Orientation == align.Forward {
			forward = append(forward, a)
		} else {
			reverse = append(reverse, a)
		}
	}

	expect.EQ(t, len(forward), 1)
	expect.EQ(t, forward[0].StartInReference, 4)
	expect.EQ(t, forward[0].EndInReference, 16)
	expect.EQ(t, forward[0].NumErrors, 0)
	expect.EQ(t, forward[0].Cigar.String(), "12=")
	expect.True(t, qa.IsPrimary(&forward[0]))

	// The reverse complement GGGGGGTTTTTT occurs at position 24; it is
	// reported as a secondary alignment because its end position is larger.
	expect.EQ(t, len(reverse), 1)
	expect.EQ(t, reverse[0].StartInReference, 24)
	expect.EQ(t, reverse[0].NumErrors, 0)
	expect.False(t, qa.IsPrimary(&reverse[0]))
}

func TestPipelineRepeatQuery(t *testing.T) {
	references := makeReferences(fourBlockReference)
	qa, st := runPipeline(t, references, "CCCCC", 0, 0, pipelineOpts{intervalOptimization: true})

	stored := qa.ToReference(0)
	best, ok := qa.BestNumErrors()
	expect.True(t, ok)
	expect.EQ(t, best, 0)

	// All forward starts 10..15 and reverse-complement (GGGGG) starts
	// 20..25 are locally optimal and mutually unrelated.
	var primary *align.Alignment
	for i := range stored {
		expect.EQ(t, stored[i].NumErrors, 0)
		if qa.IsPrimary(&stored[i]) {
			primary = &stored[i]
		}
	}
	expect.EQ(t, len(stored), 12)
	assert.NotNil(t, primary)
	expect.EQ(t, primary.StartInReference, 10)
	expect.EQ(t, primary.Orientation, align.Forward)

	// The interval optimization skipped at least one redundant root
	// verification of the overlapping anchors.
	expect.True(t, st.AvoidedRootSpanSizes.NumValues > 0)
}

func TestPipelineNoAlignmentWithinBudget(t *testing.T) {
	references := makeReferences("AAAAAAAAAACCCCCCCCCCGGGGGGGGGG")
	qa, _ := runPipeline(t, references, "CCGGCCGGCCGG", 2, 1, pipelineOpts{})
	expect.EQ(t, qa.Size(), 0)
	_, ok := qa.BestNumErrors()
	expect.False(t, ok)
}

func randomSequence(rng *rand.Rand, n int) []byte {
	letters := []byte("ACGT")
	seq := make([]byte, n)
	for i := range seq {
		seq[i] = letters[rng.Intn(4)]
	}
	return seq
}

func substituted(base byte) byte {
	switch base {
	case 'A':
		return 'C'
	case 'C':
		return 'G'
	case 'G':
		return 'T'
	default:
		return 'A'
	}
}

func TestPipelineTwoSubstitutions(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	referenceSeq := randomSequence(rng, 200)
	references := makeReferences(string(referenceSeq))

	querySeq := make([]byte, 30)
	copy(querySeq, referenceSeq[50:80])
	querySeq[5] = substituted(querySeq[5])
	querySeq[20] = substituted(querySeq[20])

	qa, _ := runPipeline(t, references, string(querySeq), 2, 1, pipelineOpts{})

	best, ok := qa.BestNumErrors()
	expect.True(t, ok)
	expect.EQ(t, best, 2)

	var at50 *align.Alignment
	stored := qa.ToReference(0)
	for i := range stored {
		if stored[i].StartInReference == 50 && stored[i].Orientation == align.Forward {
			at50 = &stored[i]
		}
	}
	assert.NotNil(t, at50)
	expect.EQ(t, at50.NumErrors, 2)
	expect.EQ(t, at50.EndInReference, 80)

	numMismatches, numIndels := 0, 0
	for _, block := range at50.Cigar.Blocks {
		switch block.Op {
		case align.OpMismatch:
			numMismatches += block.Count
		case align.OpInsertion, align.OpDeletion:
			numIndels += block.Count
		}
	}
	expect.EQ(t, numMismatches, 2)
	expect.EQ(t, numIndels, 0)
}

func TestPipelinePrimaryAcrossOrientationsAndReferences(t *testing.T) {
	query := "ACGTACGTAC"
	references := makeReferences(
		"GGGGACGTACGTACGGGG", // forward hit at 4
		"AAAAGTACGTACGTAAAA", // reverse-complement hit at 4
	)
	qa, _ := runPipeline(t, references, query, 1, 1, pipelineOpts{})

	numPrimary := 0
	var primary *align.Alignment
	for referenceID := 0; referenceID < 2; referenceID++ {
		stored := qa.ToReference(referenceID)
		for i := range stored {
			if qa.IsPrimary(&stored[i]) {
				numPrimary++
				primary = &stored[i]
			}
		}
	}

	// Both orientations align with zero errors and equal end positions;
	// the tie resolves to the smaller reference id.
	expect.EQ(t, numPrimary, 1)
	expect.EQ(t, primary.ReferenceID, 0)
	expect.EQ(t, primary.Orientation, align.Forward)
	expect.EQ(t, primary.StartInReference, 4)
}

func TestPipelineCompletenessWithInjectedErrors(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	referenceSeq := randomSequence(rng, 300)
	references := makeReferences(string(referenceSeq))

	for trial := 0; trial < 5; trial++ {
		start := 20 + trial*40
		querySeq := append([]byte(nil), referenceSeq[start:start+40]...)

		// One substitution, one deletion, one insertion: at most 3 edits.
		querySeq[7] = substituted(querySeq[7])
		querySeq = append(querySeq[:20], querySeq[21:]...)
		querySeq = append(querySeq[:30], append([]byte{'A'}, querySeq[30:]...)...)

		qa, _ := runPipeline(t, references, string(querySeq), 3, 1, pipelineOpts{})
		best, ok := qa.BestNumErrors()
		expect.True(t, ok)
		expect.LE(t, best, 3)
	}
}

func TestPipelineModesAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	referenceSeq := randomSequence(rng, 150)
	references := makeReferences(string(referenceSeq))

	querySeq := append([]byte(nil), referenceSeq[40:80]...)
	querySeq[10] = substituted(querySeq[10])

	baseline, _ := runPipeline(t, references, string(querySeq), 2, 1, pipelineOpts{})
	baselineSet := alignmentSet(baseline, 1)
	expect.True(t, len(baselineSet) > 0)

	for _, opts := range []pipelineOpts{
		{intervalOptimization: true},
		{directFull: true},
		{directFull: true, intervalOptimization: true},
		{bottomUp: true},
		{bottomUp: true, intervalOptimization: true},
	} {
		qa, _ := runPipeline(t, references, string(querySeq), 2, 1, opts)
		expect.EQ(t, alignmentSet(qa, 1), baselineSet)
	}
}

func TestComputeReferenceSpan(t *testing.T) {
	node := Node{ParentID: nullID, QueryIndexFrom: 0, QueryIndexTo: 12, NumErrors: 2}
	anchor := search.Anchor{Position: 18, NumErrors: 0}

	span := computeReferenceSpan(anchor, node, 8, 30, 0.02)
	expect.EQ(t, span, spanConfig{Offset: 7, Length: 19, AppliedExtraPerSide: 1})

	// The window is clamped at the reference start.
	span = computeReferenceSpan(search.Anchor{Position: 1}, node, 8, 30, 0.02)
	expect.EQ(t, span.Offset, 0)
	expect.EQ(t, span.Length, 19)
}
