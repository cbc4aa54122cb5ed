// Package stats accumulates per-query counters and histograms over the
// search and alignment pipeline.  Each worker owns one Stats value; the
// driver merges them after all queries are done.
package stats

import (
	"fmt"
	"math"
	"strings"
)

var (
	largeValuesLogScale    = []int{0, 1, 5, 10, 20, 100, 1000, 10000, 100000}
	smallValuesLinearScale = []int{0, 5, 10, 15, 20, 25, 30, 35, 40, 45, 50, 55, 60, 65, 70}
	smallValuesLogScale    = []int{0, 1, 2, 5, 10, 20, 50, 100, 200, 500, 1000}
)

// Histogram counts values into threshold buckets; the final bucket holds
// everything above the last threshold.
type Histogram struct {
	Name       string
	Thresholds []int
	Bins       []int

	NumValues int
	Min       int
	Max       int
	Sum       int
}

func newHistogram(name string, thresholds []int) Histogram {
	return Histogram{
		Name:       name,
		Thresholds: thresholds,
		Bins:       make([]int, len(thresholds)+1),
		Min:        math.MaxInt,
	}
}

// Add records a single value.
func (h *Histogram) Add(value int) {
	h.NumValues++
	if value < h.Min {
		h.Min = value
	}
	if value > h.Max {
		h.Max = value
	}
	h.Sum += value
	for i, threshold := range h.Thresholds {
		if value <= threshold {
			h.Bins[i]++
			return
		}
	}
	h.Bins[len(h.Bins)-1]++
}

// Merge folds other into h.  Both histograms must share thresholds.
func (h *Histogram) Merge(other *Histogram) {
	h.NumValues += other.NumValues
	if other.Min < h.Min {
		h.Min = other.Min
	}
	if other.Max > h.Max {
		h.Max = other.Max
	}
	h.Sum += other.Sum
	for i, n := range other.Bins {
		h.Bins[i] += n
	}
}

func (h *Histogram) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "histogram for %s (total: %d)\n", h.Name, h.NumValues)
	fmt.Fprintf(&b, "threshold:\t%s\tinf\n", joinInts(h.Thresholds))
	fmt.Fprintf(&b, "occurrences:\t%s", joinInts(h.Bins))
	if h.NumValues > 0 {
		fmt.Fprintf(&b, "\nmin = %d, mean = %.2f, max = %d",
			h.Min, float64(h.Sum)/float64(h.NumValues), h.Max)
	}
	return b.String()
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "\t")
}

// Stats holds every histogram and counter observed by one worker.
type Stats struct {
	CompletelyExcludedQueries int

	QueryLengths               Histogram
	SeedLengths                Histogram
	ErrorsPerSeed              Histogram
	SeedsPerQuery              Histogram
	AnchorsPerSeed             Histogram
	RawAnchorsPerExcludedSeed  Histogram
	AnchorsPerQuery            Histogram
	ExcludedRawAnchorsPerQuery Histogram
	InnerNodeSpanSizes         Histogram
	AlignedRootSpanSizes       Histogram
	AvoidedRootSpanSizes       Histogram
	AlignmentsPerQuery         Histogram
	AlignmentEditDistances     Histogram
}

// New returns an empty Stats with all histograms configured.
func New() *Stats {
	return &Stats{
		QueryLengths:               newHistogram("query lengths", largeValuesLogScale),
		SeedLengths:                newHistogram("seed lengths", smallValuesLinearScale),
		ErrorsPerSeed:              newHistogram("errors per seed", smallValuesLogScale),
		SeedsPerQuery:              newHistogram("seeds per query", largeValuesLogScale),
		AnchorsPerSeed:             newHistogram("anchors per (non-excluded) seed", largeValuesLogScale),
		RawAnchorsPerExcludedSeed:  newHistogram("(raw) anchors per excluded seed", largeValuesLogScale),
		AnchorsPerQuery:            newHistogram("anchors per query (from non-excluded seeds)", largeValuesLogScale),
		ExcludedRawAnchorsPerQuery: newHistogram("excluded (raw) anchors per query", largeValuesLogScale),
		InnerNodeSpanSizes:         newHistogram("reference span sizes of aligned inner nodes", largeValuesLogScale),
		AlignedRootSpanSizes:       newHistogram("reference span sizes of aligned root", largeValuesLogScale),
		AvoidedRootSpanSizes:       newHistogram("reference span sizes of avoided root", largeValuesLogScale),
		AlignmentsPerQuery:         newHistogram("alignments per query", largeValuesLogScale),
		AlignmentEditDistances:     newHistogram("alignments edit distance", smallValuesLogScale),
	}
}

// NumQueries returns the number of queries observed.
func (s *Stats) NumQueries() int { return s.QueryLengths.NumValues }

// Merge folds other into s; both must have been created by New.
func (s *Stats) Merge(other *Stats) {
	s.CompletelyExcludedQueries += other.CompletelyExcludedQueries
	for i, h := range s.histograms() {
		h.Merge(other.histograms()[i])
	}
}

func (s *Stats) histograms() []*Histogram {
	return []*Histogram{
		&s.QueryLengths, &s.SeedLengths, &s.ErrorsPerSeed, &s.SeedsPerQuery,
		&s.AnchorsPerSeed, &s.RawAnchorsPerExcludedSeed, &s.AnchorsPerQuery,
		&s.ExcludedRawAnchorsPerQuery, &s.InnerNodeSpanSizes,
		&s.AlignedRootSpanSizes, &s.AvoidedRootSpanSizes,
		&s.AlignmentsPerQuery, &s.AlignmentEditDistances,
	}
}

// Format renders all counters and histograms for the -print-stats dump.
func (s *Stats) Format() []string {
	out := []string{fmt.Sprintf("number of completely excluded queries: %d", s.CompletelyExcludedQueries)}
	for _, h := range s.histograms() {
		out = append(out, h.String())
	}
	return out
}
