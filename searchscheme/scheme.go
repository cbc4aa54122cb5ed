// Package searchscheme implements approximate string search over the
// bidirectional FM-index, driven by search schemes.
//
// A search scheme partitions the pattern into parts and prescribes, for a
// set of searches, the order in which parts are matched and the cumulative
// lower and upper error bounds at each step.  The schemes for up to two
// errors are the published optimal ones; higher error counts fall back to a
// pigeonhole-style scheme.
package searchscheme

// Search prescribes one pass over the pattern parts: Pi is the processing
// order (part indices), Lower and Upper are cumulative error bounds applied
// per processed part.
type Search struct {
	Pi    []int
	Lower []int
	Upper []int
}

// Scheme is a set of searches expanded for a concrete pattern length.
type Scheme struct {
	PatternLength int
	NumErrors     int
	// PartStarts has one entry per part plus a trailing PatternLength.
	PartStarts []int
	Searches   []Search
}

// NumParts returns the number of pattern parts.
func (s *Scheme) NumParts() int { return len(s.PartStarts) - 1 }

// optimalSearches returns the search set for up to maxErrors errors over
// the normalized part count.
func optimalSearches(maxErrors int) []Search {
	switch maxErrors {
	case 0:
		return []Search{
			{Pi: []int{0}, Lower: []int{0}, Upper: []int{0}},
		}
	case 1:
		return []Search{
			{Pi: []int{0, 1}, Lower: []int{0, 0}, Upper: []int{0, 1}},
			{Pi: []int{1, 0}, Lower: []int{0, 1}, Upper: []int{0, 1}},
		}
	case 2:
		return []Search{
			{Pi: []int{0, 1, 2, 3}, Lower: []int{0, 0, 0, 0}, Upper: []int{0, 0, 2, 2}},
			{Pi: []int{2, 1, 0, 3}, Lower: []int{0, 0, 0, 0}, Upper: []int{0, 1, 1, 2}},
			{Pi: []int{3, 2, 1, 0}, Lower: []int{0, 0, 0, 2}, Upper: []int{0, 1, 2, 2}},
		}
	default:
		return pigeonholeSearches(maxErrors)
	}
}

// pigeonholeSearches builds a complete scheme for any error count: one
// search per part, starting error-free in that part and fanning outwards.
func pigeonholeSearches(maxErrors int) []Search {
	numParts := maxErrors + 1
	searches := make([]Search, 0, numParts)
	for start := 0; start < numParts; start++ {
		pi := make([]int, 0, numParts)
		for p := start; p < numParts; p++ {
			pi = append(pi, p)
		}
		for p := start - 1; p >= 0; p-- {
			pi = append(pi, p)
		}
		lower := make([]int, numParts)
		upper := make([]int, numParts)
		for i := 1; i < numParts; i++ {
			upper[i] = maxErrors
		}
		searches = append(searches, Search{Pi: pi, Lower: lower, Upper: upper})
	}
	return searches
}

// Generate builds the scheme for the given pattern length and error budget.
// Patterns shorter than the normalized part count degrade to a single-part
// backtracking search.
func Generate(patternLength, maxErrors int) *Scheme {
	searches := optimalSearches(maxErrors)
	numParts := len(searches[0].Pi)
	if patternLength < numParts {
		searches = []Search{
			{Pi: []int{0}, Lower: []int{0}, Upper: []int{maxErrors}},
		}
		numParts = 1
	}
	scheme := &Scheme{
		PatternLength: patternLength,
		NumErrors:     maxErrors,
		PartStarts:    expandPartStarts(patternLength, numParts),
		Searches:      searches,
	}
	return scheme
}

// expandPartStarts distributes the pattern length over the parts as equally
// as possible; earlier parts receive the remainder.
func expandPartStarts(patternLength, numParts int) []int {
	base := patternLength / numParts
	remainder := patternLength % numParts
	starts := make([]int, numParts+1)
	for p := 0; p < numParts; p++ {
		length := base
		if p < remainder {
			length++
		}
		starts[p+1] = starts[p] + length
	}
	return starts
}

// Cache stores generated schemes keyed by (pattern length, errors).  It is
// owned by a single worker and therefore unsynchronized; the stored schemes
// are immutable.
type Cache struct {
	schemes map[cacheKey]*Scheme
}

type cacheKey struct {
	patternLength int
	numErrors     int
}

// NewCache returns an empty scheme cache.
func NewCache() *Cache {
	return &Cache{schemes: make(map[cacheKey]*Scheme)}
}

// Get returns the scheme for the key, generating and caching it on a miss.
func (c *Cache) Get(patternLength, maxErrors int) *Scheme {
	key := cacheKey{patternLength, maxErrors}
	if scheme, ok := c.schemes[key]; ok {
		return scheme
	}
	scheme := Generate(patternLength, maxErrors)
	c.schemes[key] = scheme
	return scheme
}
