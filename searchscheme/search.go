package searchscheme

import (
	"github.com/feldroop/floxer/dna"
	"github.com/feldroop/floxer/fmindex"
)

// ReportFunc receives every cursor of approximate matches together with the
// number of edit errors spent on it.  A cursor may be reported more than
// once on different error paths; downstream anchor deduplication collapses
// the duplicates.
type ReportFunc func(cursor fmindex.Cursor, numErrors int)

// stepPlan is a search lowered onto single pattern positions: for every
// step the position to match, the extension direction, the running upper
// bound, and the lower bound that must be met when the step completes a
// part (-1 otherwise).
type stepPlan struct {
	positions   []int
	extendRight []bool
	upper       []int
	lowerAtDone []int
}

func buildPlan(scheme *Scheme, search Search) stepPlan {
	var plan stepPlan
	coveredLo, coveredHi := search.Pi[0], search.Pi[0]

	appendPart := func(piIndex, part int, right bool) {
		start, end := scheme.PartStarts[part], scheme.PartStarts[part+1]
		for i := 0; i < end-start; i++ {
			pos := start + i
			if !right {
				pos = end - 1 - i
			}
			plan.positions = append(plan.positions, pos)
			plan.extendRight = append(plan.extendRight, right)
			plan.upper = append(plan.upper, search.Upper[piIndex])
			lower := -1
			if i == end-start-1 {
				lower = search.Lower[piIndex]
			}
			plan.lowerAtDone = append(plan.lowerAtDone, lower)
		}
	}

	firstRight := len(search.Pi) > 1 && search.Pi[1] > search.Pi[0]
	appendPart(0, search.Pi[0], firstRight)
	for j := 1; j < len(search.Pi); j++ {
		part := search.Pi[j]
		if part > coveredHi {
			appendPart(j, part, true)
			coveredHi = part
		} else {
			if part >= coveredLo {
				panic("search scheme parts must extend the covered range")
			}
			appendPart(j, part, false)
			coveredLo = part
		}
	}
	return plan
}

// SearchPattern runs every search of the scheme against the index and
// reports all cursors matching the pattern with at most scheme.NumErrors
// edit errors.  The enumeration is complete: every occurrence within the
// budget is reported through at least one search.
func SearchPattern(ix *fmindex.Index, pattern []byte, scheme *Scheme, report ReportFunc) {
	for _, search := range scheme.Searches {
		plan := buildPlan(scheme, search)
		runPlan(ix, pattern, plan, report)
	}
}

func runPlan(ix *fmindex.Index, pattern []byte, plan stepPlan, report ReportFunc) {
	numSteps := len(plan.positions)

	extend := func(cur fmindex.Cursor, sym byte, t int) fmindex.Cursor {
		if plan.extendRight[t] {
			return cur.ExtendRight(sym)
		}
		return cur.ExtendLeft(sym)
	}

	var rec func(cur fmindex.Cursor, t, errs int, afterDelete bool)
	rec = func(cur fmindex.Cursor, t, errs int, afterDelete bool) {
		if t == numSteps {
			report(cur, errs)
			return
		}
		patternSym := pattern[plan.positions[t]]
		upper := plan.upper[t]

		// Insertion into the matched reference text: consume a text symbol
		// without advancing in the pattern.  Deletion-then-insertion paths
		// are canonicalized away as substitutions.
		if errs < upper && !afterDelete && cur.MatchedLength() > 0 {
			for sym := byte(dna.RankA); sym <= dna.RankN; sym++ {
				next := extend(cur, sym, t)
				if !next.Empty() {
					rec(next, t, errs+1, false)
				}
			}
		}

		// Match or substitution.
		for sym := byte(dna.RankA); sym <= dna.RankN; sym++ {
			next := extend(cur, sym, t)
			if next.Empty() {
				continue
			}
			nextErrs := errs
			if sym != patternSym {
				nextErrs++
			}
			if nextErrs > upper {
				continue
			}
			if lower := plan.lowerAtDone[t]; lower >= 0 && nextErrs < lower {
				continue
			}
			rec(next, t+1, nextErrs, false)
		}

		// Deletion of the pattern symbol: no text consumed.
		if nextErrs := errs + 1; nextErrs <= upper {
			if lower := plan.lowerAtDone[t]; lower < 0 || nextErrs >= lower {
				rec(cur, t+1, nextErrs, true)
			}
		}
	}

	rec(ix.Root(), 0, 0, false)
}
