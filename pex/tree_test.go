package pex

import (
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/grailbio/testutil/expect"

	"github.com/feldroop/floxer/search"
)

func rankedQuery(n int) []byte {
	query := make([]byte, n)
	for i := range query {
		query[i] = byte(i%4 + 1)
	}
	return query
}

func TestGenerateSeedsFromRecursive(t *testing.T) {
	query := rankedQuery(12)

	tree := New(Config{TotalQueryLength: 12, QueryNumErrors: 3, LeafMaxNumErrors: 0, Strategy: Recursive})
	expect.EQ(t, tree.GenerateSeeds(query), []search.Seed{
		{Sequence: query[0:3], NumErrors: 0, QueryOffset: 0, LeafIndex: 0},
		{Sequence: query[3:6], NumErrors: 0, QueryOffset: 3, LeafIndex: 1},
		{Sequence: query[6:9], NumErrors: 0, QueryOffset: 6, LeafIndex: 2},
		{Sequence: query[9:12], NumErrors: 0, QueryOffset: 9, LeafIndex: 3},
	})

	adjusted1 := New(Config{TotalQueryLength: 12, QueryNumErrors: 3, LeafMaxNumErrors: 1, Strategy: Recursive})
	expectedAdjusted := []search.Seed{
		{Sequence: query[0:6], NumErrors: 1, QueryOffset: 0, LeafIndex: 0},
		{Sequence: query[6:12], NumErrors: 1, QueryOffset: 6, LeafIndex: 1},
	}
	expect.EQ(t, adjusted1.GenerateSeeds(query), expectedAdjusted)

	// A larger leaf error cap does not change the seeds here, because the
	// recursion already stops at one error per child.
	adjusted2 := New(Config{TotalQueryLength: 12, QueryNumErrors: 3, LeafMaxNumErrors: 2, Strategy: Recursive})
	expect.EQ(t, adjusted2.GenerateSeeds(query), expectedAdjusted)
}

func TestGenerateSeedsFromBottomUp(t *testing.T) {
	query := rankedQuery(30)

	tree := New(Config{TotalQueryLength: 30, QueryNumErrors: 14, LeafMaxNumErrors: 2, Strategy: BottomUp})
	expect.EQ(t, tree.GenerateSeeds(query), []search.Seed{
		{Sequence: query[0:6], NumErrors: 2, QueryOffset: 0, LeafIndex: 0},
		{Sequence: query[6:12], NumErrors: 2, QueryOffset: 6, LeafIndex: 1},
		{Sequence: query[12:18], NumErrors: 2, QueryOffset: 12, LeafIndex: 2},
		{Sequence: query[18:24], NumErrors: 2, QueryOffset: 18, LeafIndex: 3},
		{Sequence: query[24:30], NumErrors: 2, QueryOffset: 24, LeafIndex: 4},
	})
}

func TestBottomUpUnderErrorLeaves(t *testing.T) {
	// query errors 5, leaf cap 2: ceil(6/3) = 2 leaves, (6 mod 3) = 0, so
	// both leaves get the full cap and the root merges to 2+2+1 = 5.
	tree := New(Config{TotalQueryLength: 20, QueryNumErrors: 5, LeafMaxNumErrors: 2, Strategy: BottomUp})
	expect.EQ(t, tree.NumLeaves(), 2)
	expect.EQ(t, tree.Root().NumErrors, 5)

	// query errors 3, leaf cap 2: ceil(4/3) = 2 leaves with remainder 1,
	// so 3-1 = 2 leaves give up one error each and the root merges to
	// 1+1+1 = 3.
	tree = New(Config{TotalQueryLength: 20, QueryNumErrors: 3, LeafMaxNumErrors: 2, Strategy: BottomUp})
	expect.EQ(t, tree.NumLeaves(), 2)
	expect.EQ(t, tree.Leaf(0).NumErrors, 1)
	expect.EQ(t, tree.Leaf(1).NumErrors, 1)
	expect.EQ(t, tree.Root().NumErrors, 3)
}

func TestSingleRootTree(t *testing.T) {
	for _, strategy := range []BuildStrategy{Recursive, BottomUp} {
		tree := New(Config{TotalQueryLength: 50, QueryNumErrors: 2, LeafMaxNumErrors: 2, Strategy: strategy})
		expect.EQ(t, tree.NumLeaves(), 1)
		root := tree.Root()
		expect.True(t, root.IsRoot())
		expect.EQ(t, root.QueryIndexFrom, 0)
		expect.EQ(t, root.QueryIndexTo, 50)
		expect.EQ(t, root.NumErrors, 2)
	}
}

// checkTreeInvariants verifies the PEX lemma bookkeeping: the root carries
// the configured budget over the whole query, every leaf respects the leaf
// cap, and for every inner node the children partition its range and their
// budgets sum (plus arity minus one) to the parent's budget.
func checkTreeInvariants(t *testing.T, tree *Tree, config Config) {
	t.Helper()

	root := tree.Root()
	expect.EQ(t, root.QueryIndexFrom, 0)
	expect.EQ(t, root.QueryIndexTo, config.TotalQueryLength)
	expect.EQ(t, root.NumErrors, config.QueryNumErrors)

	childrenByParent := make(map[int][]Node)
	collect := func(n Node) {
		if !n.IsRoot() {
			childrenByParent[n.ParentID] = append(childrenByParent[n.ParentID], n)
		}
	}
	for i := 0; i < tree.NumLeaves(); i++ {
		leaf := tree.Leaf(i)
		expect.LE(t, leaf.NumErrors, config.LeafMaxNumErrors)
		collect(leaf)
	}
	for _, inner := range tree.innerNodes {
		collect(inner)
	}

	for parentID, children := range childrenByParent {
		parent := tree.innerNodes[parentID]
		sort.Slice(children, func(i, j int) bool {
			return children[i].QueryIndexFrom < children[j].QueryIndexFrom
		})
		expect.EQ(t, children[0].QueryIndexFrom, parent.QueryIndexFrom)
		expect.EQ(t, children[len(children)-1].QueryIndexTo, parent.QueryIndexTo)
		errorsSum := 0
		for i, child := range children {
			if i > 0 {
				expect.EQ(t, child.QueryIndexFrom, children[i-1].QueryIndexTo)
			}
			errorsSum += child.NumErrors
		}
		expect.EQ(t, errorsSum+len(children)-1, parent.NumErrors)
	}
}

func TestTreeInvariants(t *testing.T) {
	configs := []Config{
		{TotalQueryLength: 12, QueryNumErrors: 3, LeafMaxNumErrors: 0, Strategy: Recursive},
		{TotalQueryLength: 100, QueryNumErrors: 7, LeafMaxNumErrors: 1, Strategy: Recursive},
		{TotalQueryLength: 1000, QueryNumErrors: 25, LeafMaxNumErrors: 2, Strategy: Recursive},
		{TotalQueryLength: 997, QueryNumErrors: 13, LeafMaxNumErrors: 3, Strategy: Recursive},
		{TotalQueryLength: 30, QueryNumErrors: 14, LeafMaxNumErrors: 2, Strategy: BottomUp},
		{TotalQueryLength: 100, QueryNumErrors: 7, LeafMaxNumErrors: 1, Strategy: BottomUp},
		{TotalQueryLength: 1000, QueryNumErrors: 25, LeafMaxNumErrors: 2, Strategy: BottomUp},
		{TotalQueryLength: 997, QueryNumErrors: 13, LeafMaxNumErrors: 0, Strategy: BottomUp},
	}
	for _, config := range configs {
		checkTreeInvariants(t, New(config), config)
	}
}

func TestTreeBuildDeterminism(t *testing.T) {
	config := Config{TotalQueryLength: 512, QueryNumErrors: 9, LeafMaxNumErrors: 2, Strategy: BottomUp}
	expect.True(t, reflect.DeepEqual(New(config), New(config)))

	cache := NewCache()
	first := cache.Get(config)
	expect.True(t, first == cache.Get(config))
}

func TestDotString(t *testing.T) {
	tree := New(Config{TotalQueryLength: 12, QueryNumErrors: 3, LeafMaxNumErrors: 1, Strategy: Recursive})
	dot := tree.DotString()
	expect.True(t, strings.HasPrefix(dot, "graph {"))
	expect.True(t, strings.Contains(dot, "(2 leaves)"))
	expect.True(t, strings.Contains(dot, "range: [0,12)"))
}

func TestSeedCountEqualsLeafCount(t *testing.T) {
	config := Config{TotalQueryLength: 333, QueryNumErrors: 11, LeafMaxNumErrors: 1, Strategy: Recursive}
	tree := New(config)
	seeds := tree.GenerateSeeds(rankedQuery(333))
	expect.EQ(t, len(seeds), tree.NumLeaves())
	for i, seed := range seeds {
		leaf := tree.Leaf(i)
		expect.EQ(t, seed.QueryOffset, leaf.QueryIndexFrom)
		expect.EQ(t, len(seed.Sequence), leaf.LengthOfQuerySpan())
	}
}
