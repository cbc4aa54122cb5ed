// Package pex implements the PEX tree: a hierarchical decomposition of a
// query into sub-ranges with per-node error budgets.  Any alignment of the
// whole query with at most the root budget of errors induces, at every tree
// level, a sub-alignment with at most that node's budget; the leaves are
// the seeds searched in the FM-index.
package pex

import (
	"github.com/feldroop/floxer/search"
	"github.com/feldroop/floxer/util"
)

// BuildStrategy selects how the tree is constructed.
type BuildStrategy int

const (
	// Recursive is the classical PEX construction: split top-down until
	// every node's budget drops to the leaf cap.
	Recursive BuildStrategy = iota
	// BottomUp first lays out evenly sized leaves and then merges adjacent
	// nodes pairwise (in triples for a trailing odd remainder) up to the
	// root.
	BottomUp
)

// Config determines a tree uniquely; it doubles as the cache key.
type Config struct {
	TotalQueryLength int
	QueryNumErrors   int
	LeafMaxNumErrors int
	Strategy         BuildStrategy
}

const nullID = -1

// Node is one PEX tree node with a half-open query range and an error
// budget.  Nodes reference their parent by index into the tree's inner
// node arena; the root carries the null sentinel.
type Node struct {
	ParentID       int
	QueryIndexFrom int
	QueryIndexTo   int // exclusive
	NumErrors      int
}

// LengthOfQuerySpan returns the number of query symbols under the node.
func (n Node) LengthOfQuerySpan() int { return n.QueryIndexTo - n.QueryIndexFrom }

// IsRoot reports whether the node is the tree root.
func (n Node) IsRoot() bool { return n.ParentID == nullID }

// Tree is an immutable PEX tree, safe to share read-only.
type Tree struct {
	innerNodes []Node
	leaves     []Node

	noErrorSeedLength int
	leafMaxNumErrors  int
}

// New builds the tree for the given configuration.  Construction is
// deterministic: equal configurations produce equal trees.
func New(config Config) *Tree {
	t := &Tree{
		noErrorSeedLength: config.TotalQueryLength / (config.QueryNumErrors + 1),
		leafMaxNumErrors:  config.LeafMaxNumErrors,
	}
	switch config.Strategy {
	case Recursive:
		t.addNodesRecursive(0, config.TotalQueryLength, config.QueryNumErrors, nullID)
	case BottomUp:
		t.addNodesBottomUp(config)
	}
	return t
}

// NumLeaves returns the number of leaves, which equals the number of seeds.
func (t *Tree) NumLeaves() int { return len(t.leaves) }

// Root returns the root node.  A tree whose root budget does not exceed the
// leaf cap consists of a single leaf.
func (t *Tree) Root() Node {
	if len(t.innerNodes) == 0 {
		return t.leaves[0]
	}
	return t.innerNodes[0]
}

// Leaf returns the leaf with the given index, in query order.
func (t *Tree) Leaf(i int) Node { return t.leaves[i] }

// Parent returns the parent of child, which must not be the root.
func (t *Tree) Parent(child Node) Node {
	return t.innerNodes[child.ParentID]
}

func (t *Tree) addNodesRecursive(queryIndexFrom, queryIndexTo, numErrors, parentID int) {
	node := Node{
		ParentID:       parentID,
		QueryIndexFrom: queryIndexFrom,
		QueryIndexTo:   queryIndexTo,
		NumErrors:      numErrors,
	}
	if numErrors <= t.leafMaxNumErrors {
		t.leaves = append(t.leaves, node)
		return
	}
	id := len(t.innerNodes)
	t.innerNodes = append(t.innerNodes, node)

	numLeavesLeft := util.CeilDiv(numErrors+1, 2)

	// The total query length is generally not divisible by the number of
	// leaves, so the whole remainder accumulates in the rightmost leaf.
	querySplitIndex := queryIndexFrom + numLeavesLeft*t.noErrorSeedLength

	numErrorsLeft := numLeavesLeft * numErrors / (numErrors + 1)
	numErrorsRight := (numErrors + 1 - numLeavesLeft) * numErrors / (numErrors + 1)

	t.addNodesRecursive(queryIndexFrom, querySplitIndex, numErrorsLeft, id)
	t.addNodesRecursive(querySplitIndex, queryIndexTo, numErrorsRight, id)
}

func (t *Tree) addNodesBottomUp(config Config) {
	baseLeafWeight := config.LeafMaxNumErrors + 1
	numDesiredLeaves := util.CeilDiv(config.QueryNumErrors+1, baseLeafWeight)

	if numDesiredLeaves == 1 {
		t.leaves = append(t.leaves, Node{
			ParentID:       nullID,
			QueryIndexFrom: 0,
			QueryIndexTo:   config.TotalQueryLength,
			NumErrors:      config.QueryNumErrors,
		})
		return
	}

	// Rounding up the leaf count would allow too many errors if every leaf
	// received the full cap, so the surplus leaves get one error less.
	numLeavesWithLessErrors := 0
	if remainder := (config.QueryNumErrors + 1) % baseLeafWeight; remainder > 0 {
		numLeavesWithLessErrors = baseLeafWeight - remainder
	}

	t.createLeaves(config, numDesiredLeaves, numLeavesWithLessErrors)

	// The arena must not reallocate while the current level holds pointers
	// into it.  A tree with n leaves has at most n inner nodes including
	// the root, whose slot is secured at index 0.
	t.innerNodes = make([]Node, 1, numDesiredLeaves+1)

	currentLevel := make([]*Node, len(t.leaves))
	for i := range t.leaves {
		currentLevel[i] = &t.leaves[i]
	}

	for len(currentLevel) > 3 {
		var nextLevel []*Node
		for i := 0; i < len(currentLevel); i += 2 {
			numRemaining := len(currentLevel) - i
			if numRemaining == 1 {
				break
			}
			// An odd number of nodes on this level merges its last three
			// into a single ternary parent.
			numChildren := 2
			if numRemaining == 3 {
				numChildren = 3
			}
			newParentID := len(t.innerNodes)
			t.innerNodes = append(t.innerNodes, createParentNode(currentLevel[i:i+numChildren], newParentID))
			nextLevel = append(nextLevel, &t.innerNodes[newParentID])
			if numChildren == 3 {
				break
			}
		}
		currentLevel = nextLevel
	}

	t.innerNodes[0] = createParentNode(currentLevel, 0)
	t.innerNodes[0].ParentID = nullID
}

func (t *Tree) createLeaves(config Config, numDesiredLeaves, numLeavesWithLessErrors int) {
	baseSeedLength := config.TotalQueryLength / numDesiredLeaves
	seedLengthRemainder := config.TotalQueryLength % numDesiredLeaves

	t.leaves = make([]Node, 0, numDesiredLeaves)
	currentStartIndex := 0
	for i := 0; i < numDesiredLeaves; i++ {
		leafLength := baseSeedLength
		if i < seedLengthRemainder {
			leafLength++
		}
		numErrors := config.LeafMaxNumErrors
		if i < numLeavesWithLessErrors {
			numErrors--
		}
		t.leaves = append(t.leaves, Node{
			ParentID:       0, // set during the merge phase
			QueryIndexFrom: currentStartIndex,
			QueryIndexTo:   currentStartIndex + leafLength,
			NumErrors:      numErrors,
		})
		currentStartIndex += leafLength
	}
}

func createParentNode(childNodes []*Node, parentID int) Node {
	childrenErrors := 0
	for _, child := range childNodes {
		child.ParentID = parentID
		childrenErrors += child.NumErrors
	}
	return Node{
		ParentID:       0, // set when this node is merged in turn
		QueryIndexFrom: childNodes[0].QueryIndexFrom,
		QueryIndexTo:   childNodes[len(childNodes)-1].QueryIndexTo,
		NumErrors:      childrenErrors + len(childNodes) - 1,
	}
}

// GenerateSeeds extracts one seed per leaf in query order.
func (t *Tree) GenerateSeeds(query []byte) []search.Seed {
	seeds := make([]search.Seed, 0, len(t.leaves))
	for i, leaf := range t.leaves {
		seeds = append(seeds, search.Seed{
			Sequence:    query[leaf.QueryIndexFrom:leaf.QueryIndexTo],
			NumErrors:   leaf.NumErrors,
			QueryOffset: leaf.QueryIndexFrom,
			LeafIndex:   i,
		})
	}
	return seeds
}

// Cache memoizes trees by configuration.  It is owned by one worker; the
// returned trees are immutable and may outlive the cache.
type Cache struct {
	trees map[Config]*Tree
}

// NewCache returns an empty tree cache.
func NewCache() *Cache { return &Cache{trees: make(map[Config]*Tree)} }

// Get returns the tree for the configuration, building it on a miss.
func (c *Cache) Get(config Config) *Tree {
	if tree, ok := c.trees[config]; ok {
		return tree
	}
	tree := New(config)
	c.trees[config] = tree
	return tree
}
