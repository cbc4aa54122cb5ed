// Floxer-pex-dot renders the PEX tree for a given query length and error
// configuration in graphviz DOT format, for inspection of the seeding
// behavior:
//
//	floxer-pex-dot -length 1000 -errors 12 -seed-errors 2 | dot -Tsvg > tree.svg
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/feldroop/floxer/pex"
)

func main() {
	length := flag.Int("length", 100, "Total query length of the tree.")
	numErrors := flag.Int("errors", 4, "Number of errors allowed in the whole query.")
	seedErrors := flag.Int("seed-errors", 2, "Number of errors allowed in the PEX tree leaves.")
	bottomUp := flag.Bool("bottom-up-pex-tree", false, "Build the PEX tree using the bottom up strategy.")
	flag.Parse()

	if *length <= *numErrors || *numErrors < *seedErrors {
		fmt.Fprintln(os.Stderr, "the configuration must satisfy length > errors >= seed-errors")
		os.Exit(1)
	}

	strategy := pex.Recursive
	if *bottomUp {
		strategy = pex.BottomUp
	}
	tree := pex.New(pex.Config{
		TotalQueryLength: *length,
		QueryNumErrors:   *numErrors,
		LeafMaxNumErrors: *seedErrors,
		Strategy:         strategy,
	})
	fmt.Print(tree.DotString())
}
