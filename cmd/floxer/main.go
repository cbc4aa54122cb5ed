// Floxer is an exact long-read aligner: for every query it reports all
// locally optimal semi-global alignments whose edit distance stays within a
// user-supplied error budget, plus one primary alignment.
//
// The pipeline per query is: PEX-tree decomposition into seeds, approximate
// FM-index search of the seeds, hierarchical verification of the anchors
// with banded edit-distance alignment, and collection of the locally
// optimal alignments.  Forward and reverse-complement orientations run
// independently into the same collection.
//
// Example:
//
//	floxer -reference hg38.fasta -queries reads.fastq -error-probability 0.07 -output mapped.bam
package main

import (
	"context"
	"flag"
	"io"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"

	"github.com/feldroop/floxer/align"
	"github.com/feldroop/floxer/encoding/fastq"
	"github.com/feldroop/floxer/fmindex"
	"github.com/feldroop/floxer/input"
	"github.com/feldroop/floxer/output"
	"github.com/feldroop/floxer/pex"
	"github.com/feldroop/floxer/search"
	"github.com/feldroop/floxer/searchscheme"
	"github.com/feldroop/floxer/stats"
)

type floxerFlags struct {
	referencePath string
	queriesPath   string
	outputPath    string
	indexPath     string

	queryNumErrors        int
	queryErrorProbability float64
	seedNumErrors         int
	maxNumRawAnchors      int

	extraVerificationRatio float64
	overlapRateContained   float64
	bottomUpPexTree        bool
	intervalOptimization   bool
	directFullVerification bool

	numThreads     int
	timeoutSeconds int
	printStats     bool
}

func parseFlags() floxerFlags {
	var flags floxerFlags
	flag.StringVar(&flags.referencePath, "reference", "", "The reference sequences in which floxer will search the queries, i.e. the haystack. FASTA, plain or gzip.")
	flag.StringVar(&flags.queriesPath, "queries", "", "The queries which floxer will search in the reference, i.e. the needles. FASTQ, plain or gzip.")
	flag.StringVar(&flags.outputPath, "output", "", "The file where the alignment results will be stored (.sam or .bam).")
	flag.StringVar(&flags.indexPath, "index", "", "The file where the constructed FM-index is stored for later use. If the file already exists, the index is read from it instead of newly constructed.")
	flag.IntVar(&flags.queryNumErrors, "query-errors", -1, "The number of errors allowed in each query. Either this or an error probability must be given.")
	flag.Float64Var(&flags.queryErrorProbability, "error-probability", 0, "The error probability in the queries, per base. If given, it is used rather than the fixed number of errors.")
	flag.IntVar(&flags.seedNumErrors, "seed-errors", 2, "The number of errors in the leaves of the PEX tree that are used as seeds.")
	flag.IntVar(&flags.maxNumRawAnchors, "max-anchors", 1000, "Seeds with this number of (raw) anchors are excluded from further steps.")
	flag.Float64Var(&flags.extraVerificationRatio, "extra-verification-ratio", 0.02, "Fraction of the verification window size that is added to each side of the window.")
	flag.Float64Var(&flags.overlapRateContained, "overlap-rate-contained", 1.0, "Fraction of an essential root interval that must be covered by an already verified interval to skip the verification. Values below 1.0 trade completeness for speed.")
	flag.BoolVar(&flags.bottomUpPexTree, "bottom-up-pex-tree", false, "Build PEX trees using the bottom up strategy.")
	flag.BoolVar(&flags.intervalOptimization, "interval-optimization", false, "Keep track of already verified intervals to avoid repeating alignment.")
	flag.BoolVar(&flags.directFullVerification, "direct-full-verification", false, "Verify the whole query directly for every anchor instead of climbing the PEX tree.")
	flag.IntVar(&flags.numThreads, "threads", runtime.NumCPU(), "The number of threads to use in the different steps of the program.")
	flag.IntVar(&flags.timeoutSeconds, "timeout", 0, "If given, no new alignments are started after this amount of seconds; already running alignment jobs complete. Index building and input reading do not count.")
	flag.BoolVar(&flags.printStats, "print-stats", false, "Print a number of stats about input, seeding and alignments.")
	flag.Parse()
	return flags
}

func validateFlags(flags floxerFlags) input.ErrorBudget {
	if flags.referencePath == "" || flags.queriesPath == "" || flags.outputPath == "" {
		log.Fatal("-reference, -queries and -output are required")
	}
	hasNumErrors := flags.queryNumErrors >= 0
	hasProbability := flags.queryErrorProbability > 0
	switch {
	case !hasNumErrors && !hasProbability:
		log.Fatal("one of -query-errors and -error-probability must be given")
	case hasProbability && (flags.queryErrorProbability >= 1 || math.IsNaN(flags.queryErrorProbability)):
		log.Fatalf("-error-probability must lie strictly between 0 and 1, got %f", flags.queryErrorProbability)
	case hasNumErrors && flags.queryNumErrors < flags.seedNumErrors:
		log.Fatalf("the number of errors per query (%d) must not be smaller than the number of seed errors (%d)",
			flags.queryNumErrors, flags.seedNumErrors)
	}
	if flags.numThreads < 1 {
		log.Fatalf("-threads must be positive, got %d", flags.numThreads)
	}
	return input.ErrorBudget{
		NumErrors:      flags.queryNumErrors,
		Probability:    flags.queryErrorProbability,
		UseProbability: hasProbability,
	}
}

func loadOrBuildIndex(ctx context.Context, flags floxerFlags, references input.References) *fmindex.Index {
	if flags.indexPath != "" {
		if in, err := file.Open(ctx, flags.indexPath); err == nil {
			index, err := fmindex.Read(in.Reader(ctx))
			closeErr := in.Close(ctx)
			if err != nil {
				log.Fatalf("an error occurred while trying to load the index from the file %s: %v", flags.indexPath, err)
			}
			if closeErr != nil {
				log.Fatalf("close index %s: %v", flags.indexPath, closeErr)
			}
			return index
		}
	}

	log.Printf("building index")
	buildStart := time.Now()
	sequences := make([][]byte, 0, len(references.Records))
	for _, record := range references.Records {
		sequences = append(sequences, record.RankSequence)
	}
	index := fmindex.New(sequences, fmindex.DefaultSamplingRate)
	log.Printf("building index took %s", output.FormatElapsed(time.Since(buildStart)))

	if flags.indexPath != "" {
		saveIndex(ctx, index, flags.indexPath)
	}
	return index
}

// saveIndex downgrades failures to warnings; alignment proceeds without a
// persisted index.
func saveIndex(ctx context.Context, index *fmindex.Index, path string) {
	log.Printf("saving index to %s", path)
	out, err := file.Create(ctx, path)
	if err != nil {
		log.Error.Printf("an error occurred while trying to write the index to the file %s: %v. Continuing without saving the index.", path, err)
		return
	}
	writeErr := errors.Once{}
	writeErr.Set(index.WriteTo(out.Writer(ctx)))
	writeErr.Set(out.Close(ctx))
	if err := writeErr.Err(); err != nil {
		log.Error.Printf("an error occurred while trying to write the index to the file %s: %v. Continuing without saving the index.", path, err)
	}
}

type alignRes struct {
	query      *input.QueryRecord
	alignments *align.QueryAlignments

	// workerStats is sent as the very last record of each worker, with
	// query set to nil.
	workerStats *stats.Stats
}

func processQueries(
	reqCh chan *input.QueryRecord,
	resCh chan alignRes,
	references input.References,
	index *fmindex.Index,
	budget input.ErrorBudget,
	flags floxerFlags,
	deadline time.Time,
	stop *atomic.Bool,
	firstErr *errors.Once,
) {
	workerStats := stats.New()
	treeCache := pex.NewCache()
	schemeCache := searchscheme.NewCache()
	aligner := align.NewAligner()

	searcher := &search.Searcher{
		Index:         index,
		NumReferences: len(references.Records),
		Schemes:       schemeCache,
		MaxRawAnchors: flags.maxNumRawAnchors,
	}
	verificationKind := pex.Hierarchical
	if flags.directFullVerification {
		verificationKind = pex.DirectFull
	}
	alignmentConfig := pex.AlignmentConfig{
		Searcher:                searcher,
		Aligner:                 aligner,
		UseIntervalOptimization: flags.intervalOptimization,
		OverlapRateContained:    flags.overlapRateContained,
		ExtraVerificationRatio:  flags.extraVerificationRatio,
		Kind:                    verificationKind,
	}

	for query := range reqCh {
		if stop.Load() {
			continue
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			stop.Store(true)
			continue
		}
		alignments, err := alignOneQuery(query, references, budget, flags, alignmentConfig, treeCache, workerStats)
		if err != nil {
			firstErr.Set(err)
			stop.Store(true)
			continue
		}
		resCh <- alignRes{query: query, alignments: alignments}
	}
	resCh <- alignRes{workerStats: workerStats}
}

// alignOneQuery runs the core pipeline; panics out of the engine are turned
// into errors that stop the run.
func alignOneQuery(
	query *input.QueryRecord,
	references input.References,
	budget input.ErrorBudget,
	flags floxerFlags,
	alignmentConfig pex.AlignmentConfig,
	treeCache *pex.Cache,
	workerStats *stats.Stats,
) (alignments *align.QueryAlignments, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.E("internal error while aligning query", query.ID, r)
		}
	}()

	queryLength := len(query.RankSequence)
	workerStats.QueryLengths.Add(queryLength)

	// Error configurations under which the alignment algorithm makes no
	// sense; such queries are flagged as unmapped without a search.
	queryNumErrors := budget.ForQueryLength(queryLength)
	if queryLength <= queryNumErrors || queryNumErrors < flags.seedNumErrors {
		log.Debug.Printf("skipping query %s due to bad num_errors configuration", query.ID)
		return nil, nil
	}

	log.Debug.Printf("aligning query: %s", query.ID)
	strategy := pex.Recursive
	if flags.bottomUpPexTree {
		strategy = pex.BottomUp
	}
	tree := treeCache.Get(pex.Config{
		TotalQueryLength: queryLength,
		QueryNumErrors:   queryNumErrors,
		LeafMaxNumErrors: flags.seedNumErrors,
		Strategy:         strategy,
	})
	alignments = tree.AlignForwardAndReverseComplement(references.Records, query, alignmentConfig, workerStats)
	log.Debug.Printf("finished aligning query: %s", query.ID)
	return alignments, nil
}

func main() {
	flags := parseFlags()
	cleanup := grail.Init()
	defer cleanup()
	ctx := vcontext.Background()

	budget := validateFlags(flags)

	references, err := input.ReadReferences(ctx, flags.referencePath)
	if err != nil {
		log.Fatalf("an error occurred while trying to read the reference from the file %s: %v", flags.referencePath, err)
	}
	log.Printf("total reference size: %s", output.FormatLargeNumber(references.TotalSequenceLength))

	index := loadOrBuildIndex(ctx, flags, references)

	out, err := file.Create(ctx, flags.outputPath)
	if err != nil {
		log.Fatalf("create output %s: %v", flags.outputPath, err)
	}
	writer, err := output.NewAlignmentWriter(out.Writer(ctx), references.Records, output.IsBAMPath(flags.outputPath))
	if err != nil {
		log.Fatalf("create alignment output: %v", err)
	}

	finalStats, timedOut := runAlignment(ctx, flags, budget, references, index, writer)

	closeErr := errors.Once{}
	closeErr.Set(writer.Close())
	closeErr.Set(out.Close(ctx))
	if err := closeErr.Err(); err != nil {
		log.Fatalf("close output %s: %v", flags.outputPath, err)
	}

	if timedOut {
		log.Printf("timed out; aligned %d queries", finalStats.NumQueries())
	}
	if flags.printStats {
		for _, line := range finalStats.Format() {
			log.Printf("%s", line)
		}
	}
	log.Printf("all done")
}

func runAlignment(
	ctx context.Context,
	flags floxerFlags,
	budget input.ErrorBudget,
	references input.References,
	index *fmindex.Index,
	writer *output.AlignmentWriter,
) (*stats.Stats, bool) {
	var deadline time.Time
	if flags.timeoutSeconds > 0 {
		deadline = time.Now().Add(time.Duration(flags.timeoutSeconds) * time.Second)
	}
	var stop atomic.Bool
	firstErr := errors.Once{}

	reqCh := make(chan *input.QueryRecord, 1024)
	resCh := make(chan alignRes, 1024)

	workers := sync.WaitGroup{}
	for i := 0; i < flags.numThreads; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			processQueries(reqCh, resCh, references, index, budget, flags, deadline, &stop, &firstErr)
		}()
	}

	collector := sync.WaitGroup{}
	collector.Add(1)
	finalStats := stats.New()
	go func() {
		defer collector.Done()
		for res := range resCh {
			if res.workerStats != nil {
				finalStats.Merge(res.workerStats)
				continue
			}
			if err := writer.WriteQuery(res.query, res.alignments); err != nil {
				firstErr.Set(err)
				stop.Store(true)
			}
		}
	}()

	aligningStart := time.Now()
	readQueries(ctx, flags, reqCh, &stop, &firstErr)
	close(reqCh)
	workers.Wait()
	close(resCh)
	collector.Wait()

	if err := firstErr.Err(); err != nil {
		log.Fatalf("an error occurred while aligning reads or writing output to the file %s. "+
			"The output file is likely incomplete and invalid: %v", flags.outputPath, err)
	}
	log.Printf("finished aligning in %s", output.FormatElapsed(time.Since(aligningStart)))
	return finalStats, stop.Load()
}

func readQueries(ctx context.Context, flags floxerFlags, reqCh chan *input.QueryRecord, stop *atomic.Bool, firstErr *errors.Once) {
	in, err := file.Open(ctx, flags.queriesPath)
	if err != nil {
		log.Fatalf("open queries %s: %v", flags.queriesPath, err)
	}
	var r io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(r, in.Name()); u != nil {
		r = u
	}
	sc := fastq.NewScanner(r)
	var record fastq.Record
	numRead := 0
	for sc.Scan(&record) {
		if stop.Load() {
			break
		}
		query := input.NewQueryRecord(record.ID, record.Seq, record.Qual, numRead)
		numRead++
		if query == nil {
			continue
		}
		reqCh <- query
	}
	closeErr := errors.Once{}
	closeErr.Set(sc.Err())
	closeErr.Set(in.Close(ctx))
	if err := closeErr.Err(); err != nil {
		firstErr.Set(err)
		stop.Store(true)
	}
	log.Printf("processed %d queries from %s", numRead, flags.queriesPath)
}
