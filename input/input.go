// Package input holds the in-memory representation of references and
// queries together with the sanitization and admissibility policies applied
// while reading them.
package input

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"

	"github.com/feldroop/floxer/dna"
	"github.com/feldroop/floxer/encoding/fasta"
	"github.com/feldroop/floxer/util"
)

// MaxQueryLength is the upper bound on admissible query lengths; longer
// records are skipped with a warning.
const MaxQueryLength = 1 << 30

// ReferenceRecord is one reference contig.  InternalID equals the record's
// index in the reference list.
type ReferenceRecord struct {
	ID           string
	InternalID   int
	RankSequence []byte
}

// References is the full reference collection.
type References struct {
	Records             []ReferenceRecord
	TotalSequenceLength int
}

// QueryRecord is one query read, with both orientations precomputed.  The
// quality string is empty when the input carried none of matching length.
type QueryRecord struct {
	ID                            string
	InternalID                    int
	RankSequence                  []byte
	ReverseComplementRankSequence []byte
	Quality                       string
}

// ErrorBudget carries the user's error configuration; exactly one of the
// two modes is active.
type ErrorBudget struct {
	NumErrors      int
	Probability    float64
	UseProbability bool
}

// ForQueryLength resolves the budget for a concrete query length.  The
// probability mode rounds up with an epsilon so that products landing
// exactly on integers are not inflated.
func (b ErrorBudget) ForQueryLength(queryLength int) int {
	if b.UseProbability {
		return util.FloatErrorAwareCeil(float64(queryLength) * b.Probability)
	}
	return b.NumErrors
}

// SanitizeID cuts the record tag at the first whitespace and replaces
// characters outside the SAM name alphabet with '_'.
func SanitizeID(tag string) string {
	if i := strings.IndexAny(tag, " \t"); i >= 0 {
		tag = tag[:i]
	}
	var b strings.Builder
	for i := 0; i < len(tag); i++ {
		c := tag[i]
		if c < '!' || c > '~' || c == '@' && i == 0 {
			b.WriteByte('_')
		} else {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// ReadReferences reads and sanitizes all reference records from a FASTA
// file (plain or gzip).  Empty records are dropped with a warning;
// duplicate sanitized ids are uniquified by numeric suffix.  An empty
// reference collection is an error.
func ReadReferences(ctx context.Context, path string) (References, error) {
	log.Printf("reading reference sequences from %s", path)

	in, err := file.Open(ctx, path)
	if err != nil {
		return References{}, err
	}
	var r io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(r, in.Name()); u != nil {
		r = u
	}

	var references References
	seenIDs := make(map[string]int)
	sc := fasta.NewScanner(r)
	for sc.Scan() {
		record := sc.Record()
		id := uniquifyID(SanitizeID(record.Name), seenIDs)

		if len(record.Seq) == 0 {
			log.Error.Printf("the record %s in the reference file has an empty sequence and will be skipped", id)
			continue
		}
		warnInvalidChars(id, record.Seq)

		internalID := len(references.Records)
		references.Records = append(references.Records, ReferenceRecord{
			ID:           id,
			InternalID:   internalID,
			RankSequence: dna.RanksFromChars(record.Seq),
		})
		references.TotalSequenceLength += len(record.Seq)
		log.Debug.Printf("read reference, id: %s, length %d", id, len(record.Seq))
	}

	closeErr := errors.Once{}
	closeErr.Set(sc.Err())
	closeErr.Set(in.Close(ctx))
	if err := closeErr.Err(); err != nil {
		return References{}, err
	}
	if len(references.Records) == 0 {
		return References{}, errors.New("the reference file is empty, which is not allowed")
	}
	return references, nil
}

// NewQueryRecord sanitizes one FASTQ record into a query.  It returns nil
// when the record must be skipped (empty or oversized sequence).  A quality
// string whose length disagrees with the sequence is dropped with a
// warning.
func NewQueryRecord(tag string, seq, qual []byte, internalID int) *QueryRecord {
	id := SanitizeID(tag)
	if len(seq) == 0 {
		log.Error.Printf("the record %s in the query file has an empty sequence and will be skipped", id)
		return nil
	}
	if len(seq) > MaxQueryLength {
		log.Error.Printf("skipping too large query: %s", id)
		return nil
	}
	warnInvalidChars(id, seq)

	quality := string(qual)
	if len(qual) > 0 && len(qual) != len(seq) {
		log.Error.Printf("the quality string of query %s does not match its sequence length and will be dropped", id)
		quality = ""
	}

	ranks := dna.RanksFromChars(seq)
	return &QueryRecord{
		ID:                            id,
		InternalID:                    internalID,
		RankSequence:                  ranks,
		ReverseComplementRankSequence: dna.ReverseComplement(ranks),
		Quality:                       quality,
	}
}

func uniquifyID(id string, seen map[string]int) string {
	n := seen[id]
	seen[id] = n + 1
	if n == 0 {
		return id
	}
	return fmt.Sprintf("%s_%d", id, n+1)
}

func warnInvalidChars(id string, seq []byte) {
	for _, c := range seq {
		if !dna.IsACGTN(c) {
			log.Error.Printf("the record %s contains characters other than [AaCcGgTtNn]; they are replaced by N", id)
			return
		}
	}
}
