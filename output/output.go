// Package output writes query alignments as SAM or BAM via biogo/hts.  The
// primary alignment of a query is emitted first and carries the sequence
// and quality; secondary alignments follow with both fields empty.
package output

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"github.com/pkg/errors"

	"github.com/feldroop/floxer/align"
	"github.com/feldroop/floxer/dna"
	"github.com/feldroop/floxer/input"
	"github.com/feldroop/floxer/util"
)

const mapqNotAvailable = 255

var nmTag = sam.NewTag("NM")

type recordWriter interface {
	Write(*sam.Record) error
}

// AlignmentWriter serializes the alignment records of one run.  It is not
// safe for concurrent use; the driver funnels all queries through a single
// writer goroutine.
type AlignmentWriter struct {
	w          recordWriter
	bamWriter  *bam.Writer
	references []*sam.Reference
}

// IsBAMPath reports whether the output should be written as BAM, judged by
// the file extension the way the original tool selects its format.
func IsBAMPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".bam")
}

// NewAlignmentWriter creates a writer with one @SQ header line per
// reference.  Reference lengths are saturated to the int32 range SAM can
// express.
func NewAlignmentWriter(w io.Writer, references []input.ReferenceRecord, asBAM bool) (*AlignmentWriter, error) {
	samReferences := make([]*sam.Reference, 0, len(references))
	for _, reference := range references {
		samReference, err := sam.NewReference(
			reference.ID, "", "",
			int(util.SaturateToInt32Max(len(reference.RankSequence))),
			nil, nil,
		)
		if err != nil {
			return nil, errors.Wrapf(err, "creating SAM reference %s", reference.ID)
		}
		samReferences = append(samReferences, samReference)
	}
	header, err := sam.NewHeader(nil, samReferences)
	if err != nil {
		return nil, errors.Wrap(err, "creating SAM header")
	}

	out := &AlignmentWriter{references: samReferences}
	if asBAM {
		bw, err := bam.NewWriter(w, header, 1)
		if err != nil {
			return nil, errors.Wrap(err, "creating BAM writer")
		}
		out.w, out.bamWriter = bw, bw
	} else {
		sw, err := sam.NewWriter(w, header, sam.FlagDecimal)
		if err != nil {
			return nil, errors.Wrap(err, "creating SAM writer")
		}
		out.w = sw
	}
	return out, nil
}

// Close flushes buffered BAM data; SAM output needs no finalization beyond
// the underlying writer.
func (w *AlignmentWriter) Close() error {
	if w.bamWriter != nil {
		return w.bamWriter.Close()
	}
	return nil
}

// WriteQuery writes all alignments of one query, primary first.  A query
// without any stored alignment emits a single unmapped record that carries
// the sequence and quality.
func (w *AlignmentWriter) WriteQuery(query *input.QueryRecord, alignments *align.QueryAlignments) error {
	if alignments == nil || alignments.Size() == 0 {
		return w.w.Write(w.unmappedRecord(query))
	}

	var secondary []*sam.Record
	var primary *sam.Record
	for referenceID := range w.references {
		for i := range alignments.ToReference(referenceID) {
			alignment := &alignments.ToReference(referenceID)[i]
			isPrimary := primary == nil && alignments.IsPrimary(alignment)
			record := w.alignmentRecord(query, alignment, isPrimary)
			if isPrimary {
				primary = record
			} else {
				secondary = append(secondary, record)
			}
		}
	}
	if primary == nil {
		return errors.New("no stored alignment matches the primary selection")
	}
	if err := w.w.Write(primary); err != nil {
		return err
	}
	for _, record := range secondary {
		if err := w.w.Write(record); err != nil {
			return err
		}
	}
	return nil
}

func (w *AlignmentWriter) alignmentRecord(query *input.QueryRecord, alignment *align.Alignment, isPrimary bool) *sam.Record {
	flags := sam.Flags(0)
	if alignment.Orientation == align.ReverseComplement {
		flags |= sam.Reverse
	}
	record := &sam.Record{
		Name:    query.ID,
		Ref:     w.references[alignment.ReferenceID],
		Pos:     alignment.StartInReference,
		MapQ:    mapqNotAvailable,
		Cigar:   samCigar(alignment.Cigar),
		MatePos: -1,
	}
	if isPrimary {
		record.Seq = sam.NewSeq(dna.CharsFromRanks(query.RankSequence))
		record.Qual = qualityScores(query.Quality, len(query.RankSequence))
	} else {
		flags |= sam.Secondary
	}
	record.Flags = flags
	if aux, err := sam.NewAux(nmTag, alignment.NumErrors); err == nil {
		record.AuxFields = append(record.AuxFields, aux)
	}
	return record
}

func (w *AlignmentWriter) unmappedRecord(query *input.QueryRecord) *sam.Record {
	return &sam.Record{
		Name:    query.ID,
		Flags:   sam.Unmapped,
		Pos:     -1,
		MapQ:    mapqNotAvailable,
		MatePos: -1,
		Seq:     sam.NewSeq(dna.CharsFromRanks(query.RankSequence)),
		Qual:    qualityScores(query.Quality, len(query.RankSequence)),
	}
}

func samCigar(c align.Cigar) sam.Cigar {
	cigar := make(sam.Cigar, 0, len(c.Blocks))
	for _, block := range c.Blocks {
		var op sam.CigarOpType
		switch block.Op {
		case align.OpMatch:
			op = sam.CigarEqual
		case align.OpMismatch:
			op = sam.CigarMismatch
		case align.OpInsertion:
			op = sam.CigarInsertion
		case align.OpDeletion:
			op = sam.CigarDeletion
		}
		cigar = append(cigar, sam.NewCigarOp(op, block.Count))
	}
	return cigar
}

// qualityScores converts an ASCII phred+33 quality string into the raw
// scores SAM records carry.  A missing quality becomes the 0xff filler that
// both the SAM and BAM writers render as '*'.
func qualityScores(quality string, seqLength int) []byte {
	scores := make([]byte, seqLength)
	if quality == "" {
		for i := range scores {
			scores[i] = 0xff
		}
		return scores
	}
	for i := 0; i < len(quality); i++ {
		scores[i] = quality[i] - 33
	}
	return scores
}
