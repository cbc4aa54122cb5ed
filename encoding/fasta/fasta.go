// Package fasta contains a streaming parser for FASTA files.  Briefly,
// FASTA files consist of a number of named sequences that may be
// interrupted by newlines.  For example:
//
//	>chr7
//	ACGTAC
//	GAGGAC
//	GCG
//	>chr8
//	ACGT
//
// Record names are the stretch of characters excluding spaces immediately
// after '>'; any text after a space is ignored.
package fasta

import (
	"bufio"
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// Record is one named sequence.  Seq holds the raw sequence characters with
// newlines removed; no alphabet validation is performed here.
type Record struct {
	Name string
	Seq  []byte
}

// Scanner provides a convenient interface for reading FASTA records.  The
// Scan method advances to the next record, returning a boolean indicating
// whether the read succeeded.  Scanners are not threadsafe.
type Scanner struct {
	b       *bufio.Reader
	current Record
	pending []byte // header line of the next record, already consumed
	err     error
}

// NewScanner constructs a Scanner reading raw FASTA data from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{b: bufio.NewReader(r)}
}

// Scan advances to the next record.  Upon completion the user should check
// Err to distinguish end of stream from a malformed input.
func (s *Scanner) Scan() bool {
	if s.err != nil {
		return false
	}
	header := s.pending
	s.pending = nil
	for header == nil {
		line, err := s.readLine()
		if err != nil {
			s.err = err
			return false
		}
		if len(line) == 0 {
			continue
		}
		if line[0] != '>' {
			s.err = errors.Errorf("FASTA record must start with '>', got %q", line)
			return false
		}
		header = line
	}

	name := header[1:]
	if i := bytes.IndexAny(name, " \t"); i >= 0 {
		name = name[:i]
	}
	s.current = Record{Name: string(name)}

	for {
		line, err := s.readLine()
		if err == io.EOF {
			return true
		}
		if err != nil {
			s.err = err
			return true
		}
		if len(line) > 0 && line[0] == '>' {
			s.pending = line
			return true
		}
		s.current.Seq = append(s.current.Seq, line...)
	}
}

// Record returns the record read by the last successful Scan.  The returned
// slices are owned by the caller.
func (s *Scanner) Record() Record { return s.current }

// Err returns the first error encountered, or nil at a clean end of input.
func (s *Scanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}

// readLine returns the next line with the trailing newline (and carriage
// return) removed.  The returned slice is freshly allocated.
func (s *Scanner) readLine() ([]byte, error) {
	line, err := s.b.ReadBytes('\n')
	if len(line) == 0 && err != nil {
		return nil, err
	}
	line = bytes.TrimRight(line, "\r\n")
	out := make([]byte, len(line))
	copy(out, line)
	return out, nil
}
