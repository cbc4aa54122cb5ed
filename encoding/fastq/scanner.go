// Package fastq provides a reader for FASTQ query data.
package fastq

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

var (
	// ErrShort is returned when a truncated FASTQ file is encountered.
	ErrShort = errors.New("short FASTQ file")
	// ErrInvalid is returned when an invalid FASTQ file is encountered.
	ErrInvalid = errors.New("invalid FASTQ file")
)

// A Record is a FASTQ read, comprising an ID line (without the leading
// '@'), a sequence and a quality string.  The separator line is consumed
// and discarded.
type Record struct {
	ID   string
	Seq  []byte
	Qual []byte
}

var errEOF = errors.New("eof")

// Scanner provides a convenient interface for reading FASTQ read data.  The
// Scan method reads the next record, returning a boolean indicating whether
// the read succeeded.  Scanners are not threadsafe.
//
// Scanner validates the frame of each record: the ID line must begin with
// "@" and the separator line with "+".  Sequence and quality length
// agreement is left to the caller, which may want to keep such records.
type Scanner struct {
	b   *bufio.Scanner
	err error
}

// NewScanner constructs a new Scanner that reads raw FASTQ data from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{b: bufio.NewScanner(r)}
}

// Scan the next read into the provided record.  Once Scan returns false, it
// never returns true again.  Upon completion the user should check the Err
// method to determine whether scanning stopped because of an error or
// because the end of the stream was reached.
func (s *Scanner) Scan(record *Record) bool {
	if s.err != nil {
		return false
	}
	id, ok := s.line()
	if !ok {
		return false
	}
	if len(id) == 0 || id[0] != '@' {
		s.err = ErrInvalid
		return false
	}
	record.ID = string(id[1:])

	seq, ok := s.line()
	if !ok {
		s.truncated()
		return false
	}
	record.Seq = append(record.Seq[:0], seq...)

	sep, ok := s.line()
	if !ok {
		s.truncated()
		return false
	}
	if len(sep) == 0 || sep[0] != '+' {
		s.err = ErrInvalid
		return false
	}

	qual, ok := s.line()
	if !ok {
		s.truncated()
		return false
	}
	record.Qual = append(record.Qual[:0], qual...)
	return true
}

// Err returns the error, if any, encountered during scanning.
func (s *Scanner) Err() error {
	if s.err == errEOF {
		return nil
	}
	return s.err
}

func (s *Scanner) line() ([]byte, bool) {
	if !s.b.Scan() {
		if s.err = s.b.Err(); s.err == nil {
			s.err = errEOF
		}
		return nil, false
	}
	return bytes.TrimRight(s.b.Bytes(), "\r"), true
}

// truncated upgrades a clean EOF in the middle of a record to ErrShort.
func (s *Scanner) truncated() {
	if s.err == errEOF {
		s.err = ErrShort
	}
}
