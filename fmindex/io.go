package fmindex

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// Serialized index layout: a gzip stream holding magic, version, then the
// fields below in little endian.  The occ checkpoint tables are rebuilt on
// load; only the BWTs, sequence boundaries and suffix-array samples are
// stored.
var indexMagic = [8]byte{'F', 'L', 'X', 'F', 'M', 'I', 0, 1}

// WriteTo serializes the index.
func (ix *Index) WriteTo(w io.Writer) error {
	zw := gzip.NewWriter(w)
	bw := bufio.NewWriter(zw)
	if _, err := bw.Write(indexMagic[:]); err != nil {
		return err
	}
	header := []int64{
		int64(ix.textLen),
		int64(len(ix.seqOffsets)),
		int64(ix.samplingRate),
		int64(len(ix.samples)),
	}
	for _, v := range header {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	for _, field := range [][]int32{ix.seqOffsets, ix.seqLens, ix.samples} {
		if err := binary.Write(bw, binary.LittleEndian, field); err != nil {
			return err
		}
	}
	if err := binary.Write(bw, binary.LittleEndian, ix.marked.words); err != nil {
		return err
	}
	if _, err := bw.Write(ix.occ.bwt); err != nil {
		return err
	}
	if _, err := bw.Write(ix.revOcc.bwt); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return zw.Close()
}

// Read deserializes an index previously written with WriteTo.
func Read(r io.Reader) (*Index, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading index blob")
	}
	defer zr.Close()
	br := bufio.NewReader(zr)
	var magic [8]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, errors.Wrap(err, "reading index magic")
	}
	if magic != indexMagic {
		return nil, errors.New("not a floxer index file or incompatible version")
	}
	var header [4]int64
	for i := range header {
		if err := binary.Read(br, binary.LittleEndian, &header[i]); err != nil {
			return nil, errors.Wrap(err, "reading index header")
		}
	}
	ix := &Index{
		textLen:      int(header[0]),
		seqOffsets:   make([]int32, header[1]),
		seqLens:      make([]int32, header[1]),
		samplingRate: int(header[2]),
		samples:      make([]int32, header[3]),
	}
	for _, field := range [][]int32{ix.seqOffsets, ix.seqLens, ix.samples} {
		if err := binary.Read(br, binary.LittleEndian, field); err != nil {
			return nil, errors.Wrap(err, "reading index tables")
		}
	}
	ix.marked = newMarkBitmap(ix.textLen)
	if err := binary.Read(br, binary.LittleEndian, ix.marked.words); err != nil {
		return nil, errors.Wrap(err, "reading index sample bitmap")
	}
	ix.marked.finish()

	bwt := make([]byte, ix.textLen)
	if _, err := io.ReadFull(br, bwt); err != nil {
		return nil, errors.Wrap(err, "reading index BWT")
	}
	revBWT := make([]byte, ix.textLen)
	if _, err := io.ReadFull(br, revBWT); err != nil {
		return nil, errors.Wrap(err, "reading index reverse BWT")
	}
	ix.occ = newOccTable(bwt)
	ix.revOcc = newOccTable(revBWT)

	for _, c := range bwt {
		ix.counts[c+1]++
	}
	for c := 1; c < len(ix.counts); c++ {
		ix.counts[c] += ix.counts[c-1]
	}
	return ix, nil
}
