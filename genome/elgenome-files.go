// elMap: a high-performance bisulfite-aware short-read mapper.
// Copyright (c) 2021 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/elprep/blob/master/LICENSE.txt>.

package genome

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/willf/bitset"
	"golang.org/x/sys/unix"

	"github.com/exascience/elmap/internal"
)

// ElgenomeMagic is the magic byte sequence that every .elgenome file starts with.
var ElgenomeMagic = []byte{0x31, 0x6E, 0x3E, 0xA1} // 316E3EA1 => ELGENOME1

/*
An .elgenome file has the following layout:

	magic bytes
	uvarint: header size in bytes
	header:
		uvarint: number of chromosomes
		per chromosome:
			uvarint: name length, followed by the name
			uvarint: sequence length
			uvarint: number of ambiguous runs
			per run: uvarint start, uvarint length
	converted sequences, concatenated in chromosome order

The sequences are stored after conversion, so they can be mmapped and
used directly for mapping.
*/

func appendUvarint(buf []byte, x uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], x)
	return append(buf, tmp[:n]...)
}

func ambiguousRuns(set *bitset.BitSet, length int) (runs [][2]uint) {
	if set == nil {
		return nil
	}
	for i, ok := set.NextSet(0); ok && int(i) < length; i, ok = set.NextSet(i) {
		start := i
		for int(i) < length && set.Test(i) {
			i++
		}
		runs = append(runs, [2]uint{start, i - start})
	}
	return runs
}

func elgenomeHeader(g Genome) []byte {
	var header []byte
	header = appendUvarint(header, uint64(len(g)))
	for i := range g {
		chrom := &g[i]
		header = appendUvarint(header, uint64(len(chrom.Name)))
		header = append(header, chrom.Name...)
		header = appendUvarint(header, uint64(chrom.Len()))
		runs := ambiguousRuns(chrom.Ambiguous, chrom.Len())
		header = appendUvarint(header, uint64(len(runs)))
		for _, run := range runs {
			header = appendUvarint(header, uint64(run[0]))
			header = appendUvarint(header, uint64(run[1]))
		}
	}
	return header
}

// ToElgenome stores a converted genome into an mmappable .elgenome file.
func ToElgenome(g Genome, filename string) (err error) {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if nerr := file.Close(); err == nil {
			err = nerr
		}
	}()
	output := bufio.NewWriter(file)
	header := elgenomeHeader(g)
	var prefix []byte
	prefix = append(prefix, ElgenomeMagic...)
	prefix = appendUvarint(prefix, uint64(len(header)))
	if _, err = output.Write(prefix); err != nil {
		return err
	}
	if _, err = output.Write(header); err != nil {
		return err
	}
	for i := range g {
		if _, err = output.Write(g[i].Sequence); err != nil {
			return err
		}
	}
	return output.Flush()
}

// MappedGenome represents the contents of an .elgenome file.
// The chromosome sequences share memory with the mapped file and
// must not be used after Close.
type MappedGenome struct {
	Genome Genome
	data   []byte
	file   *os.File
}

// chromosome positions are int32
const maxSequenceLength = math.MaxInt32

// parseElgenomeHeader checks every length against the bytes that are
// actually present: the header itself, and the available sequence bytes.
func parseElgenomeHeader(header []byte, available uint64) (g Genome, sizes []int, err error) {
	r := bytes.NewReader(header)
	nofChromosomes, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, nil, err
	}
	if nofChromosomes > uint64(len(header)) {
		return nil, nil, fmt.Errorf("invalid number of chromosomes %v", nofChromosomes)
	}
	g = make(Genome, nofChromosomes)
	sizes = make([]int, nofChromosomes)
	for i := range g {
		nameLength, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, nil, err
		}
		if nameLength > uint64(r.Len()) {
			return nil, nil, fmt.Errorf("invalid name length %v for chromosome %v", nameLength, i)
		}
		name := make([]byte, nameLength)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, nil, err
		}
		seqLength, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, nil, err
		}
		if seqLength > maxSequenceLength || seqLength > available {
			return nil, nil, fmt.Errorf("invalid sequence length %v for chromosome %v", seqLength, string(name))
		}
		available -= seqLength
		nofRuns, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, nil, err
		}
		if nofRuns > uint64(r.Len()) {
			return nil, nil, fmt.Errorf("invalid number of ambiguous runs %v for chromosome %v", nofRuns, string(name))
		}
		ambiguous := bitset.New(0)
		for j := uint64(0); j < nofRuns; j++ {
			start, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, nil, err
			}
			length, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, nil, err
			}
			if start > seqLength || length > seqLength-start {
				return nil, nil, fmt.Errorf("ambiguous run %v+%v out of range for chromosome %v", start, length, string(name))
			}
			for k := start; k < start+length; k++ {
				ambiguous.Set(uint(k))
			}
		}
		g[i] = Chromosome{Name: string(name), Ambiguous: ambiguous}
		sizes[i] = int(seqLength)
	}
	return g, sizes, nil
}

// OpenElgenome opens and mmaps an .elgenome file.
func OpenElgenome(filename string) (result *MappedGenome, err error) {
	file := internal.FileOpen(filename)
	defer func() {
		if err != nil {
			_ = file.Close()
		}
	}()
	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}
	if stat.Size() < int64(len(ElgenomeMagic)) {
		return nil, fmt.Errorf("%v is not an .elgenome file - file too short", filename)
	}
	data, err := unix.Mmap(int(file.Fd()), 0, int(stat.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = unix.Munmap(data)
		}
	}()
	if !bytes.Equal(data[:len(ElgenomeMagic)], ElgenomeMagic) {
		return nil, fmt.Errorf("%v is not an .elgenome file - invalid magic byte sequence", filename)
	}
	index := len(ElgenomeMagic)
	headerSize, n := binary.Uvarint(data[index:])
	if n <= 0 {
		return nil, fmt.Errorf("bad number of bytes while parsing header size in elgenome file %v", filename)
	}
	index += n
	if uint64(len(data)-index) < headerSize {
		return nil, fmt.Errorf("truncated header in elgenome file %v", filename)
	}
	g, sizes, err := parseElgenomeHeader(data[index:index+int(headerSize)], uint64(len(data)-index-int(headerSize)))
	if err != nil {
		return nil, fmt.Errorf("%v, while parsing header of elgenome file %v", err, filename)
	}
	index += int(headerSize)
	var dataSize int
	for _, size := range sizes {
		dataSize += size
	}
	if len(data)-index != dataSize {
		return nil, fmt.Errorf("elgenome file %v has %v sequence bytes, expected %v", filename, len(data)-index, dataSize)
	}
	for i, size := range sizes {
		g[i].Sequence = data[index : index+size : index+size]
		index += size
	}
	_ = unix.Madvise(data, unix.MADV_WILLNEED)
	return &MappedGenome{Genome: g, data: data, file: file}, nil
}

// IsElgenomeFile reports whether the given file starts with ElgenomeMagic.
func IsElgenomeFile(filename string) (bool, error) {
	file, err := os.Open(filename)
	if err != nil {
		return false, err
	}
	defer file.Close()
	magic := make([]byte, len(ElgenomeMagic))
	if _, err := io.ReadFull(file, magic); err == io.EOF || err == io.ErrUnexpectedEOF {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return bytes.Equal(magic, ElgenomeMagic), nil
}

// Close unmaps and closes the .elgenome file.
func (mapped *MappedGenome) Close() error {
	err := unix.Munmap(mapped.data)
	mapped.data = nil
	if nerr := mapped.file.Close(); err == nil {
		err = nerr
	}
	mapped.file = nil
	mapped.Genome = nil
	return err
}
