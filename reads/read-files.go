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

// Package reads parses sequencing reads, maps them in parallel, and
// writes the results as SAM records.
package reads

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/exascience/elmap/fasta"
	"github.com/exascience/elmap/utils"
)

// Read is one sequencing read. Qual is nil for reads from FASTA files.
type Read struct {
	Name string
	Seq  []byte
	Qual []byte
}

// Reader parses FASTQ or FASTA reads. The format is detected from the
// first non-empty line.
type Reader struct {
	input   *bufio.Reader
	file    *os.File
	fastq   bool
	pending []byte
	line    int
}

func (r *Reader) readLine() ([]byte, error) {
	line, err := r.input.ReadBytes('\n')
	if len(line) == 0 {
		if err == nil {
			err = io.EOF
		}
		return nil, err
	}
	if err != nil && err != io.EOF {
		return nil, err
	}
	r.line++
	line = bytes.TrimRight(line, "\r\n")
	return line, nil
}

func (r *Reader) nextNonEmptyLine() ([]byte, error) {
	if r.pending != nil {
		line := r.pending
		r.pending = nil
		return line, nil
	}
	for {
		line, err := r.readLine()
		if err != nil {
			return nil, err
		}
		if len(line) > 0 {
			return line, nil
		}
	}
}

// NewReader returns a Reader for the given input, which may be gzip or
// BGZF compressed.
func NewReader(input io.Reader) (*Reader, error) {
	decompressed, err := utils.HandleGzip(bufio.NewReader(input))
	if err != nil {
		return nil, err
	}
	r := &Reader{input: bufio.NewReader(decompressed)}
	first, err := r.nextNonEmptyLine()
	if err == io.EOF {
		return r, nil
	}
	if err != nil {
		return nil, err
	}
	switch first[0] {
	case '@':
		r.fastq = true
	case '>':
		r.fastq = false
	default:
		return nil, fmt.Errorf("input is neither FASTQ nor FASTA - unexpected first character %q", first[0])
	}
	r.pending = first
	return r, nil
}

// Open opens a FASTQ or FASTA file for reading.
func Open(filename string) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(file)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%v, while opening reads file %v", err, filename)
	}
	r.file = file
	return r, nil
}

// Close closes the underlying file, if any.
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func normalize(seq []byte) []byte {
	for i, c := range seq {
		seq[i] = fasta.ToUpperAndN(c)
	}
	return seq
}

func (r *Reader) nextFastq() (read Read, err error) {
	header, err := r.nextNonEmptyLine()
	if err != nil {
		return read, err
	}
	if header[0] != '@' {
		return read, fmt.Errorf("invalid FASTQ record at line %v - header does not start with @", r.line)
	}
	seq, err := r.readLine()
	if err != nil {
		return read, fmt.Errorf("truncated FASTQ record at line %v", r.line)
	}
	plus, err := r.readLine()
	if err != nil || len(plus) == 0 || plus[0] != '+' {
		return read, fmt.Errorf("invalid FASTQ record at line %v - missing + separator", r.line)
	}
	qual, err := r.readLine()
	if err != nil {
		return read, fmt.Errorf("truncated FASTQ record at line %v", r.line)
	}
	if len(qual) != len(seq) {
		return read, fmt.Errorf("invalid FASTQ record at line %v - sequence and quality lengths differ", r.line)
	}
	return Read{Name: fasta.ContigFromHeader(header), Seq: normalize(seq), Qual: qual}, nil
}

func (r *Reader) nextFasta() (read Read, err error) {
	header, err := r.nextNonEmptyLine()
	if err != nil {
		return read, err
	}
	if header[0] != '>' {
		return read, fmt.Errorf("invalid FASTA record at line %v - header does not start with >", r.line)
	}
	var seq []byte
	for {
		line, err := r.readLine()
		if err == io.EOF {
			break
		}
		if err != nil {
			return read, err
		}
		if len(line) > 0 && line[0] == '>' {
			r.pending = line
			break
		}
		seq = append(seq, line...)
	}
	return Read{Name: fasta.ContigFromHeader(header), Seq: normalize(seq)}, nil
}

// Next returns the next read, or io.EOF when the input is exhausted.
func (r *Reader) Next() (Read, error) {
	if r.fastq {
		return r.nextFastq()
	}
	return r.nextFasta()
}

// ReadBatch returns up to size reads. It returns an empty batch and a
// nil error when the input is exhausted.
func (r *Reader) ReadBatch(size int) (batch []Read, err error) {
	if size <= 0 {
		size = 1
	}
	batch = make([]Read, 0, size)
	for len(batch) < size {
		read, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		batch = append(batch, read)
	}
	return batch, nil
}
