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

package fasta

import (
	"bufio"
	"fmt"
	"io"

	"github.com/exascience/elmap/internal"
	"github.com/exascience/elmap/utils"
)

// Contig is one named sequence of a FASTA file.
type Contig struct {
	Name string
	Seq  []byte
}

// ContigFromHeader extracts the contig name from a FASTA header line:
// the first run of printable non-space characters after the '>'.
func ContigFromHeader(b []byte) string {
	i := 1
	for ; i < len(b); i++ {
		if c := b[i]; c >= '!' && c <= '~' {
			break
		}
	}
	j := i + 1
	for ; j < len(b); j++ {
		if c := b[j]; c < '!' || c > '~' {
			break
		}
	}
	if i >= len(b) {
		return ""
	}
	return string(b[i:j])
}

var iupacUpperTable [256]byte

func init() {
	for i := range iupacUpperTable {
		iupacUpperTable[i] = byte(i)
	}
	for _, c := range []byte("ACGTN") {
		iupacUpperTable[c] = c
		iupacUpperTable[c+'a'-'A'] = c
	}
	for _, c := range []byte("RYMKWSBDHV") {
		iupacUpperTable[c] = 'N'
		iupacUpperTable[c+'a'-'A'] = 'N'
	}
}

// ToUpperAndN can be used to normalize ambiguity codes in FASTA references,
// and convert all codes to upper case.
func ToUpperAndN(base byte) byte {
	return iupacUpperTable[base]
}

// ParseFasta sequentially parses FASTA contents, keeping the contigs
// in file order. Blank lines are allowed between records.
// The bases are returned as they appear in the input.
func ParseFasta(r io.Reader) (contigs []Contig, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	var current *Contig
	for scanner.Scan() {
		b := scanner.Bytes()
		if len(b) == 0 {
			continue
		}
		if b[0] == '>' {
			contigs = append(contigs, Contig{Name: ContigFromHeader(b)})
			current = &contigs[len(contigs)-1]
			continue
		}
		if current == nil {
			return nil, fmt.Errorf("invalid fasta contents - missing first header")
		}
		current.Seq = append(current.Seq, b...)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(contigs) == 0 {
		return nil, fmt.Errorf("empty fasta contents")
	}
	return contigs, nil
}

// ParseFastaFile parses a FASTA file, which may be gzip or BGZF compressed.
func ParseFastaFile(filename string) (contigs []Contig, err error) {
	f := internal.FileOpen(filename)
	defer internal.Close(f)

	input, err := utils.HandleGzip(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%v, while opening fasta file %v", err, filename)
	}
	if contigs, err = ParseFasta(input); err != nil {
		return nil, fmt.Errorf("%v, while parsing fasta file %v", err, filename)
	}
	return contigs, nil
}
