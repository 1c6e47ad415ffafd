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

// Package sequence provides the nucleotide-level primitives shared by
// the genome loader, the index builder, and the mapper: reverse
// complementation, bisulfite conversion, 2-bit base codes, and the
// seed hash.
package sequence

import (
	"errors"
	"fmt"
)

// HashLen is the number of leading read bases that are hashed to
// select an index bucket. Reads shorter than HashLen cannot be mapped.
const HashLen = 12

// PlaceholderBase replaces N in converted reads and any ambiguity code
// in the converted genome. It is the base with code 3, so the reads
// and the index agree on how unknown bases hash and compare.
const PlaceholderBase = 'T'

// ErrLengthOutOfRange is returned by ConvertForComparison when the
// requested length does not fit the input read.
var ErrLengthOutOfRange = errors.New("conversion length out of range")

var complementTable [256]byte

var codeTable [256]uint32

func init() {
	for i := range complementTable {
		complementTable[i] = 'N'
	}
	for _, pair := range [...][2]byte{
		{'A', 'T'}, {'C', 'G'}, {'G', 'C'}, {'T', 'A'}, {'N', 'N'},
		{'R', 'Y'}, {'Y', 'R'}, {'S', 'S'}, {'W', 'W'},
		{'K', 'M'}, {'M', 'K'}, {'B', 'V'}, {'V', 'B'},
		{'D', 'H'}, {'H', 'D'},
	} {
		complementTable[pair[0]] = pair[1]
		complementTable[pair[0]+'a'-'A'] = pair[1] + 'a' - 'A'
	}

	for i := range codeTable {
		codeTable[i] = 3
	}
	codeTable['A'], codeTable['a'] = 0, 0
	codeTable['C'], codeTable['c'] = 1, 1
	codeTable['G'], codeTable['g'] = 2, 2
}

// Complement returns the complementary base. Case is preserved,
// N is its own complement, and unknown bytes map to N.
func Complement(base byte) byte {
	return complementTable[base]
}

// ReverseComplement returns a new slice holding the reverse complement
// of the given read.
func ReverseComplement(read []byte) []byte {
	n := len(read)
	result := make([]byte, n)
	for i, base := range read {
		result[n-1-i] = complementTable[base]
	}
	return result
}

// AppendReverseComplement appends the reverse complement of read to
// dst and returns the extended slice.
func AppendReverseComplement(dst, read []byte) []byte {
	for i := len(read) - 1; i >= 0; i-- {
		dst = append(dst, complementTable[read[i]])
	}
	return dst
}

// ConvertForComparison returns the bisulfite-converted comparison form
// of the first length bases of read: C becomes T, N becomes
// PlaceholderBase, and every other base is copied unchanged.
func ConvertForComparison(read []byte, length int) ([]byte, error) {
	if length < 0 || length > len(read) {
		return nil, fmt.Errorf("%w: %v bases requested from a read of length %v", ErrLengthOutOfRange, length, len(read))
	}
	return AppendConverted(make([]byte, 0, length), read[:length]), nil
}

// AppendConverted appends the comparison form of read to dst and
// returns the extended slice. It allows the mapper to reuse buffers.
func AppendConverted(dst, read []byte) []byte {
	for _, base := range read {
		switch base {
		case 'C':
			dst = append(dst, 'T')
		case 'N':
			dst = append(dst, PlaceholderBase)
		default:
			dst = append(dst, base)
		}
	}
	return dst
}

// Code returns the 2-bit code of a base: A=0, C=1, G=2, T=3.
// Any other byte gets code 3, the code of PlaceholderBase.
func Code(base byte) uint32 {
	return codeTable[base]
}

// Nucleotide returns the upper-case base for a 2-bit code.
func Nucleotide(code uint32) byte {
	return "ACGT"[code&3]
}

// SeedHash packs the codes of the first HashLen bases of read into a
// single value, first base in the most significant position.
// The read must have at least HashLen bases.
func SeedHash(read []byte) (hash uint32) {
	for _, base := range read[:HashLen] {
		hash = (hash << 2) | codeTable[base]
	}
	return hash
}
