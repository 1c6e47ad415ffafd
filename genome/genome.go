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

// Package genome holds the bisulfite-converted reference that reads are
// compared against.
//
// A Genome is built once, either from FASTA contigs or from an
// .elgenome file, and is never modified afterwards. It can be shared
// by any number of goroutines without synchronization.
package genome

import (
	"github.com/exascience/pargo/parallel"
	"github.com/willf/bitset"

	"github.com/exascience/elmap/fasta"
	"github.com/exascience/elmap/sequence"
)

// GenomePosition refers to a base offset within a chromosome.
type GenomePosition struct {
	ChromID  int32
	ChromPos int32
}

// Chromosome is one converted reference sequence.
//
// Sequence contains upper-case bases where C is replaced by T and every
// ambiguity code is replaced by sequence.PlaceholderBase. Ambiguous
// marks the offsets that held an ambiguity code in the reference.
type Chromosome struct {
	Name      string
	Sequence  []byte
	Ambiguous *bitset.BitSet
}

// Len returns the number of bases in the chromosome.
func (chrom *Chromosome) Len() int {
	return len(chrom.Sequence)
}

// IsAmbiguous reports whether the reference held an ambiguity code at
// the given offset.
func (chrom *Chromosome) IsAmbiguous(pos int) bool {
	return chrom.Ambiguous != nil && chrom.Ambiguous.Test(uint(pos))
}

// Genome is an ordered sequence of chromosomes, indexed by chromosome id.
type Genome []Chromosome

// Base returns the converted base at the given position plus offset.
// It performs no bounds checks beyond the ones of the Go runtime.
func (g Genome) Base(pos GenomePosition, offset int) byte {
	return g[pos.ChromID].Sequence[int(pos.ChromPos)+offset]
}

// ConvertBase returns the converted form of a reference base: upper
// case, C replaced by T, and ambiguity codes replaced by
// sequence.PlaceholderBase. The second result reports whether the
// base was an ambiguity code.
func ConvertBase(base byte) (byte, bool) {
	switch b := fasta.ToUpperAndN(base); b {
	case 'C':
		return 'T', false
	case 'A', 'G', 'T':
		return b, false
	default:
		return sequence.PlaceholderBase, true
	}
}

// ConvertChromosome converts the bases of a FASTA contig into a Chromosome.
func ConvertChromosome(name string, seq []byte) Chromosome {
	converted := make([]byte, len(seq))
	var ambiguous *bitset.BitSet
	for i, base := range seq {
		b, isAmbiguous := ConvertBase(base)
		converted[i] = b
		if isAmbiguous {
			if ambiguous == nil {
				ambiguous = bitset.New(uint(len(seq)))
			}
			ambiguous.Set(uint(i))
		}
	}
	if ambiguous == nil {
		ambiguous = bitset.New(0)
	}
	return Chromosome{Name: name, Sequence: converted, Ambiguous: ambiguous}
}

// FromContigs converts FASTA contigs into a Genome, preserving their order.
// The contigs are converted in parallel.
func FromContigs(contigs []fasta.Contig) Genome {
	g := make(Genome, len(contigs))
	parallel.Range(0, len(contigs), 0, func(low, high int) {
		for i := low; i < high; i++ {
			g[i] = ConvertChromosome(contigs[i].Name, contigs[i].Seq)
		}
	})
	return g
}

// TotalLength returns the sum of all chromosome lengths.
func (g Genome) TotalLength() (total int) {
	for i := range g {
		total += g[i].Len()
	}
	return total
}
