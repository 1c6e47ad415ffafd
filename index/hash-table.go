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

// Package index builds the seed hash table that the mapper looks up
// candidate genome positions in.
//
// An Index is built once per run and is read-only afterwards, so it
// can be shared by all mapping goroutines.
package index

import (
	"github.com/exascience/pargo/parallel"
	psort "github.com/exascience/pargo/sort"

	"github.com/exascience/elmap/genome"
	"github.com/exascience/elmap/sequence"
)

// HashTable maps a seed hash to the genome positions whose first
// HashLen bases have that hash. Every bucket is sorted by SeedOrder.
type HashTable map[uint32][]genome.GenomePosition

// Index combines a genome with the hash table built over it.
type Index struct {
	Genome genome.Genome
	Table  HashTable
}

// BuildOptions control which genome positions are indexed.
type BuildOptions struct {
	// SkipAmbiguousSeeds excludes positions whose hashed prefix
	// overlaps a base that was an ambiguity code in the reference.
	SkipAmbiguousSeeds bool
}

// Candidates returns the sorted bucket for the given seed hash.
func (idx *Index) Candidates(hash uint32) ([]genome.GenomePosition, bool) {
	positions, ok := idx.Table[hash]
	return positions, ok
}

// Order returns the SeedOrder of this index's genome.
func (idx *Index) Order() SeedOrder {
	return SeedOrder{Genome: idx.Genome}
}

const hashMask = 1<<(2*HashLen) - 1

func addChromosome(table HashTable, g genome.Genome, chromID int, options BuildOptions) {
	chrom := &g[chromID]
	last := chrom.Len() - MaxSeedLength
	if last < 0 {
		return
	}
	var hash uint32
	lastAmbiguous := -1
	for i := 0; i < HashLen-1; i++ {
		hash = (hash << 2) | sequence.Code(chrom.Sequence[i])
		if chrom.IsAmbiguous(i) {
			lastAmbiguous = i
		}
	}
	for pos := 0; pos <= last; pos++ {
		end := pos + HashLen - 1
		hash = ((hash << 2) | sequence.Code(chrom.Sequence[end])) & hashMask
		if chrom.IsAmbiguous(end) {
			lastAmbiguous = end
		}
		if options.SkipAmbiguousSeeds && lastAmbiguous >= pos {
			continue
		}
		table[hash] = append(table[hash], genome.GenomePosition{ChromID: int32(chromID), ChromPos: int32(pos)})
	}
}

func mergeTables(x, y interface{}) interface{} {
	left, right := x.(HashTable), y.(HashTable)
	if len(left) < len(right) {
		left, right = right, left
	}
	for hash, positions := range right {
		left[hash] = append(left[hash], positions...)
	}
	return left
}

type seedPositionSorter struct {
	positions []genome.GenomePosition
	order     SeedOrder
}

func (s seedPositionSorter) SequentialSort(i, j int) {
	s.order.Sort(s.positions[i:j])
}

func (s seedPositionSorter) NewTemp() psort.StableSorter {
	return seedPositionSorter{positions: make([]genome.GenomePosition, len(s.positions)), order: s.order}
}

func (s seedPositionSorter) Len() int {
	return len(s.positions)
}

func (s seedPositionSorter) Less(i, j int) bool {
	return s.order.Less(s.positions[i], s.positions[j])
}

func (s seedPositionSorter) Assign(source psort.StableSorter) func(i, j, len int) {
	dst, src := s.positions, source.(seedPositionSorter).positions
	return func(i, j, len int) {
		copy(dst[i:i+len], src[j:j+len])
	}
}

// buckets larger than this are sorted with a parallel sort
const parallelSortGrainSize = 0x4000

// SortBuckets sorts every bucket of the table by the given order.
// Buckets are sorted in parallel, and large buckets additionally use
// a parallel merge sort.
func SortBuckets(table HashTable, order SeedOrder) {
	hashes := make([]uint32, 0, len(table))
	for hash := range table {
		hashes = append(hashes, hash)
	}
	parallel.Range(0, len(hashes), 0, func(low, high int) {
		for _, hash := range hashes[low:high] {
			positions := table[hash]
			if len(positions) > parallelSortGrainSize {
				psort.StableSort(seedPositionSorter{positions: positions, order: order})
			} else {
				order.Sort(positions)
			}
		}
	})
}

// Build hashes every genome position that is followed by at least
// MaxSeedLength bases, and sorts the resulting buckets by SeedOrder.
func Build(g genome.Genome, options BuildOptions) *Index {
	table := HashTable{}
	if len(g) > 0 {
		table = parallel.RangeReduce(0, len(g), 0, func(low, high int) interface{} {
			table := make(HashTable)
			for chromID := low; chromID < high; chromID++ {
				addChromosome(table, g, chromID, options)
			}
			return table
		}, mergeTables).(HashTable)
	}
	SortBuckets(table, SeedOrder{Genome: g})
	return &Index{Genome: g, Table: table}
}

// Stats summarizes the size of an index.
type Stats struct {
	Buckets, Positions, LargestBucket int
}

// Stats returns the number of buckets, the number of indexed
// positions, and the size of the largest bucket.
func (idx *Index) Stats() (stats Stats) {
	stats.Buckets = len(idx.Table)
	for _, positions := range idx.Table {
		stats.Positions += len(positions)
		if len(positions) > stats.LargestBucket {
			stats.LargestBucket = len(positions)
		}
	}
	return stats
}
