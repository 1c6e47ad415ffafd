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

package index

import (
	"sort"

	"github.com/exascience/elmap/genome"
	"github.com/exascience/elmap/sequence"
)

const (
	// HashLen is the number of seed bases covered by the hash value.
	HashLen = sequence.HashLen

	// SeedWidth is the first seed step that is narrowed by binary
	// search. The steps before it are already fixed by the hash.
	SeedWidth = HashLen

	// MaxSeedLength is the number of seed steps in SeedPositionOrder.
	// Only genome positions followed by at least MaxSeedLength bases
	// are indexed.
	MaxSeedLength = 32
)

// SeedPositionOrder maps a seed step to a base offset within the seed.
// The first HashLen steps are the hashed prefix. The remaining steps
// are spread over the rest of the seed, so that early narrowing steps
// sample bases that are far apart.
var SeedPositionOrder = [MaxSeedLength]int{
	0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11,
	12, 16, 20, 24, 28,
	13, 17, 21, 25, 29,
	14, 18, 22, 26, 30,
	15, 19, 23, 27, 31,
}

// seedLengthLimits[n] is the largest number of seed steps whose
// offsets all fall within a read of n bases.
var seedLengthLimits [MaxSeedLength + 1]int

func init() {
	for n := range seedLengthLimits {
		steps := 0
		for steps < MaxSeedLength && SeedPositionOrder[steps] < n {
			steps++
		}
		seedLengthLimits[n] = steps
	}
}

// ClampSeedLength limits a requested seed length to MaxSeedLength, and
// to the number of steps whose offsets fit in a read of readLength bases.
func ClampSeedLength(seedLength, readLength int) int {
	if seedLength > MaxSeedLength {
		seedLength = MaxSeedLength
	}
	if readLength < MaxSeedLength {
		if limit := seedLengthLimits[readLength]; seedLength > limit {
			seedLength = limit
		}
	}
	return seedLength
}

// SeedOrder is the ordering of genome positions that every hash table
// bucket is sorted by. Positions are compared lexicographically by the
// converted genome bases at offsets SeedPositionOrder[0],
// SeedPositionOrder[1], and so on, then by chromosome id and position.
//
// Binary search over the seed bases at successive steps is only valid
// on buckets sorted by this order.
type SeedOrder struct {
	Genome genome.Genome
}

// Compare returns -1, 0, or 1 depending on whether a sorts before,
// together with, or after b.
func (order SeedOrder) Compare(a, b genome.GenomePosition) int {
	seqA := order.Genome[a.ChromID].Sequence[a.ChromPos:]
	seqB := order.Genome[b.ChromID].Sequence[b.ChromPos:]
	for _, offset := range SeedPositionOrder {
		if x, y := seqA[offset], seqB[offset]; x < y {
			return -1
		} else if x > y {
			return 1
		}
	}
	switch {
	case a.ChromID < b.ChromID:
		return -1
	case a.ChromID > b.ChromID:
		return 1
	case a.ChromPos < b.ChromPos:
		return -1
	case a.ChromPos > b.ChromPos:
		return 1
	}
	return 0
}

// Less reports whether a sorts before b.
func (order SeedOrder) Less(a, b genome.GenomePosition) bool {
	return order.Compare(a, b) < 0
}

// Sort sorts positions by this order.
func (order SeedOrder) Sort(positions []genome.GenomePosition) {
	sort.Slice(positions, func(i, j int) bool {
		return order.Less(positions[i], positions[j])
	})
}

// IsSorted reports whether positions are sorted by this order.
func (order SeedOrder) IsSorted(positions []genome.GenomePosition) bool {
	for i := 1; i < len(positions); i++ {
		if order.Less(positions[i], positions[i-1]) {
			return false
		}
	}
	return true
}
