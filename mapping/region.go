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

package mapping

import (
	"github.com/exascience/elmap/genome"
	"github.com/exascience/elmap/index"
)

// Region is an inclusive range of indexes into a hash table bucket.
type Region struct {
	First, Second int
}

// EmptyRegion is the canonical empty region.
var EmptyRegion = Region{First: 1, Second: 0}

// Empty reports whether the region contains no candidates.
func (r Region) Empty() bool {
	return r.First > r.Second
}

// Len returns the number of candidates in the region.
func (r Region) Len() int {
	if r.Empty() {
		return 0
	}
	return r.Second - r.First + 1
}

// LowerBound returns the first index in [low, high] whose genome base at
// the offset of the given seed step is >= base. If there is none, it
// returns high.
func LowerBound(low, high int, base byte, step int, candidates []genome.GenomePosition, g genome.Genome) int {
	offset := index.SeedPositionOrder[step]
	for low < high {
		mid := (low + high) / 2
		if g.Base(candidates[mid], offset) >= base {
			high = mid
		} else {
			low = mid + 1
		}
	}
	return low
}

// UpperBound returns the last index in [low, high] whose genome base at
// the offset of the given seed step is <= base. If there is none, it
// returns low.
func UpperBound(low, high int, base byte, step int, candidates []genome.GenomePosition, g genome.Genome) int {
	offset := index.SeedPositionOrder[step]
	for low < high {
		mid := (low + high + 1) / 2
		if g.Base(candidates[mid], offset) <= base {
			low = mid
		} else {
			high = mid - 1
		}
	}
	return low
}

// NarrowRegion shrinks the full range of a bucket step by step, from
// index.SeedWidth up to seedLength, keeping the candidates that agree
// with the converted read at each step's seed offset.
//
// The candidates must be sorted by index.SeedOrder. The seed length is
// clamped with index.ClampSeedLength.
func NarrowRegion(read []byte, candidates []genome.GenomePosition, g genome.Genome, seedLength int) Region {
	if len(candidates) == 0 {
		return EmptyRegion
	}
	seedLength = index.ClampSeedLength(seedLength, len(read))
	low, high := 0, len(candidates)-1
	for step := index.SeedWidth; step < seedLength; step++ {
		base := read[index.SeedPositionOrder[step]]
		low = LowerBound(low, high, base, step, candidates, g)
		high = UpperBound(low, high, base, step, candidates, g)
		if low > high {
			return EmptyRegion
		}
	}
	return Region{First: low, Second: high}
}
