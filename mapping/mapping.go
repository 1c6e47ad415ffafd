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

// Package mapping finds the genome positions that a bisulfite-treated
// read matches with the fewest mismatches.
//
// A read is converted (C to T), its first index.HashLen bases select a
// hash table bucket, the bucket is narrowed by binary search over the
// following seed bases, and every remaining candidate is extended over
// the rest of the read. Mapping a read touches no shared mutable state,
// so any number of reads can be mapped concurrently against the same
// index.
package mapping

import (
	"fmt"
	"math"

	"github.com/exascience/elmap/genome"
	"github.com/exascience/elmap/index"
	"github.com/exascience/elmap/sequence"
)

// BestMatch accumulates the best genome position found for a read.
// Times counts how many positions share the lowest mismatch count.
type BestMatch struct {
	ChromID  int32
	ChromPos int32
	Times    int
	Mismatch int
	Reverse  bool
}

// NoMatch returns the initial state of a BestMatch, before any
// candidate has been verified.
func NoMatch() BestMatch {
	return BestMatch{Mismatch: math.MaxInt32}
}

// Found reports whether at least one position was found.
func (best BestMatch) Found() bool {
	return best.Times > 0
}

// Unique reports whether exactly one position has the lowest mismatch count.
func (best BestMatch) Unique() bool {
	return best.Times == 1
}

// Position returns the genome position of the best match.
func (best BestMatch) Position() genome.GenomePosition {
	return genome.GenomePosition{ChromID: best.ChromID, ChromPos: best.ChromPos}
}

// Update returns the accumulator after considering a candidate with the
// given mismatch count: a lower count replaces the best match, an equal
// count increments Times, and a higher count is ignored.
func (best BestMatch) Update(pos genome.GenomePosition, mismatch int) BestMatch {
	switch {
	case mismatch < best.Mismatch:
		return BestMatch{ChromID: pos.ChromID, ChromPos: pos.ChromPos, Times: 1, Mismatch: mismatch}
	case mismatch == best.Mismatch:
		best.Times++
	}
	return best
}

// BoundsPolicy determines what happens when a candidate position
// leaves too little room in its chromosome for the whole read.
type BoundsPolicy int

const (
	// AbortOnOutOfBounds stops verifying the remaining candidates of the bucket.
	AbortOnOutOfBounds BoundsPolicy = iota

	// SkipOutOfBounds skips only the offending candidate.
	SkipOutOfBounds
)

func (policy BoundsPolicy) String() string {
	switch policy {
	case AbortOnOutOfBounds:
		return "abort"
	case SkipOutOfBounds:
		return "skip"
	default:
		return fmt.Sprintf("BoundsPolicy(%d)", int(policy))
	}
}

// ParseBoundsPolicy parses "abort" or "skip".
func ParseBoundsPolicy(s string) (BoundsPolicy, error) {
	switch s {
	case "", "abort":
		return AbortOnOutOfBounds, nil
	case "skip":
		return SkipOutOfBounds, nil
	default:
		return 0, fmt.Errorf("invalid bounds policy %v", s)
	}
}

// CountMismatches compares read and ref from offset from up to the end
// of read, and stops counting as soon as the count exceeds limit.
// ref must be at least as long as read.
func CountMismatches(read, ref []byte, from, limit int) (mismatch int) {
	ref = ref[:len(read)]
	for i := from; i < len(read); i++ {
		if ref[i] != read[i] {
			mismatch++
			if mismatch > limit {
				return mismatch
			}
		}
	}
	return mismatch
}

// Verify extends the converted read over every candidate and returns
// the updated accumulator. The first index.HashLen bases are not
// compared again, because the hash already covers them.
func Verify(read []byte, candidates []genome.GenomePosition, g genome.Genome, best BestMatch, policy BoundsPolicy) BestMatch {
	readLength := len(read)
	for _, candidate := range candidates {
		chrom := &g[candidate.ChromID]
		if int(candidate.ChromPos)+readLength >= chrom.Len() {
			if policy == SkipOutOfBounds {
				continue
			}
			return best
		}
		mismatch := CountMismatches(read, chrom.Sequence[candidate.ChromPos:], index.HashLen, best.Mismatch)
		best = best.Update(candidate, mismatch)
	}
	return best
}

// MapConverted maps a read that is already in comparison form.
func MapConverted(read []byte, idx *index.Index, seedLength int, best BestMatch, policy BoundsPolicy) BestMatch {
	if len(read) < index.HashLen {
		return best
	}
	candidates, ok := idx.Candidates(sequence.SeedHash(read))
	if !ok {
		return best
	}
	region := NarrowRegion(read, candidates, idx.Genome, seedLength)
	if region.Empty() {
		return best
	}
	return Verify(read, candidates[region.First:region.Second+1], idx.Genome, best, policy)
}

// MapSingleEnd converts a read and maps it against the index, starting
// from the given accumulator. Reads shorter than index.HashLen, reads
// whose seed is not indexed, and reads without viable candidates leave
// the accumulator unchanged.
func MapSingleEnd(read []byte, idx *index.Index, seedLength int, best BestMatch, policy BoundsPolicy) BestMatch {
	if len(read) < index.HashLen {
		return best
	}
	converted := sequence.AppendConverted(make([]byte, 0, len(read)), read)
	return MapConverted(converted, idx, seedLength, best, policy)
}
