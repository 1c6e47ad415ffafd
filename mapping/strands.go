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
	"github.com/exascience/elmap/index"
	"github.com/exascience/elmap/sequence"
)

// Options are the settings of a mapping run.
type Options struct {
	SeedLength   int
	BoundsPolicy BoundsPolicy
	ForwardOnly  bool
}

// DefaultOptions uses the longest seed, aborts buckets on out-of-bounds
// candidates, and maps both strands.
func DefaultOptions() Options {
	return Options{SeedLength: index.MaxSeedLength, BoundsPolicy: AbortOnOutOfBounds}
}

// A Mapper maps reads on both strands, reusing its conversion buffers
// between reads. A Mapper must not be used by more than one goroutine
// at the same time; create one per goroutine instead. The Index can be
// shared.
type Mapper struct {
	Index   *index.Index
	Options Options

	converted, reversed []byte
}

// NewMapper returns a Mapper for the given index and options.
func NewMapper(idx *index.Index, options Options) *Mapper {
	return &Mapper{Index: idx, Options: options}
}

// Map maps the forward strand of read, and then its reverse complement
// unless ForwardOnly is set. The reverse attempt continues from the
// forward result, so equally good positions on both strands are counted
// together, and Reverse is set when the reverse complement matches
// strictly better.
func (m *Mapper) Map(read []byte) BestMatch {
	best := NoMatch()
	if len(read) < index.HashLen {
		return best
	}
	m.converted = sequence.AppendConverted(m.converted[:0], read)
	best = MapConverted(m.converted, m.Index, m.Options.SeedLength, best, m.Options.BoundsPolicy)
	if m.Options.ForwardOnly {
		return best
	}
	m.reversed = sequence.AppendReverseComplement(m.reversed[:0], read)
	m.converted = sequence.AppendConverted(m.converted[:0], m.reversed)
	reverse := MapConverted(m.converted, m.Index, m.Options.SeedLength, best, m.Options.BoundsPolicy)
	if reverse.Mismatch < best.Mismatch {
		reverse.Reverse = true
	}
	return reverse
}

// MapRead maps a single read on both strands with a fresh Mapper.
func MapRead(read []byte, idx *index.Index, options Options) BestMatch {
	return NewMapper(idx, options).Map(read)
}
