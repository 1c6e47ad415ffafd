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
	"bytes"
	"math/rand"
	"testing"

	"github.com/exascience/elmap/fasta"
	"github.com/exascience/elmap/genome"
	"github.com/exascience/elmap/sequence"
)

func randomGenome(lengths ...int) genome.Genome {
	contigs := make([]fasta.Contig, len(lengths))
	for i, length := range lengths {
		seq := make([]byte, length)
		for j := range seq {
			seq[j] = "ACGT"[rand.Intn(4)]
		}
		contigs[i] = fasta.Contig{Name: string(rune('a' + i)), Seq: seq}
	}
	return genome.FromContigs(contigs)
}

func TestSeedPositionOrder(t *testing.T) {
	var seen [MaxSeedLength]bool
	for step, offset := range SeedPositionOrder {
		if offset < 0 || offset >= MaxSeedLength || seen[offset] {
			t.Fatalf("SeedPositionOrder is not a permutation at step %v", step)
		}
		seen[offset] = true
		if step < HashLen && offset != step {
			t.Errorf("hashed step %v maps to offset %v", step, offset)
		}
	}
}

func TestClampSeedLength(t *testing.T) {
	if ClampSeedLength(100, 150) != MaxSeedLength {
		t.Error("ClampSeedLength did not limit to MaxSeedLength")
	}
	if ClampSeedLength(20, 150) != 20 {
		t.Error("ClampSeedLength changed a valid seed length")
	}
	if l := ClampSeedLength(MaxSeedLength, 14); l != HashLen+1 {
		t.Errorf("ClampSeedLength for a read of 14 bases returned %v", l)
	}
	for readLength := HashLen; readLength <= MaxSeedLength; readLength++ {
		l := ClampSeedLength(MaxSeedLength, readLength)
		for step := 0; step < l; step++ {
			if SeedPositionOrder[step] >= readLength {
				t.Errorf("ClampSeedLength(%v) allows offset %v", readLength, SeedPositionOrder[step])
			}
		}
	}
}

func TestSeedOrder(t *testing.T) {
	g := genome.FromContigs([]fasta.Contig{
		{Name: "chr1", Seq: bytes.Repeat([]byte("A"), 40)},
		{Name: "chr2", Seq: append(bytes.Repeat([]byte("A"), 16), bytes.Repeat([]byte("G"), 24)...)},
	})
	order := SeedOrder{Genome: g}
	a := genome.GenomePosition{ChromID: 0, ChromPos: 0}
	b := genome.GenomePosition{ChromID: 1, ChromPos: 0}
	c := genome.GenomePosition{ChromID: 0, ChromPos: 1}
	if !order.Less(a, b) || order.Less(b, a) {
		t.Error("SeedOrder does not compare seed bases")
	}
	if order.Compare(a, a) != 0 {
		t.Error("SeedOrder is not reflexive")
	}
	if !order.Less(a, c) {
		t.Error("SeedOrder does not break ties by position")
	}
	positions := []genome.GenomePosition{b, c, a}
	order.Sort(positions)
	if !order.IsSorted(positions) || positions[0] != a || positions[1] != c || positions[2] != b {
		t.Errorf("SeedOrder.Sort returned %v", positions)
	}
	if order.IsSorted([]genome.GenomePosition{b, a}) {
		t.Error("IsSorted accepted an unsorted slice")
	}
}

func TestBuild(t *testing.T) {
	g := randomGenome(500, 10, 300)
	idx := Build(g, BuildOptions{})
	order := idx.Order()
	expected := 0
	for chromID := range g {
		if n := g[chromID].Len() - MaxSeedLength + 1; n > 0 {
			expected += n
		}
	}
	if stats := idx.Stats(); stats.Positions != expected {
		t.Errorf("index holds %v positions, expected %v", stats.Positions, expected)
	}
	for hash, positions := range idx.Table {
		if !order.IsSorted(positions) {
			t.Errorf("bucket %v is not sorted", hash)
		}
		for _, pos := range positions {
			chrom := &g[pos.ChromID]
			if int(pos.ChromPos)+MaxSeedLength > chrom.Len() {
				t.Errorf("position %v has no room for a full seed", pos)
			}
			if sequence.SeedHash(chrom.Sequence[pos.ChromPos:]) != hash {
				t.Errorf("position %v is in the wrong bucket", pos)
			}
		}
	}
	if _, ok := idx.Candidates(sequence.SeedHash(g[0].Sequence[7:])); !ok {
		t.Error("indexed seed not found")
	}
}

func TestBuildSkipAmbiguousSeeds(t *testing.T) {
	seq := append(bytes.Repeat([]byte("A"), 50), 'N')
	seq = append(seq, bytes.Repeat([]byte("G"), 49)...)
	g := genome.FromContigs([]fasta.Contig{{Name: "chr1", Seq: seq}})
	all := Build(g, BuildOptions{})
	skipped := Build(g, BuildOptions{SkipAmbiguousSeeds: true})
	if all.Stats().Positions != 100-MaxSeedLength+1 {
		t.Errorf("unexpected number of positions %v", all.Stats().Positions)
	}
	if skipped.Stats().Positions != all.Stats().Positions-HashLen {
		t.Errorf("SkipAmbiguousSeeds kept %v positions", skipped.Stats().Positions)
	}
	for _, positions := range skipped.Table {
		for _, pos := range positions {
			if pos.ChromPos > 50-HashLen && pos.ChromPos <= 50 {
				t.Errorf("position %v overlaps the ambiguous base", pos)
			}
		}
	}
}

func TestBuildLargeBucket(t *testing.T) {
	g := genome.FromContigs([]fasta.Contig{{Name: "chrA", Seq: bytes.Repeat([]byte("A"), parallelSortGrainSize+1000)}})
	idx := Build(g, BuildOptions{})
	positions := idx.Table[0]
	if len(positions) != parallelSortGrainSize+1000-MaxSeedLength+1 {
		t.Fatalf("bucket holds %v positions", len(positions))
	}
	for i, pos := range positions {
		if int(pos.ChromPos) != i {
			t.Fatalf("large bucket not sorted at %v: %v", i, pos)
		}
	}
}

func TestBuildEmpty(t *testing.T) {
	idx := Build(nil, BuildOptions{})
	if len(idx.Table) != 0 {
		t.Error("empty genome produced a non-empty index")
	}
}

func BenchmarkBuild(b *testing.B) {
	g := randomGenome(100000, 50000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Build(g, BuildOptions{})
	}
}
