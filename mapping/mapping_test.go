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
	"math/rand"
	"strings"
	"testing"

	"github.com/exascience/elmap/fasta"
	"github.com/exascience/elmap/genome"
	"github.com/exascience/elmap/index"
	"github.com/exascience/elmap/sequence"
)

func buildIndex(seqs ...string) *index.Index {
	contigs := make([]fasta.Contig, len(seqs))
	for i, seq := range seqs {
		contigs[i] = fasta.Contig{Name: "chr" + string(rune('1'+i)), Seq: []byte(seq)}
	}
	return index.Build(genome.FromContigs(contigs), index.BuildOptions{})
}

func randomBases(rnd *rand.Rand, length int, alphabet string) []byte {
	seq := make([]byte, length)
	for i := range seq {
		seq[i] = alphabet[rnd.Intn(len(alphabet))]
	}
	return seq
}

func mutate(rnd *rand.Rand, read []byte, n int, alphabet string) []byte {
	result := append([]byte(nil), read...)
	for i := 0; i < n; i++ {
		pos := index.HashLen + rnd.Intn(len(result)-index.HashLen)
		result[pos] = alphabet[rnd.Intn(len(alphabet))]
	}
	return result
}

var (
	prefix  = strings.Repeat("A", index.HashLen)
	padding = strings.Repeat("G", 10)
)

// three chromosomes with the same seed, whose extensions have 2, 1, and 1
// mismatches against tieRead
func tieIndex() *index.Index {
	return buildIndex(
		prefix+"GGGTGGGGGGGGGGTGGGGG"+padding,
		prefix+"GGGGGGGGGTGGGGGGGGGG"+padding,
		prefix+"GGGGGGGGGGGGGGGGGGTG"+padding,
	)
}

var tieRead = []byte(prefix + strings.Repeat("G", 20))

func TestBestMatchTies(t *testing.T) {
	idx := tieIndex()
	best := MapSingleEnd(tieRead, idx, index.HashLen, NoMatch(), AbortOnOutOfBounds)
	if best.Mismatch != 1 || best.Times != 2 {
		t.Fatalf("expected 1 mismatch at 2 positions, got %+v", best)
	}
	if best.ChromID != 1 && best.ChromID != 2 || best.ChromPos != 0 {
		t.Errorf("best match points to %v:%v", best.ChromID, best.ChromPos)
	}
	if !best.Found() || best.Unique() {
		t.Error("Found/Unique inconsistent with Times")
	}
}

func TestBestMatchUpdate(t *testing.T) {
	pos := genome.GenomePosition{ChromID: 3, ChromPos: 7}
	best := NoMatch().Update(pos, 4)
	if best != (BestMatch{ChromID: 3, ChromPos: 7, Times: 1, Mismatch: 4}) {
		t.Errorf("Update 1 failed: %+v", best)
	}
	best = best.Update(genome.GenomePosition{ChromID: 1, ChromPos: 1}, 4)
	if best.Times != 2 || best.ChromID != 3 {
		t.Errorf("Update 2 failed: %+v", best)
	}
	best = best.Update(genome.GenomePosition{ChromID: 1, ChromPos: 1}, 5)
	if best.Times != 2 || best.Mismatch != 4 {
		t.Errorf("Update 3 failed: %+v", best)
	}
	best = best.Update(genome.GenomePosition{ChromID: 2, ChromPos: 9}, 0)
	if best != (BestMatch{ChromID: 2, ChromPos: 9, Times: 1, Mismatch: 0}) {
		t.Errorf("Update 4 failed: %+v", best)
	}
}

func TestShortReadRejection(t *testing.T) {
	idx := tieIndex()
	start := BestMatch{ChromID: 5, ChromPos: 6, Times: 3, Mismatch: 7}
	if best := MapSingleEnd(tieRead[:index.HashLen-1], idx, index.MaxSeedLength, start, AbortOnOutOfBounds); best != start {
		t.Errorf("short read changed the accumulator: %+v", best)
	}
	if best := MapRead(tieRead[:index.HashLen-1], idx, DefaultOptions()); best.Found() {
		t.Errorf("short read was mapped: %+v", best)
	}
}

func TestNoIndexEntry(t *testing.T) {
	idx := tieIndex()
	read := []byte(strings.Repeat("G", 40))
	if best := MapSingleEnd(read, idx, index.MaxSeedLength, NoMatch(), AbortOnOutOfBounds); best != NoMatch() {
		t.Errorf("read without indexed seed was mapped: %+v", best)
	}
}

func TestNarrowRegionEmpty(t *testing.T) {
	if region := NarrowRegion(tieRead, nil, nil, index.MaxSeedLength); region != (Region{First: 1, Second: 0}) || !region.Empty() || region.Len() != 0 {
		t.Errorf("NarrowRegion on no candidates returned %v", region)
	}
}

func TestBoundsPolicy(t *testing.T) {
	read := []byte(prefix + strings.Repeat("G", 28))
	idx := buildIndex(
		prefix+strings.Repeat("G", 23),
		prefix+strings.Repeat("G", 38),
	)
	if best := MapSingleEnd(read, idx, index.HashLen, NoMatch(), AbortOnOutOfBounds); best.Found() {
		t.Errorf("AbortOnOutOfBounds verified past an out-of-bounds candidate: %+v", best)
	}
	best := MapSingleEnd(read, idx, index.HashLen, NoMatch(), SkipOutOfBounds)
	if best != (BestMatch{ChromID: 1, ChromPos: 0, Times: 1, Mismatch: 0}) {
		t.Errorf("SkipOutOfBounds returned %+v", best)
	}
	for _, s := range []string{"abort", "skip"} {
		policy, err := ParseBoundsPolicy(s)
		if err != nil || policy.String() != s {
			t.Errorf("ParseBoundsPolicy(%v) returned %v, %v", s, policy, err)
		}
	}
	if _, err := ParseBoundsPolicy("ignore"); err == nil {
		t.Error("invalid bounds policy accepted")
	}
}

func lowComplexityIndex(rnd *rand.Rand) (*index.Index, []byte) {
	ref := randomBases(rnd, 200000, "AG")
	return buildIndex(string(ref)), ref
}

func TestNarrowRegionMonotonic(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	idx, ref := lowComplexityIndex(rnd)
	for i := 0; i < 200; i++ {
		start := rnd.Intn(len(ref) - 100)
		read := mutate(rnd, ref[start:start+50], rnd.Intn(4), "AG")
		candidates, ok := idx.Candidates(sequence.SeedHash(read))
		if !ok {
			t.Fatal("seed copied from the reference is not indexed")
		}
		previous := Region{First: 0, Second: len(candidates) - 1}
		for seedLength := index.SeedWidth; seedLength <= index.MaxSeedLength; seedLength++ {
			region := NarrowRegion(read, candidates, idx.Genome, seedLength)
			if region.Empty() {
				t.Fatalf("region became empty at seed length %v", seedLength)
			}
			if region.First < previous.First || region.Second > previous.Second {
				t.Fatalf("region %v at seed length %v is not within %v", region, seedLength, previous)
			}
			previous = region
		}
	}
}

func TestNarrowRegionExact(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))
	idx, ref := lowComplexityIndex(rnd)
	for i := 0; i < 200; i++ {
		start := rnd.Intn(len(ref) - 100)
		read := mutate(rnd, ref[start:start+40], rnd.Intn(3), "AG")
		seedLength := index.SeedWidth + rnd.Intn(index.MaxSeedLength-index.SeedWidth+1)
		candidates, _ := idx.Candidates(sequence.SeedHash(read))
		first, last := -1, -1
		for j, candidate := range candidates {
			matches := true
			for step := index.SeedWidth; step < seedLength; step++ {
				offset := index.SeedPositionOrder[step]
				if idx.Genome.Base(candidate, offset) != read[offset] {
					matches = false
					break
				}
			}
			if matches {
				if first < 0 {
					first = j
				} else if j != last+1 {
					t.Fatal("matching candidates are not contiguous")
				}
				last = j
			}
		}
		if first < 0 {
			continue
		}
		if region := NarrowRegion(read, candidates, idx.Genome, seedLength); region != (Region{First: first, Second: last}) {
			t.Fatalf("NarrowRegion returned %v, expected [%v, %v]", region, first, last)
		}
	}
}

// naiveVerify counts all mismatches of every candidate without pruning.
func naiveVerify(read []byte, candidates []genome.GenomePosition, g genome.Genome, best BestMatch, policy BoundsPolicy) BestMatch {
	for _, candidate := range candidates {
		chrom := &g[candidate.ChromID]
		if int(candidate.ChromPos)+len(read) >= chrom.Len() {
			if policy == SkipOutOfBounds {
				continue
			}
			break
		}
		mismatch := 0
		for i := index.HashLen; i < len(read); i++ {
			if chrom.Sequence[int(candidate.ChromPos)+i] != read[i] {
				mismatch++
			}
		}
		if mismatch < best.Mismatch {
			best = BestMatch{ChromID: candidate.ChromID, ChromPos: candidate.ChromPos, Times: 1, Mismatch: mismatch}
		} else if mismatch == best.Mismatch {
			best.Times++
		}
	}
	return best
}

func TestEarlyExitEquivalence(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	ref := randomBases(rnd, 100000, "AGT")
	idx := buildIndex(string(ref[:60000]), string(ref[60000:]))
	for i := 0; i < 500; i++ {
		start := rnd.Intn(len(ref) - 200)
		read := mutate(rnd, ref[start:start+20+rnd.Intn(120)], rnd.Intn(10), "AGT")
		candidates, ok := idx.Candidates(sequence.SeedHash(read))
		if !ok {
			continue
		}
		seedLength := index.SeedWidth + rnd.Intn(index.MaxSeedLength-index.SeedWidth+1)
		region := NarrowRegion(read, candidates, idx.Genome, seedLength)
		if region.Empty() {
			continue
		}
		start0 := NoMatch()
		if rnd.Intn(2) == 0 {
			start0 = BestMatch{ChromID: 0, ChromPos: 0, Times: 1, Mismatch: rnd.Intn(8)}
		}
		policy := BoundsPolicy(rnd.Intn(2))
		regionCandidates := candidates[region.First : region.Second+1]
		pruned := Verify(read, regionCandidates, idx.Genome, start0, policy)
		naive := naiveVerify(read, regionCandidates, idx.Genome, start0, policy)
		if pruned != naive {
			t.Fatalf("pruned %+v differs from naive %+v", pruned, naive)
		}
		if full := MapSingleEnd(read, idx, seedLength, start0, policy); full != pruned {
			t.Fatalf("MapSingleEnd %+v differs from Verify %+v", full, pruned)
		}
	}
}

func TestMapperStrands(t *testing.T) {
	rnd := rand.New(rand.NewSource(4))
	ref := randomBases(rnd, 20000, "ACGT")
	idx := buildIndex(string(ref))
	mapper := NewMapper(idx, DefaultOptions())
	for i := 0; i < 50; i++ {
		start := rnd.Intn(len(ref) - 200)
		read := append([]byte(nil), ref[start:start+100]...)
		forward := mapper.Map(read)
		if forward.Mismatch != 0 || forward.ChromPos != int32(start) || forward.Reverse {
			t.Fatalf("forward read from %v mapped to %+v", start, forward)
		}
		reverse := mapper.Map(sequence.ReverseComplement(read))
		if reverse.Mismatch != 0 || reverse.ChromPos != int32(start) || !reverse.Reverse {
			t.Fatalf("reverse read from %v mapped to %+v", start, reverse)
		}
	}
	options := DefaultOptions()
	options.ForwardOnly = true
	read := sequence.ReverseComplement(ref[5000:5100])
	if best := MapRead(read, idx, options); best.Found() && best.Mismatch == 0 && best.ChromPos == 5000 {
		t.Error("ForwardOnly mapped the reverse complement")
	}
}

func TestMapperPalindrome(t *testing.T) {
	rnd := rand.New(rand.NewSource(8))
	ref := randomBases(rnd, 20000, "ACGT")
	half := randomBases(rnd, 36, "ACGT")
	read := append(append([]byte(nil), half...), sequence.ReverseComplement(half)...)
	copy(ref[2000:], read)
	idx := buildIndex(string(ref))
	best := MapRead(read, idx, DefaultOptions())
	if best.ChromPos != 2000 || best.Mismatch != 0 || best.Times != 2 || best.Reverse {
		t.Errorf("palindromic read mapped to %+v, expected both strands at 2000", best)
	}
	options := DefaultOptions()
	options.ForwardOnly = true
	if best := MapRead(read, idx, options); best.Times != 1 {
		t.Errorf("palindromic read mapped forward only to %+v", best)
	}
}

func TestMapperReverseStrictlyBetter(t *testing.T) {
	rnd := rand.New(rand.NewSource(9))
	ref := randomBases(rnd, 20000, "ACGT")
	read := randomBases(rnd, 100, "ACGT")
	copy(ref[3000:], sequence.ReverseComplement(read))
	worse := append([]byte(nil), read...)
	for _, i := range []int{40, 60} {
		if worse[i] == 'A' {
			worse[i] = 'G'
		} else {
			worse[i] = 'A'
		}
	}
	copy(ref[8000:], worse)
	idx := buildIndex(string(ref))

	options := DefaultOptions()
	options.ForwardOnly = true
	if forward := MapRead(read, idx, options); forward.ChromPos != 8000 || forward.Mismatch != 2 || forward.Times != 1 {
		t.Fatalf("forward strand mapped to %+v, expected 2 mismatches at 8000", forward)
	}
	best := MapRead(read, idx, DefaultOptions())
	if best.ChromPos != 3000 || best.Mismatch != 0 || best.Times != 1 || !best.Reverse {
		t.Errorf("read mapped to %+v, expected reverse strand at 3000", best)
	}
}

func BenchmarkMapper(b *testing.B) {
	rnd := rand.New(rand.NewSource(5))
	ref := randomBases(rnd, 1000000, "ACGT")
	idx := buildIndex(string(ref))
	reads := make([][]byte, 1000)
	for i := range reads {
		start := rnd.Intn(len(ref) - 200)
		reads[i] = mutate(rnd, ref[start:start+100], 3, "ACGT")
	}
	mapper := NewMapper(idx, DefaultOptions())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mapper.Map(reads[i%len(reads)])
	}
}
