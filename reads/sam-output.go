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

package reads

import (
	"io"
	"strconv"

	"github.com/google/uuid"

	"github.com/exascience/elmap/genome"
	"github.com/exascience/elmap/mapping"
	"github.com/exascience/elmap/sequence"
	"github.com/exascience/elmap/utils"
)

// SAM flags set by the mapper.
const (
	Unmapped = 0x4
	Reversed = 0x10
)

// Header carries the run information written into the SAM header.
type Header struct {
	RunID       uuid.UUID
	CommandLine string
}

// NewHeader returns a Header with a fresh random run id.
func NewHeader(commandLine string) Header {
	return Header{RunID: uuid.New(), CommandLine: commandLine}
}

// AppendSAMHeader appends the SAM header lines for the given genome.
func AppendSAMHeader(buf []byte, g genome.Genome, header Header) []byte {
	buf = append(buf, "@HD\tVN:1.6\tSO:unsorted\n"...)
	for i := range g {
		buf = append(buf, "@SQ\tSN:"...)
		buf = append(buf, g[i].Name...)
		buf = append(buf, "\tLN:"...)
		buf = strconv.AppendInt(buf, int64(g[i].Len()), 10)
		buf = append(buf, '\n')
	}
	buf = append(buf, "@PG\tID:"...)
	buf = append(buf, utils.ProgramName...)
	buf = append(buf, "\tPN:"...)
	buf = append(buf, utils.ProgramName...)
	buf = append(buf, "\tVN:"...)
	buf = append(buf, utils.ProgramVersion...)
	if header.CommandLine != "" {
		buf = append(buf, "\tCL:"...)
		buf = append(buf, header.CommandLine...)
	}
	buf = append(buf, '\n')
	buf = append(buf, "@CO\trun-id:"...)
	buf = append(buf, header.RunID.String()...)
	return append(buf, '\n')
}

// WriteSAMHeader writes the SAM header lines for the given genome.
func WriteSAMHeader(w io.Writer, g genome.Genome, header Header) error {
	_, err := w.Write(AppendSAMHeader(nil, g, header))
	return err
}

func appendReversed(buf, qual []byte) []byte {
	for i := len(qual) - 1; i >= 0; i-- {
		buf = append(buf, qual[i])
	}
	return buf
}

// AppendSAMRecord appends one SAM record for a read and its best match.
//
// Mapped reads get position, an all-match CIGAR, MAPQ 255, and two
// private tags: XM, the number of mismatches after bisulfite conversion
// beyond the hashed prefix, and XT, the number of equally good
// positions. NM is not written, because XM is not an edit distance to
// the unconverted reference. Reads that match better on the reverse
// strand are written reverse complemented.
func AppendSAMRecord(buf []byte, read Read, best mapping.BestMatch, g genome.Genome) []byte {
	buf = append(buf, read.Name...)
	buf = append(buf, '\t')
	if !best.Found() {
		buf = strconv.AppendInt(buf, Unmapped, 10)
		buf = append(buf, "\t*\t0\t0\t*\t*\t0\t0\t"...)
		if len(read.Seq) == 0 {
			buf = append(buf, '*')
		} else {
			buf = append(buf, read.Seq...)
		}
		buf = append(buf, '\t')
		if read.Qual == nil {
			buf = append(buf, '*')
		} else {
			buf = append(buf, read.Qual...)
		}
		return append(buf, '\n')
	}
	var flag int64
	if best.Reverse {
		flag |= Reversed
	}
	buf = strconv.AppendInt(buf, flag, 10)
	buf = append(buf, '\t')
	buf = append(buf, g[best.ChromID].Name...)
	buf = append(buf, '\t')
	buf = strconv.AppendInt(buf, int64(best.ChromPos)+1, 10)
	buf = append(buf, "\t255\t"...)
	buf = strconv.AppendInt(buf, int64(len(read.Seq)), 10)
	buf = append(buf, "M\t*\t0\t0\t"...)
	if best.Reverse {
		buf = sequence.AppendReverseComplement(buf, read.Seq)
	} else {
		buf = append(buf, read.Seq...)
	}
	buf = append(buf, '\t')
	switch {
	case read.Qual == nil:
		buf = append(buf, '*')
	case best.Reverse:
		buf = appendReversed(buf, read.Qual)
	default:
		buf = append(buf, read.Qual...)
	}
	buf = append(buf, "\tXM:i:"...)
	buf = strconv.AppendInt(buf, int64(best.Mismatch), 10)
	buf = append(buf, "\tXT:i:"...)
	buf = strconv.AppendInt(buf, int64(best.Times), 10)
	return append(buf, '\n')
}
