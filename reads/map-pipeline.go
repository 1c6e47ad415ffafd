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
	"bufio"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/exascience/pargo/pipeline"

	"github.com/exascience/elmap/index"
	"github.com/exascience/elmap/internal"
	"github.com/exascience/elmap/mapping"
)

// Stats counts the outcome of a mapping run.
type Stats struct {
	Reads, Unique, Multi, Unmapped, TooShort int64
}

func (stats *Stats) count(read Read, best mapping.BestMatch) {
	stats.Reads++
	switch {
	case len(read.Seq) < index.HashLen:
		stats.TooShort++
		stats.Unmapped++
	case !best.Found():
		stats.Unmapped++
	case best.Unique():
		stats.Unique++
	default:
		stats.Multi++
	}
}

func (stats *Stats) add(other Stats) {
	atomic.AddInt64(&stats.Reads, other.Reads)
	atomic.AddInt64(&stats.Unique, other.Unique)
	atomic.AddInt64(&stats.Multi, other.Multi)
	atomic.AddInt64(&stats.Unmapped, other.Unmapped)
	atomic.AddInt64(&stats.TooShort, other.TooShort)
}

// Map maps all reads from the given Reader and writes one SAM record
// per read to output, in input order. The reads are mapped in parallel
// batches; the index is shared by all batches.
func Map(reader *Reader, output io.Writer, idx *index.Index, options mapping.Options) (stats Stats, err error) {
	var p pipeline.Pipeline
	p.Source(pipeline.NewFunc(-1, func(size int) (interface{}, int, error) {
		batch, err := reader.ReadBatch(size)
		if err != nil {
			return nil, 0, err
		}
		if len(batch) == 0 {
			return nil, 0, nil
		}
		return batch, len(batch), nil
	}))
	p.SetVariableBatchSize(1024, 4096)
	p.Add(
		pipeline.LimitedPar(0, pipeline.Receive(func(_ int, data interface{}) interface{} {
			batch := data.([]Read)
			mapper := mapping.NewMapper(idx, options)
			buf := internal.ReserveByteBuffer()
			var local Stats
			for _, read := range batch {
				best := mapper.Map(read.Seq)
				local.count(read, best)
				buf = AppendSAMRecord(buf, read, best, idx.Genome)
			}
			stats.add(local)
			return buf
		})),
		pipeline.StrictOrd(pipeline.Receive(func(_ int, data interface{}) interface{} {
			buf := data.([]byte)
			if _, err := output.Write(buf); err != nil {
				p.SetErr(err)
			}
			internal.ReleaseByteBuffer(buf)
			return nil
		})),
	)
	p.Run()
	return stats, p.Err()
}

// MapFile maps the reads of a FASTQ or FASTA file and writes a SAM file
// with a header describing the index genome.
func MapFile(input, output string, idx *index.Index, options mapping.Options, header Header) (stats Stats, err error) {
	reader, err := Open(input)
	if err != nil {
		return stats, err
	}
	defer func() {
		if nerr := reader.Close(); err == nil {
			err = nerr
		}
	}()
	file, err := os.Create(output)
	if err != nil {
		return stats, err
	}
	defer func() {
		if nerr := file.Close(); err == nil {
			err = nerr
		}
	}()
	out := bufio.NewWriterSize(file, 1<<20)
	if err = WriteSAMHeader(out, idx.Genome, header); err != nil {
		return stats, err
	}
	if stats, err = Map(reader, out, idx, options); err != nil {
		return stats, fmt.Errorf("%v, while mapping reads from %v", err, input)
	}
	return stats, out.Flush()
}
