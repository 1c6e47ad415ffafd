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

package cmd

import (
	"flag"
	"fmt"
	"log"

	"github.com/exascience/elmap/fasta"
	"github.com/exascience/elmap/genome"
)

// FastaToElgenomeHelp is the help string for this command.
const FastaToElgenomeHelp = "index parameters:\n" +
	"elmap index fasta-file elgenome-file\n" +
	"[--log-path path]\n"

// loadReference returns the genome of a FASTA or an .elgenome file.
// The returned function releases the resources held by the genome.
func loadReference(filename string) (genome.Genome, func() error, error) {
	isElgenome, err := genome.IsElgenomeFile(filename)
	if err != nil {
		return nil, nil, err
	}
	if isElgenome {
		mapped, err := genome.OpenElgenome(filename)
		if err != nil {
			return nil, nil, err
		}
		return mapped.Genome, mapped.Close, nil
	}
	contigs, err := fasta.ParseFastaFile(filename)
	if err != nil {
		return nil, nil, err
	}
	if len(contigs) == 0 {
		return nil, nil, fmt.Errorf("reference %v contains no sequences", filename)
	}
	return genome.FromContigs(contigs), func() error { return nil }, nil
}

// FastaToElgenome implements the elmap index command.
func FastaToElgenome() error {
	var logPath string

	var flags flag.FlagSet
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")
	files := parseCommandLine(&flags, 2, FastaToElgenomeHelp)
	input, output := files[0], files[1]

	setLogOutput(logPath)

	if !checkFiles([]string{input}, []string{output}) {
		usageExit(FastaToElgenomeHelp, 1)
	}

	contigs, err := fasta.ParseFastaFile(input)
	if err != nil {
		return err
	}
	g := genome.FromContigs(contigs)
	log.Printf("Converted %v chromosomes with %v bases in total.\n", len(g), g.TotalLength())
	return genome.ToElgenome(g, output)
}
