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
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"

	"github.com/exascience/elmap/genome"
	"github.com/exascience/elmap/index"
	"github.com/exascience/elmap/mapping"
	"github.com/exascience/elmap/reads"
)

// MapHelp is the help string for this command.
const MapHelp = "map parameters:\n" +
	"elmap map reference reads-file sam-output-file\n" +
	"[--seed-length nr]\n" +
	"[--bounds-policy [abort | skip]]\n" +
	"[--forward-only]\n" +
	"[--skip-ambiguous-seeds]\n" +
	"[--nr-of-threads nr]\n" +
	"[--timed]\n" +
	"[--profile file]\n" +
	"[--log-path path]\n"

// Map implements the elmap map command.
func Map() error {
	var (
		seedLength         int
		boundsPolicyString string
		forwardOnly        bool
		skipAmbiguousSeeds bool
		nrOfThreads        int
		timed              bool
		profile            string
		logPath            string
	)

	var flags flag.FlagSet

	flags.IntVar(&seedLength, "seed-length", index.MaxSeedLength, "number of seed bases used to narrow candidate positions")
	flags.StringVar(&boundsPolicyString, "bounds-policy", "abort", "handling of candidates too close to a chromosome end, one of abort or skip")
	flags.BoolVar(&forwardOnly, "forward-only", false, "do not map the reverse complement of reads")
	flags.BoolVar(&skipAmbiguousSeeds, "skip-ambiguous-seeds", false, "do not index seeds that overlap ambiguous reference bases")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a runtime profile to the specified file(s)")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	files := parseCommandLine(&flags, 3, MapHelp)
	reference, input, output := files[0], files[1], files[2]

	setLogOutput(logPath)

	// sanity checks

	sanityChecksFailed := !checkFiles([]string{reference, input}, []string{output})

	if seedLength < index.SeedWidth || seedLength > index.MaxSeedLength {
		sanityChecksFailed = true
		log.Printf("Error: Invalid seed-length %v, must be between %v and %v.\n", seedLength, index.SeedWidth, index.MaxSeedLength)
	}
	boundsPolicy, err := mapping.ParseBoundsPolicy(boundsPolicyString)
	if err != nil {
		sanityChecksFailed = true
		log.Println("Error:", err)
	}
	if nrOfThreads < 0 {
		sanityChecksFailed = true
		log.Println("Error: Invalid nr-of-threads: ", nrOfThreads)
	}

	if sanityChecksFailed {
		usageExit(MapHelp, 1)
	}

	// building the command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " map ", reference, " ", input, " ", output)
	fmt.Fprint(&command, " --seed-length ", seedLength)
	fmt.Fprint(&command, " --bounds-policy ", boundsPolicy)
	if forwardOnly {
		fmt.Fprint(&command, " --forward-only")
	}
	if skipAmbiguousSeeds {
		fmt.Fprint(&command, " --skip-ambiguous-seeds")
	}
	if nrOfThreads > 0 {
		runtime.GOMAXPROCS(nrOfThreads)
		fmt.Fprint(&command, " --nr-of-threads ", nrOfThreads)
	}
	if timed {
		fmt.Fprint(&command, " --timed")
	}
	if profile != "" {
		fmt.Fprint(&command, " --profile ", profile)
	}
	if logPath != "" {
		fmt.Fprint(&command, " --log-path ", logPath)
	}

	log.Println("Executing command:\n", command.String())

	options := mapping.Options{
		SeedLength:   seedLength,
		BoundsPolicy: boundsPolicy,
		ForwardOnly:  forwardOnly,
	}

	var (
		g       genome.Genome
		release func() error
		idx     *index.Index
	)

	phases := phaseOptions{timed: timed, profile: profile}

	if err := phases.runPhase(1, "Loading reference.", func() (err error) {
		g, release, err = loadReference(reference)
		return err
	}); err != nil {
		return err
	}
	defer func() {
		if err := release(); err != nil {
			log.Println("Error while releasing reference:", err)
		}
	}()
	log.Printf("Reference has %v chromosomes with %v bases in total.\n", len(g), g.TotalLength())

	if err := phases.runPhase(2, "Building index.", func() error {
		idx = index.Build(g, index.BuildOptions{SkipAmbiguousSeeds: skipAmbiguousSeeds})
		return nil
	}); err != nil {
		return err
	}
	indexStats := idx.Stats()
	log.Printf("Index has %v buckets with %v positions, the largest bucket has %v positions.\n",
		indexStats.Buckets, indexStats.Positions, indexStats.LargestBucket)

	var stats reads.Stats
	if err := phases.runPhase(3, "Mapping reads.", func() (err error) {
		stats, err = reads.MapFile(input, output, idx, options, reads.NewHeader(strings.Join(os.Args, " ")))
		return err
	}); err != nil {
		return err
	}
	log.Printf("Mapped %v reads: %v unique, %v multiple, %v unmapped (%v too short).\n",
		stats.Reads, stats.Unique, stats.Multi, stats.Unmapped, stats.TooShort)
	return nil
}
