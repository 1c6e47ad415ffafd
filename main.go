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

// elMap is a high-performance bisulfite-aware short-read mapper.
//
// Reads are converted (C to T) and mapped against a converted reference
// with a seed hash table, binary search narrowing over the seed, and
// mismatch counting over the rest of each read. Results are written as
// SAM records.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/exascience/elmap/cmd"
)

func printHelp() {
	fmt.Fprintln(os.Stderr, "Available commands: index, map")
	fmt.Fprint(os.Stderr, "\n", cmd.FastaToElgenomeHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.MapHelp)
}

func main() {
	fmt.Fprintln(os.Stderr, cmd.ProgramMessage)
	if len(os.Args) < 2 {
		log.Println("Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, cmd.HelpMessage, "\n")
		printHelp()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "index":
		err = cmd.FastaToElgenome()
	case "map":
		err = cmd.Map()
	case "help", "-help", "--help", "-h", "--h":
		printHelp()
	default:
		log.Println("Unknown command", os.Args[1])
		printHelp()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}
}
