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

// Package cmd implements the elmap commands.
package cmd

import (
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/exascience/elmap/internal"
	"github.com/exascience/elmap/utils"
)

// ProgramMessage is the first line printed when the elmap binary is
// called.
var ProgramMessage = fmt.Sprint(
	"\n", utils.ProgramName, " version ", utils.ProgramVersion,
	" compiled with ", runtime.Version(), " - see ", utils.ProgramURL, " for more information.\n",
)

// HelpMessage is printed to show the --help flag
const HelpMessage = "Print command details:\n" +
	"[--help]\n"

// usageExit prints the command help and terminates the process.
func usageExit(help string, code int) {
	fmt.Fprint(os.Stderr, help)
	os.Exit(code)
}

func isHelpFlag(s string) bool {
	switch strings.TrimLeft(s, "-") {
	case "h", "help":
		return strings.HasPrefix(s, "-")
	}
	return false
}

// commandArgs holds the positional file arguments of a command, that is
// os.Args after the command name and before the first flag.
type commandArgs struct {
	files []string
	flags []string
}

func splitArgs(args []string, nofFiles int) (result commandArgs, ok bool) {
	if len(args) < nofFiles {
		return result, false
	}
	return commandArgs{files: args[:nofFiles], flags: args[nofFiles:]}, true
}

// parseCommandLine parses os.Args for a command with the given number
// of positional file arguments. It exits on --help, on missing files,
// and on malformed flags.
func parseCommandLine(flags *flag.FlagSet, nofFiles int, help string) []string {
	args, ok := splitArgs(os.Args[2:], nofFiles)
	if !ok {
		log.Println("Incorrect number of parameters.")
		usageExit(help, 1)
	}
	for _, file := range args.files {
		if isHelpFlag(file) {
			usageExit(help, 0)
		}
		if strings.HasPrefix(file, "-") {
			log.Println("Filename(s) in command line missing.")
			usageExit(help, 1)
		}
	}
	flags.SetOutput(ioutil.Discard)
	if err := flags.Parse(args.flags); err == flag.ErrHelp {
		usageExit(help, 0)
	} else if err != nil {
		log.Println(err)
		usageExit(help, 1)
	}
	if flags.NArg() > 0 {
		log.Println("Cannot parse remaining parameters:", flags.Args())
		usageExit(help, 1)
	}
	return args.files
}

// fileProblem returns a description of why filename cannot be read
// (input) or written (output), or "" if it can.
func fileProblem(filename string, output bool) string {
	if filename == "" {
		return "missing filename"
	}
	_, err := os.Stat(filename)
	switch {
	case err == nil:
		return ""
	case os.IsPermission(err):
		return fmt.Sprintf("no permission to access %v", filename)
	case !os.IsNotExist(err):
		return fmt.Sprintf("%v when trying to access %v", err, filename)
	case !output:
		return fmt.Sprintf("%v does not exist", filename)
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0700); err != nil {
		return fmt.Sprintf("cannot create directory for %v: %v", filename, err)
	}
	if err := ioutil.WriteFile(filename, nil, 0666); err != nil {
		return fmt.Sprintf("cannot create %v: %v", filename, err)
	}
	_ = os.Remove(filename)
	return ""
}

// checkFiles logs a problem for each unusable file and reports whether
// all files are usable.
func checkFiles(inputs, outputs []string) bool {
	ok := true
	for _, files := range []struct {
		names  []string
		output bool
	}{{inputs, false}, {outputs, true}} {
		for _, filename := range files.names {
			if problem := fileProblem(filename, files.output); problem != "" {
				log.Println("Error:", problem)
				ok = false
			}
		}
	}
	return ok
}

// logFilename returns the path of the log file for a run started at t.
// Without a directory, logs go below $HOME.
func logFilename(dir string, t time.Time) string {
	if dir == "" {
		dir = os.Getenv("HOME")
	}
	name := utils.ProgramName + "-" + t.Format("2006-01-02-15-04-05.000000000-MST") + ".log"
	return filepath.Join(dir, "logs", utils.ProgramName, name)
}

// setLogOutput sends log output to a fresh log file and to the original
// stderr, and redirects stderr itself into the log file so that panics
// and runtime errors end up there as well.
func setLogOutput(dir string) {
	filename := logFilename(dir, time.Now())
	internal.MkdirAll(filepath.Dir(filename), 0700)
	logFile := internal.FileCreate(filename)
	internal.WriteString(logFile, ProgramMessage+"\n")

	stderrCopy, err := unix.Dup(int(os.Stderr.Fd()))
	if err != nil {
		log.Panic(err)
	}
	if err := unix.Dup2(int(logFile.Fd()), int(os.Stderr.Fd())); err != nil {
		log.Panic(err)
	}
	log.SetOutput(io.MultiWriter(logFile, os.NewFile(uintptr(stderrCopy), "/dev/stderr")))
	log.Println("Created log file at", filename)
	log.Println("Command line:", os.Args)
}

// phaseOptions control how the phases of a command are run.
type phaseOptions struct {
	timed   bool
	profile string
}

// runPhase runs one numbered phase of a command. With timing enabled it
// logs the phase name and its duration; with a profile prefix it writes
// a CPU profile named after the phase number. If profiling cannot
// start, the phase is not run and the error is returned.
func (options phaseOptions) runPhase(phase int, name string, f func() error) error {
	if options.profile != "" {
		file := internal.FileCreate(options.profile + strconv.Itoa(phase) + ".prof")
		defer internal.Close(file)
		if err := pprof.StartCPUProfile(file); err != nil {
			return fmt.Errorf("%v, while profiling phase %v", err, name)
		}
		defer pprof.StopCPUProfile()
	}
	if options.timed {
		log.Println(name)
		defer func(start time.Time) {
			log.Println("Elapsed time:", time.Since(start))
		}(time.Now())
	}
	return f()
}
