// shm-trees: lineage tree reconstruction for immune-receptor clonotypes.
// Copyright (c) 2026 imec vzw.

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
// <https://github.com/exascience/shmtrees/blob/master/LICENSE.txt>.

package cmd

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/exascience/shmtrees/internal"
	"github.com/exascience/shmtrees/utils"
)

// ProgramMessage is the first line printed when the shm-trees binary
// is called.
var ProgramMessage string

func init() {
	ProgramMessage = fmt.Sprint(
		"\n", utils.ProgramName, " version ", utils.ProgramVersion,
		" compiled with ", runtime.Version(), " ", internal.PedanticMessage,
		"- see ", utils.ProgramURL, " for more information.\n",
	)
}

// HelpMessage is printed to show the --help flag
const HelpMessage = "Print command details:\n" +
	"[--help]\n"

func getFilename(s, help string) string {
	switch s {
	case "-h", "--h", "-help", "--help":
		fmt.Fprint(os.Stderr, help)
		os.Exit(0)
	default:
		if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "--") {
			log.Println("Filename(s) in command line missing.")
			fmt.Fprint(os.Stderr, help)
			os.Exit(1)
		}
	}
	return s
}

func parseFlags(flags flag.FlagSet, requiredArgs int, help string) {
	if len(os.Args) < requiredArgs {
		fmt.Fprintln(os.Stderr, "Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
	flags.SetOutput(io.Discard)
	if err := flags.Parse(os.Args[requiredArgs:]); err != nil {
		x := 0
		if err != flag.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			x = 1
		}
		fmt.Fprint(os.Stderr, help)
		os.Exit(x)
	}
	if flags.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Cannot parse remaining parameters:", flags.Args())
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}
}

// logCheck reports a failed sanity check, mentioning the command line
// parameter when there is one.
func logCheck(parameter, format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	if parameter == "" {
		log.Printf("Error: %v.\n", msg)
		return
	}
	log.Printf("Error: %v for command line parameter %v.\n", msg, parameter)
}

func checkFilename(parameter, filename string) bool {
	switch {
	case filename == "":
		logCheck(parameter, "Missing filename")
		return false
	case filename[0] == '-':
		logCheck(parameter, "Missing filename before %v", filename)
		return false
	}
	return true
}

// checkInput verifies that an input file exists and can be read.
func checkInput(parameter, filename string) bool {
	if !checkFilename(parameter, filename) {
		return false
	}
	_, err := os.Stat(filename)
	switch {
	case err == nil:
		return true
	case os.IsNotExist(err):
		logCheck(parameter, "File %v does not exist", filename)
	case os.IsPermission(err):
		logCheck(parameter, "No permission to read file %v", filename)
	default:
		logCheck(parameter, "%v when trying to access file %v", err, filename)
	}
	return false
}

// checkOutput verifies that an output file can be created, creating its
// directory if necessary. Existing files are overwritten later on.
func checkOutput(parameter, filename string) bool {
	if !checkFilename(parameter, filename) {
		return false
	}
	if _, err := os.Stat(filename); err == nil {
		return true
	}
	err := os.MkdirAll(filepath.Dir(filename), 0700)
	if err == nil {
		err = os.WriteFile(filename, nil, 0666)
	}
	switch {
	case err == nil:
		_ = os.Remove(filename)
		return true
	case os.IsPermission(err):
		logCheck(parameter, "No permission to create file %v", filename)
	default:
		logCheck(parameter, "%v when trying to create file %v", err, filename)
	}
	return false
}

// checkValue reports an out of range parameter value.
func checkValue(parameter string, valid bool, value interface{}) bool {
	if !valid {
		logCheck(parameter, "Invalid value %v", value)
	}
	return valid
}

const logTimeLayout = "2006-01-02-15-04-05.000000000-MST"

// setLogOutput sends the log, and everything written to stderr, both
// to the original stderr and to a fresh file under
// path/logs/shm-trees, or under $HOME when path is empty.
func setLogOutput(path string) {
	if path == "" {
		path = os.Getenv("HOME")
	}
	fullPath := filepath.Join(path, "logs", utils.ProgramName,
		utils.ProgramName+"-"+time.Now().Format(logTimeLayout)+".log")
	internal.MkdirAll(filepath.Dir(fullPath), 0700)
	f := internal.FileCreate(fullPath)
	fmt.Fprintln(f, ProgramMessage)

	stderr, err := unix.Dup(2)
	if err != nil {
		log.Panic(err)
	}
	if err := unix.Dup2(int(f.Fd()), 2); err != nil {
		log.Panic(err)
	}
	log.SetOutput(io.MultiWriter(f, os.NewFile(uintptr(stderr), "/dev/stderr")))
	log.Println("Created log file at", fullPath)
	log.Println("Command line:", os.Args)
}

// timedRun runs one phase of a command, optionally logging its
// runtime and writing a CPU profile to profile<phase>.prof.
func timedRun(timed bool, profile, msg string, phase int, f func()) {
	if profile != "" {
		file := internal.FileCreate(fmt.Sprintf("%v%d.prof", profile, phase))
		defer internal.Close(file)
		if err := pprof.StartCPUProfile(file); err != nil {
			log.Panic(err)
		}
		defer pprof.StopCPUProfile()
	}
	if timed {
		log.Println(msg)
		defer func(start time.Time) {
			log.Println("Elapsed time:", time.Since(start))
		}(time.Now())
	}
	f()
}
