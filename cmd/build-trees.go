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
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/exascience/shmtrees/clones"
	"github.com/exascience/shmtrees/fasta"
	"github.com/exascience/shmtrees/internal"
	"github.com/exascience/shmtrees/shm"
)

// BuildTreesHelp is the help string for this command.
const BuildTreesHelp = "build-trees parameters:\n" +
	"shm-trees build-trees clones.tsv output-dir\n" +
	"--reference germline.fasta\n" +
	"[--max-distance-within-cluster nr]\n" +
	"[--hide-trees-less-than-size nr]\n" +
	"[--common-mutations-count-for-clustering nr]\n" +
	"[--count-of-nodes-to-probe nr]\n" +
	"[--ndn-score-multiplier nr]\n" +
	"[--penalty-for-reversed-mutations nr]\n" +
	"[--top-to-vote-on-ndn-size nr]\n" +
	"[--steps step,...]\n" +
	"[--threshold-for-combine-trees nr]\n" +
	"[--threshold-for-combine-by-ndn nr]\n" +
	"[--max-ndn-distance-for-free-clones nr]\n" +
	"[--threshold-for-free-clones nr]\n" +
	"[--productive-only]\n" +
	"[--nr-of-threads nr]\n" +
	"[--timed]\n" +
	"[--profile file]\n" +
	"[--log-path path]\n"

// BuildTrees implements the shm-trees build-trees command.
func BuildTrees() error {
	var (
		reference, profile, logPath string
		steps                       string
		productiveOnly, timed       bool
		nrOfThreads                 int
	)
	parameters := shm.DefaultParameters()

	var flags flag.FlagSet
	flags.StringVar(&reference, "reference", "", "germline V and J genes in FASTA format")
	flags.Float64Var(&parameters.MaxDistanceWithinCluster, "max-distance-within-cluster", parameters.MaxDistanceWithinCluster, "maximum NDN distance between clones of a tree")
	flags.IntVar(&parameters.HideTreesLessThanSize, "hide-trees-less-than-size", parameters.HideTreesLessThanSize, "drop trees with fewer clones")
	flags.IntVar(&parameters.CommonMutationsCountForClustering, "common-mutations-count-for-clustering", parameters.CommonMutationsCountForClustering, "V and J mutations that clones of a tree must share")
	flags.IntVar(&parameters.CountOfNodesToProbe, "count-of-nodes-to-probe", parameters.CountOfNodesToProbe, "nearest nodes considered when adding a clone")
	flags.Float64Var(&parameters.NDNScoreMultiplier, "ndn-score-multiplier", parameters.NDNScoreMultiplier, "weight of NDN mutations in distances")
	flags.Float64Var(&parameters.PenaltyForReversedMutations, "penalty-for-reversed-mutations", parameters.PenaltyForReversedMutations, "penalty for every reverted mutation")
	flags.IntVar(&parameters.TopToVoteOnNDNSize, "top-to-vote-on-ndn-size", parameters.TopToVoteOnNDNSize, "least mutated clones that determine the NDN size of a root")
	flags.StringVar(&steps, "steps", shm.FormatSteps(parameters.Steps), "steps that extend the initial trees, in order")
	flags.Float64Var(&parameters.ThresholdForCombineTrees, "threshold-for-combine-trees", parameters.ThresholdForCombineTrees, "maximum distance between the common ancestors of combined trees")
	flags.Float64Var(&parameters.ThresholdForCombineByNDN, "threshold-for-combine-by-ndn", parameters.ThresholdForCombineByNDN, "maximum NDN distance for attaching lightly mutated clones")
	flags.Float64Var(&parameters.MaxNDNDistanceForFreeClones, "max-ndn-distance-for-free-clones", parameters.MaxNDNDistanceForFreeClones, "maximum NDN distance between a mutated clone and its parent")
	flags.Float64Var(&parameters.ThresholdForFreeClones, "threshold-for-free-clones", parameters.ThresholdForFreeClones, "maximum relative distance added by a mutated clone")
	flags.BoolVar(&productiveOnly, "productive-only", false, "ignore non-productive clones")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a runtime profile to the specified file(s)")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 4, BuildTreesHelp)

	input := getFilename(os.Args[2], BuildTreesHelp)
	output := getFilename(os.Args[3], BuildTreesHelp)

	setLogOutput(logPath)

	fullInput, err := internal.FullPathname(input)
	if err != nil {
		return err
	}
	fullOutput, err := internal.FullPathname(output)
	if err != nil {
		return err
	}
	fullReference, err := internal.FullPathname(reference)
	if err != nil {
		return err
	}

	// sanity checks

	parsedSteps, stepsErr := shm.ParseSteps(steps)
	if stepsErr == nil {
		parameters.Steps = parsedSteps
	}

	checks := []bool{
		checkInput("", input),
		checkOutput("", filepath.Join(output, "nodes.csv")),
		checkInput("--reference", reference),
		profile == "" || checkOutput("--profile", profile),
		checkValue("--max-distance-within-cluster", parameters.MaxDistanceWithinCluster > 0, parameters.MaxDistanceWithinCluster),
		checkValue("--common-mutations-count-for-clustering", parameters.CommonMutationsCountForClustering >= 0, parameters.CommonMutationsCountForClustering),
		checkValue("--count-of-nodes-to-probe", parameters.CountOfNodesToProbe >= 1, parameters.CountOfNodesToProbe),
		checkValue("--ndn-score-multiplier", parameters.NDNScoreMultiplier >= 0, parameters.NDNScoreMultiplier),
		checkValue("--penalty-for-reversed-mutations", parameters.PenaltyForReversedMutations >= 0, parameters.PenaltyForReversedMutations),
		checkValue("--top-to-vote-on-ndn-size", parameters.TopToVoteOnNDNSize >= 1, parameters.TopToVoteOnNDNSize),
		checkValue("--steps", stepsErr == nil, steps),
		checkValue("--threshold-for-combine-trees", parameters.ThresholdForCombineTrees >= 0, parameters.ThresholdForCombineTrees),
		checkValue("--threshold-for-combine-by-ndn", parameters.ThresholdForCombineByNDN >= 0, parameters.ThresholdForCombineByNDN),
		checkValue("--max-ndn-distance-for-free-clones", parameters.MaxNDNDistanceForFreeClones >= 0, parameters.MaxNDNDistanceForFreeClones),
		checkValue("--threshold-for-free-clones", parameters.ThresholdForFreeClones >= 0, parameters.ThresholdForFreeClones),
		checkValue("--nr-of-threads", nrOfThreads >= 0, nrOfThreads),
	}
	sanityChecksFailed := false
	for _, ok := range checks {
		sanityChecksFailed = sanityChecksFailed || !ok
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, BuildTreesHelp)
		os.Exit(1)
	}

	// building the command string

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " build-trees ", fullInput, " ", fullOutput)
	fmt.Fprint(&command, " --reference ", fullReference)
	fmt.Fprint(&command, " --max-distance-within-cluster ", parameters.MaxDistanceWithinCluster)
	fmt.Fprint(&command, " --hide-trees-less-than-size ", parameters.HideTreesLessThanSize)
	fmt.Fprint(&command, " --common-mutations-count-for-clustering ", parameters.CommonMutationsCountForClustering)
	fmt.Fprint(&command, " --count-of-nodes-to-probe ", parameters.CountOfNodesToProbe)
	fmt.Fprint(&command, " --ndn-score-multiplier ", parameters.NDNScoreMultiplier)
	fmt.Fprint(&command, " --penalty-for-reversed-mutations ", parameters.PenaltyForReversedMutations)
	fmt.Fprint(&command, " --top-to-vote-on-ndn-size ", parameters.TopToVoteOnNDNSize)
	fmt.Fprint(&command, " --steps ", shm.FormatSteps(parameters.Steps))
	fmt.Fprint(&command, " --threshold-for-combine-trees ", parameters.ThresholdForCombineTrees)
	fmt.Fprint(&command, " --threshold-for-combine-by-ndn ", parameters.ThresholdForCombineByNDN)
	fmt.Fprint(&command, " --max-ndn-distance-for-free-clones ", parameters.MaxNDNDistanceForFreeClones)
	fmt.Fprint(&command, " --threshold-for-free-clones ", parameters.ThresholdForFreeClones)
	if productiveOnly {
		fmt.Fprint(&command, " --productive-only")
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

	// executing command

	log.Println("Executing command:\n", command.String())

	var (
		lib    *fasta.Library
		cs     []*clones.Clone
		result []*shm.CloneTree
	)

	timedRun(timed, profile, "Reading germline genes.", 1, func() {
		lib, err = fasta.ParseFasta(reference)
	})
	if err != nil {
		return err
	}

	timedRun(timed, profile, "Reading clones.", 2, func() {
		cs, err = clones.ParseTableFile(input, lib)
	})
	if err != nil {
		return err
	}
	if productiveOnly {
		cs = clones.FilterProductive(cs)
	}
	log.Printf("Read %v clones and %v germline genes.\n", len(cs), lib.Len())

	timedRun(timed, profile, "Building trees.", 3, func() {
		result = shm.ProcessClusters(cs, parameters)
	})
	log.Printf("Built %v trees.\n", len(result))

	timedRun(timed, profile, "Writing trees.", 4, func() {
		err = shm.NewClusterProcessor(parameters).WriteTrees(output, result)
	})
	return err
}
