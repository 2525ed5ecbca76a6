// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command resume locates the latest checkpoint for a run and prints the
// point a resumed simulation would start from. Exits non-zero on
// MetadataNotFound/RunIdMismatch/EmptyBatchFile, per §7's "user-visible
// failure is a non-zero exit ... for resume failures at startup" rule.
package main

import (
	"fmt"
	"os"

	"github.com/evochora/telemetry/internal/resume"
	"github.com/evochora/telemetry/pkg/config"
	"github.com/evochora/telemetry/pkg/storage"
)

func main() {
	cfg, err := config.ParseResumeConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if cfg.RunID == "" {
		fmt.Fprintln(os.Stderr, "resume: -run_id is required")
		os.Exit(2)
	}

	store := storage.NewFSObjectStore(cfg.ObjectDir, storage.NewPathBuilder(nil))
	loader := resume.NewSnapshotLoader(storage.NewMetadataStore(store), store)

	checkpoint, err := loader.Load(cfg.RunID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resume: %v\n", err)
		os.Exit(1)
	}

	restorer := resume.NewSimulationRestorer()
	result, err := restorer.Restore(checkpoint)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resume: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("run_id=%s resume_from_tick=%d organisms=%d cells=%d\n",
		result.RunID, result.ResumeFromTick, len(result.Simulation.Organisms), result.Simulation.Environment.Len())
}
