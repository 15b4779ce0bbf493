package main

import (
	"os"
	"path/filepath"

	"git.fiblab.net/sim/crowddynamics/config"
)

// CopiedInputs is the result of copying a run's input files into its
// output directory, per spec §6's "Persisted state": input files are
// copied verbatim into the output directory, and the config handed back
// to the loader has its filename references rewritten so the copies
// (not the originals) are what actually get read.
type CopiedInputs struct {
	OutputDir      string
	Config         config.Config
	TrajectoryPath string
}

// CopyInputsToOutput copies every non-empty input file named in cfg into
// outputDir and returns a Config pointing at the copies. The copy's
// basename always matches the original's, so a run directory is
// self-contained and reproducible from its own copies alone.
func CopyInputsToOutput(cfg config.Config, outputDir string) (*CopiedInputs, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, err
	}

	out := cfg
	paths := []*string{
		&out.GeometryFile, &out.EventFile, &out.ScheduleFile,
		&out.TrainFile, &out.GoalFile, &out.PopulationFile,
	}
	for _, p := range paths {
		if *p == "" {
			continue
		}
		dst, err := copyFileToDir(*p, outputDir)
		if err != nil {
			return nil, err
		}
		*p = dst
	}

	return &CopiedInputs{
		OutputDir:      outputDir,
		Config:         out,
		TrajectoryPath: filepath.Join(outputDir, "trajectory.csv"),
	}, nil
}

// copyFileToDir copies src into dir, preserving its basename, and
// returns the destination path.
func copyFileToDir(src, dir string) (string, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(dir, filepath.Base(src))
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", err
	}
	return dst, nil
}
