package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/pthm-cable/sphfluid/config"
	"github.com/pthm-cable/sphfluid/sim"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	frames := flag.Int("frames", 500, "Number of frames to simulate after setup")
	method := flag.String("method", "", "Solver method: wcsph or iisph (empty = use config)")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs, config and snapshots")
	snapshotEvery := flag.Int("snapshot-every", -1, "Frames between particle snapshots (-1 = use config, 0 = off)")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()
	if *method != "" {
		cfg.Solver.Method = *method
		if err := cfg.Validate(); err != nil {
			slog.Error("invalid method", "error", err)
			os.Exit(1)
		}
	}

	opts := sim.Options{
		LogStats:      *logStats,
		OutputDir:     *outputDir,
		SnapshotEvery: cfg.Telemetry.SnapshotEvery,
	}
	if *snapshotEvery >= 0 {
		opts.SnapshotEvery = *snapshotEvery
	}

	d, err := sim.New(cfg, opts)
	if err != nil {
		slog.Error("failed to create driver", "error", err)
		os.Exit(1)
	}

	code := run(d, *frames)
	if err := d.Close(); err != nil {
		slog.Error("failed to close output", "error", err)
		code = 1
	}
	os.Exit(code)
}

// run performs the setup frame and then the requested number of steps. It
// stops early once positions stop being finite.
func run(d *sim.Driver, frames int) int {
	if _, err := d.Frame(0); err != nil {
		slog.Error("setup failed", "error", err)
		return 1
	}

	slog.Info("starting simulation", "frames", frames)

	var notConverged int
	for f := 1; f <= frames; f++ {
		res, err := d.Frame(f)
		if err != nil {
			slog.Error("frame failed", "frame", f, "error", err)
			return 1
		}
		if !res.Report.Converged {
			notConverged++
		}
		if !res.Report.Finite {
			slog.Error("simulation diverged", "frame", f, "dt", d.Solver().DT())
			return 1
		}
	}

	slog.Info("simulation finished",
		"frames", d.Frames(),
		"sim_time", d.SimTime(),
		"not_converged", notConverged,
	)
	return 0
}
