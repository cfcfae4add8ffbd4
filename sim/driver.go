// Package sim drives a solver frame by frame: a time code of 0 (re)builds the
// particle system and solver from configuration, any other time code steps
// the running solver once.
package sim

import (
	"errors"
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/sphfluid/config"
	"github.com/pthm-cable/sphfluid/sph"
	"github.com/pthm-cable/sphfluid/telemetry"
)

// ErrNotInitialized is returned when a frame other than time code 0 arrives
// before any successful setup.
var ErrNotInitialized = errors.New("sim: no solver, a time code 0 frame must come first")

// State is the driver lifecycle state.
type State uint8

const (
	Uninitialized State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "uninitialized"
}

// Options configures telemetry around the driver. The zero value runs
// without any.
type Options struct {
	LogStats      bool
	OutputDir     string
	SnapshotEvery int // frames between snapshots, 0 = off

	// StatsCallback, when set, receives every flushed window.
	StatsCallback func(telemetry.WindowStats)
}

// Result is the output of one frame.
type Result struct {
	TimeCode  int
	Positions []r3.Vec
	Report    sph.Report
	Stepped   bool
}

// Driver owns at most one solver at a time.
type Driver struct {
	cfg  *config.Config
	opts Options

	state   State
	solver  sph.Solver
	frames  int
	simTime float64

	perf          *telemetry.PerfCollector
	collector     *telemetry.Collector
	outputManager *telemetry.OutputManager
}

// New creates an uninitialized driver. Output files are opened immediately
// when opts.OutputDir is set.
func New(cfg *config.Config, opts Options) (*Driver, error) {
	d := &Driver{
		cfg:       cfg,
		opts:      opts,
		perf:      telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow),
		collector: telemetry.NewCollector(cfg.Telemetry.StatsWindow),
	}

	om, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		return nil, err
	}
	d.outputManager = om
	if err := om.WriteConfig(cfg); err != nil {
		om.Close()
		return nil, fmt.Errorf("writing config snapshot: %w", err)
	}
	return d, nil
}

// State returns the lifecycle state.
func (d *Driver) State() State { return d.state }

// Solver returns the running solver, or nil when uninitialized.
func (d *Driver) Solver() sph.Solver { return d.solver }

// Frames returns the number of steps taken since the last setup.
func (d *Driver) Frames() int { return d.frames }

// SimTime returns the simulated seconds since the last setup.
func (d *Driver) SimTime() float64 { return d.simTime }

// Frame processes one frame. Time code 0 discards any running solver and
// builds a new one without stepping; on a configuration error the driver is
// left uninitialized. Other time codes advance the running solver by one
// step.
func (d *Driver) Frame(timeCode int) (Result, error) {
	if timeCode == 0 {
		return d.setup()
	}
	if d.state != Running {
		return Result{}, ErrNotInitialized
	}

	d.perf.StartStep()
	rep := d.solver.Step()
	d.perf.StartPhase(telemetry.PhaseOutput)
	d.frames++
	d.simTime += d.solver.DT()
	d.collector.RecordStep(rep)
	d.flushTelemetry()
	d.perf.EndStep()

	return Result{
		TimeCode:  timeCode,
		Positions: d.solver.Positions(),
		Report:    rep,
		Stepped:   true,
	}, nil
}

func (d *Driver) setup() (Result, error) {
	d.discard()

	s, err := SetupFromConfig(d.cfg)
	if err != nil {
		return Result{}, fmt.Errorf("setup: %w", err)
	}
	solver, err := sph.New(s.Method, s.Fluid, s.BoxMin, s.BoxMax, s.Params)
	if err != nil {
		return Result{}, fmt.Errorf("setup: %w", err)
	}
	solver.SetPhaseTimer(d.perf)

	d.solver = solver
	d.state = Running
	d.collector.Reset(0)

	ps := solver.System()
	slog.Info("solver ready",
		"method", s.Method.String(),
		"fluid", ps.NumFluid(),
		"boundary", ps.NumBoundary(),
		"h", ps.H(),
		"mass", ps.Mass(),
		"cells", ps.NumCells(),
		"dt", solver.DT(),
		"gravity", solver.Gravity(),
	)

	d.maybeSnapshot()
	return Result{Positions: solver.Positions(), Report: sph.Report{Method: s.Method, Converged: true, Finite: true}}, nil
}

// discard drops the running solver, if any.
func (d *Driver) discard() {
	if d.solver != nil {
		d.solver.Close()
	}
	d.solver = nil
	d.state = Uninitialized
	d.frames = 0
	d.simTime = 0
}

// flushTelemetry flushes the stats window when it is due and writes any
// scheduled snapshot.
func (d *Driver) flushTelemetry() {
	d.maybeSnapshot()

	if !d.collector.ShouldFlush(d.frames) {
		return
	}

	stats := d.collector.Flush(d.frames, d.simTime, d.solver.System())
	perfStats := d.perf.Stats()

	if d.opts.StatsCallback != nil {
		d.opts.StatsCallback(stats)
	}

	if d.opts.LogStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	if d.outputManager != nil {
		if err := d.outputManager.WriteFrames(stats); err != nil {
			slog.Error("failed to write frames", "error", err)
		}
		if err := d.outputManager.WritePerf(perfStats, stats.WindowEndFrame); err != nil {
			slog.Error("failed to write perf", "error", err)
		}
	}
}

func (d *Driver) maybeSnapshot() {
	every := d.opts.SnapshotEvery
	if d.outputManager == nil || every <= 0 || d.frames%every != 0 {
		return
	}
	snap := telemetry.NewSnapshot(d.frames, d.simTime, d.solver.Method().String(), d.solver.System())
	path, err := d.outputManager.WriteSnapshot(snap)
	if err != nil {
		slog.Error("failed to write snapshot", "frame", d.frames, "error", err)
		return
	}
	slog.Debug("snapshot saved", "path", path)
}

// Close releases the solver and closes output files.
func (d *Driver) Close() error {
	d.discard()
	return d.outputManager.Close()
}
