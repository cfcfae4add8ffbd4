package telemetry

import (
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/sphfluid/particles"
)

func testSystem(t *testing.T) *particles.System {
	t.Helper()
	ps, err := particles.New(
		[]r3.Vec{{X: 0.1, Y: 0.2, Z: 0.3}, {X: 0.4, Y: 0.5, Z: 0.6}},
		[]r3.Vec{{X: -0.05}},
		particles.DefaultParams(),
	)
	if err != nil {
		t.Fatalf("particles.New: %v", err)
	}
	if err := ps.InitNeighborSearch(r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1}); err != nil {
		t.Fatalf("InitNeighborSearch: %v", err)
	}
	ps.Particle(1).V = r3.Vec{Z: -1.5}
	ps.Particle(1).Pressure = 42
	return ps
}

func TestSnapshotSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	ps := testSystem(t)

	snapshot := NewSnapshot(250, 2.5, "wcsph", ps)
	if len(snapshot.Particles) != 2 {
		t.Fatalf("snapshot has %d particles, want fluid only (2)", len(snapshot.Particles))
	}
	if snapshot.NumBoundary != 1 {
		t.Errorf("num boundary = %d, want 1", snapshot.NumBoundary)
	}

	path, err := SaveSnapshot(snapshot, tmpDir)
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if filepath.Base(path) != "snapshot_250.json" {
		t.Errorf("unexpected snapshot name %s", filepath.Base(path))
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("Snapshot file not created at %s", path)
	}

	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}

	if loaded.Frame != 250 || loaded.SimTime != 2.5 || loaded.Method != "wcsph" {
		t.Errorf("header mismatch: frame=%d time=%v method=%s", loaded.Frame, loaded.SimTime, loaded.Method)
	}
	if loaded.BoxMax != [3]float64{1, 1, 1} {
		t.Errorf("box max = %v", loaded.BoxMax)
	}

	p := loaded.Particles[1]
	if p.Index != 1 || p.V != [3]float64{0, 0, -1.5} || p.Pressure != 42 {
		t.Errorf("particle mismatch: %+v", p)
	}

	pos := loaded.Positions()
	if pos[0] != (r3.Vec{X: 0.1, Y: 0.2, Z: 0.3}) {
		t.Errorf("position = %v", pos[0])
	}
}

func TestLoadSnapshotRejectsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot_1.json")
	if err := os.WriteFile(path, []byte(`{"version": 99}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSnapshot(path); err == nil {
		t.Error("expected version error")
	}
}

func TestLoadSnapshotMissing(t *testing.T) {
	if _, err := LoadSnapshot(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
