package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/sphfluid/particles"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// Snapshot holds the fluid state of one frame.
type Snapshot struct {
	Version int     `json:"version"`
	Frame   int     `json:"frame"`
	SimTime float64 `json:"sim_time"`
	Method  string  `json:"method"`

	Radius   float64    `json:"radius"`
	Density0 float64    `json:"density0"`
	Mass     float64    `json:"mass"`
	BoxMin   [3]float64 `json:"box_min"`
	BoxMax   [3]float64 `json:"box_max"`

	NumBoundary int             `json:"num_boundary"`
	Particles   []ParticleState `json:"particles"`
}

// ParticleState holds one fluid particle.
type ParticleState struct {
	Index    int        `json:"index"`
	X        [3]float64 `json:"x"`
	V        [3]float64 `json:"v"`
	Density  float64    `json:"density"`
	Pressure float64    `json:"pressure"`
}

// NewSnapshot captures the fluid particles of ps.
func NewSnapshot(frame int, simTime float64, method string, ps *particles.System) *Snapshot {
	s := &Snapshot{
		Version:     SnapshotVersion,
		Frame:       frame,
		SimTime:     simTime,
		Method:      method,
		Radius:      ps.Radius(),
		Density0:    ps.Density0(),
		Mass:        ps.Mass(),
		BoxMin:      vecArray(ps.BoxMin()),
		BoxMax:      vecArray(ps.BoxMax()),
		NumBoundary: ps.NumBoundary(),
		Particles:   make([]ParticleState, ps.NumFluid()),
	}
	for i, p := range ps.Particles()[:ps.NumFluid()] {
		s.Particles[i] = ParticleState{
			Index:    p.Index,
			X:        vecArray(p.X),
			V:        vecArray(p.V),
			Density:  p.Density,
			Pressure: p.Pressure,
		}
	}
	return s
}

func vecArray(v r3.Vec) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

// Positions returns the particle positions as vectors.
func (s *Snapshot) Positions() []r3.Vec {
	out := make([]r3.Vec, len(s.Particles))
	for i, p := range s.Particles {
		out[i] = r3.Vec{X: p.X[0], Y: p.X[1], Z: p.X[2]}
	}
	return out
}

// SaveSnapshot writes a snapshot to disk.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("snapshot_%d.json", snapshot.Frame))

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	return path, nil
}

// LoadSnapshot reads a snapshot from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snapshot.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snapshot.Version)
	}

	return &snapshot, nil
}
