package sph

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/sphfluid/particles"
)

var unitBox = r3.Vec{X: 1, Y: 1, Z: 1}

// damBlock is a 4x4x4 block filling the unit box with a lattice spacing of
// one particle diameter.
func damBlock(t testing.TB) ([]r3.Vec, Params) {
	t.Helper()
	fluid, err := particles.SampleInBox(r3.Vec{}, unitBox, [3]int{4, 4, 4}, false)
	require.NoError(t, err)

	p := DefaultParams()
	p.Particles.Radius = 1.0 / 6
	p.Stiffness = 1000
	return fluid, p
}

// column is a 4x4x4 block at the bottom of a box twice as tall as it is wide.
func column(t testing.TB) ([]r3.Vec, r3.Vec, Params) {
	t.Helper()
	fluid, err := particles.SampleInBox(r3.Vec{}, r3.Vec{X: 0.15, Y: 0.15, Z: 0.15}, [3]int{4, 4, 4}, false)
	require.NoError(t, err)

	p := DefaultParams()
	p.Particles.Radius = 0.025
	return fluid, r3.Vec{X: 0.15, Y: 0.15, Z: 0.3}, p
}

func TestInteriorDensityMatchesRestDensity(t *testing.T) {
	fluid, err := particles.SampleInBox(r3.Vec{}, r3.Vec{X: 0.4, Y: 0.4, Z: 0.4}, [3]int{9, 9, 9}, false)
	require.NoError(t, err)

	p := DefaultParams()
	p.Boundary = false
	s, err := NewWCSPH(fluid, r3.Vec{}, r3.Vec{X: 0.4, Y: 0.4, Z: 0.4}, p)
	require.NoError(t, err)
	defer s.Close()

	s.neighborSearch()
	s.computeDensities()

	rho0 := s.System().Density0()
	ps := s.System().Particles()
	for ix := 1; ix < 8; ix++ {
		for iy := 1; iy < 8; iy++ {
			for iz := 1; iz < 8; iz++ {
				i := (ix*9+iy)*9 + iz
				assert.InEpsilon(t, rho0, ps[i].Density, 0.01, "particle %d", i)
			}
		}
	}

	// A corner particle is missing most of its neighborhood.
	assert.Less(t, ps[0].Density, 0.7*rho0)
}

func TestBoundaryShellCompletesNeighborhood(t *testing.T) {
	fluid, p := damBlock(t)
	s, err := NewWCSPH(fluid, r3.Vec{}, unitBox, p)
	require.NoError(t, err)
	defer s.Close()

	// 6^3 - 4^3 shell points around the 4^3 block.
	assert.Equal(t, 152, s.System().NumBoundary())

	rep := s.Step()
	rho0 := s.System().Density0()
	assert.InEpsilon(t, rho0, rep.MinDensity, 0.02)
	assert.InEpsilon(t, rho0, rep.MaxDensity, 0.02)
}

func TestWCSPHDamBlockStaysBounded(t *testing.T) {
	fluid, p := damBlock(t)
	s, err := NewWCSPH(fluid, r3.Vec{}, unitBox, p)
	require.NoError(t, err)
	defer s.Close()

	rho0 := s.System().Density0()
	var meanZ0 float64
	for _, x := range s.Positions() {
		meanZ0 += x.Z
	}

	var rep Report
	for step := 0; step < 100; step++ {
		rep = s.Step()
		require.True(t, rep.Finite, "step %d", step)
		require.GreaterOrEqual(t, rep.MinDensity, 0.5*rho0, "step %d", step)
		require.LessOrEqual(t, rep.MaxDensity, 2*rho0, "step %d", step)
		assert.Equal(t, MethodWCSPH, rep.Method)
		assert.Zero(t, rep.Iterations)
	}

	// Gravity compresses the bottom of the block.
	assert.Greater(t, rep.MaxDensity, 1.05*rho0)

	var meanZ float64
	for _, x := range s.Positions() {
		assert.True(t, x.X >= 0 && x.X <= 1, "x out of box: %v", x)
		assert.True(t, x.Y >= 0 && x.Y <= 1, "y out of box: %v", x)
		assert.True(t, x.Z >= 0 && x.Z <= 1, "z out of box: %v", x)
		meanZ += x.Z
	}
	assert.Less(t, meanZ, meanZ0)
}

func TestBoundaryParticlesNeverMove(t *testing.T) {
	for _, method := range []Method{MethodWCSPH, MethodIISPH} {
		t.Run(method.String(), func(t *testing.T) {
			fluid, p := damBlock(t)
			s, err := New(method, fluid, r3.Vec{}, unitBox, p)
			require.NoError(t, err)
			defer s.Close()

			ps := s.System()
			before := make([]r3.Vec, 0, ps.NumBoundary())
			for i := ps.NumFluid(); i < ps.Len(); i++ {
				before = append(before, ps.Particle(i).X)
			}

			for step := 0; step < 20; step++ {
				s.Step()
			}

			for k, i := 0, ps.NumFluid(); i < ps.Len(); k, i = k+1, i+1 {
				p := ps.Particle(i)
				assert.Equal(t, before[k], p.X)
				assert.Equal(t, r3.Vec{}, p.V)
			}
		})
	}
}

func TestIISPHConverges(t *testing.T) {
	fluid, boxMax, p := column(t)
	s, err := NewIISPH(fluid, r3.Vec{}, boxMax, p)
	require.NoError(t, err)
	defer s.Close()

	rho0 := s.System().Density0()
	for step := 0; step < 50; step++ {
		rep := s.Step()
		require.True(t, rep.Finite, "step %d", step)
		assert.Equal(t, MethodIISPH, rep.Method)
		assert.True(t, rep.Converged, "step %d: error %g after %d iterations", step, rep.DensityError, rep.Iterations)
		assert.GreaterOrEqual(t, rep.Iterations, minIterations)
		assert.LessOrEqual(t, rep.Iterations, p.MaxIterations)
		assert.Less(t, rep.DensityError, p.Tolerance)
		assert.Less(t, rep.MaxDensity, 1.2*rho0, "step %d", step)
	}
}

func TestIISPHIterationCapReportsNonConvergence(t *testing.T) {
	fluid, boxMax, p := column(t)
	p.MaxIterations = 1
	p.Tolerance = 1e-12
	s, err := NewIISPH(fluid, r3.Vec{}, boxMax, p)
	require.NoError(t, err)
	defer s.Close()

	var rep Report
	for step := 0; step < 10; step++ {
		rep = s.Step()
	}
	assert.True(t, rep.Finite)
	assert.Equal(t, 1, rep.Iterations)
	assert.False(t, rep.Converged)
}

func TestStepIsDeterministicAcrossWorkerCounts(t *testing.T) {
	for _, method := range []Method{MethodWCSPH, MethodIISPH} {
		t.Run(method.String(), func(t *testing.T) {
			run := func(workers int) []r3.Vec {
				fluid, boxMax, p := column(t)
				p.Workers = workers
				p.ParallelThreshold = 1
				s, err := New(method, fluid, r3.Vec{}, boxMax, p)
				require.NoError(t, err)
				defer s.Close()
				for step := 0; step < 10; step++ {
					s.Step()
				}
				return s.Positions()
			}

			serial := run(1)
			assert.Equal(t, serial, run(1))
			assert.Equal(t, serial, run(4))
		})
	}
}

func TestSim2DStaysInPlane(t *testing.T) {
	fluid, err := particles.SampleInBox(r3.Vec{}, r3.Vec{X: 0.5, Y: 0.5}, [3]int{6, 6, 1}, true)
	require.NoError(t, err)

	p := DefaultParams()
	p.Particles.Radius = 0.05
	p.Particles.Sim2D = true
	p.Gravity = r3.Vec{Y: -9.8, Z: -9.8}
	s, err := NewWCSPH(fluid, r3.Vec{}, r3.Vec{X: 1, Y: 1}, p)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, r3.Vec{Y: -9.8}, s.Gravity())

	for step := 0; step < 30; step++ {
		rep := s.Step()
		require.True(t, rep.Finite, "step %d", step)
	}
	for i, x := range s.Positions() {
		assert.Zero(t, x.Z, "particle %d", i)
		assert.Zero(t, s.Velocities()[i].Z, "particle %d", i)
	}
}

func TestSim2DProjectsOntoOnePlane(t *testing.T) {
	// Fluid sampled off the domain's z midpoint still meets the shell.
	fluid, err := particles.SampleInBox(r3.Vec{}, r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}, [3]int{6, 6, 0}, true)
	require.NoError(t, err)
	require.Equal(t, 0.25, fluid[0].Z)

	p := DefaultParams()
	p.Particles.Radius = 0.05
	p.Particles.Sim2D = true
	s, err := NewWCSPH(fluid, r3.Vec{}, r3.Vec{X: 1, Y: 1}, p)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 0.25, fluid[0].Z, "caller positions modified")
	ps := s.System()
	for i := 0; i < ps.Len(); i++ {
		assert.Zero(t, ps.Particle(i).X.Z, "particle %d", i)
	}

	s.Step()
	var boundaryLinks int
	for _, j := range ps.Particle(0).Neighbors {
		if ps.Particle(j).IsBoundary() {
			boundaryLinks++
		}
	}
	assert.Greater(t, boundaryLinks, 0)
}

func TestPlanarGravity(t *testing.T) {
	tests := []struct {
		name string
		g    r3.Vec
		want r3.Vec
	}{
		{"vertical maps to y", r3.Vec{Z: -9.8}, r3.Vec{Y: -9.8}},
		{"in-plane kept", r3.Vec{X: 1, Y: -9.8}, r3.Vec{X: 1, Y: -9.8}},
		{"z dropped when in-plane present", r3.Vec{Y: -9.8, Z: 3}, r3.Vec{Y: -9.8}},
		{"zero", r3.Vec{}, r3.Vec{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, planarGravity(tt.g))
		})
	}

	fluid, err := particles.SampleInBox(r3.Vec{}, r3.Vec{X: 0.5, Y: 0.5}, [3]int{6, 6, 1}, true)
	require.NoError(t, err)
	p := DefaultParams()
	p.Particles.Radius = 0.05
	p.Particles.Sim2D = true
	s, err := NewWCSPH(fluid, r3.Vec{}, r3.Vec{X: 1, Y: 1}, p)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, r3.Vec{Y: -9.8}, s.Gravity())
	s.SetGravity(r3.Vec{Z: -2})
	assert.Equal(t, r3.Vec{Y: -2}, s.Gravity())
}

func TestSphereObstacleKeepsFluidOut(t *testing.T) {
	fluid, err := particles.SampleInBox(
		r3.Vec{X: 0.35, Y: 0.35, Z: 0.6}, r3.Vec{X: 0.65, Y: 0.65, Z: 0.7}, [3]int{7, 7, 3}, false)
	require.NoError(t, err)

	sphere := &SphereObstacle{Center: r3.Vec{X: 0.5, Y: 0.5, Z: 0.3}, Radius: 0.2, ScaleFactor: 1}
	p := DefaultParams()
	p.Sphere = sphere
	s, err := NewWCSPH(fluid, r3.Vec{}, unitBox, p)
	require.NoError(t, err)
	defer s.Close()

	for step := 0; step < 50; step++ {
		rep := s.Step()
		require.True(t, rep.Finite, "step %d", step)
		for i, x := range s.Positions() {
			d := r3.Norm(r3.Sub(x, sphere.Center))
			require.GreaterOrEqual(t, d, sphere.Radius-1e-9, "step %d particle %d", step, i)
		}
	}
}

func TestSphereObstacleResolve(t *testing.T) {
	tests := []struct {
		name  string
		o     SphereObstacle
		p     particles.Particle
		hit   bool
		wantX r3.Vec
		wantV r3.Vec
	}{
		{
			name:  "inward velocity removed",
			o:     SphereObstacle{Radius: 1},
			p:     particles.Particle{X: r3.Vec{Z: 0.5}, V: r3.Vec{X: 1, Z: -2}},
			hit:   true,
			wantX: r3.Vec{Z: 1},
			wantV: r3.Vec{X: 1},
		},
		{
			name:  "inward velocity reflected",
			o:     SphereObstacle{Radius: 1, Restitution: 1},
			p:     particles.Particle{X: r3.Vec{Z: 0.5}, V: r3.Vec{X: 1, Z: -2}},
			hit:   true,
			wantX: r3.Vec{Z: 1},
			wantV: r3.Vec{X: 1, Z: 2},
		},
		{
			name:  "outward velocity kept",
			o:     SphereObstacle{Radius: 1},
			p:     particles.Particle{X: r3.Vec{Z: 0.5}, V: r3.Vec{Z: 3}},
			hit:   true,
			wantX: r3.Vec{Z: 1},
			wantV: r3.Vec{Z: 3},
		},
		{
			name:  "scale factor grows contact radius",
			o:     SphereObstacle{Radius: 1, ScaleFactor: 2},
			p:     particles.Particle{X: r3.Vec{Z: 1.5}},
			hit:   true,
			wantX: r3.Vec{Z: 2},
		},
		{
			name:  "dead centre",
			o:     SphereObstacle{Center: r3.Vec{X: 2}, Radius: 1},
			p:     particles.Particle{X: r3.Vec{X: 2}},
			hit:   true,
			wantX: r3.Vec{X: 2, Z: 1},
		},
		{
			name:  "outside",
			o:     SphereObstacle{Radius: 1},
			p:     particles.Particle{X: r3.Vec{Y: 1.5}, V: r3.Vec{Y: -1}},
			wantX: r3.Vec{Y: 1.5},
			wantV: r3.Vec{Y: -1},
		},
		{
			name:  "boundary particle untouched",
			o:     SphereObstacle{Radius: 1},
			p:     particles.Particle{X: r3.Vec{Z: 0.5}, Type: particles.Boundary},
			wantX: r3.Vec{Z: 0.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.p
			assert.Equal(t, tt.hit, tt.o.resolve(&p))
			assert.Equal(t, tt.wantX, p.X)
			assert.Equal(t, tt.wantV, p.V)
		})
	}
}

func TestResolveWalls(t *testing.T) {
	b := &Base{boxMin: r3.Vec{}, boxMax: unitBox, wallRestitution: 0.5, dim: 3}

	p := particles.Particle{X: r3.Vec{X: -0.1, Y: 0.5, Z: 1.2}, V: r3.Vec{X: -2, Y: 1, Z: 4}}
	b.resolveWalls(&p)
	assert.Equal(t, r3.Vec{X: 0, Y: 0.5, Z: 1}, p.X)
	assert.Equal(t, r3.Vec{X: 1, Y: 1, Z: -2}, p.V)

	// Already moving back inside: position clamped, velocity kept.
	p = particles.Particle{X: r3.Vec{X: 1.1, Y: 0.5, Z: 0.5}, V: r3.Vec{X: -1}}
	b.resolveWalls(&p)
	assert.Equal(t, r3.Vec{X: 1, Y: 0.5, Z: 0.5}, p.X)
	assert.Equal(t, r3.Vec{X: -1}, p.V)

	b.dim = 2
	p = particles.Particle{X: r3.Vec{X: 0.5, Y: 0.5, Z: 7}}
	b.resolveWalls(&p)
	assert.Equal(t, r3.Vec{X: 0.5, Y: 0.5, Z: 7}, p.X)
}

func TestNewRejectsBadInput(t *testing.T) {
	fluid, p := damBlock(t)

	_, err := New(MethodWCSPH, fluid, unitBox, r3.Vec{}, p)
	assert.True(t, errors.Is(err, particles.ErrInvalidBox), "got %v", err)

	_, err = New(MethodIISPH, nil, r3.Vec{}, unitBox, p)
	assert.True(t, errors.Is(err, particles.ErrInvalidParticleCount), "got %v", err)

	s, err := New(Method(9), fluid, r3.Vec{}, unitBox, p)
	assert.Error(t, err)
	assert.Nil(t, s)

	bad := p
	bad.DT = 0
	_, err = New(MethodWCSPH, fluid, r3.Vec{}, unitBox, bad)
	assert.Error(t, err)
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())

	tests := []struct {
		name   string
		modify func(*Params)
	}{
		{"zero dt", func(p *Params) { p.DT = 0 }},
		{"nan dt", func(p *Params) { p.DT = math.NaN() }},
		{"negative viscosity", func(p *Params) { p.Viscosity = -1 }},
		{"restitution above one", func(p *Params) { p.WallRestitution = 1.5 }},
		{"zero stiffness", func(p *Params) { p.Stiffness = 0 }},
		{"exponent below one", func(p *Params) { p.Exponent = 0.5 }},
		{"zero omega", func(p *Params) { p.Omega = 0 }},
		{"omega above one", func(p *Params) { p.Omega = 1.2 }},
		{"no iterations", func(p *Params) { p.MaxIterations = 0 }},
		{"zero tolerance", func(p *Params) { p.Tolerance = 0 }},
		{"sphere without radius", func(p *Params) { p.Sphere = &SphereObstacle{} }},
		{"sphere restitution", func(p *Params) { p.Sphere = &SphereObstacle{Radius: 1, Restitution: 2} }},
		{"sphere scale", func(p *Params) { p.Sphere = &SphereObstacle{Radius: 1, ScaleFactor: -1} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.modify(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestParseMethod(t *testing.T) {
	for in, want := range map[string]Method{
		"wcsph":   MethodWCSPH,
		"":        MethodWCSPH,
		"IISPH":   MethodIISPH,
		" iisph ": MethodIISPH,
	} {
		got, err := ParseMethod(in)
		assert.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseMethod("pcisph")
	assert.Error(t, err)

	assert.Equal(t, "wcsph", MethodWCSPH.String())
	assert.Equal(t, "iisph", MethodIISPH.String())
	assert.Equal(t, "method(7)", Method(7).String())
}

func TestSetDT(t *testing.T) {
	fluid, p := damBlock(t)
	s, err := NewWCSPH(fluid, r3.Vec{}, unitBox, p)
	require.NoError(t, err)
	defer s.Close()

	assert.Error(t, s.SetDT(0))
	assert.Error(t, s.SetDT(-0.1))
	assert.Equal(t, 0.01, s.DT())

	require.NoError(t, s.SetDT(0.005))
	assert.Equal(t, 0.005, s.DT())
}

type phaseRecorder struct{ phases []string }

func (r *phaseRecorder) StartPhase(name string) { r.phases = append(r.phases, name) }

func TestPhaseTimerOrder(t *testing.T) {
	fluid, boxMax, p := column(t)

	w, err := NewWCSPH(fluid, r3.Vec{}, boxMax, p)
	require.NoError(t, err)
	defer w.Close()
	rec := &phaseRecorder{}
	w.SetPhaseTimer(rec)
	w.Step()
	assert.Equal(t, []string{PhaseNeighbors, PhaseDensity, PhasePressureForce, PhaseIntegrate}, rec.phases)

	is, err := NewIISPH(fluid, r3.Vec{}, boxMax, p)
	require.NoError(t, err)
	defer is.Close()
	rec = &phaseRecorder{}
	is.SetPhaseTimer(rec)
	is.Step()
	assert.Equal(t, Phases(), rec.phases)
}

func TestWorkerPoolCoversEveryIndex(t *testing.T) {
	for _, tt := range []struct{ workers, threshold, n int }{
		{1, 1, 10},
		{4, 1, 10},
		{4, 1, 3},
		{3, 100, 50},
		{8, 1, 1000},
	} {
		pool := newWorkerPool(tt.workers, tt.threshold)
		hits := make([]int, tt.n)
		pool.run(tt.n, func(i0, i1 int) {
			for i := i0; i < i1; i++ {
				hits[i]++
			}
		})
		for i, h := range hits {
			assert.Equal(t, 1, h, "workers=%d n=%d index %d", tt.workers, tt.n, i)
		}
		pool.stop()

		// Restarts after stop.
		pool.run(tt.n, func(i0, i1 int) {
			for i := i0; i < i1; i++ {
				hits[i]++
			}
		})
		pool.stop()
		for i, h := range hits {
			assert.Equal(t, 2, h, "index %d", i)
		}
	}
}

func BenchmarkWCSPHStep(b *testing.B) {
	benchmarkStep(b, MethodWCSPH)
}

func BenchmarkIISPHStep(b *testing.B) {
	benchmarkStep(b, MethodIISPH)
}

func benchmarkStep(b *testing.B, method Method) {
	fluid, err := particles.SampleInBox(r3.Vec{}, r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}, [3]int{11, 11, 11}, false)
	require.NoError(b, err)
	s, err := New(method, fluid, r3.Vec{}, unitBox, DefaultParams())
	require.NoError(b, err)
	defer s.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Step()
	}
}
