package particles

import "gonum.org/v1/gonum/spatial/r3"

// SampleInBox lays n[0] x n[1] x n[2] points on a regular lattice spanning
// [min, max] including both ends. The box must have max > min on every axis
// (x and y only in 2-D). An axis with a single sample sits at the midpoint.
// In 2-D a single layer is produced at the z midpoint and n[2] is ignored.
// Points are ordered with z fastest.
func SampleInBox(min, max r3.Vec, n [3]int, sample2D bool) ([]r3.Vec, error) {
	if err := ValidateCounts(n, sample2D); err != nil {
		return nil, err
	}
	if err := ValidateBox(min, max, sample2D); err != nil {
		return nil, err
	}
	if sample2D {
		n[2] = 1
	}

	out := make([]r3.Vec, 0, n[0]*n[1]*n[2])
	for i := 0; i < n[0]; i++ {
		x := lerpAxis(min.X, max.X, i, n[0])
		for j := 0; j < n[1]; j++ {
			y := lerpAxis(min.Y, max.Y, j, n[1])
			for k := 0; k < n[2]; k++ {
				z := lerpAxis(min.Z, max.Z, k, n[2])
				out = append(out, r3.Vec{X: x, Y: y, Z: z})
			}
		}
	}
	return out, nil
}

// SampleAroundBox produces a one-layer shell of static points enclosing the
// box. The shell lies on the surface of the box grown by scaleFactor lattice
// spacings on every side and is sampled with n+2 points per axis, so a scale
// factor of 1 continues the lattice SampleInBox(min, max, n) would produce.
// In 2-D the shell is the ring around the box in the z midpoint plane.
func SampleAroundBox(min, max r3.Vec, n [3]int, sample2D bool, scaleFactor float64) ([]r3.Vec, error) {
	if err := ValidateCounts(n, sample2D); err != nil {
		return nil, err
	}
	if err := ValidateBox(min, max, sample2D); err != nil {
		return nil, err
	}
	if !(scaleFactor > 0) {
		return nil, errorf(InvalidBox, "shell scale factor %g must be positive", scaleFactor)
	}

	lo, hi := min, max
	lo.X, hi.X = growAxis(min.X, max.X, n[0], scaleFactor)
	lo.Y, hi.Y = growAxis(min.Y, max.Y, n[1], scaleFactor)

	m := [3]int{n[0] + 2, n[1] + 2, 1}
	if !sample2D {
		lo.Z, hi.Z = growAxis(min.Z, max.Z, n[2], scaleFactor)
		m[2] = n[2] + 2
	}

	var out []r3.Vec
	for i := 0; i < m[0]; i++ {
		onX := i == 0 || i == m[0]-1
		x := lerpAxis(lo.X, hi.X, i, m[0])
		for j := 0; j < m[1]; j++ {
			onY := j == 0 || j == m[1]-1
			y := lerpAxis(lo.Y, hi.Y, j, m[1])
			for k := 0; k < m[2]; k++ {
				onZ := !sample2D && (k == 0 || k == m[2]-1)
				if !onX && !onY && !onZ {
					continue
				}
				out = append(out, r3.Vec{X: x, Y: y, Z: lerpAxis(lo.Z, hi.Z, k, m[2])})
			}
		}
	}
	return out, nil
}

// lerpAxis returns the i-th of n evenly spaced values over [lo, hi].
func lerpAxis(lo, hi float64, i, n int) float64 {
	if n == 1 {
		return 0.5 * (lo + hi)
	}
	if i == n-1 {
		return hi
	}
	return lo + (hi-lo)*float64(i)/float64(n-1)
}

// growAxis widens [lo, hi] by scale lattice spacings on both sides. A single
// sample has no spacing, so the box extent stands in for it.
func growAxis(lo, hi float64, n int, scale float64) (float64, float64) {
	spacing := hi - lo
	if n > 1 {
		spacing /= float64(n - 1)
	}
	off := scale * spacing
	return lo - off, hi + off
}
