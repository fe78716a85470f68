// Package core implements StarfieldDB's two nearest-point searches over
// flat position buffers: target-based anchor assignment and ray-based
// picking. Both run a two-phase subsample-then-refine scan so cost stays
// bounded as clouds grow to millions of points.
//
// The refinement phase assumes storage order correlates with spatial
// locality. Buffers from the galaxy generator carry that guarantee; buffers
// from other sources must uphold it themselves or step>1 searches lose
// accuracy without any error being raised.
package core

import (
	"errors"

	"github.com/starfielddb/starfielddb/pkg/core/metric"
)

var (
	// ErrEmptyField is returned when a search runs against a cloud with no
	// points. Searches fail fast instead of reporting index 0 at infinite
	// distance.
	ErrEmptyField = errors.New("core: field holds no points")

	// ErrInvalidStep is returned for a non-positive sampling stride.
	ErrInvalidStep = errors.New("core: step must be at least 1")
)

const (
	// targetScanBudget caps how many candidates a default-stride anchor
	// scan visits in its coarse phase.
	targetScanBudget = 100_000
	// rayScanBudget is the pick equivalent. Picking runs once per pointer
	// event, so it affords a larger budget.
	rayScanBudget = 150_000

	// DefaultMaxPickDistance is the perpendicular cutoff for ray picks, in
	// cloud coordinate units.
	DefaultMaxPickDistance = 0.6

	targetWindowFactor = 4
	rayWindowFactor    = 6
	rayWindowMin       = 64
)

// DefaultTargetStep returns the sampling stride for an anchor search over a
// cloud of n points: 1 for small clouds, then growing so the coarse phase
// visits about 100k samples no matter how large the cloud gets.
func DefaultTargetStep(n int) int {
	if step := n / targetScanBudget; step > 1 {
		return step
	}
	return 1
}

// DefaultRayStep is DefaultTargetStep under the ray budget of 150k samples.
func DefaultRayStep(n int) int {
	if step := n / rayScanBudget; step > 1 {
		return step
	}
	return 1
}

// NearestTo finds the cloud point nearest target. The coarse phase samples
// every step-th index; when step > 1 a second pass rescans a window of
// radius step*4 around the coarse winner at stride 1. The result is exact
// within that window and approximate overall, an accepted trade for bounded
// cost. At step 1 the scan is exhaustive and the result is the global
// minimum.
func NearestTo(positions []float32, target metric.Vec3, step int) (Anchor, error) {
	return nearestTo(metric.NewScanner(positions), target, step)
}

// NearestToRay finds the cloud point whose perpendicular distance to ray is
// smallest, with the same two-phase structure as NearestTo and a window
// radius of max(step*6, 64). A best distance beyond maxPerpDist means the
// ray missed everything: the result is (nil, nil), a normal negative
// outcome rather than an error. maxPerpDist <= 0 selects
// DefaultMaxPickDistance.
func NearestToRay(positions []float32, ray metric.Ray, step int, maxPerpDist float64) (*Pick, error) {
	return nearestToRay(metric.NewScanner(positions), ray, step, maxPerpDist)
}

// AssignAnchors resolves the nearest cloud point for every target. The
// result is positionally aligned with targets: result[i] answers targets[i].
// One scanner precomputation is shared across the whole batch, so this is
// the right entry point for workers operating on a transferred buffer copy.
func AssignAnchors(positions []float32, targets []metric.Vec3, step int) ([]Anchor, error) {
	s := metric.NewScanner(positions)
	s.Precompute()
	out := make([]Anchor, len(targets))
	for i, t := range targets {
		a, err := nearestTo(s, t, step)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

// nearestTo is the shared implementation; Field hands in its cached scanner
// so repeated queries reuse the precomputed norms.
func nearestTo(s *metric.Scanner, target metric.Vec3, step int) (Anchor, error) {
	n := s.Len()
	if n == 0 {
		return Anchor{}, ErrEmptyField
	}
	if step < 1 {
		return Anchor{}, ErrInvalidStep
	}

	best, _ := s.NearestTarget(target, 0, n, step)
	if step > 1 {
		lo, hi := windowAround(best, step*targetWindowFactor, n)
		best, _ = s.NearestTarget(target, lo, hi, 1)
	}
	return Anchor{Index: best, Position: s.At(best)}, nil
}

func nearestToRay(s *metric.Scanner, ray metric.Ray, step int, maxPerpDist float64) (*Pick, error) {
	n := s.Len()
	if n == 0 {
		return nil, ErrEmptyField
	}
	if step < 1 {
		return nil, ErrInvalidStep
	}
	if maxPerpDist <= 0 {
		maxPerpDist = DefaultMaxPickDistance
	}

	best, bestD := s.NearestRay(ray, 0, n, step)
	if step > 1 {
		radius := step * rayWindowFactor
		if radius < rayWindowMin {
			radius = rayWindowMin
		}
		lo, hi := windowAround(best, radius, n)
		best, bestD = s.NearestRay(ray, lo, hi, 1)
	}
	if bestD > maxPerpDist*maxPerpDist {
		return nil, nil
	}
	return &Pick{Index: best, Position: s.At(best), PerpDistSq: bestD}, nil
}

// windowAround clamps the inclusive index window [center-radius,
// center+radius] to [0, n-1] and returns it as a half-open range.
func windowAround(center, radius, n int) (int, int) {
	lo := center - radius
	if lo < 0 {
		lo = 0
	}
	hi := center + radius
	if hi > n-1 {
		hi = n - 1
	}
	return lo, hi + 1
}
