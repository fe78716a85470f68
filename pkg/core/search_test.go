package core

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/starfielddb/starfielddb/pkg/core/metric"
)

// Helper for float comparisons with tolerance.
func floatsAreEqual(a, b float64) bool {
	const tolerance = 1e-6
	return math.Abs(a-b) < tolerance
}

func randomCloud(n int, seed int64) []float32 {
	rng := rand.New(rand.NewSource(seed))
	positions := make([]float32, 3*n)
	for i := range positions {
		positions[i] = rng.Float32()*100 - 50
	}
	return positions
}

// lineCloud lays points along the X axis at unit spacing. Index distance is
// spatial distance, so the true nearest always falls inside a refinement
// window around any coarse hit.
func lineCloud(n int) []float32 {
	positions := make([]float32, 3*n)
	for i := 0; i < n; i++ {
		positions[3*i] = float32(i)
	}
	return positions
}

func bruteNearest(positions []float32, target metric.Vec3) (int, float64) {
	best, bestD := -1, math.Inf(1)
	for i := 0; 3*i < len(positions); i++ {
		p := metric.Vec3{X: positions[3*i], Y: positions[3*i+1], Z: positions[3*i+2]}
		if d := p.DistSq(target); d < bestD {
			best, bestD = i, d
		}
	}
	return best, bestD
}

func bruteNearestRay(positions []float32, ray metric.Ray) (int, float64) {
	best, bestD := -1, math.Inf(1)
	for i := 0; 3*i < len(positions); i++ {
		p := metric.Vec3{X: positions[3*i], Y: positions[3*i+1], Z: positions[3*i+2]}
		if d := ray.PerpDistSq(p); d < bestD {
			best, bestD = i, d
		}
	}
	return best, bestD
}

// At stride 1 the target search must be exact brute force.
func TestNearestToBruteForce(t *testing.T) {
	positions := randomCloud(1000, 11)
	rng := rand.New(rand.NewSource(12))
	for q := 0; q < 20; q++ {
		target := metric.Vec3{
			X: rng.Float32()*100 - 50,
			Y: rng.Float32()*100 - 50,
			Z: rng.Float32()*100 - 50,
		}
		got, err := NearestTo(positions, target, 1)
		if err != nil {
			t.Fatalf("query %d: %v", q, err)
		}
		want, wantD := bruteNearest(positions, target)
		if got.Index != want {
			t.Fatalf("query %d: got index %d, want %d", q, got.Index, want)
		}
		if d := target.DistSq(got.Position); !floatsAreEqual(d, wantD) {
			t.Fatalf("query %d: got distance %f, want %f", q, d, wantD)
		}
	}
}

// On a cloud whose storage order tracks spatial order, the true nearest is
// always within the refinement window, so step > 1 must still be exact.
func TestNearestToRefinement(t *testing.T) {
	positions := lineCloud(500)
	for _, step := range []int{2, 7, 16} {
		for _, x := range []float32{-5, 0, 3.2, 123.4, 250.4, 498.9, 1000} {
			target := metric.Vec3{X: x, Y: 0.5}
			got, err := NearestTo(positions, target, step)
			if err != nil {
				t.Fatalf("step %d target %g: %v", step, x, err)
			}
			want, _ := bruteNearest(positions, target)
			if got.Index != want {
				t.Errorf("step %d target %g: got index %d, want %d", step, x, got.Index, want)
			}
		}
	}
}

func TestNearestToDeterministic(t *testing.T) {
	positions := randomCloud(5000, 17)
	target := metric.Vec3{X: 4, Y: -3, Z: 9}
	for _, step := range []int{1, 3, 11} {
		a, err := NearestTo(positions, target, step)
		if err != nil {
			t.Fatalf("step %d: %v", step, err)
		}
		b, err := NearestTo(positions, target, step)
		if err != nil {
			t.Fatalf("step %d: %v", step, err)
		}
		if a.Index != b.Index || a.Position != b.Position {
			t.Errorf("step %d: results differ between runs: %+v vs %+v", step, a, b)
		}
	}
}

// Three known points, target closest to the second.
func TestNearestToKnownCloud(t *testing.T) {
	positions := []float32{0, 0, 0, 10, 0, 0, 5, 5, 0}
	target := metric.Vec3{X: 9, Y: 1}

	got, err := NearestTo(positions, target, 1)
	if err != nil {
		t.Fatalf("NearestTo: %v", err)
	}
	if got.Index != 1 {
		t.Fatalf("got index %d, want 1", got.Index)
	}
	if got.Position != (metric.Vec3{X: 10}) {
		t.Fatalf("got position %+v, want (10,0,0)", got.Position)
	}
	if d := target.DistSq(got.Position); !floatsAreEqual(d, 2) {
		t.Fatalf("got squared distance %f, want 2", d)
	}
}

// The pick metric is perpendicular distance to the ray, not distance to the
// ray origin: a far-along point with a small offset beats a near point with
// a big one.
func TestNearestToRayPerpMetric(t *testing.T) {
	positions := []float32{
		0, 3, 0, // 3 off the axis, right next to the origin
		100, 0.5, 0, // 0.5 off the axis, far down the ray
		2, 1, 0, // 1 off the axis
	}
	ray, err := metric.NewRay(metric.Vec3{}, metric.Vec3{X: 1})
	if err != nil {
		t.Fatal(err)
	}
	pick, err := NearestToRay(positions, ray, 1, 10)
	if err != nil {
		t.Fatalf("NearestToRay: %v", err)
	}
	if pick == nil {
		t.Fatal("expected a hit")
	}
	if pick.Index != 1 {
		t.Fatalf("got index %d, want 1", pick.Index)
	}
	if !floatsAreEqual(pick.PerpDistSq, 0.25) {
		t.Fatalf("got perp distance %f, want 0.25", pick.PerpDistSq)
	}
}

// A ray passing far outside a unit-sphere cloud with a tight cutoff is a
// miss, reported as (nil, nil) rather than an error.
func TestNearestToRayMiss(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	positions := make([]float32, 0, 3*200)
	for len(positions) < 3*200 {
		x := rng.Float32()*2 - 1
		y := rng.Float32()*2 - 1
		z := rng.Float32()*2 - 1
		if x*x+y*y+z*z <= 1 {
			positions = append(positions, x, y, z)
		}
	}
	ray, err := metric.NewRay(metric.Vec3{X: 10, Y: 10}, metric.Vec3{Z: 1})
	if err != nil {
		t.Fatal(err)
	}
	pick, err := NearestToRay(positions, ray, 1, 0.1)
	if err != nil {
		t.Fatalf("NearestToRay: %v", err)
	}
	if pick != nil {
		t.Fatalf("expected a miss, got %+v", pick)
	}
}

// A best distance exactly at the cutoff is still a hit; only exceeding it
// rejects the pick.
func TestNearestToRayCutoffBoundary(t *testing.T) {
	positions := []float32{5, 3, 0}
	ray, err := metric.NewRay(metric.Vec3{}, metric.Vec3{X: 1})
	if err != nil {
		t.Fatal(err)
	}

	pick, err := NearestToRay(positions, ray, 1, 3)
	if err != nil {
		t.Fatalf("NearestToRay: %v", err)
	}
	if pick == nil || !floatsAreEqual(pick.PerpDistSq, 9) {
		t.Fatalf("expected a hit at perp distance 9, got %+v", pick)
	}

	pick, err = NearestToRay(positions, ray, 1, 2.999)
	if err != nil {
		t.Fatalf("NearestToRay: %v", err)
	}
	if pick != nil {
		t.Fatalf("expected a miss below the cutoff, got %+v", pick)
	}
}

func TestNearestToRayRefinement(t *testing.T) {
	positions := lineCloud(2000)
	// A vertical ray grazing the cloud right above index 731.
	ray, err := metric.NewRay(metric.Vec3{X: 731, Y: 0.3}, metric.Vec3{Z: 1})
	if err != nil {
		t.Fatal(err)
	}
	pick, err := NearestToRay(positions, ray, 5, 0)
	if err != nil {
		t.Fatalf("NearestToRay: %v", err)
	}
	want, wantD := bruteNearestRay(positions, ray)
	if pick == nil {
		t.Fatalf("expected a hit at index %d", want)
	}
	if pick.Index != want {
		t.Fatalf("got index %d, want %d", pick.Index, want)
	}
	if !floatsAreEqual(pick.PerpDistSq, wantD) {
		t.Fatalf("got perp distance %f, want %f", pick.PerpDistSq, wantD)
	}
}

func TestSearchInputValidation(t *testing.T) {
	target := metric.Vec3{X: 1}
	ray, err := metric.NewRay(metric.Vec3{}, metric.Vec3{X: 1})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NearestTo(nil, target, 1); !errors.Is(err, ErrEmptyField) {
		t.Errorf("empty cloud: got %v, want ErrEmptyField", err)
	}
	if _, err := NearestTo([]float32{1, 2, 3}, target, 0); !errors.Is(err, ErrInvalidStep) {
		t.Errorf("zero step: got %v, want ErrInvalidStep", err)
	}
	if _, err := NearestToRay(nil, ray, 1, 0.6); !errors.Is(err, ErrEmptyField) {
		t.Errorf("empty cloud (ray): got %v, want ErrEmptyField", err)
	}
	if _, err := NearestToRay([]float32{1, 2, 3}, ray, -1, 0.6); !errors.Is(err, ErrInvalidStep) {
		t.Errorf("negative step: got %v, want ErrInvalidStep", err)
	}
}

func TestDefaultSteps(t *testing.T) {
	cases := []struct{ n, target, ray int }{
		{0, 1, 1},
		{999, 1, 1},
		{100_000, 1, 1},
		{250_000, 2, 1},
		{1_000_000, 10, 6},
	}
	for _, c := range cases {
		if got := DefaultTargetStep(c.n); got != c.target {
			t.Errorf("DefaultTargetStep(%d) = %d, want %d", c.n, got, c.target)
		}
		if got := DefaultRayStep(c.n); got != c.ray {
			t.Errorf("DefaultRayStep(%d) = %d, want %d", c.n, got, c.ray)
		}
	}
}

func TestWindowAround(t *testing.T) {
	cases := []struct {
		center, radius, n, lo, stop int
	}{
		{50, 10, 100, 40, 61},
		{2, 10, 100, 0, 13},
		{98, 10, 100, 88, 100},
		{0, 5, 3, 0, 3},
	}
	for _, c := range cases {
		lo, stop := windowAround(c.center, c.radius, c.n)
		if lo != c.lo || stop != c.stop {
			t.Errorf("windowAround(%d, %d, %d) = (%d, %d), want (%d, %d)",
				c.center, c.radius, c.n, lo, stop, c.lo, c.stop)
		}
	}
}
