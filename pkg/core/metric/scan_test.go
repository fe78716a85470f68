package metric

import (
	"fmt"
	"math"
	"math/rand"
	"testing"
)

func generateCloud(n int, seed int64) []float32 {
	rng := rand.New(rand.NewSource(seed))
	positions := make([]float32, 3*n)
	for i := range positions {
		positions[i] = rng.Float32()*100 - 50
	}
	return positions
}

func TestPrecompute(t *testing.T) {
	s := NewScanner([]float32{1, 2, 3, -4, 0, 4})
	s.Precompute()
	want := []float32{14, 32}
	for i, w := range want {
		if !floatsAreEqual(float64(s.normsq[i]), float64(w)) {
			t.Errorf("normsq[%d] = %f, want %f", i, s.normsq[i], w)
		}
	}
}

func TestScannerNearestTarget(t *testing.T) {
	positions := generateCloud(500, 1)
	s := NewScanner(positions)
	target := Vec3{10, -20, 30}

	best, bestD := s.NearestTarget(target, 0, s.Len(), 1)

	wantIdx, wantD := -1, math.Inf(1)
	for i := 0; i < len(positions)/3; i++ {
		p := Vec3{positions[3*i], positions[3*i+1], positions[3*i+2]}
		if d := p.DistSq(target); d < wantD {
			wantIdx, wantD = i, d
		}
	}
	if best != wantIdx || !floatsAreEqual(bestD, wantD) {
		t.Errorf("got (%d, %f), want (%d, %f)", best, bestD, wantIdx, wantD)
	}
}

func TestScannerNearestRay(t *testing.T) {
	positions := generateCloud(500, 3)
	s := NewScanner(positions)
	ray, err := NewRay(Vec3{0, 0, -100}, Vec3{0.1, -0.2, 1})
	if err != nil {
		t.Fatal(err)
	}

	best, bestD := s.NearestRay(ray, 0, s.Len(), 1)

	wantIdx, wantD := -1, math.Inf(1)
	for i := 0; i < len(positions)/3; i++ {
		p := Vec3{positions[3*i], positions[3*i+1], positions[3*i+2]}
		if d := ray.PerpDistSq(p); d < wantD {
			wantIdx, wantD = i, d
		}
	}
	if best != wantIdx {
		t.Errorf("got index %d, want %d", best, wantIdx)
	}
	if !floatsAreEqual(bestD, wantD) {
		t.Errorf("got distance %f, want %f", bestD, wantD)
	}
}

func TestScannerStride(t *testing.T) {
	// Points at x = 0, 1, ..., 9 on the X axis.
	positions := make([]float32, 30)
	for i := 0; i < 10; i++ {
		positions[3*i] = float32(i)
	}
	s := NewScanner(positions)

	// Stride 3 only samples indices 0, 3, 6, 9. The true nearest to x=5
	// (index 5) is invisible; index 6 wins at squared distance 1.
	best, bestD := s.NearestTarget(Vec3{X: 5}, 0, s.Len(), 3)
	if best != 6 {
		t.Fatalf("stride 3: got index %d, want 6", best)
	}
	if !floatsAreEqual(bestD, 1) {
		t.Fatalf("stride 3: got distance %f, want 1", bestD)
	}
}

func TestScannerEmptyRange(t *testing.T) {
	s := NewScanner(nil)
	if best, d := s.NearestTarget(Vec3{}, 0, s.Len(), 1); best != -1 || !math.IsInf(d, 1) {
		t.Errorf("empty buffer: got (%d, %f)", best, d)
	}
	if best, d := s.NearestRay(Ray{Dir: Vec3{X: 1}}, 0, s.Len(), 1); best != -1 || !math.IsInf(d, 1) {
		t.Errorf("empty buffer (ray): got (%d, %f)", best, d)
	}
}

// The BLAS kernels expand distances against the norm cache, which costs a
// little float32 precision. Both paths must still land on near-minimal
// samples with distances that agree within that error budget.
func TestCoarseKernelsAgree(t *testing.T) {
	positions := generateCloud(20000, 2)
	s := NewScanner(positions)
	s.Precompute()
	target := Vec3{25, 25, 25}
	ray, err := NewRay(Vec3{-60, 0, 0}, Vec3{1, 0.2, -0.1})
	if err != nil {
		t.Fatal(err)
	}

	// Steps chosen to cover multi-block, single-block and tail-only passes.
	for _, step := range []int{2, 7, 64, 4097} {
		t.Run(fmt.Sprintf("Target_step%d", step), func(t *testing.T) {
			goIdx, goD := s.nearestTargetGo(target, 0, s.Len(), step)
			blasIdx, blasD := s.nearestTargetBLAS(target, 0, s.Len(), step)
			if tol := 1e-2 + 1e-3*goD; math.Abs(goD-blasD) > tol {
				t.Errorf("paths diverge: go (%d, %f), blas (%d, %f)", goIdx, goD, blasIdx, blasD)
			}
		})
		t.Run(fmt.Sprintf("Ray_step%d", step), func(t *testing.T) {
			goIdx, goD := s.nearestRayGo(ray, 0, s.Len(), step)
			blasIdx, blasD := s.nearestRayBLAS(ray, 0, s.Len(), step)
			if tol := 1e-2 + 1e-3*goD; math.Abs(goD-blasD) > tol {
				t.Errorf("paths diverge: go (%d, %f), blas (%d, %f)", goIdx, goD, blasIdx, blasD)
			}
		})
	}
}

func BenchmarkCoarseScan(b *testing.B) {
	const n = 1_000_000
	positions := generateCloud(n, 4)
	s := NewScanner(positions)
	s.Precompute()
	target := Vec3{10, 10, 10}
	ray, _ := NewRay(Vec3{-80, 0, 0}, Vec3{1, 0, 0})

	for _, step := range []int{4, 10, 32} {
		b.Run(fmt.Sprintf("TargetGo_step%d", step), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				s.nearestTargetGo(target, 0, n, step)
			}
		})
		b.Run(fmt.Sprintf("TargetBLAS_step%d", step), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				s.nearestTargetBLAS(target, 0, n, step)
			}
		})
		b.Run(fmt.Sprintf("RayGo_step%d", step), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				s.nearestRayGo(ray, 0, n, step)
			}
		})
		b.Run(fmt.Sprintf("RayBLAS_step%d", step), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				s.nearestRayBLAS(ray, 0, n, step)
			}
		})
	}
}
