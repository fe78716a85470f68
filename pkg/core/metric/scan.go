package metric

import (
	"log"
	"math"
	"sync"

	"github.com/klauspost/cpuid/v2"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/gonum"
)

// scanBlock is the number of sampled points a BLAS pass handles per batch.
const scanBlock = 4096

var gonumEngine = gonum.Implementation{}

// useBLAS gates the batched coarse path. Gonum's float32 kernels only pay
// off on hardware with wide vector units.
var useBLAS bool

func init() {
	useBLAS = cpuid.CPU.Has(cpuid.AVX2)
	if useBLAS {
		log.Println("starfielddb scan kernels: Gonum (BLAS) coarse path enabled (AVX2 detected)")
	} else {
		log.Println("starfielddb scan kernels: pure Go coarse path (AVX2 not detected)")
	}
}

// scanWorkspace pools the per-block projection buffers so hot scans do not
// allocate. Each entry holds scanBlock float32 values.
var scanWorkspace = sync.Pool{
	New: func() interface{} {
		s := make([]float32, scanBlock)
		return &s
	},
}

// Scanner sweeps a flat xyz buffer (point i occupies slots [3i, 3i+2]) for
// the sample nearest to a query. It does not own the buffer and never
// mutates it; callers guarantee the buffer is not swapped out mid-scan.
type Scanner struct {
	positions []float32
	normsq    []float32
}

// NewScanner wraps a flat position buffer. len(positions) must be a
// multiple of 3.
func NewScanner(positions []float32) *Scanner {
	return &Scanner{positions: positions}
}

// Len returns the number of points in the buffer.
func (s *Scanner) Len() int { return len(s.positions) / 3 }

// At returns point i.
func (s *Scanner) At(i int) Vec3 {
	j := 3 * i
	return Vec3{s.positions[j], s.positions[j+1], s.positions[j+2]}
}

// Precompute caches the squared norm of every point. The cache is what the
// BLAS coarse path expands distances against; without it every scan takes
// the scalar path. Call it once per buffer, before any queries.
func (s *Scanner) Precompute() {
	n := s.Len()
	normsq := make([]float32, n)
	for i := 0; i < n; i++ {
		j := 3 * i
		x, y, z := s.positions[j], s.positions[j+1], s.positions[j+2]
		normsq[i] = x*x + y*y + z*z
	}
	s.normsq = normsq
}

// NearestTarget scans indices start, start+step, ... below stop and returns
// the index with the smallest squared Euclidean distance to t, along with
// that distance. It returns (-1, +Inf) when the range holds no samples.
// Stride-1 scans always take the exact scalar path; the BLAS path serves
// only the subsampled coarse phase, which is approximate by contract.
func (s *Scanner) NearestTarget(t Vec3, start, stop, step int) (int, float64) {
	if useBLAS && step > 1 && s.normsq != nil {
		return s.nearestTargetBLAS(t, start, stop, step)
	}
	return s.nearestTargetGo(t, start, stop, step)
}

// NearestRay is NearestTarget under the ray metric: it minimizes the squared
// perpendicular distance to r instead of the distance to a point. Same
// return convention and dispatch rules.
func (s *Scanner) NearestRay(r Ray, start, stop, step int) (int, float64) {
	if useBLAS && step > 1 && s.normsq != nil {
		return s.nearestRayBLAS(r, start, stop, step)
	}
	return s.nearestRayGo(r, start, stop, step)
}

func (s *Scanner) nearestTargetGo(t Vec3, start, stop, step int) (int, float64) {
	best, bestD := -1, math.Inf(1)
	pos := s.positions
	for i := start; i < stop; i += step {
		j := 3 * i
		dx := pos[j] - t.X
		dy := pos[j+1] - t.Y
		dz := pos[j+2] - t.Z
		if d := float64(dx*dx + dy*dy + dz*dz); d < bestD {
			best, bestD = i, d
		}
	}
	return best, bestD
}

func (s *Scanner) nearestTargetBLAS(t Vec3, start, stop, step int) (int, float64) {
	best, bestD := -1, math.Inf(1)

	projPtr := scanWorkspace.Get().(*[]float32)
	defer scanWorkspace.Put(projPtr)
	proj := *projPtr

	query := [3]float32{t.X, t.Y, t.Z}
	tn := t.LengthSq()
	lda := 3 * step

	for i0 := start; i0 < stop; i0 += step * scanBlock {
		m := (stop - i0 + step - 1) / step
		if m > scanBlock {
			m = scanBlock
		}
		// proj[k] = P[i0+k*step] . t, a mat-vec product over strided rows.
		gonumEngine.Sgemv(blas.NoTrans, m, 3, 1, s.positions[3*i0:], lda, query[:], 1, 0, proj[:m], 1)
		for k := 0; k < m; k++ {
			i := i0 + k*step
			// |P-t|^2 = |P|^2 - 2 P.t + |t|^2 against the norm cache.
			if d := float64(s.normsq[i] - 2*proj[k] + tn); d < bestD {
				best, bestD = i, d
			}
		}
	}
	return best, bestD
}

func (s *Scanner) nearestRayGo(r Ray, start, stop, step int) (int, float64) {
	best, bestD := -1, math.Inf(1)
	pos := s.positions
	o, d := r.Origin, r.Dir
	for i := start; i < stop; i += step {
		j := 3 * i
		rx := pos[j] - o.X
		ry := pos[j+1] - o.Y
		rz := pos[j+2] - o.Z
		t := rx*d.X + ry*d.Y + rz*d.Z
		if p := float64(rx*rx + ry*ry + rz*rz - t*t); p < bestD {
			best, bestD = i, p
		}
	}
	return best, bestD
}

func (s *Scanner) nearestRayBLAS(r Ray, start, stop, step int) (int, float64) {
	best, bestD := -1, math.Inf(1)

	projOPtr := scanWorkspace.Get().(*[]float32)
	defer scanWorkspace.Put(projOPtr)
	projDPtr := scanWorkspace.Get().(*[]float32)
	defer scanWorkspace.Put(projDPtr)
	projO, projD := *projOPtr, *projDPtr

	origin := [3]float32{r.Origin.X, r.Origin.Y, r.Origin.Z}
	dir := [3]float32{r.Dir.X, r.Dir.Y, r.Dir.Z}
	on := r.Origin.LengthSq()
	od := r.Origin.Dot(r.Dir)
	lda := 3 * step

	for i0 := start; i0 < stop; i0 += step * scanBlock {
		m := (stop - i0 + step - 1) / step
		if m > scanBlock {
			m = scanBlock
		}
		a := s.positions[3*i0:]
		gonumEngine.Sgemv(blas.NoTrans, m, 3, 1, a, lda, origin[:], 1, 0, projO[:m], 1)
		gonumEngine.Sgemv(blas.NoTrans, m, 3, 1, a, lda, dir[:], 1, 0, projD[:m], 1)
		for k := 0; k < m; k++ {
			i := i0 + k*step
			// |P-o|^2 - (P.d - o.d)^2, with |P-o|^2 expanded against the
			// norm cache: |P|^2 - 2 P.o + |o|^2.
			t := projD[k] - od
			if p := float64(s.normsq[i] - 2*projO[k] + on - t*t); p < bestD {
				best, bestD = i, p
			}
		}
	}
	return best, bestD
}
