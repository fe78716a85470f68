package core

import (
	"io"
	"sync"

	"github.com/starfielddb/starfielddb/pkg/core/galaxy"
	"github.com/starfielddb/starfielddb/pkg/core/metric"
)

// Bounds is the axis-aligned extent of a field.
type Bounds struct {
	Min metric.Vec3 `json:"min"`
	Max metric.Vec3 `json:"max"`
}

// Field is a named star cloud plus the scan state derived from it. The
// position buffer is immutable between regenerations: Regenerate swaps the
// whole buffer under the write lock and bumps the generation counter, so
// results computed against an older buffer can be recognized and discarded.
// Point indices are stable for the lifetime of a generation.
type Field struct {
	name string

	mu         sync.RWMutex
	params     galaxy.Params
	positions  []float32
	scanner    *metric.Scanner
	generation uint64
	bounds     Bounds
}

// NewField generates a field from params. Its generation starts at 1.
func NewField(name string, params galaxy.Params) (*Field, error) {
	f := &Field{name: name}
	if err := f.Regenerate(params); err != nil {
		return nil, err
	}
	return f, nil
}

// Name returns the field's catalog key.
func (f *Field) Name() string { return f.name }

// Regenerate replaces the whole position buffer with one generated from
// params. In-flight reads finish against the old buffer; nothing is ever
// mutated in place.
func (f *Field) Regenerate(params galaxy.Params) error {
	positions, err := galaxy.Generate(params)
	if err != nil {
		return err
	}
	scanner := metric.NewScanner(positions)
	scanner.Precompute()
	bounds := boundsOf(positions)

	f.mu.Lock()
	f.params = params
	f.positions = positions
	f.scanner = scanner
	f.generation++
	f.bounds = bounds
	f.mu.Unlock()
	return nil
}

// Len returns the point count.
func (f *Field) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.scanner.Len()
}

// Generation returns the regeneration counter.
func (f *Field) Generation() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.generation
}

// Params returns the generation parameters currently in effect.
func (f *Field) Params() galaxy.Params {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.params
}

// Bounds returns the axis-aligned extent of the current buffer.
func (f *Field) Bounds() Bounds {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bounds
}

// At returns point i of the current buffer.
func (f *Field) At(i int) metric.Vec3 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.scanner.At(i)
}

// Snapshot returns the current generation together with a private copy of
// the position buffer. Offload dispatch uses it so a background worker
// never aliases the live buffer and never observes a later regeneration.
func (f *Field) Snapshot() (uint64, []float32) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	cp := make([]float32, len(f.positions))
	copy(cp, f.positions)
	return f.generation, cp
}

// WritePositions streams the current buffer to w at the given precision.
func (f *Field) WritePositions(w io.Writer, p metric.Precision) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return metric.WritePositions(w, f.positions, p)
}

// NearestTo runs the target search against the field's buffer, reusing its
// cached scan state.
func (f *Field) NearestTo(target metric.Vec3, step int) (Anchor, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return nearestTo(f.scanner, target, step)
}

// AssignAnchors resolves the nearest point for each target, positionally
// aligned with the input. The whole batch runs under one read lock, so a
// regeneration cannot interleave it.
func (f *Field) AssignAnchors(targets []metric.Vec3, step int) ([]Anchor, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Anchor, len(targets))
	for i, t := range targets {
		a, err := nearestTo(f.scanner, t, step)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

// NearestToRay runs the ray search against the field's buffer.
func (f *Field) NearestToRay(ray metric.Ray, step int, maxPerpDist float64) (*Pick, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return nearestToRay(f.scanner, ray, step, maxPerpDist)
}

func boundsOf(positions []float32) Bounds {
	if len(positions) < 3 {
		return Bounds{}
	}
	first := metric.Vec3{X: positions[0], Y: positions[1], Z: positions[2]}
	b := Bounds{Min: first, Max: first}
	for i := 3; i+2 < len(positions); i += 3 {
		x, y, z := positions[i], positions[i+1], positions[i+2]
		if x < b.Min.X {
			b.Min.X = x
		}
		if x > b.Max.X {
			b.Max.X = x
		}
		if y < b.Min.Y {
			b.Min.Y = y
		}
		if y > b.Max.Y {
			b.Max.Y = y
		}
		if z < b.Min.Z {
			b.Min.Z = z
		}
		if z > b.Max.Z {
			b.Max.Z = z
		}
	}
	return b
}
