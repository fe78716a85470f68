// Package galaxy procedurally generates spiral star fields as flat xyz
// buffers.
//
// The generator guarantees a storage layout where index distance tracks
// spatial distance: points are emitted arm by arm, and within an arm by
// strictly increasing radius. Subsampled scans rely on that contract when
// they refine a coarse hit inside a small index window around it.
package galaxy

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/chewxy/math32"

	"github.com/starfielddb/starfielddb/pkg/core/metric"
)

// Params controls a generated field. Identical params always produce an
// identical buffer.
type Params struct {
	// Count is the number of points in the field.
	Count int `json:"count"`
	// Arms is the number of spiral arms.
	Arms int `json:"arms"`
	// Radius is the extent of the field on the galactic plane.
	Radius float32 `json:"radius"`
	// Twist is how many radians an arm winds from core to rim.
	Twist float32 `json:"twist"`
	// Thickness scales the vertical scatter off the plane.
	Thickness float32 `json:"thickness"`
	// Spread scales the positional scatter around the arm centerline.
	Spread float32 `json:"spread"`
	// Seed drives all randomness.
	Seed int64 `json:"seed"`
}

// DefaultParams returns a medium-sized four-arm spiral.
func DefaultParams() Params {
	return Params{
		Count:     100_000,
		Arms:      4,
		Radius:    100,
		Twist:     3.5,
		Thickness: 4,
		Spread:    2,
		Seed:      42,
	}
}

// Validate reports whether p can generate a field.
func (p Params) Validate() error {
	if p.Count <= 0 {
		return fmt.Errorf("galaxy: count must be positive, got %d", p.Count)
	}
	if p.Arms < 1 {
		return fmt.Errorf("galaxy: arms must be at least 1, got %d", p.Arms)
	}
	if p.Radius <= 0 {
		return fmt.Errorf("galaxy: radius must be positive, got %g", p.Radius)
	}
	if p.Thickness < 0 || p.Spread < 0 {
		return errors.New("galaxy: thickness and spread must not be negative")
	}
	return nil
}

// Generate builds the flat position buffer for p. The result has length
// 3*p.Count; point i occupies slots [3i, 3i+2]. Points come out arm by arm
// in increasing-radius order, which is what keeps storage neighborhoods
// spatially tight.
func Generate(p Params) ([]float32, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(p.Seed))
	positions := make([]float32, 0, 3*p.Count)

	perArm := p.Count / p.Arms
	extra := p.Count % p.Arms
	for arm := 0; arm < p.Arms; arm++ {
		n := perArm
		if arm < extra {
			n++
		}
		base := float32(2 * math.Pi * float64(arm) / float64(p.Arms))
		for k := 0; k < n; k++ {
			frac := (float32(k) + 0.5) / float32(n)
			r := p.Radius * frac
			theta := base + p.Twist*frac
			// Scatter shrinks toward the core so inner indices stay
			// tightly packed.
			jx := float32(rng.NormFloat64()) * p.Spread * (0.3 + 0.7*frac)
			jy := float32(rng.NormFloat64()) * p.Spread * (0.3 + 0.7*frac)
			jz := float32(rng.NormFloat64()) * p.Thickness * (1 - 0.6*frac)
			positions = append(positions,
				r*math32.Cos(theta)+jx,
				r*math32.Sin(theta)+jy,
				jz,
			)
		}
	}
	return positions, nil
}

// AnchorTargets returns m deterministic query targets spread along the
// jitter-free arm centerlines of p, cycling through the arms. Every target
// therefore has cloud samples nearby. No randomness is involved.
func AnchorTargets(m int, p Params) []metric.Vec3 {
	if m <= 0 {
		return nil
	}
	arms := p.Arms
	if arms < 1 {
		arms = 1
	}
	rows := (m + arms - 1) / arms
	targets := make([]metric.Vec3, 0, m)
	for j := 0; j < m; j++ {
		arm := j % arms
		frac := (float32(j/arms) + 0.5) / float32(rows)
		r := p.Radius * frac
		theta := 2*math32.Pi*float32(arm)/float32(arms) + p.Twist*frac
		targets = append(targets, metric.Vec3{
			X: r * math32.Cos(theta),
			Y: r * math32.Sin(theta),
		})
	}
	return targets
}
