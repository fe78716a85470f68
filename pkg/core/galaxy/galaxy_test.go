package galaxy

import (
	"math"
	"testing"

	"github.com/starfielddb/starfielddb/pkg/core/metric"
)

func TestParamsValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Params)
		ok     bool
	}{
		{"defaults", func(*Params) {}, true},
		{"zero count", func(p *Params) { p.Count = 0 }, false},
		{"no arms", func(p *Params) { p.Arms = 0 }, false},
		{"negative radius", func(p *Params) { p.Radius = -1 }, false},
		{"negative spread", func(p *Params) { p.Spread = -0.5 }, false},
		{"flat disc", func(p *Params) { p.Thickness = 0 }, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := DefaultParams()
			c.mutate(&p)
			err := p.Validate()
			if c.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !c.ok && err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestGenerateDeterministic(t *testing.T) {
	p := DefaultParams()
	p.Count = 5000

	a, err := Generate(p)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, err := Generate(p)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("value %d differs: %f vs %f", i, a[i], b[i])
		}
	}

	p.Seed++
	c, err := Generate(p)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced an identical buffer")
	}
}

func TestGenerateCount(t *testing.T) {
	p := DefaultParams()
	p.Count = 1001 // not divisible by the arm count
	positions, err := Generate(p)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(positions) != 3*p.Count {
		t.Fatalf("got %d values, want %d", len(positions), 3*p.Count)
	}

	if _, err := Generate(Params{Count: -1}); err == nil {
		t.Error("expected validation error for negative count")
	}
}

func TestGenerateBounds(t *testing.T) {
	p := DefaultParams()
	p.Count = 20000
	positions, err := Generate(p)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	maxPlanar := float64(p.Radius + 10*p.Spread)
	maxZ := float64(10*p.Thickness) + 1
	for i := 0; i < p.Count; i++ {
		x, y, z := positions[3*i], positions[3*i+1], positions[3*i+2]
		if planar := math.Hypot(float64(x), float64(y)); planar > maxPlanar {
			t.Fatalf("point %d is %f off axis, beyond %f", i, planar, maxPlanar)
		}
		if math.Abs(float64(z)) > maxZ {
			t.Fatalf("point %d is %f off the plane, beyond %f", i, z, maxZ)
		}
	}
}

// Consecutive indices within an arm must stay spatially close. That layout
// is what makes a small index window around a coarse hit a valid spatial
// neighborhood.
func TestStorageLocality(t *testing.T) {
	p := Params{Count: 4000, Arms: 4, Radius: 100, Twist: 3, Thickness: 1, Spread: 0.5, Seed: 9}
	positions, err := Generate(p)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	perArm := p.Count / p.Arms
	const maxNeighborDist = 15.0
	for i := 0; i+1 < p.Count; i++ {
		if (i+1)%perArm == 0 {
			continue // arm boundary, rim jumps back to the core
		}
		a := metric.Vec3{X: positions[3*i], Y: positions[3*i+1], Z: positions[3*i+2]}
		b := metric.Vec3{X: positions[3*i+3], Y: positions[3*i+4], Z: positions[3*i+5]}
		if d := math.Sqrt(a.DistSq(b)); d > maxNeighborDist {
			t.Fatalf("indices %d and %d are %f apart", i, i+1, d)
		}
	}
}

func TestAnchorTargets(t *testing.T) {
	p := DefaultParams()
	p.Count = 20000

	targets := AnchorTargets(12, p)
	if len(targets) != 12 {
		t.Fatalf("got %d targets, want 12", len(targets))
	}
	again := AnchorTargets(12, p)
	for i := range targets {
		if targets[i] != again[i] {
			t.Fatalf("target %d not deterministic: %+v vs %+v", i, targets[i], again[i])
		}
	}
	if AnchorTargets(0, p) != nil {
		t.Error("zero targets should return nil")
	}

	// Targets sit on the arm centerlines, so the cloud must have samples
	// close to each one.
	positions, err := Generate(p)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	s := metric.NewScanner(positions)
	for i, target := range targets {
		idx, d := s.NearestTarget(target, 0, s.Len(), 1)
		if idx < 0 {
			t.Fatalf("target %d found no neighbor", i)
		}
		if limit := float64(p.Radius / 4); d > limit*limit {
			t.Errorf("target %d: nearest sample is %f away", i, math.Sqrt(d))
		}
	}
}
