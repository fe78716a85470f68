// Package metric provides the geometric primitives and distance kernels for
// StarfieldDB: float32 3D vectors, rays, squared-distance metrics, and the
// coarse-scan kernels that sweep a flat xyz position buffer.
//
// The package keeps the whole data plane in float32 (positions are stored as
// 32-bit floats) and widens to float64 only for returned distances. Scan
// kernels come in two flavors: a pure Go reference implementation and a
// Gonum (BLAS) batch path selected at startup via CPU feature detection.
package metric

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
)

// Vec3 is a 3D position or direction in the field's own coordinate units.
type Vec3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale returns v scaled by s.
func (v Vec3) Scale(s float32) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// Dot returns the dot product of v and o.
func (v Vec3) Dot(o Vec3) float32 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// LengthSq returns the squared length of v.
func (v Vec3) LengthSq() float32 {
	return v.Dot(v)
}

// Length returns the length of v.
func (v Vec3) Length() float32 {
	return math32.Sqrt(v.LengthSq())
}

// Normalized returns v scaled to unit length. The zero vector is returned
// unchanged; callers that need a valid direction should use NewRay, which
// rejects it.
func (v Vec3) Normalized() Vec3 {
	l := v.Length()
	if l == 0 {
		return v
	}
	return v.Scale(1 / l)
}

// DistSq returns the squared Euclidean distance between v and o. Squared
// distance avoids the square root; since squaring is monotonic for
// non-negative values it never changes which candidate is nearest.
func (v Vec3) DistSq(o Vec3) float64 {
	dx := v.X - o.X
	dy := v.Y - o.Y
	dz := v.Z - o.Z
	return float64(dx*dx + dy*dy + dz*dz)
}

// ErrZeroDirection is returned by NewRay for a direction with no length.
var ErrZeroDirection = errors.New("metric: ray direction must be non-zero")

// Ray is an infinite ray with a unit-length direction.
type Ray struct {
	Origin Vec3 `json:"origin"`
	Dir    Vec3 `json:"dir"`
}

// NewRay builds a Ray from an origin and a (not necessarily unit) direction.
func NewRay(origin, dir Vec3) (Ray, error) {
	if dir.LengthSq() == 0 {
		return Ray{}, ErrZeroDirection
	}
	return Ray{Origin: origin, Dir: dir.Normalized()}, nil
}

// PerpDistSq returns the squared perpendicular distance from p to the
// infinite ray: |p-o|^2 - (dot(p-o, dir))^2 for a unit dir.
func (r Ray) PerpDistSq(p Vec3) float64 {
	rel := p.Sub(r.Origin)
	t := rel.Dot(r.Dir)
	return float64(rel.LengthSq() - t*t)
}

// Precision selects the on-wire encoding of a position stream.
type Precision string

const (
	// Float32 is the native storage precision, 4 bytes per value.
	Float32 Precision = "float32"
	// Float16 halves the payload for exports, 2 bytes per value.
	Float16 Precision = "float16"
)

// ValueSize returns the encoded size in bytes of a single coordinate.
func (p Precision) ValueSize() int {
	if p == Float16 {
		return 2
	}
	return 4
}

// ParsePrecision validates a precision name, defaulting empty to Float32.
func ParsePrecision(s string) (Precision, error) {
	switch Precision(s) {
	case "":
		return Float32, nil
	case Float32, Float16:
		return Precision(s), nil
	default:
		return "", fmt.Errorf("metric: unknown precision %q (use 'float32' or 'float16')", s)
	}
}
