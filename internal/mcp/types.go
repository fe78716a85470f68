package mcp

import (
	"github.com/starfielddb/starfielddb/pkg/core"
	"github.com/starfielddb/starfielddb/pkg/core/metric"
	"github.com/starfielddb/starfielddb/pkg/engine"
)

// --- Tool Arguments ---

type ListFieldsArgs struct{}

type ListFieldsResult struct {
	Fields []engine.FieldInfo `json:"fields"`
}

type GenerateFieldArgs struct {
	Name      string  `json:"name" jsonschema:"Unique name of the field (e.g. 'orion'),required"`
	Count     int     `json:"count,omitempty" jsonschema:"Number of points to generate (default 100000)"`
	Arms      int     `json:"arms,omitempty" jsonschema:"Number of spiral arms (default 4)"`
	Radius    float32 `json:"radius,omitempty" jsonschema:"Extent of the disc on the galactic plane (default 100)"`
	Twist     float32 `json:"twist,omitempty" jsonschema:"Radians an arm winds from core to rim (default 3.5)"`
	Thickness float32 `json:"thickness,omitempty" jsonschema:"Vertical scatter off the galactic plane (default 4)"`
	Spread    float32 `json:"spread,omitempty" jsonschema:"Positional scatter around the arm centerline (default 2)"`
	Seed      int64   `json:"seed,omitempty" jsonschema:"Seed driving all randomness; same seed, same galaxy (default 42)"`
	Replace   bool    `json:"replace,omitempty" jsonschema:"description=If true, regenerates the field when it already exists instead of failing."`
}

type GenerateFieldResult struct {
	Field engine.FieldInfo `json:"field"`
}

type FieldInfoArgs struct {
	Name string `json:"name" jsonschema:"Name of the field,required"`
}

type FieldInfoResult struct {
	Field engine.FieldInfo `json:"field"`
}

type AssignAnchorsArgs struct {
	Field   string        `json:"field" jsonschema:"Name of the field to search,required"`
	Targets []metric.Vec3 `json:"targets" jsonschema:"World-space target positions; one anchor is resolved per target,required"`
	Labels  []string      `json:"labels,omitempty" jsonschema:"Optional labels, positionally aligned with targets"`
	Step    int           `json:"step,omitempty" jsonschema:"Coarse scan stride; 0 derives one from the field size"`
}

type AssignAnchorsResult struct {
	Anchors    []core.Anchor `json:"anchors"`
	Generation uint64        `json:"generation"`
}

type PickRayArgs struct {
	Field       string      `json:"field" jsonschema:"Name of the field to pick from,required"`
	Origin      metric.Vec3 `json:"origin" jsonschema:"Ray origin in world space,required"`
	Dir         metric.Vec3 `json:"dir" jsonschema:"Ray direction; it does not need to be normalized,required"`
	Step        int         `json:"step,omitempty" jsonschema:"Coarse scan stride; 0 derives one from the field size"`
	MaxPerpDist float64     `json:"max_perp_dist,omitempty" jsonschema:"Perpendicular distance cutoff; 0 uses the engine default"`
}

// PickRayResult reports the pick outcome. A miss sets Hit to false and
// leaves the other fields empty; it is not an error.
type PickRayResult struct {
	Hit        bool         `json:"hit"`
	Index      int          `json:"index,omitempty"`
	Position   *metric.Vec3 `json:"position,omitempty"`
	PerpDistSq float64      `json:"perp_dist_sq,omitempty"`
}
