package server

import (
	"github.com/starfielddb/starfielddb/pkg/core"
	"github.com/starfielddb/starfielddb/pkg/core/galaxy"
	"github.com/starfielddb/starfielddb/pkg/core/metric"
)

// CreateFieldRequest creates and generates a new field. A nil Params uses
// the galaxy defaults.
type CreateFieldRequest struct {
	Name   string         `json:"name"`
	Params *galaxy.Params `json:"params,omitempty"`
}

// RegenerateFieldRequest replaces a field's buffer. Params is required:
// regenerating with the current parameters would reproduce the exact same
// points.
type RegenerateFieldRequest struct {
	Params *galaxy.Params `json:"params"`
}

// AssignAnchorsRequest resolves the nearest point for each target.
// Step 0 uses the engine's stride policy. With Async set the server answers
// immediately with a task id instead of the anchors.
type AssignAnchorsRequest struct {
	Targets []metric.Vec3 `json:"targets"`
	Labels  []string      `json:"labels,omitempty"`
	Step    int           `json:"step,omitempty"`
	Async   bool          `json:"async,omitempty"`
}

// AssignAnchorsResponse carries the resolved anchors, positionally aligned
// with the request targets, plus the generation they were resolved against.
type AssignAnchorsResponse struct {
	Anchors    []core.Anchor `json:"anchors"`
	Generation uint64        `json:"generation"`
}

// TaskStartedResponse acknowledges an asynchronous request.
type TaskStartedResponse struct {
	TaskID string `json:"task_id"`
}

// PickRequest casts a ray into the field. Dir does not need to be
// normalized; the server normalizes it. Step and MaxPerpDist at zero use
// the engine's policies.
type PickRequest struct {
	Origin      metric.Vec3 `json:"origin"`
	Dir         metric.Vec3 `json:"dir"`
	Step        int         `json:"step,omitempty"`
	MaxPerpDist float64     `json:"max_perp_dist,omitempty"`
}

// PickResponse reports the pick outcome. A miss is a normal response with
// Hit false, not an error.
type PickResponse struct {
	Hit  bool       `json:"hit"`
	Pick *core.Pick `json:"pick,omitempty"`
}

// SetSelectionRequest pins the selection to an explicit point index.
type SetSelectionRequest struct {
	Index int `json:"index"`
}
