package core

import "github.com/starfielddb/starfielddb/pkg/core/metric"

// Anchor binds a cloud point to the target it was resolved for. Label is
// optional caller-supplied context (the card or marker the anchor backs);
// the search itself never reads it.
type Anchor struct {
	Index    int         `json:"index"`
	Position metric.Vec3 `json:"position"`
	Label    string      `json:"label,omitempty"`
}

// Pick is a successful ray pick: the point whose perpendicular distance to
// the ray was smallest and within the cutoff.
type Pick struct {
	Index      int         `json:"index"`
	Position   metric.Vec3 `json:"position"`
	PerpDistSq float64     `json:"perp_dist_sq"`
}

// Selection is the currently picked point of a field. Valid only for the
// generation it was made against; regeneration invalidates it.
type Selection struct {
	Index      int         `json:"index"`
	Position   metric.Vec3 `json:"position"`
	Generation uint64      `json:"generation"`
}
