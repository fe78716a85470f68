package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/starfielddb/starfielddb/pkg/core"
	"github.com/starfielddb/starfielddb/pkg/core/metric"
	"github.com/starfielddb/starfielddb/pkg/metrics"
)

// ErrLabelMismatch reports a label slice whose length does not match the
// target slice.
var ErrLabelMismatch = errors.New("engine: label count does not match target count")

// AnchorSet is the most recent anchor assignment applied to a field. It is
// valid for the generation it was computed against; after a regeneration
// the engine reports no anchors until a new assignment lands.
type AnchorSet struct {
	Anchors    []core.Anchor `json:"anchors"`
	Targets    []metric.Vec3 `json:"targets"`
	Step       int           `json:"step"`
	Generation uint64        `json:"generation"`
	AssignedAt time.Time     `json:"assigned_at"`
}

// AssignAnchors resolves the nearest point for every target on the calling
// goroutine and installs the result as the field's anchor set. Results are
// positionally aligned with targets. labels may be nil or must carry one
// entry per target. step 0 selects the default stride for the field's size.
func (e *Engine) AssignAnchors(name string, targets []metric.Vec3, labels []string, step int) ([]core.Anchor, error) {
	f, err := e.Fields.Get(name)
	if err != nil {
		return nil, err
	}
	if err := checkLabels(targets, labels); err != nil {
		return nil, err
	}
	step = e.resolveTargetStep(step, f.Len())
	return e.assignSync(f, targets, labels, step)
}

func (e *Engine) assignSync(f *core.Field, targets []metric.Vec3, labels []string, step int) ([]core.Anchor, error) {
	gen := f.Generation()
	start := time.Now()
	anchors, err := f.AssignAnchors(targets, step)
	if err != nil {
		return nil, err
	}
	metrics.SearchesTotal.WithLabelValues("target").Add(float64(len(targets)))
	metrics.SearchDuration.WithLabelValues("target").Observe(time.Since(start).Seconds())
	attachLabels(anchors, labels)
	e.storeAnchorSet(f.Name(), anchors, targets, step, gen)
	return anchors, nil
}

// attachLabels writes labels onto anchors positionally. Alignment was
// validated up front by checkLabels.
func attachLabels(anchors []core.Anchor, labels []string) {
	for i := range labels {
		anchors[i].Label = labels[i]
	}
}

func checkLabels(targets []metric.Vec3, labels []string) error {
	if len(labels) != 0 && len(labels) != len(targets) {
		return fmt.Errorf("%w: %d labels for %d targets", ErrLabelMismatch, len(labels), len(targets))
	}
	return nil
}

func (e *Engine) storeAnchorSet(name string, anchors []core.Anchor, targets []metric.Vec3, step int, gen uint64) {
	set := &AnchorSet{
		Anchors:    anchors,
		Targets:    targets,
		Step:       step,
		Generation: gen,
		AssignedAt: time.Now(),
	}
	e.mu.Lock()
	e.anchorSets[name] = set
	e.mu.Unlock()
	e.markDirty()
}

// Anchors returns the field's current anchor set, or nil when none has been
// applied since the last (re)generation.
func (e *Engine) Anchors(name string) (*AnchorSet, error) {
	f, err := e.Fields.Get(name)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	set, ok := e.anchorSets[name]
	e.mu.RUnlock()
	if !ok || set.Generation != f.Generation() {
		return nil, nil
	}
	return set, nil
}
