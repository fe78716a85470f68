package engine

import (
	"fmt"
	"time"

	"github.com/starfielddb/starfielddb/pkg/core"
	"github.com/starfielddb/starfielddb/pkg/core/metric"
	"github.com/starfielddb/starfielddb/pkg/metrics"
)

// Pick runs the ray search against a field and, on a hit, records the
// picked point as the field's selection. A miss returns (nil, nil) and
// leaves the selection alone. step 0 and maxPerpDist 0 select the
// configured defaults.
func (e *Engine) Pick(name string, ray metric.Ray, step int, maxPerpDist float64) (*core.Pick, error) {
	f, err := e.Fields.Get(name)
	if err != nil {
		return nil, err
	}
	step = e.resolveRayStep(step, f.Len())
	maxPerpDist = e.resolveMaxPickDistance(maxPerpDist)

	gen := f.Generation()
	start := time.Now()
	pick, err := f.NearestToRay(ray, step, maxPerpDist)
	if err != nil {
		return nil, err
	}
	metrics.SearchesTotal.WithLabelValues("ray").Inc()
	metrics.SearchDuration.WithLabelValues("ray").Observe(time.Since(start).Seconds())
	if pick == nil {
		metrics.PicksTotal.WithLabelValues("miss").Inc()
		return nil, nil
	}
	metrics.PicksTotal.WithLabelValues("hit").Inc()

	sel := core.Selection{Index: pick.Index, Position: pick.Position, Generation: gen}
	e.mu.Lock()
	e.selections[name] = sel
	e.mu.Unlock()
	e.markDirty()
	return pick, nil
}

// SetSelection pins the field's selection to an explicit point index.
func (e *Engine) SetSelection(name string, index int) (*core.Selection, error) {
	f, err := e.Fields.Get(name)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= f.Len() {
		return nil, fmt.Errorf("engine: index %d out of range for field %q with %d points",
			index, name, f.Len())
	}
	sel := core.Selection{Index: index, Position: f.At(index), Generation: f.Generation()}
	e.mu.Lock()
	e.selections[name] = sel
	e.mu.Unlock()
	e.markDirty()
	return &sel, nil
}

// ClearSelection removes the field's selection, if any.
func (e *Engine) ClearSelection(name string) error {
	if _, err := e.Fields.Get(name); err != nil {
		return err
	}
	e.mu.Lock()
	delete(e.selections, name)
	e.mu.Unlock()
	e.markDirty()
	return nil
}

// Selection returns the field's current selection, or nil when there is
// none or the field was regenerated since it was made.
func (e *Engine) Selection(name string) (*core.Selection, error) {
	f, err := e.Fields.Get(name)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	sel, ok := e.selections[name]
	e.mu.RUnlock()
	if !ok || sel.Generation != f.Generation() {
		return nil, nil
	}
	return &sel, nil
}
