package engine

import (
	"io"
	"log/slog"

	"github.com/starfielddb/starfielddb/pkg/core"
	"github.com/starfielddb/starfielddb/pkg/core/galaxy"
	"github.com/starfielddb/starfielddb/pkg/core/metric"
	"github.com/starfielddb/starfielddb/pkg/metrics"
)

// FieldInfo is a point-free summary of a field plus its session state.
type FieldInfo struct {
	Name       string          `json:"name"`
	Points     int             `json:"points"`
	Generation uint64          `json:"generation"`
	Params     galaxy.Params   `json:"params"`
	Bounds     core.Bounds     `json:"bounds"`
	Anchors    int             `json:"anchors"`
	Selection  *core.Selection `json:"selection,omitempty"`
}

// CreateField generates a new field from params and registers it.
func (e *Engine) CreateField(name string, params galaxy.Params) (*core.Field, error) {
	f, err := e.Fields.Create(name, params)
	if err != nil {
		return nil, err
	}
	metrics.TotalPoints.WithLabelValues(name).Set(float64(f.Len()))
	e.markDirty()
	slog.Info("field created", "field", name, "points", f.Len(), "seed", params.Seed)
	return f, nil
}

// DropField removes a field along with its anchor set and selection.
func (e *Engine) DropField(name string) error {
	if err := e.Fields.Drop(name); err != nil {
		return err
	}
	e.mu.Lock()
	delete(e.anchorSets, name)
	delete(e.selections, name)
	e.mu.Unlock()
	metrics.TotalPoints.DeleteLabelValues(name)
	e.markDirty()
	slog.Info("field dropped", "field", name)
	return nil
}

// RegenerateField replaces a field's buffer with one generated from params.
// The anchor set and selection are cleared: they referenced indices of the
// previous generation.
func (e *Engine) RegenerateField(name string, params galaxy.Params) (*core.Field, error) {
	f, err := e.Fields.Get(name)
	if err != nil {
		return nil, err
	}
	if err := f.Regenerate(params); err != nil {
		return nil, err
	}
	e.mu.Lock()
	delete(e.anchorSets, name)
	delete(e.selections, name)
	e.mu.Unlock()
	metrics.TotalPoints.WithLabelValues(name).Set(float64(f.Len()))
	e.markDirty()
	slog.Info("field regenerated", "field", name, "points", f.Len(), "generation", f.Generation())
	return f, nil
}

// Field returns the named field for direct read access.
func (e *Engine) Field(name string) (*core.Field, error) {
	return e.Fields.Get(name)
}

// WritePositions streams a field's raw position buffer to w, little-endian,
// at the given precision.
func (e *Engine) WritePositions(w io.Writer, name string, p metric.Precision) error {
	f, err := e.Fields.Get(name)
	if err != nil {
		return err
	}
	return f.WritePositions(w, p)
}

// Info summarizes one field.
func (e *Engine) Info(name string) (FieldInfo, error) {
	f, err := e.Fields.Get(name)
	if err != nil {
		return FieldInfo{}, err
	}
	return e.infoOf(f), nil
}

// ListFields summarizes all fields in name order.
func (e *Engine) ListFields() []FieldInfo {
	fields := e.Fields.List()
	out := make([]FieldInfo, 0, len(fields))
	for _, f := range fields {
		out = append(out, e.infoOf(f))
	}
	return out
}

func (e *Engine) infoOf(f *core.Field) FieldInfo {
	info := FieldInfo{
		Name:       f.Name(),
		Points:     f.Len(),
		Generation: f.Generation(),
		Params:     f.Params(),
		Bounds:     f.Bounds(),
	}
	e.mu.RLock()
	if set, ok := e.anchorSets[f.Name()]; ok && set.Generation == info.Generation {
		info.Anchors = len(set.Anchors)
	}
	if sel, ok := e.selections[f.Name()]; ok && sel.Generation == info.Generation {
		s := sel
		info.Selection = &s
	}
	e.mu.RUnlock()
	return info
}
