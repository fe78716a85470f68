package engine

import (
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/starfielddb/starfielddb/pkg/core"
	"github.com/starfielddb/starfielddb/pkg/core/galaxy"
	"github.com/starfielddb/starfielddb/pkg/core/metric"
	"github.com/starfielddb/starfielddb/pkg/metrics"
)

// manifest is the gob-encoded on-disk state. Point buffers are never
// persisted: a field's params regenerate its buffer bit for bit, so the
// manifest stays a few kilobytes regardless of how many points exist.
type manifest struct {
	SavedAt time.Time
	Fields  []fieldState
}

type fieldState struct {
	Name      string
	Params    galaxy.Params
	Targets   []metric.Vec3
	Labels    []string
	Step      int
	Selection *core.Selection
}

// SaveManifest writes the current engine state to disk atomically.
func (e *Engine) SaveManifest() error {
	e.adminMu.Lock()
	defer e.adminMu.Unlock()
	return e.saveManifestLocked()
}

// saveManifestLocked performs the actual save. Assumes adminMu is held.
func (e *Engine) saveManifestLocked() error {
	m := e.buildManifest()

	tmpPath := e.manifestPath + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("engine: creating manifest temp file: %w", err)
	}

	if err := gob.NewEncoder(file).Encode(m); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("engine: encoding manifest: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("engine: closing manifest temp file: %w", err)
	}
	if err := os.Rename(tmpPath, e.manifestPath); err != nil {
		return fmt.Errorf("engine: replacing manifest: %w", err)
	}

	atomic.StoreInt64(&e.dirtyCounter, 0)
	e.lastSaveTime = time.Now()
	slog.Info("manifest saved", "path", e.manifestPath, "fields", len(m.Fields))
	return nil
}

// buildManifest snapshots the catalog plus session state. Anchor sets and
// selections belonging to an older generation are skipped: they no longer
// describe the live buffer and would be discarded on load anyway.
func (e *Engine) buildManifest() manifest {
	m := manifest{SavedAt: time.Now()}

	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, f := range e.Fields.List() {
		st := fieldState{Name: f.Name(), Params: f.Params()}
		gen := f.Generation()
		if set, ok := e.anchorSets[f.Name()]; ok && set.Generation == gen {
			st.Targets = set.Targets
			st.Labels = labelsOf(set.Anchors)
			st.Step = set.Step
		}
		if sel, ok := e.selections[f.Name()]; ok && sel.Generation == gen {
			s := sel
			st.Selection = &s
		}
		m.Fields = append(m.Fields, st)
	}
	return m
}

// labelsOf collects anchor labels positionally, returning nil when no
// anchor carries one so the manifest does not store empty strings.
func labelsOf(anchors []core.Anchor) []string {
	labeled := false
	labels := make([]string, len(anchors))
	for i, a := range anchors {
		labels[i] = a.Label
		if a.Label != "" {
			labeled = true
		}
	}
	if !labeled {
		return nil
	}
	return labels
}

// loadManifest restores fields, anchor sets and selections from disk.
// Buffers are regenerated from their saved params and anchor targets are
// re-resolved against the fresh buffers, which yields the same indices
// because params fully determine the point layout.
func (e *Engine) loadManifest() error {
	file, err := os.Open(e.manifestPath)
	if err != nil {
		return fmt.Errorf("engine: opening manifest: %w", err)
	}
	defer file.Close()

	var m manifest
	if err := gob.NewDecoder(file).Decode(&m); err != nil {
		return fmt.Errorf("engine: decoding manifest: %w", err)
	}

	for _, st := range m.Fields {
		f, err := e.Fields.Create(st.Name, st.Params)
		if err != nil {
			return fmt.Errorf("engine: restoring field %q: %w", st.Name, err)
		}
		metrics.TotalPoints.WithLabelValues(st.Name).Set(float64(f.Len()))

		if len(st.Targets) > 0 {
			step := e.resolveTargetStep(st.Step, f.Len())
			if _, err := e.assignSync(f, st.Targets, st.Labels, step); err != nil {
				return fmt.Errorf("engine: restoring anchors for field %q: %w", st.Name, err)
			}
		}

		if st.Selection != nil {
			idx := st.Selection.Index
			if idx < 0 || idx >= f.Len() {
				slog.Warn("dropping out-of-range selection from manifest",
					"field", st.Name, "index", idx, "points", f.Len())
				continue
			}
			sel := core.Selection{Index: idx, Position: f.At(idx), Generation: f.Generation()}
			e.mu.Lock()
			e.selections[st.Name] = sel
			e.mu.Unlock()
		}
	}

	atomic.StoreInt64(&e.dirtyCounter, 0)
	e.lastSaveTime = time.Now()
	slog.Info("manifest loaded",
		"path", e.manifestPath,
		"fields", len(m.Fields),
		"saved_at", m.SavedAt.Format(time.RFC3339))
	return nil
}
