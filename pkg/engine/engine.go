// Package engine provides the high-level, embedded interface for
// StarfieldDB.
//
// It owns the field catalog and funnels every mutation (generation, anchor
// assignment, selection) through its methods, so there is no global mutable
// state to coordinate. A small manifest persists the engine's state across
// restarts; point buffers themselves are never written to disk, because
// generation parameters reproduce them bit for bit.
//
// Basic usage:
//
//	opts := engine.DefaultOptions("./data")
//	db, err := engine.Open(opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
package engine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starfielddb/starfielddb/pkg/core"
)

// Options configures the behavior of the Engine, including persistence and
// search policies.
type Options struct {
	// DataDir is the directory where the manifest file is stored.
	// It is created automatically if it does not exist.
	DataDir string

	// ManifestFilename is the name of the manifest file
	// (default: "starfield.manifest").
	ManifestFilename string

	// AutoSaveInterval defines how much time must pass since the last save
	// before the manifest is written again (if AutoSaveThreshold is also
	// met). Set to 0 to disable time-based auto-saving.
	AutoSaveInterval time.Duration

	// AutoSaveThreshold defines how many mutations must occur before the
	// manifest is written again (if AutoSaveInterval is also met).
	// Set to 0 to disable count-based auto-saving.
	AutoSaveThreshold int64

	// OffloadDisabled forces every anchor assignment onto the synchronous
	// path. Useful for debugging and for single-threaded embedders.
	OffloadDisabled bool

	// TargetScanBudget overrides the coarse-phase sample budget for target
	// searches. 0 keeps the built-in policy (about 100k samples).
	TargetScanBudget int

	// RayScanBudget overrides the coarse-phase sample budget for ray
	// searches. 0 keeps the built-in policy (about 150k samples).
	RayScanBudget int

	// MaxPickDistance is the perpendicular cutoff applied to ray picks
	// that do not carry their own. 0 keeps the built-in 0.6.
	MaxPickDistance float64
}

// DefaultOptions returns a standard configuration suitable for most use
// cases.
//
// Defaults:
//   - DataDir: provided path
//   - ManifestFilename: "starfield.manifest"
//   - AutoSave: every 60s when at least 1 mutation occurred
func DefaultOptions(dataDir string) Options {
	return Options{
		DataDir:           dataDir,
		ManifestFilename:  "starfield.manifest",
		AutoSaveInterval:  60 * time.Second,
		AutoSaveThreshold: 1,
	}
}

// Engine is the main entry point for StarfieldDB. It coordinates the field
// catalog, the per-field session state (anchor sets, selections) and the
// manifest on disk.
//
// Use Open() to initialize an Engine and Close() to shut it down gracefully.
type Engine struct {
	// Fields is the underlying catalog. While exported for read access,
	// mutations should go through Engine methods so session state and the
	// manifest stay in sync.
	Fields *core.Catalog

	opts         Options
	manifestPath string

	// dirtyCounter tracks mutations since the last manifest save.
	dirtyCounter int64
	lastSaveTime time.Time

	// adminMu serializes administrative tasks (manifest save/load).
	adminMu sync.Mutex

	// mu guards the session state below.
	mu         sync.RWMutex
	anchorSets map[string]*AnchorSet
	selections map[string]core.Selection
	inflight   map[string]struct{}

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Open initializes a new Engine instance using the provided options.
//
// It creates DataDir if missing, restores fields from the manifest when one
// exists (regenerating every buffer from its saved params) and starts the
// background auto-save task. It blocks until the engine is ready.
func Open(opts Options) (*Engine, error) {
	if opts.ManifestFilename == "" {
		opts.ManifestFilename = "starfield.manifest"
	}
	if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	e := &Engine{
		Fields:       core.NewCatalog(),
		opts:         opts,
		manifestPath: filepath.Join(opts.DataDir, opts.ManifestFilename),
		lastSaveTime: time.Now(),
		anchorSets:   make(map[string]*AnchorSet),
		selections:   make(map[string]core.Selection),
		inflight:     make(map[string]struct{}),
		closed:       make(chan struct{}),
	}

	if _, err := os.Stat(e.manifestPath); err == nil {
		if err := e.loadManifest(); err != nil {
			return nil, fmt.Errorf("failed to load manifest: %w", err)
		}
	}

	e.wg.Add(1)
	go e.backgroundTasks()

	return e, nil
}

// Close performs a clean shutdown of the Engine. It stops the background
// task and writes a final manifest when unsaved mutations exist.
func (e *Engine) Close() error {
	var err error

	// Executes the block only once, even if called repeatedly.
	e.closeOnce.Do(func() {
		close(e.closed)
		e.wg.Wait()

		if atomic.LoadInt64(&e.dirtyCounter) > 0 {
			err = e.SaveManifest()
		}
	})

	return err
}

// markDirty records one mutation for the auto-save policy.
func (e *Engine) markDirty() {
	atomic.AddInt64(&e.dirtyCounter, 1)
}

// backgroundTasks handles automatic manifest saving.
// (Unexported: internal use only)
func (e *Engine) backgroundTasks() {
	defer e.wg.Done()
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-e.closed:
			return
		case <-ticker.C:
			e.checkMaintenance()
		}
	}
}

// checkMaintenance evaluates if a manifest save is due.
// (Unexported: internal use only)
func (e *Engine) checkMaintenance() {
	if e.opts.AutoSaveThreshold <= 0 || e.opts.AutoSaveInterval <= 0 {
		return
	}
	// Lightweight atomic check before touching any lock.
	dirty := atomic.LoadInt64(&e.dirtyCounter)
	if dirty < e.opts.AutoSaveThreshold {
		return
	}

	e.adminMu.Lock()
	due := time.Since(e.lastSaveTime) >= e.opts.AutoSaveInterval
	e.adminMu.Unlock()
	if !due {
		return
	}

	if err := e.SaveManifest(); err != nil {
		slog.Error("Background manifest save failed", "error", err)
	}
}

// resolveTargetStep applies the step policy for target searches: an
// explicit step wins, then the configured budget, then the built-in one.
func (e *Engine) resolveTargetStep(step, n int) int {
	if step > 0 {
		return step
	}
	if b := e.opts.TargetScanBudget; b > 0 {
		if s := n / b; s > 1 {
			return s
		}
		return 1
	}
	return core.DefaultTargetStep(n)
}

// resolveRayStep is resolveTargetStep for ray searches.
func (e *Engine) resolveRayStep(step, n int) int {
	if step > 0 {
		return step
	}
	if b := e.opts.RayScanBudget; b > 0 {
		if s := n / b; s > 1 {
			return s
		}
		return 1
	}
	return core.DefaultRayStep(n)
}

func (e *Engine) resolveMaxPickDistance(d float64) float64 {
	if d > 0 {
		return d
	}
	if e.opts.MaxPickDistance > 0 {
		return e.opts.MaxPickDistance
	}
	return core.DefaultMaxPickDistance
}
