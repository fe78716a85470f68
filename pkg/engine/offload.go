package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starfielddb/starfielddb/pkg/core"
	"github.com/starfielddb/starfielddb/pkg/core/metric"
	"github.com/starfielddb/starfielddb/pkg/metrics"
)

var (
	// ErrOffloadDisabled reports that Options.OffloadDisabled is set.
	ErrOffloadDisabled = errors.New("engine: worker offload is disabled")

	// ErrOffloadBusy reports that an assignment is already in flight for
	// the field. At most one request per field runs at a time.
	ErrOffloadBusy = errors.New("engine: anchor assignment already in flight for this field")

	// ErrStaleResult reports that the field was regenerated while the
	// request was in flight. The result was discarded, not applied.
	ErrStaleResult = errors.New("engine: worker result is stale")
)

// anchorRequest is the message handed to a background worker: a private
// copy of the position buffer plus the query set, tagged with a request id
// and the generation the copy was taken from.
type anchorRequest struct {
	ID         uuid.UUID
	Field      string
	Generation uint64
	Positions  []float32
	Targets    []metric.Vec3
	Step       int
}

// anchorResponse carries the worker's result back on a one-shot channel.
// Err is set when the worker panicked or the search rejected its input.
type anchorResponse struct {
	ID         uuid.UUID
	Generation uint64
	Anchors    []core.Anchor
	Err        error
}

// dispatchAnchors spawns the one-shot worker goroutine. The goroutine owns
// req.Positions outright, sends exactly one response, and exits. A panic
// inside the search comes back as an error instead of taking the process
// down.
func dispatchAnchors(req anchorRequest) <-chan anchorResponse {
	ch := make(chan anchorResponse, 1)
	go func() {
		defer close(ch)
		resp := anchorResponse{ID: req.ID, Generation: req.Generation}
		defer func() {
			if r := recover(); r != nil {
				resp.Anchors = nil
				resp.Err = fmt.Errorf("engine: anchor worker panicked: %v", r)
				ch <- resp
			}
		}()
		resp.Anchors, resp.Err = core.AssignAnchors(req.Positions, req.Targets, req.Step)
		ch <- resp
	}()
	return ch
}

// AssignAnchorsAsync is AssignAnchors with the search offloaded to a
// background worker, so the calling goroutine blocks on a channel rather
// than on the scan itself. The worker receives a private copy of the
// position buffer and never sees later regenerations; a result arriving
// after the field was regenerated is discarded with ErrStaleResult. Any
// dispatch failure (offload disabled, a request already in flight, a worker
// panic) falls back to the synchronous path, so assignment completes
// whenever ctx allows.
func (e *Engine) AssignAnchorsAsync(ctx context.Context, name string, targets []metric.Vec3, labels []string, step int) ([]core.Anchor, error) {
	f, err := e.Fields.Get(name)
	if err != nil {
		return nil, err
	}
	if err := checkLabels(targets, labels); err != nil {
		return nil, err
	}
	step = e.resolveTargetStep(step, f.Len())

	anchors, err := e.assignViaWorker(ctx, f, targets, labels, step)
	switch {
	case err == nil:
		return anchors, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, err
	case errors.Is(err, ErrStaleResult):
		return nil, err
	case errors.Is(err, core.ErrEmptyField), errors.Is(err, core.ErrInvalidStep):
		// The synchronous path would reject the same input; don't run it
		// only to fail again.
		return nil, err
	default:
		slog.Warn("anchor offload failed, falling back to synchronous assignment",
			"field", name, "reason", err)
		metrics.OffloadFallbackTotal.Inc()
		return e.assignSync(f, targets, labels, step)
	}
}

func (e *Engine) assignViaWorker(ctx context.Context, f *core.Field, targets []metric.Vec3, labels []string, step int) ([]core.Anchor, error) {
	if e.opts.OffloadDisabled {
		return nil, ErrOffloadDisabled
	}
	name := f.Name()
	if !e.tryAcquireOffload(name) {
		return nil, ErrOffloadBusy
	}
	defer e.releaseOffload(name)

	gen, positions := f.Snapshot()
	req := anchorRequest{
		ID:         uuid.New(),
		Field:      name,
		Generation: gen,
		Positions:  positions,
		Targets:    targets,
		Step:       step,
	}
	slog.Debug("dispatching anchor assignment",
		"field", name, "request_id", req.ID, "targets", len(targets), "generation", gen)
	metrics.OffloadDispatchTotal.Inc()

	start := time.Now()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-dispatchAnchors(req):
		metrics.SearchesTotal.WithLabelValues("target").Add(float64(len(targets)))
		metrics.SearchDuration.WithLabelValues("target").Observe(time.Since(start).Seconds())
		return e.applyAnchorResult(f, targets, labels, step, resp)
	}
}

// applyAnchorResult validates a worker response and, when its generation
// still matches the field, installs the anchors as the field's anchor set.
// Stale responses are discarded without touching any state.
func (e *Engine) applyAnchorResult(f *core.Field, targets []metric.Vec3, labels []string, step int, resp anchorResponse) ([]core.Anchor, error) {
	if resp.Err != nil {
		return nil, resp.Err
	}
	if cur := f.Generation(); resp.Generation != cur {
		metrics.OffloadStaleTotal.Inc()
		slog.Info("discarding stale anchor result", "field", f.Name(),
			"request_id", resp.ID, "request_generation", resp.Generation, "field_generation", cur)
		return nil, fmt.Errorf("%w: request generation %d, field generation %d",
			ErrStaleResult, resp.Generation, cur)
	}
	attachLabels(resp.Anchors, labels)
	e.storeAnchorSet(f.Name(), resp.Anchors, targets, step, resp.Generation)
	return resp.Anchors, nil
}

func (e *Engine) tryAcquireOffload(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[name]; busy {
		return false
	}
	e.inflight[name] = struct{}{}
	return true
}

func (e *Engine) releaseOffload(name string) {
	e.mu.Lock()
	delete(e.inflight, name)
	e.mu.Unlock()
}
