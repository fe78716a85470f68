package client

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starfielddb/starfielddb/internal/server"
	"github.com/starfielddb/starfielddb/pkg/core/metric"
	"github.com/starfielddb/starfielddb/pkg/engine"
)

// newTestClient spins up a real engine behind an httptest server and
// returns a client pointed at it.
func newTestClient(t *testing.T, token string) *Client {
	t.Helper()
	eng, err := engine.Open(engine.DefaultOptions(t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { eng.Close() })

	srv, err := server.NewServer(eng, ":0", "", token)
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return New(ts.URL, token)
}

func smallParams(count int, seed int64) FieldParams {
	p := DefaultFieldParams()
	p.Count = count
	p.Seed = seed
	return p
}

func TestClientFieldLifecycle(t *testing.T) {
	c := newTestClient(t, "")

	params := smallParams(2000, 7)
	info, err := c.CreateField("orion", &params)
	if err != nil {
		t.Fatalf("CreateField failed: %v", err)
	}
	if info.Name != "orion" || info.Points != 2000 {
		t.Errorf("unexpected field info: %+v", info)
	}

	// Duplicate names must be rejected.
	if _, err := c.CreateField("orion", &params); err == nil {
		t.Error("duplicate CreateField should fail")
	} else {
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict {
			t.Errorf("expected 409 APIError, got %v", err)
		}
	}

	// Nil params means server defaults.
	if _, err := c.CreateField("lyra", nil); err != nil {
		t.Fatalf("CreateField with defaults failed: %v", err)
	}

	fields, err := c.ListFields()
	if err != nil {
		t.Fatalf("ListFields failed: %v", err)
	}
	if len(fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(fields))
	}

	got, err := c.GetFieldInfo("orion")
	if err != nil {
		t.Fatalf("GetFieldInfo failed: %v", err)
	}
	if got.Params.Seed != 7 {
		t.Errorf("expected seed 7, got %d", got.Params.Seed)
	}

	regen := smallParams(3000, 8)
	got, err = c.RegenerateField("orion", regen)
	if err != nil {
		t.Fatalf("RegenerateField failed: %v", err)
	}
	if got.Points != 3000 || got.Generation != info.Generation+1 {
		t.Errorf("unexpected info after regenerate: %+v", got)
	}

	if err := c.DropField("lyra"); err != nil {
		t.Fatalf("DropField failed: %v", err)
	}
	if _, err := c.GetFieldInfo("lyra"); err == nil {
		t.Error("GetFieldInfo on dropped field should fail")
	} else {
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404 APIError, got %v", err)
		}
	}
}

func TestClientAuth(t *testing.T) {
	c := newTestClient(t, "s3cret")

	if _, err := c.ListFields(); err != nil {
		t.Fatalf("authenticated request failed: %v", err)
	}

	bare := New(c.baseURL, "")
	_, err := bare.ListFields()
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 APIError without token, got %v", err)
	}
}

func TestClientAnchors(t *testing.T) {
	c := newTestClient(t, "")

	params := smallParams(2000, 11)
	if _, err := c.CreateField("vega", &params); err != nil {
		t.Fatal(err)
	}

	targets := []metric.Vec3{{X: 20}, {X: -15, Y: 10}, {Z: 1}}
	labels := []string{"alpha", "beta", "gamma"}

	res, err := c.AssignAnchors("vega", targets, labels, 0)
	if err != nil {
		t.Fatalf("AssignAnchors failed: %v", err)
	}
	if len(res.Anchors) != len(targets) {
		t.Fatalf("expected %d anchors, got %d", len(targets), len(res.Anchors))
	}
	for i, a := range res.Anchors {
		if a.Label != labels[i] {
			t.Errorf("anchor %d: expected label %q, got %q", i, labels[i], a.Label)
		}
		if a.Index < 0 || a.Index >= params.Count {
			t.Errorf("anchor %d: index %d out of range", i, a.Index)
		}
	}

	set, err := c.GetAnchors("vega")
	if err != nil {
		t.Fatalf("GetAnchors failed: %v", err)
	}
	if set.Generation != res.Generation || len(set.Anchors) != len(res.Anchors) {
		t.Errorf("stored set diverges from assignment: %+v vs %+v", set, res)
	}

	// The async path must land on the same anchors.
	task, err := c.AssignAnchorsAsync("vega", targets, labels, 0)
	if err != nil {
		t.Fatalf("AssignAnchorsAsync failed: %v", err)
	}
	if err := task.Wait(10*time.Millisecond, 5*time.Second); err != nil {
		t.Fatalf("task wait failed: %v", err)
	}
	asyncRes, err := task.AnchorAssignment()
	if err != nil {
		t.Fatalf("decoding task result failed: %v", err)
	}
	for i := range res.Anchors {
		if asyncRes.Anchors[i].Index != res.Anchors[i].Index {
			t.Errorf("anchor %d: async index %d, sync index %d", i, asyncRes.Anchors[i].Index, res.Anchors[i].Index)
		}
	}
}

func TestClientPickAndSelection(t *testing.T) {
	c := newTestClient(t, "")

	params := smallParams(2000, 13)
	if _, err := c.CreateField("cygnus", &params); err != nil {
		t.Fatal(err)
	}

	// No selection yet.
	if _, err := c.GetSelection("cygnus"); err == nil {
		t.Error("GetSelection on a fresh field should fail")
	} else {
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404 APIError, got %v", err)
		}
	}

	positions, gen, err := c.Positions("cygnus", metric.Float32)
	if err != nil {
		t.Fatalf("Positions failed: %v", err)
	}
	if len(positions) != 3*params.Count {
		t.Fatalf("expected %d values, got %d", 3*params.Count, len(positions))
	}

	// Aim straight down at a known point; the ray passes through it, so
	// the pick cannot miss.
	idx := 100
	p := metric.Vec3{X: positions[3*idx], Y: positions[3*idx+1], Z: positions[3*idx+2]}
	origin := metric.Vec3{X: p.X, Y: p.Y, Z: p.Z + 50}
	pick, err := c.Pick("cygnus", origin, metric.Vec3{Z: -1}, 1, 0)
	if err != nil {
		t.Fatalf("Pick failed: %v", err)
	}
	if pick == nil {
		t.Fatal("expected a hit")
	}
	if pick.PerpDistSq > 1e-6 {
		t.Errorf("ray through the point should have ~0 perp distance, got %g", pick.PerpDistSq)
	}

	// A pick records the selection server-side.
	sel, err := c.GetSelection("cygnus")
	if err != nil {
		t.Fatalf("GetSelection after pick failed: %v", err)
	}
	if sel.Index != pick.Index || sel.Generation != gen {
		t.Errorf("selection %+v does not match pick %+v (gen %d)", sel, pick, gen)
	}

	// A ray far outside the cloud misses.
	miss, err := c.Pick("cygnus", metric.Vec3{X: 500, Y: 500, Z: 500}, metric.Vec3{X: 1}, 0, 0)
	if err != nil {
		t.Fatalf("Pick (miss) failed: %v", err)
	}
	if miss != nil {
		t.Errorf("expected a miss, got %+v", miss)
	}

	// Explicit selection handling.
	sel, err = c.SetSelection("cygnus", 42)
	if err != nil {
		t.Fatalf("SetSelection failed: %v", err)
	}
	if sel.Index != 42 {
		t.Errorf("expected index 42, got %d", sel.Index)
	}
	if err := c.ClearSelection("cygnus"); err != nil {
		t.Fatalf("ClearSelection failed: %v", err)
	}
	if _, err := c.GetSelection("cygnus"); err == nil {
		t.Error("selection should be gone after clear")
	}
}

func TestClientPositionsPrecision(t *testing.T) {
	c := newTestClient(t, "")

	params := smallParams(500, 17)
	if _, err := c.CreateField("draco", &params); err != nil {
		t.Fatal(err)
	}

	full, _, err := c.Positions("draco", metric.Float32)
	if err != nil {
		t.Fatalf("float32 export failed: %v", err)
	}
	half, _, err := c.Positions("draco", metric.Float16)
	if err != nil {
		t.Fatalf("float16 export failed: %v", err)
	}
	if len(full) != len(half) {
		t.Fatalf("decoded lengths diverge: %d vs %d", len(full), len(half))
	}
	for i := range full {
		diff := float64(full[i] - half[i])
		if diff < 0 {
			diff = -diff
		}
		// Half precision keeps about three significant digits and the
		// coordinates stay within a few hundred units.
		if diff > 0.5 {
			t.Fatalf("value %d: float16 roundtrip off by %g (%g vs %g)", i, diff, full[i], half[i])
		}
	}
}

func TestClientSave(t *testing.T) {
	c := newTestClient(t, "")
	if _, err := c.CreateField("ara", nil); err != nil {
		t.Fatal(err)
	}
	if err := c.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
}

func TestAPIErrorFormatting(t *testing.T) {
	err := &APIError{StatusCode: 404, Message: "field not found"}
	want := "API error (status 404): field not found"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}
