package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/starfielddb/starfielddb/pkg/core"
	"github.com/starfielddb/starfielddb/pkg/core/galaxy"
	"github.com/starfielddb/starfielddb/pkg/core/metric"
	"github.com/starfielddb/starfielddb/pkg/engine"
)

// --- Field handlers ---

func (s *Server) handleCreateField(w http.ResponseWriter, r *http.Request) {
	var req CreateFieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		s.writeHTTPError(w, http.StatusBadRequest, "name is required")
		return
	}

	params := galaxy.DefaultParams()
	if req.Params != nil {
		params = *req.Params
	}

	if _, err := s.Engine.CreateField(req.Name, params); err != nil {
		if errors.Is(err, core.ErrFieldExists) {
			s.writeHTTPError(w, http.StatusConflict, err.Error())
		} else {
			// Creation only fails on duplicate names or bad parameters.
			s.writeHTTPError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	info, err := s.Engine.Info(req.Name)
	if err != nil {
		s.writeHTTPError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeHTTPResponse(w, http.StatusCreated, info)
}

func (s *Server) handleListFields(w http.ResponseWriter, r *http.Request) {
	s.writeHTTPResponse(w, http.StatusOK, s.Engine.ListFields())
}

func (s *Server) handleFieldInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.Engine.Info(r.PathValue("name"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, info)
}

func (s *Server) handleDropField(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.DropField(r.PathValue("name")); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRegenerateField(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req RegenerateFieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Params == nil {
		s.writeHTTPError(w, http.StatusBadRequest, "params is required: regenerating with the current parameters would reproduce the same field")
		return
	}

	if _, err := s.Engine.RegenerateField(name, *req.Params); err != nil {
		if errors.Is(err, core.ErrFieldNotFound) {
			s.writeHTTPError(w, http.StatusNotFound, err.Error())
		} else {
			s.writeHTTPError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	info, err := s.Engine.Info(name)
	if err != nil {
		s.writeHTTPError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, info)
}

// handleExportPositions streams the raw position buffer, little-endian,
// 3 values per point. ?precision=float16 halves the payload.
func (s *Server) handleExportPositions(w http.ResponseWriter, r *http.Request) {
	f, err := s.Engine.Field(r.PathValue("name"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	prec, err := metric.ParsePrecision(r.URL.Query().Get("precision"))
	if err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, err.Error())
		return
	}

	n := f.Len()
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(n*3*prec.ValueSize()))
	w.Header().Set("X-Point-Count", strconv.Itoa(n))
	w.Header().Set("X-Field-Generation", strconv.FormatUint(f.Generation(), 10))
	w.WriteHeader(http.StatusOK)

	// Headers are already out; an error here can only be logged.
	if err := f.WritePositions(w, prec); err != nil {
		slog.Error("position export aborted", "field", f.Name(), "error", err)
	}
}

// --- Anchor handlers ---

func (s *Server) handleAssignAnchors(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req AssignAnchorsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Targets) == 0 {
		s.writeHTTPError(w, http.StatusBadRequest, "targets must not be empty")
		return
	}
	if req.Step < 0 {
		s.writeHTTPError(w, http.StatusBadRequest, "step must not be negative")
		return
	}
	if len(req.Labels) != 0 && len(req.Labels) != len(req.Targets) {
		s.writeHTTPError(w, http.StatusBadRequest, "label count does not match target count")
		return
	}

	if req.Async {
		task := s.taskManager.NewTask()
		go s.runAnchorTask(task, name, req)
		s.writeHTTPResponse(w, http.StatusAccepted, TaskStartedResponse{TaskID: task.ID})
		return
	}

	resp, err := s.assignAnchors(r.Context(), name, req)
	if err != nil {
		s.writeAnchorError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, resp)
}

// assignAnchors runs one assignment through the engine's offload path and
// shapes the result for the API.
func (s *Server) assignAnchors(ctx context.Context, name string, req AssignAnchorsRequest) (*AssignAnchorsResponse, error) {
	anchors, err := s.Engine.AssignAnchorsAsync(ctx, name, req.Targets, req.Labels, req.Step)
	if err != nil {
		return nil, err
	}
	set, err := s.Engine.Anchors(name)
	if err != nil || set == nil {
		// The set can only vanish if the field was regenerated right after
		// the assignment; report what was computed either way.
		return &AssignAnchorsResponse{Anchors: anchors}, nil
	}
	return &AssignAnchorsResponse{Anchors: anchors, Generation: set.Generation}, nil
}

// runAnchorTask executes an assignment in the background on behalf of an
// async API request.
func (s *Server) runAnchorTask(task *Task, name string, req AssignAnchorsRequest) {
	task.SetStatus(TaskStatusRunning)
	task.SetProgress(fmt.Sprintf("assigning %d anchors on field '%s'", len(req.Targets), name))

	resp, err := s.assignAnchors(context.Background(), name, req)
	if err != nil {
		task.SetError(err)
		return
	}
	task.Complete(resp)
}

func (s *Server) handleGetAnchors(w http.ResponseWriter, r *http.Request) {
	set, err := s.Engine.Anchors(r.PathValue("name"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if set == nil {
		s.writeHTTPError(w, http.StatusNotFound, "no anchor set for the field's current generation")
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, set)
}

// --- Pick and selection handlers ---

func (s *Server) handlePick(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req PickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Step < 0 {
		s.writeHTTPError(w, http.StatusBadRequest, "step must not be negative")
		return
	}
	if req.MaxPerpDist < 0 {
		s.writeHTTPError(w, http.StatusBadRequest, "max_perp_dist must not be negative")
		return
	}

	ray, err := metric.NewRay(req.Origin, req.Dir)
	if err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, err.Error())
		return
	}

	pick, err := s.Engine.Pick(name, ray, req.Step, req.MaxPerpDist)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if pick == nil {
		s.writeHTTPResponse(w, http.StatusOK, PickResponse{Hit: false})
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, PickResponse{Hit: true, Pick: pick})
}

func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	sel, err := s.Engine.Selection(r.PathValue("name"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if sel == nil {
		s.writeHTTPError(w, http.StatusNotFound, "no selection for the field's current generation")
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, sel)
}

func (s *Server) handleSetSelection(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req SetSelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sel, err := s.Engine.SetSelection(name, req.Index)
	if err != nil {
		if errors.Is(err, core.ErrFieldNotFound) {
			s.writeHTTPError(w, http.StatusNotFound, err.Error())
		} else {
			s.writeHTTPError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, sel)
}

func (s *Server) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.ClearSelection(r.PathValue("name")); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Task and system handlers ---

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, found := s.taskManager.GetTask(r.PathValue("id"))
	if !found {
		s.writeHTTPError(w, http.StatusNotFound, "task not found")
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, task.View())
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.SaveManifest(); err != nil {
		slog.Error("manifest save via HTTP failed", "error", err)
		s.writeHTTPError(w, http.StatusInternalServerError, fmt.Sprintf("manifest save failed: %v", err))
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, map[string]string{"status": "OK", "message": "manifest saved"})
}

// --- Response helpers ---

func (s *Server) writeHTTPResponse(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeHTTPError(w http.ResponseWriter, statusCode int, message string) {
	s.writeHTTPResponse(w, statusCode, map[string]string{"error": message})
}

// writeEngineError maps common engine errors onto HTTP status codes.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrFieldNotFound):
		s.writeHTTPError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrFieldExists):
		s.writeHTTPError(w, http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrInvalidStep), errors.Is(err, core.ErrEmptyField):
		s.writeHTTPError(w, http.StatusBadRequest, err.Error())
	default:
		s.writeHTTPError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeAnchorError adds the assignment-specific cases on top of the common
// mapping.
func (s *Server) writeAnchorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrStaleResult):
		s.writeHTTPError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrLabelMismatch):
		s.writeHTTPError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// The client is gone; the status code is a formality.
		s.writeHTTPError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.writeEngineError(w, err)
	}
}
