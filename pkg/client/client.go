// Package client provides a Go client for interacting with the StarfieldDB API.
//
// It offers a type-safe way to perform all major operations, including:
//   - Field management (Create, List, Info, Regenerate, Drop).
//   - Anchor assignment, synchronous or as a pollable background task.
//   - Ray picking and selection handling.
//   - Binary position export at full or half precision.
//   - System administration tasks (manifest save, task status).
//
// The client handles HTTP communication, JSON serialization/deserialization, and
// standardized error handling. Geometry types (vectors, precisions, the binary
// position codec) are shared with the server through the metric package; the
// entity views are mirrored locally so importing the client does not pull in
// the engine.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/starfielddb/starfielddb/pkg/core/metric"
)

// --- Custom Errors ---

// APIError represents an error returned by the StarfieldDB API (status >= 400).
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// --- JSON Response Structs ---

// FieldParams mirrors the generation parameters accepted by the API.
// The server validates them as a whole, so start from DefaultFieldParams()
// and adjust rather than filling fields one by one.
type FieldParams struct {
	Count     int     `json:"count"`
	Arms      int     `json:"arms"`
	Radius    float32 `json:"radius"`
	Twist     float32 `json:"twist"`
	Thickness float32 `json:"thickness"`
	Spread    float32 `json:"spread"`
	Seed      int64   `json:"seed"`
}

// DefaultFieldParams returns the server's default galaxy: a medium-sized
// four-arm spiral.
func DefaultFieldParams() FieldParams {
	return FieldParams{
		Count:     100_000,
		Arms:      4,
		Radius:    100,
		Twist:     3.5,
		Thickness: 4,
		Spread:    2,
		Seed:      42,
	}
}

// Bounds is the axis-aligned bounding box of a field.
type Bounds struct {
	Min metric.Vec3 `json:"min"`
	Max metric.Vec3 `json:"max"`
}

// FieldInfo models the introspection data of a single field.
type FieldInfo struct {
	Name       string      `json:"name"`
	Points     int         `json:"points"`
	Generation uint64      `json:"generation"`
	Params     FieldParams `json:"params"`
	Bounds     Bounds      `json:"bounds"`
	Anchors    int         `json:"anchors"`
	Selection  *Selection  `json:"selection,omitempty"`
}

// Anchor is one resolved nearest point.
type Anchor struct {
	Index    int         `json:"index"`
	Position metric.Vec3 `json:"position"`
	Label    string      `json:"label,omitempty"`
}

// AnchorAssignment is the result of an anchor assignment: one anchor per
// requested target, in target order, plus the buffer generation they were
// resolved against.
type AnchorAssignment struct {
	Anchors    []Anchor `json:"anchors"`
	Generation uint64   `json:"generation"`
}

// AnchorSet is the anchor state stored on the server for a field.
type AnchorSet struct {
	Anchors    []Anchor      `json:"anchors"`
	Targets    []metric.Vec3 `json:"targets"`
	Step       int           `json:"step"`
	Generation uint64        `json:"generation"`
	AssignedAt time.Time     `json:"assigned_at"`
}

// Pick is a successful ray pick.
type Pick struct {
	Index      int         `json:"index"`
	Position   metric.Vec3 `json:"position"`
	PerpDistSq float64     `json:"perp_dist_sq"`
}

// Selection is the point currently pinned on a field.
type Selection struct {
	Index      int         `json:"index"`
	Position   metric.Vec3 `json:"position"`
	Generation uint64      `json:"generation"`
}

// pickResponse models the wire shape of a pick; a miss has Hit false.
type pickResponse struct {
	Hit  bool  `json:"hit"`
	Pick *Pick `json:"pick,omitempty"`
}

// taskStartedResponse models the acknowledgement of an async request.
type taskStartedResponse struct {
	TaskID string `json:"task_id"`
}

// Task represents an asynchronous operation on the StarfieldDB server.
type Task struct {
	ID              string          `json:"id"`
	Status          string          `json:"status"`
	ProgressMessage string          `json:"progress_message,omitempty"`
	Error           string          `json:"error,omitempty"`
	Result          json.RawMessage `json:"result,omitempty"`

	client *Client // Reference to the client for polling.
}

// --- Client ---

// Client is the Go client for interacting with StarfieldDB.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// New creates a new StarfieldDB client. baseURL is the server root
// (e.g. "http://localhost:9092"); authToken may be empty when the server
// runs unauthenticated.
func New(baseURL, authToken string) *Client {
	for len(baseURL) > 0 && baseURL[len(baseURL)-1] == '/' {
		baseURL = baseURL[:len(baseURL)-1]
	}
	return &Client{
		baseURL:    baseURL,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// jsonRequest is a helper method to execute all requests to the API.
// It handles JSON serialization, HTTP calls, and error management.
func (c *Client) jsonRequest(method, endpoint string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal JSON payload: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connection error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil // For 204 responses (e.g., DELETE).
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		if json.Unmarshal(respBody, &errResp) == nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: errResp["error"]}
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	return respBody, nil
}

// Refresh updates the task's status by querying the server.
func (t *Task) Refresh() error {
	if t.client == nil {
		return fmt.Errorf("client is not associated with the task")
	}
	updatedTask, err := t.client.GetTaskStatus(t.ID)
	if err != nil {
		return err
	}
	t.Status = updatedTask.Status
	t.ProgressMessage = updatedTask.ProgressMessage
	t.Error = updatedTask.Error
	t.Result = updatedTask.Result
	return nil
}

// Wait blocks until the task is completed, checking its status at regular intervals.
func (t *Task) Wait(interval, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-timer.C:
			return fmt.Errorf("timeout exceeded while waiting for task %s", t.ID)
		case <-ticker.C:
			if err := t.Refresh(); err != nil {
				return err
			}
			switch t.Status {
			case "completed":
				return nil
			case "failed":
				return fmt.Errorf("task %s failed with error: %s", t.ID, t.Error)
			case "running", "started":
				// Continue waiting.
			default:
				return fmt.Errorf("unknown task status: %s", t.Status)
			}
		}
	}
}

// AnchorAssignment decodes the payload of a completed assignment task.
func (t *Task) AnchorAssignment() (*AnchorAssignment, error) {
	if t.Status != "completed" {
		return nil, fmt.Errorf("task %s has no result yet (status: %s)", t.ID, t.Status)
	}
	var res AnchorAssignment
	if err := json.Unmarshal(t.Result, &res); err != nil {
		return nil, fmt.Errorf("invalid task result payload: %w", err)
	}
	return &res, nil
}

// --- Field Methods ---

// CreateField creates and generates a new field. A nil params uses the
// server defaults.
func (c *Client) CreateField(name string, params *FieldParams) (*FieldInfo, error) {
	payload := map[string]any{"name": name}
	if params != nil {
		payload["params"] = params
	}

	respBody, err := c.jsonRequest(http.MethodPost, "/fields", payload)
	if err != nil {
		return nil, err
	}
	var info FieldInfo
	if err := json.Unmarshal(respBody, &info); err != nil {
		return nil, fmt.Errorf("invalid JSON response for CreateField: %w", err)
	}
	return &info, nil
}

// ListFields returns all fields hosted by the server.
func (c *Client) ListFields() ([]FieldInfo, error) {
	respBody, err := c.jsonRequest(http.MethodGet, "/fields", nil)
	if err != nil {
		return nil, err
	}
	var infos []FieldInfo
	if err := json.Unmarshal(respBody, &infos); err != nil {
		return nil, fmt.Errorf("invalid JSON response for ListFields: %w", err)
	}
	return infos, nil
}

// GetFieldInfo retrieves information about a specific field.
func (c *Client) GetFieldInfo(name string) (*FieldInfo, error) {
	respBody, err := c.jsonRequest(http.MethodGet, "/fields/"+url.PathEscape(name), nil)
	if err != nil {
		return nil, err
	}
	var info FieldInfo
	if err := json.Unmarshal(respBody, &info); err != nil {
		return nil, fmt.Errorf("invalid JSON response for GetFieldInfo: %w", err)
	}
	return &info, nil
}

// DropField removes a field and its session state.
func (c *Client) DropField(name string) error {
	_, err := c.jsonRequest(http.MethodDelete, "/fields/"+url.PathEscape(name), nil)
	return err
}

// RegenerateField replaces a field's points with a fresh generation.
// Anchors and selection become stale on the server and are cleared.
func (c *Client) RegenerateField(name string, params FieldParams) (*FieldInfo, error) {
	payload := map[string]any{"params": params}
	respBody, err := c.jsonRequest(http.MethodPost, "/fields/"+url.PathEscape(name)+"/regenerate", payload)
	if err != nil {
		return nil, err
	}
	var info FieldInfo
	if err := json.Unmarshal(respBody, &info); err != nil {
		return nil, fmt.Errorf("invalid JSON response for RegenerateField: %w", err)
	}
	return &info, nil
}

// Positions downloads the field's raw position buffer. It returns the flat
// xyz coordinates and the buffer generation they belong to. Float16 halves
// the transfer size at the cost of about three significant digits.
func (c *Client) Positions(name string, precision metric.Precision) ([]float32, uint64, error) {
	endpoint := "/fields/" + url.PathEscape(name) + "/positions"
	if precision != "" {
		endpoint += "?precision=" + url.QueryEscape(string(precision))
	}

	req, err := http.NewRequest(http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("connection error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		var errResp map[string]string
		if json.Unmarshal(body, &errResp) == nil {
			return nil, 0, &APIError{StatusCode: resp.StatusCode, Message: errResp["error"]}
		}
		return nil, 0, &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	generation, _ := strconv.ParseUint(resp.Header.Get("X-Field-Generation"), 10, 64)
	positions, err := metric.DecodePositions(body, precision)
	if err != nil {
		return nil, 0, err
	}
	return positions, generation, nil
}

// --- Anchor Methods ---

// assignAnchorsRequest models the anchor assignment request body.
type assignAnchorsRequest struct {
	Targets []metric.Vec3 `json:"targets"`
	Labels  []string      `json:"labels,omitempty"`
	Step    int           `json:"step,omitempty"`
	Async   bool          `json:"async,omitempty"`
}

// AssignAnchors resolves the nearest point for each target and waits for
// the result. Labels may be nil or must align with targets; step 0 lets the
// server derive the scan stride from the field size.
func (c *Client) AssignAnchors(field string, targets []metric.Vec3, labels []string, step int) (*AnchorAssignment, error) {
	payload := assignAnchorsRequest{Targets: targets, Labels: labels, Step: step}
	respBody, err := c.jsonRequest(http.MethodPost, "/fields/"+url.PathEscape(field)+"/anchors", payload)
	if err != nil {
		return nil, err
	}
	var res AnchorAssignment
	if err := json.Unmarshal(respBody, &res); err != nil {
		return nil, fmt.Errorf("invalid JSON response for AssignAnchors: %w", err)
	}
	return &res, nil
}

// AssignAnchorsAsync starts an assignment as a background task. Use
// Task.Wait and Task.AnchorAssignment to collect the result.
func (c *Client) AssignAnchorsAsync(field string, targets []metric.Vec3, labels []string, step int) (*Task, error) {
	payload := assignAnchorsRequest{Targets: targets, Labels: labels, Step: step, Async: true}
	respBody, err := c.jsonRequest(http.MethodPost, "/fields/"+url.PathEscape(field)+"/anchors", payload)
	if err != nil {
		return nil, err
	}
	var started taskStartedResponse
	if err := json.Unmarshal(respBody, &started); err != nil {
		return nil, fmt.Errorf("invalid JSON response for AssignAnchorsAsync: %w", err)
	}
	return &Task{ID: started.TaskID, Status: "started", client: c}, nil
}

// GetAnchors retrieves the anchor set currently stored for a field.
func (c *Client) GetAnchors(field string) (*AnchorSet, error) {
	respBody, err := c.jsonRequest(http.MethodGet, "/fields/"+url.PathEscape(field)+"/anchors", nil)
	if err != nil {
		return nil, err
	}
	var set AnchorSet
	if err := json.Unmarshal(respBody, &set); err != nil {
		return nil, fmt.Errorf("invalid JSON response for GetAnchors: %w", err)
	}
	return &set, nil
}

// --- Pick and Selection Methods ---

// pickRequest models the pick request body.
type pickRequest struct {
	Origin      metric.Vec3 `json:"origin"`
	Dir         metric.Vec3 `json:"dir"`
	Step        int         `json:"step,omitempty"`
	MaxPerpDist float64     `json:"max_perp_dist,omitempty"`
}

// Pick casts a ray into the field and returns the point nearest to it.
// A miss returns (nil, nil): no point lay within the perpendicular cutoff.
// The direction does not need to be normalized. Step and maxPerpDist at 0
// use the server's policies.
func (c *Client) Pick(field string, origin, dir metric.Vec3, step int, maxPerpDist float64) (*Pick, error) {
	payload := pickRequest{Origin: origin, Dir: dir, Step: step, MaxPerpDist: maxPerpDist}
	respBody, err := c.jsonRequest(http.MethodPost, "/fields/"+url.PathEscape(field)+"/pick", payload)
	if err != nil {
		return nil, err
	}
	var resp pickResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("invalid JSON response for Pick: %w", err)
	}
	if !resp.Hit {
		return nil, nil
	}
	return resp.Pick, nil
}

// GetSelection retrieves the currently pinned point. A 404 APIError means
// the field has no selection for its current generation.
func (c *Client) GetSelection(field string) (*Selection, error) {
	respBody, err := c.jsonRequest(http.MethodGet, "/fields/"+url.PathEscape(field)+"/selection", nil)
	if err != nil {
		return nil, err
	}
	var sel Selection
	if err := json.Unmarshal(respBody, &sel); err != nil {
		return nil, fmt.Errorf("invalid JSON response for GetSelection: %w", err)
	}
	return &sel, nil
}

// SetSelection pins the selection to an explicit point index.
func (c *Client) SetSelection(field string, index int) (*Selection, error) {
	payload := map[string]int{"index": index}
	respBody, err := c.jsonRequest(http.MethodPut, "/fields/"+url.PathEscape(field)+"/selection", payload)
	if err != nil {
		return nil, err
	}
	var sel Selection
	if err := json.Unmarshal(respBody, &sel); err != nil {
		return nil, fmt.Errorf("invalid JSON response for SetSelection: %w", err)
	}
	return &sel, nil
}

// ClearSelection removes the pinned point, if any.
func (c *Client) ClearSelection(field string) error {
	_, err := c.jsonRequest(http.MethodDelete, "/fields/"+url.PathEscape(field)+"/selection", nil)
	return err
}

// --- System Methods ---

// Save asks the server to write its manifest to disk now.
func (c *Client) Save() error {
	_, err := c.jsonRequest(http.MethodPost, "/system/save", nil)
	return err
}

// GetTaskStatus retrieves the status of a long-running task.
func (c *Client) GetTaskStatus(taskID string) (*Task, error) {
	respBody, err := c.jsonRequest(http.MethodGet, "/tasks/"+url.PathEscape(taskID), nil)
	if err != nil {
		return nil, err
	}

	var task Task
	if err := json.Unmarshal(respBody, &task); err != nil {
		return nil, fmt.Errorf("invalid JSON response for GetTaskStatus: %w", err)
	}
	task.client = c
	return &task, nil
}
