// Package compute talks to the external earth-observation engine that
// actually produces erosion rasters and tiles. The engine is
// dispatch-and-callback: Precompute queues work and returns a
// correlation id; results arrive later through the task callbacks.
package compute

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/davlatzoda/eromap/pkg/models"
)

// Sentinel errors for compute engine failures.
var (
	ErrEngineUnreachable = errors.New("compute engine unreachable")
	ErrEngineRejected    = errors.New("compute engine rejected request")
	ErrEngineTimeout     = errors.New("compute engine timeout")
)

// Engine is the interface for dispatching precompute work.
type Engine interface {
	Precompute(ctx context.Context, req PrecomputeRequest) (taskID string, err error)
	Health(ctx context.Context) error
}

// PrecomputeRequest carries everything the engine needs to generate one
// erosion map: the area, the year, the geometry to rasterize, and an
// optional effective-configuration snapshot when the caller overrode
// the defaults.
type PrecomputeRequest struct {
	Area     models.Area
	Year     int
	Geometry map[string]any
	BBox     []float64
	Config   map[string]any
}

// HTTPClient implements Engine against the engine's HTTP API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a new compute engine HTTP client.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type precomputeBody struct {
	AreaType     models.AreaKind `json:"area_type"`
	AreaID       int64           `json:"area_id"`
	Year         int             `json:"year"`
	AreaGeometry map[string]any  `json:"area_geometry"`
	BBox         []float64       `json:"bbox,omitempty"`
	Config       map[string]any  `json:"config,omitempty"`
}

type precomputeResponse struct {
	Success bool   `json:"success"`
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Error   string `json:"error"`
}

func (c *HTTPClient) Precompute(ctx context.Context, req PrecomputeRequest) (string, error) {
	body, err := json.Marshal(precomputeBody{
		AreaType:     req.Area.Kind,
		AreaID:       req.Area.ID,
		Year:         req.Year,
		AreaGeometry: req.Geometry,
		BBox:         req.BBox,
		Config:       req.Config,
	})
	if err != nil {
		return "", fmt.Errorf("encoding precompute request: %w", err)
	}

	u := c.baseURL + "/api/rusle/precompute"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", classifyError(err)
	}
	defer resp.Body.Close()

	var engineResp precomputeResponse
	if err := json.NewDecoder(resp.Body).Decode(&engineResp); err != nil {
		return "", fmt.Errorf("decoding engine response: %w", err)
	}

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		if engineResp.Error != "" {
			return "", fmt.Errorf("%w: status %d: %s", ErrEngineRejected, resp.StatusCode, engineResp.Error)
		}
		return "", fmt.Errorf("%w: status %d", ErrEngineRejected, resp.StatusCode)
	}
	if engineResp.TaskID == "" {
		return "", fmt.Errorf("%w: missing task_id in response", ErrEngineRejected)
	}

	return engineResp.TaskID, nil
}

func (c *HTTPClient) Health(ctx context.Context) error {
	u := c.baseURL + "/api/health"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: engine not healthy (status %d)", ErrEngineUnreachable, resp.StatusCode)
	}
	return nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrEngineTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrEngineTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrEngineUnreachable, err)
	}

	return fmt.Errorf("%w: %v", ErrEngineUnreachable, err)
}

// Compile-time check that HTTPClient implements Engine.
var _ Engine = (*HTTPClient)(nil)
