package engineapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/malaria-risk-index/internal/domain"
	"github.com/couchcryptid/malaria-risk-index/internal/graph"
	"github.com/couchcryptid/malaria-risk-index/internal/observability"
)

// Client implements graph.Engine against the remote engine gateway. Graphs
// are sent as deduplicated DAGs; the gateway evaluates them and returns the
// value or a tile map id.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an engine client. httpClient carries the authenticated
// session; see Session.
func NewClient(baseURL string, httpClient *http.Client, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		metrics:    metrics,
		logger:     logger,
	}
}

// Evaluate forces x to a concrete value: a number, string, boolean, list or
// dictionary. Images cannot be evaluated, only mapped.
func (c *Client) Evaluate(ctx context.Context, x graph.Expr) (any, error) {
	var resp computeResponse
	if err := c.post(ctx, "evaluate", "/v1/value:compute", x, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// GetMap registers an image for tiling and returns its map id.
func (c *Client) GetMap(ctx context.Context, x graph.Expr, vis graph.VisParams) (string, error) {
	var resp mapResponse
	if err := c.post(ctx, "getMap", "/v1/maps", x, &vis, &resp); err != nil {
		return "", err
	}
	if resp.MapID == "" {
		return "", &domain.EvaluationFault{Op: "getMap", Status: http.StatusOK, Message: "empty map id"}
	}
	return resp.MapID, nil
}

func (c *Client) post(ctx context.Context, op, path string, x graph.Expr, vis *graph.VisParams, out any) error {
	dag, err := graph.Encode(x)
	if err != nil {
		return fmt.Errorf("encode graph: %w", err)
	}
	body, err := json.Marshal(request{Expression: dag, VisParams: vis})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.EvaluationErrors.WithLabelValues(op).Inc()
		return fmt.Errorf("%s request: %w", op, err)
	}
	defer resp.Body.Close()
	c.metrics.EvaluationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.metrics.EvaluationErrors.WithLabelValues(op).Inc()
		return fmt.Errorf("%s: %w: status %d", op, domain.ErrUpstreamAuth, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		c.metrics.EvaluationErrors.WithLabelValues(op).Inc()
		return &domain.EvaluationFault{Op: op, Status: resp.StatusCode, Message: errorMessage(resp.Body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	c.logger.Debug("engine call complete", "op", op, "nodes", len(dag.Nodes), "duration", time.Since(start))
	return nil
}

// errorMessage extracts the gateway's error message, falling back to the raw body.
func errorMessage(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 64<<10))
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return strings.TrimSpace(string(body))
}

// Gateway wire types.

type request struct {
	Expression *graph.DAG       `json:"expression"`
	VisParams  *graph.VisParams `json:"visParams,omitempty"`
}

type computeResponse struct {
	Result any `json:"result"`
}

type mapResponse struct {
	MapID string `json:"mapId"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
