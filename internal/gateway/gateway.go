// Package gateway is the remote task/log API as seen from the agent.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"taskmanager/internal/logger"
	"taskmanager/internal/models"
)

// ErrNotFound is returned when the server answers 404.
var ErrNotFound = errors.New("not found on server")

// StatusError is any other non-2xx answer.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status=%d body=%s", e.Method, e.Path, e.Code, e.Body)
}

// Gateway mirrors tasks and logs to the server. No retries: the caller queues on failure.
type Gateway interface {
	CreateTask(ctx context.Context, task models.Task) error
	UpdateTask(ctx context.Context, task models.Task) error
	DeleteTask(ctx context.Context, id string) error
	CreateLog(ctx context.Context, entry models.LogEntry) error
	ListTasks(ctx context.Context) ([]models.Task, error)
	ListLogs(ctx context.Context) ([]models.LogEntry, error)
}

type httpGateway struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	log     *zap.SugaredLogger
}

// NewHTTPGateway talks JSON to baseURL. Every request is bounded by timeout.
func NewHTTPGateway(baseURL string, timeout time.Duration, log *zap.SugaredLogger) Gateway {
	return &httpGateway{
		baseURL: baseURL,
		client:  &http.Client{},
		timeout: timeout,
		log:     logger.OrNop(log),
	}
}

func (g *httpGateway) CreateTask(ctx context.Context, task models.Task) error {
	return g.do(ctx, http.MethodPost, "/tasks", task, nil)
}

func (g *httpGateway) UpdateTask(ctx context.Context, task models.Task) error {
	return g.do(ctx, http.MethodPut, "/tasks/"+url.PathEscape(task.ID), task, nil)
}

func (g *httpGateway) DeleteTask(ctx context.Context, id string) error {
	return g.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, nil)
}

func (g *httpGateway) CreateLog(ctx context.Context, entry models.LogEntry) error {
	return g.do(ctx, http.MethodPost, "/logs", entry, nil)
}

func (g *httpGateway) ListTasks(ctx context.Context) ([]models.Task, error) {
	var out []models.Task
	if err := g.do(ctx, http.MethodGet, "/tasks", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *httpGateway) ListLogs(ctx context.Context) ([]models.LogEntry, error) {
	var out []models.LogEntry
	if err := g.do(ctx, http.MethodGet, "/logs", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *httpGateway) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		g.log.Debugf("[gw][%s %s][err] transport: %v", method, path, err)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		g.log.Debugf("[gw][%s %s] http_status=%d", method, path, resp.StatusCode)
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
