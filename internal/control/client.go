// Package control is the REST client for the engine's control plane:
// starting and stopping sessions and fetching static strategy metadata.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultTimeout = 15 * time.Second

// StartRequest is the session configuration posted to the engine.
type StartRequest struct {
	StrategyClass string             `json:"strategyClass"`
	Instrument    string             `json:"instrument,omitempty"`
	Period        string             `json:"period,omitempty"`
	Async         bool               `json:"async"`
	Params        map[string]float64 `json:"params,omitempty"`
}

// ParamMeta describes one tunable strategy parameter.
type ParamMeta struct {
	Name    string  `json:"name"`
	Default float64 `json:"default"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// StrategyMeta describes one strategy class the engine can run.
type StrategyMeta struct {
	Class  string      `json:"class"`
	Name   string      `json:"name"`
	Params []ParamMeta `json:"params,omitempty"`
}

// Client talks to the engine's REST API.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a client for the engine at baseURL (no trailing slash).
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
		log:     log,
	}
}

// StartSession asks the engine to start a run and returns the session id.
// Engines that do not assign ids get a client-generated one; the id only has
// to be unique on this side of the channel.
func (c *Client) StartSession(ctx context.Context, req StartRequest) (string, error) {
	var resp struct {
		SessionID string `json:"sessionId"`
	}
	if err := c.post(ctx, "/api/sessions", req, &resp); err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	if resp.SessionID == "" {
		resp.SessionID = uuid.NewString()
		c.log.Debug().Str("session", resp.SessionID).Msg("engine returned no session id, generated one")
	}
	return resp.SessionID, nil
}

// StopSession asks the engine to stop the run.
func (c *Client) StopSession(ctx context.Context, sessionID string) error {
	if err := c.post(ctx, "/api/sessions/"+sessionID+"/stop", nil, nil); err != nil {
		return fmt.Errorf("stop session %s: %w", sessionID, err)
	}
	return nil
}

// StaticMetadata fetches the strategy catalog.
func (c *Client) StaticMetadata(ctx context.Context) ([]StrategyMeta, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/strategies", nil)
	if err != nil {
		return nil, err
	}
	var metas []StrategyMeta
	if err := c.do(req, &metas); err != nil {
		return nil, fmt.Errorf("fetch strategy metadata: %w", err)
	}
	return metas, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, bytes.TrimSpace(data))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
