// Package registry talks to the remote message registry: policy fetches,
// connection lookups, message sends, and heartbeats.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/tinyland-inc/clawgate/pkg/bus"
	"github.com/tinyland-inc/clawgate/pkg/logger"
	"github.com/tinyland-inc/clawgate/pkg/policy"
	"github.com/tinyland-inc/clawgate/pkg/routing"
)

// ErrGroupNotSupported is returned when the registry does not (yet) support
// group message transport. It is an expected condition, not a bug.
var ErrGroupNotSupported = errors.New("group messaging not supported by registry")

const (
	defaultTimeout  = 30 * time.Second
	defaultAttempts = 3
	baseBackoff     = 500 * time.Millisecond
)

// Config holds registry client settings.
type Config struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration // overall request timeout, default 30s
	RetryAttempts int           // default 3
}

// Client is the HTTP registry client. Retries apply to 5xx and network
// errors only, with bounded exponential backoff; 4xx responses are never
// retried.
type Client struct {
	baseURL    string
	httpClient *http.Client
	attempts   int
}

// NewClient creates a registry client. When a token is configured, requests
// carry it as a bearer token via an oauth2 transport.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}

	httpClient := &http.Client{Timeout: timeout}
	if cfg.Token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		httpClient = oauth2.NewClient(context.Background(), src)
		httpClient.Timeout = timeout
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		attempts:   attempts,
	}
}

// FetchPolicies returns the registry policies for a direction, sorted by
// priority descending (stable). Downstream consumers rely on this ordering
// and do not re-sort.
func (c *Client) FetchPolicies(ctx context.Context, dir policy.Direction) ([]Policy, error) {
	body, err := c.get(ctx, "/policies?direction="+string(dir))
	if err != nil {
		return nil, err
	}

	var policies []Policy
	if err := decodeItems(body, &policies); err != nil {
		return nil, fmt.Errorf("decoding policies: %w", err)
	}

	sort.SliceStable(policies, func(i, j int) bool {
		return policies[i].Priority > policies[j].Priority
	})
	return policies, nil
}

// FetchConnections returns the registered connections of a peer agent.
func (c *Client) FetchConnections(ctx context.Context, agentID string) ([]routing.Connection, error) {
	body, err := c.get(ctx, "/agents/"+agentID+"/connections")
	if err != nil {
		return nil, err
	}

	var conns []routing.Connection
	if err := decodeItems(body, &conns); err != nil {
		return nil, fmt.Errorf("decoding connections: %w", err)
	}
	return conns, nil
}

// SendMessage submits an accepted outbound message to the transport.
func (c *Client) SendMessage(ctx context.Context, msg bus.Message) (*DeliveryStatus, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}

	body, err := c.post(ctx, "/messages", payload)
	if err != nil {
		return nil, err
	}

	var status DeliveryStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("decoding delivery status: %w", err)
	}
	return &status, nil
}

// Heartbeat reports gateway liveness for the agent.
func (c *Client) Heartbeat(ctx context.Context, agentID string) error {
	_, err := c.post(ctx, "/agents/"+agentID+"/heartbeat", []byte(`{}`))
	return err
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) post(ctx context.Context, path string, payload []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, payload)
}

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// do performs a request with retry. A fresh request is built per attempt so
// the body can be resent.
func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			backoff := baseBackoff << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			logger.DebugCF("registry", "Retrying request", map[string]any{
				"path":    path,
				"attempt": attempt + 1,
			})
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return body, nil
		case resp.StatusCode == http.StatusNotImplemented:
			return nil, ErrGroupNotSupported
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("registry %s %s: status %d", method, path, resp.StatusCode)
			continue
		default:
			// 4xx is terminal; surface a recognizable group sentinel if the
			// registry reports it in the payload instead of the status.
			var ae apiError
			if json.Unmarshal(body, &ae) == nil {
				code := ae.Code
				if code == "" {
					code = ae.Error
				}
				if strings.EqualFold(code, "GROUP_NOT_SUPPORTED") {
					return nil, ErrGroupNotSupported
				}
			}
			return nil, fmt.Errorf("registry %s %s: status %d", method, path, resp.StatusCode)
		}
	}

	return nil, fmt.Errorf("registry %s %s: %w", method, path, lastErr)
}

// decodeItems tolerates both a bare JSON array and an {"items": [...]}
// envelope.
func decodeItems(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err == nil {
		return nil
	}
	var envelope struct {
		Items json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}
	if envelope.Items == nil {
		return errors.New("response is neither an array nor an items envelope")
	}
	return json.Unmarshal(envelope.Items, out)
}
