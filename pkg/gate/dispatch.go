package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tinyland-inc/clawgate/pkg/bus"
	"github.com/tinyland-inc/clawgate/pkg/logger"
)

// Dispatcher hands an accepted inbound message to the local agent.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg bus.Message) error
}

// HTTPDispatcher POSTs accepted messages to the agent's trigger endpoint.
type HTTPDispatcher struct {
	triggerURL string
	client     *http.Client
}

// NewHTTPDispatcher creates a dispatcher. A zero timeout defaults to 60s.
func NewHTTPDispatcher(triggerURL string, timeout time.Duration) *HTTPDispatcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPDispatcher{
		triggerURL: triggerURL,
		client:     &http.Client{Timeout: timeout},
	}
}

func (d *HTTPDispatcher) Dispatch(ctx context.Context, msg bus.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.triggerURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("trigger returned status %d", resp.StatusCode)
	}
	return nil
}

// RunDispatcher consumes accepted messages until the bus closes or the
// context ends. Dispatch is fire-and-forget: failures are logged and the
// message is dropped, never retried or bounced back to the sender.
func RunDispatcher(ctx context.Context, b *bus.MessageBus, d Dispatcher) {
	for {
		msg, ok := b.ConsumeAccepted(ctx)
		if !ok {
			return
		}

		if err := d.Dispatch(ctx, msg); err != nil {
			logger.ErrorCF("dispatch", "Dispatch failed", map[string]any{
				"message_id": msg.ID,
				"sender":     msg.Sender,
				"error":      err.Error(),
			})
			continue
		}
		logger.DebugCF("dispatch", "Message dispatched", map[string]any{
			"message_id": msg.ID,
		})
	}
}
