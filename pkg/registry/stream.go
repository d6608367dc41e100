package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tinyland-inc/clawgate/pkg/bus"
	"github.com/tinyland-inc/clawgate/pkg/logger"
)

const (
	streamReconnectBase = 2 * time.Second
	streamReconnectMax  = 60 * time.Second
)

// StreamHandler receives each message read off the delivery stream.
type StreamHandler func(ctx context.Context, msg bus.Message)

// Stream maintains a websocket connection to the registry's delivery stream
// and hands decoded messages to a handler. The connection is authenticated
// with the same bearer token as the HTTP client, so stream messages skip
// webhook signature verification.
type Stream struct {
	url     string
	token   string
	handler StreamHandler
	stopped atomic.Bool
	cancel  context.CancelFunc
}

// NewStream creates a delivery stream client. Start must be called to
// connect.
func NewStream(url, token string, handler StreamHandler) *Stream {
	return &Stream{url: url, token: token, handler: handler}
}

// Start connects and reads in a background goroutine, reconnecting with
// capped exponential backoff until Stop is called or the context ends.
func (s *Stream) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	go func() {
		backoff := streamReconnectBase
		for {
			if s.stopped.Load() || ctx.Err() != nil {
				return
			}

			conn, err := s.dial(ctx)
			if err != nil {
				logger.WarnCF("stream", "Stream connect failed", map[string]any{
					"url":     s.url,
					"error":   err.Error(),
					"backoff": backoff.String(),
				})
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return
				}
				if backoff *= 2; backoff > streamReconnectMax {
					backoff = streamReconnectMax
				}
				continue
			}

			logger.InfoCF("stream", "Delivery stream connected", map[string]any{"url": s.url})
			backoff = streamReconnectBase
			s.readLoop(ctx, conn)
		}
	}()
}

// Stop closes the stream and halts reconnection.
func (s *Stream) Stop() {
	s.stopped.Store(true)
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Stream) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if s.token != "" {
		header.Set("Authorization", "Bearer "+s.token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, header)
	return conn, err
}

func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !s.stopped.Load() && ctx.Err() == nil {
				logger.WarnCF("stream", "Stream read failed, reconnecting", map[string]any{
					"error": err.Error(),
				})
			}
			return
		}

		var msg bus.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.WarnCF("stream", "Dropping undecodable stream frame", map[string]any{
				"error": err.Error(),
			})
			continue
		}
		s.handler(ctx, msg)
	}
}
