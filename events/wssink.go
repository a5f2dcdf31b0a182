package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// WebSocketSink streams events to an observability collector over a
// WebSocket connection. The connection is dialed lazily on first write and
// re-dialed after a write failure; a write that still fails is dropped by
// the emitter, matching the fire-and-forget contract.
//
// Writes are serialized with a mutex because WebSocket connections do not
// support concurrent writers.
type WebSocketSink struct {
	url    string
	logger *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewWebSocketSink creates a sink targeting the collector URL.
func NewWebSocketSink(url string, logger *zap.Logger) *WebSocketSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketSink{
		url:    url,
		logger: logger.With(zap.String("component", "ws_event_sink")),
	}
}

// Write serializes the event as JSON and sends it as one text message.
func (s *WebSocketSink) Write(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("sink closed")
	}
	if s.conn == nil {
		if err := s.dialLocked(ctx); err != nil {
			return err
		}
	}

	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		// Drop the broken connection; the next write re-dials.
		s.conn.Close(websocket.StatusInternalError, "write failed")
		s.conn = nil
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

func (s *WebSocketSink) dialLocked(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial event collector: %w", err)
	}
	s.conn = conn
	s.logger.Debug("connected to event collector", zap.String("url", s.url))
	return nil
}

// Close closes the connection, if any.
func (s *WebSocketSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close(websocket.StatusNormalClosure, "shutdown")
	s.conn = nil
	return err
}
