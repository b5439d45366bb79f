package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const writeTimeout = 5 * time.Second

// Socket wraps a WebSocket connection with a write mutex so concurrent
// fan-out deliveries to the same peer never interleave frames. It implements
// hub.Conn.
type Socket struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Upgrade upgrades the HTTP request to a WebSocket connection. An empty
// allowedOrigin accepts any origin.
func Upgrade(w http.ResponseWriter, r *http.Request, allowedOrigin string) (*Socket, error) {
	opts := &websocket.AcceptOptions{}
	if allowedOrigin == "" {
		opts.InsecureSkipVerify = true
	} else {
		opts.OriginPatterns = []string{allowedOrigin}
	}
	c, err := websocket.Accept(w, r, opts)
	if err != nil {
		return nil, err
	}
	return &Socket{conn: c}, nil
}

// Read blocks for the next text frame and returns its payload.
func (s *Socket) Read(ctx context.Context) ([]byte, error) {
	_, data, err := s.conn.Read(ctx)
	return data, err
}

// Send writes v as a JSON frame with a bounded write timeout.
func (s *Socket) Send(ctx context.Context, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, s.conn, v)
}

// Close closes the connection with a normal closure status.
func (s *Socket) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}

// ClosePolicy closes the connection with a policy-violation status, used for
// origin rejections and message floods.
func (s *Socket) ClosePolicy(reason string) error {
	return s.conn.Close(websocket.StatusPolicyViolation, reason)
}
