package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mlilback/rc2SwiftClient-sub000/internal/logging"
	"github.com/mlilback/rc2SwiftClient-sub000/pkg/protocol"
)

// Transport is one full-duplex message connection. Read returns io.EOF once
// the peer has closed the connection cleanly.
type Transport interface {
	Dial(ctx context.Context) error
	Read() (protocol.Frame, error)
	Write(frame protocol.Frame) error
	Close() error
}

// TransportSettings tunes the websocket transport.
type TransportSettings struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// ReadTimeout is how long the connection may be silent. Pongs count.
	ReadTimeout  time.Duration
	PingInterval time.Duration
}

func DefaultTransportSettings() TransportSettings {
	return TransportSettings{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadTimeout:      90 * time.Second,
		PingInterval:     20 * time.Second,
	}
}

// WebSocketTransport is a Transport over a gorilla websocket, authenticated
// with a bearer token.
type WebSocketTransport struct {
	url      string
	token    string
	settings TransportSettings

	writeMu sync.Mutex
	mu      sync.Mutex
	conn    *websocket.Conn
	stop    chan struct{}
	closed  bool
}

func NewWebSocketTransport(url, token string, settings TransportSettings) *WebSocketTransport {
	def := DefaultTransportSettings()
	if settings.HandshakeTimeout == 0 {
		settings.HandshakeTimeout = def.HandshakeTimeout
	}
	if settings.WriteTimeout == 0 {
		settings.WriteTimeout = def.WriteTimeout
	}
	if settings.ReadTimeout == 0 {
		settings.ReadTimeout = def.ReadTimeout
	}
	if settings.PingInterval == 0 {
		settings.PingInterval = def.PingInterval
	}
	return &WebSocketTransport{url: url, token: token, settings: settings}
}

func (t *WebSocketTransport) Dial(ctx context.Context) error {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: t.settings.HandshakeTimeout,
	}
	header := http.Header{}
	if t.token != "" {
		header.Set("Authorization", "Bearer "+t.token)
	}

	conn, resp, err := dialer.DialContext(ctx, t.url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: status %d: %w", t.url, resp.StatusCode, err)
		}
		return fmt.Errorf("dial %s: %w", t.url, err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return net.ErrClosed
	}
	t.conn = conn
	t.stop = make(chan struct{})
	t.mu.Unlock()

	conn.SetReadDeadline(time.Now().Add(t.settings.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(t.settings.ReadTimeout))
	})
	go t.ping(conn, t.stop)

	logging.Debug("websocket connected", logging.String("url", t.url))
	return nil
}

// ping sends control pings until stop is closed or a write fails.
func (t *WebSocketTransport) ping(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(t.settings.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			deadline := time.Now().Add(t.settings.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				logging.Debug("websocket ping failed", logging.Err(err))
				return
			}
		}
	}
}

func (t *WebSocketTransport) connection() (*websocket.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil, errors.New("websocket not connected")
	}
	return t.conn, nil
}

func (t *WebSocketTransport) Read() (protocol.Frame, error) {
	conn, err := t.connection()
	if err != nil {
		return protocol.Frame{}, err
	}
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return protocol.Frame{}, io.EOF
			}
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if closed {
				return protocol.Frame{}, io.EOF
			}
			return protocol.Frame{}, err
		}
		conn.SetReadDeadline(time.Now().Add(t.settings.ReadTimeout))

		switch messageType {
		case websocket.TextMessage:
			return protocol.Frame{Data: data}, nil
		case websocket.BinaryMessage:
			return protocol.Frame{Binary: true, Data: data}, nil
		}
	}
}

func (t *WebSocketTransport) Write(frame protocol.Frame) error {
	conn, err := t.connection()
	if err != nil {
		return err
	}
	messageType := websocket.TextMessage
	if frame.Binary {
		messageType = websocket.BinaryMessage
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(t.settings.WriteTimeout))
	return conn.WriteMessage(messageType, frame.Data)
}

// Close sends a normal close frame and closes the connection. It is safe to
// call more than once.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	if t.stop != nil {
		close(t.stop)
	}
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	t.writeMu.Lock()
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(t.settings.WriteTimeout))
	t.writeMu.Unlock()
	return conn.Close()
}
