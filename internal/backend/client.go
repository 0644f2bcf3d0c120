package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/avatar-gateway/internal/resilience"
)

// ErrNotConnected is returned by Send before Connect succeeds or after Close
var ErrNotConnected = errors.New("backend not connected")

// Recorder receives backend traffic measurements
type Recorder interface {
	RecordBackendMessage(direction, msgType string)
	RecordBackendReconnect()
	RecordError(errorType, component string)
}

// Handler is called for every message read from the backend, in order
type Handler func(msg Message)

// Options configures a Client
type Options struct {
	URL         string
	DialTimeout time.Duration
	Breaker     *resilience.CircuitBreaker
	Reconnect   *resilience.ReconnectConfig
	Retry       *resilience.RetryConfig
	Recorder    Recorder
	Logger      zerolog.Logger
}

// Client is one session's websocket link to the backend conversation
// service. Run owns reads; Send may be called from any goroutine.
type Client struct {
	url       string
	dialer    *websocket.Dialer
	breaker   *resilience.CircuitBreaker
	reconnect *resilience.ReconnectConfig
	retry     *resilience.RetryConfig
	recorder  Recorder
	logger    zerolog.Logger

	mu      sync.RWMutex
	conn    *websocket.Conn
	closed  bool
	writeMu sync.Mutex
}

// NewClient creates a disconnected client
func NewClient(opts Options) *Client {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.Breaker == nil {
		opts.Breaker = resilience.NewCircuitBreaker("backend", 5, 30*time.Second)
	}
	if opts.Reconnect == nil {
		opts.Reconnect = resilience.DefaultReconnectConfig()
	}
	if opts.Retry == nil {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}

	logger := opts.Logger.With().Str("component", "backend-client").Logger()
	reconnect := *opts.Reconnect
	reconnect.Logger = logger

	return &Client{
		url: opts.URL,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.DialTimeout,
		},
		breaker:   opts.Breaker,
		reconnect: &reconnect,
		retry:     opts.Retry,
		recorder:  opts.Recorder,
		logger:    logger,
	}
}

// Connect dials the backend through the circuit breaker
func (c *Client) Connect(ctx context.Context) error {
	return c.breaker.Call(func() error {
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			c.recorder.RecordError("dial_error", "backend")
			return fmt.Errorf("failed to dial backend %s: %w", c.url, err)
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			conn.Close()
			return ErrNotConnected
		}
		if c.conn != nil {
			c.conn.Close()
		}
		c.conn = conn

		c.logger.Info().Str("url", c.url).Msg("Connected to backend")
		return nil
	})
}

// Dial connects, falling back to the reconnect policy when the first
// attempt fails
func (c *Client) Dial(ctx context.Context) error {
	err := c.Connect(ctx)
	if err == nil {
		return nil
	}
	c.logger.Warn().Err(err).Msg("Initial backend dial failed, retrying")
	if err := resilience.Reconnect(ctx, c.Connect, c.reconnect); err != nil {
		c.recorder.RecordError("reconnect_failed", "backend")
		return fmt.Errorf("backend unreachable: %w", err)
	}
	return nil
}

// Run reads messages until ctx is done or the link cannot be re-established.
// A dropped connection is redialed with backoff; the backend greets again on
// every new connection.
func (c *Client) Run(ctx context.Context, handle Handler) error {
	// Unblock ReadMessage on cancellation
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	for {
		conn := c.current()
		if conn == nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrNotConnected
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("Backend read error")
			} else {
				c.logger.Info().Err(err).Msg("Backend connection closed")
			}
			if err := c.redial(ctx); err != nil {
				return err
			}
			continue
		}

		msg, err := ParseMessage(data)
		if err != nil {
			c.logger.Error().Err(err).Msg("Failed to parse backend message")
			c.recorder.RecordError("parse_error", "backend")
			continue
		}

		c.recorder.RecordBackendMessage("in", msg.Type)
		handle(msg)
	}
}

func (c *Client) redial(ctx context.Context) error {
	if c.isClosed() {
		return ErrNotConnected
	}
	err := resilience.Reconnect(ctx, c.Connect, c.reconnect)
	if err != nil {
		c.recorder.RecordError("reconnect_failed", "backend")
		return fmt.Errorf("backend link lost: %w", err)
	}
	c.recorder.RecordBackendReconnect()
	return nil
}

// Send forwards user input. Transient write failures are retried.
func (c *Client) Send(ctx context.Context, in Input) error {
	err := resilience.RetryContext(ctx, func() error {
		conn := c.current()
		if conn == nil {
			return ErrNotConnected
		}

		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return conn.WriteJSON(in)
	}, c.retry, func(err error) bool {
		return (errors.Is(err, ErrNotConnected) && !c.isClosed()) || resilience.IsRetryableNetworkError(err)
	})
	if err != nil {
		c.recorder.RecordError("send_error", "backend")
		return fmt.Errorf("failed to send %s input: %w", in.Type, err)
	}

	c.recorder.RecordBackendMessage("out", in.Type)
	return nil
}

// Close ends the link. Run returns once its pending read fails.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) current() *websocket.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Probe dials url once and hangs up. Used by the readiness check.
func Probe(ctx context.Context, url string) (bool, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return false, err
	}
	conn.Close()
	return true, nil
}

type nopRecorder struct{}

func (nopRecorder) RecordBackendMessage(string, string) {}
func (nopRecorder) RecordBackendReconnect()             {}
func (nopRecorder) RecordError(string, string)          {}
