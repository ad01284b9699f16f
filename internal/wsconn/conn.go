// Package wsconn manages the WebSocket under a live session: connect with
// retry, serialized writes, context-bound reads, heartbeat, and a close
// handshake that waits for the peer's acknowledgement.
//
// Message encoding is left to the caller.
package wsconn

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Default connection constants.
const (
	DefaultDialTimeout      = 10 * time.Second
	DefaultWriteWait        = 10 * time.Second
	DefaultMaxMessageSize   = 16 * 1024 * 1024 // 16MB
	DefaultMaxRetries       = 3
	DefaultRetryBackoffBase = 1 * time.Second
	DefaultRetryBackoffMax  = 30 * time.Second
	DefaultCloseGracePeriod = 5 * time.Second
)

// jitterFactor is the +-25% jitter applied to backoff delays.
const jitterFactor = 0.25

// jitterPrecision is the granularity for crypto/rand jitter generation.
const jitterPrecision = 1000

// jitterHalfPrecision normalizes jitter output to the range [-1, 1].
const jitterHalfPrecision = jitterPrecision / 2

// ErrNotConnected is returned by operations on a connection that is not open.
var ErrNotConnected = errors.New("websocket is not connected")

// Config configures the WebSocket connection behavior.
type Config struct {
	// URL is the WebSocket endpoint URL.
	URL string

	// Headers are sent during the WebSocket handshake.
	Headers http.Header

	// DialTimeout is the handshake timeout. Defaults to DefaultDialTimeout.
	DialTimeout time.Duration

	// WriteWait is the write deadline for each message. Defaults to DefaultWriteWait.
	WriteWait time.Duration

	// MaxMessageSize is the read limit. Defaults to DefaultMaxMessageSize.
	MaxMessageSize int64

	// MaxRetries is the number of connection attempts for ConnectWithRetry.
	// Defaults to DefaultMaxRetries.
	MaxRetries int

	// RetryBackoffBase is the initial backoff delay. Defaults to DefaultRetryBackoffBase.
	RetryBackoffBase time.Duration

	// RetryBackoffMax caps the backoff delay. Defaults to DefaultRetryBackoffMax.
	RetryBackoffMax time.Duration

	// CloseGracePeriod is the deadline for writing the close frame.
	// Defaults to DefaultCloseGracePeriod.
	CloseGracePeriod time.Duration

	// Logger receives connection logs. Defaults to discarding them.
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.WriteWait == 0 {
		c.WriteWait = DefaultWriteWait
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryBackoffBase == 0 {
		c.RetryBackoffBase = DefaultRetryBackoffBase
	}
	if c.RetryBackoffMax == 0 {
		c.RetryBackoffMax = DefaultRetryBackoffMax
	}
	if c.CloseGracePeriod == 0 {
		c.CloseGracePeriod = DefaultCloseGracePeriod
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// Conn is a single WebSocket connection. It supports one concurrent reader
// and any number of concurrent writers.
type Conn struct {
	cfg Config

	conn     *websocket.Conn
	mu       sync.Mutex
	writeMu  sync.Mutex // serializes writes (gorilla/websocket requirement)
	closing  bool
	closed   bool
	closeCh  chan struct{}
	readDone chan struct{}
	readOnce sync.Once
}

// New creates a new Conn. Call Connect or ConnectWithRetry to establish the connection.
func New(cfg *Config) *Conn {
	cfg.defaults()
	return &Conn{
		cfg:      *cfg,
		closeCh:  make(chan struct{}),
		readDone: make(chan struct{}),
	}
}

// Connect establishes a WebSocket connection.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing || c.closed {
		return fmt.Errorf("connection is closed")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.DialTimeout,
		TLSClientConfig:  &tls.Config{MinVersion: tls.VersionTLS12},
	}

	c.cfg.Logger.Debug("connecting to WebSocket", "url", c.cfg.URL)

	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL, c.cfg.Headers)
	if err != nil {
		if resp != nil {
			if resp.Body != nil {
				_ = resp.Body.Close()
			}
			c.cfg.Logger.Error("WebSocket dial failed", "error", err, "status", resp.StatusCode)
			return &HandshakeError{StatusCode: resp.StatusCode, Err: err}
		}
		return fmt.Errorf("failed to connect: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn = conn
	c.cfg.Logger.Debug("WebSocket connected")
	return nil
}

// HandshakeError is returned when the server answered the upgrade request
// with a non-101 status.
type HandshakeError struct {
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("failed to connect: handshake status %d: %v", e.StatusCode, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// retryable reports whether another attempt could succeed. Client errors
// other than rate limiting are not retried.
func retryable(err error) bool {
	var hs *HandshakeError
	if errors.As(err, &hs) {
		return hs.StatusCode >= http.StatusInternalServerError || hs.StatusCode == http.StatusTooManyRequests
	}
	return true
}

// ConnectWithRetry attempts to connect with exponential backoff and jitter.
func (c *Conn) ConnectWithRetry(ctx context.Context) error {
	var lastErr error
	backoff := c.cfg.RetryBackoffBase

	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := c.Connect(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return err
		}

		c.cfg.Logger.Warn("connection attempt failed",
			"attempt", attempt, "maxAttempts", c.cfg.MaxRetries, "error", lastErr)

		if attempt < c.cfg.MaxRetries {
			delay := calculateBackoff(backoff, c.cfg.RetryBackoffMax)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			backoff = min(backoff*2, c.cfg.RetryBackoffMax)
		}
	}

	return fmt.Errorf("failed to connect after %d attempts: %w", c.cfg.MaxRetries, lastErr)
}

// Send JSON-encodes msg and writes it to the WebSocket.
func (c *Conn) Send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return c.SendRaw(data)
}

// SendRaw writes pre-encoded data to the WebSocket.
func (c *Conn) SendRaw(data []byte) error {
	c.mu.Lock()
	if c.closing || c.closed || c.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Receive reads a single message. It blocks until a message arrives, the
// connection fails or ctx is done. Once Receive has failed the connection
// cannot be read again. Reading continues while a graceful close is in
// progress so the peer's acknowledgement can be observed.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	if c.closed || c.conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	conn := c.conn
	c.mu.Unlock()

	deadline, _ := ctx.Deadline()
	_ = conn.NetConn().SetReadDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = conn.NetConn().SetReadDeadline(time.Now())
	})
	defer stop()

	msgType, data, err := conn.ReadMessage()
	if err != nil {
		c.readOnce.Do(func() { close(c.readDone) })
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
		return nil, fmt.Errorf("unexpected message type: %d", msgType)
	}
	return data, nil
}

// IsNormalClose reports whether err is the peer closing the connection normally.
func IsNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

// StartHeartbeat starts a goroutine that sends WebSocket ping frames at the given interval.
func (c *Conn) StartHeartbeat(ctx context.Context, interval time.Duration) {
	go c.heartbeatLoop(ctx, interval)
}

func (c *Conn) heartbeatLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeCh:
			return
		case <-ticker.C:
			if !c.sendPing() {
				return
			}
		}
	}
}

func (c *Conn) sendPing() bool {
	c.mu.Lock()
	if c.closing || c.closed || c.conn == nil {
		c.mu.Unlock()
		return false
	}
	conn := c.conn
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		c.cfg.Logger.Warn("failed to set write deadline for ping", "error", err)
		return true // non-fatal
	}
	if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.cfg.Logger.Warn("ping failed", "error", err)
		return false
	}
	return true
}

// Shutdown performs the close handshake: it sends a close frame and waits
// for the reader to observe the peer's reply, then releases the socket.
// A reader must be running for the reply to be seen; otherwise Shutdown
// waits until ctx is done. The socket is released in every case.
func (c *Conn) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.closing || c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	close(c.closeCh)
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return c.markClosed()
	}

	// The reader already saw the connection end; there is nothing to acknowledge.
	select {
	case <-c.readDone:
		return c.markClosed()
	default:
	}

	writeErr := c.writeClose(conn)

	var waitErr error
	if writeErr == nil {
		select {
		case <-c.readDone:
		case <-ctx.Done():
			waitErr = fmt.Errorf("close acknowledgement: %w", ctx.Err())
		}
	}

	closeErr := c.markClosed()
	return errors.Join(writeErr, waitErr, closeErr)
}

// Close releases the connection immediately after a best-effort close frame.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	alreadyClosing := c.closing
	c.closing = true
	if !alreadyClosing {
		close(c.closeCh)
	}
	conn := c.conn
	c.mu.Unlock()

	if conn != nil && !alreadyClosing {
		_ = c.writeClose(conn)
	}
	return c.markClosed()
}

func (c *Conn) writeClose(conn *websocket.Conn) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.CloseGracePeriod))
	if err := conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		return fmt.Errorf("failed to write close frame: %w", err)
	}
	return nil
}

func (c *Conn) markClosed() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn == nil {
		return nil
	}
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("failed to close socket: %w", err)
	}
	return nil
}

// isConnected reports whether the connection is established and not yet closing.
func (c *Conn) isConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && !c.closing && !c.closed
}

// calculateBackoff computes a backoff duration with +-25% jitter, capped at maxDelay.
func calculateBackoff(base, maxDelay time.Duration) time.Duration {
	delay := float64(min(base, maxDelay))
	n, _ := rand.Int(rand.Reader, big.NewInt(jitterPrecision))
	jitter := delay * jitterFactor * (float64(n.Int64())/jitterHalfPrecision - 1)
	result := delay + jitter
	if result < 0 {
		result = float64(base)
	}
	if result > float64(maxDelay) {
		result = float64(maxDelay)
	}
	return time.Duration(math.Max(result, 0))
}
