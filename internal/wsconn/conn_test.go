package wsconn

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsUpgrader is the test WebSocket upgrader.
var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// echoServer returns a test server that echoes WebSocket messages back.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
}

// wsURL converts an HTTP test server URL to a WebSocket URL.
func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestConn_ConnectAndSendReceive(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	c := New(&Config{URL: wsURL(srv)})
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	require.NoError(t, c.Send(map[string]string{"hello": "world"}))

	data, err := c.Receive(ctx)
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "world", got["hello"])
	assert.True(t, c.isConnected())
}

func TestConn_ConnectWithRetry_Failure(t *testing.T) {
	c := New(&Config{
		URL:              "ws://localhost:1", // Nothing listening
		MaxRetries:       2,
		RetryBackoffBase: 10 * time.Millisecond,
		RetryBackoffMax:  50 * time.Millisecond,
	})

	err := c.ConnectWithRetry(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect after 2 attempts")
}

func TestConn_ConnectWithRetry_ClientErrorNotRetried(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(&Config{URL: wsURL(srv), MaxRetries: 3, RetryBackoffBase: time.Millisecond})
	err := c.ConnectWithRetry(context.Background())

	var hs *HandshakeError
	require.ErrorAs(t, err, &hs)
	assert.Equal(t, http.StatusUnauthorized, hs.StatusCode)
	mu.Lock()
	assert.Equal(t, 1, attempts)
	mu.Unlock()
}

func TestConn_ConnectWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(&Config{URL: "ws://localhost:1"})
	assert.ErrorIs(t, c.ConnectWithRetry(ctx), context.Canceled)
}

func TestConn_ReceiveContextCancel(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	c := New(&Config{URL: wsURL(srv)})
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestConn_SendAndReceiveWhenNotConnected(t *testing.T) {
	c := New(&Config{URL: "ws://unused"})

	assert.ErrorIs(t, c.SendRaw([]byte("x")), ErrNotConnected)
	_, err := c.Receive(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestConn_SendMarshalError(t *testing.T) {
	c := New(&Config{URL: "ws://unused"})
	err := c.Send(map[string]any{"bad": make(chan int)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "marshal")
}

func TestConn_ShutdownAwaitsPeerAcknowledgement(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	c := New(&Config{URL: wsURL(srv)})
	require.NoError(t, c.Connect(context.Background()))

	readErr := make(chan error, 1)
	go func() {
		for {
			if _, err := c.Receive(context.Background()); err != nil {
				readErr <- err
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Shutdown(ctx))

	select {
	case err := <-readErr:
		assert.True(t, IsNormalClose(err), "reader should see the peer's close reply, got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not finish")
	}
	assert.False(t, c.isConnected())
	assert.ErrorIs(t, c.SendRaw([]byte("x")), ErrNotConnected)
}

func TestConn_ShutdownWithoutReaderTimesOut(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	c := New(&Config{URL: wsURL(srv)})
	require.NoError(t, c.Connect(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.Shutdown(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, c.isConnected())
}

func TestConn_CloseIdempotent(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	c := New(&Config{URL: wsURL(srv)})
	require.NoError(t, c.Connect(context.Background()))

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Shutdown(context.Background()))

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestConn_Heartbeat(t *testing.T) {
	pinged := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetPingHandler(func(string) error {
			select {
			case pinged <- struct{}{}:
			default:
			}
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c := New(&Config{URL: wsURL(srv)})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	c.StartHeartbeat(ctx, 20*time.Millisecond)

	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ping")
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := &Config{}
	cfg.defaults()

	assert.Equal(t, DefaultDialTimeout, cfg.DialTimeout)
	assert.Equal(t, DefaultWriteWait, cfg.WriteWait)
	assert.Equal(t, int64(DefaultMaxMessageSize), cfg.MaxMessageSize)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultCloseGracePeriod, cfg.CloseGracePeriod)
	assert.NotNil(t, cfg.Logger)
}

func TestCalculateBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	maxDelay := 500 * time.Millisecond

	for range 100 {
		d := calculateBackoff(base, maxDelay)
		assert.LessOrEqual(t, d, maxDelay)
		assert.GreaterOrEqual(t, d, 75*time.Millisecond)
	}
	assert.LessOrEqual(t, calculateBackoff(10*time.Second, time.Second), time.Second)
}
