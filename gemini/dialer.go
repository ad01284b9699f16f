package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/AltairaLabs/livevoice/internal/wsconn"
	"github.com/AltairaLabs/livevoice/logger"
	"github.com/AltairaLabs/livevoice/transport"
)

// Dialer opens Gemini Live sessions.
type Dialer struct {
	cfg Config
}

// NewDialer returns a Dialer with defaults applied to cfg.
func NewDialer(cfg Config) *Dialer {
	cfg.defaults()
	return &Dialer{cfg: cfg}
}

// Dial connects, sends the setup payload and waits for setupComplete. The
// returned connection is already streaming.
func (d *Dialer) Dial(ctx context.Context) (transport.Conn, error) {
	headers := http.Header{}
	if d.cfg.APIKey != "" {
		headers.Set(apiKeyHeader, d.cfg.APIKey)
	}

	ws := wsconn.New(&wsconn.Config{
		URL:        d.cfg.Endpoint,
		Headers:    headers,
		MaxRetries: d.cfg.MaxRetries,
		Logger:     d.cfg.Logger,
	})

	d.cfg.Logger.Debug("dialing live endpoint",
		"endpoint", logger.RedactSensitiveData(d.cfg.Endpoint),
		"model", d.cfg.Model,
		"voice", d.cfg.Voice)

	if err := ws.ConnectWithRetry(ctx); err != nil {
		return nil, classifyDialError(err)
	}

	if err := ws.Send(d.cfg.setupMessage()); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("failed to send setup message: %w", err)
	}

	if err := d.awaitSetupComplete(ctx, ws); err != nil {
		_ = ws.Close()
		return nil, err
	}

	c := newConn(ws, &d.cfg)
	if d.cfg.HeartbeatInterval > 0 {
		ws.StartHeartbeat(c.ctx, d.cfg.HeartbeatInterval)
	}
	d.cfg.Logger.Info("live session open", "model", d.cfg.Model)
	return c, nil
}

func (d *Dialer) awaitSetupComplete(ctx context.Context, ws *wsconn.Conn) error {
	setupCtx, cancel := context.WithTimeout(ctx, d.cfg.SetupTimeout)
	defer cancel()

	data, err := ws.Receive(setupCtx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrSetupFailed, closeError(err))
	}

	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: invalid setup response: %w", ErrSetupFailed, err)
	}
	if msg.SetupComplete == nil {
		return fmt.Errorf("%w: setupComplete not received", ErrSetupFailed)
	}
	return nil
}
