package gemini

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/AltairaLabs/livevoice/internal/wsconn"
	"github.com/AltairaLabs/livevoice/transport"
)

// Common errors for Gemini live sessions.
var (
	// ErrAuthenticationFailed indicates the API key was rejected. It matches
	// transport.ErrUnauthorized.
	ErrAuthenticationFailed = fmt.Errorf("authentication failed: %w", transport.ErrUnauthorized)

	// ErrSetupFailed indicates the server did not confirm the session.
	ErrSetupFailed = errors.New("session setup failed")
)

// classifyDialError maps handshake failures to package errors.
func classifyDialError(err error) error {
	var hs *wsconn.HandshakeError
	if errors.As(err, &hs) {
		switch hs.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
		}
	}
	return err
}

// closeError describes an abnormal close frame from the server. The server
// puts the reason for rejecting a session (bad model, invalid setup, quota)
// in the close text.
func closeError(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) && ce.Text != "" {
		return fmt.Errorf("server closed session (code %d): %s", ce.Code, ce.Text)
	}
	return fmt.Errorf("gemini websocket error: %w", err)
}
