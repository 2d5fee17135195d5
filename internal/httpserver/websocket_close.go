package httpserver

import (
	"context"
	"errors"
	"log/slog"

	"github.com/coder/websocket"
)

var (
	errOutboundClosed = errors.New("outbound queue closed")
	errReadTimeout    = errors.New("client idle")
)

// closeReason picks the close frame sent when a session ends with cause.
func closeReason(cause error) (websocket.StatusCode, string) {
	switch {
	case cause == nil:
		return websocket.StatusNormalClosure, ""
	case errors.Is(cause, errReadTimeout), errors.Is(cause, context.DeadlineExceeded):
		return websocket.StatusPolicyViolation, "read timeout"
	case errors.Is(cause, errOutboundClosed):
		return websocket.StatusTryAgainLater, "stream unavailable"
	case errors.Is(cause, context.Canceled):
		return websocket.StatusGoingAway, "server shutting down"
	default:
		return websocket.StatusInternalError, "internal error"
	}
}

func closeWebsocket(logger *slog.Logger, conn *websocket.Conn, cause error) {
	if conn == nil {
		return
	}
	code, reason := closeReason(cause)
	if err := conn.Close(code, reason); err != nil && logger != nil {
		logger.Debug("websocket close failed", "code", code, "err", err)
	}
}
