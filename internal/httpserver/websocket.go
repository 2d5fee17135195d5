package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/skobkin/tempstatus-web/internal/api"
	"github.com/skobkin/tempstatus-web/internal/poll"
)

const (
	wsSendQueueSize = 64
	wsInboundSize   = 8
)

// wsSlots bounds the number of concurrent sessions. A limit <= 0 disables
// the bound.
type wsSlots struct {
	limit    int64
	active   atomic.Int64
	rejected atomic.Uint64
}

func (l *wsSlots) acquire() bool {
	for {
		current := l.active.Load()
		if l.limit > 0 && current >= l.limit {
			l.rejected.Add(1)
			return false
		}
		if l.active.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (l *wsSlots) release() {
	l.active.Add(-1)
}

// wsSession streams chart updates to one client. filter is only touched by
// the run loop.
type wsSession struct {
	srv    *Server
	conn   *websocket.Conn
	out    *wsOutbound
	logger *slog.Logger
	filter string
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	reqLogger := s.requestLogger(r)
	if !allowGet(w, r) {
		return
	}
	if s.poll == nil || s.hub == nil {
		http.Error(w, "poll loop unavailable", http.StatusServiceUnavailable)
		return
	}

	if !s.wsSlots.acquire() {
		reqLogger.Warn("websocket rejected", "reason", "capacity")
		http.Error(w, "websocket capacity reached", http.StatusServiceUnavailable)
		return
	}
	defer s.wsSlots.release()

	conn, err := websocket.Accept(w, r, acceptOptions(s.cfg.AllowedOrigins))
	if err != nil {
		reqLogger.Warn("websocket accept failed", "err", err)
		return
	}

	s.wsTotal.Add(1)
	sessionID := uuid.NewString()
	sess := &wsSession{
		srv:    s,
		conn:   conn,
		out:    newWSOutbound(wsSendQueueSize, &s.wsDropped),
		logger: reqLogger.With("ws_id", s.wsConnIDs.Add(1), "session_id", sessionID),
	}

	cause := sess.run(r.Context(), sessionID)
	closeWebsocket(sess.logger, conn, cause)
}

// run serves the session until the client leaves, the hub closes or a
// write fails. The returned error selects the close frame.
func (ws *wsSession) run(parent context.Context, sessionID string) error {
	ctx, cancel := context.WithCancel(parent)

	writerDone := make(chan struct{})
	go ws.writeLoop(ctx, cancel, writerDone)

	updates, unsubscribe := ws.srv.hub.Subscribe()
	defer func() {
		unsubscribe()
		ws.out.close()
		cancel()
		<-writerDone
	}()

	controller := ws.srv.poll
	hello := api.NewHelloMessage(
		sessionID,
		controller.Interval(),
		controller.Geometry(),
		api.NewSensorList(controller.Sensors()),
		controller.View().Placeholder,
	)
	if err := ws.send(hello); err != nil {
		return err
	}

	inbound := make(chan []byte, wsInboundSize)
	readErr := make(chan error, 1)
	go ws.readLoop(ctx, inbound, readErr)

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				// Hub closed on shutdown.
				return context.Canceled
			}
			if ws.filter != "" && update.Path != ws.filter {
				continue
			}
			if err := ws.sendUpdate(update); err != nil {
				return err
			}
		case data, ok := <-inbound:
			if !ok {
				inbound = nil
				continue
			}
			if err := ws.handle(data); err != nil {
				ws.logger.Warn("client message handling error", "err", err)
				return err
			}
		case err := <-readErr:
			return ws.readFailure(ctx, err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (ws *wsSession) readFailure(ctx context.Context, err error) error {
	switch status := websocket.CloseStatus(err); {
	case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		ws.logger.Info("websocket idle, closing", "timeout", ws.srv.cfg.WS.ReadTimeout)
		return errReadTimeout
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		ws.logger.Warn("websocket read error", "err", err)
		return err
	}
}

func (ws *wsSession) readLoop(ctx context.Context, out chan<- []byte, errCh chan<- error) {
	defer close(out)
	for {
		readCtx, cancel := withOptionalTimeout(ctx, ws.srv.cfg.WS.ReadTimeout)
		msgType, data, err := ws.conn.Read(readCtx)
		cancel()
		if err != nil {
			errCh <- err
			return
		}
		if msgType != websocket.MessageText {
			continue
		}
		select {
		case out <- data:
		case <-ctx.Done():
			return
		}
	}
}

func (ws *wsSession) writeLoop(ctx context.Context, cancel context.CancelFunc, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ws.out.channel():
			if !ok {
				return
			}
			writeCtx, cancelWrite := withOptionalTimeout(ctx, ws.srv.cfg.WS.WriteTimeout)
			err := ws.conn.Write(writeCtx, websocket.MessageText, msg)
			cancelWrite()
			if err != nil {
				if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
					ws.logger.Warn("websocket write failed", "err", err)
				}
				cancel()
				return
			}
			ws.srv.wsSent.Add(1)
		}
	}
}

func (ws *wsSession) handle(data []byte) error {
	var envelope api.ClientMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		ws.logger.Debug("invalid client message", "err", err)
		return nil
	}

	switch envelope.Type {
	case "subscribe":
		var msg api.SubscribeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return ws.sendError("invalid subscribe payload")
		}
		return ws.subscribe(msg.Path)
	case "ping":
		return ws.send(api.PongMessage{Type: "pong"})
	default:
		ws.logger.Debug("unknown message type", "type", envelope.Type)
		return nil
	}
}

// subscribe narrows the stream to path and replays its latest chart. An
// empty path restores the full stream.
func (ws *wsSession) subscribe(path string) error {
	if path != "" {
		if _, ok := ws.srv.poll.Chart(path); !ok {
			return ws.sendError(fmt.Sprintf("unknown sensor %q", path))
		}
	}
	ws.filter = path
	ws.logger.Info("ws subscribed", "path", path)
	if path == "" {
		return nil
	}
	if latest, ok := ws.srv.hub.Latest(path); ok {
		return ws.sendUpdate(latest)
	}
	return nil
}

func (ws *wsSession) sendUpdate(u poll.Update) error {
	return ws.send(api.NewChartMessage(u.Path, u.Info, u.Frame))
}

func (ws *wsSession) sendError(msg string) error {
	return ws.send(api.ErrorMessage{Type: "error", Message: msg})
}

func (ws *wsSession) send(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal websocket payload: %w", err)
	}
	if !ws.out.enqueue(data) {
		return errOutboundClosed
	}
	return nil
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// wsOutbound is a bounded send queue that never blocks the producer; when
// full, the oldest queued message is dropped.
type wsOutbound struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
	drops  *atomic.Uint64
}

func newWSOutbound(size int, dropCounter *atomic.Uint64) *wsOutbound {
	return &wsOutbound{
		ch:    make(chan []byte, max(size, 1)),
		drops: dropCounter,
	}
}

func (o *wsOutbound) enqueue(msg []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		o.countDrop()
		return false
	}

	for {
		select {
		case o.ch <- msg:
			return true
		default:
		}
		select {
		case <-o.ch:
			o.countDrop()
		default:
		}
	}
}

func (o *wsOutbound) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.ch)
	}
}

func (o *wsOutbound) channel() <-chan []byte {
	return o.ch
}

func (o *wsOutbound) countDrop() {
	if o.drops != nil {
		o.drops.Add(1)
	}
}
