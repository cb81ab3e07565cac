// Package ws is the live-connection gateway. Each connection runs one read
// loop that dispatches client events and one write loop that drains the
// session's event buffer and keeps the connection alive with pings.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/matheus3301/dmserver/internal/apperr"
	"github.com/matheus3301/dmserver/internal/auth"
	"github.com/matheus3301/dmserver/internal/bus"
	"github.com/matheus3301/dmserver/internal/message"
	"github.com/matheus3301/dmserver/internal/presence"
	"github.com/matheus3301/dmserver/internal/status"
	"go.uber.org/zap"
)

const readLimit = 32 * 1024

// Options tune per-connection behavior.
type Options struct {
	SessionBuffer  int
	RequestTimeout time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	OriginPatterns []string
}

// Presence attaches and detaches live sessions.
type Presence interface {
	Attach(s presence.Session)
	Detach(s presence.Session)
}

// Handler upgrades authenticated requests to WebSocket sessions.
type Handler struct {
	opts     Options
	verifier auth.Verifier
	messages *message.Service
	status   *status.Machine
	presence Presence
	logger   *zap.Logger

	mu       sync.Mutex
	conns    map[*websocket.Conn]struct{}
	closing  bool
	sessions sync.WaitGroup
}

// NewHandler creates a WebSocket handler.
func NewHandler(opts Options, v auth.Verifier, messages *message.Service, machine *status.Machine, p Presence, logger *zap.Logger) *Handler {
	if opts.SessionBuffer <= 0 {
		opts.SessionBuffer = 64
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	return &Handler{
		opts:     opts,
		verifier: v,
		messages: messages,
		status:   machine,
		presence: p,
		logger:   logger.Named("ws"),
		conns:    make(map[*websocket.Conn]struct{}),
	}
}

// Shutdown closes every live session with StatusGoingAway and waits for
// their loops to finish or ctx to expire. New upgrades are refused.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	for conn := range h.conns {
		go func() { _ = conn.Close(websocket.StatusGoingAway, "server shutting down") }()
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) track(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.conns[conn] = struct{}{}
	h.sessions.Add(1)
	return true
}

func (h *Handler) untrack(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	h.sessions.Done()
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := auth.BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	userID, err := h.verifier.Verify(r.Context(), token)
	if err != nil {
		http.Error(w, "not authorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.opts.OriginPatterns,
	})
	if err != nil {
		h.logger.Debug("accept failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if !h.track(conn) {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.untrack(conn)
	conn.SetReadLimit(readLimit)

	c := newClient(userID, h.opts.SessionBuffer)
	logger := h.logger.With(zap.String("user_id", userID), zap.String("session_id", c.ID()))
	logger.Debug("session opened")

	// Detached from the request; Shutdown ends sessions through the conn.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	h.presence.Attach(c)
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		h.writeLoop(ctx, conn, c, logger)
		cancel()
	}()

	err = h.readLoop(ctx, conn, c, logger)
	c.close()
	h.presence.Detach(c)
	cancel()
	<-writeDone

	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		_ = conn.Close(websocket.StatusNormalClosure, "")
	default:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Debug("session read error", zap.Error(err))
		}
		_ = conn.CloseNow()
	}
	logger.Debug("session closed")
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, c *Client, logger *zap.Logger) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logger.Debug("malformed frame dropped", zap.Error(err))
			continue
		}
		h.dispatch(ctx, c, env, logger)
	}
}

func (h *Handler) dispatch(ctx context.Context, c *Client, env Envelope, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, h.opts.RequestTimeout)
	defer cancel()

	switch env.Event {
	case EventSendMessage:
		var d sendMessageData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			logger.Debug("malformed send_message dropped", zap.Error(err))
			return
		}
		msg, err := h.messages.Create(ctx, d.ChatID, c.UserID(), d.Content)
		if err != nil {
			switch apperr.KindOf(err) {
			case apperr.KindValidation:
				logger.Debug("send_message rejected", zap.Error(err))
				return
			case apperr.KindInternal:
				logger.Error("send_message failed", zap.Error(err))
			}
			h.reply(c, err)
			return
		}
		// Echo to the originating session only.
		c.Send(bus.Event{Kind: bus.KindMessageCreated, Timestamp: time.Now(), Target: c.UserID(), Payload: *msg})

	case EventMessageStatusUpdate:
		var d statusUpdateData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			logger.Debug("malformed message_status_update dropped", zap.Error(err))
			return
		}
		if _, err := h.status.Advance(ctx, d.MessageID, c.UserID(), d.Status); err != nil {
			if apperr.KindOf(err) == apperr.KindInternal {
				logger.Error("status update failed", zap.Error(err))
				h.reply(c, err)
				return
			}
			logger.Debug("status update rejected", zap.String("message_id", d.MessageID), zap.Error(err))
		}

	default:
		logger.Debug("unknown event dropped", zap.String("event", env.Event))
	}
}

// reply sends a message_error frame to c alone.
func (h *Handler) reply(c *Client, err error) {
	c.Send(bus.Event{
		Kind:      bus.KindMessageError,
		Timestamp: time.Now(),
		Target:    c.UserID(),
		Payload:   errorPayload{Message: apperr.Message(err)},
	})
}

func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, c *Client, logger *zap.Logger) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-c.send:
			out, ok := encode(evt)
			if !ok {
				logger.Warn("unencodable event dropped", zap.String("kind", evt.Kind))
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, h.opts.WriteTimeout)
			err := wsjson.Write(wctx, conn, out)
			cancel()
			if err != nil {
				logger.Debug("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, h.opts.WriteTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				logger.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}
