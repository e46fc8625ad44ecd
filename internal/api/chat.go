package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/shsh-chat/internal/protocol"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// InvalidMessageText is the reply to a request frame that is not valid JSON.
const InvalidMessageText = "Sorry, I couldn't process that message."

const (
	anonymousUserID   = "anonymous"
	frameWriteTimeout = 10 * time.Second
)

// ChatHandler serves the /ws/chat endpoint.
type ChatHandler struct {
	responder      Responder
	registry       *ConnRegistry
	originPatterns []string
	logger         *slog.Logger
}

// NewChatHandler creates a chat socket handler. originPatterns are passed to
// the websocket origin check; nil accepts any origin.
func NewChatHandler(responder Responder, registry *ConnRegistry, originPatterns []string, logger *slog.Logger) *ChatHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if originPatterns == nil {
		originPatterns = []string{"*"}
	}
	return &ChatHandler{
		responder:      responder,
		registry:       registry,
		originPatterns: originPatterns,
		logger:         logger.With("component", "chat_socket"),
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("WebSocket connection attempt", "ip", r.RemoteAddr)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	connID := uuid.NewString()
	h.registry.Register(connID, ws)
	defer h.registry.Unregister(connID, ws)

	h.serve(r.Context(), ws, connID)
}

func (h *ChatHandler) serve(ctx context.Context, ws *websocket.Conn, connID string) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				h.logger.Debug("WebSocket closed by client", "conn_id", connID)
			} else if ctx.Err() == nil {
				h.logger.Warn("WebSocket read error", "error", err, "conn_id", connID)
			}
			return
		}

		var req protocol.Request
		if err := json.Unmarshal(message, &req); err != nil {
			h.logger.Error("Invalid JSON received", "error", err, "conn_id", connID)
			if err := h.reply(ctx, ws, protocol.Chunk(InvalidMessageText), protocol.Done()); err != nil {
				return
			}
			continue
		}
		if req.UserID == "" {
			req.UserID = anonymousUserID
		}

		h.logger.Info("Processing message", "user_id", req.UserID, "conn_id", connID, "input_length", len(req.UserInput))
		if err := h.stream(ctx, ws, req); err != nil {
			h.logger.Debug("Failed to stream reply", "error", err, "conn_id", connID)
			return
		}
	}
}

// stream writes the responder's chunks followed by a done frame, or an error
// frame if the responder fails.
func (h *ChatHandler) stream(ctx context.Context, ws *websocket.Conn, req protocol.Request) error {
	for chunk, err := range h.responder.Respond(ctx, req) {
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			h.logger.Warn("Responder failed", "error", err, "user_id", req.UserID)
			return h.reply(ctx, ws, protocol.Error(err.Error()))
		}
		if err := h.reply(ctx, ws, protocol.Chunk(chunk)); err != nil {
			return err
		}
	}
	return h.reply(ctx, ws, protocol.Done())
}

func (h *ChatHandler) reply(ctx context.Context, ws *websocket.Conn, frames ...protocol.Frame) error {
	for _, f := range frames {
		data, err := protocol.Encode(f)
		if err != nil {
			return fmt.Errorf("encode %s frame: %w", f.Kind, err)
		}
		writeCtx, cancel := context.WithTimeout(ctx, frameWriteTimeout)
		err = ws.Write(writeCtx, websocket.MessageText, data)
		cancel()
		if err != nil {
			return fmt.Errorf("write %s frame: %w", f.Kind, err)
		}
	}
	return nil
}
