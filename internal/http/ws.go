package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/hrms/internal/application"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// wsRequest is one call frame sent by the client.
type wsRequest struct {
	ID        json.RawMessage `json:"id"`
	Procedure string          `json:"procedure"`
	Input     json.RawMessage `json:"input"`
}

// wsResponse answers a call frame with either a result or an error.
type wsResponse struct {
	ID     json.RawMessage `json:"id"`
	Result any             `json:"result,omitempty"`
	Error  *errorBody      `json:"error,omitempty"`
}

// SocketHandler serves procedures over a WebSocket. The session is resolved once, when the
// connection is upgraded, and applies to every frame on it.
type SocketHandler struct {
	rpc      *RPCHandler
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewSocketHandler constructs a SocketHandler sharing the registry and limiter of rpc.
func NewSocketHandler(rpc *RPCHandler, logger *slog.Logger) *SocketHandler {
	return &SocketHandler{
		rpc: rpc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger: defaultLogger(logger),
	}
}

func (h *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := handlerLogger(ctx, h.logger, "SocketHandler", "Serve")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnContext(ctx, "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var writeMu sync.Mutex
	write := func(resp wsResponse) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(resp)
	}

	conn.SetReadLimit(maxRPCBodyBytes)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
				writeMu.Unlock()
				if err != nil {
					cancel()
					return
				}
			}
		}
	}()

	logger.InfoContext(ctx, "websocket connected")
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.DebugContext(ctx, "websocket read ended", "error", err)
			}
			break
		}
		if err := write(h.dispatch(ctx, data)); err != nil {
			logger.WarnContext(ctx, "websocket write failed", "error", err)
			break
		}
	}
	logger.InfoContext(ctx, "websocket disconnected")
}

func (h *SocketHandler) dispatch(ctx context.Context, data []byte) wsResponse {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		body := toErrorBody(errBadRequestBody)
		return wsResponse{ID: json.RawMessage("null"), Error: &body}
	}
	if len(req.ID) == 0 {
		req.ID = json.RawMessage("null")
	}

	proc, ok := h.rpc.registry.Lookup(req.Procedure)
	if !ok {
		h.rpc.metrics.observeCall("unknown", string(application.KindNotFound))
		body := toErrorBody(errUnknownProcedure)
		return wsResponse{ID: req.ID, Error: &body}
	}

	result, err := h.rpc.invoke(ctx, proc, req.Input)
	h.rpc.metrics.observeCall(proc.Name, string(application.KindOf(err)))
	if err != nil {
		if application.KindOf(err) == application.KindInternal && !errors.Is(err, context.Canceled) {
			handlerLogger(ctx, h.logger, "SocketHandler", proc.Name).ErrorContext(ctx, "procedure failed", "error", err)
		}
		body := toErrorBody(err)
		return wsResponse{ID: req.ID, Error: &body}
	}
	return wsResponse{ID: req.ID, Result: result}
}
