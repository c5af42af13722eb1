package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/ocrnlp/internal/document"
	"github.com/MeKo-Tech/ocrnlp/internal/extract"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsWriteWait  = 10 * time.Second
)

// Message types sent to WebSocket clients.
const (
	wsTypePage   = "page"
	wsTypeResult = "result"
	wsTypeError  = "error"
)

// WebSocketExtractRequest is one document sent by a WebSocket client.
// Data is base64 in JSON.
type WebSocketExtractRequest struct {
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Data        []byte `json:"data"`
}

// WebSocketPageMessage carries the blocks of one finished page.
type WebSocketPageMessage struct {
	Type   string          `json:"type"`
	Page   int             `json:"page"`
	Blocks []extract.Block `json:"blocks"`
}

// WebSocketResultMessage closes a successful extraction.
type WebSocketResultMessage struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// WebSocketErrorMessage closes a failed extraction.
type WebSocketErrorMessage struct {
	Type   string `json:"type"`
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// wsSession serializes writes on one connection; the ping loop and the
// request loop both write.
type wsSession struct {
	id     string
	conn   *websocket.Conn
	mu     sync.Mutex
	logger *slog.Logger
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
}

// checkOrigin accepts requests without an Origin header, any origin when
// the CORS origin is "*", and otherwise only the configured origin.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || s.corsOrigin == "*" {
		return true
	}
	return strings.EqualFold(origin, s.corsOrigin)
}

// extractWebSocketHandler streams page results for documents sent over a
// WebSocket connection, one document per text message.
func (s *Server) extractWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		s.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	sess := &wsSession{
		id:   uuid.NewString(),
		conn: conn,
	}
	sess.logger = s.logger.With("session_id", sess.id, "remote_addr", r.RemoteAddr)
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()
	sess.logger.Info("WebSocket connection established")

	conn.SetReadLimit(s.maxUploadBytes()*4/3 + 4096)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go sess.pingLoop(done)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				sess.logger.Warn("WebSocket read failed", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()
		if messageType != websocket.TextMessage {
			sess.send(WebSocketErrorMessage{Type: wsTypeError, Kind: kindBadRequest, Detail: "expected a JSON text message"})
			continue
		}
		// Extraction can outlast the pong deadline; the pong handler only
		// runs while reading.
		_ = conn.SetReadDeadline(time.Time{})
		s.handleWebSocketRequest(r, sess, data)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	}
}

func (s *Server) handleWebSocketRequest(r *http.Request, sess *wsSession, data []byte) {
	var req WebSocketExtractRequest
	if err := json.Unmarshal(data, &req); err != nil {
		sess.send(WebSocketErrorMessage{Type: wsTypeError, Kind: kindBadRequest, Detail: "invalid request: " + err.Error()})
		return
	}
	uploadSizeBytes.Observe(float64(len(req.Data)))

	doc := document.RawDocument{
		Data:        req.Data,
		ContentType: req.ContentType,
		Filename:    req.Filename,
	}

	ctx, cancel := s.extractContext(r.Context())
	defer cancel()

	res, err := s.extractor.Stream(ctx, doc, func(p extract.PageResult) error {
		return sess.send(WebSocketPageMessage{Type: wsTypePage, Page: p.Page, Blocks: p.Blocks})
	})
	if err != nil {
		xerr, ok := extract.AsError(err)
		if !ok {
			// A failed page write means the client is gone.
			sess.logger.Warn("WebSocket extraction aborted", "error", err)
			return
		}
		sess.logger.Warn("WebSocket extraction failed", "kind", xerr.Kind, "error", err)
		sess.send(WebSocketErrorMessage{Type: wsTypeError, Kind: string(xerr.Kind), Detail: xerr.Detail()})
		return
	}
	sess.send(WebSocketResultMessage{Type: wsTypeResult, Count: res.Count})
}

func (sess *wsSession) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		sess.logger.Error("Failed to marshal WebSocket message", "error", err)
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	_ = sess.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := sess.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		if !errors.Is(err, websocket.ErrCloseSent) {
			sess.logger.Warn("Failed to send WebSocket message", "error", err)
		}
		return err
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
	return nil
}

func (sess *wsSession) pingLoop(done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			sess.mu.Lock()
			err := sess.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
			sess.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
