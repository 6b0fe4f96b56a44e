// Package httpapi serves the webhook, query and real-time endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/matheus3301/wpprelay/internal/bus"
	"github.com/matheus3301/wpprelay/internal/delivery"
	"github.com/matheus3301/wpprelay/internal/ingest"
	"github.com/matheus3301/wpprelay/internal/model"
	"go.uber.org/zap"
)

// Ingester accepts webhook payloads and outbound messages.
type Ingester interface {
	Ingest(ctx context.Context, payload []byte) (ingest.Result, error)
	Send(ctx context.Context, conversationID, body string) (model.Message, error)
}

// Reader answers the query endpoints.
type Reader interface {
	ListConversations(ctx context.Context, limit, offset int) ([]model.Conversation, error)
	ListMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
	Ping(ctx context.Context) error
}

// Config tunes the HTTP surface.
type Config struct {
	MaxBodyBytes   int64
	OriginPatterns []string
	Delivery       delivery.Options
}

// Server routes HTTP requests. Real-time sessions outlive their handler's
// request context, so Close must be called on shutdown to end them.
type Server struct {
	ingest Ingester
	reader Reader
	reg    delivery.Registrar
	bus    *bus.Bus
	cfg    Config
	logger *zap.Logger
	mux    *http.ServeMux
	h      http.Handler

	mu       sync.Mutex
	closed   bool
	ctx      context.Context
	cancel   context.CancelFunc
	sessions sync.WaitGroup
}

// New creates a server.
func New(in Ingester, reader Reader, reg delivery.Registrar, b *bus.Bus, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		ingest: in,
		reader: reader,
		reg:    reg,
		bus:    b,
		cfg:    cfg,
		logger: logger.Named("http"),
		mux:    http.NewServeMux(),
		ctx:    ctx,
		cancel: cancel,
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/webhook", s.handleWebhook)
	s.mux.HandleFunc("GET /api/ws/{conversationId}", s.handleWebSocket)
	s.mux.HandleFunc("GET /api/conversations", s.handleConversations)
	s.mux.HandleFunc("GET /api/messages/{conversationId}", s.handleMessages)
	s.mux.HandleFunc("POST /api/send-message", s.handleSendMessage)
	s.h = cors(cfg.OriginPatterns, s.mux)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.h.ServeHTTP(w, r)
}

// Close ends every real-time session and waits for them to clean up.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	s.cancel()
	s.mu.Unlock()
	s.sessions.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.reader.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "store is not reachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	res, err := s.ingest.Ingest(r.Context(), body)
	if err != nil {
		s.writeIngestError(w, err)
		return
	}
	s.logger.Debug("webhook processed",
		zap.Int("messages", res.Messages),
		zap.Int("statuses", res.Statuses),
		zap.Int("unmatched", res.Unmatched),
		zap.Int("stale", res.Stale))
	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

func (s *Server) writeIngestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrMalformedPayload):
		s.logger.Info("webhook rejected", zap.Error(err))
		writeError(w, http.StatusBadRequest, "malformed_payload", err.Error())
	case errors.Is(err, ingest.ErrInvalidMessage):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, model.ErrStoreUnavailable):
		s.logger.Error("store unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "store is unavailable, retry later")
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("conversationId")
	conn, err := delivery.AcceptWebSocket(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.OriginPatterns,
	})
	if err != nil {
		// Accept has already written the HTTP error.
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close(delivery.ReasonShutdown)
		return
	}
	s.sessions.Add(1)
	s.mu.Unlock()
	defer s.sessions.Done()

	sess := delivery.New(conversationID, conn, s.reg, s.cfg.Delivery, s.bus, s.logger)
	if err := sess.Run(s.ctx); err != nil {
		s.logger.Info("websocket session ended with error",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
	}
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)
	convs, err := s.reader.ListConversations(r.Context(), limit, offset)
	if err != nil {
		s.writeIngestError(w, err)
		return
	}
	if convs == nil {
		convs = []model.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.reader.ListMessages(r.Context(), r.PathValue("conversationId"), queryInt(r, "limit", 200))
	if err != nil {
		s.writeIngestError(w, err)
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

type sendRequest struct {
	ConversationID string `json:"conversationId"`
	Body           string `json:"body"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	var req sendRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body")
		return
	}
	msg, err := s.ingest.Send(r.Context(), req.ConversationID, req.Body)
	if err != nil {
		s.writeIngestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds configured limit")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body")
		return nil, false
	}
	return body, true
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}
