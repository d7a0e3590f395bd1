package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/supplychain/notifyconsole/internal/notify"
	"github.com/supplychain/notifyconsole/internal/stream"
)

// Store is the slice of notify.Store the console reads and mutates.
type Store interface {
	View(q notify.Query) notify.View
	Items() []notify.StoredNotification
	Open(id string) (notify.StoredNotification, bool)
	SetRead(id string, read bool) (notify.StoredNotification, bool)
	Remove(id string) bool
	ClearAll()
	IsHighlighted(id string) bool
}

// LiveFeed fans normalized events out to websocket clients.
type LiveFeed interface {
	Subscribe(buffer int) (<-chan stream.Event, func())
}

// RawHistory exposes the raw payloads received on the stream, newest first.
type RawHistory interface {
	Recent() []notify.RawEvent
}

type Metrics interface {
	ObserveHTTP(route string, status int)
	Handler() http.Handler
}

type Logger interface {
	Printf(format string, args ...any)
}

type ServerConfig struct {
	RateLimitRPS   float64
	RateLimitBurst int
	AllowedOrigins []string
	MaxBodyBytes   int64
	LiveBuffer     int
	History        RawHistory
	Logger         Logger
}

type Server struct {
	store   Store
	live    LiveFeed
	metrics Metrics
	cfg     ServerConfig
	limiter *rateLimiter
	router  chi.Router
}

func NewServer(store Store, live LiveFeed, metrics Metrics) *Server {
	return NewServerWithConfig(store, live, metrics, ServerConfig{})
}

func NewServerWithConfig(store Store, live LiveFeed, metrics Metrics, cfg ServerConfig) *Server {
	if cfg.RateLimitRPS < 0 {
		cfg.RateLimitRPS = 0
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 1
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.LiveBuffer <= 0 {
		cfg.LiveBuffer = 32
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	s := &Server{
		store:   store,
		live:    live,
		metrics: metrics,
		cfg:     cfg,
	}
	if cfg.RateLimitRPS > 0 {
		s.limiter = newRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	s.router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.observe)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Correlation-Id"},
		ExposedHeaders:   []string{"X-Correlation-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found", getCorrelationID(r))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", getCorrelationID(r))
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/", s.handleDashboard)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/v1/notifications", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.Limit)
		}
		r.Get("/", s.handleList)
		r.Delete("/", s.handleClear)
		r.Get("/types", s.handleTypes)
		r.Get("/live", s.handleLive)
		r.Get("/raw", s.handleRaw)
		r.Get("/{id}", s.handleOpen)
		r.Put("/{id}/read", s.handleSetRead)
		r.Delete("/{id}", s.handleRemove)
	})
	return r
}

// observe echoes the correlation id and records one request sample per
// matched route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := getCorrelationID(r); id != "" {
			w.Header().Set("X-Correlation-Id", id)
		}
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if s.metrics == nil {
			return
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		s.metrics.ObserveHTTP(route, ww.Status())
	})
}

type notificationResponse struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Message     string          `json:"message"`
	Recipient   string          `json:"recipient,omitempty"`
	Timestamp   string          `json:"timestamp"`
	Raw         json.RawMessage `json:"raw,omitempty"`
	Read        bool            `json:"read"`
	Highlighted bool            `json:"highlighted"`
	Severity    string          `json:"severity"`
	Summary     string          `json:"summary"`
	RawSummary  string          `json:"rawSummary,omitempty"`
}

type listResponse struct {
	Items  []notificationResponse `json:"items"`
	Types  []string               `json:"types"`
	Total  int                    `json:"total"`
	Unread int                    `json:"unread"`
}

func toResponse(row notify.ViewItem) notificationResponse {
	n := row.Notification
	resp := notificationResponse{
		ID:          n.ID,
		Type:        n.Type,
		Message:     n.Message,
		Recipient:   n.Recipient,
		Timestamp:   n.Timestamp,
		Read:        n.Read,
		Highlighted: row.Highlighted,
		Severity:    row.Severity,
		Summary:     row.Summary,
		RawSummary:  row.RawSummary,
	}
	if n.Raw != nil {
		if raw, err := json.Marshal(n.Raw); err == nil {
			resp.Raw = raw
		}
	}
	return resp
}

func (s *Server) describe(n notify.StoredNotification) notificationResponse {
	return toResponse(notify.Describe(n, s.store.IsHighlighted(n.ID)))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	correlationID := getCorrelationID(r)
	query := r.URL.Query()
	unread, err := parseOptionalBool(query.Get("unread"), false)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid unread", correlationID)
		return
	}
	view := s.store.View(notify.Query{
		Search:     query.Get("q"),
		UnreadOnly: unread,
		Type:       query.Get("type"),
	})
	resp := listResponse{
		Items:  make([]notificationResponse, 0, len(view.Items)),
		Types:  view.Types,
		Total:  view.Total,
		Unread: view.Unread,
	}
	for _, row := range view.Items {
		resp.Items = append(resp.Items, toResponse(row))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"types": notify.VisibleTypes(s.store.Items()),
	})
}

func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	correlationID := getCorrelationID(r)
	if s.cfg.History == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "raw history is not configured", correlationID)
		return
	}
	limit := 0
	if value := strings.TrimSpace(r.URL.Query().Get("limit")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "limit must be a non-negative integer", correlationID)
			return
		}
		limit = parsed
	}
	recent := s.cfg.History.Recent()
	total := len(recent)
	if limit > 0 && limit < total {
		recent = recent[:limit]
	}
	if recent == nil {
		recent = []notify.RawEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": recent,
		"total": total,
	})
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	correlationID := getCorrelationID(r)
	id, ok := notificationID(w, r, correlationID)
	if !ok {
		return
	}
	item, ok := s.store.Open(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "notification not found", correlationID)
		return
	}
	writeJSON(w, http.StatusOK, s.describe(item))
}

func (s *Server) handleSetRead(w http.ResponseWriter, r *http.Request) {
	correlationID := getCorrelationID(r)
	id, ok := notificationID(w, r, correlationID)
	if !ok {
		return
	}
	var req struct {
		Read *bool `json:"read"`
	}
	if !s.decodeJSONBody(w, r, correlationID, &req) {
		return
	}
	if req.Read == nil {
		writeError(w, http.StatusBadRequest, "bad_request", "read is required", correlationID)
		return
	}
	item, ok := s.store.SetRead(id, *req.Read)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "notification not found", correlationID)
		return
	}
	writeJSON(w, http.StatusOK, s.describe(item))
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := notificationID(w, r, getCorrelationID(r))
	if !ok {
		return
	}
	s.store.Remove(id)
	w.WriteHeader(http.StatusNoContent)
}

// notificationID returns the decoded {id} segment. chi matches on the
// escaped path when one is present, so ids like "order/42" arrive still
// percent-encoded and are unescaped here exactly once.
func notificationID(w http.ResponseWriter, r *http.Request, correlationID string) (string, bool) {
	id := chi.URLParam(r, "id")
	if r.URL.RawPath == "" {
		return id, true
	}
	decoded, err := url.PathUnescape(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid notification id", correlationID)
		return "", false
	}
	return decoded, true
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.store.ClearAll()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) logf(format string, args ...any) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Printf(format, args...)
	}
}

func getCorrelationID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Correlation-Id")); id != "" {
		return id
	}
	return chimiddleware.GetReqID(r.Context())
}

func (s *Server) readRequestBody(w http.ResponseWriter, r *http.Request, correlationID string) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds configured limit", correlationID)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body", correlationID)
		return nil, false
	}
	return body, true
}

func (s *Server) decodeJSONBody(w http.ResponseWriter, r *http.Request, correlationID string, dst any) bool {
	body, ok := s.readRequestBody(w, r, correlationID)
	if !ok {
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body", correlationID)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message, correlationID string) {
	writeJSON(w, status, map[string]any{
		"code":          code,
		"message":       message,
		"correlationId": correlationID,
	})
}

func parseOptionalBool(raw string, fallback bool) (bool, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(trimmed)
	if err != nil {
		return false, err
	}
	return parsed, nil
}
