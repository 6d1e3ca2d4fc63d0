// Package server is the thin HTTP layer of the sidecar. It delegates to the
// engine and keeps transport concerns out of the classification code.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/html"

	"crmscan/internal/classify"
	"crmscan/internal/engine"
	"crmscan/internal/platform/middleware"
	"crmscan/internal/scan"
)

// Engine is the subset of the engine the handlers need.
type Engine interface {
	ClassifyEmail(ctx context.Context, address string) (classify.Status, error)
	Scan(ctx context.Context, doc *goquery.Document) (bool, error)
	ClearCaches(ctx context.Context) error
	Flush(ctx context.Context) error
}

// Handler wires sidecar endpoints to the engine.
type Handler struct {
	engine  Engine
	watcher *engine.Watcher
	rescans <-chan struct{}
	logger  *slog.Logger
}

// New constructs a Handler. watcher and rescans may be nil when the embedder
// does not use the trigger stream.
func New(eng Engine, watcher *engine.Watcher, rescans <-chan struct{}, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{engine: eng, watcher: watcher, rescans: rescans, logger: logger}
}

// NewRouter wires all endpoints.
func NewRouter(h *Handler, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.WithRequestID)
	r.Use(middleware.RequestLogger(logger))

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", h.handleStatus)
		r.Post("/scan", h.handleScanHTML)
		r.Post("/scan/text", h.handleScanText)
		r.Post("/trigger", h.handleTrigger)
		r.Get("/rescan", h.handleRescanWait)
		r.Post("/cache/flush", h.handleCacheFlush)
		r.Delete("/cache", h.handleCacheClear)
	})
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus classifies a single address.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("email")
	if address == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing email parameter"})
		return
	}

	st, err := h.engine.ClassifyEmail(r.Context(), address)
	if err != nil {
		h.logger.WarnContext(r.Context(), "classification failed",
			"request_id", middleware.RequestID(r.Context()),
			"error", err,
		)
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"email":       address,
		"status":      string(st),
		"explanation": st.Explanation(),
	})
}

// handleScanHTML annotates an HTML document from the request body and
// returns it. A scan already in progress yields 409; the host retries on
// its next trigger.
func (h *Handler) handleScanHTML(w http.ResponseWriter, r *http.Request) {
	doc, err := goquery.NewDocumentFromReader(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed html"})
		return
	}

	scanned, err := h.engine.Scan(r.Context(), doc)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	if !scanned {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "scan already in progress or engine paused"})
		return
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc.Nodes[0]); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "render failed"})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleScanText runs the pure detector over a plain-text body.
func (h *Handler) handleScanText(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r.Body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	matches := scan.Find(buf.String())
	type matchJSON struct {
		Start int    `json:"start"`
		End   int    `json:"end"`
		Email string `json:"email"`
	}
	out := make([]matchJSON, 0, len(matches))
	for _, m := range matches {
		out = append(out, matchJSON{Start: m.Start, End: m.End, Email: m.Email})
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": out})
}

// handleTrigger feeds a host event into the rescan watcher.
func (h *Handler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if h.watcher == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "trigger stream not configured"})
		return
	}
	kind, ok := engine.ParseTriggerKind(r.URL.Query().Get("kind"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown trigger kind"})
		return
	}
	h.watcher.Notify(kind)
	w.WriteHeader(http.StatusAccepted)
}

// handleRescanWait long-polls until the watcher requests a rescan, so hosts
// can subscribe to debounced scan requests. 204 means "rescan now"; 408
// means the poll timed out and should be reissued.
func (h *Handler) handleRescanWait(w http.ResponseWriter, r *http.Request) {
	if h.rescans == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "trigger stream not configured"})
		return
	}
	select {
	case <-h.rescans:
		w.WriteHeader(http.StatusNoContent)
	case <-r.Context().Done():
		w.WriteHeader(http.StatusRequestTimeout)
	}
}

func (h *Handler) handleCacheFlush(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Flush(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ClearCaches(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
