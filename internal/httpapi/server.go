// Package httpapi serves health, metrics, the dictionary API and the
// Telegram webhook.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	log "log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ulpan/internal/dictionary"
	"ulpan/pkg/telegram"
)

const (
	WebhookPath  = "/telegram/webhook"
	secretHeader = "X-Telegram-Bot-Api-Secret-Token"
	maxBody      = 1 << 20
)

type Analyzer interface {
	AnalyzeText(ctx context.Context, text string) ([]dictionary.WordCheck, error)
	AnalyzeWord(ctx context.Context, word string) (dictionary.WordCard, error)
}

type Config struct {
	Analyzer Analyzer
	Metrics  http.Handler
	// Webhook receives updates posted by Telegram. Nil disables the route.
	Webhook       func(ctx context.Context, u telegram.Update)
	WebhookSecret string
	// Health adds fields to the /healthz body.
	Health func() map[string]any
}

type Server struct {
	cfg Config
}

func New(cfg Config) *Server {
	return &Server{cfg: cfg}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.cfg.Metrics)
	}
	if s.cfg.Analyzer != nil {
		r.HandleFunc("/api/analyze", s.handleAnalyze)
	}
	if s.cfg.Webhook != nil {
		r.Post(WebhookPath, s.handleWebhook)
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.cfg.Health != nil {
		for k, v := range s.cfg.Health() {
			body[k] = v
		}
	}
	respondJSON(w, http.StatusOK, body)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			Text string `json:"text"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		analysis, err := s.cfg.Analyzer.AnalyzeText(r.Context(), req.Text)
		if err != nil {
			s.analyzeFailed(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"analysis": analysis})
	case http.MethodGet:
		card, err := s.cfg.Analyzer.AnalyzeWord(r.Context(), r.URL.Query().Get("word"))
		if err != nil {
			s.analyzeFailed(w, err)
			return
		}
		respondJSON(w, http.StatusOK, card)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "Method "+r.Method+" Not Allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) analyzeFailed(w http.ResponseWriter, err error) {
	if errors.Is(err, dictionary.ErrEmptyInput) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	log.Warn("Dictionary analysis failed", "err", err)
	respondError(w, http.StatusInternalServerError, err.Error())
}

// handleWebhook acknowledges as soon as the update is decoded. Processing
// continues after the response, detached from the request context.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.cfg.WebhookSecret != "" {
		got := r.Header.Get(secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.WebhookSecret)) != 1 {
			respondError(w, http.StatusUnauthorized, "bad secret token")
			return
		}
	}
	var u telegram.Update
	if err := decodeJSON(w, r, &u); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.cfg.Webhook(context.WithoutCancel(r.Context()), u)
	w.WriteHeader(http.StatusOK)
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
