package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DeafMist/devotion-feed/internal/config"
	"github.com/DeafMist/devotion-feed/internal/elasticsearch"
	"github.com/DeafMist/devotion-feed/internal/feed"
	"github.com/DeafMist/devotion-feed/internal/i18n"
	"github.com/DeafMist/devotion-feed/internal/listing"
	"github.com/DeafMist/devotion-feed/internal/models"
)

type archiveSearcher interface {
	SearchSessions(ctx context.Context, params elasticsearch.SearchParams) (*elasticsearch.SearchResult, error)
	Health(ctx context.Context) error
}

type server struct {
	log     *slog.Logger
	cfg     *config.API
	store   *feed.Store
	archive archiveSearcher // nil when archive search is disabled
	// reloadCtx outlives requests so a reload triggered over HTTP is not
	// canceled when the response is written.
	reloadCtx context.Context
}

type errorResponse struct {
	Error string `json:"error"`
}

type sessionsResponse struct {
	Status   feed.Status      `json:"status"`
	Source   feed.Source      `json:"source,omitempty"`
	LoadedAt time.Time        `json:"loaded_at,omitzero"`
	Language string           `json:"language"`
	Search   string           `json:"search,omitempty"`
	Total    int              `json:"total"`
	Items    []models.Session `json:"items"`
}

type stateResponse struct {
	feed.State
	Sessions int `json:"sessions"`
}

type uiStringsResponse struct {
	Language models.Language   `json:"language"`
	Strings  map[string]string `json:"strings"`
}

func newRouter(s *server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/sessions", s.handleSessions)
	r.Get("/state", s.handleState)
	r.With(httprate.LimitByIP(s.cfg.RefreshRateLimit, time.Minute)).Post("/refresh", s.handleRefresh)
	r.Get("/ui-strings", s.handleUIStrings)
	r.Get("/archive/search", s.handleArchiveSearch)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{
		"status": "ok",
		"feed":   string(s.store.Snapshot().Status),
	}

	if s.archive != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp["archive"] = "ok"
		if err := s.archive.Health(ctx); err != nil {
			s.log.Warn("archive health check failed", slog.Any("err", err))
			resp["archive"] = "unavailable"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleSessions(w http.ResponseWriter, r *http.Request) {
	rawLang := r.URL.Query().Get("lang")
	lang, ok := listing.ParseLanguage(rawLang)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "lang must be one of all, en, tl"})
		return
	}
	search := strings.TrimSpace(r.URL.Query().Get("q"))

	st := s.store.Snapshot()
	if st.Status == feed.StatusFailed {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: st.Error})
		return
	}

	items := listing.Apply(st.Sessions, listing.Filter{Language: lang, Search: search})

	language := listing.AllLanguages
	if lang != "" {
		language = string(lang)
	}

	writeJSON(w, http.StatusOK, sessionsResponse{
		Status:   st.Status,
		Source:   st.Source,
		LoadedAt: st.LoadedAt,
		Language: language,
		Search:   search,
		Total:    len(items),
		Items:    items,
	})
}

func (s *server) handleState(w http.ResponseWriter, _ *http.Request) {
	st := s.store.Snapshot()
	writeJSON(w, http.StatusOK, stateResponse{State: st, Sessions: len(st.Sessions)})
}

func (s *server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	s.store.Reload(s.reloadCtx)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": string(feed.StatusLoading)})
}

func (s *server) handleUIStrings(w http.ResponseWriter, r *http.Request) {
	lang, ok := models.ParseLanguage(r.URL.Query().Get("lang"))
	if !ok {
		lang = i18n.Match(r.Header.Get("Accept-Language"))
	}

	writeJSON(w, http.StatusOK, uiStringsResponse{Language: lang, Strings: i18n.Strings(lang)})
}

func (s *server) handleArchiveSearch(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "archive search is disabled"})
		return
	}

	lang, ok := listing.ParseLanguage(r.URL.Query().Get("lang"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "lang must be one of all, en, tl"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	params := elasticsearch.SearchParams{
		Query:    strings.TrimSpace(r.URL.Query().Get("q")),
		Language: lang,
		From:     clampInt(r.URL.Query().Get("from"), 0, 10_000),
		Size:     clampInt(r.URL.Query().Get("size"), s.cfg.DefaultPage, s.cfg.MaxPage),
	}

	result, err := s.archive.SearchSessions(ctx, params)
	if err != nil {
		s.log.Error("archive search", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
