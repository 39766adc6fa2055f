// Package server exposes the HTTP/JSON API on a single listening port
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"virtual_market/internal/core"
	"virtual_market/internal/news"
	"virtual_market/internal/query"
	"virtual_market/internal/trading"
	"virtual_market/pkg/apperrors"
	"virtual_market/pkg/telemetry"
)

// Options carries the server wiring
type Options struct {
	Port            int
	OrganizerSecret string
	InitialCash     decimal.Decimal
	StreamHandler   http.Handler // nil disables /ws
}

// Server is the HTTP edge. It is the single place where result codes are
// converted to wire status codes and bodies.
type Server struct {
	opts     Options
	store    core.IStore
	executor *trading.Executor
	queries  *query.Service
	rounds   core.IRoundController
	news     *news.Client
	hm       core.IHealthMonitor
	logger   core.ILogger
	srv      *http.Server
}

// New creates the API server
func New(
	opts Options,
	store core.IStore,
	executor *trading.Executor,
	queries *query.Service,
	rounds core.IRoundController,
	newsClient *news.Client,
	hm core.IHealthMonitor,
	logger core.ILogger,
) *Server {
	return &Server{
		opts:     opts,
		store:    store,
		executor: executor,
		queries:  queries,
		rounds:   rounds,
		news:     newsClient,
		hm:       hm,
		logger:   logger.WithField("component", "api_server"),
	}
}

// Handler builds the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /init_team", s.handleInitTeam)
	mux.HandleFunc("GET /portfolio/{team}", s.handlePortfolio)
	mux.HandleFunc("POST /trade", s.handleTrade)
	mux.HandleFunc("GET /stocks", s.handleStocks)
	mux.HandleFunc("GET /leaderboard", s.handleLeaderboard)
	mux.HandleFunc("GET /news", s.handleNews)
	mux.HandleFunc("GET /round", s.handleRoundStatus)
	mux.HandleFunc("POST /round/start", s.organizerOnly(s.handleRoundStart))
	mux.HandleFunc("POST /round/pause", s.organizerOnly(s.handleRoundPause))
	mux.HandleFunc("POST /round/resume", s.organizerOnly(s.handleRoundResume))
	mux.HandleFunc("POST /round/reset", s.organizerOnly(s.handleRoundReset))
	mux.HandleFunc("GET /ping", s.handlePing)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.opts.StreamHandler != nil {
		mux.Handle("GET /ws", s.opts.StreamHandler)
	}

	return mux
}

// Run starts the server and blocks until the context is cancelled
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.opts.Port),
		Handler: s.Handler(),
	}

	s.logger.Info("Starting API server", "addr", s.srv.Addr)

	errChan := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("Stopping API server")
		return s.srv.Shutdown(shutdownCtx)
	}
}

// ---- handlers ----

type initTeamRequest struct {
	Team string `json:"team"`
}

func (s *Server) handleInitTeam(w http.ResponseWriter, r *http.Request) {
	var req initTeamRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, apperrors.ErrEmptyTeam)
		return
	}
	team := strings.TrimSpace(req.Team)
	if team == "" {
		s.writeError(w, apperrors.ErrEmptyTeam)
		return
	}

	if err := s.store.CreatePortfolio(r.Context(), team, s.opts.InitialCash, time.Now()); err != nil {
		s.writeError(w, err)
		return
	}

	if m := telemetry.GetGlobalMetrics().TeamsRegistered; m != nil {
		m.Add(r.Context(), 1)
	}
	s.logger.Info("Team registered", "team", team)

	cash, _ := s.opts.InitialCash.Float64()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":   true,
		"cash": cash,
	})
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	view, err := s.queries.Portfolio(r.Context(), r.PathValue("team"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type tradeRequest struct {
	Team   string `json:"team"`
	Symbol string `json:"symbol"`
	Qty    int64  `json:"qty"`
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	res, err := s.executor.Execute(r.Context(), strings.TrimSpace(req.Team), req.Symbol, req.Qty)
	if err != nil {
		s.writeError(w, err)
		return
	}

	cash, _ := res.Cash.Round(2).Float64()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":       true,
		"cash":     cash,
		"holdings": res.Holdings,
	})
}

func (s *Server) handleStocks(w http.ResponseWriter, r *http.Request) {
	stocks, err := s.queries.Stocks(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if stocks == nil {
		stocks = []query.StockView{}
	}
	writeJSON(w, http.StatusOK, stocks)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := s.queries.Leaderboard(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if board == nil {
		board = []query.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, board)
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.news.Fetch(r.Context()))
}

func (s *Server) handleRoundStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, roundPayload(s.rounds.Snapshot(time.Now())))
}

func (s *Server) handleRoundStart(w http.ResponseWriter, r *http.Request) {
	snap := s.rounds.Start(time.Now())
	writeJSON(w, http.StatusOK, okRound(snap))
}

func (s *Server) handleRoundPause(w http.ResponseWriter, r *http.Request) {
	snap, err := s.rounds.Pause(time.Now())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okRound(snap))
}

func (s *Server) handleRoundResume(w http.ResponseWriter, r *http.Request) {
	snap, err := s.rounds.Resume(time.Now())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okRound(snap))
}

func (s *Server) handleRoundReset(w http.ResponseWriter, r *http.Request) {
	snap := s.rounds.Reset(time.Now())
	writeJSON(w, http.StatusOK, okRound(snap))
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "ok",
		"time":   time.Now(),
	}

	status := http.StatusOK
	if s.hm != nil {
		health["components"] = s.hm.GetStatus()
		if !s.hm.IsHealthy() {
			health["status"] = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, health)
}

// organizerOnly gates round-control calls behind the shared secret
func (s *Server) organizerOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-Organizer-Secret")
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.OrganizerSecret)) != 1 {
			s.writeError(w, apperrors.ErrUnauthorized)
			return
		}
		next(w, r)
	}
}

// ---- wire helpers ----

func roundPayload(snap core.RoundSnapshot) map[string]interface{} {
	payload := map[string]interface{}{
		"status": string(snap.Status),
	}
	switch snap.Status {
	case core.RoundRunning:
		payload["deadline"] = snap.Deadline.Unix()
		payload["remaining"] = int64(snap.Remaining.Seconds())
	case core.RoundPaused:
		payload["remaining"] = int64(snap.Remaining.Seconds())
	}
	return payload
}

func okRound(snap core.RoundSnapshot) map[string]interface{} {
	payload := roundPayload(snap)
	payload["ok"] = true
	return payload
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("malformed JSON: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError is the single mapping from result errors to wire responses.
// Unexpected errors are logged and surfaced as opaque internals.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("Internal error", "error", err)
		message = "internal error"
	}
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrZeroQuantity),
		errors.Is(err, apperrors.ErrEmptyTeam),
		errors.Is(err, apperrors.ErrInsufficientCash),
		errors.Is(err, apperrors.ErrInsufficientHoldings):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, apperrors.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperrors.ErrRoundClosed):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperrors.ErrUnknownSymbol),
		errors.Is(err, apperrors.ErrUnknownTeam):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrTeamExists),
		errors.Is(err, apperrors.ErrInvalidTransition):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperrors.ErrTimeout):
		return http.StatusGatewayTimeout, "timeout"
	case strings.Contains(err.Error(), "malformed JSON"):
		return http.StatusBadRequest, "bad_request"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
