package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"alphawatch/internal/model"
	"alphawatch/internal/schedule"
	"alphawatch/internal/service"
	"alphawatch/internal/stability"
)

// Options wire the dashboard API server. Monitor may be nil when the
// stability subsystem is disabled.
type Options struct {
	Addr      string
	Alpha     *service.Service
	Schedules *schedule.Service
	Monitor   *stability.Monitor
	Logger    zerolog.Logger
}

// Server exposes the aggregated token listing, schedules, and stability
// snapshots over a small JSON API.
type Server struct {
	addr      string
	alpha     *service.Service
	schedules *schedule.Service
	monitor   *stability.Monitor
	logger    zerolog.Logger
	router    *mux.Router
}

// envelope is the uniform response shape: a success flag and the serving
// source instead of bare errors, mirroring the service layer contract.
type envelope struct {
	Success bool   `json:"success"`
	Source  string `json:"source,omitempty"`
	Data    any    `json:"data,omitempty"`
	Total   int    `json:"total,omitempty"`
	Error   string `json:"error,omitempty"`
}

// New constructs the server and its route table.
func New(opts Options) *Server {
	s := &Server{
		addr:      opts.Addr,
		alpha:     opts.Alpha,
		schedules: opts.Schedules,
		monitor:   opts.Monitor,
		logger:    opts.Logger.With().Str("component", "api_server").Logger(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/tokens", s.handleTokens).Methods(http.MethodGet)
	r.HandleFunc("/api/tokens/filter", s.handleTokensFilter).Methods(http.MethodGet)
	r.HandleFunc("/api/airdrops/active", s.handleActiveAirdrops).Methods(http.MethodGet)
	r.HandleFunc("/api/tge/upcoming", s.handleUpcomingTGE).Methods(http.MethodGet)
	r.HandleFunc("/api/schedules/today", s.handleSchedulesToday).Methods(http.MethodGet)
	r.HandleFunc("/api/schedules/upcoming", s.handleSchedulesUpcoming).Methods(http.MethodGet)
	r.HandleFunc("/api/stability", s.handleStability).Methods(http.MethodGet)
	r.HandleFunc("/api/stability/{symbol}", s.handleStabilitySymbol).Methods(http.MethodGet)
	r.HandleFunc("/api/cache/stats", s.handleCacheStats).Methods(http.MethodGet)
	s.router = r

	return s
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until the context is cancelled, then drains with a short
// shutdown grace period.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("api server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeTokenResult(w http.ResponseWriter, result service.TokenResult) {
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	s.writeJSON(w, status, envelope{
		Success: result.Success,
		Source:  result.Source,
		Data:    result.Tokens,
		Total:   result.Total,
		Error:   result.Error,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]string{"status": "ok"}})
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"

	if status := r.URL.Query().Get("status"); status != "" {
		result := s.alpha.GetTokensByStatus(r.Context(), model.TokenStatus(strings.ToUpper(status)))
		s.writeTokenResult(w, result)
		return
	}
	s.writeTokenResult(w, s.alpha.GetTokens(r.Context(), force))
}

func (s *Server) handleTokensFilter(w http.ResponseWriter, r *http.Request) {
	opts, err := parseFilterOptions(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: err.Error()})
		return
	}
	s.writeTokenResult(w, s.alpha.GetFilteredTokens(r.Context(), opts))
}

func (s *Server) handleActiveAirdrops(w http.ResponseWriter, r *http.Request) {
	s.writeTokenResult(w, s.alpha.GetActiveAirdrops(r.Context()))
}

func (s *Server) handleUpcomingTGE(w http.ResponseWriter, r *http.Request) {
	s.writeTokenResult(w, s.alpha.GetUpcomingTGE(r.Context()))
}

func (s *Server) handleSchedulesToday(w http.ResponseWriter, r *http.Request) {
	if s.schedules == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, envelope{Success: false, Error: "schedule service disabled"})
		return
	}
	records, err := s.schedules.TodaySchedules(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{Success: true, Data: records, Total: len(records)})
}

func (s *Server) handleSchedulesUpcoming(w http.ResponseWriter, r *http.Request) {
	if s.schedules == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, envelope{Success: false, Error: "schedule service disabled"})
		return
	}
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	records, err := s.schedules.UpcomingSchedules(r.Context(), days)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{Success: true, Data: records, Total: len(records)})
}

func (s *Server) handleStability(w http.ResponseWriter, r *http.Request) {
	if s.monitor == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, envelope{Success: false, Error: "stability monitor disabled"})
		return
	}
	snapshots := s.monitor.Snapshots()
	s.writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data: map[string]any{
			"connected": s.monitor.Connected(),
			"symbols":   s.monitor.Symbols(),
			"snapshots": snapshots,
		},
		Total: len(snapshots),
	})
}

func (s *Server) handleStabilitySymbol(w http.ResponseWriter, r *http.Request) {
	if s.monitor == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, envelope{Success: false, Error: "stability monitor disabled"})
		return
	}
	symbol := mux.Vars(r)["symbol"]
	assessment, ok := s.monitor.Snapshot(symbol)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, envelope{Success: false, Error: "symbol not monitored"})
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{Success: true, Data: assessment})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, envelope{Success: true, Data: s.alpha.CacheStats()})
}

func parseFilterOptions(r *http.Request) (service.FilterOptions, error) {
	q := r.URL.Query()
	opts := service.FilterOptions{
		Search:   q.Get("search"),
		SortBy:   service.SortKey(q.Get("sortBy")),
		SortDesc: q.Get("desc") == "true",
	}

	for _, status := range splitParam(q.Get("status")) {
		opts.Statuses = append(opts.Statuses, model.TokenStatus(strings.ToUpper(status)))
	}
	for _, typ := range splitParam(q.Get("type")) {
		opts.Types = append(opts.Types, model.TokenType(strings.ToUpper(typ)))
	}
	opts.Chains = splitParam(q.Get("chain"))

	if raw := q.Get("minScore"); raw != "" {
		value, err := decimal.NewFromString(raw)
		if err != nil {
			return opts, errors.New("minScore must be numeric")
		}
		opts.MinScore = &value
	}
	if raw := q.Get("maxScore"); raw != "" {
		value, err := decimal.NewFromString(raw)
		if err != nil {
			return opts, errors.New("maxScore must be numeric")
		}
		opts.MaxScore = &value
	}
	if raw := q.Get("multiplier"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return opts, errors.New("multiplier must be an integer")
		}
		opts.Multiplier = &value
	}
	if raw := q.Get("airdrop"); raw != "" {
		value := raw == "true"
		opts.OnlineAirdrop = &value
	}
	if raw := q.Get("tge"); raw != "" {
		value := raw == "true"
		opts.OnlineTGE = &value
	}

	opts.Offset, _ = strconv.Atoi(q.Get("offset"))
	opts.Limit, _ = strconv.Atoi(q.Get("limit"))
	return opts, nil
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
