package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"swapledger/crypto"
	"swapledger/services/indexer/storage"
)

// Store exposes the read side of indexer storage.
type Store interface {
	History(ctx context.Context, identity string, limit int) ([]storage.SwapRecord, error)
	Summarize(ctx context.Context, identity string) (storage.Summary, error)
	LastSeq(ctx context.Context) (uint64, error)
}

// Server answers swap history queries.
type Server struct {
	store  Store
	limit  int
	logger *slog.Logger
}

// IdentityResponse is the body of GET /swaps/{identity}.
type IdentityResponse struct {
	Identity string               `json:"identity"`
	Count    uint64               `json:"count"`
	TotalOut string               `json:"totalOut"`
	Swaps    []storage.SwapRecord `json:"swaps"`
}

type healthResponse struct {
	Status  string `json:"status"`
	LastSeq uint64 `json:"lastSeq"`
}

// New builds a server. limit caps the history returned per request.
func New(store Store, limit int, logger *slog.Logger) *Server {
	if limit <= 0 {
		limit = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: store, limit: limit, logger: logger}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/swaps/{identity}", s.handleIdentity)
	return r
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(s.Handler(), "swap-indexer"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("indexer api listening", slog.String("addr", addr))
		errCh <- httpSrv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	last, err := s.store.LastSeq(r.Context())
	if err != nil {
		s.logger.Error("health check failed", slog.Any("error", err))
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", LastSeq: last})
}

func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(chi.URLParam(r, "identity"))
	identity, err := crypto.DecodeAddress(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid identity")
		return
	}
	limit := s.limit
	if q := strings.TrimSpace(r.URL.Query().Get("limit")); q != "" {
		parsed, err := strconv.Atoi(q)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}
	key := identity.String()
	summary, err := s.store.Summarize(r.Context(), key)
	if err != nil {
		s.logger.Error("summarize swaps", slog.String("identity", key), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	history, err := s.store.History(r.Context(), key, limit)
	if err != nil {
		s.logger.Error("load swap history", slog.String("identity", key), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, IdentityResponse{
		Identity: key,
		Count:    summary.Count,
		TotalOut: summary.TotalOut.String(),
		Swaps:    history,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
