package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"swapledger/core"
	"swapledger/native/swap"
	"swapledger/observability/metrics"
)

const (
	jsonRPCVersion    = "2.0"
	maxRequestBytes   = 1 << 20 // 1 MiB
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
	requestIDHeader   = "X-Request-ID"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeNotFound       = -32004
	codeServerError    = -32000
	codeRateLimited    = -32020
)

// ServerConfig tunes the RPC server.
type ServerConfig struct {
	Pairs     []swap.Pair
	RateLimit RateLimit
	Logger    *slog.Logger
	Metrics   *metrics.RPCMetrics
	// StreamBuffer is the per-connection live event buffer of /ws/events.
	StreamBuffer int
}

// Server exposes a Node over JSON-RPC, a websocket event stream and the
// Prometheus scrape endpoint.
type Server struct {
	node    *core.Node
	pairs   []swap.Pair
	limiter *RateLimiter
	logger  *slog.Logger
	metrics *metrics.RPCMetrics

	streamBuffer int

	serverMu   sync.Mutex
	httpServer *http.Server
}

// NewServer wires a server for node.
func NewServer(node *core.Node, cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.RPC()
	}
	pairs := cfg.Pairs
	if pairs == nil {
		pairs = swap.DefaultPairs()
	}
	streamBuffer := cfg.StreamBuffer
	if streamBuffer <= 0 {
		streamBuffer = wsSubscriberCap
	}
	return &Server{
		node:         node,
		pairs:        pairs,
		limiter:      NewRateLimiter(cfg.RateLimit),
		logger:       logger,
		metrics:      m,
		streamBuffer: streamBuffer,
	}
}

// Handler returns the HTTP routes served by the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(lr chi.Router) {
		lr.Use(s.limiter.Middleware(s.metrics))
		lr.Post("/", s.handle)
		lr.Get("/ws/events", s.handleEventsWS)
	})
	return r
}

// Serve accepts connections on listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           otelhttp.NewHandler(s.Handler(), "swapd.rpc"),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.serverMu.Lock()
	s.httpServer = srv
	s.serverMu.Unlock()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(listener) }()
	s.logger.Info("rpc server listening", slog.String("addr", listener.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("rpc shutdown: %w", err)
		}
		return nil
	}
}

// Start listens on addr and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

type requestIDKey struct{}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeInvocationError maps an invocation failure onto HTTP and JSON-RPC codes.
func writeInvocationError(w http.ResponseWriter, id interface{}, err error) {
	if errors.Is(err, core.ErrReceiptNotFound) {
		writeError(w, http.StatusNotFound, id, codeNotFound, err.Error(), nil)
		return
	}
	reason := core.FailureReason(err)
	data := map[string]string{"reason": reason}
	switch reason {
	case core.ReasonUnauthorized:
		writeError(w, http.StatusUnauthorized, id, codeUnauthorized, err.Error(), data)
	case core.ReasonDivisionByZero, core.ReasonOverflow, core.ReasonInvalidArgs:
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), data)
	case core.ReasonCanceled:
		writeError(w, http.StatusServiceUnavailable, id, codeServerError, err.Error(), data)
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "internal error", data)
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	method := ""
	defer func() {
		s.metrics.Observe(method, sw.status, time.Since(start))
		s.logger.Debug("rpc request",
			slog.String("request_id", requestIDFrom(r.Context())),
			slog.String("method", method),
			slog.Int("status", sw.status),
			slog.Duration("duration", time.Since(start)))
	}()

	reader := http.MaxBytesReader(sw, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()
	sw.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(sw, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(sw, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(sw, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(sw, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(sw, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}
	method = req.Method

	switch req.Method {
	case "swap_execute":
		s.handleSwapExecute(sw, r, req)
	case "swap_simulate":
		s.handleSwapSimulate(sw, r, req)
	case "swap_getCount":
		s.handleSwapGetCount(sw, r, req)
	case "swap_getReceipt":
		s.handleSwapGetReceipt(sw, r, req)
	case "swap_listEvents":
		s.handleSwapListEvents(sw, r, req)
	case "swap_pairs":
		writeResult(sw, req.ID, s.pairs)
	case "swap_info":
		s.handleSwapInfo(sw, r, req)
	default:
		writeError(sw, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
	}
}
