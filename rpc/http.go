package rpc

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flowvault/native/scenario"
	"flowvault/observability/metrics"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000

	codeScenarioInvalid   = -32031
	codeScenarioNotFound  = -32032
	codeScenarioForbidden = -32033
	codeScenarioPaused    = -32034
	codeScenarioExecution = -32035
)

// Server exposes the engine over JSON-RPC 2.0. Mutating methods are
// serialised behind a mutex so concurrent HTTP callers queue up instead of
// tripping the engine's re-entrancy guard, which stays reserved for
// collaborator callbacks.
type Server struct {
	engine  *scenario.Engine
	bank    scenario.Transferor
	logger  *slog.Logger
	metrics *metrics.ScenarioMetrics

	mu   sync.Mutex
	http *http.Server
}

// NewServer creates an RPC server around the engine and its bank boundary.
func NewServer(engine *scenario.Engine, bank scenario.Transferor, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: engine, bank: bank, logger: logger, metrics: metrics.Scenario()}
}

// Router assembles the HTTP routes: the JSON-RPC endpoint plus health and
// metrics probes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/rpc", s.handleRPC)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// ListenAndServe starts the server on addr and blocks until Shutdown or a
// listener failure.
func (s *Server) ListenAndServe(addr string) error {
	s.mu.Lock()
	s.http = &http.Server{Addr: addr, Handler: s.Router()}
	srv := s.http
	s.mu.Unlock()
	s.logger.Info("rpc listening", "addr", addr)
	return srv.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
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

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "read_error", err.Error())
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid_request", "unsupported jsonrpc version")
		return
	}
	switch req.Method {
	case "scenario_add":
		s.handleScenarioAdd(w, &req)
	case "scenario_remove":
		s.handleScenarioRemove(w, &req)
	case "scenario_execute":
		s.handleScenarioExecute(w, &req)
	case "scenario_get":
		s.handleScenarioGet(w, &req)
	case "scenario_listByOwner":
		s.handleScenarioListByOwner(w, &req)
	case "scenario_idsByOwner":
		s.handleScenarioIDsByOwner(w, &req)
	case "scenario_counter":
		s.handleScenarioCounter(w, &req)
	case "scenario_setPaused":
		s.handleScenarioSetPaused(w, &req)
	case "scenario_getPaused":
		s.handleScenarioGetPaused(w, &req)
	case "scenario_updateRegistry":
		s.handleScenarioUpdateRegistry(w, &req)
	case "scenario_checkRegistry":
		s.handleScenarioCheckRegistry(w, &req)
	case "bank_balance":
		s.handleBankBalance(w, &req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method_not_found", req.Method)
	}
}
