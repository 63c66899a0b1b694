// Package rpc exposes the backend's method dispatch over HTTP. Single
// calls go through POST /v1/rpc as JSON-RPC-shaped envelopes; POST
// /v1/rpc/batch takes an array of envelopes and answers them in order,
// executed on a bounded worker pool.
package rpc

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mondo-io/mondo/internal/backend"
	"github.com/mondo-io/mondo/internal/engine/value"
	"github.com/mondo-io/mondo/internal/metrics"
	"github.com/mondo-io/mondo/internal/version"
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
}

// Server handles the RPC endpoints.
type Server struct {
	backend      *backend.Backend
	logger       *zap.Logger
	pool         *ants.Pool
	maxBatchSize int
}

// Options configures a Server.
type Options struct {
	BatchWorkers int
	MaxBatchSize int
}

// NewServer creates an RPC server over the backend. The worker pool serves
// batch requests; single calls run on the request goroutine.
func NewServer(b *backend.Backend, logger *zap.Logger, opts Options) (*Server, error) {
	if opts.BatchWorkers <= 0 {
		opts.BatchWorkers = 16
	}
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = 100
	}
	pool, err := ants.NewPool(opts.BatchWorkers)
	if err != nil {
		return nil, err
	}
	return &Server{
		backend:      b,
		logger:       logger,
		pool:         pool,
		maxBatchSize: opts.MaxBatchSize,
	}, nil
}

// Close releases the batch worker pool.
func (s *Server) Close() {
	s.pool.Release()
}

// Register mounts the RPC routes on the router.
func (s *Server) Register(r chi.Router) {
	r.Post("/v1/rpc", s.handleCall)
	r.Post("/v1/rpc/batch", s.handleBatch)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: backend.CodeBadValue, Message: "invalid request body: " + err.Error()},
		})
		return
	}
	writeJSON(w, http.StatusOK, s.execute(r, &req))
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeJSON(w, http.StatusBadRequest, rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: backend.CodeBadValue, Message: "invalid batch body: " + err.Error()},
		})
		return
	}
	if len(reqs) > s.maxBatchSize {
		writeJSON(w, http.StatusBadRequest, rpcResponse{
			JSONRPC: "2.0",
			Error: &rpcError{
				Code:    backend.CodeBadValue,
				Message: "batch size " + strconv.Itoa(len(reqs)) + " exceeds limit " + strconv.Itoa(s.maxBatchSize),
			},
		})
		return
	}
	metrics.RPCBatchSize.Observe(float64(len(reqs)))

	responses := make([]rpcResponse, len(reqs))
	var wg sync.WaitGroup
	for i := range reqs {
		i := i
		wg.Add(1)
		submit := func() {
			defer wg.Done()
			responses[i] = s.execute(r, &reqs[i])
		}
		if err := s.pool.Submit(submit); err != nil {
			// Pool released mid-shutdown; finish on the request goroutine.
			s.logger.Warn("batch pool submit failed", zap.Error(err))
			submit()
		}
	}
	wg.Wait()
	writeJSON(w, http.StatusOK, responses)
}

// execute runs one envelope through the backend and shapes the response.
func (s *Server) execute(r *http.Request, req *rpcRequest) rpcResponse {
	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}

	var params []value.Value
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			resp.Error = &rpcError{Code: backend.CodeBadValue, Message: "invalid params: " + err.Error()}
			metrics.RPCCallsTotal.WithLabelValues(req.Method, "error").Inc()
			return resp
		}
	}

	start := time.Now()
	result, err := s.backend.Invoke(r.Context(), req.Method, params)
	metrics.RPCCallDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	if err != nil {
		be := backend.AsError(err)
		resp.Error = &rpcError{Code: be.Code, Message: be.Message}
		metrics.RPCCallsTotal.WithLabelValues(req.Method, "error").Inc()
		return resp
	}
	resp.Result = result
	metrics.RPCCallsTotal.WithLabelValues(req.Method, "ok").Inc()
	return resp
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
