package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"fanfund/native/bank"
	"fanfund/native/crowdfund"
	"fanfund/native/token"
	"fanfund/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	rateLimitWindow = time.Minute
	maxTxPerWindow  = 60
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
)

// AuthTokenEnv names the environment variable carrying the shared bearer
// token required on mutating methods.
const AuthTokenEnv = "FANFUND_RPC_TOKEN"

type rateLimiter struct {
	count       int
	windowStart time.Time
}

// Server exposes the crowdfund engine over JSON-RPC 2.0.
type Server struct {
	engine *crowdfund.Engine
	bank   *bank.Bank
	token  *token.Token

	mu           sync.Mutex
	rateLimiters map[string]*rateLimiter
	authToken    string
	metrics      *observability.CrowdfundMetrics
}

// NewServer wires the RPC surface over the engine and its collaborators. The
// auth token is read from FANFUND_RPC_TOKEN; when unset, mutating methods are
// rejected.
func NewServer(engine *crowdfund.Engine, b *bank.Bank, tok *token.Token) *Server {
	return &Server{
		engine:       engine,
		bank:         b,
		token:        tok,
		rateLimiters: make(map[string]*rateLimiter),
		authToken:    strings.TrimSpace(os.Getenv(AuthTokenEnv)),
		metrics:      observability.Crowdfund(),
	}
}

// Start serves the JSON-RPC endpoint on the supplied address.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	return http.ListenAndServe(addr, mux)
}

// Handler returns the RPC endpoint as an http.Handler, used by tests and by
// callers embedding the server in their own mux.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handle)
}

// RPCRequest is a JSON-RPC 2.0 request envelope.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

// RPCResponse is a JSON-RPC 2.0 response envelope.
type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError carries a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func (s *Server) authorized(r *http.Request) bool {
	if s.authToken == "" {
		return false
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return false
	}
	supplied := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(s.authToken)) == 1
}

func (s *Server) allowSource(remote string) bool {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.rateLimiters[host]
	if !ok || now.Sub(limiter.windowStart) >= rateLimitWindow {
		s.rateLimiters[host] = &rateLimiter{count: 1, windowStart: now}
		return true
	}
	if limiter.count >= maxTxPerWindow {
		return false
	}
	limiter.count++
	return true
}

func isMutating(method string) bool {
	switch method {
	case "crowdfund_create", "crowdfund_contribute", "crowdfund_finalize",
		"crowdfund_withdraw", "crowdfund_refund", "bank_credit":
		return true
	default:
		return false
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "POST required", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "failed to read request body", nil)
		return
	}
	if len(body) > maxRequestBytes {
		writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest, "request body too large", nil)
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON-RPC request", nil)
		return
	}
	if req.JSONRPC != jsonRPCVersion || strings.TrimSpace(req.Method) == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid JSON-RPC request", nil)
		return
	}
	if isMutating(req.Method) {
		if !s.authorized(r) {
			writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "unauthorized", nil)
			return
		}
		if !s.allowSource(r.RemoteAddr) {
			writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", nil)
			return
		}
	}

	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveLatency(req.Method, time.Since(start))
		}
	}()

	switch req.Method {
	case "crowdfund_create":
		s.handleCreate(w, &req)
	case "crowdfund_contribute":
		s.handleContribute(w, &req)
	case "crowdfund_finalize":
		s.handleFinalize(w, &req)
	case "crowdfund_withdraw":
		s.handleWithdraw(w, &req)
	case "crowdfund_refund":
		s.handleRefund(w, &req)
	case "crowdfund_getCampaign":
		s.handleGetCampaign(w, &req)
	case "crowdfund_listCampaigns":
		s.handleListCampaigns(w, &req)
	case "crowdfund_getContribution":
		s.handleGetContribution(w, &req)
	case "token_balanceOf":
		s.handleTokenBalance(w, &req)
	case "bank_balanceOf":
		s.handleBankBalance(w, &req)
	case "bank_credit":
		s.handleBankCredit(w, &req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
	}
}

// errorCode maps engine errors onto JSON-RPC codes: validation and lifecycle
// violations are invalid params; everything else is a server error. Transfer
// failures stay distinguishable through the error message so operators can
// detect settled-but-not-paid outcomes.
func errorCode(err error) (int, int) {
	switch {
	case errors.Is(err, crowdfund.ErrInvalidParams),
		errors.Is(err, crowdfund.ErrInvalidAmount),
		errors.Is(err, crowdfund.ErrCampaignNotOpen),
		errors.Is(err, crowdfund.ErrCampaignStillOpen),
		errors.Is(err, crowdfund.ErrNotSucceeded),
		errors.Is(err, crowdfund.ErrNotFailed),
		errors.Is(err, crowdfund.ErrAlreadyWithdrawn),
		errors.Is(err, crowdfund.ErrNothingToRefund),
		errors.Is(err, crowdfund.ErrArithmeticOverflow):
		return http.StatusBadRequest, codeInvalidParams
	case errors.Is(err, crowdfund.ErrNotFound):
		return http.StatusNotFound, codeInvalidParams
	default:
		return http.StatusInternalServerError, codeServerError
	}
}
