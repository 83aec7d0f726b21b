package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"loanchain/core/events"
	"loanchain/core/types"
	"loanchain/native/bank"
	"loanchain/native/loan"
	nativecommon "loanchain/native/common"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	authTokenEnv    = "LOANCHAIN_RPC_TOKEN"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeNotFound       = -32040
	codeInvalidState   = -32041
	codeNotAllowlisted = -32042
	codeTransferFailed = -32043
	codeModulePaused   = -32044
)

// Server exposes the loan engine and bank ledger over JSON-RPC 2.0. A bearer
// token, when configured, gates every mutating method.
type Server struct {
	engine   *loan.Engine
	bank     *bank.Ledger
	recent   *events.MemoryEmitter
	log      *slog.Logger
	token    string
	resolver CallerResolver
}

// NewServer wires a JSON-RPC server around the engine and ledger. The auth
// token is read from LOANCHAIN_RPC_TOKEN; an empty token disables auth.
func NewServer(engine *loan.Engine, ledger *bank.Ledger, recent *events.MemoryEmitter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	token := strings.TrimSpace(os.Getenv(authTokenEnv))
	return &Server{
		engine:   engine,
		bank:     ledger,
		recent:   recent,
		log:      logger,
		token:    token,
		resolver: resolverForToken(token),
	}
}

// SetCallerResolver overrides the identity resolution step applied to every
// mutating request before the engine's authorization checks.
func (s *Server) SetCallerResolver(r CallerResolver) {
	if r == nil {
		r = PassthroughResolver{}
		if s.token != "" {
			r = resolverForToken(s.token)
		}
	}
	s.resolver = r
}

// Start serves JSON-RPC requests on addr until the listener fails.
func (s *Server) Start(addr string) error {
	s.log.Info("starting JSON-RPC server", slog.String("addr", addr))
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	return http.ListenAndServe(addr, mux)
}

// Handler returns the HTTP handler, exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	return mux
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

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "POST required", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "unable to read request body", nil)
		return
	}
	if len(body) > maxRequestBytes {
		writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest, "request body too large", nil)
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", nil)
		return
	}
	if mutatingMethods[req.Method] && !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "unauthorized", nil)
		return
	}
	handler, ok := s.methods()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}
	handler(w, r, &req)
}

var mutatingMethods = map[string]bool{
	"loan_propose":       true,
	"loan_import":        true,
	"loan_commit":        true,
	"loan_execute":       true,
	"loan_cancel":        true,
	"loan_pay":           true,
	"loan_cancelPending": true,
	"loan_delete":        true,
	"loan_allow":         true,
	"loan_disallow":      true,
}

func (s *Server) methods() map[string]func(http.ResponseWriter, *http.Request, *RPCRequest) {
	return map[string]func(http.ResponseWriter, *http.Request, *RPCRequest){
		"loan_propose":       s.handleLoanPropose,
		"loan_import":        s.handleLoanImport,
		"loan_commit":        s.handleLoanCommit,
		"loan_execute":       s.handleLoanExecute,
		"loan_cancel":        s.handleLoanCancel,
		"loan_pay":           s.handleLoanPay,
		"loan_cancelPending": s.handleLoanCancelPending,
		"loan_delete":        s.handleLoanDelete,
		"loan_get":           s.handleLoanGet,
		"loan_list":          s.handleLoanList,
		"loan_allow":         s.handleLoanAllow,
		"loan_disallow":      s.handleLoanDisallow,
		"loan_allowlist":     s.handleLoanAllowlist,
		"loan_events":        s.handleLoanEvents,
		"bank_balance":       s.handleBankBalance,
	}
}

func (s *Server) authorized(r *http.Request) bool {
	if s.token == "" {
		return true
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	presented := strings.TrimSpace(header[len(prefix):])
	return subtle.ConstantTimeCompare([]byte(presented), []byte(s.token)) == 1
}

// writeEngineError maps loan engine failures onto typed RPC error codes so
// clients can branch without parsing messages.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, loan.ErrLoanNotFound):
		writeError(w, http.StatusNotFound, id, codeNotFound, err.Error(), nil)
	case errors.Is(err, loan.ErrUnauthorized):
		writeError(w, http.StatusForbidden, id, codeUnauthorized, err.Error(), nil)
	case errors.Is(err, loan.ErrInvalidState):
		writeError(w, http.StatusConflict, id, codeInvalidState, err.Error(), nil)
	case errors.Is(err, loan.ErrNotAllowlisted):
		writeError(w, http.StatusForbidden, id, codeNotAllowlisted, err.Error(), nil)
	case errors.Is(err, loan.ErrTransferFailed), errors.Is(err, bank.ErrInsufficientFunds):
		writeError(w, http.StatusConflict, id, codeTransferFailed, err.Error(), nil)
	case errors.Is(err, nativecommon.ErrModulePaused):
		writeError(w, http.StatusServiceUnavailable, id, codeModulePaused, err.Error(), nil)
	case errors.Is(err, loan.ErrInvalidAmount),
		errors.Is(err, loan.ErrInvalidAsset),
		errors.Is(err, loan.ErrInvalidRecipient),
		errors.Is(err, loan.ErrRepaidExceedsPrincipal),
		errors.Is(err, bank.ErrInvalidAmount),
		errors.Is(err, bank.ErrInvalidAsset):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, err.Error(), nil)
	}
}

type payloadEvent interface {
	Event() *types.Event
}

func (s *Server) handleLoanEvents(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if s.recent == nil {
		writeResult(w, req.ID, []*types.Event{})
		return
	}
	captured := s.recent.Events()
	out := make([]*types.Event, 0, len(captured))
	for _, evt := range captured {
		if payload, ok := evt.(payloadEvent); ok {
			out = append(out, payload.Event())
		}
	}
	writeResult(w, req.ID, out)
}
