package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"magna/core/state"
	"magna/crypto"
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
)

// Server exposes the trading, referral, pool, and token surfaces as JSON-RPC
// methods over HTTP.
type Server struct {
	state *state.Manager
}

func NewServer(manager *state.Manager) *Server {
	return &Server{state: manager}
}

func (s *Server) Start(addr string) error {
	slog.Info("starting JSON-RPC server", "addr", addr)
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	return http.ListenAndServe(addr, mux)
}

type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
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

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: &RPCError{Code: code, Message: message}}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() { _ = reader.Close() }()

	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "POST required")
		return
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "failed to read request body")
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload")
		return
	}

	result, err := s.dispatch(&req)
	if err != nil {
		var rpcErr *dispatchError
		if errors.As(err, &rpcErr) {
			writeError(w, rpcErr.status, req.ID, rpcErr.code, rpcErr.message)
			return
		}
		// Engine precondition failures surface as named conditions with a
		// server-error code; the HTTP layer stays 200 like any JSON-RPC fault.
		writeError(w, http.StatusOK, req.ID, codeServerError, err.Error())
		return
	}
	writeResult(w, req.ID, result)
}

type dispatchError struct {
	status  int
	code    int
	message string
}

func (e *dispatchError) Error() string { return e.message }

func errMethodNotFound(method string) error {
	return &dispatchError{status: http.StatusNotFound, code: codeMethodNotFound, message: fmt.Sprintf("method %q not found", method)}
}

func errInvalidParams(format string, args ...interface{}) error {
	return &dispatchError{status: http.StatusBadRequest, code: codeInvalidParams, message: fmt.Sprintf(format, args...)}
}

func (s *Server) dispatch(req *RPCRequest) (interface{}, error) {
	switch req.Method {
	case "referral_subscribe":
		return s.handleSubscribe(req)
	case "referral_subscribeWithCode":
		return s.handleSubscribeWithCode(req)
	case "referral_userInfo":
		return s.handleUserInfo(req)
	case "referral_subscriptionIsValid":
		return s.handleSubscriptionIsValid(req)
	case "referral_getRecruitors":
		return s.handleGetRecruitors(req)
	case "referral_usersByReferral":
		return s.handleUsersByReferral(req)
	case "referral_changeSubscription":
		return s.handleChangeSubscription(req)
	case "trading_buy":
		return s.handleBuy(req)
	case "trading_sell":
		return s.handleSell(req)
	case "trading_autoWithdraw":
		return s.handleAutoWithdraw(req)
	case "trading_magnaBalance":
		return s.handleMagnaBalance(req)
	case "trading_depositHistoryLength":
		return s.handleDepositHistoryLength(req)
	case "trading_getPurchaseLimit":
		return s.handleGetPurchaseLimit(req)
	case "trading_withdrawRewards":
		return s.handleWithdrawRewards(req)
	case "trading_withdrawAll":
		return s.handleWithdrawAll(req)
	case "trading_setPolicy":
		return s.handleSetPolicy(req)
	case "pool_reserves":
		return s.handleReserves(req)
	case "pool_currentPrice":
		return s.handleCurrentPrice(req)
	case "pool_setTrader":
		return s.handleSetTrader(req)
	case "token_balanceOf":
		return s.handleTokenBalanceOf(req)
	case "token_transfer":
		return s.handleTokenTransfer(req)
	case "token_approve":
		return s.handleTokenApprove(req)
	case "token_addWhitelist":
		return s.handleAddWhitelist(req)
	case "token_removeWhitelist":
		return s.handleRemoveWhitelist(req)
	default:
		return nil, errMethodNotFound(req.Method)
	}
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) == 0 {
		return errInvalidParams("missing params")
	}
	if err := json.Unmarshal(req.Params, out); err != nil {
		return errInvalidParams("malformed params: %v", err)
	}
	return nil
}

func parseAddr(field, value string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(value)
	if err != nil {
		return [20]byte{}, errInvalidParams("%s: %v", field, err)
	}
	return addr.Raw(), nil
}

func renderAddr(raw [20]byte) string {
	return crypto.NewAddress(crypto.MagnaPrefix, raw[:]).String()
}
