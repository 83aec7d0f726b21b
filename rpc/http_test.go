package rpc

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"loanchain/core/events"
	"loanchain/core/state"
	"loanchain/native/bank"
	"loanchain/native/loan"
	"loanchain/storage"
)

const (
	testLender   = "0x0101010101010101010101010101010101010101"
	testBorrower = "0x0202020202020202020202020202020202020202"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	t.Setenv(authTokenEnv, "")

	manager := state.NewManager(storage.NewMemDB())
	recent := events.NewMemoryEmitter(128)

	ledger := bank.NewLedger()
	ledger.SetState(manager)
	ledger.SetEmitter(recent)

	engine := loan.NewEngine()
	engine.SetState(manager)
	engine.SetTransferer(ledger)
	engine.SetEmitter(recent)

	lender, err := parseAddress(testLender)
	if err != nil {
		t.Fatalf("parse lender: %v", err)
	}
	if err := ledger.Mint(lender, "TOK", big.NewInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	borrower, err := parseAddress(testBorrower)
	if err != nil {
		t.Fatalf("parse borrower: %v", err)
	}
	if err := ledger.Mint(borrower, "TOK", big.NewInt(50)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	return NewServer(engine, ledger, recent, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
}

func rpcCall(t *testing.T, handler http.Handler, token, method string, params interface{}) *RPCResponse {
	t.Helper()
	encoded, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"id":      1,
		"method":  method,
		"params":  []json.RawMessage{encoded},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	resp := new(RPCResponse)
	if err := json.NewDecoder(rec.Body).Decode(resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func mustResult(t *testing.T, resp *RPCResponse, out interface{}) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected rpc error: %+v", resp.Error)
	}
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("re-marshal result: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
}

func TestLoanLifecycleOverRPC(t *testing.T) {
	server := newTestServer(t)
	handler := server.Handler()

	resp := rpcCall(t, handler, "", "loan_allow", loanAllowParams{From: testBorrower, Proposer: testLender})
	var ack ackResult
	mustResult(t, resp, &ack)
	if !ack.OK {
		t.Fatalf("allow not acknowledged")
	}

	resp = rpcCall(t, handler, "", "loan_propose", loanProposeParams{
		From: testLender, Borrower: testBorrower, Asset: "tok", Amount: "100",
	})
	var proposed loanProposeResult
	mustResult(t, resp, &proposed)
	if proposed.ID != 1 {
		t.Fatalf("expected loan id 1, got %d", proposed.ID)
	}

	resp = rpcCall(t, handler, "", "loan_commit", loanIDParams{From: testBorrower, ID: proposed.ID})
	mustResult(t, resp, &ack)
	resp = rpcCall(t, handler, "", "loan_execute", loanIDParams{From: testLender, ID: proposed.ID})
	mustResult(t, resp, &ack)
	resp = rpcCall(t, handler, "", "loan_pay", loanPayParams{From: testBorrower, ID: proposed.ID, Amount: "100"})
	mustResult(t, resp, &ack)

	resp = rpcCall(t, handler, "", "loan_get", loanIDParams{ID: proposed.ID})
	var record loanResult
	mustResult(t, resp, &record)
	if !record.Completed || record.Repayable {
		t.Fatalf("expected completed loan, got %+v", record)
	}
	if record.Asset != "TOK" || record.AmountRepaid != "100" {
		t.Fatalf("unexpected record view: %+v", record)
	}

	resp = rpcCall(t, handler, "", "bank_balance", bankBalanceParams{Address: testBorrower, Asset: "TOK"})
	var balance map[string]string
	mustResult(t, resp, &balance)
	// 50 minted + 100 principal - 100 repaid.
	if balance["balance"] != "50" {
		t.Fatalf("expected borrower balance 50, got %q", balance["balance"])
	}

	resp = rpcCall(t, handler, "", "loan_list", loanListParams{Participant: testLender})
	var listed []loanResult
	mustResult(t, resp, &listed)
	if len(listed) != 1 || listed[0].ID != proposed.ID {
		t.Fatalf("expected the completed loan listed, got %+v", listed)
	}

	resp = rpcCall(t, handler, "", "loan_events", struct{}{})
	if resp.Error != nil {
		t.Fatalf("loan_events: %+v", resp.Error)
	}
}

func TestRPCErrorCodes(t *testing.T) {
	server := newTestServer(t)
	handler := server.Handler()

	resp := rpcCall(t, handler, "", "loan_get", loanIDParams{ID: 99})
	if resp.Error == nil || resp.Error.Code != codeNotFound {
		t.Fatalf("expected not-found code, got %+v", resp.Error)
	}

	resp = rpcCall(t, handler, "", "loan_propose", loanProposeParams{
		From: testLender, Borrower: testBorrower, Asset: "tok", Amount: "100",
	})
	if resp.Error == nil || resp.Error.Code != codeNotAllowlisted {
		t.Fatalf("expected allowlist code, got %+v", resp.Error)
	}

	resp = rpcCall(t, handler, "", "loan_propose", loanProposeParams{
		From: testLender, Borrower: testBorrower, Asset: "tok", Amount: "not-a-number",
	})
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid-params code, got %+v", resp.Error)
	}

	resp = rpcCall(t, handler, "", "loan_unknown", struct{}{})
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method-not-found code, got %+v", resp.Error)
	}
}

func TestRPCRejectsNonPost(t *testing.T) {
	server := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestBearerTokenGatesMutations(t *testing.T) {
	seed := newTestServer(t)
	t.Setenv(authTokenEnv, "secret")
	server := NewServer(seed.engine, seed.bank, seed.recent, seed.log)
	handler := server.Handler()

	resp := rpcCall(t, handler, "", "loan_allow", loanAllowParams{From: testBorrower, Proposer: testLender})
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized without token, got %+v", resp.Error)
	}
	resp = rpcCall(t, handler, "wrong", "loan_allow", loanAllowParams{From: testBorrower, Proposer: testLender})
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized with wrong token, got %+v", resp.Error)
	}
	resp = rpcCall(t, handler, "secret", "loan_allow", loanAllowParams{From: testBorrower, Proposer: testLender})
	var ack ackResult
	mustResult(t, resp, &ack)
	if !ack.OK {
		t.Fatalf("allow not acknowledged with valid token")
	}

	// Reads stay open.
	resp = rpcCall(t, handler, "", "loan_list", loanListParams{Participant: testLender})
	if resp.Error != nil {
		t.Fatalf("read should not require auth: %+v", resp.Error)
	}
}
