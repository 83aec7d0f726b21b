package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"loanchain/native/loan"
)

type loanProposeParams struct {
	From     string `json:"from"`
	Borrower string `json:"borrower"`
	Asset    string `json:"asset"`
	Amount   string `json:"amount"`
}

type loanImportParams struct {
	From        string `json:"from"`
	Borrower    string `json:"borrower"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	AlreadyPaid string `json:"alreadyPaid,omitempty"`
}

type loanIDParams struct {
	From string `json:"from,omitempty"`
	ID   uint64 `json:"id"`
}

type loanPayParams struct {
	From   string `json:"from"`
	ID     uint64 `json:"id"`
	Amount string `json:"amount"`
}

type loanAllowParams struct {
	From     string `json:"from"`
	Proposer string `json:"proposer"`
}

type loanListParams struct {
	Participant string `json:"participant"`
}

type loanAllowlistParams struct {
	Owner string `json:"owner"`
}

type bankBalanceParams struct {
	Address string `json:"address"`
	Asset   string `json:"asset"`
}

type loanProposeResult struct {
	ID uint64 `json:"id"`
}

type loanResult struct {
	ID                uint64 `json:"id"`
	Lender            string `json:"lender"`
	Borrower          string `json:"borrower"`
	Asset             string `json:"asset"`
	AmountLoaned      string `json:"amountLoaned"`
	AmountRepaid      string `json:"amountRepaid"`
	BorrowerCommitted bool   `json:"borrowerCommitted"`
	Started           bool   `json:"started"`
	Repayable         bool   `json:"repayable"`
	Canceled          bool   `json:"canceled"`
	Completed         bool   `json:"completed"`
	Imported          bool   `json:"imported"`
}

type ackResult struct {
	OK bool `json:"ok"`
}

func newLoanResult(l *loan.Loan) loanResult {
	out := loanResult{
		ID:                l.ID,
		Lender:            "0x" + hex.EncodeToString(l.Lender[:]),
		Borrower:          "0x" + hex.EncodeToString(l.Borrower[:]),
		Asset:             l.Asset,
		BorrowerCommitted: l.BorrowerCommitted,
		Started:           l.Started,
		Repayable:         l.Repayable,
		Canceled:          l.Canceled,
		Completed:         l.Completed,
		Imported:          l.Imported,
	}
	if l.AmountLoaned != nil {
		out.AmountLoaned = l.AmountLoaned.String()
	}
	if l.AmountRepaid != nil {
		out.AmountRepaid = l.AmountRepaid.String()
	}
	return out
}

func parseAddress(input string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimSpace(input)
	trimmed = strings.TrimPrefix(trimmed, "0x")
	if len(trimmed) != 40 {
		return addr, fmt.Errorf("address must be 20 hex bytes")
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid address encoding: %v", err)
	}
	copy(addr[:], decoded)
	return addr, nil
}

func parseAmount(input string) (*big.Int, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("amount must be a base-10 integer")
	}
	return amount, nil
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected a single parameter object")
	}
	return json.Unmarshal(req.Params[0], out)
}

// resolveCaller parses the declared "from" address and runs it through the
// configured identity resolution step.
func (s *Server) resolveCaller(r *http.Request, declared string) ([20]byte, error) {
	addr, err := parseAddress(declared)
	if err != nil {
		return [20]byte{}, fmt.Errorf("from: %v", err)
	}
	return s.resolver.Resolve(r, addr)
}

func (s *Server) handleLoanPropose(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params loanProposeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, err := s.resolveCaller(r, params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	borrower, err := parseAddress(params.Borrower)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "borrower: "+err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "amount: "+err.Error(), nil)
		return
	}
	id, err := s.engine.Propose(caller, borrower, params.Asset, amount)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, loanProposeResult{ID: id})
}

func (s *Server) handleLoanImport(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params loanImportParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, err := s.resolveCaller(r, params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	borrower, err := parseAddress(params.Borrower)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "borrower: "+err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "amount: "+err.Error(), nil)
		return
	}
	alreadyPaid := big.NewInt(0)
	if strings.TrimSpace(params.AlreadyPaid) != "" {
		alreadyPaid, err = parseAmount(params.AlreadyPaid)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "alreadyPaid: "+err.Error(), nil)
			return
		}
	}
	id, err := s.engine.Import(caller, borrower, params.Asset, amount, alreadyPaid)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, loanProposeResult{ID: id})
}

func (s *Server) handleLoanCommit(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleLifecycle(w, r, req, s.engine.Commit)
}

func (s *Server) handleLoanExecute(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleLifecycle(w, r, req, s.engine.Execute)
}

func (s *Server) handleLoanCancel(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleLifecycle(w, r, req, s.engine.Cancel)
}

func (s *Server) handleLoanCancelPending(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleLifecycle(w, r, req, s.engine.CancelPending)
}

func (s *Server) handleLoanDelete(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleLifecycle(w, r, req, s.engine.Delete)
}

func (s *Server) handleLifecycle(w http.ResponseWriter, r *http.Request, req *RPCRequest, op func([20]byte, uint64) error) {
	var params loanIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, err := s.resolveCaller(r, params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := op(caller, params.ID); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, ackResult{OK: true})
}

func (s *Server) handleLoanPay(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params loanPayParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, err := s.resolveCaller(r, params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "amount: "+err.Error(), nil)
		return
	}
	if err := s.engine.Pay(caller, params.ID, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, ackResult{OK: true})
}

func (s *Server) handleLoanGet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params loanIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	record, err := s.engine.Loan(params.ID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newLoanResult(record))
}

func (s *Server) handleLoanList(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params loanListParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	participant, err := parseAddress(params.Participant)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "participant: "+err.Error(), nil)
		return
	}
	records, err := s.engine.LoansOf(participant)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	out := make([]loanResult, 0, len(records))
	for _, record := range records {
		out = append(out, newLoanResult(record))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleLoanAllow(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleAllowlistMutation(w, r, req, s.engine.Allow)
}

func (s *Server) handleLoanDisallow(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleAllowlistMutation(w, r, req, s.engine.Disallow)
}

func (s *Server) handleAllowlistMutation(w http.ResponseWriter, r *http.Request, req *RPCRequest, op func([20]byte, [20]byte) error) {
	var params loanAllowParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, err := s.resolveCaller(r, params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	proposer, err := parseAddress(params.Proposer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "proposer: "+err.Error(), nil)
		return
	}
	if err := op(caller, proposer); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, ackResult{OK: true})
}

func (s *Server) handleLoanAllowlist(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params loanAllowlistParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "owner: "+err.Error(), nil)
		return
	}
	list, err := s.engine.Allowlist(owner)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	// The raw sequence is exposed tombstones included; consumers filter the
	// zero entries.
	out := make([]string, 0, len(list))
	for _, entry := range list {
		out = append(out, "0x"+hex.EncodeToString(entry[:]))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleBankBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params bankBalanceParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "address: "+err.Error(), nil)
		return
	}
	balance, err := s.bank.BalanceOf(addr, params.Asset)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"balance": balance.String()})
}
