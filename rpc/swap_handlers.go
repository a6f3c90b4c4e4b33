package rpc

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strings"

	"swapledger/core"
	"swapledger/core/types"
	"swapledger/crypto"
	"swapledger/native/swap"
)

// ReceiptResult is the JSON form of a committed swap. Amounts are decimal
// strings because i128 values do not fit JSON numbers.
type ReceiptResult struct {
	Hash      string              `json:"hash"`
	Contract  string              `json:"contract"`
	Identity  string              `json:"identity"`
	AmountIn  string              `json:"amountIn"`
	RateNum   string              `json:"rateNum"`
	RateDen   string              `json:"rateDen"`
	AmountOut string              `json:"amountOut"`
	Count     uint32              `json:"count"`
	Events    []types.LoggedEvent `json:"events"`
}

// SimulateParams carries a swap to evaluate. Pair, when set, supplies the
// rate from the configured presets.
type SimulateParams struct {
	Identity string `json:"identity"`
	AmountIn string `json:"amountIn"`
	RateNum  string `json:"rateNum,omitempty"`
	RateDen  string `json:"rateDen,omitempty"`
	Pair     string `json:"pair,omitempty"`
}

type SimulateResult struct {
	AmountOut  string        `json:"amountOut"`
	CountAfter uint32        `json:"countAfter"`
	Events     []types.Event `json:"events"`
}

type CountResult struct {
	Identity string `json:"identity"`
	Count    uint32 `json:"count"`
}

type ListEventsParams struct {
	From  uint64 `json:"from"`
	Limit int    `json:"limit"`
}

type InfoResult struct {
	Network   string `json:"network"`
	Contract  string `json:"contract"`
	LatestSeq uint64 `json:"latestSeq"`
}

func receiptResultFrom(r *core.SwapReceipt) ReceiptResult {
	events := r.Events
	if events == nil {
		events = []types.LoggedEvent{}
	}
	return ReceiptResult{
		Hash:      r.Hash,
		Contract:  r.Contract,
		Identity:  r.Identity,
		AmountIn:  r.AmountIn.String(),
		RateNum:   r.RateNum.String(),
		RateDen:   r.RateDen.String(),
		AmountOut: r.AmountOut.String(),
		Count:     r.Count,
		Events:    events,
	}
}

func parseStringParam(raw json.RawMessage) (string, bool) {
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func parseAccount(raw string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return crypto.Address{}, err
	}
	if addr.Prefix() != crypto.AccountPrefix {
		return crypto.Address{}, crypto.ErrInvalidAddress
	}
	return addr, nil
}

func (s *Server) handleSwapExecute(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected signed invocation", nil)
		return
	}
	var authz types.Authorization
	if err := json.Unmarshal(req.Params[0], &authz); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid invocation", err.Error())
		return
	}
	if len(authz.Signature) == 0 {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "signature required", nil)
		return
	}
	receipt, err := s.node.Swap(r.Context(), &authz)
	if err != nil {
		writeInvocationError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, receiptResultFrom(receipt))
}

func (s *Server) handleSwapSimulate(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected simulation parameters", nil)
		return
	}
	var params SimulateParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	identity, err := parseAccount(params.Identity)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid identity", err.Error())
		return
	}
	if params.Pair != "" {
		pair, ok := swap.FindPair(s.pairs, params.Pair)
		if !ok {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "unknown pair", params.Pair)
			return
		}
		params.RateNum = big.NewInt(pair.RateNum).String()
		params.RateDen = big.NewInt(pair.RateDen).String()
	}
	values := make([]*big.Int, 3)
	for i, raw := range []string{params.AmountIn, params.RateNum, params.RateDen} {
		v, err := swap.ParseI128(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
			return
		}
		values[i] = v
	}
	result, err := s.node.SimulateSwap(r.Context(), identity, values[0], values[1], values[2])
	if err != nil {
		writeInvocationError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, SimulateResult{
		AmountOut:  result.AmountOut.String(),
		CountAfter: result.CountAfter,
		Events:     result.Events,
	})
}

func (s *Server) handleSwapGetCount(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "identity parameter required", nil)
		return
	}
	raw, ok := parseStringParam(req.Params[0])
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "identity must be a string", nil)
		return
	}
	identity, err := parseAccount(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid identity", err.Error())
		return
	}
	count, err := s.node.GetCount(identity)
	if err != nil {
		writeInvocationError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, CountResult{Identity: identity.String(), Count: count})
}

func (s *Server) handleSwapGetReceipt(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "hash parameter required", nil)
		return
	}
	hash, ok := parseStringParam(req.Params[0])
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "hash must be a string", nil)
		return
	}
	receipt, err := s.node.Receipt(hash)
	if err != nil {
		writeInvocationError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, receiptResultFrom(receipt))
}

func (s *Server) handleSwapListEvents(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params ListEventsParams
	if len(req.Params) > 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected at most one parameter", nil)
		return
	}
	if len(req.Params) == 1 {
		if err := json.Unmarshal(req.Params[0], &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
			return
		}
	}
	evts, err := s.node.Events(params.From, params.Limit)
	if err != nil {
		writeInvocationError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, evts)
}

func (s *Server) handleSwapInfo(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	seq, err := s.node.LatestSeq()
	if err != nil {
		writeInvocationError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, InfoResult{
		Network:   s.node.Network(),
		Contract:  s.node.Contract().String(),
		LatestSeq: seq,
	})
}
