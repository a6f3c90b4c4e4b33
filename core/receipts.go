package core

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	"swapledger/core/state"
	"swapledger/core/types"
	"swapledger/native/swap"
)

var (
	eventSeqKey      = []byte("host/events/seq")
	eventPrefix      = []byte("host/events/")
	receiptKeyPrefix = []byte("host/receipt/")
)

const (
	defaultEventPage = 100
	maxEventPage     = 1000
)

// SwapReceipt summarises one committed swap invocation.
type SwapReceipt struct {
	Hash      string              `json:"hash"`
	Contract  string              `json:"contract"`
	Identity  string              `json:"identity"`
	AmountIn  *big.Int            `json:"amountIn"`
	RateNum   *big.Int            `json:"rateNum"`
	RateDen   *big.Int            `json:"rateDen"`
	AmountOut *big.Int            `json:"amountOut"`
	Count     uint32              `json:"count"`
	Events    []types.LoggedEvent `json:"events"`
}

// SimulationResult is the outcome of a swap evaluated against committed state
// without persisting anything.
type SimulationResult struct {
	AmountOut  *big.Int      `json:"amountOut"`
	CountAfter uint32        `json:"countAfter"`
	Events     []types.Event `json:"events"`
}

// RLP cannot carry negative integers, so amounts are stored as decimal strings.
type storedReceipt struct {
	Hash      string
	Contract  string
	Identity  string
	AmountIn  string
	RateNum   string
	RateDen   string
	AmountOut string
	Count     uint32
	EventSeqs []uint64
}

type storedEvent struct {
	Seq        uint64
	Invocation string
	Contract   string
	Type       string
	Keys       []string
	Values     []string
}

func eventKey(seq uint64) []byte {
	buf := make([]byte, len(eventPrefix)+8)
	copy(buf, eventPrefix)
	binary.BigEndian.PutUint64(buf[len(eventPrefix):], seq)
	return buf
}

func receiptKey(hash string) []byte {
	return append(append([]byte(nil), receiptKeyPrefix...), normalizeHash(hash)...)
}

func normalizeHash(hash string) string {
	hash = strings.ToLower(strings.TrimSpace(hash))
	if !strings.HasPrefix(hash, "0x") {
		hash = "0x" + hash
	}
	return hash
}

func loadLastSeq(kv state.KV) (uint64, error) {
	var seq uint64
	if _, err := kv.KVGet(eventSeqKey, &seq); err != nil {
		return 0, fmt.Errorf("%w: load event sequence: %w", swap.ErrStorage, err)
	}
	return seq, nil
}

// appendEvents assigns sequence numbers to evts and writes them to the host
// event log held in kv.
func appendEvents(kv state.KV, invocation, contract string, evts []types.Event) ([]types.LoggedEvent, error) {
	if len(evts) == 0 {
		return nil, nil
	}
	seq, err := loadLastSeq(kv)
	if err != nil {
		return nil, err
	}
	logged := make([]types.LoggedEvent, 0, len(evts))
	for _, evt := range evts {
		seq++
		stored := storedEvent{Seq: seq, Invocation: invocation, Contract: contract, Type: evt.Type}
		for _, k := range evt.SortedKeys() {
			stored.Keys = append(stored.Keys, k)
			stored.Values = append(stored.Values, evt.Attributes[k])
		}
		if err := kv.KVPut(eventKey(seq), stored); err != nil {
			return nil, fmt.Errorf("%w: store event: %w", swap.ErrStorage, err)
		}
		logged = append(logged, stored.logged())
	}
	if err := kv.KVPut(eventSeqKey, seq); err != nil {
		return nil, fmt.Errorf("%w: store event sequence: %w", swap.ErrStorage, err)
	}
	return logged, nil
}

func (s storedEvent) logged() types.LoggedEvent {
	attrs := make(map[string]string, len(s.Keys))
	for i, k := range s.Keys {
		if i < len(s.Values) {
			attrs[k] = s.Values[i]
		}
	}
	return types.LoggedEvent{
		Seq:        s.Seq,
		Invocation: s.Invocation,
		Contract:   s.Contract,
		Event:      types.Event{Type: s.Type, Attributes: attrs},
	}
}

func loadEvent(kv state.KV, seq uint64) (types.LoggedEvent, bool, error) {
	var stored storedEvent
	ok, err := kv.KVGet(eventKey(seq), &stored)
	if err != nil || !ok {
		return types.LoggedEvent{}, ok, err
	}
	return stored.logged(), true, nil
}

// listEvents returns up to limit logged events starting at from. Sequence
// numbers start at 1.
func listEvents(kv state.KV, from uint64, limit int) ([]types.LoggedEvent, error) {
	if from == 0 {
		from = 1
	}
	if limit <= 0 {
		limit = defaultEventPage
	}
	if limit > maxEventPage {
		limit = maxEventPage
	}
	last, err := loadLastSeq(kv)
	if err != nil {
		return nil, err
	}
	out := make([]types.LoggedEvent, 0)
	for seq := from; seq <= last && len(out) < limit; seq++ {
		evt, ok, err := loadEvent(kv, seq)
		if err != nil {
			return nil, fmt.Errorf("%w: load event %d: %w", swap.ErrStorage, seq, err)
		}
		if ok {
			out = append(out, evt)
		}
	}
	return out, nil
}

func putReceipt(kv state.KV, r *SwapReceipt) error {
	stored := storedReceipt{
		Hash:      r.Hash,
		Contract:  r.Contract,
		Identity:  r.Identity,
		AmountIn:  r.AmountIn.String(),
		RateNum:   r.RateNum.String(),
		RateDen:   r.RateDen.String(),
		AmountOut: r.AmountOut.String(),
		Count:     r.Count,
	}
	for _, evt := range r.Events {
		stored.EventSeqs = append(stored.EventSeqs, evt.Seq)
	}
	if err := kv.KVPut(receiptKey(r.Hash), stored); err != nil {
		return fmt.Errorf("%w: store receipt: %w", swap.ErrStorage, err)
	}
	return nil
}

func loadReceipt(kv state.KV, hash string) (*SwapReceipt, error) {
	var stored storedReceipt
	ok, err := kv.KVGet(receiptKey(hash), &stored)
	if err != nil {
		return nil, fmt.Errorf("%w: load receipt: %w", swap.ErrStorage, err)
	}
	if !ok {
		return nil, ErrReceiptNotFound
	}
	receipt := &SwapReceipt{
		Hash:     stored.Hash,
		Contract: stored.Contract,
		Identity: stored.Identity,
		Count:    stored.Count,
		Events:   make([]types.LoggedEvent, 0, len(stored.EventSeqs)),
	}
	fields := []struct {
		raw string
		dst **big.Int
	}{
		{stored.AmountIn, &receipt.AmountIn},
		{stored.RateNum, &receipt.RateNum},
		{stored.RateDen, &receipt.RateDen},
		{stored.AmountOut, &receipt.AmountOut},
	}
	for _, f := range fields {
		v, ok := new(big.Int).SetString(f.raw, 10)
		if !ok {
			return nil, fmt.Errorf("%w: corrupt receipt amount %q", swap.ErrStorage, f.raw)
		}
		*f.dst = v
	}
	for _, seq := range stored.EventSeqs {
		evt, ok, err := loadEvent(kv, seq)
		if err != nil {
			return nil, fmt.Errorf("%w: load event %d: %w", swap.ErrStorage, seq, err)
		}
		if ok {
			receipt.Events = append(receipt.Events, evt)
		}
	}
	return receipt, nil
}
