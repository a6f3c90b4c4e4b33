package core

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"swapledger/core/auth"
	"swapledger/core/events"
	"swapledger/core/state"
	"swapledger/core/types"
	"swapledger/crypto"
	"swapledger/native/swap"
	"swapledger/observability/logging"
	"swapledger/observability/metrics"
	swapotel "swapledger/observability/otel"
	"swapledger/storage"
)

// Node hosts the swap contract: it runs invocations inside a journal, commits
// contract state, host bookkeeping and the event log in a single batch, and
// fans committed events out to subscribers.
type Node struct {
	db         storage.Database
	state      *state.Manager
	network    string
	contract   crypto.Address
	authorizer auth.Authorizer
	feed       *events.Feed
	metrics    *metrics.SwapMetrics
	logger     *slog.Logger

	// mu serialises state-mutating invocations. Reads take the read lock so
	// they never observe a half-applied batch.
	mu sync.RWMutex
}

// Option customises a Node.
type Option func(*Node)

// WithAuthorizer replaces the default signature authorizer.
func WithAuthorizer(a auth.Authorizer) Option {
	return func(n *Node) {
		if a != nil {
			n.authorizer = a
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Node) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithMetrics sets the metrics registry. A nil registry disables metrics.
func WithMetrics(m *metrics.SwapMetrics) Option {
	return func(n *Node) { n.metrics = m }
}

// NewNode constructs a node for the contract deployed at contract on network.
func NewNode(db storage.Database, network string, contract crypto.Address, opts ...Option) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database required")
	}
	if network == "" {
		return nil, fmt.Errorf("core: network name required")
	}
	if contract.IsZero() || contract.Prefix() != crypto.ContractPrefix {
		return nil, fmt.Errorf("core: invalid contract address %q", contract.String())
	}
	n := &Node{
		db:         db,
		state:      state.NewManager(db),
		network:    network,
		contract:   contract,
		authorizer: auth.NewSignatureAuthorizer(network, contract),
		feed:       events.NewFeed(),
		metrics:    metrics.Swap(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = n.logger.With(slog.String("contract", contract.String()), slog.String("network", network))
	return n, nil
}

// Network returns the network name invocations must target.
func (n *Node) Network() string { return n.network }

// Contract returns the address of the hosted contract.
func (n *Node) Contract() crypto.Address { return n.contract }

func (n *Node) contractState(kv state.KV) state.Namespace {
	return state.NewNamespace(kv, []byte("contract/"+n.contract.String()+"/"))
}

// Swap executes a signed swap invocation. Either every effect of the call is
// committed (counter, nonce, event log, receipt) or none is.
func (n *Node) Swap(ctx context.Context, authz *types.Authorization) (*SwapReceipt, error) {
	if authz == nil {
		return nil, fmt.Errorf("%w: authorization required", ErrInvalidInvocation)
	}
	ctx, span := swapotel.Tracer().Start(ctx, "swap.execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("swap.function", authz.Invocation.Function),
		attribute.Int64("swap.nonce", int64(authz.Invocation.Nonce)),
	)

	start := time.Now()
	receipt, err := n.executeSwap(ctx, authz)
	n.metrics.ObserveDuration(swap.FunctionSwap, time.Since(start))
	if err != nil {
		reason := FailureReason(err)
		n.metrics.ObserveFailure(reason)
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		n.logger.Warn("swap rejected",
			slog.String("invocation", authz.Invocation.HashHex()),
			slog.String("reason", reason),
			logging.MaskField("signature", encodeSignature(authz.Signature)),
			slog.Any("error", err))
		return nil, err
	}

	n.metrics.ObserveExecuted(len(receipt.Events))
	span.SetAttributes(attribute.String("swap.identity", receipt.Identity))
	n.logger.Info("swap executed",
		slog.String("invocation", receipt.Hash),
		slog.String("identity", receipt.Identity),
		slog.String("amount_out", receipt.AmountOut.String()),
		slog.Uint64("count", uint64(receipt.Count)))
	return receipt, nil
}

func encodeSignature(sig []byte) string {
	if len(sig) == 0 {
		return ""
	}
	return hexutil.Encode(sig)
}

func (n *Node) executeSwap(ctx context.Context, authz *types.Authorization) (*SwapReceipt, error) {
	signed := authz.Invocation
	if signed.Function != swap.FunctionSwap {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, signed.Function)
	}
	args, err := swap.DecodeSwapArgs(signed.Args)
	if err != nil {
		return nil, err
	}
	call := types.Invocation{
		Network:  n.network,
		Contract: n.contract.String(),
		Function: swap.FunctionSwap,
		Args:     args.Encode(),
		Nonce:    signed.Nonce,
		Expiry:   signed.Expiry,
	}
	hash := call.HashHex()

	n.mu.Lock()
	defer n.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	journal := n.state.Begin()
	defer journal.Discard()

	buf := &events.Buffer{}
	engine := swap.NewEngine()
	engine.SetState(n.contractState(journal))
	engine.SetAuth(n.authorizer.Gate(journal, call, authz))
	engine.SetEmitter(buf)

	amountOut, err := engine.Swap(args.Identity, args.AmountIn, args.RateNum, args.RateDen)
	if err != nil {
		return nil, err
	}
	count, err := engine.GetCount(args.Identity)
	if err != nil {
		return nil, err
	}
	logged, err := appendEvents(journal, hash, n.contract.String(), buf.Events())
	if err != nil {
		return nil, err
	}
	receipt := &SwapReceipt{
		Hash:      hash,
		Contract:  n.contract.String(),
		Identity:  args.Identity.String(),
		AmountIn:  args.AmountIn,
		RateNum:   args.RateNum,
		RateDen:   args.RateDen,
		AmountOut: amountOut,
		Count:     count,
		Events:    logged,
	}
	if err := putReceipt(journal, receipt); err != nil {
		return nil, err
	}
	if err := journal.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %w", swap.ErrStorage, err)
	}

	for _, evt := range logged {
		n.feed.Publish(evt)
	}
	return receipt, nil
}

// SimulateSwap evaluates a swap against committed state and discards every
// effect. Authorization is recorded but not enforced.
func (n *Node) SimulateSwap(ctx context.Context, identity crypto.Address, amountIn, rateNum, rateDen *big.Int) (*SimulationResult, error) {
	_, span := swapotel.Tracer().Start(ctx, "swap.simulate")
	defer span.End()
	n.metrics.ObserveSimulation()

	n.mu.RLock()
	defer n.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	journal := n.state.Begin()
	defer journal.Discard()

	buf := &events.Buffer{}
	engine := swap.NewEngine()
	engine.SetState(n.contractState(journal))
	engine.SetAuth((&auth.MockAuthorizer{}).Gate(journal, types.Invocation{}, nil))
	engine.SetEmitter(buf)

	amountOut, err := engine.Swap(identity, amountIn, rateNum, rateDen)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, FailureReason(err))
		return nil, err
	}
	count, err := engine.GetCount(identity)
	if err != nil {
		return nil, err
	}
	return &SimulationResult{AmountOut: amountOut, CountAfter: count, Events: buf.Events()}, nil
}

// GetCount returns the committed number of swaps identity has made.
func (n *Node) GetCount(identity crypto.Address) (uint32, error) {
	n.metrics.ObserveCountQuery()
	n.mu.RLock()
	defer n.mu.RUnlock()

	engine := swap.NewEngine()
	engine.SetState(n.contractState(n.state))
	return engine.GetCount(identity)
}

// Receipt returns the receipt of the committed invocation with the given hash.
func (n *Node) Receipt(hash string) (*SwapReceipt, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return loadReceipt(n.state, hash)
}

// Events lists committed events with sequence numbers starting at from.
func (n *Node) Events(from uint64, limit int) ([]types.LoggedEvent, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return listEvents(n.state, from, limit)
}

// LatestSeq returns the sequence number of the most recent committed event.
func (n *Node) LatestSeq() (uint64, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return loadLastSeq(n.state)
}

// Subscribe streams events as they commit. The subscription ends when ctx is
// done or the returned cancel function is called. A subscriber that falls
// more than capacity events behind has its channel closed and must resume
// through Events from the last sequence number it received.
func (n *Node) Subscribe(ctx context.Context, capacity int) (<-chan types.LoggedEvent, func()) {
	ch, cancel := n.feed.Subscribe(capacity)
	n.metrics.SetSubscribers(n.feed.Subscribers())

	stop := make(chan struct{})
	var once sync.Once
	release := func() {
		once.Do(func() {
			cancel()
			close(stop)
			n.metrics.SetSubscribers(n.feed.Subscribers())
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			release()
		case <-stop:
		}
	}()
	return ch, release
}
