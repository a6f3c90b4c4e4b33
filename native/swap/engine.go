package swap

import (
	"fmt"
	"math/big"

	"swapledger/core/events"
	"swapledger/crypto"
)

// Storage exposes the contract state access required by the engine.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Auth is the host capability that proves an identity consented to the
// executing invocation.
type Auth interface {
	RequireAuth(identity crypto.Address) error
}

// Engine converts amounts at a caller-supplied rate and keeps a per-identity
// swap counter. An engine is configured for a single invocation; the host
// supplies a journaled store and an event buffer so a failed call leaves
// nothing behind.
type Engine struct {
	state   Storage
	auth    Auth
	emitter events.Emitter
}

// NewEngine constructs an engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the persistent store.
func (e *Engine) SetState(state Storage) {
	if e == nil {
		return
	}
	e.state = state
}

// SetAuth configures the authorization gate.
func (e *Engine) SetAuth(auth Auth) {
	if e == nil {
		return
	}
	e.auth = auth
}

// SetEmitter configures the event sink. A nil emitter discards events.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// Swap authorizes identity, computes amountIn * rateNum / rateDen with
// truncating division, bumps the identity's counter and emits a swap event.
func (e *Engine) Swap(identity crypto.Address, amountIn, rateNum, rateDen *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil || e.auth == nil {
		return nil, ErrNotConfigured
	}
	if err := e.auth.RequireAuth(identity); err != nil {
		return nil, err
	}

	count, err := e.loadCount(identity)
	if err != nil {
		return nil, err
	}
	amountOut, err := ConvertAmount(amountIn, rateNum, rateDen)
	if err != nil {
		return nil, err
	}
	next, err := incrementCount(count)
	if err != nil {
		return nil, err
	}
	if err := e.state.KVPut(SwapCountKey(identity).Bytes(), next); err != nil {
		return nil, fmt.Errorf("%w: store count: %w", ErrStorage, err)
	}

	e.emitter.Emit(events.SwapExecuted{Identity: identity, AmountOut: new(big.Int).Set(amountOut)})
	return amountOut, nil
}

// GetCount returns the number of successful swaps identity has made. It needs
// no authorization and never writes.
func (e *Engine) GetCount(identity crypto.Address) (uint32, error) {
	if e == nil || e.state == nil {
		return 0, ErrNotConfigured
	}
	return e.loadCount(identity)
}

func (e *Engine) loadCount(identity crypto.Address) (uint32, error) {
	var count uint32
	ok, err := e.state.KVGet(SwapCountKey(identity).Bytes(), &count)
	if err != nil {
		return 0, fmt.Errorf("%w: load count: %w", ErrStorage, err)
	}
	if !ok {
		return 0, nil
	}
	return count, nil
}
