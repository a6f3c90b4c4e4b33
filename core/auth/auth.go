// Package auth decides whether an identity consented to the invocation that is
// currently executing.
package auth

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"swapledger/core/state"
	"swapledger/core/types"
	"swapledger/crypto"
)

var (
	// ErrUnauthorized is the root of every authorization failure.
	ErrUnauthorized = errors.New("auth: unauthorized")
	// ErrSignerMismatch indicates the signature was produced by another identity.
	ErrSignerMismatch = fmt.Errorf("%w: signer does not match identity", ErrUnauthorized)
	// ErrInvocationMismatch indicates the signed invocation differs from the executing call.
	ErrInvocationMismatch = fmt.Errorf("%w: signed invocation does not match call", ErrUnauthorized)
	// ErrWrongNetwork indicates the invocation targets another network.
	ErrWrongNetwork = fmt.Errorf("%w: network mismatch", ErrUnauthorized)
	// ErrWrongContract indicates the invocation targets another contract.
	ErrWrongContract = fmt.Errorf("%w: contract mismatch", ErrUnauthorized)
	// ErrExpired indicates the signed invocation is past its expiry.
	ErrExpired = fmt.Errorf("%w: authorization expired", ErrUnauthorized)
	// ErrNonceUsed indicates the signed invocation has already been consumed.
	ErrNonceUsed = fmt.Errorf("%w: nonce already used", ErrUnauthorized)
	// ErrDenied is returned by DenyAuthorizer.
	ErrDenied = fmt.Errorf("%w: denied", ErrUnauthorized)
)

var noncePrefix = []byte("host/auth/nonce/")

func nonceKey(identity crypto.Address, nonce uint64) []byte {
	raw := identity.Raw()
	buf := make([]byte, len(noncePrefix)+len(raw)+8)
	copy(buf, noncePrefix)
	copy(buf[len(noncePrefix):], raw[:])
	binary.BigEndian.PutUint64(buf[len(noncePrefix)+len(raw):], nonce)
	return buf
}

// Gate is the per-invocation capability a contract consults before touching
// state on behalf of an identity.
type Gate interface {
	RequireAuth(identity crypto.Address) error
}

// Authorizer builds the gate for one invocation. kv is the invocation's
// journal so any bookkeeping the gate writes rolls back with the call.
type Authorizer interface {
	Gate(kv state.KV, call types.Invocation, authz *types.Authorization) Gate
}

// SignatureAuthorizer accepts an identity only when it signed the exact call.
type SignatureAuthorizer struct {
	network  string
	contract string
	now      func() time.Time
}

// NewSignatureAuthorizer binds gates to one network and contract.
func NewSignatureAuthorizer(network string, contract crypto.Address) *SignatureAuthorizer {
	return &SignatureAuthorizer{
		network:  strings.TrimSpace(network),
		contract: contract.String(),
		now:      time.Now,
	}
}

// SetClock overrides the time source for deterministic testing.
func (a *SignatureAuthorizer) SetClock(now func() time.Time) {
	if a == nil || now == nil {
		return
	}
	a.now = now
}

func (a *SignatureAuthorizer) Gate(kv state.KV, call types.Invocation, authz *types.Authorization) Gate {
	return &signatureGate{authorizer: a, kv: kv, call: call, authz: authz}
}

type signatureGate struct {
	authorizer *SignatureAuthorizer
	kv         state.KV
	call       types.Invocation
	authz      *types.Authorization
	satisfied  []crypto.Address
}

func (g *signatureGate) RequireAuth(identity crypto.Address) error {
	for _, done := range g.satisfied {
		if done.Equal(identity) {
			return nil
		}
	}
	if g.authz == nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, types.ErrMissingSignature)
	}
	signed := g.authz.Invocation
	signer, err := g.authz.Signer()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if !signer.Equal(identity) {
		return ErrSignerMismatch
	}
	if !strings.EqualFold(strings.TrimSpace(signed.Network), g.authorizer.network) {
		return ErrWrongNetwork
	}
	if strings.TrimSpace(signed.Contract) != g.authorizer.contract {
		return ErrWrongContract
	}
	if !bytes.Equal(signed.Hash(), g.call.Hash()) {
		return ErrInvocationMismatch
	}
	if signed.Expiry > 0 && g.authorizer.now().Unix() > signed.Expiry {
		return ErrExpired
	}
	key := nonceKey(identity, signed.Nonce)
	used, err := g.kv.KVGet(key, nil)
	if err != nil {
		return fmt.Errorf("auth: load nonce: %w", err)
	}
	if used {
		return ErrNonceUsed
	}
	if err := g.kv.KVPut(key, true); err != nil {
		return fmt.Errorf("auth: record nonce: %w", err)
	}
	g.satisfied = append(g.satisfied, identity)
	return nil
}

// MockAuthorizer approves every identity and records who was asked for. It is
// the harness equivalent of mocking all authorizations.
type MockAuthorizer struct {
	Recorded []crypto.Address
}

func (m *MockAuthorizer) Gate(state.KV, types.Invocation, *types.Authorization) Gate {
	return mockGate{m: m}
}

type mockGate struct {
	m *MockAuthorizer
}

func (g mockGate) RequireAuth(identity crypto.Address) error {
	g.m.Recorded = append(g.m.Recorded, identity)
	return nil
}

// DenyAuthorizer refuses every identity.
type DenyAuthorizer struct{}

func (DenyAuthorizer) Gate(state.KV, types.Invocation, *types.Authorization) Gate {
	return denyGate{}
}

type denyGate struct{}

func (denyGate) RequireAuth(crypto.Address) error { return ErrDenied }
