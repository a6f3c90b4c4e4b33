package auth

import (
	"errors"
	"testing"
	"time"

	"swapledger/core/state"
	"swapledger/core/types"
	"swapledger/crypto"
	"swapledger/storage"
)

const testNetwork = "swapledger-test"

type fixture struct {
	manager    *state.Manager
	authorizer *SignatureAuthorizer
	contract   crypto.Address
	key        *crypto.PrivateKey
	identity   crypto.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	raw := make([]byte, crypto.AddressLength)
	raw[0] = 0xC0
	contract := crypto.MustAddress(crypto.ContractPrefix, raw)
	authorizer := NewSignatureAuthorizer(testNetwork, contract)
	authorizer.SetClock(func() time.Time { return time.Unix(1_700_000_000, 0) })
	return &fixture{
		manager:    state.NewManager(storage.NewMemDB()),
		authorizer: authorizer,
		contract:   contract,
		key:        key,
		identity:   key.PubKey().Address(),
	}
}

func (f *fixture) call(args ...string) types.Invocation {
	return types.Invocation{
		Network:  testNetwork,
		Contract: f.contract.String(),
		Function: "swap",
		Args:     append([]string{f.identity.String()}, args...),
		Nonce:    1,
	}
}

func (f *fixture) sign(t *testing.T, key *crypto.PrivateKey, inv types.Invocation) *types.Authorization {
	t.Helper()
	authz := &types.Authorization{Invocation: inv}
	if err := authz.Sign(key); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return authz
}

func TestSignatureGateAcceptsExactCall(t *testing.T) {
	f := newFixture(t)
	call := f.call("100", "12", "100")
	j := f.manager.Begin()
	gate := f.authorizer.Gate(j, call, f.sign(t, f.key, call))
	if err := gate.RequireAuth(f.identity); err != nil {
		t.Fatalf("expected authorization, got %v", err)
	}
	if err := gate.RequireAuth(f.identity); err != nil {
		t.Fatalf("repeat check within one invocation must pass, got %v", err)
	}
}

func TestSignatureGateRejections(t *testing.T) {
	f := newFixture(t)
	other, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	call := f.call("100", "12", "100")

	altered := f.call("100", "13", "100")
	wrongNetwork := call
	wrongNetwork.Network = "elsewhere"
	wrongContract := call
	wrongContract.Contract = crypto.MustAddress(crypto.ContractPrefix, make([]byte, crypto.AddressLength)).String()
	expired := call
	expired.Expiry = 1_600_000_000

	cases := []struct {
		name     string
		identity crypto.Address
		call     types.Invocation
		authz    *types.Authorization
		want     error
	}{
		{"missing", f.identity, call, nil, ErrUnauthorized},
		{"other signer", f.identity, call, f.sign(t, other, call), ErrSignerMismatch},
		{"identity replay", other.PubKey().Address(), call, f.sign(t, f.key, call), ErrSignerMismatch},
		{"altered args", f.identity, call, f.sign(t, f.key, altered), ErrInvocationMismatch},
		{"wrong network", f.identity, call, f.sign(t, f.key, wrongNetwork), ErrWrongNetwork},
		{"wrong contract", f.identity, call, f.sign(t, f.key, wrongContract), ErrWrongContract},
		{"expired", f.identity, expired, f.sign(t, f.key, expired), ErrExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			j := f.manager.Begin()
			defer j.Discard()
			err := f.authorizer.Gate(j, tc.call, tc.authz).RequireAuth(tc.identity)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("expected error to classify as unauthorized, got %v", err)
			}
			if j.Dirty() != 0 {
				t.Fatalf("rejected authorization must not write state")
			}
		})
	}
}

func TestNonceConsumedOnlyOnCommit(t *testing.T) {
	f := newFixture(t)
	call := f.call("1", "1", "1")
	authz := f.sign(t, f.key, call)

	discarded := f.manager.Begin()
	if err := f.authorizer.Gate(discarded, call, authz).RequireAuth(f.identity); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	discarded.Discard()

	committed := f.manager.Begin()
	if err := f.authorizer.Gate(committed, call, authz).RequireAuth(f.identity); err != nil {
		t.Fatalf("retry after rollback should succeed: %v", err)
	}
	if err := committed.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	replay := f.manager.Begin()
	defer replay.Discard()
	if err := f.authorizer.Gate(replay, call, authz).RequireAuth(f.identity); !errors.Is(err, ErrNonceUsed) {
		t.Fatalf("expected ErrNonceUsed on replay, got %v", err)
	}
}

func TestMockAndDenyAuthorizers(t *testing.T) {
	f := newFixture(t)
	mock := &MockAuthorizer{}
	if err := mock.Gate(nil, types.Invocation{}, nil).RequireAuth(f.identity); err != nil {
		t.Fatalf("mock should allow: %v", err)
	}
	if len(mock.Recorded) != 1 || !mock.Recorded[0].Equal(f.identity) {
		t.Fatalf("mock did not record identity: %+v", mock.Recorded)
	}
	if err := (DenyAuthorizer{}).Gate(nil, types.Invocation{}, nil).RequireAuth(f.identity); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("deny should refuse, got %v", err)
	}
}
