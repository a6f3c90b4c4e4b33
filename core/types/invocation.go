package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"swapledger/crypto"
)

// AuthDomainV1 separates invocation digests from every other signed payload.
const AuthDomainV1 = "SWAPLEDGER_AUTH_V1"

// ErrMissingSignature is returned when an authorization carries no signature.
var ErrMissingSignature = errors.New("auth: signature required")

// Invocation names one contract call exactly: where it runs, what it calls and
// with which arguments. Arguments are canonical strings (bech32 addresses,
// base-10 integers).
type Invocation struct {
	Network  string   `json:"network"`
	Contract string   `json:"contract"`
	Function string   `json:"function"`
	Args     []string `json:"args"`
	Nonce    uint64   `json:"nonce"`
	Expiry   int64    `json:"expiry,omitempty"`
}

// Hash reconstructs the digest an identity signs to consent to the call. Every
// argument is length-prefixed so no two argument lists share an encoding.
func (inv Invocation) Hash() []byte {
	var args strings.Builder
	for i, arg := range inv.Args {
		if i > 0 {
			args.WriteByte(',')
		}
		fmt.Fprintf(&args, "%d:%s", len(arg), arg)
	}
	payload := fmt.Sprintf("%s|network=%s|contract=%s|fn=%s|args=[%s]|nonce=%d|exp=%d",
		AuthDomainV1,
		strings.TrimSpace(inv.Network),
		strings.TrimSpace(inv.Contract),
		strings.TrimSpace(inv.Function),
		args.String(),
		inv.Nonce,
		inv.Expiry,
	)
	return crypto.Keccak256([]byte(payload))
}

// HashHex returns the 0x-prefixed invocation digest used as a receipt id.
func (inv Invocation) HashHex() string {
	return hexutil.Encode(inv.Hash())
}

// Authorization pairs an invocation with the signature of the identity that
// consents to it.
type Authorization struct {
	Invocation Invocation    `json:"invocation"`
	Signature  hexutil.Bytes `json:"signature"`
}

// Sign fills in the signature using key.
func (a *Authorization) Sign(key *crypto.PrivateKey) error {
	if a == nil {
		return fmt.Errorf("auth: nil authorization")
	}
	sig, err := key.Sign(a.Invocation.Hash())
	if err != nil {
		return err
	}
	a.Signature = sig
	return nil
}

// Signer recovers the account that produced the signature.
func (a *Authorization) Signer() (crypto.Address, error) {
	if a == nil || len(a.Signature) == 0 {
		return crypto.Address{}, ErrMissingSignature
	}
	return crypto.RecoverAddress(a.Invocation.Hash(), a.Signature)
}
