package events

import (
	"math/big"

	"swapledger/core/types"
	"swapledger/crypto"
)

const (
	// TypeSwap is emitted once per successful swap.
	TypeSwap = "swap"

	AttrIdentity  = "identity"
	AttrAmountOut = "amountOut"
)

// SwapExecuted records the identity that swapped and the computed output.
type SwapExecuted struct {
	Identity  crypto.Address
	AmountOut *big.Int
}

func (SwapExecuted) EventType() string { return TypeSwap }

func (e SwapExecuted) Event() *types.Event {
	amount := big.NewInt(0)
	if e.AmountOut != nil {
		amount = new(big.Int).Set(e.AmountOut)
	}
	return &types.Event{
		Type: TypeSwap,
		Attributes: map[string]string{
			AttrIdentity:  e.Identity.String(),
			AttrAmountOut: amount.String(),
		},
	}
}
