package swap

import (
	"fmt"
	"math/big"
	"strings"

	"swapledger/crypto"
)

const (
	// FunctionSwap is the invocation name of Engine.Swap.
	FunctionSwap = "swap"
	// FunctionGetCount is the invocation name of Engine.GetCount.
	FunctionGetCount = "get_count"
)

// SwapArgs are the decoded arguments of a swap invocation.
type SwapArgs struct {
	Identity crypto.Address
	AmountIn *big.Int
	RateNum  *big.Int
	RateDen  *big.Int
}

// Encode renders the arguments in the canonical order and spelling that
// identities sign.
func (a SwapArgs) Encode() []string {
	return []string{
		a.Identity.String(),
		bigString(a.AmountIn),
		bigString(a.RateNum),
		bigString(a.RateDen),
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// DecodeSwapArgs parses (identity, amount_in, rate_num, rate_den).
func DecodeSwapArgs(args []string) (SwapArgs, error) {
	if len(args) != 4 {
		return SwapArgs{}, fmt.Errorf("%w: swap expects 4 arguments, got %d", ErrInvalidArgs, len(args))
	}
	identity, err := crypto.DecodeAddress(args[0])
	if err != nil {
		return SwapArgs{}, fmt.Errorf("%w: identity: %w", ErrInvalidArgs, err)
	}
	if identity.Prefix() != crypto.AccountPrefix {
		return SwapArgs{}, fmt.Errorf("%w: identity must be an account address", ErrInvalidArgs)
	}
	parsed := make([]*big.Int, 3)
	for i, raw := range args[1:] {
		v, err := ParseI128(raw)
		if err != nil {
			return SwapArgs{}, fmt.Errorf("%w: argument %d: %w", ErrInvalidArgs, i+1, err)
		}
		parsed[i] = v
	}
	return SwapArgs{Identity: identity, AmountIn: parsed[0], RateNum: parsed[1], RateDen: parsed[2]}, nil
}

// Pair is a named rate preset such as XLM-USDC = 12/100.
type Pair struct {
	From    string `json:"from" toml:"From"`
	To      string `json:"to" toml:"To"`
	RateNum int64  `json:"rateNum" toml:"RateNum"`
	RateDen int64  `json:"rateDen" toml:"RateDen"`
}

// Name returns the FROM-TO label of the pair.
func (p Pair) Name() string {
	return p.From + "-" + p.To
}

// DefaultPairs lists the presets offered to clients when none are configured.
func DefaultPairs() []Pair {
	return []Pair{
		{From: "XLM", To: "USDC", RateNum: 12, RateDen: 100},
		{From: "XLM", To: "EURC", RateNum: 11, RateDen: 100},
		{From: "XLM", To: "BTC", RateNum: 18, RateDen: 10_000_000},
		{From: "USDC", To: "XLM", RateNum: 833, RateDen: 100},
		{From: "USDC", To: "EURC", RateNum: 92, RateDen: 100},
		{From: "USDC", To: "BTC", RateNum: 15, RateDen: 1_000_000},
		{From: "EURC", To: "XLM", RateNum: 909, RateDen: 100},
		{From: "EURC", To: "USDC", RateNum: 109, RateDen: 100},
		{From: "EURC", To: "BTC", RateNum: 16, RateDen: 1_000_000},
		{From: "BTC", To: "XLM", RateNum: 555_555, RateDen: 1},
		{From: "BTC", To: "USDC", RateNum: 66_666, RateDen: 1},
		{From: "BTC", To: "EURC", RateNum: 61_111, RateDen: 1},
	}
}

// FindPair looks up a preset by its FROM-TO name, case-insensitively.
func FindPair(pairs []Pair, name string) (Pair, bool) {
	for _, p := range pairs {
		if strings.EqualFold(p.Name(), strings.TrimSpace(name)) {
			return p, true
		}
	}
	return Pair{}, false
}
