package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"swapledger/core/types"
	"swapledger/crypto"
	"swapledger/native/swap"
	"swapledger/rpc"
)

// swapFlags are shared by swap and simulate.
type swapFlags struct {
	amount  string
	pair    string
	rateNum string
	rateDen string
}

func (f *swapFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.amount, "amount", "", "input amount (base-10 integer)")
	fs.StringVar(&f.pair, "pair", "", "rate preset such as XLM-USDC")
	fs.StringVar(&f.rateNum, "rate-num", "", "rate numerator")
	fs.StringVar(&f.rateDen, "rate-den", "", "rate denominator")
}

// resolveRate returns the numerator and denominator either from an explicit
// pair of flags or from the server's presets.
func (c *cli) resolveRate(f swapFlags) (string, string, error) {
	if f.pair != "" {
		if f.rateNum != "" || f.rateDen != "" {
			return "", "", errors.New("use either --pair or --rate-num/--rate-den")
		}
		raw, err := c.call("swap_pairs")
		if err != nil {
			return "", "", err
		}
		var pairs []swap.Pair
		if err := json.Unmarshal(raw, &pairs); err != nil {
			return "", "", fmt.Errorf("decode pairs: %w", err)
		}
		pair, ok := swap.FindPair(pairs, f.pair)
		if !ok {
			return "", "", fmt.Errorf("unknown pair %s", f.pair)
		}
		return strconv.FormatInt(pair.RateNum, 10), strconv.FormatInt(pair.RateDen, 10), nil
	}
	if f.rateNum == "" || f.rateDen == "" {
		return "", "", errors.New("--pair or both --rate-num and --rate-den are required")
	}
	return f.rateNum, f.rateDen, nil
}

func (c *cli) swap(args []string) error {
	fs := flag.NewFlagSet("swap", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	var f swapFlags
	f.register(fs)
	nonce := fs.Uint64("nonce", 0, "invocation nonce (defaults to the current time in nanoseconds)")
	ttl := fs.Duration("ttl", 5*time.Minute, "how long the signature stays valid; 0 disables expiry")
	if err := fs.Parse(args); err != nil {
		return err
	}
	num, den, err := c.resolveRate(f)
	if err != nil {
		return err
	}
	key, err := c.loadKey()
	if err != nil {
		return err
	}

	raw, err := c.call("swap_info")
	if err != nil {
		return err
	}
	var info rpc.InfoResult
	if err := json.Unmarshal(raw, &info); err != nil {
		return fmt.Errorf("decode info: %w", err)
	}

	authz, err := buildSwapAuthorization(key, info, f.amount, num, den, *nonce, *ttl, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stderr, "Submitting %s\n", authz.Invocation.HashHex())
	return c.printCall("swap_execute", authz)
}

func buildSwapAuthorization(key *crypto.PrivateKey, info rpc.InfoResult, amount, rateNum, rateDen string, nonce uint64, ttl time.Duration, now time.Time) (*types.Authorization, error) {
	values := make([]*big.Int, 3)
	for i, raw := range []string{amount, rateNum, rateDen} {
		v, err := swap.ParseI128(raw)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	if nonce == 0 {
		nonce = uint64(now.UnixNano())
	}
	var expiry int64
	if ttl > 0 {
		expiry = now.Add(ttl).Unix()
	}
	args := swap.SwapArgs{
		Identity: key.PubKey().Address(),
		AmountIn: values[0],
		RateNum:  values[1],
		RateDen:  values[2],
	}
	authz := &types.Authorization{Invocation: types.Invocation{
		Network:  info.Network,
		Contract: info.Contract,
		Function: swap.FunctionSwap,
		Args:     args.Encode(),
		Nonce:    nonce,
		Expiry:   expiry,
	}}
	if err := authz.Sign(key); err != nil {
		return nil, err
	}
	return authz, nil
}

func (c *cli) simulate(args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	var f swapFlags
	f.register(fs)
	identity := fs.String("identity", "", "account to simulate for (defaults to the keystore address)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *identity == "" {
		key, err := c.loadKey()
		if err != nil {
			return err
		}
		*identity = key.PubKey().Address().String()
	}
	params := rpc.SimulateParams{Identity: *identity, AmountIn: f.amount}
	if f.pair != "" && f.rateNum == "" && f.rateDen == "" {
		params.Pair = f.pair
	} else {
		num, den, err := c.resolveRate(f)
		if err != nil {
			return err
		}
		params.RateNum, params.RateDen = num, den
	}
	return c.printCall("swap_simulate", params)
}
