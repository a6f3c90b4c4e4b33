package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"swapledger/cmd/internal/passphrase"
	"swapledger/crypto"
)

const (
	keystorePassEnv = "SWAP_KEYSTORE_PASS"
	keystorePathEnv = "SWAP_KEYSTORE"
	rpcURLEnv       = "SWAP_RPC_URL"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// cli carries the global settings shared by every subcommand.
type cli struct {
	endpoint string
	keystore string
	pass     func() (string, error)
	stdout   io.Writer
	stderr   io.Writer
	http     *http.Client
}

func run(args []string, stdout, stderr io.Writer) int {
	c := &cli{
		endpoint: envOr(rpcURLEnv, "http://localhost:8545"),
		keystore: envOr(keystorePathEnv, "./swap.keystore"),
		pass:     passphrase.NewSource(keystorePassEnv).Get,
		stdout:   stdout,
		stderr:   stderr,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
	args, err := c.applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	if len(args) == 0 {
		printUsage(stderr)
		return 2
	}

	rest := args[1:]
	switch strings.ToLower(args[0]) {
	case "keygen":
		err = c.keygen()
	case "address":
		err = c.address()
	case "swap":
		err = c.swap(rest)
	case "simulate":
		err = c.simulate(rest)
	case "count":
		err = c.count(rest)
	case "receipt":
		err = c.receipt(rest)
	case "events":
		err = c.events(rest)
	case "pairs":
		err = c.printCall("swap_pairs")
	case "info":
		err = c.printCall("swap_info")
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command %q\n", args[0])
		printUsage(stderr)
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage: swap-cli [--rpc URL] [--keystore PATH] <command> [flags]

Commands:
  keygen                         create a new encrypted keystore
  address                        print the keystore account address
  swap --amount N --pair P       sign and submit a swap (or --rate-num/--rate-den)
  simulate --amount N --pair P   evaluate a swap without committing it
  count <address>                print the committed swap count
  receipt <hash>                 print a committed swap receipt
  events [--from N] [--limit N]  list logged events
  pairs                          list configured rate presets
  info                           print the network and contract id`)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func (c *cli) applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--rpc" || arg == "--keystore":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for %s", arg)
			}
			i++
			*c.globalFlag(arg) = args[i]
		case strings.HasPrefix(arg, "--rpc="), strings.HasPrefix(arg, "--keystore="):
			name, value, _ := strings.Cut(arg, "=")
			*c.globalFlag(name) = value
		default:
			out = append(out, arg)
		}
	}
	return out, nil
}

func (c *cli) globalFlag(name string) *string {
	if name == "--rpc" {
		return &c.endpoint
	}
	return &c.keystore
}

func (c *cli) loadKey() (*crypto.PrivateKey, error) {
	if _, err := os.Stat(c.keystore); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("keystore %s not found. run swap-cli keygen first", c.keystore)
		}
		return nil, err
	}
	pass, err := c.pass()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(c.keystore, pass)
}

func (c *cli) keygen() error {
	if _, err := os.Stat(c.keystore); err == nil {
		return fmt.Errorf("keystore %s already exists", c.keystore)
	}
	pass, err := c.pass()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveToKeystore(c.keystore, key, pass); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Saved keystore %s\nAddress: %s\n", c.keystore, key.PubKey().Address().String())
	return nil
}

func (c *cli) address() error {
	key, err := c.loadKey()
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, key.PubKey().Address().String())
	return nil
}

func (c *cli) count(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: swap-cli count <address>")
	}
	return c.printCall("swap_getCount", args[0])
}

func (c *cli) receipt(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: swap-cli receipt <hash>")
	}
	return c.printCall("swap_getReceipt", args[0])
}

func (c *cli) events(args []string) error {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	from := fs.Uint64("from", 1, "first event sequence number")
	limit := fs.Int("limit", 100, "maximum number of events")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return c.printCall("swap_listEvents", map[string]interface{}{"from": *from, "limit": *limit})
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("rpc error %d: %s (%s)", e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (c *cli) call(method string, params ...interface{}) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}
	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Post(c.endpoint, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()
	var decoded struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if decoded.Error != nil {
		return nil, decoded.Error
	}
	return decoded.Result, nil
}

func (c *cli) printCall(method string, params ...interface{}) error {
	result, err := c.call(method, params...)
	if err != nil {
		return err
	}
	return printJSON(c.stdout, result)
}

func printJSON(w io.Writer, raw json.RawMessage) error {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, pretty.String())
	return err
}
