package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"swapledger/core"
	"swapledger/crypto"
	"swapledger/rpc"
	"swapledger/storage"
)

const testNetwork = "swap-test"

func startTestNode(t *testing.T) string {
	t.Helper()
	contract := crypto.MustAddress(crypto.ContractPrefix, bytes.Repeat([]byte{0xC0}, crypto.AddressLength))
	node, err := core.NewNode(storage.NewMemDB(), testNetwork, contract, core.WithMetrics(nil))
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	srv := httptest.NewServer(rpc.NewServer(node, rpc.ServerConfig{}).Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestSwapFlow(t *testing.T) {
	url := startTestNode(t)
	keystore := filepath.Join(t.TempDir(), "swap.keystore")
	t.Setenv(keystorePassEnv, "correct horse")
	global := []string{"--rpc", url, "--keystore=" + keystore}

	code, out, errOut := runCLI(t, append(global, "keygen")...)
	if code != 0 {
		t.Fatalf("keygen failed: %s", errOut)
	}
	if !strings.Contains(out, "Address: swp1") {
		t.Fatalf("unexpected keygen output %q", out)
	}

	code, out, errOut = runCLI(t, append(global, "address")...)
	if code != 0 {
		t.Fatalf("address failed: %s", errOut)
	}
	address := strings.TrimSpace(out)

	code, out, errOut = runCLI(t, append(global, "swap", "--amount", "1000", "--pair", "XLM-USDC")...)
	if code != 0 {
		t.Fatalf("swap failed: %s", errOut)
	}
	var receipt rpc.ReceiptResult
	if err := json.Unmarshal([]byte(out), &receipt); err != nil {
		t.Fatalf("decode receipt: %v (%s)", err, out)
	}
	if receipt.AmountOut != "120" || receipt.Count != 1 || receipt.Identity != address {
		t.Fatalf("unexpected receipt %+v", receipt)
	}

	code, out, errOut = runCLI(t, append(global, "count", address)...)
	if code != 0 {
		t.Fatalf("count failed: %s", errOut)
	}
	var count rpc.CountResult
	if err := json.Unmarshal([]byte(out), &count); err != nil || count.Count != 1 {
		t.Fatalf("unexpected count output %q (%v)", out, err)
	}

	code, out, errOut = runCLI(t, append(global, "simulate", "--identity", address, "--amount", "7", "--rate-num", "1", "--rate-den", "2")...)
	if code != 0 {
		t.Fatalf("simulate failed: %s", errOut)
	}
	var sim rpc.SimulateResult
	if err := json.Unmarshal([]byte(out), &sim); err != nil || sim.AmountOut != "3" || sim.CountAfter != 2 {
		t.Fatalf("unexpected simulate output %q (%v)", out, err)
	}

	code, _, errOut = runCLI(t, append(global, "swap", "--amount", "1", "--rate-num", "1", "--rate-den", "0")...)
	if code != 1 || !strings.Contains(errOut, "division_by_zero") {
		t.Fatalf("expected division by zero failure, got %d %q", code, errOut)
	}
}

func TestBuildSwapAuthorization(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	now := time.Unix(1_700_000_000, 0)
	info := rpc.InfoResult{Network: testNetwork, Contract: "swc1contract"}
	authz, err := buildSwapAuthorization(key, info, "100", "12", "100", 0, time.Minute, now)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if authz.Invocation.Nonce != uint64(now.UnixNano()) || authz.Invocation.Expiry != now.Add(time.Minute).Unix() {
		t.Fatalf("unexpected nonce/expiry %+v", authz.Invocation)
	}
	signer, err := authz.Signer()
	if err != nil || !signer.Equal(key.PubKey().Address()) {
		t.Fatalf("signature does not recover to key: %v", err)
	}
	if _, err := buildSwapAuthorization(key, info, "01", "1", "1", 1, 0, now); err == nil {
		t.Fatalf("expected non-canonical amount to be rejected")
	}
}

func TestUsageErrors(t *testing.T) {
	if code, _, _ := runCLI(t); code != 2 {
		t.Fatalf("expected usage exit code")
	}
	if code, _, errOut := runCLI(t, "bogus"); code != 2 || !strings.Contains(errOut, "Unknown command") {
		t.Fatalf("expected unknown command error, got %d %q", code, errOut)
	}
	if code, _, _ := runCLI(t, "--rpc"); code != 2 {
		t.Fatalf("expected missing flag value error")
	}
	if code, _, errOut := runCLI(t, "--keystore", filepath.Join(t.TempDir(), "missing"), "address"); code != 1 || !strings.Contains(errOut, "keygen") {
		t.Fatalf("expected missing keystore hint, got %q", errOut)
	}
}
