package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewRenamesCoreKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{Service: "swapd", Env: "test"})
	logger.Info("swap committed", "identity", "swp1xyz")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	for _, key := range []string{"timestamp", "severity", "message", "service", "env", "identity"} {
		if _, ok := line[key]; !ok {
			t.Fatalf("missing key %q in %v", key, line)
		}
	}
	if line["severity"] != "INFO" || line["message"] != "swap committed" || line["service"] != "swapd" {
		t.Fatalf("unexpected line %v", line)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{Service: "swapd", Level: "warn"})
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info line should be filtered at warn level")
	}
	if ParseLevel("bogus") != slog.LevelInfo {
		t.Fatalf("unknown levels should default to info")
	}
}

func TestMaskField(t *testing.T) {
	if attr := MaskField("signature", "0xdeadbeef"); attr.Value.String() != RedactedValue {
		t.Fatalf("signature should be redacted, got %s", attr.Value)
	}
	if attr := MaskField("identity", "swp1abc"); attr.Value.String() != "swp1abc" {
		t.Fatalf("identity is not secret, got %s", attr.Value)
	}
	if attr := MaskField("Signature", " "); attr.Value.String() != "" {
		t.Fatalf("missing values log as empty, got %q", attr.Value)
	}
}

func TestHandlerRedactsSecretKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{Service: "swap-cli"})
	logger.Warn("unlock failed",
		slog.String("passphrase", "hunter2"),
		slog.String("Private_Key", "0xabc"),
		slog.String("signature", ""),
		slog.String("identity", "swp1abc"))

	if bytes.Contains(buf.Bytes(), []byte("hunter2")) || bytes.Contains(buf.Bytes(), []byte("0xabc")) {
		t.Fatalf("secret leaked: %s", buf.String())
	}
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["passphrase"] != RedactedValue || line["Private_Key"] != RedactedValue {
		t.Fatalf("expected redacted secrets, got %v", line)
	}
	if line["signature"] != "" || line["identity"] != "swp1abc" {
		t.Fatalf("unexpected non-secret values %v", line)
	}
}
