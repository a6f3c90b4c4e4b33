package passphrase

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func newTestSource(env map[string]string, terminal bool, secret string, readErr error) *Source {
	s := NewSource("SWAP_TEST_PASS")
	s.lookupEnv = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	s.isTerminal = func() bool { return terminal }
	reads := 0
	s.readSecret = func() ([]byte, error) {
		reads++
		if reads > 1 {
			return nil, errors.New("prompted twice")
		}
		return []byte(secret), readErr
	}
	s.out = &bytes.Buffer{}
	return s
}

func TestSourcePrefersEnvironment(t *testing.T) {
	s := newTestSource(map[string]string{"SWAP_TEST_PASS": "hunter2"}, true, "ignored", nil)
	got, err := s.Get()
	if err != nil || got != "hunter2" {
		t.Fatalf("expected env passphrase, got %q (%v)", got, err)
	}
}

func TestSourceRejectsEmptyEnvironment(t *testing.T) {
	s := newTestSource(map[string]string{"SWAP_TEST_PASS": "  "}, true, "x", nil)
	if _, err := s.Get(); err == nil || !strings.Contains(err.Error(), "set but empty") {
		t.Fatalf("expected empty env error, got %v", err)
	}
}

func TestSourceRequiresTerminal(t *testing.T) {
	s := newTestSource(nil, false, "", nil)
	if _, err := s.Get(); err == nil || !strings.Contains(err.Error(), "SWAP_TEST_PASS") {
		t.Fatalf("expected terminal error naming env var, got %v", err)
	}
}

func TestSourcePromptsOnce(t *testing.T) {
	s := newTestSource(nil, true, "secret", nil)
	for i := 0; i < 2; i++ {
		got, err := s.Get()
		if err != nil || got != "secret" {
			t.Fatalf("call %d: got %q (%v)", i, got, err)
		}
	}
}

func TestSourceRejectsBlankPrompt(t *testing.T) {
	s := newTestSource(nil, true, "   ", nil)
	if _, err := s.Get(); err == nil {
		t.Fatalf("expected blank passphrase error")
	}
}
