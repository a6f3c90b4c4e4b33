package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces secret material in log output.
const RedactedValue = "[REDACTED]"

// Keys whose values never reach a log sink. Signatures are included so that a
// rejected invocation cannot be replayed from logs.
var secretKeys = map[string]struct{}{
	"signature":     {},
	"passphrase":    {},
	"private_key":   {},
	"keystore_pass": {},
	"authorization": {},
}

// IsSecret reports whether values logged under key are masked.
func IsSecret(key string) bool {
	_, ok := secretKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskField builds an attribute for a secret value. Only presence survives: a
// missing value logs as empty, anything else as RedactedValue.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" {
		return slog.String(key, "")
	}
	if !IsSecret(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// redactAttr is the handler's last line of defence for callers that log a
// secret key with a plain slog attribute.
func redactAttr(attr slog.Attr) slog.Attr {
	if !IsSecret(attr.Key) {
		return attr
	}
	if attr.Value.Kind() == slog.KindString && strings.TrimSpace(attr.Value.String()) == "" {
		return attr
	}
	return slog.String(attr.Key, RedactedValue)
}
