// Package webhook validates and normalizes inbound provider webhooks for
// asynchronous batch workflows, feeding each batch item through the record
// pipeline as if it were an intercepted call.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// SecretPrefix marks base64-encoded shared secrets.
const SecretPrefix = "whsec_"

// signaturePrefix is required on every signature value.
const signaturePrefix = "v1,"

// Result carries the verification outcome as a boolean plus message so the
// HTTP layer can choose its rejection status.
type Result struct {
	OK      bool
	Message string
}

// headerAny returns the first non-empty value among the accepted header
// spellings. Providers disagree on the prefix ("webhook-" vs "openai-").
func headerAny(h http.Header, names ...string) string {
	for _, name := range names {
		if v := h.Get(name); v != "" {
			return v
		}
	}
	return ""
}

// Verify checks the webhook signature against the shared secret. The signed
// content is "<id>.<timestamp>.<raw body>", HMAC-SHA256, base64, compared in
// constant time against the "v1,"-prefixed signature header.
//
// A missing secret or missing signature headers fail closed in production
// and pass with a warning elsewhere, so unsigned webhooks work in local
// testing.
func Verify(h http.Header, body []byte, secret string, production bool, logger *zap.Logger) Result {
	if logger == nil {
		logger = zap.NewNop()
	}

	signature := headerAny(h, "webhook-signature", "openai-signature")
	timestamp := headerAny(h, "webhook-timestamp", "openai-timestamp")
	id := headerAny(h, "webhook-id", "openai-id")

	if secret == "" {
		if production {
			return Result{OK: false, Message: "webhook secret not configured"}
		}
		logger.Warn("webhook secret not configured, skipping signature verification")
		return Result{OK: true}
	}
	if signature == "" || timestamp == "" || id == "" {
		if production {
			return Result{OK: false, Message: "missing webhook signature headers"}
		}
		logger.Warn("missing webhook signature headers, accepting unsigned webhook")
		return Result{OK: true}
	}

	secretBytes, err := decodeSecret(secret)
	if err != nil {
		return Result{OK: false, Message: "invalid webhook secret encoding"}
	}

	mac := hmac.New(sha256.New, secretBytes)
	mac.Write([]byte(id))
	mac.Write([]byte("."))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	// the header may carry several space-separated signatures
	for _, candidate := range strings.Fields(signature) {
		provided, ok := strings.CutPrefix(candidate, signaturePrefix)
		if !ok {
			continue
		}
		if hmac.Equal([]byte(provided), []byte(expected)) {
			return Result{OK: true}
		}
	}
	return Result{OK: false, Message: "webhook signature mismatch"}
}

// decodeSecret returns the raw secret bytes, base64-decoding "whsec_"
// prefixed values first.
func decodeSecret(secret string) ([]byte, error) {
	if encoded, ok := strings.CutPrefix(secret, SecretPrefix); ok {
		return base64.StdEncoding.DecodeString(encoded)
	}
	return []byte(secret), nil
}
