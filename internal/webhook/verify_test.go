package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testSecret = "whsec_dGVzdC1zZWNyZXQtYnl0ZXM="

// sign produces the provider-side signature for id.ts.body.
func sign(t *testing.T, secret, id, ts string, body []byte) string {
	t.Helper()
	raw, err := decodeSecret(secret)
	if err != nil {
		t.Fatalf("decodeSecret: %v", err)
	}
	mac := hmac.New(sha256.New, raw)
	mac.Write([]byte(id + "." + ts + "."))
	mac.Write(body)
	return "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func signedHeaders(t *testing.T, secret string, body []byte) http.Header {
	t.Helper()
	h := http.Header{}
	h.Set("webhook-id", "msg_123")
	h.Set("webhook-timestamp", "1700000000")
	h.Set("webhook-signature", sign(t, secret, "msg_123", "1700000000", body))
	return h
}

func TestVerify_ValidSignature(t *testing.T) {
	body := []byte(`{"type":"batch.completed"}`)
	res := Verify(signedHeaders(t, testSecret, body), body, testSecret, true, nil)
	assert.True(t, res.OK, res.Message)
}

func TestVerify_PlainSecret(t *testing.T) {
	body := []byte(`{}`)
	secret := "plain-text-secret"
	res := Verify(signedHeaders(t, secret, body), body, secret, true, nil)
	assert.True(t, res.OK, res.Message)
}

func TestVerify_TamperedBody(t *testing.T) {
	body := []byte(`{"type":"batch.completed"}`)
	h := signedHeaders(t, testSecret, body)
	res := Verify(h, []byte(`{"type":"batch.completed","extra":1}`), testSecret, true, nil)
	assert.False(t, res.OK)
	assert.Equal(t, "webhook signature mismatch", res.Message)
}

func TestVerify_WrongSecret(t *testing.T) {
	body := []byte(`{}`)
	h := signedHeaders(t, testSecret, body)
	res := Verify(h, body, "whsec_b3RoZXItc2VjcmV0", true, nil)
	assert.False(t, res.OK)
}

func TestVerify_OpenAIHeaderSpelling(t *testing.T) {
	body := []byte(`{}`)
	h := http.Header{}
	h.Set("openai-id", "msg_9")
	h.Set("openai-timestamp", "1700000001")
	h.Set("openai-signature", sign(t, testSecret, "msg_9", "1700000001", body))
	res := Verify(h, body, testSecret, true, nil)
	assert.True(t, res.OK, res.Message)
}

func TestVerify_MultipleSignatures(t *testing.T) {
	body := []byte(`{}`)
	h := http.Header{}
	h.Set("webhook-id", "msg_1")
	h.Set("webhook-timestamp", "1700000002")
	good := sign(t, testSecret, "msg_1", "1700000002", body)
	h.Set("webhook-signature", "v1,aW52YWxpZA== "+good)
	res := Verify(h, body, testSecret, true, nil)
	assert.True(t, res.OK, res.Message)
}

func TestVerify_MissingPrefixRejected(t *testing.T) {
	body := []byte(`{}`)
	h := signedHeaders(t, testSecret, body)
	// strip the v1, prefix: the bare digest must not match
	h.Set("webhook-signature", h.Get("webhook-signature")[3:])
	res := Verify(h, body, testSecret, true, nil)
	assert.False(t, res.OK)
}

func TestVerify_MissingHeaders(t *testing.T) {
	body := []byte(`{}`)

	res := Verify(http.Header{}, body, testSecret, true, nil)
	assert.False(t, res.OK)

	// development fails open with a warning
	res = Verify(http.Header{}, body, testSecret, false, nil)
	assert.True(t, res.OK)
}

func TestVerify_NoSecretConfigured(t *testing.T) {
	body := []byte(`{}`)
	h := signedHeaders(t, testSecret, body)

	res := Verify(h, body, "", true, nil)
	assert.False(t, res.OK)

	res = Verify(h, body, "", false, nil)
	assert.True(t, res.OK)
}

func TestVerify_BadSecretEncoding(t *testing.T) {
	body := []byte(`{}`)
	h := signedHeaders(t, testSecret, body)
	res := Verify(h, body, "whsec_%%%not-base64%%%", true, nil)
	assert.False(t, res.OK)
}
