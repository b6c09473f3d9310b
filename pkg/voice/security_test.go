package voice

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const webhookSecret = "whsec_test"

func signHeader(body []byte, secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	return fmt.Sprintf("t=%d,v0=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifySignatureAcceptsValid(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"conversation_id":"c1"}`)
	header := signHeader(body, webhookSecret, now.Unix())

	assert.True(t, VerifySignature(body, header, webhookSecret, 5*time.Minute, now))
}

func TestVerifySignatureAcceptsReorderedFields(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{}`)

	mac := hmac.New(sha256.New, []byte(webhookSecret))
	fmt.Fprintf(mac, "%d.", now.Unix())
	mac.Write(body)
	header := fmt.Sprintf("v0=%s,t=%d", hex.EncodeToString(mac.Sum(nil)), now.Unix())

	assert.True(t, VerifySignature(body, header, webhookSecret, 5*time.Minute, now))
}

func TestVerifySignatureRejectsTamperedBody(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	header := signHeader([]byte(`{"a":1}`), webhookSecret, now.Unix())

	assert.False(t, VerifySignature([]byte(`{"a":2}`), header, webhookSecret, 5*time.Minute, now))
}

func TestVerifySignatureRejectsWrongSecret(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{}`)
	header := signHeader(body, "other-secret", now.Unix())

	assert.False(t, VerifySignature(body, header, webhookSecret, 5*time.Minute, now))
}

func TestVerifySignatureRejectsExpiredTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{}`)
	stale := now.Add(-6 * time.Minute).Unix()
	header := signHeader(body, webhookSecret, stale)

	assert.False(t, VerifySignature(body, header, webhookSecret, 5*time.Minute, now))
}

func TestVerifySignatureRejectsFutureTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{}`)
	future := now.Add(10 * time.Minute).Unix()
	header := signHeader(body, webhookSecret, future)

	assert.False(t, VerifySignature(body, header, webhookSecret, 5*time.Minute, now))
}

func TestVerifySignatureRejectsMalformedHeaders(t *testing.T) {
	now := time.Now()
	body := []byte(`{}`)

	for name, header := range map[string]string{
		"empty":            "",
		"no parts":         "garbage",
		"missing v0":       "t=1234567",
		"missing t":        "v0=abcdef",
		"non-numeric time": "t=yesterday,v0=abcdef",
	} {
		t.Run(name, func(t *testing.T) {
			assert.False(t, VerifySignature(body, header, webhookSecret, 5*time.Minute, now))
		})
	}
}

func TestVerifySignatureDisabledWithoutSecret(t *testing.T) {
	assert.True(t, VerifySignature([]byte(`{}`), "", "", 5*time.Minute, time.Now()))
	assert.True(t, VerifySignature([]byte(`{}`), "t=1,v0=bogus", "", 5*time.Minute, time.Now()))
}
