package voice

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// VerifySignature checks a webhook signature header of the form
// "t=<unix>,v0=<hex>". The signed message is "{timestamp}.{body}" under
// HMAC-SHA256 with the shared secret. An empty secret disables verification
// entirely. now is injected so expiry is testable.
func VerifySignature(body []byte, header, secret string, tolerance time.Duration, now time.Time) bool {
	if secret == "" {
		return true
	}
	if header == "" {
		return false
	}

	timestamp, signature := parseSignatureHeader(header)
	if timestamp == "" || signature == "" {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	drift := now.Unix() - ts
	if drift < 0 {
		drift = -drift
	}
	if drift > int64(tolerance/time.Second) {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// parseSignatureHeader splits "t=...,v0=..." into its parts, tolerating
// extra fields and arbitrary order.
func parseSignatureHeader(header string) (timestamp, signature string) {
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "t":
			timestamp = strings.TrimSpace(value)
		case "v0":
			signature = strings.TrimSpace(value)
		}
	}
	return timestamp, signature
}
