package outputs

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// SignatureHeader carries the webhook signature:
//
//	X-Alert-Signature: t=<unix>,v1=<hmac>[,v1_old=<hmac>]
//
// The signed content is "{unix_timestamp}.{payload}" using HMAC-SHA256.
const SignatureHeader = "X-Alert-Signature"

// SigningKeys holds the secret a webhook is signed with and, during rotation,
// the secret it replaced.
type SigningKeys struct {
	Current  string
	Previous string
	// PreviousExpiresAt ends the rotation window. A zero value means the
	// previous secret is not used.
	PreviousExpiresAt time.Time
}

// Sign returns the signature header value for payload.
//
// A v1_old signature is added only while now is at or before
// PreviousExpiresAt, so receivers still holding the old secret keep verifying
// until the rotation window closes.
func Sign(payload []byte, keys SigningKeys, now time.Time) (string, error) {
	if keys.Current == "" {
		return "", fmt.Errorf("webhook signature: missing signing secret")
	}

	timestamp := now.Unix()
	signedContent := fmt.Sprintf("%d.%s", timestamp, payload)

	header := fmt.Sprintf("t=%d,v1=%s", timestamp, computeHMAC(signedContent, keys.Current))

	if keys.Previous != "" && !keys.PreviousExpiresAt.IsZero() && !now.After(keys.PreviousExpiresAt) {
		header += ",v1_old=" + computeHMAC(signedContent, keys.Previous)
	}
	return header, nil
}

// VerifySignature reports whether header is a valid signature of payload
// under the current or previous secret. Receivers can use it as a reference
// implementation.
func VerifySignature(payload []byte, header string, keys SigningKeys) bool {
	parts := parseSignatureHeader(header)
	if parts.timestamp == "" || parts.v1 == "" {
		return false
	}

	signedContent := fmt.Sprintf("%s.%s", parts.timestamp, payload)

	matches := func(sig, secret string) bool {
		if sig == "" || secret == "" {
			return false
		}
		return hmac.Equal([]byte(sig), []byte(computeHMAC(signedContent, secret)))
	}

	return matches(parts.v1, keys.Current) ||
		matches(parts.v1Old, keys.Previous) ||
		matches(parts.v1, keys.Previous)
}

type signatureParts struct {
	timestamp string
	v1        string
	v1Old     string
}

// parseSignatureHeader breaks "t=<unix>,v1=<hex>[,v1_old=<hex>]" into parts.
func parseSignatureHeader(header string) signatureParts {
	var parts signatureParts
	for _, segment := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(segment, "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "t":
			parts.timestamp = strings.TrimSpace(value)
		case "v1":
			parts.v1 = strings.TrimSpace(value)
		case "v1_old":
			parts.v1Old = strings.TrimSpace(value)
		}
	}
	return parts
}

// computeHMAC returns the lowercase hex HMAC-SHA256 of content under key.
func computeHMAC(content, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(content))
	return hex.EncodeToString(mac.Sum(nil))
}
