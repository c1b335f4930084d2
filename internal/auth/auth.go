// Package auth implements the gateway's two authentication schemes: a
// timestamp-bound HMAC over a canonicalized JSON body for the control
// endpoints, and a raw-body HMAC for signed webhook deliveries.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
)

// TimestampWindow bounds how far a request's X-EDI-Timestamp header may
// drift from the server's clock before it is rejected as expired.
const TimestampWindow = 300 * time.Second

// CanonicalizeJSON re-serializes an arbitrary JSON object with sorted keys
// and no extraneous whitespace, the same canonical form the signer must use
// to compute a matching HMAC.
func CanonicalizeJSON(payload any) (string, error) {
	normalized, err := normalize(payload)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(normalized)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// normalize round-trips payload through encoding/json so that map keys are
// sorted (Go's encoder already sorts map[string]any keys, but this also
// canonicalizes nested structures passed in as raw bytes or structs).
func normalize(payload any) (any, error) {
	switch v := payload.(type) {
	case []byte:
		var out any
		if err := json.Unmarshal(v, &out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		var out any
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
}

// VerifyHMAC checks a timestamp-bound HMAC-SHA256 signature over the
// canonical form of body. secret must be non-empty; callers are responsible
// for treating an empty configured secret as "authentication disabled"
// before calling this.
func VerifyHMAC(secret, timestamp, signature string, body []byte) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp")
	}
	now := time.Now().Unix()
	drift := now - ts
	if drift < 0 {
		drift = -drift
	}
	if time.Duration(drift)*time.Second > TimestampWindow {
		return fmt.Errorf("timestamp expired")
	}

	canonical, err := CanonicalizeJSON(body)
	if err != nil {
		return fmt.Errorf("invalid payload")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d:%s", ts, canonical)))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

// VerifyWebhookSignature checks an "sha256=<hex>" signature computed over
// the raw request bytes, the scheme used by GitHub-style webhook deliveries.
// The raw bytes must be used verbatim; re-serializing the parsed JSON would
// not reproduce a byte-identical signature.
func VerifyWebhookSignature(secret string, rawBody []byte, signature string) error {
	const prefix = "sha256="
	if !strings.HasPrefix(signature, prefix) {
		return fmt.Errorf("malformed signature header")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	expected := prefix + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

// argon2 parameters for secret fingerprinting only — never used to verify a
// signature, only to produce a stable, irreversible value safe to place in
// structured logs next to an auth failure.
const (
	fingerprintTime    = 1
	fingerprintMemory  = 16 * 1024
	fingerprintThreads = 1
	fingerprintKeyLen  = 8
)

// SecretFingerprint derives a short, non-reversible fingerprint of a loaded
// secret for inclusion in startup/diagnostic logs, so operators can confirm
// which secret is active without the secret itself ever being logged.
func SecretFingerprint(secret string) string {
	if secret == "" {
		return ""
	}
	salt := []byte("edi-dispatch-secret-fingerprint")
	sum := argon2.IDKey([]byte(secret), salt, fingerprintTime, fingerprintMemory, fingerprintThreads, fingerprintKeyLen)
	return hex.EncodeToString(sum)
}
