// Package sign seals small JSON payloads into signed envelopes of the form
//
//	{"payload":{...},"signature":"<hex HMAC-SHA256>"}
//
// The signature covers the exact payload bytes carried in the envelope, which
// are the canonical serialization produced by [Canonical]: compact JSON,
// struct field order, no HTML escaping.
package sign

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformed means the envelope is not decodable JSON.
	ErrMalformed = errors.New("malformed envelope")
	// ErrStructure means a required envelope or payload member is missing.
	ErrStructure = errors.New("incomplete envelope")
	// ErrSignatureMismatch means the signature does not match the payload.
	ErrSignatureMismatch = errors.New("signature mismatch")
	// ErrNoKey means the signing key is empty.
	ErrNoKey = errors.New("signing key not configured")
)

var method = jwt.SigningMethodHS256

type envelope struct {
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

// Canonical returns the compact JSON encoding of v without HTML escaping.
func Canonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Signature returns the hex HMAC-SHA256 of data under key.
func Signature(key, data []byte) (string, error) {
	if len(key) == 0 {
		return "", ErrNoKey
	}
	sig, err := method.Sign(string(data), key)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sig), nil
}

// Seal serializes payload canonically, signs it and returns the envelope
// JSON together with the hex signature.
func Seal(key []byte, payload any) ([]byte, string, error) {
	body, err := Canonical(payload)
	if err != nil {
		return nil, "", err
	}
	sig, err := Signature(key, body)
	if err != nil {
		return nil, "", err
	}
	out, err := Canonical(envelope{Payload: body, Signature: sig})
	if err != nil {
		return nil, "", err
	}
	return out, sig, nil
}

// Open verifies the envelope under key and decodes its payload into out.
// It returns the hex signature so callers can key replay registries on it.
func Open(key, data []byte, out any) (string, error) {
	if len(key) == 0 {
		return "", ErrNoKey
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", ErrMalformed
	}
	if len(env.Payload) == 0 || env.Signature == "" {
		return "", ErrStructure
	}
	if env.Payload[0] != '{' {
		return "", ErrStructure
	}

	sig, err := hex.DecodeString(env.Signature)
	if err != nil {
		return "", ErrSignatureMismatch
	}
	// SigningMethodHMAC.Verify compares with hmac.Equal.
	if err := method.Verify(string(env.Payload), sig, key); err != nil {
		return "", ErrSignatureMismatch
	}

	if err := json.Unmarshal(env.Payload, out); err != nil {
		return "", ErrMalformed
	}
	return env.Signature, nil
}
