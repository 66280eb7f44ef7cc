// Package auth generates and verifies API keys for the HTTP API.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

const (
	servicePrefix = "teester"
	prefixLength  = 8
	secretBytes   = 24
)

// ErrInvalidKeyFormat is returned when a key does not have the
// teester_<prefix>_<secret> shape.
var ErrInvalidKeyFormat = errors.New("invalid API key format")

const prefixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Key is a freshly generated API key. Display is shown to the user once;
// only Prefix and Hash are stored.
type Key struct {
	Display string
	Prefix  string
	Hash    []byte
}

// Generate creates a new random API key.
func Generate() (Key, error) {
	raw := make([]byte, prefixLength)
	if _, err := rand.Read(raw); err != nil {
		return Key{}, err
	}
	for i := range raw {
		raw[i] = prefixAlphabet[int(raw[i])%len(prefixAlphabet)]
	}
	prefix := string(raw)

	secretRaw := make([]byte, secretBytes)
	if _, err := rand.Read(secretRaw); err != nil {
		return Key{}, err
	}
	secret := hex.EncodeToString(secretRaw)

	return Key{
		Display: servicePrefix + "_" + prefix + "_" + secret,
		Prefix:  prefix,
		Hash:    HashSecret(secret),
	}, nil
}

// HashSecret returns the stored form of a key secret.
func HashSecret(secret string) []byte {
	h := sha256.Sum256([]byte(secret))
	return h[:]
}

// Verify reports whether display is a well-formed key whose secret hashes
// to storedHash.
func Verify(display string, storedHash []byte) bool {
	_, secret, err := Parse(display)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(HashSecret(secret), storedHash) == 1
}

// Parse splits a display key into its lookup prefix and secret.
func Parse(display string) (prefix, secret string, err error) {
	rest, ok := strings.CutPrefix(display, servicePrefix+"_")
	if !ok {
		return "", "", ErrInvalidKeyFormat
	}
	prefix, secret, ok = strings.Cut(rest, "_")
	if !ok || len(prefix) != prefixLength || secret == "" {
		return "", "", ErrInvalidKeyFormat
	}
	for _, c := range prefix {
		if !strings.ContainsRune(prefixAlphabet, c) {
			return "", "", ErrInvalidKeyFormat
		}
	}
	return prefix, secret, nil
}
