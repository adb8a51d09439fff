// Package auth authenticates write access to the catalog API with
// HMAC-hashed API keys.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"slices"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when no active key matches a hash.
	ErrNotFound = errors.New("api key not found")
	// ErrUnauthorized is returned for missing, unknown or under-scoped keys.
	ErrUnauthorized = errors.New("unauthorized")
)

// ScopeCatalogWrite allows creating products and price tiers.
const ScopeCatalogWrite = "catalog:write"

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key grants scope.
func (i *APIKeyInfo) HasScope(scope string) bool {
	return slices.Contains(i.Scopes, scope)
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// Hash returns the hex HMAC-SHA256 of key under pepper.
func Hash(key string, pepper []byte) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticator validates raw API keys.
type Authenticator struct {
	keys   Repository
	pepper []byte
}

// NewAuthenticator creates an Authenticator over keys.
func NewAuthenticator(keys Repository, pepper []byte) *Authenticator {
	return &Authenticator{keys: keys, pepper: pepper}
}

// Authenticate resolves key and checks it grants scope.
func (a *Authenticator) Authenticate(ctx context.Context, key, scope string) (*APIKeyInfo, error) {
	if key == "" {
		return nil, ErrUnauthorized
	}

	mac := hmac.New(sha256.New, a.pepper)
	mac.Write([]byte(key))
	hash := mac.Sum(nil)

	info, err := a.keys.FindByHash(ctx, hex.EncodeToString(hash))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, errors.Wrap(err, "lookup api key")
	}

	// The stored hash could differ from the computed one if the repository
	// returned a stale row.
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
		return nil, ErrUnauthorized
	}
	if scope != "" && !info.HasScope(scope) {
		return nil, ErrUnauthorized
	}
	return info, nil
}
