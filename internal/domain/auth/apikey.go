// Package auth holds the administrative API-key model used by back-office
// callers such as the storefront and admin tooling.
package auth

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
)

// ErrKeyNotFound is returned when no active key matches a hash.
var ErrKeyNotFound = errors.New("api key not found")

// Scopes granted to API keys.
const (
	ScopeCatalogWrite = "catalog:write"
	ScopeOrdersWrite  = "orders:write"
	ScopeOrdersRead   = "orders:read"
)

// APIKey holds the identity and permission data for a validated API key.
type APIKey struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// Allows reports whether the key carries scope.
func (k *APIKey) Allows(scope string) bool {
	return slices.Contains(k.Scopes, scope)
}

// Repository provides lookup of active API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKey, error)
}
