package auth

import (
	"context"
	"slices"
)

// Scopes granted to API keys.
const (
	// ScopeOrdersWrite allows creating orders.
	ScopeOrdersWrite = "orders:write"
	// ScopeOrdersReadAll allows reading orders of every user.
	ScopeOrdersReadAll = "orders:read_all"
)

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	UserID  string
	Scopes  []string
}

// HasScope reports whether the key was granted scope.
func (i *APIKeyInfo) HasScope(scope string) bool {
	return slices.Contains(i.Scopes, scope)
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
