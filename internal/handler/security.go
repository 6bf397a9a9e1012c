package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/respa-payments/internal/domain/auth"
	"github.com/xenking/respa-payments/internal/domain/order"
)

// APIKeyHeader carries the client API key.
const APIKeyHeader = "api_key"

var errUnauthorized = errors.New("unauthorized")

type principalKey struct{}

// Principal is the authenticated API client of a request.
type Principal struct {
	KeyID  string
	Viewer order.Viewer
	Scopes []string
}

// PrincipalFromContext returns the principal stored by Authenticator.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// HashAPIKey returns the hex HMAC-SHA256 of key under pepper, the form in
// which keys are stored.
func HashAPIKey(pepper []byte, key string) string {
	return hex.EncodeToString(keyMAC(pepper, key))
}

func keyMAC(pepper []byte, key string) []byte {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return mac.Sum(nil)
}

// Authenticator authenticates API requests via HMAC-SHA256 hashed API keys.
type Authenticator struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewAuthenticator creates an Authenticator with the given API key
// repository and HMAC pepper.
func NewAuthenticator(apikeys auth.Repository, pepper []byte) *Authenticator {
	return &Authenticator{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// Authenticate resolves the API key into a Principal.
func (a *Authenticator) Authenticate(ctx context.Context, key string) (Principal, error) {
	if key == "" {
		return Principal{}, errUnauthorized
	}
	hash := keyMAC(a.pepper, key)

	info, err := a.apikeys.FindByHash(ctx, hex.EncodeToString(hash))
	if err != nil {
		return Principal{}, errUnauthorized
	}

	// The row must carry exactly the hash we computed.
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
		return Principal{}, errUnauthorized
	}

	return Principal{
		KeyID: info.ID,
		Viewer: order.Viewer{
			UserID: info.UserID,
			All:    info.HasScope(auth.ScopeOrdersReadAll),
		},
		Scopes: info.Scopes,
	}, nil
}

// Middleware rejects requests without a valid API key and stores the
// Principal in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := a.Authenticate(r.Context(), r.Header.Get(APIKeyHeader))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), principalKey{}, p)
		ctx = zctx.Base(ctx, zctx.From(ctx).With(zap.String("api_key_id", p.KeyID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// HasScope reports whether the principal's key was granted scope.
func (p Principal) HasScope(scope string) bool {
	return slices.Contains(p.Scopes, scope)
}
