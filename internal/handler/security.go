package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/mercado/internal/domain/auth"
)

// APIKeyHeader carries the back-office API key.
const APIKeyHeader = "api_key"

var errUnauthorized = errors.New("unauthorized")

// SecurityHandler authenticates back-office requests via HMAC-SHA256 hashed
// API keys.
type SecurityHandler struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurityHandler creates a SecurityHandler with the given API key
// repository and HMAC pepper.
func NewSecurityHandler(apikeys auth.Repository, pepper []byte) *SecurityHandler {
	return &SecurityHandler{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// HashKey returns the hex HMAC-SHA256 of key under pepper, the form stored in
// api_keys.key_hash.
func HashKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticate resolves a raw API key.
func (s *SecurityHandler) Authenticate(ctx context.Context, key string) (*auth.APIKey, error) {
	if key == "" {
		return nil, errUnauthorized
	}
	hash := HashKey(s.pepper, key)

	info, err := s.apikeys.FindByHash(ctx, hash)
	if err != nil {
		if !errors.Is(err, auth.ErrKeyNotFound) {
			zctx.From(ctx).Warn("API key lookup failed", zap.Error(err))
		}
		return nil, errUnauthorized
	}

	// The repository matched on the hash; compare again in constant time in
	// case it returned a different row.
	if subtle.ConstantTimeCompare([]byte(hash), []byte(info.KeyHash)) != 1 {
		return nil, errUnauthorized
	}
	return info, nil
}

type apiKeyCtx struct{}

// Identify resolves the API key header, when present, before routing. A
// valid key is stored in the request context for Require and Authenticated.
// Unknown keys pass through unmarked and are rejected by Require.
func (s *SecurityHandler) Identify() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(APIKeyHeader)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			key, err := s.Authenticate(r.Context(), raw)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), apiKeyCtx{}, key)))
		})
	}
}

// Authenticated reports whether Identify accepted the request's API key.
func Authenticated(r *http.Request) bool {
	_, ok := r.Context().Value(apiKeyCtx{}).(*auth.APIKey)
	return ok
}

// Require rejects requests without a valid key carrying scope: 401 for a
// missing or unknown key, 403 for a key lacking the scope.
func (s *SecurityHandler) Require(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key, ok := ctx.Value(apiKeyCtx{}).(*auth.APIKey)
			if !ok {
				var err error
				if key, err = s.Authenticate(ctx, r.Header.Get(APIKeyHeader)); err != nil {
					writeMessage(w, http.StatusUnauthorized, "unauthorized")
					return
				}
			}
			if !key.Allows(scope) {
				writeMessage(w, http.StatusForbidden, "forbidden")
				return
			}
			lg := zctx.From(ctx).With(zap.String("api_key", key.Name))
			next.ServeHTTP(w, r.WithContext(zctx.Base(ctx, lg)))
		})
	}
}
