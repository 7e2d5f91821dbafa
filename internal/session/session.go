// Package session issues and verifies customer session tokens.
//
// Tokens are HS256 JWTs carrying the customer id. The api-server issues them
// at login; the storefront verifies them and turns them into an Identity
// that is handed explicitly to checkout.
package session

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that fail verification.
var ErrInvalidToken = errors.New("invalid session token")

// Claims are the JWT claims of a customer session.
type Claims struct {
	jwt.RegisteredClaims
	CustomerID int64  `json:"cid"`
	Email      string `json:"email,omitempty"`
}

// Manager signs and verifies session tokens with a shared secret.
type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewManager creates a Manager. ttl bounds the lifetime of issued tokens.
func NewManager(secret []byte, issuer string, ttl time.Duration) *Manager {
	return &Manager{
		secret: secret,
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a token for customerID.
func (m *Manager) Issue(customerID int64, email string) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(m.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		CustomerID: customerID,
		Email:      email,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "sign token")
	}
	return token, exp, nil
}

// Verify parses token and returns its claims.
func (m *Manager) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.CustomerID <= 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Identity is the authenticated principal of a request. The zero value is
// anonymous.
type Identity struct {
	customerID int64
}

// NewIdentity returns an Identity for customerID.
func NewIdentity(customerID int64) Identity {
	return Identity{customerID: customerID}
}

// CustomerID returns the customer id and whether the identity is
// authenticated.
func (i Identity) CustomerID() (int64, bool) {
	return i.customerID, i.customerID > 0
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored in ctx, or an anonymous one.
func FromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}

// Middleware resolves a bearer token into an Identity. Requests without a
// token continue anonymously; requests with a bad token get 401.
func Middleware(m *Manager, onError func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearer(r.Header.Get("Authorization"))
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := m.Verify(raw)
			if err != nil {
				onError(w, r, err)
				return
			}
			ctx := WithIdentity(r.Context(), NewIdentity(claims.CustomerID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearer(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
