// Package customer manages storefront accounts and credential checks.
package customer

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/go-faster/errors"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound           = errors.New("customer not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalid            = errors.New("invalid customer data")
)

// Customer is a registered shopper.
type Customer struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Phone        string
	Address      string
}

// Repository defines customer persistence.
type Repository interface {
	Create(ctx context.Context, c *Customer) error
	GetByEmail(ctx context.Context, email string) (*Customer, error)
}

// RegisterRequest holds sign-up input.
type RegisterRequest struct {
	Name     string
	Email    string
	Password string
	Phone    string
	Address  string
}

// Service handles registration and login checks.
type Service struct {
	repo Repository
	cost int
}

// NewService creates a customer Service hashing passwords with bcrypt cost.
// A cost of zero selects bcrypt.DefaultCost.
func NewService(repo Repository, cost int) *Service {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{repo: repo, cost: cost}
}

// Register creates a customer account.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Customer, error) {
	email := normalizeEmail(req.Email)
	switch {
	case strings.TrimSpace(req.Name) == "":
		return nil, fmt.Errorf("%w: name required", ErrInvalid)
	case req.Password == "":
		return nil, fmt.Errorf("%w: password required", ErrInvalid)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: email: %w", ErrInvalid, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}
	c := &Customer{
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: string(hash),
		Phone:        req.Phone,
		Address:      req.Address,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create customer")
	}
	return c, nil
}

// Authenticate returns the customer matching email and password.
// Unknown emails and wrong passwords both yield ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Customer, error) {
	c, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, errors.Wrap(err, "get customer")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return c, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
