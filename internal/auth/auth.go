// Package auth turns request credentials into a user id.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cwrk-planet/huddle-service/config"
	"github.com/cwrk-planet/huddle-service/internal/domain"
)

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidSubject     = errors.New("invalid token subject")
)

// Credentials are collected by the transport: a bearer token from the
// Authorization header or grpc metadata, and the raw X-User-ID value.
type Credentials struct {
	Bearer string
	UserID string
}

type Authenticator interface {
	Authenticate(ctx context.Context, c Credentials) (domain.UserID, error)
}

// New builds the authenticator selected by cfg.Mode.
func New(cfg config.Auth) (Authenticator, error) {
	switch cfg.Mode {
	case config.AuthModeHeader:
		return HeaderAuthenticator{}, nil
	case config.AuthModeJWT, "":
		if cfg.PublicKeyPath != "" {
			pub, err := LoadRSAPublicKeyFromPEM(cfg.PublicKeyPath)
			if err != nil {
				return nil, fmt.Errorf("load jwt public key: %w", err)
			}
			return NewRS256Verifier(pub, cfg.Issuer, cfg.Audience, cfg.ClockSkew), nil
		}
		return NewHS256Verifier([]byte(cfg.Secret), cfg.Issuer, cfg.Audience, cfg.ClockSkew), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}

// HeaderAuthenticator trusts X-User-ID. Dev only.
type HeaderAuthenticator struct{}

func (HeaderAuthenticator) Authenticate(_ context.Context, c Credentials) (domain.UserID, error) {
	if strings.TrimSpace(c.UserID) == "" {
		return 0, ErrMissingCredentials
	}
	return parseUserID(c.UserID)
}

// BearerToken strips the "Bearer " prefix; "" when the header has another scheme.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func parseUserID(s string) (domain.UserID, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidSubject
	}
	return domain.UserID(id), nil
}

type ctxKey int

const ctxKeyUser ctxKey = iota

func WithUser(ctx context.Context, id domain.UserID) context.Context {
	return context.WithValue(ctx, ctxKeyUser, id)
}

func UserFrom(ctx context.Context) (domain.UserID, bool) {
	id, ok := ctx.Value(ctxKeyUser).(domain.UserID)
	return id, ok
}
