package auth

import (
	"context"
	"crypto/rsa"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/cwrk-planet/huddle-service/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the access-token claims issued by the auth service; sub is the user id.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTVerifier checks access tokens signed with one fixed algorithm.
type JWTVerifier struct {
	key      any
	alg      string
	issuer   string
	audience string
	skew     time.Duration
}

func NewHS256Verifier(secret []byte, issuer, audience string, clockSkew time.Duration) *JWTVerifier {
	return &JWTVerifier{key: secret, alg: jwt.SigningMethodHS256.Alg(), issuer: issuer, audience: audience, skew: clockSkew}
}

func NewRS256Verifier(pub *rsa.PublicKey, issuer, audience string, clockSkew time.Duration) *JWTVerifier {
	return &JWTVerifier{key: pub, alg: jwt.SigningMethodRS256.Alg(), issuer: issuer, audience: audience, skew: clockSkew}
}

func (v *JWTVerifier) Authenticate(_ context.Context, c Credentials) (domain.UserID, error) {
	if c.Bearer == "" {
		return 0, ErrMissingCredentials
	}
	claims, err := v.Parse(c.Bearer)
	if err != nil {
		return 0, err
	}
	return parseUserID(claims.Subject)
}

func (v *JWTVerifier) Parse(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{v.alg}),
		jwt.WithLeeway(v.skew),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) { return v.key, nil }, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Signer issues HS256 access tokens; used by the peer command and tests.
type Signer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
}

func NewSigner(secret []byte, issuer, audience string, ttl time.Duration) *Signer {
	return &Signer{secret: secret, issuer: issuer, audience: audience, ttl: ttl}
}

func (s *Signer) Sign(user domain.UserID, now time.Time) (string, error) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(int64(user), 10),
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func LoadRSAPublicKeyFromPEM(path string) (*rsa.PublicKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return jwt.ParseRSAPublicKeyFromPEM(b)
}
