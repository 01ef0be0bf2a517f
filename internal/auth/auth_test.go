package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwrk-planet/huddle-service/config"
	"github.com/cwrk-planet/huddle-service/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWTVerifier_HS256(t *testing.T) {
	secret := []byte("s3cret")
	now := time.Now()
	v := NewHS256Verifier(secret, "auth-service", "huddle", 5*time.Second)

	sign := func(s *Signer, at time.Time) string {
		t.Helper()
		tok, err := s.Sign(42, at)
		if err != nil {
			t.Fatalf("Sign: %v", err)
		}
		return tok
	}

	tests := []struct {
		name    string
		token   string
		want    domain.UserID
		wantErr error
	}{
		{"valid", sign(NewSigner(secret, "auth-service", "huddle", time.Minute), now), 42, nil},
		{"expired", sign(NewSigner(secret, "auth-service", "huddle", time.Minute), now.Add(-time.Hour)), 0, ErrInvalidToken},
		{"wrong secret", sign(NewSigner([]byte("other"), "auth-service", "huddle", time.Minute), now), 0, ErrInvalidToken},
		{"wrong issuer", sign(NewSigner(secret, "someone", "huddle", time.Minute), now), 0, ErrInvalidToken},
		{"wrong audience", sign(NewSigner(secret, "auth-service", "chat", time.Minute), now), 0, ErrInvalidToken},
		{"garbage", "not.a.jwt", 0, ErrInvalidToken},
		{"empty", "", 0, ErrMissingCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Authenticate(context.Background(), Credentials{Bearer: tt.token})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("user = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestJWTVerifier_RejectsNonNumericSubject(t *testing.T) {
	secret := []byte("s3cret")
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatal(err)
	}
	_, err = NewHS256Verifier(secret, "", "", 0).Authenticate(context.Background(), Credentials{Bearer: tok})
	if !errors.Is(err, ErrInvalidSubject) {
		t.Fatalf("err = %v", err)
	}
}

func TestJWTVerifier_RS256FromPEM(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "jwt.pub")
	if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}

	a, err := New(config.Auth{Mode: config.AuthModeJWT, PublicKeyPath: path, Issuer: "auth-service"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "7",
		Issuer:    "auth-service",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	if got, err := a.Authenticate(context.Background(), Credentials{Bearer: tok}); err != nil || got != 7 {
		t.Fatalf("Authenticate = %d, %v", got, err)
	}

	// HS256 токен не должен пройти RS256-проверку
	hs, _ := NewSigner([]byte("x"), "auth-service", "", time.Minute).Sign(7, time.Now())
	if _, err := a.Authenticate(context.Background(), Credentials{Bearer: hs}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("alg confusion: err = %v", err)
	}
}

func TestHeaderAuthenticator(t *testing.T) {
	a, err := New(config.Auth{Mode: config.AuthModeHeader})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		in      string
		want    domain.UserID
		wantErr error
	}{
		{"15", 15, nil},
		{" 15 ", 15, nil},
		{"", 0, ErrMissingCredentials},
		{"0", 0, ErrInvalidSubject},
		{"abc", 0, ErrInvalidSubject},
	}
	for _, tt := range tests {
		got, err := a.Authenticate(context.Background(), Credentials{UserID: tt.in})
		if !errors.Is(err, tt.wantErr) || got != tt.want {
			t.Fatalf("Authenticate(%q) = %d, %v", tt.in, got, err)
		}
	}
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":  "abc",
		"bearer  abc": "abc",
		"Basic abc":   "",
		"":            "",
	}
	for in, want := range tests {
		if got := BearerToken(in); got != want {
			t.Fatalf("BearerToken(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUserContext(t *testing.T) {
	ctx := WithUser(context.Background(), 9)
	if id, ok := UserFrom(ctx); !ok || id != 9 {
		t.Fatalf("UserFrom = %d, %v", id, ok)
	}
	if _, ok := UserFrom(context.Background()); ok {
		t.Fatal("empty context must carry no user")
	}
}
