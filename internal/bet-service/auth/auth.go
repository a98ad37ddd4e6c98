package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/radieske/live-bet-api/internal/shared/apperr"
)

// User é a identidade resolvida a partir do token
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// UserLookup resolve o subject do token para um usuário; retorna apperr.NotFound quando não existe
type UserLookup interface {
	FindByUsername(ctx context.Context, username string) (User, error)
}

// Claims do token; o subject é o claim "username"
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Authenticator valida tokens HS256 e resolve o usuário
type Authenticator struct {
	secret []byte
	users  UserLookup
	now    func() time.Time
}

func NewAuthenticator(secret string, users UserLookup) *Authenticator {
	return &Authenticator{secret: []byte(secret), users: users, now: time.Now}
}

// Authenticate aceita o token puro ou no formato "Bearer <token>"
func (a *Authenticator) Authenticate(ctx context.Context, token string) (User, error) {
	token = strings.TrimSpace(token)
	if scheme, rest, ok := strings.Cut(token, " "); ok && strings.EqualFold(scheme, "Bearer") {
		token = strings.TrimSpace(rest)
	}
	if token == "" {
		return User{}, apperr.New(apperr.InvalidCredential, "missing credential")
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return User{}, apperr.Wrap(apperr.ExpiredCredential, "session expired", err)
		}
		return User{}, apperr.Wrap(apperr.InvalidCredential, "invalid credential", err)
	}

	subject := claims.Username
	if subject == "" {
		subject = claims.Subject
	}
	if subject == "" {
		return User{}, apperr.New(apperr.InvalidCredential, "credential has no subject")
	}

	u, err := a.users.FindByUsername(ctx, subject)
	if err != nil {
		if errors.Is(err, apperr.NotFound) {
			return User{}, apperr.Wrap(apperr.UnknownUser, "unknown user", err)
		}
		return User{}, err
	}
	return u, nil
}

// Issue assina um token para o usuário com validade ttl
func (a *Authenticator) Issue(u User, ttl time.Duration) (string, error) {
	now := a.now()
	claims := &Claims{
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}
