// Package auth issues and validates the HS256 bearer tokens that protect the
// screening API.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingSecret is returned when no signing secret is configured.
	ErrMissingSecret = errors.New("jwt secret is required")
	// ErrInvalidToken is returned for any token that fails validation.
	ErrInvalidToken = errors.New("invalid token")
)

// Authenticator signs and verifies client tokens.
type Authenticator struct {
	secret []byte
	issuer string
	nowFn  func() time.Time
}

// New returns an Authenticator for secret. issuer may be empty.
func New(secret, issuer string) (*Authenticator, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Authenticator{secret: []byte(secret), issuer: issuer, nowFn: time.Now}, nil
}

// Issue signs a token for client valid for ttl.
func (a *Authenticator) Issue(client string, ttl time.Duration) (string, error) {
	now := a.nowFn()
	claims := jwt.MapClaims{
		"sub": client,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if a.issuer != "" {
		claims["iss"] = a.issuer
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Validate verifies tokenString and returns its subject.
func (a *Authenticator) Validate(tokenString string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.nowFn),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", errors.Join(ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.Join(ErrInvalidToken, errors.New("'sub' claim missing or not a string"))
	}
	return sub, nil
}
