package application

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	sessionAudience   = "hrms-session"
	challengeAudience = "hrms-2fa"
	challengeTTL      = 5 * time.Minute
	tokenIssuer       = "hrms"
)

// TokenIssuer signs and parses HS256 tokens for sessions and two-factor challenges.
type TokenIssuer struct {
	secret []byte
	now    func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer. The secret must not be empty.
func NewTokenIssuer(secret string, now func() time.Time) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("token secret is empty")
	}
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{secret: []byte(secret), now: now}, nil
}

// IssueSession signs a session token whose jti is the session id.
func (t *TokenIssuer) IssueSession(userID, sessionID string, expiresAt time.Time) (string, error) {
	return t.sign(jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   userID,
		ID:        sessionID,
		Audience:  jwt.ClaimStrings{sessionAudience},
		IssuedAt:  jwt.NewNumericDate(t.now()),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})
}

// ParseSession validates a session token and returns its user and session ids.
func (t *TokenIssuer) ParseSession(token string) (userID, sessionID string, err error) {
	claims, err := t.parse(token, sessionAudience)
	if err != nil {
		return "", "", err
	}
	if claims.ID == "" {
		return "", "", ErrUnauthenticated
	}
	return claims.Subject, claims.ID, nil
}

// IssueChallenge signs a short lived token proving the password step succeeded.
func (t *TokenIssuer) IssueChallenge(userID string) (string, time.Time, error) {
	now := t.now()
	expiresAt := now.Add(challengeTTL)
	token, err := t.sign(jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   userID,
		Audience:  jwt.ClaimStrings{challengeAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})
	return token, expiresAt, err
}

// ParseChallenge validates a two-factor challenge token and returns the user id.
func (t *TokenIssuer) ParseChallenge(token string) (string, error) {
	claims, err := t.parse(token, challengeAudience)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (t *TokenIssuer) sign(claims jwt.RegisteredClaims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (t *TokenIssuer) parse(token, audience string) (*jwt.RegisteredClaims, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return nil, ErrUnauthenticated
	}
	return claims, nil
}
