/*
Package auth resolves who is acting on a request.

PURPOSE:
  A bearer token names the owner (subject) and the acting user. Middleware
  places the resulting Actor on the request context, where handlers scope
  reads to the owner and the ledger engine stamps CreatedBy.

TOKENS:
  HS256 JWTs signed with TILL_JWT_SECRET. Issuer and expiry are checked;
  a token without a subject is rejected with ErrMissingOwner.

SEE ALSO:
  - api/middleware.go: authenticate
  - config/config.go: JWTConfig
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/warp/channel-ledger/config"
)

var signingMethod = jwt.SigningMethodHS256

var ErrMissingOwner = errors.New("token has no owner")

// Actor is the authenticated principal: the owner whose channels are in
// scope and the user acting on their behalf.
type Actor struct {
	ID      string
	OwnerID string
}

type Claims struct {
	Actor string `json:"actor,omitempty"`
	jwt.RegisteredClaims
}

type ctxKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// ActorFrom returns the actor on ctx, or the zero Actor.
func ActorFrom(ctx context.Context) Actor {
	if ctx == nil {
		return Actor{}
	}
	a, _ := ctx.Value(ctxKey{}).(Actor)
	return a
}

// Mint issues a signed token for the actor.
func Mint(cfg config.JWTConfig, now time.Time, a Actor) (string, error) {
	if cfg.Secret == "" {
		return "", fmt.Errorf("jwt secret is required")
	}
	if cfg.TTL <= 0 {
		return "", fmt.Errorf("jwt ttl must be positive")
	}
	if strings.TrimSpace(a.OwnerID) == "" {
		return "", ErrMissingOwner
	}

	claims := Claims{
		Actor: a.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.OwnerID,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// Parse validates the token and returns the actor it names. A token without
// an actor claim acts as its owner.
func Parse(cfg config.JWTConfig, token string) (Actor, error) {
	if cfg.Secret == "" {
		return Actor{}, fmt.Errorf("jwt secret is required")
	}

	claims := &Claims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{signingMethod.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		return Actor{}, err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Actor{}, ErrMissingOwner
	}

	a := Actor{ID: claims.Actor, OwnerID: claims.Subject}
	if a.ID == "" {
		a.ID = a.OwnerID
	}
	return a, nil
}
