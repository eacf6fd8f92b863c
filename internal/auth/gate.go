// Package auth is the authorization gate: it turns inbound credentials into
// a verified identity. The reservation and lifecycle services only ever see
// the resolved model.Identity, never the token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/event-reservation/internal/apperr"
	"github.com/iliyamo/event-reservation/internal/model"
)

// Gate resolves request credentials to an identity or fails with
// apperr.ErrUnauthenticated.
type Gate interface {
	Resolve(ctx context.Context, credentials string) (model.Identity, error)
}

// JWTGate verifies HS256 bearer tokens signed with a shared secret.
type JWTGate struct {
	secret []byte
}

// NewJWTGate returns a gate verifying tokens signed with secret.
func NewJWTGate(secret string) *JWTGate {
	return &JWTGate{secret: []byte(secret)}
}

// Resolve parses the raw token (with or without the "Bearer " prefix),
// validates signature and expiry, and returns the identity named by the
// subject claim.
func (g *JWTGate) Resolve(_ context.Context, credentials string) (model.Identity, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(credentials), "Bearer "))
	if raw == "" {
		return model.Identity{}, apperr.With(apperr.ErrUnauthenticated, fmt.Errorf("missing bearer token"))
	}

	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return g.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err == nil && !tok.Valid {
		err = errors.New("token is not valid")
	}
	if err != nil {
		return model.Identity{}, apperr.With(apperr.ErrUnauthenticated, fmt.Errorf("invalid token: %w", err))
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return model.Identity{}, apperr.With(apperr.ErrUnauthenticated, fmt.Errorf("invalid claims"))
	}
	id := subject(claims["sub"])
	if id == "" {
		return model.Identity{}, apperr.With(apperr.ErrUnauthenticated, fmt.Errorf("token has no subject"))
	}
	name, _ := claims["name"].(string)
	email, _ := claims["email"].(string)
	return model.Identity{ID: id, Name: name, Email: email}, nil
}

// subject accepts string subjects and the numeric subjects issued by older
// token services.
func subject(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return ""
}
