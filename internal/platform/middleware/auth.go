package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"civreg/internal/authz"
	id "civreg/pkg/domain"
	platformstrings "civreg/pkg/platform/strings"
)

type actorKey struct{}

// ActorFromContext returns the authenticated actor, if any.
func ActorFromContext(ctx context.Context) (authz.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(authz.Actor)
	return actor, ok
}

// WithActor injects an actor into the context. Tests and internal callers.
func WithActor(ctx context.Context, actor authz.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// tokenClaims is the JWT payload issued by the staff identity provider.
// Capabilities arrive as strings; unknown ones are dropped.
type tokenClaims struct {
	jwt.RegisteredClaims
	Kind         string   `json:"kind"`
	Capabilities []string `json:"capabilities"`
}

// RequireAuth validates the Bearer token and resolves it into an authz.Actor.
// Requests without a valid token are rejected before reaching handlers.
func RequireAuth(signingKey []byte, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				unauthorized(w, "missing or invalid Authorization header")
				return
			}

			actor, err := resolveActor(token, signingKey)
			if err != nil {
				logger.WarnContext(r.Context(), "rejected token", "error", err.Error())
				unauthorized(w, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

func resolveActor(token string, signingKey []byte) (authz.Actor, error) {
	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return signingKey, nil
	})
	if err != nil {
		return authz.Actor{}, fmt.Errorf("parse token: %w", err)
	}
	if !parsed.Valid {
		return authz.Actor{}, fmt.Errorf("token is not valid")
	}

	actorID, err := id.ParseActorID(claims.Subject)
	if err != nil {
		return authz.Actor{}, fmt.Errorf("token subject: %w", err)
	}

	kind := authz.ActorKind(claims.Kind)
	switch kind {
	case authz.ActorCitizen, authz.ActorOfficer, authz.ActorSystem:
	default:
		return authz.Actor{}, fmt.Errorf("unknown actor kind %q", claims.Kind)
	}

	rawCaps := platformstrings.DedupeAndTrimLower(claims.Capabilities)
	caps := make([]authz.Capability, 0, len(rawCaps))
	for _, raw := range rawCaps {
		if c, ok := authz.ParseCapability(raw); ok {
			caps = append(caps, c)
		}
	}
	return authz.NewActor(actorID, kind, caps...), nil
}

func unauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprintf(w, `{"error":"unauthorized","error_description":%q}`, description)
}
