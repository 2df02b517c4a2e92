package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/pitsense/pitsense/internal/auth"
	"github.com/pitsense/pitsense/internal/errors"
	"github.com/pitsense/pitsense/internal/models"
)

type contextKey string

const claimsKey contextKey = "claims"

// requireAuth verifies the bearer token and stashes the claims in the
// request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			respondError(w, errors.Ef(errors.KindUnauthorized, "api.requireAuth", "missing bearer token"))
			return
		}
		claims, err := s.tokens.Verify(token)
		if err != nil {
			respondError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireOperator additionally enforces an operator-scoped role.
func (s *Server) requireOperator(next http.Handler) http.Handler {
	return s.requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFrom(r)
		if claims == nil || !models.OperatorRole(claims.Role) {
			respondError(w, errors.Ef(errors.KindForbidden, "api.requireOperator", "operator role required"))
			return
		}
		next.ServeHTTP(w, r)
	}))
}

func claimsFrom(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(claimsKey).(*auth.Claims)
	return claims
}

// actorID returns the acting user id for audit rows.
func actorID(r *http.Request) *int64 {
	claims := claimsFrom(r)
	if claims == nil {
		return nil
	}
	id := claims.UserID
	return &id
}
