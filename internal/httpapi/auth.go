package httpapi

import (
	"context"
	"net/http"
	"strings"

	"crab.casa/activities/internal/apierr"
)

// principal is the authenticated caller extracted from the Authorization
// header (spec §6.1: "Authorization: Bearer <secret>:<userId>[:flag]...").
type principal struct {
	UserID string
	Admin  bool
}

type principalKey struct{}

// authenticate parses and validates the Bearer token, rejecting a secret
// that doesn't match sharedSecret.
func authenticate(r *http.Request, sharedSecret string) (principal, error) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return principal{}, apierr.New(apierr.CodeUnauthorized)
	}
	parts := strings.Split(strings.TrimPrefix(header, prefix), ":")
	if len(parts) < 2 || parts[0] != sharedSecret || parts[1] == "" {
		return principal{}, apierr.New(apierr.CodeUnauthorized)
	}
	p := principal{UserID: parts[1]}
	for _, flag := range parts[2:] {
		if flag == "admin" {
			p.Admin = true
		}
	}
	return p, nil
}

// withAuth is middleware that authenticates every request under it and
// stashes the principal in the request context; handlers retrieve it with
// principalFrom.
func withAuth(sharedSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := authenticate(r, sharedSecret)
			if err != nil {
				writeError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), principalKey{}, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func principalFrom(r *http.Request) principal {
	p, _ := r.Context().Value(principalKey{}).(principal)
	return p
}

// authorizeAs enforces the "target userId must match the authenticated
// user unless admin" rule shared by join/leave/ready.
func authorizeAs(p principal, targetUserID string) error {
	if p.Admin || p.UserID == targetUserID {
		return nil
	}
	return apierr.New(apierr.CodeForbidden)
}
