package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/medbook/clinic-booking/internal/account"
)

// SessionClaims are the claims carried by a session token. Subject is
// the account id; Role selects the Patient or Doctor variant.
type SessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthMiddleware derives the calling Account from the bearer token.
// Handlers never trust a patient or doctor id from the request body;
// this is the only source of caller identity.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "missing_token", "Authorization header with a bearer token is required")
				return
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			var claims SessionClaims
			token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "invalid_token", "session token is invalid or expired")
				return
			}

			id, err := uuid.Parse(claims.Subject)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid_token", "session token subject is not a valid id")
				return
			}

			caller, ok := account.FromRole(claims.Role, id)
			if !ok {
				writeError(w, http.StatusUnauthorized, "invalid_token", "session token role is not recognised")
				return
			}

			ctx := context.WithValue(r.Context(), callerKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CallerFromContext returns the authenticated account set by
// AuthMiddleware.
func CallerFromContext(ctx context.Context) (account.Account, bool) {
	caller, ok := ctx.Value(callerKey).(account.Account)
	return caller, ok
}
