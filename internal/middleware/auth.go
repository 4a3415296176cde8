package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/nexauth/server/internal/auth"
	"github.com/nexauth/server/internal/model"
	"github.com/nexauth/server/internal/repo"
)

type contextKey string

const accountKey contextKey = "account"

// AuthMiddleware validates access tokens, loads the account from the store,
// and attaches it to the request context.
func AuthMiddleware(jwtService *auth.JWTService, accounts repo.AccountRepo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondWithError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondWithError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				respondWithError(w, http.StatusUnauthorized, "missing token")
				return
			}

			claims, err := jwtService.VerifyToken(tokenString)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			acct, err := accounts.GetByID(r.Context(), claims.AccountID)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "account not found")
				return
			}
			if !acct.IsActive {
				respondWithError(w, http.StatusUnauthorized, "account is inactive")
				return
			}

			ctx := context.WithValue(r.Context(), accountKey, &acct)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAccount returns the authenticated account from the context.
func GetAccount(ctx context.Context) (*model.Account, bool) {
	acct, ok := ctx.Value(accountKey).(*model.Account)
	return acct, ok
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
