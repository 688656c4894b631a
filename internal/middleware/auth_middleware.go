package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"notes-server/internal/service"
	"notes-server/pkg/jwt"
	"notes-server/pkg/response"
)

type contextKey string

const (
	UserIDKey contextKey = "userID"
	claimsKey contextKey = "claims"
)

type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, token string) (*jwt.Claims, error)
}

func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				if r.Header.Get("Authorization") == "" {
					response.Unauthorized(w, "Authentication credentials were not provided.")
				} else {
					response.Unauthorized(w, "Invalid authorization header format")
				}
				return
			}

			claims, err := validator.ValidateAccessToken(r.Context(), token)
			if err != nil {
				if errors.Is(err, service.ErrInvalidCredentials) {
					response.Unauthorized(w, err.Error())
					return
				}
				response.InternalError(w, "Internal server error")
				return
			}

			setLoggedUser(r.Context(), claims.UserID)
			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

func GetUserID(r *http.Request) string {
	userID, ok := r.Context().Value(UserIDKey).(string)
	if !ok {
		return ""
	}
	return userID
}

func GetClaims(r *http.Request) *jwt.Claims {
	claims, _ := r.Context().Value(claimsKey).(*jwt.Claims)
	return claims
}
