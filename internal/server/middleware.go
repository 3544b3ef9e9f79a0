package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ReilBleem13/HelloChat/internal/domain"
	"github.com/ReilBleem13/HelloChat/internal/utils"
)

type contextKey string

const UserIDKey contextKey = "user_id"

func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, domain.ErrUnauthorizedError.WithMessage("Please Login - No auth header"))
				return
			}

			tokenString, err := utils.ExtractToken(authHeader)
			if err != nil {
				handleError(w, err)
				return
			}

			claims, err := utils.ValidateAccessToken(tokenString, secret)
			if err != nil {
				handleError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID())
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetUserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(UserIDKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("%w: user ID not found in context", domain.ErrUnauthorizedError)
	}
	return userID, nil
}

// tokenFromRequest accepts the websocket token either as ?token= or as a
// bearer header; browsers cannot set headers on the upgrade request.
func tokenFromRequest(r *http.Request) (string, error) {
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	return utils.ExtractToken(r.Header.Get("Authorization"))
}
