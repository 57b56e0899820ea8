package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"github.com/hyperreflector/signal-server/models"
	"github.com/hyperreflector/signal-server/responses"
	"github.com/hyperreflector/signal-server/utils"
)

// ServerAuth guards the internal HTTP surface. Callers must present an
// HS256 bearer token signed with the shared server secret.
func ServerAuth(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := r.Header.Get("Authorization")
			tokenStr = strings.TrimPrefix(tokenStr, "Bearer ")

			keyFunc := func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrInvalidKey
				}
				return key, nil
			}

			token, err := jwt.ParseWithClaims(tokenStr, &models.ServiceClaims{}, keyFunc)
			if err != nil || !token.Valid {
				utils.HandleError(w, responses.UnauthorizedError{Msg: "Invalid or expired service token."})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
