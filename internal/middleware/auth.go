package middleware

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const ResellerContextKey contextKey = "reseller"

// Claims identify a reseller logged into the dashboard.
type Claims struct {
	ResellerID int    `json:"reseller_id"`
	Email      string `json:"email"`
	jwt.RegisteredClaims
}

var ErrMissingBearer = errors.New("missing or invalid Authorization header")

var bearerPattern = regexp.MustCompile(`(?i)^Bearer\s+(.+)$`)

// ExtractBearerToken pulls the credential out of an
// "Authorization: Bearer <token>" header. The scheme is case-insensitive.
func ExtractBearerToken(header string) (string, error) {
	m := bearerPattern.FindStringSubmatch(strings.TrimSpace(header))
	if m == nil {
		return "", ErrMissingBearer
	}
	token := strings.TrimSpace(m[1])
	if token == "" {
		return "", ErrMissingBearer
	}
	return token, nil
}

func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := ExtractBearerToken(r.Header.Get("Authorization"))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Bearer token required")
				return
			}

			token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			claims, ok := token.Claims.(*Claims)
			if !ok || claims.ResellerID == 0 {
				writeError(w, http.StatusUnauthorized, "Invalid token claims")
				return
			}

			ctx := context.WithValue(r.Context(), ResellerContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetResellerFromContext(r *http.Request) *Claims {
	claims, ok := r.Context().Value(ResellerContextKey).(*Claims)
	if !ok {
		return nil
	}
	return claims
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"success":false,"error":"` + message + `"}`))
}
