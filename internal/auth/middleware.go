package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const adminSubjectKey contextKey = "admin_subject"

// TaskKeyHeader carries the shared secret for scheduler-triggered tasks.
const TaskKeyHeader = "X-Task-Key"

// ExtractTokenFromRequest extracts a bearer token from the Authorization header.
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header is missing")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}

	return parts[1], nil
}

// AdminMiddleware verifies an HMAC-signed admin token. There is no external
// identity provider for a single-property deployment; the owner's dashboard
// signs tokens with the shared ADMIN_JWT_SECRET.
func AdminMiddleware(secret string) func(http.Handler) http.Handler {
	if secret == "" {
		panic("ADMIN_JWT_SECRET env var not set")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(rawToken, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.New("unexpected signing method")
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			sub := ""
			if claims, ok := token.Claims.(jwt.MapClaims); ok {
				sub, _ = claims["sub"].(string)
			}

			ctx := context.WithValue(r.Context(), adminSubjectKey, sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminSubject returns the authenticated admin identity, empty outside the
// admin middleware.
func AdminSubject(ctx context.Context) string {
	if sub, ok := ctx.Value(adminSubjectKey).(string); ok {
		return sub
	}
	return ""
}

// TaskKeyMiddleware guards privileged scheduler endpoints (hold expiry,
// calendar sync) with a shared secret.
func TaskKeyMiddleware(key string) func(http.Handler) http.Handler {
	if key == "" {
		panic("TASK_SHARED_KEY env var not set")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(TaskKeyHeader)
			if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
				http.Error(w, "invalid task key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
