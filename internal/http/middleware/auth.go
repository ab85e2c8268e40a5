package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const principalKey contextKey = "principal"

// RoleAdmin is the role claim granted to clinic staff.
const RoleAdmin = "admin"

// Claims are the bearer token claims issued by the account service.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Email  string
	Role   string
	Admin  bool
}

// Authenticate verifies an HMAC-signed bearer token and stores the Principal
// on the request context. Callers whose email is in adminEmails are admins
// regardless of the role claim.
func Authenticate(secret string, adminEmails []string) func(http.Handler) http.Handler {
	admins := make(map[string]struct{}, len(adminEmails))
	for _, email := range adminEmails {
		if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
			admins[email] = struct{}{}
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeJSONError(w, http.StatusUnauthorized, "authentication disabled")
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				writeJSONError(w, http.StatusUnauthorized, "Not authorized, no token")
				return
			}
			tokenString := strings.TrimPrefix(auth, "Bearer ")
			claims := Claims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid || claims.Subject == "" {
				writeJSONError(w, http.StatusUnauthorized, "Not authorized, token failed")
				return
			}
			principal := Principal{
				UserID: claims.Subject,
				Email:  claims.Email,
				Role:   claims.Role,
			}
			_, listed := admins[strings.ToLower(claims.Email)]
			principal.Admin = strings.EqualFold(claims.Role, RoleAdmin) || listed

			ctx := WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects authenticated callers that are not admins. It must run after Authenticate.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "Not authorized, no token")
			return
		}
		if !principal.Admin {
			writeJSONError(w, http.StatusForbidden, "Not authorized as an admin")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithPrincipal stores p on ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the authenticated caller if present.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
