package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/zenazn/goji/web"
)

// GenerateJWT returns a token for the user signed with the configured key.
func (s *Server) GenerateJWT(user string) (string, error) {
	if s.config.SecretKey == "" {
		return "", fmt.Errorf("no secret_key in [server] configuration")
	}
	token := jwt.New(jwt.SigningMethodHS256)
	claims := token.Claims.(jwt.MapClaims)
	claims["user"] = user
	tokenString, err := token.SignedString([]byte(s.config.SecretKey))
	if err != nil {
		return "", fmt.Errorf("error with JWT signing: %v", err)
	}
	return tokenString, nil
}

// isAuthorized is middleware that validates a bearer JWT and sets the
// c.Env["user"] field to the authenticated user.
func (s *Server) isAuthorized(c *web.C, h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		reqToken := r.Header.Get("Authorization")
		if reqToken == "" {
			httpError(w, r, http.StatusUnauthorized, "JWT required via Authorization in request header")
			return
		}
		splitToken := strings.Split(reqToken, "Bearer")
		if len(splitToken) != 2 {
			httpError(w, r, http.StatusUnauthorized, "bearer not in proper format")
			return
		}
		token, err := jwt.Parse(strings.TrimSpace(splitToken[1]), func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("error signing method: %v", token.Header["alg"])
			}
			return []byte(s.config.SecretKey), nil
		})
		if err != nil {
			httpError(w, r, http.StatusUnauthorized, "error parsing JWT: %v", err)
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			httpError(w, r, http.StatusUnauthorized, "failed authorization")
			return
		}
		user, ok := claims["user"].(string)
		if !ok {
			httpError(w, r, http.StatusUnauthorized, "user %v is not a simple string", claims["user"])
			return
		}
		if s.authorized != nil {
			if _, found := s.authorized[user]; !found {
				httpError(w, r, http.StatusForbidden, "user %q is not authorized", user)
				return
			}
		}
		if c.Env == nil {
			c.Env = make(map[interface{}]interface{})
		}
		c.Env["user"] = user
		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}
