package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ctxUserID = "user_id"
	ctxToken  = "token"
)

type claims struct {
	jwt.RegisteredClaims
}

// Identity resolves the student behind a request and stores it on the gin context.
// With an empty signing key the userId query parameter is trusted as-is (local development).
// Otherwise a HMAC-signed bearer token is required, taken from the Authorization header
// or the token query parameter since browsers cannot set headers on websocket upgrades.
func Identity(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if signingKey == "" {
			userID := c.Query("userId")
			if userID == "" {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing userId"})
				return
			}
			c.Set(ctxUserID, userID)
			c.Set(ctxToken, raw)
			c.Next()
			return
		}

		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bearer token required"})
			return
		}
		token, err := jwt.ParseWithClaims(raw, &claims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(signingKey), nil
		})
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "token expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}
		cl, ok := token.Claims.(*claims)
		if !ok || !token.Valid || cl.Subject == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token claims"})
			return
		}
		if issuer != "" && cl.Issuer != issuer {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token issuer"})
			return
		}
		if claimed := c.Query("userId"); claimed != "" && claimed != cl.Subject {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "userId does not match token"})
			return
		}
		c.Set(ctxUserID, cl.Subject)
		c.Set(ctxToken, raw)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return c.Query("token")
}
