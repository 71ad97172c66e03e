package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"

	"TMIFACE/config"
	"TMIFACE/models"
)

// Auth validates the bearer token and puts the logged-in member on the
// context as "currentUser" (models.Member) plus the raw claims.
func Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("Authorization")
		raw = strings.TrimPrefix(raw, "Bearer ")
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		claims, err := ParseToken(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		var member models.Member
		if err := models.DB.First(&member, claims.UserId).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set("currentUser", member)
		c.Set("claims", *claims)
		c.Next()
	}
}

// ParseToken verifies a token string and returns its claims. Shared with
// the websocket handler, which carries the token as a query parameter.
func ParseToken(raw string) (*config.JWTClaims, error) {
	claims := &config.JWTClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return config.JWT_KEY, nil
	})
	if err != nil || !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	return claims, nil
}

// AdminCheck re-verifies the token's admin flag against the database, the
// way the app expects: a stale token answers "errorAdmin" so the client
// forces a re-login. Returns false after writing the response.
func AdminCheck(c *gin.Context) bool {
	claimsVal, ok := c.Get("claims")
	if !ok {
		c.JSON(http.StatusOK, gin.H{"status": "errorAdmin", "message": "Veuillez vous-reconnecter svp!"})
		return false
	}
	claims := claimsVal.(config.JWTClaims)

	var member models.Member
	if err := models.DB.First(&member, claims.UserId).Error; err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "errorAdmin", "message": "Veuillez vous-reconnecter svp!"})
		return false
	}
	if member.IsAdmin != claims.IsAdmin {
		c.JSON(http.StatusOK, gin.H{"status": "errorAdmin", "message": "Veuillez vous-reconnecter svp!"})
		return false
	}
	return true
}
