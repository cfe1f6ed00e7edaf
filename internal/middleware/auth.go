package middleware

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ParseAgentToken validates an agent JWT and returns the agent id and
// display name. The dashboard's auth service issues these tokens; the core
// only checks them at websocket upgrade.
func ParseAgentToken(tokenString, jwtSecret string) (agentID, name string, err error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return "", "", err
	}
	if !token.Valid {
		return "", "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", fmt.Errorf("invalid token claims")
	}

	agentID, _ = claims["sub"].(string)
	name, _ = claims["name"].(string)
	if agentID == "" {
		return "", "", fmt.Errorf("invalid token: missing subject")
	}
	return agentID, name, nil
}
