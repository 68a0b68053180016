package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RoleAdmin may trigger evaluations and refreshes
const RoleAdmin = "ADMIN"

const tokenTTL = 24 * time.Hour

// JWTClaims represents the JWT token claims
type JWTClaims struct {
	OwnerID uuid.UUID `json:"owner_id"`
	Role    string    `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator issues and verifies HS256 tokens
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

// NewAuthenticator creates an Authenticator. An empty secret disables
// authentication entirely (development only).
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret), now: time.Now}
}

// Enabled reports whether a secret is configured
func (a *Authenticator) Enabled() bool {
	return len(a.secret) > 0
}

// GenerateJWT generates a new token for an owner
func (a *Authenticator) GenerateJWT(ownerID uuid.UUID, role string) (string, error) {
	now := a.now()
	claims := &JWTClaims{
		OwnerID: ownerID,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Auth validates the bearer token and sets owner_id and role on the context
func (a *Authenticator) Auth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !a.Enabled() {
			c.Set("role", RoleAdmin)
			return next(c)
		}

		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Missing authentication token")
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
		}

		token, err := jwt.ParseWithClaims(parts[1], &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return a.secret, nil
		})
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
		}

		claims, ok := token.Claims.(*JWTClaims)
		if !ok || !token.Valid {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token claims")
		}

		c.Set("owner_id", claims.OwnerID)
		c.Set("role", claims.Role)

		return next(c)
	}
}

// Admin checks that the authenticated caller has the ADMIN role
func Admin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		role, ok := c.Get("role").(string)
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "Role not found in context")
		}
		if role != RoleAdmin {
			return echo.NewHTTPError(http.StatusForbidden, "Admin access required")
		}
		return next(c)
	}
}

// GetOwnerID extracts the owner id from echo context
func GetOwnerID(c echo.Context) (uuid.UUID, error) {
	ownerID, ok := c.Get("owner_id").(uuid.UUID)
	if !ok {
		return uuid.Nil, fmt.Errorf("owner_id not found in context")
	}
	return ownerID, nil
}
