package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mlee/checkline-backend/internal/authz"
	"github.com/mlee/checkline-backend/internal/errors"
	"github.com/mlee/checkline-backend/pkg/util"
)

// Context keys for device identity
const (
	DeviceKeyKey  = "device_key"
	StoreIDKey    = "store_id"
	LocationIDKey = "location_id"
	RoleKey       = "role"
)

// Roles a device token may carry. A register sees its own location; a
// manager sees every location of its store.
const (
	RoleRegister = "register"
	RoleManager  = "manager"
)

type AuthMiddleware struct {
	jwtSecret string
}

func NewAuthMiddleware(jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{
		jwtSecret: jwtSecret,
	}
}

// Authenticate validates the device token (required)
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		log := GetLoggerFromContext(c)

		var token string

		// Try to get token from Authorization header first
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				log.Warn("Invalid authorization header format", map[string]interface{}{
					"path": c.Request.URL.Path,
				})
				errors.RespondWithError(c, http.StatusUnauthorized, errors.AuthTokenInvalid, "Invalid authorization header")
				c.Abort()
				return
			}
			token = parts[1]
		} else {
			// If no Authorization header, try the query parameter (for WebSocket)
			token = c.Query("token")
			if token == "" {
				log.Warn("Missing authorization header", map[string]interface{}{
					"path": c.Request.URL.Path,
				})
				errors.Unauthorized(c, "Authentication required")
				c.Abort()
				return
			}
		}

		claims, err := util.ValidateToken(token, m.jwtSecret)
		if err != nil {
			log.Warn("Token validation failed", map[string]interface{}{
				"path":  c.Request.URL.Path,
				"error": err.Error(),
			})

			if err == util.ErrExpiredToken {
				errors.RespondWithError(c, http.StatusUnauthorized, errors.AuthTokenExpired, "Token expired")
			} else {
				errors.RespondWithError(c, http.StatusUnauthorized, errors.AuthTokenInvalid, "Invalid token")
			}
			c.Abort()
			return
		}

		c.Set(DeviceKeyKey, claims.DeviceKey)
		c.Set(StoreIDKey, claims.StoreID)
		c.Set(LocationIDKey, claims.LocationID)
		c.Set(RoleKey, claims.Role)

		log.Debug("Device authenticated successfully", map[string]interface{}{
			"device_key":  claims.DeviceKey,
			"store_id":    claims.StoreID,
			"location_id": claims.LocationID,
			"role":        claims.Role,
		})

		c.Next()
	}
}

// RequireRole checks that the device token carries one of the given roles
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := GetLoggerFromContext(c)

		roleValue, exists := c.Get(RoleKey)
		if !exists {
			log.Warn("Role information not found in context", map[string]interface{}{
				"path": c.Request.URL.Path,
			})
			errors.RespondWithError(c, http.StatusForbidden, errors.AuthzRoleNotAllowed, "Role information not found")
			c.Abort()
			return
		}

		role := roleValue.(string)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}

		log.Warn("Insufficient permissions", map[string]interface{}{
			"role":           role,
			"required_roles": roles,
			"path":           c.Request.URL.Path,
		})
		errors.Forbidden(c, "Access denied")
		c.Abort()
	}
}

// GetDeviceKey extracts the device key from context
func GetDeviceKey(c *gin.Context) (string, bool) {
	value, exists := c.Get(DeviceKeyKey)
	if !exists {
		return "", false
	}
	key, ok := value.(string)
	return key, ok
}

// GetScope derives the caller's visibility scope from its token claims.
// Managers see the whole store; every other role is pinned to the token's
// location. This scope feeds both read handlers and the event feed.
func GetScope(c *gin.Context) (authz.Scope, bool) {
	storeValue, exists := c.Get(StoreIDKey)
	if !exists {
		return authz.Scope{}, false
	}
	storeID, ok := storeValue.(uint)
	if !ok {
		return authz.Scope{}, false
	}

	scope := authz.Scope{StoreID: storeID}

	role, _ := c.Get(RoleKey)
	if role == RoleManager {
		return scope, true
	}

	locationValue, exists := c.Get(LocationIDKey)
	if !exists {
		return authz.Scope{}, false
	}
	locationID, ok := locationValue.(uint)
	if !ok {
		return authz.Scope{}, false
	}
	scope.LocationID = &locationID
	return scope, true
}
