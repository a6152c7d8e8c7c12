package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"crm/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Gin context keys set by RequirePermission.
const (
	ContextUserID = "userID"
	ContextRole   = "userRole"
	ContextOrgID  = "orgID"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims are the identity fields read from an access token.
type Claims struct {
	UserID         uuid.UUID
	Role           string
	OrganizationID uuid.UUID
}

// ParseToken validates an HMAC-signed token and extracts its claims.
// Tokens carry "sub" (user id), "role" and "org" (organization id).
func ParseToken(secret []byte, tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	role, _ := claims["role"].(string)
	if role == "" {
		return nil, fmt.Errorf("%w: role not found", ErrInvalidToken)
	}
	out := &Claims{UserID: userID, Role: role}
	if org, ok := claims["org"].(string); ok {
		out.OrganizationID, _ = uuid.Parse(org)
	}
	return out, nil
}

// IssueToken signs claims with secret. Used by tooling and tests; the
// production issuer is the external identity provider.
func IssueToken(secret []byte, c Claims, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  c.UserID.String(),
		"role": c.Role,
		"org":  c.OrganizationID.String(),
		"exp":  time.Now().Add(ttl).Unix(),
	})
	return token.SignedString(secret)
}

// PermissionSource resolves a role name to its permission codes.
type PermissionSource interface {
	GetPermissionsByRoleName(ctx context.Context, roleName string) ([]string, error)
}

// permCacheEntry stores cached permission codes for a role with TTL
type permCacheEntry struct {
	codes     []string
	expiresAt time.Time
}

// Auth validates access tokens and checks role permissions.
type Auth struct {
	secret       []byte
	perms        PermissionSource
	overrideRole string
	cacheTTL     time.Duration
	cache        sync.Map // roleName -> permCacheEntry
}

func NewAuth(secret []byte, perms PermissionSource, overrideRole string) *Auth {
	return &Auth{
		secret:       secret,
		perms:        perms,
		overrideRole: overrideRole,
		cacheTTL:     5 * time.Minute,
	}
}

// Secret exposes the signing key for the websocket handshake.
func (a *Auth) Secret() []byte {
	return a.secret
}

func tokenFromRequest(c *gin.Context) (string, error) {
	if tokenString, err := c.Cookie("access_token"); err == nil && tokenString != "" {
		return tokenString, nil
	}
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", errors.New("Authorization is missing")
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("Invalid authorization format. Expected 'Bearer <token>'")
	}
	return parts[1], nil
}

// RequirePermission validates the token and requires every listed
// permission code. The override role always passes.
func (a *Auth) RequirePermission(requiredPerms ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := tokenFromRequest(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, err.Error()))
			return
		}
		claims, err := ParseToken(a.secret, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token"))
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextRole, claims.Role)
		c.Set(ContextOrgID, claims.OrganizationID)

		if claims.Role == a.overrideRole {
			c.Next()
			return
		}

		userPerms, err := a.permissionsForRole(c.Request.Context(), claims.Role)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to verify permissions"))
			return
		}

		permSet := make(map[string]bool, len(userPerms))
		for _, p := range userPerms {
			permSet[p] = true
		}
		for _, required := range requiredPerms {
			if !permSet[required] {
				c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: missing permission '"+required+"'"))
				return
			}
		}

		c.Next()
	}
}

// permissionsForRole returns cached or freshly loaded permission codes.
func (a *Auth) permissionsForRole(ctx context.Context, roleName string) ([]string, error) {
	if entry, ok := a.cache.Load(roleName); ok {
		cached := entry.(permCacheEntry)
		if time.Now().Before(cached.expiresAt) {
			return cached.codes, nil
		}
	}

	codes, err := a.perms.GetPermissionsByRoleName(ctx, roleName)
	if err != nil {
		return nil, err
	}

	a.cache.Store(roleName, permCacheEntry{
		codes:     codes,
		expiresAt: time.Now().Add(a.cacheTTL),
	})
	return codes, nil
}

// ClearPermissionCache removes cached permissions for a role, or for all
// roles when roleName is empty.
func (a *Auth) ClearPermissionCache(roleName string) {
	if roleName != "" {
		a.cache.Delete(roleName)
		return
	}
	a.cache.Range(func(key, _ interface{}) bool {
		a.cache.Delete(key)
		return true
	})
}

// CurrentUserID returns the authenticated user id set by RequirePermission.
func CurrentUserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok && id != uuid.Nil
}
