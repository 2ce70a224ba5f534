package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	obscontext "github.com/smallbiznis/creditgate/internal/observability/context"
	rbacdomain "github.com/smallbiznis/creditgate/internal/rbac/domain"
)

const (
	contextUserIDKey = "user_id"
	contextRolesKey  = "roles"

	actorTypeUser = "user"
)

var errInvalidToken = errors.New("invalid_token")

// Claims is the bearer token payload. Subject carries the user id.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for userID with the given role claims.
func IssueToken(secret []byte, issuer string, userID snowflake.ID, roles []string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errInvalidToken
	}
	now := time.Now()
	claims := &Claims{
		Roles: rbacdomain.NormalizeRoleNames(roles),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID.String(),
			Issuer:   strings.TrimSpace(issuer),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func parseToken(raw string, secret []byte, issuer string) (*Claims, error) {
	if len(secret) == 0 {
		return nil, errInvalidToken
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer = strings.TrimSpace(issuer); issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, opts...)
	if err != nil {
		return nil, errInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errInvalidToken
	}
	return claims, nil
}

// Authenticate verifies the bearer token and stores the user id and role
// claims on the request.
func Authenticate(secret []byte, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		scheme, raw, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		claims, err := parseToken(strings.TrimSpace(raw), secret, issuer)
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		userID, err := snowflake.ParseString(strings.TrimSpace(claims.Subject))
		if err != nil || userID == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextUserIDKey, userID)
		c.Set(contextRolesKey, rbacdomain.NormalizeRoleNames(claims.Roles))
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), actorTypeUser, userID.String()))
		c.Next()
	}
}

func userIDFromContext(c *gin.Context) (snowflake.ID, bool) {
	value, ok := c.Get(contextUserIDKey)
	if !ok {
		return 0, false
	}
	userID, ok := value.(snowflake.ID)
	if !ok || userID == 0 {
		return 0, false
	}
	return userID, true
}

func rolesFromContext(c *gin.Context) []string {
	value, ok := c.Get(contextRolesKey)
	if !ok {
		return nil
	}
	roles, _ := value.([]string)
	return roles
}
