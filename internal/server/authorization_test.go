package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	rbacdomain "github.com/smallbiznis/creditgate/internal/rbac/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGuardedEngine(s *Server, guard gin.HandlerFunc, pre ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())
	handlers := append(pre, guard, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"roles": rolesFromContext(c)})
	})
	engine.GET("/guarded", handlers...)
	return engine
}

func TestRequireRolesRejectsAnonymousWithoutLookup(t *testing.T) {
	stub := &rbacStub{roles: []rbacdomain.Role{{Name: rbacdomain.RoleAdmin, IsActive: true}}}
	s := &Server{rbac: stub}
	engine := newGuardedEngine(s, s.RequireRoles(rbacdomain.RoleAdmin))

	rec := doRequest(t, engine, http.MethodGet, "/guarded", "", nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decodeError(t, rec).Type)
	assert.Zero(t, stub.roleCalls)
}

func TestRequireRolesClaimsFastPath(t *testing.T) {
	stub := &rbacStub{}
	s := &Server{rbac: stub}
	engine := newGuardedEngine(s,
		s.RequireRoles(" Admin "),
		Authenticate([]byte(testSecret), testIssuer),
	)

	rec := doRequest(t, engine, http.MethodGet, "/guarded", issueTestToken(t, 7, "ADMIN"), nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, stub.roleCalls)
}

func TestRequireRolesFallsBackToStoredRoles(t *testing.T) {
	stub := &rbacStub{roles: []rbacdomain.Role{
		{Name: rbacdomain.RoleManager, IsActive: true},
	}}
	s := &Server{rbac: stub}
	engine := newGuardedEngine(s,
		s.RequireRoles(rbacdomain.RoleAdmin, rbacdomain.RoleManager),
		Authenticate([]byte(testSecret), testIssuer),
	)

	rec := doRequest(t, engine, http.MethodGet, "/guarded", issueTestToken(t, 7, rbacdomain.RoleMember), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, stub.roleCalls)
	assert.JSONEq(t, `{"roles":["member","organization_manager"]}`, rec.Body.String())
}

func TestRequireRolesDeniesWhenStoredRolesMiss(t *testing.T) {
	stub := &rbacStub{roles: []rbacdomain.Role{{Name: rbacdomain.RoleMember, IsActive: true}}}
	s := &Server{rbac: stub}
	engine := newGuardedEngine(s,
		s.RequireRoles(rbacdomain.RoleAdmin),
		Authenticate([]byte(testSecret), testIssuer),
	)

	rec := doRequest(t, engine, http.MethodGet, "/guarded", issueTestToken(t, 7), nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 1, stub.roleCalls)
}

func TestRequireRolesFailsClosed(t *testing.T) {
	t.Run("lookup error", func(t *testing.T) {
		stub := &rbacStub{err: errors.New("db down")}
		s := &Server{rbac: stub}
		engine := newGuardedEngine(s,
			s.RequireRoles(rbacdomain.RoleAdmin),
			Authenticate([]byte(testSecret), testIssuer),
		)

		rec := doRequest(t, engine, http.MethodGet, "/guarded", issueTestToken(t, 7), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("no resolver", func(t *testing.T) {
		s := &Server{}
		engine := newGuardedEngine(s,
			s.RequireRoles(rbacdomain.RoleAdmin),
			Authenticate([]byte(testSecret), testIssuer),
		)

		rec := doRequest(t, engine, http.MethodGet, "/guarded", issueTestToken(t, 7), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("no required roles", func(t *testing.T) {
		stub := &rbacStub{}
		s := &Server{rbac: stub}
		engine := newGuardedEngine(s,
			s.RequireRoles("  "),
			Authenticate([]byte(testSecret), testIssuer),
		)

		rec := doRequest(t, engine, http.MethodGet, "/guarded", issueTestToken(t, 7, rbacdomain.RoleAdmin), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Zero(t, stub.roleCalls)
	})
}

func TestRequirePermission(t *testing.T) {
	stub := &rbacStub{permissions: map[string]bool{rbacdomain.PermissionCreditManage: true}}
	s := &Server{rbac: stub}

	allowed := newGuardedEngine(s,
		s.RequirePermission("Organization.Credit.Manage"),
		Authenticate([]byte(testSecret), testIssuer),
	)
	rec := doRequest(t, allowed, http.MethodGet, "/guarded", issueTestToken(t, 7), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	denied := newGuardedEngine(s,
		s.RequirePermission(rbacdomain.PermissionPricingWrite),
		Authenticate([]byte(testSecret), testIssuer),
	)
	rec = doRequest(t, denied, http.MethodGet, "/guarded", issueTestToken(t, 7, rbacdomain.RoleAdmin), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 2, stub.permissionCalls)

	anonymous := newGuardedEngine(s, s.RequirePermission(rbacdomain.PermissionCreditManage))
	rec = doRequest(t, anonymous, http.MethodGet, "/guarded", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 2, stub.permissionCalls)
}

func TestAuthenticate(t *testing.T) {
	s := &Server{rbac: &rbacStub{}}
	engine := newGuardedEngine(s,
		func(c *gin.Context) { c.Next() },
		Authenticate([]byte(testSecret), testIssuer),
	)

	sign := func(method jwt.SigningMethod, key any, claims jwt.RegisteredClaims) string {
		token, err := jwt.NewWithClaims(method, &Claims{RegisteredClaims: claims}).SignedString(key)
		require.NoError(t, err)
		return token
	}
	wrongSecret, err := IssueToken([]byte("other"), testIssuer, 7, nil, time.Minute)
	require.NoError(t, err)
	wrongIssuer, err := IssueToken([]byte(testSecret), "someone-else", 7, nil, time.Minute)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{name: "valid", header: "Bearer " + issueTestToken(t, snowflake.ID(7)), want: http.StatusOK},
		{name: "lowercase scheme", header: "bearer " + issueTestToken(t, snowflake.ID(7)), want: http.StatusOK},
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer abc.def.ghi", want: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + wrongSecret, want: http.StatusUnauthorized},
		{name: "wrong issuer", header: "Bearer " + wrongIssuer, want: http.StatusUnauthorized},
		{
			name: "expired",
			header: "Bearer " + sign(jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{
				Subject:   "7",
				Issuer:    testIssuer,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			}),
			want: http.StatusUnauthorized,
		},
		{
			name: "none algorithm",
			header: "Bearer " + sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.RegisteredClaims{
				Subject: "7",
				Issuer:  testIssuer,
			}),
			want: http.StatusUnauthorized,
		},
		{
			name: "bad subject",
			header: "Bearer " + sign(jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{
				Subject: "not-a-number",
				Issuer:  testIssuer,
			}),
			want: http.StatusUnauthorized,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			engine.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestAuthenticateRejectsEverythingWithoutSecret(t *testing.T) {
	s := &Server{rbac: &rbacStub{}}
	engine := newGuardedEngine(s,
		func(c *gin.Context) { c.Next() },
		Authenticate(nil, ""),
	)

	rec := doRequest(t, engine, http.MethodGet, "/guarded", issueTestToken(t, 7), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
