package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/creditgate/internal/config"
	creditdomain "github.com/smallbiznis/creditgate/internal/credit/domain"
	generationdomain "github.com/smallbiznis/creditgate/internal/generation/domain"
	rbacdomain "github.com/smallbiznis/creditgate/internal/rbac/domain"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "test-secret"
	testIssuer = "creditgate-test"
)

type rbacStub struct {
	rbacdomain.Service

	roles       []rbacdomain.Role
	permissions map[string]bool
	err         error

	roleCalls       int
	permissionCalls int
}

func (s *rbacStub) GetUserRoles(_ context.Context, _ snowflake.ID) ([]rbacdomain.Role, error) {
	s.roleCalls++
	return s.roles, s.err
}

func (s *rbacStub) HasPermission(_ context.Context, _ snowflake.ID, code string) (bool, error) {
	s.permissionCalls++
	if s.err != nil {
		return false, s.err
	}
	return s.permissions[code], nil
}

type creditStub struct {
	creditdomain.Service

	summary *creditdomain.UserSummary
	err     error
}

func (s *creditStub) GetUserSummary(_ context.Context, _ snowflake.ID) (*creditdomain.UserSummary, error) {
	return s.summary, s.err
}

type generationStub struct {
	generationdomain.Service

	text  *generationdomain.TextResponse
	task  *generationdomain.Task
	err   error
	calls int
}

func (s *generationStub) GenerateText(_ context.Context, _ snowflake.ID, _ generationdomain.TextRequest) (*generationdomain.TextResponse, error) {
	s.calls++
	return s.text, s.err
}

func (s *generationStub) SubmitImage(_ context.Context, _ snowflake.ID, _ generationdomain.AssetRequest) (*generationdomain.Task, error) {
	s.calls++
	return s.task, s.err
}

func newTestServer(t *testing.T, s *Server) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())
	s.engine = engine
	s.cfg = config.Config{AuthJWTSecret: testSecret, AuthJWTIssuer: testIssuer}
	s.registerAPIRoutes()
	s.registerAdminRoutes()
	return s
}

func issueTestToken(t *testing.T, userID snowflake.ID, roles ...string) string {
	t.Helper()
	token, err := IssueToken([]byte(testSecret), testIssuer, userID, roles, time.Minute)
	require.NoError(t, err)
	return token
}

func doRequest(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}
