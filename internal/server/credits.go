package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type setBalanceRequest struct {
	Balance *int64 `json:"balance"`
}

type topUpRequest struct {
	Amount int64 `json:"amount"`
}

// setLimitRequest clears the limit when Limit is null.
type setLimitRequest struct {
	Limit *int64 `json:"limit"`
}

func (s *Server) GetMyCredits(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	summary, err := s.credits.GetUserSummary(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) GetOrganizationCredits(c *gin.Context) {
	orgID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	balance, err := s.credits.GetBalance(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": balance})
}

func (s *Server) SetOrganizationCredits(c *gin.Context) {
	actorID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	orgID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req setBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Balance == nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	balance, err := s.credits.SetBalance(c.Request.Context(), orgID, actorID, *req.Balance)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": balance})
}

func (s *Server) TopUpOrganizationCredits(c *gin.Context) {
	actorID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	orgID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req topUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	balance, err := s.credits.TopUp(c.Request.Context(), orgID, actorID, req.Amount)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": balance})
}

func (s *Server) GetMemberQuota(c *gin.Context) {
	orgID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	userID, err := parseIDParam(c, "userId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	quota, err := s.credits.GetMemberQuota(c.Request.Context(), orgID, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": quota})
}

func (s *Server) SetMemberQuota(c *gin.Context) {
	orgID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	userID, err := parseIDParam(c, "userId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req setLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	quota, err := s.credits.SetMemberLimit(c.Request.Context(), orgID, userID, req.Limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": quota})
}

func (s *Server) ResetMemberQuota(c *gin.Context) {
	orgID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	userID, err := parseIDParam(c, "userId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	quota, err := s.credits.ResetMemberUsage(c.Request.Context(), orgID, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": quota})
}

func (s *Server) ListCreditTransactions(c *gin.Context) {
	orgID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	limit, err := parseLimit(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	txns, err := s.credits.ListTransactions(c.Request.Context(), orgID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": txns})
}

func (s *Server) ListModelUsages(c *gin.Context) {
	orgID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	limit, err := parseLimit(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	usages, err := s.credits.ListUsages(c.Request.Context(), orgID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": usages})
}
