package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	pricingdomain "github.com/smallbiznis/creditgate/internal/pricing/domain"
)

// PricingCatalog is the writable price catalog.
type PricingCatalog interface {
	Upsert(ctx context.Context, pricing pricingdomain.Pricing) (*pricingdomain.Pricing, error)
	List(ctx context.Context) ([]pricingdomain.Pricing, error)
}

type upsertPricingRequest struct {
	Units []pricingdomain.Unit `json:"units"`
}

func (s *Server) ListPricing(c *gin.Context) {
	schedules, err := s.pricingCatalog.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": schedules})
}

// ResolvePricing returns the schedule the credit calculator would use.
func (s *Server) ResolvePricing(c *gin.Context) {
	pricing := s.pricing.Resolve(c.Request.Context(), c.Param("provider"), c.Param("model"))
	if pricing == nil {
		AbortWithError(c, pricingdomain.ErrPricingNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": pricing})
}

func (s *Server) UpsertPricing(c *gin.Context) {
	var req upsertPricingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	pricing, err := s.pricingCatalog.Upsert(c.Request.Context(), pricingdomain.Pricing{
		Provider: c.Param("provider"),
		Model:    c.Param("model"),
		Units:    req.Units,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": pricing})
}
