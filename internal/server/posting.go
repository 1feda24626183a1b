package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	entitlementdomain "github.com/smallbiznis/bookpost/internal/entitlement/domain"
	obscontext "github.com/smallbiznis/bookpost/internal/observability/context"
	postingdomain "github.com/smallbiznis/bookpost/internal/posting/domain"
)

type submitPostingsRequest struct {
	Items []postingdomain.Item `json:"items"`
}

// SubmitPostings always answers 200 with per-item results once the batch is admitted.
func (s *Server) SubmitPostings(c *gin.Context) {
	var req submitPostingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	c.Set(obscontext.GinKeyPostingItems, len(req.Items))

	resp, err := s.postingSvc.Submit(c.Request.Context(), postingdomain.Request{
		TenantID: tenantFromContext(c),
		Items:    req.Items,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetUsage(c *gin.Context) {
	status, err := s.gate.Status(c.Request.Context(), tenantFromContext(c))
	if err != nil {
		if !errors.Is(err, entitlementdomain.ErrInvalidTenant) {
			err = fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}
