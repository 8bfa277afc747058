package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parsalearn/enrollpay/internal/app/service/enrollment"
	"github.com/parsalearn/enrollpay/internal/app/service/sweeper"
	"github.com/parsalearn/enrollpay/pkg/response"
)

// ApiListEnrollments implements the paginated admin listing with filters.
func ApiListEnrollments(svc *enrollment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req enrollment.ScanEnrollmentsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.ScanEnrollments(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

type decisionRequest struct {
	Decision enrollment.Decision `json:"decision" binding:"required"`
	Note     string              `json:"note"`
}

// ApiDecideEnrollment applies an operator decision to a manual payment.
func ApiDecideEnrollment(svc *enrollment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req decisionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		operator := c.GetString("user_id")
		err := svc.Decide(c.Request.Context(), c.Param("id"), req.Decision, req.Note, operator)
		if err != nil {
			switch {
			case errors.Is(err, enrollment.ErrNotFound):
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, err.Error()))
			case errors.Is(err, enrollment.ErrInvalidDecision):
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			default:
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			}
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

// ApiRunSweep triggers one reconciliation pass and returns the report.
func ApiRunSweep(svc *sweeper.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := svc.Sweep(c.Request.Context())
		if err != nil && report == nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(report))
	}
}

func RegisterAdminRoutes(r gin.IRouter, enrSvc *enrollment.Service, sweepSvc *sweeper.Service) {
	r.POST("/enrollments/list", ApiListEnrollments(enrSvc))
	r.POST("/enrollments/:id/decision", ApiDecideEnrollment(enrSvc))
	r.POST("/sweep", ApiRunSweep(sweepSvc))
}
