package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parsalearn/enrollpay/internal/app/service/enrollment"
	"github.com/parsalearn/enrollpay/internal/app/service/verification"
	"github.com/parsalearn/enrollpay/pkg/response"
)

// ApiPaymentRequest opens a payment attempt: creates the pending enrollment
// and returns the gateway redirect URL.
func ApiPaymentRequest(svc *enrollment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req enrollment.InitiateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		res, err := svc.Initiate(c.Request.Context(), &req)
		if err != nil {
			switch {
			case errors.Is(err, enrollment.ErrNotFound):
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, err.Error()))
			case errors.Is(err, enrollment.ErrInvalidRequest):
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			default:
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			}
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

type callbackQuery struct {
	Authority    string `form:"Authority"`
	Status       string `form:"Status"`
	EnrollmentID string `form:"enrollment_id"`
}

// ApiPaymentCallback is invoked by the gateway after the buyer completes or
// cancels payment. A non-OK gateway status fails the attempt without a
// verify call; otherwise the enrollment is verified and finalized.
func ApiPaymentCallback(verifier *verification.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q callbackQuery
		if err := c.ShouldBindQuery(&q); err != nil || q.EnrollmentID == "" || q.Authority == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing authority or enrollment id"))
			return
		}

		var res *verification.VerifyResult
		var err error
		if q.Status != "OK" {
			res, err = verifier.Cancel(c.Request.Context(), q.EnrollmentID, q.Authority)
		} else {
			res, err = verifier.Verify(c.Request.Context(), q.EnrollmentID, q.Authority)
		}
		if err != nil {
			switch {
			case errors.Is(err, verification.ErrNotFound):
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, err.Error()))
			case errors.Is(err, verification.ErrTamper):
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			case errors.Is(err, verification.ErrTransientGateway):
				// The sweeper reconciles this attempt; the buyer sees a
				// generic processing state.
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeProcessing, q.EnrollmentID))
			default:
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			}
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterPaymentRoutes(r gin.IRouter, svc *enrollment.Service, verifier *verification.Service) {
	r.POST("/request", ApiPaymentRequest(svc))
	r.GET("/callback", ApiPaymentCallback(verifier))
	r.POST("/callback", ApiPaymentCallback(verifier))
}
