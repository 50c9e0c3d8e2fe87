package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/inkwell/paywall/internal/app/service/entitlement"
	"github.com/inkwell/paywall/pkg/response"
)

// @Summary      Current Subscription
// @Description  Returns the caller's most recent entitlement record.
// @Tags         Dashboard
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/dashboard/subscription [get]
func ApiDashboardSubscription(store entitlement.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		rec, err := store.LatestByUser(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(rec))
	}
}

func RegisterDashboardRoutes(r gin.IRouter, store entitlement.Store) {
	r.GET("/subscription", ApiDashboardSubscription(store))
}
