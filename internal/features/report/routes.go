package report

import "github.com/gin-gonic/gin"

// RegisterRoutes attaches the report endpoints, all dashboard-only.
func RegisterRoutes(router *gin.RouterGroup, handler *Handler, dashboardOnly gin.HandlerFunc) {
	reports := router.Group("/reports", dashboardOnly)
	{
		reports.GET("/daily", handler.Daily)
	}
}
