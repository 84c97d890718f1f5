package progression

import "github.com/gin-gonic/gin"

// RegisterRoutes attaches progression endpoints under the users resource.
// The headset calls the per-user routes; the aggregate status view is for
// the dashboard.
func RegisterRoutes(router *gin.RouterGroup, handler *Handler, dashboardOnly gin.HandlerFunc) {
	users := router.Group("/users")
	{
		users.GET("/:email/progress", handler.Progress)
		users.GET("/:email/current-video", handler.CurrentVideo)
		users.POST("/:email/complete", handler.Complete)
		users.GET("/:email/completions", dashboardOnly, handler.Completions)
		users.GET("/today-status", dashboardOnly, handler.TodayStatus)
	}
}
