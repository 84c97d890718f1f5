package video

import "github.com/gin-gonic/gin"

// RegisterRoutes attaches curriculum video endpoints. Upload and delete
// are restricted to dashboard staff.
func RegisterRoutes(router *gin.RouterGroup, handler *Handler, dashboardOnly gin.HandlerFunc) {
	videos := router.Group("/videos")
	{
		videos.GET("", handler.List)
		videos.GET("/today", handler.Today)
		videos.GET("/:videoId", handler.Get)
		videos.POST("", dashboardOnly, handler.Upload)
		videos.DELETE("/:videoId", dashboardOnly, handler.Delete)
	}
}
