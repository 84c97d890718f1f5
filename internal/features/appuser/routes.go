package appuser

import "github.com/gin-gonic/gin"

// RegisterRoutes attaches user enrollment endpoints. Mutating and listing
// routes are restricted to dashboard staff.
func RegisterRoutes(router *gin.RouterGroup, handler *Handler, dashboardOnly gin.HandlerFunc) {
	users := router.Group("/users")
	{
		users.POST("", handler.Register)
		users.GET("", dashboardOnly, handler.List)
		users.GET("/:email", handler.Get)
		users.PATCH("/:email/active", dashboardOnly, handler.SetActive)
		users.DELETE("/:email", dashboardOnly, handler.Delete)
	}
}
