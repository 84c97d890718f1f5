package auth

import "github.com/gin-gonic/gin"

// RegisterRoutes attaches authentication endpoints. Account creation is
// restricted to admins; login is open.
func RegisterRoutes(router *gin.RouterGroup, handler *Handler, adminOnly gin.HandlerFunc) {
	group := router.Group("/auth")
	{
		group.POST("/login", handler.Login)
		group.POST("/register", adminOnly, handler.Register)
	}
}
