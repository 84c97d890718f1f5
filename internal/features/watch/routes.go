package watch

import "github.com/gin-gonic/gin"

// RegisterRoutes attaches telemetry and event feed endpoints. The ingest
// and check routes are open to headset clients; the feed routes are meant
// for the dashboard and sit behind the supplied guard.
func RegisterRoutes(router *gin.RouterGroup, handler *Handler, dashboardOnly gin.HandlerFunc) {
	group := router.Group("/video-watch")
	{
		group.POST("/event", handler.RecordEvent)
		group.POST("/check-seek", handler.CheckSeek)
		group.GET("/max-position/:sessionId", handler.MaxPosition)
		group.GET("/is-complete", handler.IsComplete)

		events := group.Group("/events", dashboardOnly)
		{
			events.GET("/recent", handler.RecentEvents)
			events.GET("/latest", handler.LatestEvents)
			events.GET("/violations", handler.ViolationEvents)
			events.GET("/session/:sessionId", handler.SessionEvents)
			events.GET("/user/:email", handler.UserEvents)
		}
	}
}
