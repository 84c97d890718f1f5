package request

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// QueryInt reads an integer query parameter with a fallback default.
func QueryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
