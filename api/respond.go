package api

import (
	"github.com/gin-gonic/gin"
)

// respondError writes the {detail} error envelope every non-2xx response
// on this API uses.
func respondError(c *gin.Context, status int, err error) {
	if err == nil {
		c.Status(status)
		return
	}
	c.JSON(status, gin.H{"detail": err.Error()})
}

func respondText(c *gin.Context, status int, detail string) {
	c.JSON(status, gin.H{"detail": detail})
}
