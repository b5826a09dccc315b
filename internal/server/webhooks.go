package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const maxNotificationBytes = 1 << 20

// HandleNotification acknowledges every notification that verified and
// parsed, duplicates and rejected transitions included.
func (s *Server) HandleNotification(c *gin.Context) {
	source := strings.ToLower(strings.TrimSpace(c.Param("source")))
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxNotificationBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	_, err = s.intake.Ingest(c.Request.Context(), source, c.ClientIP(), payload, c.Request.Header)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
