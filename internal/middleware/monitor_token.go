package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/examcore/internal/response"
)

// MonitorTokenHeader carries the shared secret of monitoring agents.
const MonitorTokenHeader = "X-Monitor-Token"

// RequireMonitorToken guards the monitoring-agent endpoints. An empty token
// leaves them open.
func RequireMonitorToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got := c.GetHeader(MonitorTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrMonitorToken)
			return
		}
		c.Next()
	}
}
