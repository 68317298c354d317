package httpapi

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/enginuity/internal/common"
	"github.com/dmitrijs2005/enginuity/internal/logging"
	"github.com/dmitrijs2005/enginuity/internal/server/auth"
	"github.com/dmitrijs2005/enginuity/internal/shared"
)

const (
	callerKey    = "caller_id"
	requestIDKey = "request_id"

	requestIDHeader = "X-Request-ID"
)

// RequestLogger tags each request with an id and logs it when done.
func RequestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			var err error
			if id, err = shared.MakeRandHexString(8); err != nil {
				id = "unknown"
			}
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)

		start := time.Now()
		c.Next()

		logger.Info(c.Request.Context(), "request",
			"request_id", id,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}

// Authenticate requires a valid bearer token and stores the caller id.
func Authenticate(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(common.AuthorizationHeaderName)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			_ = c.Error(fmt.Errorf("%w: bearer token required", common.ErrorUnauthorized))
			c.Abort()
			return
		}

		userID, err := auth.GetUserIDFromToken(token, secret)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		c.Set(callerKey, userID)
		c.Next()
	}
}
