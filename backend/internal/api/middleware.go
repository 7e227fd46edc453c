package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cdr-graph/backend/internal/constants"
	"cdr-graph/backend/internal/metrics"
)

const sessionKey = "session_id"

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}

// cors allows browser uploads from any origin and exposes the session header.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, "+constants.SessionHeader)
		c.Writer.Header().Set("Access-Control-Expose-Headers", constants.SessionHeader)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// instrument records request counts and latency by route template.
func instrument(reg *metrics.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reg.HTTPRequestsInFlight.Inc()
		defer reg.HTTPRequestsInFlight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		reg.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// requireSession rejects requests without a session header.
func requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(constants.SessionHeader)
		if id == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "No session ID provided"})
			return
		}
		c.Set(sessionKey, id)
		c.Next()
	}
}

// requireAI answers 503 when no assistant is configured.
func (s *server) requireAI() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.AI == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "AI assistant not configured"})
			return
		}
		c.Next()
	}
}
