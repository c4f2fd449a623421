package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sensive/blog/utils"
)

var skippedPrefixes = []string{"/api/", "/static/", "/media/"}

// PageViewRecorder counts successful GET page renders per day and path.
func PageViewRecorder(counter *utils.PageViewCounter) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if counter == nil || c.Request.Method != http.MethodGet {
			return
		}
		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}
		path := c.Request.URL.Path
		if !countablePath(path) {
			return
		}
		if err := counter.Record(c.Request.Context(), path); err != nil {
			utils.Sugar.Warnw("record page view failed", "path", path, "error", err)
		}
	}
}

func countablePath(path string) bool {
	if path == "/health" || path == "/metrics" {
		return false
	}
	for _, p := range skippedPrefixes {
		if strings.HasPrefix(path, p) {
			return false
		}
	}
	return true
}
