package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lti-assignments-api/pkg/middleware/requestid"
)

const responseMetaKey = "response_meta"

// WithResponseMeta seeds the metadata echoed in response envelopes.
func WithResponseMeta(now func() time.Time) gin.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(c *gin.Context) {
		meta := ensureMeta(c)
		meta["server_time"] = now().UTC()
		if id := requestid.Value(c); id != "" {
			meta["request_id"] = id
		}
		c.Next()
	}
}

// SetMeta records a metadata entry for the current response.
func SetMeta(c *gin.Context, key string, value interface{}) {
	ensureMeta(c)[key] = value
}

// ExtractMeta returns the metadata map stored on the context.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	if meta, exists := c.Get(responseMetaKey); exists {
		if typed, ok := meta.(map[string]interface{}); ok {
			return typed
		}
	}
	return nil
}

func ensureMeta(c *gin.Context) map[string]interface{} {
	if meta := ExtractMeta(c); meta != nil {
		return meta
	}
	meta := make(map[string]interface{})
	c.Set(responseMetaKey, meta)
	return meta
}
