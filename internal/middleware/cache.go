package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const (
	responseMetaKey  = "rink_response_meta"
	requestStartKey  = "rink_request_started"
	cacheHitKey      = "cache_hit"
	calendarRangeKey = "range"
	calendarDaysKey  = "day_count"
	processingKey    = "processing_time_ms"
)

// ResponseMeta stamps the request start so handlers can report timing next to
// their cache details in the envelope meta block.
func ResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(requestStartKey, time.Now())
		c.Next()
	}
}

// CalendarServed records where a calendar projection came from and which
// days it covers.
func CalendarServed(c *gin.Context, hit bool, start, end string, days int) {
	meta := metaFor(c)
	meta[cacheHitKey] = hit
	meta[calendarRangeKey] = map[string]string{"start": start, "end": end}
	meta[calendarDaysKey] = days
}

// Meta returns the metadata collected for the request, with the elapsed time
// filled in when ResponseMeta ran. It returns nil if nothing was recorded.
func Meta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	raw, ok := c.Get(responseMetaKey)
	if !ok {
		return nil
	}
	meta, ok := raw.(map[string]interface{})
	if !ok {
		return nil
	}
	if started, ok := c.Get(requestStartKey); ok {
		if t, ok := started.(time.Time); ok {
			meta[processingKey] = time.Since(t).Milliseconds()
		}
	}
	return meta
}

func metaFor(c *gin.Context) map[string]interface{} {
	if raw, ok := c.Get(responseMetaKey); ok {
		if meta, ok := raw.(map[string]interface{}); ok {
			return meta
		}
	}
	meta := make(map[string]interface{})
	c.Set(responseMetaKey, meta)
	return meta
}
