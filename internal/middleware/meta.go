package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const responseMetaKey = "response_meta"

// responseMeta collects the optional members of an envelope's meta object
// while a request is handled.
type responseMeta struct {
	started     time.Time
	cacheHit    *bool
	unreadCount *int
}

// WithResponseMeta starts the request clock used for processing_time_ms.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(responseMetaKey, &responseMeta{started: time.Now()})
		c.Next()
	}
}

func metaOf(c *gin.Context) *responseMeta {
	if v, ok := c.Get(responseMetaKey); ok {
		if m, ok := v.(*responseMeta); ok {
			return m
		}
	}
	m := &responseMeta{started: time.Now()}
	c.Set(responseMetaKey, m)
	return m
}

// SetCacheHit reports whether the payload came from the cache.
func SetCacheHit(c *gin.Context, hit bool) {
	metaOf(c).cacheHit = &hit
}

// SetUnreadCount reports the caller's unread notification count.
func SetUnreadCount(c *gin.Context, count int) {
	metaOf(c).unreadCount = &count
}

// ExtractMeta renders the collected meta, stamping the elapsed time. It
// returns nil when nothing was recorded so the envelope omits meta.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	m := metaOf(c)
	if m.cacheHit == nil && m.unreadCount == nil {
		return nil
	}
	out := map[string]interface{}{
		"processing_time_ms": time.Since(m.started).Milliseconds(),
	}
	if m.cacheHit != nil {
		out["cache_hit"] = *m.cacheHit
	}
	if m.unreadCount != nil {
		out["unreadCount"] = *m.unreadCount
	}
	return out
}
