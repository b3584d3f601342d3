package cors

import (
	"strings"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Options configures the CORS middleware.
type Options struct {
	AllowedOrigins   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// New returns a CORS middleware honoring the configured origins. An empty
// origin list allows every origin.
func New(opts Options) gin.HandlerFunc {
	cfg := gincors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-Request-ID", "If-Match"},
		ExposeHeaders:    []string{"ETag", "X-Request-ID", "Retry-After"},
		AllowCredentials: opts.AllowCredentials,
		MaxAge:           opts.MaxAge,
	}

	origins := normalize(opts.AllowedOrigins)
	if len(origins) == 0 {
		// credentials cannot be combined with a wildcard origin
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		set := make(map[string]struct{}, len(origins))
		for _, o := range origins {
			set[o] = struct{}{}
		}
		cfg.AllowOriginFunc = func(origin string) bool {
			_, ok := set[strings.TrimRight(origin, "/")]
			return ok
		}
	}

	return gincors.New(cfg)
}

func normalize(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			out = append(out, o)
		}
	}
	return out
}
