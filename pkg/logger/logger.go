// Package logger builds the zap logger shared by the binaries and the gin
// access log.
package logger

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gurukul-lms/gurukul-api/pkg/config"
	"github.com/gurukul-lms/gurukul-api/pkg/middleware/requestid"
)

// UserIDKey is the gin context key JWT middleware fills with the caller id.
const UserIDKey = "user_id"

// New returns a production or development logger according to cfg.Env,
// tagged with the emitting component ("api", "admin", "cli").
func New(cfg *config.Config, component string) (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	if cfg.Env == config.EnvProduction {
		zc = zap.NewProductionConfig()
	}
	zc.Encoding = "json"
	if cfg.Log.Format == "console" {
		zc.Encoding = "console"
	}
	if cfg.Log.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Log.Level)
		if err != nil {
			level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		}
		zc.Level = level
	}
	zc.EncoderConfig.TimeKey = "timestamp"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zc.Build(zap.Fields(
		zap.String("service", "gurukul"),
		zap.String("component", component),
		zap.String("env", cfg.Env),
	))
}

// quiet routes are polled by orchestrators and logged at debug only.
var quiet = map[string]bool{"/health": true, "/ready": true, "/metrics": true}

// GinMiddleware writes one access log line per request. Level follows the
// status class; errors attached with c.Error are included.
func GinMiddleware(l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		fields := make([]zap.Field, 0, 10)
		fields = append(fields,
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int("bytes", c.Writer.Size()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
		if id := requestid.Value(c); id != "" {
			fields = append(fields, zap.String("request_id", id))
		}
		if uid := c.GetString(UserIDKey); uid != "" {
			fields = append(fields, zap.String("user_id", uid))
		}
		if errs := c.Errors.Errors(); len(errs) > 0 {
			fields = append(fields, zap.Strings("errors", errs))
		}

		var log func(string, ...zap.Field)
		switch {
		case status >= 500:
			log = l.Error
		case status >= 400:
			log = l.Warn
		case quiet[route]:
			log = l.Debug
		default:
			log = l.Info
		}
		log("http_request", fields...)
	}
}
