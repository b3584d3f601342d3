package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gurukul-lms/gurukul-api/internal/models"
	"github.com/gurukul-lms/gurukul-api/pkg/middleware/requestid"
)

const auditResourceKey = "audit_resource_id"

// AuditWriter persists audit rows.
type AuditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// SetAuditResource lets a handler name the row an audited request touched
// when the id is not part of the route, e.g. a job resolved from a token.
func SetAuditResource(c *gin.Context, id string) {
	if id != "" {
		c.Set(auditResourceKey, id)
	}
}

func auditResource(c *gin.Context, param string) *string {
	if v, ok := c.Get(auditResourceKey); ok {
		if id, _ := v.(string); id != "" {
			return &id
		}
	}
	if param == "" {
		return nil
	}
	if id := c.Param(param); id != "" {
		return &id
	}
	return nil
}

// Audit writes one audit row per successful request. The row is written
// after the handler returns, so a client that disconnects mid-download is
// still recorded once the response finished.
func Audit(repo AuditWriter, logger *zap.Logger, action, resource, resourceParam string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		if repo == nil || status >= 400 {
			return
		}

		entry := &models.AuditLog{
			Action:     action,
			Resource:   resource,
			ResourceID: auditResource(c, resourceParam),
			IPAddress:  c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
		}
		if claims, ok := Claims(c); ok {
			uid := claims.UserID
			entry.UserID = &uid
		}
		entry.NewValues, _ = json.Marshal(struct {
			Route     string `json:"route"`
			Status    int    `json:"status"`
			Bytes     int    `json:"bytes"`
			LatencyMS int64  `json:"latencyMs"`
			RequestID string `json:"requestId,omitempty"`
		}{
			Route:     c.FullPath(),
			Status:    status,
			Bytes:     c.Writer.Size(),
			LatencyMS: time.Since(start).Milliseconds(),
			RequestID: requestid.Value(c),
		})

		ctx := context.WithoutCancel(c.Request.Context())
		if err := repo.CreateAuditLog(ctx, entry); err != nil {
			logger.Warn("audit write failed",
				zap.String("action", action),
				zap.String("request_id", requestid.Value(c)),
				zap.Error(err),
			)
		}
	}
}
