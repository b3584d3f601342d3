package router

import (
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/gurukul-lms/gurukul-api/internal/handler"
	"github.com/gurukul-lms/gurukul-api/internal/middleware"
	"github.com/gurukul-lms/gurukul-api/internal/models"
	"github.com/gurukul-lms/gurukul-api/internal/service"
	appErrors "github.com/gurukul-lms/gurukul-api/pkg/errors"
	"github.com/gurukul-lms/gurukul-api/pkg/logger"
	corsmiddleware "github.com/gurukul-lms/gurukul-api/pkg/middleware/cors"
	reqidmiddleware "github.com/gurukul-lms/gurukul-api/pkg/middleware/requestid"
	"github.com/gurukul-lms/gurukul-api/pkg/response"
)

// Handlers groups every HTTP handler mounted by the router.
type Handlers struct {
	Auth          *handler.AuthHandler
	Courses       *handler.CourseHandler
	Enrollments   *handler.EnrollmentHandler
	Lectures      *handler.LectureHandler
	Notifications *handler.NotificationHandler
	Announcements *handler.AnnouncementHandler
	Stats         *handler.StatsHandler
	Users         *handler.UserHandler
	Exports       *handler.ExportHandler
	Metrics       *handler.MetricsHandler
}

// Options configures the cross-cutting middleware.
type Options struct {
	APIPrefix  string
	EnableDocs bool
	CORS       corsmiddleware.Options
	Logger     *zap.Logger
	Metrics    *service.MetricsService
	// Authenticate guards every non-public route, normally middleware.JWT.
	Authenticate gin.HandlerFunc
	RateLimiter  *middleware.RateLimiter
	Audit        middleware.AuditWriter
}

// New builds the gin engine with the full route table.
func New(h Handlers, opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Authenticate == nil {
		opts.Authenticate = denyAll
	}
	prefix := "/" + strings.Trim(opts.APIPrefix, "/")
	if prefix == "/" {
		prefix = "/api"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(opts.Logger))
	r.Use(corsmiddleware.New(opts.CORS))
	r.Use(middleware.Metrics(opts.Metrics))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)
	if opts.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(prefix)

	public := api.Group("", opts.RateLimiter.Limit("public"))
	public.GET("/courses", h.Courses.List)
	public.GET("/courses/:id", h.Courses.Get)
	public.GET("/exports/download/:token",
		middleware.Audit(opts.Audit, opts.Logger, models.AuditActionExportDownload, "exports", ""),
		h.Exports.Download,
	)

	authed := api.Group("", opts.Authenticate, opts.RateLimiter.Limit("user"))
	authed.GET("/auth/me", h.Auth.Me)

	student := authed.Group("/student", middleware.RequireRoles(models.RoleStudent, models.RoleAdmin))
	student.GET("/courses/enrolled", h.Enrollments.List)
	student.POST("/courses/enrolled", h.Enrollments.Enroll)
	student.PATCH("/courses/enrolled/:courseId", h.Enrollments.UpdateStatus)
	student.GET("/lectures/:lectureId", h.Lectures.Get)
	student.PATCH("/lectures/:lectureId", h.Lectures.Toggle)
	student.GET("/notifications", h.Notifications.List)
	student.PATCH("/notifications", h.Notifications.MarkRead)
	student.DELETE("/notifications/:id", h.Notifications.Delete)

	admin := authed.Group("/admin", middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/courses", h.Courses.List)
	admin.POST("/courses", h.Courses.Create)
	admin.GET("/courses/:id", h.Courses.Get)
	admin.PUT("/courses/:id", h.Courses.Update)
	admin.DELETE("/courses/:id", h.Courses.Delete)

	admin.GET("/announcements", h.Announcements.List)
	admin.POST("/announcements", h.Announcements.Create)
	admin.GET("/announcements/:id", h.Announcements.Get)
	admin.DELETE("/announcements/:id", h.Announcements.Delete)

	admin.GET("/stats", h.Stats.Get)

	admin.GET("/users", h.Users.List)
	admin.POST("/users", h.Users.Create)
	admin.GET("/users/:id", h.Users.Get)
	admin.PUT("/users/:id", h.Users.Update)
	admin.DELETE("/users/:id", h.Users.Deactivate)

	admin.POST("/exports", h.Exports.Create)
	admin.GET("/exports/:id", h.Exports.Status)

	admin.GET("/metrics/snapshot", h.Metrics.Snapshot)

	return r
}

func denyAll(c *gin.Context) {
	response.Error(c, appErrors.ErrUnauthorized)
}
