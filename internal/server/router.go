// Package server assembles the HTTP surface of the booking engine.
package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/rinkdesk/ice-booking-api/internal/handler"
	"github.com/rinkdesk/ice-booking-api/internal/middleware"
	"github.com/rinkdesk/ice-booking-api/internal/service"
	"github.com/rinkdesk/ice-booking-api/pkg/logger"
	corsmiddleware "github.com/rinkdesk/ice-booking-api/pkg/middleware/cors"
	reqidmiddleware "github.com/rinkdesk/ice-booking-api/pkg/middleware/requestid"
)

// Handlers groups the HTTP handlers mounted by NewRouter.
type Handlers struct {
	Requests  *handler.BookingRequestHandler
	Events    *handler.AdminEventHandler
	Conflicts *handler.ConflictHandler
	Calendar  *handler.CalendarHandler
	Invoices  *handler.InvoiceHandler
	Exports   *handler.ExportHandler
	System    *handler.MetricsHandler
	Realtime  http.Handler
}

// Options configure the router.
type Options struct {
	APIPrefix      string
	AllowedOrigins []string
	EnableDocs     bool
	Tokens         middleware.TokenValidator
	Metrics        *service.MetricsService
	Logger         *zap.Logger
}

// NewRouter mounts every route. Admin-only routes sit behind RequireAdmin and
// the audit log; renters reach the rest with their own scope applied in the
// services.
func NewRouter(h Handlers, opts Options) *gin.Engine {
	logr := opts.Logger
	if logr == nil {
		logr = zap.NewNop()
	}
	prefix := "/" + strings.Trim(opts.APIPrefix, "/")
	if prefix == "/" {
		prefix = ""
	}
	wsPath := prefix + "/ws"

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(opts.AllowedOrigins))
	r.Use(middleware.Metrics(opts.Metrics, "/metrics", wsPath))

	r.GET("/health", h.System.Health)
	r.GET("/ready", h.System.Ready)
	r.GET("/metrics", h.System.Prometheus)
	if opts.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(prefix)
	api.Use(middleware.ResponseMeta())

	// Signed links carry their own authorization.
	api.GET("/invoices/download/:token", h.Invoices.Download)

	authed := api.Group("")
	authed.Use(middleware.JWT(opts.Tokens))
	admin := authed.Group("")
	admin.Use(middleware.RequireAdmin())

	requests := authed.Group("/requests")
	requests.Use(middleware.Audit(logr, "request"))
	requests.GET("", h.Requests.List)
	requests.GET("/:id", h.Requests.Get)
	requests.POST("", h.Requests.Submit)
	requests.DELETE("/:id", h.Requests.Delete)

	admin.POST("/requests/admin", middleware.Audit(logr, "request"), h.Requests.BookForRenter)

	reviews := admin.Group("/requests/:id")
	reviews.Use(middleware.Audit(logr, "request"))
	reviews.POST("/approve", h.Requests.Approve)
	reviews.POST("/decline", h.Requests.Decline)
	reviews.POST("/update", h.Requests.UpdateEndDate)
	reviews.POST("/update_amount", h.Requests.UpdateAmount)
	reviews.POST("/mark_paid", h.Requests.MarkPaid)

	authed.GET("/events", h.Events.List)
	authed.GET("/events/:id", h.Events.Get)
	events := admin.Group("/events")
	events.Use(middleware.Audit(logr, "event"))
	events.POST("", h.Events.Create)
	events.POST("/:id/update", h.Events.UpdateEndDate)
	events.POST("/:id/update_amount", h.Events.UpdateAmount)
	events.POST("/:id/mark_paid", h.Events.MarkPaid)
	events.DELETE("/:id", h.Events.Delete)

	authed.POST("/check_conflicts", h.Conflicts.Check)
	authed.GET("/calendar", h.Calendar.Calendar)
	authed.GET("/calendar.ics", h.Calendar.ICS)

	authed.GET("/invoices", h.Invoices.List)
	authed.POST("/invoices/:id/document", h.Invoices.Document)
	invoices := admin.Group("/invoices")
	invoices.Use(middleware.Audit(logr, "invoice"))
	invoices.POST("/generate", h.Invoices.Generate)
	invoices.POST("/:id/mark_paid", h.Invoices.MarkPaid)

	admin.GET("/exports/requests.csv", h.Exports.RequestsCSV)

	if h.Realtime != nil {
		authed.GET("/ws", gin.WrapH(h.Realtime))
	}

	return r
}
