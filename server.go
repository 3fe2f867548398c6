package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/horecafocus/backoffice_backend/config"
	"github.com/horecafocus/backoffice_backend/models"
	"github.com/horecafocus/backoffice_backend/partnersync"
	"github.com/horecafocus/backoffice_backend/scheduler"
	"github.com/horecafocus/backoffice_backend/utils"
	"github.com/horecafocus/backoffice_backend/workflow"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("backoffice-pipeline")

// RateLimiter throttles per client IP using Redis counters.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := c.ClientIP()

	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func getRedisClient(redisAddress string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
}

// pipeline holds the long-lived pipeline components. Built lazily on first
// use: the HTTP server starts listening before the database is connected
// (Cloud Run startup), and the readiness middleware guarantees no app
// handler runs before config.GetDB() is non-nil.
type pipeline struct {
	resolver *workflow.WorkingDayResolver
	importer *workflow.LedgerImporter
	sched    *scheduler.Scheduler
}

var (
	pipelineOnce     sync.Once
	pipelineInstance *pipeline
)

func getPipeline() *pipeline {
	pipelineOnce.Do(func() {
		db := config.GetDB()
		resolver := workflow.NewWorkingDayResolver(db)
		orchestrator := workflow.NewOrchestrator(db, resolver)
		pipelineInstance = &pipeline{
			resolver: resolver,
			importer: workflow.NewLedgerImporter(db),
			sched:    scheduler.New(db, orchestrator),
		}
	})
	return pipelineInstance
}

// lazyHandler defers handler construction to the first request, after
// dependencies are connected.
func lazyHandler(build func() gin.HandlerFunc) gin.HandlerFunc {
	var once sync.Once
	var h gin.HandlerFunc
	return func(c *gin.Context) {
		once.Do(func() { h = build() })
		h(c)
	}
}

func settingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		setting, err := models.GetPipelineSetting(ctx, config.GetDB())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"dayStartHour": setting.DayStartHour})
	}
}

type updateSettingsRequest struct {
	DayStartHour int `json:"dayStartHour" binding:"min=0,max=23"`
}

// updateSettingsHandler persists the day-start hour and invalidates the
// resolver cache so the change takes effect immediately, not after TTL.
func updateSettingsHandler(resolver *workflow.WorkingDayResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateSettingsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "dayStartHour must be between 0 and 23"})
			return
		}

		ctx := c.Request.Context()
		if err := models.UpdateDayStartHour(ctx, config.GetDB(), req.DayStartHour); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		resolver.Invalidate()

		c.JSON(http.StatusOK, gin.H{"dayStartHour": req.DayStartHour})
	}
}

type ledgerImportRequest struct {
	ObjectName  string `json:"objectName" binding:"required"`
	LocationRef string `json:"locationRef" binding:"required"`
	Year        int    `json:"year" binding:"required,min=2000,max=2100"`
	Month       int    `json:"month" binding:"required,min=1,max=12"`
}

func ledgerImportHandler(importer *workflow.LedgerImporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ledgerImportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		// Finance users paste either a bare object key or the access URL the
		// upload endpoint handed back.
		objectName := utils.ExtractObjectKeyFromURL(req.ObjectName)
		if objectName == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "objectName is not a valid object key or storage URL"})
			return
		}

		result, err := importer.ImportFromBucket(c.Request.Context(), objectName, req.LocationRef, req.Year, req.Month)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

type ledgerUploadURLRequest struct {
	LocationRef string `json:"locationRef" binding:"required"`
	Year        int    `json:"year" binding:"required,min=2000,max=2100"`
	Month       int    `json:"month" binding:"required,min=1,max=12"`
	ContentType string `json:"contentType"`
}

// ledgerUploadURLHandler hands out a signed PUT URL so workbooks go straight
// to the export bucket. The object key is derived, not client-chosen.
func ledgerUploadURLHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ledgerUploadURLRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		bucket, err := config.LedgerExportBucket()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}

		contentType := req.ContentType
		if contentType == "" {
			contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		}
		objectKey := fmt.Sprintf("ledger/%04d/%02d/%s-%s.xlsx", req.Year, req.Month, req.LocationRef, uuid.NewString())

		signed, err := utils.SignUpload(c.Request.Context(), bucket, objectKey, contentType, 15*time.Minute)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, signed)
	}
}

func hierarchyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		locationRef := strings.TrimSpace(c.Query("locationRef"))
		date, err := utils.ParseDate(c.Query("date"))
		if locationRef == "" || err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "locationRef and date (YYYY-MM-DD) are required"})
			return
		}

		ctx := c.Request.Context()
		doc, err := models.GetHierarchicalAggregate(ctx, config.GetDB(), locationRef, date)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if doc == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no hierarchy for this location and date"})
			return
		}
		c.JSON(http.StatusOK, doc)
	}
}

func pnlHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		locationRef := strings.TrimSpace(c.Query("locationRef"))
		year, yerr := strconv.Atoi(c.Query("year"))
		month, merr := strconv.Atoi(c.Query("month"))
		if locationRef == "" || yerr != nil || merr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "locationRef, year and month are required"})
			return
		}

		ctx := c.Request.Context()
		aggregate, err := workflow.AggregatePnL(ctx, config.GetDB(), locationRef, year, month)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, aggregate)
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, app endpoints return 503.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(tracingMiddleware())
	r.Use(func(c *gin.Context) {
		// Always allow the Cloud Run startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production, require an explicit allowlist via CORS_ALLOWED_ORIGINS.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	// Partner connection lifecycle.
	r.GET("/partner/status", partnersync.StatusHandler())
	r.POST("/partner/connect", partnersync.ConnectHandler())
	r.POST("/partner/disconnect", partnersync.DisconnectHandler())
	r.POST("/partner/sync-runs", partnersync.TriggerSyncHandler())
	// Pub/Sub push delivery of queued sync runs.
	r.POST("/pubsub/partner-sync", partnersync.PubSubPushHandler())

	// Scheduling boundary.
	r.POST("/scheduler/:jobType/run-now", lazyHandler(func() gin.HandlerFunc { return scheduler.RunNowHandler(getPipeline().sched) }))
	r.POST("/scheduler/:jobType/start", lazyHandler(func() gin.HandlerFunc { return scheduler.StartHandler(getPipeline().sched) }))
	r.POST("/scheduler/:jobType/stop", lazyHandler(func() gin.HandlerFunc { return scheduler.StopHandler(getPipeline().sched) }))
	r.GET("/scheduler/status", lazyHandler(func() gin.HandlerFunc { return scheduler.StatusHandler(getPipeline().sched) }))

	// Pipeline configuration and read endpoints.
	r.GET("/settings", settingsHandler())
	r.PUT("/settings", lazyHandler(func() gin.HandlerFunc { return updateSettingsHandler(getPipeline().resolver) }))
	r.POST("/ledger/upload-url", ledgerUploadURLHandler())
	r.POST("/ledger/import", lazyHandler(func() gin.HandlerFunc { return ledgerImportHandler(getPipeline().importer) }))
	r.GET("/hierarchy", hierarchyHandler())
	r.GET("/pnl", pnlHandler())

	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	sqlDB, _ := config.GetDB().DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow running migrations
	// as a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port, "/")
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// tracingMiddleware opens one span per request, named after the matched
// route, and hands the span context downstream so otelgorm can hang DB
// spans off it.
func tracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), requestSpanName(c.Request.Method, c.FullPath(), c.Request.URL.Path))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
		span.End()
	}
}

// requestSpanName prefers the route pattern over the raw path so spans for
// parameterized routes share one name.
func requestSpanName(method, routePath, rawPath string) string {
	if routePath == "" {
		routePath = rawPath
	}
	return method + " " + routePath
}

// customErrorLogger logs only requests that recorded errors.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
