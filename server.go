package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/assets_backend/airsync"
	"bitbucket.org/mmdatafocus/assets_backend/config"
	"bitbucket.org/mmdatafocus/assets_backend/fssync"
	"bitbucket.org/mmdatafocus/assets_backend/matching"
	"bitbucket.org/mmdatafocus/assets_backend/middlewares"
	"bitbucket.org/mmdatafocus/assets_backend/models"
	"bitbucket.org/mmdatafocus/assets_backend/utils"
	"bitbucket.org/mmdatafocus/assets_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func loginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
			return
		}
		info, err := models.Login(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, info)
	}
}

func createUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewUser
		if err := c.ShouldBindJSON(&input); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) {
				c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		user, err := models.CreateUser(c.Request.Context(), input)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// buildEngine assembles the shared reconciliation engine. A missing
// classifier key downgrades classification to unverified self-mappings
// instead of blocking startup; syncs and manual assignment work without it.
func buildEngine(logger *logrus.Logger) (*workflow.Engine, error) {
	settings := config.GetSettings()

	var classifier matching.Classifier
	chat, err := matching.NewChatClassifier(matching.ClassifierOptions{
		BaseURL:           settings.Classifier.BaseURL,
		Model:             settings.Classifier.Model,
		RequestsPerMinute: settings.Classifier.RequestsPerMinute,
		Timeout:           time.Duration(settings.Classifier.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "classifier"}).Warn("classifier disabled: " + err.Error())
		classifier = matching.DisabledClassifier{}
	} else {
		classifier = chat
	}

	return workflow.NewEngineFromSettings(settings, classifier)
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	engine, err := buildEngine(logger)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "engine"}).Fatal("engine init failed: " + err.Error())
	}
	session := workflow.NewSession(engine)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Probes and metrics stay up while dependencies connect.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	corsConfig := cors.DefaultConfig()
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
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))
	r.Use(middlewares.AuthMiddleware())
	r.Use(middlewares.SessionMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/api/auth/login", loginHandler())

	recon := r.Group("/api/recon", middlewares.RequireAuth())
	recon.GET("/assets/next-pending", workflow.NextPendingHandler(session))
	recon.GET("/assets/:asset_id/candidates", workflow.CandidatesHandler(session))
	recon.POST("/assignments", workflow.AssignHandler(session))
	recon.DELETE("/assignments/:asset_id", workflow.UnassignHandler(session))
	recon.GET("/summary", workflow.SummaryHandler(session))
	recon.POST("/reload", workflow.ReloadHandler(session))
	recon.GET("/export", workflow.ExportHandler(session))
	recon.POST("/employees/link", workflow.LinkEmployeesHandler(engine))
	recon.POST("/pipeline/run", middlewares.RequireAdmin(), workflow.RunPipelineHandler(engine, session))

	sync := r.Group("/api/sync", middlewares.RequireAuth())
	sync.POST("/freshservice/run", fssync.TriggerSyncHandler())
	sync.GET("/freshservice/runs", fssync.RunsHandler())
	sync.POST("/airtable/pull", airsync.TriggerPullHandler())
	sync.POST("/airtable/push", airsync.PushHandler(engine, session))
	sync.GET("/airtable/runs", airsync.RunsHandler())

	r.POST("/api/users", middlewares.RequireAuth(), middlewares.RequireAdmin(), createUserHandler())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	logger.WithFields(logrus.Fields{"port": port}).Info("reconciliation api ready")

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
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

// customErrorLogger emits one structured line per request.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		logger.WithFields(logrus.Fields{
			"status":         c.Writer.Status(),
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"latency":        latency.String(),
			"correlation_id": cid,
		}).Info("request")
	}
}
