package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stoik/phishing-risk/internal/adapters/mailsource"
	"github.com/stoik/phishing-risk/internal/application"
	"github.com/stoik/phishing-risk/internal/config"
	"github.com/stoik/phishing-risk/internal/domain"
	"github.com/stoik/phishing-risk/internal/metrics"
	"go.uber.org/zap"
)

// Handler serves the analysis API
type Handler struct {
	service      *application.AnalysisService
	maxBodyBytes int64
	logger       *zap.Logger
}

// NewRouter builds the gin engine exposing the analysis API
//
//	POST /v1/analyze      ParsedEmail JSON → RiskReport
//	POST /v1/analyze/raw  RFC 5322 message → RiskReport
//	GET  /healthz
//	GET  /metrics
func NewRouter(service *application.AnalysisService, m *metrics.Metrics, cfg config.ServerConfig, logger *zap.Logger) *gin.Engine {
	h := &Handler{
		service:      service,
		maxBodyBytes: cfg.MaxBodyBytes,
		logger:       logger,
	}

	router := gin.New()
	router.Use(Recovery(logger))
	router.Use(RequestLogger(logger))

	router.GET("/healthz", h.Health)
	router.POST("/v1/analyze", h.limitBody, h.Analyze)
	router.POST("/v1/analyze/raw", h.limitBody, h.AnalyzeRaw)
	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	return router
}

// Health reports that the service is up
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

var errEmptyEmail = errors.New("email record has no addresses, headers or content")

// Analyze scores an already-parsed email
func (h *Handler) Analyze(c *gin.Context) {
	var email domain.ParsedEmail
	if err := c.ShouldBindJSON(&email); err != nil {
		h.badRequest(c, err)
		return
	}
	if email.IsEmpty() {
		h.badRequest(c, errEmptyEmail)
		return
	}

	c.JSON(http.StatusOK, h.service.AnalyzeEmail(c.Request.Context(), email))
}

// AnalyzeRaw decodes a raw message and scores it
func (h *Handler) AnalyzeRaw(c *gin.Context) {
	email, err := mailsource.ParseMessage(c.Request.Body)
	if err != nil {
		h.badRequest(c, err)
		return
	}

	c.JSON(http.StatusOK, h.service.AnalyzeEmail(c.Request.Context(), email))
}

func (h *Handler) limitBody(c *gin.Context) {
	if h.maxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	}
	c.Next()
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
		})
		return
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// RequestLogger logs every request with a short trace id
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := uuid.New().String()[:8]
		start := time.Now()
		c.Set("trace_id", traceID)

		c.Next()

		logger.Info("Request completed",
			zap.String("trace_id", traceID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}

// Recovery turns a handler panic into a 500 response
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				traceID, _ := c.Get("trace_id")
				logger.Error("Panic recovered",
					zap.Any("trace_id", traceID),
					zap.String("error", fmt.Sprintf("%v", err)),
					zap.String("path", c.Request.URL.Path))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
		}()
		c.Next()
	}
}
