package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/topiga/currency/internal/cache"
	"github.com/topiga/currency/internal/metrics"
	"github.com/topiga/currency/internal/middleware"
	"github.com/topiga/currency/internal/models"
	"github.com/topiga/currency/internal/ratelimit"
	"github.com/topiga/currency/internal/service"
)

// RatesService is the part of service.RatesService the handlers use
type RatesService interface {
	GetRates(ctx context.Context) (models.RatesResponse, error)
	Convert(ctx context.Context, query models.ConvertQuery) (models.ConvertResponse, error)
	CacheStatus() (bool, time.Duration, error)
}

// HandlerConfig holds the dependencies of Handlers
type HandlerConfig struct {
	Logger       *logrus.Logger
	RatesService RatesService
	RateLimiter  *ratelimit.Limiter
	Metrics      *metrics.Metrics
	Version      string
}

// Handlers contains all HTTP handlers
type Handlers struct {
	logger       *logrus.Logger
	ratesService RatesService
	rateLimiter  *ratelimit.Limiter
	metrics      *metrics.Metrics
	version      string
	startTime    time.Time
}

// NewHandlers creates a new handlers instance
func NewHandlers(handlerConfig HandlerConfig) *Handlers {
	return &Handlers{
		logger:       handlerConfig.Logger,
		ratesService: handlerConfig.RatesService,
		rateLimiter:  handlerConfig.RateLimiter,
		metrics:      handlerConfig.Metrics,
		version:      handlerConfig.Version,
		startTime:    time.Now(),
	}
}

// SetupRoutes configures all the routes using Gin
func (handlers *Handlers) SetupRoutes() *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(handlers.logger))
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	if handlers.metrics != nil {
		router.Use(middleware.Metrics(handlers.metrics))
		router.GET("/metrics", gin.WrapH(handlers.metrics.Handler()))
	}

	router.GET("/health", handlers.HealthCheck)

	apiV1 := router.Group("/api/v1")
	if handlers.rateLimiter != nil {
		apiV1.Use(handlers.rateLimiter.GinMiddleware())
	}
	{
		apiV1.GET("/rates", handlers.GetRates)
		apiV1.GET("/convert", handlers.Convert)
	}

	return router
}

// HealthCheck reports uptime and the state of the cache file
func (handlers *Handlers) HealthCheck(c *gin.Context) {
	healthCheckResponse := models.HealthCheck{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   handlers.version,
		Uptime:    time.Since(handlers.startTime).Round(time.Second).String(),
	}

	fresh, age, err := handlers.ratesService.CacheStatus()
	switch {
	case err == nil:
		healthCheckResponse.CacheFresh = fresh
		healthCheckResponse.CacheAge = cache.FormatAge(age)
		if !fresh {
			healthCheckResponse.Status = "degraded"
		}
	case errors.Is(err, os.ErrNotExist):
		healthCheckResponse.Status = "degraded"
	default:
		handlers.logger.Warnf("cache status check failed: %v", err)
		healthCheckResponse.Status = "unhealthy"
	}

	c.JSON(http.StatusOK, healthCheckResponse)
}

// GetRates returns the current rate table
func (handlers *Handlers) GetRates(c *gin.Context) {
	exchangeRates, err := handlers.ratesService.GetRates(c.Request.Context())
	if err != nil {
		handlers.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, exchangeRates)
}

// Convert handles /convert?from=USD&to=EUR&amount=100
func (handlers *Handlers) Convert(c *gin.Context) {
	from := strings.ToUpper(strings.TrimSpace(c.Query("from")))
	to := strings.ToUpper(strings.TrimSpace(c.Query("to")))
	if from == "" || to == "" {
		handlers.writeErrorResponse(c, http.StatusBadRequest, "invalid query", "from and to are required")
		return
	}

	amount, err := strconv.ParseFloat(c.DefaultQuery("amount", "1"), 64)
	if err != nil {
		handlers.writeErrorResponse(c, http.StatusBadRequest, "invalid amount", "amount must be a number")
		return
	}

	result, err := handlers.ratesService.Convert(c.Request.Context(), models.ConvertQuery{From: from, To: to, Amount: amount})
	if err != nil {
		handlers.writeServiceError(c, err)
		return
	}

	if math.IsInf(result.Converted, 0) || math.IsNaN(result.Converted) ||
		math.IsInf(result.Rate, 0) || math.IsNaN(result.Rate) {
		handlers.writeErrorResponse(c, http.StatusUnprocessableEntity, "conversion undefined",
			"a rate for "+from+" or "+to+" is zero or not a number")
		return
	}

	c.JSON(http.StatusOK, result)
}

// writeServiceError maps service error types onto HTTP statuses
func (handlers *Handlers) writeServiceError(c *gin.Context, err error) {
	var serviceError *service.ServiceError
	if !errors.As(err, &serviceError) {
		handlers.logger.Errorf("unexpected rates error: %v", err)
		handlers.writeErrorResponse(c, http.StatusInternalServerError, "internal error", err.Error())
		return
	}

	statusCode := http.StatusInternalServerError
	switch serviceError.Type {
	case service.ErrorTypeUnknownCurrency:
		statusCode = http.StatusNotFound
	case service.ErrorTypeCacheRead:
		statusCode = http.StatusServiceUnavailable
	case service.ErrorTypeMalformedCache, service.ErrorTypeMissingRates, service.ErrorTypeFetch:
		statusCode = http.StatusBadGateway
	}

	if statusCode >= http.StatusInternalServerError {
		handlers.logger.WithField("type", serviceError.Type.String()).Errorf("rates request failed: %v", err)
	}
	handlers.writeErrorResponse(c, statusCode, serviceError.Type.String(), serviceError.Message)
}

// writeErrorResponse writes an error response using Gin context
func (handlers *Handlers) writeErrorResponse(c *gin.Context, statusCode int, errorMessage, errorDetails string) {
	c.JSON(statusCode, models.ErrorResponse{
		Error:   errorMessage,
		Message: errorDetails,
		Code:    statusCode,
	})
}
