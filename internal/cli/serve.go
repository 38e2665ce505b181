package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/topiga/currency/internal/api"
	"github.com/topiga/currency/internal/config"
	"github.com/topiga/currency/internal/logger"
	"github.com/topiga/currency/internal/metrics"
	"github.com/topiga/currency/internal/platform"
	"github.com/topiga/currency/internal/ratelimit"
	"github.com/topiga/currency/internal/scheduler"
	"github.com/topiga/currency/internal/service"
)

const shutdownTimeout = 30 * time.Second

// Server is the HTTP mode: the gin API plus the background refresher.
type Server struct {
	logger      *logrus.Logger
	httpServer  *http.Server
	listener    net.Listener
	scheduler   *scheduler.Scheduler
	rateLimiter *ratelimit.Limiter
}

// NewServer wires the API and binds the listen port.
func NewServer(cfg *config.Config, version string, logOutput io.Writer) (*Server, error) {
	log := logger.New(cfg.LogLevel, logger.FormatJSON, logOutput)
	if log.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	appMetrics := metrics.NewMetrics()
	ratesService := service.NewRatesService(cfg, log).WithMetrics(appMetrics)

	provider := cfg.ExchangeRateProvider
	refreshTimeout := time.Duration(provider.RetryCount+1)*provider.Timeout + time.Duration(provider.RetryCount)*provider.RetryDelay
	refresher, err := scheduler.New(cfg.RefreshSchedule, ratesService, log, refreshTimeout)
	if err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("listen on port %s: %w", cfg.Port, err)
	}

	rateLimiter := ratelimit.NewLimiter(cfg, log)
	handlers := api.NewHandlers(api.HandlerConfig{
		Logger:       log,
		RatesService: ratesService,
		RateLimiter:  rateLimiter,
		Metrics:      appMetrics,
		Version:      version,
	})

	return &Server{
		logger: log,
		httpServer: &http.Server{
			Handler:      handlers.SetupRoutes(),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		listener:    listener,
		scheduler:   refresher,
		rateLimiter: rateLimiter,
	}, nil
}

// Addr returns the bound address.
func (server *Server) Addr() net.Addr {
	return server.listener.Addr()
}

// Run serves until ctx ends or a shutdown signal arrives, then drains
// outstanding requests.
func (server *Server) Run(ctx context.Context) error {
	server.scheduler.Start()

	serveErr := make(chan error, 1)
	go func() {
		server.logger.Info("Starting currency server on " + server.Addr().String())
		if err := server.httpServer.Serve(server.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	shutdownCtx, stop := platform.NewShutdownContext(ctx)
	defer stop()

	var runErr error
	select {
	case <-shutdownCtx.Done():
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("serve: %w", err)
		}
	}

	server.logger.Info("Shutting down server...")
	server.rateLimiter.Stop()

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.httpServer.Shutdown(drainCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("server forced to shutdown: %w", err)
	}
	server.scheduler.Stop(drainCtx)

	server.logger.Info("Server exited")
	return runErr
}
