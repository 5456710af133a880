// Package server wires configuration, logging, metrics, the session
// manager, the event relay, and the HTTP surface into one runnable unit.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/wagate/wagate/internal/api/http"
	"github.com/wagate/wagate/internal/api/middleware"
	"github.com/wagate/wagate/internal/domain/creds"
	"github.com/wagate/wagate/internal/domain/relay"
	"github.com/wagate/wagate/internal/domain/session"
	"github.com/wagate/wagate/internal/infrastructure/config"
	"github.com/wagate/wagate/internal/infrastructure/logging"
	"github.com/wagate/wagate/internal/infrastructure/monitoring"
	"github.com/wagate/wagate/internal/whatsapp"
)

// Server wraps the HTTP server and the session lifecycle.
type Server struct {
	httpServer *http.Server
	manager    *session.Manager
	relay      *relay.Relay
	gateway    *whatsapp.Gateway
	logger     *logging.Logger
	config     *config.Config

	cancel  context.CancelFunc
	runDone chan struct{}
}

// New creates a server instance. Run starts it.
func New(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	logger.Info("Initializing gateway",
		zap.String("port", cfg.Server.Port),
		zap.Bool("webhook", cfg.Webhook.URL != ""),
		zap.Bool("api_key", cfg.Auth.APIKey != ""),
	)

	metrics := monitoring.NewMetrics()

	gateway, err := whatsapp.NewGateway(context.Background(), cfg.Session.StoreDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	store := creds.NewFileStore(cfg.Session.StoreDir)
	manager := session.NewManager(gateway, store, retryPolicy(cfg), logger).WithMetrics(metrics)

	rly := relay.New(manager, relay.Config{
		WebhookURL: cfg.Webhook.URL,
		Timeout:    cfg.Webhook.Timeout,
		AutoReply:  cfg.Session.AutoReply,
	}, logger).WithMetrics(metrics)
	manager.SetSink(rly)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(manager, cfg.Session.UploadDir, logger)

	router.GET("/health", handlers.Health)
	router.GET("/qr", handlers.QR)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	guarded := router.Group("/", middleware.APIKey(cfg.Auth.APIKey))
	guarded.POST("/send", handlers.Send)
	guarded.POST("/send-media", handlers.SendMedia)

	logger.Info("Server initialized successfully")

	return &Server{
		httpServer: &http.Server{
			Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
			Handler: router,
		},
		manager: manager,
		relay:   rly,
		gateway: gateway,
		logger:  logger,
		config:  cfg,
		runDone: make(chan struct{}),
	}, nil
}

// Run starts the session manager and the HTTP server, blocking until
// the listener stops.
func (s *Server) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go func() {
		defer close(s.runDone)
		if err := s.manager.Run(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("session loop exited", zap.Error(err))
		}
	}()

	s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close stops accepting connections, waits out the grace period, and
// abandons the protocol session.
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownGrace)
	defer cancel()
	err := s.httpServer.Shutdown(ctx)

	if s.cancel != nil {
		s.cancel()
		<-s.runDone
	}
	s.relay.Wait()

	if cerr := s.gateway.Close(); cerr != nil && err == nil {
		err = cerr
	}
	s.logger.Info("Server shutdown complete")
	return err
}

func retryPolicy(cfg *config.Config) session.RetryPolicy {
	if cfg.Session.ReconnectPolicy == "backoff" {
		return session.Backoff{
			Min: cfg.Session.ReconnectMinDelay,
			Max: cfg.Session.ReconnectMaxDelay,
		}
	}
	return session.Immediate{Delay: cfg.Session.ReconnectMinDelay}
}
