// Package api implements app.Runner for the API server process.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apphttp "github.com/rfqlabs/rfq-relayer/pkg/app/http"
	"github.com/rfqlabs/rfq-relayer/pkg/auth"
	"github.com/rfqlabs/rfq-relayer/pkg/config"
	"github.com/rfqlabs/rfq-relayer/pkg/db"
	"github.com/rfqlabs/rfq-relayer/pkg/ethereum"
	"github.com/rfqlabs/rfq-relayer/pkg/maker"
	"github.com/rfqlabs/rfq-relayer/pkg/pgutil"
	"github.com/rfqlabs/rfq-relayer/pkg/service"
)

const defaultRequestTimeout = 60

// Server holds cfg to init the api server.
type Server struct {
	cfg *config.Config
}

// NewServer initializes new api server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Run starts the RFQ API server and blocks until a shutdown signal is
// received or the server fails.
func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("api server config is nil")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting RFQ API server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
	)

	dbBun, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer dbBun.Close()
	logger.Info("Connected to database",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database),
	)

	store := db.NewStore(dbBun)

	ethClient, err := ethereum.NewReadOnlyClient(&cfg.Ethereum, logger)
	if err != nil {
		return fmt.Errorf("connect ethereum: %w", err)
	}
	defer ethClient.Close()

	makerClient := maker.NewClient(
		&cfg.Makers,
		cfg.Ethereum.ChainID,
		common.HexToAddress(cfg.Ethereum.TxOrigin),
		logger,
	)

	rfqService, err := service.New(cfg, store, makerClient, ethClient, logger)
	if err != nil {
		return fmt.Errorf("create rfq service: %w", err)
	}

	router := s.setupRouter(rfqService, logger)

	return apphttp.ServeAndWait(ctx, router, logger, &cfg.Server)
}

func (s *Server) setupRouter(rfqService *service.Service, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Second * defaultRequestTimeout))

	// Liveness check
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if s.cfg.Monitoring.Enabled {
		r.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics endpoint enabled", zap.String("path", "/metrics"))
	}

	// RFQ endpoints
	service.RegisterRoutes(r, rfqService, auth.Middleware(s.cfg.Integrators), logger)

	return r
}
