// Package worker implements app.Runner for the worker process.
package worker

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
	"golang.org/x/sync/errgroup"

	"github.com/rfqlabs/rfq-relayer/pkg/app/httpserver"
	"github.com/rfqlabs/rfq-relayer/pkg/config"
	"github.com/rfqlabs/rfq-relayer/pkg/db"
	"github.com/rfqlabs/rfq-relayer/pkg/ethereum"
	"github.com/rfqlabs/rfq-relayer/pkg/lastlook"
	"github.com/rfqlabs/rfq-relayer/pkg/maker"
	"github.com/rfqlabs/rfq-relayer/pkg/pgutil"
	"github.com/rfqlabs/rfq-relayer/pkg/submit"
	workerpkg "github.com/rfqlabs/rfq-relayer/pkg/worker"
)

const (
	defaultGracefulShutdownTimeout = 30 * time.Second
	defaultHTTPReadTimeout         = 15 * time.Second
	defaultHTTPWriteTimeout        = 15 * time.Second
	defaultHTTPIdleTimeout         = 60 * time.Second
)

// Server holds configuration for the worker process.
type Server struct {
	cfg *config.WorkerProcessConfig
}

// NewServer initializes a new worker Server.
func NewServer(cfg *config.WorkerProcessConfig) *Server {
	return &Server{cfg: cfg}
}

// Run starts the fill worker and its operational HTTP server. It blocks
// until an OS shutdown signal is received or either component fails.
func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("nil config")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting RFQ fill worker", zap.Int("worker_index", cfg.Worker.Index))

	dbBun, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer dbBun.Close()
	logger.Info("Database connection established")

	store := db.NewStore(dbBun)

	ethClient, err := ethereum.NewClient(&cfg.Ethereum, logger)
	if err != nil {
		return fmt.Errorf("initialize ethereum client: %w", err)
	}
	defer ethClient.Close()

	makerClient := maker.NewClient(&cfg.Makers, cfg.Ethereum.ChainID, ethClient.Address(), logger)
	lastLook := lastlook.NewCoordinator(makerClient, logger)

	submitter := submit.NewManager(
		ethClient,
		store,
		common.HexToAddress(cfg.Ethereum.ExchangeProxy),
		cfg.Worker.WatchInterval,
		logger,
	)

	w, err := workerpkg.New(&cfg.Worker, &cfg.Ethereum, ethClient, store, lastLook, submitter, logger)
	if err != nil {
		return fmt.Errorf("create worker: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.Run(gctx)
	})

	if cfg.Monitoring.Enabled {
		srv := newOpsServer(cfg.Monitoring.MetricsPort, logger)
		g.Go(func() error {
			return httpserver.ServeAndWait(gctx, logger, srv, defaultGracefulShutdownTimeout)
		})
	}

	return g.Wait()
}

// newOpsServer serves liveness and Prometheus metrics for the worker process.
func newOpsServer(port int, logger *zap.Logger) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	logger.Info("Metrics enabled", zap.Int("port", port), zap.String("path", "/metrics"))

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  defaultHTTPReadTimeout,
		WriteTimeout: defaultHTTPWriteTimeout,
		IdleTimeout:  defaultHTTPIdleTimeout,
	}
}
