// Package worker runs the fill pipeline: it claims enqueued jobs, validates
// them, runs maker last look, preflights the fill, and hands it to the
// submission manager.
package worker

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rfqlabs/rfq-relayer/internal/metrics"
	"github.com/rfqlabs/rfq-relayer/pkg/config"
	"github.com/rfqlabs/rfq-relayer/pkg/db"
	"github.com/rfqlabs/rfq-relayer/pkg/jobs"
)

const ethCallAttempts = 3

// EthClient is the node client surface the worker needs on top of what the
// submission manager already uses.
type EthClient interface {
	Address() common.Address
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	Balance(ctx context.Context, address common.Address) (*big.Int, error)
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// Submitter submits a job on chain and watches it to its final status.
type Submitter interface {
	SubmitJob(ctx context.Context, job *db.Job) (db.JobStatus, error)
}

// Confirmer runs maker last look for a job.
type Confirmer interface {
	Confirm(ctx context.Context, job *db.Job) bool
}

// Store is the persistence surface the worker needs.
type Store interface {
	UpdateJob(ctx context.Context, job *db.Job) error
	ClaimJob(ctx context.Context, orderHash, workerAddress string) (bool, error)
	FindJobsWithStatuses(ctx context.Context, statuses []db.JobStatus) ([]*db.Job, error)
	FindUnresolvedJobsByWorker(ctx context.Context, workerAddress string) ([]*db.Job, error)
	CountUnresolvedJobs(ctx context.Context) (int, error)
	UpsertHeartbeat(ctx context.Context, hb *db.WorkerHeartbeat) error
}

// Worker processes fill jobs with a single Ethereum key.
type Worker struct {
	cfg           *config.WorkerConfig
	client        EthClient
	store         Store
	lastLook      Confirmer
	submitter     Submitter
	chainID       int64
	exchangeProxy common.Address
	minBalance    *big.Int
	logger        *zap.Logger
	now           func() time.Time
}

func New(cfg *config.WorkerConfig, ethCfg *config.EthereumConfig, client EthClient, store Store, lastLook Confirmer, submitter Submitter, logger *zap.Logger) (*Worker, error) {
	minBalance, ok := new(big.Int).SetString(cfg.MinBalanceWei, 10)
	if !ok {
		return nil, fmt.Errorf("invalid worker.min_balance_wei %q", cfg.MinBalanceWei)
	}
	if !common.IsHexAddress(ethCfg.ExchangeProxy) {
		return nil, fmt.Errorf("invalid ethereum.exchange_proxy %q", ethCfg.ExchangeProxy)
	}

	return &Worker{
		cfg:           cfg,
		client:        client,
		store:         store,
		lastLook:      lastLook,
		submitter:     submitter,
		chainID:       ethCfg.ChainID,
		exchangeProxy: common.HexToAddress(ethCfg.ExchangeProxy),
		minBalance:    minBalance,
		logger:        logger,
		now:           time.Now,
	}, nil
}

// Run starts the polling and heartbeat loops and blocks until the context is
// cancelled. Jobs left unresolved by a previous run of this worker are
// repaired before the queue is polled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Worker starting",
		zap.Int("worker_index", w.cfg.Index),
		zap.String("address", w.client.Address().Hex()))

	if err := w.repair(ctx); err != nil {
		return fmt.Errorf("failed to repair unresolved jobs: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.pollLoop(gctx) })
	g.Go(func() error { return w.heartbeatLoop(gctx) })
	return g.Wait()
}

// repair resumes jobs this worker claimed but never finished. A job stuck in
// a pending status after a restart either resumes its pipeline or, for
// submitted jobs, re-enters the watch loop which rebuilds its submission
// context from the database.
func (w *Worker) repair(ctx context.Context) error {
	unresolved, err := w.store.FindUnresolvedJobsByWorker(ctx, w.client.Address().Hex())
	if err != nil {
		return err
	}
	for _, job := range unresolved {
		w.logger.Info("Repairing unresolved job",
			zap.String("order_hash", job.OrderHash),
			zap.String("status", string(job.Status)))
		w.ProcessJob(ctx, job)
	}
	return nil
}

func (w *Worker) pollLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if !w.CheckReadiness(ctx) {
			continue
		}

		queued, err := w.store.FindJobsWithStatuses(ctx, []db.JobStatus{db.JobStatusPendingEnqueued})
		if err != nil {
			w.logger.Warn("Queue poll failed", zap.Error(err))
			continue
		}
		for _, job := range queued {
			w.ProcessJob(ctx, job)
		}
	}
}

// CheckReadiness verifies the worker can pay for a fill before it claims
// one: the node must answer and the wallet must hold at least the configured
// balance floor.
func (w *Worker) CheckReadiness(ctx context.Context) bool {
	ready := w.checkReadiness(ctx)
	v := 0.0
	if ready {
		v = 1.0
	}
	metrics.WorkerReady.WithLabelValues(w.client.Address().Hex()).Set(v)
	return ready
}

func (w *Worker) checkReadiness(ctx context.Context) bool {
	if _, err := w.client.SuggestGasPrice(ctx); err != nil {
		w.logger.Warn("Readiness check failed: gas price unavailable", zap.Error(err))
		return false
	}

	balance, err := w.client.Balance(ctx, w.client.Address())
	if err != nil {
		w.logger.Warn("Readiness check failed: balance unavailable", zap.Error(err))
		return false
	}
	if balance.Cmp(w.minBalance) < 0 {
		w.logger.Warn("Readiness check failed: balance below floor",
			zap.String("balance_wei", balance.String()),
			zap.String("min_balance_wei", w.minBalance.String()))
		return false
	}
	return true
}

// ProcessJob drives one job through the pipeline. Every exit path leaves the
// job in a persisted status.
func (w *Worker) ProcessJob(ctx context.Context, job *db.Job) {
	start := w.now()

	switch job.Status {
	case db.JobStatusPendingEnqueued:
		claimed, err := w.claim(ctx, job)
		if err != nil {
			w.logger.Warn("Failed to claim job",
				zap.String("order_hash", job.OrderHash),
				zap.Error(err))
			return
		}
		if !claimed {
			// Another worker won the claim between our poll and now.
			return
		}
	case db.JobStatusPendingProcessing,
		db.JobStatusPendingLastLookAccepted,
		db.JobStatusPendingSubmitted:
		// Resuming after a restart.
	default:
		return
	}

	if job.Status == db.JobStatusPendingProcessing {
		if !w.validateAndConfirm(ctx, job) {
			w.finishJob(job, start)
			return
		}
	}

	w.submit(ctx, job)
	w.finishJob(job, start)
}

// claim takes ownership of an enqueued job with a conditional update so that
// concurrent workers polling the same queue cannot both process it.
func (w *Worker) claim(ctx context.Context, job *db.Job) (bool, error) {
	address := w.client.Address().Hex()
	claimed, err := w.store.ClaimJob(ctx, job.OrderHash, address)
	if err != nil || !claimed {
		return false, err
	}
	if err := jobs.Transition(job, db.JobStatusPendingProcessing); err != nil {
		return false, err
	}
	job.WorkerAddress = &address
	return true, nil
}

// validateAndConfirm runs validation, last look, and the eth_call preflight.
// It returns false when the job failed and was persisted in its failure
// status.
func (w *Worker) validateAndConfirm(ctx context.Context, job *db.Job) bool {
	if failure, ok := jobs.Validate(job, w.now()); !ok {
		w.logger.Info("Job failed validation",
			zap.String("order_hash", job.OrderHash),
			zap.String("status", string(failure)))
		w.fail(ctx, job, failure)
		return false
	}

	if !w.lastLook.Confirm(ctx, job) {
		// The coordinator already moved the job to the declined status
		// and cleared its calldata.
		job.IsCompleted = true
		if err := w.store.UpdateJob(ctx, job); err != nil {
			w.logger.Error("Failed to persist last look decline",
				zap.String("order_hash", job.OrderHash),
				zap.Error(err))
		}
		return false
	}

	if err := jobs.Transition(job, db.JobStatusPendingLastLookAccepted); err != nil {
		w.logger.Error("Last look transition failed", zap.Error(err))
		return false
	}
	if err := w.store.UpdateJob(ctx, job); err != nil {
		w.logger.Error("Failed to persist last look acceptance",
			zap.String("order_hash", job.OrderHash),
			zap.Error(err))
		return false
	}

	if err := w.preflight(ctx, job); err != nil {
		w.logger.Info("Fill preflight failed",
			zap.String("order_hash", job.OrderHash),
			zap.Error(err))
		w.fail(ctx, job, db.JobStatusFailedEthCallFailed)
		return false
	}

	return true
}

// preflight dry-runs the fill calldata against the settlement contract. A
// fill that reverts here would revert on chain, so there is no point paying
// gas for it. Transient node errors are retried.
func (w *Worker) preflight(ctx context.Context, job *db.Job) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if _, err := w.client.CallContract(ctx, w.exchangeProxy, job.Calldata); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(ethCallAttempts))
	return err
}

func (w *Worker) submit(ctx context.Context, job *db.Job) {
	status, err := w.submitter.SubmitJob(ctx, job)
	if err != nil {
		w.logger.Error("Submission failed",
			zap.String("order_hash", job.OrderHash),
			zap.Error(err))
		if jobs.CanTransition(job.Status, db.JobStatusFailedSubmitFailed) {
			w.fail(ctx, job, db.JobStatusFailedSubmitFailed)
		}
		return
	}

	w.logger.Info("Job resolved",
		zap.String("order_hash", job.OrderHash),
		zap.String("status", string(status)))
}

func (w *Worker) fail(ctx context.Context, job *db.Job, status db.JobStatus) {
	if err := jobs.Transition(job, status); err != nil {
		w.logger.Error("Failure transition rejected", zap.Error(err))
		return
	}
	if err := w.store.UpdateJob(ctx, job); err != nil {
		w.logger.Error("Failed to persist job failure",
			zap.String("order_hash", job.OrderHash),
			zap.Error(err))
	}
}

func (w *Worker) finishJob(job *db.Job, start time.Time) {
	if !job.Status.IsResolved() {
		return
	}
	metrics.JobsProcessedTotal.WithLabelValues(string(job.Status)).Inc()
	metrics.JobDuration.WithLabelValues(string(job.Status)).Observe(w.now().Sub(start).Seconds())
}

func (w *Worker) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		w.maybeBeat(ctx)
	}
}

// maybeBeat publishes a heartbeat only while the worker is ready to fill. A
// worker whose node is down or whose balance is under the floor goes silent
// so the health monitor can flag it as stale.
func (w *Worker) maybeBeat(ctx context.Context) {
	if !w.CheckReadiness(ctx) {
		return
	}
	w.beat(ctx)
}

func (w *Worker) beat(ctx context.Context) {
	address := w.client.Address()

	balance, err := w.client.Balance(ctx, address)
	if err != nil {
		w.logger.Warn("Heartbeat balance lookup failed", zap.Error(err))
		return
	}

	hb := &db.WorkerHeartbeat{
		Address:    address.Hex(),
		Index:      w.cfg.Index,
		ChainID:    w.chainID,
		BalanceWei: balance,
	}
	if err := w.store.UpsertHeartbeat(ctx, hb); err != nil {
		w.logger.Warn("Heartbeat write failed", zap.Error(err))
		return
	}

	balanceFloat, _ := new(big.Float).SetInt(balance).Float64()
	metrics.WorkerBalance.WithLabelValues(address.Hex()).Set(balanceFloat)
	metrics.WorkerHeartbeatTimestamp.WithLabelValues(address.Hex()).Set(float64(w.now().Unix()))

	if depth, err := w.store.CountUnresolvedJobs(ctx); err == nil {
		metrics.QueueDepth.Set(float64(depth))
	}
}
