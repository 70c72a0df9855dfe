// Package submit broadcasts fill transactions and watches them to finality.
//
// Every transaction broadcast for a job is recorded before it is sent (the
// presubmit record), so a crash between signing and broadcasting never loses
// track of a transaction that may be live in the mempool.
package submit

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rfqlabs/rfq-relayer/internal/metrics"
	"github.com/rfqlabs/rfq-relayer/pkg/db"
	"github.com/rfqlabs/rfq-relayer/pkg/jobs"
)

// EthClient is the node client surface the manager needs.
type EthClient interface {
	Address() common.Address
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonce(ctx context.Context) (uint64, error)
	BlockNumber(ctx context.Context) (uint64, error)
	SignFillTransaction(nonce uint64, to common.Address, data []byte, gasPrice *big.Int) (*types.Transaction, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Store is the persistence surface the manager needs.
type Store interface {
	UpdateJob(ctx context.Context, job *db.Job) error
	InsertSubmission(ctx context.Context, sub *db.TransactionSubmission) error
	UpdateSubmissions(ctx context.Context, subs []*db.TransactionSubmission) error
	FindSubmissionsByOrderHash(ctx context.Context, orderHash string) ([]*db.TransactionSubmission, error)
}

// Manager submits jobs on chain and watches them until their outcome is
// final.
type Manager struct {
	client        EthClient
	store         Store
	to            common.Address
	watchInterval time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

func NewManager(client EthClient, store Store, to common.Address, watchInterval time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		client:        client,
		store:         store,
		to:            to,
		watchInterval: watchInterval,
		logger:        logger,
		now:           time.Now,
	}
}

// SubmitJob broadcasts the job's fill transaction (or picks up transactions
// left by a crashed run) and watches the nonce until a transaction reaches
// finality or the order expires unmined. It returns the job's final status.
//
// On error before anything was broadcast, the caller decides the failure
// status; once a transaction may be live the manager keeps going until it
// resolves or the context is cancelled.
func (m *Manager) SubmitJob(ctx context.Context, job *db.Job) (db.JobStatus, error) {
	sctx, err := m.recoverSubmissions(ctx, job)
	if err != nil {
		return "", err
	}

	if sctx == nil {
		sctx, err = m.firstSubmission(ctx, job)
		if err != nil {
			return "", err
		}
	}

	if job.Status == db.JobStatusPendingLastLookAccepted {
		if err := jobs.Transition(job, db.JobStatusPendingSubmitted); err != nil {
			return "", err
		}
		if err := m.store.UpdateJob(ctx, job); err != nil {
			return "", fmt.Errorf("failed to persist submitted status: %w", err)
		}
	}

	return m.watch(ctx, job, sctx)
}

// recoverSubmissions rebuilds the submission context after a restart. It
// returns nil when the job was never submitted. Presubmit records whose
// transactions the node knows are promoted to submitted; if no recorded
// transaction is live anywhere, a replacement is broadcast at the same nonce
// so the watch loop has something to watch.
func (m *Manager) recoverSubmissions(ctx context.Context, job *db.Job) (*SubmissionContext, error) {
	subs, err := m.store.FindSubmissionsByOrderHash(ctx, job.OrderHash)
	if err != nil {
		return nil, fmt.Errorf("failed to load submissions: %w", err)
	}
	if len(subs) == 0 {
		return nil, nil
	}

	sctx, err := NewSubmissionContext(subs)
	if err != nil {
		return nil, fmt.Errorf("inconsistent submissions for order %s: %w", job.OrderHash, err)
	}
	if !strings.EqualFold(sctx.FromAddress(), m.client.Address().Hex()) {
		return nil, fmt.Errorf("order %s has submissions from %s, not this worker", job.OrderHash, sctx.FromAddress())
	}

	anyLive := false
	var promoted []*db.TransactionSubmission
	for _, sub := range sctx.Submissions() {
		if sub.Status != db.SubmissionStatusPresubmit {
			anyLive = true
			continue
		}
		_, _, err := m.client.TransactionByHash(ctx, common.HexToHash(sub.TxHash))
		switch {
		case err == nil:
			sub.Status = db.SubmissionStatusSubmitted
			promoted = append(promoted, sub)
			anyLive = true
		case errors.Is(err, ethereum.NotFound):
			// Signed but never reached the node. A later receipt for
			// this nonce marks it dropped and replaced.
			m.logger.Info("Presubmit transaction unknown to node",
				zap.String("order_hash", job.OrderHash),
				zap.String("tx_hash", sub.TxHash))
		default:
			return nil, fmt.Errorf("failed to look up transaction %s: %w", sub.TxHash, err)
		}
	}
	if len(promoted) > 0 {
		if err := m.store.UpdateSubmissions(ctx, promoted); err != nil {
			return nil, fmt.Errorf("failed to persist recovered submissions: %w", err)
		}
	}

	if !anyLive {
		if err := m.broadcast(ctx, job, sctx, m.replacementGasPrice(ctx, sctx)); err != nil {
			return nil, err
		}
	}

	m.logger.Info("Recovered submission context",
		zap.String("order_hash", job.OrderHash),
		zap.Int64("nonce", sctx.Nonce()),
		zap.Int("submissions", len(sctx.Submissions())))
	return sctx, nil
}

// replacementGasPrice picks a price for re-broadcasting a nonce whose
// transactions all went missing: the suggested price, bumped over the prior
// maximum when the suggestion alone would not qualify as a replacement.
func (m *Manager) replacementGasPrice(ctx context.Context, sctx *SubmissionContext) *big.Int {
	maxPrior := sctx.MaxGasPrice()
	suggested, err := m.client.SuggestGasPrice(ctx)
	if err != nil || suggested == nil {
		suggested = new(big.Int)
	}
	if ShouldResubmit(maxPrior, suggested) {
		return suggested
	}
	bumped := new(big.Int).Mul(maxPrior, big.NewInt(gasBumpNumerator))
	bumped.Add(bumped, big.NewInt(gasBumpDenominator-1))
	return bumped.Quo(bumped, big.NewInt(gasBumpDenominator))
}

func (m *Manager) firstSubmission(ctx context.Context, job *db.Job) (*SubmissionContext, error) {
	nonce, err := m.client.PendingNonce(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := m.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	tx, err := m.client.SignFillTransaction(nonce, m.to, job.Calldata, gasPrice)
	if err != nil {
		return nil, fmt.Errorf("failed to sign fill transaction: %w", err)
	}

	sub := &db.TransactionSubmission{
		ID:          uuid.NewString(),
		OrderHash:   job.OrderHash,
		TxHash:      tx.Hash().Hex(),
		FromAddress: m.client.Address().Hex(),
		ToAddress:   m.to.Hex(),
		Nonce:       int64(nonce),
		GasPrice:    gasPrice,
		Status:      db.SubmissionStatusPresubmit,
	}

	// Persist before broadcasting so a crash in between never orphans a
	// transaction the mempool may have seen.
	if err := m.store.InsertSubmission(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to record presubmit: %w", err)
	}
	if err := m.client.SendTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to broadcast fill: %w", err)
	}

	sub.Status = db.SubmissionStatusSubmitted
	if err := m.store.UpdateSubmissions(ctx, []*db.TransactionSubmission{sub}); err != nil {
		return nil, fmt.Errorf("failed to persist submission: %w", err)
	}
	metrics.TransactionsSubmitted.WithLabelValues("fill").Inc()

	m.logger.Info("Fill transaction submitted",
		zap.String("order_hash", job.OrderHash),
		zap.String("tx_hash", sub.TxHash),
		zap.Int64("nonce", sub.Nonce),
		zap.String("gas_price", gasPrice.String()))

	return NewSubmissionContext([]*db.TransactionSubmission{sub})
}

// broadcast signs and sends a new transaction at the context nonce with
// presubmit-first bookkeeping, then adds it to the context.
func (m *Manager) broadcast(ctx context.Context, job *db.Job, sctx *SubmissionContext, gasPrice *big.Int) error {
	nonce := uint64(sctx.Nonce())
	tx, err := m.client.SignFillTransaction(nonce, m.to, job.Calldata, gasPrice)
	if err != nil {
		return fmt.Errorf("failed to sign replacement: %w", err)
	}

	sub := &db.TransactionSubmission{
		ID:          uuid.NewString(),
		OrderHash:   job.OrderHash,
		TxHash:      tx.Hash().Hex(),
		FromAddress: m.client.Address().Hex(),
		ToAddress:   m.to.Hex(),
		Nonce:       sctx.Nonce(),
		GasPrice:    gasPrice,
		Status:      db.SubmissionStatusPresubmit,
	}
	if err := sctx.Add(sub); err != nil {
		// Deterministic signing can reproduce an already-tracked hash
		// when nothing about the transaction changed.
		return nil
	}

	if err := m.store.InsertSubmission(ctx, sub); err != nil {
		return fmt.Errorf("failed to record presubmit: %w", err)
	}
	if err := m.client.SendTransaction(ctx, tx); err != nil {
		m.logger.Warn("Replacement broadcast failed",
			zap.String("order_hash", job.OrderHash),
			zap.String("tx_hash", sub.TxHash),
			zap.Error(err))
		return nil
	}

	sub.Status = db.SubmissionStatusSubmitted
	if err := m.store.UpdateSubmissions(ctx, []*db.TransactionSubmission{sub}); err != nil {
		return fmt.Errorf("failed to persist submission: %w", err)
	}
	metrics.TransactionsSubmitted.WithLabelValues("fill").Inc()

	m.logger.Info("Replacement transaction submitted",
		zap.String("order_hash", job.OrderHash),
		zap.String("tx_hash", sub.TxHash),
		zap.String("gas_price", gasPrice.String()))
	return nil
}

func (m *Manager) watch(ctx context.Context, job *db.Job, sctx *SubmissionContext) (db.JobStatus, error) {
	ticker := time.NewTicker(m.watchInterval)
	defer ticker.Stop()

	deadline := watchDeadline(job.ExpiryUnix)
	expiry := time.Unix(job.ExpiryUnix, 0)

	for {
		status, done, mined := m.checkReceipts(ctx, job, sctx)
		if done {
			return status, nil
		}

		now := m.now()
		switch {
		case mined:
			// Mined but below finality depth. Keep polling; never
			// escalate against a transaction that already landed.
		case job.Status == db.JobStatusPendingSubmitted && now.After(deadline):
			if err := jobs.Transition(job, db.JobStatusFailedExpired); err != nil {
				return "", err
			}
			if err := m.store.UpdateJob(ctx, job); err != nil {
				return "", fmt.Errorf("failed to persist expiry: %w", err)
			}
			m.logger.Info("Fill expired unmined",
				zap.String("order_hash", job.OrderHash),
				zap.Int64("nonce", sctx.Nonce()))
			return db.JobStatusFailedExpired, nil
		case now.Before(expiry):
			m.maybeEscalate(ctx, job, sctx)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// checkReceipts polls every tracked hash once. It returns the final job
// status and done=true when a transaction reached finality, and mined=true
// while a receipt exists but is still below finality depth.
func (m *Manager) checkReceipts(ctx context.Context, job *db.Job, sctx *SubmissionContext) (db.JobStatus, bool, bool) {
	for _, hash := range sctx.Hashes() {
		receipt, err := m.client.TransactionReceipt(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			continue
		}
		if err != nil {
			m.logger.Warn("Receipt lookup failed",
				zap.String("tx_hash", hash.Hex()),
				zap.Error(err))
			continue
		}

		currentBlock, err := m.client.BlockNumber(ctx)
		if err != nil {
			m.logger.Warn("Block number lookup failed", zap.Error(err))
			return "", false, true
		}
		confirmed := IsBlockConfirmed(int64(currentBlock), receipt.BlockNumber.Int64())

		mined, status, err := sctx.ApplyReceipt(receipt, hash, confirmed)
		if err != nil {
			m.logger.Error("Failed to apply receipt", zap.Error(err))
			return "", false, true
		}
		if err := m.store.UpdateSubmissions(ctx, sctx.Submissions()); err != nil {
			m.logger.Warn("Failed to persist submission statuses", zap.Error(err))
			return "", false, true
		}

		if job.Status != status && jobs.CanTransition(job.Status, status) {
			if err := jobs.Transition(job, status); err == nil {
				if err := m.store.UpdateJob(ctx, job); err != nil {
					m.logger.Warn("Failed to persist job status", zap.Error(err))
				}
			}
		}

		if confirmed {
			metrics.GasUsed.WithLabelValues("fill").Observe(float64(receipt.GasUsed))
			m.logger.Info("Fill reached finality",
				zap.String("order_hash", job.OrderHash),
				zap.String("tx_hash", mined.TxHash),
				zap.String("status", string(status)))
			return status, true, true
		}
		return "", false, true
	}
	return "", false, false
}

// maybeEscalate re-broadcasts at the suggested gas price when it clears the
// replacement threshold over the highest price sent so far.
func (m *Manager) maybeEscalate(ctx context.Context, job *db.Job, sctx *SubmissionContext) {
	suggested, err := m.client.SuggestGasPrice(ctx)
	if err != nil {
		m.logger.Warn("Gas price lookup failed", zap.Error(err))
		return
	}
	if !ShouldResubmit(sctx.MaxGasPrice(), suggested) {
		return
	}

	if err := m.broadcast(ctx, job, sctx, suggested); err != nil {
		m.logger.Warn("Gas escalation failed",
			zap.String("order_hash", job.OrderHash),
			zap.Error(err))
		return
	}
	metrics.GasEscalationsTotal.Inc()
}
