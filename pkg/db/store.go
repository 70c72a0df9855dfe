package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/rfqlabs/rfq-relayer/pkg/db/dao"
	"github.com/rfqlabs/rfq-relayer/pkg/rfq"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
)

// Store provides database operations for quotes, jobs and submissions
type Store struct {
	db *bun.DB
}

// NewStore creates a new database store
func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	return false
}

// InsertQuote persists a firm quote
func (s *Store) InsertQuote(ctx context.Context, quote *Quote) error {
	d, err := quoteToDao(quote)
	if err != nil {
		return err
	}
	if _, err := s.db.NewInsert().Model(d).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert quote: %w", err)
	}
	return nil
}

// GetQuote retrieves a quote by order hash
func (s *Store) GetQuote(ctx context.Context, orderHash string) (*Quote, error) {
	d := new(dao.QuoteDao)
	err := s.db.NewSelect().Model(d).Where("order_hash = ?", orderHash).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}
	return quoteFromDao(d)
}

// GetQuoteByMetaTxHash retrieves a quote by meta-transaction hash. Submissions
// reference quotes this way.
func (s *Store) GetQuoteByMetaTxHash(ctx context.Context, metaTxHash string) (*Quote, error) {
	d := new(dao.QuoteDao)
	err := s.db.NewSelect().Model(d).Where("meta_transaction_hash ILIKE ?", metaTxHash).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}
	return quoteFromDao(d)
}

// InsertJob persists a new job. Returns ErrAlreadyExists when a job for the
// same order hash is already queued.
func (s *Store) InsertJob(ctx context.Context, job *Job) error {
	d, err := jobToDao(job)
	if err != nil {
		return err
	}
	if _, err := s.db.NewInsert().Model(d).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by order hash
func (s *Store) GetJob(ctx context.Context, orderHash string) (*Job, error) {
	d := new(dao.JobDao)
	err := s.db.NewSelect().Model(d).Where("order_hash = ?", orderHash).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return jobFromDao(d)
}

// UpdateJob writes back all mutable job fields
func (s *Store) UpdateJob(ctx context.Context, job *Job) error {
	d, err := jobToDao(job)
	if err != nil {
		return err
	}
	d.UpdatedAt = time.Now().UTC()
	_, err = s.db.NewUpdate().
		Model(d).
		Column("status", "order_json", "fee_json", "taker_signature_json",
			"maker_signature_json", "calldata", "worker_address", "last_look_result",
			"is_completed", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return nil
}

// ClaimJob atomically moves an enqueued, unclaimed job to pending_processing
// under the given worker. Returns false when another worker claimed it first.
func (s *Store) ClaimJob(ctx context.Context, orderHash, workerAddress string) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*dao.JobDao)(nil)).
		Set("status = ?", string(JobStatusPendingProcessing)).
		Set("worker_address = ?", workerAddress).
		Set("updated_at = ?", time.Now().UTC()).
		Where("order_hash = ?", orderHash).
		Where("status = ?", string(JobStatusPendingEnqueued)).
		Where("worker_address IS NULL").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}
	return rows == 1, nil
}

// FindJobsWithStatuses retrieves jobs in any of the given statuses, oldest first
func (s *Store) FindJobsWithStatuses(ctx context.Context, statuses []JobStatus) ([]*Job, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	raw := make([]string, len(statuses))
	for i, st := range statuses {
		raw[i] = string(st)
	}

	var daos []dao.JobDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("status IN (?)", bun.In(raw)).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find jobs: %w", err)
	}
	return jobsFromDaos(daos)
}

// FindUnresolvedJobsByWorker retrieves unresolved jobs claimed by a worker
// that have not yet been marked completed
func (s *Store) FindUnresolvedJobsByWorker(ctx context.Context, workerAddress string) ([]*Job, error) {
	statuses := UnresolvedJobStatuses()
	raw := make([]string, len(statuses))
	for i, st := range statuses {
		raw[i] = string(st)
	}

	var daos []dao.JobDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("worker_address = ?", workerAddress).
		Where("is_completed = FALSE").
		Where("status IN (?)", bun.In(raw)).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find unresolved jobs: %w", err)
	}
	return jobsFromDaos(daos)
}

// HasPendingJobForPair reports whether an unresolved job exists for the same
// taker and taker token. Used to throttle concurrent submissions.
func (s *Store) HasPendingJobForPair(ctx context.Context, taker, takerToken string) (bool, error) {
	statuses := UnresolvedJobStatuses()
	raw := make([]string, len(statuses))
	for i, st := range statuses {
		raw[i] = string(st)
	}

	exists, err := s.db.NewSelect().
		Model((*dao.JobDao)(nil)).
		Where("status IN (?)", bun.In(raw)).
		Where("order_json->'otc'->>'taker' ILIKE ? OR order_json->'v4rfq'->>'taker' ILIKE ?", taker, taker).
		Where("order_json->'otc'->>'takerToken' ILIKE ? OR order_json->'v4rfq'->>'takerToken' ILIKE ?", takerToken, takerToken).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check pending jobs: %w", err)
	}
	return exists, nil
}

// CountUnresolvedJobs returns the queue depth across all workers
func (s *Store) CountUnresolvedJobs(ctx context.Context) (int, error) {
	statuses := UnresolvedJobStatuses()
	raw := make([]string, len(statuses))
	for i, st := range statuses {
		raw[i] = string(st)
	}

	count, err := s.db.NewSelect().
		Model((*dao.JobDao)(nil)).
		Where("status IN (?)", bun.In(raw)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count unresolved jobs: %w", err)
	}
	return count, nil
}

// InsertSubmission persists a new transaction submission
func (s *Store) InsertSubmission(ctx context.Context, sub *TransactionSubmission) error {
	d := submissionToDao(sub)
	if _, err := s.db.NewInsert().Model(d).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert submission: %w", err)
	}
	return nil
}

// UpdateSubmissions writes back status, gas used and mined block for each
// submission in a single transaction
func (s *Store) UpdateSubmissions(ctx context.Context, subs []*TransactionSubmission) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now().UTC()
		for _, sub := range subs {
			d := submissionToDao(sub)
			d.UpdatedAt = now
			_, err := tx.NewUpdate().
				Model(d).
				Column("status", "gas_used", "block_mined", "updated_at").
				WherePK().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to update submission %s: %w", sub.ID, err)
			}
		}
		return nil
	})
}

// FindSubmissionsByOrderHash retrieves all submissions for a job, oldest first
func (s *Store) FindSubmissionsByOrderHash(ctx context.Context, orderHash string) ([]*TransactionSubmission, error) {
	var daos []dao.TransactionSubmissionDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("order_hash = ?", orderHash).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find submissions: %w", err)
	}

	subs := make([]*TransactionSubmission, len(daos))
	for i := range daos {
		sub, err := submissionFromDao(&daos[i])
		if err != nil {
			return nil, err
		}
		subs[i] = sub
	}
	return subs, nil
}

// UpsertHeartbeat records a worker heartbeat
func (s *Store) UpsertHeartbeat(ctx context.Context, hb *WorkerHeartbeat) error {
	d := &dao.WorkerHeartbeatDao{
		Address:    hb.Address,
		Index:      hb.Index,
		ChainID:    hb.ChainID,
		BalanceWei: hb.BalanceWei.String(),
		UpdatedAt:  time.Now().UTC(),
	}
	_, err := s.db.NewInsert().
		Model(d).
		On("CONFLICT (address) DO UPDATE").
		Set("worker_index = EXCLUDED.worker_index").
		Set("chain_id = EXCLUDED.chain_id").
		Set("balance_wei = EXCLUDED.balance_wei").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert heartbeat: %w", err)
	}
	return nil
}

// FindHeartbeats retrieves all worker heartbeats
func (s *Store) FindHeartbeats(ctx context.Context) ([]*WorkerHeartbeat, error) {
	var daos []dao.WorkerHeartbeatDao
	err := s.db.NewSelect().Model(&daos).Order("worker_index ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find heartbeats: %w", err)
	}

	hbs := make([]*WorkerHeartbeat, len(daos))
	for i := range daos {
		balance, ok := new(big.Int).SetString(normalizeNumeric(daos[i].BalanceWei), 10)
		if !ok {
			return nil, fmt.Errorf("invalid balance %q for worker %s", daos[i].BalanceWei, daos[i].Address)
		}
		hbs[i] = &WorkerHeartbeat{
			Address:    daos[i].Address,
			Index:      daos[i].Index,
			ChainID:    daos[i].ChainID,
			BalanceWei: balance,
			UpdatedAt:  daos[i].UpdatedAt,
		}
	}
	return hbs, nil
}

// normalizeNumeric strips the fractional part postgres NUMERIC may add
func normalizeNumeric(v string) string {
	for i := 0; i < len(v); i++ {
		if v[i] == '.' {
			return v[:i]
		}
	}
	return v
}

func quoteToDao(q *Quote) (*dao.QuoteDao, error) {
	orderJSON, err := json.Marshal(q.Order)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order: %w", err)
	}
	var feeJSON []byte
	if q.Fee != nil {
		if feeJSON, err = json.Marshal(q.Fee); err != nil {
			return nil, fmt.Errorf("failed to encode fee: %w", err)
		}
	}
	var makerSigJSON []byte
	if q.MakerSignature != nil {
		if makerSigJSON, err = json.Marshal(q.MakerSignature); err != nil {
			return nil, fmt.Errorf("failed to encode maker signature: %w", err)
		}
	}
	return &dao.QuoteDao{
		OrderHash:    q.OrderHash,
		MetaTxHash:   q.MetaTxHash,
		ChainID:      q.ChainID,
		IntegratorID: q.IntegratorID,
		MakerURI:     q.MakerURI,
		OrderJSON:    orderJSON,
		FeeJSON:      feeJSON,
		MakerSigJSON: makerSigJSON,
		CreatedAt:    q.CreatedAt,
	}, nil
}

func quoteFromDao(d *dao.QuoteDao) (*Quote, error) {
	q := &Quote{
		OrderHash:    d.OrderHash,
		MetaTxHash:   d.MetaTxHash,
		ChainID:      d.ChainID,
		IntegratorID: d.IntegratorID,
		MakerURI:     d.MakerURI,
		CreatedAt:    d.CreatedAt,
	}
	if len(d.OrderJSON) > 0 {
		q.Order = new(rfq.StoredOrder)
		if err := json.Unmarshal(d.OrderJSON, q.Order); err != nil {
			return nil, fmt.Errorf("failed to decode order: %w", err)
		}
	}
	if len(d.FeeJSON) > 0 {
		q.Fee = new(rfq.StoredFee)
		if err := json.Unmarshal(d.FeeJSON, q.Fee); err != nil {
			return nil, fmt.Errorf("failed to decode fee: %w", err)
		}
	}
	if len(d.MakerSigJSON) > 0 {
		q.MakerSignature = new(rfq.Signature)
		if err := json.Unmarshal(d.MakerSigJSON, q.MakerSignature); err != nil {
			return nil, fmt.Errorf("failed to decode maker signature: %w", err)
		}
	}
	return q, nil
}

func jobToDao(j *Job) (*dao.JobDao, error) {
	d := &dao.JobDao{
		OrderHash:      j.OrderHash,
		ChainID:        j.ChainID,
		IntegratorID:   j.IntegratorID,
		MakerURI:       j.MakerURI,
		Status:         string(j.Status),
		Kind:           string(j.Kind),
		Calldata:       j.Calldata,
		ExpiryUnix:     j.ExpiryUnix,
		WorkerAddress:  j.WorkerAddress,
		LastLookResult: j.LastLookResult,
		IsCompleted:    j.IsCompleted,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
	}

	var err error
	if j.Order != nil {
		if d.OrderJSON, err = json.Marshal(j.Order); err != nil {
			return nil, fmt.Errorf("failed to encode order: %w", err)
		}
	}
	if j.Fee != nil {
		if d.FeeJSON, err = json.Marshal(j.Fee); err != nil {
			return nil, fmt.Errorf("failed to encode fee: %w", err)
		}
	}
	if j.TakerSignature != nil {
		if d.TakerSigJSON, err = json.Marshal(j.TakerSignature); err != nil {
			return nil, fmt.Errorf("failed to encode taker signature: %w", err)
		}
	}
	if j.MakerSignature != nil {
		if d.MakerSigJSON, err = json.Marshal(j.MakerSignature); err != nil {
			return nil, fmt.Errorf("failed to encode maker signature: %w", err)
		}
	}
	return d, nil
}

func jobFromDao(d *dao.JobDao) (*Job, error) {
	j := &Job{
		OrderHash:      d.OrderHash,
		ChainID:        d.ChainID,
		IntegratorID:   d.IntegratorID,
		MakerURI:       d.MakerURI,
		Status:         JobStatus(d.Status),
		Kind:           rfq.Kind(d.Kind),
		Calldata:       d.Calldata,
		ExpiryUnix:     d.ExpiryUnix,
		WorkerAddress:  d.WorkerAddress,
		LastLookResult: d.LastLookResult,
		IsCompleted:    d.IsCompleted,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}

	if len(d.OrderJSON) > 0 {
		j.Order = new(rfq.StoredOrder)
		if err := json.Unmarshal(d.OrderJSON, j.Order); err != nil {
			return nil, fmt.Errorf("failed to decode order: %w", err)
		}
	}
	if len(d.FeeJSON) > 0 {
		j.Fee = new(rfq.StoredFee)
		if err := json.Unmarshal(d.FeeJSON, j.Fee); err != nil {
			return nil, fmt.Errorf("failed to decode fee: %w", err)
		}
	}
	if len(d.TakerSigJSON) > 0 {
		j.TakerSignature = new(rfq.Signature)
		if err := json.Unmarshal(d.TakerSigJSON, j.TakerSignature); err != nil {
			return nil, fmt.Errorf("failed to decode taker signature: %w", err)
		}
	}
	if len(d.MakerSigJSON) > 0 {
		j.MakerSignature = new(rfq.Signature)
		if err := json.Unmarshal(d.MakerSigJSON, j.MakerSignature); err != nil {
			return nil, fmt.Errorf("failed to decode maker signature: %w", err)
		}
	}
	return j, nil
}

func jobsFromDaos(daos []dao.JobDao) ([]*Job, error) {
	jobs := make([]*Job, len(daos))
	for i := range daos {
		job, err := jobFromDao(&daos[i])
		if err != nil {
			return nil, err
		}
		jobs[i] = job
	}
	return jobs, nil
}

func submissionToDao(sub *TransactionSubmission) *dao.TransactionSubmissionDao {
	return &dao.TransactionSubmissionDao{
		ID:          sub.ID,
		OrderHash:   sub.OrderHash,
		TxHash:      sub.TxHash,
		FromAddress: sub.FromAddress,
		ToAddress:   sub.ToAddress,
		Nonce:       sub.Nonce,
		GasPrice:    sub.GasPrice.String(),
		GasUsed:     sub.GasUsed,
		BlockMined:  sub.BlockMined,
		Status:      string(sub.Status),
		CreatedAt:   sub.CreatedAt,
		UpdatedAt:   sub.UpdatedAt,
	}
}

func submissionFromDao(d *dao.TransactionSubmissionDao) (*TransactionSubmission, error) {
	gasPrice, ok := new(big.Int).SetString(normalizeNumeric(d.GasPrice), 10)
	if !ok {
		return nil, fmt.Errorf("invalid gas price %q for submission %s", d.GasPrice, d.ID)
	}
	return &TransactionSubmission{
		ID:          d.ID,
		OrderHash:   d.OrderHash,
		TxHash:      d.TxHash,
		FromAddress: d.FromAddress,
		ToAddress:   d.ToAddress,
		Nonce:       d.Nonce,
		GasPrice:    gasPrice,
		GasUsed:     d.GasUsed,
		BlockMined:  d.BlockMined,
		Status:      SubmissionStatus(d.Status),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}, nil
}
