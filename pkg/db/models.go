// Package db defines the persistent model for quotes, jobs and transaction
// submissions, and the postgres store that backs them.
package db

import (
	"math/big"
	"time"

	"github.com/rfqlabs/rfq-relayer/pkg/rfq"
)

// JobStatus represents the current state of an RFQ job
type JobStatus string

const (
	JobStatusPendingEnqueued            JobStatus = "pending_enqueued"
	JobStatusPendingProcessing          JobStatus = "pending_processing"
	JobStatusPendingLastLookAccepted    JobStatus = "pending_last_look_accepted"
	JobStatusPendingSubmitted           JobStatus = "pending_submitted"
	JobStatusSucceededUnconfirmed       JobStatus = "succeeded_unconfirmed"
	JobStatusSucceededConfirmed         JobStatus = "succeeded_confirmed"
	JobStatusFailedRevertedUnconfirmed  JobStatus = "failed_reverted_unconfirmed"
	JobStatusFailedRevertedConfirmed    JobStatus = "failed_reverted_confirmed"
	JobStatusFailedExpired              JobStatus = "failed_expired"
	JobStatusFailedValidationNoOrder    JobStatus = "failed_validation_no_order"
	JobStatusFailedValidationNoMakerURI JobStatus = "failed_validation_no_maker_uri"
	JobStatusFailedValidationNoFee      JobStatus = "failed_validation_no_fee"
	JobStatusFailedValidationNoCalldata JobStatus = "failed_validation_no_calldata"
	JobStatusFailedEthCallFailed        JobStatus = "failed_eth_call_failed"
	JobStatusFailedLastLookDeclined     JobStatus = "failed_last_look_declined"
	JobStatusFailedSubmitFailed         JobStatus = "failed_submit_failed"
)

// IsResolved reports whether the status is terminal for worker processing.
// Unconfirmed results still count as resolved; the watcher only needs to
// upgrade them to their confirmed variant.
func (s JobStatus) IsResolved() bool {
	switch s {
	case JobStatusPendingEnqueued,
		JobStatusPendingProcessing,
		JobStatusPendingLastLookAccepted,
		JobStatusPendingSubmitted:
		return false
	}
	return true
}

// UnresolvedJobStatuses lists statuses that a restarting worker must repair
func UnresolvedJobStatuses() []JobStatus {
	return []JobStatus{
		JobStatusPendingEnqueued,
		JobStatusPendingProcessing,
		JobStatusPendingLastLookAccepted,
		JobStatusPendingSubmitted,
	}
}

// SubmissionStatus represents the current state of one on-chain transaction
type SubmissionStatus string

const (
	SubmissionStatusPresubmit            SubmissionStatus = "presubmit"
	SubmissionStatusSubmitted            SubmissionStatus = "submitted"
	SubmissionStatusDroppedAndReplaced   SubmissionStatus = "dropped_and_replaced"
	SubmissionStatusSucceededUnconfirmed SubmissionStatus = "succeeded_unconfirmed"
	SubmissionStatusSucceededConfirmed   SubmissionStatus = "succeeded_confirmed"
	SubmissionStatusRevertedUnconfirmed  SubmissionStatus = "reverted_unconfirmed"
	SubmissionStatusRevertedConfirmed    SubmissionStatus = "reverted_confirmed"
)

// Quote records a firm quote handed to a taker, keyed by order hash
type Quote struct {
	OrderHash      string
	MetaTxHash     string
	ChainID        int64
	IntegratorID   *string
	MakerURI       string
	Order          *rfq.StoredOrder
	Fee            *rfq.StoredFee
	MakerSignature *rfq.Signature
	CreatedAt      time.Time
}

// Job tracks a signed quote submission through its lifecycle
type Job struct {
	OrderHash      string
	ChainID        int64
	IntegratorID   *string
	MakerURI       string
	Status         JobStatus
	Kind           rfq.Kind
	Order          *rfq.StoredOrder
	Fee            *rfq.StoredFee
	TakerSignature *rfq.Signature
	MakerSignature *rfq.Signature
	Calldata       []byte
	ExpiryUnix     int64
	WorkerAddress  *string
	// LastLookResult is nil until the maker has been asked.
	LastLookResult *bool
	IsCompleted    bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TransactionSubmission records one broadcast attempt for a job. All
// submissions of a job share the same account nonce; at most one ends up
// mined.
type TransactionSubmission struct {
	ID          string
	OrderHash   string
	TxHash      string
	FromAddress string
	ToAddress   string
	Nonce       int64
	GasPrice    *big.Int
	GasUsed     *int64
	BlockMined  *int64
	Status      SubmissionStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WorkerHeartbeat records liveness and balance for a worker address
type WorkerHeartbeat struct {
	Address    string
	Index      int
	ChainID    int64
	BalanceWei *big.Int
	UpdatedAt  time.Time
}
