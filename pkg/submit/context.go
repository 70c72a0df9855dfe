package submit

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/rfqlabs/rfq-relayer/pkg/db"
)

// SubmissionContext tracks every transaction ever broadcast for one job.
// All submissions share a nonce, so at most one of them can ever mine; the
// rest become dropped and replaced the moment a receipt lands.
type SubmissionContext struct {
	submissions []*db.TransactionSubmission
}

// NewSubmissionContext builds a context from existing submissions, enforcing
// the invariants the watch loop relies on: at least one submission, one
// shared nonce, one sending address, and no duplicate transaction hashes.
func NewSubmissionContext(submissions []*db.TransactionSubmission) (*SubmissionContext, error) {
	if len(submissions) == 0 {
		return nil, fmt.Errorf("submission context requires at least one submission")
	}

	first := submissions[0]
	seen := make(map[string]struct{}, len(submissions))
	for _, sub := range submissions {
		if sub.Nonce != first.Nonce {
			return nil, fmt.Errorf("submission %s has nonce %d, expected %d", sub.TxHash, sub.Nonce, first.Nonce)
		}
		if !strings.EqualFold(sub.FromAddress, first.FromAddress) {
			return nil, fmt.Errorf("submission %s sent from %s, expected %s", sub.TxHash, sub.FromAddress, first.FromAddress)
		}
		key := strings.ToLower(sub.TxHash)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("duplicate transaction hash %s", sub.TxHash)
		}
		seen[key] = struct{}{}
	}

	return &SubmissionContext{submissions: submissions}, nil
}

// Add appends a new submission, enforcing the same invariants.
func (s *SubmissionContext) Add(sub *db.TransactionSubmission) error {
	if sub.Nonce != s.Nonce() {
		return fmt.Errorf("submission %s has nonce %d, expected %d", sub.TxHash, sub.Nonce, s.Nonce())
	}
	for _, existing := range s.submissions {
		if strings.EqualFold(existing.TxHash, sub.TxHash) {
			return fmt.Errorf("duplicate transaction hash %s", sub.TxHash)
		}
	}
	s.submissions = append(s.submissions, sub)
	return nil
}

// Nonce is the shared nonce of every submission in the context.
func (s *SubmissionContext) Nonce() int64 {
	return s.submissions[0].Nonce
}

// FromAddress is the shared sending address.
func (s *SubmissionContext) FromAddress() string {
	return s.submissions[0].FromAddress
}

// Submissions returns the tracked submissions in insertion order.
func (s *SubmissionContext) Submissions() []*db.TransactionSubmission {
	return s.submissions
}

// MaxGasPrice returns the highest gas price broadcast so far. Escalation
// decisions compare against this, never against the first price.
func (s *SubmissionContext) MaxGasPrice() *big.Int {
	max := new(big.Int)
	for _, sub := range s.submissions {
		if sub.GasPrice != nil && sub.GasPrice.Cmp(max) > 0 {
			max.Set(sub.GasPrice)
		}
	}
	return max
}

// Hashes returns every tracked transaction hash.
func (s *SubmissionContext) Hashes() []common.Hash {
	hashes := make([]common.Hash, len(s.submissions))
	for i, sub := range s.submissions {
		hashes[i] = common.HexToHash(sub.TxHash)
	}
	return hashes
}

// ApplyReceipt records the mined outcome on the matching submission and
// marks every other submission dropped and replaced. It returns the mined
// submission and the job status implied by the receipt.
func (s *SubmissionContext) ApplyReceipt(receipt *types.Receipt, minedHash common.Hash, confirmed bool) (*db.TransactionSubmission, db.JobStatus, error) {
	var mined *db.TransactionSubmission
	for _, sub := range s.submissions {
		if strings.EqualFold(sub.TxHash, minedHash.Hex()) {
			mined = sub
			break
		}
	}
	if mined == nil {
		return nil, "", fmt.Errorf("receipt for unknown transaction %s", minedHash.Hex())
	}

	succeeded := receipt.Status == types.ReceiptStatusSuccessful
	mined.Status = submissionStatus(succeeded, confirmed)
	gasUsed := int64(receipt.GasUsed)
	mined.GasUsed = &gasUsed
	blockMined := receipt.BlockNumber.Int64()
	mined.BlockMined = &blockMined

	for _, sub := range s.submissions {
		if sub != mined {
			sub.Status = db.SubmissionStatusDroppedAndReplaced
		}
	}

	return mined, jobStatus(succeeded, confirmed), nil
}

func submissionStatus(succeeded, confirmed bool) db.SubmissionStatus {
	switch {
	case succeeded && confirmed:
		return db.SubmissionStatusSucceededConfirmed
	case succeeded:
		return db.SubmissionStatusSucceededUnconfirmed
	case confirmed:
		return db.SubmissionStatusRevertedConfirmed
	default:
		return db.SubmissionStatusRevertedUnconfirmed
	}
}

func jobStatus(succeeded, confirmed bool) db.JobStatus {
	switch {
	case succeeded && confirmed:
		return db.JobStatusSucceededConfirmed
	case succeeded:
		return db.JobStatusSucceededUnconfirmed
	case confirmed:
		return db.JobStatusFailedRevertedConfirmed
	default:
		return db.JobStatusFailedRevertedUnconfirmed
	}
}
