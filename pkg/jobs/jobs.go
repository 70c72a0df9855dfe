// Package jobs holds validation and status transition rules for fill jobs.
package jobs

import (
	"fmt"
	"time"

	"github.com/rfqlabs/rfq-relayer/pkg/db"
)

// Validate checks that a claimed job still carries everything needed to fill
// it. It returns the failure status to park the job in when it doesn't, and
// ok=true when the job may proceed. Checks run in a fixed order so a job
// missing several fields always fails the same way.
func Validate(job *db.Job, now time.Time) (db.JobStatus, bool) {
	if len(job.Calldata) == 0 {
		return db.JobStatusFailedValidationNoCalldata, false
	}
	if job.MakerURI == "" {
		return db.JobStatusFailedValidationNoMakerURI, false
	}
	if job.Order == nil {
		return db.JobStatusFailedValidationNoOrder, false
	}
	if _, err := job.Order.ToOrder(); err != nil {
		return db.JobStatusFailedValidationNoOrder, false
	}
	if job.Fee == nil {
		return db.JobStatusFailedValidationNoFee, false
	}
	if _, err := job.Fee.ToFee(); err != nil {
		return db.JobStatusFailedValidationNoFee, false
	}
	if now.Unix() >= job.ExpiryUnix {
		return db.JobStatusFailedExpired, false
	}
	return "", true
}

// transitions lists the allowed next statuses for each status. Terminal
// statuses have no entries.
var transitions = map[db.JobStatus][]db.JobStatus{
	db.JobStatusPendingEnqueued: {
		db.JobStatusPendingProcessing,
		db.JobStatusFailedExpired,
		db.JobStatusFailedValidationNoOrder,
		db.JobStatusFailedValidationNoMakerURI,
		db.JobStatusFailedValidationNoFee,
		db.JobStatusFailedValidationNoCalldata,
	},
	db.JobStatusPendingProcessing: {
		db.JobStatusPendingLastLookAccepted,
		db.JobStatusFailedLastLookDeclined,
		db.JobStatusFailedEthCallFailed,
		db.JobStatusFailedExpired,
		db.JobStatusFailedValidationNoOrder,
		db.JobStatusFailedValidationNoMakerURI,
		db.JobStatusFailedValidationNoFee,
		db.JobStatusFailedValidationNoCalldata,
	},
	db.JobStatusPendingLastLookAccepted: {
		db.JobStatusPendingSubmitted,
		db.JobStatusFailedEthCallFailed,
		db.JobStatusFailedSubmitFailed,
		db.JobStatusFailedExpired,
	},
	db.JobStatusPendingSubmitted: {
		db.JobStatusSucceededUnconfirmed,
		db.JobStatusSucceededConfirmed,
		db.JobStatusFailedRevertedUnconfirmed,
		db.JobStatusFailedRevertedConfirmed,
		db.JobStatusFailedExpired,
	},
	db.JobStatusSucceededUnconfirmed: {
		db.JobStatusSucceededConfirmed,
	},
	db.JobStatusFailedRevertedUnconfirmed: {
		db.JobStatusFailedRevertedConfirmed,
	},
}

// CanTransition reports whether moving a job from one status to another is
// allowed.
func CanTransition(from, to db.JobStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the job to the given status, marking it completed when
// the status is terminal. It fails on any move the status machine does not
// allow, which guards against stale workers resurrecting finished jobs.
func Transition(job *db.Job, to db.JobStatus) error {
	if !CanTransition(job.Status, to) {
		return fmt.Errorf("illegal job transition %s -> %s for order %s", job.Status, to, job.OrderHash)
	}
	job.Status = to
	if to.IsResolved() {
		job.IsCompleted = true
	}
	return nil
}
