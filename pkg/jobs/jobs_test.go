package jobs

import (
	"math/big"
	"testing"
	"time"

	"github.com/rfqlabs/rfq-relayer/pkg/db"
	"github.com/rfqlabs/rfq-relayer/pkg/rfq"
)

func validJob() *db.Job {
	return &db.Job{
		OrderHash: "0x0000000000000000000000000000000000000000000000000000000000000001",
		ChainID:   1,
		MakerURI:  "https://maker.example.com",
		Status:    db.JobStatusPendingProcessing,
		Kind:      rfq.KindOtc,
		Order: &rfq.StoredOrder{
			Kind: rfq.KindOtc,
			Otc: &rfq.StoredOtcOrder{
				Maker:          "0x1111111111111111111111111111111111111111",
				Taker:          "0x2222222222222222222222222222222222222222",
				MakerToken:     "0x3333333333333333333333333333333333333333",
				TakerToken:     "0x4444444444444444444444444444444444444444",
				MakerAmount:    "105",
				TakerAmount:    "100",
				TxOrigin:       "0x5555555555555555555555555555555555555555",
				ExpiryAndNonce: rfq.EncodeExpiryAndNonce(big.NewInt(2000000000), big.NewInt(1), big.NewInt(7)).String(),
			},
		},
		Fee:        &rfq.StoredFee{Token: "0x4444444444444444444444444444444444444444", Amount: "42", Type: "fixed"},
		Calldata:   []byte{0xde, 0xad},
		ExpiryUnix: 2000000000,
	}
}

func TestValidate(t *testing.T) {
	now := time.Unix(1000000000, 0)

	cases := []struct {
		name   string
		mutate func(j *db.Job)
		want   db.JobStatus
	}{
		{"missing_order", func(j *db.Job) { j.Order = nil }, db.JobStatusFailedValidationNoOrder},
		{"unparseable_order", func(j *db.Job) { j.Order.Otc.MakerAmount = "bogus" }, db.JobStatusFailedValidationNoOrder},
		{"missing_maker_uri", func(j *db.Job) { j.MakerURI = "" }, db.JobStatusFailedValidationNoMakerURI},
		{"missing_fee", func(j *db.Job) { j.Fee = nil }, db.JobStatusFailedValidationNoFee},
		{"unparseable_fee", func(j *db.Job) { j.Fee.Amount = "-1" }, db.JobStatusFailedValidationNoFee},
		{"missing_calldata", func(j *db.Job) { j.Calldata = nil }, db.JobStatusFailedValidationNoCalldata},
		{"expired", func(j *db.Job) { j.ExpiryUnix = now.Unix() }, db.JobStatusFailedExpired},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			job := validJob()
			tc.mutate(job)
			status, ok := Validate(job, now)
			if ok {
				t.Fatal("expected validation failure")
			}
			if status != tc.want {
				t.Fatalf("got %s, want %s", status, tc.want)
			}
		})
	}

	if _, ok := Validate(validJob(), now); !ok {
		t.Fatal("valid job rejected")
	}
}

func TestValidate_CheckOrder(t *testing.T) {
	// A job missing everything fails on the calldata first, then maker URI,
	// order, and fee as each earlier deficiency is repaired.
	job := validJob()
	job.Order = nil
	job.MakerURI = ""
	job.Fee = nil
	job.Calldata = nil

	now := time.Unix(0, 0)

	status, ok := Validate(job, now)
	if ok || status != db.JobStatusFailedValidationNoCalldata {
		t.Fatalf("got %s, want %s", status, db.JobStatusFailedValidationNoCalldata)
	}

	job.Calldata = validJob().Calldata
	status, _ = Validate(job, now)
	if status != db.JobStatusFailedValidationNoMakerURI {
		t.Fatalf("got %s, want %s", status, db.JobStatusFailedValidationNoMakerURI)
	}

	job.MakerURI = validJob().MakerURI
	status, _ = Validate(job, now)
	if status != db.JobStatusFailedValidationNoOrder {
		t.Fatalf("got %s, want %s", status, db.JobStatusFailedValidationNoOrder)
	}

	job.Order = validJob().Order
	status, _ = Validate(job, now)
	if status != db.JobStatusFailedValidationNoFee {
		t.Fatalf("got %s, want %s", status, db.JobStatusFailedValidationNoFee)
	}
}

func TestCanTransition(t *testing.T) {
	allowed := [][2]db.JobStatus{
		{db.JobStatusPendingEnqueued, db.JobStatusPendingProcessing},
		{db.JobStatusPendingProcessing, db.JobStatusPendingLastLookAccepted},
		{db.JobStatusPendingProcessing, db.JobStatusFailedLastLookDeclined},
		{db.JobStatusPendingLastLookAccepted, db.JobStatusPendingSubmitted},
		{db.JobStatusPendingSubmitted, db.JobStatusSucceededConfirmed},
		{db.JobStatusSucceededUnconfirmed, db.JobStatusSucceededConfirmed},
		{db.JobStatusFailedRevertedUnconfirmed, db.JobStatusFailedRevertedConfirmed},
	}
	for _, pair := range allowed {
		if !CanTransition(pair[0], pair[1]) {
			t.Errorf("%s -> %s should be allowed", pair[0], pair[1])
		}
	}

	forbidden := [][2]db.JobStatus{
		{db.JobStatusPendingEnqueued, db.JobStatusPendingSubmitted},
		{db.JobStatusSucceededConfirmed, db.JobStatusPendingEnqueued},
		{db.JobStatusFailedExpired, db.JobStatusPendingProcessing},
		{db.JobStatusPendingSubmitted, db.JobStatusFailedLastLookDeclined},
		{db.JobStatusSucceededConfirmed, db.JobStatusSucceededUnconfirmed},
	}
	for _, pair := range forbidden {
		if CanTransition(pair[0], pair[1]) {
			t.Errorf("%s -> %s must be rejected", pair[0], pair[1])
		}
	}
}

func TestTransition(t *testing.T) {
	job := validJob()
	job.Status = db.JobStatusPendingSubmitted

	if err := Transition(job, db.JobStatusSucceededConfirmed); err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if job.Status != db.JobStatusSucceededConfirmed {
		t.Fatalf("unexpected status %s", job.Status)
	}
	if !job.IsCompleted {
		t.Fatal("terminal transition must mark the job completed")
	}

	if err := Transition(job, db.JobStatusPendingEnqueued); err == nil {
		t.Fatal("expected illegal transition error")
	}
}
