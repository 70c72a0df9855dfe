package submit

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/rfqlabs/rfq-relayer/pkg/db"
)

func sub(txHash string, nonce int64, gasPrice int64, status db.SubmissionStatus) *db.TransactionSubmission {
	return &db.TransactionSubmission{
		ID:          txHash,
		OrderHash:   "0x0000000000000000000000000000000000000000000000000000000000000001",
		TxHash:      txHash,
		FromAddress: "0x9999999999999999999999999999999999999999",
		ToAddress:   "0x8888888888888888888888888888888888888888",
		Nonce:       nonce,
		GasPrice:    big.NewInt(gasPrice),
		Status:      status,
	}
}

const (
	hashA = "0x00000000000000000000000000000000000000000000000000000000000000a1"
	hashB = "0x00000000000000000000000000000000000000000000000000000000000000a2"
	hashC = "0x00000000000000000000000000000000000000000000000000000000000000a3"
)

func TestNewSubmissionContext_Invariants(t *testing.T) {
	_, err := NewSubmissionContext(nil)
	require.Error(t, err)

	_, err = NewSubmissionContext([]*db.TransactionSubmission{
		sub(hashA, 7, 10, db.SubmissionStatusSubmitted),
		sub(hashB, 8, 11, db.SubmissionStatusSubmitted),
	})
	require.Error(t, err, "mixed nonces must be rejected")

	_, err = NewSubmissionContext([]*db.TransactionSubmission{
		sub(hashA, 7, 10, db.SubmissionStatusSubmitted),
		sub(hashA, 7, 11, db.SubmissionStatusSubmitted),
	})
	require.Error(t, err, "duplicate hashes must be rejected")

	other := sub(hashB, 7, 11, db.SubmissionStatusSubmitted)
	other.FromAddress = "0x7777777777777777777777777777777777777777"
	_, err = NewSubmissionContext([]*db.TransactionSubmission{
		sub(hashA, 7, 10, db.SubmissionStatusSubmitted),
		other,
	})
	require.Error(t, err, "mixed senders must be rejected")

	sctx, err := NewSubmissionContext([]*db.TransactionSubmission{
		sub(hashA, 7, 10, db.SubmissionStatusSubmitted),
		sub(hashB, 7, 12, db.SubmissionStatusSubmitted),
	})
	require.NoError(t, err)
	require.Equal(t, int64(7), sctx.Nonce())
	require.Equal(t, "12", sctx.MaxGasPrice().String())
}

func TestSubmissionContext_Add(t *testing.T) {
	sctx, err := NewSubmissionContext([]*db.TransactionSubmission{
		sub(hashA, 7, 10, db.SubmissionStatusSubmitted),
	})
	require.NoError(t, err)

	require.Error(t, sctx.Add(sub(hashB, 8, 11, db.SubmissionStatusPresubmit)))
	require.Error(t, sctx.Add(sub(hashA, 7, 11, db.SubmissionStatusPresubmit)))
	require.NoError(t, sctx.Add(sub(hashB, 7, 11, db.SubmissionStatusPresubmit)))
	require.Len(t, sctx.Submissions(), 2)
}

func TestSubmissionContext_MaxGasPriceIsMaxOfAll(t *testing.T) {
	// An escalation below a prior maximum must not lower the max.
	sctx, err := NewSubmissionContext([]*db.TransactionSubmission{
		sub(hashA, 7, 20, db.SubmissionStatusSubmitted),
		sub(hashB, 7, 15, db.SubmissionStatusSubmitted),
	})
	require.NoError(t, err)
	require.Equal(t, "20", sctx.MaxGasPrice().String())
}

func TestApplyReceipt(t *testing.T) {
	newCtx := func() *SubmissionContext {
		sctx, err := NewSubmissionContext([]*db.TransactionSubmission{
			sub(hashA, 7, 10, db.SubmissionStatusSubmitted),
			sub(hashB, 7, 12, db.SubmissionStatusSubmitted),
			sub(hashC, 7, 14, db.SubmissionStatusPresubmit),
		})
		require.NoError(t, err)
		return sctx
	}

	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(100),
		GasUsed:     120000,
	}

	t.Run("succeeded_confirmed", func(t *testing.T) {
		sctx := newCtx()
		mined, status, err := sctx.ApplyReceipt(receipt, common.HexToHash(hashB), true)
		require.NoError(t, err)
		require.Equal(t, hashB, mined.TxHash)
		require.Equal(t, db.JobStatusSucceededConfirmed, status)
		require.Equal(t, db.SubmissionStatusSucceededConfirmed, mined.Status)
		require.Equal(t, int64(120000), *mined.GasUsed)
		require.Equal(t, int64(100), *mined.BlockMined)

		for _, s := range sctx.Submissions() {
			if s.TxHash != hashB {
				require.Equal(t, db.SubmissionStatusDroppedAndReplaced, s.Status)
			}
		}
	})

	t.Run("succeeded_unconfirmed", func(t *testing.T) {
		sctx := newCtx()
		mined, status, err := sctx.ApplyReceipt(receipt, common.HexToHash(hashB), false)
		require.NoError(t, err)
		require.Equal(t, db.JobStatusSucceededUnconfirmed, status)
		require.Equal(t, db.SubmissionStatusSucceededUnconfirmed, mined.Status)
	})

	t.Run("reverted_confirmed", func(t *testing.T) {
		reverted := &types.Receipt{
			Status:      types.ReceiptStatusFailed,
			BlockNumber: big.NewInt(100),
			GasUsed:     90000,
		}
		sctx := newCtx()
		mined, status, err := sctx.ApplyReceipt(reverted, common.HexToHash(hashA), true)
		require.NoError(t, err)
		require.Equal(t, db.JobStatusFailedRevertedConfirmed, status)
		require.Equal(t, db.SubmissionStatusRevertedConfirmed, mined.Status)

		// Exactly one submission carries the reverted outcome.
		count := 0
		for _, s := range sctx.Submissions() {
			if s.Status == db.SubmissionStatusRevertedConfirmed {
				count++
			}
		}
		require.Equal(t, 1, count)
	})

	t.Run("unknown_hash", func(t *testing.T) {
		sctx := newCtx()
		_, _, err := sctx.ApplyReceipt(receipt, common.HexToHash("0xff"), true)
		require.Error(t, err)
	})
}
