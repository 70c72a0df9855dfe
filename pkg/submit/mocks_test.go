package submit

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/rfqlabs/rfq-relayer/pkg/db"
)

type mockEthClient struct {
	addressFunc             func() common.Address
	suggestGasPriceFunc     func(ctx context.Context) (*big.Int, error)
	pendingNonceFunc        func(ctx context.Context) (uint64, error)
	blockNumberFunc         func(ctx context.Context) (uint64, error)
	signFillTransactionFunc func(nonce uint64, to common.Address, data []byte, gasPrice *big.Int) (*types.Transaction, error)
	sendTransactionFunc     func(ctx context.Context, tx *types.Transaction) error
	transactionByHashFunc   func(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	transactionReceiptFunc  func(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

func (m *mockEthClient) Address() common.Address {
	if m.addressFunc != nil {
		return m.addressFunc()
	}
	return common.HexToAddress("0x9999999999999999999999999999999999999999")
}

func (m *mockEthClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return m.suggestGasPriceFunc(ctx)
}

func (m *mockEthClient) PendingNonce(ctx context.Context) (uint64, error) {
	return m.pendingNonceFunc(ctx)
}

func (m *mockEthClient) BlockNumber(ctx context.Context) (uint64, error) {
	return m.blockNumberFunc(ctx)
}

func (m *mockEthClient) SignFillTransaction(nonce uint64, to common.Address, data []byte, gasPrice *big.Int) (*types.Transaction, error) {
	if m.signFillTransactionFunc != nil {
		return m.signFillTransactionFunc(nonce, to, data, gasPrice)
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      500000,
		GasPrice: gasPrice,
		Data:     data,
	}), nil
}

func (m *mockEthClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return m.sendTransactionFunc(ctx, tx)
}

func (m *mockEthClient) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	return m.transactionByHashFunc(ctx, hash)
}

func (m *mockEthClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return m.transactionReceiptFunc(ctx, hash)
}

// mockStore records submissions and job updates in memory.
type mockStore struct {
	mu          sync.Mutex
	submissions []*db.TransactionSubmission
	jobUpdates  []db.JobStatus

	findSubmissionsFunc func(ctx context.Context, orderHash string) ([]*db.TransactionSubmission, error)
}

func (m *mockStore) UpdateJob(_ context.Context, job *db.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobUpdates = append(m.jobUpdates, job.Status)
	return nil
}

func (m *mockStore) InsertSubmission(_ context.Context, sub *db.TransactionSubmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions = append(m.submissions, sub)
	return nil
}

func (m *mockStore) UpdateSubmissions(_ context.Context, _ []*db.TransactionSubmission) error {
	return nil
}

func (m *mockStore) FindSubmissionsByOrderHash(ctx context.Context, orderHash string) ([]*db.TransactionSubmission, error) {
	if m.findSubmissionsFunc != nil {
		return m.findSubmissionsFunc(ctx, orderHash)
	}
	return nil, nil
}
