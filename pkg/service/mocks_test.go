package service

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rfqlabs/rfq-relayer/pkg/db"
	"github.com/rfqlabs/rfq-relayer/pkg/quote"
	"github.com/rfqlabs/rfq-relayer/pkg/rfq"
)

type mockStore struct {
	mu     sync.Mutex
	quotes map[string]*db.Quote
	jobs   map[string]*db.Job

	hasPendingFunc     func(taker, takerToken string) (bool, error)
	submissionsFunc    func(orderHash string) ([]*db.TransactionSubmission, error)
	unresolvedCount    int
	unresolvedCountErr error
	heartbeats         []*db.WorkerHeartbeat
}

func newMockStore() *mockStore {
	return &mockStore{
		quotes: make(map[string]*db.Quote),
		jobs:   make(map[string]*db.Job),
	}
}

func (m *mockStore) InsertQuote(_ context.Context, q *db.Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.quotes[q.OrderHash]; ok {
		return db.ErrAlreadyExists
	}
	m.quotes[q.OrderHash] = q
	return nil
}

func (m *mockStore) GetQuoteByMetaTxHash(_ context.Context, metaTxHash string) (*db.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range m.quotes {
		if q.MetaTxHash == metaTxHash {
			return q, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *mockStore) GetJob(_ context.Context, orderHash string) (*db.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[orderHash]
	if !ok {
		return nil, db.ErrNotFound
	}
	return job, nil
}

func (m *mockStore) InsertJob(_ context.Context, job *db.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.OrderHash]; ok {
		return db.ErrAlreadyExists
	}
	m.jobs[job.OrderHash] = job
	return nil
}

func (m *mockStore) HasPendingJobForPair(_ context.Context, taker, takerToken string) (bool, error) {
	if m.hasPendingFunc != nil {
		return m.hasPendingFunc(taker, takerToken)
	}
	return false, nil
}

func (m *mockStore) FindSubmissionsByOrderHash(_ context.Context, orderHash string) ([]*db.TransactionSubmission, error) {
	if m.submissionsFunc != nil {
		return m.submissionsFunc(orderHash)
	}
	return nil, nil
}

func (m *mockStore) CountUnresolvedJobs(_ context.Context) (int, error) {
	return m.unresolvedCount, m.unresolvedCountErr
}

func (m *mockStore) FindHeartbeats(_ context.Context) ([]*db.WorkerHeartbeat, error) {
	return m.heartbeats, nil
}

type mockMakerClient struct {
	pricesFunc func(req quote.Request) []*quote.Pricing
	quotesFunc func(req quote.Request) []*quote.FirmQuote
}

func (m *mockMakerClient) FetchPrices(_ context.Context, _ []string, req quote.Request, _ *rfq.Fee) []*quote.Pricing {
	if m.pricesFunc != nil {
		return m.pricesFunc(req)
	}
	return nil
}

func (m *mockMakerClient) FetchQuotes(_ context.Context, _ []string, req quote.Request, _ *rfq.Fee) []*quote.FirmQuote {
	if m.quotesFunc != nil {
		return m.quotesFunc(req)
	}
	return nil
}

type mockEthClient struct {
	gasPriceFunc func() (*big.Int, error)
	callFunc     func(to common.Address, data []byte) ([]byte, error)
}

func (m *mockEthClient) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	if m.gasPriceFunc != nil {
		return m.gasPriceFunc()
	}
	return big.NewInt(10_000_000_000), nil
}

func (m *mockEthClient) CallContract(_ context.Context, to common.Address, data []byte) ([]byte, error) {
	if m.callFunc != nil {
		return m.callFunc(to, data)
	}
	return nil, nil
}
