package worker

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rfqlabs/rfq-relayer/pkg/db"
)

type mockEthClient struct {
	addressFunc         func() common.Address
	suggestGasPriceFunc func(ctx context.Context) (*big.Int, error)
	balanceFunc         func(ctx context.Context, address common.Address) (*big.Int, error)
	callContractFunc    func(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

func (m *mockEthClient) Address() common.Address {
	if m.addressFunc != nil {
		return m.addressFunc()
	}
	return common.HexToAddress("0x9999999999999999999999999999999999999999")
}

func (m *mockEthClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if m.suggestGasPriceFunc != nil {
		return m.suggestGasPriceFunc(ctx)
	}
	return big.NewInt(10_000_000_000), nil
}

func (m *mockEthClient) Balance(ctx context.Context, address common.Address) (*big.Int, error) {
	if m.balanceFunc != nil {
		return m.balanceFunc(ctx, address)
	}
	return big.NewInt(1_000_000_000_000_000_000), nil
}

func (m *mockEthClient) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	if m.callContractFunc != nil {
		return m.callContractFunc(ctx, to, data)
	}
	return nil, nil
}

type mockSubmitter struct {
	submitJobFunc func(ctx context.Context, job *db.Job) (db.JobStatus, error)
	calls         int
}

func (m *mockSubmitter) SubmitJob(ctx context.Context, job *db.Job) (db.JobStatus, error) {
	m.calls++
	return m.submitJobFunc(ctx, job)
}

type mockConfirmer struct {
	confirmFunc func(ctx context.Context, job *db.Job) bool
}

func (m *mockConfirmer) Confirm(ctx context.Context, job *db.Job) bool {
	if m.confirmFunc != nil {
		return m.confirmFunc(ctx, job)
	}
	return true
}

type mockStore struct {
	mu         sync.Mutex
	jobUpdates []db.JobStatus
	heartbeats []*db.WorkerHeartbeat
	claimedBy  map[string]string

	claimJobFunc                   func(ctx context.Context, orderHash, workerAddress string) (bool, error)
	findJobsWithStatusesFunc       func(ctx context.Context, statuses []db.JobStatus) ([]*db.Job, error)
	findUnresolvedJobsByWorkerFunc func(ctx context.Context, workerAddress string) ([]*db.Job, error)
}

func (m *mockStore) UpdateJob(_ context.Context, job *db.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobUpdates = append(m.jobUpdates, job.Status)
	return nil
}

func (m *mockStore) ClaimJob(ctx context.Context, orderHash, workerAddress string) (bool, error) {
	if m.claimJobFunc != nil {
		return m.claimJobFunc(ctx, orderHash, workerAddress)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimedBy == nil {
		m.claimedBy = make(map[string]string)
	}
	if _, taken := m.claimedBy[orderHash]; taken {
		return false, nil
	}
	m.claimedBy[orderHash] = workerAddress
	return true, nil
}

func (m *mockStore) FindJobsWithStatuses(ctx context.Context, statuses []db.JobStatus) ([]*db.Job, error) {
	if m.findJobsWithStatusesFunc != nil {
		return m.findJobsWithStatusesFunc(ctx, statuses)
	}
	return nil, nil
}

func (m *mockStore) FindUnresolvedJobsByWorker(ctx context.Context, workerAddress string) ([]*db.Job, error) {
	if m.findUnresolvedJobsByWorkerFunc != nil {
		return m.findUnresolvedJobsByWorkerFunc(ctx, workerAddress)
	}
	return nil, nil
}

func (m *mockStore) CountUnresolvedJobs(context.Context) (int, error) {
	return 0, nil
}

func (m *mockStore) UpsertHeartbeat(_ context.Context, hb *db.WorkerHeartbeat) error {
	m.heartbeats = append(m.heartbeats, hb)
	return nil
}
