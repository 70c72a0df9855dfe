package service

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/rfqlabs/rfq-relayer/pkg/app/errors"
	"github.com/rfqlabs/rfq-relayer/pkg/config"
	"github.com/rfqlabs/rfq-relayer/pkg/db"
	"github.com/rfqlabs/rfq-relayer/pkg/quote"
	"github.com/rfqlabs/rfq-relayer/pkg/rfq"
)

var (
	sellToken = common.HexToAddress("0x4444444444444444444444444444444444444444")
	buyToken  = common.HexToAddress("0x3333333333333333333333333333333333333333")
	takerAddr = common.HexToAddress("0x2222222222222222222222222222222222222222")
	proxyAddr = "0x9999999999999999999999999999999999999999"

	testNow    = time.Unix(1_700_000_000, 0)
	testExpiry = int64(1_700_600_000)
)

func testConfig() *config.Config {
	return &config.Config{
		Ethereum: config.EthereumConfig{
			ChainID:       1,
			RPCURL:        "http://localhost:8545",
			ExchangeProxy: proxyAddr,
		},
		Makers: config.MakersConfig{
			URIs: []string{"https://maker-a.example.com", "https://maker-b.example.com"},
		},
		Quoting: config.QuotingConfig{
			MinExpiryWindow: time.Minute,
			MinSubmitWindow: 45 * time.Second,
			FeeToken:        "0x8888888888888888888888888888888888888888",
			FeeGasEstimate:  200000,
		},
	}
}

func newTestService(t *testing.T, store *mockStore, makers *mockMakerClient, eth *mockEthClient) *Service {
	t.Helper()
	svc, err := New(testConfig(), store, makers, eth, zap.NewNop())
	require.NoError(t, err)
	svc.now = func() time.Time { return testNow }
	return svc
}

func testPricing(uri string, makerAmount, takerAmount int64) *quote.Pricing {
	return &quote.Pricing{
		MakerURI:    uri,
		MakerToken:  buyToken,
		TakerToken:  sellToken,
		MakerAmount: big.NewInt(makerAmount),
		TakerAmount: big.NewInt(takerAmount),
		Expiry:      testExpiry,
	}
}

func testOrder(makerAmount, takerAmount int64) rfq.Order {
	return rfq.Order{
		Kind: rfq.KindOtc,
		Otc: &rfq.OtcOrder{
			Maker:          common.HexToAddress("0x1111111111111111111111111111111111111111"),
			Taker:          takerAddr,
			MakerToken:     buyToken,
			TakerToken:     sellToken,
			MakerAmount:    big.NewInt(makerAmount),
			TakerAmount:    big.NewInt(takerAmount),
			TxOrigin:       common.HexToAddress("0x5555555555555555555555555555555555555555"),
			ExpiryAndNonce: rfq.EncodeExpiryAndNonce(big.NewInt(testExpiry), big.NewInt(1), big.NewInt(7)),
		},
	}
}

func testSig(v int) *rfq.Signature {
	return &rfq.Signature{
		SignatureType: 3,
		V:             v,
		R:             "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		S:             "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
	}
}

func testFirmQuote(uri string, makerAmount, takerAmount int64) *quote.FirmQuote {
	return &quote.FirmQuote{
		MakerURI:       uri,
		Order:          testOrder(makerAmount, takerAmount),
		MakerSignature: testSig(27),
		Fee: &rfq.Fee{
			Token:  common.HexToAddress("0x8888888888888888888888888888888888888888"),
			Amount: big.NewInt(2_000_000_000_000_000),
			Type:   rfq.FeeTypeGas,
		},
	}
}

func sellRequest(amount int64) quote.Request {
	taker := takerAddr
	return quote.Request{
		Side:         quote.SideSell,
		SellToken:    sellToken,
		BuyToken:     buyToken,
		Amount:       big.NewInt(amount),
		TakerAddress: &taker,
	}
}

func TestGetPrice_BestMakerWins(t *testing.T) {
	prices := []*quote.Pricing{
		testPricing("https://maker-a.example.com", 200_000_000_000_000_000, 100_000_000_000_000_000),
		testPricing("https://maker-b.example.com", 150_000_000_000_000_000, 100_000_000_000_000_000),
	}

	for name, ordered := range map[string][]*quote.Pricing{
		"best_first": {prices[0], prices[1]},
		"best_last":  {prices[1], prices[0]},
	} {
		t.Run(name, func(t *testing.T) {
			makers := &mockMakerClient{pricesFunc: func(quote.Request) []*quote.Pricing { return ordered }}
			svc := newTestService(t, newMockStore(), makers, &mockEthClient{})

			result, err := svc.GetPrice(context.Background(), sellRequest(100_000_000_000_000_000))
			require.NoError(t, err)
			require.True(t, result.LiquidityAvailable)
			require.Equal(t, "2", result.Price)
			require.Equal(t, "200000000000000000", result.BuyAmount)
			require.Equal(t, "100000000000000000", result.SellAmount)
			require.Equal(t, common.HexToAddress(proxyAddr).Hex(), result.AllowanceTarget)
		})
	}
}

func TestGetPrice_NoLiquidity(t *testing.T) {
	makers := &mockMakerClient{}
	svc := newTestService(t, newMockStore(), makers, &mockEthClient{})

	result, err := svc.GetPrice(context.Background(), sellRequest(100_000_000_000_000_000))
	require.NoError(t, err)
	require.False(t, result.LiquidityAvailable)
	require.Empty(t, result.Price)
	require.Equal(t, buyToken.Hex(), result.BuyTokenAddress)
	require.Equal(t, sellToken.Hex(), result.SellTokenAddress)
}

func TestGetPrice_GasPriceUnavailable(t *testing.T) {
	eth := &mockEthClient{gasPriceFunc: func() (*big.Int, error) {
		return nil, context.DeadlineExceeded
	}}
	svc := newTestService(t, newMockStore(), &mockMakerClient{}, eth)

	_, err := svc.GetPrice(context.Background(), sellRequest(1000))
	require.Error(t, err)
	require.True(t, apperrors.IsInternalError(err))
}

func TestGetQuote_PersistsQuote(t *testing.T) {
	store := newMockStore()
	makers := &mockMakerClient{quotesFunc: func(quote.Request) []*quote.FirmQuote {
		return []*quote.FirmQuote{
			testFirmQuote("https://maker-b.example.com", 150_000_000_000_000_000, 100_000_000_000_000_000),
			testFirmQuote("https://maker-a.example.com", 200_000_000_000_000_000, 100_000_000_000_000_000),
		}
	}}
	svc := newTestService(t, store, makers, &mockEthClient{})

	result, err := svc.GetQuote(context.Background(), sellRequest(100_000_000_000_000_000))
	require.NoError(t, err)
	require.True(t, result.LiquidityAvailable)
	require.Equal(t, "2", result.Price)
	require.NotEmpty(t, result.OrderHash)
	require.NotEmpty(t, result.MetaTransactionHash)

	order := testOrder(200_000_000_000_000_000, 100_000_000_000_000_000)
	wantHash, err := order.Hash(1, common.HexToAddress(proxyAddr))
	require.NoError(t, err)
	require.Equal(t, wantHash.Hex(), result.OrderHash)

	stored := store.quotes[result.OrderHash]
	require.NotNil(t, stored)
	require.Equal(t, result.MetaTransactionHash, stored.MetaTxHash)
	require.Equal(t, "https://maker-a.example.com", stored.MakerURI)
	require.NotNil(t, stored.MakerSignature)

	// Asking again for the same liquidity is idempotent.
	again, err := svc.GetQuote(context.Background(), sellRequest(100_000_000_000_000_000))
	require.NoError(t, err)
	require.Equal(t, result.OrderHash, again.OrderHash)
}

func TestGetQuote_RequiresTakerAddress(t *testing.T) {
	svc := newTestService(t, newMockStore(), &mockMakerClient{}, &mockEthClient{})

	req := sellRequest(1000)
	req.TakerAddress = nil
	_, err := svc.GetQuote(context.Background(), req)
	require.True(t, apperrors.Is(err, apperrors.CategoryDataError))
}

func submittableQuote(t *testing.T) *db.Quote {
	t.Helper()
	order := testOrder(200_000_000_000_000_000, 100_000_000_000_000_000)
	orderHash, err := order.Hash(1, common.HexToAddress(proxyAddr))
	require.NoError(t, err)
	metaTxHash, err := order.MetaTransactionHash(1, common.HexToAddress(proxyAddr))
	require.NoError(t, err)
	return &db.Quote{
		OrderHash:  orderHash.Hex(),
		MetaTxHash: metaTxHash.Hex(),
		ChainID:    1,
		MakerURI:   "https://maker-a.example.com",
		Order:      order.ToStored(),
		Fee: &rfq.StoredFee{
			Token:  "0x8888888888888888888888888888888888888888",
			Amount: "2000000000000000",
			Type:   "gas",
		},
		MakerSignature: testSig(27),
		CreatedAt:      testNow,
	}
}

func TestSubmitSignedQuote_Success(t *testing.T) {
	store := newMockStore()
	q := submittableQuote(t)
	store.quotes[q.OrderHash] = q
	svc := newTestService(t, store, &mockMakerClient{}, &mockEthClient{})

	result, err := svc.SubmitSignedQuote(context.Background(), q.MetaTxHash, testSig(28))
	require.NoError(t, err)
	require.Equal(t, q.OrderHash, result.OrderHash)
	require.Equal(t, q.MetaTxHash, result.MetaTransactionHash)

	job := store.jobs[q.OrderHash]
	require.NotNil(t, job)
	require.Equal(t, db.JobStatusPendingEnqueued, job.Status)
	require.NotEmpty(t, job.Calldata)
	require.Equal(t, testExpiry, job.ExpiryUnix)
	require.NotNil(t, job.TakerSignature)
	require.NotNil(t, job.MakerSignature)
}

func TestSubmitSignedQuote_UnknownHash(t *testing.T) {
	svc := newTestService(t, newMockStore(), &mockMakerClient{}, &mockEthClient{})

	_, err := svc.SubmitSignedQuote(context.Background(),
		"0x00000000000000000000000000000000000000000000000000000000000000ff", testSig(28))
	require.True(t, apperrors.Is(err, apperrors.CategoryResourceNotFound))
}

func TestSubmitSignedQuote_AboutToExpire(t *testing.T) {
	store := newMockStore()
	q := submittableQuote(t)
	store.quotes[q.OrderHash] = q
	svc := newTestService(t, store, &mockMakerClient{}, &mockEthClient{})
	svc.now = func() time.Time { return time.Unix(testExpiry-30, 0) }

	_, err := svc.SubmitSignedQuote(context.Background(), q.MetaTxHash, testSig(28))
	require.True(t, apperrors.Is(err, apperrors.CategoryDataError))
	require.Empty(t, store.jobs)
}

func TestSubmitSignedQuote_PendingPair(t *testing.T) {
	store := newMockStore()
	q := submittableQuote(t)
	store.quotes[q.OrderHash] = q

	var gotTaker, gotToken string
	store.hasPendingFunc = func(taker, takerToken string) (bool, error) {
		gotTaker, gotToken = taker, takerToken
		return true, nil
	}
	svc := newTestService(t, store, &mockMakerClient{}, &mockEthClient{})

	_, err := svc.SubmitSignedQuote(context.Background(), q.MetaTxHash, testSig(28))
	require.True(t, apperrors.Is(err, apperrors.CategoryTooManyRequests))
	require.Equal(t, takerAddr.Hex(), gotTaker)
	require.Equal(t, sellToken.Hex(), gotToken)
}

func TestSubmitSignedQuote_PreflightReverts(t *testing.T) {
	store := newMockStore()
	q := submittableQuote(t)
	store.quotes[q.OrderHash] = q
	eth := &mockEthClient{callFunc: func(common.Address, []byte) ([]byte, error) {
		return nil, context.DeadlineExceeded
	}}
	svc := newTestService(t, store, &mockMakerClient{}, eth)

	_, err := svc.SubmitSignedQuote(context.Background(), q.MetaTxHash, testSig(28))
	require.True(t, apperrors.Is(err, apperrors.CategoryDataError))
	require.Empty(t, store.jobs)
}

func TestSubmitSignedQuote_Duplicate(t *testing.T) {
	store := newMockStore()
	q := submittableQuote(t)
	store.quotes[q.OrderHash] = q
	svc := newTestService(t, store, &mockMakerClient{}, &mockEthClient{})

	_, err := svc.SubmitSignedQuote(context.Background(), q.MetaTxHash, testSig(28))
	require.NoError(t, err)

	_, err = svc.SubmitSignedQuote(context.Background(), q.MetaTxHash, testSig(28))
	require.Error(t, err)
	require.True(t, apperrors.Is(err, apperrors.CategoryGeneralError))

	var svcErr *apperrors.ServiceError
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, "order already submitted", svcErr.Message)
	require.Len(t, store.jobs, 1)
}

func TestGetStatus_Mapping(t *testing.T) {
	cases := map[db.JobStatus]string{
		db.JobStatusPendingEnqueued:          "pending",
		db.JobStatusPendingProcessing:        "pending",
		db.JobStatusPendingLastLookAccepted:  "pending",
		db.JobStatusPendingSubmitted:         "submitted",
		db.JobStatusSucceededUnconfirmed:     "succeeded",
		db.JobStatusSucceededConfirmed:       "confirmed",
		db.JobStatusFailedRevertedConfirmed:  "failed",
		db.JobStatusFailedExpired:            "failed",
		db.JobStatusFailedLastLookDeclined:   "failed",
		db.JobStatusFailedValidationNoOrder:  "failed",
		db.JobStatusFailedEthCallFailed:      "failed",
	}
	for status, want := range cases {
		require.Equal(t, want, externalStatus(status), string(status))
	}
}

func TestGetStatus_ReportsTransactions(t *testing.T) {
	store := newMockStore()
	orderHash := "0x0000000000000000000000000000000000000000000000000000000000000001"
	store.jobs[orderHash] = &db.Job{OrderHash: orderHash, Status: db.JobStatusPendingSubmitted}
	store.submissionsFunc = func(string) ([]*db.TransactionSubmission, error) {
		return []*db.TransactionSubmission{
			{TxHash: "0xp1", Status: db.SubmissionStatusPresubmit, CreatedAt: testNow},
			{TxHash: "0xt1", Status: db.SubmissionStatusSubmitted, CreatedAt: testNow},
			{TxHash: "0xt2", Status: db.SubmissionStatusDroppedAndReplaced, CreatedAt: testNow.Add(time.Minute)},
		}, nil
	}
	svc := newTestService(t, store, &mockMakerClient{}, &mockEthClient{})

	result, err := svc.GetStatus(context.Background(), orderHash)
	require.NoError(t, err)
	require.Equal(t, "submitted", result.Status)
	require.Len(t, result.Transactions, 2)
	require.Equal(t, "0xt1", result.Transactions[0].Hash)
	require.Equal(t, testNow.Unix(), result.Transactions[0].Timestamp)
}

func TestGetStatus_Unknown(t *testing.T) {
	svc := newTestService(t, newMockStore(), &mockMakerClient{}, &mockEthClient{})

	_, err := svc.GetStatus(context.Background(),
		"0x00000000000000000000000000000000000000000000000000000000000000ff")
	require.True(t, apperrors.Is(err, apperrors.CategoryResourceNotFound))
}

func TestGetHealth_CachesAndFlagsStaleWorkers(t *testing.T) {
	store := newMockStore()
	store.unresolvedCount = 3
	store.heartbeats = []*db.WorkerHeartbeat{
		{Address: "0xaa", Index: 0, BalanceWei: big.NewInt(1000), UpdatedAt: testNow.Add(-time.Minute)},
	}
	svc := newTestService(t, store, &mockMakerClient{}, &mockEthClient{})

	result, err := svc.GetHealth(context.Background())
	require.NoError(t, err)
	require.True(t, result.Healthy)
	require.Equal(t, 3, result.QueueDepth)
	require.Len(t, result.Workers, 1)
	require.False(t, result.Workers[0].Stale)

	// Within the cache window the stored result is reused.
	store.unresolvedCount = 99
	cached, err := svc.GetHealth(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, cached.QueueDepth)

	// After the window a stale heartbeat flips health.
	svc.now = func() time.Time { return testNow.Add(10 * time.Minute) }
	refreshed, err := svc.GetHealth(context.Background())
	require.NoError(t, err)
	require.Equal(t, 99, refreshed.QueueDepth)
	require.False(t, refreshed.Healthy)
	require.True(t, refreshed.Workers[0].Stale)
}

func TestGetHealth_NoWorkers(t *testing.T) {
	svc := newTestService(t, newMockStore(), &mockMakerClient{}, &mockEthClient{})

	result, err := svc.GetHealth(context.Background())
	require.NoError(t, err)
	require.False(t, result.Healthy)
}
