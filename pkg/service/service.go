// Package service implements the RFQ API: indicative prices, firm quotes,
// signed-quote submission and job status reporting.
package service

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/rfqlabs/rfq-relayer/internal/metrics"
	apperrors "github.com/rfqlabs/rfq-relayer/pkg/app/errors"
	"github.com/rfqlabs/rfq-relayer/pkg/config"
	"github.com/rfqlabs/rfq-relayer/pkg/db"
	"github.com/rfqlabs/rfq-relayer/pkg/quote"
	"github.com/rfqlabs/rfq-relayer/pkg/rfq"
)

// Store is the persistence surface the service needs
type Store interface {
	InsertQuote(ctx context.Context, quote *db.Quote) error
	GetQuoteByMetaTxHash(ctx context.Context, metaTxHash string) (*db.Quote, error)
	GetJob(ctx context.Context, orderHash string) (*db.Job, error)
	InsertJob(ctx context.Context, job *db.Job) error
	HasPendingJobForPair(ctx context.Context, taker, takerToken string) (bool, error)
	FindSubmissionsByOrderHash(ctx context.Context, orderHash string) ([]*db.TransactionSubmission, error)
	CountUnresolvedJobs(ctx context.Context) (int, error)
	FindHeartbeats(ctx context.Context) ([]*db.WorkerHeartbeat, error)
}

// MakerClient fans quote requests out to the configured makers
type MakerClient interface {
	FetchPrices(ctx context.Context, uris []string, req quote.Request, fee *rfq.Fee) []*quote.Pricing
	FetchQuotes(ctx context.Context, uris []string, req quote.Request, fee *rfq.Fee) []*quote.FirmQuote
}

// EthClient is the chain surface the service needs for fee pricing and the
// submit pre-flight call
type EthClient interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// Service answers price, quote, submit and status requests
type Service struct {
	cfg           *config.Config
	store         Store
	makers        MakerClient
	eth           EthClient
	exchangeProxy common.Address
	feeToken      common.Address
	logger        *zap.Logger

	health healthCache

	now func() time.Time
}

// New creates the RFQ service
func New(cfg *config.Config, store Store, makers MakerClient, eth EthClient, logger *zap.Logger) (*Service, error) {
	if !common.IsHexAddress(cfg.Ethereum.ExchangeProxy) {
		return nil, fmt.Errorf("invalid exchange proxy address %q", cfg.Ethereum.ExchangeProxy)
	}
	if !common.IsHexAddress(cfg.Quoting.FeeToken) {
		return nil, fmt.Errorf("invalid fee token address %q", cfg.Quoting.FeeToken)
	}
	return &Service{
		cfg:           cfg,
		store:         store,
		makers:        makers,
		eth:           eth,
		exchangeProxy: common.HexToAddress(cfg.Ethereum.ExchangeProxy),
		feeToken:      common.HexToAddress(cfg.Quoting.FeeToken),
		logger:        logger,
		now:           time.Now,
	}, nil
}

// PriceResult is the indicative quote returned from GET /price
type PriceResult struct {
	LiquidityAvailable bool   `json:"liquidityAvailable"`
	Price              string `json:"price,omitempty"`
	BuyAmount          string `json:"buyAmount,omitempty"`
	SellAmount         string `json:"sellAmount,omitempty"`
	BuyTokenAddress    string `json:"buyTokenAddress"`
	SellTokenAddress   string `json:"sellTokenAddress"`
	Gas                string `json:"gas,omitempty"`
	AllowanceTarget    string `json:"allowanceTarget,omitempty"`
}

// QuoteResult is the firm quote returned from GET /quote
type QuoteResult struct {
	PriceResult
	MetaTransactionHash string `json:"metaTransactionHash,omitempty"`
	OrderHash           string `json:"orderHash,omitempty"`
}

// SubmitResult is returned from POST /submit
type SubmitResult struct {
	MetaTransactionHash string `json:"metaTransactionHash"`
	OrderHash           string `json:"orderHash"`
}

// StatusTransaction is one broadcast attempt reported by GET /status
type StatusTransaction struct {
	Hash      string `json:"hash"`
	Timestamp int64  `json:"timestamp"`
}

// StatusResult is the externally visible job state
type StatusResult struct {
	Status       string              `json:"status"`
	Transactions []StatusTransaction `json:"transactions"`
}

// fee prices the relayer fee off the current gas price. The fee is charged in
// the configured fee token and covers the configured gas estimate.
func (s *Service) fee(ctx context.Context) (*rfq.Fee, error) {
	gasPrice, err := s.eth.SuggestGasPrice(ctx)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("service", "gas_price").Inc()
		return nil, apperrors.GeneralError(fmt.Errorf("failed to fetch gas price: %w", err))
	}
	amount := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(s.cfg.Quoting.FeeGasEstimate))
	return &rfq.Fee{Token: s.feeToken, Amount: amount, Type: rfq.FeeTypeGas}, nil
}

func (s *Service) emptyPrice(req quote.Request) PriceResult {
	return PriceResult{
		LiquidityAvailable: false,
		BuyTokenAddress:    req.BuyToken.Hex(),
		SellTokenAddress:   req.SellToken.Hex(),
	}
}

func (s *Service) priceResult(req quote.Request, p *quote.Pricing) PriceResult {
	makerAmount, takerAmount := quote.ScaleToRequest(p, req)
	return PriceResult{
		LiquidityAvailable: true,
		Price:              quote.FormatPrice(makerAmount, takerAmount),
		BuyAmount:          makerAmount.String(),
		SellAmount:         takerAmount.String(),
		BuyTokenAddress:    p.MakerToken.Hex(),
		SellTokenAddress:   p.TakerToken.Hex(),
		Gas:                fmt.Sprintf("%d", s.cfg.Quoting.FeeGasEstimate),
		AllowanceTarget:    s.exchangeProxy.Hex(),
	}
}

// GetPrice returns the best indicative price across all makers, or a response
// with liquidityAvailable=false when no maker can serve the request.
func (s *Service) GetPrice(ctx context.Context, req quote.Request) (*PriceResult, error) {
	fee, err := s.fee(ctx)
	if err != nil {
		return nil, err
	}

	prices := s.makers.FetchPrices(ctx, s.cfg.Makers.URIs, req, fee)
	minExpiry := s.now().Add(s.cfg.Quoting.MinExpiryWindow)

	best, ok := quote.SelectPricing(prices, req, minExpiry)
	if !ok {
		metrics.QuoteRequestsTotal.WithLabelValues("price", "no_liquidity").Inc()
		result := s.emptyPrice(req)
		return &result, nil
	}

	metrics.QuoteRequestsTotal.WithLabelValues("price", "ok").Inc()
	result := s.priceResult(req, best)
	return &result, nil
}

// GetQuote returns the best firm, maker-signed quote and persists it so a
// later signed submission can be correlated by meta-transaction hash.
func (s *Service) GetQuote(ctx context.Context, req quote.Request) (*QuoteResult, error) {
	if req.TakerAddress == nil {
		return nil, apperrors.BadRequestError(nil, "takerAddress is required")
	}

	fee, err := s.fee(ctx)
	if err != nil {
		return nil, err
	}

	quotes := s.makers.FetchQuotes(ctx, s.cfg.Makers.URIs, req, fee)
	minExpiry := s.now().Add(s.cfg.Quoting.MinExpiryWindow)

	best, ok := quote.SelectFirmQuote(quotes, req, minExpiry)
	if !ok {
		metrics.QuoteRequestsTotal.WithLabelValues("quote", "no_liquidity").Inc()
		return &QuoteResult{PriceResult: s.emptyPrice(req)}, nil
	}

	pricing, err := best.Pricing()
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to price signed order: %w", err))
	}
	orderHash, err := best.Order.Hash(s.cfg.Ethereum.ChainID, s.exchangeProxy)
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to hash order: %w", err))
	}
	metaTxHash, err := best.Order.MetaTransactionHash(s.cfg.Ethereum.ChainID, s.exchangeProxy)
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to hash meta transaction: %w", err))
	}

	record := &db.Quote{
		OrderHash:      orderHash.Hex(),
		MetaTxHash:     metaTxHash.Hex(),
		ChainID:        s.cfg.Ethereum.ChainID,
		IntegratorID:   req.IntegratorID,
		MakerURI:       best.MakerURI,
		Order:          best.Order.ToStored(),
		Fee:            best.Fee.ToStored(),
		MakerSignature: best.MakerSignature,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.InsertQuote(ctx, record); err != nil && err != db.ErrAlreadyExists {
		return nil, apperrors.GeneralError(fmt.Errorf("failed to persist quote: %w", err))
	}

	metrics.QuoteRequestsTotal.WithLabelValues("quote", "ok").Inc()
	return &QuoteResult{
		PriceResult:         s.priceResult(req, pricing),
		MetaTransactionHash: metaTxHash.Hex(),
		OrderHash:           orderHash.Hex(),
	}, nil
}

// SubmitSignedQuote accepts a taker-signed quote, validates it against the
// persisted quote record and enqueues the fill job. The job insert is the
// idempotency boundary: a duplicate order hash can never create two jobs.
func (s *Service) SubmitSignedQuote(ctx context.Context, metaTxHash string, takerSig *rfq.Signature) (*SubmitResult, error) {
	q, err := s.store.GetQuoteByMetaTxHash(ctx, metaTxHash)
	if err != nil {
		if err == db.ErrNotFound {
			return nil, apperrors.ResourceNotFoundError(err, "no quote found for this meta-transaction hash")
		}
		return nil, apperrors.GeneralError(err)
	}

	order, err := q.Order.ToOrder()
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("stored order is corrupt: %w", err))
	}
	expiry, err := order.Expiry()
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}
	remaining := time.Duration(expiry.Int64()-s.now().Unix()) * time.Second
	if remaining < s.cfg.Quoting.MinSubmitWindow {
		return nil, apperrors.BadRequestError(nil, "quote is about to expire")
	}

	taker := order.Taker()
	takerToken := order.TakerToken()
	pending, err := s.store.HasPendingJobForPair(ctx, taker.Hex(), takerToken.Hex())
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}
	if pending {
		return nil, apperrors.TooManyRequestsError(nil, "a fill is already pending for this taker and token")
	}

	calldata, err := rfq.FillCalldata(*order, q.MakerSignature, takerSig)
	if err != nil {
		return nil, apperrors.BadRequestError(err, "failed to build fill transaction")
	}
	if _, err := s.eth.CallContract(ctx, s.exchangeProxy, calldata); err != nil {
		metrics.ErrorsTotal.WithLabelValues("service", "eth_call").Inc()
		return nil, apperrors.BadRequestError(err, "fill transaction would revert")
	}

	job := &db.Job{
		OrderHash:      q.OrderHash,
		ChainID:        q.ChainID,
		IntegratorID:   q.IntegratorID,
		MakerURI:       q.MakerURI,
		Status:         db.JobStatusPendingEnqueued,
		Kind:           q.Order.Kind,
		Order:          q.Order,
		Fee:            q.Fee,
		TakerSignature: takerSig,
		MakerSignature: q.MakerSignature,
		Calldata:       calldata,
		ExpiryUnix:     expiry.Int64(),
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.InsertJob(ctx, job); err != nil {
		if err == db.ErrAlreadyExists {
			return nil, &apperrors.ServiceError{
				Category: apperrors.CategoryGeneralError,
				Message:  "order already submitted",
				Err:      err,
			}
		}
		return nil, apperrors.GeneralError(err)
	}

	s.logger.Info("job enqueued",
		zap.String("order_hash", q.OrderHash),
		zap.String("maker_uri", q.MakerURI),
		zap.Int64("expiry", expiry.Int64()))

	return &SubmitResult{MetaTransactionHash: q.MetaTxHash, OrderHash: q.OrderHash}, nil
}

// GetStatus reports the externally visible state of a job and its broadcast
// transactions.
func (s *Service) GetStatus(ctx context.Context, orderHash string) (*StatusResult, error) {
	job, err := s.store.GetJob(ctx, strings.ToLower(orderHash))
	if err != nil {
		if err == db.ErrNotFound {
			return nil, apperrors.ResourceNotFoundError(err, "unknown order hash")
		}
		return nil, apperrors.GeneralError(err)
	}

	subs, err := s.store.FindSubmissionsByOrderHash(ctx, job.OrderHash)
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}

	result := &StatusResult{
		Status:       externalStatus(job.Status),
		Transactions: make([]StatusTransaction, 0, len(subs)),
	}
	for _, sub := range subs {
		if sub.Status == db.SubmissionStatusPresubmit {
			continue
		}
		result.Transactions = append(result.Transactions, StatusTransaction{
			Hash:      sub.TxHash,
			Timestamp: sub.CreatedAt.Unix(),
		})
	}
	return result, nil
}

// externalStatus collapses the internal job state machine into the five
// states the status endpoint exposes.
func externalStatus(status db.JobStatus) string {
	switch status {
	case db.JobStatusPendingEnqueued, db.JobStatusPendingProcessing, db.JobStatusPendingLastLookAccepted:
		return "pending"
	case db.JobStatusPendingSubmitted:
		return "submitted"
	case db.JobStatusSucceededUnconfirmed:
		return "succeeded"
	case db.JobStatusSucceededConfirmed:
		return "confirmed"
	default:
		return "failed"
	}
}
