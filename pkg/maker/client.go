// Package maker implements the HTTP client for market maker endpoints.
//
// Makers expose three endpoints relative to their configured URI: GET /price
// for indicative prices, GET /quote for firm signed quotes, and POST /submit
// for last look confirmation of a signed order.
package maker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rfqlabs/rfq-relayer/internal/metrics"
	"github.com/rfqlabs/rfq-relayer/pkg/config"
	"github.com/rfqlabs/rfq-relayer/pkg/quote"
	"github.com/rfqlabs/rfq-relayer/pkg/rfq"
)

const (
	pricePath  = "/price"
	quotePath  = "/quote"
	submitPath = "/submit"

	requestIDHeader = "X-Request-ID"

	// Limit error-body reads so we don't accidentally slurp huge responses.
	maxErrBodyBytes = 4096
)

// Client fetches prices and quotes from market makers and runs last look.
type Client struct {
	httpClient     *http.Client
	lastLookClient *http.Client
	validate       *validator.Validate
	logger         *zap.Logger
	chainID        int64
	txOrigin       common.Address
}

// NewClient creates a maker client. txOrigin is the worker address makers
// must pin their orders to.
func NewClient(cfg *config.MakersConfig, chainID int64, txOrigin common.Address, logger *zap.Logger) *Client {
	return &Client{
		httpClient:     &http.Client{Timeout: cfg.RequestTimeout},
		lastLookClient: &http.Client{Timeout: cfg.LastLookTimeout},
		validate:       validator.New(),
		logger:         logger,
		chainID:        chainID,
		txOrigin:       txOrigin,
	}
}

type priceResponse struct {
	MakerToken  string `json:"makerToken" validate:"required"`
	TakerToken  string `json:"takerToken" validate:"required"`
	MakerAmount string `json:"makerAmount" validate:"required,number"`
	TakerAmount string `json:"takerAmount" validate:"required,number"`
	Expiry      int64  `json:"expiry" validate:"required,gt=0"`
}

type quoteResponse struct {
	Order     *rfq.StoredOrder `json:"order" validate:"required"`
	Signature *rfq.Signature   `json:"signature" validate:"required"`
}

// LastLookRequest is the payload posted to a maker before a fill is
// submitted on chain.
type LastLookRequest struct {
	Order                rfq.StoredOrder `json:"order"`
	OrderHash            string          `json:"orderHash"`
	Fee                  rfq.StoredFee   `json:"fee"`
	TakerTokenFillAmount string          `json:"takerTokenFillAmount"`
}

// LastLookResponse is the maker's last look decision. The maker must echo
// the order hash, fee and fill amount it was asked to confirm.
type LastLookResponse struct {
	ProceedWithFill      *bool          `json:"proceedWithFill" validate:"required"`
	OrderHash            string         `json:"signedOrderHash" validate:"required"`
	Fee                  *rfq.StoredFee `json:"fee" validate:"required"`
	TakerTokenFillAmount string         `json:"takerTokenFillAmount" validate:"required"`
}

// FetchPrices queries all makers concurrently for an indicative price.
// Makers that error, time out, or return an invalid payload are skipped.
func (c *Client) FetchPrices(ctx context.Context, uris []string, req quote.Request, fee *rfq.Fee) []*quote.Pricing {
	results := make([]*quote.Pricing, len(uris))

	g, gctx := errgroup.WithContext(ctx)
	for i, uri := range uris {
		g.Go(func() error {
			p, err := c.fetchPrice(gctx, uri, req, fee)
			if err != nil {
				c.logger.Warn("Maker price request failed",
					zap.String("maker_uri", uri),
					zap.Error(err))
				metrics.ErrorsTotal.WithLabelValues("maker_client", "price").Inc()
				return nil
			}
			results[i] = p
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*quote.Pricing, 0, len(results))
	for _, p := range results {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// FetchQuotes queries all makers concurrently for a firm signed quote.
func (c *Client) FetchQuotes(ctx context.Context, uris []string, req quote.Request, fee *rfq.Fee) []*quote.FirmQuote {
	results := make([]*quote.FirmQuote, len(uris))

	g, gctx := errgroup.WithContext(ctx)
	for i, uri := range uris {
		g.Go(func() error {
			q, err := c.fetchQuote(gctx, uri, req, fee)
			if err != nil {
				c.logger.Warn("Maker quote request failed",
					zap.String("maker_uri", uri),
					zap.Error(err))
				metrics.ErrorsTotal.WithLabelValues("maker_client", "quote").Inc()
				return nil
			}
			results[i] = q
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*quote.FirmQuote, 0, len(results))
	for _, q := range results {
		if q != nil {
			out = append(out, q)
		}
	}
	return out
}

func (c *Client) fetchPrice(ctx context.Context, uri string, req quote.Request, fee *rfq.Fee) (*quote.Pricing, error) {
	timer := prometheus.NewTimer(metrics.MakerRequestDuration.WithLabelValues("price"))
	defer timer.ObserveDuration()

	var pr priceResponse
	if err := c.get(ctx, uri+pricePath, c.queryParams(req, fee), &pr); err != nil {
		return nil, err
	}
	if err := c.validate.Struct(&pr); err != nil {
		return nil, fmt.Errorf("invalid price response: %w", err)
	}

	makerAmount, ok := new(big.Int).SetString(pr.MakerAmount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid makerAmount %q", pr.MakerAmount)
	}
	takerAmount, ok := new(big.Int).SetString(pr.TakerAmount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid takerAmount %q", pr.TakerAmount)
	}
	if !common.IsHexAddress(pr.MakerToken) || !common.IsHexAddress(pr.TakerToken) {
		return nil, fmt.Errorf("invalid token address in price response")
	}

	return &quote.Pricing{
		MakerURI:    uri,
		MakerToken:  common.HexToAddress(pr.MakerToken),
		TakerToken:  common.HexToAddress(pr.TakerToken),
		MakerAmount: makerAmount,
		TakerAmount: takerAmount,
		Expiry:      pr.Expiry,
	}, nil
}

func (c *Client) fetchQuote(ctx context.Context, uri string, req quote.Request, fee *rfq.Fee) (*quote.FirmQuote, error) {
	timer := prometheus.NewTimer(metrics.MakerRequestDuration.WithLabelValues("quote"))
	defer timer.ObserveDuration()

	var qr quoteResponse
	if err := c.get(ctx, uri+quotePath, c.queryParams(req, fee), &qr); err != nil {
		return nil, err
	}
	if err := c.validate.Struct(&qr); err != nil {
		return nil, fmt.Errorf("invalid quote response: %w", err)
	}

	order, err := qr.Order.ToOrder()
	if err != nil {
		return nil, fmt.Errorf("invalid order in quote response: %w", err)
	}

	var feeCopy *rfq.Fee
	if fee != nil {
		feeCopy = &rfq.Fee{Token: fee.Token, Amount: new(big.Int).Set(fee.Amount), Type: fee.Type}
	}
	return &quote.FirmQuote{
		MakerURI:       uri,
		Order:          *order,
		MakerSignature: qr.Signature,
		Fee:            feeCopy,
	}, nil
}

// ConfirmLastLook posts the signed order back to its maker and returns the
// decision. Any transport or decoding failure is an error; the caller treats
// errors as a decline.
func (c *Client) ConfirmLastLook(ctx context.Context, uri string, req *LastLookRequest) (*LastLookResponse, error) {
	timer := prometheus.NewTimer(metrics.MakerRequestDuration.WithLabelValues("submit"))
	defer timer.ObserveDuration()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal last look request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, uri+submitPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build last look request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(requestIDHeader, uuid.NewString())

	resp, err := c.lastLookClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("last look request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readHTTPError(resp)
	}

	var lr LastLookResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, fmt.Errorf("decode last look response: %w", err)
	}
	if err := c.validate.Struct(&lr); err != nil {
		return nil, fmt.Errorf("invalid last look response: %w", err)
	}

	return &lr, nil
}

func (c *Client) get(ctx context.Context, rawURL string, params url.Values, out any) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse maker url: %w", err)
	}
	u.RawQuery = params.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("build maker request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(requestIDHeader, uuid.NewString())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("maker request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readHTTPError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode maker response: %w", err)
	}
	return nil
}

func (c *Client) queryParams(req quote.Request, fee *rfq.Fee) url.Values {
	params := url.Values{}
	params.Set("chainId", strconv.FormatInt(c.chainID, 10))
	params.Set("sellTokenAddress", req.SellToken.Hex())
	params.Set("buyTokenAddress", req.BuyToken.Hex())
	params.Set("txOrigin", c.txOrigin.Hex())
	params.Set("protocolVersion", "4")
	params.Set("isLastLook", "true")

	if req.Side == quote.SideSell {
		params.Set("sellAmountBaseUnits", req.Amount.String())
	} else {
		params.Set("buyAmountBaseUnits", req.Amount.String())
	}
	if req.TakerAddress != nil {
		params.Set("takerAddress", req.TakerAddress.Hex())
	}
	if fee != nil {
		params.Set("feeToken", fee.Token.Hex())
		params.Set("feeAmount", fee.Amount.String())
		params.Set("feeType", string(fee.Type))
	}
	return params
}

func readHTTPError(resp *http.Response) error {
	limited := io.LimitReader(resp.Body, maxErrBodyBytes)

	b, err := io.ReadAll(limited)
	if err != nil {
		return fmt.Errorf("maker returned %d and body read failed: %w", resp.StatusCode, err)
	}

	return fmt.Errorf("maker returned %d: %s", resp.StatusCode, string(b))
}
