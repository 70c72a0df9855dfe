package service

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/rfqlabs/rfq-relayer/pkg/app/errors"
	apphttp "github.com/rfqlabs/rfq-relayer/pkg/app/http"
	"github.com/rfqlabs/rfq-relayer/pkg/auth"
	"github.com/rfqlabs/rfq-relayer/pkg/quote"
	"github.com/rfqlabs/rfq-relayer/pkg/rfq"
)

// nativeAssetAddress is the pseudo-address takers sometimes pass for the
// chain's native asset. Fills settle in ERC-20s only, so it is rejected.
const nativeAssetAddress = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"

// HTTP wraps the Service to provide HTTP endpoints
type HTTP struct {
	service *Service
	logger  *zap.Logger
}

// RegisterRoutes registers the RFQ endpoints on the given chi router. The
// auth middleware guards the quote and submit endpoints; prices and status
// are public.
func RegisterRoutes(r chi.Router, service *Service, authMW func(http.Handler) http.Handler, logger *zap.Logger) {
	h := &HTTP{
		service: service,
		logger:  logger,
	}

	r.Get("/price", apphttp.HandleError(h.getPrice))
	r.With(authMW).Get("/quote", apphttp.HandleError(h.getQuote))
	r.With(authMW).Post("/submit", apphttp.HandleError(h.postSubmit))
	r.Get("/status/{orderHash}", apphttp.HandleError(h.getStatus))
	r.Get("/healthz", apphttp.HandleError(h.getHealthz))
}

func (h *HTTP) getPrice(w http.ResponseWriter, r *http.Request) error {
	req, err := parseQuoteRequest(r)
	if err != nil {
		return err
	}

	result, err := h.service.GetPrice(r.Context(), req)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, result)
	return nil
}

func (h *HTTP) getQuote(w http.ResponseWriter, r *http.Request) error {
	req, err := parseQuoteRequest(r)
	if err != nil {
		return err
	}
	if req.TakerAddress == nil {
		return apperrors.BadRequestError(nil, "takerAddress is required")
	}

	result, err := h.service.GetQuote(r.Context(), req)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, result)
	return nil
}

// submitRequest is the POST /submit payload
type submitRequest struct {
	MetaTransactionHash string         `json:"metaTransactionHash"`
	Signature           *rfq.Signature `json:"signature"`
}

func (h *HTTP) postSubmit(w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}

	var req submitRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	if req.MetaTransactionHash == "" {
		return apperrors.BadRequestError(nil, "metaTransactionHash is required")
	}
	if req.Signature == nil {
		return apperrors.BadRequestError(nil, "signature is required")
	}

	result, err := h.service.SubmitSignedQuote(r.Context(), req.MetaTransactionHash, req.Signature)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusCreated, result)
	return nil
}

func (h *HTTP) getStatus(w http.ResponseWriter, r *http.Request) error {
	orderHash := chi.URLParam(r, "orderHash")
	if orderHash == "" {
		return apperrors.BadRequestError(nil, "orderHash is required")
	}

	result, err := h.service.GetStatus(r.Context(), orderHash)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, result)
	return nil
}

func (h *HTTP) getHealthz(w http.ResponseWriter, r *http.Request) error {
	result, err := h.service.GetHealth(r.Context())
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, result)
	return nil
}

// parseQuoteRequest extracts a quote request from query parameters. Exactly
// one of sellAmountBaseUnits and buyAmountBaseUnits must be provided.
func parseQuoteRequest(r *http.Request) (quote.Request, error) {
	q := r.URL.Query()
	var req quote.Request

	sellToken, err := parseAddressParam(q.Get("sellTokenAddress"), "sellTokenAddress")
	if err != nil {
		return req, err
	}
	buyToken, err := parseAddressParam(q.Get("buyTokenAddress"), "buyTokenAddress")
	if err != nil {
		return req, err
	}
	if strings.EqualFold(sellToken.Hex(), nativeAssetAddress) {
		return req, apperrors.BadRequestError(nil, "native asset is not supported; sell the wrapped token instead")
	}

	sellAmount := q.Get("sellAmountBaseUnits")
	buyAmount := q.Get("buyAmountBaseUnits")
	if (sellAmount == "") == (buyAmount == "") {
		return req, apperrors.BadRequestError(nil, "exactly one of sellAmountBaseUnits and buyAmountBaseUnits is required")
	}

	req.SellToken = sellToken
	req.BuyToken = buyToken
	if sellAmount != "" {
		req.Side = quote.SideSell
		if req.Amount, err = parseAmountParam(sellAmount, "sellAmountBaseUnits"); err != nil {
			return req, err
		}
	} else {
		req.Side = quote.SideBuy
		if req.Amount, err = parseAmountParam(buyAmount, "buyAmountBaseUnits"); err != nil {
			return req, err
		}
	}

	if taker := q.Get("takerAddress"); taker != "" {
		addr, err := parseAddressParam(taker, "takerAddress")
		if err != nil {
			return req, err
		}
		req.TakerAddress = &addr
	}

	if id, ok := auth.IntegratorID(r.Context()); ok {
		req.IntegratorID = &id
	}
	return req, nil
}

func parseAddressParam(value, name string) (common.Address, error) {
	if value == "" {
		return common.Address{}, apperrors.BadRequestError(nil, name+" is required")
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, apperrors.BadRequestError(nil, "invalid "+name)
	}
	return common.HexToAddress(value), nil
}

func parseAmountParam(value, name string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok || amount.Sign() <= 0 {
		return nil, apperrors.BadRequestError(fmt.Errorf("invalid amount %q", value), "invalid "+name)
	}
	return amount, nil
}

func (h *HTTP) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
