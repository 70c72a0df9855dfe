package maker

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rfqlabs/rfq-relayer/pkg/config"
	"github.com/rfqlabs/rfq-relayer/pkg/quote"
	"github.com/rfqlabs/rfq-relayer/pkg/rfq"
)

func testClient() *Client {
	cfg := &config.MakersConfig{
		RequestTimeout:  1500 * time.Millisecond,
		LastLookTimeout: 2 * time.Second,
	}
	origin := common.HexToAddress("0x5555555555555555555555555555555555555555")
	return NewClient(cfg, 1, origin, zap.NewNop())
}

func testRequest() quote.Request {
	return quote.Request{
		Side:      quote.SideSell,
		SellToken: common.HexToAddress("0x4444444444444444444444444444444444444444"),
		BuyToken:  common.HexToAddress("0x3333333333333333333333333333333333333333"),
		Amount:    big.NewInt(100),
	}
}

func TestFetchPrices(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/price" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("sellAmountBaseUnits") != "100" {
			t.Errorf("unexpected sell amount %s", q.Get("sellAmountBaseUnits"))
		}
		if q.Get("chainId") != "1" {
			t.Errorf("unexpected chain id %s", q.Get("chainId"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"makerToken":  "0x3333333333333333333333333333333333333333",
			"takerToken":  "0x4444444444444444444444444444444444444444",
			"makerAmount": "105",
			"takerAmount": "100",
			"expiry":      2000000000,
		})
	}))
	defer good.Close()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no liquidity", http.StatusServiceUnavailable)
	}))
	defer bad.Close()

	// Missing required fields; must be dropped by validation.
	invalid := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"makerAmount": "105"})
	}))
	defer invalid.Close()

	c := testClient()
	prices := c.FetchPrices(context.Background(), []string{good.URL, bad.URL, invalid.URL}, testRequest(), nil)
	require.Len(t, prices, 1)
	require.Equal(t, good.URL, prices[0].MakerURI)
	require.Equal(t, "105", prices[0].MakerAmount.String())
	require.Equal(t, int64(2000000000), prices[0].Expiry)
}

func TestFetchQuotes(t *testing.T) {
	stored := rfq.StoredOrder{
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
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if q := r.URL.Query(); q.Get("feeAmount") != "42" {
			t.Errorf("unexpected fee amount %s", q.Get("feeAmount"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"order":     stored,
			"signature": rfq.Signature{SignatureType: 2, V: 27, R: "0xaa", S: "0xbb"},
		})
	}))
	defer srv.Close()

	fee := &rfq.Fee{
		Token:  common.HexToAddress("0x4444444444444444444444444444444444444444"),
		Amount: big.NewInt(42),
		Type:   rfq.FeeTypeFixed,
	}

	c := testClient()
	quotes := c.FetchQuotes(context.Background(), []string{srv.URL}, testRequest(), fee)
	require.Len(t, quotes, 1)
	require.Equal(t, srv.URL, quotes[0].MakerURI)
	require.NotNil(t, quotes[0].MakerSignature)
	require.Equal(t, rfq.KindOtc, quotes[0].Order.Kind)
	require.Equal(t, "105", quotes[0].Order.Otc.MakerAmount.String())
	require.Equal(t, "42", quotes[0].Fee.Amount.String())
}

func TestConfirmLastLook(t *testing.T) {
	var received LastLookRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/submit" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		proceed := true
		json.NewEncoder(w).Encode(LastLookResponse{
			ProceedWithFill:      &proceed,
			OrderHash:            received.OrderHash,
			Fee:                  &received.Fee,
			TakerTokenFillAmount: received.TakerTokenFillAmount,
		})
	}))
	defer srv.Close()

	req := &LastLookRequest{
		OrderHash:            "0x0000000000000000000000000000000000000000000000000000000000000001",
		Fee:                  rfq.StoredFee{Token: "0x4444444444444444444444444444444444444444", Amount: "42", Type: "fixed"},
		TakerTokenFillAmount: "100",
	}

	c := testClient()
	resp, err := c.ConfirmLastLook(context.Background(), srv.URL, req)
	require.NoError(t, err)
	require.NotNil(t, resp.ProceedWithFill)
	require.True(t, *resp.ProceedWithFill)
	require.Equal(t, req.OrderHash, resp.OrderHash)
	require.Equal(t, req.OrderHash, received.OrderHash)
}

func TestConfirmLastLook_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "declined", http.StatusForbidden)
	}))
	defer srv.Close()

	c := testClient()
	_, err := c.ConfirmLastLook(context.Background(), srv.URL, &LastLookRequest{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "403")
}

func TestConfirmLastLook_MissingDecision(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"orderHash": "0x01"})
	}))
	defer srv.Close()

	c := testClient()
	_, err := c.ConfirmLastLook(context.Background(), srv.URL, &LastLookRequest{})
	require.Error(t, err)
}
