// mock-maker.go - Simple market maker mock for local testing
//
// Usage:
//   go run scripts/mock-maker.go
//
// Serves /price, /quote and /submit the way a maker would: a fixed 2:1
// maker/taker price, otc orders with placeholder signatures, and a last
// look that always accepts. The signatures are garbage, so fills will
// revert on a real chain; point the worker at a dev node or stub the
// preflight when testing end to end.

package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"time"
)

const (
	port        = 8090
	priceRatio  = 2 // makerAmount = takerAmount * priceRatio
	quoteExpiry = 5 * time.Minute

	makerAddress = "0x1111111111111111111111111111111111111111"
	dummyR       = "0x0101010101010101010101010101010101010101010101010101010101010101"
	dummyS       = "0x0202020202020202020202020202020202020202020202020202020202020202"
)

type storedOtcOrder struct {
	Maker          string `json:"maker"`
	Taker          string `json:"taker"`
	MakerToken     string `json:"makerToken"`
	TakerToken     string `json:"takerToken"`
	MakerAmount    string `json:"makerAmount"`
	TakerAmount    string `json:"takerAmount"`
	TxOrigin       string `json:"txOrigin"`
	ExpiryAndNonce string `json:"expiryAndNonce"`
}

type storedOrder struct {
	Kind string          `json:"kind"`
	Otc  *storedOtcOrder `json:"otc"`
}

type signature struct {
	SignatureType int    `json:"signatureType"`
	V             int    `json:"v"`
	R             string `json:"r"`
	S             string `json:"s"`
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/price", handlePrice)
	mux.HandleFunc("/quote", handleQuote)
	mux.HandleFunc("/submit", handleSubmit)

	addr := fmt.Sprintf(":%d", port)
	log.Printf("Mock maker listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}

// amounts derives maker/taker amounts from whichever side the request fixed.
func amounts(r *http.Request) (makerAmount, takerAmount *big.Int, err error) {
	if s := r.URL.Query().Get("sellAmountBaseUnits"); s != "" {
		takerAmount, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, nil, fmt.Errorf("bad sellAmountBaseUnits %q", s)
		}
		return new(big.Int).Mul(takerAmount, big.NewInt(priceRatio)), takerAmount, nil
	}

	s := r.URL.Query().Get("buyAmountBaseUnits")
	makerAmount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, nil, fmt.Errorf("bad buyAmountBaseUnits %q", s)
	}
	return makerAmount, new(big.Int).Div(makerAmount, big.NewInt(priceRatio)), nil
}

func expiry() int64 {
	return time.Now().Add(quoteExpiry).Unix()
}

func handlePrice(w http.ResponseWriter, r *http.Request) {
	makerAmount, takerAmount, err := amounts(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]any{
		"makerToken":  r.URL.Query().Get("buyTokenAddress"),
		"takerToken":  r.URL.Query().Get("sellTokenAddress"),
		"makerAmount": makerAmount.String(),
		"takerAmount": takerAmount.String(),
		"expiry":      expiry(),
	})
}

func handleQuote(w http.ResponseWriter, r *http.Request) {
	makerAmount, takerAmount, err := amounts(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Expiry in the top 64 bits, zero bucket, timestamp nonce.
	packed := new(big.Int).Lsh(big.NewInt(expiry()), 192)
	packed.Or(packed, big.NewInt(time.Now().UnixNano()))

	order := storedOrder{
		Kind: "otc",
		Otc: &storedOtcOrder{
			Maker:          makerAddress,
			Taker:          r.URL.Query().Get("takerAddress"),
			MakerToken:     r.URL.Query().Get("buyTokenAddress"),
			TakerToken:     r.URL.Query().Get("sellTokenAddress"),
			MakerAmount:    makerAmount.String(),
			TakerAmount:    takerAmount.String(),
			TxOrigin:       r.URL.Query().Get("txOrigin"),
			ExpiryAndNonce: packed.String(),
		},
	}

	writeJSON(w, map[string]any{
		"order":     order,
		"signature": signature{SignatureType: 2, V: 27, R: dummyR, S: dummyS},
	})
}

func handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderHash            string          `json:"orderHash"`
		Fee                  json.RawMessage `json:"fee"`
		TakerTokenFillAmount string          `json:"takerTokenFillAmount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	log.Printf("Last look for %s: accepting", req.OrderHash)

	writeJSON(w, map[string]any{
		"proceedWithFill":      true,
		"signedOrderHash":      req.OrderHash,
		"fee":                  req.Fee,
		"takerTokenFillAmount": req.TakerTokenFillAmount,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}
