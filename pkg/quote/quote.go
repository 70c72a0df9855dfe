// Package quote implements maker quote selection and price formatting.
package quote

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/rfqlabs/rfq-relayer/pkg/rfq"
)

// Side is the taker's side of the trade.
type Side string

const (
	// SideSell means the taker specifies the amount of taker token to sell.
	SideSell Side = "sell"
	// SideBuy means the taker specifies the amount of maker token to buy.
	SideBuy Side = "buy"
)

// Request describes the size a taker asked to trade. Amount is denominated
// in taker token units for sells and maker token units for buys.
type Request struct {
	Side         Side
	SellToken    common.Address
	BuyToken     common.Address
	Amount       *big.Int
	IntegratorID *string
	TakerAddress *common.Address
}

// Pricing is a single maker's indicative price for a pair.
type Pricing struct {
	MakerURI    string
	MakerToken  common.Address
	TakerToken  common.Address
	MakerAmount *big.Int
	TakerAmount *big.Int
	Expiry      int64
}

// FirmQuote is a maker-signed order returned from a quote request.
type FirmQuote struct {
	MakerURI       string
	Order          rfq.Order
	MakerSignature *rfq.Signature
	Fee            *rfq.Fee
}

// Pricing derives the indicative price view of the signed order.
func (q *FirmQuote) Pricing() (*Pricing, error) {
	makerAmount, takerAmount, err := orderAmounts(q.Order)
	if err != nil {
		return nil, err
	}
	expiry, err := q.Order.Expiry()
	if err != nil {
		return nil, err
	}
	return &Pricing{
		MakerURI:    q.MakerURI,
		MakerToken:  q.Order.MakerToken(),
		TakerToken:  q.Order.TakerToken(),
		MakerAmount: makerAmount,
		TakerAmount: takerAmount,
		Expiry:      expiry.Int64(),
	}, nil
}

func orderAmounts(o rfq.Order) (*big.Int, *big.Int, error) {
	if err := o.Validate(); err != nil {
		return nil, nil, err
	}
	switch o.Kind {
	case rfq.KindOtc:
		return o.Otc.MakerAmount, o.Otc.TakerAmount, nil
	default:
		return o.V4Rfq.MakerAmount, o.V4Rfq.TakerAmount, nil
	}
}

// coversRequest reports whether the quoted size can fill the whole request.
// Partial fills are never offered to takers.
func coversRequest(p *Pricing, req Request) bool {
	if req.Side == SideSell {
		return p.TakerAmount.Cmp(req.Amount) >= 0
	}
	return p.MakerAmount.Cmp(req.Amount) >= 0
}

// betterPrice reports whether a offers the taker strictly more maker token
// per taker token than b. Comparison is exact via cross multiplication.
func betterPrice(a, b *Pricing) bool {
	left := new(big.Int).Mul(a.MakerAmount, b.TakerAmount)
	right := new(big.Int).Mul(b.MakerAmount, a.TakerAmount)
	return left.Cmp(right) > 0
}

func usable(p *Pricing, minExpiry time.Time) bool {
	if p == nil || p.MakerAmount == nil || p.TakerAmount == nil {
		return false
	}
	if p.MakerAmount.Sign() <= 0 || p.TakerAmount.Sign() <= 0 {
		return false
	}
	return p.Expiry >= minExpiry.Unix()
}

// SelectPricing picks the best indicative price for the request. Prices that
// expire before minExpiry or cannot fill the full requested amount are
// discarded. Ties keep the earliest entry, so the result is stable for a
// given input order.
func SelectPricing(prices []*Pricing, req Request, minExpiry time.Time) (*Pricing, bool) {
	var best *Pricing
	for _, p := range prices {
		if !usable(p, minExpiry) || !coversRequest(p, req) {
			continue
		}
		if best == nil || betterPrice(p, best) {
			best = p
		}
	}
	return best, best != nil
}

// SelectFirmQuote picks the best signed quote for the request using the same
// rules as SelectPricing. Quotes whose orders fail validation are discarded.
func SelectFirmQuote(quotes []*FirmQuote, req Request, minExpiry time.Time) (*FirmQuote, bool) {
	var (
		best        *FirmQuote
		bestPricing *Pricing
	)
	for _, q := range quotes {
		if q == nil || q.MakerSignature == nil {
			continue
		}
		p, err := q.Pricing()
		if err != nil {
			continue
		}
		if !usable(p, minExpiry) || !coversRequest(p, req) {
			continue
		}
		if best == nil || betterPrice(p, bestPricing) {
			best = q
			bestPricing = p
		}
	}
	return best, best != nil
}

// ScaleToRequest returns the fill amounts for the requested size. When the
// maker quoted a larger size than requested, the opposite leg is scaled down
// proportionally with the remainder truncated.
func ScaleToRequest(p *Pricing, req Request) (makerAmount, takerAmount *big.Int) {
	if req.Side == SideSell {
		takerAmount = new(big.Int).Set(req.Amount)
		makerAmount = new(big.Int).Mul(p.MakerAmount, req.Amount)
		makerAmount.Quo(makerAmount, p.TakerAmount)
		return makerAmount, takerAmount
	}
	makerAmount = new(big.Int).Set(req.Amount)
	takerAmount = new(big.Int).Mul(p.TakerAmount, req.Amount)
	takerAmount.Quo(takerAmount, p.MakerAmount)
	return makerAmount, takerAmount
}

// FormatPrice renders makerAmount/takerAmount with six significant digits,
// truncated rather than rounded so the displayed price never overstates what
// the taker receives.
func FormatPrice(makerAmount, takerAmount *big.Int) string {
	m := decimal.NewFromBigInt(makerAmount, 0)
	t := decimal.NewFromBigInt(takerAmount, 0)
	if t.IsZero() {
		return "0"
	}
	q := m.DivRound(t, 30)
	return truncateSignificant(q, 6).String()
}

func truncateSignificant(d decimal.Decimal, sig int32) decimal.Decimal {
	if d.IsZero() {
		return d
	}
	places := sig - int32(d.NumDigits()) - d.Exponent()
	return d.RoundDown(places)
}
