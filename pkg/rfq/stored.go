package rfq

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// StoredOtcOrder is the JSON form of an OtcOrder. Amounts are decimal strings
// so the encoding survives drivers that cannot represent uint256.
type StoredOtcOrder struct {
	Maker          string `json:"maker" validate:"required"`
	Taker          string `json:"taker" validate:"required"`
	MakerToken     string `json:"makerToken" validate:"required"`
	TakerToken     string `json:"takerToken" validate:"required"`
	MakerAmount    string `json:"makerAmount" validate:"required"`
	TakerAmount    string `json:"takerAmount" validate:"required"`
	TxOrigin       string `json:"txOrigin" validate:"required"`
	ExpiryAndNonce string `json:"expiryAndNonce" validate:"required"`
}

// StoredV4RfqOrder is the JSON form of a V4RfqOrder
type StoredV4RfqOrder struct {
	Maker       string `json:"maker" validate:"required"`
	Taker       string `json:"taker" validate:"required"`
	MakerToken  string `json:"makerToken" validate:"required"`
	TakerToken  string `json:"takerToken" validate:"required"`
	MakerAmount string `json:"makerAmount" validate:"required"`
	TakerAmount string `json:"takerAmount" validate:"required"`
	TxOrigin    string `json:"txOrigin" validate:"required"`
	Pool        string `json:"pool" validate:"required"`
	Salt        string `json:"salt" validate:"required"`
	Expiry      string `json:"expiry" validate:"required"`
}

// StoredOrder is the JSON form of an Order
type StoredOrder struct {
	Kind  Kind              `json:"kind" validate:"required"`
	Otc   *StoredOtcOrder   `json:"otc,omitempty"`
	V4Rfq *StoredV4RfqOrder `json:"v4rfq,omitempty"`
}

func parseAmount(field, value string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s amount %q", field, value)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("negative %s amount %q", field, value)
	}
	return n, nil
}

func parseAddress(field, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", field, value)
	}
	return common.HexToAddress(value), nil
}

// ToOtcOrder converts the stored form back to a typed OtcOrder
func (s *StoredOtcOrder) ToOtcOrder() (*OtcOrder, error) {
	order := &OtcOrder{}
	var err error
	if order.Maker, err = parseAddress("maker", s.Maker); err != nil {
		return nil, err
	}
	if order.Taker, err = parseAddress("taker", s.Taker); err != nil {
		return nil, err
	}
	if order.MakerToken, err = parseAddress("makerToken", s.MakerToken); err != nil {
		return nil, err
	}
	if order.TakerToken, err = parseAddress("takerToken", s.TakerToken); err != nil {
		return nil, err
	}
	if order.TxOrigin, err = parseAddress("txOrigin", s.TxOrigin); err != nil {
		return nil, err
	}
	if order.MakerAmount, err = parseAmount("maker", s.MakerAmount); err != nil {
		return nil, err
	}
	if order.TakerAmount, err = parseAmount("taker", s.TakerAmount); err != nil {
		return nil, err
	}
	if order.ExpiryAndNonce, err = parseAmount("expiryAndNonce", s.ExpiryAndNonce); err != nil {
		return nil, err
	}
	return order, nil
}

// ToStored converts an OtcOrder into its JSON form
func (o *OtcOrder) ToStored() *StoredOtcOrder {
	return &StoredOtcOrder{
		Maker:          o.Maker.Hex(),
		Taker:          o.Taker.Hex(),
		MakerToken:     o.MakerToken.Hex(),
		TakerToken:     o.TakerToken.Hex(),
		MakerAmount:    o.MakerAmount.String(),
		TakerAmount:    o.TakerAmount.String(),
		TxOrigin:       o.TxOrigin.Hex(),
		ExpiryAndNonce: o.ExpiryAndNonce.String(),
	}
}

// ToV4RfqOrder converts the stored form back to a typed V4RfqOrder
func (s *StoredV4RfqOrder) ToV4RfqOrder() (*V4RfqOrder, error) {
	order := &V4RfqOrder{}
	var err error
	if order.Maker, err = parseAddress("maker", s.Maker); err != nil {
		return nil, err
	}
	if order.Taker, err = parseAddress("taker", s.Taker); err != nil {
		return nil, err
	}
	if order.MakerToken, err = parseAddress("makerToken", s.MakerToken); err != nil {
		return nil, err
	}
	if order.TakerToken, err = parseAddress("takerToken", s.TakerToken); err != nil {
		return nil, err
	}
	if order.TxOrigin, err = parseAddress("txOrigin", s.TxOrigin); err != nil {
		return nil, err
	}
	if order.MakerAmount, err = parseAmount("maker", s.MakerAmount); err != nil {
		return nil, err
	}
	if order.TakerAmount, err = parseAmount("taker", s.TakerAmount); err != nil {
		return nil, err
	}
	if order.Salt, err = parseAmount("salt", s.Salt); err != nil {
		return nil, err
	}
	if order.Expiry, err = parseAmount("expiry", s.Expiry); err != nil {
		return nil, err
	}
	order.Pool = common.HexToHash(s.Pool)
	return order, nil
}

// ToStored converts a V4RfqOrder into its JSON form
func (o *V4RfqOrder) ToStored() *StoredV4RfqOrder {
	return &StoredV4RfqOrder{
		Maker:       o.Maker.Hex(),
		Taker:       o.Taker.Hex(),
		MakerToken:  o.MakerToken.Hex(),
		TakerToken:  o.TakerToken.Hex(),
		MakerAmount: o.MakerAmount.String(),
		TakerAmount: o.TakerAmount.String(),
		TxOrigin:    o.TxOrigin.Hex(),
		Pool:        o.Pool.Hex(),
		Salt:        o.Salt.String(),
		Expiry:      o.Expiry.String(),
	}
}

// ToOrder converts the stored form back to a typed Order
func (s *StoredOrder) ToOrder() (*Order, error) {
	switch s.Kind {
	case KindOtc:
		if s.Otc == nil {
			return nil, fmt.Errorf("stored order kind %q has no otc payload", s.Kind)
		}
		otc, err := s.Otc.ToOtcOrder()
		if err != nil {
			return nil, err
		}
		return &Order{Kind: KindOtc, Otc: otc}, nil
	case KindV4Rfq:
		if s.V4Rfq == nil {
			return nil, fmt.Errorf("stored order kind %q has no v4rfq payload", s.Kind)
		}
		v4, err := s.V4Rfq.ToV4RfqOrder()
		if err != nil {
			return nil, err
		}
		return &Order{Kind: KindV4Rfq, V4Rfq: v4}, nil
	default:
		return nil, fmt.Errorf("unknown stored order kind %q", s.Kind)
	}
}

// ToStored converts an Order into its JSON form
func (o *Order) ToStored() *StoredOrder {
	stored := &StoredOrder{Kind: o.Kind}
	if o.Otc != nil {
		stored.Otc = o.Otc.ToStored()
	}
	if o.V4Rfq != nil {
		stored.V4Rfq = o.V4Rfq.ToStored()
	}
	return stored
}
