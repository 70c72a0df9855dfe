package rfq

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// FeeType describes how the fee is charged
type FeeType string

const (
	FeeTypeFixed FeeType = "fixed"
	FeeTypeGas   FeeType = "gas"
)

// Fee is the taker-paid fee attached to a firm quote
type Fee struct {
	Token  common.Address
	Amount *big.Int
	Type   FeeType
}

// StoredFee is the JSON form of a Fee
type StoredFee struct {
	Token  string `json:"token" validate:"required"`
	Amount string `json:"amount" validate:"required"`
	Type   string `json:"type" validate:"required"`
}

// ToStored converts a Fee into its JSON form
func (f *Fee) ToStored() *StoredFee {
	return &StoredFee{
		Token:  f.Token.Hex(),
		Amount: f.Amount.String(),
		Type:   string(f.Type),
	}
}

// ToFee converts the stored form back to a typed Fee
func (s *StoredFee) ToFee() (*Fee, error) {
	token, err := parseAddress("fee token", s.Token)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("fee", s.Amount)
	if err != nil {
		return nil, err
	}
	switch FeeType(s.Type) {
	case FeeTypeFixed, FeeTypeGas:
	default:
		return nil, fmt.Errorf("unknown fee type %q", s.Type)
	}
	return &Fee{Token: token, Amount: amount, Type: FeeType(s.Type)}, nil
}

// Equal reports whether two stored fees describe the same fee. Token
// comparison is case insensitive since addresses may be checksummed.
func (s *StoredFee) Equal(other *StoredFee) bool {
	if s == nil || other == nil {
		return s == other
	}
	if !strings.EqualFold(s.Token, other.Token) || s.Type != other.Type {
		return false
	}
	a, okA := new(big.Int).SetString(s.Amount, 10)
	b, okB := new(big.Int).SetString(other.Amount, 10)
	if !okA || !okB {
		return s.Amount == other.Amount
	}
	return a.Cmp(b) == 0
}

// Signature is an EIP-712 style signature carried opaquely. The relayer never
// validates it; the settlement contract does.
type Signature struct {
	SignatureType int    `json:"signatureType" validate:"required"`
	V             int    `json:"v" validate:"required"`
	R             string `json:"r" validate:"required"`
	S             string `json:"s" validate:"required"`
}
