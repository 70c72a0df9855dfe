// Package rfq defines the RFQ order types exchanged with market makers and
// persisted alongside jobs.
package rfq

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// Kind discriminates the supported order flavors
type Kind string

const (
	KindOtc   Kind = "otc"
	KindV4Rfq Kind = "v4rfq"
)

// OtcOrder is a 0x-style OTC order. Expiry, nonce bucket and nonce are packed
// into a single uint256 field.
type OtcOrder struct {
	Maker          common.Address
	Taker          common.Address
	MakerToken     common.Address
	TakerToken     common.Address
	MakerAmount    *big.Int
	TakerAmount    *big.Int
	TxOrigin       common.Address
	ExpiryAndNonce *big.Int
}

// V4RfqOrder is a legacy v4 RFQ order with a plain expiry field.
type V4RfqOrder struct {
	Maker       common.Address
	Taker       common.Address
	MakerToken  common.Address
	TakerToken  common.Address
	MakerAmount *big.Int
	TakerAmount *big.Int
	TxOrigin    common.Address
	Pool        common.Hash
	Salt        *big.Int
	Expiry      *big.Int
}

// Order is a tagged union over the supported order kinds. Exactly one of
// Otc and V4Rfq is set, matching Kind.
type Order struct {
	Kind  Kind
	Otc   *OtcOrder
	V4Rfq *V4RfqOrder
}

const (
	expiryShift      = 192
	nonceBucketShift = 128
)

var nonceMask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), nonceBucketShift), big.NewInt(1))

// EncodeExpiryAndNonce packs expiry (seconds), nonce bucket and nonce into a
// single uint256: expiry occupies the top 64 bits, the bucket the next 64,
// and the nonce the low 128.
func EncodeExpiryAndNonce(expiry, nonceBucket, nonce *big.Int) *big.Int {
	packed := new(big.Int).Lsh(expiry, expiryShift)
	packed.Or(packed, new(big.Int).Lsh(nonceBucket, nonceBucketShift))
	packed.Or(packed, nonce)
	return packed
}

// DecodeExpiryAndNonce unpacks expiry, nonce bucket and nonce from the packed
// uint256 representation.
func DecodeExpiryAndNonce(packed *big.Int) (expiry, nonceBucket, nonce *big.Int) {
	expiry = new(big.Int).Rsh(packed, expiryShift)
	nonceBucket = new(big.Int).Rsh(packed, nonceBucketShift)
	nonceBucket.And(nonceBucket, new(big.Int).SetUint64(^uint64(0)))
	nonce = new(big.Int).And(packed, nonceMask)
	return expiry, nonceBucket, nonce
}

// Expiry returns the expiry time of the order in unix seconds
func (o *OtcOrder) Expiry() *big.Int {
	expiry, _, _ := DecodeExpiryAndNonce(o.ExpiryAndNonce)
	return expiry
}

// NonceBucket returns the replacement nonce bucket of the order
func (o *OtcOrder) NonceBucket() *big.Int {
	_, bucket, _ := DecodeExpiryAndNonce(o.ExpiryAndNonce)
	return bucket
}

// Nonce returns the replacement nonce of the order
func (o *OtcOrder) Nonce() *big.Int {
	_, _, nonce := DecodeExpiryAndNonce(o.ExpiryAndNonce)
	return nonce
}

// Hash computes a deterministic hash over all order fields, the chain ID and
// the settlement contract. It is the primary key for quotes and jobs.
func (o *OtcOrder) Hash(chainID int64, verifyingContract common.Address) common.Hash {
	return crypto.Keccak256Hash(
		[]byte("OtcOrder"),
		big.NewInt(chainID).Bytes(),
		verifyingContract.Bytes(),
		o.Maker.Bytes(),
		o.Taker.Bytes(),
		o.MakerToken.Bytes(),
		o.TakerToken.Bytes(),
		math.PaddedBigBytes(o.MakerAmount, 32),
		math.PaddedBigBytes(o.TakerAmount, 32),
		o.TxOrigin.Bytes(),
		math.PaddedBigBytes(o.ExpiryAndNonce, 32),
	)
}

// Hash computes a deterministic hash over all order fields, the chain ID and
// the settlement contract.
func (o *V4RfqOrder) Hash(chainID int64, verifyingContract common.Address) common.Hash {
	return crypto.Keccak256Hash(
		[]byte("RfqOrder"),
		big.NewInt(chainID).Bytes(),
		verifyingContract.Bytes(),
		o.Maker.Bytes(),
		o.Taker.Bytes(),
		o.MakerToken.Bytes(),
		o.TakerToken.Bytes(),
		math.PaddedBigBytes(o.MakerAmount, 32),
		math.PaddedBigBytes(o.TakerAmount, 32),
		o.TxOrigin.Bytes(),
		o.Pool.Bytes(),
		math.PaddedBigBytes(o.Salt, 32),
		math.PaddedBigBytes(o.Expiry, 32),
	)
}

// Expiry returns the expiry time of the order in unix seconds
func (o *Order) Expiry() (*big.Int, error) {
	switch o.Kind {
	case KindOtc:
		if o.Otc == nil {
			return nil, fmt.Errorf("otc order is nil")
		}
		return o.Otc.Expiry(), nil
	case KindV4Rfq:
		if o.V4Rfq == nil {
			return nil, fmt.Errorf("v4rfq order is nil")
		}
		return o.V4Rfq.Expiry, nil
	default:
		return nil, fmt.Errorf("unknown order kind %q", o.Kind)
	}
}

// Hash returns the order hash for the active variant
func (o *Order) Hash(chainID int64, verifyingContract common.Address) (common.Hash, error) {
	switch o.Kind {
	case KindOtc:
		if o.Otc == nil {
			return common.Hash{}, fmt.Errorf("otc order is nil")
		}
		return o.Otc.Hash(chainID, verifyingContract), nil
	case KindV4Rfq:
		if o.V4Rfq == nil {
			return common.Hash{}, fmt.Errorf("v4rfq order is nil")
		}
		return o.V4Rfq.Hash(chainID, verifyingContract), nil
	default:
		return common.Hash{}, fmt.Errorf("unknown order kind %q", o.Kind)
	}
}

// MetaTransactionHash derives the hash the taker signs over when delegating
// submission to a relayer. It commits to the order hash, the chain and the
// settlement contract.
func (o *Order) MetaTransactionHash(chainID int64, verifyingContract common.Address) (common.Hash, error) {
	orderHash, err := o.Hash(chainID, verifyingContract)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(
		[]byte("MetaTransaction"),
		big.NewInt(chainID).Bytes(),
		verifyingContract.Bytes(),
		orderHash.Bytes(),
	), nil
}

// Validate checks that exactly one variant is populated and matches Kind
func (o *Order) Validate() error {
	switch o.Kind {
	case KindOtc:
		if o.Otc == nil || o.V4Rfq != nil {
			return fmt.Errorf("order kind %q does not match populated variant", o.Kind)
		}
	case KindV4Rfq:
		if o.V4Rfq == nil || o.Otc != nil {
			return fmt.Errorf("order kind %q does not match populated variant", o.Kind)
		}
	default:
		return fmt.Errorf("unknown order kind %q", o.Kind)
	}
	return nil
}

// Taker returns the taker of the active variant
func (o *Order) Taker() common.Address {
	if o.Kind == KindV4Rfq && o.V4Rfq != nil {
		return o.V4Rfq.Taker
	}
	if o.Otc != nil {
		return o.Otc.Taker
	}
	return common.Address{}
}

// MakerToken returns the maker token of the active variant
func (o *Order) MakerToken() common.Address {
	if o.Kind == KindV4Rfq && o.V4Rfq != nil {
		return o.V4Rfq.MakerToken
	}
	if o.Otc != nil {
		return o.Otc.MakerToken
	}
	return common.Address{}
}

// TakerToken returns the taker token of the active variant
func (o *Order) TakerToken() common.Address {
	if o.Kind == KindV4Rfq && o.V4Rfq != nil {
		return o.V4Rfq.TakerToken
	}
	if o.Otc != nil {
		return o.Otc.TakerToken
	}
	return common.Address{}
}
