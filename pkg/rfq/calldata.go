package rfq

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Settlement entry points on the exchange proxy. Taker-signed OTC orders
// carry both signatures in calldata; v4 RFQ orders carry the maker signature
// and an explicit fill amount.
const (
	fillOtcMethod = "fillTakerSignedOtcOrder((address,address,uint128,uint128,address,address,address,uint256),(uint8,uint8,bytes32,bytes32),(uint8,uint8,bytes32,bytes32))"
	fillRfqMethod = "fillRfqOrder((address,address,uint128,uint128,address,address,address,bytes32,uint64,uint256),(uint8,uint8,bytes32,bytes32),uint128)"
)

var (
	otcOrderType = mustTupleType([]abi.ArgumentMarshaling{
		{Name: "makerToken", Type: "address"},
		{Name: "takerToken", Type: "address"},
		{Name: "makerAmount", Type: "uint128"},
		{Name: "takerAmount", Type: "uint128"},
		{Name: "maker", Type: "address"},
		{Name: "taker", Type: "address"},
		{Name: "txOrigin", Type: "address"},
		{Name: "expiryAndNonce", Type: "uint256"},
	})
	rfqOrderType = mustTupleType([]abi.ArgumentMarshaling{
		{Name: "makerToken", Type: "address"},
		{Name: "takerToken", Type: "address"},
		{Name: "makerAmount", Type: "uint128"},
		{Name: "takerAmount", Type: "uint128"},
		{Name: "maker", Type: "address"},
		{Name: "taker", Type: "address"},
		{Name: "txOrigin", Type: "address"},
		{Name: "pool", Type: "bytes32"},
		{Name: "expiry", Type: "uint64"},
		{Name: "salt", Type: "uint256"},
	})
	signatureType = mustTupleType([]abi.ArgumentMarshaling{
		{Name: "signatureType", Type: "uint8"},
		{Name: "v", Type: "uint8"},
		{Name: "r", Type: "bytes32"},
		{Name: "s", Type: "bytes32"},
	})
	uint128Type = mustType("uint128")
)

func mustTupleType(components []abi.ArgumentMarshaling) abi.Type {
	t, err := abi.NewType("tuple", "", components)
	if err != nil {
		panic(err)
	}
	return t
}

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return t
}

type abiOtcOrder struct {
	MakerToken     common.Address
	TakerToken     common.Address
	MakerAmount    *big.Int
	TakerAmount    *big.Int
	Maker          common.Address
	Taker          common.Address
	TxOrigin       common.Address
	ExpiryAndNonce *big.Int
}

type abiRfqOrder struct {
	MakerToken  common.Address
	TakerToken  common.Address
	MakerAmount *big.Int
	TakerAmount *big.Int
	Maker       common.Address
	Taker       common.Address
	TxOrigin    common.Address
	Pool        [32]byte
	Expiry      uint64
	Salt        *big.Int
}

type abiSignature struct {
	SignatureType uint8
	V             uint8
	R             [32]byte
	S             [32]byte
}

func toABISignature(sig *Signature) (abiSignature, error) {
	if sig == nil {
		return abiSignature{}, fmt.Errorf("missing signature")
	}
	if sig.SignatureType < 0 || sig.SignatureType > 255 || sig.V < 0 || sig.V > 255 {
		return abiSignature{}, fmt.Errorf("signature fields out of range")
	}
	return abiSignature{
		SignatureType: uint8(sig.SignatureType),
		V:             uint8(sig.V),
		R:             common.HexToHash(sig.R),
		S:             common.HexToHash(sig.S),
	}, nil
}

// FillCalldata encodes the settlement call for the order: selector plus
// ABI-packed arguments, ready to submit to the exchange proxy.
func FillCalldata(order Order, makerSig, takerSig *Signature) ([]byte, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}
	maker, err := toABISignature(makerSig)
	if err != nil {
		return nil, fmt.Errorf("maker signature: %w", err)
	}

	switch order.Kind {
	case KindOtc:
		taker, err := toABISignature(takerSig)
		if err != nil {
			return nil, fmt.Errorf("taker signature: %w", err)
		}
		args := abi.Arguments{
			{Type: otcOrderType},
			{Type: signatureType},
			{Type: signatureType},
		}
		packed, err := args.Pack(abiOtcOrder{
			MakerToken:     order.Otc.MakerToken,
			TakerToken:     order.Otc.TakerToken,
			MakerAmount:    order.Otc.MakerAmount,
			TakerAmount:    order.Otc.TakerAmount,
			Maker:          order.Otc.Maker,
			Taker:          order.Otc.Taker,
			TxOrigin:       order.Otc.TxOrigin,
			ExpiryAndNonce: order.Otc.ExpiryAndNonce,
		}, maker, taker)
		if err != nil {
			return nil, fmt.Errorf("failed to pack otc fill: %w", err)
		}
		return append(selector(fillOtcMethod), packed...), nil

	case KindV4Rfq:
		if !order.V4Rfq.Expiry.IsUint64() {
			return nil, fmt.Errorf("rfq order expiry out of range")
		}
		args := abi.Arguments{
			{Type: rfqOrderType},
			{Type: signatureType},
			{Type: uint128Type},
		}
		packed, err := args.Pack(abiRfqOrder{
			MakerToken:  order.V4Rfq.MakerToken,
			TakerToken:  order.V4Rfq.TakerToken,
			MakerAmount: order.V4Rfq.MakerAmount,
			TakerAmount: order.V4Rfq.TakerAmount,
			Maker:       order.V4Rfq.Maker,
			Taker:       order.V4Rfq.Taker,
			TxOrigin:    order.V4Rfq.TxOrigin,
			Pool:        [32]byte(order.V4Rfq.Pool),
			Expiry:      order.V4Rfq.Expiry.Uint64(),
			Salt:        order.V4Rfq.Salt,
		}, maker, order.V4Rfq.TakerAmount)
		if err != nil {
			return nil, fmt.Errorf("failed to pack rfq fill: %w", err)
		}
		return append(selector(fillRfqMethod), packed...), nil

	default:
		return nil, fmt.Errorf("unknown order kind %q", order.Kind)
	}
}

func selector(method string) []byte {
	return crypto.Keccak256([]byte(method))[:4]
}
