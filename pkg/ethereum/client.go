// Package ethereum wraps the JSON-RPC node client used by fill workers.
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/rfqlabs/rfq-relayer/pkg/config"
)

// Client is the Ethereum node client for a single worker key.
type Client struct {
	config     *config.EthereumConfig
	client     *ethclient.Client
	privateKey *ecdsa.PrivateKey
	address    common.Address
	signer     types.Signer
	logger     *zap.Logger
}

// NewClient connects to the configured RPC node and loads the worker key.
func NewClient(cfg *config.EthereumConfig, logger *zap.Logger) (*Client, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum RPC: %w", err)
	}

	privateKey, err := crypto.HexToECDSA(cfg.WorkerPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load worker private key: %w", err)
	}

	address := crypto.PubkeyToAddress(privateKey.PublicKey)

	logger.Info("Connected to Ethereum",
		zap.Int64("chain_id", cfg.ChainID),
		zap.String("rpc_url", cfg.RPCURL),
		zap.String("worker_address", address.Hex()))

	return &Client{
		config:     cfg,
		client:     client,
		privateKey: privateKey,
		address:    address,
		signer:     types.LatestSignerForChainID(big.NewInt(cfg.ChainID)),
		logger:     logger,
	}, nil
}

// NewReadOnlyClient connects without a signing key. Calls run from the
// configured tx origin address; signing is unavailable.
func NewReadOnlyClient(cfg *config.EthereumConfig, logger *zap.Logger) (*Client, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum RPC: %w", err)
	}
	if !common.IsHexAddress(cfg.TxOrigin) {
		return nil, fmt.Errorf("invalid tx origin address %q", cfg.TxOrigin)
	}

	logger.Info("Connected to Ethereum",
		zap.Int64("chain_id", cfg.ChainID),
		zap.String("rpc_url", cfg.RPCURL),
		zap.String("tx_origin", cfg.TxOrigin))

	return &Client{
		config:  cfg,
		client:  client,
		address: common.HexToAddress(cfg.TxOrigin),
		signer:  types.LatestSignerForChainID(big.NewInt(cfg.ChainID)),
		logger:  logger,
	}, nil
}

// Close closes the underlying RPC connection.
func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// Address returns the worker's wallet address.
func (c *Client) Address() common.Address {
	return c.address
}

// ChainID returns the configured chain id.
func (c *Client) ChainID() int64 {
	return c.config.ChainID
}

func (c *Client) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.RequestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.config.RequestTimeout)
}

// SuggestGasPrice returns the node's current gas price estimate.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas price: %w", err)
	}
	return gasPrice, nil
}

// PendingNonce returns the worker's next nonce including pending transactions.
func (c *Client) PendingNonce(ctx context.Context) (uint64, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	nonce, err := c.client.PendingNonceAt(ctx, c.address)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending nonce: %w", err)
	}
	return nonce, nil
}

// Balance returns the wei balance of the given address.
func (c *Client) Balance(ctx context.Context, address common.Address) (*big.Int, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	balance, err := c.client.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// BlockNumber returns the latest block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	header, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block: %w", err)
	}
	return header.Number.Uint64(), nil
}

// CallContract runs an eth_call of the given calldata from the worker
// address. Used to preflight fills before spending gas on them.
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	msg := ethereum.CallMsg{
		From: c.address,
		To:   &to,
		Data: data,
	}
	out, err := c.client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("eth_call failed: %w", err)
	}
	return out, nil
}

// EstimateGas estimates gas for the given calldata from the worker address.
func (c *Client) EstimateGas(ctx context.Context, to common.Address, data []byte) (uint64, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	msg := ethereum.CallMsg{
		From: c.address,
		To:   &to,
		Data: data,
	}
	gas, err := c.client.EstimateGas(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("failed to estimate gas: %w", err)
	}
	return gas, nil
}

// SignFillTransaction builds and signs a legacy transaction carrying the
// fill calldata. Legacy pricing keeps resubmission semantics simple: a
// single gas price that only moves up.
func (c *Client) SignFillTransaction(nonce uint64, to common.Address, data []byte, gasPrice *big.Int) (*types.Transaction, error) {
	if c.privateKey == nil {
		return nil, fmt.Errorf("client has no signing key")
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      c.config.GasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, c.signer, c.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}

// SendTransaction broadcasts a signed transaction.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	if err := c.client.SendTransaction(ctx, tx); err != nil {
		return fmt.Errorf("failed to send transaction: %w", err)
	}

	c.logger.Info("Transaction broadcast",
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.Uint64("nonce", tx.Nonce()),
		zap.String("gas_price", tx.GasPrice().String()))
	return nil
}

// TransactionByHash looks a transaction up in the node, reporting whether it
// is still pending in the mempool.
func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	tx, isPending, err := c.client.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, false, err
	}
	return tx, isPending, nil
}

// TransactionReceipt returns the receipt for a mined transaction. The
// underlying client returns ethereum.NotFound while the transaction is
// unmined.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	return c.client.TransactionReceipt(ctx, hash)
}
