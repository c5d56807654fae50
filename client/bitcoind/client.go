// Package bitcoind adapts a Bitcoin Core JSON-RPC connection to the indexer's
// BitcoinClient interface.
package bitcoind

import (
	"context"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/cockroachdb/errors"

	"github.com/runelight-network/runelight/core/types"
	"github.com/runelight-network/runelight/indexer"
)

var _ indexer.BitcoinClient = (*Client)(nil)

type Config struct {
	Host       string `mapstructure:"host"`
	User       string `mapstructure:"user"`
	Pass       string `mapstructure:"pass"`
	DisableTLS bool   `mapstructure:"disable_tls"`
}

type Client struct {
	client *rpcclient.Client
}

func New(config Config) (*Client, error) {
	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         config.Host,
		User:         config.User,
		Pass:         config.Pass,
		DisableTLS:   config.DisableTLS,
		HTTPPostMode: true,
	}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create rpc client")
	}
	return &Client{client: client}, nil
}

func (c *Client) Close() {
	c.client.Shutdown()
}

func (c *Client) GetBlockCount(_ context.Context) (uint64, error) {
	count, err := c.client.GetBlockCount()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get block count")
	}
	return uint64(count), nil
}

func (c *Client) GetBlockHash(_ context.Context, height uint64) (chainhash.Hash, error) {
	hash, err := c.client.GetBlockHash(int64(height))
	if err != nil {
		return chainhash.Hash{}, errors.Wrapf(err, "failed to get block hash at height %d", height)
	}
	return *hash, nil
}

func (c *Client) GetBlock(ctx context.Context, height uint64) (*types.Block, error) {
	hash, err := c.GetBlockHash(ctx, height)
	if err != nil {
		return nil, err
	}
	msgBlock, err := c.client.GetBlock(&hash)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get block %s", hash)
	}
	return types.ParseMsgBlock(msgBlock, int64(height)), nil
}

// GetTransaction fetches a confirmed transaction and resolves the height of
// the block containing it.
func (c *Client) GetTransaction(_ context.Context, txHash chainhash.Hash) (*types.Transaction, error) {
	rawTx, err := c.client.GetRawTransactionVerbose(&txHash)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get raw transaction %s", txHash)
	}
	if rawTx.BlockHash == "" {
		return nil, errors.Newf("transaction %s is not confirmed", txHash)
	}
	blockHash, err := chainhash.NewHashFromStr(rawTx.BlockHash)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse block hash")
	}
	blockHeader, err := c.client.GetBlockHeaderVerbose(blockHash)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get block header %s", blockHash)
	}

	serializedTx, err := hex.DecodeString(rawTx.Hex)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode transaction hex")
	}
	tx, err := btcutil.NewTxFromBytes(serializedTx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to deserialize transaction")
	}

	return types.ParseMsgTx(tx.MsgTx(), int64(blockHeader.Height), *blockHash, 0), nil
}
