// Package chain reads confirmed logs from an Ethereum node, tracking a
// persisted cursor so restarts resume where the previous run stopped.
package chain

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// NodeClient captures the subset of ethclient used by the scanner.
type NodeClient interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// SubscribeClient captures the subset of ethclient used by the streamer.
type SubscribeClient interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
}

// RPCClient is a thin wrapper over ethclient.Client; embedding keeps the
// full client surface (contract calls, tx lookups) available to callers.
type RPCClient struct {
	*ethclient.Client
}

// NewRPCClient dials an Ethereum node over HTTP or websocket.
func NewRPCClient(rpcURL string) (*RPCClient, error) {
	c, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return &RPCClient{Client: c}, nil
}
