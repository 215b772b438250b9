package health

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
)

// HeadClient is the probe's view of the node.
type HeadClient interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// RPCChecker reports node liveness by requesting the latest header.
type RPCChecker struct {
	client HeadClient
}

func NewRPCChecker(client HeadClient) *RPCChecker {
	return &RPCChecker{client: client}
}

func (c *RPCChecker) Ping(ctx context.Context) error {
	if _, err := c.client.HeaderByNumber(ctx, nil); err != nil {
		return fmt.Errorf("rpc: %w", err)
	}
	return nil
}
