package chain

import (
	"errors"

	"github.com/ethereum/go-ethereum/core/types"
)

// ErrReorgDetected signals that the chain rewound; the cursor has been
// stepped back and the caller should simply run the next cycle.
var ErrReorgDetected = errors.New("reorg detected")

// Batch is one contiguous range of confirmed blocks and the logs found in it.
type Batch struct {
	From uint64
	To   uint64
	Head uint64
	Hash string
	Logs []types.Log
}

// Blocks returns the number of blocks covered by the batch.
func (b *Batch) Blocks() uint64 {
	return b.To - b.From + 1
}
