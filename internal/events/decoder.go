package events

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Transfer is a decoded ERC-20 Transfer log.
type Transfer struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	Raw   types.Log
}

// Approval is a decoded ERC-20 Approval log.
type Approval struct {
	Owner   common.Address
	Spender common.Address
	Value   *big.Int
	Raw     types.Log
}

// PairCreated is a decoded Uniswap V2 factory PairCreated log.
type PairCreated struct {
	Token0 common.Address
	Token1 common.Address
	Pair   common.Address
	Raw    types.Log
}

// PoolCreatedV3 is a decoded Uniswap V3 factory PoolCreated log.
type PoolCreatedV3 struct {
	Token0      common.Address
	Token1      common.Address
	Fee         uint32
	TickSpacing int32
	Pool        common.Address
	Raw         types.Log
}

type MintV2 struct {
	Sender  common.Address
	Amount0 *big.Int
	Amount1 *big.Int
	Raw     types.Log
}

type BurnV2 struct {
	Sender  common.Address
	To      common.Address
	Amount0 *big.Int
	Amount1 *big.Int
	Raw     types.Log
}

type SwapV2 struct {
	Sender     common.Address
	To         common.Address
	Amount0In  *big.Int
	Amount1In  *big.Int
	Amount0Out *big.Int
	Amount1Out *big.Int
	Raw        types.Log
}

type SyncV2 struct {
	Reserve0 *big.Int
	Reserve1 *big.Int
	Raw      types.Log
}

type MintV3 struct {
	Sender    common.Address
	Owner     common.Address
	TickLower int32
	TickUpper int32
	Amount    *big.Int
	Amount0   *big.Int
	Amount1   *big.Int
	Raw       types.Log
}

type SwapV3 struct {
	Sender       common.Address
	Recipient    common.Address
	Amount0      *big.Int
	Amount1      *big.Int
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Tick         int32
	Raw          types.Log
}

func DecodeTransfer(lg types.Log) (*Transfer, error) {
	args, err := unpackLog(erc20ABI.Events["Transfer"], lg)
	if err != nil {
		return nil, err
	}
	out := &Transfer{Raw: lg}
	if out.From, err = addrArg(args, "from"); err != nil {
		return nil, err
	}
	if out.To, err = addrArg(args, "to"); err != nil {
		return nil, err
	}
	if out.Value, err = bigArg(args, "value"); err != nil {
		return nil, err
	}
	return out, nil
}

func DecodeApproval(lg types.Log) (*Approval, error) {
	args, err := unpackLog(erc20ABI.Events["Approval"], lg)
	if err != nil {
		return nil, err
	}
	out := &Approval{Raw: lg}
	if out.Owner, err = addrArg(args, "owner"); err != nil {
		return nil, err
	}
	if out.Spender, err = addrArg(args, "spender"); err != nil {
		return nil, err
	}
	if out.Value, err = bigArg(args, "value"); err != nil {
		return nil, err
	}
	return out, nil
}

func DecodePairCreated(lg types.Log) (*PairCreated, error) {
	args, err := unpackLog(v2FactoryABI.Events["PairCreated"], lg)
	if err != nil {
		return nil, err
	}
	out := &PairCreated{Raw: lg}
	if out.Token0, err = addrArg(args, "token0"); err != nil {
		return nil, err
	}
	if out.Token1, err = addrArg(args, "token1"); err != nil {
		return nil, err
	}
	if out.Pair, err = addrArg(args, "pair"); err != nil {
		return nil, err
	}
	return out, nil
}

func DecodePoolCreatedV3(lg types.Log) (*PoolCreatedV3, error) {
	args, err := unpackLog(v3FactoryABI.Events["PoolCreated"], lg)
	if err != nil {
		return nil, err
	}
	out := &PoolCreatedV3{Raw: lg}
	if out.Token0, err = addrArg(args, "token0"); err != nil {
		return nil, err
	}
	if out.Token1, err = addrArg(args, "token1"); err != nil {
		return nil, err
	}
	if out.Fee, err = u32Arg(args, "fee"); err != nil {
		return nil, err
	}
	if out.TickSpacing, err = i32Arg(args, "tickSpacing"); err != nil {
		return nil, err
	}
	if out.Pool, err = addrArg(args, "pool"); err != nil {
		return nil, err
	}
	return out, nil
}

func DecodeMintV2(lg types.Log) (*MintV2, error) {
	args, err := unpackLog(v2PairABI.Events["Mint"], lg)
	if err != nil {
		return nil, err
	}
	out := &MintV2{Raw: lg}
	if out.Sender, err = addrArg(args, "sender"); err != nil {
		return nil, err
	}
	if out.Amount0, err = bigArg(args, "amount0"); err != nil {
		return nil, err
	}
	if out.Amount1, err = bigArg(args, "amount1"); err != nil {
		return nil, err
	}
	return out, nil
}

func DecodeBurnV2(lg types.Log) (*BurnV2, error) {
	args, err := unpackLog(v2PairABI.Events["Burn"], lg)
	if err != nil {
		return nil, err
	}
	out := &BurnV2{Raw: lg}
	if out.Sender, err = addrArg(args, "sender"); err != nil {
		return nil, err
	}
	if out.To, err = addrArg(args, "to"); err != nil {
		return nil, err
	}
	if out.Amount0, err = bigArg(args, "amount0"); err != nil {
		return nil, err
	}
	if out.Amount1, err = bigArg(args, "amount1"); err != nil {
		return nil, err
	}
	return out, nil
}

func DecodeSwapV2(lg types.Log) (*SwapV2, error) {
	args, err := unpackLog(v2PairABI.Events["Swap"], lg)
	if err != nil {
		return nil, err
	}
	out := &SwapV2{Raw: lg}
	if out.Sender, err = addrArg(args, "sender"); err != nil {
		return nil, err
	}
	if out.To, err = addrArg(args, "to"); err != nil {
		return nil, err
	}
	if out.Amount0In, err = bigArg(args, "amount0In"); err != nil {
		return nil, err
	}
	if out.Amount1In, err = bigArg(args, "amount1In"); err != nil {
		return nil, err
	}
	if out.Amount0Out, err = bigArg(args, "amount0Out"); err != nil {
		return nil, err
	}
	if out.Amount1Out, err = bigArg(args, "amount1Out"); err != nil {
		return nil, err
	}
	return out, nil
}

func DecodeSyncV2(lg types.Log) (*SyncV2, error) {
	args, err := unpackLog(v2PairABI.Events["Sync"], lg)
	if err != nil {
		return nil, err
	}
	out := &SyncV2{Raw: lg}
	if out.Reserve0, err = bigArg(args, "reserve0"); err != nil {
		return nil, err
	}
	if out.Reserve1, err = bigArg(args, "reserve1"); err != nil {
		return nil, err
	}
	return out, nil
}

func DecodeMintV3(lg types.Log) (*MintV3, error) {
	args, err := unpackLog(v3PoolABI.Events["Mint"], lg)
	if err != nil {
		return nil, err
	}
	out := &MintV3{Raw: lg}
	if out.Sender, err = addrArg(args, "sender"); err != nil {
		return nil, err
	}
	if out.Owner, err = addrArg(args, "owner"); err != nil {
		return nil, err
	}
	if out.TickLower, err = i32Arg(args, "tickLower"); err != nil {
		return nil, err
	}
	if out.TickUpper, err = i32Arg(args, "tickUpper"); err != nil {
		return nil, err
	}
	if out.Amount, err = bigArg(args, "amount"); err != nil {
		return nil, err
	}
	if out.Amount0, err = bigArg(args, "amount0"); err != nil {
		return nil, err
	}
	if out.Amount1, err = bigArg(args, "amount1"); err != nil {
		return nil, err
	}
	return out, nil
}

func DecodeSwapV3(lg types.Log) (*SwapV3, error) {
	args, err := unpackLog(v3PoolABI.Events["Swap"], lg)
	if err != nil {
		return nil, err
	}
	out := &SwapV3{Raw: lg}
	if out.Sender, err = addrArg(args, "sender"); err != nil {
		return nil, err
	}
	if out.Recipient, err = addrArg(args, "recipient"); err != nil {
		return nil, err
	}
	if out.Amount0, err = bigArg(args, "amount0"); err != nil {
		return nil, err
	}
	if out.Amount1, err = bigArg(args, "amount1"); err != nil {
		return nil, err
	}
	if out.SqrtPriceX96, err = bigArg(args, "sqrtPriceX96"); err != nil {
		return nil, err
	}
	if out.Liquidity, err = bigArg(args, "liquidity"); err != nil {
		return nil, err
	}
	if out.Tick, err = i32Arg(args, "tick"); err != nil {
		return nil, err
	}
	return out, nil
}

// unpackLog decodes indexed args from topics and the rest from data.
// Topic count mismatches and short data are reported as errors so callers
// can skip malformed logs without dying.
func unpackLog(ev abi.Event, lg types.Log) (map[string]any, error) {
	indexed, nonIndexed := splitIndexed(ev.Inputs)
	if len(lg.Topics) != len(indexed)+1 {
		return nil, fmt.Errorf("%s: want %d topics, got %d", ev.Name, len(indexed)+1, len(lg.Topics))
	}
	if lg.Topics[0] != ev.ID {
		return nil, fmt.Errorf("%s: unexpected topic0 %s", ev.Name, lg.Topics[0])
	}

	args := map[string]any{}
	if err := abi.ParseTopicsIntoMap(args, indexed, lg.Topics[1:]); err != nil {
		return nil, fmt.Errorf("%s: parse topics: %w", ev.Name, err)
	}
	if err := nonIndexed.UnpackIntoMap(args, lg.Data); err != nil {
		return nil, fmt.Errorf("%s: unpack data: %w", ev.Name, err)
	}
	return args, nil
}

func splitIndexed(args abi.Arguments) (indexed abi.Arguments, nonIndexed abi.Arguments) {
	for _, a := range args {
		if a.Indexed {
			indexed = append(indexed, a)
		} else {
			nonIndexed = append(nonIndexed, a)
		}
	}
	return indexed, nonIndexed
}

func addrArg(args map[string]any, name string) (common.Address, error) {
	v, ok := args[name].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("argument %s: not an address", name)
	}
	return v, nil
}

func bigArg(args map[string]any, name string) (*big.Int, error) {
	v, ok := args[name].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("argument %s: not an integer", name)
	}
	return v, nil
}

// int24 and uint24 have no native Go width, so the abi package hands them
// back as *big.Int; tick and fee ranges fit comfortably in 32 bits.
func i32Arg(args map[string]any, name string) (int32, error) {
	v, ok := args[name].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("argument %s: not an int24", name)
	}
	return int32(v.Int64()), nil
}

func u32Arg(args map[string]any, name string) (uint32, error) {
	v, ok := args[name].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("argument %s: not a uint24", name)
	}
	return uint32(v.Uint64()), nil
}
