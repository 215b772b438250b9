// Package erc20 reads token metadata and converts raw token amounts.
package erc20

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20FnJSON = `[
	{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

var fnABI = mustABI(erc20FnJSON)

// Caller is the subset of the RPC client needed for contract reads.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Metadata describes the watched token. Values fall back to placeholders
// when the contract does not answer; decimals default to 18.
type Metadata struct {
	Address  common.Address
	Name     string
	Symbol   string
	Decimals uint8
}

// FetchMetadata reads name, symbol and decimals from the contract.
// Fields that cannot be read keep their fallback values; the combined
// error reports what failed so callers can log or reject as they see fit.
func FetchMetadata(ctx context.Context, c Caller, addr common.Address) (Metadata, error) {
	m := Metadata{Address: addr, Name: "Unknown", Symbol: "???", Decimals: 18}
	var errs []error

	if name, err := callString(ctx, c, addr, "name"); err != nil {
		errs = append(errs, err)
	} else {
		m.Name = name
	}
	if symbol, err := callString(ctx, c, addr, "symbol"); err != nil {
		errs = append(errs, err)
	} else {
		m.Symbol = symbol
	}
	if decimals, err := callUint8(ctx, c, addr, "decimals"); err != nil {
		errs = append(errs, err)
	} else {
		m.Decimals = decimals
	}

	return m, errors.Join(errs...)
}

// TotalSupply reads the current total supply in raw units.
func TotalSupply(ctx context.Context, c Caller, addr common.Address) (*big.Int, error) {
	ret, err := call(ctx, c, addr, "totalSupply")
	if err != nil {
		return nil, err
	}
	vals, err := fnABI.Unpack("totalSupply", ret)
	if err != nil {
		return nil, fmt.Errorf("totalSupply: unpack: %w", err)
	}
	supply, ok := vals[0].(*big.Int)
	if !ok {
		return nil, errors.New("totalSupply: not an integer")
	}
	return supply, nil
}

// BalanceOf reads an account balance in raw units.
func BalanceOf(ctx context.Context, c Caller, token, account common.Address) (*big.Int, error) {
	data, err := fnABI.Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("balanceOf: pack: %w", err)
	}
	ret, err := c.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf: call: %w", err)
	}
	vals, err := fnABI.Unpack("balanceOf", ret)
	if err != nil {
		return nil, fmt.Errorf("balanceOf: unpack: %w", err)
	}
	bal, ok := vals[0].(*big.Int)
	if !ok {
		return nil, errors.New("balanceOf: not an integer")
	}
	return bal, nil
}

func call(ctx context.Context, c Caller, addr common.Address, method string) ([]byte, error) {
	data, err := fnABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("%s: pack: %w", method, err)
	}
	ret, err := c.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: call: %w", method, err)
	}
	if len(ret) == 0 {
		return nil, fmt.Errorf("%s: empty result", method)
	}
	return ret, nil
}

func callString(ctx context.Context, c Caller, addr common.Address, method string) (string, error) {
	ret, err := call(ctx, c, addr, method)
	if err != nil {
		return "", err
	}
	vals, err := fnABI.Unpack(method, ret)
	if err != nil {
		return "", fmt.Errorf("%s: unpack: %w", method, err)
	}
	s, ok := vals[0].(string)
	if !ok {
		return "", fmt.Errorf("%s: not a string", method)
	}
	return s, nil
}

func callUint8(ctx context.Context, c Caller, addr common.Address, method string) (uint8, error) {
	ret, err := call(ctx, c, addr, method)
	if err != nil {
		return 0, err
	}
	vals, err := fnABI.Unpack(method, ret)
	if err != nil {
		return 0, fmt.Errorf("%s: unpack: %w", method, err)
	}
	v, ok := vals[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("%s: not a uint8", method)
	}
	return v, nil
}

func mustABI(doc string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(doc))
	if err != nil {
		panic(fmt.Sprintf("erc20: parse abi: %v", err))
	}
	return parsed
}
