package erc20

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

type fakeCaller struct {
	responses map[string][]byte
	err       error
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	ret, ok := f.responses[common.Bytes2Hex(msg.Data)]
	if !ok {
		return nil, fmt.Errorf("unexpected call: %x", msg.Data)
	}
	return ret, nil
}

func packOutput(t *testing.T, method string, vals ...interface{}) []byte {
	t.Helper()
	out, err := fnABI.Methods[method].Outputs.Pack(vals...)
	if err != nil {
		t.Fatalf("pack %s output: %v", method, err)
	}
	return out
}

func calldata(t *testing.T, method string, args ...interface{}) string {
	t.Helper()
	data, err := fnABI.Pack(method, args...)
	if err != nil {
		t.Fatalf("pack %s: %v", method, err)
	}
	return common.Bytes2Hex(data)
}

func TestFetchMetadata(t *testing.T) {
	token := common.HexToAddress("0xA0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	caller := &fakeCaller{responses: map[string][]byte{
		calldata(t, "name"):     packOutput(t, "name", "USD Coin"),
		calldata(t, "symbol"):   packOutput(t, "symbol", "USDC"),
		calldata(t, "decimals"): packOutput(t, "decimals", uint8(6)),
	}}

	m, err := FetchMetadata(context.Background(), caller, token)
	if err != nil {
		t.Fatalf("fetch metadata: %v", err)
	}
	if m.Name != "USD Coin" || m.Symbol != "USDC" || m.Decimals != 6 {
		t.Fatalf("unexpected metadata: %+v", m)
	}
	if m.Address != token {
		t.Fatalf("address not carried: %s", m.Address)
	}
}

func TestFetchMetadataFallsBack(t *testing.T) {
	token := common.HexToAddress("0x0000000000000000000000000000000000000042")
	caller := &fakeCaller{err: errors.New("execution reverted")}

	m, err := FetchMetadata(context.Background(), caller, token)
	if err == nil {
		t.Fatalf("expected combined error from failing calls")
	}
	if m.Name != "Unknown" || m.Symbol != "???" || m.Decimals != 18 {
		t.Fatalf("unexpected fallbacks: %+v", m)
	}
}

func TestTotalSupply(t *testing.T) {
	token := common.HexToAddress("0x0000000000000000000000000000000000000042")
	supply := new(big.Int).Mul(big.NewInt(1_000_000_000), big.NewInt(1_000_000))
	caller := &fakeCaller{responses: map[string][]byte{
		calldata(t, "totalSupply"): packOutput(t, "totalSupply", supply),
	}}

	got, err := TotalSupply(context.Background(), caller, token)
	if err != nil {
		t.Fatalf("total supply: %v", err)
	}
	if got.Cmp(supply) != 0 {
		t.Fatalf("supply = %s, want %s", got, supply)
	}
}

func TestBalanceOf(t *testing.T) {
	token := common.HexToAddress("0x0000000000000000000000000000000000000042")
	holder := common.HexToAddress("0x0000000000000000000000000000000000000007")
	caller := &fakeCaller{responses: map[string][]byte{
		calldata(t, "balanceOf", holder): packOutput(t, "balanceOf", big.NewInt(123456)),
	}}

	got, err := BalanceOf(context.Background(), caller, token, holder)
	if err != nil {
		t.Fatalf("balance of: %v", err)
	}
	if got.Int64() != 123456 {
		t.Fatalf("balance = %s, want 123456", got)
	}
}
