package events

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func addrTopic(a common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(a.Bytes(), 32))
}

func mustPack(t *testing.T, ev string, args abi.Arguments, vals ...interface{}) []byte {
	t.Helper()
	data, err := args.Pack(vals...)
	if err != nil {
		t.Fatalf("pack %s data: %v", ev, err)
	}
	return data
}

// Topic hashes are part of the wire contract with the chain; pin them so an
// ABI edit cannot silently change what the spider subscribes to.
func TestTopicConstants(t *testing.T) {
	tests := []struct {
		name string
		got  common.Hash
		want string
	}{
		{"transfer", TopicTransfer, "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"},
		{"approval", TopicApproval, "0x8c5be1e5ebec7d5bd14f71427d1e84f3dd0314c0f7b2291e5b200ac8c7c3b925"},
		{"pair_created", TopicPairCreated, "0x0d3648bd0f6ba80134a33ba9275ac585d9d315f0ad8355cddefde31afa28d0e9"},
		{"mint_v2", TopicMintV2, "0x4c209b5fc8ad50758f13e2e1088ba56a560dff690a1c6fef26394f4c03821c4f"},
		{"burn_v2", TopicBurnV2, "0xdccd412f0b1252819cb1fd330b93224ca42612892bb3f4f789976e6d81936496"},
		{"swap_v2", TopicSwapV2, "0xd78ad95fa46c994b6551d0da85fc275fe613ce37657fb8d5e3d130840159d822"},
		{"sync", TopicSyncV2, "0x1c411e9a96e071241c2f21f7726b17ae89e3cab4c78be50e062b03a9fffbbad1"},
		{"pool_created", TopicPoolCreatedV3, "0x783cca1c0412dd0d695e784568c96da2e9c22ff989357a2e8b1d9b2b4e6b7118"},
		{"mint_v3", TopicMintV3, "0x7a53080ba414158be7ec69b987b5fb7d07dee101fe85488f0853ae16239d0bde"},
		{"swap_v3", TopicSwapV3, "0xc42079f94a6350d7e6235f29174924f928cc2ac818eb64fed8004e115fbcca67"},
	}

	for _, tt := range tests {
		if tt.got.Hex() != tt.want {
			t.Errorf("%s topic = %s, want %s", tt.name, tt.got.Hex(), tt.want)
		}
	}
}

func TestDecodeTransfer(t *testing.T) {
	from := common.HexToAddress("0x0000000000000000000000000000000000000001")
	to := common.HexToAddress("0x0000000000000000000000000000000000000002")
	value := new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1_000_000))

	lg := types.Log{
		Address:     common.HexToAddress("0xA0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"),
		Topics:      []common.Hash{TopicTransfer, addrTopic(from), addrTopic(to)},
		Data:        common.LeftPadBytes(value.Bytes(), 32),
		TxHash:      common.HexToHash("0xabc"),
		BlockNumber: 100,
		Index:       3,
	}

	tr, err := DecodeTransfer(lg)
	if err != nil {
		t.Fatalf("decode transfer: %v", err)
	}
	if tr.From != from || tr.To != to {
		t.Fatalf("unexpected parties: %s -> %s", tr.From, tr.To)
	}
	if tr.Value.Cmp(value) != 0 {
		t.Fatalf("unexpected value: %s", tr.Value)
	}
	if tr.Raw.BlockNumber != 100 {
		t.Fatalf("raw log not carried")
	}
}

func TestDecodeApproval(t *testing.T) {
	owner := common.HexToAddress("0x0000000000000000000000000000000000000003")
	spender := common.HexToAddress("0x0000000000000000000000000000000000000004")
	value := big.NewInt(42_000)

	lg := types.Log{
		Topics: []common.Hash{TopicApproval, addrTopic(owner), addrTopic(spender)},
		Data:   common.LeftPadBytes(value.Bytes(), 32),
	}

	ap, err := DecodeApproval(lg)
	if err != nil {
		t.Fatalf("decode approval: %v", err)
	}
	if ap.Owner != owner || ap.Spender != spender {
		t.Fatalf("unexpected parties: %s -> %s", ap.Owner, ap.Spender)
	}
	if ap.Value.Cmp(value) != 0 {
		t.Fatalf("unexpected value: %s", ap.Value)
	}
}

func TestDecodeSwapV2(t *testing.T) {
	sender := common.HexToAddress("0x0000000000000000000000000000000000000011")
	to := common.HexToAddress("0x0000000000000000000000000000000000000022")
	nonIndexed := v2PairABI.Events["Swap"].Inputs.NonIndexed()
	data := mustPack(t, "swap_v2", nonIndexed,
		big.NewInt(500), big.NewInt(0), big.NewInt(0), big.NewInt(1200))

	lg := types.Log{
		Topics: []common.Hash{TopicSwapV2, addrTopic(sender), addrTopic(to)},
		Data:   data,
	}

	sw, err := DecodeSwapV2(lg)
	if err != nil {
		t.Fatalf("decode swap: %v", err)
	}
	if sw.Sender != sender || sw.To != to {
		t.Fatalf("unexpected parties: %s -> %s", sw.Sender, sw.To)
	}
	if sw.Amount0In.Int64() != 500 || sw.Amount1Out.Int64() != 1200 {
		t.Fatalf("unexpected amounts: %s in, %s out", sw.Amount0In, sw.Amount1Out)
	}
	if sw.Amount1In.Sign() != 0 || sw.Amount0Out.Sign() != 0 {
		t.Fatalf("expected zero cross amounts")
	}
}

func TestDecodePairCreated(t *testing.T) {
	token0 := common.HexToAddress("0x0000000000000000000000000000000000000aaa")
	token1 := common.HexToAddress("0x0000000000000000000000000000000000000bbb")
	pair := common.HexToAddress("0x0000000000000000000000000000000000000ccc")
	nonIndexed := v2FactoryABI.Events["PairCreated"].Inputs.NonIndexed()
	data := mustPack(t, "pair_created", nonIndexed, pair, big.NewInt(42))

	lg := types.Log{
		Topics: []common.Hash{TopicPairCreated, addrTopic(token0), addrTopic(token1)},
		Data:   data,
	}

	pc, err := DecodePairCreated(lg)
	if err != nil {
		t.Fatalf("decode pair created: %v", err)
	}
	if pc.Token0 != token0 || pc.Token1 != token1 || pc.Pair != pair {
		t.Fatalf("unexpected decode: %+v", pc)
	}
}

func TestDecodePoolCreatedV3(t *testing.T) {
	token0 := common.HexToAddress("0x0000000000000000000000000000000000000aaa")
	token1 := common.HexToAddress("0x0000000000000000000000000000000000000bbb")
	pool := common.HexToAddress("0x0000000000000000000000000000000000000ddd")
	nonIndexed := v3FactoryABI.Events["PoolCreated"].Inputs.NonIndexed()
	data := mustPack(t, "pool_created", nonIndexed, big.NewInt(60), pool)

	lg := types.Log{
		Topics: []common.Hash{
			TopicPoolCreatedV3,
			addrTopic(token0),
			addrTopic(token1),
			common.BigToHash(big.NewInt(3000)),
		},
		Data: data,
	}

	pc, err := DecodePoolCreatedV3(lg)
	if err != nil {
		t.Fatalf("decode pool created: %v", err)
	}
	if pc.Token0 != token0 || pc.Token1 != token1 || pc.Pool != pool {
		t.Fatalf("unexpected decode: %+v", pc)
	}
	if pc.Fee != 3000 {
		t.Fatalf("fee = %d, want 3000", pc.Fee)
	}
	if pc.TickSpacing != 60 {
		t.Fatalf("tick spacing = %d, want 60", pc.TickSpacing)
	}
}

func TestDecodeSwapV3SignedAmounts(t *testing.T) {
	sender := common.HexToAddress("0x0000000000000000000000000000000000000011")
	recipient := common.HexToAddress("0x0000000000000000000000000000000000000022")
	amount0 := big.NewInt(-5_000_000_000_000_000_000)
	amount1 := big.NewInt(3_000_000)
	nonIndexed := v3PoolABI.Events["Swap"].Inputs.NonIndexed()
	data := mustPack(t, "swap_v3", nonIndexed,
		amount0, amount1, big.NewInt(1), big.NewInt(2), big.NewInt(-887272))

	lg := types.Log{
		Topics: []common.Hash{TopicSwapV3, addrTopic(sender), addrTopic(recipient)},
		Data:   data,
	}

	sw, err := DecodeSwapV3(lg)
	if err != nil {
		t.Fatalf("decode swap v3: %v", err)
	}
	if sw.Amount0.Cmp(amount0) != 0 {
		t.Fatalf("amount0 = %s, want %s", sw.Amount0, amount0)
	}
	if sw.Amount1.Cmp(amount1) != 0 {
		t.Fatalf("amount1 = %s, want %s", sw.Amount1, amount1)
	}
	if sw.Tick != -887272 {
		t.Fatalf("tick = %d, want -887272", sw.Tick)
	}
}

func TestDecodeMalformedLogs(t *testing.T) {
	from := common.HexToAddress("0x0000000000000000000000000000000000000001")

	tests := []struct {
		name string
		lg   types.Log
	}{
		{
			name: "missing indexed topic",
			lg: types.Log{
				Topics: []common.Hash{TopicTransfer, addrTopic(from)},
				Data:   common.LeftPadBytes(big.NewInt(1).Bytes(), 32),
			},
		},
		{
			name: "wrong topic0",
			lg: types.Log{
				Topics: []common.Hash{TopicSwapV2, addrTopic(from), addrTopic(from)},
				Data:   common.LeftPadBytes(big.NewInt(1).Bytes(), 32),
			},
		},
		{
			name: "short data",
			lg: types.Log{
				Topics: []common.Hash{TopicTransfer, addrTopic(from), addrTopic(from)},
				Data:   []byte{0x01, 0x02},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeTransfer(tt.lg); err == nil {
				t.Fatalf("expected decode to fail")
			}
		})
	}
}

func TestTopicNames(t *testing.T) {
	if name, ok := Name(TopicTransfer); !ok || name != "transfer" {
		t.Fatalf("Name(transfer) = %q, %v", name, ok)
	}
	if _, ok := Name(common.HexToHash("0xdead")); ok {
		t.Fatalf("expected unknown topic to miss")
	}
	if got := len(WatchedTopics()); got != 10 {
		t.Fatalf("watched topics = %d, want 10", got)
	}
}
