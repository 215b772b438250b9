package events

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Event ABIs for the contracts the spider watches. Kept as separate
// documents because Uniswap V2 pairs and V3 pools both declare Mint/Swap
// events and a single ABI cannot hold two events with one name.
const (
	erc20EventsJSON = `[
	{"type":"event","name":"Transfer","inputs":[
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"value","type":"uint256","indexed":false}
	]},
	{"type":"event","name":"Approval","inputs":[
		{"name":"owner","type":"address","indexed":true},
		{"name":"spender","type":"address","indexed":true},
		{"name":"value","type":"uint256","indexed":false}
	]}
]`

	v2FactoryJSON = `[
	{"type":"event","name":"PairCreated","inputs":[
		{"name":"token0","type":"address","indexed":true},
		{"name":"token1","type":"address","indexed":true},
		{"name":"pair","type":"address","indexed":false},
		{"name":"allPairsLength","type":"uint256","indexed":false}
	]}
]`

	v2PairJSON = `[
	{"type":"event","name":"Mint","inputs":[
		{"name":"sender","type":"address","indexed":true},
		{"name":"amount0","type":"uint256","indexed":false},
		{"name":"amount1","type":"uint256","indexed":false}
	]},
	{"type":"event","name":"Burn","inputs":[
		{"name":"sender","type":"address","indexed":true},
		{"name":"amount0","type":"uint256","indexed":false},
		{"name":"amount1","type":"uint256","indexed":false},
		{"name":"to","type":"address","indexed":true}
	]},
	{"type":"event","name":"Swap","inputs":[
		{"name":"sender","type":"address","indexed":true},
		{"name":"amount0In","type":"uint256","indexed":false},
		{"name":"amount1In","type":"uint256","indexed":false},
		{"name":"amount0Out","type":"uint256","indexed":false},
		{"name":"amount1Out","type":"uint256","indexed":false},
		{"name":"to","type":"address","indexed":true}
	]},
	{"type":"event","name":"Sync","inputs":[
		{"name":"reserve0","type":"uint112","indexed":false},
		{"name":"reserve1","type":"uint112","indexed":false}
	]}
]`

	v3FactoryJSON = `[
	{"type":"event","name":"PoolCreated","inputs":[
		{"name":"token0","type":"address","indexed":true},
		{"name":"token1","type":"address","indexed":true},
		{"name":"fee","type":"uint24","indexed":true},
		{"name":"tickSpacing","type":"int24","indexed":false},
		{"name":"pool","type":"address","indexed":false}
	]}
]`

	v3PoolJSON = `[
	{"type":"event","name":"Mint","inputs":[
		{"name":"sender","type":"address","indexed":false},
		{"name":"owner","type":"address","indexed":true},
		{"name":"tickLower","type":"int24","indexed":true},
		{"name":"tickUpper","type":"int24","indexed":true},
		{"name":"amount","type":"uint128","indexed":false},
		{"name":"amount0","type":"uint256","indexed":false},
		{"name":"amount1","type":"uint256","indexed":false}
	]},
	{"type":"event","name":"Swap","inputs":[
		{"name":"sender","type":"address","indexed":true},
		{"name":"recipient","type":"address","indexed":true},
		{"name":"amount0","type":"int256","indexed":false},
		{"name":"amount1","type":"int256","indexed":false},
		{"name":"sqrtPriceX96","type":"uint160","indexed":false},
		{"name":"liquidity","type":"uint128","indexed":false},
		{"name":"tick","type":"int24","indexed":false}
	]}
]`
)

var (
	erc20ABI     = mustABI(erc20EventsJSON)
	v2FactoryABI = mustABI(v2FactoryJSON)
	v2PairABI    = mustABI(v2PairJSON)
	v3FactoryABI = mustABI(v3FactoryJSON)
	v3PoolABI    = mustABI(v3PoolJSON)
)

// Topic hashes for every event the spider subscribes to.
var (
	TopicTransfer      = erc20ABI.Events["Transfer"].ID
	TopicApproval      = erc20ABI.Events["Approval"].ID
	TopicPairCreated   = v2FactoryABI.Events["PairCreated"].ID
	TopicMintV2        = v2PairABI.Events["Mint"].ID
	TopicBurnV2        = v2PairABI.Events["Burn"].ID
	TopicSwapV2        = v2PairABI.Events["Swap"].ID
	TopicSyncV2        = v2PairABI.Events["Sync"].ID
	TopicPoolCreatedV3 = v3FactoryABI.Events["PoolCreated"].ID
	TopicMintV3        = v3PoolABI.Events["Mint"].ID
	TopicSwapV3        = v3PoolABI.Events["Swap"].ID
)

var topicNames = map[common.Hash]string{
	TopicTransfer:      "transfer",
	TopicApproval:      "approval",
	TopicPairCreated:   "pair_created",
	TopicMintV2:        "mint_v2",
	TopicBurnV2:        "burn_v2",
	TopicSwapV2:        "swap_v2",
	TopicSyncV2:        "sync",
	TopicPoolCreatedV3: "pool_created",
	TopicMintV3:        "mint_v3",
	TopicSwapV3:        "swap_v3",
}

// Name returns a short label for a watched topic0 hash.
func Name(topic common.Hash) (string, bool) {
	n, ok := topicNames[topic]
	return n, ok
}

// WatchedTopics returns every topic0 the node-side log filter should pass.
func WatchedTopics() []common.Hash {
	return []common.Hash{
		TopicTransfer,
		TopicApproval,
		TopicPairCreated,
		TopicMintV2,
		TopicBurnV2,
		TopicSwapV2,
		TopicSyncV2,
		TopicPoolCreatedV3,
		TopicMintV3,
		TopicSwapV3,
	}
}

func mustABI(doc string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(doc))
	if err != nil {
		panic(fmt.Sprintf("events: parse abi: %v", err))
	}
	return parsed
}
