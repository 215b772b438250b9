// Package classify labels token transfers by counterparty: mints, burns,
// DEX trades, exchange flows, and plain wallet moves.
package classify

import (
	"github.com/ethereum/go-ethereum/common"
)

// Kind labels what a transfer most likely represents.
type Kind string

const (
	KindTransfer      Kind = "transfer"
	KindTokenMint     Kind = "token_mint"
	KindTokenBurn     Kind = "token_burn"
	KindPoolActivity  Kind = "pool_activity"
	KindPoolSetup     Kind = "pool_setup"
	KindDexBuy        Kind = "dex_buy"
	KindDexSell       Kind = "dex_sell"
	KindCexDeposit    Kind = "cex_deposit"
	KindCexWithdrawal Kind = "cex_withdrawal"
)

var (
	zeroAddress = common.Address{}
	deadAddress = common.HexToAddress("0x000000000000000000000000000000000000dEaD")
)

// Well-known aggregator and DEX router contracts on mainnet.
var defaultRouters = []common.Address{
	common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"), // Uniswap V2 router
	common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564"), // Uniswap V3 router
	common.HexToAddress("0x68b3465833fb72A70ecDF485E0e4C7bD8665Fc45"), // Uniswap V3 router 2
	common.HexToAddress("0xEf1c6E67703c7BD7107eed8303Fbe6EC2554BF6B"), // Universal router
	common.HexToAddress("0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD"), // Universal router 2
	common.HexToAddress("0x1111111254EEB25477B68fb85Ed929f73A960582"), // 1inch v5
	common.HexToAddress("0xDEF1C0ded9bec7F1a1670819833240f027b25EfF"), // 0x exchange proxy
	common.HexToAddress("0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F"), // SushiSwap router
}

// Hot wallets of the large centralized exchanges.
var defaultExchanges = []common.Address{
	common.HexToAddress("0x3f5CE5FBFe3E9af3971dD833D26bA9b5C936f0bE"), // Binance
	common.HexToAddress("0xD551234Ae421e3BCBA99A0Da6d736074f22192FF"), // Binance 2
	common.HexToAddress("0x564286362092D8e7936f0549571a803B203aAceD"), // Binance 3
	common.HexToAddress("0x28C6c06298d514Db089934071355E5743bf21d60"), // Binance 14
	common.HexToAddress("0x21a31Ee1afC51d94C2eFcCAa2092aD1028285549"), // Binance 15
	common.HexToAddress("0xDFd5293D8e347dFe59E90eFd55b2956a1343963d"), // Binance 16
	common.HexToAddress("0x71660c4005BA85c37ccec55d0C4493E66Fe775d3"), // Coinbase
	common.HexToAddress("0x503828976D22510aad0201ac7EC88293211D23Da"), // Coinbase 2
	common.HexToAddress("0xddfAbCdc4D8FfC6d5beaf154f18B778f892A0740"), // Coinbase 3
	common.HexToAddress("0x3cD751E6b0078Be393132286c442345e5DC49699"), // Coinbase 4
	common.HexToAddress("0x2910543Af39abA0Cd09dBb2D50200b3E800A63D2"), // Kraken
	common.HexToAddress("0x0A869d79a7052C7f1b55a8EbAbbEa3420F0D1E13"), // Kraken 4
	common.HexToAddress("0xE853c56864A2ebe4576a807D26Fdc4A0adA51919"), // Kraken 6
	common.HexToAddress("0x6cC5F688a315f3dC28A7781717a9A798a59fDA7b"), // OKX
	common.HexToAddress("0x236F9F97e0E62388479bf9E5BA4889e46B0273C3"), // OKX 2
	common.HexToAddress("0xf89d7b9c864f589bbF53a82105107622B35EaA40"), // Bybit
	common.HexToAddress("0x2B5634C42055806a59e9107ED44D43c426E58258"), // KuCoin
	common.HexToAddress("0x689C56AEf474Df92D44A1B70850f808488F9769C"), // KuCoin 2
}

// Classifier labels transfers using the built-in tables plus any
// configured extras. Pool state is looked up through a callback so
// freshly discovered pools count immediately; the returned hasLiquidity
// flag splits pool setup from pool trading activity.
type Classifier struct {
	routers   map[common.Address]struct{}
	exchanges map[common.Address]struct{}
	poolState func(common.Address) (hasLiquidity, known bool)
}

func New(poolState func(common.Address) (hasLiquidity, known bool), extraRouters, extraExchanges []common.Address) *Classifier {
	if poolState == nil {
		poolState = func(common.Address) (bool, bool) { return false, false }
	}
	c := &Classifier{
		routers:   map[common.Address]struct{}{},
		exchanges: map[common.Address]struct{}{},
		poolState: poolState,
	}
	for _, a := range append(append([]common.Address{}, defaultRouters...), extraRouters...) {
		c.routers[a] = struct{}{}
	}
	for _, a := range append(append([]common.Address{}, defaultExchanges...), extraExchanges...) {
		c.exchanges[a] = struct{}{}
	}
	return c
}

// Classify labels a transfer. Mints and burns win over everything else,
// then pool counterparties (setup before the pool holds liquidity,
// activity after), then router legs, then exchange flows.
func (c *Classifier) Classify(from, to common.Address) Kind {
	switch {
	case from == zeroAddress:
		return KindTokenMint
	case to == zeroAddress || to == deadAddress:
		return KindTokenBurn
	}
	for _, addr := range [2]common.Address{from, to} {
		if hasLiquidity, known := c.poolState(addr); known {
			if hasLiquidity {
				return KindPoolActivity
			}
			return KindPoolSetup
		}
	}
	switch {
	case c.IsRouter(from):
		return KindDexBuy
	case c.IsRouter(to):
		return KindDexSell
	case c.IsExchange(from):
		return KindCexWithdrawal
	case c.IsExchange(to):
		return KindCexDeposit
	default:
		return KindTransfer
	}
}

func (c *Classifier) IsRouter(a common.Address) bool {
	_, ok := c.routers[a]
	return ok
}

func (c *Classifier) IsExchange(a common.Address) bool {
	_, ok := c.exchanges[a]
	return ok
}
