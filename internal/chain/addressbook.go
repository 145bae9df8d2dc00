// Package chain talks to an EVM chain: it reads token balances and submits
// Uniswap V2 style swaps signed with the bot's key.
package chain

import (
	"regexp"
	"strings"

	"base-autobot/internal/models"
)

// BaseMainnet is the address book for Base (chain id 8453).
func BaseMainnet() models.AddressBook {
	return models.AddressBook{
		ChainID: 8453,
		Network: "base",
		Routers: models.Routers{
			UniswapV2Factory:       "0x8909Dc15e40173Ff4699343b6eB8132c65e18eC6",
			UniswapV2Router02:      "0x4752ba5DBc23f44D87826276BF6Fd6b1C372aD24",
			UniswapUniversalRouter: "0x6fF5693b99212Da76ad316178A184AB56D299b43",
			UniswapPermit2:         "0x000000000022D473030F116dDEE9F6B43aC78BA3",
			UniswapV3Factory:       "0x33128a8fC17869897dcE68Ed026d694621f6FDfD",
			UniswapV3SwapRouter02:  "0x2626664c2603336E57B271c5C0b26F421741e481",
			UniswapV3QuoterV2:      "0x3d4e44Eb1374240CE5F1B871ab261CD16335B76a",
		},
		Tokens: map[string]string{
			"weth":  "0x4200000000000000000000000000000000000006",
			"usdc":  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			"usdbc": "0xD9aaEC86B65D86f6A7B5B1b0c42FFA531710b6CA",
			"aave":  "0x63706e401c06ac8513145b7687a14804d17f814b",
			"link":  "0x88Fb150BDc53A65fe94Dea0c9BA0a6dAf8C6e196",
			"base":  "0xd07379a755a8f11b57610154861d694b2a0f615a",
		},
	}
}

// stablecoins are valued 1:1 in USD when syncing balances.
var stablecoins = []string{"usdc", "usdbc"}

// ResolveTokenKey finds the address-book key for symbol, ignoring case.
func ResolveTokenKey(symbol string, tokens map[string]string) (string, bool) {
	want := strings.ToLower(strings.TrimSpace(symbol))
	for key := range tokens {
		if strings.ToLower(key) == want {
			return key, true
		}
	}
	return "", false
}

var privateKeyPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// NormalizePrivateKey returns the key as 0x-prefixed hex, or false if it is
// not 32 bytes of hex.
func NormalizePrivateKey(value string) (string, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", false
	}
	if !strings.HasPrefix(trimmed, "0x") {
		trimmed = "0x" + trimmed
	}
	if !privateKeyPattern.MatchString(trimmed) {
		return "", false
	}
	return trimmed, true
}
