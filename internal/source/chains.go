package source

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// chainAliases maps the free-text chain labels seen on the community site to
// canonical identifiers. Unknown labels pass through uppercased.
var chainAliases = map[string]string{
	"bsc":                 "BSC",
	"bnb":                 "BSC",
	"bnb chain":           "BSC",
	"bnb smart chain":     "BSC",
	"binance smart chain": "BSC",
	"eth":                 "ETH",
	"ethereum":            "ETH",
	"erc20":               "ETH",
	"sol":                 "SOL",
	"solana":              "SOL",
	"base":                "BASE",
	"arb":                 "ARB",
	"arbitrum":            "ARB",
	"arbitrum one":        "ARB",
	"opbnb":               "OPBNB",
	"polygon":             "POLYGON",
	"matic":               "POLYGON",
}

var evmChains = map[string]bool{
	"BSC":     true,
	"ETH":     true,
	"BASE":    true,
	"ARB":     true,
	"OPBNB":   true,
	"POLYGON": true,
}

// NormalizeChain resolves a free-text chain label to its canonical id.
func NormalizeChain(raw string) string {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	if cleaned == "" {
		return ""
	}
	if canonical, ok := chainAliases[cleaned]; ok {
		return canonical
	}
	return strings.ToUpper(cleaned)
}

// NormalizeContract validates and checksums a contract address for EVM
// chains. Non-EVM chains and malformed addresses pass through trimmed.
func NormalizeContract(chain, address string) string {
	address = strings.TrimSpace(address)
	if address == "" {
		return ""
	}
	if evmChains[chain] && common.IsHexAddress(address) {
		return common.HexToAddress(address).Hex()
	}
	return address
}
