package service

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"alphawatch/internal/model"
)

// SortKey names a sortable token field.
type SortKey string

const (
	SortBySymbol      SortKey = "symbol"
	SortByPrice       SortKey = "price"
	SortByScore       SortKey = "score"
	SortByVolume      SortKey = "volume24h"
	SortByMarketCap   SortKey = "marketCap"
	SortByListingTime SortKey = "listingTime"
	SortByLastUpdate  SortKey = "lastUpdate"
)

// FilterOptions describe an in-memory filter/sort/paginate request. All
// criteria are conjunctive; slice criteria match any element.
type FilterOptions struct {
	Statuses      []model.TokenStatus
	Types         []model.TokenType
	Chains        []string
	MinScore      *decimal.Decimal
	MaxScore      *decimal.Decimal
	Multiplier    *int
	OnlineAirdrop *bool
	OnlineTGE     *bool
	Search        string
	SortBy        SortKey
	SortDesc      bool
	Offset        int
	Limit         int
}

func applyFilters(tokens []model.Token, opts FilterOptions) []model.Token {
	search := strings.ToLower(strings.TrimSpace(opts.Search))

	filtered := make([]model.Token, 0, len(tokens))
	for _, token := range tokens {
		if len(opts.Statuses) > 0 && !containsStatus(opts.Statuses, token.Status) {
			continue
		}
		if len(opts.Types) > 0 && !containsType(opts.Types, token.Type) {
			continue
		}
		if len(opts.Chains) > 0 && !containsChain(opts.Chains, token.ChainID) {
			continue
		}
		if opts.MinScore != nil && token.Score.LessThan(*opts.MinScore) {
			continue
		}
		if opts.MaxScore != nil && token.Score.GreaterThan(*opts.MaxScore) {
			continue
		}
		if opts.Multiplier != nil && token.Multiplier != *opts.Multiplier {
			continue
		}
		if opts.OnlineAirdrop != nil && token.OnlineAirdrop != *opts.OnlineAirdrop {
			continue
		}
		if opts.OnlineTGE != nil && token.OnlineTGE != *opts.OnlineTGE {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(token.Symbol), search) &&
			!strings.Contains(strings.ToLower(token.Name), search) {
			continue
		}
		filtered = append(filtered, token)
	}
	return filtered
}

// sortTokens orders tokens by a single key. Tokens with a nil listing time
// sort last regardless of direction.
func sortTokens(tokens []model.Token, key SortKey, desc bool) {
	if key == "" {
		return
	}

	sort.SliceStable(tokens, func(i, j int) bool {
		a, b := tokens[i], tokens[j]

		if key == SortByListingTime {
			switch {
			case a.ListingTime == nil && b.ListingTime == nil:
				return false
			case a.ListingTime == nil:
				return false
			case b.ListingTime == nil:
				return true
			}
		}

		less := lessByKey(a, b, key)
		if desc {
			return lessByKey(b, a, key)
		}
		return less
	})
}

func lessByKey(a, b model.Token, key SortKey) bool {
	switch key {
	case SortBySymbol:
		return a.Symbol < b.Symbol
	case SortByPrice:
		return a.Price.LessThan(b.Price)
	case SortByScore:
		return a.Score.LessThan(b.Score)
	case SortByVolume:
		return a.Volume24h.LessThan(b.Volume24h)
	case SortByMarketCap:
		return a.MarketCap.LessThan(b.MarketCap)
	case SortByListingTime:
		return a.ListingTime.Before(*b.ListingTime)
	case SortByLastUpdate:
		return a.LastUpdate.Before(b.LastUpdate)
	default:
		return false
	}
}

func paginate(tokens []model.Token, offset, limit int) []model.Token {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(tokens) {
		return []model.Token{}
	}
	end := len(tokens)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return tokens[offset:end]
}

func containsStatus(haystack []model.TokenStatus, needle model.TokenStatus) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsType(haystack []model.TokenType, needle model.TokenType) bool {
	for _, t := range haystack {
		if t == needle {
			return true
		}
	}
	return false
}

func containsChain(haystack []string, needle string) bool {
	for _, c := range haystack {
		if strings.EqualFold(c, needle) {
			return true
		}
	}
	return false
}
