package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenStatus is the campaign lifecycle state derived at transform time.
type TokenStatus string

const (
	StatusUpcoming  TokenStatus = "UPCOMING"
	StatusClaimable TokenStatus = "CLAIMABLE"
	StatusEnded     TokenStatus = "ENDED"
	StatusSnapshot  TokenStatus = "SNAPSHOT"
	StatusCancelled TokenStatus = "CANCELLED"
)

// TokenType classifies the campaign kind.
type TokenType string

const (
	TypeTGE     TokenType = "TGE"
	TypePreTGE  TokenType = "PRETGE"
	TypeAirdrop TokenType = "AIRDROP"
)

// Token is the canonical post-normalization airdrop record. Status and Type
// are always re-derived from the raw flags and timestamps by the source
// adapters; callers never hand-set them except for manually entered records.
type Token struct {
	Symbol          string
	AlphaID         string
	Name            string
	ChainID         string
	ContractAddress string

	Price            decimal.Decimal
	PercentChange24h decimal.Decimal
	Volume24h        decimal.Decimal
	MarketCap        decimal.Decimal
	Liquidity        decimal.Decimal
	Holders          int64
	Score            decimal.Decimal
	EstimatedValue   decimal.Decimal
	Amount           decimal.Decimal

	Multiplier     int
	RequiredPoints int
	DeductPoints   int

	OnlineTGE     bool
	OnlineAirdrop bool

	ListingTime *time.Time
	Type        TokenType
	Status      TokenStatus
	Source      string
	LastUpdate  time.Time
}

// Active reports whether the token has a live campaign of either kind.
func (t Token) Active() bool {
	return t.OnlineAirdrop || t.OnlineTGE
}
