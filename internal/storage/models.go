package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenRecord is the persisted projection of a canonical token. The sync
// change-detection whitelist covers Name, Chain, Status, Type,
// EstimatedValue, RequiredPoints and DeductPoints.
type TokenRecord struct {
	Symbol          string
	Name            string
	Chain           string
	ContractAddress string
	Status          string
	Type            string
	EstimatedValue  decimal.Decimal
	RequiredPoints  int
	DeductPoints    int
	Multiplier      int
	Score           decimal.Decimal
	Source          string
	ListingTime     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ScheduleRecord is a discrete today/upcoming schedule entry, keyed by
// (token, scheduled_time). Status only ever advances forward.
type ScheduleRecord struct {
	ID              int64
	Token           string
	Name            string
	ScheduledTime   time.Time
	EndTime         *time.Time
	Points          int
	DeductPoints    int
	Amount          decimal.Decimal
	Chain           string
	ContractAddress string
	Status          string
	Type            string
	EstimatedPrice  decimal.Decimal
	EstimatedValue  decimal.Decimal
	Source          string
	IsActive        bool
	IsVerified      bool
	Notified        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SyncLogRecord captures the outcome of one sync batch for auditing and the
// export chart.
type SyncLogRecord struct {
	ID        int64
	Kind      string
	Source    string
	Created   int
	Updated   int
	Unchanged int
	Errors    int
	Duration  time.Duration
	RanAt     time.Time
}
