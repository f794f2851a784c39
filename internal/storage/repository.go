package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertTokenSQL = `INSERT INTO alpha_tokens (
        symbol,
        name,
        chain,
        contract_address,
        status,
        type,
        estimated_value,
        required_points,
        deduct_points,
        multiplier,
        score,
        source,
        listing_time,
        updated_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NOW()
    )
    ON CONFLICT (symbol) DO UPDATE
    SET
        name             = EXCLUDED.name,
        chain            = EXCLUDED.chain,
        contract_address = EXCLUDED.contract_address,
        status           = EXCLUDED.status,
        type             = EXCLUDED.type,
        estimated_value  = EXCLUDED.estimated_value,
        required_points  = EXCLUDED.required_points,
        deduct_points    = EXCLUDED.deduct_points,
        multiplier       = EXCLUDED.multiplier,
        score            = EXCLUDED.score,
        source           = EXCLUDED.source,
        listing_time     = EXCLUDED.listing_time,
        updated_at       = NOW();`

	getTokenBySymbolSQL = `SELECT
        symbol, name, chain, contract_address, status, type,
        estimated_value, required_points, deduct_points, multiplier,
        score, source, listing_time, created_at, updated_at
    FROM alpha_tokens
    WHERE symbol = $1;`

	listTokensSQL = `SELECT
        symbol, name, chain, contract_address, status, type,
        estimated_value, required_points, deduct_points, multiplier,
        score, source, listing_time, created_at, updated_at
    FROM alpha_tokens
    ORDER BY updated_at DESC
    LIMIT $1;`

	countTokensByStatusSQL = `SELECT status, COUNT(*) FROM alpha_tokens GROUP BY status;`

	upsertScheduleSQL = `INSERT INTO alpha_schedules (
        token,
        name,
        scheduled_time,
        end_time,
        points,
        deduct_points,
        amount,
        chain,
        contract_address,
        status,
        type,
        estimated_price,
        estimated_value,
        source,
        is_active,
        is_verified,
        updated_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,NOW()
    )
    ON CONFLICT (token, scheduled_time) DO UPDATE
    SET
        name             = EXCLUDED.name,
        end_time         = EXCLUDED.end_time,
        points           = EXCLUDED.points,
        deduct_points    = EXCLUDED.deduct_points,
        amount           = EXCLUDED.amount,
        chain            = EXCLUDED.chain,
        contract_address = EXCLUDED.contract_address,
        status           = EXCLUDED.status,
        type             = EXCLUDED.type,
        estimated_price  = EXCLUDED.estimated_price,
        estimated_value  = EXCLUDED.estimated_value,
        source           = EXCLUDED.source,
        is_active        = EXCLUDED.is_active,
        is_verified      = EXCLUDED.is_verified,
        updated_at       = NOW()
    RETURNING id, (xmax = 0) AS inserted;`

	listActiveSchedulesSQL = `SELECT
        id, token, name, scheduled_time, end_time, points, deduct_points,
        amount, chain, contract_address, status, type, estimated_price,
        estimated_value, source, is_active, is_verified, notified,
        created_at, updated_at
    FROM alpha_schedules
    WHERE is_active AND status <> 'ENDED'
    ORDER BY scheduled_time;`

	listSchedulesBetweenSQL = `SELECT
        id, token, name, scheduled_time, end_time, points, deduct_points,
        amount, chain, contract_address, status, type, estimated_price,
        estimated_value, source, is_active, is_verified, notified,
        created_at, updated_at
    FROM alpha_schedules
    WHERE scheduled_time >= $1
      AND scheduled_time < $2
    ORDER BY scheduled_time;`

	listDueForNotificationSQL = `SELECT
        id, token, name, scheduled_time, end_time, points, deduct_points,
        amount, chain, contract_address, status, type, estimated_price,
        estimated_value, source, is_active, is_verified, notified,
        created_at, updated_at
    FROM alpha_schedules
    WHERE NOT notified
      AND status IN ('UPCOMING', 'TODAY')
      AND scheduled_time >= $1
      AND scheduled_time <= $2
    ORDER BY scheduled_time;`

	updateScheduleStatusSQL = `UPDATE alpha_schedules
    SET status = $2, updated_at = NOW()
    WHERE id = $1;`

	markScheduleNotifiedSQL = `UPDATE alpha_schedules
    SET notified = TRUE, updated_at = NOW()
    WHERE id = $1;`

	deleteEndedBeforeSQL = `DELETE FROM alpha_schedules
    WHERE status = 'ENDED' AND scheduled_time < $1;`

	insertSyncLogSQL = `INSERT INTO sync_logs (
        kind, source, created, updated, unchanged, errors, duration_ms, ran_at
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8);`

	listSyncLogsBetweenSQL = `SELECT
        id, kind, source, created, updated, unchanged, errors, duration_ms, ran_at
    FROM sync_logs
    WHERE ran_at >= $1
      AND ran_at < $2
    ORDER BY ran_at;`

	listRecentSyncLogsSQL = `SELECT
        id, kind, source, created, updated, unchanged, errors, duration_ms, ran_at
    FROM sync_logs
    ORDER BY ran_at DESC
    LIMIT $1;`
)

// TokenStore defines token persistence as consumed by the aggregation
// service. GetTokenBySymbol returns nil when the record does not exist.
type TokenStore interface {
	UpsertToken(ctx context.Context, record TokenRecord) error
	GetTokenBySymbol(ctx context.Context, symbol string) (*TokenRecord, error)
	ListTokens(ctx context.Context, limit int) ([]TokenRecord, error)
	CountTokensByStatus(ctx context.Context) (map[string]int64, error)
}

// ScheduleStore defines schedule persistence as consumed by the schedule
// service. UpsertSchedule reports whether the row was newly inserted.
type ScheduleStore interface {
	UpsertSchedule(ctx context.Context, record ScheduleRecord) (id int64, created bool, err error)
	ListActiveSchedules(ctx context.Context) ([]ScheduleRecord, error)
	ListSchedulesBetween(ctx context.Context, from, to time.Time) ([]ScheduleRecord, error)
	ListDueForNotification(ctx context.Context, from, to time.Time) ([]ScheduleRecord, error)
	UpdateScheduleStatus(ctx context.Context, id int64, status string) error
	MarkNotified(ctx context.Context, id int64) error
	DeleteEndedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SyncLogStore records sync batch outcomes.
type SyncLogStore interface {
	InsertSyncLog(ctx context.Context, record SyncLogRecord) error
	ListSyncLogsBetween(ctx context.Context, from, to time.Time) ([]SyncLogRecord, error)
	ListRecentSyncLogs(ctx context.Context, limit int) ([]SyncLogRecord, error)
}

// Store aggregates access to tokens, schedules, and sync logs.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertToken persists or updates a token keyed by symbol.
func (s *Store) UpsertToken(ctx context.Context, record TokenRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var listing interface{}
	if record.ListingTime != nil {
		listing = *record.ListingTime
	}

	_, execErr := pool.Exec(ctx, upsertTokenSQL,
		record.Symbol,
		record.Name,
		record.Chain,
		record.ContractAddress,
		record.Status,
		record.Type,
		record.EstimatedValue.String(),
		record.RequiredPoints,
		record.DeductPoints,
		record.Multiplier,
		record.Score.String(),
		record.Source,
		listing,
	)
	if execErr != nil {
		return fmt.Errorf("upsert token: %w", execErr)
	}
	return nil
}

// GetTokenBySymbol fetches a single token, returning nil when absent.
func (s *Store) GetTokenBySymbol(ctx context.Context, symbol string) (*TokenRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, getTokenBySymbolSQL, symbol)
	if queryErr != nil {
		return nil, fmt.Errorf("get token by symbol: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return nil, rows.Err()
		}
		return nil, nil
	}
	record, scanErr := scanTokenRecord(rows)
	if scanErr != nil {
		return nil, scanErr
	}
	return &record, nil
}

// ListTokens lists tokens ordered by recency of update.
func (s *Store) ListTokens(ctx context.Context, limit int) ([]TokenRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listTokensSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list tokens: %w", queryErr)
	}
	defer rows.Close()

	records := make([]TokenRecord, 0, limit)
	for rows.Next() {
		record, scanErr := scanTokenRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, record)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// CountTokensByStatus groups stored tokens by status.
func (s *Store) CountTokensByStatus(ctx context.Context) (map[string]int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, countTokensByStatusSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("count tokens by status: %w", queryErr)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return counts, nil
}

// UpsertSchedule persists or updates a schedule keyed by (token, scheduled_time).
func (s *Store) UpsertSchedule(ctx context.Context, record ScheduleRecord) (int64, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, false, err
	}

	var end interface{}
	if record.EndTime != nil {
		end = *record.EndTime
	}

	var id int64
	var inserted bool
	scanErr := pool.QueryRow(ctx, upsertScheduleSQL,
		record.Token,
		record.Name,
		record.ScheduledTime,
		end,
		record.Points,
		record.DeductPoints,
		record.Amount.String(),
		record.Chain,
		record.ContractAddress,
		record.Status,
		record.Type,
		record.EstimatedPrice.String(),
		record.EstimatedValue.String(),
		record.Source,
		record.IsActive,
		record.IsVerified,
	).Scan(&id, &inserted)
	if scanErr != nil {
		return 0, false, fmt.Errorf("upsert schedule: %w", scanErr)
	}
	return id, inserted, nil
}

// ListActiveSchedules lists non-ended active schedules in time order.
func (s *Store) ListActiveSchedules(ctx context.Context) ([]ScheduleRecord, error) {
	return s.querySchedules(ctx, listActiveSchedulesSQL)
}

// ListSchedulesBetween lists schedules whose scheduled time falls in [from, to).
func (s *Store) ListSchedulesBetween(ctx context.Context, from, to time.Time) ([]ScheduleRecord, error) {
	return s.querySchedules(ctx, listSchedulesBetweenSQL, from, to)
}

// ListDueForNotification lists not-yet-notified schedules inside the
// look-ahead window that are still pending.
func (s *Store) ListDueForNotification(ctx context.Context, from, to time.Time) ([]ScheduleRecord, error) {
	return s.querySchedules(ctx, listDueForNotificationSQL, from, to)
}

func (s *Store) querySchedules(ctx context.Context, query string, args ...interface{}) ([]ScheduleRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, query, args...)
	if queryErr != nil {
		return nil, fmt.Errorf("query schedules: %w", queryErr)
	}
	defer rows.Close()

	records := make([]ScheduleRecord, 0)
	for rows.Next() {
		record, scanErr := scanScheduleRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, record)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// UpdateScheduleStatus sets the status of a single schedule.
func (s *Store) UpdateScheduleStatus(ctx context.Context, id int64, status string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, updateScheduleStatusSQL, id, status)
	if execErr != nil {
		return fmt.Errorf("update schedule status: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// MarkNotified flips the at-most-once notification flag.
func (s *Store) MarkNotified(ctx context.Context, id int64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, markScheduleNotifiedSQL, id)
	if execErr != nil {
		return fmt.Errorf("mark schedule notified: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// DeleteEndedBefore hard-deletes ended schedules older than the cutoff.
func (s *Store) DeleteEndedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	cmdTag, execErr := pool.Exec(ctx, deleteEndedBeforeSQL, cutoff)
	if execErr != nil {
		return 0, fmt.Errorf("delete ended schedules: %w", execErr)
	}
	return cmdTag.RowsAffected(), nil
}

// InsertSyncLog appends a sync outcome record.
func (s *Store) InsertSyncLog(ctx context.Context, record SyncLogRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	_, execErr := pool.Exec(ctx, insertSyncLogSQL,
		record.Kind,
		record.Source,
		record.Created,
		record.Updated,
		record.Unchanged,
		record.Errors,
		record.Duration.Milliseconds(),
		record.RanAt,
	)
	if execErr != nil {
		return fmt.Errorf("insert sync log: %w", execErr)
	}
	return nil
}

// ListSyncLogsBetween lists sync outcomes within a time window.
func (s *Store) ListSyncLogsBetween(ctx context.Context, from, to time.Time) ([]SyncLogRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSyncLogsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list sync logs: %w", queryErr)
	}
	defer rows.Close()

	return collectSyncLogs(rows)
}

// ListRecentSyncLogs lists the most recent sync outcomes.
func (s *Store) ListRecentSyncLogs(ctx context.Context, limit int) ([]SyncLogRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSyncLogsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent sync logs: %w", queryErr)
	}
	defer rows.Close()

	return collectSyncLogs(rows)
}

func collectSyncLogs(rows pgx.Rows) ([]SyncLogRecord, error) {
	records := make([]SyncLogRecord, 0)
	for rows.Next() {
		var rec SyncLogRecord
		var durationMs int64
		if err := rows.Scan(
			&rec.ID,
			&rec.Kind,
			&rec.Source,
			&rec.Created,
			&rec.Updated,
			&rec.Unchanged,
			&rec.Errors,
			&durationMs,
			&rec.RanAt,
		); err != nil {
			return nil, err
		}
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func scanTokenRecord(rows pgx.Rows) (TokenRecord, error) {
	var (
		rec          TokenRecord
		estimatedStr string
		scoreStr     string
		listing      sql.NullTime
	)

	if err := rows.Scan(
		&rec.Symbol,
		&rec.Name,
		&rec.Chain,
		&rec.ContractAddress,
		&rec.Status,
		&rec.Type,
		&estimatedStr,
		&rec.RequiredPoints,
		&rec.DeductPoints,
		&rec.Multiplier,
		&scoreStr,
		&rec.Source,
		&listing,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return TokenRecord{}, err
	}

	var convErr error
	rec.EstimatedValue, convErr = decimal.NewFromString(estimatedStr)
	if convErr != nil {
		return TokenRecord{}, fmt.Errorf("parse estimated value: %w", convErr)
	}
	rec.Score, convErr = decimal.NewFromString(scoreStr)
	if convErr != nil {
		return TokenRecord{}, fmt.Errorf("parse score: %w", convErr)
	}
	if listing.Valid {
		value := listing.Time
		rec.ListingTime = &value
	}
	return rec, nil
}

func scanScheduleRecord(rows pgx.Rows) (ScheduleRecord, error) {
	var (
		rec       ScheduleRecord
		end       sql.NullTime
		amountStr string
		priceStr  string
		valueStr  string
	)

	if err := rows.Scan(
		&rec.ID,
		&rec.Token,
		&rec.Name,
		&rec.ScheduledTime,
		&end,
		&rec.Points,
		&rec.DeductPoints,
		&amountStr,
		&rec.Chain,
		&rec.ContractAddress,
		&rec.Status,
		&rec.Type,
		&priceStr,
		&valueStr,
		&rec.Source,
		&rec.IsActive,
		&rec.IsVerified,
		&rec.Notified,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return ScheduleRecord{}, err
	}

	var convErr error
	rec.Amount, convErr = decimal.NewFromString(amountStr)
	if convErr != nil {
		return ScheduleRecord{}, fmt.Errorf("parse amount: %w", convErr)
	}
	rec.EstimatedPrice, convErr = decimal.NewFromString(priceStr)
	if convErr != nil {
		return ScheduleRecord{}, fmt.Errorf("parse estimated price: %w", convErr)
	}
	rec.EstimatedValue, convErr = decimal.NewFromString(valueStr)
	if convErr != nil {
		return ScheduleRecord{}, fmt.Errorf("parse estimated value: %w", convErr)
	}
	if end.Valid {
		value := end.Time
		rec.EndTime = &value
	}
	return rec, nil
}

var _ TokenStore = (*Store)(nil)
var _ ScheduleStore = (*Store)(nil)
var _ SyncLogStore = (*Store)(nil)
