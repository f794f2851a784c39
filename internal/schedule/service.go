package schedule

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"alphawatch/internal/model"
	"alphawatch/internal/notify"
	"alphawatch/internal/service"
	"alphawatch/internal/storage"
)

// Schedule lifecycle statuses. A row only ever moves forward through this
// sequence; a later sweep can never take LIVE back to TODAY.
const (
	StatusUpcoming = "UPCOMING"
	StatusToday    = "TODAY"
	StatusLive     = "LIVE"
	StatusEnded    = "ENDED"
)

var statusRank = map[string]int{
	StatusUpcoming: 0,
	StatusToday:    1,
	StatusLive:     2,
	StatusEnded:    3,
}

// SyncOutcome aggregates one schedule sync pass.
type SyncOutcome struct {
	Created   int
	Updated   int
	Errors    int
	Advanced  int
	Duration  time.Duration
	Timestamp time.Time
}

// Options wire the schedule service dependencies. Alpha supplies the token
// listing the schedules are derived from; Notifier may be nil when alerting
// is disabled.
type Options struct {
	Store          storage.ScheduleStore
	SyncLogs       storage.SyncLogStore
	Alpha          *service.Service
	Notifier       notify.Notifier
	Logger         zerolog.Logger
	ReminderWindow time.Duration
	DefaultLead    time.Duration
	CampaignSpan   time.Duration
}

// Service maintains discrete claim schedules derived from the aggregated
// token listing: status sweeps, reminder dispatch, and cleanup.
type Service struct {
	store    storage.ScheduleStore
	syncLogs storage.SyncLogStore
	alpha    *service.Service
	notifier notify.Notifier
	logger   zerolog.Logger
	now      func() time.Time

	reminderWindow time.Duration
	defaultLead    time.Duration
	campaignSpan   time.Duration
}

// New constructs the schedule service. Zero durations fall back to a 20m
// reminder window, 1h default lead, and a 7 day campaign span.
func New(opts Options) *Service {
	if opts.ReminderWindow <= 0 {
		opts.ReminderWindow = 20 * time.Minute
	}
	if opts.DefaultLead <= 0 {
		opts.DefaultLead = time.Hour
	}
	if opts.CampaignSpan <= 0 {
		opts.CampaignSpan = 7 * 24 * time.Hour
	}
	return &Service{
		store:          opts.Store,
		syncLogs:       opts.SyncLogs,
		alpha:          opts.Alpha,
		notifier:       opts.Notifier,
		logger:         opts.Logger.With().Str("component", "schedule_service").Logger(),
		now:            time.Now,
		reminderWindow: opts.ReminderWindow,
		defaultLead:    opts.DefaultLead,
		campaignSpan:   opts.CampaignSpan,
	}
}

// computeStatus derives the lifecycle status of a schedule at a point in
// time. Calendar-day comparison happens in UTC.
func computeStatus(scheduled time.Time, end *time.Time, now time.Time) string {
	if end != nil && now.After(*end) {
		return StatusEnded
	}
	if !now.Before(scheduled) {
		return StatusLive
	}
	ys, ms, ds := scheduled.UTC().Date()
	yn, mn, dn := now.UTC().Date()
	if ys == yn && ms == mn && ds == dn {
		return StatusToday
	}
	return StatusUpcoming
}

// Upsert writes a schedule with its status computed from the current clock.
// It reports the row id and whether the row was newly created.
func (s *Service) Upsert(ctx context.Context, record storage.ScheduleRecord) (int64, bool, error) {
	record.Status = computeStatus(record.ScheduledTime, record.EndTime, s.now())
	if !record.IsActive {
		record.IsActive = true
	}
	return s.store.UpsertSchedule(ctx, record)
}

// SyncFromAlpha derives schedule rows from the current token listing: every
// active airdrop and every upcoming TGE becomes a schedule entry keyed by
// (token, scheduled_time). Tokens without a listing time are scheduled a
// fixed lead ahead of now so they surface in the upcoming views.
func (s *Service) SyncFromAlpha(ctx context.Context) (SyncOutcome, error) {
	start := s.now()
	outcome := SyncOutcome{Timestamp: start}

	airdrops := s.alpha.GetActiveAirdrops(ctx)
	if !airdrops.Success {
		s.logger.Warn().Str("error", airdrops.Error).Msg("schedule sync: airdrop listing unavailable")
	}
	tges := s.alpha.GetUpcomingTGE(ctx)
	if !tges.Success {
		s.logger.Warn().Str("error", tges.Error).Msg("schedule sync: tge listing unavailable")
	}

	seen := make(map[string]bool)
	candidates := make([]model.Token, 0, len(airdrops.Tokens)+len(tges.Tokens))
	for _, token := range append(airdrops.Tokens, tges.Tokens...) {
		if seen[token.Symbol] {
			continue
		}
		seen[token.Symbol] = true
		candidates = append(candidates, token)
	}

	for _, token := range candidates {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		record := s.toScheduleRecord(token, start)
		_, created, err := s.store.UpsertSchedule(ctx, record)
		if err != nil {
			outcome.Errors++
			s.logger.Error().Err(err).Str("token", token.Symbol).Msg("schedule upsert failed")
			continue
		}
		if created {
			outcome.Created++
		} else {
			outcome.Updated++
		}
	}

	advanced, err := s.UpdateAllStatuses(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("schedule status sweep failed")
		outcome.Errors++
	}
	outcome.Advanced = advanced
	outcome.Duration = s.now().Sub(start)

	if s.syncLogs != nil {
		logErr := s.syncLogs.InsertSyncLog(ctx, storage.SyncLogRecord{
			Kind:     "schedules",
			Source:   airdrops.Source,
			Created:  outcome.Created,
			Updated:  outcome.Updated,
			Errors:   outcome.Errors,
			Duration: outcome.Duration,
			RanAt:    start,
		})
		if logErr != nil {
			s.logger.Error().Err(logErr).Msg("failed to record schedule sync log")
		}
	}

	s.logger.Info().
		Int("created", outcome.Created).
		Int("updated", outcome.Updated).
		Int("advanced", outcome.Advanced).
		Int("errors", outcome.Errors).
		Msg("schedule sync complete")
	return outcome, nil
}

func (s *Service) toScheduleRecord(token model.Token, now time.Time) storage.ScheduleRecord {
	scheduled := now.Add(s.defaultLead).Truncate(time.Minute)
	if token.ListingTime != nil {
		scheduled = *token.ListingTime
	}
	end := scheduled.Add(s.campaignSpan)

	return storage.ScheduleRecord{
		Token:           token.Symbol,
		Name:            token.Name,
		ScheduledTime:   scheduled,
		EndTime:         &end,
		Points:          token.RequiredPoints,
		DeductPoints:    token.DeductPoints,
		Amount:          token.Amount,
		Chain:           token.ChainID,
		ContractAddress: token.ContractAddress,
		Status:          computeStatus(scheduled, &end, now),
		Type:            string(token.Type),
		EstimatedPrice:  token.Price,
		EstimatedValue:  token.EstimatedValue,
		Source:          token.Source,
		IsActive:        true,
		IsVerified:      token.ListingTime != nil,
	}
}

// UpdateAllStatuses sweeps active schedules forward. Status transitions are
// monotonic: a row whose stored status already ranks at or past the computed
// one is left untouched.
func (s *Service) UpdateAllStatuses(ctx context.Context) (int, error) {
	records, err := s.store.ListActiveSchedules(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	advanced := 0
	for _, record := range records {
		desired := computeStatus(record.ScheduledTime, record.EndTime, now)
		if statusRank[desired] <= statusRank[record.Status] {
			continue
		}
		if err := s.store.UpdateScheduleStatus(ctx, record.ID, desired); err != nil {
			s.logger.Error().Err(err).Int64("id", record.ID).Msg("status advance failed")
			continue
		}
		advanced++
		s.logger.Debug().
			Str("token", record.Token).
			Str("from", record.Status).
			Str("to", desired).
			Msg("schedule status advanced")
	}
	return advanced, nil
}

// TodaySchedules lists schedules falling on the current UTC calendar day.
func (s *Service) TodaySchedules(ctx context.Context) ([]storage.ScheduleRecord, error) {
	now := s.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return s.store.ListSchedulesBetween(ctx, dayStart, dayStart.Add(24*time.Hour))
}

// UpcomingSchedules lists schedules within the next given number of days.
func (s *Service) UpcomingSchedules(ctx context.Context, days int) ([]storage.ScheduleRecord, error) {
	if days <= 0 {
		days = 7
	}
	now := s.now()
	return s.store.ListSchedulesBetween(ctx, now, now.Add(time.Duration(days)*24*time.Hour))
}

// SchedulesForNotification lists not-yet-notified schedules entering the
// reminder window.
func (s *Service) SchedulesForNotification(ctx context.Context) ([]storage.ScheduleRecord, error) {
	now := s.now()
	return s.store.ListDueForNotification(ctx, now, now.Add(s.reminderWindow))
}

// MarkNotified flips the at-most-once flag for a schedule. Exposed for
// callers that dispatch through their own channel instead of the built-in
// reminder pass.
func (s *Service) MarkNotified(ctx context.Context, id int64) error {
	return s.store.MarkNotified(ctx, id)
}

// DispatchReminders sends an alert for every schedule entering the reminder
// window and flags it notified only after a successful send, so a failed
// dispatch is retried on the next pass and a delivered one never repeats.
func (s *Service) DispatchReminders(ctx context.Context) (int, error) {
	if s.notifier == nil {
		return 0, nil
	}

	due, err := s.SchedulesForNotification(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, record := range due {
		alert := notify.Alert{
			Kind:           notify.KindReminder,
			Token:          record.Token,
			Name:           record.Name,
			ScheduledAt:    record.ScheduledTime,
			Points:         record.Points,
			DeductPoints:   record.DeductPoints,
			Amount:         record.Amount,
			EstimatedValue: record.EstimatedValue,
			Chain:          record.Chain,
			Status:         record.Status,
		}
		if err := s.notifier.Notify(ctx, alert); err != nil {
			s.logger.Error().Err(err).Str("token", record.Token).Msg("reminder dispatch failed, will retry")
			continue
		}
		if err := s.store.MarkNotified(ctx, record.ID); err != nil {
			s.logger.Error().Err(err).Int64("id", record.ID).Msg("failed to flag schedule notified")
			continue
		}
		sent++
	}

	if sent > 0 {
		s.logger.Info().Int("sent", sent).Int("due", len(due)).Msg("reminders dispatched")
	}
	return sent, nil
}

// CleanupOld hard-deletes ended schedules older than the retention window.
func (s *Service) CleanupOld(ctx context.Context, daysOld int) (int64, error) {
	if daysOld <= 0 {
		daysOld = 7
	}
	cutoff := s.now().AddDate(0, 0, -daysOld)
	removed, err := s.store.DeleteEndedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("old schedules cleaned up")
	}
	return removed, nil
}
