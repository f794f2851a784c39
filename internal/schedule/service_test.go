package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alphawatch/internal/notify"
	"alphawatch/internal/storage"
)

type fakeScheduleStore struct {
	nextID  int64
	records map[int64]*storage.ScheduleRecord
}

func newFakeScheduleStore() *fakeScheduleStore {
	return &fakeScheduleStore{records: make(map[int64]*storage.ScheduleRecord)}
}

func (f *fakeScheduleStore) UpsertSchedule(ctx context.Context, record storage.ScheduleRecord) (int64, bool, error) {
	for id, existing := range f.records {
		if existing.Token == record.Token && existing.ScheduledTime.Equal(record.ScheduledTime) {
			notified := existing.Notified
			record.ID = id
			record.Notified = notified
			f.records[id] = &record
			return id, false, nil
		}
	}
	f.nextID++
	record.ID = f.nextID
	f.records[record.ID] = &record
	return record.ID, true, nil
}

func (f *fakeScheduleStore) ListActiveSchedules(ctx context.Context) ([]storage.ScheduleRecord, error) {
	out := make([]storage.ScheduleRecord, 0, len(f.records))
	for _, r := range f.records {
		if r.IsActive && r.Status != StatusEnded {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeScheduleStore) ListSchedulesBetween(ctx context.Context, from, to time.Time) ([]storage.ScheduleRecord, error) {
	out := make([]storage.ScheduleRecord, 0)
	for _, r := range f.records {
		if !r.ScheduledTime.Before(from) && r.ScheduledTime.Before(to) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeScheduleStore) ListDueForNotification(ctx context.Context, from, to time.Time) ([]storage.ScheduleRecord, error) {
	out := make([]storage.ScheduleRecord, 0)
	for _, r := range f.records {
		if r.Notified || (r.Status != StatusUpcoming && r.Status != StatusToday) {
			continue
		}
		if !r.ScheduledTime.Before(from) && !r.ScheduledTime.After(to) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeScheduleStore) UpdateScheduleStatus(ctx context.Context, id int64, status string) error {
	r, ok := f.records[id]
	if !ok {
		return errors.New("no such schedule")
	}
	r.Status = status
	return nil
}

func (f *fakeScheduleStore) MarkNotified(ctx context.Context, id int64) error {
	r, ok := f.records[id]
	if !ok {
		return errors.New("no such schedule")
	}
	r.Notified = true
	return nil
}

func (f *fakeScheduleStore) DeleteEndedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	removed := int64(0)
	for id, r := range f.records {
		if r.Status == StatusEnded && r.ScheduledTime.Before(cutoff) {
			delete(f.records, id)
			removed++
		}
	}
	return removed, nil
}

type fakeNotifier struct {
	fail bool
	sent []notify.Alert
}

func (f *fakeNotifier) Notify(ctx context.Context, alert notify.Alert) error {
	if f.fail {
		return errors.New("simulated delivery failure")
	}
	f.sent = append(f.sent, alert)
	return nil
}

func newTestScheduleService(store storage.ScheduleStore, notifier notify.Notifier, now time.Time) *Service {
	svc := New(Options{
		Store:          store,
		Notifier:       notifier,
		Logger:         zerolog.Nop(),
		ReminderWindow: 20 * time.Minute,
	})
	svc.now = func() time.Time { return now }
	return svc
}

func TestComputeStatus(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name      string
		scheduled time.Time
		end       *time.Time
		want      string
	}{
		{"future day", now.Add(48 * time.Hour), nil, StatusUpcoming},
		{"later today", now.Add(2 * time.Hour), nil, StatusToday},
		{"time passed", now.Add(-time.Hour), nil, StatusLive},
		{"exactly now", now, nil, StatusLive},
		{"end passed", now.Add(-48 * time.Hour), &end, StatusEnded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, computeStatus(tc.scheduled, tc.end, now))
		})
	}
}

func TestStatusSweepIsMonotonic(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	store := newFakeScheduleStore()
	svc := newTestScheduleService(store, nil, now)

	// stored as LIVE although the clock alone would say TODAY
	id, _, err := store.UpsertSchedule(context.Background(), storage.ScheduleRecord{
		Token:         "FOO",
		ScheduledTime: now.Add(2 * time.Hour),
		Status:        StatusLive,
		IsActive:      true,
	})
	require.NoError(t, err)

	advanced, err := svc.UpdateAllStatuses(context.Background())
	require.NoError(t, err)
	assert.Zero(t, advanced, "status must never move backwards")
	assert.Equal(t, StatusLive, store.records[id].Status)
}

func TestStatusSweepAdvances(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	store := newFakeScheduleStore()
	svc := newTestScheduleService(store, nil, now)

	id, _, err := store.UpsertSchedule(context.Background(), storage.ScheduleRecord{
		Token:         "FOO",
		ScheduledTime: now.Add(-time.Hour),
		Status:        StatusUpcoming,
		IsActive:      true,
	})
	require.NoError(t, err)

	advanced, err := svc.UpdateAllStatuses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, advanced)
	assert.Equal(t, StatusLive, store.records[id].Status)
}

func TestDispatchRemindersAtMostOnce(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	store := newFakeScheduleStore()
	notifier := &fakeNotifier{}
	svc := newTestScheduleService(store, notifier, now)

	_, _, err := store.UpsertSchedule(context.Background(), storage.ScheduleRecord{
		Token:         "FOO",
		ScheduledTime: now.Add(10 * time.Minute),
		Status:        StatusToday,
		IsActive:      true,
	})
	require.NoError(t, err)

	sent, err := svc.DispatchReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, notify.KindReminder, notifier.sent[0].Kind)

	// second pass must not re-send
	sent, err = svc.DispatchReminders(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Len(t, notifier.sent, 1)
}

func TestFailedDispatchLeavesFlagClearForRetry(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	store := newFakeScheduleStore()
	notifier := &fakeNotifier{fail: true}
	svc := newTestScheduleService(store, notifier, now)

	id, _, err := store.UpsertSchedule(context.Background(), storage.ScheduleRecord{
		Token:         "FOO",
		ScheduledTime: now.Add(10 * time.Minute),
		Status:        StatusToday,
		IsActive:      true,
	})
	require.NoError(t, err)

	sent, err := svc.DispatchReminders(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.False(t, store.records[id].Notified, "failed delivery must keep the row eligible")

	// delivery recovers, the same row goes out
	notifier.fail = false
	sent, err = svc.DispatchReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.True(t, store.records[id].Notified)
}

func TestReminderWindowExcludesFarFuture(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	store := newFakeScheduleStore()
	notifier := &fakeNotifier{}
	svc := newTestScheduleService(store, notifier, now)

	_, _, err := store.UpsertSchedule(context.Background(), storage.ScheduleRecord{
		Token:         "FAR",
		ScheduledTime: now.Add(3 * time.Hour),
		Status:        StatusToday,
		IsActive:      true,
	})
	require.NoError(t, err)

	sent, err := svc.DispatchReminders(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestUpsertComputesStatus(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	store := newFakeScheduleStore()
	svc := newTestScheduleService(store, nil, now)

	id, created, err := svc.Upsert(context.Background(), storage.ScheduleRecord{
		Token:         "FOO",
		ScheduledTime: now.Add(3 * time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, StatusToday, store.records[id].Status)
	assert.True(t, store.records[id].IsActive)

	// same (token, scheduled_time) key updates in place
	_, created, err = svc.Upsert(context.Background(), storage.ScheduleRecord{
		Token:         "FOO",
		ScheduledTime: now.Add(3 * time.Hour),
		Name:          "Foo Token",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "Foo Token", store.records[id].Name)
}

func TestCleanupOld(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	store := newFakeScheduleStore()
	svc := newTestScheduleService(store, nil, now)

	_, _, err := store.UpsertSchedule(context.Background(), storage.ScheduleRecord{
		Token:         "OLD",
		ScheduledTime: now.AddDate(0, 0, -30),
		Status:        StatusEnded,
	})
	require.NoError(t, err)
	_, _, err = store.UpsertSchedule(context.Background(), storage.ScheduleRecord{
		Token:         "RECENT",
		ScheduledTime: now.AddDate(0, 0, -2),
		Status:        StatusEnded,
	})
	require.NoError(t, err)

	removed, err := svc.CleanupOld(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.Len(t, store.records, 1)
}
