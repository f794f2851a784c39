package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"alphawatch/internal/notify"
)

// SimulateAlert 构造一条合成提醒并走真实的告警通道,用于验证配置。
func (a *App) SimulateAlert(ctx context.Context, token string, points int, value decimal.Decimal) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	alert := notify.Alert{
		Kind:           notify.KindReminder,
		Token:          token,
		Name:           token + " (simulated)",
		ScheduledAt:    time.Now().UTC().Add(a.Config.Sync.ReminderWindow),
		Points:         points,
		EstimatedValue: value,
		Status:         "TODAY",
		Channels:       a.Config.Alerting.Channels,
		AdditionalMsg:  "This is a simulated reminder.",
	}

	return notifier.Notify(ctx, alert)
}
