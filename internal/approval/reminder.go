package approval

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// ReminderScheduler schedules the single deferred nudge for a request. The
// callback must re-read live request state at fire time; scheduling does not
// capture any of it.
type ReminderScheduler interface {
	ScheduleReminder(ctx context.Context, handle string, at time.Time) error
}

// TimerScheduler fires reminders from in-process timers. It is the fallback
// when no database is configured for the durable job queue; reminders are
// lost on restart.
type TimerScheduler struct {
	fire func(ctx context.Context, handle string) error
}

// NewTimerScheduler creates a scheduler that invokes fire when a reminder
// comes due.
func NewTimerScheduler(fire func(ctx context.Context, handle string) error) *TimerScheduler {
	return &TimerScheduler{fire: fire}
}

// ScheduleReminder arms a one-shot timer for the handle.
func (t *TimerScheduler) ScheduleReminder(_ context.Context, handle string, at time.Time) error {
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}

	time.AfterFunc(delay, func() {
		if err := t.fire(context.Background(), handle); err != nil {
			log.Error().Err(err).Str("handle", handle).Msg("reminder failed")
		}
	})
	return nil
}
