package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/disgoorg/karma-runner/internal/domain/orders"
	"github.com/disgoorg/karma-runner/internal/domain/timers"
)

var errStale = errors.New("stale timer")

// arm starts the claim countdown of a freshly placed order: a tick every
// interval, one reminder halfway through and an absolute expiry deadline.
func (l *Lifecycle) arm(o orders.Order) {
	key := entityKey(o.ID)
	tick := l.cfg.TickInterval
	window := l.cfg.ClaimWindow

	l.scheduleTick(o.ID)
	if half := window / 2; half >= 1 {
		l.scheduler.Schedule(key, time.Duration(half)*tick, timers.Reminder, func(ctx context.Context) {
			l.onReminder(o.ID)
		})
	}
	l.scheduler.Schedule(key, time.Duration(window)*tick, timers.Expire, func(ctx context.Context) {
		l.onExpire(ctx, o.ID)
	})
}

func (l *Lifecycle) scheduleTick(id string) {
	l.scheduler.Schedule(entityKey(id), l.cfg.TickInterval, timers.Tick, func(ctx context.Context) {
		l.onTick(ctx, id)
	})
}

// onTick counts the order down by one minute. The next tick is scheduled
// inside the order's critical section, so a transition committing afterwards
// always cancels it.
func (l *Lifecycle) onTick(ctx context.Context, id string) {
	expire := false
	o, err := l.store.Update(id, func(o *orders.Order) (bool, error) {
		if o.Status != orders.StatusPending {
			return false, errStale
		}
		if o.RemainingMinutes > 1 {
			o.RemainingMinutes--
			l.scheduleTick(id)
			return false, nil
		}
		expire = true
		return false, nil
	})
	if err != nil {
		l.recorder.TimerFired(timers.Tick, true)
		return
	}
	l.recorder.TimerFired(timers.Tick, false)

	if expire {
		if _, err := l.Expire(ctx, id); err != nil && !IsRejection(err) {
			slog.Error("Failed to expire order",
				slog.String("type", "error"),
				slog.String("order_id", id),
				slog.Any("error", err))
		}
		return
	}
	l.render(o, EventTick)
}

func (l *Lifecycle) onReminder(id string) {
	o, err := l.store.Get(id)
	if err != nil || o.Status != orders.StatusPending {
		l.recorder.TimerFired(timers.Reminder, true)
		return
	}
	l.recorder.TimerFired(timers.Reminder, false)
	l.render(o, EventReminder)

	slog.Debug("Order reminder sent",
		slog.String("type", "order"),
		slog.String("order_id", id),
		slog.Int("remaining_minutes", o.RemainingMinutes))
}

func (l *Lifecycle) onExpire(ctx context.Context, id string) {
	_, err := l.Expire(ctx, id)
	switch {
	case err == nil:
		l.recorder.TimerFired(timers.Expire, false)
	case IsRejection(err):
		l.recorder.TimerFired(timers.Expire, true)
	default:
		slog.Error("Failed to expire order",
			slog.String("type", "error"),
			slog.String("order_id", id),
			slog.Any("error", err))
	}
}
