package services

import (
	"context"
	"time"

	"github.com/localnerve/librarydb/internal/events"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// day is the UTC calendar day of t
func day(t time.Time) datatypes.Date {
	y, m, d := t.UTC().Date()
	return datatypes.Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

func addDays(d datatypes.Date, n int) datatypes.Date {
	return datatypes.Date(time.Time(d).AddDate(0, 0, n))
}

// dayBefore reports whether calendar day a is earlier than calendar day b.
// Each value is read in its own location, since drivers return dates at midnight in varying zones.
func dayBefore(a, b datatypes.Date) bool {
	ay, am, ad := time.Time(a).Date()
	by, bm, bd := time.Time(b).Date()
	if ay != by {
		return ay < by
	}
	if am != bm {
		return am < bm
	}
	return ad < bd
}

// publish sends an event after commit; failures are logged only
func publish(ctx context.Context, p events.Publisher, log *zap.Logger, eventType string, payload map[string]interface{}) {
	if err := p.Publish(ctx, eventType, payload); err != nil {
		log.Warn("Failed to publish event", zap.String("event_type", eventType), zap.Error(err))
	}
}
