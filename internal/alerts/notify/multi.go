package notify

import (
	"context"

	"waterwatch/internal/alerts/application"
)

// MultiNotifier fans one alert event out to several notifiers.
type MultiNotifier struct {
	notifiers []application.AlertNotifier
}

// NewMultiNotifier constructs a fan-out notifier, skipping nil entries.
func NewMultiNotifier(notifiers ...application.AlertNotifier) *MultiNotifier {
	kept := make([]application.AlertNotifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			kept = append(kept, n)
		}
	}
	return &MultiNotifier{notifiers: kept}
}

// Notify forwards the event to every configured notifier.
func (m *MultiNotifier) Notify(ctx context.Context, event application.AlertEvent) {
	if m == nil {
		return
	}
	for _, n := range m.notifiers {
		n.Notify(ctx, event)
	}
}
