package notify

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"waterwatch/internal/alerts/application"
	alerts "waterwatch/internal/alerts/domain"
)

// Clock provides time for cooldown bookkeeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Notifier renders alert events and pushes them to a delivery channel.
// A per-user cooldown suppresses repeated "created" notifications; status
// transitions always go out.
type Notifier struct {
	channel  Channel
	template *Template
	logger   *log.Logger
	clock    Clock
	cooldown time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// Option configures the notifier.
type Option func(*Notifier)

// WithCooldown sets the per-user suppression window for created events.
func WithCooldown(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.cooldown = d
		}
	}
}

// WithClock overrides the clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithTemplate overrides the rendering template.
func WithTemplate(tpl *Template) Option {
	return func(n *Notifier) {
		if tpl != nil {
			n.template = tpl
		}
	}
}

// NewNotifier constructs a notifier over a channel.
func NewNotifier(channel Channel, logger *log.Logger, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("alert notifier: nil channel")
	}
	if logger == nil {
		return nil, errors.New("alert notifier: nil logger")
	}
	tpl, err := NewTemplate("")
	if err != nil {
		return nil, err
	}
	notifier := &Notifier{
		channel:  channel,
		template: tpl,
		logger:   logger,
		clock:    systemClock{},
		lastSent: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(notifier)
	}
	return notifier, nil
}

// Notify implements application.AlertNotifier. Delivery failures are
// logged, never propagated to the caller.
func (n *Notifier) Notify(ctx context.Context, event application.AlertEvent) {
	if n == nil {
		return
	}
	if event.Type == "created" && n.suppressed(event.Alert.UserID) {
		return
	}
	content, err := n.template.Render(templateData(event))
	if err != nil {
		n.logger.Printf("alert notification render failed: %v", err)
		return
	}
	if err := n.channel.Send(ctx, content); err != nil {
		n.logger.Printf("alert notification send failed: %v", err)
		return
	}
	if event.Type == "created" {
		n.markSent(event.Alert.UserID)
	}
}

func (n *Notifier) suppressed(userID string) bool {
	if n.cooldown <= 0 {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	last, ok := n.lastSent[userID]
	if !ok {
		return false
	}
	return n.clock.Now().Sub(last) < n.cooldown
}

func (n *Notifier) markSent(userID string) {
	if n.cooldown <= 0 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lastSent[userID] = n.clock.Now()
}

func templateData(event application.AlertEvent) TemplateData {
	return TemplateData{
		UserID:     event.Alert.UserID,
		Type:       event.Alert.Type,
		Severity:   event.Alert.Severity,
		Message:    event.Alert.Message,
		RaisedAt:   event.Alert.CreatedAt.UTC().Format(time.RFC3339),
		Status:     event.Alert.Status,
		Suggestion: suggestionFor(event.Alert),
		Event:      event.Type,
		EventLabel: eventLabel(event.Type),
	}
}

func eventLabel(eventType string) string {
	switch eventType {
	case "created":
		return "Raised"
	case alerts.StatusRead:
		return "Acknowledged"
	case alerts.StatusResolved:
		return "Resolved"
	default:
		if eventType == "" {
			return "Updated"
		}
		return strings.ToUpper(eventType[:1]) + eventType[1:]
	}
}

func suggestionFor(alert alerts.Alert) string {
	switch alert.Type {
	case alerts.TypeLeakage:
		return "Inspect fixtures and the main valve for a possible leak."
	case alerts.TypeHighUsage:
		return "Review recent consumption; usage is well above baseline."
	default:
		return "Review the alert details in the dashboard."
	}
}
