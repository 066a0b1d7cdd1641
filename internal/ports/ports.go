package ports

import (
	"context"
	"time"

	"freightbid/internal/domain"
)

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ReportSink receives the summary of every bid the sweep closes.
type ReportSink interface {
	Deliver(ctx context.Context, summary domain.Summary) error
}

// EventPublisher fans lifecycle events out to whoever subscribed. The core never
// depends on a subscriber existing.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data any) error
}

const (
	EventBidOpened = "bid.opened"
	EventBidClosed = "bid.closed"
	EventBidReport = "bid.report"
)
