package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"freightbid/internal/domain"
	"freightbid/internal/ports"
)

const schemaVersion = "1.0"

type Envelope struct {
	EventID        string    `json:"event_id"`
	EventType      string    `json:"event_type"`
	SchemaVersion  string    `json:"schema_version"`
	IdempotencyKey string    `json:"idempotency_key"`
	Timestamp      time.Time `json:"timestamp"`
	Source         string    `json:"source"`
	Data           any       `json:"data"`
}

// Publisher posts events to per-type webhook URLs. Delivery is best-effort:
// failures are logged and never returned, so callers can treat Publish as fire
// and forget.
type Publisher struct {
	source     string
	httpClient *http.Client
	endpoints  map[string]string
	log        *slog.Logger
	now        func() time.Time
}

func NewPublisher(source string, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{
		source:     source,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		endpoints:  make(map[string]string),
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RegisterEndpoint routes eventType to url. An empty url is ignored.
func (p *Publisher) RegisterEndpoint(eventType, url string) {
	if url == "" {
		return
	}
	p.endpoints[eventType] = url
}

func (p *Publisher) Publish(ctx context.Context, eventType string, data any) error {
	env := Envelope{
		EventID:        "evt_" + uuid.NewString(),
		EventType:      eventType,
		SchemaVersion:  schemaVersion,
		IdempotencyKey: idempotencyKey(eventType, data),
		Timestamp:      p.now(),
		Source:         p.source,
		Data:           data,
	}
	p.log.InfoContext(ctx, "event published",
		slog.String("event_id", env.EventID),
		slog.String("event_type", env.EventType),
	)
	url, ok := p.endpoints[eventType]
	if !ok {
		return nil
	}
	p.send(ctx, url, env)
	return nil
}

// Deliver sends a closed bid's summary as a bid.report event.
func (p *Publisher) Deliver(ctx context.Context, summary domain.Summary) error {
	return p.Publish(ctx, ports.EventBidReport, summary)
}

func (p *Publisher) send(ctx context.Context, url string, env Envelope) {
	body, err := json.Marshal(env)
	if err != nil {
		p.log.WarnContext(ctx, "webhook encode failed", slog.String("event_type", env.EventType), slog.String("error", err.Error()))
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		p.log.WarnContext(ctx, "webhook request failed", slog.String("url", url), slog.String("error", err.Error()))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-ID", env.EventID)
	req.Header.Set("X-Event-Type", env.EventType)
	req.Header.Set("Idempotency-Key", env.IdempotencyKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.log.WarnContext(ctx, "webhook failed",
			slog.String("url", url),
			slog.String("event_type", env.EventType),
			slog.String("error", err.Error()),
		)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		p.log.WarnContext(ctx, "webhook error",
			slog.String("url", url),
			slog.String("event_type", env.EventType),
			slog.Int("status", resp.StatusCode),
		)
	}
}

// idempotencyKey is stable per event type and bid so receivers can drop repeats.
func idempotencyKey(eventType string, data any) string {
	switch d := data.(type) {
	case domain.Summary:
		return fmt.Sprintf("%s_%s", eventType, d.BidID)
	case interface{ Key() string }:
		return fmt.Sprintf("%s_%s", eventType, d.Key())
	}
	return fmt.Sprintf("%s_%s", eventType, uuid.NewString())
}
