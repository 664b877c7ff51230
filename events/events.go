/*
events.go - Entry events emitted after a ledger write commits

PURPOSE:
  Downstream consumers (bookkeeping exports, dashboards) learn about balance
  changes from an event stream instead of polling the entry log.

DELIVERY:
  At most once. The engine publishes after the transaction commits and only
  logs a failed publish; the entry log stays the source of truth and can be
  replayed to rebuild any consumer.

SEE ALSO:
  - kafka.go: Kafka-backed Publisher
  - ledger/engine.go: the only producer
*/
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/warp/channel-ledger/logger"
)

const TypeEntryApplied = "entry.applied"

type Event struct {
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// EntryApplied is the payload of TypeEntryApplied. Money is decimal text.
type EntryApplied struct {
	EntryID         string `json:"entry_id"`
	ChannelID       string `json:"channel_id"`
	OwnerID         string `json:"owner_id"`
	Sequence        int64  `json:"sequence"`
	Type            string `json:"type"`
	Amount          string `json:"amount"`
	PreviousBalance string `json:"previous_balance"`
	NewBalance      string `json:"new_balance"`
	ReferenceType   string `json:"reference_type"`
	ReferenceID     string `json:"reference_id,omitempty"`
	CreatedBy       string `json:"created_by,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// LogPublisher writes events to the structured log. Used when no broker is configured.
type LogPublisher struct {
	Logger *logger.Logger
}

func (p LogPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt.Payload)
	if err != nil {
		return err
	}
	ctx = p.Logger.WithFields(ctx, map[string]any{
		"event_type": evt.Type,
		"event_key":  evt.Key,
		"payload":    json.RawMessage(body),
	})
	p.Logger.Debug(ctx, "events.published")
	return nil
}
