// Package events publishes account and task lifecycle notifications to the
// configured message broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tasktracker/apiserver/internal/mq"
)

// Type names what happened.
type Type string

const (
	AccountRegistered Type = "account.registered"
	AccountCreated    Type = "account.created"
	AccountUpdated    Type = "account.updated"
	AccountDeleted    Type = "account.deleted"

	TaskCreated       Type = "task.created"
	TaskUpdated       Type = "task.updated"
	TaskStatusChanged Type = "task.status_changed"
	TaskDeleted       Type = "task.deleted"

	AttachmentAdded   Type = "attachment.added"
	AttachmentRemoved Type = "attachment.removed"
)

const (
	attrType        = "event_type"
	contentTypeJSON = "application/json"
)

// Event is the JSON payload published for every committed mutation.
type Event struct {
	Type         Type      `json:"type"`
	AccountID    int       `json:"account_id"`
	TaskID       int       `json:"task_id,omitempty"`
	AttachmentID int       `json:"attachment_id,omitempty"`
	Status       string    `json:"status,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Publisher sends events to a single channel. A nil *Publisher discards
// everything, which is how messaging is disabled.
type Publisher struct {
	queue   *mq.MQ
	channel string
	logger  *log.Logger
	now     func() time.Time
}

// NewPublisher returns a publisher for channel. It returns nil when queue
// is nil.
func NewPublisher(queue *mq.MQ, channel string, logger *log.Logger) *Publisher {
	if queue == nil {
		return nil
	}
	return &Publisher{
		queue:   queue,
		channel: channel,
		logger:  logger,
		now:     time.Now,
	}
}

// Publish sends evt after the mutation it describes has been committed.
// Failures are logged and never reach the caller: the write already
// succeeded and is not rolled back or retried.
func (p *Publisher) Publish(ctx context.Context, evt Event) {
	if p == nil {
		return
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = p.now().UTC()
	}

	data, err := json.Marshal(evt)
	if err != nil {
		p.logger.Error("encode event", "type", evt.Type, "err", err)
		return
	}

	attrs := map[string]string{
		attrType:           string(evt.Type),
		mq.AttrContentType: contentTypeJSON,
		mq.AttrOrderingKey: "account-" + strconv.Itoa(evt.AccountID),
	}
	id, err := p.queue.Publish(ctx, p.channel, data, attrs)
	if err != nil {
		p.logger.Error("publish event", "type", evt.Type, "account_id", evt.AccountID, "task_id", evt.TaskID, "err", err)
		return
	}
	p.logger.Debug("published event", "type", evt.Type, "message_id", id)
}

// Decode parses a message produced by Publish.
func Decode(msg mq.Message) (Event, error) {
	var evt Event
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		return Event{}, fmt.Errorf("decode event %s: %w", msg.ID, err)
	}
	if evt.Type == "" {
		if t := msg.Attributes[attrType]; t != "" {
			evt.Type = Type(t)
		}
	}
	return evt, nil
}

// Tail subscribes to channel and calls fn for every decoded event until ctx
// is cancelled. Undecodable messages are acknowledged and skipped.
func Tail(ctx context.Context, queue *mq.MQ, channel string, logger *log.Logger, fn func(Event)) error {
	return queue.Subscribe(ctx, channel, func(ctx context.Context, msg mq.Message) error {
		evt, err := Decode(msg)
		if err != nil {
			logger.Warn("skipping message", "id", msg.ID, "err", err)
			return nil
		}
		fn(evt)
		return nil
	})
}
