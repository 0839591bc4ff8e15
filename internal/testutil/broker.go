package testutil

import (
	"context"
	"strconv"
	"sync"

	"github.com/tasktracker/apiserver/internal/mq"
)

// MemoryBroker is an in-memory mq.Backend. Published messages are recorded
// and delivered synchronously to active subscribers of the channel.
type MemoryBroker struct {
	mu          sync.Mutex
	published   map[string][]mq.Message
	subscribers map[string][]mq.Handler
	seq         int
	closed      bool

	// FailPublish, when set, is returned by Publish.
	FailPublish error
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		published:   make(map[string][]mq.Message),
		subscribers: make(map[string][]mq.Handler),
	}
}

func (b *MemoryBroker) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	b.mu.Lock()
	if b.FailPublish != nil {
		b.mu.Unlock()
		return "", b.FailPublish
	}
	b.seq++
	msg := mq.Message{ID: strconv.Itoa(b.seq), Data: data, Attributes: attrs}
	b.published[channel] = append(b.published[channel], msg)
	handlers := append([]mq.Handler(nil), b.subscribers[channel]...)
	b.mu.Unlock()

	for _, handler := range handlers {
		_ = handler(ctx, msg)
	}
	return msg.ID, nil
}

// Subscribe registers handler and blocks until ctx is done.
func (b *MemoryBroker) Subscribe(ctx context.Context, channel string, handler mq.Handler) error {
	b.mu.Lock()
	b.subscribers[channel] = append(b.subscribers[channel], handler)
	b.mu.Unlock()

	<-ctx.Done()
	return ctx.Err()
}

// Subscribers returns how many handlers are registered on channel.
func (b *MemoryBroker) Subscribers(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[channel])
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Published returns the messages sent to channel so far.
func (b *MemoryBroker) Published(channel string) []mq.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]mq.Message(nil), b.published[channel]...)
}
