package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/DarsanV/HackaThrone-team91/internal/domain"
)

const (
	defaultChannelBuffer = 1000
	channelRequestTTL    = 30 * time.Second
)

var (
	errBusClosed    = errors.New("bus is closed")
	errTopicMissing = errors.New("topic is required")
)

// ChannelBus delivers events in process for the single-node profile.
// Each subscription owns a buffered channel drained by one goroutine.
type ChannelBus struct {
	buffer  int
	dropped atomic.Int64
	running sync.WaitGroup

	mu            sync.RWMutex
	closed        bool
	subscriptions map[string][]*channelSubscription
}

type channelSubscription struct {
	id      string
	bus     *ChannelBus
	topic   string
	handler domain.MessageHandler
	inbox   chan *domain.Message
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewChannelBus creates a bus whose subscribers buffer up to bufferSize
// messages each.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = defaultChannelBuffer
	}
	return &ChannelBus{
		buffer:        bufferSize,
		subscriptions: make(map[string][]*channelSubscription),
	}
}

func newMessage(topic string, payload []byte, metadata map[string]string) *domain.Message {
	if metadata == nil {
		metadata = make(map[string]string)
	}
	return &domain.Message{
		ID:        uuid.NewString(),
		Topic:     topic,
		Payload:   payload,
		Metadata:  metadata,
		Timestamp: time.Now().UnixNano(),
	}
}

// deliver hands msg to every subscriber without blocking. Callers hold
// at least the read lock.
func (b *ChannelBus) deliver(msg *domain.Message) {
	for _, sub := range b.subscriptions[msg.Topic] {
		select {
		case sub.inbox <- msg:
		default:
			b.dropped.Add(1)
			slog.Warn("subscriber buffer full, dropping message",
				"topic", msg.Topic,
				"subscription", sub.id,
			)
		}
	}
}

// Publish fans payload out to the subscribers of topic. A subscriber
// whose buffer is full misses the message.
func (b *ChannelBus) Publish(_ context.Context, topic string, payload []byte) error {
	if topic == "" {
		return errTopicMissing
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return errBusClosed
	}
	b.deliver(newMessage(topic, payload, nil))
	return nil
}

// Subscribe runs handler for each message on topic until the
// subscription, ctx or the bus ends.
func (b *ChannelBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if topic == "" {
		return nil, errTopicMissing
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errBusClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &channelSubscription{
		id:      uuid.NewString(),
		bus:     b,
		topic:   topic,
		handler: handler,
		inbox:   make(chan *domain.Message, b.buffer),
		ctx:     subCtx,
		cancel:  cancel,
	}
	b.subscriptions[topic] = append(b.subscriptions[topic], sub)

	b.running.Add(1)
	go sub.run()
	return sub, nil
}

func (s *channelSubscription) run() {
	defer s.bus.running.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.inbox:
			if err := s.handler(s.ctx, msg); err != nil {
				slog.Error("handler error", "topic", msg.Topic, "message_id", msg.ID, "error", err)
			}
		}
	}
}

// Request publishes payload with a one-shot reply topic in the
// "reply_to" metadata and waits for the first answer sent with Reply.
func (b *ChannelBus) Request(ctx context.Context, topic string, payload []byte) ([]byte, error) {
	replyTopic := topic + ".reply." + uuid.NewString()
	answer := make(chan []byte, 1)

	sub, err := b.Subscribe(ctx, replyTopic, func(_ context.Context, msg *domain.Message) error {
		select {
		case answer <- msg.Payload:
		default:
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, errBusClosed
	}
	b.deliver(newMessage(topic, payload, map[string]string{"reply_to": replyTopic}))
	b.mu.RUnlock()

	timer := time.NewTimer(channelRequestTTL)
	defer timer.Stop()
	select {
	case reply := <-answer:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("request %s timed out", topic)
	}
}

func (b *ChannelBus) Ping(context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return errBusClosed
	}
	return nil
}

// Dropped counts messages lost to full subscriber buffers.
func (b *ChannelBus) Dropped() int64 {
	return b.dropped.Load()
}

// Close cancels every subscription and waits for running handlers.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, subs := range b.subscriptions {
		for _, sub := range subs {
			sub.cancel()
		}
	}
	clear(b.subscriptions)
	b.mu.Unlock()

	b.running.Wait()
	return nil
}

func (s *channelSubscription) Unsubscribe() error {
	b := s.bus
	b.mu.Lock()
	subs := b.subscriptions[s.topic]
	for i, other := range subs {
		if other == s {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(b.subscriptions, s.topic)
	} else {
		b.subscriptions[s.topic] = subs
	}
	b.mu.Unlock()

	s.cancel()
	return nil
}

func (s *channelSubscription) Topic() string {
	return s.topic
}

// Reply answers a message received through Request.
func Reply(ctx context.Context, b domain.EventBus, req *domain.Message, payload []byte) error {
	to := req.Metadata["reply_to"]
	if to == "" {
		return fmt.Errorf("message %s has no reply_to", req.ID)
	}
	return b.Publish(ctx, to, payload)
}
