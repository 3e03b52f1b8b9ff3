package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/DarsanV/HackaThrone-team91/internal/domain"
)

const (
	natsDrainTimeout   = 10 * time.Second
	natsRequestTimeout = 30 * time.Second
)

// NATSBus implements EventBus on NATS for the cluster profile. With a
// queue group set, each lifecycle event reaches one worker node only.
type NATSBus struct {
	conn       *nats.Conn
	queueGroup string
	closed     chan struct{}

	mu   sync.Mutex
	subs map[string]*natsSubscription
}

type natsSubscription struct {
	id    string
	bus   *NATSBus
	topic string
	sub   *nats.Subscription
}

func natsOptions(cfg domain.EventBusConfig, closed chan struct{}) []nats.Option {
	opts := []nats.Option{
		nats.Name("snapnearn"),
		nats.MaxReconnects(cfg.NATSMaxReconnects),
		nats.ReconnectWait(time.Duration(cfg.NATSReconnectWait) * time.Second),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DrainTimeout(natsDrainTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("nats disconnected", "error", err, "will_reconnect", !nc.IsClosed())
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			close(closed)
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			slog.Error("nats async error", "error", err, "subject", subject,
				"slow_consumer", errors.Is(err, nats.ErrSlowConsumer))
		}),
	}
	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}
	return opts
}

// NewNATSBus connects to cfg.NATSUrl, retrying the initial connection
// NATSMaxReconnects times.
func NewNATSBus(cfg domain.EventBusConfig) (*NATSBus, error) {
	if cfg.NATSUrl == "" {
		cfg.NATSUrl = nats.DefaultURL
	}
	if cfg.NATSMaxReconnects == 0 {
		cfg.NATSMaxReconnects = 10
	}
	if cfg.NATSReconnectWait == 0 {
		cfg.NATSReconnectWait = 5
	}

	var (
		conn   *nats.Conn
		closed chan struct{}
		err    error
	)
	for attempt := 1; attempt <= cfg.NATSMaxReconnects; attempt++ {
		closed = make(chan struct{})
		if conn, err = nats.Connect(cfg.NATSUrl, natsOptions(cfg, closed)...); err == nil {
			break
		}
		slog.Warn("nats connection attempt failed",
			"attempt", attempt,
			"max_attempts", cfg.NATSMaxReconnects,
			"error", err,
		)
		if attempt < cfg.NATSMaxReconnects {
			time.Sleep(time.Duration(cfg.NATSReconnectWait) * time.Second)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to nats after %d attempts: %w", cfg.NATSMaxReconnects, err)
	}

	slog.Info("nats connected",
		"url", conn.ConnectedUrl(),
		"server_id", conn.ConnectedServerId(),
		"queue_group", cfg.NATSQueueGroup,
	)
	return &NATSBus{
		conn:       conn,
		queueGroup: cfg.NATSQueueGroup,
		closed:     closed,
		subs:       make(map[string]*natsSubscription),
	}, nil
}

// Publish sends an enveloped message on the subject named by topic.
func (b *NATSBus) Publish(ctx context.Context, topic string, payload []byte) error {
	data, err := envelope(topic, payload)
	if err != nil {
		return err
	}
	return b.conn.Publish(topic, data)
}

// Subscribe registers handler on topic. Reply subjects stay plain
// subscriptions so every requester sees its own answer.
func (b *NATSBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	deliver := func(m *nats.Msg) {
		msg, err := openEnvelope(m.Data)
		if err != nil {
			slog.Error("failed to unmarshal nats message", "subject", m.Subject, "error", err)
			return
		}
		if m.Reply != "" {
			msg.Metadata["reply_to"] = m.Reply
		}
		if err := handler(ctx, msg); err != nil {
			slog.Error("handler error", "subject", m.Subject, "message_id", msg.ID, "error", err)
		}
	}

	var natsSub *nats.Subscription
	var err error
	if b.queueGroup != "" && !strings.HasPrefix(topic, nats.InboxPrefix) {
		natsSub, err = b.conn.QueueSubscribe(topic, b.queueGroup, deliver)
	} else {
		natsSub, err = b.conn.Subscribe(topic, deliver)
	}
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	sub := &natsSubscription{id: uuid.New().String(), bus: b, topic: topic, sub: natsSub}
	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()
	return sub, nil
}

// Request sends payload and waits for one reply, bounded by the context
// deadline or natsRequestTimeout.
func (b *NATSBus) Request(ctx context.Context, topic string, payload []byte) ([]byte, error) {
	data, err := envelope(topic, payload)
	if err != nil {
		return nil, err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, natsRequestTimeout)
		defer cancel()
	}

	reply, err := b.conn.RequestWithContext(ctx, topic, data)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", topic, err)
	}
	msg, err := openEnvelope(reply.Data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal reply on %s: %w", topic, err)
	}
	return msg.Payload, nil
}

// Ping flushes the connection to confirm the server is reachable.
func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("nats not connected (status %s)", b.conn.Status())
	}
	return b.conn.FlushWithContext(ctx)
}

// Close drains subscriptions so in-flight assessments finish, then waits
// for the connection to close.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	b.subs = make(map[string]*natsSubscription)
	b.mu.Unlock()

	if b.conn.IsClosed() {
		return nil
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	select {
	case <-b.closed:
		return nil
	case <-time.After(natsDrainTimeout + time.Second):
		b.conn.Close()
		return fmt.Errorf("nats drain timed out")
	}
}

// Stats returns connection statistics.
func (b *NATSBus) Stats() nats.Statistics {
	return b.conn.Stats()
}

// Unsubscribe removes the subscription.
func (s *natsSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
	return s.sub.Unsubscribe()
}

// Topic returns the subscribed topic.
func (s *natsSubscription) Topic() string {
	return s.topic
}
