package domain

import (
	"context"
)

// EventBus carries lifecycle events. Backends: in-process channels,
// NATS for clusters, MQTT for roadside devices.
type EventBus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Request publishes and waits for a single reply.
	Request(ctx context.Context, topic string, payload []byte) ([]byte, error)

	Ping(ctx context.Context) error
	Close() error
}

type MessageHandler func(ctx context.Context, msg *Message) error

// Message is the envelope every backend delivers. Metadata carries
// "reply_to" for request/reply.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig selects and tunes the bus backend.
type EventBusConfig struct {
	// Type is "channel", "nats" or "mqtt".
	Type              string `mapstructure:"type" json:"type"`
	ChannelBufferSize int    `mapstructure:"channel_buffer_size" json:"channelBufferSize"`

	NATSUrl           string `mapstructure:"nats_url" json:"natsUrl"`
	NATSToken         string `mapstructure:"nats_token" json:"-"`
	NATSMaxReconnects int    `mapstructure:"nats_max_reconnects" json:"natsMaxReconnects"`
	NATSReconnectWait int    `mapstructure:"nats_reconnect_wait" json:"natsReconnectWait"` // seconds
	// NATSQueueGroup delivers each event to one subscriber per group.
	NATSQueueGroup string `mapstructure:"nats_queue_group" json:"natsQueueGroup"`

	MQTTBroker   string `mapstructure:"mqtt_broker" json:"mqttBroker"`
	MQTTClientID string `mapstructure:"mqtt_client_id" json:"mqttClientId"`
	MQTTUsername string `mapstructure:"mqtt_username" json:"mqttUsername"`
	MQTTPassword string `mapstructure:"mqtt_password" json:"-"`
	MQTTQoS      byte   `mapstructure:"mqtt_qos" json:"mqttQos"`
}

// Topics published by the lifecycle and dispute workflows.
const (
	TopicReportSubmitted      = "snapnearn.report.submitted"
	TopicReportTransitioned   = "snapnearn.report.transitioned"
	TopicRewardCredit         = "snapnearn.reward.credit"
	TopicDisputeOpened        = "snapnearn.dispute.opened"
	TopicDisputeResolved      = "snapnearn.dispute.resolved"
	TopicChallanVoidRequested = "snapnearn.challan.void_requested"
)

// ReportEvent is the payload of report topics.
type ReportEvent struct {
	ReportID      string        `json:"reportId"`
	ViolationType ViolationType `json:"violationType"`
	From          ReportStatus  `json:"from,omitempty"`
	To            ReportStatus  `json:"to"`
	OfficerID     string        `json:"officerId,omitempty"`
	Timestamp     int64         `json:"timestamp"`
}

// RewardCredit is the credit instruction sent to the reward ledger.
type RewardCredit struct {
	ReportID   string `json:"reportId"`
	ReporterID string `json:"reporterId"`
	Amount     int64  `json:"amount"`
	Timestamp  int64  `json:"timestamp"`
}

// DisputeEvent is the payload of dispute topics.
type DisputeEvent struct {
	DisputeID     string        `json:"disputeId"`
	ReportID      string        `json:"reportId"`
	Status        DisputeStatus `json:"status"`
	Decision      Decision      `json:"decision,omitempty"`
	OfficerID     string        `json:"officerId,omitempty"`
	ChallanNumber string        `json:"challanNumber,omitempty"`
	Timestamp     int64         `json:"timestamp"`
}

// Notifier is the fire-and-forget hook the workflows call after a
// committed transition. Implementations must not fail the caller.
type Notifier interface {
	ReportSubmitted(ctx context.Context, r *ViolationReport)
	ReportTransitioned(ctx context.Context, r *ViolationReport, from ReportStatus, officerID string)
	RewardCredited(ctx context.Context, r *ViolationReport)
	DisputeOpened(ctx context.Context, d *Dispute)
	DisputeResolved(ctx context.Context, d *Dispute, challanNumber string)
	ChallanVoidRequested(ctx context.Context, d *Dispute, challanNumber string)
}
