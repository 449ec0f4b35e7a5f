package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/metrics"
)

const publishTimeout = 2 * time.Second

type Action string

const (
	ActionRegister       Action = "register"
	ActionLogin          Action = "login"
	ActionLogout         Action = "logout"
	ActionSessionRestore Action = "session_restored"
	ActionSessionExpired Action = "session_expired"
	ActionOrderSubmitted Action = "order_submitted"
)

// Event is one entry of the audit trail. Tokens and passwords never go here.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	Outcome   string    `json:"outcome"`
	OrderID   string    `json:"order_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Publisher writes audit events synchronously and on a best-effort basis:
// failures are logged and counted, never returned.
type Publisher struct {
	producer Producer
	topic    string
	logger   *zap.Logger
	timeNow  func() time.Time
}

func NewPublisher(producer Producer, topic string, logger *zap.Logger) *Publisher {
	return &Publisher{
		producer: producer,
		topic:    topic,
		logger:   logger.With(zap.String("component", "audit"), zap.String("topic", topic)),
		timeNow:  time.Now,
	}
}

func (p *Publisher) Publish(ctx context.Context, event Event) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.timeNow().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		metrics.AuditEventsTotal.WithLabelValues("failed").Inc()
		p.logger.Error("failed to encode audit event", zap.String("action", string(event.Action)), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := p.producer.SendMessage(ctx, p.topic, []byte(event.ID.String()), payload); err != nil {
		metrics.AuditEventsTotal.WithLabelValues("failed").Inc()
		p.logger.Warn("failed to publish audit event", zap.String("action", string(event.Action)), zap.Error(err))
		return
	}
	metrics.AuditEventsTotal.WithLabelValues("sent").Inc()
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}
