// Package eventbus publishes job lifecycle events to NATS so other
// services (a dashboard, an analytics consumer) can observe pipeline
// progress without polling the Ingress API, the same fire-and-forget
// event shape the teacher's chat/stream event bus used.
package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/trackforge/engine/internal/config"
)

// JobEvent is published on every status transition a Job makes.
type JobEvent struct {
	Type      string    `json:"type"`
	JobID     uuid.UUID `json:"job_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher wraps a NATS connection scoped to one dispatch subject. A nil
// *Publisher is valid and every method on it is a no-op, so callers can
// wire it unconditionally and let Connect's Enabled check decide whether
// anything actually happens (spec.md §9: NATS is optional).
type Publisher struct {
	nc      *nats.Conn
	subject string
	logger  *zap.Logger
}

// Connect dials NATS if cfg.Enabled, returning (nil, nil) otherwise so the
// orchestrator can treat "no publisher" and "NATS disabled" identically.
func Connect(cfg config.NATSConfig, logger *zap.Logger) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Timeout(cfg.ConnectTimeout),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return &Publisher{nc: nc, subject: cfg.DispatchSubject, logger: logger}, nil
}

// Conn exposes the underlying connection so the orchestrator can also use
// it as an optional dispatch transport (spec.md §11); nil if disabled.
func (p *Publisher) Conn() *nats.Conn {
	if p == nil {
		return nil
	}
	return p.nc
}

func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	p.nc.Close()
}

// PublishJobEvent emits a JobEvent for the given transition; failures are
// logged, never returned, since the orchestrator's own state transition has
// already committed by the time this is called.
func (p *Publisher) PublishJobEvent(eventType string, jobID uuid.UUID, status string) {
	if p == nil || p.nc == nil {
		return
	}
	data, err := json.Marshal(JobEvent{Type: eventType, JobID: jobID, Status: status, Timestamp: time.Now()})
	if err != nil {
		p.logger.Warn("marshaling job event", zap.Error(err))
		return
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		p.logger.Warn("publishing job event", zap.String("subject", p.subject), zap.Error(err))
	}
}
