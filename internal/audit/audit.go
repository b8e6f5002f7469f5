// Package audit records security and data events through the work queue.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"attendtrack/internal/queue"
)

// MessageType tags audit messages on the queue.
const MessageType = "audit"

// Kind names what happened.
type Kind string

const (
	Registered        Kind = "student.registered"
	PasswordLogin     Kind = "login.password"
	BiometricLogin    Kind = "login.biometric"
	LoginFailed       Kind = "login.failed"
	Logout            Kind = "logout"
	CredentialAdded   Kind = "credential.added"
	CredentialRemoved Kind = "credential.removed"
	AttendanceMarked  Kind = "attendance.marked"
	AttendanceDeleted Kind = "attendance.deleted"
	AdminLogin        Kind = "admin.login"
	AdminDeleted      Kind = "admin.attendance_deleted"
)

// Event is one audit entry.
type Event struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	StudentID int64     `json:"student_id,omitempty"`
	Actor     string    `json:"actor"`
	Detail    string    `json:"detail,omitempty"`
	IP        string    `json:"ip,omitempty"`
	At        time.Time `json:"at"`
}

// Store persists audit events.
type Store interface {
	Insert(ctx context.Context, e Event) error
	List(ctx context.Context, limit int) ([]Event, error)
}

// Publisher puts events on the queue.
type Publisher struct {
	q       queue.Queue
	log     *slog.Logger
	timeout time.Duration
}

// NewPublisher creates a publisher.
func NewPublisher(q queue.Queue, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{q: q, log: log, timeout: time.Second}
}

// Record enqueues e. Failures are logged and never surface to the caller.
func (p *Publisher) Record(ctx context.Context, e Event) {
	if p == nil || p.q == nil {
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	body, err := json.Marshal(e)
	if err != nil {
		p.log.Error("audit encode failed", "kind", e.Kind, "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	if err := p.q.Publish(ctx, queue.Message{Type: MessageType, Body: body}); err != nil {
		p.log.Warn("audit publish failed", "kind", e.Kind, "err", err)
	}
}

// Consumer drains audit messages into a store.
type Consumer struct {
	q     queue.Queue
	store Store
	log   *slog.Logger
}

// NewConsumer creates a consumer.
func NewConsumer(q queue.Queue, store Store, log *slog.Logger) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{q: q, store: store, log: log}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	for msg := range msgs {
		if err := c.Handle(ctx, msg); err != nil {
			c.log.Error("audit message failed", "type", msg.Type, "err", err)
		}
	}
	return ctx.Err()
}

// Handle persists a single message. Messages of other types are skipped.
func (c *Consumer) Handle(ctx context.Context, msg queue.Message) error {
	if msg.Type != MessageType {
		c.log.Warn("unknown message type", "type", msg.Type)
		return nil
	}
	var e Event
	if err := json.Unmarshal(msg.Body, &e); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	if err := c.store.Insert(ctx, e); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}
