// Package events defines the domain events emitted after loan state commits.
// Publishing is best effort: callers log failures and never roll back.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types.
const (
	LoanDisbursed        = "loan.disbursed"
	LoanEMIPaid          = "loan.emi_paid"
	LoanClosed           = "loan.closed"
	LoanDefaulted        = "loan.defaulted"
	SchedulerRunComplete = "scheduler.run_completed"
)

// Event is the envelope written to the bus.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	// Key partitions the stream; loan events use the loan id.
	Key  string `json:"key"`
	Data any    `json:"data"`
}

// New stamps an envelope.
func New(typ, key string, data any, at time.Time) Event {
	return Event{ID: uuid.New(), Type: typ, OccurredAt: at.UTC(), Key: key, Data: data}
}

// LoanPayload describes a loan at the moment of the event.
type LoanPayload struct {
	LoanID      uuid.UUID       `json:"loan_id"`
	AccountID   uuid.UUID       `json:"account_id"`
	Lender      string          `json:"lender"`
	Amount      decimal.Decimal `json:"amount"`
	Installment int             `json:"installment,omitempty"`
	Total       int             `json:"total_installments"`
	Status      string          `json:"status"`
	NextDueDate *time.Time      `json:"next_due_date,omitempty"`
	Source      string          `json:"source,omitempty"`
}

// RunPayload summarises one scheduler run.
type RunPayload struct {
	AsOf      time.Time     `json:"as_of"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration_ns"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Noop discards events.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

// Log writes events to a logger at debug level; used when no broker is configured.
type Log struct{ Logger *slog.Logger }

func (l Log) Publish(_ context.Context, e Event) error {
	lg := l.Logger
	if lg == nil {
		lg = slog.Default()
	}
	lg.Debug("event", "type", e.Type, "key", e.Key, "event_id", e.ID)
	return nil
}
