package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"kasbuku/internal/core"
)

const (
	EventTransactionPosted   = "transaction.posted"
	EventTransactionReversed = "transaction.reversed"
	EventBatchCompleted      = "automation.batch_completed"
)

// TransactionMessage is the wire form of a transaction lifecycle event.
type TransactionMessage struct {
	Event           string      `json:"event"`
	TransactionID   uuid.UUID   `json:"transaction_id"`
	Seq             int64       `json:"seq"`
	Date            string      `json:"date"`
	Description     string      `json:"description"`
	Category        string      `json:"category,omitempty"`
	Amount          core.Amount `json:"amount"`
	DebitAccountID  uuid.UUID   `json:"debit_account_id"`
	CreditAccountID uuid.UUID   `json:"credit_account_id"`
	EmittedAt       time.Time   `json:"emitted_at"`
}

func NewTransactionMessage(event string, t core.Transaction) TransactionMessage {
	return TransactionMessage{
		Event:           event,
		TransactionID:   t.ID,
		Seq:             t.Seq,
		Date:            core.DayKey(t.Date),
		Description:     t.Description,
		Category:        t.Category,
		Amount:          t.Amount,
		DebitAccountID:  t.DebitAccountID,
		CreditAccountID: t.CreditAccountID,
		EmittedAt:       time.Now().UTC(),
	}
}

func (m TransactionMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// BatchMessage is the wire form of an automation batch tally.
type BatchMessage struct {
	Event     string    `json:"event"`
	Kind      string    `json:"kind"`
	Month     string    `json:"month"`
	Posted    int       `json:"posted"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	EmittedAt time.Time `json:"emitted_at"`
}

func NewBatchMessage(kind, month string, posted, skipped, failed int) BatchMessage {
	return BatchMessage{
		Event:     EventBatchCompleted,
		Kind:      kind,
		Month:     month,
		Posted:    posted,
		Skipped:   skipped,
		Failed:    failed,
		EmittedAt: time.Now().UTC(),
	}
}

func (m BatchMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
