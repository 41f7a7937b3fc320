package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"bollette/internal/core"

	"github.com/shopspring/decimal"
)

// LedgerTransactionMessage carries a paid entry to the ledger worker.
// Amount is the decimal string so no precision is lost on the wire.
type LedgerTransactionMessage struct {
	EntryID       string            `json:"entry_id"`
	ScheduleID    string            `json:"schedule_id"`
	Amount        string            `json:"amount"`
	Category      string            `json:"category"`
	Date          time.Time         `json:"date"`
	Vendor        string            `json:"vendor,omitempty"`
	PaymentMethod string            `json:"payment_method,omitempty"`
	Description   string            `json:"description"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

// NewLedgerTransactionMessage wraps tx for publishing
func NewLedgerTransactionMessage(tx core.LedgerTransaction) *LedgerTransactionMessage {
	return &LedgerTransactionMessage{
		EntryID:       tx.EntryID,
		ScheduleID:    tx.ScheduleID,
		Amount:        tx.Amount.StringFixed(2),
		Category:      tx.Category,
		Date:          tx.Date,
		Vendor:        tx.Vendor,
		PaymentMethod: tx.PaymentMethod,
		Description:   tx.Description,
		Metadata:      tx.Metadata,
		Timestamp:     time.Now(),
	}
}

// Transaction converts the message back into a ledger transaction.
func (m *LedgerTransactionMessage) Transaction() (core.LedgerTransaction, error) {
	amount, err := decimal.NewFromString(m.Amount)
	if err != nil {
		return core.LedgerTransaction{}, fmt.Errorf("%w: %q", core.ErrInvalidAmount, m.Amount)
	}
	return core.LedgerTransaction{
		EntryID:       m.EntryID,
		ScheduleID:    m.ScheduleID,
		Amount:        amount,
		Category:      m.Category,
		Date:          m.Date,
		Vendor:        m.Vendor,
		PaymentMethod: m.PaymentMethod,
		Description:   m.Description,
		Metadata:      m.Metadata,
	}, nil
}

// ToJSON converts the message to JSON bytes
func (m *LedgerTransactionMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerTransactionMessageFromJSON creates a message from JSON bytes
func LedgerTransactionMessageFromJSON(data []byte) (*LedgerTransactionMessage, error) {
	var msg LedgerTransactionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.EntryID == "" {
		return nil, fmt.Errorf("ledger message without entry_id")
	}
	return &msg, nil
}
