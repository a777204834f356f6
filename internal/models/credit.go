package models

import (
	"time"

	"github.com/google/uuid"
)

// Credit ledger entry_type enums.
const (
	CreditEntryDebit = "debit"
	CreditEntryGrant = "grant"
)

// CreditLedger is one append-only entry in a user's credit history.
// Amount is always positive; EntryType says which direction it moved.
type CreditLedger struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	EntryType    string    `json:"entry_type"`
	Amount       int       `json:"amount"`
	BalanceAfter int       `json:"balance_after"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
}
