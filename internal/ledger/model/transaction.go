package model

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType classifies a bookkeeping transaction. Required fields vary
// by type: FromUser is required for everything except BATCH_VERIFICATION,
// ToUser for transfers and purchases, BatchID for verifications, CreditID for
// transfers and retirements.
type TransactionType string

const (
	TxnCreditPurchase    TransactionType = "CREDIT_PURCHASE"
	TxnCreditTransfer    TransactionType = "CREDIT_TRANSFER"
	TxnCreditRetirement  TransactionType = "CREDIT_RETIREMENT"
	TxnBatchVerification TransactionType = "BATCH_VERIFICATION"
	TxnSubscription      TransactionType = "SUBSCRIPTION"
	TxnRefund            TransactionType = "REFUND"
)

// TransactionStatus is the bookkeeping state of a transaction. The machine is
// deliberately open: any status may follow any other (audited, not enforced).
type TransactionStatus string

const (
	TxnStatusPending    TransactionStatus = "PENDING"
	TxnStatusProcessing TransactionStatus = "PROCESSING"
	TxnStatusCompleted  TransactionStatus = "COMPLETED"
	TxnStatusFailed     TransactionStatus = "FAILED"
	TxnStatusCancelled  TransactionStatus = "CANCELLED"
)

// PaymentMethod is how a financial transaction was (notionally) settled.
// No real settlement happens; these are bookkeeping records only.
type PaymentMethod string

const (
	PayCreditCard    PaymentMethod = "CREDIT_CARD"
	PayBankTransfer  PaymentMethod = "BANK_TRANSFER"
	PayCrypto        PaymentMethod = "CRYPTO"
	PayCreditBalance PaymentMethod = "CREDIT_BALANCE"
	PayFree          PaymentMethod = "FREE"
)

// Currency codes accepted on financial transactions.
var Currencies = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "CAD": true, "AUD": true,
}

// Transaction is a financial/operational bookkeeping record with an
// append-only audit trail. It references ledger entities but has its own
// lifecycle, independent of credit execution.
type Transaction struct {
	ID            uuid.UUID         `json:"id"                     db:"id"`
	TransactionID string            `json:"transaction_id"         db:"transaction_id"`
	Type          TransactionType   `json:"type"                   db:"type"`
	FromUser      *uuid.UUID        `json:"from_user,omitempty"    db:"from_user"`
	ToUser        *uuid.UUID        `json:"to_user,omitempty"      db:"to_user"`
	BatchID       *uuid.UUID        `json:"batch_id,omitempty"     db:"batch_id"`
	CreditID      *uuid.UUID        `json:"credit_id,omitempty"    db:"credit_id"`
	Amount        float64           `json:"amount"                 db:"amount"`
	Currency      string            `json:"currency"               db:"currency"`
	CreditAmount  float64           `json:"credit_amount"          db:"credit_amount"`
	Status        TransactionStatus `json:"status"                 db:"status"`
	PaymentMethod PaymentMethod     `json:"payment_method"         db:"payment_method"`
	Description   string            `json:"description,omitempty"  db:"description"`
	Notes         string            `json:"notes,omitempty"        db:"notes"`
	CreatedAt     time.Time         `json:"created_at"             db:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"             db:"updated_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
	AuditTrail    []AuditEntry      `json:"audit_trail"            db:"audit_trail"`
}

// AuditEntry is one append-only record of an action taken on a transaction.
type AuditEntry struct {
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	UserID    uuid.UUID `json:"user_id"`
	Details   string    `json:"details"`
}

// TransactionFilter narrows transaction listings.
type TransactionFilter struct {
	Party    *uuid.UUID // matches fromUser OR toUser
	Type     TransactionType
	Status   TransactionStatus
	FromDate *time.Time
	ToDate   *time.Time
	Limit    int
	Offset   int
}

// TransactionStats is the aggregate view for the stats endpoint.
type TransactionStats struct {
	Overview TransactionOverview      `json:"overview"`
	ByType   []TransactionTypeStats   `json:"by_type"`
	ByStatus []TransactionStatusStats `json:"by_status"`
}

// TransactionOverview summarizes all transactions in range.
type TransactionOverview struct {
	TotalTransactions int     `json:"total_transactions"`
	TotalAmount       float64 `json:"total_amount"`
	TotalCredits      float64 `json:"total_credits"`
	AvgAmount         float64 `json:"avg_amount"`
	AvgCredits        float64 `json:"avg_credits"`
}

// TransactionTypeStats is the per-type aggregate row.
type TransactionTypeStats struct {
	Type         TransactionType `json:"type"`
	Count        int             `json:"count"`
	TotalAmount  float64         `json:"total_amount"`
	TotalCredits float64         `json:"total_credits"`
}

// TransactionStatusStats is the per-status aggregate row.
type TransactionStatusStats struct {
	Status      TransactionStatus `json:"status"`
	Count       int               `json:"count"`
	TotalAmount float64           `json:"total_amount"`
}
