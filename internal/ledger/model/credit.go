package model

import (
	"time"

	"github.com/google/uuid"
)

// CreditStatus is the lifecycle state of a credit.
//
// Ownership transfers never change the status; only retirement does.
// CreditStatusTransferred exists for compatibility with historical records
// but is never written by the ledger.
type CreditStatus string

const (
	CreditStatusActive      CreditStatus = "active"
	CreditStatusTransferred CreditStatus = "transferred"
	CreditStatusRetired     CreditStatus = "retired"
)

// Credit is a tradeable unit of verified hydrogen supply minted from one
// approved batch. The Credit row is the cached current-state view; the event
// log is the authoritative provenance trail.
type Credit struct {
	ID              uuid.UUID          `json:"id"                           db:"id"`
	CreditID        string             `json:"credit_id"                    db:"credit_id"`
	BatchID         uuid.UUID          `json:"batch_id"                     db:"batch_id"`
	Supply          float64            `json:"supply"                       db:"supply"`
	OwnerID         uuid.UUID          `json:"owner_id"                     db:"owner_id"`
	Status          CreditStatus       `json:"status"                       db:"status"`
	TransferHistory []TransferRecord   `json:"transfer_history"             db:"transfer_history"`
	Retirement      *RetirementReceipt `json:"retirement_receipt,omitempty" db:"retirement_receipt"`
	CreatedAt       time.Time          `json:"created_at"                   db:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"                   db:"updated_at"`
}

// TransferRecord is one entry in a credit's append-only transfer history.
type TransferRecord struct {
	FromUser        uuid.UUID `json:"from_user"`
	ToUser          uuid.UUID `json:"to_user"`
	TransferredAt   time.Time `json:"transferred_at"`
	TransferAmount  float64   `json:"transfer_amount"`
	TransactionHash string    `json:"transaction_hash"`
}

// RetirementReceipt evidences permanent removal of supply from circulation.
// Present iff status = retired.
type RetirementReceipt struct {
	ReceiptID        string    `json:"receipt_id"`
	RetiredAt        time.Time `json:"retired_at"`
	RetiredBy        uuid.UUID `json:"retired_by"`
	AmountRetired    float64   `json:"amount_retired"`
	RetirementReason string    `json:"retirement_reason"`
	CertificateURL   string    `json:"certificate_url"`
	CarbonOffset     float64   `json:"carbon_offset"`
	RenewableKwh     float64   `json:"renewable_energy_equivalent"`
}

// RetirementCertificate is the public, read-only view of a retirement,
// addressable by (credit, receipt) pair.
type RetirementCertificate struct {
	ReceiptID         string    `json:"receipt_id"`
	CreditID          string    `json:"credit_id"`
	RetiredAt         time.Time `json:"retired_at"`
	RetirementReason  string    `json:"retirement_reason"`
	CarbonOffset      float64   `json:"carbon_offset"`
	RenewableKwh      float64   `json:"renewable_energy_equivalent"`
	CertificateNumber string    `json:"certificate_number"`
	Issuer            string    `json:"issuer"`
	Validity          string    `json:"validity"`
	BlockchainHash    string    `json:"blockchain_hash"`
}

// MintCreditRequest is the optional payload for minting. Supply overrides the
// issued amount; when absent the batch's verified kg is used.
type MintCreditRequest struct {
	Supply *float64 `json:"supply"`
}

// TransferCreditRequest is the payload for a credit ownership transfer.
type TransferCreditRequest struct {
	ToUserID uuid.UUID `json:"to_user_id" binding:"required"`
	Amount   float64   `json:"amount"     binding:"required"`
}

// RetireCreditRequest is the payload for a credit retirement. Amount zero
// means "retire the full remaining supply".
type RetireCreditRequest struct {
	Reason string  `json:"retirement_reason" binding:"required"`
	Amount float64 `json:"amount"`
}

// CreditFilter narrows credit listings.
type CreditFilter struct {
	OwnerID  *uuid.UUID
	Statuses []CreditStatus
	Limit    int
	Offset   int
}
