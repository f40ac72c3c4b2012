package model

import (
	"time"

	"github.com/google/uuid"
)

// BatchStatus is the verification lifecycle state of a production batch.
// Transitions are monotonic: pending → {approved, rejected} → (approved only)
// → minted. rejected and minted are terminal; no batch re-enters pending.
type BatchStatus string

const (
	BatchStatusPending  BatchStatus = "pending"
	BatchStatusApproved BatchStatus = "approved"
	BatchStatusRejected BatchStatus = "rejected"
	BatchStatusMinted   BatchStatus = "minted"
)

// Batch is a reported hydrogen production run submitted by a producer.
type Batch struct {
	ID               uuid.UUID           `json:"id"                          db:"id"`
	ProducerID       uuid.UUID           `json:"producer_id"                 db:"producer_id"`
	BatchNumber      string              `json:"batch_number"                db:"batch_number"`
	KgProduced       float64             `json:"kg_produced"                 db:"kg_produced"`
	KwhUsed          float64             `json:"kwh_used"                    db:"kwh_used"`
	Region           string              `json:"region"                      db:"region"`
	ProductionDate   time.Time           `json:"production_date"             db:"production_date"`
	CertificateFiles []string            `json:"certificate_files"           db:"certificate_files"`
	Status           BatchStatus         `json:"status"                      db:"status"`
	EvidenceHash     string              `json:"evidence_hash"               db:"evidence_hash"`
	Verification     *VerificationResult `json:"verification_result,omitempty" db:"verification_result"`
	RejectionReason  string              `json:"rejection_reason,omitempty"  db:"rejection_reason"`
	Notes            string              `json:"notes,omitempty"             db:"notes"`
	CreatedAt        time.Time           `json:"created_at"                  db:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"                  db:"updated_at"`
}

// VerificationResult is the certifier-side assessment of a batch. It is nil
// until the batch has been approved.
type VerificationResult struct {
	KwhPerKg        float64   `json:"kwh_per_kg"`
	TrustScore      int       `json:"trust_score"`
	CarbonIntensity float64   `json:"carbon_intensity"`
	AnomalyFlags    []string  `json:"anomaly_flags"`
	VerifiedAt      time.Time `json:"verified_at"`
	VerifiedBy      uuid.UUID `json:"verified_by"`
}

// SubmitBatchRequest is the payload for a producer batch submission.
type SubmitBatchRequest struct {
	BatchNumber      string    `json:"batch_number"      binding:"required"`
	KgProduced       float64   `json:"kg_produced"       binding:"required"`
	KwhUsed          float64   `json:"kwh_used"`
	Region           string    `json:"region"            binding:"required"`
	ProductionDate   time.Time `json:"production_date"   binding:"required"`
	CertificateFiles []string  `json:"certificate_files" binding:"required"`
	Notes            string    `json:"notes"`
}

// ApproveBatchRequest is the payload for a certifier approval.
type ApproveBatchRequest struct {
	Verification VerificationResult `json:"verification_result" binding:"required"`
	Notes        string             `json:"notes"`
}

// RejectBatchRequest is the payload for a certifier rejection.
type RejectBatchRequest struct {
	Reason string `json:"rejection_reason" binding:"required"`
}

// BatchFilter narrows batch listings.
type BatchFilter struct {
	ProducerID *uuid.UUID
	Statuses   []BatchStatus
	Region     string
	Limit      int
	Offset     int
}
