// Package service implements the ledger's business rules on top of the store:
// the batch verification state machine, credit mint/transfer/retire, and the
// transaction bookkeeping trail. Handlers stay thin; every rule lives here.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/h2trust/hydroledger/internal/evidence"
	"github.com/h2trust/hydroledger/internal/ledger/model"
	"github.com/h2trust/hydroledger/internal/ledger/store"
	"github.com/h2trust/hydroledger/internal/verification"
	"go.uber.org/zap"
)

const (
	maxRegionLen = 100
	maxNotesLen  = 1000
	maxReasonLen = 500
)

// BatchService manages the production batch lifecycle.
type BatchService struct {
	store    store.Store
	verifier *verification.Verifier
	logger   *zap.Logger
}

// NewBatchService creates a BatchService.
func NewBatchService(st store.Store, verifier *verification.Verifier, logger *zap.Logger) *BatchService {
	return &BatchService{store: st, verifier: verifier, logger: logger}
}

// Submit records a new production batch in pending state. The evidence hash
// is computed here and is immutable for the batch's lifetime.
func (s *BatchService) Submit(ctx context.Context, producerID uuid.UUID, req model.SubmitBatchRequest) (*model.Batch, error) {
	if req.KgProduced <= 0 {
		return nil, model.ErrInvalidInput("kg_produced must be positive")
	}
	if req.KwhUsed < 0 {
		return nil, model.ErrInvalidInput("kwh_used must not be negative")
	}
	region := strings.TrimSpace(req.Region)
	if region == "" {
		return nil, model.ErrInvalidInput("region is required")
	}
	if len(region) > maxRegionLen {
		return nil, model.ErrInvalidInput("region exceeds %d characters", maxRegionLen)
	}
	if len(req.CertificateFiles) == 0 {
		return nil, model.ErrInvalidInput("at least one certificate file is required")
	}
	if len(req.Notes) > maxNotesLen {
		return nil, model.ErrInvalidInput("notes exceed %d characters", maxNotesLen)
	}

	now := time.Now().UTC()
	batch := &model.Batch{
		ID:               uuid.New(),
		ProducerID:       producerID,
		BatchNumber:      strings.TrimSpace(req.BatchNumber),
		KgProduced:       req.KgProduced,
		KwhUsed:          req.KwhUsed,
		Region:           region,
		ProductionDate:   req.ProductionDate,
		CertificateFiles: req.CertificateFiles,
		Status:           model.BatchStatusPending,
		EvidenceHash:     evidence.BatchFingerprint(req.KgProduced, req.KwhUsed, req.ProductionDate, now),
		Notes:            req.Notes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if batch.BatchNumber == "" {
		return nil, model.ErrInvalidInput("batch_number is required")
	}

	err := s.store.Update(ctx, func(tx store.Tx) error {
		if _, err := tx.GetBatchByNumber(batch.BatchNumber); err == nil {
			return model.ErrDuplicateKey("batch number %q already submitted", batch.BatchNumber)
		} else if !model.IsKind(err, model.KindNotFound) {
			return err
		}
		if _, err := tx.GetBatchByEvidenceHash(batch.EvidenceHash); err == nil {
			return model.ErrDuplicateKey("evidence hash already recorded")
		} else if !model.IsKind(err, model.KindNotFound) {
			return err
		}
		return tx.InsertBatch(batch)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("batch submitted",
		zap.String("batch_id", batch.ID.String()),
		zap.String("batch_number", batch.BatchNumber),
		zap.Float64("kg_produced", batch.KgProduced),
	)
	return batch, nil
}

// Verify runs the certifier assessment against a pending batch without
// persisting anything. Approval is the operation that records the result.
func (s *BatchService) Verify(ctx context.Context, certifierID, batchID uuid.UUID) (*model.VerificationResult, error) {
	batch, err := s.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != model.BatchStatusPending {
		return nil, model.ErrInvalidState("batch %s is %s; only pending batches can be verified", batch.BatchNumber, batch.Status)
	}
	result := s.verifier.Verify(batch, certifierID)
	return &result, nil
}

// Approve transitions a pending batch to approved, recording the verification
// result. Only pending batches can be approved; the transition is one-way.
func (s *BatchService) Approve(ctx context.Context, certifierID, batchID uuid.UUID, req model.ApproveBatchRequest) (*model.Batch, error) {
	if len(req.Notes) > maxNotesLen {
		return nil, model.ErrInvalidInput("notes exceed %d characters", maxNotesLen)
	}

	var batch *model.Batch
	err := s.store.Update(ctx, func(tx store.Tx) error {
		var err error
		batch, err = tx.GetBatch(batchID)
		if err != nil {
			return err
		}
		if batch.Status != model.BatchStatusPending {
			return model.ErrInvalidState("batch %s is %s; only pending batches can be approved", batch.BatchNumber, batch.Status)
		}

		verification := req.Verification
		verification.VerifiedBy = certifierID
		if verification.VerifiedAt.IsZero() {
			verification.VerifiedAt = time.Now().UTC()
		}

		batch.Status = model.BatchStatusApproved
		batch.Verification = &verification
		if req.Notes != "" {
			batch.Notes = req.Notes
		}
		return tx.UpdateBatch(batch)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("batch approved",
		zap.String("batch_id", batch.ID.String()),
		zap.String("certifier_id", certifierID.String()),
		zap.Int("trust_score", batch.Verification.TrustScore),
	)
	return batch, nil
}

// Reject transitions a pending batch to rejected with a mandatory reason.
// Rejected is terminal.
func (s *BatchService) Reject(ctx context.Context, certifierID, batchID uuid.UUID, req model.RejectBatchRequest) (*model.Batch, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, model.ErrInvalidInput("rejection_reason is required")
	}
	if len(reason) > maxReasonLen {
		return nil, model.ErrInvalidInput("rejection_reason exceeds %d characters", maxReasonLen)
	}

	var batch *model.Batch
	err := s.store.Update(ctx, func(tx store.Tx) error {
		var err error
		batch, err = tx.GetBatch(batchID)
		if err != nil {
			return err
		}
		if batch.Status != model.BatchStatusPending {
			return model.ErrInvalidState("batch %s is %s; only pending batches can be rejected", batch.BatchNumber, batch.Status)
		}
		batch.Status = model.BatchStatusRejected
		batch.RejectionReason = reason
		return tx.UpdateBatch(batch)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("batch rejected",
		zap.String("batch_id", batch.ID.String()),
		zap.String("certifier_id", certifierID.String()),
	)
	return batch, nil
}

// Get returns one batch. Producers may only read their own batches; roles
// with the view-all capability read any.
func (s *BatchService) Get(ctx context.Context, actorID uuid.UUID, actorRole model.Role, batchID uuid.UUID) (*model.Batch, error) {
	batch, err := s.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if actorRole == model.RoleProducer && batch.ProducerID != actorID {
		return nil, model.ErrForbidden("batch %s belongs to another producer", batchID)
	}
	return batch, nil
}

// List returns batches visible to the actor. Producers see only their own;
// everyone else sees all, optionally narrowed by the filter.
func (s *BatchService) List(ctx context.Context, actorID uuid.UUID, actorRole model.Role, f model.BatchFilter) ([]*model.Batch, error) {
	if actorRole == model.RoleProducer {
		f.ProducerID = &actorID
	}
	// Certifiers default to their work queue; an explicit status filter
	// overrides.
	if actorRole == model.RoleCertifier && len(f.Statuses) == 0 {
		f.Statuses = []model.BatchStatus{model.BatchStatusPending, model.BatchStatusApproved}
	}
	return s.store.ListBatches(ctx, f)
}

// StatusCounts returns the number of batches in each lifecycle state.
func (s *BatchService) StatusCounts(ctx context.Context) (map[model.BatchStatus]int, error) {
	return s.store.CountBatchesByStatus(ctx)
}
