package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/h2trust/hydroledger/internal/eventlog"
	"github.com/h2trust/hydroledger/internal/evidence"
	"github.com/h2trust/hydroledger/internal/ledger/model"
	"github.com/h2trust/hydroledger/internal/ledger/store"
	"github.com/h2trust/hydroledger/internal/users"
	"go.uber.org/zap"
)

// Retirement environmental equivalence factors, per kg of retired supply.
const (
	carbonOffsetPerKg = 0.5
	renewableKwhPerKg = 2.5
)

const certificateIssuer = "Green Hydrogen Credit Registry"

// RecipientResolver resolves transfer recipients to their identity view.
// Satisfied by the users service.
type RecipientResolver interface {
	ResolveByID(ctx context.Context, id uuid.UUID) (*users.Identity, error)
}

// CreditService manages minting, ownership transfer, and retirement.
type CreditService struct {
	store      store.Store
	recipients RecipientResolver
	logger     *zap.Logger
}

// NewCreditService creates a CreditService.
func NewCreditService(st store.Store, recipients RecipientResolver, logger *zap.Logger) *CreditService {
	return &CreditService{store: st, recipients: recipients, logger: logger}
}

// Mint issues a credit from an approved batch. The credit insert, the MINT
// event, and the batch transition to minted commit together or not at all.
// Supply defaults to the batch's verified kg unless the request overrides it;
// ownership starts with the producer.
func (s *CreditService) Mint(ctx context.Context, minterID, batchID uuid.UUID, req model.MintCreditRequest) (*model.Credit, error) {
	if req.Supply != nil && *req.Supply <= 0 {
		return nil, model.ErrInvalidInput("supply must be positive")
	}

	var credit *model.Credit
	err := s.store.Update(ctx, func(tx store.Tx) error {
		batch, err := tx.GetBatch(batchID)
		if err != nil {
			return err
		}
		if batch.Status != model.BatchStatusApproved {
			return model.ErrInvalidState("batch %s is %s; only approved batches can be minted", batch.BatchNumber, batch.Status)
		}

		supply := batch.KgProduced
		if req.Supply != nil {
			supply = *req.Supply
		}

		now := time.Now().UTC()
		credit = &model.Credit{
			ID:              uuid.New(),
			CreditID:        evidence.NewCreditID(),
			BatchID:         batch.ID,
			Supply:          supply,
			OwnerID:         batch.ProducerID,
			Status:          model.CreditStatusActive,
			TransferHistory: []model.TransferRecord{},
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.InsertCredit(credit); err != nil {
			return err
		}

		event := &eventlog.Event{
			Timestamp: now,
			CreditID:  credit.ID,
			EventType: eventlog.EventMint,
			FromUser:  minterID,
			ToUser:    batch.ProducerID,
			Amount:    credit.Supply,
			Details: map[string]string{
				"credit_id":    credit.CreditID,
				"batch_number": batch.BatchNumber,
				"region":       batch.Region,
			},
			Status:          eventlog.StatusConfirmed,
			TransactionHash: evidence.EventFingerprint(credit.ID, string(eventlog.EventMint), minterID, batch.ProducerID, credit.Supply, now),
		}
		if err := tx.AppendEvent(event); err != nil {
			return err
		}

		batch.Status = model.BatchStatusMinted
		return tx.UpdateBatch(batch)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("credit minted",
		zap.String("credit_id", credit.CreditID),
		zap.String("batch_id", batchID.String()),
		zap.Float64("supply", credit.Supply),
	)
	return credit, nil
}

// Transfer moves part or all of a credit's supply to another participant.
// Ownership of the whole credit changes hands; supply and status do not.
// Only the current owner may transfer, only while the credit is active.
func (s *CreditService) Transfer(ctx context.Context, actorID, creditID uuid.UUID, req model.TransferCreditRequest) (*model.Credit, error) {
	if req.Amount <= 0 {
		return nil, model.ErrInvalidInput("transfer amount must be positive")
	}
	if req.ToUserID == actorID {
		return nil, model.ErrInvalidRecipient("cannot transfer a credit to yourself")
	}

	recipient, err := s.recipients.ResolveByID(ctx, req.ToUserID)
	if err != nil {
		if model.IsKind(err, model.KindNotFound) {
			return nil, model.ErrInvalidRecipient("recipient %s does not exist", req.ToUserID)
		}
		return nil, err
	}
	if !recipient.IsActive {
		return nil, model.ErrInvalidRecipient("recipient account is deactivated")
	}

	var credit *model.Credit
	err = s.store.Update(ctx, func(tx store.Tx) error {
		var err error
		credit, err = tx.GetCredit(creditID)
		if err != nil {
			return err
		}
		if credit.Status != model.CreditStatusActive {
			return model.ErrInvalidState("credit %s is %s; only active credits can be transferred", credit.CreditID, credit.Status)
		}
		if credit.OwnerID != actorID {
			return model.ErrForbidden("credit %s is not owned by the caller", credit.CreditID)
		}
		if req.Amount > credit.Supply {
			return model.ErrInvalidInput("transfer amount %v exceeds remaining supply %v", req.Amount, credit.Supply)
		}

		now := time.Now().UTC()
		txHash := evidence.EventFingerprint(credit.ID, string(eventlog.EventTransfer), actorID, req.ToUserID, req.Amount, now)

		event := &eventlog.Event{
			Timestamp: now,
			CreditID:  credit.ID,
			EventType: eventlog.EventTransfer,
			FromUser:  actorID,
			ToUser:    req.ToUserID,
			Amount:    req.Amount,
			Details: map[string]string{
				"credit_id": credit.CreditID,
				"recipient": recipient.Email,
			},
			Status:          eventlog.StatusConfirmed,
			TransactionHash: txHash,
		}
		if err := tx.AppendEvent(event); err != nil {
			return err
		}

		credit.TransferHistory = append(credit.TransferHistory, model.TransferRecord{
			FromUser:        actorID,
			ToUser:          req.ToUserID,
			TransferredAt:   now,
			TransferAmount:  req.Amount,
			TransactionHash: txHash,
		})
		credit.OwnerID = req.ToUserID
		return tx.UpdateCredit(credit)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("credit transferred",
		zap.String("credit_id", credit.CreditID),
		zap.String("from", actorID.String()),
		zap.String("to", req.ToUserID.String()),
		zap.Float64("amount", req.Amount),
	)
	return credit, nil
}

// Retire permanently removes supply from circulation. A zero request amount
// retires the full remaining supply. Retirement is terminal: the credit
// becomes retired even when supply remains, and no operation revives it.
func (s *CreditService) Retire(ctx context.Context, actorID, creditID uuid.UUID, req model.RetireCreditRequest) (*model.Credit, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, model.ErrInvalidInput("retirement_reason is required")
	}
	if len(reason) > maxReasonLen {
		return nil, model.ErrInvalidInput("retirement_reason exceeds %d characters", maxReasonLen)
	}

	var credit *model.Credit
	err := s.store.Update(ctx, func(tx store.Tx) error {
		var err error
		credit, err = tx.GetCredit(creditID)
		if err != nil {
			return err
		}
		if credit.Status != model.CreditStatusActive {
			return model.ErrInvalidState("credit %s is %s; only active credits can be retired", credit.CreditID, credit.Status)
		}
		if credit.OwnerID != actorID {
			return model.ErrForbidden("credit %s is not owned by the caller", credit.CreditID)
		}

		amount := req.Amount
		if amount == 0 {
			amount = credit.Supply
		}
		if amount < 0 {
			return model.ErrInvalidInput("retirement amount must be positive")
		}
		if amount > credit.Supply {
			return model.ErrInvalidInput("retirement amount %v exceeds remaining supply %v", amount, credit.Supply)
		}

		now := time.Now().UTC()
		receipt := &model.RetirementReceipt{
			ReceiptID:        evidence.NewReceiptID(),
			RetiredAt:        now,
			RetiredBy:        actorID,
			AmountRetired:    amount,
			RetirementReason: reason,
			CarbonOffset:     amount * carbonOffsetPerKg,
			RenewableKwh:     amount * renewableKwhPerKg,
		}
		receipt.CertificateURL = "/api/credits/" + credit.ID.String() + "/certificate/" + receipt.ReceiptID

		event := &eventlog.Event{
			Timestamp: now,
			CreditID:  credit.ID,
			EventType: eventlog.EventRetire,
			FromUser:  actorID,
			ToUser:    actorID,
			Amount:    amount,
			Details: map[string]string{
				"credit_id":  credit.CreditID,
				"receipt_id": receipt.ReceiptID,
				"reason":     reason,
			},
			Status:          eventlog.StatusConfirmed,
			TransactionHash: evidence.EventFingerprint(credit.ID, string(eventlog.EventRetire), actorID, actorID, amount, now),
		}
		if err := tx.AppendEvent(event); err != nil {
			return err
		}

		credit.Supply -= amount
		credit.Status = model.CreditStatusRetired
		credit.Retirement = receipt
		return tx.UpdateCredit(credit)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("credit retired",
		zap.String("credit_id", credit.CreditID),
		zap.String("receipt_id", credit.Retirement.ReceiptID),
		zap.Float64("carbon_offset", credit.Retirement.CarbonOffset),
	)
	return credit, nil
}

// Get returns one credit. Owners read their own; roles with the view-all
// capability read any.
func (s *CreditService) Get(ctx context.Context, actorID uuid.UUID, actorRole model.Role, creditID uuid.UUID) (*model.Credit, error) {
	credit, err := s.store.GetCredit(ctx, creditID)
	if err != nil {
		return nil, err
	}
	if credit.OwnerID != actorID && !actorRole.Can(model.CapViewAllTransactions) {
		return nil, model.ErrForbidden("credit %s is not owned by the caller", creditID)
	}
	return credit, nil
}

// List returns credits visible to the actor.
func (s *CreditService) List(ctx context.Context, actorID uuid.UUID, actorRole model.Role, f model.CreditFilter) ([]*model.Credit, error) {
	// Certifiers and auditors see everything; everyone else browses the
	// marketplace of active credits.
	if !actorRole.Can(model.CapViewAllTransactions) {
		f.Statuses = []model.CreditStatus{model.CreditStatusActive}
	}
	return s.store.ListCredits(ctx, f)
}

// ListOwned returns the actor's own credits in any status.
func (s *CreditService) ListOwned(ctx context.Context, actorID uuid.UUID, f model.CreditFilter) ([]*model.Credit, error) {
	f.OwnerID = &actorID
	return s.store.ListCredits(ctx, f)
}

// History returns the provenance events for one credit, oldest first.
func (s *CreditService) History(ctx context.Context, creditID uuid.UUID) ([]*eventlog.Event, error) {
	if _, err := s.store.GetCredit(ctx, creditID); err != nil {
		return nil, err
	}
	return s.store.Events().ListForCredit(ctx, creditID)
}

// Certificate returns the public retirement certificate for a (credit,
// receipt) pair. The receipt ID must match exactly.
func (s *CreditService) Certificate(ctx context.Context, creditID uuid.UUID, receiptID string) (*model.RetirementCertificate, error) {
	credit, err := s.store.GetCredit(ctx, creditID)
	if err != nil {
		return nil, err
	}
	if credit.Retirement == nil || credit.Retirement.ReceiptID != receiptID {
		return nil, model.ErrNotFound("no retirement receipt %q for credit %s", receiptID, creditID)
	}

	// The RETIRE event's transaction hash anchors the certificate to the log.
	var blockchainHash string
	events, err := s.store.Events().ListForCredit(ctx, creditID)
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		if e.EventType == eventlog.EventRetire {
			blockchainHash = e.TransactionHash
		}
	}

	r := credit.Retirement
	return &model.RetirementCertificate{
		ReceiptID:         r.ReceiptID,
		CreditID:          credit.CreditID,
		RetiredAt:         r.RetiredAt,
		RetirementReason:  r.RetirementReason,
		CarbonOffset:      r.CarbonOffset,
		RenewableKwh:      r.RenewableKwh,
		CertificateNumber: r.ReceiptID,
		Issuer:            certificateIssuer,
		Validity:          "permanent",
		BlockchainHash:    blockchainHash,
	}, nil
}

// StatusCounts returns the number of credits in each lifecycle state.
func (s *CreditService) StatusCounts(ctx context.Context) (map[model.CreditStatus]int, error) {
	return s.store.CountCreditsByStatus(ctx)
}
