package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/h2trust/hydroledger/internal/evidence"
	"github.com/h2trust/hydroledger/internal/ledger/model"
	"github.com/h2trust/hydroledger/internal/ledger/store"
	"github.com/h2trust/hydroledger/internal/users"
	"go.uber.org/zap"
)

// EmailResolver resolves participants by email for transfer bookkeeping.
// Satisfied by the users service.
type EmailResolver interface {
	ResolveByEmail(ctx context.Context, email string) (*users.Identity, error)
}

// TransactionService keeps the financial/operational bookkeeping trail.
// Transactions record intent and outcome; they never execute credit
// operations themselves.
type TransactionService struct {
	store  store.Store
	emails EmailResolver
	logger *zap.Logger
}

// NewTransactionService creates a TransactionService.
func NewTransactionService(st store.Store, emails EmailResolver, logger *zap.Logger) *TransactionService {
	return &TransactionService{store: st, emails: emails, logger: logger}
}

// CreatePurchaseRequest is the payload for recording a credit purchase.
type CreatePurchaseRequest struct {
	CreditID      uuid.UUID `json:"credit_id" binding:"required"`
	Amount        float64   `json:"amount" binding:"required"`
	Currency      string    `json:"currency"`
	PaymentMethod string    `json:"payment_method" binding:"required"`
	Description   string    `json:"description"`
}

// CreatePurchase records a CREDIT_PURCHASE in PENDING state. The referenced
// credit must exist and be active; the seller and the credit amount come from
// the credit itself, never from the caller.
func (s *TransactionService) CreatePurchase(ctx context.Context, buyerID uuid.UUID, req CreatePurchaseRequest) (*model.Transaction, error) {
	if req.Amount < 0 {
		return nil, model.ErrInvalidInput("amount must not be negative")
	}
	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = "USD"
	}
	if !model.Currencies[currency] {
		return nil, model.ErrInvalidInput("unsupported currency %q", currency)
	}
	method := model.PaymentMethod(strings.ToUpper(req.PaymentMethod))
	switch method {
	case model.PayCreditCard, model.PayBankTransfer, model.PayCrypto, model.PayCreditBalance, model.PayFree:
	default:
		return nil, model.ErrInvalidInput("unsupported payment method %q", req.PaymentMethod)
	}

	credit, err := s.store.GetCredit(ctx, req.CreditID)
	if err != nil {
		return nil, err
	}
	if credit.Status != model.CreditStatusActive {
		return nil, model.ErrInvalidState("credit %s is %s; only active credits can be purchased", credit.CreditID, credit.Status)
	}

	description := req.Description
	if description == "" {
		description = fmt.Sprintf("purchase of %v kg hydrogen credits", credit.Supply)
	}

	txn := s.newTransaction(model.TxnCreditPurchase, buyerID)
	txn.FromUser = &buyerID
	txn.ToUser = &credit.OwnerID
	txn.CreditID = &credit.ID
	txn.Amount = req.Amount
	txn.Currency = currency
	txn.CreditAmount = credit.Supply
	txn.PaymentMethod = method
	txn.Description = description

	return s.insert(ctx, txn)
}

// CreateTransferRequest is the payload for recording a credit transfer.
type CreateTransferRequest struct {
	CreditID     uuid.UUID `json:"credit_id" binding:"required"`
	ToEmail      string    `json:"to_email" binding:"required,email"`
	CreditAmount float64   `json:"credit_amount" binding:"required"`
	Description  string    `json:"description"`
}

// CreateTransfer records a CREDIT_TRANSFER in PENDING state. The caller must
// own the referenced credit, the credit must be active, and the amount must
// not exceed its supply, mirroring the preconditions of the transfer itself.
// The recipient is resolved by email; transfers to oneself are rejected.
func (s *TransactionService) CreateTransfer(ctx context.Context, fromUserID uuid.UUID, req CreateTransferRequest) (*model.Transaction, error) {
	if req.CreditAmount <= 0 {
		return nil, model.ErrInvalidInput("credit_amount must be positive")
	}

	credit, err := s.store.GetCredit(ctx, req.CreditID)
	if err != nil {
		return nil, err
	}
	if credit.OwnerID != fromUserID {
		return nil, model.ErrForbidden("credit %s is not owned by the caller", credit.CreditID)
	}
	if credit.Status != model.CreditStatusActive {
		return nil, model.ErrInvalidState("credit %s is %s; only active credits can be transferred", credit.CreditID, credit.Status)
	}
	if req.CreditAmount > credit.Supply {
		return nil, model.ErrInvalidInput("credit_amount %v exceeds remaining supply %v", req.CreditAmount, credit.Supply)
	}

	recipient, err := s.emails.ResolveByEmail(ctx, req.ToEmail)
	if err != nil {
		if model.IsKind(err, model.KindNotFound) {
			return nil, model.ErrInvalidRecipient("no participant with email %q", req.ToEmail)
		}
		return nil, err
	}
	if recipient.ID == fromUserID {
		return nil, model.ErrInvalidRecipient("cannot record a transfer to yourself")
	}
	if !recipient.IsActive {
		return nil, model.ErrInvalidRecipient("recipient account is deactivated")
	}

	description := req.Description
	if description == "" {
		description = fmt.Sprintf("transfer of %v kg hydrogen credits", req.CreditAmount)
	}

	txn := s.newTransaction(model.TxnCreditTransfer, fromUserID)
	txn.FromUser = &fromUserID
	txn.ToUser = &recipient.ID
	txn.CreditID = &credit.ID
	txn.Currency = "USD"
	txn.CreditAmount = req.CreditAmount
	txn.PaymentMethod = model.PayFree
	txn.Description = description

	return s.insert(ctx, txn)
}

// CreateVerificationRecord records a BATCH_VERIFICATION performed by a
// certifier, in COMPLETED state since the verification already happened.
// The batch must exist; amount is the (notional) assessment fee.
func (s *TransactionService) CreateVerificationRecord(ctx context.Context, certifierID, batchID uuid.UUID, amount float64, description string) (*model.Transaction, error) {
	batch, err := s.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if description == "" {
		description = "verification of batch " + batch.BatchNumber
	}

	txn := s.newTransaction(model.TxnBatchVerification, certifierID)
	txn.BatchID = &batch.ID
	txn.Amount = amount
	txn.Currency = "USD"
	txn.PaymentMethod = model.PayFree
	txn.Description = description
	txn.Status = model.TxnStatusCompleted
	now := txn.CreatedAt
	txn.CompletedAt = &now

	return s.insert(ctx, txn)
}

// CreateRetirementRecord records a CREDIT_RETIREMENT in COMPLETED state.
func (s *TransactionService) CreateRetirementRecord(ctx context.Context, ownerID, creditID uuid.UUID, creditAmount float64, description string) (*model.Transaction, error) {
	txn := s.newTransaction(model.TxnCreditRetirement, ownerID)
	txn.FromUser = &ownerID
	txn.CreditID = &creditID
	txn.Currency = "USD"
	txn.CreditAmount = creditAmount
	txn.PaymentMethod = model.PayFree
	txn.Description = description
	txn.Status = model.TxnStatusCompleted
	now := txn.CreatedAt
	txn.CompletedAt = &now

	return s.insert(ctx, txn)
}

// UpdateStatus moves a transaction to a new bookkeeping status and appends an
// audit entry. Any status may follow any other; the trail is the safeguard.
// CompletedAt is set the first time the transaction reaches COMPLETED and is
// never cleared by later updates.
func (s *TransactionService) UpdateStatus(ctx context.Context, actorID, txnID uuid.UUID, status model.TransactionStatus, details string) (*model.Transaction, error) {
	switch status {
	case model.TxnStatusPending, model.TxnStatusProcessing, model.TxnStatusCompleted,
		model.TxnStatusFailed, model.TxnStatusCancelled:
	default:
		return nil, model.ErrInvalidInput("unknown transaction status %q", status)
	}

	var txn *model.Transaction
	err := s.store.Update(ctx, func(tx store.Tx) error {
		var err error
		txn, err = tx.GetTransaction(txnID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		txn.Status = status
		if status == model.TxnStatusCompleted && txn.CompletedAt == nil {
			txn.CompletedAt = &now
		}
		txn.AuditTrail = append(txn.AuditTrail, model.AuditEntry{
			Action:    "STATUS_UPDATED",
			Timestamp: now,
			UserID:    actorID,
			Details:   strings.TrimSpace("status set to " + string(status) + ". " + details),
		})
		return tx.UpdateTransaction(txn)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("transaction status updated",
		zap.String("transaction_id", txn.TransactionID),
		zap.String("status", string(status)),
	)
	return txn, nil
}

// Get returns one transaction. Parties read their own; roles with the
// view-all capability read any.
func (s *TransactionService) Get(ctx context.Context, actorID uuid.UUID, actorRole model.Role, txnID uuid.UUID) (*model.Transaction, error) {
	txn, err := s.store.GetTransaction(ctx, txnID)
	if err != nil {
		return nil, err
	}
	if !actorRole.Can(model.CapViewAllTransactions) && !isParty(txn, actorID) {
		return nil, model.ErrForbidden("transaction %s does not involve the caller", txnID)
	}
	return txn, nil
}

// List returns transactions visible to the actor: their own unless the role
// can view everything.
func (s *TransactionService) List(ctx context.Context, actorID uuid.UUID, actorRole model.Role, f model.TransactionFilter) ([]*model.Transaction, error) {
	if !actorRole.Can(model.CapViewAllTransactions) {
		f.Party = &actorID
	}
	return s.store.ListTransactions(ctx, f)
}

// Statistics returns aggregate transaction stats over an optional date range.
func (s *TransactionService) Statistics(ctx context.Context, from, to *time.Time) (*model.TransactionStats, error) {
	return s.store.TransactionStats(ctx, from, to)
}

func (s *TransactionService) newTransaction(txnType model.TransactionType, creatorID uuid.UUID) *model.Transaction {
	now := time.Now().UTC()
	return &model.Transaction{
		ID:            uuid.New(),
		TransactionID: evidence.NewTransactionID(),
		Type:          txnType,
		Status:        model.TxnStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
		AuditTrail: []model.AuditEntry{{
			Action:    "CREATED",
			Timestamp: now,
			UserID:    creatorID,
			Details:   "transaction created",
		}},
	}
}

func (s *TransactionService) insert(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	err := s.store.Update(ctx, func(tx store.Tx) error {
		return tx.InsertTransaction(txn)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("transaction recorded",
		zap.String("transaction_id", txn.TransactionID),
		zap.String("type", string(txn.Type)),
	)
	return txn, nil
}

func isParty(txn *model.Transaction, userID uuid.UUID) bool {
	if txn.FromUser != nil && *txn.FromUser == userID {
		return true
	}
	if txn.ToUser != nil && *txn.ToUser == userID {
		return true
	}
	return false
}
