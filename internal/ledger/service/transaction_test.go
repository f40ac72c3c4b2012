package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/h2trust/hydroledger/internal/ledger/model"
	"github.com/h2trust/hydroledger/internal/ledger/service"
	"github.com/h2trust/hydroledger/internal/ledger/store"
	"github.com/h2trust/hydroledger/internal/users"
	"go.uber.org/zap"
)

// stubEmails resolves participants by email from a fixed set.
type stubEmails struct {
	byEmail map[string]*users.Identity
}

func newStubEmails(ids ...*users.Identity) *stubEmails {
	r := &stubEmails{byEmail: map[string]*users.Identity{}}
	for _, id := range ids {
		r.byEmail[id.Email] = id
	}
	return r
}

func (r *stubEmails) ResolveByEmail(_ context.Context, email string) (*users.Identity, error) {
	identity, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, model.ErrNotFound("no user with email %q", email)
	}
	return identity, nil
}

func newTxnService(st store.Store, ids ...*users.Identity) *service.TransactionService {
	return service.NewTransactionService(st, newStubEmails(ids...), zap.NewNop())
}

// seedCredit inserts a credit directly into the store.
func seedCredit(t *testing.T, st store.Store, owner uuid.UUID, supply float64, status model.CreditStatus) *model.Credit {
	t.Helper()
	now := time.Now().UTC()
	credit := &model.Credit{
		ID:        uuid.New(),
		CreditID:  "HGC-" + uuid.NewString()[:8],
		BatchID:   uuid.New(),
		Supply:    supply,
		OwnerID:   owner,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := st.Update(ctx, func(tx store.Tx) error {
		return tx.InsertCredit(credit)
	}); err != nil {
		t.Fatalf("seed credit: %v", err)
	}
	return credit
}

func TestCreatePurchase(t *testing.T) {
	st := store.NewMemory()
	svc := newTxnService(st)
	buyer, seller := uuid.New(), uuid.New()
	credit := seedCredit(t, st, seller, 100, model.CreditStatusActive)

	txn, err := svc.CreatePurchase(ctx, buyer, service.CreatePurchaseRequest{
		CreditID:      credit.ID,
		Amount:        250,
		PaymentMethod: "bank_transfer",
	})
	if err != nil {
		t.Fatalf("CreatePurchase: %v", err)
	}
	if txn.Type != model.TxnCreditPurchase || txn.Status != model.TxnStatusPending {
		t.Errorf("type/status: %s/%s", txn.Type, txn.Status)
	}
	if txn.ToUser == nil || *txn.ToUser != seller {
		t.Errorf("seller not taken from the credit owner: %v", txn.ToUser)
	}
	if txn.CreditAmount != 100 {
		t.Errorf("credit amount not taken from the credit supply: %v", txn.CreditAmount)
	}
	if txn.CreditID == nil || *txn.CreditID != credit.ID {
		t.Errorf("credit reference: %v", txn.CreditID)
	}
	if txn.Currency != "USD" {
		t.Errorf("default currency: got %q, want USD", txn.Currency)
	}
	if txn.PaymentMethod != model.PayBankTransfer {
		t.Errorf("payment method not normalized: %q", txn.PaymentMethod)
	}
	if !strings.HasPrefix(txn.TransactionID, "TXN-") {
		t.Errorf("transaction id %q missing TXN- prefix", txn.TransactionID)
	}
	if len(txn.AuditTrail) != 1 || txn.AuditTrail[0].Action != "CREATED" {
		t.Errorf("audit trail not seeded: %+v", txn.AuditTrail)
	}
}

func TestCreatePurchase_validation(t *testing.T) {
	st := store.NewMemory()
	svc := newTxnService(st)
	buyer, seller := uuid.New(), uuid.New()
	credit := seedCredit(t, st, seller, 100, model.CreditStatusActive)

	cases := []struct {
		name string
		req  service.CreatePurchaseRequest
	}{
		{"negative amount", service.CreatePurchaseRequest{CreditID: credit.ID, Amount: -1, PaymentMethod: "FREE"}},
		{"bad currency", service.CreatePurchaseRequest{CreditID: credit.ID, Amount: 10, Currency: "XRP", PaymentMethod: "FREE"}},
		{"bad payment method", service.CreatePurchaseRequest{CreditID: credit.ID, Amount: 10, PaymentMethod: "BARTER"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.CreatePurchase(ctx, buyer, tc.req); !model.IsKind(err, model.KindInvalidInput) {
				t.Errorf("got %v, want invalid_input", err)
			}
		})
	}
}

func TestCreatePurchase_creditGuards(t *testing.T) {
	st := store.NewMemory()
	svc := newTxnService(st)
	buyer, seller := uuid.New(), uuid.New()

	if _, err := svc.CreatePurchase(ctx, buyer, service.CreatePurchaseRequest{
		CreditID: uuid.New(), Amount: 10, PaymentMethod: "FREE",
	}); !model.IsKind(err, model.KindNotFound) {
		t.Errorf("unknown credit: got %v, want not_found", err)
	}

	retired := seedCredit(t, st, seller, 100, model.CreditStatusRetired)
	if _, err := svc.CreatePurchase(ctx, buyer, service.CreatePurchaseRequest{
		CreditID: retired.ID, Amount: 10, PaymentMethod: "FREE",
	}); !model.IsKind(err, model.KindInvalidState) {
		t.Errorf("retired credit: got %v, want invalid_state", err)
	}
}

func TestCreateTransfer_recipientRules(t *testing.T) {
	sender := &users.Identity{ID: uuid.New(), Email: "sender@example.com", Role: model.RoleBuyer, IsActive: true}
	recipient := &users.Identity{ID: uuid.New(), Email: "recipient@example.com", Role: model.RoleBuyer, IsActive: true}
	inactive := &users.Identity{ID: uuid.New(), Email: "gone@example.com", Role: model.RoleBuyer, IsActive: false}
	st := store.NewMemory()
	svc := newTxnService(st, sender, recipient, inactive)
	credit := seedCredit(t, st, sender.ID, 100, model.CreditStatusActive)

	txn, err := svc.CreateTransfer(ctx, sender.ID, service.CreateTransferRequest{
		CreditID:     credit.ID,
		ToEmail:      "recipient@example.com",
		CreditAmount: 50,
	})
	if err != nil {
		t.Fatalf("CreateTransfer: %v", err)
	}
	if *txn.ToUser != recipient.ID || txn.PaymentMethod != model.PayFree {
		t.Errorf("transfer record: to=%v method=%s", txn.ToUser, txn.PaymentMethod)
	}
	if txn.CreditID == nil || *txn.CreditID != credit.ID {
		t.Errorf("credit reference: %v", txn.CreditID)
	}

	if _, err := svc.CreateTransfer(ctx, sender.ID, service.CreateTransferRequest{CreditID: credit.ID, ToEmail: "nobody@example.com", CreditAmount: 50}); !model.IsKind(err, model.KindInvalidRecipient) {
		t.Errorf("unknown email: got %v, want invalid_recipient", err)
	}
	if _, err := svc.CreateTransfer(ctx, sender.ID, service.CreateTransferRequest{CreditID: credit.ID, ToEmail: "sender@example.com", CreditAmount: 50}); !model.IsKind(err, model.KindInvalidRecipient) {
		t.Errorf("self transfer: got %v, want invalid_recipient", err)
	}
	if _, err := svc.CreateTransfer(ctx, sender.ID, service.CreateTransferRequest{CreditID: credit.ID, ToEmail: "gone@example.com", CreditAmount: 50}); !model.IsKind(err, model.KindInvalidRecipient) {
		t.Errorf("inactive recipient: got %v, want invalid_recipient", err)
	}
}

func TestCreateTransfer_creditGuards(t *testing.T) {
	sender := &users.Identity{ID: uuid.New(), Email: "sender@example.com", Role: model.RoleBuyer, IsActive: true}
	recipient := &users.Identity{ID: uuid.New(), Email: "recipient@example.com", Role: model.RoleBuyer, IsActive: true}
	st := store.NewMemory()
	svc := newTxnService(st, sender, recipient)

	if _, err := svc.CreateTransfer(ctx, sender.ID, service.CreateTransferRequest{
		CreditID: uuid.New(), ToEmail: "recipient@example.com", CreditAmount: 50,
	}); !model.IsKind(err, model.KindNotFound) {
		t.Errorf("unknown credit: got %v, want not_found", err)
	}

	notMine := seedCredit(t, st, uuid.New(), 100, model.CreditStatusActive)
	if _, err := svc.CreateTransfer(ctx, sender.ID, service.CreateTransferRequest{
		CreditID: notMine.ID, ToEmail: "recipient@example.com", CreditAmount: 50,
	}); !model.IsKind(err, model.KindForbidden) {
		t.Errorf("credit owned by someone else: got %v, want forbidden", err)
	}

	retired := seedCredit(t, st, sender.ID, 100, model.CreditStatusRetired)
	if _, err := svc.CreateTransfer(ctx, sender.ID, service.CreateTransferRequest{
		CreditID: retired.ID, ToEmail: "recipient@example.com", CreditAmount: 50,
	}); !model.IsKind(err, model.KindInvalidState) {
		t.Errorf("retired credit: got %v, want invalid_state", err)
	}

	small := seedCredit(t, st, sender.ID, 40, model.CreditStatusActive)
	if _, err := svc.CreateTransfer(ctx, sender.ID, service.CreateTransferRequest{
		CreditID: small.ID, ToEmail: "recipient@example.com", CreditAmount: 41,
	}); !model.IsKind(err, model.KindInvalidInput) {
		t.Errorf("over supply: got %v, want invalid_input", err)
	}
}

func TestCreateVerificationRecord_completedImmediately(t *testing.T) {
	st := store.NewMemory()
	svc := newTxnService(st)
	certifier := uuid.New()
	batch := approvedBatch(t, st, uuid.New(), 900)

	txn, err := svc.CreateVerificationRecord(ctx, certifier, batch.ID, 75, "batch approved")
	if err != nil {
		t.Fatalf("CreateVerificationRecord: %v", err)
	}
	if txn.Type != model.TxnBatchVerification || txn.Status != model.TxnStatusCompleted {
		t.Errorf("type/status: %s/%s", txn.Type, txn.Status)
	}
	if txn.CompletedAt == nil || !txn.CompletedAt.Equal(txn.CreatedAt) {
		t.Errorf("completed at: %v, created at: %v", txn.CompletedAt, txn.CreatedAt)
	}
	if txn.BatchID == nil || *txn.BatchID != batch.ID {
		t.Errorf("batch reference: %v", txn.BatchID)
	}
	if txn.Amount != 75 {
		t.Errorf("amount: got %v, want 75", txn.Amount)
	}

	if _, err := svc.CreateVerificationRecord(ctx, certifier, uuid.New(), 0, ""); !model.IsKind(err, model.KindNotFound) {
		t.Errorf("unknown batch: got %v, want not_found", err)
	}
}

func TestCreateVerificationRecord_defaultDescription(t *testing.T) {
	st := store.NewMemory()
	svc := newTxnService(st)
	batch := approvedBatch(t, st, uuid.New(), 500)

	txn, err := svc.CreateVerificationRecord(ctx, uuid.New(), batch.ID, 0, "")
	if err != nil {
		t.Fatalf("CreateVerificationRecord: %v", err)
	}
	if want := "verification of batch " + batch.BatchNumber; txn.Description != want {
		t.Errorf("description: got %q, want %q", txn.Description, want)
	}
}

func TestUpdateStatus_auditTrailAndCompletedAt(t *testing.T) {
	st := store.NewMemory()
	svc := newTxnService(st)
	buyer, seller, actor := uuid.New(), uuid.New(), uuid.New()
	credit := seedCredit(t, st, seller, 40, model.CreditStatusActive)

	txn, err := svc.CreatePurchase(ctx, buyer, service.CreatePurchaseRequest{
		CreditID: credit.ID, Amount: 100, PaymentMethod: "FREE",
	})
	if err != nil {
		t.Fatalf("CreatePurchase: %v", err)
	}

	updated, err := svc.UpdateStatus(ctx, actor, txn.ID, model.TxnStatusCompleted, "payment confirmed")
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if updated.Status != model.TxnStatusCompleted {
		t.Errorf("status: got %s", updated.Status)
	}
	if updated.CompletedAt == nil {
		t.Fatal("CompletedAt not set on completion")
	}
	completedAt := *updated.CompletedAt

	if len(updated.AuditTrail) != 2 {
		t.Fatalf("audit trail length: got %d, want 2", len(updated.AuditTrail))
	}
	last := updated.AuditTrail[1]
	if last.Action != "STATUS_UPDATED" || last.UserID != actor {
		t.Errorf("audit entry: %+v", last)
	}
	if !strings.Contains(last.Details, "COMPLETED") || !strings.Contains(last.Details, "payment confirmed") {
		t.Errorf("audit details: %q", last.Details)
	}

	// A later status change keeps the original completion timestamp.
	updated, err = svc.UpdateStatus(ctx, actor, txn.ID, model.TxnStatusFailed, "chargeback")
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if updated.Status != model.TxnStatusFailed {
		t.Errorf("status: got %s", updated.Status)
	}
	if updated.CompletedAt == nil || !updated.CompletedAt.Equal(completedAt) {
		t.Errorf("CompletedAt changed after later update: %v", updated.CompletedAt)
	}
	if len(updated.AuditTrail) != 3 {
		t.Errorf("audit trail length: got %d, want 3", len(updated.AuditTrail))
	}
}

func TestUpdateStatus_rejectsUnknownStatus(t *testing.T) {
	svc := newTxnService(store.NewMemory())
	if _, err := svc.UpdateStatus(ctx, uuid.New(), uuid.New(), "SHIPPED", ""); !model.IsKind(err, model.KindInvalidInput) {
		t.Errorf("got %v, want invalid_input", err)
	}
}

func TestTransactionGet_partyScoping(t *testing.T) {
	st := store.NewMemory()
	svc := newTxnService(st)
	buyer, seller, stranger := uuid.New(), uuid.New(), uuid.New()
	credit := seedCredit(t, st, seller, 40, model.CreditStatusActive)

	txn, _ := svc.CreatePurchase(ctx, buyer, service.CreatePurchaseRequest{
		CreditID: credit.ID, Amount: 100, PaymentMethod: "FREE",
	})

	if _, err := svc.Get(ctx, buyer, model.RoleBuyer, txn.ID); err != nil {
		t.Errorf("buyer read: %v", err)
	}
	if _, err := svc.Get(ctx, seller, model.RoleProducer, txn.ID); err != nil {
		t.Errorf("counterparty read: %v", err)
	}
	if _, err := svc.Get(ctx, stranger, model.RoleBuyer, txn.ID); !model.IsKind(err, model.KindForbidden) {
		t.Errorf("stranger read: got %v, want forbidden", err)
	}
	if _, err := svc.Get(ctx, stranger, model.RoleAuditor, txn.ID); err != nil {
		t.Errorf("auditor read: %v", err)
	}
}

func TestTransactionList_partyScoping(t *testing.T) {
	st := store.NewMemory()
	svc := newTxnService(st)
	buyer, seller, other := uuid.New(), uuid.New(), uuid.New()
	first := seedCredit(t, st, seller, 5, model.CreditStatusActive)
	second := seedCredit(t, st, seller, 8, model.CreditStatusActive)

	svc.CreatePurchase(ctx, buyer, service.CreatePurchaseRequest{CreditID: first.ID, Amount: 10, PaymentMethod: "FREE"})
	svc.CreatePurchase(ctx, other, service.CreatePurchaseRequest{CreditID: second.ID, Amount: 20, PaymentMethod: "FREE"})

	mine, err := svc.List(ctx, buyer, model.RoleBuyer, model.TransactionFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(mine) != 1 {
		t.Errorf("buyer list: got %d, want 1", len(mine))
	}

	sellerSide, err := svc.List(ctx, seller, model.RoleProducer, model.TransactionFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sellerSide) != 2 {
		t.Errorf("seller list: got %d, want 2", len(sellerSide))
	}

	all, err := svc.List(ctx, uuid.New(), model.RoleCertifier, model.TransactionFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("certifier list: got %d, want 2", len(all))
	}
}

func TestStatistics(t *testing.T) {
	st := store.NewMemory()
	svc := newTxnService(st)
	buyer, seller := uuid.New(), uuid.New()
	first := seedCredit(t, st, seller, 40, model.CreditStatusActive)
	second := seedCredit(t, st, seller, 60, model.CreditStatusActive)

	svc.CreatePurchase(ctx, buyer, service.CreatePurchaseRequest{CreditID: first.ID, Amount: 100, PaymentMethod: "FREE"})
	svc.CreatePurchase(ctx, buyer, service.CreatePurchaseRequest{CreditID: second.ID, Amount: 300, PaymentMethod: "FREE"})
	svc.CreateRetirementRecord(ctx, buyer, uuid.New(), 25, "retired")

	stats, err := svc.Statistics(ctx, nil, nil)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.Overview.TotalTransactions != 3 {
		t.Errorf("total transactions: got %d, want 3", stats.Overview.TotalTransactions)
	}
	if stats.Overview.TotalAmount != 400 {
		t.Errorf("total amount: got %v, want 400", stats.Overview.TotalAmount)
	}
	if stats.Overview.TotalCredits != 125 {
		t.Errorf("total credits: got %v, want 125", stats.Overview.TotalCredits)
	}
}
