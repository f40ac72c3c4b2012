// Package store is the persistence boundary for the ledger. Reads go through
// Store directly; every mutation goes through Store.Update, which runs the
// given function inside a serialized read-modify-write scope and applies its
// writes atomically: all of them iff the function returns nil, none
// otherwise. That single discipline is what prevents two concurrent transfers
// from double-spending a credit's supply and what makes minting (credit
// insert + MINT event + batch transition) all-or-nothing.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/h2trust/hydroledger/internal/eventlog"
	"github.com/h2trust/hydroledger/internal/ledger/model"
)

// Store provides reads over the four ledger collections and the Update entry
// point for mutations. Read operations may observe state concurrently with
// writers; no read-your-writes guarantee is given outside an Update scope.
type Store interface {
	GetBatch(ctx context.Context, id uuid.UUID) (*model.Batch, error)
	GetBatchByNumber(ctx context.Context, number string) (*model.Batch, error)
	ListBatches(ctx context.Context, f model.BatchFilter) ([]*model.Batch, error)
	CountBatchesByStatus(ctx context.Context) (map[model.BatchStatus]int, error)

	GetCredit(ctx context.Context, id uuid.UUID) (*model.Credit, error)
	GetCreditByCreditID(ctx context.Context, creditID string) (*model.Credit, error)
	ListCredits(ctx context.Context, f model.CreditFilter) ([]*model.Credit, error)
	CountCreditsByStatus(ctx context.Context) (map[model.CreditStatus]int, error)

	GetTransaction(ctx context.Context, id uuid.UUID) (*model.Transaction, error)
	ListTransactions(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, error)
	TransactionStats(ctx context.Context, from, to *time.Time) (*model.TransactionStats, error)

	// Events returns the read side of the append-only event log.
	Events() eventlog.Log

	// Update runs fn with exclusive write access. Writes made through the Tx
	// become visible only if fn returns nil; any error discards all of them.
	Update(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the mutation surface available inside an Update scope. Entities read
// through a Tx reflect all writes made earlier in the same scope.
type Tx interface {
	GetBatch(id uuid.UUID) (*model.Batch, error)
	GetBatchByNumber(number string) (*model.Batch, error)
	GetBatchByEvidenceHash(hash string) (*model.Batch, error)
	// InsertBatch fails with DuplicateKey when the batch number or evidence
	// hash is already taken.
	InsertBatch(b *model.Batch) error
	UpdateBatch(b *model.Batch) error

	GetCredit(id uuid.UUID) (*model.Credit, error)
	// InsertCredit fails with DuplicateKey when the generated credit ID
	// collides with an existing one.
	InsertCredit(c *model.Credit) error
	UpdateCredit(c *model.Credit) error

	// AppendEvent chains e onto the log tail (assigning index, prev hash, and
	// entry hash) and inserts it. Fails with DuplicateKey when an event with
	// the same transaction hash already exists.
	AppendEvent(e *eventlog.Event) error

	GetTransaction(id uuid.UUID) (*model.Transaction, error)
	InsertTransaction(t *model.Transaction) error
	UpdateTransaction(t *model.Transaction) error
}
