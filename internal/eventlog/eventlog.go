// Package eventlog defines the append-only provenance log for credit
// lifecycle actions. Every MINT/TRANSFER/RETIRE mutation appends exactly one
// Event; events are immutable once written and chain to the previous entry so
// the whole log is tamper-evident.
//
// Appends happen inside the same store transaction as the credit mutation
// they record (see internal/ledger/store), which is what makes minting
// atomic. This package owns the event shape, the hash rules, and the
// read/verify interface.
package eventlog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenesisHash is the canonical well-known hash of the genesis entry. It is
// the trust anchor of the chain; all subsequent entry hashes chain from this
// constant rather than from a computed value.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// EventType classifies a credit lifecycle action.
type EventType string

const (
	EventMint     EventType = "MINT"
	EventTransfer EventType = "TRANSFER"
	EventRetire   EventType = "RETIRE"
	// eventGenesis marks the chain anchor entry; never produced by a mutation.
	eventGenesis EventType = "GENESIS"
)

// Status is the confirmation state of an event. Ledger mutations write
// confirmed events; pending/failed exist for imported or replayed records.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Event is a single immutable provenance record.
type Event struct {
	Index           int               `json:"index"`
	Timestamp       time.Time         `json:"timestamp"`
	CreditID        uuid.UUID         `json:"credit_id"`
	EventType       EventType         `json:"event_type"`
	FromUser        uuid.UUID         `json:"from_user"`
	ToUser          uuid.UUID         `json:"to_user"`
	Amount          float64           `json:"amount"`
	Details         map[string]string `json:"details"`
	Status          Status            `json:"status"`
	TransactionHash string            `json:"transaction_hash"`
	PrevHash        string            `json:"prev_hash"`
	Hash            string            `json:"hash"`
}

// Log is the read side of the event log. Implementations are backed by the
// same storage as the ledger store that appends to them.
type Log interface {
	// Get returns the entry at the given zero-based index.
	Get(ctx context.Context, index int) (*Event, error)

	// Len returns the total number of entries (including the genesis entry).
	Len(ctx context.Context) (int, error)

	// ListForCredit returns the events recorded against one credit in
	// chronological order, oldest first.
	ListForCredit(ctx context.Context, creditID uuid.UUID) ([]*Event, error)

	// GetByTransactionHash resolves a single event by its content fingerprint.
	GetByTransactionHash(ctx context.Context, hash string) (*Event, error)

	// Root returns the hash of the most recent entry (the chain tip).
	Root(ctx context.Context) (string, error)

	// Verify walks the entire chain and checks hash consistency.
	Verify(ctx context.Context) error
}

// Genesis returns the chain anchor entry at index 0.
func Genesis() *Event {
	return &Event{
		Index:           0,
		Timestamp:       time.Now().UTC(),
		EventType:       eventGenesis,
		Status:          StatusConfirmed,
		TransactionHash: GenesisHash,
		PrevHash:        GenesisHash,
		Hash:            GenesisHash, // well-known constant, not computed
	}
}

// ChainHash computes the deterministic entry hash over an event's fields.
// Must never be called on the genesis entry (index 0).
func ChainHash(e *Event) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s|%s|%s|%v|%s|%s",
		e.Index, e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.CreditID, e.EventType, e.FromUser, e.ToUser, e.Amount,
		e.TransactionHash, e.PrevHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}

// Chain links e onto prev, assigning its index, prev hash, and entry hash.
func Chain(e *Event, prev *Event) {
	e.Index = prev.Index + 1
	e.PrevHash = prev.Hash
	e.Hash = ChainHash(e)
}

// VerifyChain validates an ordered slice of events as an intact chain
// anchored at the genesis constant.
func VerifyChain(events []*Event) error {
	for i, curr := range events {
		if i == 0 {
			if curr.Hash != GenesisHash {
				return fmt.Errorf("genesis entry has wrong hash: got %q", curr.Hash)
			}
			continue
		}
		prev := events[i-1]
		if curr.PrevHash != prev.Hash {
			return fmt.Errorf("hash chain broken at index %d", curr.Index)
		}
		if curr.Hash != ChainHash(curr) {
			return fmt.Errorf("entry %d has invalid hash", curr.Index)
		}
	}
	return nil
}
