package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/h2trust/hydroledger/internal/eventlog"
	"github.com/h2trust/hydroledger/internal/ledger/model"
)

// MemoryStore is an in-memory, thread-safe Store implementation. It is
// primarily useful for testing and for single-process deployments that do
// not require durable persistence across restarts.
//
// Update works on a deep copy of the state and swaps it in only when the
// update function succeeds, so a failure anywhere in the scope leaves no
// partial mutation behind.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
}

type memState struct {
	batches          map[uuid.UUID]*model.Batch
	batchByNumber    map[string]uuid.UUID
	batchByEvidence  map[string]uuid.UUID
	credits          map[uuid.UUID]*model.Credit
	creditByCreditID map[string]uuid.UUID
	creditByReceipt  map[string]uuid.UUID
	events           []*eventlog.Event
	eventByHash      map[string]int
	txns             map[uuid.UUID]*model.Transaction
	txnByID          map[string]uuid.UUID
}

// NewMemory creates a MemoryStore with an event log initialised at the
// genesis entry.
func NewMemory() *MemoryStore {
	s := &MemoryStore{state: newMemState()}
	return s
}

func newMemState() *memState {
	genesis := eventlog.Genesis()
	return &memState{
		batches:          map[uuid.UUID]*model.Batch{},
		batchByNumber:    map[string]uuid.UUID{},
		batchByEvidence:  map[string]uuid.UUID{},
		credits:          map[uuid.UUID]*model.Credit{},
		creditByCreditID: map[string]uuid.UUID{},
		creditByReceipt:  map[string]uuid.UUID{},
		events:           []*eventlog.Event{genesis},
		eventByHash:      map[string]int{genesis.TransactionHash: 0},
		txns:             map[uuid.UUID]*model.Transaction{},
		txnByID:          map[string]uuid.UUID{},
	}
}

// clone produces a deep copy of the state for an Update scope. Events are
// immutable once appended, so the slice is copied but entries are shared.
func (st *memState) clone() *memState {
	c := &memState{
		batches:          make(map[uuid.UUID]*model.Batch, len(st.batches)),
		batchByNumber:    make(map[string]uuid.UUID, len(st.batchByNumber)),
		batchByEvidence:  make(map[string]uuid.UUID, len(st.batchByEvidence)),
		credits:          make(map[uuid.UUID]*model.Credit, len(st.credits)),
		creditByCreditID: make(map[string]uuid.UUID, len(st.creditByCreditID)),
		creditByReceipt:  make(map[string]uuid.UUID, len(st.creditByReceipt)),
		events:           append([]*eventlog.Event(nil), st.events...),
		eventByHash:      make(map[string]int, len(st.eventByHash)),
		txns:             make(map[uuid.UUID]*model.Transaction, len(st.txns)),
		txnByID:          make(map[string]uuid.UUID, len(st.txnByID)),
	}
	for id, b := range st.batches {
		c.batches[id] = cloneBatch(b)
	}
	for k, v := range st.batchByNumber {
		c.batchByNumber[k] = v
	}
	for k, v := range st.batchByEvidence {
		c.batchByEvidence[k] = v
	}
	for id, cr := range st.credits {
		c.credits[id] = cloneCredit(cr)
	}
	for k, v := range st.creditByCreditID {
		c.creditByCreditID[k] = v
	}
	for k, v := range st.creditByReceipt {
		c.creditByReceipt[k] = v
	}
	for k, v := range st.eventByHash {
		c.eventByHash[k] = v
	}
	for id, t := range st.txns {
		c.txns[id] = cloneTxn(t)
	}
	for k, v := range st.txnByID {
		c.txnByID[k] = v
	}
	return c
}

func cloneBatch(b *model.Batch) *model.Batch {
	cp := *b
	cp.CertificateFiles = append([]string(nil), b.CertificateFiles...)
	if b.Verification != nil {
		v := *b.Verification
		v.AnomalyFlags = append([]string(nil), b.Verification.AnomalyFlags...)
		cp.Verification = &v
	}
	return &cp
}

func cloneCredit(c *model.Credit) *model.Credit {
	cp := *c
	cp.TransferHistory = append([]model.TransferRecord(nil), c.TransferHistory...)
	if c.Retirement != nil {
		r := *c.Retirement
		cp.Retirement = &r
	}
	return &cp
}

func cloneTxn(t *model.Transaction) *model.Transaction {
	cp := *t
	cp.AuditTrail = append([]model.AuditEntry(nil), t.AuditTrail...)
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		cp.CompletedAt = &ts
	}
	return &cp
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.state.clone()
	if err := fn(&memTx{st: staged}); err != nil {
		return err
	}
	s.state = staged
	return nil
}

// GetBatch implements Store.
func (s *MemoryStore) GetBatch(_ context.Context, id uuid.UUID) (*model.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.state.batches[id]
	if !ok {
		return nil, model.ErrNotFound("batch %s not found", id)
	}
	return cloneBatch(b), nil
}

// GetBatchByNumber implements Store.
func (s *MemoryStore) GetBatchByNumber(_ context.Context, number string) (*model.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.state.batchByNumber[number]
	if !ok {
		return nil, model.ErrNotFound("batch %q not found", number)
	}
	return cloneBatch(s.state.batches[id]), nil
}

// ListBatches implements Store. Results are ordered newest first.
func (s *MemoryStore) ListBatches(_ context.Context, f model.BatchFilter) ([]*model.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Batch
	for _, b := range s.state.batches {
		if f.ProducerID != nil && b.ProducerID != *f.ProducerID {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, b.Status) {
			continue
		}
		if f.Region != "" && !strings.Contains(strings.ToLower(b.Region), strings.ToLower(f.Region)) {
			continue
		}
		out = append(out, cloneBatch(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, f.Limit, f.Offset), nil
}

// CountBatchesByStatus implements Store.
func (s *MemoryStore) CountBatchesByStatus(_ context.Context) (map[model.BatchStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := map[model.BatchStatus]int{}
	for _, b := range s.state.batches {
		counts[b.Status]++
	}
	return counts, nil
}

// GetCredit implements Store.
func (s *MemoryStore) GetCredit(_ context.Context, id uuid.UUID) (*model.Credit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.credits[id]
	if !ok {
		return nil, model.ErrNotFound("credit %s not found", id)
	}
	return cloneCredit(c), nil
}

// GetCreditByCreditID implements Store.
func (s *MemoryStore) GetCreditByCreditID(_ context.Context, creditID string) (*model.Credit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.state.creditByCreditID[creditID]
	if !ok {
		return nil, model.ErrNotFound("credit %q not found", creditID)
	}
	return cloneCredit(s.state.credits[id]), nil
}

// ListCredits implements Store. Results are ordered newest first.
func (s *MemoryStore) ListCredits(_ context.Context, f model.CreditFilter) ([]*model.Credit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Credit
	for _, c := range s.state.credits {
		if f.OwnerID != nil && c.OwnerID != *f.OwnerID {
			continue
		}
		if len(f.Statuses) > 0 && !containsCreditStatus(f.Statuses, c.Status) {
			continue
		}
		out = append(out, cloneCredit(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, f.Limit, f.Offset), nil
}

// CountCreditsByStatus implements Store.
func (s *MemoryStore) CountCreditsByStatus(_ context.Context) (map[model.CreditStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := map[model.CreditStatus]int{}
	for _, c := range s.state.credits {
		counts[c.Status]++
	}
	return counts, nil
}

// GetTransaction implements Store.
func (s *MemoryStore) GetTransaction(_ context.Context, id uuid.UUID) (*model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.state.txns[id]
	if !ok {
		return nil, model.ErrNotFound("transaction %s not found", id)
	}
	return cloneTxn(t), nil
}

// ListTransactions implements Store. Results are ordered newest first.
func (s *MemoryStore) ListTransactions(_ context.Context, f model.TransactionFilter) ([]*model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Transaction
	for _, t := range s.state.txns {
		if !matchTxnFilter(t, f) {
			continue
		}
		out = append(out, cloneTxn(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, f.Limit, f.Offset), nil
}

// TransactionStats implements Store.
func (s *MemoryStore) TransactionStats(_ context.Context, from, to *time.Time) (*model.TransactionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &model.TransactionStats{
		ByType:   []model.TransactionTypeStats{},
		ByStatus: []model.TransactionStatusStats{},
	}
	byType := map[model.TransactionType]*model.TransactionTypeStats{}
	byStatus := map[model.TransactionStatus]*model.TransactionStatusStats{}

	for _, t := range s.state.txns {
		if from != nil && t.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && t.CreatedAt.After(*to) {
			continue
		}
		stats.Overview.TotalTransactions++
		stats.Overview.TotalAmount += t.Amount
		stats.Overview.TotalCredits += t.CreditAmount

		ts, ok := byType[t.Type]
		if !ok {
			ts = &model.TransactionTypeStats{Type: t.Type}
			byType[t.Type] = ts
		}
		ts.Count++
		ts.TotalAmount += t.Amount
		ts.TotalCredits += t.CreditAmount

		ss, ok := byStatus[t.Status]
		if !ok {
			ss = &model.TransactionStatusStats{Status: t.Status}
			byStatus[t.Status] = ss
		}
		ss.Count++
		ss.TotalAmount += t.Amount
	}

	if n := stats.Overview.TotalTransactions; n > 0 {
		stats.Overview.AvgAmount = stats.Overview.TotalAmount / float64(n)
		stats.Overview.AvgCredits = stats.Overview.TotalCredits / float64(n)
	}
	for _, ts := range byType {
		stats.ByType = append(stats.ByType, *ts)
	}
	for _, ss := range byStatus {
		stats.ByStatus = append(stats.ByStatus, *ss)
	}
	sort.Slice(stats.ByType, func(i, j int) bool { return stats.ByType[i].Type < stats.ByType[j].Type })
	sort.Slice(stats.ByStatus, func(i, j int) bool { return stats.ByStatus[i].Status < stats.ByStatus[j].Status })
	return stats, nil
}

// Events implements Store.
func (s *MemoryStore) Events() eventlog.Log {
	return &memLog{s: s}
}

// memLog is the read-only event log view over the store's state.
type memLog struct {
	s *MemoryStore
}

func (l *memLog) Get(_ context.Context, index int) (*eventlog.Event, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()
	if index < 0 || index >= len(l.s.state.events) {
		return nil, model.ErrNotFound("event index %d out of range", index)
	}
	return l.s.state.events[index], nil
}

func (l *memLog) Len(_ context.Context) (int, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()
	return len(l.s.state.events), nil
}

func (l *memLog) ListForCredit(_ context.Context, creditID uuid.UUID) ([]*eventlog.Event, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()
	out := []*eventlog.Event{}
	for _, e := range l.s.state.events {
		if e.CreditID == creditID && e.Index > 0 {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *memLog) GetByTransactionHash(_ context.Context, hash string) (*eventlog.Event, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()
	idx, ok := l.s.state.eventByHash[hash]
	if !ok {
		return nil, model.ErrNotFound("event %q not found", hash)
	}
	return l.s.state.events[idx], nil
}

func (l *memLog) Root(_ context.Context) (string, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()
	return l.s.state.events[len(l.s.state.events)-1].Hash, nil
}

func (l *memLog) Verify(_ context.Context) error {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()
	return eventlog.VerifyChain(l.s.state.events)
}

// memTx applies mutations to a staged state copy.
type memTx struct {
	st *memState
}

func (tx *memTx) GetBatch(id uuid.UUID) (*model.Batch, error) {
	b, ok := tx.st.batches[id]
	if !ok {
		return nil, model.ErrNotFound("batch %s not found", id)
	}
	return b, nil
}

func (tx *memTx) GetBatchByNumber(number string) (*model.Batch, error) {
	id, ok := tx.st.batchByNumber[number]
	if !ok {
		return nil, model.ErrNotFound("batch %q not found", number)
	}
	return tx.st.batches[id], nil
}

func (tx *memTx) GetBatchByEvidenceHash(hash string) (*model.Batch, error) {
	id, ok := tx.st.batchByEvidence[hash]
	if !ok {
		return nil, model.ErrNotFound("batch with evidence hash %q not found", hash)
	}
	return tx.st.batches[id], nil
}

func (tx *memTx) InsertBatch(b *model.Batch) error {
	if _, exists := tx.st.batchByNumber[b.BatchNumber]; exists {
		return model.ErrDuplicateKey("batch number %q already exists", b.BatchNumber)
	}
	if _, exists := tx.st.batchByEvidence[b.EvidenceHash]; exists {
		return model.ErrDuplicateKey("evidence hash collision for batch %q", b.BatchNumber)
	}
	tx.st.batches[b.ID] = b
	tx.st.batchByNumber[b.BatchNumber] = b.ID
	tx.st.batchByEvidence[b.EvidenceHash] = b.ID
	return nil
}

func (tx *memTx) UpdateBatch(b *model.Batch) error {
	if _, ok := tx.st.batches[b.ID]; !ok {
		return model.ErrNotFound("batch %s not found", b.ID)
	}
	b.UpdatedAt = time.Now().UTC()
	tx.st.batches[b.ID] = b
	return nil
}

func (tx *memTx) GetCredit(id uuid.UUID) (*model.Credit, error) {
	c, ok := tx.st.credits[id]
	if !ok {
		return nil, model.ErrNotFound("credit %s not found", id)
	}
	return c, nil
}

func (tx *memTx) InsertCredit(c *model.Credit) error {
	if _, exists := tx.st.creditByCreditID[c.CreditID]; exists {
		return model.ErrDuplicateKey("credit ID %q already exists", c.CreditID)
	}
	if err := tx.indexReceipt(c); err != nil {
		return err
	}
	tx.st.credits[c.ID] = c
	tx.st.creditByCreditID[c.CreditID] = c.ID
	return nil
}

func (tx *memTx) UpdateCredit(c *model.Credit) error {
	if _, ok := tx.st.credits[c.ID]; !ok {
		return model.ErrNotFound("credit %s not found", c.ID)
	}
	if err := tx.indexReceipt(c); err != nil {
		return err
	}
	c.UpdatedAt = time.Now().UTC()
	tx.st.credits[c.ID] = c
	return nil
}

// indexReceipt enforces retirement receipt uniqueness across all credits.
func (tx *memTx) indexReceipt(c *model.Credit) error {
	if c.Retirement == nil {
		return nil
	}
	if owner, exists := tx.st.creditByReceipt[c.Retirement.ReceiptID]; exists && owner != c.ID {
		return model.ErrDuplicateKey("retirement receipt %q already exists", c.Retirement.ReceiptID)
	}
	tx.st.creditByReceipt[c.Retirement.ReceiptID] = c.ID
	return nil
}

func (tx *memTx) AppendEvent(e *eventlog.Event) error {
	if _, exists := tx.st.eventByHash[e.TransactionHash]; exists {
		return model.ErrDuplicateKey("event with transaction hash %q already exists", e.TransactionHash)
	}
	prev := tx.st.events[len(tx.st.events)-1]
	eventlog.Chain(e, prev)
	tx.st.events = append(tx.st.events, e)
	tx.st.eventByHash[e.TransactionHash] = e.Index
	return nil
}

func (tx *memTx) GetTransaction(id uuid.UUID) (*model.Transaction, error) {
	t, ok := tx.st.txns[id]
	if !ok {
		return nil, model.ErrNotFound("transaction %s not found", id)
	}
	return t, nil
}

func (tx *memTx) InsertTransaction(t *model.Transaction) error {
	if _, exists := tx.st.txnByID[t.TransactionID]; exists {
		return model.ErrDuplicateKey("transaction ID %q already exists", t.TransactionID)
	}
	tx.st.txns[t.ID] = t
	tx.st.txnByID[t.TransactionID] = t.ID
	return nil
}

func (tx *memTx) UpdateTransaction(t *model.Transaction) error {
	if _, ok := tx.st.txns[t.ID]; !ok {
		return model.ErrNotFound("transaction %s not found", t.ID)
	}
	t.UpdatedAt = time.Now().UTC()
	tx.st.txns[t.ID] = t
	return nil
}

func containsStatus(ss []model.BatchStatus, s model.BatchStatus) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func containsCreditStatus(ss []model.CreditStatus, s model.CreditStatus) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func matchTxnFilter(t *model.Transaction, f model.TransactionFilter) bool {
	if f.Party != nil {
		fromMatch := t.FromUser != nil && *t.FromUser == *f.Party
		toMatch := t.ToUser != nil && *t.ToUser == *f.Party
		if !fromMatch && !toMatch {
			return false
		}
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.FromDate != nil && t.CreatedAt.Before(*f.FromDate) {
		return false
	}
	if f.ToDate != nil && t.CreatedAt.After(*f.ToDate) {
		return false
	}
	return true
}

func paginate[T any](items []T, limit, offset int) []T {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
