package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/h2trust/hydroledger/internal/eventlog"
	"github.com/h2trust/hydroledger/internal/ledger/model"
	"go.uber.org/zap"
)

// advisoryLockKey is a stable PostgreSQL advisory lock key used to serialise
// Update scopes across all ledger instances. The value is arbitrary but must
// be consistent everywhere the ledger runs.
const advisoryLockKey = int64(7_420_130_982)

// PostgresStore persists the ledger to PostgreSQL. Mutations run inside a
// single transaction guarded by a transaction-scoped advisory lock, giving
// the single-logical-writer discipline the ledger requires.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres creates a PostgresStore backed by the given connection pool.
func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Update implements Store. The advisory lock is released automatically when
// the transaction commits or rolls back.
func (s *PostgresStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}

	if err := fn(&pgTx{ctx: ctx, tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

// ── Batch reads ──────────────────────────────────────────────────────────────

const batchCols = `id, producer_id, batch_number, kg_produced, kwh_used, region,
	production_date, certificate_files, status, evidence_hash,
	verification_result, rejection_reason, notes, created_at, updated_at`

// GetBatch implements Store.
func (s *PostgresStore) GetBatch(ctx context.Context, id uuid.UUID) (*model.Batch, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+batchCols+` FROM batches WHERE id = $1`, id)
	return scanBatch(row, id.String())
}

// GetBatchByNumber implements Store.
func (s *PostgresStore) GetBatchByNumber(ctx context.Context, number string) (*model.Batch, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+batchCols+` FROM batches WHERE batch_number = $1`, number)
	return scanBatch(row, number)
}

// ListBatches implements Store. Results are ordered newest first.
func (s *PostgresStore) ListBatches(ctx context.Context, f model.BatchFilter) ([]*model.Batch, error) {
	limit, offset := pageBounds(f.Limit, f.Offset)
	statuses := make([]string, 0, len(f.Statuses))
	for _, st := range f.Statuses {
		statuses = append(statuses, string(st))
	}
	var producer any
	if f.ProducerID != nil {
		producer = *f.ProducerID
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+batchCols+` FROM batches
		WHERE ($1::uuid IS NULL OR producer_id = $1)
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		  AND ($3 = '' OR region ILIKE '%' || $3 || '%')
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5`,
		producer, statuses, f.Region, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var out []*model.Batch
	for rows.Next() {
		b, err := scanBatch(rows, "")
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// CountBatchesByStatus implements Store.
func (s *PostgresStore) CountBatchesByStatus(ctx context.Context) (map[model.BatchStatus]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM batches GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count batches: %w", err)
	}
	defer rows.Close()

	counts := map[model.BatchStatus]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[model.BatchStatus(status)] = n
	}
	return counts, rows.Err()
}

// ── Credit reads ─────────────────────────────────────────────────────────────

const creditCols = `id, credit_id, batch_id, supply, owner_id, status,
	transfer_history, retirement_receipt, created_at, updated_at`

// GetCredit implements Store.
func (s *PostgresStore) GetCredit(ctx context.Context, id uuid.UUID) (*model.Credit, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+creditCols+` FROM credits WHERE id = $1`, id)
	return scanCredit(row, id.String())
}

// GetCreditByCreditID implements Store.
func (s *PostgresStore) GetCreditByCreditID(ctx context.Context, creditID string) (*model.Credit, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+creditCols+` FROM credits WHERE credit_id = $1`, creditID)
	return scanCredit(row, creditID)
}

// ListCredits implements Store. Results are ordered newest first.
func (s *PostgresStore) ListCredits(ctx context.Context, f model.CreditFilter) ([]*model.Credit, error) {
	limit, offset := pageBounds(f.Limit, f.Offset)
	statuses := make([]string, 0, len(f.Statuses))
	for _, st := range f.Statuses {
		statuses = append(statuses, string(st))
	}
	var owner any
	if f.OwnerID != nil {
		owner = *f.OwnerID
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+creditCols+` FROM credits
		WHERE ($1::uuid IS NULL OR owner_id = $1)
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		owner, statuses, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list credits: %w", err)
	}
	defer rows.Close()

	var out []*model.Credit
	for rows.Next() {
		c, err := scanCredit(rows, "")
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountCreditsByStatus implements Store.
func (s *PostgresStore) CountCreditsByStatus(ctx context.Context) (map[model.CreditStatus]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM credits GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count credits: %w", err)
	}
	defer rows.Close()

	counts := map[model.CreditStatus]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[model.CreditStatus(status)] = n
	}
	return counts, rows.Err()
}

// ── Transaction reads ────────────────────────────────────────────────────────

const txnCols = `id, transaction_id, type, from_user, to_user, batch_id, credit_id,
	amount, currency, credit_amount, status, payment_method, description, notes,
	created_at, updated_at, completed_at, audit_trail`

// GetTransaction implements Store.
func (s *PostgresStore) GetTransaction(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+txnCols+` FROM transactions WHERE id = $1`, id)
	return scanTxn(row, id.String())
}

// ListTransactions implements Store. Results are ordered newest first.
func (s *PostgresStore) ListTransactions(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, error) {
	limit, offset := pageBounds(f.Limit, f.Offset)
	var party any
	if f.Party != nil {
		party = *f.Party
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+txnCols+` FROM transactions
		WHERE ($1::uuid IS NULL OR from_user = $1 OR to_user = $1)
		  AND ($2 = '' OR type = $2)
		  AND ($3 = '' OR status = $3)
		  AND ($4::timestamptz IS NULL OR created_at >= $4)
		  AND ($5::timestamptz IS NULL OR created_at <= $5)
		ORDER BY created_at DESC
		LIMIT $6 OFFSET $7`,
		party, string(f.Type), string(f.Status), f.FromDate, f.ToDate, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []*model.Transaction
	for rows.Next() {
		t, err := scanTxn(rows, "")
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TransactionStats implements Store.
func (s *PostgresStore) TransactionStats(ctx context.Context, from, to *time.Time) (*model.TransactionStats, error) {
	stats := &model.TransactionStats{
		ByType:   []model.TransactionTypeStats{},
		ByStatus: []model.TransactionStatusStats{},
	}

	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(amount), 0),
		       COALESCE(SUM(credit_amount), 0),
		       COALESCE(AVG(amount), 0),
		       COALESCE(AVG(credit_amount), 0)
		FROM transactions
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at <= $2)`,
		from, to,
	).Scan(
		&stats.Overview.TotalTransactions, &stats.Overview.TotalAmount,
		&stats.Overview.TotalCredits, &stats.Overview.AvgAmount,
		&stats.Overview.AvgCredits,
	)
	if err != nil {
		return nil, fmt.Errorf("transaction overview: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT type, COUNT(*), COALESCE(SUM(amount), 0), COALESCE(SUM(credit_amount), 0)
		FROM transactions
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at <= $2)
		GROUP BY type ORDER BY type`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("transaction stats by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var row model.TransactionTypeStats
		if err := rows.Scan(&row.Type, &row.Count, &row.TotalAmount, &row.TotalCredits); err != nil {
			return nil, err
		}
		stats.ByType = append(stats.ByType, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows2, err := s.pool.Query(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at <= $2)
		GROUP BY status ORDER BY status`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("transaction stats by status: %w", err)
	}
	defer rows2.Close()
	for rows2.Next() {
		var row model.TransactionStatusStats
		if err := rows2.Scan(&row.Status, &row.Count, &row.TotalAmount); err != nil {
			return nil, err
		}
		stats.ByStatus = append(stats.ByStatus, row)
	}
	return stats, rows2.Err()
}

// Events implements Store.
func (s *PostgresStore) Events() eventlog.Log {
	return &pgLog{pool: s.pool}
}

// ── Event log (read side) ────────────────────────────────────────────────────

const eventCols = `idx, timestamp, credit_id, event_type, from_user, to_user,
	amount, details, status, transaction_hash, prev_hash, hash`

type pgLog struct {
	pool *pgxpool.Pool
}

func (l *pgLog) Get(ctx context.Context, index int) (*eventlog.Event, error) {
	row := l.pool.QueryRow(ctx, `SELECT `+eventCols+` FROM credit_events WHERE idx = $1`, index)
	return scanEvent(row, fmt.Sprintf("index %d", index))
}

func (l *pgLog) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.pool.QueryRow(ctx, `SELECT COUNT(*) FROM credit_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

func (l *pgLog) ListForCredit(ctx context.Context, creditID uuid.UUID) ([]*eventlog.Event, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT `+eventCols+` FROM credit_events WHERE credit_id = $1 AND idx > 0 ORDER BY idx ASC`,
		creditID,
	)
	if err != nil {
		return nil, fmt.Errorf("list events for credit: %w", err)
	}
	defer rows.Close()

	out := []*eventlog.Event{}
	for rows.Next() {
		e, err := scanEvent(rows, "")
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (l *pgLog) GetByTransactionHash(ctx context.Context, hash string) (*eventlog.Event, error) {
	row := l.pool.QueryRow(ctx, `SELECT `+eventCols+` FROM credit_events WHERE transaction_hash = $1`, hash)
	return scanEvent(row, hash)
}

func (l *pgLog) Root(ctx context.Context) (string, error) {
	var hash string
	if err := l.pool.QueryRow(ctx,
		`SELECT hash FROM credit_events ORDER BY idx DESC LIMIT 1`,
	).Scan(&hash); err != nil {
		return "", fmt.Errorf("get event log root: %w", err)
	}
	return hash, nil
}

// Verify streams all rows ordered by idx and validates the hash chain.
// O(n) in log length; may be slow for very large logs.
func (l *pgLog) Verify(ctx context.Context) error {
	rows, err := l.pool.Query(ctx, `SELECT `+eventCols+` FROM credit_events ORDER BY idx ASC`)
	if err != nil {
		return fmt.Errorf("query event log: %w", err)
	}
	defer rows.Close()

	var chain []*eventlog.Event
	for rows.Next() {
		e, err := scanEvent(rows, "")
		if err != nil {
			return err
		}
		chain = append(chain, e)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return eventlog.VerifyChain(chain)
}

// ── Mutations ────────────────────────────────────────────────────────────────

type pgTx struct {
	ctx context.Context
	tx  pgx.Tx
}

func (t *pgTx) GetBatch(id uuid.UUID) (*model.Batch, error) {
	row := t.tx.QueryRow(t.ctx, `SELECT `+batchCols+` FROM batches WHERE id = $1`, id)
	return scanBatch(row, id.String())
}

func (t *pgTx) GetBatchByNumber(number string) (*model.Batch, error) {
	row := t.tx.QueryRow(t.ctx, `SELECT `+batchCols+` FROM batches WHERE batch_number = $1`, number)
	return scanBatch(row, number)
}

func (t *pgTx) GetBatchByEvidenceHash(hash string) (*model.Batch, error) {
	row := t.tx.QueryRow(t.ctx, `SELECT `+batchCols+` FROM batches WHERE evidence_hash = $1`, hash)
	return scanBatch(row, hash)
}

func (t *pgTx) InsertBatch(b *model.Batch) error {
	files, err := json.Marshal(b.CertificateFiles)
	if err != nil {
		return fmt.Errorf("marshal certificate files: %w", err)
	}
	verification, err := marshalNullable(b.Verification)
	if err != nil {
		return fmt.Errorf("marshal verification result: %w", err)
	}

	_, err = t.tx.Exec(t.ctx, `
		INSERT INTO batches (`+batchCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		b.ID, b.ProducerID, b.BatchNumber, b.KgProduced, b.KwhUsed, b.Region,
		b.ProductionDate, files, b.Status, b.EvidenceHash,
		verification, b.RejectionReason, b.Notes, b.CreatedAt, b.UpdatedAt,
	)
	return mapDuplicate(err, "batch %q", b.BatchNumber)
}

func (t *pgTx) UpdateBatch(b *model.Batch) error {
	verification, err := marshalNullable(b.Verification)
	if err != nil {
		return fmt.Errorf("marshal verification result: %w", err)
	}
	b.UpdatedAt = time.Now().UTC()

	tag, err := t.tx.Exec(t.ctx, `
		UPDATE batches
		SET status = $2, verification_result = $3, rejection_reason = $4,
		    notes = $5, updated_at = $6
		WHERE id = $1`,
		b.ID, b.Status, verification, b.RejectionReason, b.Notes, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound("batch %s not found", b.ID)
	}
	return nil
}

func (t *pgTx) GetCredit(id uuid.UUID) (*model.Credit, error) {
	row := t.tx.QueryRow(t.ctx, `SELECT `+creditCols+` FROM credits WHERE id = $1`, id)
	return scanCredit(row, id.String())
}

func (t *pgTx) InsertCredit(c *model.Credit) error {
	history, err := json.Marshal(c.TransferHistory)
	if err != nil {
		return fmt.Errorf("marshal transfer history: %w", err)
	}
	receipt, err := marshalNullable(c.Retirement)
	if err != nil {
		return fmt.Errorf("marshal retirement receipt: %w", err)
	}

	_, err = t.tx.Exec(t.ctx, `
		INSERT INTO credits (`+creditCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.CreditID, c.BatchID, c.Supply, c.OwnerID, c.Status,
		history, receipt, c.CreatedAt, c.UpdatedAt,
	)
	return mapDuplicate(err, "credit %q", c.CreditID)
}

func (t *pgTx) UpdateCredit(c *model.Credit) error {
	history, err := json.Marshal(c.TransferHistory)
	if err != nil {
		return fmt.Errorf("marshal transfer history: %w", err)
	}
	receipt, err := marshalNullable(c.Retirement)
	if err != nil {
		return fmt.Errorf("marshal retirement receipt: %w", err)
	}
	c.UpdatedAt = time.Now().UTC()

	tag, err := t.tx.Exec(t.ctx, `
		UPDATE credits
		SET supply = $2, owner_id = $3, status = $4, transfer_history = $5,
		    retirement_receipt = $6, updated_at = $7
		WHERE id = $1`,
		c.ID, c.Supply, c.OwnerID, c.Status, history, receipt, c.UpdatedAt,
	)
	if err != nil {
		// The unique receipt index can reject the update.
		if mapped := mapDuplicate(err, "retirement receipt for credit %q", c.CreditID); model.IsKind(mapped, model.KindDuplicateKey) {
			return mapped
		}
		return fmt.Errorf("update credit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound("credit %s not found", c.ID)
	}
	return nil
}

func (t *pgTx) AppendEvent(e *eventlog.Event) error {
	// Read the current chain tail; the advisory lock held by the enclosing
	// Update scope serialises appends.
	var prev eventlog.Event
	if err := t.tx.QueryRow(t.ctx,
		`SELECT idx, hash FROM credit_events ORDER BY idx DESC LIMIT 1`,
	).Scan(&prev.Index, &prev.Hash); err != nil {
		return fmt.Errorf("read event log tail: %w", err)
	}
	eventlog.Chain(e, &prev)

	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("marshal event details: %w", err)
	}

	_, err = t.tx.Exec(t.ctx, `
		INSERT INTO credit_events (`+eventCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.Index, e.Timestamp, e.CreditID, e.EventType, e.FromUser, e.ToUser,
		e.Amount, details, e.Status, e.TransactionHash, e.PrevHash, e.Hash,
	)
	return mapDuplicate(err, "event %q", e.TransactionHash)
}

func (t *pgTx) GetTransaction(id uuid.UUID) (*model.Transaction, error) {
	row := t.tx.QueryRow(t.ctx, `SELECT `+txnCols+` FROM transactions WHERE id = $1`, id)
	return scanTxn(row, id.String())
}

func (t *pgTx) InsertTransaction(txn *model.Transaction) error {
	audit, err := json.Marshal(txn.AuditTrail)
	if err != nil {
		return fmt.Errorf("marshal audit trail: %w", err)
	}

	_, err = t.tx.Exec(t.ctx, `
		INSERT INTO transactions (`+txnCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		txn.ID, txn.TransactionID, txn.Type, txn.FromUser, txn.ToUser,
		txn.BatchID, txn.CreditID, txn.Amount, txn.Currency, txn.CreditAmount,
		txn.Status, txn.PaymentMethod, txn.Description, txn.Notes,
		txn.CreatedAt, txn.UpdatedAt, txn.CompletedAt, audit,
	)
	return mapDuplicate(err, "transaction %q", txn.TransactionID)
}

func (t *pgTx) UpdateTransaction(txn *model.Transaction) error {
	audit, err := json.Marshal(txn.AuditTrail)
	if err != nil {
		return fmt.Errorf("marshal audit trail: %w", err)
	}
	txn.UpdatedAt = time.Now().UTC()

	tag, err := t.tx.Exec(t.ctx, `
		UPDATE transactions
		SET status = $2, completed_at = $3, audit_trail = $4, updated_at = $5
		WHERE id = $1`,
		txn.ID, txn.Status, txn.CompletedAt, audit, txn.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound("transaction %s not found", txn.ID)
	}
	return nil
}

// ── Scan helpers ─────────────────────────────────────────────────────────────

func scanBatch(row pgx.Row, ref string) (*model.Batch, error) {
	var b model.Batch
	var files, verification []byte
	err := row.Scan(
		&b.ID, &b.ProducerID, &b.BatchNumber, &b.KgProduced, &b.KwhUsed,
		&b.Region, &b.ProductionDate, &files, &b.Status, &b.EvidenceHash,
		&verification, &b.RejectionReason, &b.Notes, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound("batch %s not found", ref)
		}
		return nil, fmt.Errorf("scan batch: %w", err)
	}
	if err := json.Unmarshal(files, &b.CertificateFiles); err != nil {
		return nil, fmt.Errorf("decode certificate files: %w", err)
	}
	if len(verification) > 0 {
		b.Verification = &model.VerificationResult{}
		if err := json.Unmarshal(verification, b.Verification); err != nil {
			return nil, fmt.Errorf("decode verification result: %w", err)
		}
	}
	return &b, nil
}

func scanCredit(row pgx.Row, ref string) (*model.Credit, error) {
	var c model.Credit
	var history, receipt []byte
	err := row.Scan(
		&c.ID, &c.CreditID, &c.BatchID, &c.Supply, &c.OwnerID, &c.Status,
		&history, &receipt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound("credit %s not found", ref)
		}
		return nil, fmt.Errorf("scan credit: %w", err)
	}
	if err := json.Unmarshal(history, &c.TransferHistory); err != nil {
		return nil, fmt.Errorf("decode transfer history: %w", err)
	}
	if len(receipt) > 0 {
		c.Retirement = &model.RetirementReceipt{}
		if err := json.Unmarshal(receipt, c.Retirement); err != nil {
			return nil, fmt.Errorf("decode retirement receipt: %w", err)
		}
	}
	return &c, nil
}

func scanTxn(row pgx.Row, ref string) (*model.Transaction, error) {
	var t model.Transaction
	var audit []byte
	err := row.Scan(
		&t.ID, &t.TransactionID, &t.Type, &t.FromUser, &t.ToUser,
		&t.BatchID, &t.CreditID, &t.Amount, &t.Currency, &t.CreditAmount,
		&t.Status, &t.PaymentMethod, &t.Description, &t.Notes,
		&t.CreatedAt, &t.UpdatedAt, &t.CompletedAt, &audit,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound("transaction %s not found", ref)
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	if err := json.Unmarshal(audit, &t.AuditTrail); err != nil {
		return nil, fmt.Errorf("decode audit trail: %w", err)
	}
	return &t, nil
}

func scanEvent(row pgx.Row, ref string) (*eventlog.Event, error) {
	var e eventlog.Event
	var details []byte
	err := row.Scan(
		&e.Index, &e.Timestamp, &e.CreditID, &e.EventType, &e.FromUser,
		&e.ToUser, &e.Amount, &details, &e.Status, &e.TransactionHash,
		&e.PrevHash, &e.Hash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound("event %s not found", ref)
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	if err := json.Unmarshal(details, &e.Details); err != nil {
		return nil, fmt.Errorf("decode event details: %w", err)
	}
	return &e, nil
}

func marshalNullable(v any) ([]byte, error) {
	switch val := v.(type) {
	case *model.VerificationResult:
		if val == nil {
			return nil, nil
		}
	case *model.RetirementReceipt:
		if val == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

// mapDuplicate converts a unique-violation (23505) into a DuplicateKey
// domain error; other errors pass through wrapped.
func mapDuplicate(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return model.ErrDuplicateKey(format+": uniqueness violated", args...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
