package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/ledgerstack/predict-engine/internal/models"
)

// LedgerStore is an embedded sqlite implementation of HistoryProvider, used
// when the engine runs without an upstream accounting service (local
// deployments and the backtest CLI). Amounts are stored as text to preserve
// decimal precision.
type LedgerStore struct {
	db *sql.DB
}

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS ledger_entries (
	id              TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	client_id       TEXT NOT NULL DEFAULT '',
	occurred_at     TIMESTAMP NOT NULL,
	amount          TEXT NOT NULL,
	category        TEXT NOT NULL DEFAULT '',
	description     TEXT NOT NULL DEFAULT '',
	channel         TEXT NOT NULL DEFAULT '',
	source          TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_ledger_org_time ON ledger_entries (organization_id, occurred_at);
`

// OpenLedgerStore opens (and if needed initialises) the sqlite ledger at
// path.
func OpenLedgerStore(path string) (*LedgerStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	if _, err := db.Exec(ledgerSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init ledger schema: %w", err)
	}
	return &LedgerStore{db: db}, nil
}

// Close releases the database handle.
func (s *LedgerStore) Close() error {
	return s.db.Close()
}

// Insert adds ledger entries for an organization.
func (s *LedgerStore) Insert(ctx context.Context, organizationID, clientID string, txns []models.Transaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO ledger_entries
		(id, organization_id, client_id, occurred_at, amount, category, description, channel, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, t := range txns {
		if _, err := stmt.ExecContext(ctx, t.ID, organizationID, clientID, t.Timestamp.UTC(),
			t.Amount.String(), t.Category, t.Description, t.Channel, "ledger"); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert ledger entry %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

// FetchSeries aggregates ledger entries into an ordered daily series for the
// organization, optionally restricted to a client and category.
func (s *LedgerStore) FetchSeries(ctx context.Context, organizationID, clientID, category string) ([]models.TimeSeriesPoint, error) {
	query := `SELECT occurred_at, amount, category, source FROM ledger_entries
		WHERE organization_id = ?`
	args := []any{organizationID}
	if clientID != "" {
		query += ` AND client_id = ?`
		args = append(args, clientID)
	}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY occurred_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger series: %w", err)
	}
	defer rows.Close()

	var points []models.TimeSeriesPoint
	for rows.Next() {
		var (
			occurredAt  time.Time
			amountText  string
			rowCategory string
			rowSource   string
		)
		if err := rows.Scan(&occurredAt, &amountText, &rowCategory, &rowSource); err != nil {
			return nil, err
		}
		amount, err := decimal.NewFromString(amountText)
		if err != nil {
			return nil, fmt.Errorf("ledger holds bad amount %q: %w", amountText, err)
		}
		points = append(points, models.TimeSeriesPoint{
			Timestamp: occurredAt,
			Amount:    amount,
			Category:  rowCategory,
			Source:    rowSource,
		})
	}
	return points, rows.Err()
}

// FetchTransactions returns individual ledger entries since the given time.
func (s *LedgerStore) FetchTransactions(ctx context.Context, organizationID, clientID string, since time.Time) ([]models.Transaction, error) {
	query := `SELECT id, occurred_at, amount, category, description, channel FROM ledger_entries
		WHERE organization_id = ? AND occurred_at >= ?`
	args := []any{organizationID, since.UTC()}
	if clientID != "" {
		query += ` AND client_id = ?`
		args = append(args, clientID)
	}
	query += ` ORDER BY occurred_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger transactions: %w", err)
	}
	defer rows.Close()

	var txns []models.Transaction
	for rows.Next() {
		var (
			t          models.Transaction
			amountText string
		)
		if err := rows.Scan(&t.ID, &t.Timestamp, &amountText, &t.Category, &t.Description, &t.Channel); err != nil {
			return nil, err
		}
		amount, err := decimal.NewFromString(amountText)
		if err != nil {
			return nil, fmt.Errorf("ledger holds bad amount %q: %w", amountText, err)
		}
		t.Amount = amount
		txns = append(txns, t)
	}
	return txns, rows.Err()
}
