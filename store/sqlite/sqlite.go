/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements timer.Store, payroll.SettlementStore, and payroll.Sequence
  using SQLite. In production the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

KEY TABLES:
  financial_timers:    One row per timer instance. Rows are never deleted;
                       terminal timers are retained for settlement and audit.
  settlements:         One row per settlement document. The full document is
                       stored as JSON; driver/period/status are lifted into
                       columns for querying and workflow updates.
  settlement_sequence: Durable per-year counter for settlement identifiers.
                       A process-local counter would collide across service
                       instances.

COMPARE-AND-SET:
  Timer updates and settlement status transitions carry their expected
  status in the UPDATE's WHERE clause and report success via RowsAffected.
  Two racing finalizers on the same row see exactly one winner.

INDEXES:
  - idx_timers_load:        "timers for load X" (live displays, history)
  - idx_timers_sweep:       the promotion sweep's range query
                            (status = FREE_TIME AND free_time_ends_at <= now)
  - idx_settlements_driver: settlement history per driver

WAL MODE:
  SQLite is opened with WAL so the sweep's reads don't block request writes.

USAGE:
  store, err := sqlite.New("./data/settlements.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := timer.NewEngine(store, finance.SystemClock{})

SEE ALSO:
  - timer/store.go, payroll/store.go: interface definitions
  - timer/store/memory.go, payroll/store/memory.go: in-memory implementations
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/haulline/settlement-engine/finance"
	"github.com/haulline/settlement-engine/payroll"
	"github.com/haulline/settlement-engine/timer"
)

// Store implements the timer and settlement storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store at the given path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS financial_timers (
		id TEXT PRIMARY KEY,
		load_id TEXT NOT NULL,
		facility_id TEXT,
		timer_type TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TEXT NOT NULL,
		free_time_minutes INTEGER NOT NULL,
		free_time_ends_at TEXT NOT NULL,
		hourly_rate TEXT NOT NULL,
		max_charge_hours TEXT,
		currency TEXT NOT NULL,
		billing_started_at TEXT,
		stopped_at TEXT,
		total_minutes INTEGER NOT NULL DEFAULT 0,
		billable_minutes INTEGER NOT NULL DEFAULT 0,
		total_charge TEXT NOT NULL DEFAULT '0',
		waived_by TEXT,
		waive_reason TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_timers_load
		ON financial_timers(load_id, started_at);

	-- Promotion sweep: status = FREE_TIME AND free_time_ends_at <= now
	CREATE INDEX IF NOT EXISTS idx_timers_sweep
		ON financial_timers(status, free_time_ends_at);

	CREATE TABLE IF NOT EXISTS settlements (
		id TEXT PRIMARY KEY,
		driver_id TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		status TEXT NOT NULL,
		document_json TEXT NOT NULL,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_settlements_driver
		ON settlements(driver_id, period_end DESC);

	CREATE TABLE IF NOT EXISTS settlement_sequence (
		year INTEGER PRIMARY KEY,
		next_value INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TIMER STORE
// =============================================================================

const timerColumns = `id, load_id, facility_id, timer_type, status, started_at,
	free_time_minutes, free_time_ends_at, hourly_rate, max_charge_hours,
	currency, billing_started_at, stopped_at, total_minutes, billable_minutes,
	total_charge, waived_by, waive_reason, created_at`

func (s *Store) Insert(ctx context.Context, t timer.FinancialTimer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO financial_timers (`+timerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(t.ID), string(t.LoadID), nullString(string(t.FacilityID)),
		string(t.Type), string(t.Status), formatTime(t.StartedAt),
		t.FreeTimeMinutes, formatTime(t.FreeTimeEndsAt), t.HourlyRate.String(),
		nullDecimal(t.MaxChargeHours), t.Currency,
		nullTime(t.BillingStartedAt), nullTime(t.StoppedAt),
		t.TotalMinutes, t.BillableMinutes, t.TotalCharge.String(),
		nullString(t.WaivedBy), nullString(t.WaiveReason), formatTime(t.CreatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return timer.ErrDuplicateTimerID
		}
		return fmt.Errorf("insert timer: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id finance.TimerID) (*timer.FinancialTimer, error) {
	timers, err := s.queryTimers(ctx,
		`SELECT `+timerColumns+` FROM financial_timers WHERE id = ?`, string(id))
	if err != nil {
		return nil, err
	}
	if len(timers) == 0 {
		return nil, nil
	}
	return &timers[0], nil
}

func (s *Store) UpdateIf(ctx context.Context, t timer.FinancialTimer, expect ...timer.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	placeholders := make([]string, len(expect))
	args := []any{
		string(t.Status), nullTime(t.BillingStartedAt), nullTime(t.StoppedAt),
		t.TotalMinutes, t.BillableMinutes, t.TotalCharge.String(),
		nullString(t.WaivedBy), nullString(t.WaiveReason),
		string(t.ID),
	}
	for i, st := range expect {
		placeholders[i] = "?"
		args = append(args, string(st))
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE financial_timers
		SET status = ?, billing_started_at = ?, stopped_at = ?,
		    total_minutes = ?, billable_minutes = ?, total_charge = ?,
		    waived_by = ?, waive_reason = ?
		WHERE id = ? AND status IN (`+strings.Join(placeholders, ", ")+`)`,
		args...)
	if err != nil {
		return false, fmt.Errorf("update timer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update timer: %w", err)
	}
	return n > 0, nil
}

func (s *Store) ActiveByLoad(ctx context.Context, loadID finance.LoadID) ([]timer.FinancialTimer, error) {
	return s.queryTimers(ctx, `
		SELECT `+timerColumns+` FROM financial_timers
		WHERE load_id = ? AND status IN (?, ?)
		ORDER BY started_at, id`,
		string(loadID), string(timer.StatusFreeTime), string(timer.StatusBilling))
}

func (s *Store) ByLoad(ctx context.Context, loadID finance.LoadID) ([]timer.FinancialTimer, error) {
	return s.queryTimers(ctx, `
		SELECT `+timerColumns+` FROM financial_timers
		WHERE load_id = ?
		ORDER BY started_at, id`,
		string(loadID))
}

func (s *Store) ExpiredFreeTime(ctx context.Context, asOf time.Time) ([]timer.FinancialTimer, error) {
	return s.queryTimers(ctx, `
		SELECT `+timerColumns+` FROM financial_timers
		WHERE status = ? AND free_time_ends_at <= ?
		ORDER BY free_time_ends_at, id`,
		string(timer.StatusFreeTime), formatTime(asOf))
}

func (s *Store) queryTimers(ctx context.Context, query string, args ...any) ([]timer.FinancialTimer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query timers: %w", err)
	}
	defer rows.Close()

	var result []timer.FinancialTimer
	for rows.Next() {
		var (
			t                           timer.FinancialTimer
			facilityID                  sql.NullString
			startedAt, freeEndsAt       string
			hourlyRate, totalCharge     string
			maxChargeHours              sql.NullString
			billingStartedAt, stoppedAt sql.NullString
			waivedBy, waiveReason       sql.NullString
			createdAt                   string
		)
		if err := rows.Scan(
			(*string)(&t.ID), (*string)(&t.LoadID), &facilityID,
			(*string)(&t.Type), (*string)(&t.Status), &startedAt,
			&t.FreeTimeMinutes, &freeEndsAt, &hourlyRate, &maxChargeHours,
			&t.Currency, &billingStartedAt, &stoppedAt,
			&t.TotalMinutes, &t.BillableMinutes, &totalCharge,
			&waivedBy, &waiveReason, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan timer: %w", err)
		}

		t.FacilityID = finance.FacilityID(facilityID.String)
		t.WaivedBy = waivedBy.String
		t.WaiveReason = waiveReason.String

		if t.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if t.FreeTimeEndsAt, err = parseTime(freeEndsAt); err != nil {
			return nil, err
		}
		if t.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if t.BillingStartedAt, err = parseNullTime(billingStartedAt); err != nil {
			return nil, err
		}
		if t.StoppedAt, err = parseNullTime(stoppedAt); err != nil {
			return nil, err
		}

		if t.HourlyRate, err = decimal.NewFromString(hourlyRate); err != nil {
			return nil, fmt.Errorf("parse hourly rate: %w", err)
		}
		if t.TotalCharge, err = decimal.NewFromString(totalCharge); err != nil {
			return nil, fmt.Errorf("parse total charge: %w", err)
		}
		if maxChargeHours.Valid {
			capHours, err := decimal.NewFromString(maxChargeHours.String)
			if err != nil {
				return nil, fmt.Errorf("parse max charge hours: %w", err)
			}
			t.MaxChargeHours = &capHours
		}

		result = append(result, t)
	}
	return result, rows.Err()
}

// =============================================================================
// SETTLEMENT STORE
// =============================================================================

func (s *Store) Save(ctx context.Context, doc payroll.SettlementDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal settlement %s: %w", doc.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO settlements
			(id, driver_id, period_start, period_end, status, document_json, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, string(doc.DriverID), formatTime(doc.PeriodStart),
		formatTime(doc.PeriodEnd), string(doc.Status), string(blob),
		doc.CreatedBy, formatTime(doc.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save settlement %s: %w", doc.ID, err)
	}
	return nil
}

func (s *Store) GetSettlement(ctx context.Context, id string) (*payroll.SettlementDocument, error) {
	docs, err := s.querySettlements(ctx, `
		SELECT document_json, status FROM settlements WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return &docs[0], nil
}

func (s *Store) ListByDriver(ctx context.Context, driverID finance.DriverID) ([]payroll.SettlementDocument, error) {
	return s.querySettlements(ctx, `
		SELECT document_json, status FROM settlements
		WHERE driver_id = ?
		ORDER BY period_end DESC`,
		string(driverID))
}

func (s *Store) UpdateStatus(ctx context.Context, id string, from, to payroll.SettlementStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE settlements SET status = ? WHERE id = ? AND status = ?`,
		string(to), id, string(from))
	if err != nil {
		return false, fmt.Errorf("update settlement status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update settlement status: %w", err)
	}
	return n > 0, nil
}

func (s *Store) querySettlements(ctx context.Context, query string, args ...any) ([]payroll.SettlementDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query settlements: %w", err)
	}
	defer rows.Close()

	var result []payroll.SettlementDocument
	for rows.Next() {
		var blob, status string
		if err := rows.Scan(&blob, &status); err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}

		var doc payroll.SettlementDocument
		if err := json.Unmarshal([]byte(blob), &doc); err != nil {
			return nil, fmt.Errorf("unmarshal settlement: %w", err)
		}
		// Workflow transitions update the status column, not the blob.
		doc.Status = payroll.SettlementStatus(status)
		result = append(result, doc)
	}
	return result, rows.Err()
}

// =============================================================================
// SETTLEMENT SEQUENCE
// =============================================================================

// NextSettlementID allocates the next settlement identifier for the period's
// year, e.g. "STL-2025-000042". The counter lives in the database and is
// bumped inside a transaction, so multiple service instances cannot collide.
func (s *Store) NextSettlementID(ctx context.Context, periodEnd time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	year := periodEnd.Year()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("settlement sequence: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO settlement_sequence (year, next_value) VALUES (?, 0)
		ON CONFLICT(year) DO NOTHING`, year); err != nil {
		return "", fmt.Errorf("settlement sequence: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE settlement_sequence SET next_value = next_value + 1 WHERE year = ?`, year); err != nil {
		return "", fmt.Errorf("settlement sequence: %w", err)
	}

	var value int64
	if err := tx.QueryRowContext(ctx, `
		SELECT next_value FROM settlement_sequence WHERE year = ?`, year).Scan(&value); err != nil {
		return "", fmt.Errorf("settlement sequence: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("settlement sequence: %w", err)
	}
	return fmt.Sprintf("STL-%d-%06d", year, value), nil
}

// =============================================================================
// HELPERS
// =============================================================================

// timeLayout is fixed-width so that lexicographic comparison in SQL
// (the sweep's free_time_ends_at <= now predicate) matches chronological
// order. RFC3339Nano drops trailing zeros and would break that.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}
