package metrics

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Outcome classifies a single tool invocation.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeEmpty    Outcome = "empty"
	OutcomeDegraded Outcome = "degraded"
	OutcomeRejected Outcome = "rejected"
)

// Outcomes lists every outcome in reporting order.
var Outcomes = []Outcome{OutcomeSuccess, OutcomeEmpty, OutcomeDegraded, OutcomeRejected}

const dateLayout = "2006-01-02"

// DailyCount is the number of invocations for one outcome on one day.
type DailyCount struct {
	Date    string
	Outcome Outcome
	Count   int64
}

// Store manages SQLite persistence for invocation counts.
type Store struct {
	db *sql.DB
}

// DefaultPath returns ~/.hybridgate/stats.db.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".hybridgate", "stats.db"), nil
}

// NewStore opens (or creates) the database at dbPath. The parent directory
// is created if missing.
func NewStore(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create stats directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	createTableSQL := `
		CREATE TABLE IF NOT EXISTS invocation_counts (
			outcome TEXT NOT NULL,
			date TEXT NOT NULL,
			count INTEGER DEFAULT 0,
			PRIMARY KEY (outcome, date)
		);
	`
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &Store{db: db}, nil
}

// Increment increments today's count for the given outcome.
func (s *Store) Increment(outcome Outcome) error {
	today := time.Now().Format(dateLayout)

	upsertSQL := `
		INSERT INTO invocation_counts (outcome, date, count)
		VALUES (?, ?, 1)
		ON CONFLICT(outcome, date) DO UPDATE SET count = count + 1;
	`
	if _, err := s.db.Exec(upsertSQL, string(outcome), today); err != nil {
		return fmt.Errorf("failed to increment count: %w", err)
	}
	return nil
}

// GetTotalByOutcome returns the cumulative count for one outcome across all dates.
func (s *Store) GetTotalByOutcome(outcome Outcome) (int64, error) {
	var total int64
	row := s.db.QueryRow(
		"SELECT COALESCE(SUM(count), 0) FROM invocation_counts WHERE outcome = ?",
		string(outcome),
	)
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to get total for outcome %s: %w", outcome, err)
	}
	return total, nil
}

// GetAllTotals returns cumulative counts for every outcome. Outcomes never
// recorded are reported as zero.
func (s *Store) GetAllTotals() (map[Outcome]int64, error) {
	result := make(map[Outcome]int64, len(Outcomes))
	for _, outcome := range Outcomes {
		result[outcome] = 0
	}

	rows, err := s.db.Query(
		"SELECT outcome, COALESCE(SUM(count), 0) FROM invocation_counts GROUP BY outcome",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query totals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var outcome string
		var total int64
		if err := rows.Scan(&outcome, &total); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result[Outcome(outcome)] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return result, nil
}

// GetCountByDate returns the count for one outcome on a YYYY-MM-DD date.
func (s *Store) GetCountByDate(outcome Outcome, date string) (int64, error) {
	var count int64
	row := s.db.QueryRow(
		"SELECT COALESCE(count, 0) FROM invocation_counts WHERE outcome = ? AND date = ?",
		string(outcome), date,
	)
	if err := row.Scan(&count); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get count: %w", err)
	}
	return count, nil
}

// GetDailyCounts returns per-day counts for the last n days including today,
// newest first.
func (s *Store) GetDailyCounts(days int) ([]DailyCount, error) {
	if days <= 0 {
		return nil, fmt.Errorf("days must be positive, got %d", days)
	}
	since := time.Now().AddDate(0, 0, -(days - 1)).Format(dateLayout)

	rows, err := s.db.Query(
		"SELECT date, outcome, count FROM invocation_counts WHERE date >= ? ORDER BY date DESC, outcome",
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily counts: %w", err)
	}
	defer rows.Close()

	var counts []DailyCount
	for rows.Next() {
		var dc DailyCount
		var outcome string
		if err := rows.Scan(&dc.Date, &outcome, &dc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		dc.Outcome = Outcome(outcome)
		counts = append(counts, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return counts, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
