package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS dispatch_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts INTEGER NOT NULL,
		fault_id TEXT NOT NULL,
		vehicles TEXT NOT NULL,
		outcome TEXT NOT NULL,
		record TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS dispatch_logs_ts ON dispatch_logs (ts)`,
	`CREATE INDEX IF NOT EXISTS dispatch_logs_fault ON dispatch_logs (fault_id)`,
}

// SQLiteStore keeps dispatch decisions in a SQLite table. Every filter of
// LogQuery runs in SQL.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at dsn, a file path or a sqlite URI,
// and creates the table when missing.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("dispatch log schema: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// vehicleColumn encodes every vehicle the record mentions as ",a,b,".
func vehicleColumn(rec LogRecord) string {
	ids := make([]string, 0, len(rec.Candidates)+1)
	if rec.VehicleSelected != "" {
		ids = append(ids, rec.VehicleSelected)
	}
	for _, c := range rec.Candidates {
		ids = append(ids, c.VehicleID)
	}
	return "," + strings.Join(ids, ",") + ","
}

func (s *SQLiteStore) Append(ctx context.Context, rec LogRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dispatch_logs (ts, fault_id, vehicles, outcome, record) VALUES (?, ?, ?, ?, ?)`,
		rec.Timestamp.UnixNano(), rec.FaultID, vehicleColumn(rec), rec.Outcome, string(b))
	return err
}

func (s *SQLiteStore) Query(ctx context.Context, q LogQuery) ([]LogRecord, error) {
	var (
		where []string
		args  []any
	)
	if !q.Start.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		where = append(where, "ts <= ?")
		args = append(args, q.End.UnixNano())
	}
	if q.FaultID != "" {
		where = append(where, "fault_id = ?")
		args = append(args, q.FaultID)
	}
	if q.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, q.Outcome)
	}
	if q.VehicleID != "" {
		where = append(where, "instr(vehicles, ?) > 0")
		args = append(args, ","+q.VehicleID+",")
	}
	query := "SELECT record FROM dispatch_logs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []LogRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r LogRecord
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("decode dispatch log: %w", err)
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
