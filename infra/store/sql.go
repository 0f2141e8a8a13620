// Package store implements core/store.Store on SQLite and PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/kilianp07/faultfleet/core/model"
	corestore "github.com/kilianp07/faultfleet/core/store"
)

// Config selects the persistence backend.
type Config struct {
	// Driver is "memory", "sqlite" or "postgres".
	Driver string `json:"driver"`
	Path   string `json:"path"`
	DSN    string `json:"dsn"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Driver == "" {
		c.Driver = "memory"
	}
	if c.Driver == "sqlite" && c.Path == "" {
		c.Path = "faultfleet.db"
	}
}

// Validate checks the driver settings.
func (c Config) Validate() error {
	switch c.Driver {
	case "memory", "sqlite":
		return nil
	case "postgres":
		if c.DSN == "" {
			return fmt.Errorf("store: dsn is required for postgres")
		}
		return nil
	default:
		return fmt.Errorf("store: unsupported driver %s", c.Driver)
	}
}

// Open returns the store selected by cfg.
func Open(cfg Config) (corestore.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return corestore.NewMemoryStore(), nil
	case "sqlite":
		return OpenSQLite(cfg.Path)
	case "postgres":
		return OpenPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// SQLStore persists entities through database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

// OpenSQLite opens or creates the database file at path.
func OpenSQLite(path string) (*SQLStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return newSQLStore(db, sqliteDialect{})
}

// OpenPostgres connects with a pgx DSN.
func OpenPostgres(dsn string) (*SQLStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return newSQLStore(db, postgresDialect{})
}

func newSQLStore(db *sql.DB, d dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: d}
	for _, stmt := range schema(d) {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return s, nil
}

func (s *SQLStore) q(query string) string { return s.dialect.Rebind(query) }

func (s *SQLStore) Close() error { return s.db.Close() }

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func nanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func fromNanosPtr(n int64) *time.Time {
	if n == 0 {
		return nil
	}
	t := fromNanos(n)
	return &t
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

type scanner interface {
	Scan(dest ...any) error
}

const vehicleCols = `id, name, status, lat, lng, position_at, has_hardware, performance_ratio, fatigue_count, assigned_fault_id`

func scanVehicle(sc scanner) (model.Vehicle, error) {
	var v model.Vehicle
	var posAt, hw, fatigue int64
	var status string
	if err := sc.Scan(&v.ID, &v.Name, &status, &v.Position.Lat, &v.Position.Lng, &posAt, &hw,
		&v.PerformanceRatio, &fatigue, &v.AssignedFaultID); err != nil {
		return v, err
	}
	v.Status = model.VehicleStatus(status)
	v.PositionAt = fromNanos(posAt)
	v.HasHardware = hw == 1
	v.FatigueCount = int(fatigue)
	return v, nil
}

func (s *SQLStore) GetVehicle(ctx context.Context, id string) (model.Vehicle, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+vehicleCols+` FROM vehicles WHERE id = ?`), id)
	v, err := scanVehicle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return v, fmt.Errorf("vehicle %s: %w", id, model.ErrNotFound)
	}
	return v, err
}

func (s *SQLStore) ListVehicles(ctx context.Context, f corestore.VehicleFilter) ([]model.Vehicle, error) {
	query := `SELECT ` + vehicleCols + ` FROM vehicles`
	var args []any
	if f.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(f.Status))
	}
	rows, err := s.db.QueryContext(ctx, s.q(query+` ORDER BY id`), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

func (s *SQLStore) SaveVehicle(ctx context.Context, v model.Vehicle) error {
	if v.ID == "" {
		return fmt.Errorf("vehicle id is required")
	}
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO vehicles (`+vehicleCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, status = excluded.status, lat = excluded.lat, lng = excluded.lng,
			position_at = excluded.position_at, has_hardware = excluded.has_hardware,
			performance_ratio = excluded.performance_ratio, fatigue_count = excluded.fatigue_count,
			assigned_fault_id = excluded.assigned_fault_id`),
		v.ID, v.Name, string(v.Status), v.Position.Lat, v.Position.Lng, nanos(v.PositionAt),
		boolInt(v.HasHardware), v.PerformanceRatio, int64(v.FatigueCount), v.AssignedFaultID)
	return err
}

const faultCols = `id, category, severity, lat, lng, detail, status, assigned_vehicle_id, resolved_by, created_at, updated_at, resolved_at`

func scanFault(sc scanner) (model.Fault, error) {
	var f model.Fault
	var sev, status string
	var created, updated, resolved int64
	if err := sc.Scan(&f.ID, &f.Category, &sev, &f.Location.Lat, &f.Location.Lng, &f.Detail, &status,
		&f.AssignedVehicleID, &f.ResolvedBy, &created, &updated, &resolved); err != nil {
		return f, err
	}
	f.Severity = model.Severity(sev)
	f.Status = model.FaultStatus(status)
	f.CreatedAt = fromNanos(created)
	f.UpdatedAt = fromNanos(updated)
	f.ResolvedAt = fromNanosPtr(resolved)
	return f, nil
}

func (s *SQLStore) GetFault(ctx context.Context, id string) (model.Fault, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+faultCols+` FROM faults WHERE id = ?`), id)
	f, err := scanFault(row)
	if errors.Is(err, sql.ErrNoRows) {
		return f, fmt.Errorf("fault %s: %w", id, model.ErrNotFound)
	}
	return f, err
}

func (s *SQLStore) ListFaults(ctx context.Context, f corestore.FaultFilter) ([]model.Fault, error) {
	query := `SELECT ` + faultCols + ` FROM faults WHERE 1 = 1`
	var args []any
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.ResolvedBy != "" {
		query += ` AND resolved_by = ?`
		args = append(args, f.ResolvedBy)
	}
	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, f.Category)
	}
	rows, err := s.db.QueryContext(ctx, s.q(query+` ORDER BY created_at, id`), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.Fault
	for rows.Next() {
		ft, err := scanFault(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, ft)
	}
	return res, rows.Err()
}

func (s *SQLStore) SaveFault(ctx context.Context, f model.Fault) error {
	if f.ID == "" {
		return fmt.Errorf("fault id is required")
	}
	var resolved int64
	if f.ResolvedAt != nil {
		resolved = nanos(*f.ResolvedAt)
	}
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO faults (`+faultCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			category = excluded.category, severity = excluded.severity, lat = excluded.lat, lng = excluded.lng,
			detail = excluded.detail, status = excluded.status, assigned_vehicle_id = excluded.assigned_vehicle_id,
			resolved_by = excluded.resolved_by, updated_at = excluded.updated_at, resolved_at = excluded.resolved_at`),
		f.ID, f.Category, string(f.Severity), f.Location.Lat, f.Location.Lng, f.Detail, string(f.Status),
		f.AssignedVehicleID, f.ResolvedBy, nanos(f.CreatedAt), nanos(f.UpdatedAt), resolved)
	return err
}

const routeCols = `id, vehicle_id, fault_id, status, waypoints, distance_m, duration_s, source, fallback, started_at, updated_at`

func scanRoute(sc scanner) (model.Route, error) {
	var r model.Route
	var status, wp string
	var fallback, started, updated int64
	if err := sc.Scan(&r.ID, &r.VehicleID, &r.FaultID, &status, &wp, &r.DistanceM, &r.DurationS,
		&r.Source, &fallback, &started, &updated); err != nil {
		return r, err
	}
	r.Status = model.RouteStatus(status)
	r.Fallback = fallback == 1
	r.StartedAt = fromNanos(started)
	r.UpdatedAt = fromNanos(updated)
	if err := json.Unmarshal([]byte(wp), &r.Waypoints); err != nil {
		return r, fmt.Errorf("route %s waypoints: %w", r.ID, err)
	}
	return r, nil
}

func (s *SQLStore) ActiveRoute(ctx context.Context, vehicleID string) (model.Route, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+routeCols+` FROM routes
		WHERE vehicle_id = ? AND status = ? ORDER BY started_at DESC LIMIT 1`),
		vehicleID, string(model.RouteActive))
	r, err := scanRoute(row)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("active route for %s: %w", vehicleID, model.ErrNotFound)
	}
	return r, err
}

func (s *SQLStore) ReplaceActiveRoute(ctx context.Context, r model.Route) (string, error) {
	if r.VehicleID == "" {
		return "", fmt.Errorf("route vehicle id is required")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.StartedAt
	}
	wp, err := json.Marshal(r.Waypoints)
	if err != nil {
		return "", err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	var prev string
	err = tx.QueryRowContext(ctx, s.q(`SELECT id FROM routes WHERE vehicle_id = ? AND status = ?
		ORDER BY started_at DESC LIMIT 1`), r.VehicleID, string(model.RouteActive)).Scan(&prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	if _, err := tx.ExecContext(ctx, s.q(`UPDATE routes SET status = ?, updated_at = ?
		WHERE vehicle_id = ? AND status = ?`),
		string(model.RouteSuperseded), nanos(r.StartedAt), r.VehicleID, string(model.RouteActive)); err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO routes (`+routeCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		r.ID, r.VehicleID, r.FaultID, string(model.RouteActive), string(wp), r.DistanceM, r.DurationS,
		r.Source, boolInt(r.Fallback), nanos(r.StartedAt), nanos(r.UpdatedAt)); err != nil {
		return "", err
	}
	return prev, tx.Commit()
}

func (s *SQLStore) CloseActiveRoute(ctx context.Context, vehicleID string, status model.RouteStatus, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE routes SET status = ?, updated_at = ?
		WHERE vehicle_id = ? AND status = ?`),
		string(status), nanos(at), vehicleID, string(model.RouteActive))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLStore) ListRoutes(ctx context.Context, vehicleID string) ([]model.Route, error) {
	query := `SELECT ` + routeCols + ` FROM routes`
	var args []any
	if vehicleID != "" {
		query += ` WHERE vehicle_id = ?`
		args = append(args, vehicleID)
	}
	rows, err := s.db.QueryContext(ctx, s.q(query+` ORDER BY started_at, id`), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.Route
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

func (s *SQLStore) AppendPosition(ctx context.Context, p model.PositionSnapshot) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO positions (vehicle_id, lat, lng, speed, status, arrival, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		p.VehicleID, p.Position.Lat, p.Position.Lng, p.Speed, string(p.Status), boolInt(p.Arrival), nanos(p.RecordedAt))
	return err
}

func (s *SQLStore) ListPositions(ctx context.Context, vehicleID string, limit int) ([]model.PositionSnapshot, error) {
	query := `SELECT vehicle_id, lat, lng, speed, status, arrival, recorded_at FROM positions
		WHERE vehicle_id = ? ORDER BY recorded_at DESC, id DESC`
	args := []any{vehicleID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.PositionSnapshot
	for rows.Next() {
		var p model.PositionSnapshot
		var status string
		var arrival, recorded int64
		if err := rows.Scan(&p.VehicleID, &p.Position.Lat, &p.Position.Lng, &p.Speed, &status, &arrival, &recorded); err != nil {
			return nil, err
		}
		p.Status = model.VehicleStatus(status)
		p.Arrival = arrival == 1
		p.RecordedAt = fromNanos(recorded)
		res = append(res, p)
	}
	return res, rows.Err()
}

func (s *SQLStore) OpenTrip(ctx context.Context, t model.Trip) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO trips (id, vehicle_id, fault_id, start_lat, start_lng, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		t.ID, t.VehicleID, t.FaultID, t.Start.Lat, t.Start.Lng, nanos(t.StartedAt))
	return err
}

func (s *SQLStore) CloseOpenTrip(ctx context.Context, vehicleID string, end model.Point, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE trips SET end_lat = ?, end_lng = ?, ended_at = ?
		WHERE vehicle_id = ? AND ended_at = 0`),
		end.Lat, end.Lng, nanos(at), vehicleID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLStore) ListTrips(ctx context.Context, vehicleID string) ([]model.Trip, error) {
	query := `SELECT id, vehicle_id, fault_id, start_lat, start_lng, started_at, end_lat, end_lng, ended_at FROM trips`
	var args []any
	if vehicleID != "" {
		query += ` WHERE vehicle_id = ?`
		args = append(args, vehicleID)
	}
	rows, err := s.db.QueryContext(ctx, s.q(query+` ORDER BY started_at, id`), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.Trip
	for rows.Next() {
		var t model.Trip
		var started, ended int64
		var end model.Point
		if err := rows.Scan(&t.ID, &t.VehicleID, &t.FaultID, &t.Start.Lat, &t.Start.Lng, &started,
			&end.Lat, &end.Lng, &ended); err != nil {
			return nil, err
		}
		t.StartedAt = fromNanos(started)
		if ended != 0 {
			t.End = &end
			t.EndedAt = fromNanosPtr(ended)
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (s *SQLStore) CreateAlert(ctx context.Context, a model.Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO alerts (id, fault_id, vehicle_id, message, created_at)
		VALUES (?, ?, ?, ?, ?)`),
		a.ID, a.FaultID, a.VehicleID, a.Message, nanos(a.CreatedAt))
	return err
}

func (s *SQLStore) SolveAlert(ctx context.Context, faultID, vehicleID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE alerts SET solved = 1, solved_at = ?
		WHERE fault_id = ? AND vehicle_id = ? AND solved = 0`),
		nanos(at), faultID, vehicleID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLStore) ListAlerts(ctx context.Context, faultID string) ([]model.Alert, error) {
	query := `SELECT id, fault_id, vehicle_id, message, created_at, solved, solved_at FROM alerts`
	var args []any
	if faultID != "" {
		query += ` WHERE fault_id = ?`
		args = append(args, faultID)
	}
	rows, err := s.db.QueryContext(ctx, s.q(query+` ORDER BY created_at, id`), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.Alert
	for rows.Next() {
		var a model.Alert
		var created, solved, solvedAt int64
		if err := rows.Scan(&a.ID, &a.FaultID, &a.VehicleID, &a.Message, &created, &solved, &solvedAt); err != nil {
			return nil, err
		}
		a.CreatedAt = fromNanos(created)
		a.Solved = solved == 1
		a.SolvedAt = fromNanosPtr(solvedAt)
		res = append(res, a)
	}
	return res, rows.Err()
}
