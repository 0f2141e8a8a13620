package store

import "fmt"

// Timestamps are unix nanoseconds (0 for unset), booleans are 0/1 and
// waypoints are JSON text, so the same schema serves both drivers.
func schema(d dialect) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS vehicles (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			lat DOUBLE PRECISION NOT NULL DEFAULT 0,
			lng DOUBLE PRECISION NOT NULL DEFAULT 0,
			position_at BIGINT NOT NULL DEFAULT 0,
			has_hardware BIGINT NOT NULL DEFAULT 0,
			performance_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
			fatigue_count BIGINT NOT NULL DEFAULT 0,
			assigned_fault_id TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS faults (
			id TEXT PRIMARY KEY,
			category TEXT NOT NULL,
			severity TEXT NOT NULL,
			lat DOUBLE PRECISION NOT NULL,
			lng DOUBLE PRECISION NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			assigned_vehicle_id TEXT NOT NULL DEFAULT '',
			resolved_by TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			resolved_at BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_faults_status ON faults(status)`,
		`CREATE TABLE IF NOT EXISTS routes (
			id TEXT PRIMARY KEY,
			vehicle_id TEXT NOT NULL,
			fault_id TEXT NOT NULL,
			status TEXT NOT NULL,
			waypoints TEXT NOT NULL,
			distance_m DOUBLE PRECISION NOT NULL,
			duration_s DOUBLE PRECISION NOT NULL,
			source TEXT NOT NULL,
			fallback BIGINT NOT NULL DEFAULT 0,
			started_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_routes_vehicle ON routes(vehicle_id, status)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS positions (
			id %s,
			vehicle_id TEXT NOT NULL,
			lat DOUBLE PRECISION NOT NULL,
			lng DOUBLE PRECISION NOT NULL,
			speed DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL,
			arrival BIGINT NOT NULL DEFAULT 0,
			recorded_at BIGINT NOT NULL
		)`, d.AutoIncrementPK()),
		`CREATE INDEX IF NOT EXISTS idx_positions_vehicle ON positions(vehicle_id, recorded_at)`,
		`CREATE TABLE IF NOT EXISTS trips (
			id TEXT PRIMARY KEY,
			vehicle_id TEXT NOT NULL,
			fault_id TEXT NOT NULL,
			start_lat DOUBLE PRECISION NOT NULL,
			start_lng DOUBLE PRECISION NOT NULL,
			started_at BIGINT NOT NULL,
			end_lat DOUBLE PRECISION NOT NULL DEFAULT 0,
			end_lng DOUBLE PRECISION NOT NULL DEFAULT 0,
			ended_at BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			fault_id TEXT NOT NULL,
			vehicle_id TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			solved BIGINT NOT NULL DEFAULT 0,
			solved_at BIGINT NOT NULL DEFAULT 0
		)`,
	}
}
