// Package sqlite is the telemetry store backed by an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/lucasjlepore/fit-analytics/model"
	"github.com/lucasjlepore/fit-analytics/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

const dateLayout = "2006-01-02"

// DB wraps the SQLite handle.
type DB struct {
	*sql.DB
	logger *log.Logger
}

var (
	_ store.Store  = (*DB)(nil)
	_ store.Writer = (*DB)(nil)
)

// Open opens (creating if needed) the database file at path and applies
// pending migrations.
func Open(path string, logger *log.Logger) (*DB, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	out := &DB{DB: db, logger: logger}
	if err := out.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return out, nil
}

func dsn(path string) string {
	pragmas := []string{
		"_pragma=busy_timeout(5000)",
		"_pragma=journal_mode(WAL)",
		"_pragma=foreign_keys(1)",
		"_pragma=synchronous(NORMAL)",
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return "file:" + path + sep + strings.Join(pragmas, "&")
}

// MigrateUp runs all pending migrations. Already being at the latest version
// is not an error.
func (db *DB) MigrateUp() error {
	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: closing it would close the shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion reports the applied schema version, 0 when none.
func (db *DB) MigrateVersion() (uint, bool, error) {
	m, err := db.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (db *DB) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{logger: db.logger}
	return m, nil
}

type migrateLogger struct {
	logger *log.Logger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Printf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

func (db *DB) SaveActivity(ctx context.Context, a model.ActivitySummary) error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("save activity: empty id")
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save activity %s: begin: %w", a.ID, err)
	}
	defer tx.Rollback()

	hasCadence := store.Requirements{Cadence: true}.Matches(a, a.Samples)
	hasElevation := store.Requirements{Elevation: true}.Matches(a, a.Samples)

	if _, err := tx.ExecContext(ctx, `DELETE FROM samples WHERE activity_id = ?`, a.ID); err != nil {
		return fmt.Errorf("save activity %s: clear samples: %w", a.ID, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO activities (id, athlete_id, started_at, duration_s, avg_power_w,
			normalized_power_w, max_power_w, title, has_cadence, has_elevation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			athlete_id = excluded.athlete_id,
			started_at = excluded.started_at,
			duration_s = excluded.duration_s,
			avg_power_w = excluded.avg_power_w,
			normalized_power_w = excluded.normalized_power_w,
			max_power_w = excluded.max_power_w,
			title = excluded.title,
			has_cadence = excluded.has_cadence,
			has_elevation = excluded.has_elevation`,
		a.ID, a.AthleteID, a.Date.UTC().Unix(), a.DurationS, a.AvgPowerW,
		nullable(a.NormalizedPowerW), nullable(a.MaxPowerW), a.Title,
		boolInt(hasCadence), boolInt(hasElevation),
	)
	if err != nil {
		return fmt.Errorf("save activity %s: %w", a.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO samples (activity_id, seq, ts_ms, lat, lng, elevation_m, power_w, cadence_rpm, heart_rate_bpm)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("save activity %s: prepare samples: %w", a.ID, err)
	}
	defer stmt.Close()
	for i, s := range a.Samples {
		if _, err := stmt.ExecContext(ctx, a.ID, i, s.Timestamp.UTC().UnixMilli(), nullable(s.Lat), nullable(s.Lng),
			nullable(s.ElevationM), nullable(s.PowerW), nullable(s.CadenceRPM), nullable(s.HeartRateBPM)); err != nil {
			return fmt.Errorf("save activity %s: sample %d: %w", a.ID, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save activity %s: commit: %w", a.ID, err)
	}
	return nil
}

func (db *DB) FetchActivities(ctx context.Context, athleteID string, since *time.Time, req store.Requirements) ([]model.ActivitySummary, error) {
	query := `
		SELECT id, athlete_id, started_at, duration_s, avg_power_w, normalized_power_w, max_power_w, title
		FROM activities
		WHERE athlete_id = ?`
	args := []any{athleteID}
	if since != nil {
		query += ` AND started_at >= ?`
		args = append(args, since.UTC().Unix())
	}
	if req.Power {
		query += ` AND avg_power_w > 0`
	}
	if req.Cadence {
		query += ` AND has_cadence = 1`
	}
	if req.Elevation {
		query += ` AND has_elevation = 1`
	}
	query += ` ORDER BY started_at DESC, id ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	out := make([]model.ActivitySummary, 0)
	for rows.Next() {
		var (
			a         model.ActivitySummary
			startedAt int64
			np, maxP  sql.NullFloat64
		)
		if err := rows.Scan(&a.ID, &a.AthleteID, &startedAt, &a.DurationS, &a.AvgPowerW, &np, &maxP, &a.Title); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.Date = time.Unix(startedAt, 0).UTC()
		a.NormalizedPowerW = fromNull(np)
		a.MaxPowerW = fromNull(maxP)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}
	return out, nil
}

func (db *DB) FetchSamples(ctx context.Context, activityID string) ([]model.TelemetrySample, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT ts_ms, lat, lng, elevation_m, power_w, cadence_rpm, heart_rate_bpm
		FROM samples
		WHERE activity_id = ?
		ORDER BY ts_ms ASC, seq ASC`, activityID)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	out := make([]model.TelemetrySample, 0)
	for rows.Next() {
		var (
			s                 model.TelemetrySample
			tsMS              int64
			lat, lng          sql.NullFloat64
			elev, pw, cad, hr sql.NullFloat64
		)
		if err := rows.Scan(&tsMS, &lat, &lng, &elev, &pw, &cad, &hr); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		s.Timestamp = time.UnixMilli(tsMS).UTC()
		s.Lat = fromNull(lat)
		s.Lng = fromNull(lng)
		s.ElevationM = fromNull(elev)
		s.PowerW = fromNull(pw)
		s.CadenceRPM = fromNull(cad)
		s.HeartRateBPM = fromNull(hr)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return out, nil
}

func (db *DB) FetchProfileHistory(ctx context.Context, athleteID string) ([]model.ProfileEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT effective_date, ftp_w, weight_kg
		FROM profile_entries
		WHERE athlete_id = ?
		ORDER BY effective_date ASC`, athleteID)
	if err != nil {
		return nil, fmt.Errorf("query profile history: %w", err)
	}
	defer rows.Close()

	out := make([]model.ProfileEntry, 0)
	for rows.Next() {
		var (
			day         string
			ftp, weight sql.NullFloat64
		)
		if err := rows.Scan(&day, &ftp, &weight); err != nil {
			return nil, fmt.Errorf("scan profile entry: %w", err)
		}
		effective, err := time.Parse(dateLayout, day)
		if err != nil {
			return nil, fmt.Errorf("parse effective date %q: %w", day, err)
		}
		out = append(out, model.ProfileEntry{
			EffectiveDate: effective,
			ProfileFields: model.ProfileFields{FTPW: fromNull(ftp), WeightKG: fromNull(weight)},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profile history: %w", err)
	}
	return out, nil
}

// UpsertProfileEntry relies on the (athlete_id, effective_date) unique key, so
// concurrent writers for the same day converge on a single row.
func (db *DB) UpsertProfileEntry(ctx context.Context, athleteID string, effectiveDate time.Time, fields model.ProfileFields) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO profile_entries (athlete_id, effective_date, ftp_w, weight_kg, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (athlete_id, effective_date) DO UPDATE SET
			ftp_w = COALESCE(excluded.ftp_w, profile_entries.ftp_w),
			weight_kg = COALESCE(excluded.weight_kg, profile_entries.weight_kg),
			updated_at = excluded.updated_at`,
		athleteID, model.DayStart(effectiveDate).Format(dateLayout),
		nullable(fields.FTPW), nullable(fields.WeightKG), time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert profile entry: %w", err)
	}
	return nil
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return model.Float64Ptr(v.Float64)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
