// Package postgres is the telemetry store backed by PostgreSQL through GORM.
package postgres

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/lucasjlepore/fit-analytics/model"
	"github.com/lucasjlepore/fit-analytics/store"
)

const sampleBatchSize = 500

type activityRow struct {
	ID               string    `gorm:"column:id;primaryKey"`
	AthleteID        string    `gorm:"column:athlete_id;not null;index:idx_activities_athlete_started,priority:1"`
	StartedAt        time.Time `gorm:"column:started_at;not null;index:idx_activities_athlete_started,priority:2"`
	DurationS        float64   `gorm:"column:duration_s;not null;default:0"`
	AvgPowerW        float64   `gorm:"column:avg_power_w;not null;default:0"`
	NormalizedPowerW *float64  `gorm:"column:normalized_power_w"`
	MaxPowerW        *float64  `gorm:"column:max_power_w"`
	Title            string    `gorm:"column:title;not null;default:''"`
	HasCadence       bool      `gorm:"column:has_cadence;not null;default:false"`
	HasElevation     bool      `gorm:"column:has_elevation;not null;default:false"`
}

func (activityRow) TableName() string { return "activities" }

type sampleRow struct {
	ActivityID   string    `gorm:"column:activity_id;primaryKey"`
	Seq          int       `gorm:"column:seq;primaryKey;autoIncrement:false"`
	Timestamp    time.Time `gorm:"column:ts;not null"`
	Lat          *float64  `gorm:"column:lat"`
	Lng          *float64  `gorm:"column:lng"`
	ElevationM   *float64  `gorm:"column:elevation_m"`
	PowerW       *float64  `gorm:"column:power_w"`
	CadenceRPM   *float64  `gorm:"column:cadence_rpm"`
	HeartRateBPM *float64  `gorm:"column:heart_rate_bpm"`
}

func (sampleRow) TableName() string { return "samples" }

type profileRow struct {
	ID            uint      `gorm:"column:id;primaryKey"`
	AthleteID     string    `gorm:"column:athlete_id;not null;uniqueIndex:uq_profile_athlete_day,priority:1"`
	EffectiveDate time.Time `gorm:"column:effective_date;type:date;not null;uniqueIndex:uq_profile_athlete_day,priority:2"`
	FTPW          *float64  `gorm:"column:ftp_w"`
	WeightKG      *float64  `gorm:"column:weight_kg"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (profileRow) TableName() string { return "profile_entries" }

// Store holds the GORM connection.
type Store struct {
	db     *gorm.DB
	logger *log.Logger
}

var (
	_ store.Store  = (*Store)(nil)
	_ store.Writer = (*Store)(nil)
)

// Open connects to dsn and migrates the schema.
func Open(dsn string, lg *log.Logger) (*Store, error) {
	if lg == nil {
		lg = log.New(io.Discard, "", 0)
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s := &Store{db: db, logger: lg}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates or updates the tables.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&activityRow{}, &sampleRow{}, &profileRow{}); err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}
	s.logger.Printf("[migrate] postgres schema up to date")
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) SaveActivity(ctx context.Context, a model.ActivitySummary) error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("save activity: empty id")
	}
	row := toActivityRow(a)
	samples := toSampleRows(a)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("upsert activity: %w", err)
		}
		if err := tx.Where("activity_id = ?", a.ID).Delete(&sampleRow{}).Error; err != nil {
			return fmt.Errorf("clear samples: %w", err)
		}
		if len(samples) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(samples, sampleBatchSize).Error; err != nil {
			return fmt.Errorf("insert samples: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save activity %s: %w", a.ID, err)
	}
	return nil
}

func (s *Store) FetchActivities(ctx context.Context, athleteID string, since *time.Time, req store.Requirements) ([]model.ActivitySummary, error) {
	q := s.db.WithContext(ctx).Model(&activityRow{}).Where("athlete_id = ?", athleteID)
	if since != nil {
		q = q.Where("started_at >= ?", since.UTC())
	}
	if req.Power {
		q = q.Where("avg_power_w > 0")
	}
	if req.Cadence {
		q = q.Where("has_cadence = ?", true)
	}
	if req.Elevation {
		q = q.Where("has_elevation = ?", true)
	}

	var rows []activityRow
	if err := q.Order("started_at DESC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	out := make([]model.ActivitySummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *Store) FetchSamples(ctx context.Context, activityID string) ([]model.TelemetrySample, error) {
	var rows []sampleRow
	err := s.db.WithContext(ctx).
		Where("activity_id = ?", activityID).
		Order("ts ASC, seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	out := make([]model.TelemetrySample, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *Store) FetchProfileHistory(ctx context.Context, athleteID string) ([]model.ProfileEntry, error) {
	var rows []profileRow
	err := s.db.WithContext(ctx).
		Where("athlete_id = ?", athleteID).
		Order("effective_date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query profile history: %w", err)
	}
	out := make([]model.ProfileEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.ProfileEntry{
			EffectiveDate: model.DayStart(r.EffectiveDate),
			ProfileFields: model.ProfileFields{FTPW: r.FTPW, WeightKG: r.WeightKG},
		})
	}
	return out, nil
}

func (s *Store) UpsertProfileEntry(ctx context.Context, athleteID string, effectiveDate time.Time, fields model.ProfileFields) error {
	row := profileRow{
		AthleteID:     athleteID,
		EffectiveDate: model.DayStart(effectiveDate),
		FTPW:          fields.FTPW,
		WeightKG:      fields.WeightKG,
		UpdatedAt:     time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(profileUpsert()).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert profile entry: %w", err)
	}
	return nil
}

// profileUpsert keeps stored values for fields the writer left nil.
func profileUpsert() clause.OnConflict {
	return clause.OnConflict{
		Columns: []clause.Column{{Name: "athlete_id"}, {Name: "effective_date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"ftp_w":      gorm.Expr("COALESCE(EXCLUDED.ftp_w, profile_entries.ftp_w)"),
			"weight_kg":  gorm.Expr("COALESCE(EXCLUDED.weight_kg, profile_entries.weight_kg)"),
			"updated_at": gorm.Expr("EXCLUDED.updated_at"),
		}),
	}
}

func toActivityRow(a model.ActivitySummary) activityRow {
	return activityRow{
		ID:               a.ID,
		AthleteID:        a.AthleteID,
		StartedAt:        a.Date.UTC(),
		DurationS:        a.DurationS,
		AvgPowerW:        a.AvgPowerW,
		NormalizedPowerW: a.NormalizedPowerW,
		MaxPowerW:        a.MaxPowerW,
		Title:            a.Title,
		HasCadence:       store.Requirements{Cadence: true}.Matches(a, a.Samples),
		HasElevation:     store.Requirements{Elevation: true}.Matches(a, a.Samples),
	}
}

func toSampleRows(a model.ActivitySummary) []sampleRow {
	out := make([]sampleRow, 0, len(a.Samples))
	for i, s := range a.Samples {
		out = append(out, sampleRow{
			ActivityID:   a.ID,
			Seq:          i,
			Timestamp:    s.Timestamp.UTC(),
			Lat:          s.Lat,
			Lng:          s.Lng,
			ElevationM:   s.ElevationM,
			PowerW:       s.PowerW,
			CadenceRPM:   s.CadenceRPM,
			HeartRateBPM: s.HeartRateBPM,
		})
	}
	return out
}

func (r activityRow) toModel() model.ActivitySummary {
	return model.ActivitySummary{
		ID:               r.ID,
		AthleteID:        r.AthleteID,
		Date:             r.StartedAt.UTC(),
		DurationS:        r.DurationS,
		AvgPowerW:        r.AvgPowerW,
		NormalizedPowerW: r.NormalizedPowerW,
		MaxPowerW:        r.MaxPowerW,
		Title:            r.Title,
	}
}

func (r sampleRow) toModel() model.TelemetrySample {
	return model.TelemetrySample{
		Timestamp:    r.Timestamp.UTC(),
		Lat:          r.Lat,
		Lng:          r.Lng,
		ElevationM:   r.ElevationM,
		PowerW:       r.PowerW,
		CadenceRPM:   r.CadenceRPM,
		HeartRateBPM: r.HeartRateBPM,
	}
}
