package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
	"github.com/lcalzada-xor/ridwatch/internal/core/ports"
)

const (
	batchSize    = 100
	defenseRowID = 1
)

// SQLiteAdapter implements ports.Store using GORM and SQLite.
type SQLiteAdapter struct {
	db *gorm.DB
}

// SightingModel is the latest canonical state of one identity.
type SightingModel struct {
	Identity    string `gorm:"primaryKey"`
	Address     string `gorm:"index"`
	Transport   string
	Vendor      string
	SSID        string
	RSSI        int
	HasPosition bool
	Latitude    float64
	Longitude   float64
	Altitude    float64
	OperatorID  string
	SelfID      string
	AuthType    string
	Estimated   bool
	LastSeen    time.Time `gorm:"index"`

	// Extras is the JSON encoding of nested sighting state.
	Extras string
}

// DetectionModel is one emitted detection. Detections are append-only.
type DetectionModel struct {
	ID          string `gorm:"primaryKey"`
	Type        string `gorm:"index"`
	Family      string
	Subject     string `gorm:"index"`
	Address     string
	NetworkName string
	Detail      string
	Confidence  float64
	Evidence    string
	DetectedAt  time.Time `gorm:"index"`
}

// DefenseModel holds the single persisted defense snapshot.
type DefenseModel struct {
	ID       uint `gorm:"primaryKey"`
	Snapshot string
	TakenAt  time.Time
}

// NewSQLiteAdapter opens the database at path, installs query tracing and migrates the schema.
func NewSQLiteAdapter(path string) (*SQLiteAdapter, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, fmt.Errorf("install tracing: %w", err)
	}

	if err := db.AutoMigrate(&SightingModel{}, &DetectionModel{}, &DefenseModel{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteAdapter{db: db}, nil
}

// SaveSightings upserts the latest state of each identity.
func (a *SQLiteAdapter) SaveSightings(ctx context.Context, sightings []domain.Sighting) error {
	if len(sightings) == 0 {
		return nil
	}
	models := make([]SightingModel, len(sightings))
	for i, s := range sightings {
		models[i] = toSightingModel(s)
	}

	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(models, batchSize).Error
	})
}

// SaveDetections appends detections. Re-saving a known ID is a no-op.
func (a *SQLiteAdapter) SaveDetections(ctx context.Context, detections []domain.Detection) error {
	if len(detections) == 0 {
		return nil
	}
	models := make([]DetectionModel, len(detections))
	for i, d := range detections {
		models[i] = toDetectionModel(d)
	}

	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(models, batchSize).Error
	})
}

// ListSightings returns up to limit sightings, most recently seen first.
func (a *SQLiteAdapter) ListSightings(ctx context.Context, limit int) ([]domain.Sighting, error) {
	var models []SightingModel
	if err := a.limited(ctx, limit).Order("last_seen DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Sighting, len(models))
	for i, m := range models {
		out[i] = toSighting(m)
	}
	return out, nil
}

// ListDetections returns up to limit detections, newest first.
func (a *SQLiteAdapter) ListDetections(ctx context.Context, limit int) ([]domain.Detection, error) {
	var models []DetectionModel
	if err := a.limited(ctx, limit).Order("detected_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Detection, len(models))
	for i, m := range models {
		out[i] = toDetection(m)
	}
	return out, nil
}

func (a *SQLiteAdapter) limited(ctx context.Context, limit int) *gorm.DB {
	q := a.db.WithContext(ctx)
	if limit > 0 {
		q = q.Limit(limit)
	}
	return q
}

// SaveDefense replaces the stored defense snapshot.
func (a *SQLiteAdapter) SaveDefense(ctx context.Context, snap domain.DefenseSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode defense snapshot: %w", err)
	}
	row := DefenseModel{ID: defenseRowID, Snapshot: string(b), TakenAt: snap.TakenAt}
	return a.db.WithContext(ctx).Save(&row).Error
}

// LoadDefense returns the stored snapshot, or false if none was saved.
func (a *SQLiteAdapter) LoadDefense(ctx context.Context) (domain.DefenseSnapshot, bool, error) {
	var row DefenseModel
	err := a.db.WithContext(ctx).First(&row, defenseRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.DefenseSnapshot{}, false, nil
	}
	if err != nil {
		return domain.DefenseSnapshot{}, false, err
	}

	var snap domain.DefenseSnapshot
	if err := json.Unmarshal([]byte(row.Snapshot), &snap); err != nil {
		return domain.DefenseSnapshot{}, false, fmt.Errorf("decode defense snapshot: %w", err)
	}
	return snap, true, nil
}

// PruneSightings deletes sightings last seen before cutoff.
func (a *SQLiteAdapter) PruneSightings(ctx context.Context, cutoff time.Time) (int64, error) {
	res := a.db.WithContext(ctx).Where("last_seen < ?", cutoff).Delete(&SightingModel{})
	return res.RowsAffected, res.Error
}

func (a *SQLiteAdapter) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ ports.Store = (*SQLiteAdapter)(nil)
