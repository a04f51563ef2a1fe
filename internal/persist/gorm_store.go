package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// BlobModel is the GORM row backing one named blob: the key and the whole
// JSON document, overwritten on every save.
type BlobModel struct {
	Key       string         `gorm:"primaryKey"`
	Document  datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time      `gorm:"not null"`
}

// GormStore implements Store on Postgres. It exists for the shared-profile
// deployment where several devices rehydrate the same client state.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migration for the blob table.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&BlobModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Save upserts the blob row under key.
func (g *GormStore) Save(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal blob %q: %w", key, err)
	}
	row := BlobModel{
		Key:       key,
		Document:  datatypes.JSON(raw),
		UpdatedAt: time.Now().UTC(),
	}
	if err := g.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"document", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return fmt.Errorf("save blob %q: %w", key, err)
	}
	return nil
}

// Load reads the blob row under key.
func (g *GormStore) Load(key string, into any) (bool, error) {
	var row BlobModel
	err := g.db.First(&row, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load blob %q: %w", key, err)
	}
	if err := json.Unmarshal(row.Document, into); err != nil {
		return false, fmt.Errorf("decode blob %q: %w", key, err)
	}
	return true, nil
}
