package logicalfile

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

type logicalFileModel struct {
	LogicalName         string `gorm:"primaryKey"`
	FilenamePattern     string
	BackingRoot         string
	DefaultFileType     string
	DefaultRecordFormat string
	DefaultRecordLength uint32
	MaxEntitySize       int64
	Enabled             bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (logicalFileModel) TableName() string { return "pesit_logical_files" }

func (m logicalFileModel) toRecord() *Record {
	return &Record{
		LogicalName:         m.LogicalName,
		FilenamePattern:     m.FilenamePattern,
		BackingRoot:         m.BackingRoot,
		DefaultFileType:     m.DefaultFileType,
		DefaultRecordFormat: m.DefaultRecordFormat,
		DefaultRecordLength: m.DefaultRecordLength,
		MaxEntitySize:       m.MaxEntitySize,
		Enabled:             m.Enabled,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

// GORMStore is a Store backed by Postgres via gorm.
type GORMStore struct {
	db *gorm.DB
}

// NewGORMStore wraps an already-connected *gorm.DB.
func NewGORMStore(db *gorm.DB) *GORMStore {
	return &GORMStore{db: db}
}

func (s *GORMStore) Get(name string) (*Record, error) {
	var m logicalFileModel
	if err := s.db.Where("logical_name = ?", name).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m.toRecord(), nil
}

func (s *GORMStore) List() ([]*Record, error) {
	var rows []logicalFileModel
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*Record, len(rows))
	for i, m := range rows {
		out[i] = m.toRecord()
	}
	return out, nil
}
