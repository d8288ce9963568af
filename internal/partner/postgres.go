package partner

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// partnerModel is the gorm row shape for the partners table. AllowedCIDRs is
// stored as a comma-joined string; there are few enough entries per partner
// that a dedicated join table would only add ceremony.
type partnerModel struct {
	ID                     string `gorm:"primaryKey"`
	DisplayName            string
	Enabled                bool
	AllowedAccess          string
	PasswordRef            string
	AllowedCIDRs           string
	MaxConcurrentTransfers int
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

func (partnerModel) TableName() string { return "pesit_partners" }

func (m partnerModel) toRecord() *Record {
	var cidrs []string
	if m.AllowedCIDRs != "" {
		cidrs = strings.Split(m.AllowedCIDRs, ",")
	}
	return &Record{
		ID:                     m.ID,
		DisplayName:            m.DisplayName,
		Enabled:                m.Enabled,
		AllowedAccess:          AccessType(m.AllowedAccess),
		PasswordRef:            m.PasswordRef,
		AllowedCIDRs:           cidrs,
		MaxConcurrentTransfers: m.MaxConcurrentTransfers,
		CreatedAt:              m.CreatedAt,
		UpdatedAt:              m.UpdatedAt,
	}
}

// GORMStore is a Store backed by Postgres via gorm, for deployments that
// want partner records managed outside the static configuration file.
type GORMStore struct {
	db *gorm.DB
}

// NewGORMStore wraps an already-connected *gorm.DB.
func NewGORMStore(db *gorm.DB) *GORMStore {
	return &GORMStore{db: db}
}

func (s *GORMStore) Get(id string) (*Record, error) {
	var m partnerModel
	if err := s.db.Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m.toRecord(), nil
}

func (s *GORMStore) List() ([]*Record, error) {
	var rows []partnerModel
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*Record, len(rows))
	for i, m := range rows {
		out[i] = m.toRecord()
	}
	return out, nil
}
