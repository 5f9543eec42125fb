package offline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"p9e.in/qareports/config"
	"p9e.in/qareports/models"
	"p9e.in/qareports/pkg/ledger"
)

var ErrDraftNotFound = errors.New("draft not found")

// Draft is a report edited on the device. Revision grows on every local
// save so a sync pass can tell whether the draft changed under it.
type Draft struct {
	LocalID          uint                               `gorm:"primaryKey;autoIncrement" json:"localId"`
	ClientKey        uuid.UUID                          `gorm:"type:uuid;uniqueIndex" json:"clientKey"`
	ServerID         *uuid.UUID                         `gorm:"type:uuid" json:"serverId,omitempty"`
	SchoolID         uuid.UUID                          `gorm:"type:uuid" json:"schoolId"`
	ReportType       string                             `gorm:"size:30" json:"reportType"`
	InspectionDate   models.Date                        `json:"inspectionDate"`
	PreviousReportID *uuid.UUID                         `gorm:"type:uuid" json:"previousReportId,omitempty"`
	OverallRating    string                             `gorm:"size:30" json:"overallRating"`
	ClosingNotes     string                             `json:"closingNotes"`
	Responses        datatypes.JSONType[ledger.Payload] `json:"responses"`
	Synced           bool                               `gorm:"index" json:"synced"`
	Revision         int                                `json:"revision"`
	CreatedAt        time.Time                          `json:"createdAt"`
	UpdatedAt        time.Time                          `gorm:"autoUpdateTime:false" json:"updatedAt"`
}

// PendingPhoto is an image waiting for its draft to reach the server.
type PendingPhoto struct {
	LocalID      uint      `gorm:"primaryKey;autoIncrement" json:"localId"`
	DraftLocalID uint      `gorm:"index" json:"draftLocalId"`
	SectionKey   string    `json:"sectionKey"`
	ItemKey      string    `json:"itemKey"`
	LocationTag  string    `json:"locationTag"`
	Caption      string    `json:"caption"`
	Filename     string    `json:"filename"`
	ClientKey    uuid.UUID `gorm:"type:uuid" json:"clientKey"`
	Data         []byte    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Store is the device's durable queue of drafts and photos.
type Store interface {
	SaveDraft(ctx context.Context, d *Draft) error
	GetDraft(ctx context.Context, localID uint) (*Draft, error)
	ListDrafts(ctx context.Context) ([]Draft, error)
	UnsyncedDrafts(ctx context.Context) ([]Draft, error)
	MarkSynced(ctx context.Context, localID uint, serverID uuid.UUID, revision int) (bool, error)
	DeleteDraft(ctx context.Context, localID uint) error
	CountDrafts(ctx context.Context) (total int64, unsynced int64, err error)

	AddPhoto(ctx context.Context, p *PendingPhoto) error
	ListPhotos(ctx context.Context) ([]PendingPhoto, error)
	DeletePhoto(ctx context.Context, localID uint) error
	CountPhotos(ctx context.Context) (int64, error)
}

// SQLStore keeps the queue in an embedded sqlite database.
type SQLStore struct {
	db  *gorm.DB
	now func() time.Time
}

// OpenStore opens (or creates) the database file at path.
func OpenStore(path string) (*SQLStore, error) {
	db, err := config.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	return NewSQLStore(db)
}

func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "01032025_create_field_queue",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Draft{}, &PendingPhoto{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("pending_photos", "drafts")
			},
		},
		{
			ID: "14042025_add_pending_photo_client_key",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&PendingPhoto{})
			},
		},
	})
	if err := m.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate field store: %w", err)
	}
	return &SQLStore{db: db, now: time.Now}, nil
}

// SaveDraft creates the draft when LocalID is zero and otherwise overwrites
// the stored one. Either way the draft becomes unsynced with a fresh
// UpdatedAt and the next revision. ServerID and ClientKey are kept from the
// stored row.
func (s *SQLStore) SaveDraft(ctx context.Context, d *Draft) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d.Synced = false
		d.UpdatedAt = s.now()

		if d.LocalID == 0 {
			if d.ClientKey == uuid.Nil {
				d.ClientKey = uuid.New()
			}
			d.Revision = 1
			if err := tx.Create(d).Error; err != nil {
				return fmt.Errorf("failed to create draft: %w", err)
			}
			return nil
		}

		var stored Draft
		if err := tx.First(&stored, d.LocalID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("draft %d: %w", d.LocalID, ErrDraftNotFound)
			}
			return fmt.Errorf("failed to load draft: %w", err)
		}
		d.ClientKey = stored.ClientKey
		d.ServerID = stored.ServerID
		d.CreatedAt = stored.CreatedAt
		d.Revision = stored.Revision + 1
		if err := tx.Save(d).Error; err != nil {
			return fmt.Errorf("failed to save draft: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) GetDraft(ctx context.Context, localID uint) (*Draft, error) {
	var d Draft
	if err := s.db.WithContext(ctx).First(&d, localID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("draft %d: %w", localID, ErrDraftNotFound)
		}
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}
	return &d, nil
}

func (s *SQLStore) ListDrafts(ctx context.Context) ([]Draft, error) {
	drafts := []Draft{}
	if err := s.db.WithContext(ctx).Order("local_id ASC").Find(&drafts).Error; err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	return drafts, nil
}

func (s *SQLStore) UnsyncedDrafts(ctx context.Context) ([]Draft, error) {
	drafts := []Draft{}
	if err := s.db.WithContext(ctx).Where("synced = ?", false).Order("local_id ASC").Find(&drafts).Error; err != nil {
		return nil, fmt.Errorf("failed to list unsynced drafts: %w", err)
	}
	return drafts, nil
}

// MarkSynced records the server id. The draft is flagged synced only when
// it is still at revision, so an edit made during the upload is sent on the
// next pass. It reports whether the flag was set.
func (s *SQLStore) MarkSynced(ctx context.Context, localID uint, serverID uuid.UUID, revision int) (bool, error) {
	synced := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stored Draft
		if err := tx.First(&stored, localID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("draft %d: %w", localID, ErrDraftNotFound)
			}
			return fmt.Errorf("failed to load draft: %w", err)
		}
		updates := map[string]interface{}{"server_id": serverID}
		if stored.Revision == revision {
			updates["synced"] = true
			synced = true
		}
		return tx.Model(&Draft{}).Where("local_id = ?", localID).Updates(updates).Error
	})
	return synced, err
}

// DeleteDraft removes the draft and its queued photos.
func (s *SQLStore) DeleteDraft(ctx context.Context, localID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("draft_local_id = ?", localID).Delete(&PendingPhoto{}).Error; err != nil {
			return fmt.Errorf("failed to delete queued photos: %w", err)
		}
		res := tx.Delete(&Draft{}, localID)
		if res.Error != nil {
			return fmt.Errorf("failed to delete draft: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("draft %d: %w", localID, ErrDraftNotFound)
		}
		return nil
	})
}

func (s *SQLStore) CountDrafts(ctx context.Context) (int64, int64, error) {
	var total, unsynced int64
	db := s.db.WithContext(ctx)
	if err := db.Model(&Draft{}).Count(&total).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count drafts: %w", err)
	}
	if err := db.Model(&Draft{}).Where("synced = ?", false).Count(&unsynced).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count drafts: %w", err)
	}
	return total, unsynced, nil
}

// AddPhoto queues an image for an existing draft and gives it a client key
// when it has none.
func (s *SQLStore) AddPhoto(ctx context.Context, p *PendingPhoto) error {
	if p.ClientKey == uuid.Nil {
		p.ClientKey = uuid.New()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&Draft{}).Where("local_id = ?", p.DraftLocalID).Count(&n).Error; err != nil {
			return fmt.Errorf("failed to check draft: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("draft %d: %w", p.DraftLocalID, ErrDraftNotFound)
		}
		if err := tx.Create(p).Error; err != nil {
			return fmt.Errorf("failed to queue photo: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) ListPhotos(ctx context.Context) ([]PendingPhoto, error) {
	photos := []PendingPhoto{}
	if err := s.db.WithContext(ctx).Order("local_id ASC").Find(&photos).Error; err != nil {
		return nil, fmt.Errorf("failed to list queued photos: %w", err)
	}
	return photos, nil
}

func (s *SQLStore) DeletePhoto(ctx context.Context, localID uint) error {
	if err := s.db.WithContext(ctx).Delete(&PendingPhoto{}, localID).Error; err != nil {
		return fmt.Errorf("failed to delete queued photo: %w", err)
	}
	return nil
}

func (s *SQLStore) CountPhotos(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&PendingPhoto{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count queued photos: %w", err)
	}
	return n, nil
}
