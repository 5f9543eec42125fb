package photos

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"p9e.in/qareports/config"
	"p9e.in/qareports/models"
	"p9e.in/qareports/pkg/metrics"
)

const (
	defaultThumbnailWidth = 400
	defaultMaxBytes       = 50 << 20
)

var imageMimeTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
}

// Service uploads, annotates, lists and deletes report photos.
type Service struct {
	db         *gorm.DB
	store      FileStore
	thumbWidth int
	maxBytes   int64
	log        logrus.FieldLogger
	metrics    *metrics.Metrics
}

// Option customises a Service.
type Option func(*Service)

func WithThumbnailWidth(px int) Option {
	return func(s *Service) {
		if px > 0 {
			s.thumbWidth = px
		}
	}
}

func WithMaxBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

func NewService(db *gorm.DB, store FileStore, opts ...Option) *Service {
	s := &Service{
		db:         db,
		store:      store,
		thumbWidth: defaultThumbnailWidth,
		maxBytes:   defaultMaxBytes,
		log:        config.ComponentLogger("photos"),
		metrics:    metrics.Get(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store is the backing file store.
func (s *Service) Store() FileStore { return s.store }

// UploadInput describes a new photo. ItemKey scopes the photo to one item
// of SectionKey. ClientKey makes the upload idempotent.
type UploadInput struct {
	SectionKey  string     `json:"sectionKey"`
	ItemKey     string     `json:"itemKey"`
	LocationTag string     `json:"locationTag"`
	Caption     string     `json:"caption"`
	Filename    string     `json:"filename"`
	Latitude    *float64   `json:"latitude"`
	Longitude   *float64   `json:"longitude"`
	ClientKey   *uuid.UUID `json:"clientKey"`
}

// View is a photo with its public URLs.
type View struct {
	models.Photo
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnailUrl"`
}

// ViewOf attaches URLs to a photo.
func (s *Service) ViewOf(p models.Photo) View {
	return View{Photo: p, URL: s.store.URL(p.ExternalFileRef), ThumbnailURL: s.store.URL(p.ThumbnailRef)}
}

// Views attaches URLs to photos.
func (s *Service) Views(photos []models.Photo) []View {
	out := make([]View, len(photos))
	for i, p := range photos {
		out[i] = s.ViewOf(p)
	}
	return out
}

type decoded struct {
	data        []byte
	contentType string
	ext         string
	thumbnail   []byte
}

// readImage reads at most maxBytes, accepts JPEG and PNG only and renders
// a thumbnail.
func (s *Service) readImage(r io.Reader) (*decoded, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, models.NewValidationError("file", "exceeds %d MB limit", s.maxBytes>>20)
	}
	if len(data) == 0 {
		return nil, models.NewValidationError("file", "is empty")
	}

	contentType := http.DetectContentType(data)
	ext, ok := imageMimeTypes[contentType]
	if !ok {
		return nil, models.NewValidationError("file", "unsupported image type %s", contentType)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, models.NewValidationError("file", "cannot decode image: %v", err)
	}
	thumb := img
	if img.Bounds().Dx() > s.thumbWidth {
		thumb = imaging.Resize(img, s.thumbWidth, 0, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	return &decoded{data: data, contentType: contentType, ext: ext, thumbnail: buf.Bytes()}, nil
}

func thumbnailKey(key string) string {
	dir, file := path.Split(key)
	return path.Join(dir, "thumbnails", strings.TrimSuffix(file, path.Ext(file))+".jpg")
}

// put stores the image and its thumbnail under dir and returns both keys.
func (s *Service) put(ctx context.Context, dir, suffix string, img *decoded) (string, string, error) {
	key := path.Join(dir, uuid.New().String()+suffix+img.ext)
	thumb := thumbnailKey(key)
	if err := s.store.Put(ctx, key, img.data, img.contentType); err != nil {
		return "", "", err
	}
	if err := s.store.Put(ctx, thumb, img.thumbnail, "image/jpeg"); err != nil {
		s.remove(ctx, key)
		return "", "", err
	}
	return key, thumb, nil
}

func (s *Service) remove(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.store.Delete(ctx, key); err != nil {
			config.LogError(s.log, "photos", "remove", "failed to delete stored object", key, err)
		}
	}
}

// byClientKey finds the photo an earlier upload with key created. It
// returns nil when there is none.
func byClientKey(db *gorm.DB, reportID, key uuid.UUID) (*models.Photo, error) {
	var photo models.Photo
	err := db.Where("client_key = ?", key).First(&photo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up photo: %w", err)
	}
	if photo.ReportID != reportID {
		return nil, models.NewValidationError("client_key", "already used by another report")
	}
	return &photo, nil
}

// Upload stores an image with its thumbnail under the school's folder and
// appends a photo row after the report's existing photos. An upload whose
// client key is already stored returns that photo and stores nothing.
func (s *Service) Upload(ctx context.Context, reportID uuid.UUID, in UploadInput, r io.Reader) (*models.Photo, error) {
	var report models.Report
	if err := s.db.WithContext(ctx).Preload("School").First(&report, "id = ?", reportID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("report %s: %w", reportID, models.ErrReportNotFound)
		}
		return nil, fmt.Errorf("failed to load report: %w", err)
	}
	if in.ItemKey != "" && in.SectionKey == "" {
		return nil, models.NewValidationError("section_key", "is required with item_key")
	}
	if in.ClientKey != nil {
		existing, err := byClientKey(s.db.WithContext(ctx), reportID, *in.ClientKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			s.log.WithFields(logrus.Fields{"report_id": reportID, "photo_id": existing.ID}).Info("photo upload replayed")
			return existing, nil
		}
	}

	img, err := s.readImage(r)
	if err != nil {
		return nil, err
	}

	root := "schools/" + report.SchoolID.String()
	if report.School != nil {
		root = report.School.StorageRoot()
	}
	dir := path.Join(root, "reports", reportID.String())
	key, thumb, err := s.put(ctx, dir, "", img)
	if err != nil {
		return nil, err
	}

	photo := &models.Photo{
		ReportID:        reportID,
		SectionKey:      models.ItemSectionKey(in.SectionKey, in.ItemKey),
		ExternalFileRef: key,
		ThumbnailRef:    thumb,
		Filename:        in.Filename,
		Caption:         in.Caption,
		Latitude:        in.Latitude,
		Longitude:       in.Longitude,
		ClientKey:       in.ClientKey,
	}
	if tag := strings.TrimSpace(in.LocationTag); tag != "" {
		photo.LocationTag = &tag
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxOrder int
		if err := tx.Model(&models.Photo{}).
			Where("report_id = ?", reportID).
			Select("COALESCE(MAX(sort_order), -1)").
			Scan(&maxOrder).Error; err != nil {
			return fmt.Errorf("failed to read sort order: %w", err)
		}
		photo.SortOrder = maxOrder + 1
		if err := tx.Create(photo).Error; err != nil {
			return fmt.Errorf("failed to create photo: %w", err)
		}
		return nil
	})
	if err != nil {
		s.remove(ctx, key, thumb)
		// a concurrent retry with the same key may have won the insert
		if in.ClientKey != nil {
			if existing, lookupErr := byClientKey(s.db.WithContext(ctx), reportID, *in.ClientKey); lookupErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}

	s.metrics.PhotosUploaded.WithLabelValues(s.store.Name()).Inc()
	s.log.WithFields(logrus.Fields{"report_id": reportID, "photo_id": photo.ID, "key": key}).Info("📷 photo uploaded")
	return photo, nil
}

// Get loads one photo.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Photo, error) {
	var photo models.Photo
	if err := s.db.WithContext(ctx).First(&photo, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("photo %s: %w", id, models.ErrPhotoNotFound)
		}
		return nil, fmt.Errorf("failed to load photo: %w", err)
	}
	return &photo, nil
}

// Annotate replaces a photo's image with a marked-up version. The original
// object is removed once the row points at the new one.
func (s *Service) Annotate(ctx context.Context, id uuid.UUID, r io.Reader) (*models.Photo, error) {
	photo, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	img, err := s.readImage(r)
	if err != nil {
		return nil, err
	}

	oldKey, oldThumb := photo.ExternalFileRef, photo.ThumbnailRef
	key, thumb, err := s.put(ctx, path.Dir(oldKey), "_markup", img)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(photo).Updates(map[string]interface{}{
		"external_file_ref": key,
		"thumbnail_ref":     thumb,
		"has_markup":        true,
	}).Error; err != nil {
		s.remove(ctx, key, thumb)
		return nil, fmt.Errorf("failed to update photo: %w", err)
	}
	s.remove(ctx, oldKey, oldThumb)

	photo.ExternalFileRef, photo.ThumbnailRef, photo.HasMarkup = key, thumb, true
	s.log.WithField("photo_id", id).Info("✏️ photo annotated")
	return photo, nil
}

// MetaInput edits a photo's caption, location tag or position.
type MetaInput struct {
	Caption     *string `json:"caption"`
	LocationTag *string `json:"locationTag"`
	SortOrder   *int    `json:"sortOrder"`
}

func (s *Service) UpdateMeta(ctx context.Context, id uuid.UUID, in MetaInput) (*models.Photo, error) {
	photo, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if in.Caption != nil {
		updates["caption"] = *in.Caption
	}
	if in.LocationTag != nil {
		tag := strings.TrimSpace(*in.LocationTag)
		if tag == "" {
			updates["location_tag"] = nil
		} else {
			updates["location_tag"] = tag
		}
	}
	if in.SortOrder != nil {
		updates["sort_order"] = *in.SortOrder
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(photo).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update photo: %w", err)
		}
	}
	return s.Get(ctx, id)
}

// ListByReport returns a report's photos in display order.
func (s *Service) ListByReport(ctx context.Context, reportID uuid.UUID) ([]models.Photo, error) {
	photos := []models.Photo{}
	if err := s.db.WithContext(ctx).
		Where("report_id = ?", reportID).
		Order("sort_order ASC").Order("created_at ASC").
		Find(&photos).Error; err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	return photos, nil
}

// Grouped returns a report's photos keyed by section key, with unsectioned
// photos under models.GeneralSection.
func (s *Service) Grouped(ctx context.Context, reportID uuid.UUID) (map[string][]View, error) {
	photos, err := s.ListByReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	grouped := map[string][]View{}
	for _, p := range photos {
		key := p.SectionKey
		if key == "" {
			key = models.GeneralSection
		}
		grouped[key] = append(grouped[key], s.ViewOf(p))
	}
	return grouped, nil
}

// ForItem returns the photos taken against one checklist item.
func (s *Service) ForItem(ctx context.Context, reportID uuid.UUID, section, item string) ([]models.Photo, error) {
	photos := []models.Photo{}
	if err := s.db.WithContext(ctx).
		Where("report_id = ? AND section_key = ?", reportID, models.ItemSectionKey(section, item)).
		Order("sort_order ASC").
		Find(&photos).Error; err != nil {
		return nil, fmt.Errorf("failed to list item photos: %w", err)
	}
	return photos, nil
}

// Delete removes the photo row and then its stored objects. Storage
// failures are logged, not returned.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	photo, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&models.Photo{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete photo: %w", err)
	}
	s.remove(ctx, photo.ExternalFileRef, photo.ThumbnailRef)
	s.log.WithField("photo_id", id).Info("🗑️ photo deleted")
	return nil
}

// RemoveObjects deletes stored objects left behind by a deleted report.
func (s *Service) RemoveObjects(ctx context.Context, keys []string) {
	s.remove(ctx, keys...)
}
