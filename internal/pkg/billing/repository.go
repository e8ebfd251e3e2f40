package billing

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/DaCoderMan/workitu-tech-website-sub000/app/models"
	"github.com/DaCoderMan/workitu-tech-website-sub000/internal/pkg/entitlements"
)

const defaultStorageTimeout = 10 * time.Second

// EntitlementUpsert is the full target state of one entitlement record.
type EntitlementUpsert struct {
	UserID         string
	EntitlementKey string
	SourceID       string
	Status         string
	SourceProvider string
	SourceType     string
	StartsAt       time.Time
	ExpiresAt      *time.Time
	Meta           map[string]any
}

// Repository persists entitlements and webhook bookkeeping.
type Repository interface {
	UpsertEntitlement(ctx context.Context, in EntitlementUpsert) (*models.Entitlement, error)
	RevokeEntitlement(ctx context.Context, userID, entitlementKey, sourceID string) error
	HasActiveEntitlement(ctx context.Context, userID, entitlementKey string, now time.Time) (bool, error)
	ListEntitlements(ctx context.Context, userID string) ([]models.Entitlement, error)
	FindSourceOwner(ctx context.Context, sourceProvider, sourceID string) (string, error)
	IsWebhookProcessed(ctx context.Context, eventKey string) (bool, error)
	MarkWebhookProcessed(ctx context.Context, eventKey string, markerContext map[string]any) error
	LogWebhookEvent(ctx context.Context, event *models.WebhookEvent) error
}

type gormRepository struct {
	db      *gorm.DB
	timeout time.Duration
}

// NewRepository creates a billing repository backed by GORM. Every call is
// bounded by timeout.
func NewRepository(db *gorm.DB, timeout time.Duration) Repository {
	if timeout <= 0 {
		timeout = defaultStorageTimeout
	}
	return &gormRepository{db: db, timeout: timeout}
}

func (r *gormRepository) conn(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	return r.db.WithContext(ctx), cancel
}

// UpsertEntitlement writes the record in a single conflict-aware insert and
// reads it back inside the same transaction. starts_at and created_at keep
// their first values.
func (r *gormRepository) UpsertEntitlement(ctx context.Context, in EntitlementUpsert) (*models.Entitlement, error) {
	if in.UserID == "" || in.EntitlementKey == "" || in.SourceID == "" {
		return nil, validationError("user id, entitlement key and source id are required")
	}

	meta := "{}"
	if len(in.Meta) > 0 {
		b, err := json.Marshal(in.Meta)
		if err != nil {
			return nil, validationError("entitlement meta: %v", err)
		}
		meta = string(b)
	}

	row := models.Entitlement{
		UserID:         in.UserID,
		EntitlementKey: in.EntitlementKey,
		SourceID:       in.SourceID,
		Status:         in.Status,
		SourceProvider: in.SourceProvider,
		SourceType:     in.SourceType,
		StartsAt:       in.StartsAt.UTC(),
		ExpiresAt:      utcPtr(in.ExpiresAt),
		MetaJSON:       meta,
	}

	db, cancel := r.conn(ctx)
	defer cancel()

	var stored models.Entitlement
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "user_id"},
				{Name: "entitlement_key"},
				{Name: "source_id"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"status",
				"source_provider",
				"source_type",
				"expires_at",
				"meta_json",
				"updated_at",
			}),
		}).Create(&row).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ? AND entitlement_key = ? AND source_id = ?", in.UserID, in.EntitlementKey, in.SourceID).
			First(&stored).Error
	})
	if err != nil {
		return nil, storageError("upsert entitlement", err)
	}
	return &stored, nil
}

func (r *gormRepository) RevokeEntitlement(ctx context.Context, userID, entitlementKey, sourceID string) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	res := db.Model(&models.Entitlement{}).
		Where("user_id = ? AND entitlement_key = ? AND source_id = ?", userID, entitlementKey, sourceID).
		Updates(map[string]interface{}{
			"status":     models.EntitlementStatusExpired,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return storageError("revoke entitlement", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFoundError("entitlement %s for source %s", entitlementKey, sourceID)
	}
	return nil
}

// HasActiveEntitlement loads the candidate records and applies
// entitlements.GrantsAccess to each.
func (r *gormRepository) HasActiveEntitlement(ctx context.Context, userID, entitlementKey string, now time.Time) (bool, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var rows []models.Entitlement
	err := db.Select("status", "expires_at").
		Where("user_id = ? AND entitlement_key = ? AND status IN ?", userID, entitlementKey,
			[]string{models.EntitlementStatusActive, models.EntitlementStatusCanceled}).
		Find(&rows).Error
	if err != nil {
		return false, storageError("has active entitlement", err)
	}
	for _, row := range rows {
		if entitlements.GrantsAccess(row.Status, row.ExpiresAt, now) {
			return true, nil
		}
	}
	return false, nil
}

func (r *gormRepository) ListEntitlements(ctx context.Context, userID string) ([]models.Entitlement, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var rows []models.Entitlement
	if err := db.Where("user_id = ?", userID).Order("entitlement_key ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, storageError("list entitlements", err)
	}
	return rows, nil
}

// FindSourceOwner returns the user holding entitlements from a provider
// source, for lifecycle events that do not carry the payer's email.
func (r *gormRepository) FindSourceOwner(ctx context.Context, sourceProvider, sourceID string) (string, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var row models.Entitlement
	err := db.Select("user_id").
		Where("source_provider = ? AND source_id = ?", sourceProvider, sourceID).
		Order("id ASC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", notFoundError("no entitlements for %s source %s", sourceProvider, sourceID)
	}
	if err != nil {
		return "", storageError("find source owner", err)
	}
	return row.UserID, nil
}

func (r *gormRepository) IsWebhookProcessed(ctx context.Context, eventKey string) (bool, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var count int64
	if err := db.Model(&models.WebhookMarker{}).Where("event_key = ?", eventKey).Count(&count).Error; err != nil {
		return false, storageError("check webhook marker", err)
	}
	return count > 0, nil
}

// MarkWebhookProcessed inserts the marker; an existing marker is left as is.
func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, eventKey string, markerContext map[string]any) error {
	if strings.TrimSpace(eventKey) == "" {
		return validationError("event key is required")
	}
	ctxJSON := "{}"
	if len(markerContext) > 0 {
		b, err := json.Marshal(markerContext)
		if err != nil {
			return validationError("marker context: %v", err)
		}
		ctxJSON = string(b)
	}

	db, cancel := r.conn(ctx)
	defer cancel()

	marker := &models.WebhookMarker{EventKey: eventKey, ContextJSON: ctxJSON}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_key"}},
		DoNothing: true,
	}).Create(marker).Error
	return storageError("mark webhook processed", err)
}

func (r *gormRepository) LogWebhookEvent(ctx context.Context, event *models.WebhookEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	db, cancel := r.conn(ctx)
	defer cancel()
	return storageError("log webhook event", db.Create(event).Error)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
