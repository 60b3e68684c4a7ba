package offers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/offers-backend/pkg/db/models"
	"github.com/angelmondragon/offers-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/offers-backend/pkg/errors"
)

// Repository persists offers and their publish history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByCode(ctx context.Context, offerCode, storeCode string) (*models.Offer, error)
	CompareAndSetStatus(ctx context.Context, offerID uuid.UUID, from enums.OfferStatus, updates map[string]any) (bool, error)
	CreateHistory(ctx context.Context, entry *models.OfferHistory) error
	ListHistory(ctx context.Context, offerID uuid.UUID) ([]models.OfferHistory, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an offers repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByCode(ctx context.Context, offerCode, storeCode string) (*models.Offer, error) {
	var offer models.Offer
	err := r.db.WithContext(ctx).
		Where("offer_code = ? AND store_code = ?", offerCode, storeCode).
		First(&offer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("offer %s not found in store %s", offerCode, storeCode))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load offer")
	}
	return &offer, nil
}

// CompareAndSetStatus applies updates only while the row still has status
// from. It reports whether the row was updated.
func (r *repository) CompareAndSetStatus(ctx context.Context, offerID uuid.UUID, from enums.OfferStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Offer{}).
		Where("id = ? AND status_id = ?", offerID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CreateHistory(ctx context.Context, entry *models.OfferHistory) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListHistory(ctx context.Context, offerID uuid.UUID) ([]models.OfferHistory, error) {
	var rows []models.OfferHistory
	err := r.db.WithContext(ctx).
		Where("offer_id = ?", offerID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
