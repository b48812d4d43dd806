package repository

import (
	"gorm.io/gorm"

	"github.com/rr7r44795y-lgtm/crosspost/app/models"
)

// contentRepository implements the ContentRepository interface
type contentRepository struct {
	db *gorm.DB
}

// NewContentRepository creates a new content repository instance
func NewContentRepository(db *gorm.DB) ContentRepository {
	return &contentRepository{db: db}
}

func (r *contentRepository) Create(item *models.ContentItem) error {
	return r.db.Create(item).Error
}

func (r *contentRepository) GetByID(id uint) (*models.ContentItem, error) {
	var item models.ContentItem
	err := r.db.First(&item, id).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *contentRepository) GetByUUID(uuid string) (*models.ContentItem, error) {
	var item models.ContentItem
	err := r.db.Where("uuid = ?", uuid).First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *contentRepository) ListByUser(userID uint) ([]models.ContentItem, error) {
	var items []models.ContentItem
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&items).Error
	return items, err
}
