package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/imagegenio/orchestrator/internal/domain"
	"github.com/imagegenio/orchestrator/internal/infrastructure/storage/models"
)

// ImageRepository persists generated images, which are immutable once written.
type ImageRepository struct {
	db *bun.DB
}

// NewImageRepository creates a new ImageRepository.
func NewImageRepository(db *bun.DB) *ImageRepository {
	return &ImageRepository{db: db}
}

// Create inserts one generated image row.
func (r *ImageRepository) Create(ctx context.Context, img *domain.GeneratedImage) error {
	if img.ID == "" {
		img.ID = uuid.New().String()
	}
	m := imageToStorage(*img)
	_, err := r.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("create generated image: %w", err)
	}
	return nil
}

// CreateBatch inserts every image of one iteration in a single statement.
func (r *ImageRepository) CreateBatch(ctx context.Context, images []*domain.GeneratedImage) error {
	if len(images) == 0 {
		return nil
	}
	rows := make([]*models.GeneratedImageModel, len(images))
	for i, img := range images {
		if img.ID == "" {
			img.ID = uuid.New().String()
		}
		rows[i] = imageToStorage(*img)
	}
	_, err := r.db.NewInsert().Model(&rows).Exec(ctx)
	if err != nil {
		return fmt.Errorf("create generated image batch: %w", err)
	}
	return nil
}

// FindByID loads one generated image by id.
func (r *ImageRepository) FindByID(ctx context.Context, id string) (*domain.GeneratedImage, error) {
	m := &models.GeneratedImageModel{}
	err := r.db.NewSelect().Model(m).Where("id = ?", id).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("find generated image: %w", err)
	}
	img := imageFromStorage(m)
	return &img, nil
}

// FindByRequestID loads every image generated for a request, in creation order.
func (r *ImageRepository) FindByRequestID(ctx context.Context, requestID string) ([]domain.GeneratedImage, error) {
	var rows []*models.GeneratedImageModel
	err := r.db.NewSelect().
		Model(&rows).
		Where("request_id = ?", requestID).
		Order("iteration_number ASC", "created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("find generated images for request: %w", err)
	}
	images := make([]domain.GeneratedImage, len(rows))
	for i, row := range rows {
		images[i] = imageFromStorage(row)
	}
	return images, nil
}
