package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inventory-app/glossary-sync/pkg/apperrors"
	"github.com/inventory-app/glossary-sync/pkg/database"
	"github.com/inventory-app/glossary-sync/pkg/models"
)

// ItemRepository provides data access for items.
type ItemRepository interface {
	Create(ctx context.Context, item *models.Item) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Item, error)
	Delete(ctx context.Context, id uuid.UUID) error
	LockForDelete(ctx context.Context, id uuid.UUID) error
}

type itemRepository struct{}

// NewItemRepository creates a new ItemRepository.
func NewItemRepository() ItemRepository {
	return &itemRepository{}
}

var _ ItemRepository = (*itemRepository)(nil)

func (r *itemRepository) Create(ctx context.Context, item *models.Item) error {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return err
	}

	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}

	query := `
		INSERT INTO items (id, internal_name, backward_compatibility, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING created_at, updated_at`

	err = q.QueryRow(ctx, query, item.ID, item.InternalName, item.BackwardCompatibility, time.Now()).
		Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}

	return nil
}

func (r *itemRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return nil, err
	}

	var item models.Item
	err = q.QueryRow(ctx, `
		SELECT id, internal_name, backward_compatibility, created_at, updated_at
		FROM items WHERE id = $1`, id).
		Scan(&item.ID, &item.InternalName, &item.BackwardCompatibility, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	return &item, nil
}

func (r *itemRepository) Delete(ctx context.Context, id uuid.UUID) error {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return err
	}

	result, err := q.Exec(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *itemRepository) LockForDelete(ctx context.Context, id uuid.UUID) error {
	return lockRow(ctx, "items", id)
}
