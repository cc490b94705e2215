package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/inventory-app/glossary-sync/pkg/apperrors"
	"github.com/inventory-app/glossary-sync/pkg/database"
	"github.com/inventory-app/glossary-sync/pkg/models"
)

// LanguageRepository provides data access for languages.
type LanguageRepository interface {
	// Upsert creates the language or updates its names.
	Upsert(ctx context.Context, language *models.Language) error
	GetByID(ctx context.Context, id string) (*models.Language, error)
}

type languageRepository struct{}

// NewLanguageRepository creates a new LanguageRepository.
func NewLanguageRepository() LanguageRepository {
	return &languageRepository{}
}

var _ LanguageRepository = (*languageRepository)(nil)

func (r *languageRepository) Upsert(ctx context.Context, language *models.Language) error {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO languages (id, internal_name, backward_compatibility)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET internal_name = EXCLUDED.internal_name,
		    backward_compatibility = EXCLUDED.backward_compatibility,
		    updated_at = NOW()
		RETURNING created_at, updated_at`

	err = q.QueryRow(ctx, query, language.ID, language.InternalName, language.BackwardCompatibility).
		Scan(&language.CreatedAt, &language.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert language: %w", err)
	}

	return nil
}

func (r *languageRepository) GetByID(ctx context.Context, id string) (*models.Language, error) {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return nil, err
	}

	var l models.Language
	err = q.QueryRow(ctx, `
		SELECT id, internal_name, backward_compatibility, created_at, updated_at
		FROM languages WHERE id = $1`, id).
		Scan(&l.ID, &l.InternalName, &l.BackwardCompatibility, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get language: %w", err)
	}

	return &l, nil
}
