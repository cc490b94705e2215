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

// GlossaryRepository provides data access for glossary entries, their synonyms and
// their per-language definitions.
type GlossaryRepository interface {
	Create(ctx context.Context, glossary *models.Glossary) error
	Update(ctx context.Context, glossary *models.Glossary) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Glossary, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// LockForDelete row-locks the entry until the transaction ends.
	LockForDelete(ctx context.Context, id uuid.UUID) error

	// AttachSynonym links two entries in both directions. Existing links are kept.
	AttachSynonym(ctx context.Context, glossaryID, synonymID uuid.UUID) error
	// DetachSynonym removes the link in both directions.
	DetachSynonym(ctx context.Context, glossaryID, synonymID uuid.UUID) error
	ListSynonyms(ctx context.Context, glossaryID uuid.UUID) ([]*models.Glossary, error)
	// DeleteSynonyms removes every synonym row that references the entry, in either column.
	DeleteSynonyms(ctx context.Context, glossaryID uuid.UUID) (int64, error)

	// CreateTranslation stores a definition. A second one for the same language is a conflict.
	CreateTranslation(ctx context.Context, translation *models.GlossaryTranslation) error
	ListTranslations(ctx context.Context, glossaryID uuid.UUID) ([]*models.GlossaryTranslation, error)
	DeleteTranslations(ctx context.Context, glossaryID uuid.UUID) (int64, error)
}

type glossaryRepository struct{}

// NewGlossaryRepository creates a new GlossaryRepository.
func NewGlossaryRepository() GlossaryRepository {
	return &glossaryRepository{}
}

var _ GlossaryRepository = (*glossaryRepository)(nil)

// ============================================================================
// CRUD Operations
// ============================================================================

func (r *glossaryRepository) Create(ctx context.Context, glossary *models.Glossary) error {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return err
	}

	if glossary.ID == uuid.Nil {
		glossary.ID = uuid.New()
	}
	now := time.Now()

	query := `
		INSERT INTO glossaries (id, internal_name, backward_compatibility, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING created_at, updated_at`

	err = q.QueryRow(ctx, query,
		glossary.ID,
		glossary.InternalName,
		glossary.BackwardCompatibility,
		now,
	).Scan(&glossary.CreatedAt, &glossary.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("glossary %q: %w", glossary.InternalName, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create glossary: %w", err)
	}

	return nil
}

func (r *glossaryRepository) Update(ctx context.Context, glossary *models.Glossary) error {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE glossaries
		SET internal_name = $2, backward_compatibility = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err = q.QueryRow(ctx, query,
		glossary.ID,
		glossary.InternalName,
		glossary.BackwardCompatibility,
	).Scan(&glossary.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("glossary %q: %w", glossary.InternalName, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to update glossary: %w", err)
	}

	return nil
}

func (r *glossaryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Glossary, error) {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, internal_name, backward_compatibility, created_at, updated_at
		FROM glossaries
		WHERE id = $1`

	var g models.Glossary
	err = q.QueryRow(ctx, query, id).Scan(
		&g.ID, &g.InternalName, &g.BackwardCompatibility, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get glossary: %w", err)
	}

	return &g, nil
}

func (r *glossaryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return err
	}

	result, err := q.Exec(ctx, `DELETE FROM glossaries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete glossary: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *glossaryRepository) LockForDelete(ctx context.Context, id uuid.UUID) error {
	return lockRow(ctx, "glossaries", id)
}

// ============================================================================
// Synonyms
// ============================================================================

func (r *glossaryRepository) AttachSynonym(ctx context.Context, glossaryID, synonymID uuid.UUID) error {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO glossary_synonyms (glossary_id, synonym_id)
		VALUES ($1, $2), ($2, $1)
		ON CONFLICT (glossary_id, synonym_id) DO NOTHING`

	if _, err := q.Exec(ctx, query, glossaryID, synonymID); err != nil {
		if isForeignKeyViolation(err) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("failed to attach synonym: %w", err)
	}

	return nil
}

func (r *glossaryRepository) DetachSynonym(ctx context.Context, glossaryID, synonymID uuid.UUID) error {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return err
	}

	query := `
		DELETE FROM glossary_synonyms
		WHERE (glossary_id = $1 AND synonym_id = $2)
		   OR (glossary_id = $2 AND synonym_id = $1)`

	if _, err := q.Exec(ctx, query, glossaryID, synonymID); err != nil {
		return fmt.Errorf("failed to detach synonym: %w", err)
	}

	return nil
}

func (r *glossaryRepository) ListSynonyms(ctx context.Context, glossaryID uuid.UUID) ([]*models.Glossary, error) {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT g.id, g.internal_name, g.backward_compatibility, g.created_at, g.updated_at
		FROM glossary_synonyms s
		JOIN glossaries g ON g.id = s.synonym_id
		WHERE s.glossary_id = $1
		ORDER BY g.internal_name`

	rows, err := q.Query(ctx, query, glossaryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list synonyms: %w", err)
	}
	defer rows.Close()

	var synonyms []*models.Glossary
	for rows.Next() {
		var g models.Glossary
		if err := rows.Scan(&g.ID, &g.InternalName, &g.BackwardCompatibility, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan synonym: %w", err)
		}
		synonyms = append(synonyms, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating synonyms: %w", err)
	}

	return synonyms, nil
}

func (r *glossaryRepository) DeleteSynonyms(ctx context.Context, glossaryID uuid.UUID) (int64, error) {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return 0, err
	}

	result, err := q.Exec(ctx,
		`DELETE FROM glossary_synonyms WHERE glossary_id = $1 OR synonym_id = $1`, glossaryID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete synonyms: %w", err)
	}

	return result.RowsAffected(), nil
}

// ============================================================================
// Translations
// ============================================================================

func (r *glossaryRepository) CreateTranslation(ctx context.Context, translation *models.GlossaryTranslation) error {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return err
	}

	if translation.ID == uuid.Nil {
		translation.ID = uuid.New()
	}
	now := time.Now()

	query := `
		INSERT INTO glossary_translations (id, glossary_id, language_id, definition, backward_compatibility, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING created_at, updated_at`

	err = q.QueryRow(ctx, query,
		translation.ID,
		translation.GlossaryID,
		translation.LanguageID,
		translation.Definition,
		translation.BackwardCompatibility,
		now,
	).Scan(&translation.CreatedAt, &translation.UpdatedAt)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return fmt.Errorf("glossary translation %q: %w", translation.LanguageID, apperrors.ErrConflict)
		case isForeignKeyViolation(err):
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("failed to create glossary translation: %w", err)
	}

	return nil
}

func (r *glossaryRepository) ListTranslations(ctx context.Context, glossaryID uuid.UUID) ([]*models.GlossaryTranslation, error) {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, glossary_id, language_id, definition, backward_compatibility, created_at, updated_at
		FROM glossary_translations
		WHERE glossary_id = $1
		ORDER BY language_id`

	rows, err := q.Query(ctx, query, glossaryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list glossary translations: %w", err)
	}
	defer rows.Close()

	var translations []*models.GlossaryTranslation
	for rows.Next() {
		var t models.GlossaryTranslation
		if err := rows.Scan(&t.ID, &t.GlossaryID, &t.LanguageID, &t.Definition,
			&t.BackwardCompatibility, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan glossary translation: %w", err)
		}
		translations = append(translations, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating glossary translations: %w", err)
	}

	return translations, nil
}

func (r *glossaryRepository) DeleteTranslations(ctx context.Context, glossaryID uuid.UUID) (int64, error) {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return 0, err
	}

	result, err := q.Exec(ctx, `DELETE FROM glossary_translations WHERE glossary_id = $1`, glossaryID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete glossary translations: %w", err)
	}

	return result.RowsAffected(), nil
}
