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

// SpellingRepository provides data access for glossary spellings.
type SpellingRepository interface {
	Create(ctx context.Context, spelling *models.GlossarySpelling) error
	Update(ctx context.Context, spelling *models.GlossarySpelling) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.GlossarySpelling, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// LockForDelete row-locks the spelling so no sync can link it until the transaction ends.
	LockForDelete(ctx context.Context, id uuid.UUID) error
	// LockByGlossary row-locks every spelling of the entry.
	LockByGlossary(ctx context.Context, glossaryID uuid.UUID) (int64, error)

	// ListByLanguageAfter returns up to limit spellings of a language with id greater than after,
	// ordered by id. Pass uuid.Nil to start from the beginning.
	ListByLanguageAfter(ctx context.Context, languageID string, after uuid.UUID, limit int) ([]*models.GlossarySpelling, error)
	// ListIDsAfter pages through all spelling ids regardless of language.
	ListIDsAfter(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
	DeleteByGlossary(ctx context.Context, glossaryID uuid.UUID) (int64, error)
}

type spellingRepository struct{}

// NewSpellingRepository creates a new SpellingRepository.
func NewSpellingRepository() SpellingRepository {
	return &spellingRepository{}
}

var _ SpellingRepository = (*spellingRepository)(nil)

const spellingColumns = `id, glossary_id, language_id, spelling, created_at, updated_at`

func scanSpelling(row pgx.Row) (*models.GlossarySpelling, error) {
	var s models.GlossarySpelling
	if err := row.Scan(&s.ID, &s.GlossaryID, &s.LanguageID, &s.Spelling, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *spellingRepository) Create(ctx context.Context, spelling *models.GlossarySpelling) error {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return err
	}

	if spelling.ID == uuid.Nil {
		spelling.ID = uuid.New()
	}
	now := time.Now()

	query := `
		INSERT INTO glossary_spellings (id, glossary_id, language_id, spelling, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING created_at, updated_at`

	err = q.QueryRow(ctx, query,
		spelling.ID,
		spelling.GlossaryID,
		spelling.LanguageID,
		spelling.Spelling,
		now,
	).Scan(&spelling.CreatedAt, &spelling.UpdatedAt)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return fmt.Errorf("spelling %q: %w", spelling.Spelling, apperrors.ErrConflict)
		case isForeignKeyViolation(err):
			return fmt.Errorf("glossary or language of spelling: %w", apperrors.ErrNotFound)
		}
		return fmt.Errorf("failed to create spelling: %w", err)
	}

	return nil
}

func (r *spellingRepository) Update(ctx context.Context, spelling *models.GlossarySpelling) error {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return err
	}

	query := `
		UPDATE glossary_spellings
		SET language_id = $2, spelling = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING glossary_id, updated_at`

	err = q.QueryRow(ctx, query,
		spelling.ID,
		spelling.LanguageID,
		spelling.Spelling,
	).Scan(&spelling.GlossaryID, &spelling.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return apperrors.ErrNotFound
		case isUniqueViolation(err):
			return fmt.Errorf("spelling %q: %w", spelling.Spelling, apperrors.ErrConflict)
		case isForeignKeyViolation(err):
			return fmt.Errorf("language %q: %w", spelling.LanguageID, apperrors.ErrNotFound)
		}
		return fmt.Errorf("failed to update spelling: %w", err)
	}

	return nil
}

func (r *spellingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.GlossarySpelling, error) {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return nil, err
	}

	s, err := scanSpelling(q.QueryRow(ctx, `SELECT `+spellingColumns+` FROM glossary_spellings WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get spelling: %w", err)
	}

	return s, nil
}

func (r *spellingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return err
	}

	result, err := q.Exec(ctx, `DELETE FROM glossary_spellings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete spelling: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *spellingRepository) LockForDelete(ctx context.Context, id uuid.UUID) error {
	return lockRow(ctx, "glossary_spellings", id)
}

func (r *spellingRepository) LockByGlossary(ctx context.Context, glossaryID uuid.UUID) (int64, error) {
	return lockRowsBy(ctx, "glossary_spellings", "glossary_id", glossaryID)
}

func (r *spellingRepository) ListByLanguageAfter(ctx context.Context, languageID string, after uuid.UUID, limit int) ([]*models.GlossarySpelling, error) {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + spellingColumns + `
		FROM glossary_spellings
		WHERE language_id = $1 AND id > $2
		ORDER BY id
		LIMIT $3`

	rows, err := q.Query(ctx, query, languageID, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list spellings: %w", err)
	}
	defer rows.Close()

	spellings := make([]*models.GlossarySpelling, 0, limit)
	for rows.Next() {
		s, err := scanSpelling(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan spelling: %w", err)
		}
		spellings = append(spellings, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating spellings: %w", err)
	}

	return spellings, nil
}

func (r *spellingRepository) ListIDsAfter(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx,
		`SELECT id FROM glossary_spellings WHERE id > $1 ORDER BY id LIMIT $2`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list spelling ids: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to scan spelling ids: %w", err)
	}
	return ids, nil
}

func (r *spellingRepository) DeleteByGlossary(ctx context.Context, glossaryID uuid.UUID) (int64, error) {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return 0, err
	}

	result, err := q.Exec(ctx, `DELETE FROM glossary_spellings WHERE glossary_id = $1`, glossaryID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete spellings of glossary: %w", err)
	}

	return result.RowsAffected(), nil
}
