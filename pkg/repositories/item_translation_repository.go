package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inventory-app/glossary-sync/pkg/apperrors"
	"github.com/inventory-app/glossary-sync/pkg/database"
	"github.com/inventory-app/glossary-sync/pkg/models"
)

// ItemTranslationRepository provides data access for item translations.
type ItemTranslationRepository interface {
	Create(ctx context.Context, translation *models.ItemTranslation) error
	Update(ctx context.Context, translation *models.ItemTranslation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ItemTranslation, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// LockForDelete row-locks the translation so no sync can link it until the transaction ends.
	LockForDelete(ctx context.Context, id uuid.UUID) error
	// LockByItem row-locks every translation of the item.
	LockByItem(ctx context.Context, itemID uuid.UUID) (int64, error)

	// ListByLanguageAfter returns up to limit translations of a language with id greater than after,
	// ordered by id. Pass uuid.Nil to start from the beginning.
	ListByLanguageAfter(ctx context.Context, languageID string, after uuid.UUID, limit int) ([]*models.ItemTranslation, error)
	DeleteByItem(ctx context.Context, itemID uuid.UUID) (int64, error)
}

type itemTranslationRepository struct{}

// NewItemTranslationRepository creates a new ItemTranslationRepository.
func NewItemTranslationRepository() ItemTranslationRepository {
	return &itemTranslationRepository{}
}

var _ ItemTranslationRepository = (*itemTranslationRepository)(nil)

var (
	textColumnList = strings.Join(models.TranslationTextColumns, ", ")

	translationColumns = `id, item_id, language_id, ` + textColumnList +
		`, backward_compatibility, extra, created_at, updated_at`
)

func scanTranslation(row pgx.Row) (*models.ItemTranslation, error) {
	var t models.ItemTranslation
	dest := []any{&t.ID, &t.ItemID, &t.LanguageID}
	dest = append(dest, t.ScanTargets()...)
	dest = append(dest, &t.BackwardCompatibility, &t.Extra, &t.CreatedAt, &t.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &t, nil
}

// translationArgs returns the bind values for the text columns, starting at placeholder offset+1.
func translationArgs(t *models.ItemTranslation, offset int) (placeholders []string, args []any) {
	for i, field := range t.TextFields() {
		placeholders = append(placeholders, fmt.Sprintf("$%d", offset+i+1))
		args = append(args, field)
	}
	return placeholders, args
}

func (r *itemTranslationRepository) Create(ctx context.Context, translation *models.ItemTranslation) error {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return err
	}

	if translation.ID == uuid.Nil {
		translation.ID = uuid.New()
	}

	// $1..$3 fixed columns, then the text columns, then backward_compatibility, extra, timestamp.
	placeholders, textArgs := translationArgs(translation, 3)
	n := 3 + len(textArgs)
	query := fmt.Sprintf(`
		INSERT INTO item_translations (
			id, item_id, language_id, %s, backward_compatibility, extra, created_at, updated_at
		) VALUES ($1, $2, $3, %s, $%d, $%d, $%d, $%d)
		RETURNING created_at, updated_at`,
		textColumnList, strings.Join(placeholders, ", "), n+1, n+2, n+3, n+3)

	args := []any{translation.ID, translation.ItemID, translation.LanguageID}
	args = append(args, textArgs...)
	args = append(args, translation.BackwardCompatibility, nullJSON(translation.Extra), time.Now())

	err = q.QueryRow(ctx, query, args...).Scan(&translation.CreatedAt, &translation.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("item or language of translation: %w", apperrors.ErrNotFound)
		}
		return fmt.Errorf("failed to create item translation: %w", err)
	}

	return nil
}

func (r *itemTranslationRepository) Update(ctx context.Context, translation *models.ItemTranslation) error {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return err
	}

	placeholders, textArgs := translationArgs(translation, 2)
	sets := make([]string, len(placeholders))
	for i, col := range models.TranslationTextColumns {
		sets[i] = col + " = " + placeholders[i]
	}
	n := 2 + len(textArgs)
	query := fmt.Sprintf(`
		UPDATE item_translations
		SET language_id = $2, %s, backward_compatibility = $%d, extra = $%d, updated_at = NOW()
		WHERE id = $1
		RETURNING item_id, updated_at`,
		strings.Join(sets, ", "), n+1, n+2)

	args := []any{translation.ID, translation.LanguageID}
	args = append(args, textArgs...)
	args = append(args, translation.BackwardCompatibility, nullJSON(translation.Extra))

	err = q.QueryRow(ctx, query, args...).Scan(&translation.ItemID, &translation.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return apperrors.ErrNotFound
		case isForeignKeyViolation(err):
			return fmt.Errorf("language %q: %w", translation.LanguageID, apperrors.ErrNotFound)
		}
		return fmt.Errorf("failed to update item translation: %w", err)
	}

	return nil
}

func (r *itemTranslationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ItemTranslation, error) {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return nil, err
	}

	t, err := scanTranslation(q.QueryRow(ctx, `SELECT `+translationColumns+` FROM item_translations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get item translation: %w", err)
	}

	return t, nil
}

func (r *itemTranslationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return err
	}

	result, err := q.Exec(ctx, `DELETE FROM item_translations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete item translation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *itemTranslationRepository) LockForDelete(ctx context.Context, id uuid.UUID) error {
	return lockRow(ctx, "item_translations", id)
}

func (r *itemTranslationRepository) LockByItem(ctx context.Context, itemID uuid.UUID) (int64, error) {
	return lockRowsBy(ctx, "item_translations", "item_id", itemID)
}

func (r *itemTranslationRepository) ListByLanguageAfter(ctx context.Context, languageID string, after uuid.UUID, limit int) ([]*models.ItemTranslation, error) {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + translationColumns + `
		FROM item_translations
		WHERE language_id = $1 AND id > $2
		ORDER BY id
		LIMIT $3`

	rows, err := q.Query(ctx, query, languageID, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list item translations: %w", err)
	}
	defer rows.Close()

	translations := make([]*models.ItemTranslation, 0, limit)
	for rows.Next() {
		t, err := scanTranslation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item translation: %w", err)
		}
		translations = append(translations, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item translations: %w", err)
	}

	return translations, nil
}

func (r *itemTranslationRepository) DeleteByItem(ctx context.Context, itemID uuid.UUID) (int64, error) {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return 0, err
	}

	result, err := q.Exec(ctx, `DELETE FROM item_translations WHERE item_id = $1`, itemID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete translations of item: %w", err)
	}

	return result.RowsAffected(), nil
}
