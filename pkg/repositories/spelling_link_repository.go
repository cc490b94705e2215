package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inventory-app/glossary-sync/pkg/apperrors"
	"github.com/inventory-app/glossary-sync/pkg/database"
)

// SpellingLinkRepository maintains item_translation_spelling, the links between
// item translations and the spellings found in their text.
type SpellingLinkRepository interface {
	// Lock serializes writers of the same key until the surrounding transaction ends.
	Lock(ctx context.Context, key string) error

	// ReplaceForTranslation makes spellingIDs the exact link set of the translation.
	// Returns apperrors.ErrNotFound if the translation is gone; vanished spellings are skipped.
	ReplaceForTranslation(ctx context.Context, translationID uuid.UUID, spellingIDs []uuid.UUID) (LinkDelta, error)
	// ReplaceForSpelling makes translationIDs the exact link set of the spelling.
	// Returns apperrors.ErrNotFound if the spelling is gone; vanished translations are skipped.
	ReplaceForSpelling(ctx context.Context, spellingID uuid.UUID, translationIDs []uuid.UUID) (LinkDelta, error)

	ListSpellingIDs(ctx context.Context, translationID uuid.UUID) ([]uuid.UUID, error)
	ListTranslationIDs(ctx context.Context, spellingID uuid.UUID) ([]uuid.UUID, error)

	DeleteByTranslation(ctx context.Context, translationID uuid.UUID) (int64, error)
	DeleteBySpelling(ctx context.Context, spellingID uuid.UUID) (int64, error)
	DeleteByGlossary(ctx context.Context, glossaryID uuid.UUID) (int64, error)
	DeleteByItem(ctx context.Context, itemID uuid.UUID) (int64, error)
}

// LinkDelta counts the rows changed by a replace.
type LinkDelta struct {
	Added   int64
	Removed int64
}

type spellingLinkRepository struct{}

// NewSpellingLinkRepository creates a new SpellingLinkRepository.
func NewSpellingLinkRepository() SpellingLinkRepository {
	return &spellingLinkRepository{}
}

var _ SpellingLinkRepository = (*spellingLinkRepository)(nil)

func (r *spellingLinkRepository) Lock(ctx context.Context, key string) error {
	return database.AdvisoryXactLock(ctx, key)
}

// replace runs the delete-then-insert pair shared by both replace directions.
// ownerCol is the fixed side of the link and ownerTable the table it references;
// otherCol is the side given by ids and otherTable its table.
//
// Both sides are read FOR KEY SHARE. A deletion holds FOR UPDATE on its row before it
// removes links, so a replace racing it either finishes first and its links are
// removed by the deletion, or waits and then sees the row gone: a vanished owner
// returns apperrors.ErrNotFound and vanished ids are skipped.
func replace(ctx context.Context, ownerCol, ownerTable, otherCol, otherTable string, owner uuid.UUID, ids []uuid.UUID) (LinkDelta, error) {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return LinkDelta{}, err
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}

	var locked uuid.UUID
	err = q.QueryRow(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE id = $1 FOR KEY SHARE`, ownerTable), owner).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LinkDelta{}, apperrors.ErrNotFound
		}
		return LinkDelta{}, fmt.Errorf("failed to lock link owner: %w", err)
	}

	var delta LinkDelta

	deleteQuery := fmt.Sprintf(`
		DELETE FROM item_translation_spelling
		WHERE %s = $1 AND NOT (%s = ANY($2::uuid[]))`, ownerCol, otherCol)

	result, err := q.Exec(ctx, deleteQuery, owner, ids)
	if err != nil {
		return LinkDelta{}, fmt.Errorf("failed to remove stale links: %w", err)
	}
	delta.Removed = result.RowsAffected()

	if len(ids) == 0 {
		return delta, nil
	}

	insertQuery := fmt.Sprintf(`
		INSERT INTO item_translation_spelling (%s, %s)
		SELECT $1::uuid, o.id FROM (
			SELECT id FROM %s WHERE id = ANY($2::uuid[]) ORDER BY id FOR KEY SHARE
		) o
		ON CONFLICT (item_translation_id, spelling_id) DO NOTHING`, ownerCol, otherCol, otherTable)

	result, err = q.Exec(ctx, insertQuery, owner, ids)
	if err != nil {
		return LinkDelta{}, fmt.Errorf("failed to insert links: %w", err)
	}
	delta.Added = result.RowsAffected()

	return delta, nil
}

func (r *spellingLinkRepository) ReplaceForTranslation(ctx context.Context, translationID uuid.UUID, spellingIDs []uuid.UUID) (LinkDelta, error) {
	return replace(ctx, "item_translation_id", "item_translations", "spelling_id", "glossary_spellings", translationID, spellingIDs)
}

func (r *spellingLinkRepository) ReplaceForSpelling(ctx context.Context, spellingID uuid.UUID, translationIDs []uuid.UUID) (LinkDelta, error) {
	return replace(ctx, "spelling_id", "glossary_spellings", "item_translation_id", "item_translations", spellingID, translationIDs)
}

func listIDs(ctx context.Context, query string, arg uuid.UUID) ([]uuid.UUID, error) {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to scan links: %w", err)
	}
	return ids, nil
}

func (r *spellingLinkRepository) ListSpellingIDs(ctx context.Context, translationID uuid.UUID) ([]uuid.UUID, error) {
	return listIDs(ctx, `
		SELECT spelling_id FROM item_translation_spelling
		WHERE item_translation_id = $1
		ORDER BY spelling_id`, translationID)
}

func (r *spellingLinkRepository) ListTranslationIDs(ctx context.Context, spellingID uuid.UUID) ([]uuid.UUID, error) {
	return listIDs(ctx, `
		SELECT item_translation_id FROM item_translation_spelling
		WHERE spelling_id = $1
		ORDER BY item_translation_id`, spellingID)
}

func deleteLinks(ctx context.Context, query string, arg uuid.UUID) (int64, error) {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return 0, err
	}

	result, err := q.Exec(ctx, query, arg)
	if err != nil {
		return 0, fmt.Errorf("failed to delete links: %w", err)
	}
	return result.RowsAffected(), nil
}

func (r *spellingLinkRepository) DeleteByTranslation(ctx context.Context, translationID uuid.UUID) (int64, error) {
	return deleteLinks(ctx, `DELETE FROM item_translation_spelling WHERE item_translation_id = $1`, translationID)
}

func (r *spellingLinkRepository) DeleteBySpelling(ctx context.Context, spellingID uuid.UUID) (int64, error) {
	return deleteLinks(ctx, `DELETE FROM item_translation_spelling WHERE spelling_id = $1`, spellingID)
}

func (r *spellingLinkRepository) DeleteByGlossary(ctx context.Context, glossaryID uuid.UUID) (int64, error) {
	return deleteLinks(ctx, `
		DELETE FROM item_translation_spelling
		WHERE spelling_id IN (SELECT id FROM glossary_spellings WHERE glossary_id = $1)`, glossaryID)
}

func (r *spellingLinkRepository) DeleteByItem(ctx context.Context, itemID uuid.UUID) (int64, error) {
	return deleteLinks(ctx, `
		DELETE FROM item_translation_spelling
		WHERE item_translation_id IN (SELECT id FROM item_translations WHERE item_id = $1)`, itemID)
}
