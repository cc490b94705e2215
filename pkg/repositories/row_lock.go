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

// lockRow takes a FOR UPDATE lock on one row until the surrounding transaction ends.
// Link writers hold FOR KEY SHARE on the rows they reference, so they wait for the
// lock holder and skip the row if it was deleted meanwhile.
func lockRow(ctx context.Context, table string, id uuid.UUID) error {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return err
	}

	var locked uuid.UUID
	err = q.QueryRow(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE id = $1 FOR UPDATE`, table), id).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("failed to lock %s row: %w", table, err)
	}
	return nil
}

// lockRowsBy locks every row of table whose column equals value, in id order.
func lockRowsBy(ctx context.Context, table, column string, value uuid.UUID) (int64, error) {
	q, err := database.GetQuerier(ctx)
	if err != nil {
		return 0, err
	}

	result, err := q.Exec(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE %s = $1 ORDER BY id FOR UPDATE`, table, column), value)
	if err != nil {
		return 0, fmt.Errorf("failed to lock %s rows: %w", table, err)
	}
	return result.RowsAffected(), nil
}
