package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inventory-app/glossary-sync/pkg/database"
	"github.com/inventory-app/glossary-sync/pkg/repositories"
)

// DeletionService deletes entities together with their dependent link rows.
// Every deletion is one transaction: on any failure nothing is removed.
// Each one row-locks the entity, and any child rows, before touching links, so a
// sync run committing concurrently cannot leave a link that blocks the delete.
// Deleting a missing entity returns apperrors.ErrNotFound.
type DeletionService interface {
	DeleteItemTranslation(ctx context.Context, translationID uuid.UUID) error
	DeleteSpelling(ctx context.Context, spellingID uuid.UUID) error
	// DeleteGlossary removes the entry, its spellings, their links, its definitions
	// and synonym rows in both directions.
	DeleteGlossary(ctx context.Context, glossaryID uuid.UUID) error
	// DeleteItem removes the item, its translations and their links.
	DeleteItem(ctx context.Context, itemID uuid.UUID) error
	// InTx runs fn in a transaction so deletions can be composed with other writes.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type deletionService struct {
	tx           database.TxRunner
	glossaries   repositories.GlossaryRepository
	spellings    repositories.SpellingRepository
	items        repositories.ItemRepository
	translations repositories.ItemTranslationRepository
	links        repositories.SpellingLinkRepository
	hooks        SyncHooks
	logger       *zap.Logger
}

// NewDeletionService creates a new DeletionService.
func NewDeletionService(
	tx database.TxRunner,
	glossaries repositories.GlossaryRepository,
	spellings repositories.SpellingRepository,
	items repositories.ItemRepository,
	translations repositories.ItemTranslationRepository,
	links repositories.SpellingLinkRepository,
	hooks SyncHooks,
	logger *zap.Logger,
) DeletionService {
	return &deletionService{
		tx:           tx,
		glossaries:   glossaries,
		spellings:    spellings,
		items:        items,
		translations: translations,
		links:        links,
		hooks:        hooks,
		logger:       logger.Named("deletion"),
	}
}

var _ DeletionService = (*deletionService)(nil)

func (s *deletionService) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.tx.InTx(ctx, fn)
}

func (s *deletionService) DeleteItemTranslation(ctx context.Context, translationID uuid.UUID) error {
	var removed int64
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.translations.LockForDelete(ctx, translationID); err != nil {
			return fmt.Errorf("delete item translation %s: %w", translationID, err)
		}
		n, err := s.links.DeleteByTranslation(ctx, translationID)
		if err != nil {
			return err
		}
		removed = n
		if err := s.translations.Delete(ctx, translationID); err != nil {
			return fmt.Errorf("delete item translation %s: %w", translationID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("item translation deleted",
		zap.String("item_translation_id", translationID.String()),
		zap.Int64("links_removed", removed))
	s.hooks.OnTranslationDeleted(ctx, translationID)
	return nil
}

func (s *deletionService) DeleteSpelling(ctx context.Context, spellingID uuid.UUID) error {
	var removed int64
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.spellings.LockForDelete(ctx, spellingID); err != nil {
			return fmt.Errorf("delete spelling %s: %w", spellingID, err)
		}
		n, err := s.links.DeleteBySpelling(ctx, spellingID)
		if err != nil {
			return err
		}
		removed = n
		if err := s.spellings.Delete(ctx, spellingID); err != nil {
			return fmt.Errorf("delete spelling %s: %w", spellingID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("spelling deleted",
		zap.String("spelling_id", spellingID.String()),
		zap.Int64("links_removed", removed))
	s.hooks.OnSpellingDeleted(ctx, spellingID)
	return nil
}

func (s *deletionService) DeleteGlossary(ctx context.Context, glossaryID uuid.UUID) error {
	var links, spellings, synonyms, definitions int64
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.glossaries.LockForDelete(ctx, glossaryID); err != nil {
			return fmt.Errorf("delete glossary %s: %w", glossaryID, err)
		}
		if _, err := s.spellings.LockByGlossary(ctx, glossaryID); err != nil {
			return err
		}
		var err error
		if links, err = s.links.DeleteByGlossary(ctx, glossaryID); err != nil {
			return err
		}
		if spellings, err = s.spellings.DeleteByGlossary(ctx, glossaryID); err != nil {
			return err
		}
		if synonyms, err = s.glossaries.DeleteSynonyms(ctx, glossaryID); err != nil {
			return err
		}
		if definitions, err = s.glossaries.DeleteTranslations(ctx, glossaryID); err != nil {
			return err
		}
		if err := s.glossaries.Delete(ctx, glossaryID); err != nil {
			return fmt.Errorf("delete glossary %s: %w", glossaryID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("glossary deleted",
		zap.String("glossary_id", glossaryID.String()),
		zap.Int64("links_removed", links),
		zap.Int64("spellings_removed", spellings),
		zap.Int64("synonym_rows_removed", synonyms),
		zap.Int64("translations_removed", definitions))
	return nil
}

func (s *deletionService) DeleteItem(ctx context.Context, itemID uuid.UUID) error {
	var links, translations int64
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.items.LockForDelete(ctx, itemID); err != nil {
			return fmt.Errorf("delete item %s: %w", itemID, err)
		}
		if _, err := s.translations.LockByItem(ctx, itemID); err != nil {
			return err
		}
		var err error
		if links, err = s.links.DeleteByItem(ctx, itemID); err != nil {
			return err
		}
		if translations, err = s.translations.DeleteByItem(ctx, itemID); err != nil {
			return err
		}
		if err := s.items.Delete(ctx, itemID); err != nil {
			return fmt.Errorf("delete item %s: %w", itemID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("item deleted",
		zap.String("item_id", itemID.String()),
		zap.Int64("links_removed", links),
		zap.Int64("translations_removed", translations))
	return nil
}
