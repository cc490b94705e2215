package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inventory-app/glossary-sync/pkg/apperrors"
	"github.com/inventory-app/glossary-sync/pkg/database"
	"github.com/inventory-app/glossary-sync/pkg/models"
	"github.com/inventory-app/glossary-sync/pkg/repositories"
)

// ErrSelfSynonym is the message returned when an entry is attached to itself.
const ErrSelfSynonym = "A glossary entry cannot be a synonym of itself."

// GlossaryService writes glossary entries, spellings, items and item translations,
// and fires the sync hooks when a write can change which links should exist.
type GlossaryService interface {
	CreateGlossary(ctx context.Context, glossary *models.Glossary) error
	UpdateGlossary(ctx context.Context, glossary *models.Glossary) error
	GetGlossary(ctx context.Context, glossaryID uuid.UUID) (*models.Glossary, error)

	// CreateGlossaryTranslation stores the definition of an entry in one language.
	// Definitions are not matched against item text, so no sync is scheduled.
	CreateGlossaryTranslation(ctx context.Context, translation *models.GlossaryTranslation) error
	ListGlossaryTranslations(ctx context.Context, glossaryID uuid.UUID) ([]*models.GlossaryTranslation, error)

	// CreateSpelling stores a spelling and schedules its sync.
	CreateSpelling(ctx context.Context, spelling *models.GlossarySpelling) error
	// UpdateSpelling stores a spelling and schedules its sync if the text or language changed.
	UpdateSpelling(ctx context.Context, spelling *models.GlossarySpelling) error

	CreateItem(ctx context.Context, item *models.Item) error

	// CreateItemTranslation stores a translation and schedules its sync.
	CreateItemTranslation(ctx context.Context, translation *models.ItemTranslation) error
	// UpdateItemTranslation stores a translation and schedules its sync if the matchable text or language changed.
	UpdateItemTranslation(ctx context.Context, translation *models.ItemTranslation) error

	// AttachSynonym links two entries in both directions. Attaching twice is a no-op.
	AttachSynonym(ctx context.Context, glossaryID, synonymID uuid.UUID) error
	// DetachSynonym unlinks two entries in both directions.
	DetachSynonym(ctx context.Context, glossaryID, synonymID uuid.UUID) error
	ListSynonyms(ctx context.Context, glossaryID uuid.UUID) ([]*models.Glossary, error)
}

type glossaryService struct {
	tx           database.TxRunner
	glossaries   repositories.GlossaryRepository
	spellings    repositories.SpellingRepository
	items        repositories.ItemRepository
	translations repositories.ItemTranslationRepository
	hooks        SyncHooks
	logger       *zap.Logger
}

// NewGlossaryService creates a new GlossaryService.
func NewGlossaryService(
	tx database.TxRunner,
	glossaries repositories.GlossaryRepository,
	spellings repositories.SpellingRepository,
	items repositories.ItemRepository,
	translations repositories.ItemTranslationRepository,
	hooks SyncHooks,
	logger *zap.Logger,
) GlossaryService {
	return &glossaryService{
		tx:           tx,
		glossaries:   glossaries,
		spellings:    spellings,
		items:        items,
		translations: translations,
		hooks:        hooks,
		logger:       logger.Named("glossary"),
	}
}

var _ GlossaryService = (*glossaryService)(nil)

func validateInternalName(name string) error {
	if strings.TrimSpace(name) == "" {
		return apperrors.NewValidationError("internal_name", "internal name is required")
	}
	return nil
}

func validateLanguage(id string) error {
	if len(id) != 3 {
		return apperrors.NewValidationError("language_id", "language must be a three-letter ISO 639-3 code")
	}
	return nil
}

func (s *glossaryService) CreateGlossary(ctx context.Context, glossary *models.Glossary) error {
	if err := validateInternalName(glossary.InternalName); err != nil {
		return err
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.glossaries.Create(ctx, glossary)
	})
}

func (s *glossaryService) UpdateGlossary(ctx context.Context, glossary *models.Glossary) error {
	if err := validateInternalName(glossary.InternalName); err != nil {
		return err
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.glossaries.Update(ctx, glossary)
	})
}

func (s *glossaryService) GetGlossary(ctx context.Context, glossaryID uuid.UUID) (*models.Glossary, error) {
	scopedCtx, cleanup, err := s.tx.WithScope(ctx)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return s.glossaries.GetByID(scopedCtx, glossaryID)
}

func (s *glossaryService) CreateGlossaryTranslation(ctx context.Context, translation *models.GlossaryTranslation) error {
	translation.Definition = strings.TrimSpace(translation.Definition)
	if translation.Definition == "" {
		return apperrors.NewValidationError("definition", "definition is required")
	}
	if err := validateLanguage(translation.LanguageID); err != nil {
		return err
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.glossaries.CreateTranslation(ctx, translation)
	})
}

func (s *glossaryService) ListGlossaryTranslations(ctx context.Context, glossaryID uuid.UUID) ([]*models.GlossaryTranslation, error) {
	scopedCtx, cleanup, err := s.tx.WithScope(ctx)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return s.glossaries.ListTranslations(scopedCtx, glossaryID)
}

// prepareSpelling trims the spelling; surrounding whitespace can never be part of a whole-word match.
func prepareSpelling(spelling *models.GlossarySpelling) error {
	spelling.Spelling = strings.TrimSpace(spelling.Spelling)
	if spelling.Spelling == "" {
		return apperrors.NewValidationError("spelling", "spelling is required")
	}
	return validateLanguage(spelling.LanguageID)
}

func (s *glossaryService) CreateSpelling(ctx context.Context, spelling *models.GlossarySpelling) error {
	if err := prepareSpelling(spelling); err != nil {
		return err
	}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.spellings.Create(ctx, spelling)
	})
	if err != nil {
		return err
	}
	s.hooks.OnSpellingSaved(ctx, spelling.ID)
	return nil
}

func (s *glossaryService) UpdateSpelling(ctx context.Context, spelling *models.GlossarySpelling) error {
	if err := prepareSpelling(spelling); err != nil {
		return err
	}

	var affected bool
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		current, err := s.spellings.GetByID(ctx, spelling.ID)
		if err != nil {
			return err
		}
		affected = current.MatchAffected(spelling)
		return s.spellings.Update(ctx, spelling)
	})
	if err != nil {
		return err
	}

	if affected {
		s.hooks.OnSpellingSaved(ctx, spelling.ID)
	}
	return nil
}

func (s *glossaryService) CreateItem(ctx context.Context, item *models.Item) error {
	if err := validateInternalName(item.InternalName); err != nil {
		return err
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.items.Create(ctx, item)
	})
}

func prepareTranslation(translation *models.ItemTranslation) error {
	if strings.TrimSpace(translation.Name) == "" {
		return apperrors.NewValidationError("name", "name is required")
	}
	return validateLanguage(translation.LanguageID)
}

func (s *glossaryService) CreateItemTranslation(ctx context.Context, translation *models.ItemTranslation) error {
	if err := prepareTranslation(translation); err != nil {
		return err
	}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.translations.Create(ctx, translation)
	})
	if err != nil {
		return err
	}
	s.hooks.OnTranslationSaved(ctx, translation.ID)
	return nil
}

func (s *glossaryService) UpdateItemTranslation(ctx context.Context, translation *models.ItemTranslation) error {
	if err := prepareTranslation(translation); err != nil {
		return err
	}

	var affected bool
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		current, err := s.translations.GetByID(ctx, translation.ID)
		if err != nil {
			return err
		}
		affected = current.MatchAffected(translation)
		return s.translations.Update(ctx, translation)
	})
	if err != nil {
		return err
	}

	if affected {
		s.hooks.OnTranslationSaved(ctx, translation.ID)
	} else {
		s.logger.Debug("item translation text unchanged, no sync needed",
			zap.String("item_translation_id", translation.ID.String()))
	}
	return nil
}

func (s *glossaryService) AttachSynonym(ctx context.Context, glossaryID, synonymID uuid.UUID) error {
	if glossaryID == synonymID {
		return apperrors.NewValidationError("synonym_id", ErrSelfSynonym)
	}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.glossaries.AttachSynonym(ctx, glossaryID, synonymID)
	})
	if err != nil {
		return fmt.Errorf("attach synonym: %w", err)
	}
	return nil
}

func (s *glossaryService) DetachSynonym(ctx context.Context, glossaryID, synonymID uuid.UUID) error {
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.glossaries.DetachSynonym(ctx, glossaryID, synonymID)
	})
	if err != nil {
		return fmt.Errorf("detach synonym: %w", err)
	}
	return nil
}

func (s *glossaryService) ListSynonyms(ctx context.Context, glossaryID uuid.UUID) ([]*models.Glossary, error) {
	scopedCtx, cleanup, err := s.tx.WithScope(ctx)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return s.glossaries.ListSynonyms(scopedCtx, glossaryID)
}
