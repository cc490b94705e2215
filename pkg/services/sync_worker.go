package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inventory-app/glossary-sync/pkg/apperrors"
	"github.com/inventory-app/glossary-sync/pkg/database"
	"github.com/inventory-app/glossary-sync/pkg/repositories"
	"github.com/inventory-app/glossary-sync/pkg/textmatch"
)

// Sync kinds, used as metric labels and in logs.
const (
	SyncKindTranslation = "item_translation"
	SyncKindSpelling    = "glossary_spelling"
)

// Sync outcomes.
const (
	SyncOutcomeSynced  = "synced"
	SyncOutcomeMissing = "missing"
	SyncOutcomeFailed  = "failed"
)

const defaultChunkSize = 100

// TranslationSyncKey is the deduplication key of a translation sync.
func TranslationSyncKey(translationID uuid.UUID) string {
	return "sync-item-translation-" + translationID.String()
}

// SpellingSyncKey is the deduplication key of a spelling sync.
func SpellingSyncKey(spellingID uuid.UUID) string {
	return "sync-spelling-" + spellingID.String()
}

// SyncRecorder receives the result of every sync run.
type SyncRecorder interface {
	RecordSync(kind, outcome string, duration time.Duration, delta repositories.LinkDelta)
}

type nopRecorder struct{}

func (nopRecorder) RecordSync(string, string, time.Duration, repositories.LinkDelta) {}

// SyncWorker recomputes link sets between item translations and spellings.
//
// Each run happens in one transaction holding an advisory lock on the run's
// deduplication key, so two runs for the same entity never interleave and the
// link set is replaced atomically from freshly read data.
type SyncWorker struct {
	tx           database.TxRunner
	translations repositories.ItemTranslationRepository
	spellings    repositories.SpellingRepository
	links        repositories.SpellingLinkRepository
	matcher      *textmatch.Matcher
	chunkSize    int
	recorder     SyncRecorder
	logger       *zap.Logger
}

// SyncWorkerOption configures a SyncWorker.
type SyncWorkerOption func(*SyncWorker)

// WithChunkSize sets how many candidates are read per page.
func WithChunkSize(n int) SyncWorkerOption {
	return func(w *SyncWorker) {
		if n > 0 {
			w.chunkSize = n
		}
	}
}

// WithSyncRecorder sets the recorder for run results.
func WithSyncRecorder(r SyncRecorder) SyncWorkerOption {
	return func(w *SyncWorker) {
		if r != nil {
			w.recorder = r
		}
	}
}

// NewSyncWorker creates a SyncWorker.
func NewSyncWorker(
	tx database.TxRunner,
	translations repositories.ItemTranslationRepository,
	spellings repositories.SpellingRepository,
	links repositories.SpellingLinkRepository,
	matcher *textmatch.Matcher,
	logger *zap.Logger,
	opts ...SyncWorkerOption,
) *SyncWorker {
	w := &SyncWorker{
		tx:           tx,
		translations: translations,
		spellings:    spellings,
		links:        links,
		matcher:      matcher,
		chunkSize:    defaultChunkSize,
		recorder:     nopRecorder{},
		logger:       logger.Named("sync"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// SyncTranslation makes the links of one translation equal to the same-language
// spellings found in its matchable text. A translation that no longer exists is a no-op.
func (w *SyncWorker) SyncTranslation(ctx context.Context, translationID uuid.UUID) error {
	start := time.Now()
	outcome := SyncOutcomeSynced
	var delta repositories.LinkDelta

	err := w.tx.InTx(ctx, func(ctx context.Context) error {
		if err := w.links.Lock(ctx, TranslationSyncKey(translationID)); err != nil {
			return fmt.Errorf("lock translation sync: %w", err)
		}

		translation, err := w.translations.GetByID(ctx, translationID)
		if errors.Is(err, apperrors.ErrNotFound) {
			outcome = SyncOutcomeMissing
			return nil
		}
		if err != nil {
			return fmt.Errorf("load item translation: %w", err)
		}

		text := translation.MatchableText()
		var matched []uuid.UUID
		if text != "" {
			after := uuid.Nil
			for {
				page, err := w.spellings.ListByLanguageAfter(ctx, translation.LanguageID, after, w.chunkSize)
				if err != nil {
					return fmt.Errorf("list spellings: %w", err)
				}
				matched = append(matched, w.matcher.MatchAll(text, page)...)
				if len(page) < w.chunkSize {
					break
				}
				after = page[len(page)-1].ID
			}
		}

		delta, err = w.links.ReplaceForTranslation(ctx, translationID, matched)
		if errors.Is(err, apperrors.ErrNotFound) {
			// Deleted after it was loaded.
			outcome = SyncOutcomeMissing
			delta = repositories.LinkDelta{}
			return nil
		}
		if err != nil {
			return fmt.Errorf("replace translation links: %w", err)
		}
		return nil
	})

	return w.finish(SyncKindTranslation, translationID, start, outcome, delta, err)
}

// SyncSpelling makes the links of one spelling equal to the same-language
// translations whose matchable text contains it. A spelling that no longer exists is a no-op.
func (w *SyncWorker) SyncSpelling(ctx context.Context, spellingID uuid.UUID) error {
	start := time.Now()
	outcome := SyncOutcomeSynced
	var delta repositories.LinkDelta

	err := w.tx.InTx(ctx, func(ctx context.Context) error {
		if err := w.links.Lock(ctx, SpellingSyncKey(spellingID)); err != nil {
			return fmt.Errorf("lock spelling sync: %w", err)
		}

		spelling, err := w.spellings.GetByID(ctx, spellingID)
		if errors.Is(err, apperrors.ErrNotFound) {
			outcome = SyncOutcomeMissing
			return nil
		}
		if err != nil {
			return fmt.Errorf("load spelling: %w", err)
		}

		var matched []uuid.UUID
		after := uuid.Nil
		for {
			page, err := w.translations.ListByLanguageAfter(ctx, spelling.LanguageID, after, w.chunkSize)
			if err != nil {
				return fmt.Errorf("list item translations: %w", err)
			}
			for _, t := range page {
				if w.matcher.Matches(t.MatchableText(), spelling.Spelling, spelling.LanguageID) {
					matched = append(matched, t.ID)
				}
			}
			if len(page) < w.chunkSize {
				break
			}
			after = page[len(page)-1].ID
		}

		delta, err = w.links.ReplaceForSpelling(ctx, spellingID, matched)
		if errors.Is(err, apperrors.ErrNotFound) {
			outcome = SyncOutcomeMissing
			delta = repositories.LinkDelta{}
			return nil
		}
		if err != nil {
			return fmt.Errorf("replace spelling links: %w", err)
		}
		return nil
	})

	return w.finish(SyncKindSpelling, spellingID, start, outcome, delta, err)
}

func (w *SyncWorker) finish(kind string, id uuid.UUID, start time.Time, outcome string, delta repositories.LinkDelta, err error) error {
	duration := time.Since(start)
	if err != nil {
		w.recorder.RecordSync(kind, SyncOutcomeFailed, duration, repositories.LinkDelta{})
		return err
	}
	w.recorder.RecordSync(kind, outcome, duration, delta)

	if outcome == SyncOutcomeMissing {
		w.logger.Debug("sync target no longer exists, nothing to do",
			zap.String("kind", kind),
			zap.String("id", id.String()))
		return nil
	}

	w.logger.Debug("links synchronized",
		zap.String("kind", kind),
		zap.String("id", id.String()),
		zap.Int64("added", delta.Added),
		zap.Int64("removed", delta.Removed),
		zap.Duration("duration", duration))
	return nil
}
