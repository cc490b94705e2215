package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/inventory-app/glossary-sync/pkg/services/workqueue"
)

// SyncItemTranslationSpellingsTask recomputes the spellings linked to one item translation.
type SyncItemTranslationSpellingsTask struct {
	workqueue.BaseTask
	worker        *SyncWorker
	translationID uuid.UUID
}

// NewSyncItemTranslationSpellingsTask creates a task keyed by TranslationSyncKey.
func NewSyncItemTranslationSpellingsTask(worker *SyncWorker, translationID uuid.UUID) *SyncItemTranslationSpellingsTask {
	return &SyncItemTranslationSpellingsTask{
		BaseTask:      workqueue.NewBaseTask("sync item translation spellings", TranslationSyncKey(translationID)),
		worker:        worker,
		translationID: translationID,
	}
}

// Execute implements workqueue.Task.
func (t *SyncItemTranslationSpellingsTask) Execute(ctx context.Context, enqueuer workqueue.TaskEnqueuer) error {
	if err := t.worker.SyncTranslation(ctx, t.translationID); err != nil {
		return fmt.Errorf("sync item translation %s: %w", t.translationID, err)
	}
	return nil
}

// SyncSpellingItemTranslationsTask recomputes the item translations linked to one spelling.
type SyncSpellingItemTranslationsTask struct {
	workqueue.BaseTask
	worker     *SyncWorker
	spellingID uuid.UUID
}

// NewSyncSpellingItemTranslationsTask creates a task keyed by SpellingSyncKey.
func NewSyncSpellingItemTranslationsTask(worker *SyncWorker, spellingID uuid.UUID) *SyncSpellingItemTranslationsTask {
	return &SyncSpellingItemTranslationsTask{
		BaseTask:   workqueue.NewBaseTask("sync spelling item translations", SpellingSyncKey(spellingID)),
		worker:     worker,
		spellingID: spellingID,
	}
}

// Execute implements workqueue.Task.
func (t *SyncSpellingItemTranslationsTask) Execute(ctx context.Context, enqueuer workqueue.TaskEnqueuer) error {
	if err := t.worker.SyncSpelling(ctx, t.spellingID); err != nil {
		return fmt.Errorf("sync spelling %s: %w", t.spellingID, err)
	}
	return nil
}
