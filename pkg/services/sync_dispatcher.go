package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inventory-app/glossary-sync/pkg/database"
	"github.com/inventory-app/glossary-sync/pkg/repositories"
	"github.com/inventory-app/glossary-sync/pkg/services/workqueue"
)

// SyncHooks are called after an item translation or spelling is written or deleted.
type SyncHooks interface {
	OnTranslationSaved(ctx context.Context, translationID uuid.UUID) workqueue.EnqueueResult
	OnSpellingSaved(ctx context.Context, spellingID uuid.UUID) workqueue.EnqueueResult
	OnTranslationDeleted(ctx context.Context, translationID uuid.UUID)
	OnSpellingDeleted(ctx context.Context, spellingID uuid.UUID)
}

// SyncDispatcher turns persistence events into queued sync tasks.
// Deduplication is left to the queue.
type SyncDispatcher struct {
	queue     workqueue.TaskEnqueuer
	worker    *SyncWorker
	tx        database.TxRunner
	spellings repositories.SpellingRepository
	chunkSize int
	logger    *zap.Logger
}

var _ SyncHooks = (*SyncDispatcher)(nil)

// NewSyncDispatcher creates a SyncDispatcher that enqueues tasks run by worker.
func NewSyncDispatcher(
	queue workqueue.TaskEnqueuer,
	worker *SyncWorker,
	tx database.TxRunner,
	spellings repositories.SpellingRepository,
	logger *zap.Logger,
) *SyncDispatcher {
	return &SyncDispatcher{
		queue:     queue,
		worker:    worker,
		tx:        tx,
		spellings: spellings,
		chunkSize: defaultChunkSize,
		logger:    logger.Named("dispatcher"),
	}
}

func (d *SyncDispatcher) OnTranslationSaved(ctx context.Context, translationID uuid.UUID) workqueue.EnqueueResult {
	result := d.queue.Enqueue(NewSyncItemTranslationSpellingsTask(d.worker, translationID))
	d.logger.Debug("item translation saved",
		zap.String("item_translation_id", translationID.String()),
		zap.String("enqueue", string(result)))
	return result
}

func (d *SyncDispatcher) OnSpellingSaved(ctx context.Context, spellingID uuid.UUID) workqueue.EnqueueResult {
	result := d.queue.Enqueue(NewSyncSpellingItemTranslationsTask(d.worker, spellingID))
	d.logger.Debug("spelling saved",
		zap.String("spelling_id", spellingID.String()),
		zap.String("enqueue", string(result)))
	return result
}

// OnTranslationDeleted only logs: the links were removed with the translation.
func (d *SyncDispatcher) OnTranslationDeleted(ctx context.Context, translationID uuid.UUID) {
	d.logger.Debug("item translation deleted, links removed with it",
		zap.String("item_translation_id", translationID.String()))
}

// OnSpellingDeleted only logs: the links were removed with the spelling.
func (d *SyncDispatcher) OnSpellingDeleted(ctx context.Context, spellingID uuid.UUID) {
	d.logger.Debug("spelling deleted, links removed with it",
		zap.String("spelling_id", spellingID.String()))
}

// ResyncAll enqueues a sync for every spelling and returns how many were enqueued.
// Together the spelling syncs rebuild the whole link table.
func (d *SyncDispatcher) ResyncAll(ctx context.Context) (int, error) {
	scopedCtx, cleanup, err := d.tx.WithScope(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire database scope: %w", err)
	}
	defer cleanup()

	enqueued := 0
	after := uuid.Nil
	for {
		ids, err := d.spellings.ListIDsAfter(scopedCtx, after, d.chunkSize)
		if err != nil {
			return enqueued, fmt.Errorf("list spellings: %w", err)
		}
		for _, id := range ids {
			switch d.OnSpellingSaved(scopedCtx, id) {
			case workqueue.EnqueueAccepted, workqueue.EnqueueMerged:
				enqueued++
			case workqueue.EnqueueRejected:
				return enqueued, fmt.Errorf("queue stopped after %d spellings", enqueued)
			}
		}
		if len(ids) < d.chunkSize {
			break
		}
		after = ids[len(ids)-1]
	}

	d.logger.Info("full resync enqueued", zap.Int("spellings", enqueued))
	return enqueued, nil
}
