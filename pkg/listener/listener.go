// Package listener bridges PostgreSQL LISTEN/NOTIFY to the sync hooks, so writes made
// directly to the database by other applications still schedule link synchronization.
package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/inventory-app/glossary-sync/pkg/logging"
	"github.com/inventory-app/glossary-sync/pkg/retry"
	"github.com/inventory-app/glossary-sync/pkg/services"
)

// Channel is the notification channel written by the database triggers.
const Channel = "glossary_sync"

// Entity names carried in notification payloads.
const (
	EntityItemTranslation  = "item_translation"
	EntityGlossarySpelling = "glossary_spelling"
)

// Notification is the decoded payload of one notification.
type Notification struct {
	Entity string    `json:"entity"`
	ID     uuid.UUID `json:"id"`
}

// Decode parses and validates a notification payload.
func Decode(payload string) (Notification, error) {
	var n Notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return Notification{}, fmt.Errorf("invalid notification payload: %w", err)
	}
	switch n.Entity {
	case EntityItemTranslation, EntityGlossarySpelling:
	default:
		return Notification{}, fmt.Errorf("unknown notification entity %q", n.Entity)
	}
	if n.ID == uuid.Nil {
		return Notification{}, errors.New("notification payload has no id")
	}
	return n, nil
}

// Recorder receives listener events, typically to export metrics.
type Recorder interface {
	RecordNotification(entity, status string)
	RecordListenerReconnect()
}

type nopRecorder struct{}

func (nopRecorder) RecordNotification(string, string) {}
func (nopRecorder) RecordListenerReconnect()          {}

// Listener holds a dedicated connection that LISTENs on Channel and dispatches
// each notification to the sync hooks. It reconnects with backoff when the
// connection is lost.
type Listener struct {
	url      string
	hooks    services.SyncHooks
	backoff  *retry.Config
	recorder Recorder
	logger   *zap.Logger
}

// Option configures a Listener.
type Option func(*Listener)

// WithBackoff sets the reconnect backoff. MaxRetries is ignored: the listener retries until stopped.
func WithBackoff(cfg *retry.Config) Option {
	return func(l *Listener) {
		if cfg != nil {
			l.backoff = cfg
		}
	}
}

// WithRecorder sets the recorder for listener events.
func WithRecorder(r Recorder) Option {
	return func(l *Listener) {
		if r != nil {
			l.recorder = r
		}
	}
}

// New creates a Listener for the database at url.
func New(url string, hooks services.SyncHooks, logger *zap.Logger, opts ...Option) *Listener {
	l := &Listener{
		url:   url,
		hooks: hooks,
		backoff: &retry.Config{
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
		recorder: nopRecorder{},
		logger:   logger.Named("listener"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run listens until ctx is cancelled. It returns nil on cancellation.
func (l *Listener) Run(ctx context.Context) error {
	delay := l.backoff.InitialDelay
	for {
		connected, err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			delay = l.backoff.InitialDelay
		}

		l.recorder.RecordListenerReconnect()
		l.logger.Warn("notification listener disconnected, reconnecting",
			zap.String("error", logging.SanitizeError(err)),
			zap.Duration("backoff", delay))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * l.backoff.Multiplier)
		if delay > l.backoff.MaxDelay {
			delay = l.backoff.MaxDelay
		}
	}
}

// listen runs one connection until it fails. connected reports whether LISTEN succeeded.
func (l *Listener) listen(ctx context.Context) (connected bool, err error) {
	conn, err := pgx.Connect(ctx, l.url)
	if err != nil {
		return false, fmt.Errorf("connect: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{Channel}.Sanitize()); err != nil {
		return false, fmt.Errorf("listen: %w", err)
	}
	l.logger.Info("listening for sync notifications", zap.String("channel", Channel))

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return true, fmt.Errorf("wait for notification: %w", err)
		}
		l.Handle(ctx, notification.Payload)
	}
}

// Handle decodes one payload and calls the matching hook. Malformed payloads are logged and skipped.
func (l *Listener) Handle(ctx context.Context, payload string) {
	n, err := Decode(payload)
	if err != nil {
		l.recorder.RecordNotification("unknown", "invalid")
		l.logger.Warn("skipping malformed notification",
			zap.String("payload", logging.TruncateString(payload, 200)),
			zap.Error(err))
		return
	}

	switch n.Entity {
	case EntityItemTranslation:
		l.hooks.OnTranslationSaved(ctx, n.ID)
	case EntityGlossarySpelling:
		l.hooks.OnSpellingSaved(ctx, n.ID)
	}
	l.recorder.RecordNotification(n.Entity, "dispatched")
}
