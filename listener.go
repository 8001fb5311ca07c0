package docsync

import (
	"context"
	"log/slog"

	"github.com/c0deZ3R0/go-docsync/errors"
	"github.com/c0deZ3R0/go-docsync/logging"
)

// startListenerBridge opens two change subscriptions per configured table:
// the owner's private collection and the shared public collection. Inbound
// changes are written straight to the local store, bypassing transaction
// logging, so a pulled change is never re-queued as an outbound write.
//
// Public events for documents owned by the current owner are ignored: the
// private listener is authoritative for the owner's own data, which keeps
// two listeners from racing writes to the same record.
func (e *Engine) startListenerBridge(ctx context.Context, sess *Session, ownerID string) error {
	const op = errors.Op("listener.start")

	// Subscriptions read and write local tables, so the local store must
	// be ready before the first event can be applied.
	if err := e.local.WaitReady(ctx); err != nil {
		return errors.E(op, errors.KindStorage, err, "local store not ready")
	}

	logger := e.logger.WithComponent(logging.Component("listener")).WithOwner(ownerID)

	for _, table := range e.schema.Tables() {
		table := table

		sess.done.Add(2)
		go func() {
			defer sess.done.Done()
			err := e.remote.WatchPrivate(ctx, ownerID, table, func(ch Change) {
				e.applyChange(logger, "private", table, ch)
			})
			e.logWatchExit(ctx, logger, table, "private", err)
		}()
		go func() {
			defer sess.done.Done()
			err := e.remote.WatchPublic(ctx, table, func(ch Change) {
				// Skip echoes of the current owner's own records.
				if ch.Doc != nil && ch.Doc.OwnerID() == ownerID {
					return
				}
				e.applyChange(logger, "public", table, ch)
			})
			e.logWatchExit(ctx, logger, table, "public", err)
		}()
	}
	return nil
}

// applyChange writes one inbound remote change to the local store along
// the non-logging path.
func (e *Engine) applyChange(logger *logging.Logger, scope, table string, ch Change) {
	const op = errors.Op("listener.apply")

	// Changes already dispatched keep applying even while the session is
	// shutting down, so they get their own context.
	ctx := context.Background()

	tbl, _ := e.schema.Table(table)

	switch ch.Kind {
	case ChangeAdded, ChangeModified:
		if ch.Doc == nil {
			return
		}
		rec := NormalizeTimestamps(tbl, ch.Doc)
		if err := e.local.Put(ctx, table, rec); err != nil {
			e.opts.Metrics.RecordSyncErrors(string(op), "local_put")
			logger.LogError(ctx, errors.E(op, errors.KindStorage, err), "failed to apply inbound change",
				slog.String("table", table),
				slog.String("doc_id", ch.ID))
			return
		}

	case ChangeRemoved:
		if err := e.local.Remove(ctx, table, ch.ID); err != nil && !errors.IsNotFound(err) {
			e.opts.Metrics.RecordSyncErrors(string(op), "local_remove")
			logger.LogError(ctx, errors.E(op, errors.KindStorage, err), "failed to apply inbound removal",
				slog.String("table", table),
				slog.String("doc_id", ch.ID))
			return
		}

	default:
		return
	}

	e.opts.Metrics.RecordListenerChange(scope, ch.Kind)
}

func (e *Engine) logWatchExit(ctx context.Context, logger *logging.Logger, table, scope string, err error) {
	if err == nil || ctx.Err() != nil {
		return
	}
	e.opts.Metrics.RecordSyncErrors("listener.watch", scope)
	logger.LogError(ctx, err, "change subscription terminated",
		slog.String("table", table),
		slog.String("scope", scope))
}
