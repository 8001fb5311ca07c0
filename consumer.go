package docsync

import (
	"context"
	"log/slog"
	"time"

	"github.com/c0deZ3R0/go-docsync/errors"
	"github.com/c0deZ3R0/go-docsync/logging"
)

// drainTimeout bounds one full drain cycle.
const drainTimeout = 30 * time.Second

// runQueueConsumer is the background loop that drains the transaction log
// and forwards entries to the remote store. The first cycle fires
// immediately; after that a fixed delay separates the end of one cycle
// from the start of the next, whether or not the cycle found work. The
// loop only observes the stop signal between cycles, so an in-flight drain
// always completes.
func (e *Engine) runQueueConsumer(sess *Session, ownerID string) {
	defer sess.done.Done()

	logger := e.logger.WithComponent(logging.Component("consumer")).WithOwner(ownerID)
	for {
		// The drain uses its own context so that stopping the session does
		// not interrupt work already in flight.
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		e.drainQueue(ctx, logger, ownerID)
		cancel()

		timer := time.NewTimer(e.opts.DrainInterval)
		select {
		case <-sess.stop:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// drainQueue processes the entire transaction log once, in FIFO order.
// A failing entry is retained for the next cycle and never blocks the
// entries behind it.
func (e *Engine) drainQueue(ctx context.Context, logger *logging.Logger, ownerID string) {
	const op = errors.Op("consumer.drain")

	entries, err := e.local.PendingTransactions(ctx)
	if err != nil {
		logger.LogError(ctx, errors.E(op, errors.KindStorage, err), "failed to read transaction log")
		return
	}
	if len(entries) == 0 {
		return
	}

	var forwarded, failed, discarded int
	for _, entry := range entries {
		// Entries for tables no longer in the schema are stale and will
		// never become forwardable; discard instead of retrying.
		if !e.schema.Has(entry.Table) {
			if err := e.local.DeleteTransaction(ctx, entry.ID); err == nil {
				discarded++
			}
			continue
		}

		if err := e.forwardEntry(ctx, ownerID, entry); err != nil {
			failed++
			logger.LogError(ctx, err, "failed to forward transaction",
				slog.Int64("log_id", entry.ID),
				slog.String("table", entry.Table),
				slog.String("action", string(entry.Action)))
			continue
		}

		if err := e.local.DeleteTransaction(ctx, entry.ID); err != nil {
			// The entry will be forwarded again next cycle; upserts are
			// idempotent so this is safe.
			failed++
			logger.LogError(ctx, errors.E(op, errors.KindStorage, err), "failed to delete forwarded entry",
				slog.Int64("log_id", entry.ID))
			continue
		}
		forwarded++
	}

	e.opts.Metrics.RecordQueueDrain(forwarded, failed, discarded)
	logger.Debug("drain cycle finished",
		slog.Int("forwarded", forwarded),
		slog.Int("failed", failed),
		slog.Int("discarded", discarded))
}

// forwardEntry pushes a single log entry to the remote store. Create and
// update entries re-read the current local record so the most recent local
// state wins even when several entries accumulated for the same object.
func (e *Engine) forwardEntry(ctx context.Context, ownerID string, entry LogEntry) error {
	const op = errors.Op("consumer.forward")

	switch entry.Action {
	case ActionCreate, ActionUpdate:
		rec, err := e.local.Get(ctx, entry.Table, entry.ObjectID)
		if errors.IsNotFound(err) {
			// Record vanished locally since the entry was logged; there is
			// nothing left to forward.
			return nil
		}
		if err != nil {
			return errors.E(op, errors.KindStorage, err)
		}
		if err := e.remote.Upsert(ctx, ownerID, entry.Table, rec); err != nil {
			return errors.E(op, errors.KindTransient, err)
		}
		return nil

	case ActionDelete:
		if err := e.remote.Delete(ctx, ownerID, entry.Table, entry.ObjectID); err != nil {
			return errors.E(op, errors.KindTransient, err)
		}
		return nil

	default:
		return errors.E(op, errors.KindInvalid, "unsupported action "+string(entry.Action))
	}
}
