package docsync

import (
	"context"
	"log/slog"
	"time"

	"github.com/c0deZ3R0/go-docsync/errors"
	"github.com/c0deZ3R0/go-docsync/schema"
)

// ReconcileUpload uploads local records that are not yet present in the
// owner's remote private collection. Guest records (no owner) are stamped
// with ownerID, both locally and in the outbound payload. Existing remote
// documents are never overwritten here: newer local edits to an already
// uploaded record are carried by the queue consumer instead.
//
// Failures are isolated per table; the pass is idempotent and safe to
// re-run. Returns the total number of records uploaded.
func (e *Engine) ReconcileUpload(ctx context.Context, ownerID string) (int, error) {
	const op = errors.Op("engine.ReconcileUpload")

	if err := e.local.WaitReady(ctx); err != nil {
		return 0, errors.E(op, errors.KindStorage, err, "local store not ready")
	}

	start := time.Now()
	total := 0
	for _, table := range e.schema.Tables() {
		n, err := e.uploadTable(ctx, ownerID, table)
		total += n
		if err != nil {
			e.opts.Metrics.RecordSyncErrors(string(op), "table_failure")
			e.logger.LogError(ctx, err, "failed to upload table",
				slog.String("table", table))
		}
	}
	e.opts.Metrics.RecordReconcile("upload", total, time.Since(start))
	return total, nil
}

func (e *Engine) uploadTable(ctx context.Context, ownerID, table string) (int, error) {
	const op = errors.Op("engine.uploadTable")

	tbl, _ := e.schema.Table(table)

	// Soft-deleted records stay local; their deletion was either already
	// forwarded or still sits in the transaction log.
	var (
		locals []Record
		err    error
	)
	if tbl.HasState() {
		locals, err = e.local.ListActive(ctx, table)
	} else {
		locals, err = e.local.List(ctx, table)
	}
	if err != nil {
		return 0, errors.E(op, errors.KindStorage, err)
	}
	if len(locals) == 0 {
		return 0, nil
	}

	remotes, err := e.remote.FetchPrivate(ctx, ownerID, table)
	if err != nil {
		return 0, errors.E(op, errors.KindTransient, err, "fetching remote ids")
	}
	remoteIDs := make(map[string]struct{}, len(remotes))
	for _, r := range remotes {
		remoteIDs[r.ID()] = struct{}{}
	}

	count := 0
	for _, rec := range locals {
		if _, ok := remoteIDs[rec.ID()]; ok {
			continue
		}

		// Stamp guest records with the authenticated owner before upload,
		// persisting the stamp locally without logging a transaction.
		if tbl.HasOwner() && rec.OwnerID() == "" {
			rec = rec.Clone()
			rec[schema.FieldOwnerID] = ownerID
			if err := e.local.Put(ctx, table, rec); err != nil {
				return count, errors.E(op, errors.KindStorage, err, "stamping owner")
			}
		}

		if err := e.remote.Upsert(ctx, ownerID, table, rec); err != nil {
			return count, errors.E(op, errors.KindTransient, err, "uploading record "+rec.ID())
		}
		count++
	}
	return count, nil
}
