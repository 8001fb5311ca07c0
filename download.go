package docsync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c0deZ3R0/go-docsync/errors"
)

// ReconcileDownload fetches the owner's private records and all public
// records for every configured table and bulk-writes the merged set into
// the local store, bypassing transaction logging. On identifier collision
// the private copy wins: the owner's own copy, even if stale, takes
// precedence, because the owner's next local edit re-propagates truth.
//
// Failures are isolated per table.
func (e *Engine) ReconcileDownload(ctx context.Context, ownerID string) error {
	const op = errors.Op("engine.ReconcileDownload")

	if err := e.local.WaitReady(ctx); err != nil {
		return errors.E(op, errors.KindStorage, err, "local store not ready")
	}

	start := time.Now()
	total := 0
	for _, table := range e.schema.Tables() {
		n, err := e.downloadTable(ctx, ownerID, table)
		total += n
		if err != nil {
			e.opts.Metrics.RecordSyncErrors(string(op), "table_failure")
			e.logger.LogError(ctx, err, "failed to download table",
				slog.String("table", table))
		}
	}
	e.opts.Metrics.RecordReconcile("download", total, time.Since(start))
	return nil
}

func (e *Engine) downloadTable(ctx context.Context, ownerID, table string) (int, error) {
	const op = errors.Op("engine.downloadTable")

	tbl, _ := e.schema.Table(table)

	var (
		wg               sync.WaitGroup
		private, public  []Record
		privErr, pubErr  error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		private, privErr = e.remote.FetchPrivate(ctx, ownerID, table)
	}()
	go func() {
		defer wg.Done()
		public, pubErr = e.remote.FetchPublic(ctx, table)
	}()
	wg.Wait()

	if privErr != nil {
		return 0, errors.E(op, errors.KindTransient, privErr, "fetching private records")
	}
	if pubErr != nil {
		return 0, errors.E(op, errors.KindTransient, pubErr, "fetching public records")
	}

	// Merge keyed by id; private written last so it overrides public.
	merged := make(map[string]Record, len(private)+len(public))
	for _, r := range public {
		merged[r.ID()] = r
	}
	for _, r := range private {
		merged[r.ID()] = r
	}
	if len(merged) == 0 {
		return 0, nil
	}

	records := make([]Record, 0, len(merged))
	for _, r := range merged {
		records = append(records, NormalizeTimestamps(tbl, r))
	}

	if err := e.local.BulkPut(ctx, table, records); err != nil {
		return 0, errors.E(op, errors.KindStorage, err, "bulk write")
	}
	return len(records), nil
}
