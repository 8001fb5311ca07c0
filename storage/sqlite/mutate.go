package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	docsync "github.com/c0deZ3R0/go-docsync"
	syncErrors "github.com/c0deZ3R0/go-docsync/errors"
	"github.com/c0deZ3R0/go-docsync/schema"
)

// ErrNoChanges is returned by Save when the submitted record does not
// differ from the stored one. Callers typically treat it as a no-op.
var ErrNoChanges = errors.New("no changes detected")

const (
	opCreate     = syncErrors.Op("sqlite.Create")
	opSave       = syncErrors.Op("sqlite.Save")
	opSoftDelete = syncErrors.Op("sqlite.SoftDelete")
	opRestore    = syncErrors.Op("sqlite.Restore")
	opDelete     = syncErrors.Op("sqlite.Delete")
	opRollback   = syncErrors.Op("sqlite.Rollback")
)

// Create inserts a new record and logs a create transaction. Missing id,
// timestamps and declared defaults are filled in; the stored record is
// returned. The row insert and the log entry commit atomically.
func (s *Store) Create(ctx context.Context, table string, rec docsync.Record) (docsync.Record, error) {
	tbl, err := s.table(opCreate, table)
	if err != nil {
		return nil, err
	}

	rec = rec.Clone()
	if err := docsync.ApplyDefaults(tbl, rec); err != nil {
		return nil, syncErrors.WrapOpComponent(err, opCreate, component)
	}

	err = s.withTx(ctx, opCreate, func(tx *sql.Tx) error {
		if err := s.logTransaction(ctx, tx, table, docsync.ActionCreate, rec.ID(),
			docsync.CreateSnapshot(tbl, rec), nil); err != nil {
			return err
		}
		return s.putTx(ctx, tx, table, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Save updates an existing record and logs an update transaction holding
// only the changed fields plus the prior snapshot. Returns ErrNoChanges
// (wrapped, kind invalid) when nothing differs.
func (s *Store) Save(ctx context.Context, table string, rec docsync.Record) error {
	tbl, err := s.table(opSave, table)
	if err != nil {
		return err
	}

	old, err := s.Get(ctx, table, rec.ID())
	if err != nil {
		return syncErrors.WrapOpComponent(err, opSave, component)
	}

	rec = rec.Clone()
	if tbl.Has(schema.FieldUpdatedAt) {
		rec[schema.FieldUpdatedAt] = time.Now().UTC()
	}

	diff := docsync.ChangedFields(tbl, old, rec)
	if onlyUpdatedAt(diff) {
		return syncErrors.E(opSave, component, syncErrors.KindInvalid, ErrNoChanges)
	}

	return s.withTx(ctx, opSave, func(tx *sql.Tx) error {
		if err := s.logTransaction(ctx, tx, table, docsync.ActionUpdate, rec.ID(), diff, old); err != nil {
			return err
		}
		return s.putTx(ctx, tx, table, rec)
	})
}

// SoftDelete marks a record deleted without removing the row, so the
// tombstone still syncs. The table must declare a stateId field.
func (s *Store) SoftDelete(ctx context.Context, table, id string) error {
	return s.setState(ctx, opSoftDelete, table, id, schema.StateDeleted)
}

// Restore reverses a SoftDelete.
func (s *Store) Restore(ctx context.Context, table, id string) error {
	return s.setState(ctx, opRestore, table, id, schema.StateActive)
}

func (s *Store) setState(ctx context.Context, op syncErrors.Op, table, id, state string) error {
	tbl, err := s.table(op, table)
	if err != nil {
		return err
	}
	if !tbl.HasState() {
		return syncErrors.E(op, component, syncErrors.KindInvalid,
			fmt.Sprintf("stateId is not defined for table '%s'", table))
	}

	old, err := s.Get(ctx, table, id)
	if err != nil {
		return syncErrors.WrapOpComponent(err, op, component)
	}
	if old.StateID() == state {
		return syncErrors.E(op, component, syncErrors.KindInvalid, ErrNoChanges)
	}

	rec := old.Clone()
	rec[schema.FieldStateID] = state
	if tbl.Has(schema.FieldUpdatedAt) {
		rec[schema.FieldUpdatedAt] = time.Now().UTC()
	}

	diff := docsync.ChangedFields(tbl, old, rec)
	return s.withTx(ctx, op, func(tx *sql.Tx) error {
		if err := s.logTransaction(ctx, tx, table, docsync.ActionUpdate, id, diff, old); err != nil {
			return err
		}
		return s.putTx(ctx, tx, table, rec)
	})
}

// Delete removes the row and logs a delete transaction carrying the prior
// snapshot for rollback.
func (s *Store) Delete(ctx context.Context, table, id string) error {
	if _, err := s.table(opDelete, table); err != nil {
		return err
	}

	old, err := s.Get(ctx, table, id)
	if err != nil {
		return syncErrors.WrapOpComponent(err, opDelete, component)
	}

	return s.withTx(ctx, opDelete, func(tx *sql.Tx) error {
		if err := s.logTransaction(ctx, tx, table, docsync.ActionDelete, id, nil, old); err != nil {
			return err
		}
		query := fmt.Sprintf(`DELETE FROM %q WHERE id = ?`, table)
		_, err := tx.ExecContext(ctx, query, id)
		return syncErrors.WrapOpComponentKind(err, opDelete, component, syncErrors.KindStorage)
	})
}

// Rollback undoes the local effect of a pending log entry and removes the
// entry, atomically. Creates are deleted, updates restore the prior
// snapshot, deletes re-insert it.
func (s *Store) Rollback(ctx context.Context, entry docsync.LogEntry) error {
	tbl, err := s.table(opRollback, entry.Table)
	if err != nil {
		return err
	}

	return s.withTx(ctx, opRollback, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM transaction_log WHERE log_id = ?`, entry.ID); err != nil {
			return syncErrors.WrapOpComponentKind(err, opRollback, component, syncErrors.KindStorage)
		}

		switch entry.Action {
		case docsync.ActionCreate:
			query := fmt.Sprintf(`DELETE FROM %q WHERE id = ?`, entry.Table)
			_, err := tx.ExecContext(ctx, query, entry.ObjectID)
			return syncErrors.WrapOpComponentKind(err, opRollback, component, syncErrors.KindStorage)
		case docsync.ActionUpdate, docsync.ActionDelete:
			if entry.OldData == nil {
				return syncErrors.E(opRollback, component, syncErrors.KindInvalid,
					"log entry has no prior snapshot")
			}
			return s.putTx(ctx, tx, entry.Table, docsync.NormalizeTimestamps(tbl, entry.OldData))
		default:
			return syncErrors.E(opRollback, component, syncErrors.KindInvalid,
				"unknown action '"+string(entry.Action)+"'")
		}
	})
}

// logTransaction appends a transaction log entry inside tx.
func (s *Store) logTransaction(ctx context.Context, tx *sql.Tx, table string, action docsync.Action, objectID string, data, oldData docsync.Record) error {
	dataJSON, err := marshalNullable(data)
	if err != nil {
		return syncErrors.WrapOpComponentKind(err, opPut, component, syncErrors.KindStorage)
	}
	oldJSON, err := marshalNullable(oldData)
	if err != nil {
		return syncErrors.WrapOpComponentKind(err, opPut, component, syncErrors.KindStorage)
	}
	_, err = tx.ExecContext(ctx, `
        INSERT INTO transaction_log (tbl, action, object_id, data, old_data)
        VALUES (?, ?, ?, ?, ?)`,
		table, string(action), objectID, dataJSON, oldJSON)
	return syncErrors.WrapOpComponentKind(err, opPut, component, syncErrors.KindStorage)
}

func (s *Store) withTx(ctx context.Context, op syncErrors.Op, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return syncErrors.WrapOpComponentKind(err, op, component, syncErrors.KindStorage)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return syncErrors.WrapOpComponentKind(tx.Commit(), op, component, syncErrors.KindStorage)
}

func marshalNullable(rec docsync.Record) (any, error) {
	if rec == nil {
		return nil, nil
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// onlyUpdatedAt reports whether a diff carries nothing but the refreshed
// updatedAt stamp.
func onlyUpdatedAt(diff docsync.Record) bool {
	if len(diff) == 0 {
		return true
	}
	if len(diff) == 1 {
		_, ok := diff[schema.FieldUpdatedAt]
		return ok
	}
	return false
}
