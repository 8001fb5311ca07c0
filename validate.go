package docsync

import (
	"time"

	"github.com/google/uuid"

	"github.com/c0deZ3R0/go-docsync/errors"
	"github.com/c0deZ3R0/go-docsync/schema"
)

// ApplyDefaults validates rec against the table definition and fills in
// defaults in place: a UUID for a missing id, declared default values, and
// the current time for missing createdAt/updatedAt. A missing required
// field without a default fails with errors.KindInvalid and leaves no
// transaction log entry behind.
func ApplyDefaults(tbl *schema.Table, rec Record) error {
	const op = errors.Op("docsync.ApplyDefaults")

	if rec.ID() == "" {
		rec[schema.FieldID] = uuid.NewString()
	}

	for _, name := range tbl.FieldNames() {
		if name == schema.FieldID {
			continue
		}
		if v, ok := rec[name]; ok && v != nil {
			continue
		}

		f, _ := tbl.Field(name)
		if f.Default != nil {
			rec[name] = f.Default
			continue
		}
		if !f.Required {
			continue
		}

		// Built-in fallbacks for the timestamp fields.
		switch name {
		case schema.FieldCreatedAt, schema.FieldUpdatedAt:
			rec[name] = time.Now().UTC()
			continue
		}

		return errors.E(op, errors.KindInvalid,
			"missing required field '"+name+"' on table '"+tbl.Name()+"'")
	}

	return nil
}

// ChangedFields returns the subset of declared fields whose value differs
// between old and new. Used to build the changed-field snapshot of an
// update log entry.
func ChangedFields(tbl *schema.Table, old, new Record) Record {
	diff := Record{}
	for _, name := range tbl.FieldNames() {
		nv, ok := new[name]
		if !ok {
			continue
		}
		if !fieldEqual(nv, old[name]) {
			diff[name] = nv
		}
	}
	return diff
}

// CreateSnapshot returns the changed-field snapshot recorded for a create
// log entry: every declared field present on the record except createdAt.
func CreateSnapshot(tbl *schema.Table, rec Record) Record {
	snap := Record{}
	for _, name := range tbl.FieldNames() {
		if name == schema.FieldCreatedAt {
			continue
		}
		if v, ok := rec[name]; ok && v != nil {
			snap[name] = v
		}
	}
	return snap
}
