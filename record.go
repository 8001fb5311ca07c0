package docsync

import (
	"reflect"
	"time"

	"github.com/c0deZ3R0/go-docsync/schema"
)

// Record is a table row: a mapping of field name to value. The field set
// is driven by the table's schema; a handful of reserved fields carry
// engine semantics (id, ownerId, isPublic, stateId, createdAt, updatedAt).
type Record map[string]any

// ID returns the record identifier, or "" when unassigned.
func (r Record) ID() string {
	id, _ := r[schema.FieldID].(string)
	return id
}

// OwnerID returns the owner identifier, or "" for guest records.
func (r Record) OwnerID() string {
	owner, _ := r[schema.FieldOwnerID].(string)
	return owner
}

// IsPublic reports whether the record is mirrored into the shared public
// namespace.
func (r Record) IsPublic() bool {
	pub, _ := r[schema.FieldIsPublic].(bool)
	return pub
}

// StateID returns the lifecycle marker, or "" for tables without one.
func (r Record) StateID() string {
	state, _ := r[schema.FieldStateID].(string)
	return state
}

// Deleted reports whether the record is soft-deleted.
func (r Record) Deleted() bool {
	return r.StateID() == schema.StateDeleted
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// TimeValue is implemented by remote-native timestamp types that can be
// converted to a local time.
type TimeValue interface {
	Time() time.Time
}

// NormalizeTimestamps converts remote-native timestamp values of a record
// into time.Time, driven by the table's declared time fields. String values
// are parsed as RFC 3339; values that cannot be converted are left as-is.
// The input record is not modified.
func NormalizeTimestamps(tbl *schema.Table, rec Record) Record {
	if rec == nil {
		return nil
	}
	out := rec.Clone()
	for _, name := range tbl.FieldNames() {
		f, _ := tbl.Field(name)
		if f.Type != schema.TypeTime {
			continue
		}
		v, ok := out[name]
		if !ok || v == nil {
			continue
		}
		switch tv := v.(type) {
		case time.Time:
			// already local representation
		case TimeValue:
			out[name] = tv.Time()
		case string:
			if t, err := time.Parse(time.RFC3339Nano, tv); err == nil {
				out[name] = t
			}
		}
	}
	return out
}

// fieldEqual compares two field values, treating time values specially so
// that equal instants in different locations compare equal. Composite values
// such as decoded JSON arrays and objects are compared structurally since
// comparing them as interfaces would panic.
func fieldEqual(a, b any) bool {
	at, aok := a.(time.Time)
	bt, bok := b.(time.Time)
	if aok && bok {
		return at.Equal(bt)
	}
	if a == nil || b == nil {
		return a == b
	}
	if !reflect.TypeOf(a).Comparable() || !reflect.TypeOf(b).Comparable() {
		return reflect.DeepEqual(a, b)
	}
	return a == b
}
