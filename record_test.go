package docsync

import (
	"testing"
	"time"

	"github.com/c0deZ3R0/go-docsync/schema"
)

type fakeRemoteTime struct{ t time.Time }

func (f fakeRemoteTime) Time() time.Time { return f.t }

func TestRecordAccessors(t *testing.T) {
	rec := Record{
		"id": "b1", "ownerId": "u1", "isPublic": true, "stateId": schema.StateDeleted,
	}
	if rec.ID() != "b1" || rec.OwnerID() != "u1" || !rec.IsPublic() || !rec.Deleted() {
		t.Errorf("accessor mismatch: %v", rec)
	}

	empty := Record{}
	if empty.ID() != "" || empty.OwnerID() != "" || empty.IsPublic() || empty.Deleted() {
		t.Errorf("zero-value accessors mismatch: %v", empty)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	rec := Record{"id": "b1", "title": "Dune"}
	clone := rec.Clone()
	clone["title"] = "changed"
	if rec["title"] != "Dune" {
		t.Error("mutating a clone leaked into the original")
	}
	if Record(nil).Clone() != nil {
		t.Error("nil record should clone to nil")
	}
}

func TestNormalizeTimestamps(t *testing.T) {
	tbl, _ := testSchema().Table("books")
	instant := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	rec := Record{
		"id":        "b1",
		"title":     "Dune",
		"createdAt": instant.Format(time.RFC3339Nano),
		"updatedAt": fakeRemoteTime{t: instant},
	}
	got := NormalizeTimestamps(tbl, rec)

	if ts, ok := got["createdAt"].(time.Time); !ok || !ts.Equal(instant) {
		t.Errorf("string timestamp not converted: %v", got["createdAt"])
	}
	if ts, ok := got["updatedAt"].(time.Time); !ok || !ts.Equal(instant) {
		t.Errorf("remote-native timestamp not converted: %v", got["updatedAt"])
	}

	// Input untouched and non-time fields untouched.
	if _, ok := rec["createdAt"].(string); !ok {
		t.Error("input record was modified")
	}
	if got["title"] != "Dune" {
		t.Errorf("non-time field changed: %v", got["title"])
	}

	// Garbage stays as-is rather than failing the whole record.
	odd := NormalizeTimestamps(tbl, Record{"id": "b2", "createdAt": "not a time"})
	if odd["createdAt"] != "not a time" {
		t.Errorf("unparseable value should be left alone, got %v", odd["createdAt"])
	}
}
