package docsync

import (
	"context"
	"testing"
	"time"

	"github.com/c0deZ3R0/go-docsync/schema"
)

func testRecord(id, title string) Record {
	now := time.Now().UTC()
	return Record{
		schema.FieldID:        id,
		"title":               title,
		schema.FieldCreatedAt: now,
		schema.FieldUpdatedAt: now,
		schema.FieldStateID:   schema.StateActive,
	}
}

func newTestEngine(local LocalStore, remote RemoteStore) *Engine {
	return New(testSchema(), local, remote, &Options{DrainInterval: 10 * time.Millisecond})
}

func TestReconcileUploadUploadsOnlyMissingRecords(t *testing.T) {
	local := newMemoryLocalStore()
	remote := newMemoryRemoteStore()
	engine := newTestEngine(local, remote)
	ctx := context.Background()

	existing := testRecord("b1", "already uploaded")
	existing[schema.FieldOwnerID] = "u1"
	local.seed("books", existing)
	remote.seedPrivate("u1", "books", existing)

	missing := testRecord("b2", "local only")
	missing[schema.FieldOwnerID] = "u1"
	local.seed("books", missing)

	n, err := engine.ReconcileUpload(ctx, "u1")
	if err != nil {
		t.Fatalf("ReconcileUpload failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 upload, got %d", n)
	}
	if remote.getPrivate("u1", "books", "b2") == nil {
		t.Error("missing record was not uploaded")
	}

	// A second pass finds nothing to do.
	n, err = engine.ReconcileUpload(ctx, "u1")
	if err != nil {
		t.Fatalf("second ReconcileUpload failed: %v", err)
	}
	if n != 0 {
		t.Errorf("repeated pass should upload nothing, got %d", n)
	}
}

func TestReconcileUploadDoesNotOverwriteRemote(t *testing.T) {
	local := newMemoryLocalStore()
	remote := newMemoryRemoteStore()
	engine := newTestEngine(local, remote)

	stale := testRecord("b1", "local stale copy")
	stale[schema.FieldOwnerID] = "u1"
	local.seed("books", stale)

	current := testRecord("b1", "remote current copy")
	current[schema.FieldOwnerID] = "u1"
	remote.seedPrivate("u1", "books", current)

	if _, err := engine.ReconcileUpload(context.Background(), "u1"); err != nil {
		t.Fatalf("ReconcileUpload failed: %v", err)
	}
	got := remote.getPrivate("u1", "books", "b1")
	if got["title"] != "remote current copy" {
		t.Errorf("upload pass must not overwrite existing remote documents, got %v", got["title"])
	}
}

func TestReconcileUploadStampsGuestRecords(t *testing.T) {
	local := newMemoryLocalStore()
	remote := newMemoryRemoteStore()
	engine := newTestEngine(local, remote)

	guest := testRecord("b1", "written before sign-in")
	local.seed("books", guest)

	if _, err := engine.ReconcileUpload(context.Background(), "u1"); err != nil {
		t.Fatalf("ReconcileUpload failed: %v", err)
	}

	uploaded := remote.getPrivate("u1", "books", "b1")
	if uploaded.OwnerID() != "u1" {
		t.Errorf("uploaded record should carry the owner, got %q", uploaded.OwnerID())
	}
	if got := local.get("books", "b1").OwnerID(); got != "u1" {
		t.Errorf("owner stamp should be persisted locally, got %q", got)
	}
	if local.logLen() != 0 {
		t.Error("owner stamping must not create transaction log entries")
	}
}

func TestReconcileUploadSkipsSoftDeleted(t *testing.T) {
	local := newMemoryLocalStore()
	remote := newMemoryRemoteStore()
	engine := newTestEngine(local, remote)

	tombstone := testRecord("b1", "gone")
	tombstone[schema.FieldStateID] = schema.StateDeleted
	local.seed("books", tombstone)

	n, err := engine.ReconcileUpload(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ReconcileUpload failed: %v", err)
	}
	if n != 0 {
		t.Errorf("soft-deleted records must not upload, got %d", n)
	}
	if remote.getPrivate("u1", "books", "b1") != nil {
		t.Error("tombstone reached the remote store")
	}
}

func TestReconcileUploadIsolatesTableFailures(t *testing.T) {
	local := newMemoryLocalStore()
	remote := newMemoryRemoteStore()
	engine := newTestEngine(local, remote)

	failing := testRecord("b1", "will fail")
	local.seed("books", failing)
	remote.failUpserts("b1", 1)

	local.seed("notes", Record{schema.FieldID: "n1", "body": "fine"})

	n, err := engine.ReconcileUpload(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ReconcileUpload failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected the healthy table to upload, got %d", n)
	}
	if remote.getPrivate("u1", "notes", "n1") == nil {
		t.Error("failure in one table must not block another")
	}
}
