package remote

import (
	"context"
	"sync"
	"testing"

	docsync "github.com/c0deZ3R0/go-docsync"
	syncErrors "github.com/c0deZ3R0/go-docsync/errors"
)

// fakeClient records calls and serves canned collections keyed by path.
type fakeClient struct {
	mu          sync.Mutex
	collections map[string]map[string]docsync.Record
	upserts     []string
	deletes     []string
	deleteErr   error
}

func newFakeClient() *fakeClient {
	return &fakeClient{collections: make(map[string]map[string]docsync.Record)}
}

func (c *fakeClient) Fetch(ctx context.Context, path string) ([]docsync.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var recs []docsync.Record
	for _, rec := range c.collections[path] {
		recs = append(recs, rec)
	}
	return recs, nil
}

func (c *fakeClient) Upsert(ctx context.Context, path, id string, rec docsync.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.collections[path] == nil {
		c.collections[path] = make(map[string]docsync.Record)
	}
	c.collections[path][id] = rec
	c.upserts = append(c.upserts, path+"#"+id)
	return nil
}

func (c *fakeClient) Delete(ctx context.Context, path, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes = append(c.deletes, path+"#"+id)
	if c.deleteErr != nil {
		return c.deleteErr
	}
	if _, ok := c.collections[path][id]; !ok {
		return syncErrors.E(syncErrors.Op("fake.Delete"), syncErrors.KindNotFound, "missing")
	}
	delete(c.collections[path], id)
	return nil
}

func (c *fakeClient) Watch(ctx context.Context, path string, fn docsync.ChangeHandler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (c *fakeClient) has(path, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.collections[path][id]
	return ok
}

func TestUpsertPrivateOnly(t *testing.T) {
	client := newFakeClient()
	gw := NewGateway(client)

	rec := docsync.Record{"id": "b1", "title": "Dune"}
	if err := gw.Upsert(context.Background(), "u1", "books", rec); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if !client.has("owner/u1/books", "b1") {
		t.Error("expected private copy")
	}
	if client.has("shared/books", "b1") {
		t.Error("non-public record must not be mirrored")
	}
}

func TestUpsertMirrorsPublic(t *testing.T) {
	client := newFakeClient()
	gw := NewGateway(client)

	rec := docsync.Record{"id": "b1", "title": "Dune", "isPublic": true}
	if err := gw.Upsert(context.Background(), "u1", "books", rec); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if !client.has("owner/u1/books", "b1") {
		t.Error("expected private copy")
	}
	if !client.has("shared/books", "b1") {
		t.Error("public record must be mirrored to the shared namespace")
	}
}

func TestUpsertRetractsUnpublishedRecord(t *testing.T) {
	client := newFakeClient()
	gw := NewGateway(client)
	ctx := context.Background()

	rec := docsync.Record{"id": "b1", "title": "Dune", "isPublic": true}
	if err := gw.Upsert(ctx, "u1", "books", rec); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	rec = docsync.Record{"id": "b1", "title": "Dune", "isPublic": false}
	if err := gw.Upsert(ctx, "u1", "books", rec); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if client.has("shared/books", "b1") {
		t.Error("unpublishing must remove the shared mirror")
	}
	if !client.has("owner/u1/books", "b1") {
		t.Error("private copy must survive unpublishing")
	}
}

func TestUpsertWithoutIDRejected(t *testing.T) {
	gw := NewGateway(newFakeClient())

	err := gw.Upsert(context.Background(), "u1", "books", docsync.Record{"title": "Dune"})
	if !syncErrors.IsInvalid(err) {
		t.Fatalf("expected invalid error, got %v", err)
	}
}

func TestDeleteRemovesBothNamespaces(t *testing.T) {
	client := newFakeClient()
	gw := NewGateway(client)
	ctx := context.Background()

	rec := docsync.Record{"id": "b1", "title": "Dune", "isPublic": true}
	if err := gw.Upsert(ctx, "u1", "books", rec); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := gw.Delete(ctx, "u1", "books", "b1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if client.has("owner/u1/books", "b1") || client.has("shared/books", "b1") {
		t.Error("delete must clear both namespaces")
	}
}

func TestDeleteSwallowsMissingMirror(t *testing.T) {
	client := newFakeClient()
	gw := NewGateway(client)
	ctx := context.Background()

	rec := docsync.Record{"id": "b1", "title": "Dune"}
	if err := gw.Upsert(ctx, "u1", "books", rec); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	// The record was never public, so the shared-namespace delete hits
	// nothing. That must not surface as an error.
	if err := gw.Delete(ctx, "u1", "books", "b1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
}

func TestDeletePropagatesRealErrors(t *testing.T) {
	client := newFakeClient()
	client.deleteErr = syncErrors.E(syncErrors.Op("fake.Delete"), syncErrors.KindTransient, "boom")
	gw := NewGateway(client)

	err := gw.Delete(context.Background(), "u1", "books", "b1")
	if err == nil || !syncErrors.IsRetryable(err) {
		t.Fatalf("expected transient error to propagate, got %v", err)
	}
}

func TestPaths(t *testing.T) {
	if got := PrivatePath("u1", "books"); got != "owner/u1/books" {
		t.Errorf("PrivatePath = %q", got)
	}
	if got := PublicPath("books"); got != "shared/books" {
		t.Errorf("PublicPath = %q", got)
	}
}
