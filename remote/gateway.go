// Package remote maps the engine's two-namespace remote store contract
// onto a flat, path-addressed collection API. The gateway owns the
// namespace layout (private per-owner collections and shared public
// collections) and the public mirroring rules; the CollectionClient
// underneath only ever sees opaque collection paths.
package remote

import (
	"context"

	docsync "github.com/c0deZ3R0/go-docsync"
	syncErrors "github.com/c0deZ3R0/go-docsync/errors"
)

const component = syncErrors.Component("remote")

// CollectionClient is path-level access to a remote document database.
// A path names one collection; documents within it are keyed by id.
type CollectionClient interface {
	// Fetch returns all documents of a collection.
	Fetch(ctx context.Context, path string) ([]docsync.Record, error)

	// Upsert writes one document.
	Upsert(ctx context.Context, path, id string, rec docsync.Record) error

	// Delete removes one document. Missing documents are reported with
	// errors.KindNotFound.
	Delete(ctx context.Context, path, id string) error

	// Watch streams collection changes to fn until ctx is cancelled.
	Watch(ctx context.Context, path string, fn docsync.ChangeHandler) error
}

// PrivatePath returns the collection path of an owner's private table.
func PrivatePath(ownerID, table string) string {
	return "owner/" + ownerID + "/" + table
}

// PublicPath returns the collection path of a table's shared namespace.
func PublicPath(table string) string {
	return "shared/" + table
}

// Gateway implements docsync.RemoteStore on top of a CollectionClient.
type Gateway struct {
	client CollectionClient
}

var _ docsync.RemoteStore = (*Gateway)(nil)

// NewGateway wraps client in the two-namespace layout.
func NewGateway(client CollectionClient) *Gateway {
	return &Gateway{client: client}
}

// FetchPrivate implements docsync.RemoteStore.
func (g *Gateway) FetchPrivate(ctx context.Context, ownerID, table string) ([]docsync.Record, error) {
	const op = syncErrors.Op("gateway.FetchPrivate")
	recs, err := g.client.Fetch(ctx, PrivatePath(ownerID, table))
	return recs, syncErrors.WrapOpComponent(err, op, component)
}

// FetchPublic implements docsync.RemoteStore.
func (g *Gateway) FetchPublic(ctx context.Context, table string) ([]docsync.Record, error) {
	const op = syncErrors.Op("gateway.FetchPublic")
	recs, err := g.client.Fetch(ctx, PublicPath(table))
	return recs, syncErrors.WrapOpComponent(err, op, component)
}

// Upsert implements docsync.RemoteStore. The private copy is written
// first; only then is the public mirror updated, so a mirroring failure
// never loses the private write. A record whose isPublic flag is off is
// retracted from the shared namespace if it was mirrored before.
func (g *Gateway) Upsert(ctx context.Context, ownerID, table string, rec docsync.Record) error {
	const op = syncErrors.Op("gateway.Upsert")

	id := rec.ID()
	if id == "" {
		return syncErrors.E(op, component, syncErrors.KindInvalid, "record has no id")
	}

	if err := g.client.Upsert(ctx, PrivatePath(ownerID, table), id, rec); err != nil {
		return syncErrors.WrapOpComponent(err, op, component)
	}

	if rec.IsPublic() {
		err := g.client.Upsert(ctx, PublicPath(table), id, rec)
		return syncErrors.WrapOpComponent(err, op, component)
	}
	if err := g.client.Delete(ctx, PublicPath(table), id); err != nil && !syncErrors.IsNotFound(err) {
		return syncErrors.WrapOpComponent(err, op, component)
	}
	return nil
}

// Delete implements docsync.RemoteStore, removing the record from both
// namespaces. A record that was never mirrored publicly is not an error.
func (g *Gateway) Delete(ctx context.Context, ownerID, table, id string) error {
	const op = syncErrors.Op("gateway.Delete")

	if err := g.client.Delete(ctx, PrivatePath(ownerID, table), id); err != nil && !syncErrors.IsNotFound(err) {
		return syncErrors.WrapOpComponent(err, op, component)
	}
	if err := g.client.Delete(ctx, PublicPath(table), id); err != nil && !syncErrors.IsNotFound(err) {
		return syncErrors.WrapOpComponent(err, op, component)
	}
	return nil
}

// WatchPrivate implements docsync.RemoteStore.
func (g *Gateway) WatchPrivate(ctx context.Context, ownerID, table string, fn docsync.ChangeHandler) error {
	const op = syncErrors.Op("gateway.WatchPrivate")
	return syncErrors.WrapOpComponent(g.client.Watch(ctx, PrivatePath(ownerID, table), fn), op, component)
}

// WatchPublic implements docsync.RemoteStore.
func (g *Gateway) WatchPublic(ctx context.Context, table string, fn docsync.ChangeHandler) error {
	const op = syncErrors.Op("gateway.WatchPublic")
	return syncErrors.WrapOpComponent(g.client.Watch(ctx, PublicPath(table), fn), op, component)
}
