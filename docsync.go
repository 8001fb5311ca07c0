// Package docsync implements an offline-first synchronization engine that
// reconciles a local embedded document store with a remote multi-tenant
// document store.
//
// Architecture
//
// The local store is the single source of truth for the application. Every
// local mutation made through the store's logging entry points appends a
// transaction log entry; a background queue consumer drains that log and
// forwards each entry to the remote store. Inbound remote changes arrive
// through per-table change subscriptions and are written back to the local
// store along a path that bypasses transaction logging, so pulled changes
// are never re-queued as outbound writes.
//
// On sign-in the engine runs two one-shot reconcilers (upload, then
// download) to bring the local store to a known-consistent baseline, then
// starts the queue consumer and the realtime listener bridge. On sign-out
// both background processes are stopped and the local store remains the
// only data source.
package docsync

import (
	"context"
)

// Action identifies the kind of local mutation recorded in a log entry.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// LogEntry is one recorded local mutation, appended by the local store's
// logging entry points and consumed exactly once by the queue consumer.
type LogEntry struct {
	ID       int64
	Table    string
	Action   Action
	ObjectID string

	// Data holds the changed-field snapshot for create/update entries.
	Data Record

	// OldData holds the pre-mutation snapshot, used for rollback.
	OldData Record
}

// ChangeKind classifies a remote change event.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// Change is one remote change event delivered by a watch subscription.
// Doc carries the document payload; for removed events it holds the last
// known payload and may be nil when the source cannot provide it.
type Change struct {
	Kind ChangeKind
	ID   string
	Doc  Record
}

// ChangeHandler processes remote change events.
type ChangeHandler func(Change)

// LocalStore is the engine's view of the local embedded store. Reads and
// the Put/BulkPut/Remove writes bypass transaction logging; the logging
// entry points (create/save/delete) are the store's own API and are not
// needed by the engine.
type LocalStore interface {
	// WaitReady blocks until the store is ready for table access.
	WaitReady(ctx context.Context) error

	// Get returns the current record by id. Missing records are reported
	// with errors.KindNotFound.
	Get(ctx context.Context, table, id string) (Record, error)

	// List returns all records of a table.
	List(ctx context.Context, table string) ([]Record, error)

	// ListActive returns all records that are not soft-deleted. For tables
	// without a stateId field it is equivalent to List.
	ListActive(ctx context.Context, table string) ([]Record, error)

	// Put upserts a record without creating a transaction log entry.
	Put(ctx context.Context, table string, rec Record) error

	// BulkPut upserts records without creating transaction log entries.
	BulkPut(ctx context.Context, table string, recs []Record) error

	// Remove deletes a record without creating a transaction log entry.
	Remove(ctx context.Context, table, id string) error

	// PendingTransactions returns the transaction log in FIFO order.
	PendingTransactions(ctx context.Context) ([]LogEntry, error)

	// DeleteTransaction removes a forwarded or discarded log entry.
	DeleteTransaction(ctx context.Context, logID int64) error
}

// RemoteStore is the engine's view of the remote document store: per-table
// CRUD plus change subscriptions over a private per-owner namespace and a
// shared public namespace.
type RemoteStore interface {
	// FetchPrivate returns all documents in the owner's private collection.
	FetchPrivate(ctx context.Context, ownerID, table string) ([]Record, error)

	// FetchPublic returns all documents in the shared public collection.
	FetchPublic(ctx context.Context, table string) ([]Record, error)

	// Upsert writes a record to the owner's private collection and
	// maintains the public mirror according to the record's isPublic flag.
	Upsert(ctx context.Context, ownerID, table string, rec Record) error

	// Delete removes a record from both namespaces.
	Delete(ctx context.Context, ownerID, table, id string) error

	// WatchPrivate streams changes of the owner's private collection to fn
	// until ctx is cancelled.
	WatchPrivate(ctx context.Context, ownerID, table string, fn ChangeHandler) error

	// WatchPublic streams changes of the shared public collection to fn
	// until ctx is cancelled.
	WatchPublic(ctx context.Context, table string, fn ChangeHandler) error
}

// AuthProvider emits the current owner identifier on every auth state
// change, including the initial session restoration. An empty owner
// identifier means signed out.
type AuthProvider interface {
	// OnAuthStateChanged registers fn and returns an unsubscribe function.
	// Implementations call fn immediately with the current state.
	OnAuthStateChanged(fn func(ownerID string)) (unsubscribe func())
}
