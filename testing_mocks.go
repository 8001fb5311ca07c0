package docsync

import (
	"context"
	"sync"
	"time"

	"github.com/c0deZ3R0/go-docsync/errors"
	"github.com/c0deZ3R0/go-docsync/schema"
)

// Mock types for testing

// memoryLocalStore is an in-memory LocalStore with failure injection.
type memoryLocalStore struct {
	mu      sync.Mutex
	tables  map[string]map[string]Record
	log     []LogEntry
	nextLog int64

	bulkPuts int
	putErr   error
}

func newMemoryLocalStore() *memoryLocalStore {
	return &memoryLocalStore{tables: make(map[string]map[string]Record)}
}

// seed writes a record without logging, bypassing any injected error.
func (m *memoryLocalStore) seed(table string, rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.write(table, rec)
}

func (m *memoryLocalStore) write(table string, rec Record) {
	if m.tables[table] == nil {
		m.tables[table] = make(map[string]Record)
	}
	m.tables[table][rec.ID()] = rec.Clone()
}

// logMutation simulates an application write: the record is stored and a
// transaction log entry appended, like the real store's logging path.
func (m *memoryLocalStore) logMutation(table string, action Action, objectID string, data, oldData Record) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextLog++
	m.log = append(m.log, LogEntry{
		ID: m.nextLog, Table: table, Action: action, ObjectID: objectID,
		Data: data.Clone(), OldData: oldData.Clone(),
	})
	if action != ActionDelete && data != nil {
		m.write(table, data)
	}
	if action == ActionDelete {
		delete(m.tables[table], objectID)
	}
	return m.nextLog
}

func (m *memoryLocalStore) logLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.log)
}

func (m *memoryLocalStore) get(table, id string) Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tables[table][id].Clone()
}

func (m *memoryLocalStore) WaitReady(ctx context.Context) error { return ctx.Err() }

func (m *memoryLocalStore) Get(ctx context.Context, table, id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tables[table][id]
	if !ok {
		return nil, errors.E(errors.Op("mock.Get"), errors.KindNotFound, "missing record "+id)
	}
	return rec.Clone(), nil
}

func (m *memoryLocalStore) List(ctx context.Context, table string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var recs []Record
	for _, rec := range m.tables[table] {
		recs = append(recs, rec.Clone())
	}
	return recs, nil
}

func (m *memoryLocalStore) ListActive(ctx context.Context, table string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var recs []Record
	for _, rec := range m.tables[table] {
		if rec.Deleted() {
			continue
		}
		recs = append(recs, rec.Clone())
	}
	return recs, nil
}

func (m *memoryLocalStore) Put(ctx context.Context, table string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.write(table, rec)
	return nil
}

func (m *memoryLocalStore) BulkPut(ctx context.Context, table string, recs []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.bulkPuts++
	for _, rec := range recs {
		m.write(table, rec)
	}
	return nil
}

func (m *memoryLocalStore) Remove(ctx context.Context, table, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[table][id]; !ok {
		return errors.E(errors.Op("mock.Remove"), errors.KindNotFound, "missing record "+id)
	}
	delete(m.tables[table], id)
	return nil
}

func (m *memoryLocalStore) PendingTransactions(ctx context.Context) ([]LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]LogEntry, len(m.log))
	copy(entries, m.log)
	return entries, nil
}

func (m *memoryLocalStore) DeleteTransaction(ctx context.Context, logID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, entry := range m.log {
		if entry.ID == logID {
			m.log = append(m.log[:i], m.log[i+1:]...)
			return nil
		}
	}
	return nil
}

// memoryRemoteStore is an in-memory RemoteStore with per-record failure
// injection and manually driven watch subscriptions.
type memoryRemoteStore struct {
	mu      sync.Mutex
	private map[string]map[string]Record // owner/table -> id -> record
	public  map[string]map[string]Record // table -> id -> record

	upsertFailures map[string]int // record id -> remaining failures
	upserts        []string
	deletes        []string
	fetchDelay     time.Duration

	nextSub     int64
	privateSubs map[string]map[int64]chan Change // owner/table
	publicSubs  map[string]map[int64]chan Change // table
}

func newMemoryRemoteStore() *memoryRemoteStore {
	return &memoryRemoteStore{
		private:        make(map[string]map[string]Record),
		public:         make(map[string]map[string]Record),
		upsertFailures: make(map[string]int),
		privateSubs:    make(map[string]map[int64]chan Change),
		publicSubs:     make(map[string]map[int64]chan Change),
	}
}

func privateKey(ownerID, table string) string { return ownerID + "/" + table }

func (m *memoryRemoteStore) seedPrivate(ownerID, table string, rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := privateKey(ownerID, table)
	if m.private[key] == nil {
		m.private[key] = make(map[string]Record)
	}
	m.private[key][rec.ID()] = rec.Clone()
}

func (m *memoryRemoteStore) seedPublic(table string, rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.public[table] == nil {
		m.public[table] = make(map[string]Record)
	}
	m.public[table][rec.ID()] = rec.Clone()
}

// failUpserts makes the next n upserts of record id fail with a transient
// error.
func (m *memoryRemoteStore) failUpserts(id string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertFailures[id] = n
}

func (m *memoryRemoteStore) getPrivate(ownerID, table, id string) Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.private[privateKey(ownerID, table)][id].Clone()
}

func (m *memoryRemoteStore) FetchPrivate(ctx context.Context, ownerID, table string) ([]Record, error) {
	m.mu.Lock()
	delay := m.fetchDelay
	m.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var recs []Record
	for _, rec := range m.private[privateKey(ownerID, table)] {
		recs = append(recs, rec.Clone())
	}
	return recs, nil
}

func (m *memoryRemoteStore) FetchPublic(ctx context.Context, table string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var recs []Record
	for _, rec := range m.public[table] {
		recs = append(recs, rec.Clone())
	}
	return recs, nil
}

func (m *memoryRemoteStore) Upsert(ctx context.Context, ownerID, table string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := rec.ID()
	m.upserts = append(m.upserts, id)
	if n := m.upsertFailures[id]; n > 0 {
		m.upsertFailures[id] = n - 1
		return errors.E(errors.Op("mock.Upsert"), errors.KindTransient, "injected failure for "+id)
	}

	key := privateKey(ownerID, table)
	if m.private[key] == nil {
		m.private[key] = make(map[string]Record)
	}
	m.private[key][id] = rec.Clone()

	if rec.IsPublic() {
		if m.public[table] == nil {
			m.public[table] = make(map[string]Record)
		}
		m.public[table][id] = rec.Clone()
	} else {
		delete(m.public[table], id)
	}
	return nil
}

func (m *memoryRemoteStore) Delete(ctx context.Context, ownerID, table, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, id)
	delete(m.private[privateKey(ownerID, table)], id)
	delete(m.public[table], id)
	return nil
}

func (m *memoryRemoteStore) WatchPrivate(ctx context.Context, ownerID, table string, fn ChangeHandler) error {
	ch, unsubscribe := m.subscribe(m.privateSubs, privateKey(ownerID, table))
	defer unsubscribe()
	return m.watch(ctx, ch, fn)
}

func (m *memoryRemoteStore) WatchPublic(ctx context.Context, table string, fn ChangeHandler) error {
	ch, unsubscribe := m.subscribe(m.publicSubs, table)
	defer unsubscribe()
	return m.watch(ctx, ch, fn)
}

// subscribe registers a watch channel under key and returns it with the
// function that removes the registration again.
func (m *memoryRemoteStore) subscribe(subs map[string]map[int64]chan Change, key string) (chan Change, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSub++
	id := m.nextSub
	ch := make(chan Change, 16)
	if subs[key] == nil {
		subs[key] = make(map[int64]chan Change)
	}
	subs[key][id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(subs[key], id)
	}
}

func (m *memoryRemoteStore) watch(ctx context.Context, ch chan Change, fn ChangeHandler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case change := <-ch:
			fn(change)
		}
	}
}

// emitPrivate delivers a change to every private watcher of owner/table.
func (m *memoryRemoteStore) emitPrivate(ownerID, table string, change Change) {
	m.emit(m.privateSubs, privateKey(ownerID, table), change)
}

// emitPublic delivers a change to every public watcher of table.
func (m *memoryRemoteStore) emitPublic(table string, change Change) {
	m.emit(m.publicSubs, table, change)
}

// emit sends outside the lock so a watcher draining its channel never
// deadlocks against a registration or another emit.
func (m *memoryRemoteStore) emit(subs map[string]map[int64]chan Change, key string, change Change) {
	m.mu.Lock()
	channels := make([]chan Change, 0, len(subs[key]))
	for _, ch := range subs[key] {
		channels = append(channels, ch)
	}
	m.mu.Unlock()

	for _, ch := range channels {
		ch <- change
	}
}

// staticAuth is an AuthProvider driven by explicit SetOwner calls.
type staticAuth struct {
	mu       sync.Mutex
	ownerID  string
	handlers []func(string)
}

func (a *staticAuth) OnAuthStateChanged(fn func(ownerID string)) func() {
	a.mu.Lock()
	a.handlers = append(a.handlers, fn)
	current := a.ownerID
	a.mu.Unlock()

	fn(current)
	return func() {}
}

// setOwner switches the signed-in owner and notifies subscribers.
func (a *staticAuth) setOwner(ownerID string) {
	a.mu.Lock()
	a.ownerID = ownerID
	handlers := append([]func(string){}, a.handlers...)
	a.mu.Unlock()

	for _, fn := range handlers {
		fn(ownerID)
	}
}

// testSchema returns a two-table schema used across the engine tests.
func testSchema() *schema.Schema {
	sc, err := schema.New(map[string]map[string]schema.Field{
		"books": {
			schema.FieldID:        {Type: schema.TypeString},
			"title":               {Type: schema.TypeString, Required: true},
			schema.FieldOwnerID:   {Type: schema.TypeString},
			schema.FieldIsPublic:  {Type: schema.TypeBool, Default: false},
			schema.FieldCreatedAt: {Type: schema.TypeTime, Required: true},
			schema.FieldUpdatedAt: {Type: schema.TypeTime, Required: true},
			schema.FieldStateID:   {Type: schema.TypeString, Default: schema.StateActive},
		},
		"notes": {
			schema.FieldID: {Type: schema.TypeString},
			"body":         {Type: schema.TypeString},
		},
	})
	if err != nil {
		panic(err)
	}
	return sc
}
