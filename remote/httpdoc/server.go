package httpdoc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	docsync "github.com/c0deZ3R0/go-docsync"
	"github.com/c0deZ3R0/go-docsync/logging"
	"github.com/c0deZ3R0/go-docsync/schema"
)

// Server is an in-memory document store speaking the httpdoc wire API.
// It keeps one collection per path, stamps updatedAt on every write, and
// fans writes out to watch subscribers. State is not persisted; it exists
// for development setups and tests, not as a production backend.
type Server struct {
	logger *logging.Logger

	mu          sync.RWMutex
	collections map[string]map[string]docsync.Record
	subs        map[string]map[int64]chan wireChange
	nextSub     int64
}

// NewServer creates an empty in-memory server.
func NewServer() *Server {
	return &Server{
		logger:      logging.WithComponent(logging.Component("httpdoc-server")),
		collections: make(map[string]map[string]docsync.Record),
		subs:        make(map[string]map[int64]chan wireChange),
	}
}

// Handler returns the HTTP handler serving the wire API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/collections", s.handleCollection)
	mux.HandleFunc("/docs", s.handleDoc)
	mux.HandleFunc("/watch", s.handleWatch)
	return mux
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "missing path", http.StatusBadRequest)
		return
	}

	payload := snapshotPayload{Docs: s.Snapshot(path)}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("failed to encode snapshot", "path", path, "error", err)
	}
}

func (s *Server) handleDoc(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	id := r.URL.Query().Get("id")
	if path == "" || id == "" {
		http.Error(w, "missing path or id", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodPut:
		var rec docsync.Record
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 8<<20)).Decode(&rec); err != nil {
			http.Error(w, "bad document", http.StatusBadRequest)
			return
		}
		s.Put(path, id, rec)
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if !s.Remove(path, id) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "missing path", http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Register before snapshotting so no write between snapshot and
	// subscription is lost. A write in that window may be delivered
	// twice, which subscribers absorb as an idempotent upsert.
	id, ch := s.subscribe(path)
	defer s.unsubscribe(path, id)

	for _, rec := range s.Snapshot(path) {
		if err := writeEvent(w, flusher, toWire(docsync.Change{Kind: docsync.ChangeAdded, ID: rec.ID(), Doc: rec})); err != nil {
			return
		}
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			if err := writeEvent(w, flusher, ev); err != nil {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, ev wireChange) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// Snapshot returns the current contents of a collection, ordered by id.
func (s *Server) Snapshot(path string) []docsync.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]docsync.Record, 0, len(s.collections[path]))
	for _, rec := range s.collections[path] {
		docs = append(docs, rec.Clone())
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID() < docs[j].ID() })
	return docs
}

// Put upserts a document, stamping a server-side updatedAt, and notifies
// watchers. Exported so tests and tools can mutate the store directly.
func (s *Server) Put(path, id string, rec docsync.Record) {
	rec = rec.Clone()
	rec[schema.FieldID] = id
	rec[schema.FieldUpdatedAt] = time.Now().UTC()

	s.mu.Lock()
	if s.collections[path] == nil {
		s.collections[path] = make(map[string]docsync.Record)
	}
	_, existed := s.collections[path][id]
	s.collections[path][id] = rec
	s.mu.Unlock()

	kind := docsync.ChangeAdded
	if existed {
		kind = docsync.ChangeModified
	}
	s.broadcast(path, toWire(docsync.Change{Kind: kind, ID: id, Doc: rec}))
}

// Remove deletes a document and notifies watchers with the last known
// payload. Reports whether the document existed.
func (s *Server) Remove(path, id string) bool {
	s.mu.Lock()
	rec, ok := s.collections[path][id]
	if ok {
		delete(s.collections[path], id)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	s.broadcast(path, toWire(docsync.Change{Kind: docsync.ChangeRemoved, ID: id, Doc: rec}))
	return true
}

func (s *Server) subscribe(path string) (int64, chan wireChange) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSub++
	id := s.nextSub
	ch := make(chan wireChange, 256)
	if s.subs[path] == nil {
		s.subs[path] = make(map[int64]chan wireChange)
	}
	s.subs[path][id] = ch
	return id, ch
}

func (s *Server) unsubscribe(path string, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs[path], id)
}

func (s *Server) broadcast(path string, ev wireChange) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, ch := range s.subs[path] {
		select {
		case ch <- ev:
		default:
			// Slow subscriber; its stream is stale from here on.
			s.logger.Warn("dropping change for slow watcher", "path", path, "subscriber", id)
		}
	}
}
