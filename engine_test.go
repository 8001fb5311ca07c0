package docsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/c0deZ3R0/go-docsync/errors"
	"github.com/c0deZ3R0/go-docsync/schema"
)

func TestStartRunsFullSignInSequence(t *testing.T) {
	local := newMemoryLocalStore()
	remote := newMemoryRemoteStore()
	engine := newTestEngine(local, remote)
	ctx := context.Background()

	// A guest record written before sign-in.
	guest := testRecord("b1", "guest draft")
	local.seed("books", guest)

	// Another owner's public record, waiting remotely.
	foreign := testRecord("b2", "public book")
	foreign[schema.FieldOwnerID] = "u2"
	foreign[schema.FieldIsPublic] = true
	remote.seedPublic("books", foreign)

	sess, err := engine.Start(ctx, "u1")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() {
		engine.Stop()
		sess.Wait()
	}()

	// Upload stamped and pushed the guest record.
	uploaded := remote.getPrivate("u1", "books", "b1")
	if uploaded == nil || uploaded.OwnerID() != "u1" {
		t.Fatalf("guest record not uploaded with owner stamp: %v", uploaded)
	}

	// Download pulled the foreign public record.
	if local.get("books", "b2") == nil {
		t.Error("public record not downloaded at sign-in")
	}

	// A local edit drains to the remote store in the background.
	edit := testRecord("b3", "written while signed in")
	local.logMutation("books", ActionCreate, "b3", edit, nil)
	waitFor(t, "the queue consumer to forward the edit", func() bool {
		return remote.getPrivate("u1", "books", "b3") != nil
	})

	// An inbound remote change lands locally without queueing.
	patch := testRecord("b4", "from another device")
	patch[schema.FieldOwnerID] = "u1"
	remote.emitPrivate("u1", "books", Change{Kind: ChangeAdded, ID: "b4", Doc: patch})
	waitFor(t, "the listener to apply the inbound change", func() bool {
		return local.get("books", "b4") != nil
	})
	if local.logLen() != 0 {
		t.Error("inbound change leaked into the transaction log")
	}
}

func TestStartRejectsSecondSession(t *testing.T) {
	local := newMemoryLocalStore()
	remote := newMemoryRemoteStore()
	engine := newTestEngine(local, remote)
	ctx := context.Background()

	sess, err := engine.Start(ctx, "u1")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() {
		engine.Stop()
		sess.Wait()
	}()

	if _, err := engine.Start(ctx, "u2"); !errors.IsInvalid(err) {
		t.Fatalf("expected invalid error starting a second session, got %v", err)
	}
}

func TestStartConcurrentCallsAdmitOneSession(t *testing.T) {
	local := newMemoryLocalStore()
	remote := newMemoryRemoteStore()
	remote.fetchDelay = 50 * time.Millisecond
	engine := newTestEngine(local, remote)
	ctx := context.Background()

	type result struct {
		sess *Session
		err  error
	}
	results := make(chan result, 2)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := engine.Start(ctx, "u1")
			results <- result{sess: sess, err: err}
		}()
	}
	wg.Wait()
	close(results)

	var sessions []*Session
	var failures []error
	for res := range results {
		if res.err != nil {
			failures = append(failures, res.err)
			continue
		}
		sessions = append(sessions, res.sess)
	}
	defer func() {
		engine.Stop()
		for _, sess := range sessions {
			sess.Wait()
		}
	}()

	if len(sessions) != 1 {
		t.Fatalf("expected exactly one session to start, got %d", len(sessions))
	}
	if len(failures) != 1 || !errors.IsInvalid(failures[0]) {
		t.Fatalf("expected the losing call to fail as invalid, got %v", failures)
	}
}

func TestStopEndsBackgroundWork(t *testing.T) {
	local := newMemoryLocalStore()
	remote := newMemoryRemoteStore()
	engine := newTestEngine(local, remote)

	sess, err := engine.Start(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	engine.Stop()

	done := make(chan struct{})
	go func() {
		sess.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("background processes did not exit after Stop")
	}

	// A fresh session can start once the previous one is gone.
	sess2, err := engine.Start(context.Background(), "u2")
	if err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	engine.Stop()
	sess2.Wait()
}

func TestRunFollowsAuthState(t *testing.T) {
	local := newMemoryLocalStore()
	remote := newMemoryRemoteStore()
	engine := newTestEngine(local, remote)

	auth := &staticAuth{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() {
		runDone <- engine.Run(ctx, auth)
	}()

	// Signed out initially; nothing to do.
	auth.setOwner("u1")
	waitFor(t, "sign-in to start a session", func() bool {
		engine.mu.Lock()
		defer engine.mu.Unlock()
		return engine.session != nil && engine.session.OwnerID() == "u1"
	})

	// Queued work flows while signed in.
	local.logMutation("books", ActionCreate, "b1", testRecord("b1", "draft"), nil)
	waitFor(t, "the session to forward queued work", func() bool {
		return remote.getPrivate("u1", "books", "b1") != nil
	})

	auth.setOwner("")
	waitFor(t, "sign-out to stop the session", func() bool {
		engine.mu.Lock()
		defer engine.mu.Unlock()
		return engine.session == nil
	})

	cancel()
	select {
	case err := <-runDone:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled from Run, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
