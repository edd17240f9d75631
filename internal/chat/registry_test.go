package chat

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRegistryGetOrCreate(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	key := SessionKey{OwnerID: "user-1", SessionID: "tab-1"}
	calls := 0
	create := func() *Session {
		calls++
		return NewSession(testOptions(), newFakeCompleter("x"), nil, nil, nil)
	}

	first, created := r.GetOrCreate(key, create)
	if !created {
		t.Fatal("expected session to be created")
	}
	second, created := r.GetOrCreate(key, create)
	if created || second != first {
		t.Fatal("expected the existing session to be returned")
	}
	if calls != 1 {
		t.Errorf("create called %d times", calls)
	}
	if r.Get(key) != first {
		t.Error("Get returned a different session")
	}

	other, _ := r.GetOrCreate(SessionKey{OwnerID: "user-1", SessionID: "tab-2"}, create)
	if other == first {
		t.Error("tabs of the same owner must not share a session")
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
}

func TestRegistryRemoveDetaches(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	key := SessionKey{OwnerID: "user-1", SessionID: "tab-1"}
	s, _ := r.GetOrCreate(key, func() *Session {
		return NewSession(testOptions(), newFakeCompleter("x"), nil, nil, nil)
	})

	r.Remove(key)
	if r.Get(key) != nil {
		t.Fatal("session still registered after Remove")
	}
	if _, err := s.Send(context.Background(), "oi"); !errors.Is(err, ErrDetached) {
		t.Errorf("removed session Send = %v, want ErrDetached", err)
	}
	// Removing twice is harmless.
	r.Remove(key)
}

func TestRegistryEvictIdle(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	fixed := func(at time.Time) func() time.Time { return func() time.Time { return at } }

	r := NewRegistry()
	oldOpts := testOptions()
	oldOpts.Now = fixed(base)
	freshOpts := testOptions()
	freshOpts.Now = fixed(base.Add(50 * time.Minute))

	busyCompleter := newFakeCompleter("x")
	busyCompleter.started = make(chan struct{})
	busyCompleter.release = make(chan struct{})
	busyOpts := testOptions()
	busyOpts.Now = fixed(base)

	old, _ := r.GetOrCreate(SessionKey{OwnerID: "a", SessionID: "1"}, func() *Session {
		return NewSession(oldOpts, newFakeCompleter("x"), nil, nil, nil)
	})
	r.GetOrCreate(SessionKey{OwnerID: "b", SessionID: "1"}, func() *Session {
		return NewSession(freshOpts, newFakeCompleter("x"), nil, nil, nil)
	})
	busy, _ := r.GetOrCreate(SessionKey{OwnerID: "c", SessionID: "1"}, func() *Session {
		return NewSession(busyOpts, busyCompleter, nil, nil, nil)
	})

	done := make(chan error, 1)
	go func() {
		_, err := busy.Send(context.Background(), "oi")
		done <- err
	}()
	<-busyCompleter.started

	evicted := r.EvictIdle(30*time.Minute, base.Add(time.Hour))
	if evicted != 1 {
		t.Fatalf("evicted %d sessions, want 1", evicted)
	}
	if r.Get(SessionKey{OwnerID: "a", SessionID: "1"}) != nil {
		t.Error("idle session not evicted")
	}
	if r.Get(SessionKey{OwnerID: "c", SessionID: "1"}) == nil {
		t.Error("session with an exchange in flight must be kept")
	}
	if _, err := old.Send(context.Background(), "oi"); !errors.Is(err, ErrDetached) {
		t.Errorf("evicted session Send = %v, want ErrDetached", err)
	}

	close(busyCompleter.release)
	if err := <-done; err != nil {
		t.Fatalf("busy Send failed: %v", err)
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
}

func TestRegistryReleaseKeepsSessionWhileAttached(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	key := SessionKey{OwnerID: "user-1", SessionID: "default"}
	create := func() *Session {
		return NewSession(testOptions(), newFakeCompleter("ok"), nil, nil, nil)
	}

	first, created := r.Attach(key, create)
	if !created {
		t.Fatal("expected the first attach to create the session")
	}
	second, created := r.Attach(key, create)
	if created || second != first {
		t.Fatal("second attach must share the session")
	}

	r.Release(key)
	if r.Get(key) != first {
		t.Fatal("session dropped while a connection is still attached")
	}
	if _, err := first.Send(context.Background(), "oi"); err != nil {
		t.Fatalf("Send after one release = %v, want success", err)
	}

	r.Release(key)
	if r.Get(key) != nil {
		t.Fatal("session kept after the last release")
	}
	if _, err := first.Send(context.Background(), "oi"); !errors.Is(err, ErrDetached) {
		t.Errorf("Send after last release = %v, want ErrDetached", err)
	}
}

func TestRegistryEvictIdleSkipsAttachedSessions(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	opts := testOptions()
	opts.Now = func() time.Time { return base }

	r := NewRegistry()
	key := SessionKey{OwnerID: "user-1", SessionID: "default"}
	s, _ := r.Attach(key, func() *Session {
		return NewSession(opts, newFakeCompleter("ok"), nil, nil, nil)
	})

	if n := r.EvictIdle(time.Hour, base.Add(3*time.Hour)); n != 0 {
		t.Fatalf("evicted %d attached sessions", n)
	}
	if _, err := s.Send(context.Background(), "ainda aqui"); err != nil {
		t.Fatalf("attached session Send = %v, want success", err)
	}

	r.Release(key)
	if r.Len() != 0 {
		t.Errorf("Len = %d after release, want 0", r.Len())
	}
}
