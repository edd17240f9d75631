package chat

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"

	"github.com/portal-treinamento/core/internal/domain"
)

type fakeCompleter struct {
	mu        sync.Mutex
	fragments []string
	failAt    int
	err       error
	started   chan struct{}
	release   chan struct{}
	onYield   func(i int)
	requests  []CompletionRequest
	stopped   bool
	once      sync.Once
}

func newFakeCompleter(fragments ...string) *fakeCompleter {
	return &fakeCompleter{fragments: fragments, failAt: -1}
}

func (f *fakeCompleter) StreamComplete(ctx context.Context, req CompletionRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()

		if f.started != nil {
			f.once.Do(func() { close(f.started) })
		}
		if f.release != nil {
			select {
			case <-f.release:
			case <-ctx.Done():
				yield("", ctx.Err())
				return
			}
		}

		for i := 0; i <= len(f.fragments); i++ {
			if f.err != nil && i == f.failAt {
				yield("", f.err)
				return
			}
			if i == len(f.fragments) {
				return
			}
			if f.onYield != nil {
				f.onYield(i)
			}
			if !yield(f.fragments[i], nil) {
				f.mu.Lock()
				f.stopped = true
				f.mu.Unlock()
				return
			}
		}
	}
}

func (f *fakeCompleter) lastRequest() CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type fakeLookup struct {
	chunks []domain.ContextChunk
	err    error
	calls  int
	tenant string
}

func (f *fakeLookup) Lookup(_ context.Context, _ string, tenantID string, _ float64, _ int) ([]domain.ContextChunk, error) {
	f.calls++
	f.tenant = tenantID
	return f.chunks, f.err
}

type fakeStore struct {
	mu        sync.Mutex
	exchanges []*domain.Exchange
	saveErr   error
	listErr   error
}

func (f *fakeStore) SaveExchange(_ context.Context, ex *domain.Exchange) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges = append(f.exchanges, ex)
	return nil
}

func (f *fakeStore) ListExchanges(_ context.Context, ownerID string) ([]*domain.Exchange, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Exchange
	for _, ex := range f.exchanges {
		if ex.OwnerID == ownerID {
			out = append(out, ex)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteExchanges(_ context.Context, ownerID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []*domain.Exchange
	var deleted int64
	for _, ex := range f.exchanges {
		if ex.OwnerID == ownerID {
			deleted++
			continue
		}
		kept = append(kept, ex)
	}
	f.exchanges = kept
	return deleted, nil
}

func (f *fakeStore) saved() []*domain.Exchange {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.Exchange, len(f.exchanges))
	copy(out, f.exchanges)
	return out
}

// steppingClock advances by step on every call.
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(step)
		return cur
	}
}

var errRemote = errors.New("remote closed connection")
