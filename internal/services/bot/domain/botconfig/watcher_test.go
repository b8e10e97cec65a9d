package botconfig

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeLister struct {
	mu       sync.Mutex
	versions map[string]int64
}

func (f *fakeLister) ListConfigVersions(ctx context.Context) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int64, len(f.versions))
	for domain, version := range f.versions {
		out[domain] = version
	}
	return out, nil
}

func (f *fakeLister) set(domain string, version int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.versions[domain] = version
}

func TestWatcherEmitsOnVersionAdvance(t *testing.T) {
	lister := &fakeLister{versions: map[string]int64{"posting": 1}}
	watcher, err := NewWatcher(context.Background(), lister, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	lister.set("posting", 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := watcher.Run(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected run error: %v", err)
		}
	}()

	select {
	case change := <-watcher.Changes():
		if change.Domain != DomainPosting || change.Version != 2 {
			t.Fatalf("unexpected change: %+v", change)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change")
	}

	cancel()
	<-done
}

func TestWatcherBaselineIsSilent(t *testing.T) {
	lister := &fakeLister{versions: map[string]int64{"posting": 3, "budget": 1}}
	watcher, err := NewWatcher(context.Background(), lister, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = watcher.Run(ctx)
	}()

	select {
	case change, ok := <-watcher.Changes():
		if ok {
			t.Fatalf("expected no change for baseline versions, got %+v", change)
		}
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	<-done
}

func TestWatcherSeesNewDomains(t *testing.T) {
	lister := &fakeLister{versions: map[string]int64{}}
	watcher, err := NewWatcher(context.Background(), lister, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	lister.set("growth", 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = watcher.Run(ctx)
	}()

	select {
	case change := <-watcher.Changes():
		if change.Domain != DomainGrowth || change.Version != 1 {
			t.Fatalf("unexpected change: %+v", change)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for new domain change")
	}

	cancel()
	<-done
}

func TestNewWatcherValidation(t *testing.T) {
	if _, err := NewWatcher(context.Background(), nil, time.Second); err == nil {
		t.Fatal("expected error for nil lister")
	}
	if _, err := NewWatcher(context.Background(), &fakeLister{versions: map[string]int64{}}, 0); err == nil {
		t.Fatal("expected error for zero interval")
	}
}
