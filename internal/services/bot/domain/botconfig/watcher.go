package botconfig

import (
	"context"
	"fmt"
	"time"
)

// VersionLister is the slice of the config store the watcher needs.
type VersionLister interface {
	ListConfigVersions(ctx context.Context) (map[string]int64, error)
}

// Change signals that one configuration domain advanced to a new version.
type Change struct {
	Domain  Domain
	Version int64
}

// Watcher polls configuration versions and emits a Change whenever a domain's
// version advances past what it last saw. New domains appearing after the
// baseline also count as changes.
type Watcher struct {
	lister   VersionLister
	interval time.Duration
	changes  chan Change
	seen     map[string]int64
}

// NewWatcher creates a watcher polling on the given interval. It takes the
// version baseline immediately, so any advance after construction is emitted
// once Run is polling.
func NewWatcher(ctx context.Context, lister VersionLister, interval time.Duration) (*Watcher, error) {
	if lister == nil {
		return nil, fmt.Errorf("version lister is required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("poll interval must be greater than zero")
	}
	baseline, err := lister.ListConfigVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("baseline config versions: %w", err)
	}
	return &Watcher{
		lister:   lister,
		interval: interval,
		changes:  make(chan Change, 16),
		seen:     baseline,
	}, nil
}

// Changes is the notification channel. It closes when Run returns.
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Run polls until the context is done, emitting a Change for every domain
// whose version advanced past the baseline.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.changes)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.poll(ctx); err != nil {
				return err
			}
		}
	}
}

func (w *Watcher) poll(ctx context.Context) error {
	versions, err := w.lister.ListConfigVersions(ctx)
	if err != nil {
		return fmt.Errorf("poll config versions: %w", err)
	}
	for domain, version := range versions {
		if version <= w.seen[domain] {
			continue
		}
		w.seen[domain] = version
		change := Change{Domain: Domain(domain), Version: version}
		select {
		case w.changes <- change:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
