package sync

import (
	"context"
	"fmt"

	"github.com/mschirtzinger/taskboard/internal/remote"
)

// Follow applies row changes pushed by the backend until ctx is done. Each
// change invalidates the owning query and refetches it in the background,
// so edits made by other clients of the same user show up without a
// manual refresh. Concurrent edits resolve as last write wins.
//
// Returns nil when ctx is done and ErrFeedClosed if the feed ends first.
func Follow(ctx context.Context, feed remote.ChangeFeed, queries *Queries) error {
	changes, err := feed.Changes(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to changes: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case change, ok := <-changes:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrFeedClosed
			}

			key := KeyOf(change.Collection)
			if !key.Valid() {
				queries.logger.Printf("Ignoring change for unknown collection %q", change.Collection)
				continue
			}

			queries.Invalidate(key)
			queries.Prefetch(key)
		}
	}
}
