package notify

import (
	"context"
	"fmt"
)

// Event types the synchronizer and health monitor emit. The configured event
// filter in NewNotifier selects which of these reach operators.
const (
	EventSyncDegraded  = "sync.degraded"
	EventSyncRecovered = "sync.recovered"
	EventSyncExpired   = "sync.expired"
)

// SyncDegraded alerts that the synchronizer has failed enough consecutive
// cycles to be considered degraded.
func (n *Notifier) SyncDegraded(ctx context.Context, failures int, lastErr error) error {
	return n.Notify(ctx, EventSyncDegraded,
		"Catalog sync degraded",
		fmt.Sprintf("%d consecutive sync failures; serving from last good catalog. Last error: %v", failures, lastErr))
}

// SyncRecovered alerts that a degraded synchronizer completed a cycle again.
func (n *Notifier) SyncRecovered(ctx context.Context, markets int) error {
	return n.Notify(ctx, EventSyncRecovered,
		"Catalog sync recovered",
		fmt.Sprintf("Sync cycle succeeded; catalog carries %d markets.", markets))
}

// SyncExpired reports markets tombstoned because they left the upstream feed.
func (n *Notifier) SyncExpired(ctx context.Context, expired int64) error {
	return n.Notify(ctx, EventSyncExpired,
		"Markets expired",
		fmt.Sprintf("%d markets disappeared upstream and were marked expired.", expired))
}
