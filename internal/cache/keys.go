package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	FeedRecentKeyPrefix = "feed:recent:%d"
	FeedAllKey          = "feed:all"
	FeedUserKeyPrefix   = "feed:user:%s"
)

// FeedTTL bounds how stale a cached feed may be when an invalidation is lost.
const FeedTTL = 2 * time.Minute

func FeedRecentKey(limit int) string {
	return fmt.Sprintf(FeedRecentKeyPrefix, limit)
}

func FeedUserKey(userID string) string {
	return fmt.Sprintf(FeedUserKeyPrefix, userID)
}

// InvalidateFeeds drops every cached feed a new or changed image of userID appears in.
func InvalidateFeeds(ctx context.Context, recentLimit int, userID string) {
	Invalidate(ctx, FeedRecentKey(recentLimit), FeedAllKey, FeedUserKey(userID))
}
