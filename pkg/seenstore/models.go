package seenstore

import (
	"time"

	"gorm.io/gorm"
)

// Cursor is the highest record ID folded into the seen boundary for one
// (user, stream) pair. It only ever moves forward, except on reset.
type Cursor struct {
	gorm.Model
	Username   string `gorm:"index:idx_cursors_user_stream,unique"`
	Stream     string `gorm:"index:idx_cursors_user_stream,unique"`
	LastSeenID int64
}

// ViewedID marks a record the user explicitly acknowledged (tapped or
// resolved themselves), independent of the cursor.
type ViewedID struct {
	gorm.Model
	Username string `gorm:"index:idx_viewed_user_stream_rec,unique"`
	Stream   string `gorm:"index:idx_viewed_user_stream_rec,unique"`
	RecordID int64  `gorm:"index:idx_viewed_user_stream_rec,unique"`
}

// DismissedID marks a record the user deleted from the feed. Permanent
// until a full reset.
type DismissedID struct {
	gorm.Model
	Username string `gorm:"index:idx_dismissed_user_stream_rec,unique"`
	Stream   string `gorm:"index:idx_dismissed_user_stream_rec,unique"`
	RecordID int64  `gorm:"index:idx_dismissed_user_stream_rec,unique"`
}

// Snapshot caches the most recent successful fetch of a stream so a
// restarted agent can render a feed before its first poll completes.
type Snapshot struct {
	gorm.Model
	Username  string    `gorm:"index:idx_snapshots_user_stream,unique"`
	Stream    string    `gorm:"index:idx_snapshots_user_stream,unique"`
	Raw       []byte    // Raw JSON data
	FetchedAt time.Time `gorm:"index"`
}
