package model

import "time"

// Notification is an entry in the staff notification queue.  At most one
// unresolved notification exists per item at a time.
type Notification struct {
    ID         uint64     // notifications.id
    ItemID     uint64     // notifications.item_id
    Message    string     // notifications.message
    IsResolved bool       // notifications.is_resolved
    CreatedAt  time.Time  // notifications.created_at
    ResolvedAt *time.Time // notifications.resolved_at (nullable)
}
