package types

import (
	"github.com/uptrace/bun"
)

// NotificationType is one of the closed set of aggregate notification kinds.
type NotificationType string

const (
	NotificationLikes NotificationType = "likes"
	NotificationFools NotificationType = "fools"
)

// Valid reports whether the type is one of the known kinds.
func (t NotificationType) Valid() bool {
	return t == NotificationLikes || t == NotificationFools
}

// NotificationEntry is one aggregated notification shown to a user.
// Seen and Deleted are set by the presentation layer.
type NotificationEntry struct {
	Type      NotificationType `json:"type"`
	Created   int64            `json:"created"`
	Primary   string           `json:"primary"`
	Secondary string           `json:"secondary"`
	Likes     int64            `json:"likes,omitempty"`
	Fools     int64            `json:"fools,omitempty"`
	Seen      bool             `json:"seen,omitempty"`
	Deleted   bool             `json:"deleted,omitempty"`
}

// Count returns the kind-specific counter of the entry.
func (n *NotificationEntry) Count() int64 {
	switch n.Type {
	case NotificationLikes:
		return n.Likes
	case NotificationFools:
		return n.Fools
	}
	return 0
}

// NotificationList is the ordered notification document of one user.
type NotificationList struct {
	bun.BaseModel `bun:"table:notification_lists,alias:nl"`

	UserID string              `bun:",pk"                json:"userId"`
	List   []NotificationEntry `bun:"type:jsonb,notnull" json:"list"`
}

// Clone returns a deep copy of the list.
func (l *NotificationList) Clone() *NotificationList {
	out := &NotificationList{UserID: l.UserID, List: make([]NotificationEntry, len(l.List))}
	copy(out.List, l.List)
	return out
}
