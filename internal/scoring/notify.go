package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/fibgame/fibs/internal/database/types"
	"github.com/fibgame/fibs/internal/events"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

const (
	likesPrimary   = "Your claims are liked"
	likesSecondary = "You got %d new like(s). Keep it up!"
	foolsPrimary   = "You are an awesome writer"
	foolsSecondary = "%d player(s) have been fooled. Amazing!"
)

// notificationCatalog holds the plural forms of the secondary texts.
var notificationCatalog = func() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))

	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}

	must(b.Set(language.English, likesSecondary, plural.Selectf(1, "%d",
		plural.One, "You got %d new like. Keep it up!",
		plural.Other, "You got %d new likes. Keep it up!",
	)))
	must(b.Set(language.English, foolsSecondary, plural.Selectf(1, "%d",
		plural.One, "%d player has been fooled. Amazing!",
		plural.Other, "%d players have been fooled. Amazing!",
	)))

	return b
}()

// notificationKinds fixes the order new entries are appended in.
var notificationKinds = []types.NotificationType{types.NotificationLikes, types.NotificationFools}

// formatNotification builds a fresh entry of the given kind and count.
func formatNotification(kind types.NotificationType, count int64, created int64) types.NotificationEntry {
	p := message.NewPrinter(language.English, message.Catalog(notificationCatalog))

	entry := types.NotificationEntry{Type: kind, Created: created}
	switch kind {
	case types.NotificationLikes:
		entry.Primary = likesPrimary
		entry.Secondary = p.Sprintf(likesSecondary, count)
		entry.Likes = count
	case types.NotificationFools:
		entry.Primary = foolsPrimary
		entry.Secondary = p.Sprintf(foolsSecondary, count)
		entry.Fools = count
	}

	return entry
}

// mergeNotifications folds the deltas into the list. The live entry of each
// kind is replaced by one appended entry carrying the combined count. Deleted
// entries are kept where they are and never contribute to a merge.
func mergeNotifications(
	list []types.NotificationEntry, deltas map[types.NotificationType]int64, created int64,
) []types.NotificationEntry {
	out := list
	for _, kind := range notificationKinds {
		delta := deltas[kind]
		if delta <= 0 {
			continue
		}

		total := delta
		kept := make([]types.NotificationEntry, 0, len(out)+1)
		for _, entry := range out {
			if entry.Type == kind && !entry.Deleted {
				total += entry.Count()
				continue
			}
			kept = append(kept, entry)
		}

		out = append(kept, formatNotification(kind, total, created))
	}
	return out
}

// Notifier turns leaderboard changes into per-user notifications.
type Notifier struct {
	store  Store
	now    func() time.Time
	logger *zap.Logger
}

// NewNotifier creates the notification aggregator.
func NewNotifier(store Store, logger *zap.Logger, opts ...Option) *Notifier {
	o := newOptions(opts)

	return &Notifier{
		store:  store,
		now:    o.now,
		logger: logger.Named("notifier"),
	}
}

// HandleLeaderboardUpdated merges the like and fool deltas of a leaderboard
// write into the user's notification list. The event ID guards replays.
func (n *Notifier) HandleLeaderboardUpdated(
	ctx context.Context, eventID uuid.UUID, ev *events.LeaderboardUpdated,
) error {
	deltas := map[types.NotificationType]int64{
		types.NotificationLikes: ev.After.LikedTotal - ev.Before.LikedTotal,
		types.NotificationFools: ev.After.FoolTotal - ev.Before.FoolTotal,
	}
	if deltas[types.NotificationLikes] <= 0 && deltas[types.NotificationFools] <= 0 {
		return nil
	}

	userID := ev.UserID
	if userID == "" {
		userID = ev.After.UserID
	}

	return n.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		fresh, err := tx.MarkProcessed(ctx, "leaderboard:"+eventID.String())
		if err != nil {
			return fmt.Errorf("failed to mark leaderboard event: %w", err)
		}
		if !fresh {
			n.logger.Debug("Leaderboard event already processed", zap.String("eventID", eventID.String()))
			return nil
		}

		list, err := tx.GetNotificationsForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to get notifications: %w", err)
		}

		list.UserID = userID
		list.List = mergeNotifications(list.List, deltas, n.now().UnixMilli())

		if err := tx.SaveNotifications(ctx, list); err != nil {
			return fmt.Errorf("failed to save notifications: %w", err)
		}

		n.logger.Debug("Updated notifications",
			zap.String("userID", userID),
			zap.Int64("likes", deltas[types.NotificationLikes]),
			zap.Int64("fools", deltas[types.NotificationFools]))
		return nil
	})
}

// List returns the notification list of a user.
func (n *Notifier) List(ctx context.Context, userID string) (*types.NotificationList, error) {
	var list *types.NotificationList

	err := n.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		list, err = tx.GetNotificationsForUpdate(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	list.UserID = userID
	if list.List == nil {
		list.List = []types.NotificationEntry{}
	}
	return list, nil
}

// MarkSeen flags the entry of the given kind created at the given time as seen.
func (n *Notifier) MarkSeen(ctx context.Context, userID string, typ types.NotificationType, created int64) error {
	return n.update(ctx, userID, typ, created, func(e *types.NotificationEntry) { e.Seen = true })
}

// MarkDeleted flags the entry of the given kind created at the given time as
// deleted. Deleted entries stop absorbing new counts.
func (n *Notifier) MarkDeleted(ctx context.Context, userID string, typ types.NotificationType, created int64) error {
	return n.update(ctx, userID, typ, created, func(e *types.NotificationEntry) { e.Deleted = true })
}

func (n *Notifier) update(
	ctx context.Context, userID string, typ types.NotificationType, created int64, fn func(*types.NotificationEntry),
) error {
	if !typ.Valid() {
		return fmt.Errorf("%w: unknown notification type %q", ErrInvalidContent, typ)
	}

	return n.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		list, err := tx.GetNotificationsForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to get notifications: %w", err)
		}

		match := -1
		for i := range list.List {
			if list.List[i].Type != typ || list.List[i].Created != created {
				continue
			}
			if match >= 0 {
				return fmt.Errorf("%s notification %d: %w", typ, created, ErrAmbiguousNotification)
			}
			match = i
		}
		if match < 0 {
			return fmt.Errorf("%s notification %d: %w", typ, created, types.ErrNotFound)
		}
		fn(&list.List[match])

		list.UserID = userID
		return tx.SaveNotifications(ctx, list)
	})
}
