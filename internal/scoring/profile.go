package scoring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fibgame/fibs/internal/database/types"
	"github.com/fibgame/fibs/internal/events"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// MaxDisplayNameLength is the longest display name accepted, in runes.
const MaxDisplayNameLength = 64

// NormalizeDisplayName trims a display name and puts it in NFC form.
func NormalizeDisplayName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// LoginRequest carries the verified identity of a signing-in user.
type LoginRequest struct {
	UserID        string
	DisplayName   string
	EmailVerified bool
	Anonymous     bool
}

// LoginResult is the profile after login.
type LoginResult struct {
	Profile *types.Profile `json:"profile"`
	NewUser bool           `json:"newUser"`
}

// ProfileService writes user profiles.
type ProfileService struct {
	store  Store
	now    func() time.Time
	logger *zap.Logger
}

// NewProfileService creates a new profile service.
func NewProfileService(store Store, logger *zap.Logger, opts ...Option) *ProfileService {
	o := newOptions(opts)

	return &ProfileService{
		store:  store,
		now:    o.now,
		logger: logger.Named("profile_service"),
	}
}

// Login creates the profile of a new user or refreshes the login time of a
// returning one. A name chosen with Rename is kept over the provider's name.
func (s *ProfileService) Login(ctx context.Context, req *LoginRequest) (*LoginResult, error) {
	if req.UserID == "" {
		return nil, ErrUnauthorized
	}

	var result *LoginResult

	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		now := s.now()

		profile, err := tx.GetProfile(ctx, req.UserID)
		newUser := errors.Is(err, types.ErrNotFound)
		if err != nil && !newUser {
			return fmt.Errorf("failed to get profile: %w", err)
		}

		if newUser {
			profile = &types.Profile{
				UserID:  req.UserID,
				Created: now,
			}
		}

		if profile.DisplayName == "" {
			profile.DisplayName = NormalizeDisplayName(req.DisplayName)
		}
		profile.EmailVerified = req.EmailVerified
		profile.Anonymous = req.Anonymous
		profile.LastLogin = now

		if err := tx.SaveProfile(ctx, profile); err != nil {
			return fmt.Errorf("failed to save profile: %w", err)
		}

		result = &LoginResult{Profile: profile, NewUser: newUser}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("User logged in",
		zap.String("userID", req.UserID),
		zap.Bool("newUser", result.NewUser))

	return result, nil
}

// Rename changes the display name of an existing profile.
func (s *ProfileService) Rename(ctx context.Context, userID, name string) (*types.Profile, error) {
	name = NormalizeDisplayName(name)
	if name == "" || utf8.RuneCountInString(name) > MaxDisplayNameLength {
		return nil, fmt.Errorf("%w: display name must be 1 to %d characters", ErrInvalidContent, MaxDisplayNameLength)
	}

	var profile *types.Profile

	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		profile, err = tx.GetProfile(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to get profile: %w", err)
		}

		profile.DisplayName = name
		return tx.SaveProfile(ctx, profile)
	})
	if err != nil {
		return nil, err
	}

	return profile, nil
}

// Get returns the profile of a user.
func (s *ProfileService) Get(ctx context.Context, userID string) (*types.Profile, error) {
	var profile *types.Profile

	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		profile, err = tx.GetProfile(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return profile, nil
}

// NameSync mirrors profile display names onto the leaderboard.
type NameSync struct {
	store  Store
	logger *zap.Logger
}

// NewNameSync creates the display-name sync reactor.
func NewNameSync(store Store, logger *zap.Logger) *NameSync {
	return &NameSync{
		store:  store,
		logger: logger.Named("name_sync"),
	}
}

// HandleProfileWritten writes the profile's display name into the user's
// leaderboard entry. Counters are untouched, so replays are harmless.
func (n *NameSync) HandleProfileWritten(ctx context.Context, ev *events.ProfileWritten) error {
	userID := ev.After.UserID
	if userID == "" {
		return fmt.Errorf("%w: profile has no user id", ErrPreconditionViolated)
	}

	name := NormalizeDisplayName(ev.After.DisplayName)

	return n.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.IncrementLeaderboard(ctx, &types.LeaderboardIncrement{
			UserID:      userID,
			DisplayName: &name,
		}); err != nil {
			return fmt.Errorf("failed to sync display name: %w", err)
		}

		n.logger.Debug("Synced display name",
			zap.String("userID", userID),
			zap.String("displayName", name))
		return nil
	})
}
