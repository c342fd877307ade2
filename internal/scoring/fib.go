package scoring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fibgame/fibs/internal/database/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FibDraft is a new fib as submitted by its author.
type FibDraft struct {
	Page     string   `json:"page"`
	Claim    string   `json:"claim"`
	Veracity bool     `json:"veracity"`
	Gold     []string `json:"gold"`
	Evidence []string `json:"evidence"`
	Game     string   `json:"game"`
}

// Validate checks the draft has the fields a pair needs.
func (d *FibDraft) Validate() error {
	switch {
	case strings.TrimSpace(d.Claim) == "":
		return fmt.Errorf("%w: claim is required", ErrInvalidContent)
	case strings.TrimSpace(d.Page) == "":
		return fmt.Errorf("%w: page is required", ErrInvalidContent)
	case strings.TrimSpace(d.Game) == "":
		return fmt.Errorf("%w: game is required", ErrInvalidContent)
	}
	return nil
}

// RateRequest likes one fib and dislikes another. Either may be empty.
type RateRequest struct {
	GoodFib string `json:"goodFib"`
	BadFib  string `json:"badFib"`
}

// FibService writes fibs and their likes, dislikes and reports.
type FibService struct {
	store  Store
	now    func() time.Time
	logger *zap.Logger
}

// NewFibService creates a new fib service.
func NewFibService(store Store, logger *zap.Logger, opts ...Option) *FibService {
	o := newOptions(opts)

	return &FibService{
		store:  store,
		now:    o.now,
		logger: logger.Named("fib_service"),
	}
}

// Create stores a new fib written by authorID.
func (s *FibService) Create(ctx context.Context, authorID string, draft *FibDraft) (*types.Fib, error) {
	if authorID == "" {
		return nil, ErrUnauthorized
	}
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	fib := &types.Fib{
		ID:       uuid.NewString(),
		Author:   authorID,
		Page:     strings.TrimSpace(draft.Page),
		Claim:    strings.TrimSpace(draft.Claim),
		Veracity: draft.Veracity,
		Gold:     nonNil(draft.Gold),
		Evidence: nonNil(draft.Evidence),
		Game:     strings.TrimSpace(draft.Game),
		Created:  s.now(),
	}

	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.CreateFib(ctx, fib)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create fib: %w", err)
	}

	s.logger.Debug("Created fib",
		zap.String("fibID", fib.ID),
		zap.String("author", authorID),
		zap.String("game", fib.Game))

	return fib, nil
}

// Get returns a single fib.
func (s *FibService) Get(ctx context.Context, id string) (*types.Fib, error) {
	var fib *types.Fib

	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		fib, err = tx.GetFib(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	return fib, nil
}

// ListByGame returns the fibs of a game.
func (s *FibService) ListByGame(ctx context.Context, game string) ([]*types.Fib, error) {
	var fibs []*types.Fib

	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		fibs, err = tx.ListFibsByGame(ctx, game)
		return err
	})
	if err != nil {
		return nil, err
	}

	return fibs, nil
}

// Rate records a like on the good fib and a dislike on the bad fib in one
// batch. A repeated rating fails with types.ErrAlreadyExists and writes
// nothing.
func (s *FibService) Rate(ctx context.Context, userID string, req *RateRequest) error {
	if userID == "" {
		return ErrUnauthorized
	}
	if req.GoodFib == "" && req.BadFib == "" {
		return fmt.Errorf("%w: nothing to rate", ErrInvalidContent)
	}

	return s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		now := s.now()

		if req.GoodFib != "" {
			if _, err := tx.GetFib(ctx, req.GoodFib); err != nil {
				return err
			}
			if err := tx.CreateLike(ctx, &types.Like{FibID: req.GoodFib, UserID: userID, Created: now}); err != nil {
				return fmt.Errorf("failed to like fib %s: %w", req.GoodFib, err)
			}
		}

		if req.BadFib != "" {
			if _, err := tx.GetFib(ctx, req.BadFib); err != nil {
				return err
			}
			if err := tx.CreateDislike(ctx, &types.Dislike{FibID: req.BadFib, UserID: userID, Created: now}); err != nil {
				return fmt.Errorf("failed to dislike fib %s: %w", req.BadFib, err)
			}
		}

		return nil
	})
}

// Report files or replaces the user's complaint about a fib.
func (s *FibService) Report(ctx context.Context, userID, fibID, issue string) error {
	if userID == "" {
		return ErrUnauthorized
	}

	issue = strings.TrimSpace(issue)
	if issue == "" {
		return fmt.Errorf("%w: issue is required", ErrInvalidContent)
	}

	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetFib(ctx, fibID); err != nil {
			return err
		}
		return tx.SaveReport(ctx, &types.Report{
			FibID:   fibID,
			UserID:  userID,
			Issue:   issue,
			Created: s.now(),
		})
	})
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		s.logger.Error("Failed to report fib", zap.String("fibID", fibID), zap.Error(err))
	}
	return err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
