package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/fibgame/fibs/internal/database/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// VoteRequest is a player's guess at which fib of a pair is false. Index and
// Time are required; a nil value means the field was not sent.
type VoteRequest struct {
	Fibs        []string `json:"fibs"`
	Index       *int     `json:"index"`
	Time        *float64 `json:"time"`
	TrueSeconds *float64 `json:"trueSeconds"`
	Reveal      []int    `json:"reveal"`
}

// Validate checks the parts of the request that need no document reads.
func (r *VoteRequest) Validate() error {
	if len(r.Fibs) != 2 {
		return fmt.Errorf("%w: expected 2 fibs, got %d", ErrInvalidVote, len(r.Fibs))
	}

	for _, id := range r.Fibs {
		if id == "" {
			return fmt.Errorf("%w: empty fib id", ErrInvalidVote)
		}
	}

	if r.Index == nil {
		return fmt.Errorf("%w: missing index", ErrInvalidVote)
	}
	if *r.Index < 0 || *r.Index >= len(r.Fibs) {
		return fmt.Errorf("%w: index %d out of range", ErrInvalidVote, *r.Index)
	}

	if r.Time == nil {
		return fmt.Errorf("%w: missing time", ErrInvalidVote)
	}
	// Written so that NaN fails too
	if seconds := *r.Time; !(seconds >= 0 && seconds < MaxVoteSeconds) {
		return fmt.Errorf("%w: time %v outside [0, %d)", ErrInvalidVote, seconds, MaxVoteSeconds)
	}

	return nil
}

// VoteResult is returned to the voter.
type VoteResult struct {
	Success bool  `json:"success"`
	Points  int64 `json:"points"`
}

// votePlan is the outcome of a vote before anything is written.
type votePlan struct {
	success      bool
	points       int64
	authors      []string
	authorPoints int64
}

// planVote applies the pair rules to the two fibs read for the request.
func planVote(voterID string, req *VoteRequest, fibs []*types.Fib) (*votePlan, error) {
	falseCount := 0
	for _, fib := range fibs {
		if !fib.Veracity {
			falseCount++
		}
	}
	if falseCount != 1 {
		return nil, fmt.Errorf("%w: found %d false fibs", ErrPairInvariant, falseCount)
	}

	authors := make([]string, 0, len(fibs))
	for _, fib := range fibs {
		if fib.Author == voterID {
			return nil, ErrSelfVote
		}
		if fib.Author != "" && !slices.Contains(authors, fib.Author) {
			authors = append(authors, fib.Author)
		}
	}

	plan := &votePlan{
		success: !fibs[*req.Index].Veracity,
		authors: authors,
	}

	if plan.success {
		plan.points = min(MaxVerifyPoints, int64(math.Floor(*req.Time)))
	}

	if len(authors) > 0 {
		plan.authorPoints = (MaxVerifyPoints - plan.points) / int64(len(authors))
	}

	return plan, nil
}

// creditsAuthors reports whether the pair's authors get fooling credit.
func (p *votePlan) creditsAuthors() bool {
	return p.success && p.authorPoints > 0
}

// increments returns every leaderboard write of the vote.
func (p *votePlan) increments(voterID string) []*types.LeaderboardIncrement {
	verifyTotal := int64(0)
	if p.success {
		verifyTotal = 1
	}

	incs := []*types.LeaderboardIncrement{{
		UserID:       voterID,
		Points:       p.points,
		VerifyPoints: p.points,
		VerifyTotal:  verifyTotal,
	}}

	if p.creditsAuthors() {
		for _, author := range p.authors {
			incs = append(incs, &types.LeaderboardIncrement{
				UserID:     author,
				Points:     p.authorPoints,
				FoolPoints: p.authorPoints,
				FoolTotal:  1,
			})
		}
	}

	return incs
}

// receipts returns the identical receipt written under both fibs.
func (p *votePlan) receipts(voterID string, req *VoteRequest, now time.Time) []*types.VoteReceipt {
	secondsLeft := float64(-1)
	if req.TrueSeconds != nil && *req.TrueSeconds != 0 {
		secondsLeft = *req.TrueSeconds
	}

	evidence := req.Reveal
	if evidence == nil {
		evidence = []int{}
	}

	receipts := make([]*types.VoteReceipt, 0, len(req.Fibs))
	for _, fibID := range req.Fibs {
		receipts = append(receipts, &types.VoteReceipt{
			FibID:        fibID,
			Author:       voterID,
			Points:       p.points,
			SecondsLeft:  secondsLeft,
			EvidenceUsed: slices.Clone(evidence),
			Fibs:         slices.Clone(req.Fibs),
			Success:      p.success,
			Created:      now,
		})
	}

	return receipts
}

// VoteService validates votes and commits their point allocation.
type VoteService struct {
	store  Store
	now    func() time.Time
	tracer trace.Tracer
	logger *zap.Logger
}

// NewVoteService creates a new vote service.
func NewVoteService(store Store, logger *zap.Logger, opts ...Option) *VoteService {
	o := newOptions(opts)

	return &VoteService{
		store:  store,
		now:    o.now,
		tracer: otel.Tracer("github.com/fibgame/fibs/internal/scoring"),
		logger: logger.Named("vote_service"),
	}
}

// CreateVote records a vote by voterID. The receipts and every leaderboard
// increment are written in one transaction after all preconditions pass.
func (s *VoteService) CreateVote(ctx context.Context, voterID string, req *VoteRequest) (*VoteResult, error) {
	ctx, span := s.tracer.Start(ctx, "VoteService.CreateVote",
		trace.WithAttributes(attribute.String("voter", voterID)))
	defer span.End()

	if voterID == "" {
		return nil, ErrUnauthorized
	}

	if err := req.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var result *VoteResult

	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		fibs := make([]*types.Fib, 0, len(req.Fibs))
		for _, id := range req.Fibs {
			fib, err := tx.GetFib(ctx, id)
			if err != nil {
				if errors.Is(err, types.ErrNotFound) {
					return fmt.Errorf("%w: %s", ErrFibNotFound, id)
				}
				return fmt.Errorf("failed to get fib %s: %w", id, err)
			}
			fibs = append(fibs, fib)
		}

		plan, err := planVote(voterID, req, fibs)
		if err != nil {
			return err
		}

		for _, id := range req.Fibs {
			exists, err := tx.HasVoteReceipt(ctx, id, voterID)
			if err != nil {
				return fmt.Errorf("failed to check vote receipt: %w", err)
			}
			if exists {
				return ErrAlreadyVoted
			}
		}

		if err := tx.CreateVoteReceipts(ctx, plan.receipts(voterID, req, s.now())); err != nil {
			if errors.Is(err, types.ErrAlreadyExists) {
				return ErrAlreadyVoted
			}
			return fmt.Errorf("failed to create vote receipts: %w", err)
		}

		for _, inc := range plan.increments(voterID) {
			if _, err := tx.IncrementLeaderboard(ctx, inc); err != nil {
				return fmt.Errorf("failed to increment leaderboard for %s: %w", inc.UserID, err)
			}
		}

		result = &VoteResult{Success: plan.success, Points: plan.points}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		if errors.Is(err, ErrUnauthorized) {
			s.logger.Debug("Vote rejected", zap.String("voterID", voterID), zap.Error(err))
		} else {
			s.logger.Error("Failed to create vote", zap.String("voterID", voterID), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Debug("Vote recorded",
		zap.String("voterID", voterID),
		zap.Strings("fibs", req.Fibs),
		zap.Bool("success", result.Success),
		zap.Int64("points", result.Points))

	return result, nil
}
