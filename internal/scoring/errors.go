package scoring

import (
	"errors"
	"fmt"
)

// ErrUnauthorized rejects a request with no partial state change. Every vote
// precondition failure wraps it.
var ErrUnauthorized = errors.New("unauthorized")

var (
	ErrInvalidVote   = fmt.Errorf("%w: malformed vote", ErrUnauthorized)
	ErrFibNotFound   = fmt.Errorf("%w: fib not found", ErrUnauthorized)
	ErrPairInvariant = fmt.Errorf("%w: pair must contain exactly one false fib", ErrUnauthorized)
	ErrSelfVote      = fmt.Errorf("%w: cannot vote on own fib", ErrUnauthorized)
	ErrAlreadyVoted  = fmt.Errorf("%w: already voted on this pair", ErrUnauthorized)
)

// ErrPreconditionViolated aborts a single reactor invocation. The guard is
// stable, so a redelivery fails the same way.
var ErrPreconditionViolated = errors.New("event precondition violated")

var (
	ErrSelfLike       = fmt.Errorf("%w: author liked own fib", ErrPreconditionViolated)
	ErrInvalidContent = errors.New("invalid content")
)

// ErrAmbiguousNotification rejects a flag request that matches more than one
// entry. Nothing is changed.
var ErrAmbiguousNotification = fmt.Errorf("%w: notification matches several entries", ErrInvalidContent)
