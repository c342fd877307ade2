package scoring

const (
	// MaxVerifyPoints caps a vote at two minutes worth of points.
	MaxVerifyPoints = 120
	// WritePoints is credited to the author of every new fib.
	WritePoints = 100
	// LikedPoints is credited to a fib's author for every like.
	LikedPoints = 10
	// MaxVoteSeconds is the exclusive ceiling on the elapsed time of a vote.
	MaxVoteSeconds = 300
)
