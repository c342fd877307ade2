package rest

import (
	"net/http"
	"time"

	"github.com/fibgame/fibs/internal/identity"
	"github.com/fibgame/fibs/internal/rest/handler"
	"github.com/fibgame/fibs/internal/rest/middleware/ip"
	"github.com/fibgame/fibs/internal/rest/middleware/ratelimit"
	"github.com/fibgame/fibs/internal/scoring"
	"github.com/fibgame/fibs/internal/setup/config"
	"github.com/klauspost/compress/gzhttp"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// Server implements the REST API service.
type Server struct {
	voteHandler         *handler.VoteHandler
	profileHandler      *handler.ProfileHandler
	fibHandler          *handler.FibHandler
	leaderboardHandler  *handler.LeaderboardHandler
	notificationHandler *handler.NotificationHandler
	rateLimiter         *ratelimit.Middleware
	handler             http.Handler
}

// NewServer creates a new REST API server over the store.
func NewServer(
	store scoring.Store, verifier identity.Verifier, logger *zap.Logger, config *config.RESTConfig,
	opts ...scoring.Option,
) *Server {
	logger = logger.Named("rest")

	// Create server instance with handlers
	server := &Server{
		voteHandler:         handler.NewVoteHandler(scoring.NewVoteService(store, logger, opts...), logger),
		profileHandler:      handler.NewProfileHandler(scoring.NewProfileService(store, logger, opts...), logger),
		fibHandler:          handler.NewFibHandler(scoring.NewFibService(store, logger, opts...), logger),
		leaderboardHandler:  handler.NewLeaderboardHandler(scoring.NewLeaderboardService(store, logger), logger),
		notificationHandler: handler.NewNotificationHandler(scoring.NewNotifier(store, logger, opts...), logger),
		rateLimiter:         ratelimit.New(&config.RateLimit, logger),
	}

	// Create middleware instances
	ipMiddleware := ip.New(logger, &config.IP)
	gate := identity.NewGate(verifier, logger)

	// Create base router
	router := bunrouter.New()

	router.GET("/healthz", func(w http.ResponseWriter, _ bunrouter.Request) error {
		w.WriteHeader(http.StatusNoContent)
		return nil
	})

	// Every API route requires a verified caller
	api := router.Use(
		ipMiddleware.AsRESTMiddleware,
		server.rateLimiter.AsRESTMiddleware,
		gate.AsRESTMiddleware,
	)

	api.POST("/createVote", server.voteHandler.CreateVote)

	api.POST("/login", server.profileHandler.Login)
	api.GET("/profile", server.profileHandler.GetProfile)
	api.PUT("/profile", server.profileHandler.Rename)

	api.POST("/fibs", server.fibHandler.CreateFib)
	api.GET("/fibs", server.fibHandler.ListFibs)
	api.GET("/fibs/:id", server.fibHandler.GetFib)
	api.POST("/fibs/:id/report", server.fibHandler.ReportFib)
	api.POST("/rateFibs", server.fibHandler.RateFibs)

	api.GET("/leaderboard", server.leaderboardHandler.GetLeaderboard)
	api.GET("/leaderboard/me", server.leaderboardHandler.GetOwnEntry)

	api.GET("/notifications", server.notificationHandler.ListNotifications)
	api.POST("/notifications/:type/:created/seen", server.notificationHandler.MarkSeen)
	api.POST("/notifications/:type/:created/delete", server.notificationHandler.MarkDeleted)

	var h http.Handler = router
	if config.RequestTimeout > 0 {
		h = http.TimeoutHandler(h, time.Duration(config.RequestTimeout)*time.Millisecond, "Request timed out")
	}

	// Add gzip compression
	server.handler = gzhttp.GzipHandler(h)

	return server
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close releases background resources held by the middleware.
func (s *Server) Close() {
	s.rateLimiter.Close()
}
