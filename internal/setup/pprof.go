package setup

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// pprofServer serves the runtime profiles on a loopback address.
type pprofServer struct {
	srv      *http.Server
	listener net.Listener
}

// startPprofServer listens on localhost:port and serves in the background.
func startPprofServer(port int, logger *zap.Logger) (*pprofServer, error) {
	addr := net.JoinHostPort("localhost", strconv.Itoa(port))

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create pprof listener: %w", err)
	}

	// Profiles can take longer than a normal request
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		logger.Info("Starting pprof server", zap.String("address", addr))
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Pprof server failed", zap.Error(err))
		}
	}()

	return &pprofServer{srv: srv, listener: listener}, nil
}

// Shutdown stops the server. Serve closes the listener on return.
func (p *pprofServer) Shutdown(ctx context.Context) error {
	return p.srv.Shutdown(ctx)
}
