package ip

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/fibgame/fibs/internal/setup/config"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

type ipCtxKey struct{}

// UnknownIP is returned when no valid IP can be determined.
const UnknownIP = "unknown"

// FromContext retrieves the client IP from the context.
func FromContext(ctx context.Context) string {
	if ip, ok := ctx.Value(ipCtxKey{}).(string); ok {
		return ip
	}
	return UnknownIP
}

// Middleware detects the client IP and stores it in the context.
type Middleware struct {
	trusted []netip.Prefix
	headers []string
	logger  *zap.Logger
}

// New creates a new IP middleware. Invalid trusted proxy entries are logged
// and skipped.
func New(logger *zap.Logger, config *config.IP) *Middleware {
	m := &Middleware{
		headers: config.CustomHeaders,
		logger:  logger.Named("ip_middleware"),
	}

	for _, entry := range config.TrustedProxies {
		prefix, err := parsePrefix(entry)
		if err != nil {
			m.logger.Warn("Ignoring invalid trusted proxy", zap.String("proxy", entry), zap.Error(err))
			continue
		}
		m.trusted = append(m.trusted, prefix)
	}

	return m
}

// AsRESTMiddleware returns a bunrouter middleware handler for IP detection.
func (m *Middleware) AsRESTMiddleware(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		ip := m.ClientIP(req.Request)
		if ip == UnknownIP {
			http.Error(w, "Invalid IP address", http.StatusForbidden)
			return nil
		}

		ctx := context.WithValue(req.Context(), ipCtxKey{}, ip)
		return next(w, req.WithContext(ctx))
	}
}

// ClientIP returns the request's client IP. Forwarding headers are only
// honoured when the peer is a trusted proxy.
func (m *Middleware) ClientIP(r *http.Request) string {
	remote, ok := remoteAddr(r.RemoteAddr)
	if !ok {
		m.logger.Debug("Failed to parse remote address", zap.String("addr", r.RemoteAddr))
		return UnknownIP
	}

	if !m.isTrusted(remote) {
		return remote.String()
	}

	for _, h := range m.headers {
		value := r.Header.Get(h)
		if value == "" {
			continue
		}

		// Walk forwarded chains right to left, skipping our own proxies
		parts := strings.Split(value, ",")
		for i := len(parts) - 1; i >= 0; i-- {
			addr, err := netip.ParseAddr(strings.TrimSpace(parts[i]))
			if err != nil {
				break
			}
			if !m.isTrusted(addr) {
				return addr.String()
			}
		}

		m.logger.Debug("No usable IP in header", zap.String("header", h), zap.String("value", value))
	}

	return remote.String()
}

func (m *Middleware) isTrusted(addr netip.Addr) bool {
	for _, prefix := range m.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func remoteAddr(addr string) (netip.Addr, bool) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	parsed, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return parsed.Unmap(), true
}

func parsePrefix(entry string) (netip.Prefix, error) {
	if strings.Contains(entry, "/") {
		return netip.ParsePrefix(entry)
	}

	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}
