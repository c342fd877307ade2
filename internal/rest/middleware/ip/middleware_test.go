package ip_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fibgame/fibs/internal/rest/middleware/ip"
	"github.com/fibgame/fibs/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{
			name:       "untrusted peer ignores headers",
			remoteAddr: "203.0.113.7:4000",
			forwarded:  "198.51.100.1",
			want:       "203.0.113.7",
		},
		{
			name:       "trusted proxy uses forwarded ip",
			remoteAddr: "10.0.0.2:4000",
			forwarded:  "198.51.100.1",
			want:       "198.51.100.1",
		},
		{
			name:       "forwarded chain skips trusted hops",
			remoteAddr: "10.0.0.2:4000",
			forwarded:  "192.0.2.9, 198.51.100.1, 10.0.0.3",
			want:       "198.51.100.1",
		},
		{
			name:       "trusted proxy without header",
			remoteAddr: "10.0.0.2:4000",
			want:       "10.0.0.2",
		},
		{
			name:       "garbage header falls back to peer",
			remoteAddr: "10.0.0.2:4000",
			forwarded:  "not-an-ip",
			want:       "10.0.0.2",
		},
		{
			name:       "unparsable remote address",
			remoteAddr: "nowhere",
			want:       ip.UnknownIP,
		},
	}

	m := ip.New(zaptest.NewLogger(t), &config.IP{
		TrustedProxies: []string{"10.0.0.0/8", "bogus"},
		CustomHeaders:  []string{"X-Forwarded-For"},
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}

			assert.Equal(t, tt.want, m.ClientIP(req))
		})
	}
}
