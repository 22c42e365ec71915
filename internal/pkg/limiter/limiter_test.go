package limiter

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestIPRateLimiter_Allow(t *testing.T) {
	t.Run("should limit each IP independently", func(t *testing.T) {
		req := require.New(t)
		l := NewIPRateLimiter(rate.Every(time.Hour), 2)
		t.Cleanup(l.Close)

		req.True(l.Allow("10.0.0.1:4000"))
		req.True(l.Allow("10.0.0.1:4001"))
		req.False(l.Allow("10.0.0.1:4002"))

		req.True(l.Allow("10.0.0.2:4000"))
		req.Equal(2, l.Len())
	})

	t.Run("should allow everything when nil", func(t *testing.T) {
		var l *IPRateLimiter
		require.True(t, l.Allow("10.0.0.1:1"))
		l.Close()
	})

	t.Run("should sweep refilled buckets", func(t *testing.T) {
		req := require.New(t)
		l := NewIPRateLimiter(rate.Every(time.Second), 1)
		t.Cleanup(l.Close)

		req.True(l.Allow("10.0.0.3:1"))
		removed, remaining := l.sweep(time.Now())
		req.Equal(0, removed)
		req.Equal(1, remaining)

		removed, remaining = l.sweep(time.Now().Add(time.Minute))
		req.Equal(1, removed)
		req.Equal(0, remaining)
	})
}

func TestIPRateLimiter_Middleware(t *testing.T) {
	t.Run("should answer 429 once the burst is used", func(t *testing.T) {
		l := NewIPRateLimiter(rate.Every(time.Hour), 1)
		t.Cleanup(l.Close)

		h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

		call := func() int {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			r.RemoteAddr = "192.0.2.1:5000"
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			return w.Code
		}

		require.Equal(t, http.StatusNoContent, call())
		require.Equal(t, http.StatusTooManyRequests, call())
	})
}
