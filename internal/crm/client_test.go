package crm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient wires a client at a test server, with sleeps recorded
// instead of waited out.
func newTestClient(t *testing.T, handler http.Handler) (*Client, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(Config{
		Token:          "tkn",
		BaseV1:         srv.URL + "/v1",
		BaseV2:         srv.URL + "/v2",
		RequestTimeout: time.Second,
		MaxRetries:     2,
		RetryBaseDelay: 100 * time.Millisecond,
	})
	sleeps := &[]time.Duration{}
	c.sleep = func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	return c, sleeps
}

func TestTokenAppendedAsQueryParameter(t *testing.T) {
	var gotToken, gotExisting string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.URL.Query().Get("api_token")
		gotExisting = r.URL.Query().Get("a")
		w.Write([]byte(`{}`))
	}))

	var out map[string]any
	require.NoError(t, c.V2(context.Background(), "/x?a=1", &out))
	assert.Equal(t, "tkn", gotToken)
	assert.Equal(t, "1", gotExisting)
}

func TestMissingTokenFailsWithoutNetworkCall(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	c.cfg.Token = ""

	var out map[string]any
	err := c.V1(context.Background(), "/x", &out)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Zero(t, calls.Load())
}

func TestUnauthorizedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c, sleeps := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))

	var out map[string]any
	err := c.V2(context.Background(), "/x", &out)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, *sleeps)
}

func TestRateLimitHonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	c, sleeps := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	var out map[string]any
	err := c.V2(context.Background(), "/x", &out)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int32(3), calls.Load(), "initial attempt plus two retries")
	require.Len(t, *sleeps, 2)
	for _, d := range *sleeps {
		assert.GreaterOrEqual(t, d, 2*time.Second)
	}
}

func TestRateLimitBacksOffExponentiallyWithoutHeader(t *testing.T) {
	var calls atomic.Int32
	c, sleeps := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))

	var out map[string]any
	require.NoError(t, c.V2(context.Background(), "/x", &out))
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *sleeps)
}

func TestTimeoutIsRetriedThenSurfaced(t *testing.T) {
	var calls atomic.Int32
	c, sleeps := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(200 * time.Millisecond)
	}))
	c.cfg.RequestTimeout = 20 * time.Millisecond

	var out map[string]any
	err := c.V2(context.Background(), "/x", &out)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *sleeps)
}

func TestOtherStatusesFailImmediately(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	var out map[string]any
	err := c.V2(context.Background(), "/x", &out)
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusInternalServerError, serr.Status)
	assert.Equal(t, int32(1), calls.Load())
}

func TestMalformedBodyFailsDecode(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))

	var out map[string]any
	err := c.V2(context.Background(), "/x", &out)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestTransportFailureIsNotRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New(Config{Token: "tkn", BaseV1: url, BaseV2: url})
	var slept int
	c.sleep = func(ctx context.Context, d time.Duration) error {
		slept++
		return nil
	}

	var out map[string]any
	err := c.V2(context.Background(), "/x", &out)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.Zero(t, slept)
}

func TestCanceledContextWinsOverRetry(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out map[string]any
	err := c.V2(ctx, "/x", &out)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRetryCountDefaultsAndOptOut(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	// the zero-value policy retries twice
	c := New(Config{Token: "tkn", BaseV1: srv.URL + "/v1", BaseV2: srv.URL + "/v2"})
	c.sleep = func(context.Context, time.Duration) error { return nil }
	var out map[string]any
	err := c.V2(context.Background(), "/x", &out)
	require.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int64(3), calls.Load())

	// a negative count disables retries entirely
	calls.Store(0)
	none := New(Config{Token: "tkn", BaseV1: srv.URL + "/v1", BaseV2: srv.URL + "/v2", MaxRetries: -1})
	none.sleep = func(context.Context, time.Duration) error { return nil }
	err = none.V2(context.Background(), "/x", &out)
	require.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int64(1), calls.Load())
}
