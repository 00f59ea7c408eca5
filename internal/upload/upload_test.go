package upload

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dqworkbench/dqsync/internal/config"
	"github.com/dqworkbench/dqsync/internal/remote"
	"github.com/dqworkbench/dqsync/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

func statusErr(code int) error {
	return &remote.StatusError{Method: http.MethodPost, Path: "/x", Code: code}
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	tests := []struct {
		n    int
		want time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{12, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Delay(tt.n), "attempt %d", tt.n)
	}
}

func TestRetryPolicy_DelayUncapped(t *testing.T) {
	p := RetryPolicy{BaseDelay: 100 * time.Millisecond}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond}
	for i, w := range want {
		assert.Equal(t, w, p.Delay(i+1), "attempt %d", i+1)
	}
}

func TestRetryPolicy_Jitter(t *testing.T) {
	p := RetryPolicy{BaseDelay: 10 * time.Millisecond, MaxDelay: time.Second, Jitter: 5 * time.Millisecond}
	for range 50 {
		d := p.Delay(1)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.Less(t, d, 15*time.Millisecond)
	}
}

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(config.UploadConfig{MaxAttempts: 4, BackoffBase: time.Second, BackoffMax: time.Minute, Jitter: time.Millisecond})
	assert.Equal(t, 4, p.MaxAttempts)
	assert.Equal(t, time.Second, p.BaseDelay)
	assert.Equal(t, time.Minute, p.MaxDelay)
	assert.Equal(t, time.Millisecond, p.Jitter)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"503", statusErr(503), true},
		{"429", statusErr(429), true},
		{"408", statusErr(408), true},
		{"425", statusErr(425), true},
		{"wrapped 502", fmt.Errorf("remote: %w", statusErr(502)), true},
		{"400", statusErr(400), false},
		{"401", statusErr(401), false},
		{"transport", fmt.Errorf("POST /x: %w", &urlError), true},
		{"canceled", context.Canceled, false},
		{"plain", errors.New("decode response"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestExecute_RetriesThenSucceeds(t *testing.T) {
	var calls int
	v, err := Execute(context.Background(), fastPolicy(3), "t", func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, statusErr(503)
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
}

func TestExecute_StopsAtMaxAttempts(t *testing.T) {
	var calls int
	_, err := Execute(context.Background(), fastPolicy(3), "t", func(context.Context) (int, error) {
		calls++
		return 0, statusErr(503)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	var se *remote.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 503, se.Code)
}

func TestExecute_PermanentStopsImmediately(t *testing.T) {
	var calls int
	_, err := Execute(context.Background(), fastPolicy(5), "t", func(context.Context) (int, error) {
		calls++
		return 0, statusErr(400)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecute_SingleAttempt(t *testing.T) {
	var calls int
	_, err := Execute(context.Background(), fastPolicy(1), "t", func(context.Context) (int, error) {
		calls++
		return 0, statusErr(503)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecute_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{MaxAttempts: 10, BaseDelay: time.Hour, MaxDelay: time.Hour}
	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		_, err := Execute(ctx, p, "t", func(context.Context) (int, error) {
			calls.Add(1)
			return 0, statusErr(503)
		})
		done <- err
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Execute did not return after cancel")
	}
}

func TestChunks(t *testing.T) {
	in := []int{1, 2, 3, 4, 5}
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, Chunks(in, 2))
	assert.Equal(t, [][]int{{1, 2, 3, 4, 5}}, Chunks(in, 10))
	assert.Empty(t, Chunks([]int{}, 3))
}

func TestUpload_AllChunksSucceed(t *testing.T) {
	u := &Uploader{ChunkSize: 3, Policy: fastPolicy(2)}
	records := make([]int, 10)
	var mu sync.Mutex
	var sizes []int
	c, err := Upload(context.Background(), u, "test", records, func(_ context.Context, chunk []int) (Counts, error) {
		mu.Lock()
		sizes = append(sizes, len(chunk))
		mu.Unlock()
		return Counts{Imported: len(chunk)}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 10, c.Imported)
	assert.ElementsMatch(t, []int{3, 3, 3, 1}, sizes)
}

func TestUpload_PartialFailure(t *testing.T) {
	u := &Uploader{ChunkSize: 2, Policy: fastPolicy(2)}
	records := []int{0, 1, 2, 3, 4, 5}
	c, err := Upload(context.Background(), u, "bounds", records, func(_ context.Context, chunk []int) (Counts, error) {
		if chunk[0] == 2 {
			return Counts{}, statusErr(409)
		}
		return Counts{Imported: len(chunk)}, nil
	})
	require.Error(t, err)

	var ue *types.UploadError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, 1, ue.Chunk)
	assert.Equal(t, "bounds", ue.Op)
	assert.Equal(t, 4, c.Imported, "sibling chunks still counted")
	assert.Equal(t, 2, c.Failed)
	assert.Equal(t, 2, c.Counters().Errors)
}

func TestUpload_Empty(t *testing.T) {
	c, err := Upload(context.Background(), &Uploader{ChunkSize: 5}, "x", []int(nil), func(context.Context, []int) (Counts, error) {
		t.Fatal("post should not be called")
		return Counts{}, nil
	})
	require.NoError(t, err)
	assert.Zero(t, c)
}

func bound(ou string, lo, hi int64) types.BoundsRecord {
	return types.BoundsRecord{
		Key:    types.MetricKey{OrgUnit: ou, Metric: "de", CategoryOptionCombo: "coc"},
		Bounds: &types.Envelope{Min: lo, Max: hi},
	}
}

func newClient(t *testing.T, h http.Handler) *remote.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := remote.New(config.ServerConfig{BaseURL: srv.URL, Auth: config.AuthConfig{Mode: "none"}, RequestTimeout: 5 * time.Second}, remote.NewGate(4))
	require.NoError(t, err)
	return c
}

func TestBulkBounds_RetriesTransientStatus(t *testing.T) {
	var hits atomic.Int32
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"successful": 1, "ignored": 1}`))
	}))

	u := &Uploader{ChunkSize: 10, Policy: fastPolicy(3)}
	c, err := Upload(context.Background(), u, "bounds", []types.BoundsRecord{bound("a", 0, 1), bound("b", 0, 2)}, BulkBounds(client, "ds1"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, 1, c.Imported)
	assert.Equal(t, 1, c.Ignored)
}

func TestBulkBounds_DefaultsToChunkSize(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	u := &Uploader{ChunkSize: 10, Policy: fastPolicy(1)}
	c, err := Upload(context.Background(), u, "bounds", []types.BoundsRecord{bound("a", 0, 1), bound("b", 0, 2), bound("c", 1, 2)}, BulkBounds(client, "ds1"))
	require.NoError(t, err)
	assert.Equal(t, 3, c.Imported)
	assert.Zero(t, c.Ignored)
}

type fakeFacts struct {
	mu       sync.Mutex
	strategy remote.ImportStrategy
	values   []remote.DataValue
}

func (f *fakeFacts) PostDataValues(_ context.Context, values []remote.DataValue, s remote.ImportStrategy) (remote.ImportCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.strategy = s
	f.values = append(f.values, values...)
	if s == remote.StrategyDelete {
		return remote.ImportCount{Deleted: len(values)}, nil
	}
	return remote.ImportCount{Imported: 1, Updated: len(values) - 1}, nil
}

func TestFacts(t *testing.T) {
	f := &fakeFacts{}
	recs := []types.SyncRecord{
		{Metric: "de", OrgUnit: "ou", Period: "202401", Value: 3},
		{Metric: "de", OrgUnit: "ou", Period: "202402", CategoryOptionCombo: "c", Value: 2.5},
	}
	c, err := Upload(context.Background(), &Uploader{ChunkSize: 10, Policy: fastPolicy(1)}, "facts", recs, Facts(f, remote.StrategyCreateAndUpdate, "dflt"))
	require.NoError(t, err)
	assert.Equal(t, 2, c.Imported)
	require.Len(t, f.values, 2)
	assert.Equal(t, "dflt", f.values[0].CategoryOptionCombo)
	assert.Equal(t, "3", f.values[0].Value)
	assert.Equal(t, "2.5", f.values[1].Value)

	c, err = Upload(context.Background(), &Uploader{ChunkSize: 10, Policy: fastPolicy(1)}, "facts", recs[:1], Facts(f, remote.StrategyDelete, "dflt"))
	require.NoError(t, err)
	assert.Equal(t, remote.StrategyDelete, f.strategy)
	assert.Equal(t, 1, c.Deleted)
	assert.Equal(t, 1, c.Counters().Deleted)
}

type fakeLegacy struct {
	fail map[string]bool
	n    atomic.Int32
}

func (f *fakeLegacy) PostMinMaxValue(_ context.Context, v remote.LegacyMinMaxValue) error {
	f.n.Add(1)
	if f.fail[v.OrgUnit] {
		return statusErr(500)
	}
	return nil
}

func TestUploadLegacy_NoRetriesFailuresIgnored(t *testing.T) {
	f := &fakeLegacy{fail: map[string]bool{"b": true}}
	recs := []types.BoundsRecord{bound("a", 0, 1), bound("b", 0, 1), bound("c", 0, 1)}
	c := UploadLegacy(context.Background(), &Uploader{Concurrency: 2}, f, recs)
	assert.Equal(t, 2, c.Imported)
	assert.Equal(t, 1, c.Ignored)
	assert.Equal(t, int32(3), f.n.Load(), "one request per record")
}

func TestChooseEndpoint(t *testing.T) {
	tests := []struct {
		version  string
		disabled bool
		want     Endpoint
	}{
		{"2.41.5", false, EndpointBulk},
		{"2.42.0", false, EndpointBulk},
		{"2.41.5-SNAPSHOT", false, EndpointBulk},
		{"2.41.4", false, EndpointLegacy},
		{"2.40", false, EndpointLegacy},
		{"2.42.0", true, EndpointLegacy},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			v, err := remote.ParseServerVersion(tt.version)
			require.NoError(t, err)
			got, err := ChooseEndpoint(v, config.DefaultBulkMinVersion, tt.disabled)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ChooseEndpoint(remote.ServerVersion{Major: 2, Minor: 41}, "garbage!", false)
	assert.Error(t, err)
}

var urlError = url.Error{Op: "Post", URL: "http://x", Err: errors.New("connection refused")}
