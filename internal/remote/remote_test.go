package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dqworkbench/dqsync/internal/config"
)

// newTestClient starts srv-backed client with the given gate size.
func newTestClient(t *testing.T, h http.Handler, gateSize int) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	t.Setenv("DQSYNC_REMOTE_TOKEN", "d2pat_secret")
	c, err := New(config.ServerConfig{
		BaseURL:               srv.URL + "/",
		Auth:                  config.AuthConfig{Mode: "token", TokenEnv: "DQSYNC_REMOTE_TOKEN"},
		MaxConcurrentRequests: gateSize,
		RequestTimeout:        5 * time.Second,
	}, NewGate(gateSize))
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_SendsTokenHeader(t *testing.T) {
	var got string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, map[string]any{"authorities": []string{"F_MIN_MAX_ADD"}})
	}), 2)

	auths, err := c.Authorities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"F_MIN_MAX_ADD"}, auths)
	assert.Equal(t, "ApiToken d2pat_secret", got)
}

func TestClient_BasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != "admin" || p != "district" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"version": "2.40.1"})
	}))
	defer srv.Close()
	t.Setenv("DQSYNC_REMOTE_PW", "district")

	c, err := New(config.ServerConfig{
		BaseURL:        srv.URL,
		Auth:           config.AuthConfig{Mode: "basic", Username: "admin", PasswordEnv: "DQSYNC_REMOTE_PW"},
		RequestTimeout: time.Second,
	}, nil)
	require.NoError(t, err)

	v, err := c.SystemVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 40, v.Minor)
}

func TestClient_StatusError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}), 1)

	_, err := c.DataSet(context.Background(), "ds1")
	require.Error(t, err)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
	assert.Contains(t, se.Body, "slow down")
}

func TestGate_BoundsInFlightRequests(t *testing.T) {
	var inFlight, peak atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		writeJSON(w, http.StatusOK, map[string]any{"dataValues": []any{}})
	}), 2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.DataValues(context.Background(), DataValueQuery{DataSet: "ds", OrgUnit: "ou"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestGate_AcquireHonoursContext(t *testing.T) {
	g := NewGate(1)
	require.NoError(t, g.Acquire(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, g.Acquire(ctx))
	g.Release()

	var nilGate *Gate
	assert.NoError(t, nilGate.Acquire(context.Background()))
	nilGate.Release()
	assert.Equal(t, 0, nilGate.Size())
}

func TestDataValues_Query(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/dataValueSets", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "ds1", q.Get("dataSet"))
		assert.Equal(t, "ou1", q.Get("orgUnit"))
		assert.Equal(t, "2024-01-01", q.Get("startDate"))
		assert.Equal(t, "2024-03-31", q.Get("endDate"))
		assert.Equal(t, "true", q.Get("children"))
		writeJSON(w, http.StatusOK, map[string]any{"dataValues": []map[string]string{
			{"dataElement": "de1", "period": "202401", "orgUnit": "ou2", "categoryOptionCombo": "coc", "value": "12"},
		}})
	}), 1)

	vals, err := c.DataValues(context.Background(), DataValueQuery{
		DataSet:  "ds1",
		OrgUnit:  "ou1",
		Start:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		Children: true,
	})
	require.NoError(t, err)
	require.Len(t, vals, 1)
	assert.Equal(t, "12", vals[0].Value)
}

func TestPostDataValues_SummaryShapes(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
		want ImportCount
	}{
		{
			name: "wrapped",
			body: map[string]any{"status": "OK", "response": map[string]any{
				"importCount": map[string]int{"imported": 2, "updated": 1, "ignored": 3},
			}},
			want: ImportCount{Imported: 2, Updated: 1, Ignored: 3},
		},
		{
			name: "top level",
			body: map[string]any{"importCount": map[string]int{"deleted": 4}},
			want: ImportCount{Deleted: 4},
		},
		{
			name: "empty",
			body: map[string]any{},
			want: ImportCount{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "DELETE", r.URL.Query().Get("importStrategy"))
				writeJSON(w, http.StatusOK, tt.body)
			}), 1)
			got, err := c.PostDataValues(context.Background(), []DataValue{{DataElement: "de"}}, StrategyDelete)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUpsertMinMax(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch MinMaxBatch
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
		assert.Equal(t, "ds1", batch.DataSet)
		writeJSON(w, http.StatusCreated, map[string]int{"successful": len(batch.Values), "ignored": 0})
	}), 1)

	out, err := c.UpsertMinMax(context.Background(), MinMaxBatch{
		DataSet: "ds1",
		Values:  []MinMaxValue{{DataElement: "de", OrgUnit: "ou", OptionCombo: "coc", MinValue: 0, MaxValue: 10}},
	})
	require.NoError(t, err)
	require.NotNil(t, out.Successful)
	assert.Equal(t, 1, *out.Successful)
}

func TestUpsertMinMax_AcceptedIsNotSuccess(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}), 1)
	_, err := c.UpsertMinMax(context.Background(), MinMaxBatch{DataSet: "ds"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusAccepted, se.Code)
}

func TestPostMinMaxValue_Legacy(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var v LegacyMinMaxValue
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&v))
		if v.OrgUnit == "bad" {
			w.WriteHeader(http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusOK)
	}), 1)

	assert.NoError(t, c.PostMinMaxValue(context.Background(), LegacyMinMaxValue{OrgUnit: "ou"}))
	assert.Error(t, c.PostMinMaxValue(context.Background(), LegacyMinMaxValue{OrgUnit: "bad"}))
}

func TestDataSet_NumericElements(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/dataSets/ds1", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"id": "ds1", "periodType": "Monthly",
			"organisationUnits": [{"id": "ou1"}, {"id": "ou2"}],
			"dataSetElements": [
				{"dataElement": {"id": "de1", "valueType": "INTEGER"},
				 "categoryCombo": {"categoryOptionCombos": [{"id": "c1"}, {"id": "c2"}]}},
				{"dataElement": {"id": "de2", "valueType": "TEXT"},
				 "categoryCombo": {"categoryOptionCombos": [{"id": "c1"}]}}
			]}`))
	}), 1)

	ds, err := c.DataSet(context.Background(), "ds1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ou1", "ou2"}, ds.OrgUnitIDs())
	num := ds.NumericElements()
	require.Len(t, num, 1)
	assert.Equal(t, "de1", num[0].DataElement.ID)
	assert.Len(t, num[0].CategoryCombo.CategoryOptionCombos, 2)
}

func TestParseServerVersion(t *testing.T) {
	tests := []struct {
		in       string
		want     [3]int
		snapshot bool
		wantErr  bool
	}{
		{"2.41.5", [3]int{2, 41, 5}, false, false},
		{"2.40", [3]int{2, 40, 0}, false, false},
		{"2.42-SNAPSHOT", [3]int{2, 42, 0}, true, false},
		{"2.41.5-SNAPSHOT", [3]int{2, 41, 5}, true, false},
		{"2.39.1.1", [3]int{2, 39, 1}, false, false},
		{"2.41rc1.2", [3]int{2, 41, 2}, true, false},
		{"2.40.3-beta2", [3]int{2, 40, 3}, true, false},
		{"garbage", [3]int{}, false, true},
		{"x.y", [3]int{}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := ParseServerVersion(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, [3]int{v.Major, v.Minor, v.Patch})
			assert.Equal(t, tt.snapshot, v.Snapshot)
		})
	}
}

func TestServerVersion_AtLeast(t *testing.T) {
	floor := version.Must(version.NewVersion("2.41.5"))
	for in, want := range map[string]bool{
		"2.41.5":          true,
		"2.41.5-SNAPSHOT": true,
		"2.42":            true,
		"2.41.4":          false,
		"2.40.9":          false,
	} {
		v, err := ParseServerVersion(in)
		require.NoError(t, err)
		assert.Equal(t, want, v.AtLeast(floor), in)
	}
}

func TestOutliers_Query(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "ds1,ds2", q.Get("ds"))
		assert.Equal(t, "MOD_Z_SCORE", q.Get("algorithm"))
		assert.Equal(t, "3.5", q.Get("threshold"))
		writeJSON(w, http.StatusOK, map[string]any{"outlierValues": []map[string]any{
			{"de": "de1", "pe": "202401", "ou": "ou1", "coc": "c", "value": 99.0},
		}})
	}), 1)

	out, err := c.Outliers(context.Background(), OutlierQuery{
		DataSets: []string{"ds1", "ds2"}, OrgUnit: "ou1", Algorithm: "MOD_Z_SCORE", Threshold: 3.5, MaxResults: 10,
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 99.0, out[0].Value)
}
