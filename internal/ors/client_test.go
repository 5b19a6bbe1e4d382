package ors

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ors-matrix/internal/model"
)

var (
	ottawa   = model.Coordinate{Lon: -75.6972, Lat: 45.4215}
	montreal = model.Coordinate{Lon: -73.5673, Lat: 45.5017}

	distanceParams = model.QueryParams{
		Profile:   "driving-car",
		Metric:    model.MetricDistance,
		Units:     model.UnitsKilometers,
		Optimized: true,
	}
)

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL + "/ors"
	return NewClient(cfg, nil)
}

func TestQuerySendsRequestAndReadsOffDiagonal(t *testing.T) {
	var got matrixRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/ors/v2/matrix/driving-car", r.URL.Path)
		require.Equal(t, "secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"distances":[[0,198.2],[201.7,0]]}`))
	}, Config{APIKey: "secret"})

	pair, err := client.Query(context.Background(), ottawa, montreal, distanceParams)
	require.NoError(t, err)
	require.InDelta(t, 198.2, pair.SrcToDest, 1e-9)
	require.InDelta(t, 201.7, pair.DestToSrc, 1e-9)

	require.Equal(t, [][]float64{ottawa.List(), montreal.List()}, got.Locations)
	require.Equal(t, []string{"distance"}, got.Metrics)
	require.Equal(t, "km", got.Units)
	require.True(t, got.Optimized)
}

func TestQueryDurationOmitsUnits(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"durations":[[0,7200],[7300,0]]}`))
	}, Config{})

	params := distanceParams
	params.Metric = model.MetricDuration
	pair, err := client.Query(context.Background(), ottawa, montreal, params)
	require.NoError(t, err)
	require.InDelta(t, 7200.0, pair.SrcToDest, 1e-9)
	require.InDelta(t, 7300.0, pair.DestToSrc, 1e-9)
	require.NotContains(t, body, "units")
}

func TestQueryUnroutableIsNaN(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"distances":[[0,null],[12.5,0]]}`))
	}, Config{})

	pair, err := client.Query(context.Background(), ottawa, montreal, distanceParams)
	require.NoError(t, err)
	require.True(t, math.IsNaN(pair.SrcToDest))
	require.InDelta(t, 12.5, pair.DestToSrc, 1e-9)
}

func TestQueryClassifiesFailures(t *testing.T) {
	var testcases = map[string]struct {
		status int
		body   string
		kind   Kind
	}{
		`api_error_object`: {
			status: http.StatusBadRequest,
			body:   `{"error":{"code":6004,"message":"Request parameters exceed the server configuration limits."}}`,
			kind:   KindAPI,
		},
		`api_error_string`: {
			status: http.StatusForbidden,
			body:   `{"error":"Access to this API has been disallowed"}`,
			kind:   KindAPI,
		},
		`http_error_plain_body`: {
			status: http.StatusBadGateway,
			body:   `<html>bad gateway</html>`,
			kind:   KindHTTP,
		},
		`wrong_shape`: {
			status: http.StatusOK,
			body:   `{"distances":[[0,1,2]]}`,
			kind:   KindValidation,
		},
		`missing_metric`: {
			status: http.StatusOK,
			body:   `{"durations":[[0,1],[1,0]]}`,
			kind:   KindValidation,
		},
		`undecodable_ok`: {
			status: http.StatusOK,
			body:   `not json`,
			kind:   KindHTTP,
		},
	}

	for name, tc := range testcases {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}, Config{})

			_, err := client.Query(context.Background(), ottawa, montreal, distanceParams)
			require.Error(t, err)
			kind, ok := KindOf(err)
			require.True(t, ok)
			require.Equal(t, tc.kind, kind)
		})
	}
}

func TestQueryValidatesBeforeSending(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}, Config{})

	_, err := client.Query(context.Background(), model.Coordinate{Lon: 200, Lat: 0}, montreal, distanceParams)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindValidation, kind)

	params := distanceParams
	params.Profile = "rocket"
	_, err = client.Query(context.Background(), ottawa, montreal, params)
	kind, _ = KindOf(err)
	require.Equal(t, KindValidation, kind)

	require.Zero(t, calls.Load())
}

func TestQueryRetriesOverQueryLimit(t *testing.T) {
	var calls atomic.Int32
	handler := func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"Rate limit exceeded"}`))
			return
		}
		_, _ = w.Write([]byte(`{"distances":[[0,1],[2,0]]}`))
	}

	t.Run("enabled", func(t *testing.T) {
		calls.Store(0)
		client := newTestClient(t, handler, Config{
			RetryOverQueryLimit: true,
			RetryMax:            5,
			RetryWaitMin:        time.Millisecond,
			RetryWaitMax:        5 * time.Millisecond,
		})
		pair, err := client.Query(context.Background(), ottawa, montreal, distanceParams)
		require.NoError(t, err)
		require.InDelta(t, 1.0, pair.SrcToDest, 1e-9)
		require.EqualValues(t, 3, calls.Load())
	})

	t.Run("disabled", func(t *testing.T) {
		calls.Store(0)
		client := newTestClient(t, handler, Config{RetryMax: 5})
		_, err := client.Query(context.Background(), ottawa, montreal, distanceParams)
		var oerr *Error
		require.ErrorAs(t, err, &oerr)
		require.Equal(t, KindAPI, oerr.Kind)
		require.Equal(t, http.StatusTooManyRequests, oerr.Status)
		require.EqualValues(t, 1, calls.Load())
	})
}

func TestQueryTimeout(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, Config{Timeout: 20 * time.Millisecond})
	defer close(release)

	_, err := client.Query(context.Background(), ottawa, montreal, distanceParams)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindTimeout, kind)
}

func TestQueryConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClient(Config{BaseURL: url}, nil)
	_, err := client.Query(context.Background(), ottawa, montreal, distanceParams)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindConnection, kind)
}

func TestQueryCancelledIsNotTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Query(ctx, ottawa, montreal, distanceParams)
	require.ErrorIs(t, err, context.Canceled)
	_, ok := KindOf(err)
	require.False(t, ok)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type trackedBody struct {
	io.Reader
	closed atomic.Bool
}

func (b *trackedBody) Close() error {
	b.closed.Store(true)
	return nil
}

func TestQueryClosesBodyWhenCancelledAfterResponse(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	body := &trackedBody{Reader: strings.NewReader(`{"distances":[[0,1],[1,0]]}`)}
	client := NewClient(Config{BaseURL: "http://ors.invalid/ors"}, nil)
	client.http.HTTPClient.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		cancel()
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{},
			Body:       body,
			Request:    r,
		}, nil
	})

	_, err := client.Query(ctx, ottawa, montreal, distanceParams)
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, body.closed.Load())
}
