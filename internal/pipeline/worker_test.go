package pipeline

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"ors-matrix/internal/geo"
	"ors-matrix/internal/ors"
)

func TestWorkerProcess(t *testing.T) {
	rows := pairRows(4)
	q := &fakeQuerier{fail: func(idx int) error {
		if idx == 1 {
			return &ors.Error{Kind: ors.KindTimeout, Message: "read timeout"}
		}
		return nil
	}}
	core, logs := observer.New(zap.WarnLevel)
	tracker := NewTracker(&bytes.Buffer{}, zap.NewNop(), nil)
	w := NewWorker(q, testParams, zap.New(core), tracker)

	out, err := w.Process(context.Background(), rows)
	require.NoError(t, err)

	require.Len(t, out.Measurements, 3)
	assert.Equal(t, rows[0].Key, out.Measurements[0].Key)
	assert.Equal(t, rows[2].Key, out.Measurements[1].Key)
	assert.Equal(t, rows[3].Key, out.Measurements[2].Key)
	assert.Equal(t, 3.5, out.Measurements[2].SrcToDest)
	assert.Equal(t, 3.25, out.Measurements[2].DestToSrc)

	require.Len(t, out.Failures, 1)
	f := out.Failures[0]
	assert.Equal(t, rows[1].Key, f.Key)
	assert.Equal(t, "timeout", f.Code)
	assert.InDelta(t, geo.RowHaversine(rows[1]), f.GeodesicKm, 1e-9)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "row query failed", entry.Message)
	assert.Equal(t, int64(1), entry.ContextMap()["row_src"])
	assert.Equal(t, int64(1), tracker.Metrics().FailuresByCode["timeout"])
}

func TestWorkerFatalError(t *testing.T) {
	boom := errors.New("decoder exploded")
	q := &fakeQuerier{fail: func(idx int) error {
		if idx == 2 {
			return boom
		}
		return nil
	}}
	w := NewWorker(q, testParams, nil, nil)

	_, err := w.Process(context.Background(), pairRows(5))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, q.calls())
}

func TestWorkerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := &fakeQuerier{fail: func(idx int) error {
		if idx == 1 {
			cancel()
		}
		return nil
	}}
	w := NewWorker(q, testParams, nil, nil)

	_, err := w.Process(ctx, pairRows(5))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, q.calls())
}

func TestQueryRowResult(t *testing.T) {
	w := NewWorker(&fakeQuerier{}, testParams, nil, nil)
	res, err := w.QueryRow(context.Background(), pairRows(1)[0])
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Nil(t, res.Failure)
}
