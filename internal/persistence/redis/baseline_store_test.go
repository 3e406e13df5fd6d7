package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/tradeguard/internal/baseline"
	"github.com/sawpanic/tradeguard/internal/errs"
)

var end = time.Date(2025, 9, 7, 0, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*BaselineStore, redismock.ClientMock) {
	t.Helper()
	client, mock := redismock.NewClientMock()
	t.Cleanup(func() { client.Close() })
	return NewBaselineStore(client, DefaultConfig()), mock
}

func encoded(t *testing.T, b baseline.Baseline) string {
	t.Helper()
	data, err := json.Marshal(b)
	require.NoError(t, err)
	return string(data)
}

func TestBaselineStore_Keys(t *testing.T) {
	s, _ := newMockStore(t)
	assert.Equal(t, "tradeguard:baseline:GME", s.Key("GME"))
	assert.Equal(t, "tradeguard:baseline:symbols", s.IndexKey())
}

func TestBaselineStore_Load(t *testing.T) {
	s, mock := newMockStore(t)

	stored, err := baseline.FromHistory("GME", []baseline.Observation{
		{WindowEnd: end.Add(-48 * time.Hour), Count: 4},
		{WindowEnd: end.Add(-24 * time.Hour), Count: 8},
	}, end, 30)
	require.NoError(t, err)

	mock.ExpectGet(s.Key("GME")).SetVal(encoded(t, stored))
	mock.ExpectGet(s.Key("AMC")).RedisNil()

	got, err := s.Load(context.Background(), "GME")
	require.NoError(t, err)
	assert.Equal(t, stored.Mean, got.Mean)
	assert.Equal(t, stored.Version, got.Version)
	assert.Len(t, got.Observations, 2)

	empty, err := s.Load(context.Background(), "AMC")
	require.NoError(t, err)
	assert.True(t, empty.Empty())
	assert.Equal(t, "AMC", empty.Symbol)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBaselineStore_ObserveWritesUnderWatch(t *testing.T) {
	s, mock := newMockStore(t)

	obs := baseline.Observation{WindowEnd: end, Count: 6}
	want, err := baseline.Apply(baseline.Baseline{Symbol: "GME"}, obs, 30)
	require.NoError(t, err)

	mock.ExpectWatch(s.Key("GME"))
	mock.ExpectGet(s.Key("GME")).RedisNil()
	mock.ExpectTxPipeline()
	mock.ExpectSet(s.Key("GME"), encoded(t, want), 0).SetVal("OK")
	mock.ExpectSAdd(s.IndexKey(), "GME").SetVal(1)
	mock.ExpectTxPipelineExec()

	got, err := s.Observe(context.Background(), "GME", obs, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, 6.0, got.Mean)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBaselineStore_ObserveInvariantWritesNothing(t *testing.T) {
	s, mock := newMockStore(t)

	cur, err := baseline.Apply(baseline.Baseline{Symbol: "GME"}, baseline.Observation{WindowEnd: end, Count: 3}, 30)
	require.NoError(t, err)

	mock.ExpectWatch(s.Key("GME"))
	mock.ExpectGet(s.Key("GME")).SetVal(encoded(t, cur))

	got, err := s.Observe(context.Background(), "GME", baseline.Observation{WindowEnd: end.Add(time.Hour), Count: -1}, 30)
	require.Error(t, err)
	assert.True(t, errs.IsInvariant(err))
	assert.Equal(t, cur.Version, got.Version, "the stored baseline is returned unchanged")
	assert.NoError(t, mock.ExpectationsWereMet(), "no MULTI is issued")
}

func TestBaselineStore_Freeze(t *testing.T) {
	s, mock := newMockStore(t)

	amc, err := baseline.Apply(baseline.Baseline{Symbol: "AMC"}, baseline.Observation{WindowEnd: end, Count: 2}, 30)
	require.NoError(t, err)
	gme, err := baseline.Apply(baseline.Baseline{Symbol: "GME"}, baseline.Observation{WindowEnd: end, Count: 9}, 30)
	require.NoError(t, err)

	mock.ExpectSMembers(s.IndexKey()).SetVal([]string{"GME", "AMC", "TSLA"})
	mock.ExpectMGet(s.Key("AMC"), s.Key("GME"), s.Key("TSLA")).
		SetVal([]interface{}{encoded(t, amc), encoded(t, gme), nil})

	frozen, err := s.Freeze(context.Background())
	require.NoError(t, err)
	require.Len(t, frozen, 3)
	assert.Equal(t, 2.0, frozen["AMC"].Mean)
	assert.Equal(t, 9.0, frozen["GME"].Mean)
	assert.True(t, frozen["TSLA"].Empty())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBaselineStore_FreezeEmpty(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectSMembers(s.IndexKey()).SetVal(nil)

	frozen, err := s.Freeze(context.Background())
	require.NoError(t, err)
	assert.Empty(t, frozen)
	assert.NoError(t, mock.ExpectationsWereMet())
}
