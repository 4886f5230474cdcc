package upstream

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plant-console/internal/listing/application"
	listing "plant-console/internal/listing/domain"
	"plant-console/internal/qbits"
)

type stubAPI struct {
	mu       sync.Mutex
	grouped  map[string]qbits.Bucket
	paths    []string
	totals   qbits.Totals
	totalErr error
	dealers  []map[string]any
	latest   []map[string]any
	faults   map[qbits.FaultStatus][]map[string]any
	plants   map[string][]map[string]any
	err      error

	faultCalls int
}

func (s *stubAPI) GroupedClients(_ context.Context, _ string, q qbits.GroupedQuery) (map[string]qbits.Bucket, error) {
	s.mu.Lock()
	s.paths = append(s.paths, q.Path)
	s.mu.Unlock()
	return s.grouped, s.err
}

func (s *stubAPI) InverterTotals(context.Context, string) (qbits.Totals, error) {
	return s.totals, s.totalErr
}

func (s *stubAPI) AllDealers(context.Context, string, int) ([]map[string]any, error) {
	return s.dealers, s.err
}

func (s *stubAPI) AllLatestInverters(context.Context, string) ([]map[string]any, error) {
	return s.latest, s.err
}

func (s *stubAPI) Faults(_ context.Context, _ string, q qbits.FaultQuery) ([]map[string]any, error) {
	s.mu.Lock()
	s.faultCalls++
	s.mu.Unlock()
	return s.faults[q.Status], s.err
}

func (s *stubAPI) AllUserPlants(_ context.Context, _ string, userID string, _ int) ([]map[string]any, error) {
	return s.plants[userID], s.err
}

var caller = application.Caller{SessionID: "s1", Token: "tok"}

func screen(name string) application.Screen {
	return application.DefaultScreens()[name]
}

func ids(records []listing.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Text("id")
	}
	return out
}

func TestLoad_UsersDedupesAndUsesTotals(t *testing.T) {
	api := &stubAPI{
		grouped: map[string]qbits.Bucket{
			qbits.BucketAll: {Records: []map[string]any{
				{"id": "1", "username": "a"}, {"id": "2"}, {"id": "1", "username": "dup"},
			}, Total: 3},
			qbits.BucketAlarm: {Records: []map[string]any{{"id": "2"}}},
		},
		totals: qbits.Totals{All: 120, Normal: 100, Alarm: 15, Offline: 5},
	}
	src := NewSource(api, nil)

	snap, err := src.Load(context.Background(), caller, screen("users"))
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(snap.Partitions["all"]))
	assert.Equal(t, []string{"2"}, ids(snap.Partitions["alarm"]))
	assert.Empty(t, snap.Partitions["normal"])
	assert.Equal(t, 120, snap.Totals["all"])
	assert.Equal(t, 15, snap.Totals["alarm"])
	assert.Equal(t, []string{qbits.PathAdminGroupedClients}, api.paths)
}

func TestLoad_StationsFallBackToBucketTotals(t *testing.T) {
	api := &stubAPI{
		grouped: map[string]qbits.Bucket{
			qbits.BucketAll: {Records: []map[string]any{{"id": 1}, {"id": 2}}, Total: 40},
		},
	}
	snap, err := NewSource(api, nil).Load(context.Background(), caller, screen("stations"))
	require.NoError(t, err)
	assert.Equal(t, 40, snap.Totals["all"])
	assert.Equal(t, 0, snap.Totals["offline"])
	assert.Equal(t, []string{qbits.PathFrontGroupedClients}, api.paths)
}

func TestLoad_TotalsFailureIsSoft(t *testing.T) {
	api := &stubAPI{
		grouped:  map[string]qbits.Bucket{qbits.BucketAll: {Records: []map[string]any{{"id": 1}}}},
		totalErr: errors.New("totals broke"),
	}
	snap, err := NewSource(api, nil).Load(context.Background(), caller, screen("users"))
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Totals["all"])
}

func TestLoad_InvertersNewestFirst(t *testing.T) {
	api := &stubAPI{latest: []map[string]any{
		{"id": 1, "record_time": "2024-05-01 10:00:00"},
		{"id": 2, "recordTime": "2024-05-03 10:00:00"},
		{"id": 3},
		{"id": 4, "updated_at": "2024-05-02T09:00:00Z"},
	}}
	snap, err := NewSource(api, nil).Load(context.Background(), caller, screen("inverters"))
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "4", "1", "3"}, ids(snap.Partitions["all"]))
}

func TestLoad_FaultsPerStatus(t *testing.T) {
	api := &stubAPI{faults: map[qbits.FaultStatus][]map[string]any{
		qbits.FaultsAll: {
			{"id": 1, "stime": "2024-05-01 10:00:00", "etime": "2024-05-01 11:00:00"},
			{"id": 2, "stime": "2024-05-01 10:00:00", "etime": "2024-05-01 12:00:00"},
			{"id": 3, "stime": "2024-05-02 08:00:00"},
		},
		qbits.FaultsOngoing:   {{"id": 3, "stime": "2024-05-02 08:00:00"}},
		qbits.FaultsRecovered: {{"id": 1}, {"id": 2}},
	}}
	snap, err := NewSource(api, nil).Load(context.Background(), caller, screen("faults"))
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "2", "1"}, ids(snap.Partitions["all"]))
	assert.Equal(t, []string{"3"}, ids(snap.Partitions["going"]))
	assert.Equal(t, 2, snap.Totals["recovered"])
}

func TestLoad_FaultsBadBucketFetchesNothing(t *testing.T) {
	faults := screen("faults")
	faults.Partitions = append(faults.Partitions, application.Partition{Name: "muted", Bucket: "muted"})
	api := &stubAPI{}

	_, err := NewSource(api, nil).Load(context.Background(), caller, faults)
	require.Error(t, err)
	assert.Zero(t, api.faultCalls)
}

func TestLoad_CompaniesSinglePartition(t *testing.T) {
	api := &stubAPI{dealers: []map[string]any{{"id": 5}, {"id": 5}, {"id": 6}}}
	snap, err := NewSource(api, nil).Load(context.Background(), caller, screen("companies"))
	require.NoError(t, err)
	assert.Equal(t, []string{"5", "6"}, ids(snap.Partitions["all"]))
}

func TestLoad_UserPlantsUsesScope(t *testing.T) {
	api := &stubAPI{plants: map[string][]map[string]any{
		"42": {{"id": 1, "plant_no": "P1"}, {"id": 1, "plant_no": "P1"}, {"plant_no": "P2"}},
	}}
	scoped := application.Caller{SessionID: "s1", Token: "tok", Scope: "42"}
	snap, err := NewSource(api, nil).Load(context.Background(), scoped, screen("user_plants"))
	require.NoError(t, err)
	require.Len(t, snap.Partitions["all"], 2)
	assert.Equal(t, "P2", snap.Partitions["all"][1].Text("plant_no"))
	assert.Equal(t, 2, snap.Totals["all"])

	_, err = NewSource(api, nil).Load(context.Background(), caller, screen("user_plants"))
	assert.Error(t, err)
}

func TestLoad_MapsUnauthorized(t *testing.T) {
	api := &stubAPI{err: &qbits.APIError{Status: 401, Message: "Unauthenticated."}}
	_, err := NewSource(api, nil).Load(context.Background(), caller, screen("companies"))
	require.Error(t, err)
	assert.ErrorIs(t, err, application.ErrUnauthorized)
	assert.ErrorIs(t, err, qbits.ErrUnauthorized)

	api.err = errors.New("dial tcp: refused")
	_, err = NewSource(api, nil).Load(context.Background(), caller, screen("companies"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, application.ErrUnauthorized)
}

func TestLoad_UnknownFeed(t *testing.T) {
	_, err := NewSource(&stubAPI{}, nil).Load(context.Background(), caller, application.Screen{Name: "x", Feed: "weather"})
	assert.Error(t, err)
}

func TestSortFaults_DoesNotMutateInput(t *testing.T) {
	in := []listing.Record{{"id": 1, "stime": "2024-01-01"}, {"id": 2, "stime": "2024-02-01"}}
	out := SortFaults(in)
	assert.Equal(t, []string{"2", "1"}, ids(out))
	assert.Equal(t, []string{"1", "2"}, ids(in))
}
