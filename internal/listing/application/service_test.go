package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	listing "plant-console/internal/listing/domain"
)

type stubSource struct {
	mu    sync.Mutex
	calls int
	load  func(call int, caller Caller, screen Screen) (Snapshot, error)
}

func (s *stubSource) Load(_ context.Context, caller Caller, screen Screen) (Snapshot, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()
	return s.load(call, caller, screen)
}

func (s *stubSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func users(n int, prefix string) []listing.Record {
	out := make([]listing.Record, n)
	for i := range out {
		out[i] = listing.Record{
			"id":       float64(i + 1),
			"username": fmt.Sprintf("%s%02d", prefix, i+1),
			"email":    fmt.Sprintf("%s%02d@plant.pk", prefix, i+1),
		}
	}
	return out
}

func snapshotOf(all []listing.Record) Snapshot {
	return Snapshot{
		Partitions: listing.Partitions{"all": all, "normal": all[:len(all)/2]},
		Totals:     map[string]int{"all": len(all)},
	}
}

func newTestService(t *testing.T, src Source) *ViewService {
	t.Helper()
	svc, err := NewViewService(DefaultScreens(), src)
	require.NoError(t, err)
	return svc
}

var alice = Caller{SessionID: "sess-a", Token: "tok-a"}

func TestViewService_ApplyLoadsOnMount(t *testing.T) {
	src := &stubSource{load: func(int, Caller, Screen) (Snapshot, error) {
		return snapshotOf(users(60, "user")), nil
	}}
	svc := newTestService(t, src)

	model, err := svc.Apply(context.Background(), alice, "users", ViewParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, src.Calls())
	assert.Equal(t, "users", model.Screen)
	assert.Equal(t, 60, model.Total)
	assert.Equal(t, 3, model.TotalPages)
	assert.Len(t, model.Rows, 25)
	assert.Equal(t, "user60", model.Rows[0].Text("username"))
	assert.NotNil(t, model.LoadedAt)

	_, err = svc.Apply(context.Background(), alice, "users", ViewParams{Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, src.Calls())
}

func TestViewService_ApplyOrder(t *testing.T) {
	src := &stubSource{load: func(int, Caller, Screen) (Snapshot, error) {
		return snapshotOf(users(60, "user")), nil
	}}
	svc := newTestService(t, src)
	ctx := context.Background()

	_, err := svc.Apply(ctx, alice, "users", ViewParams{Page: 3})
	require.NoError(t, err)

	query := "user1"
	model, err := svc.Apply(ctx, alice, "users", ViewParams{
		Query:     &query,
		Sort:      "username",
		Direction: "asc",
		Page:      2,
	})
	require.NoError(t, err)
	// user10..user19 fit on one page, so page 2 clamps to 1
	assert.Equal(t, 10, model.Total)
	assert.Equal(t, 1, model.Page)
	assert.Equal(t, "user10", model.Rows[0].Text("username"))
	assert.Equal(t, listing.SortSpec{Field: "username", Direction: listing.Asc}, model.Sort)

	model, err = svc.Apply(ctx, alice, "users", ViewParams{Partition: "normal"})
	require.NoError(t, err)
	assert.Equal(t, "normal", model.Partition)
	assert.Equal(t, 1, model.Page)
}

func TestViewService_BadDirectionLeavesViewUntouched(t *testing.T) {
	src := &stubSource{load: func(int, Caller, Screen) (Snapshot, error) {
		return snapshotOf(users(60, "user")), nil
	}}
	svc := newTestService(t, src)
	ctx := context.Background()

	before, err := svc.Apply(ctx, alice, "users", ViewParams{Page: 3})
	require.NoError(t, err)

	query := "user1"
	_, err = svc.Apply(ctx, alice, "users", ViewParams{
		Partition: "normal",
		Query:     &query,
		Sort:      "username",
		Direction: "sideways",
	})
	assert.ErrorIs(t, err, ErrInvalidParams)

	after, err := svc.Apply(ctx, alice, "users", ViewParams{})
	require.NoError(t, err)
	assert.Equal(t, before.Partition, after.Partition)
	assert.Equal(t, before.Query, after.Query)
	assert.Equal(t, before.Sort, after.Sort)
	assert.Equal(t, 3, after.Page)
}

func TestViewService_PartitionAliases(t *testing.T) {
	src := &stubSource{load: func(int, Caller, Screen) (Snapshot, error) {
		return Snapshot{Partitions: listing.Partitions{"alarm": users(3, "a")}}, nil
	}}
	svc := newTestService(t, src)

	model, err := svc.Apply(context.Background(), alice, "stations", ViewParams{Partition: "warning"})
	require.NoError(t, err)
	assert.Equal(t, "alarm", model.Partition)
	assert.Equal(t, 3, model.Total)

	_, err = svc.Apply(context.Background(), alice, "stations", ViewParams{Partition: "bogus"})
	assert.ErrorIs(t, err, ErrUnknownPartition)
}

func TestViewService_StaleRefreshDropped(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	src := &stubSource{load: func(call int, _ Caller, _ Screen) (Snapshot, error) {
		if call == 1 {
			close(started)
			<-release
			return snapshotOf(users(40, "old")), nil
		}
		return snapshotOf(users(4, "new")), nil
	}}
	svc := newTestService(t, src)
	ctx := context.Background()

	errCh := make(chan error, 1)
	go func() {
		_, err := svc.Refresh(ctx, alice, "users")
		errCh <- err
	}()
	<-started

	model, err := svc.Refresh(ctx, alice, "users")
	require.NoError(t, err)
	assert.Equal(t, 4, model.Total)

	close(release)
	assert.ErrorIs(t, <-errCh, ErrSuperseded)

	model, err = svc.Apply(ctx, alice, "users", ViewParams{})
	require.NoError(t, err)
	assert.Equal(t, 4, model.Total)
	assert.Equal(t, "new04", model.Rows[0].Text("username"))
}

func TestViewService_FailedRefreshKeepsRecords(t *testing.T) {
	boom := errors.New("upstream down")
	src := &stubSource{load: func(call int, _ Caller, _ Screen) (Snapshot, error) {
		if call == 1 {
			return snapshotOf(users(5, "user")), nil
		}
		return Snapshot{}, boom
	}}
	svc := newTestService(t, src)
	ctx := context.Background()

	_, err := svc.Refresh(ctx, alice, "users")
	require.NoError(t, err)

	model, err := svc.Refresh(ctx, alice, "users")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 5, model.Total)
	assert.Equal(t, "upstream down", model.Error)
}

func TestViewService_NeverLoadedServesEmptyPage(t *testing.T) {
	src := &stubSource{load: func(int, Caller, Screen) (Snapshot, error) {
		return Snapshot{}, errors.New("timeout")
	}}
	svc := newTestService(t, src)

	model, err := svc.Apply(context.Background(), alice, "faults", ViewParams{})
	require.NoError(t, err)
	assert.Empty(t, model.Rows)
	assert.Equal(t, 1, model.TotalPages)
	assert.Equal(t, "timeout", model.Error)
	assert.Nil(t, model.LoadedAt)
}

func TestViewService_UnauthorizedOnMountIsReturned(t *testing.T) {
	src := &stubSource{load: func(int, Caller, Screen) (Snapshot, error) {
		return Snapshot{}, fmt.Errorf("load users: %w", ErrUnauthorized)
	}}
	svc := newTestService(t, src)

	_, err := svc.Apply(context.Background(), alice, "users", ViewParams{})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestViewService_SessionsAreIsolated(t *testing.T) {
	src := &stubSource{load: func(_ int, caller Caller, _ Screen) (Snapshot, error) {
		if caller.SessionID == "sess-b" {
			return snapshotOf(users(2, "bob")), nil
		}
		return snapshotOf(users(6, "al")), nil
	}}
	svc := newTestService(t, src)
	ctx := context.Background()
	bob := Caller{SessionID: "sess-b", Token: "tok-b"}

	a, err := svc.Apply(ctx, alice, "users", ViewParams{})
	require.NoError(t, err)
	b, err := svc.Apply(ctx, bob, "users", ViewParams{})
	require.NoError(t, err)
	assert.Equal(t, 6, a.Total)
	assert.Equal(t, 2, b.Total)

	assert.Equal(t, 1, svc.Close("sess-a"))
	_, ok := svc.FindRecord("sess-a", "users", "1")
	assert.False(t, ok)
	_, ok = svc.FindRecord("sess-b", "users", "1")
	assert.True(t, ok)
}

func TestViewService_PatchRecordAcrossViews(t *testing.T) {
	src := &stubSource{load: func(int, Caller, Screen) (Snapshot, error) {
		return snapshotOf(users(4, "user")), nil
	}}
	svc := newTestService(t, src)
	ctx := context.Background()

	_, err := svc.Apply(ctx, alice, "users", ViewParams{})
	require.NoError(t, err)
	_, err = svc.Apply(ctx, alice, "stations", ViewParams{})
	require.NoError(t, err)

	n := svc.PatchRecord([]Feed{FeedUsers, FeedStations}, "1", map[string]any{"company_code": "QB-1"})
	// record 1 sits in all and normal on both screens
	assert.Equal(t, 4, n)

	record, ok := svc.FindRecord(alice.SessionID, "stations", "1")
	require.True(t, ok)
	assert.Equal(t, "QB-1", record.Text("company_code"))
}

func TestViewService_Errors(t *testing.T) {
	_, err := NewViewService(nil, nil)
	assert.ErrorIs(t, err, ErrNilSource)

	svc := newTestService(t, &stubSource{load: func(int, Caller, Screen) (Snapshot, error) {
		return Snapshot{}, nil
	}})
	_, err = svc.Apply(context.Background(), Caller{}, "users", ViewParams{})
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = svc.Apply(context.Background(), alice, "nope", ViewParams{})
	assert.ErrorIs(t, err, ErrUnknownScreen)

	_, err = svc.Apply(context.Background(), alice, "users", ViewParams{Sort: "id", Direction: "up"})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestViewService_UnmountRemountsFresh(t *testing.T) {
	src := &stubSource{load: func(int, Caller, Screen) (Snapshot, error) {
		return snapshotOf(users(30, "user")), nil
	}}
	svc := newTestService(t, src)
	ctx := context.Background()

	_, err := svc.Apply(ctx, alice, "users", ViewParams{Page: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"companies", "faults", "inverters", "stations", "user_plants", "users"}, svc.Screens())

	assert.True(t, svc.Unmount(alice.SessionID, "users"))
	assert.False(t, svc.Unmount(alice.SessionID, "users"))

	model, err := svc.Apply(ctx, alice, "users", ViewParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, model.Page)
	assert.Equal(t, 2, src.Calls())
}

func TestViewService_ScopedViews(t *testing.T) {
	var mu sync.Mutex
	var scopes []string
	src := &stubSource{load: func(_ int, c Caller, _ Screen) (Snapshot, error) {
		mu.Lock()
		scopes = append(scopes, c.Scope)
		mu.Unlock()
		n := 3
		if c.Scope == "8" {
			n = 30
		}
		return Snapshot{Partitions: listing.Partitions{"all": users(n, "plant")}}, nil
	}}
	svc := newTestService(t, src)
	ctx := context.Background()

	_, err := svc.Apply(ctx, alice, "user_plants", ViewParams{})
	assert.ErrorIs(t, err, ErrInvalidParams)

	seven := alice
	seven.Scope = "7"
	eight := alice
	eight.Scope = "8"

	a, err := svc.Apply(ctx, seven, "user_plants", ViewParams{})
	require.NoError(t, err)
	b, err := svc.Apply(ctx, eight, "user_plants", ViewParams{Page: 2})
	require.NoError(t, err)
	assert.Equal(t, "7", a.Scope)
	assert.Equal(t, 3, a.Total)
	assert.Equal(t, 30, b.Total)
	assert.Equal(t, 2, b.Page)

	again, err := svc.Apply(ctx, eight, "user_plants", ViewParams{})
	require.NoError(t, err)
	assert.Equal(t, 2, again.Page)
	assert.Equal(t, []string{"7", "8"}, scopes)

	assert.True(t, svc.Unmount(alice.SessionID, "user_plants"))
	assert.False(t, svc.Unmount(alice.SessionID, "user_plants"))

	withScope := alice
	withScope.Scope = "ignored"
	model, err := svc.Apply(ctx, withScope, "users", ViewParams{})
	require.NoError(t, err)
	assert.Empty(t, model.Scope)
}
