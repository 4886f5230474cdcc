package upstream

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"plant-console/internal/listing/application"
	listing "plant-console/internal/listing/domain"
	"plant-console/internal/qbits"
)

// API is the part of the qbits client the sources use.
type API interface {
	GroupedClients(ctx context.Context, token string, q qbits.GroupedQuery) (map[string]qbits.Bucket, error)
	InverterTotals(ctx context.Context, token string) (qbits.Totals, error)
	AllDealers(ctx context.Context, token string, perPage int) ([]map[string]any, error)
	AllLatestInverters(ctx context.Context, token string) ([]map[string]any, error)
	Faults(ctx context.Context, token string, q qbits.FaultQuery) ([]map[string]any, error)
	AllUserPlants(ctx context.Context, token, userID string, limit int) ([]map[string]any, error)
}

// Source loads every console screen from the monitoring API.
type Source struct {
	api    API
	logger *zap.Logger
}

// NewSource wires a source over api.
func NewSource(api API, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{api: api, logger: logger}
}

// Load implements application.Source.
func (s *Source) Load(ctx context.Context, caller application.Caller, screen application.Screen) (application.Snapshot, error) {
	if s == nil || s.api == nil {
		return application.Snapshot{}, errors.New("upstream: source not configured")
	}
	var (
		snap application.Snapshot
		err  error
	)
	switch screen.Feed {
	case application.FeedUsers:
		snap, err = s.loadClients(ctx, caller.Token, screen, qbits.PathAdminGroupedClients, true)
	case application.FeedStations:
		snap, err = s.loadClients(ctx, caller.Token, screen, qbits.PathFrontGroupedClients, false)
	case application.FeedCompanies:
		snap, err = s.loadDealers(ctx, caller.Token, screen)
	case application.FeedInverters:
		snap, err = s.loadInverters(ctx, caller.Token, screen)
	case application.FeedFaults:
		snap, err = s.loadFaults(ctx, caller.Token, screen)
	case application.FeedPlants:
		snap, err = s.loadUserPlants(ctx, caller, screen)
	default:
		return application.Snapshot{}, fmt.Errorf("upstream: screen %s has unknown feed %q", screen.Name, screen.Feed)
	}
	if err != nil {
		return application.Snapshot{}, mapError(screen.Name, err)
	}
	return snap, nil
}

func mapError(screen string, err error) error {
	if errors.Is(err, qbits.ErrUnauthorized) || errors.Is(err, qbits.ErrNoToken) {
		return fmt.Errorf("upstream: load %s: %w: %w", screen, application.ErrUnauthorized, err)
	}
	return fmt.Errorf("upstream: load %s: %w", screen, err)
}

func toRecords(rows []map[string]any) []listing.Record {
	out := make([]listing.Record, len(rows))
	for i, row := range rows {
		out[i] = listing.Record(row)
	}
	return out
}

func (s *Source) loadClients(ctx context.Context, token string, screen application.Screen, path string, withTotals bool) (application.Snapshot, error) {
	perPage := 200
	if !withTotals {
		perPage = listing.DefaultPageSize
	}

	var (
		buckets map[string]qbits.Bucket
		totals  *qbits.Totals
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		buckets, err = s.api.GroupedClients(gctx, token, qbits.GroupedQuery{Path: path, PerPage: perPage})
		return err
	})
	if withTotals {
		g.Go(func() error {
			t, err := s.api.InverterTotals(gctx, token)
			if err != nil {
				if errors.Is(err, qbits.ErrUnauthorized) {
					return err
				}
				// bucket totals stand in
				s.logger.Warn("inverter totals unavailable", zap.Error(err))
				return nil
			}
			totals = &t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return application.Snapshot{}, err
	}

	snap := application.Snapshot{Partitions: listing.Partitions{}, Totals: map[string]int{}}
	for _, p := range screen.Partitions {
		bucket := buckets[screen.Bucket(p.Name)]
		snap.Partitions[p.Name] = listing.Dedupe(toRecords(bucket.Records), listing.DefaultKeyFields)
		total := bucket.Total
		if total == 0 {
			total = len(snap.Partitions[p.Name])
		}
		snap.Totals[p.Name] = total
	}
	if totals != nil {
		snap.Totals["all"] = totals.All
		snap.Totals["normal"] = totals.Normal
		snap.Totals["alarm"] = totals.Alarm
		snap.Totals["offline"] = totals.Offline
	}
	return snap, nil
}

func (s *Source) loadDealers(ctx context.Context, token string, screen application.Screen) (application.Snapshot, error) {
	rows, err := s.api.AllDealers(ctx, token, 100)
	if err != nil {
		return application.Snapshot{}, err
	}
	records := listing.Dedupe(toRecords(rows), []string{screen.IDField})
	return single(screen, records), nil
}

var recordTimeFields = []string{"record_time", "recordTime", "updated_at", "created_at"}

// recordTime is the first parseable timestamp among the inverter time fields.
func recordTime(r listing.Record) int64 {
	for _, field := range recordTimeFields {
		if ms, ok := listing.ParseMillis(r.Get(field)); ok {
			return ms
		}
	}
	return 0
}

func (s *Source) loadInverters(ctx context.Context, token string, screen application.Screen) (application.Snapshot, error) {
	rows, err := s.api.AllLatestInverters(ctx, token)
	if err != nil {
		return application.Snapshot{}, err
	}
	records := toRecords(rows)
	slices.SortStableFunc(records, func(a, b listing.Record) int {
		return compareDesc(recordTime(a), recordTime(b))
	})
	return single(screen, records), nil
}

func (s *Source) loadUserPlants(ctx context.Context, caller application.Caller, screen application.Screen) (application.Snapshot, error) {
	if caller.Scope == "" {
		return application.Snapshot{}, errors.New("upstream: user plants need a user id")
	}
	rows, err := s.api.AllUserPlants(ctx, caller.Token, caller.Scope, 100)
	if err != nil {
		return application.Snapshot{}, err
	}
	records := listing.Dedupe(toRecords(rows), []string{screen.IDField, "plant_no"})
	return single(screen, records), nil
}

func single(screen application.Screen, records []listing.Record) application.Snapshot {
	parts := listing.Partitions{}
	if len(screen.Partitions) > 0 {
		parts[screen.Partitions[0].Name] = records
	}
	return application.Snapshot{Partitions: parts, Totals: map[string]int{"all": len(records)}}
}

func (s *Source) loadFaults(ctx context.Context, token string, screen application.Screen) (application.Snapshot, error) {
	statuses := make([]qbits.FaultStatus, len(screen.Partitions))
	for i, p := range screen.Partitions {
		status, err := qbits.ParseFaultStatus(screen.Bucket(p.Name))
		if err != nil {
			return application.Snapshot{}, err
		}
		statuses[i] = status
	}

	results := make([][]listing.Record, len(screen.Partitions))
	g, gctx := errgroup.WithContext(ctx)
	for i, status := range statuses {
		g.Go(func() error {
			rows, err := s.api.Faults(gctx, token, qbits.FaultQuery{Status: status})
			if err != nil {
				return err
			}
			results[i] = SortFaults(toRecords(rows))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return application.Snapshot{}, err
	}

	snap := application.Snapshot{Partitions: listing.Partitions{}, Totals: map[string]int{}}
	for i, p := range screen.Partitions {
		snap.Partitions[p.Name] = results[i]
		snap.Totals[p.Name] = len(results[i])
	}
	return snap, nil
}

// SortFaults orders fault events newest first by start time, then end time.
func SortFaults(records []listing.Record) []listing.Record {
	out := slices.Clone(records)
	slices.SortStableFunc(out, func(a, b listing.Record) int {
		if c := compareDesc(listing.Millis(a.Get("stime")), listing.Millis(b.Get("stime"))); c != 0 {
			return c
		}
		return compareDesc(listing.Millis(a.Get("etime")), listing.Millis(b.Get("etime")))
	})
	return out
}

func compareDesc(a, b int64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	default:
		return 0
	}
}
