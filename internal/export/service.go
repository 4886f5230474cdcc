package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	listing "plant-console/internal/listing/domain"
	"plant-console/internal/listing/infrastructure/upstream"
	"plant-console/internal/observability/metrics"
	"plant-console/internal/qbits"
)

// Formats.
const (
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"
)

// ErrUnknownFormat is returned for an export format other than xlsx/pdf.
var ErrUnknownFormat = errors.New("export: unknown format")

// Upstream is the part of the qbits client exports read from.
type Upstream interface {
	Faults(ctx context.Context, token string, q qbits.FaultQuery) ([]map[string]any, error)
	GroupedClients(ctx context.Context, token string, q qbits.GroupedQuery) (map[string]qbits.Bucket, error)
}

// File is a rendered export.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Content types.
const (
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypePDF  = "application/pdf"
)

// Service fetches export data from upstream and renders it.
type Service struct {
	upstream Upstream
	logger   *zap.Logger
	now      func() time.Time
}

// NewService constructs an export service.
func NewService(up Upstream, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{upstream: up, logger: logger, now: time.Now}
}

// Faults renders every fault event inside scope, newest first.
func (s *Service) Faults(ctx context.Context, token string, scope Scope, format string) (File, error) {
	start := s.now()
	file, err := s.faults(ctx, token, scope, format)
	s.observe("faults", format, start, err)
	return file, err
}

func (s *Service) faults(ctx context.Context, token string, scope Scope, format string) (File, error) {
	if format != FormatXLSX && format != FormatPDF {
		return File{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	query := qbits.FaultQuery{Status: qbits.FaultsAll}
	if scope.Kind == ScopeStation {
		query.PlantID = scope.PlantID
	}
	rows, err := s.upstream.Faults(ctx, token, query)
	if err != nil {
		return File{}, fmt.Errorf("export: load faults: %w", err)
	}
	records := make([]listing.Record, len(rows))
	for i, row := range rows {
		records[i] = listing.Record(row)
	}
	records = upstream.SortFaults(scope.Apply(records))

	generated := s.now()
	name := fmt.Sprintf("faults-%s-%s.%s", scope.Kind, generated.UTC().Format("20060102-150405"), format)
	if format == FormatPDF {
		data, err := FaultsPDF(records, scope.Title(), generated)
		if err != nil {
			return File{}, fmt.Errorf("export: render pdf: %w", err)
		}
		return File{Name: name, ContentType: ContentTypePDF, Data: data}, nil
	}
	data, err := FaultsXLSX(records, scope.Title(), generated)
	if err != nil {
		return File{}, fmt.Errorf("export: render xlsx: %w", err)
	}
	return File{Name: name, ContentType: ContentTypeXLSX, Data: data}, nil
}

// Stations renders the full station list.
func (s *Service) Stations(ctx context.Context, token string) (File, error) {
	start := s.now()
	file, err := s.stations(ctx, token)
	s.observe("stations", FormatXLSX, start, err)
	return file, err
}

func (s *Service) stations(ctx context.Context, token string) (File, error) {
	buckets, err := s.upstream.GroupedClients(ctx, token, qbits.GroupedQuery{Path: qbits.PathFrontGroupedClients})
	if err != nil {
		return File{}, fmt.Errorf("export: load stations: %w", err)
	}
	rows := buckets[qbits.BucketAll].Records
	records := make([]listing.Record, len(rows))
	for i, row := range rows {
		records[i] = listing.Record(row)
	}
	records = listing.Dedupe(records, listing.DefaultKeyFields)

	data, err := StationsXLSX(records)
	if err != nil {
		return File{}, fmt.Errorf("export: render xlsx: %w", err)
	}
	name := fmt.Sprintf("stations-%s.xlsx", s.now().UTC().Format("20060102-150405"))
	return File{Name: name, ContentType: ContentTypeXLSX, Data: data}, nil
}

func (s *Service) observe(kind, format string, start time.Time, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
		s.logger.Warn("export failed", zap.String("kind", kind), zap.String("format", format), zap.Error(err))
	}
	metrics.ObserveExport(kind, format, result, s.now().Sub(start))
}
