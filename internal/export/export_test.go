package export

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	listing "plant-console/internal/listing/domain"
	"plant-console/internal/qbits"
)

func faultRows() []map[string]any {
	return []map[string]any{
		{"id": 1, "plant_id": "P1", "plant_name": "Alpha", "status": 1, "model": "QB-5K",
			"message_en": []any{"Grid lost", "Over voltage"}, "stime": "2024-05-01 10:00:00", "etime": "2024-05-01 11:00:00"},
		{"id": 2, "plant_id": "P2", "status": 0, "inverter": map[string]any{"model_name": "QB-8K"},
			"message_en": "Isolation fault", "stime": "2024-05-03 08:00:00"},
		{"id": 3, "plant_id": "P1", "status": 0, "stime": "not a date"},
	}
}

type stubUpstream struct {
	faults   []map[string]any
	buckets  map[string]qbits.Bucket
	gotQuery qbits.FaultQuery
	err      error
}

func (s *stubUpstream) Faults(_ context.Context, _ string, q qbits.FaultQuery) ([]map[string]any, error) {
	s.gotQuery = q
	return s.faults, s.err
}

func (s *stubUpstream) GroupedClients(context.Context, string, qbits.GroupedQuery) (map[string]qbits.Bucket, error) {
	return s.buckets, s.err
}

func TestParseScope(t *testing.T) {
	scope, err := ParseScope("", "", "", "")
	require.NoError(t, err)
	assert.Equal(t, ScopeAll, scope.Kind)

	scope, err = ParseScope("date", "2024-05-01", "2024-05-02", "")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC), scope.To)
	assert.Equal(t, "Fault Export - 2024-05-01 to 2024-05-02", scope.Title())

	for _, tc := range [][4]string{
		{"date", "", "", ""},
		{"date", "2024-05-03", "2024-05-01", ""},
		{"date", "05/01/2024", "", ""},
		{"station", "", "", " "},
		{"weekly", "", "", ""},
	} {
		_, err := ParseScope(tc[0], tc[1], tc[2], tc[3])
		assert.ErrorIs(t, err, ErrInvalidScope, "%v", tc)
	}
}

func TestScopeApply(t *testing.T) {
	records := make([]listing.Record, 0)
	for _, r := range faultRows() {
		records = append(records, listing.Record(r))
	}

	station, _ := ParseScope("station", "", "", "P1")
	assert.Len(t, station.Apply(records), 2)

	date, _ := ParseScope("date", "", "2024-05-01", "")
	got := date.Apply(records)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].Text("id"))

	all, _ := ParseScope("all", "", "", "")
	assert.Len(t, all.Apply(records), 3)
}

func TestFaultCells(t *testing.T) {
	records := []listing.Record{faultRows()[0], faultRows()[1], faultRows()[2]}
	cells := Cells(records, FaultColumns)
	assert.Equal(t, []string{"Recovered", "Alpha", "QB-5K", "N/A", "Grid lost; Over voltage", "01/05/2024 10:00:00", "01/05/2024 11:00:00"}, cells[0])
	assert.Equal(t, []string{"Fault", "P2", "QB-8K", "N/A", "Isolation fault", "03/05/2024 08:00:00", "N/A"}, cells[1])
	assert.Equal(t, "Invalid Date", cells[2][5])
	assert.Equal(t, "No message", cells[2][4])
}

func TestStationColumnsOmitPassword(t *testing.T) {
	for _, col := range StationColumns {
		assert.NotEqual(t, "Password", col.Header)
	}
	cells := Cells([]listing.Record{{"id": 4, "qbits_company_code": "QB", "password": "secret"}}, StationColumns)
	assert.Equal(t, "QB", cells[0][1])
	assert.NotContains(t, cells[0], "secret")
}

func TestService_FaultsXLSX(t *testing.T) {
	up := &stubUpstream{faults: faultRows()}
	svc := NewService(up, nil)
	svc.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

	scope, _ := ParseScope("station", "", "", "P1")
	file, err := svc.Faults(context.Background(), "tok", scope, FormatXLSX)
	require.NoError(t, err)
	assert.Equal(t, "P1", up.gotQuery.PlantID)
	assert.Equal(t, qbits.FaultsAll, up.gotQuery.Status)
	assert.Equal(t, "faults-station-20240601-120000.xlsx", file.Name)
	assert.Equal(t, ContentTypeXLSX, file.ContentType)

	book, err := excelize.OpenReader(bytes.NewReader(file.Data))
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows("faults")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "No.", rows[0][0])
	assert.Equal(t, "Status", rows[0][1])
	assert.Equal(t, "Recovered", rows[1][1])
	count, err := book.GetCellValue("summary", "B4")
	require.NoError(t, err)
	assert.Equal(t, "2", count)
}

func TestService_FaultsPDF(t *testing.T) {
	svc := NewService(&stubUpstream{faults: faultRows()}, nil)
	file, err := svc.Faults(context.Background(), "tok", Scope{Kind: ScopeAll}, FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, ContentTypePDF, file.ContentType)
	assert.True(t, bytes.HasPrefix(file.Data, []byte("%PDF")))
}

func TestService_Errors(t *testing.T) {
	svc := NewService(&stubUpstream{}, nil)
	_, err := svc.Faults(context.Background(), "tok", Scope{Kind: ScopeAll}, "csv")
	assert.ErrorIs(t, err, ErrUnknownFormat)

	svc = NewService(&stubUpstream{err: qbits.ErrUnauthorized}, nil)
	_, err = svc.Stations(context.Background(), "tok")
	assert.ErrorIs(t, err, qbits.ErrUnauthorized)
	_, err = svc.Faults(context.Background(), "tok", Scope{Kind: ScopeAll}, FormatPDF)
	assert.True(t, errors.Is(err, qbits.ErrUnauthorized))
}

func TestService_Stations(t *testing.T) {
	svc := NewService(&stubUpstream{buckets: map[string]qbits.Bucket{
		qbits.BucketAll: {Records: []map[string]any{{"id": 1, "username": "a"}, {"id": 1}, {"id": 2, "username": "b"}}},
	}}, nil)
	file, err := svc.Stations(context.Background(), "tok")
	require.NoError(t, err)

	book, err := excelize.OpenReader(bytes.NewReader(file.Data))
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows("stations")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, "b", rows[2][3])
}
