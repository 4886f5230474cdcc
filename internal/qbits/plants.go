package qbits

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// FaultStatus filters fault events.
type FaultStatus int

const (
	FaultsAll       FaultStatus = -1
	FaultsOngoing   FaultStatus = 0
	FaultsRecovered FaultStatus = 1
)

// ParseFaultStatus accepts -1/0/1 or all/going/recovered.
func ParseFaultStatus(value string) (FaultStatus, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "-1", "all":
		return FaultsAll, nil
	case "0", "going", "ongoing":
		return FaultsOngoing, nil
	case "1", "recovered":
		return FaultsRecovered, nil
	default:
		return FaultsAll, fmt.Errorf("qbits: unknown fault status %q", value)
	}
}

// FaultQuery filters the fault listing. Empty ids mean every plant/inverter.
type FaultQuery struct {
	PlantID    string
	InverterID string
	Status     FaultStatus
}

var faultShapes = []listShape{
	{path: "data.faults.data"},
	{path: "data.faults"},
	{path: "data"},
	{path: "faults"},
}

// Faults lists fault events.
func (c *Client) Faults(ctx context.Context, token string, q FaultQuery) ([]map[string]any, error) {
	if token == "" {
		return nil, ErrNoToken
	}
	query := url.Values{}
	query.Set("plant_id", q.PlantID)
	query.Set("inverter_id", q.InverterID)
	query.Set("status", strconv.Itoa(int(q.Status)))

	const endpoint = "faults"
	payload, err := c.get(ctx, endpoint, token, "/faults", query)
	if err != nil {
		return nil, err
	}
	res, err := c.decodeList(endpoint, payload, faultShapes)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

var inverterShapes = []listShape{
	{path: "data.inverters.data", objects: true},
	{path: "data.inverters", objects: true},
	{path: "inverters.data", objects: true},
	{path: "inverters", objects: true},
	{path: "data", objects: true},
	{path: "inverter", objects: true},
	{path: "", objects: true},
}

// InverterLatest returns the latest reading of every inverter of a plant.
func (c *Client) InverterLatest(ctx context.Context, token, plantID string) ([]map[string]any, error) {
	if token == "" {
		return nil, ErrNoToken
	}
	if plantID == "" {
		return nil, errors.New("qbits: empty plant id")
	}
	query := url.Values{}
	query.Set("plantId", plantID)

	const endpoint = "inverter_latest"
	payload, err := c.get(ctx, endpoint, token, "/inverter/latest_data", query)
	if err != nil {
		return nil, err
	}
	res, err := c.decodeList(endpoint, payload, inverterShapes)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

// AllLatestInverters returns the latest reading of every inverter.
func (c *Client) AllLatestInverters(ctx context.Context, token string) ([]map[string]any, error) {
	if token == "" {
		return nil, ErrNoToken
	}
	const endpoint = "inverter_all_latest"
	payload, err := c.get(ctx, endpoint, token, "/frontend/inverter/all_latest_data", nil)
	if err != nil {
		return nil, err
	}
	res, err := c.decodeList(endpoint, payload, inverterShapes)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

// RunInverterCommand asks upstream to poll every inverter now.
func (c *Client) RunInverterCommand(ctx context.Context, token string) error {
	if token == "" {
		return ErrNoToken
	}
	_, err := c.get(ctx, "run_inverter_command", token, "/run-inverter-command", nil)
	return err
}

// ErrUnknownPeriod is returned for a statistics period other than day/month/year/total.
var ErrUnknownPeriod = errors.New("qbits: unknown statistics period")

// Statistics periods.
const (
	PeriodDay   = "day"
	PeriodMonth = "month"
	PeriodYear  = "year"
	PeriodTotal = "total"
)

// StatisticsQuery selects a plant production series.
type StatisticsQuery struct {
	Period    string
	StartTime string
	PlantID   string
	Atun      string
	Atpd      string
}

// Statistics returns the raw production statistics payload for a plant.
func (c *Client) Statistics(ctx context.Context, token string, q StatisticsQuery) (any, error) {
	switch q.Period {
	case PeriodDay, PeriodMonth, PeriodYear, PeriodTotal:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPeriod, q.Period)
	}
	if q.PlantID == "" {
		return nil, errors.New("qbits: empty plant id")
	}
	query := url.Values{}
	query.Set("startTime", q.StartTime)
	query.Set("plantId", q.PlantID)
	query.Set("atun", q.Atun)
	query.Set("atpd", q.Atpd)
	return c.get(ctx, "statistics_"+q.Period, token, "/plants/statistics-by-"+q.Period+"/", query)
}

// ErrPlantNotFound is returned when neither plant endpoint holds the plant.
var ErrPlantNotFound = errors.New("qbits: plant not found")

// UserPlantsPage is one page of a user's plants.
type UserPlantsPage struct {
	Records  []map[string]any
	LastPage int
	Total    int
}

var userPlantShapes = []listShape{
	{path: ""},
	{path: "data"},
	{path: "data.data", lastPage: []string{"data.last_page", "meta.last_page"}, total: []string{"data.total", "meta.total"}},
	{path: "data.records", lastPage: []string{"data.last_page"}, total: []string{"data.total"}},
	{path: "data.plants", objects: true},
	{path: "data.list", lastPage: []string{"data.last_page"}, total: []string{"data.total"}},
	{path: "data", objects: true},
}

// UserPlants fetches one page of the plants owned by a user.
func (c *Client) UserPlants(ctx context.Context, token, userID string, page, limit int) (UserPlantsPage, error) {
	if token == "" {
		return UserPlantsPage{}, ErrNoToken
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return UserPlantsPage{}, errors.New("qbits: empty user id")
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))

	const endpoint = "user_plants"
	payload, err := c.get(ctx, endpoint, token, "/plants/"+url.PathEscape(userID), query)
	if err != nil {
		return UserPlantsPage{}, err
	}
	res, err := c.decodeList(endpoint, payload, userPlantShapes)
	if err != nil {
		return UserPlantsPage{}, err
	}
	out := UserPlantsPage{Records: res.Records, LastPage: res.LastPage, Total: res.Total}
	if out.LastPage < 1 {
		out.LastPage = 1
	}
	if out.Total == 0 {
		out.Total = len(out.Records)
	}
	return out, nil
}

// AllUserPlants walks every page of a user's plants.
func (c *Client) AllUserPlants(ctx context.Context, token, userID string, limit int) ([]map[string]any, error) {
	var out []map[string]any
	for page := 1; page <= maxBucketPages; page++ {
		res, err := c.UserPlants(ctx, token, userID, page, limit)
		if err != nil {
			return nil, err
		}
		out = append(out, res.Records...)
		if page >= res.LastPage || len(res.Records) == 0 {
			break
		}
	}
	return out, nil
}

var plantShowShapes = []listShape{
	{path: "data.plants", objects: true},
	{path: "data", objects: true},
}

var plantFallbackShapes = []listShape{
	{path: ""},
	{path: "data"},
	{path: "data", objects: true},
	{path: "", objects: true},
}

// PlantDetail returns one plant by plant number. The show endpoint is tried
// first; any failure other than a rejected token falls back to /plants/{no}.
func (c *Client) PlantDetail(ctx context.Context, token, plantNo string) (map[string]any, error) {
	if token == "" {
		return nil, ErrNoToken
	}
	plantNo = strings.TrimSpace(plantNo)
	if plantNo == "" {
		return nil, errors.New("qbits: empty plant number")
	}
	escaped := url.PathEscape(plantNo)

	plant, err := c.plantFrom(ctx, "plant_show", token, "/plants/show/"+escaped, plantNo, plantShowShapes)
	if err == nil {
		return plant, nil
	}
	if errors.Is(err, ErrUnauthorized) || ctx.Err() != nil {
		return nil, err
	}
	c.logger.Debug("plant show failed, trying plant endpoint", zap.String("plant_no", plantNo), zap.Error(err))

	plant, err = c.plantFrom(ctx, "plant_detail", token, "/plants/"+escaped, plantNo, plantFallbackShapes)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) || ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrPlantNotFound, plantNo, err)
	}
	return plant, nil
}

func (c *Client) plantFrom(ctx context.Context, endpoint, token, path, plantNo string, shapes []listShape) (map[string]any, error) {
	payload, err := c.get(ctx, endpoint, token, path, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.decodeList(endpoint, payload, shapes)
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		return nil, ErrPlantNotFound
	}
	for _, record := range res.Records {
		if v, ok := record["plant_no"]; ok && fmt.Sprint(v) == plantNo {
			return record, nil
		}
	}
	return res.Records[0], nil
}
