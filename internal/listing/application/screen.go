package application

import (
	"errors"
	"fmt"
	"strings"

	listing "plant-console/internal/listing/domain"
)

// Feed names the upstream collection a screen is loaded from.
type Feed string

const (
	FeedUsers     Feed = "users"
	FeedStations  Feed = "stations"
	FeedCompanies Feed = "companies"
	FeedInverters Feed = "inverters"
	FeedFaults    Feed = "faults"
	// FeedPlants lists the plants of one user and needs a scope.
	FeedPlants Feed = "plants"
)

// Partition declares one status tab of a screen.
type Partition struct {
	Name    string   `yaml:"name" json:"name"`
	Bucket  string   `yaml:"bucket" json:"bucket,omitempty"`
	Label   string   `yaml:"label" json:"label,omitempty"`
	Aliases []string `yaml:"aliases" json:"aliases,omitempty"`
}

// Screen declares the searchable fields, sort rules and partitions of a list
// screen.
type Screen struct {
	Name         string           `yaml:"name" json:"name"`
	Feed         Feed             `yaml:"feed" json:"feed"`
	IDField      string           `yaml:"id_field" json:"id_field"`
	SearchFields []string         `yaml:"search_fields" json:"search_fields"`
	Rules        listing.Rules    `yaml:"rules" json:"rules"`
	DefaultSort  listing.SortSpec `yaml:"default_sort" json:"default_sort"`
	PageSize     int              `yaml:"page_size" json:"page_size"`
	Partitions   []Partition      `yaml:"partitions" json:"partitions"`
	FacetFields  []string         `yaml:"facet_fields" json:"facet_fields,omitempty"`
}

var (
	ErrUnknownScreen    = errors.New("listing: unknown screen")
	ErrUnknownPartition = errors.New("listing: unknown partition")
	ErrInvalidScreen    = errors.New("listing: invalid screen")
)

// Config converts the screen into controller parameters.
func (s Screen) Config() listing.Config {
	names := make([]string, 0, len(s.Partitions))
	for _, p := range s.Partitions {
		names = append(names, p.Name)
	}
	return listing.Config{
		SearchFields: s.SearchFields,
		Rules:        s.Rules,
		DefaultSort:  s.DefaultSort,
		PageSize:     s.PageSize,
		Partitions:   names,
		FacetFields:  s.FacetFields,
	}
}

// ResolvePartition maps a partition name or alias (e.g. "warning") to its name.
func (s Screen) ResolvePartition(value string) (string, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, p := range s.Partitions {
		if p.Name == value {
			return p.Name, nil
		}
		for _, alias := range p.Aliases {
			if alias == value {
				return p.Name, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %q on %s", ErrUnknownPartition, value, s.Name)
}

// Scoped reports whether views of the screen are per subject.
func (s Screen) Scoped() bool {
	return s.Feed == FeedPlants
}

// Bucket returns the upstream bucket of a partition, defaulting to its name.
func (s Screen) Bucket(name string) string {
	for _, p := range s.Partitions {
		if p.Name == name {
			if p.Bucket != "" {
				return p.Bucket
			}
			return p.Name
		}
	}
	return name
}

// Validate checks the screen is usable.
func (s Screen) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidScreen)
	}
	if len(s.Partitions) == 0 {
		return fmt.Errorf("%w: %s has no partitions", ErrInvalidScreen, s.Name)
	}
	for field, rule := range s.Rules {
		if !rule.Rule.Valid() {
			return fmt.Errorf("%w: %s.%s has rule %q", ErrInvalidScreen, s.Name, field, rule.Rule)
		}
	}
	return nil
}

var statusPartitions = []Partition{
	{Name: "all", Bucket: "all_plant", Label: "All", Aliases: []string{"standby"}},
	{Name: "normal", Bucket: "normal_plant", Label: "Normal"},
	{Name: "alarm", Bucket: "alarm_plant", Label: "Alarm", Aliases: []string{"warning"}},
	{Name: "offline", Bucket: "offline_plant", Label: "Offline", Aliases: []string{"fault"}},
}

func accountRules() listing.Rules {
	return listing.Rules{
		"id":           {Rule: listing.RuleNumeric, DefaultDirection: listing.Desc},
		"username":     {Rule: listing.RuleGrouped},
		"email":        {Rule: listing.RuleString},
		"phone":        {Rule: listing.RuleString},
		"company_code": {Rule: listing.RuleString},
		"password":     {Rule: listing.RuleString},
		"collector":    {Rule: listing.RuleString},
		"city_name":    {Rule: listing.RuleString},
		"updated_at":   {Rule: listing.RuleDate, DefaultDirection: listing.Desc},
		"created_at":   {Rule: listing.RuleDate, DefaultDirection: listing.Desc},
	}
}

// DefaultScreens returns the built-in screen catalogue.
func DefaultScreens() map[string]Screen {
	screens := []Screen{
		{
			Name:         "users",
			Feed:         FeedUsers,
			IDField:      "id",
			SearchFields: []string{"id", "username", "phone", "email", "company_code", "collector"},
			Rules:        accountRules(),
			DefaultSort:  listing.SortSpec{Field: "id", Direction: listing.Desc},
			PageSize:     listing.DefaultPageSize,
			Partitions:   statusPartitions,
			FacetFields:  []string{"city_name", "plant_type", "inverter_type"},
		},
		{
			Name:         "stations",
			Feed:         FeedStations,
			IDField:      "id",
			SearchFields: []string{"id", "username", "phone", "email", "company_code"},
			Rules:        accountRules(),
			DefaultSort:  listing.SortSpec{Field: "id", Direction: listing.Asc},
			PageSize:     listing.DefaultPageSize,
			Partitions:   statusPartitions,
		},
		{
			Name:         "companies",
			Feed:         FeedCompanies,
			IDField:      "id",
			SearchFields: []string{"username", "phone", "email", "company_code"},
			Rules:        accountRules(),
			DefaultSort:  listing.SortSpec{Field: "id", Direction: listing.Desc},
			PageSize:     listing.DefaultPageSize,
			Partitions:   []Partition{{Name: "all", Label: "All"}},
		},
		{
			Name:         "inverters",
			Feed:         FeedInverters,
			IDField:      "id",
			SearchFields: []string{"id", "plant_name", "collector_address", "collector_sn", "model", "status"},
			Rules: listing.Rules{
				"id":          {Rule: listing.RuleNumeric, DefaultDirection: listing.Desc},
				"plant_name":  {Rule: listing.RuleGrouped},
				"model":       {Rule: listing.RuleString},
				"status":      {Rule: listing.RuleString},
				"temperature": {Rule: listing.RuleNumeric, DefaultDirection: listing.Desc},
				"record_time": {Rule: listing.RuleDate, DefaultDirection: listing.Desc},
			},
			DefaultSort: listing.SortSpec{Field: "record_time", Direction: listing.Desc},
			PageSize:    listing.DefaultPageSize,
			Partitions:  []Partition{{Name: "all", Label: "All"}},
			FacetFields: []string{"model", "status"},
		},
		{
			Name:         "faults",
			Feed:         FeedFaults,
			IDField:      "id",
			SearchFields: []string{"id", "inverter_id", "inverter_name", "plant_id", "message_en"},
			Rules: listing.Rules{
				"id":            {Rule: listing.RuleNumeric, DefaultDirection: listing.Desc},
				"inverter_name": {Rule: listing.RuleGrouped},
				"message_en":    {Rule: listing.RuleString},
				"status":        {Rule: listing.RuleNumeric},
				"stime":         {Rule: listing.RuleDate, DefaultDirection: listing.Desc},
				"etime":         {Rule: listing.RuleDate, DefaultDirection: listing.Desc},
			},
			DefaultSort: listing.SortSpec{Field: "stime", Direction: listing.Desc},
			PageSize:    listing.DefaultPageSize,
			Partitions: []Partition{
				{Name: "all", Bucket: "-1", Label: "All"},
				{Name: "going", Bucket: "0", Label: "Ongoing", Aliases: []string{"ongoing", "active"}},
				{Name: "recovered", Bucket: "1", Label: "Recovered", Aliases: []string{"resolved"}},
			},
			FacetFields: []string{"plant_id", "inverter_id"},
		},
		{
			Name:         "user_plants",
			Feed:         FeedPlants,
			IDField:      "id",
			SearchFields: []string{"plant_no", "plant_name"},
			Rules: listing.Rules{
				"id":           {Rule: listing.RuleNumeric, DefaultDirection: listing.Desc},
				"plant_no":     {Rule: listing.RuleString},
				"plant_name":   {Rule: listing.RuleGrouped},
				"capacity":     {Rule: listing.RuleNumeric, DefaultDirection: listing.Desc},
				"eday":         {Rule: listing.RuleNumeric, DefaultDirection: listing.Desc},
				"created_at":   {Rule: listing.RuleDate, DefaultDirection: listing.Desc},
				"last_reading": {Rule: listing.RuleDate, DefaultDirection: listing.Desc},
			},
			DefaultSort: listing.SortSpec{Field: "plant_name", Direction: listing.Asc},
			PageSize:    listing.DefaultPageSize,
			Partitions:  []Partition{{Name: "all", Label: "All"}},
		},
	}
	out := make(map[string]Screen, len(screens))
	for _, s := range screens {
		out[s.Name] = s
	}
	return out
}
