package export

import (
	"errors"
	"fmt"
	"strings"
	"time"

	listing "plant-console/internal/listing/domain"
)

// ScopeKind selects which faults an export covers.
type ScopeKind string

const (
	ScopeAll     ScopeKind = "all"
	ScopeDate    ScopeKind = "date"
	ScopeStation ScopeKind = "station"
)

// ErrInvalidScope is returned for an unusable export scope.
var ErrInvalidScope = errors.New("export: invalid scope")

const dateLayout = "2006-01-02"

// Scope is a parsed fault export scope. For date scopes To is exclusive.
type Scope struct {
	Kind    ScopeKind
	From    time.Time
	To      time.Time
	PlantID string
}

// ParseScope validates the export query. from and to are YYYY-MM-DD and inclusive.
func ParseScope(kind, from, to, plantID string) (Scope, error) {
	switch ScopeKind(strings.ToLower(strings.TrimSpace(kind))) {
	case "", ScopeAll:
		return Scope{Kind: ScopeAll}, nil
	case ScopeStation:
		plantID = strings.TrimSpace(plantID)
		if plantID == "" {
			return Scope{}, fmt.Errorf("%w: station scope needs plant_id", ErrInvalidScope)
		}
		return Scope{Kind: ScopeStation, PlantID: plantID}, nil
	case ScopeDate:
		scope := Scope{Kind: ScopeDate}
		if strings.TrimSpace(from) == "" && strings.TrimSpace(to) == "" {
			return Scope{}, fmt.Errorf("%w: date scope needs from or to", ErrInvalidScope)
		}
		if from = strings.TrimSpace(from); from != "" {
			t, err := time.Parse(dateLayout, from)
			if err != nil {
				return Scope{}, fmt.Errorf("%w: from %q", ErrInvalidScope, from)
			}
			scope.From = t
		}
		if to = strings.TrimSpace(to); to != "" {
			t, err := time.Parse(dateLayout, to)
			if err != nil {
				return Scope{}, fmt.Errorf("%w: to %q", ErrInvalidScope, to)
			}
			scope.To = t.AddDate(0, 0, 1)
		}
		if !scope.From.IsZero() && !scope.To.IsZero() && !scope.From.Before(scope.To) {
			return Scope{}, fmt.Errorf("%w: from after to", ErrInvalidScope)
		}
		return scope, nil
	default:
		return Scope{}, fmt.Errorf("%w: kind %q", ErrInvalidScope, kind)
	}
}

// Apply keeps the records inside the scope. Date scopes match on fault start;
// faults without a start time fall outside them.
func (s Scope) Apply(records []listing.Record) []listing.Record {
	switch s.Kind {
	case ScopeStation:
		out := make([]listing.Record, 0, len(records))
		for _, r := range records {
			if r.Text("plant_id") == s.PlantID {
				out = append(out, r)
			}
		}
		return out
	case ScopeDate:
		from, to := s.From.UnixMilli(), s.To.UnixMilli()
		out := make([]listing.Record, 0, len(records))
		for _, r := range records {
			ms, ok := listing.ParseMillis(r.Get("stime"))
			if !ok {
				continue
			}
			if !s.From.IsZero() && ms < from {
				continue
			}
			if !s.To.IsZero() && ms >= to {
				continue
			}
			out = append(out, r)
		}
		return out
	default:
		return records
	}
}

// Title describes the scope in export headers.
func (s Scope) Title() string {
	switch s.Kind {
	case ScopeStation:
		return "Fault Export - Station " + s.PlantID
	case ScopeDate:
		from, to := "...", "..."
		if !s.From.IsZero() {
			from = s.From.Format(dateLayout)
		}
		if !s.To.IsZero() {
			to = s.To.AddDate(0, 0, -1).Format(dateLayout)
		}
		return fmt.Sprintf("Fault Export - %s to %s", from, to)
	default:
		return "Fault Export - All"
	}
}
