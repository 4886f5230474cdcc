package export

import (
	"strings"
	"time"

	listing "plant-console/internal/listing/domain"
)

// Column is one exported column.
type Column struct {
	Header string
	Width  float64
	Value  func(listing.Record) string
}

const displayTime = "02/01/2006 15:04:05"

// FaultColumns are the columns of a fault export, in order.
var FaultColumns = []Column{
	{Header: "Status", Width: 22, Value: faultStatus},
	{Header: "Station Name", Width: 45, Value: first("plant_name", "station_name", "plant_id")},
	{Header: "Device", Width: 40, Value: faultDevice},
	{Header: "Serial", Width: 35, Value: first("inverter_sn", "serial_number", "sn", "inverter_id")},
	{Header: "Fault Info", Width: 70, Value: faultMessage},
	{Header: "Start", Width: 32, Value: timeOf("stime")},
	{Header: "End", Width: 32, Value: timeOf("etime")},
}

// StationColumns are the columns of a station export, in order. Passwords are never exported.
var StationColumns = []Column{
	{Header: "ID", Value: first("id")},
	{Header: "Code", Value: first("company_code", "qbits_company_code")},
	{Header: "Username", Value: first("username")},
	{Header: "Phone", Value: first("phone")},
	{Header: "Email", Value: first("email")},
	{Header: "Created At", Value: timeOf("created_at")},
	{Header: "Updated At", Value: timeOf("updated_at")},
}

func first(fields ...string) func(listing.Record) string {
	return func(r listing.Record) string {
		for _, field := range fields {
			if v := strings.TrimSpace(r.Text(field)); v != "" {
				return v
			}
		}
		return "N/A"
	}
}

func timeOf(field string) func(listing.Record) string {
	return func(r listing.Record) string {
		return formatTime(r.Get(field))
	}
}

func formatTime(v any) string {
	if listing.Text(v) == "" {
		return "N/A"
	}
	ms, ok := listing.ParseMillis(v)
	if !ok {
		return "Invalid Date"
	}
	return time.UnixMilli(ms).UTC().Format(displayTime)
}

func faultStatus(r listing.Record) string {
	switch r.Text("status") {
	case "1":
		return "Recovered"
	case "0":
		return "Fault"
	default:
		return "Unknown"
	}
}

func faultMessage(r listing.Record) string {
	switch v := r.Get("message_en").(type) {
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s := strings.TrimSpace(listing.Text(item)); s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return "No message"
}

var (
	topModel     = first("model")
	nestedModel  = []string{"model", "inverter_model", "model_name"}
	fallbackName = first("inverter_model", "inverterModel", "device_model", "model_name", "inverter_name", "inverter_id")
)

func faultDevice(r listing.Record) string {
	if v := topModel(r); v != "N/A" {
		return v
	}
	if inv, ok := r.Get("inverter").(map[string]any); ok {
		nested := listing.Record(inv)
		for _, field := range nestedModel {
			if v := strings.TrimSpace(nested.Text(field)); v != "" {
				return v
			}
		}
	}
	return fallbackName(r)
}

// Cells renders records through columns.
func Cells(records []listing.Record, columns []Column) [][]string {
	out := make([][]string, len(records))
	for i, r := range records {
		row := make([]string, len(columns))
		for j, col := range columns {
			row[j] = col.Value(r)
		}
		out[i] = row
	}
	return out
}
