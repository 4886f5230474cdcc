package accounts

import (
	"errors"
	"fmt"
	"strings"

	listing "plant-console/internal/listing/domain"
)

// Flag names one notification switch.
type Flag string

const (
	FlagWhatsApp Flag = "whatsapp_notification_flag"
	FlagFault    Flag = "inverter_fault_flag"
	FlagDaily    Flag = "daily_generation_report_flag"
	FlagWeekly   Flag = "weekly_generation_report_flag"
	FlagMonthly  Flag = "monthly_generation_report_flag"
)

// AllFlags lists the flags in the order upstream documents them.
var AllFlags = []Flag{FlagWhatsApp, FlagFault, FlagDaily, FlagWeekly, FlagMonthly}

var (
	// ErrUnknownFlag is returned for a flag name outside AllFlags.
	ErrUnknownFlag = errors.New("accounts: unknown notification flag")
	// ErrWhatsAppDisabled is returned when a report flag is changed while WhatsApp is off.
	ErrWhatsAppDisabled = errors.New("accounts: whatsapp notifications are disabled")
)

var flagAliases = map[string]Flag{
	"whatsapp": FlagWhatsApp,
	"fault":    FlagFault,
	"daily":    FlagDaily,
	"weekly":   FlagWeekly,
	"monthly":  FlagMonthly,
}

// ParseFlag accepts the record field name or its short form.
func ParseFlag(value string) (Flag, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if flag, ok := flagAliases[value]; ok {
		return flag, nil
	}
	for _, flag := range AllFlags {
		if string(flag) == value {
			return flag, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFlag, value)
}

// Flags is the notification state of one user.
type Flags struct {
	WhatsApp bool `json:"whatsapp"`
	Fault    bool `json:"fault"`
	Daily    bool `json:"daily"`
	Weekly   bool `json:"weekly"`
	Monthly  bool `json:"monthly"`
}

// FlagsOf reads the flags from a user record. Missing flags are off.
func FlagsOf(record listing.Record) Flags {
	return Flags{
		WhatsApp: on(record.Get(string(FlagWhatsApp))),
		Fault:    on(record.Get(string(FlagFault))),
		Daily:    on(record.Get(string(FlagDaily))),
		Weekly:   on(record.Get(string(FlagWeekly))),
		Monthly:  on(record.Get(string(FlagMonthly))),
	}
}

func on(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return listing.Number(v) != 0
}

// Get reports one flag.
func (f Flags) Get(flag Flag) bool {
	switch flag {
	case FlagWhatsApp:
		return f.WhatsApp
	case FlagFault:
		return f.Fault
	case FlagDaily:
		return f.Daily
	case FlagWeekly:
		return f.Weekly
	case FlagMonthly:
		return f.Monthly
	}
	return false
}

// Toggle returns the flags after switching flag to enabled.
// Turning WhatsApp off resets the reports to fault on, daily off, weekly on, monthly on.
// Report flags cannot change while WhatsApp is off.
func (f Flags) Toggle(flag Flag, enabled bool) (Flags, error) {
	next := f
	switch flag {
	case FlagWhatsApp:
		next.WhatsApp = enabled
		if !enabled {
			next.Fault = true
			next.Daily = false
			next.Weekly = true
			next.Monthly = true
		}
		return next, nil
	case FlagFault, FlagDaily, FlagWeekly, FlagMonthly:
		if !f.WhatsApp {
			return f, ErrWhatsAppDisabled
		}
	default:
		return f, fmt.Errorf("%w: %q", ErrUnknownFlag, flag)
	}
	switch flag {
	case FlagFault:
		next.Fault = enabled
	case FlagDaily:
		next.Daily = enabled
	case FlagWeekly:
		next.Weekly = enabled
	case FlagMonthly:
		next.Monthly = enabled
	}
	return next, nil
}

// Fields renders the flags as 0/1 record fields.
func (f Flags) Fields() map[string]any {
	return map[string]any{
		string(FlagWhatsApp): bit(f.WhatsApp),
		string(FlagFault):    bit(f.Fault),
		string(FlagDaily):    bit(f.Daily),
		string(FlagWeekly):   bit(f.Weekly),
		string(FlagMonthly):  bit(f.Monthly),
	}
}

func bit(b bool) int {
	if b {
		return 1
	}
	return 0
}

// RawFlags copies the flag fields of a record as they are, nil when absent.
func RawFlags(record listing.Record) map[string]any {
	out := make(map[string]any, len(AllFlags))
	for _, flag := range AllFlags {
		out[string(flag)] = record.Get(string(flag))
	}
	return out
}

// FieldCompanyCode is the record field holding a user's company code.
const FieldCompanyCode = "company_code"

// NormalizeCompanyCode trims a company code; blank means cleared (nil).
func NormalizeCompanyCode(code string) *string {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil
	}
	return &code
}
