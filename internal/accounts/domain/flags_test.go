package accounts

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	listing "plant-console/internal/listing/domain"
)

func TestParseFlag(t *testing.T) {
	flag, err := ParseFlag(" Daily ")
	require.NoError(t, err)
	assert.Equal(t, FlagDaily, flag)

	flag, err = ParseFlag("monthly_generation_report_flag")
	require.NoError(t, err)
	assert.Equal(t, FlagMonthly, flag)

	_, err = ParseFlag("sms")
	assert.ErrorIs(t, err, ErrUnknownFlag)
}

func TestFlagsOf(t *testing.T) {
	flags := FlagsOf(listing.Record{
		"whatsapp_notification_flag":    json.Number("1"),
		"inverter_fault_flag":           "0",
		"daily_generation_report_flag":  1.0,
		"weekly_generation_report_flag": true,
	})
	assert.Equal(t, Flags{WhatsApp: true, Daily: true, Weekly: true}, flags)
}

func TestToggle_WhatsAppOffCascades(t *testing.T) {
	flags := Flags{WhatsApp: true, Fault: false, Daily: true, Weekly: false, Monthly: false}
	next, err := flags.Toggle(FlagWhatsApp, false)
	require.NoError(t, err)
	assert.Equal(t, Flags{WhatsApp: false, Fault: true, Daily: false, Weekly: true, Monthly: true}, next)
	assert.True(t, flags.Daily, "receiver unchanged")
}

func TestToggle_WhatsAppOnKeepsReports(t *testing.T) {
	flags := Flags{Fault: true, Weekly: true}
	next, err := flags.Toggle(FlagWhatsApp, true)
	require.NoError(t, err)
	assert.Equal(t, Flags{WhatsApp: true, Fault: true, Weekly: true}, next)
}

func TestToggle_ReportFlags(t *testing.T) {
	flags := Flags{WhatsApp: true}
	next, err := flags.Toggle(FlagMonthly, true)
	require.NoError(t, err)
	assert.True(t, next.Monthly)
	assert.True(t, next.Get(FlagMonthly))

	_, err = Flags{}.Toggle(FlagDaily, true)
	assert.ErrorIs(t, err, ErrWhatsAppDisabled)

	_, err = flags.Toggle(Flag("sms"), true)
	assert.ErrorIs(t, err, ErrUnknownFlag)
}

func TestFieldsAndRaw(t *testing.T) {
	fields := Flags{WhatsApp: true, Weekly: true}.Fields()
	assert.Equal(t, 1, fields["whatsapp_notification_flag"])
	assert.Equal(t, 0, fields["daily_generation_report_flag"])
	assert.Len(t, fields, 5)

	raw := RawFlags(listing.Record{"inverter_fault_flag": "1", "username": "x"})
	assert.Len(t, raw, 5)
	assert.Equal(t, "1", raw["inverter_fault_flag"])
	assert.Nil(t, raw["whatsapp_notification_flag"])
}

func TestNormalizeCompanyCode(t *testing.T) {
	assert.Nil(t, NormalizeCompanyCode("  "))
	code := NormalizeCompanyCode(" QB-1 ")
	require.NotNil(t, code)
	assert.Equal(t, "QB-1", *code)
}
