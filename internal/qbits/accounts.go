package qbits

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// ErrNoTokenReturned is returned when /login succeeds without a token in any known place.
var ErrNoTokenReturned = errors.New("qbits: login response carried no token")

// Session is the outcome of an upstream login.
type Session struct {
	Token string
	Role  string
	Email string
}

// Login authenticates an operator against upstream.
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Session{}, errors.New("qbits: email and password required")
	}
	payload, err := c.post(ctx, "login", "", "/login", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return Session{}, err
	}
	token := firstString(payload, []string{"access_token", "token", "data.access_token", "data.token"})
	if token == "" {
		return Session{}, ErrNoTokenReturned
	}
	out := Session{
		Token: token,
		Role:  firstString(payload, []string{"user.role", "data.user.role", "role", "data.role"}),
		Email: firstString(payload, []string{"user.email", "data.user.email"}),
	}
	if out.Email == "" {
		out.Email = email
	}
	return out, nil
}

// NotificationFlags are the per-user WhatsApp notification switches.
type NotificationFlags struct {
	WhatsApp bool
	Fault    bool
	Daily    bool
	Weekly   bool
	Monthly  bool
}

// Flag field names as stored on user records.
const (
	FieldWhatsApp = "whatsapp_notification_flag"
	FieldFault    = "inverter_fault_flag"
	FieldDaily    = "daily_generation_report_flag"
	FieldWeekly   = "weekly_generation_report_flag"
	FieldMonthly  = "monthly_generation_report_flag"
)

// Fields renders the flags as the 0/1 record fields upstream expects.
func (f NotificationFlags) Fields() map[string]any {
	return map[string]any{
		FieldWhatsApp: bit(f.WhatsApp),
		FieldFault:    bit(f.Fault),
		FieldDaily:    bit(f.Daily),
		FieldWeekly:   bit(f.Weekly),
		FieldMonthly:  bit(f.Monthly),
	}
}

func bit(b bool) int {
	if b {
		return 1
	}
	return 0
}

// userID sends numeric ids as JSON numbers and anything else as a string.
func userID(id string) any {
	id = strings.TrimSpace(id)
	if _, err := strconv.ParseInt(id, 10, 64); err == nil {
		return json.Number(id)
	}
	return id
}

// UpdateNotificationFlags stores a user's notification flags.
func (c *Client) UpdateNotificationFlags(ctx context.Context, token, id string, flags NotificationFlags) error {
	if token == "" {
		return ErrNoToken
	}
	if strings.TrimSpace(id) == "" {
		return errors.New("qbits: empty user id")
	}
	body := flags.Fields()
	body["id"] = userID(id)
	_, err := c.post(ctx, "notification_update", token, "/client/whatsapp-notification-update", body)
	return err
}

// SetCompanyCode sets a user's company code; nil clears it.
func (c *Client) SetCompanyCode(ctx context.Context, token, id string, code *string) error {
	if token == "" {
		return ErrNoToken
	}
	if strings.TrimSpace(id) == "" {
		return errors.New("qbits: empty user id")
	}
	body := map[string]any{"id": userID(id), "company_code": nil}
	if code != nil {
		body["company_code"] = *code
	}
	_, err := c.post(ctx, "set_company_code", token, "/client/set-company-code", body)
	return err
}
