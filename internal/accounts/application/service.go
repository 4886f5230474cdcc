package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	accounts "plant-console/internal/accounts/domain"
	"plant-console/internal/audit"
	listingapp "plant-console/internal/listing/application"
	listing "plant-console/internal/listing/domain"
	"plant-console/internal/observability/metrics"
	"plant-console/internal/qbits"
)

var (
	// ErrUserNotLoaded is returned when the user is not in any of the caller's views.
	ErrUserNotLoaded = errors.New("accounts: user not loaded in any view")
	// ErrEmptyUserID is returned for a blank user id.
	ErrEmptyUserID = errors.New("accounts: empty user id")
)

// clientFeeds are the screens whose records are upstream client accounts.
var clientFeeds = []listingapp.Feed{listingapp.FeedUsers, listingapp.FeedCompanies, listingapp.FeedStations}

// Upstream is the part of the qbits client the account writes use.
type Upstream interface {
	UpdateNotificationFlags(ctx context.Context, token, id string, flags qbits.NotificationFlags) error
	SetCompanyCode(ctx context.Context, token, id string, code *string) error
	RunInverterCommand(ctx context.Context, token string) error
}

// Views is the part of the view service the account writes read and patch.
type Views interface {
	Lookup(sessionID string, feeds []listingapp.Feed, id string) (listing.Record, bool)
	PatchRecord(feeds []listingapp.Feed, id string, fields map[string]any) int
}

// Actor identifies who performs a write.
type Actor struct {
	SessionID string
	Token     string
	Subject   string
	Role      string
	IP        string
	UserAgent string
}

// Service performs operator writes against upstream and keeps views in step.
type Service struct {
	upstream Upstream
	views    Views
	audit    audit.Logger
	logger   *zap.Logger
}

// NewService wires the account service. A nil audit logger drops entries.
func NewService(upstream Upstream, views Views, auditLogger audit.Logger, logger *zap.Logger) (*Service, error) {
	if upstream == nil {
		return nil, errors.New("accounts: nil upstream")
	}
	if views == nil {
		return nil, errors.New("accounts: nil views")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		upstream: upstream,
		views:    views,
		audit:    audit.BestEffort(auditLogger, logger),
		logger:   logger,
	}, nil
}

// ToggleFlag switches one notification flag of a user. Views are patched before
// the upstream call and rolled back when it fails.
func (s *Service) ToggleFlag(ctx context.Context, actor Actor, userID, flagName string, enabled bool) (accounts.Flags, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return accounts.Flags{}, ErrEmptyUserID
	}
	flag, err := accounts.ParseFlag(flagName)
	if err != nil {
		return accounts.Flags{}, err
	}
	record, ok := s.views.Lookup(actor.SessionID, clientFeeds, userID)
	if !ok {
		return accounts.Flags{}, fmt.Errorf("%w: %s", ErrUserNotLoaded, userID)
	}

	current := accounts.FlagsOf(record)
	next, err := current.Toggle(flag, enabled)
	if err != nil {
		return current, err
	}
	previous := accounts.RawFlags(record)
	s.views.PatchRecord(clientFeeds, userID, next.Fields())

	err = s.upstream.UpdateNotificationFlags(ctx, actor.Token, userID, qbits.NotificationFlags{
		WhatsApp: next.WhatsApp,
		Fault:    next.Fault,
		Daily:    next.Daily,
		Weekly:   next.Weekly,
		Monthly:  next.Monthly,
	})
	if err != nil {
		s.views.PatchRecord(clientFeeds, userID, previous)
		metrics.IncAccountWrite("notification_flag", metrics.ResultError)
		s.logger.Warn("notification flag update failed, rolled back",
			zap.String("user_id", userID),
			zap.String("flag", string(flag)),
			zap.Error(err),
		)
		return current, fmt.Errorf("accounts: update flags of %s: %w", userID, err)
	}

	metrics.IncAccountWrite("notification_flag", metrics.ResultSuccess)
	s.record(ctx, actor, audit.ActionNotificationFlag, userID, map[string]any{
		"flag":    string(flag),
		"enabled": enabled,
		"flags":   next,
	})
	return next, nil
}

// SetCompanyCode assigns a company code to a user; a blank code clears it.
func (s *Service) SetCompanyCode(ctx context.Context, actor Actor, userID, code string) (*string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	normalized := accounts.NormalizeCompanyCode(code)
	if err := s.upstream.SetCompanyCode(ctx, actor.Token, userID, normalized); err != nil {
		metrics.IncAccountWrite("company_code", metrics.ResultError)
		return nil, fmt.Errorf("accounts: set company code of %s: %w", userID, err)
	}

	var value any
	if normalized != nil {
		value = *normalized
	}
	s.views.PatchRecord(clientFeeds, userID, map[string]any{accounts.FieldCompanyCode: value})
	metrics.IncAccountWrite("company_code", metrics.ResultSuccess)
	s.record(ctx, actor, audit.ActionCompanyCode, userID, map[string]any{"company_code": value})
	return normalized, nil
}

// SyncInverters asks upstream to poll every inverter now.
func (s *Service) SyncInverters(ctx context.Context, actor Actor) error {
	if err := s.upstream.RunInverterCommand(ctx, actor.Token); err != nil {
		metrics.IncAccountWrite("inverter_sync", metrics.ResultError)
		return fmt.Errorf("accounts: run inverter command: %w", err)
	}
	metrics.IncAccountWrite("inverter_sync", metrics.ResultSuccess)
	s.record(ctx, actor, audit.ActionInverterSync, "", nil)
	return nil
}

func (s *Service) record(ctx context.Context, actor Actor, action, userID string, metadata map[string]any) {
	entry := audit.Entry{
		SessionID:  actor.SessionID,
		Actor:      actor.Subject,
		Role:       actor.Role,
		Action:     action,
		ResourceID: userID,
		Metadata:   audit.Metadata(metadata),
		IP:         actor.IP,
		UserAgent:  actor.UserAgent,
		CreatedAt:  time.Now().UTC(),
	}
	if userID != "" {
		entry.ResourceType = "user"
	}
	_ = s.audit.Log(ctx, entry)
}
