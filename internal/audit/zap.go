package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"plant-console/internal/observability/metrics"
)

// ZapLogger writes audit entries to a zap logger. It is used when no database is configured.
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger constructs a zap-backed audit logger.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger.Named("audit")}
}

// Log writes an audit entry.
func (l *ZapLogger) Log(_ context.Context, entry Entry) error {
	entry = entry.complete(time.Now())
	l.logger.Info(entry.Action,
		zap.String("audit_id", entry.ID),
		zap.String("session_id", entry.SessionID),
		zap.String("actor", entry.Actor),
		zap.String("role", entry.Role),
		zap.String("resource_type", entry.ResourceType),
		zap.String("resource_id", entry.ResourceID),
		zap.ByteString("metadata", entry.Metadata),
		zap.String("payload_digest", entry.PayloadDigest),
		zap.String("ip", entry.IP),
		zap.Time("created_at", entry.CreatedAt),
	)
	return nil
}

// BestEffort wraps a logger so write failures are counted and logged instead of
// returned. A nil next drops entries.
func BestEffort(next Logger, logger *zap.Logger) Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &bestEffort{next: next, logger: logger}
}

type bestEffort struct {
	next   Logger
	logger *zap.Logger
}

func (b *bestEffort) Log(ctx context.Context, entry Entry) error {
	if b.next == nil {
		return nil
	}
	if err := b.next.Log(ctx, entry); err != nil {
		metrics.IncAuditFailure()
		b.logger.Warn("audit write failed",
			zap.String("action", entry.Action),
			zap.String("resource_id", entry.ResourceID),
			zap.Error(err),
		)
	}
	return nil
}
