package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cabepi/lab-pbm-senasa/monitoring"
	"github.com/cabepi/lab-pbm-senasa/v1/models"
	"gorm.io/gorm"
)

const tracesTable = "authorization_traces"

// GormTraceRepository implements TraceRepository with GORM (SQLite or PostgreSQL)
type GormTraceRepository struct {
	db *gorm.DB
}

// traceRow carries the back-filled authorization code of a listing
type traceRow struct {
	models.TraceEvent
	ResolvedAuthorizationCode *string `gorm:"column:resolved_authorization_code"`
}

// NewTraceRepository creates the repository and migrates the traces table
func NewTraceRepository(db *gorm.DB) *GormTraceRepository {
	if err := db.AutoMigrate(&models.TraceEvent{}); err != nil {
		slog.Warn("Failed to auto-migrate authorization_traces table", "error", err)
	}
	return &GormTraceRepository{db: db}
}

// Create appends one event
func (r *GormTraceRepository) Create(ctx context.Context, event *models.TraceEvent) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid trace event: %w", err)
	}

	start := time.Now()
	err := r.db.WithContext(ctx).Create(event).Error
	monitoring.RecordDBLatency(ctx, tracesTable, "insert", time.Since(start))

	if err != nil {
		return fmt.Errorf("failed to create trace event: %w", err)
	}
	return nil
}

// resolvedCodeColumn back-fills authorization_code from at most one
// authorization of the same transaction, so a listing never repeats an event.
const resolvedCodeColumn = `COALESCE(t.authorization_code, (
	SELECT a.authorization_code FROM authorizations a
	WHERE a.transaction_id = t.transaction_id
	ORDER BY a.created_at ASC LIMIT 1
)) AS resolved_authorization_code`

// List returns the newest events with authorization_code back-filled
func (r *GormTraceRepository) List(ctx context.Context, limit int) ([]models.TraceEvent, error) {
	if limit <= 0 {
		limit = 500
	}

	start := time.Now()
	var rows []traceRow
	err := r.db.WithContext(ctx).
		Table("authorization_traces AS t").
		Select("t.*, " + resolvedCodeColumn).
		Order("t.created_at DESC").
		Limit(limit).
		Scan(&rows).Error
	monitoring.RecordDBLatency(ctx, tracesTable, "list", time.Since(start))

	if err != nil {
		return nil, fmt.Errorf("failed to list trace events: %w", err)
	}

	events := make([]models.TraceEvent, 0, len(rows))
	for _, row := range rows {
		event := row.TraceEvent
		if event.AuthorizationCode == nil && row.ResolvedAuthorizationCode != nil {
			event.AuthorizationCode = row.ResolvedAuthorizationCode
		}
		events = append(events, event)
	}
	return events, nil
}

// ListByTransaction returns the timeline of one transaction
func (r *GormTraceRepository) ListByTransaction(ctx context.Context, transactionID string) ([]models.TraceEvent, error) {
	start := time.Now()
	var events []models.TraceEvent
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("created_at ASC").
		Find(&events).Error
	monitoring.RecordDBLatency(ctx, tracesTable, "timeline", time.Since(start))

	if err != nil {
		return nil, fmt.Errorf("failed to retrieve trace events for transaction %s: %w", transactionID, err)
	}
	if events == nil {
		events = []models.TraceEvent{}
	}
	return events, nil
}

// ExistsForTransaction reports whether any trace event or authorization
// already carries the transaction id
func (r *GormTraceRepository) ExistsForTransaction(ctx context.Context, transactionID string) (bool, error) {
	start := time.Now()
	defer func() {
		monitoring.RecordDBLatency(ctx, tracesTable, "exists", time.Since(start))
	}()

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.TraceEvent{}).
		Where("transaction_id = ?", transactionID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check trace history of %s: %w", transactionID, err)
	}
	if count > 0 {
		return true, nil
	}

	if err := r.db.WithContext(ctx).Model(&models.AuthorizationRecord{}).
		Where("transaction_id = ?", transactionID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check authorizations of %s: %w", transactionID, err)
	}
	return count > 0, nil
}

// ListCommittedSince feeds reconciliation
func (r *GormTraceRepository) ListCommittedSince(ctx context.Context, since time.Time) ([]models.TraceEvent, error) {
	var events []models.TraceEvent
	err := r.db.WithContext(ctx).
		Where("action_type = ? AND response_code = ?", models.ActionAuthorization, models.SuccessErrorNumber).
		Where("authorization_code IS NOT NULL AND authorization_code <> ''").
		Where("created_at >= ?", since.UTC()).
		Order("created_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list committed authorization traces: %w", err)
	}
	return events, nil
}
