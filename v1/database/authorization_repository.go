package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cabepi/lab-pbm-senasa/monitoring"
	"github.com/cabepi/lab-pbm-senasa/v1/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const authorizationsTable = "authorizations"

// GormAuthorizationRepository implements AuthorizationRepository with GORM (SQLite or PostgreSQL)
type GormAuthorizationRepository struct {
	db *gorm.DB
}

// NewAuthorizationRepository creates the repository and migrates its tables
func NewAuthorizationRepository(db *gorm.DB) *GormAuthorizationRepository {
	if err := db.AutoMigrate(&models.AuthorizationRecord{}, &models.AuthorizationCaller{}, &models.Prescription{}); err != nil {
		// The first query reports the broken schema; startup continues
		slog.Warn("Failed to auto-migrate authorization tables", "error", err)
	}
	return &GormAuthorizationRepository{db: db}
}

// Save inserts the bundle in one transaction. The authorization row uses
// ON CONFLICT DO NOTHING; caller and prescription rows are written only when
// the authorization row was actually inserted.
func (r *GormAuthorizationRepository) Save(ctx context.Context, bundle *models.AuthorizationBundle) (bool, error) {
	if bundle == nil || bundle.Record == nil {
		return false, fmt.Errorf("authorization record is required")
	}
	record := bundle.Record
	if err := record.Validate(); err != nil {
		return false, fmt.Errorf("invalid authorization record: %w", err)
	}

	start := time.Now()
	defer func() {
		monitoring.RecordDBLatency(ctx, authorizationsTable, "insert", time.Since(start))
	}()

	inserted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "authorization_code"}},
			DoNothing: true,
		}).Create(record)
		if result.Error != nil {
			return fmt.Errorf("failed to insert authorization: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}
		inserted = true

		if bundle.Caller != nil {
			bundle.Caller.AuthorizationCode = record.AuthorizationCode
			if err := tx.Create(bundle.Caller).Error; err != nil {
				return fmt.Errorf("failed to insert authorization caller: %w", err)
			}
		}
		if bundle.Prescription != nil {
			bundle.Prescription.AuthorizationCode = record.AuthorizationCode
			if err := tx.Create(bundle.Prescription).Error; err != nil {
				return fmt.Errorf("failed to insert prescription: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	if !inserted {
		slog.Info("Authorization already stored, save ignored",
			"authorization_code", record.AuthorizationCode,
			"transaction_id", record.TransactionID)
	}
	return inserted, nil
}

// MarkVoided applies AUTHORIZED -> VOIDED with
// UPDATE ... WHERE authorization_code = ? AND status = 'AUTHORIZED'.
// Zero affected rows means the row is missing or no longer AUTHORIZED.
func (r *GormAuthorizationRepository) MarkVoided(ctx context.Context, code, voiderEmail, reason string, at time.Time) error {
	start := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.AuthorizationRecord{}).
		Where("authorization_code = ? AND status = ?", code, models.AuthorizationStatusAuthorized).
		Updates(map[string]interface{}{
			"status":       models.AuthorizationStatusVoided,
			"voider_email": voiderEmail,
			"voided_at":    at.UTC(),
			"void_reason":  reason,
		})
	monitoring.RecordDBLatency(ctx, authorizationsTable, "void", time.Since(start))

	if result.Error != nil {
		return fmt.Errorf("failed to void authorization %s: %w", code, result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	if _, err := r.GetByCode(ctx, code); err != nil {
		return err
	}
	return fmt.Errorf("authorization %s: %w", code, ErrNotAuthorized)
}

// GetByCode returns ErrAuthorizationNotFound when no row exists
func (r *GormAuthorizationRepository) GetByCode(ctx context.Context, code string) (*models.AuthorizationRecord, error) {
	start := time.Now()
	var record models.AuthorizationRecord
	err := r.db.WithContext(ctx).Where("authorization_code = ?", code).First(&record).Error
	monitoring.RecordDBLatency(ctx, authorizationsTable, "get", time.Since(start))

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("authorization %s: %w", code, ErrAuthorizationNotFound)
		}
		return nil, fmt.Errorf("failed to retrieve authorization %s: %w", code, err)
	}
	return &record, nil
}

// List returns the newest authorizations first
func (r *GormAuthorizationRepository) List(ctx context.Context, limit int) ([]models.AuthorizationRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	start := time.Now()
	var records []models.AuthorizationRecord
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	monitoring.RecordDBLatency(ctx, authorizationsTable, "list", time.Since(start))

	if err != nil {
		return nil, fmt.Errorf("failed to list authorizations: %w", err)
	}
	if records == nil {
		records = []models.AuthorizationRecord{}
	}
	return records, nil
}

// ExistingCodes looks the codes up in one query
func (r *GormAuthorizationRepository) ExistingCodes(ctx context.Context, codes []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(codes))
	if len(codes) == 0 {
		return existing, nil
	}

	var found []string
	err := r.db.WithContext(ctx).
		Model(&models.AuthorizationRecord{}).
		Where("authorization_code IN ?", codes).
		Pluck("authorization_code", &found).Error
	if err != nil {
		return nil, fmt.Errorf("failed to look up authorization codes: %w", err)
	}

	for _, code := range found {
		existing[code] = true
	}
	return existing, nil
}
