package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"
)

// ErrDuplicateAlert is returned when an alert with the same fingerprint is already stored.
var ErrDuplicateAlert = errors.New("duplicate alert")

func (p *PostgresClient) InsertAlert(ctx context.Context, record *AlertRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	tx := p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "fingerprint"}},
		DoNothing: true,
	}).Create(record)

	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return fmt.Errorf("%w: fingerprint=%s", ErrDuplicateAlert, record.Fingerprint)
	}

	return nil
}

// RecentAlerts returns up to limit alerts, newest first.
func (p *PostgresClient) RecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	var alerts []AlertRecord
	err := p.DB.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&alerts).Error
	return alerts, err
}

func (p *PostgresClient) DeleteAlertsBefore(ctx context.Context, before time.Time) error {
	return p.DB.WithContext(ctx).
		Where("created_at < ?", before).
		Delete(&AlertRecord{}).Error
}
