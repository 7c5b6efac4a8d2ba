package postgres

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AlertRecord is one emitted alert and its delivery outcome.
type AlertRecord struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	// unique index
	Fingerprint string `gorm:"type:text;not null;index:idx_alert_fingerprint,unique"`

	TradeID    string `gorm:"type:text;not null;index:idx_alert_trade_id"`
	TokenID    string `gorm:"type:varchar(32);not null"`
	Trader     string `gorm:"type:text;not null"`
	TraderName string `gorm:"type:text;not null"`

	NativePrice    decimal.Decimal `gorm:"type:numeric;not null"`
	NativeAmount   decimal.Decimal `gorm:"type:numeric;not null"`
	ReferencePrice decimal.Decimal `gorm:"type:numeric;not null"`
	FiatTotal      decimal.Decimal `gorm:"type:numeric;not null"`

	Attempted int `gorm:"not null"`
	Delivered int `gorm:"not null"`
	Failed    int `gorm:"not null"`
	Removed   int `gorm:"not null"`

	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_alert_created_at"`
}

// TableName overrides the default table name for GORM.
func (AlertRecord) TableName() string {
	return "alert_record"
}
