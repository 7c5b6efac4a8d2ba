package watcher

import (
	"context"

	"odinwatch/internal/odin/dispatch"
	"odinwatch/internal/odin/processor"
	"odinwatch/pkg/storage/postgres"
)

type alertInserter interface {
	InsertAlert(ctx context.Context, record *postgres.AlertRecord) error
}

// alertJournal records processor alerts as postgres rows.
type alertJournal struct {
	db      alertInserter
	tokenID string
}

func (j *alertJournal) RecordAlert(ctx context.Context, a processor.Alert, res dispatch.Result) error {
	return j.db.InsertAlert(ctx, toAlertRecord(j.tokenID, a, res))
}

func toAlertRecord(tokenID string, a processor.Alert, res dispatch.Result) *postgres.AlertRecord {
	return &postgres.AlertRecord{
		ID:             a.ID,
		Fingerprint:    string(a.Fingerprint),
		TradeID:        string(a.Trade.ID),
		TokenID:        tokenID,
		Trader:         a.Trade.User,
		TraderName:     a.Trade.TraderName(),
		NativePrice:    a.Trade.Price,
		NativeAmount:   a.Trade.AmountToken,
		ReferencePrice: a.ReferencePrice,
		FiatTotal:      a.FiatTotal.Round(2),
		Attempted:      res.Attempted,
		Delivered:      res.Delivered,
		Failed:         res.Failed,
		Removed:        res.Removed,
	}
}
