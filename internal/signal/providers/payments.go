package providers

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	signaldomain "github.com/smallbiznis/signalway/internal/signal/domain"
	"gorm.io/gorm"
)

// PaymentsSyncer mirrors the payment provider's cadence expectation record.
type PaymentsSyncer struct {
	client *client
}

func NewPaymentsSyncer(baseURL, token string, timeout time.Duration) (*PaymentsSyncer, error) {
	c, err := newClient(signaldomain.ProviderPayments, baseURL, token, timeout)
	if err != nil {
		return nil, err
	}
	return &PaymentsSyncer{client: c}, nil
}

func (s *PaymentsSyncer) Provider() string { return signaldomain.ProviderPayments }

func (s *PaymentsSyncer) MirrorTable() string {
	return signaldomain.PaymentExpectation{}.TableName()
}

type paymentExpectationPayload struct {
	CadenceDays         int        `json:"cadence_days"`
	LastPaidAt          *time.Time `json:"last_paid_at"`
	ExpectedAmountCents int64      `json:"expected_amount_cents"`
	BaselineConfidence  float64    `json:"baseline_confidence"`
	HistoryCount        int        `json:"history_count"`
}

func (s *PaymentsSyncer) Sync(ctx context.Context, db *gorm.DB, customerID snowflake.ID, now time.Time) error {
	var payload paymentExpectationPayload
	err := s.client.getJSON(ctx, "/customers/"+customerID.String()+"/expectation", &payload)
	if err != nil {
		if errors.Is(err, errNotFound) {
			// No expectation configured upstream: drop any stale mirror row.
			return db.WithContext(ctx).
				Where("customer_id = ?", customerID).
				Delete(&signaldomain.PaymentExpectation{}).Error
		}
		return err
	}

	values := map[string]any{
		"cadence_days":          payload.CadenceDays,
		"last_paid_at":          payload.LastPaidAt,
		"expected_amount_cents": payload.ExpectedAmountCents,
		"baseline_confidence":   payload.BaselineConfidence,
		"history_count":         payload.HistoryCount,
		"updated_at":            now,
	}
	result := db.WithContext(ctx).Model(&signaldomain.PaymentExpectation{}).
		Where("customer_id = ?", customerID).
		Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return db.WithContext(ctx).Create(&signaldomain.PaymentExpectation{
			CustomerID:          customerID,
			CadenceDays:         payload.CadenceDays,
			LastPaidAt:          payload.LastPaidAt,
			ExpectedAmountCents: payload.ExpectedAmountCents,
			BaselineConfidence:  payload.BaselineConfidence,
			HistoryCount:        payload.HistoryCount,
			UpdatedAt:           now,
		}).Error
	}
	return nil
}
