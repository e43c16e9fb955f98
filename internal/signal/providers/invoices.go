package providers

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	signaldomain "github.com/smallbiznis/signalway/internal/signal/domain"
	"gorm.io/gorm"
)

// InvoicesSyncer mirrors the accounting provider's open invoice balances.
type InvoicesSyncer struct {
	client *client
	genID  func() snowflake.ID
}

func NewInvoicesSyncer(baseURL, token string, timeout time.Duration) (*InvoicesSyncer, error) {
	c, err := newClient(signaldomain.ProviderInvoices, baseURL, token, timeout)
	if err != nil {
		return nil, err
	}
	node, err := snowflake.NewNode(2)
	if err != nil {
		return nil, err
	}
	return &InvoicesSyncer{client: c, genID: node.Generate}, nil
}

func (s *InvoicesSyncer) Provider() string { return signaldomain.ProviderInvoices }

func (s *InvoicesSyncer) MirrorTable() string {
	return signaldomain.InvoiceRecord{}.TableName()
}

type invoicePayload struct {
	InvoiceID    string     `json:"invoice_id"`
	BalanceCents int64      `json:"balance_cents"`
	DueAt        *time.Time `json:"due_at"`
	IssuedAt     *time.Time `json:"issued_at"`
}

// Sync replaces the customer's invoice mirror with the upstream truth in
// one transaction so readers never observe a half-written set.
func (s *InvoicesSyncer) Sync(ctx context.Context, db *gorm.DB, customerID snowflake.ID, now time.Time) error {
	var payload struct {
		Invoices []invoicePayload `json:"invoices"`
	}
	if err := s.client.getJSON(ctx, "/customers/"+customerID.String()+"/invoices?status=open", &payload); err != nil {
		return err
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).
			Where("customer_id = ?", customerID).
			Delete(&signaldomain.InvoiceRecord{}).Error; err != nil {
			return err
		}
		for _, invoice := range payload.Invoices {
			record := signaldomain.InvoiceRecord{
				ID:           s.genID(),
				CustomerID:   customerID,
				InvoiceID:    invoice.InvoiceID,
				BalanceCents: invoice.BalanceCents,
				DueAt:        invoice.DueAt,
				IssuedAt:     invoice.IssuedAt,
				UpdatedAt:    now,
			}
			if err := tx.WithContext(ctx).Create(&record).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
