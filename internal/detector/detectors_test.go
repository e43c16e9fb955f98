package detector

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/signalway/internal/clock"
	customerdomain "github.com/smallbiznis/signalway/internal/customer/domain"
	debugdomain "github.com/smallbiznis/signalway/internal/debugtoggle/domain"
	signaldomain "github.com/smallbiznis/signalway/internal/signal/domain"
	"github.com/smallbiznis/signalway/internal/signal/providers"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type seededSyncer struct {
	provider string
	table    string
}

func (s *seededSyncer) Provider() string    { return s.provider }
func (s *seededSyncer) MirrorTable() string { return s.table }
func (s *seededSyncer) Sync(context.Context, *gorm.DB, snowflake.ID, time.Time) error {
	return nil
}

func newDetectorTestDB(t *testing.T) (*gorm.DB, *providers.Registry) {
	t.Helper()
	dsn := fmt.Sprintf("file:detector_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&signaldomain.PaymentExpectation{},
		&signaldomain.InvoiceRecord{},
		&signaldomain.WorkspaceActivity{},
		&signaldomain.ProviderHealth{},
		&debugdomain.Override{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	registry := providers.NewRegistry(zap.NewNop(),
		&seededSyncer{provider: signaldomain.ProviderPayments, table: "payment_expectations"},
		&seededSyncer{provider: signaldomain.ProviderInvoices, table: "invoice_records"},
		&seededSyncer{provider: signaldomain.ProviderWorkspace, table: "workspace_activity"},
	)
	return db, registry
}

func defaultTestSettings() customerdomain.CustomerSettings {
	return customerdomain.CustomerSettings{
		GraceDays:           5,
		DriftThresholdPct:   20,
		LookbackDays:        90,
		LowConfidenceCutoff: 0.5,
	}
}

func TestMissedPaymentPastGrace(t *testing.T) {
	db, registry := newDetectorTestDB(t)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	det := NewMissedPaymentDetector(db, registry, clock.FixedClock{At: now}, zap.NewNop())
	customerID := snowflake.ID(42)

	lastPaid := now.Add(-40 * 24 * time.Hour)
	row := signaldomain.PaymentExpectation{
		CustomerID:          customerID,
		CadenceDays:         30,
		LastPaidAt:          &lastPaid,
		ExpectedAmountCents: 250000,
		BaselineConfidence:  0.9,
		HistoryCount:        12,
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	signal, err := det.FetchSignal(context.Background(), customerID, defaultTestSettings())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(signal.Findings) != 1 {
		t.Fatalf("findings = %d, want 1", len(signal.Findings))
	}
	finding := signal.Findings[0]
	if finding.OverdueDays != 10 {
		t.Fatalf("overdue days = %d, want 10 (40 days since payment, 30 day cadence)", finding.OverdueDays)
	}
	if finding.AmountAtRiskCents == nil || *finding.AmountAtRiskCents != 250000 {
		t.Fatalf("amount at risk = %v, want expected amount 250000", finding.AmountAtRiskCents)
	}
	if finding.EntityID != nil {
		t.Fatal("aggregate detector must not set an entity id")
	}
}

func TestMissedPaymentWithinGrace(t *testing.T) {
	db, registry := newDetectorTestDB(t)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	det := NewMissedPaymentDetector(db, registry, clock.FixedClock{At: now}, zap.NewNop())
	customerID := snowflake.ID(42)

	// 33 days since payment on a 30-day cadence: 3 days past due is
	// still inside the 5-day grace window.
	lastPaid := now.Add(-33 * 24 * time.Hour)
	row := signaldomain.PaymentExpectation{
		CustomerID:          customerID,
		CadenceDays:         30,
		LastPaidAt:          &lastPaid,
		ExpectedAmountCents: 250000,
		BaselineConfidence:  0.9,
		HistoryCount:        12,
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	signal, err := det.FetchSignal(context.Background(), customerID, defaultTestSettings())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(signal.Findings) != 0 || signal.Absent {
		t.Fatalf("signal = %+v, want healthy empty", signal)
	}
}

func TestMissedPaymentAbsentWithoutExpectation(t *testing.T) {
	db, registry := newDetectorTestDB(t)
	det := NewMissedPaymentDetector(db, registry, clock.SystemClock{}, zap.NewNop())

	signal, err := det.FetchSignal(context.Background(), snowflake.ID(42), defaultTestSettings())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !signal.Absent {
		t.Fatalf("signal = %+v, want absent without an expectation row", signal)
	}
}

func TestMissedPaymentNoBaselineWithoutHistory(t *testing.T) {
	db, registry := newDetectorTestDB(t)
	now := time.Now().UTC()
	det := NewMissedPaymentDetector(db, registry, clock.FixedClock{At: now}, zap.NewNop())
	customerID := snowflake.ID(42)

	lastPaid := now.Add(-40 * 24 * time.Hour)
	row := signaldomain.PaymentExpectation{
		CustomerID:          customerID,
		CadenceDays:         30,
		LastPaidAt:          &lastPaid,
		ExpectedAmountCents: 250000,
		HistoryCount:        0,
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	signal, err := det.FetchSignal(context.Background(), customerID, defaultTestSettings())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !signal.NoBaseline {
		t.Fatalf("signal = %+v, want no-baseline with zero history", signal)
	}
}

func TestOverdueInvoicesPerEntity(t *testing.T) {
	db, registry := newDetectorTestDB(t)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	det := NewOverdueInvoicesDetector(db, registry, clock.FixedClock{At: now}, zap.NewNop())
	customerID := snowflake.ID(42)

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	overdue1 := now.Add(-20 * 24 * time.Hour)
	overdue2 := now.Add(-8 * 24 * time.Hour)
	insideGrace := now.Add(-2 * 24 * time.Hour)
	rows := []signaldomain.InvoiceRecord{
		{ID: node.Generate(), CustomerID: customerID, InvoiceID: "INV-1", BalanceCents: 84500, DueAt: &overdue1},
		{ID: node.Generate(), CustomerID: customerID, InvoiceID: "INV-2", BalanceCents: 12000, DueAt: &overdue2},
		{ID: node.Generate(), CustomerID: customerID, InvoiceID: "INV-3", BalanceCents: 5000, DueAt: &insideGrace},
		{ID: node.Generate(), CustomerID: customerID, InvoiceID: "INV-4", BalanceCents: 0, DueAt: &overdue1},
	}
	for _, row := range rows {
		if err := db.Create(&row).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	signal, err := det.FetchSignal(context.Background(), customerID, defaultTestSettings())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(signal.Findings) != 2 {
		t.Fatalf("findings = %d, want the 2 overdue invoices with balances", len(signal.Findings))
	}
	for _, finding := range signal.Findings {
		if finding.EntityID == nil {
			t.Fatal("per-entity detector must key findings by invoice")
		}
	}
	if *signal.Findings[0].EntityID != "INV-1" || *signal.Findings[1].EntityID != "INV-2" {
		t.Fatalf("findings keyed %v, %v; want INV-1, INV-2",
			*signal.Findings[0].EntityID, *signal.Findings[1].EntityID)
	}
}

func TestWorkspaceStaleSignals(t *testing.T) {
	db, registry := newDetectorTestDB(t)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	det := NewWorkspaceStaleDetector(db, registry, clock.FixedClock{At: now}, zap.NewNop())

	stale := now.Add(-120 * 24 * time.Hour)
	fresh := now.Add(-3 * 24 * time.Hour)
	seed := []signaldomain.WorkspaceActivity{
		{CustomerID: 1, LastEditedAt: &stale, TotalEdits: 200},
		{CustomerID: 2, LastEditedAt: &fresh, TotalEdits: 300},
		{CustomerID: 3, TotalEdits: 0},
	}
	for _, row := range seed {
		if err := db.Create(&row).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	staleSignal, err := det.FetchSignal(context.Background(), 1, defaultTestSettings())
	if err != nil {
		t.Fatalf("fetch stale: %v", err)
	}
	if len(staleSignal.Findings) != 1 {
		t.Fatalf("stale customer findings = %d, want 1", len(staleSignal.Findings))
	}

	freshSignal, err := det.FetchSignal(context.Background(), 2, defaultTestSettings())
	if err != nil {
		t.Fatalf("fetch fresh: %v", err)
	}
	if len(freshSignal.Findings) != 0 {
		t.Fatalf("fresh customer findings = %d, want 0", len(freshSignal.Findings))
	}

	emptySignal, err := det.FetchSignal(context.Background(), 3, defaultTestSettings())
	if err != nil {
		t.Fatalf("fetch empty: %v", err)
	}
	if !emptySignal.NoBaseline {
		t.Fatalf("signal = %+v, want no-baseline for a never-edited workspace", emptySignal)
	}
}

func TestFetchSignalWithoutProviderConfig(t *testing.T) {
	db, _ := newDetectorTestDB(t)
	registry := providers.NewRegistry(zap.NewNop())
	det := NewMissedPaymentDetector(db, registry, clock.SystemClock{}, zap.NewNop())

	_, err := det.FetchSignal(context.Background(), snowflake.ID(42), defaultTestSettings())
	if !errors.Is(err, signaldomain.ErrMissingConfig) {
		t.Fatalf("err = %v, want %v", err, signaldomain.ErrMissingConfig)
	}
}
