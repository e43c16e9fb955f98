package debugtoggle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/signalway/internal/audit/domain"
	auditrepo "github.com/smallbiznis/signalway/internal/audit/repository"
	auditservice "github.com/smallbiznis/signalway/internal/audit/service"
	"github.com/smallbiznis/signalway/internal/clock"
	"github.com/smallbiznis/signalway/internal/debugtoggle/domain"
	detectordomain "github.com/smallbiznis/signalway/internal/detector/domain"
	signaldomain "github.com/smallbiznis/signalway/internal/signal/domain"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeRunner struct {
	calls []string
}

func (f *fakeRunner) RunDetectorPass(_ context.Context, customerID snowflake.ID, detectorType string) error {
	f.calls = append(f.calls, fmt.Sprintf("%s/%s", customerID, detectorType))
	return nil
}

func newToggleTestStore(t *testing.T) (*Store, *gorm.DB, *fakeRunner) {
	t.Helper()
	dsn := fmt.Sprintf("file:toggle_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&domain.Override{},
		&signaldomain.PaymentExpectation{},
		&signaldomain.InvoiceRecord{},
		&signaldomain.WorkspaceActivity{},
		&auditdomain.Log{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	runner := &fakeRunner{}
	audit := auditservice.New(db, auditrepo.Provide(), node, zap.NewNop())
	store := NewStore(db, runner, audit, clock.SystemClock{}, node, zap.NewNop())
	return store, db, runner
}

func TestEnableSnapshotsAndForcesState(t *testing.T) {
	store, db, runner := newToggleTestStore(t)
	ctx := context.Background()
	customerID := snowflake.ID(42)

	lastPaid := time.Now().UTC().Add(-5 * 24 * time.Hour)
	seed := signaldomain.PaymentExpectation{
		CustomerID:          customerID,
		CadenceDays:         14,
		LastPaidAt:          &lastPaid,
		ExpectedAmountCents: 9900,
		BaselineConfidence:  0.4,
		HistoryCount:        3,
	}
	if err := db.Create(&seed).Error; err != nil {
		t.Fatalf("seed expectation: %v", err)
	}

	override, err := store.Enable(ctx, domain.ToggleForceMissedPayment, customerID, "ops@example.com")
	if err != nil {
		t.Fatalf("enable: %v", err)
	}
	if !override.RowExisted {
		t.Fatal("override must record that the row existed")
	}

	var forced signaldomain.PaymentExpectation
	if err := db.Where("customer_id = ?", customerID).First(&forced).Error; err != nil {
		t.Fatalf("load forced row: %v", err)
	}
	if forced.CadenceDays != 30 {
		t.Fatalf("forced cadence = %d, want 30", forced.CadenceDays)
	}
	if forced.LastPaidAt == nil || time.Since(*forced.LastPaidAt) < 39*24*time.Hour {
		t.Fatalf("forced last_paid_at must be ~40 days back, got %v", forced.LastPaidAt)
	}

	want := fmt.Sprintf("%s/%s", customerID, detectordomain.TypeMissedExpectedPayment)
	if len(runner.calls) != 1 || runner.calls[0] != want {
		t.Fatalf("runner calls = %v, want [%s]", runner.calls, want)
	}
}

func TestEnableIsIdempotent(t *testing.T) {
	store, db, _ := newToggleTestStore(t)
	ctx := context.Background()
	customerID := snowflake.ID(42)

	// No workspace row exists, so the first enable takes the insert path
	// and stores the invented row as the forced state.
	first, err := store.Enable(ctx, domain.ToggleForceWorkspaceStale, customerID, "ops")
	if err != nil {
		t.Fatalf("first enable: %v", err)
	}
	for key := range first.Mutated {
		if strings.HasPrefix(key, "@") {
			t.Fatalf("forced state contains non-column key %q", key)
		}
	}

	second, err := store.Enable(ctx, domain.ToggleForceWorkspaceStale, customerID, "ops")
	if err != nil {
		t.Fatalf("second enable: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("re-enable must reuse the override row, got %s then %s", first.ID, second.ID)
	}
	if first.RowExisted != second.RowExisted {
		t.Fatal("re-enable must not rewrite the snapshot")
	}

	var forced signaldomain.WorkspaceActivity
	if err := db.Where("customer_id = ?", customerID).First(&forced).Error; err != nil {
		t.Fatalf("load forced row: %v", err)
	}
	if forced.TotalEdits != 42 {
		t.Fatalf("forced total_edits = %d, want 42 after re-enable", forced.TotalEdits)
	}
}

func TestDisableRestoresSnapshot(t *testing.T) {
	store, db, _ := newToggleTestStore(t)
	ctx := context.Background()
	customerID := snowflake.ID(42)

	lastPaid := time.Date(2026, 7, 28, 0, 0, 0, 0, time.UTC)
	seed := signaldomain.PaymentExpectation{
		CustomerID:          customerID,
		CadenceDays:         14,
		LastPaidAt:          &lastPaid,
		ExpectedAmountCents: 9900,
		BaselineConfidence:  0.4,
		HistoryCount:        3,
	}
	if err := db.Create(&seed).Error; err != nil {
		t.Fatalf("seed expectation: %v", err)
	}

	if _, err := store.Enable(ctx, domain.ToggleForceMissedPayment, customerID, "ops"); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if err := store.Disable(ctx, domain.ToggleForceMissedPayment, customerID, "ops"); err != nil {
		t.Fatalf("disable: %v", err)
	}

	var restored signaldomain.PaymentExpectation
	if err := db.Where("customer_id = ?", customerID).First(&restored).Error; err != nil {
		t.Fatalf("load restored row: %v", err)
	}
	if restored.CadenceDays != seed.CadenceDays {
		t.Fatalf("restored cadence = %d, want %d", restored.CadenceDays, seed.CadenceDays)
	}
	if restored.ExpectedAmountCents != seed.ExpectedAmountCents {
		t.Fatalf("restored amount = %d, want %d", restored.ExpectedAmountCents, seed.ExpectedAmountCents)
	}
	if restored.LastPaidAt == nil || !restored.LastPaidAt.Equal(lastPaid) {
		t.Fatalf("restored last_paid_at = %v, want %v", restored.LastPaidAt, lastPaid)
	}

	overrides, err := store.List(ctx, customerID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(overrides) != 0 {
		t.Fatalf("override row must be deleted, got %d", len(overrides))
	}
}

func TestDisableDeletesInventedRow(t *testing.T) {
	store, db, _ := newToggleTestStore(t)
	ctx := context.Background()
	customerID := snowflake.ID(77)

	override, err := store.Enable(ctx, domain.ToggleForceOverdueInvoice, customerID, "ops")
	if err != nil {
		t.Fatalf("enable: %v", err)
	}
	if override.RowExisted {
		t.Fatal("no invoice existed, override must record an invented row")
	}

	var count int64
	if err := db.Model(&signaldomain.InvoiceRecord{}).Where("customer_id = ?", customerID).Count(&count).Error; err != nil {
		t.Fatalf("count invoices: %v", err)
	}
	if count != 1 {
		t.Fatalf("enable must invent one invoice, got %d", count)
	}

	if err := store.Disable(ctx, domain.ToggleForceOverdueInvoice, customerID, "ops"); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if err := db.Model(&signaldomain.InvoiceRecord{}).Where("customer_id = ?", customerID).Count(&count).Error; err != nil {
		t.Fatalf("recount invoices: %v", err)
	}
	if count != 0 {
		t.Fatalf("disable must delete the invented invoice, got %d", count)
	}
}

func TestDisableWithoutOverride(t *testing.T) {
	store, _, runner := newToggleTestStore(t)
	err := store.Disable(context.Background(), domain.ToggleForceMissedPayment, snowflake.ID(1), "ops")
	if err != nil {
		t.Fatalf("disable with nothing enabled must be a no-op, got: %v", err)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("runner calls = %v, want one pass even without an override", runner.calls)
	}
}

func TestDisableTwiceIsIdempotent(t *testing.T) {
	store, _, _ := newToggleTestStore(t)
	ctx := context.Background()
	customerID := snowflake.ID(42)

	if _, err := store.Enable(ctx, domain.ToggleForceWorkspaceStale, customerID, "ops"); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if err := store.Disable(ctx, domain.ToggleForceWorkspaceStale, customerID, "ops"); err != nil {
		t.Fatalf("first disable: %v", err)
	}
	if err := store.Disable(ctx, domain.ToggleForceWorkspaceStale, customerID, "ops"); err != nil {
		t.Fatalf("second disable must be a safe no-op, got: %v", err)
	}
}

func TestEnableUnknownToggle(t *testing.T) {
	store, _, _ := newToggleTestStore(t)
	_, err := store.Enable(context.Background(), "force_rain", snowflake.ID(1), "ops")
	if !errors.Is(err, domain.ErrUnknownToggle) {
		t.Fatalf("err = %v, want %v", err, domain.ErrUnknownToggle)
	}
}
