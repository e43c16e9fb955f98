package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	alertdomain "github.com/smallbiznis/signalway/internal/alert/domain"
	alertrepo "github.com/smallbiznis/signalway/internal/alert/repository"
	auditdomain "github.com/smallbiznis/signalway/internal/audit/domain"
	auditrepo "github.com/smallbiznis/signalway/internal/audit/repository"
	auditservice "github.com/smallbiznis/signalway/internal/audit/service"
	"github.com/smallbiznis/signalway/internal/clock"
	"github.com/smallbiznis/signalway/internal/config"
	customerdomain "github.com/smallbiznis/signalway/internal/customer/domain"
	customerrepo "github.com/smallbiznis/signalway/internal/customer/repository"
	"github.com/smallbiznis/signalway/internal/debugtoggle"
	debugdomain "github.com/smallbiznis/signalway/internal/debugtoggle/domain"
	"github.com/smallbiznis/signalway/internal/detector"
	detectordomain "github.com/smallbiznis/signalway/internal/detector/domain"
	"github.com/smallbiznis/signalway/internal/events"
	"github.com/smallbiznis/signalway/internal/reconcile"
	"github.com/smallbiznis/signalway/internal/scheduler"
	signaldomain "github.com/smallbiznis/signalway/internal/signal/domain"
	"github.com/smallbiznis/signalway/internal/signal/providers"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testAPIKey = "test-key-1234"

type noopSyncer struct {
	provider string
	table    string
}

func (n *noopSyncer) Provider() string    { return n.provider }
func (n *noopSyncer) MirrorTable() string { return n.table }
func (n *noopSyncer) Sync(context.Context, *gorm.DB, snowflake.ID, time.Time) error {
	return nil
}

type serverFixture struct {
	engine *gin.Engine
	db     *gorm.DB
	node   *snowflake.Node
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&alertdomain.Alert{},
		&customerdomain.CustomerState{},
		&customerdomain.CustomerSettings{},
		&signaldomain.PaymentExpectation{},
		&signaldomain.InvoiceRecord{},
		&signaldomain.WorkspaceActivity{},
		&signaldomain.ProviderHealth{},
		&debugdomain.Override{},
		&scheduler.PassClaim{},
		&events.Event{},
		&auditdomain.Log{},
		&APIKey{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	key := APIKey{ID: node.Generate(), Name: "test", KeyHash: HashAPIKey(testAPIKey)}
	if err := db.Create(&key).Error; err != nil {
		t.Fatalf("seed api key: %v", err)
	}

	log := zap.NewNop()
	clk := clock.SystemClock{}
	registry := providers.NewRegistry(log,
		&noopSyncer{provider: signaldomain.ProviderPayments, table: "payment_expectations"},
		&noopSyncer{provider: signaldomain.ProviderInvoices, table: "invoice_records"},
		&noopSyncer{provider: signaldomain.ProviderWorkspace, table: "workspace_activity"},
	)
	set := detector.NewSet(
		detector.NewMissedPaymentDetector(db, registry, clk, log),
		detector.NewOverdueInvoicesDetector(db, registry, clk, log),
		detector.NewWorkspaceStaleDetector(db, registry, clk, log),
	)
	alerts := alertrepo.Provide()
	customers := customerrepo.Provide()
	outbox := events.NewOutbox(node)
	engine := reconcile.NewEngine(db, alerts, outbox, node, log)
	cfg := config.Config{Scheduler: config.SchedulerConfig{Concurrency: 1, ClaimTTL: "30m"}}
	sched := scheduler.New(db, set, engine, customers, alerts, nil, clk, node, cfg, log)
	audit := auditservice.New(db, auditrepo.Provide(), node, zap.NewNop())
	toggles := debugtoggle.NewStore(db, sched, audit, clk, node, log)

	srv := New(Params{
		Config:    cfg,
		DB:        db,
		Log:       log,
		Alerts:    alerts,
		Customers: customers,
		Scheduler: sched,
		Toggles:   toggles,
		Audit:     audit,
		Outbox:    outbox,
		Detectors: set,
		Registry:  registry,
		Clock:     clk,
		Node:      node,
	})
	return &serverFixture{engine: srv.Engine(), db: db, node: node}
}

func (f *serverFixture) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		payload = bytes.NewBuffer(raw)
	} else {
		payload = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("X-API-Key", testAPIKey)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	f.engine.ServeHTTP(recorder, req)
	return recorder
}

func TestAuthRequired(t *testing.T) {
	f := newServerFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/alerts", nil)
	recorder := httptest.NewRecorder()
	f.engine.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", recorder.Code)
	}
}

func TestHealthzIsOpen(t *testing.T) {
	f := newServerFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	recorder := httptest.NewRecorder()
	f.engine.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
}

func TestListAlertsComputesUrgency(t *testing.T) {
	f := newServerFixture(t)

	amount := int64(250000)
	expectedAt := time.Now().UTC().Add(-10 * 24 * time.Hour)
	confidence := alertdomain.ConfidenceHigh
	alert := alertdomain.Alert{
		ID:                f.node.Generate(),
		CustomerID:        42,
		Type:              detectordomain.TypeMissedExpectedPayment,
		SourceSystem:      signaldomain.ProviderPayments,
		Status:            alertdomain.StatusOpen,
		Message:           "expected payment is 10 days past its cadence date",
		Confidence:        &confidence,
		AmountAtRiskCents: &amount,
		ExpectedAt:        &expectedAt,
		Context:           datatypes.JSONMap{"baseline_confidence": 0.9},
		CreatedAt:         time.Now().UTC(),
		UpdatedAt:         time.Now().UTC(),
	}
	if err := f.db.Create(&alert).Error; err != nil {
		t.Fatalf("seed alert: %v", err)
	}

	recorder := f.request(t, http.MethodGet, "/v1/alerts?customer_id=42", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}

	var response struct {
		Alerts []struct {
			UrgencyScore int    `json:"urgency_score"`
			Severity     string `json:"severity"`
		} `json:"alerts"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(response.Alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(response.Alerts))
	}
	view := response.Alerts[0]
	if view.UrgencyScore <= 0 || view.UrgencyScore > 100 {
		t.Fatalf("urgency score = %d, want within (0,100]", view.UrgencyScore)
	}
	// Critical category, high confidence, large amount, 10 days overdue.
	if view.Severity != "critical" && view.Severity != "high" {
		t.Fatalf("severity = %s, want critical or high", view.Severity)
	}
}

func TestDismissAlert(t *testing.T) {
	f := newServerFixture(t)

	alert := alertdomain.Alert{
		ID:           f.node.Generate(),
		CustomerID:   42,
		Type:         detectordomain.TypeWorkspaceStale,
		SourceSystem: signaldomain.ProviderWorkspace,
		Status:       alertdomain.StatusOpen,
		Message:      "workspace has had no edits for 120 days",
		Context:      datatypes.JSONMap{},
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if err := f.db.Create(&alert).Error; err != nil {
		t.Fatalf("seed alert: %v", err)
	}

	path := fmt.Sprintf("/v1/alerts/%s/dismiss", alert.ID)
	recorder := f.request(t, http.MethodPost, path, map[string]string{"reason": "known seasonal gap"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}

	var reloaded alertdomain.Alert
	if err := f.db.Where("id = ?", alert.ID).First(&reloaded).Error; err != nil {
		t.Fatalf("reload alert: %v", err)
	}
	if reloaded.Status != alertdomain.StatusClosed {
		t.Fatalf("status = %s, want closed for a manual dismissal", reloaded.Status)
	}
	if reloaded.Context["dismissed_by"] != "test" {
		t.Fatalf("dismissed_by = %v, want test", reloaded.Context["dismissed_by"])
	}

	// Dismissing a terminal alert conflicts.
	recorder = f.request(t, http.MethodPost, path, nil)
	if recorder.Code != http.StatusConflict {
		t.Fatalf("second dismiss status = %d, want 409", recorder.Code)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	f := newServerFixture(t)

	recorder := f.request(t, http.MethodGet, "/v1/customers/42/settings", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("get status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	var settings customerdomain.CustomerSettings
	if err := json.Unmarshal(recorder.Body.Bytes(), &settings); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if settings.GraceDays != 5 {
		t.Fatalf("default grace_days = %d, want 5", settings.GraceDays)
	}

	recorder = f.request(t, http.MethodPatch, "/v1/customers/42/settings", map[string]any{"grace_days": 10})
	if recorder.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &settings); err != nil {
		t.Fatalf("decode patched settings: %v", err)
	}
	if settings.GraceDays != 10 {
		t.Fatalf("patched grace_days = %d, want 10", settings.GraceDays)
	}

	recorder = f.request(t, http.MethodPatch, "/v1/customers/42/settings", map[string]any{"lookback_days": -1})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("invalid patch status = %d, want 400", recorder.Code)
	}
}

func TestRunDetectorEndpoint(t *testing.T) {
	f := newServerFixture(t)

	lastPaid := time.Now().UTC().Add(-40 * 24 * time.Hour)
	expectation := signaldomain.PaymentExpectation{
		CustomerID:          42,
		CadenceDays:         30,
		LastPaidAt:          &lastPaid,
		ExpectedAmountCents: 250000,
		BaselineConfidence:  0.9,
		HistoryCount:        12,
	}
	if err := f.db.Create(&expectation).Error; err != nil {
		t.Fatalf("seed expectation: %v", err)
	}

	recorder := f.request(t, http.MethodPost, "/v1/detectors/missed_expected_payment/run",
		map[string]string{"customer_id": "42"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	var report scheduler.Report
	if err := json.Unmarshal(recorder.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Counts.Created != 1 {
		t.Fatalf("report counts = %+v, want 1 created", report.Counts)
	}

	recorder = f.request(t, http.MethodPost, "/v1/detectors/rainfall/run",
		map[string]string{"customer_id": "42"})
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("unknown detector status = %d, want 404", recorder.Code)
	}
}

func TestToggleEndpoints(t *testing.T) {
	f := newServerFixture(t)

	recorder := f.request(t, http.MethodPost, "/v1/debug/toggles",
		map[string]string{"toggle": debugdomain.ToggleForceWorkspaceStale, "customer_id": "42"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("enable status = %d, body %s", recorder.Code, recorder.Body.String())
	}

	// The post-toggle pass opens a real alert.
	var open int64
	err := f.db.Model(&alertdomain.Alert{}).
		Where("customer_id = ? AND type = ? AND status = ?",
			42, detectordomain.TypeWorkspaceStale, alertdomain.StatusOpen).
		Count(&open).Error
	if err != nil {
		t.Fatalf("count alerts: %v", err)
	}
	if open != 1 {
		t.Fatalf("open alerts after toggle = %d, want 1", open)
	}

	path := fmt.Sprintf("/v1/debug/toggles/%s?customer_id=42", debugdomain.ToggleForceWorkspaceStale)
	recorder = f.request(t, http.MethodDelete, path, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("disable status = %d, body %s", recorder.Code, recorder.Body.String())
	}

	// Disable is its own inverse: repeating it is a successful no-op.
	recorder = f.request(t, http.MethodDelete, path, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("second disable status = %d, want 200", recorder.Code)
	}
}
