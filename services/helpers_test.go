package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sahilchouksey/tuition-api/database"
	"github.com/sahilchouksey/tuition-api/model"
	"github.com/sahilchouksey/tuition-api/services/pagofacil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var fixtureSeq atomic.Int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	store, err := database.StartSQLite(filepath.Join(t.TempDir(), "billing.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Init())
	return store.GetDB()
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got.String())
}

// createEnrollment stores a program, a student and their enrollment
func createEnrollment(t *testing.T, db *gorm.DB, cost string) *model.Enrollment {
	t.Helper()
	n := fixtureSeq.Add(1)

	program := &model.Program{
		InstitutionID: 1,
		Name:          fmt.Sprintf("Program %d", n),
		Code:          fmt.Sprintf("P%d", n),
		Cost:          dec(cost),
		Currency:      "BOB",
	}
	require.NoError(t, db.Create(program).Error)

	student := &model.Student{
		Code:         fmt.Sprintf("S%d", n),
		Name:         fmt.Sprintf("Student %d", n),
		DocumentType: 1,
		DocumentID:   fmt.Sprintf("%07d", n),
		Phone:        "70000000",
		Email:        fmt.Sprintf("student%d@example.com", n),
	}
	require.NoError(t, db.Create(student).Error)

	enrollment := &model.Enrollment{
		StudentID:     student.ID,
		ProgramID:     program.ID,
		InstitutionID: program.InstitutionID,
		EnrolledAt:    time.Now().UTC(),
	}
	require.NoError(t, db.Create(enrollment).Error)
	enrollment.Program = program
	enrollment.Student = student
	return enrollment
}

// fakeGateway stands in for the QR gateway client
type fakeGateway struct {
	mu       sync.Mutex
	qrErr    error
	qrCalls  int
	lastQR   pagofacil.QRRequest
	expiry   string
	statuses map[string]*pagofacil.TransactionStatus
	queryErr error
	queries  int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{statuses: map[string]*pagofacil.TransactionStatus{}}
}

func (g *fakeGateway) GenerateQR(_ context.Context, req pagofacil.QRRequest) (*pagofacil.QRResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.qrCalls++
	g.lastQR = req
	if g.qrErr != nil {
		return nil, g.qrErr
	}
	return &pagofacil.QRResponse{
		TransactionID:  pagofacil.FlexString(fmt.Sprintf("PF-%d", g.qrCalls)),
		Status:         1,
		ExpirationDate: g.expiry,
		QRBase64:       "iVBORw0KGgo=",
	}, nil
}

func (g *fakeGateway) QueryTransaction(_ context.Context, q pagofacil.TransactionQuery) (*pagofacil.TransactionStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queries++
	if g.queryErr != nil {
		return nil, g.queryErr
	}
	if st, ok := g.statuses[q.PagofacilTransactionID]; ok {
		copied := *st
		return &copied, nil
	}
	return &pagofacil.TransactionStatus{PaymentStatus: 2, PaymentStatusDescription: "pending"}, nil
}

func (g *fakeGateway) setStatus(transactionID string, status *pagofacil.TransactionStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[transactionID] = status
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.qrCalls
}

// heldGateway parks every GenerateQR call until release is closed
type heldGateway struct {
	*fakeGateway
	arrived chan struct{}
	release chan struct{}
}

func newHeldGateway(calls int) *heldGateway {
	return &heldGateway{
		fakeGateway: newFakeGateway(),
		arrived:     make(chan struct{}, calls),
		release:     make(chan struct{}),
	}
}

func (g *heldGateway) GenerateQR(ctx context.Context, req pagofacil.QRRequest) (*pagofacil.QRResponse, error) {
	g.arrived <- struct{}{}
	<-g.release
	return g.fakeGateway.GenerateQR(ctx, req)
}

// recordingNotifier keeps every notification in memory
type recordingNotifier struct {
	mu        sync.Mutex
	succeeded []SettlementEvent
	failed    []SettlementEvent
	alerts    []OperatorAlert
}

func (n *recordingNotifier) SettlementSucceeded(_ context.Context, event SettlementEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.succeeded = append(n.succeeded, event)
	return nil
}

func (n *recordingNotifier) SettlementFailed(_ context.Context, event SettlementEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, event)
	return nil
}

func (n *recordingNotifier) AlertOperators(_ context.Context, alert OperatorAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return nil
}

func (n *recordingNotifier) counts() (succeeded, failed, alerts int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.succeeded), len(n.failed), len(n.alerts)
}

type billingFixture struct {
	db          *gorm.DB
	plans       *PlanService
	ledger      *LedgerService
	settlements *SettlementService
	gateway     *fakeGateway
	notifier    *recordingNotifier
}

func newBillingFixture(t *testing.T) *billingFixture {
	t.Helper()
	db := newTestDB(t)
	gateway := newFakeGateway()
	notifier := &recordingNotifier{}
	return &billingFixture{
		db:       db,
		plans:    NewPlanService(db),
		ledger:   NewLedgerService(db),
		gateway:  gateway,
		notifier: notifier,
		settlements: NewSettlementService(db, gateway, notifier, SettlementConfig{
			CallbackURL: "https://api.example.com/api/v1/webhooks/pagofacil",
		}),
	}
}

// evenPlan generates a plan of count equal installments with no deposit
func (f *billingFixture) evenPlan(t *testing.T, cost string, count int) *model.PaymentPlan {
	t.Helper()
	enrollment := createEnrollment(t, f.db, cost)
	plan, err := f.plans.GeneratePlan(context.Background(), GeneratePlanRequest{
		EnrollmentID:     enrollment.ID,
		InstallmentCount: count,
	})
	require.NoError(t, err)
	require.Len(t, plan.Installments, count)
	return plan
}

func (f *billingFixture) settlement(t *testing.T, id uint) model.Settlement {
	t.Helper()
	var s model.Settlement
	require.NoError(t, f.db.First(&s, id).Error)
	return s
}
