package payments

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bistrodesk/orderflow/pkg/db/dbtest"
	"github.com/bistrodesk/orderflow/pkg/db/models"
	"github.com/bistrodesk/orderflow/pkg/enums"
	pkgerrors "github.com/bistrodesk/orderflow/pkg/errors"
	"github.com/bistrodesk/orderflow/pkg/outbox"
)

type methodCounter map[string]int

func (m methodCounter) IncPaymentRecorded(method string) { m[method]++ }

func newTestService(t *testing.T, conn *gorm.DB, metrics paymentMetrics) *service {
	t.Helper()
	svc, err := NewService(NewRepository(conn), dbtest.TxRunner{DB: conn}, outbox.NewService(outbox.NewRepository(conn), nil), metrics)
	require.NoError(t, err)
	return svc.(*service)
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestNewTransactionIDFormat(t *testing.T) {
	now := time.UnixMilli(1767225600123)
	id := NewTransactionID(now)
	assert.Regexp(t, regexp.MustCompile(`^TRX-1767225600123-[0-9a-f]{12}$`), id)
	assert.NotEqual(t, id, NewTransactionID(now))
}

func TestService_RecordDefaultsToCard(t *testing.T) {
	conn := dbtest.Open(t)
	metrics := methodCounter{}
	svc := newTestService(t, conn, metrics)

	res, err := svc.Record(context.Background(), RecordPaymentInput{OrderNumber: 12, Amount: dec("19.78")})
	require.NoError(t, err)
	assert.EqualValues(t, 12, res.OrderNumber)
	assert.Equal(t, "19.78", res.Amount)
	assert.Equal(t, enums.PaymentMethodCard, res.PaymentMethod)
	assert.Equal(t, enums.PaymentStatusValidated, res.Status)
	assert.Regexp(t, `^TRX-\d+-[0-9a-f]{12}$`, res.TransactionID)
	assert.Equal(t, 1, metrics["card"])

	var events int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventPaymentRecorded).Count(&events).Error)
	assert.EqualValues(t, 1, events)
}

func TestService_RecordValidation(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		input RecordPaymentInput
	}{
		{"missing order number", RecordPaymentInput{Amount: dec("1")}},
		{"zero amount", RecordPaymentInput{OrderNumber: 1, Amount: decimal.Zero}},
		{"negative amount", RecordPaymentInput{OrderNumber: 1, Amount: dec("-5")}},
		{"sub-cent amount", RecordPaymentInput{OrderNumber: 1, Amount: dec("0.004")}},
		{"fractional cents", RecordPaymentInput{OrderNumber: 1, Amount: dec("12.345")}},
		{"unknown method", RecordPaymentInput{OrderNumber: 1, Amount: dec("5"), PaymentMethod: "bitcoin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Record(ctx, tt.input)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
		})
	}

	var count int64
	require.NoError(t, conn.Model(&models.PaymentRecord{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestService_RecordTransactionIDCollision(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn, nil)
	svc.newTxID = func() string { return "TRX-1-000000000000" }
	ctx := context.Background()

	_, err := svc.Record(ctx, RecordPaymentInput{OrderNumber: 1, Amount: dec("5")})
	require.NoError(t, err)

	_, err = svc.Record(ctx, RecordPaymentInput{OrderNumber: 1, Amount: dec("5")})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadyExists))

	history, err := svc.History(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestService_HistoryNewestFirst(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn, nil)
	ctx := context.Background()

	var ids []string
	for _, amount := range []string{"10", "20", "30"} {
		res, err := svc.Record(ctx, RecordPaymentInput{OrderNumber: 3, Amount: dec(amount), PaymentMethod: enums.PaymentMethodCash})
		require.NoError(t, err)
		ids = append(ids, res.TransactionID)
	}
	_, err := svc.Record(ctx, RecordPaymentInput{OrderNumber: 4, Amount: dec("1")})
	require.NoError(t, err)

	history, err := svc.History(ctx, 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, ids[2], history[0].TransactionID)
	assert.Equal(t, ids[1], history[1].TransactionID)
	assert.Equal(t, ids[0], history[2].TransactionID)

	empty, err := svc.History(ctx, 99)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	latest, err := svc.LatestStatus(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, ids[2], latest.TransactionID)
	assert.Equal(t, "30.00", latest.Amount)
}

func TestService_LatestStatusNotFound(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn, nil)

	_, err := svc.LatestStatus(context.Background(), 8)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestService_UpdateStatusTargetsLatestByDefault(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn, nil)
	ctx := context.Background()

	first, err := svc.Record(ctx, RecordPaymentInput{OrderNumber: 5, Amount: dec("10")})
	require.NoError(t, err)
	second, err := svc.Record(ctx, RecordPaymentInput{OrderNumber: 5, Amount: dec("10")})
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(ctx, UpdatePaymentStatusInput{OrderNumber: 5, Status: enums.PaymentStatusRefunded})
	require.NoError(t, err)
	assert.Equal(t, second.TransactionID, updated.TransactionID)
	assert.Equal(t, enums.PaymentStatusRefunded, updated.Status)

	updated, err = svc.UpdateStatus(ctx, UpdatePaymentStatusInput{OrderNumber: 5, TransactionID: first.TransactionID, Status: enums.PaymentStatusFailed})
	require.NoError(t, err)
	assert.Equal(t, first.TransactionID, updated.TransactionID)
	assert.Equal(t, enums.PaymentStatusFailed, updated.Status)

	history, err := svc.History(ctx, 5)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, enums.PaymentStatusRefunded, history[0].Status)
	assert.Equal(t, enums.PaymentStatusFailed, history[1].Status)

	var events int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventPaymentStatusChanged).Count(&events).Error)
	assert.EqualValues(t, 2, events)
}

func TestService_UpdateStatusErrors(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn, nil)
	ctx := context.Background()

	res, err := svc.Record(ctx, RecordPaymentInput{OrderNumber: 6, Amount: dec("10")})
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, UpdatePaymentStatusInput{OrderNumber: 6, Status: "settled"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.UpdateStatus(ctx, UpdatePaymentStatusInput{OrderNumber: 7, Status: enums.PaymentStatusFailed})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	// A transaction id from another order must not be updated through this one.
	_, err = svc.UpdateStatus(ctx, UpdatePaymentStatusInput{OrderNumber: 7, TransactionID: res.TransactionID, Status: enums.PaymentStatusFailed})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.UpdateStatus(ctx, UpdatePaymentStatusInput{OrderNumber: 6, TransactionID: "TRX-0-missing", Status: enums.PaymentStatusFailed})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

type fakeRepository struct {
	Repository
	createFn func(ctx context.Context, record *models.PaymentRecord) error
}

func (f *fakeRepository) WithTx(*gorm.DB) Repository { return f }

func (f *fakeRepository) Create(ctx context.Context, record *models.PaymentRecord) error {
	return f.createFn(ctx, record)
}

func TestService_RecordHidesStoreErrors(t *testing.T) {
	conn := dbtest.Open(t)
	repo := &fakeRepository{createFn: func(context.Context, *models.PaymentRecord) error {
		return errors.New("dial tcp 10.0.0.4:5432: connection refused")
	}}
	svc, err := NewService(repo, dbtest.TxRunner{DB: conn}, outbox.NewService(outbox.NewRepository(conn), nil), nil)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	_, err = svc.Record(context.Background(), RecordPaymentInput{OrderNumber: 1, Amount: dec("1")})
	if !pkgerrors.IsCode(err, pkgerrors.CodeStore) {
		t.Fatalf("expected store error, got %v", err)
	}
	if msg := pkgerrors.As(err).Message(); msg != "insert payment record" {
		t.Fatalf("unexpected message %q", msg)
	}
}
