package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bistrodesk/orderflow/pkg/db/dbtest"
	"github.com/bistrodesk/orderflow/pkg/db/models"
	"github.com/bistrodesk/orderflow/pkg/enums"
)

func newOrderModel(number int64, created time.Time, items ...string) *models.Order {
	order := &models.Order{
		ID:          uuid.New(),
		OrderNumber: number,
		Total:       decimal.RequireFromString("12.99"),
		Status:      enums.OrderStatusPending,
		CreatedAt:   created,
	}
	for i, name := range items {
		order.Items = append(order.Items, models.OrderItem{
			ID:        uuid.New(),
			Position:  i,
			ItemName:  name,
			UnitPrice: decimal.RequireFromString("12.99"),
			Quantity:  1,
		})
	}
	return order
}

func TestRepository_CreateAndFindByNumber(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	order := newOrderModel(7, time.Now().UTC(), "Pizza", "Salade", "Pizza")
	require.NoError(t, repo.Create(ctx, order))

	got, err := repo.FindByNumber(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
	require.Len(t, got.Items, 3)
	assert.Equal(t, []string{"Pizza", "Salade", "Pizza"}, []string{got.Items[0].ItemName, got.Items[1].ItemName, got.Items[2].ItemName})
	assert.True(t, got.Total.Equal(decimal.RequireFromString("12.99")))

	_, err = repo.FindByNumber(ctx, 8)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepository_CreateDuplicateNumberFails(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newOrderModel(1, time.Now().UTC(), "Pizza")))
	require.Error(t, repo.Create(ctx, newOrderModel(1, time.Now().UTC(), "Salade")))
}

func TestRepository_ListNewestFirst(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, newOrderModel(1, base, "a")))
	require.NoError(t, repo.Create(ctx, newOrderModel(2, base.Add(time.Minute), "b")))
	require.NoError(t, repo.Create(ctx, newOrderModel(3, base.Add(2*time.Minute), "c")))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.EqualValues(t, 3, list[0].OrderNumber)
	assert.EqualValues(t, 2, list[1].OrderNumber)
	assert.EqualValues(t, 1, list[2].OrderNumber)
	assert.Len(t, list[0].Items, 1)
}

func TestRepository_UpdateStatus(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newOrderModel(4, time.Now().UTC(), "a")))

	rows, err := repo.UpdateStatus(ctx, 4, enums.OrderStatusConfirmed)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)

	rows, err = repo.UpdateStatus(ctx, 99, enums.OrderStatusConfirmed)
	require.NoError(t, err)
	assert.Zero(t, rows)

	got, err := repo.FindByNumber(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, got.Status)
}

func TestRepository_ListWithoutTracking(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, repo.Create(ctx, newOrderModel(1, now, "a")))
	require.NoError(t, repo.Create(ctx, newOrderModel(2, now, "b")))
	require.NoError(t, repo.Create(ctx, newOrderModel(3, now, "c")))

	require.NoError(t, conn.Create(&models.TrackingRecord{
		ID:          uuid.New(),
		OrderNumber: 2,
		Status:      enums.TrackingStatusPreparation,
		Items:       []models.TrackingItem{},
		Total:       decimal.Zero,
		Notes:       []string{},
	}).Error)

	missing, err := repo.ListWithoutTracking(ctx, 10)
	require.NoError(t, err)
	require.Len(t, missing, 2)
	assert.EqualValues(t, 1, missing[0].OrderNumber)
	assert.EqualValues(t, 3, missing[1].OrderNumber)
	assert.Len(t, missing[0].Items, 1)

	limited, err := repo.ListWithoutTracking(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
