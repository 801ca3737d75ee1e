package cart

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bistrodesk/orderflow/internal/orders"
	"github.com/bistrodesk/orderflow/pkg/db/models"
	"github.com/bistrodesk/orderflow/pkg/enums"
	pkgerrors "github.com/bistrodesk/orderflow/pkg/errors"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestCart_AddItemKeepsSeparateLines(t *testing.T) {
	c := New()
	require.NoError(t, c.AddItem("Pizza", dec("12.99")))
	require.NoError(t, c.AddItem("Salade", dec("8.99")))
	require.NoError(t, c.AddItem("Pizza", dec("12.99")))

	lines := c.Lines()
	require.Len(t, lines, 3)
	for _, line := range lines {
		assert.Equal(t, 1, line.Quantity)
	}
	assert.Equal(t, "Pizza", lines[2].ItemName)
	assert.True(t, c.Total().Equal(dec("34.97")))
}

func TestCart_AddItemValidation(t *testing.T) {
	c := New()
	err := c.AddItem("  ", dec("1"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	err = c.AddItem("Pizza", dec("-0.01"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	err = c.AddItem("Pizza", dec("12.999"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.True(t, c.IsEmpty())
}

func TestCart_ClearDropsLinesAndTotal(t *testing.T) {
	c := New()
	require.NoError(t, c.AddItem("Pizza", dec("12.99")))
	require.NoError(t, c.ApplyPromotion(dec("10")))
	c.Clear()
	assert.True(t, c.IsEmpty())
	assert.True(t, c.Total().IsZero())
	assert.Empty(t, c.Lines())
}

func TestCart_ApplyPromotionCompounds(t *testing.T) {
	c := New()
	require.NoError(t, c.AddItem("Pizza", dec("12.99")))
	require.NoError(t, c.AddItem("Salade", dec("8.99")))
	assert.True(t, c.Total().Equal(dec("21.98")))

	require.NoError(t, c.ApplyPromotion(dec("10")))
	assert.True(t, c.Total().Equal(dec("19.782")))
	assert.Equal(t, "19.78", c.Total().Round(2).StringFixed(2))

	require.NoError(t, c.ApplyPromotion(dec("10")))
	assert.True(t, c.Total().Equal(dec("21.98").Mul(dec("0.81"))))
}

func TestCart_ApplyPromotionBounds(t *testing.T) {
	c := New()
	require.NoError(t, c.AddItem("Pizza", dec("10")))

	assert.True(t, pkgerrors.IsCode(c.ApplyPromotion(dec("-1")), pkgerrors.CodeValidation))
	assert.True(t, pkgerrors.IsCode(c.ApplyPromotion(dec("100.5")), pkgerrors.CodeValidation))
	assert.True(t, c.Total().Equal(dec("10")))

	require.NoError(t, c.ApplyPromotion(dec("0")))
	assert.True(t, c.Total().Equal(dec("10")))
	require.NoError(t, c.ApplyPromotion(dec("100")))
	assert.True(t, c.Total().IsZero())
}

func TestCart_AddItemAfterPromotionRecomputes(t *testing.T) {
	c := New()
	require.NoError(t, c.AddItem("Pizza", dec("10")))
	require.NoError(t, c.ApplyPromotion(dec("50")))
	require.NoError(t, c.AddItem("Salade", dec("5")))
	assert.True(t, c.Total().Equal(dec("15")))
	assert.True(t, c.RecomputeTotal().Equal(dec("15")))
}

func TestCart_ConcurrentAdds(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.AddItem("Cafe", dec("1.10"))
		}()
	}
	wg.Wait()
	assert.Len(t, c.Lines(), 50)
	assert.True(t, c.Total().Equal(dec("55")))
}

type stubPlacer struct {
	input orders.PlaceOrderInput
	err   error
	calls int
}

func (s *stubPlacer) Place(_ context.Context, input orders.PlaceOrderInput) (*models.Order, error) {
	s.calls++
	s.input = input
	if s.err != nil {
		return nil, s.err
	}
	return &models.Order{OrderNumber: 1, Total: input.Total, Status: enums.OrderStatusPending}, nil
}

func TestService_PlaceOrderEmptyCart(t *testing.T) {
	placer := &stubPlacer{}
	svc, err := NewService(placer, nil)
	require.NoError(t, err)

	_, err = svc.PlaceOrder(context.Background(), New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, "cart is empty", pkgerrors.As(err).Message())
	assert.Zero(t, placer.calls)
}

func TestService_PlaceOrderClearsCart(t *testing.T) {
	placer := &stubPlacer{}
	svc, err := NewService(placer, nil)
	require.NoError(t, err)

	c := New()
	require.NoError(t, c.AddItem("Pizza", dec("12.99")))
	require.NoError(t, c.AddItem("Salade", dec("8.99")))
	require.NoError(t, c.ApplyPromotion(dec("10")))

	order, err := svc.PlaceOrder(context.Background(), c)
	require.NoError(t, err)
	assert.EqualValues(t, 1, order.OrderNumber)
	assert.Equal(t, "19.78", placer.input.Total.StringFixed(2))
	require.Len(t, placer.input.Items, 2)
	assert.Equal(t, "Salade", placer.input.Items[1].ItemName)

	assert.True(t, c.IsEmpty())
	assert.True(t, c.Total().IsZero())
}

func TestService_PlaceOrderFailureLeavesCart(t *testing.T) {
	placer := &stubPlacer{err: pkgerrors.New(pkgerrors.CodeContention, "too much contention")}
	svc, err := NewService(placer, nil)
	require.NoError(t, err)

	c := New()
	require.NoError(t, c.AddItem("Pizza", dec("12.99")))

	_, err = svc.PlaceOrder(context.Background(), c)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeContention))
	assert.Len(t, c.Lines(), 1)
	assert.True(t, c.Total().Equal(dec("12.99")))
}

func TestNewServiceRequiresPlacer(t *testing.T) {
	_, err := NewService(nil, nil)
	require.Error(t, err)
}
