package cart

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bistrodesk/orderflow/internal/orders"
	"github.com/bistrodesk/orderflow/pkg/db/models"
	"github.com/bistrodesk/orderflow/pkg/enums"
)

type mockPlacer struct {
	mock.Mock
}

func (m *mockPlacer) Place(ctx context.Context, input orders.PlaceOrderInput) (*models.Order, error) {
	args := m.Called(ctx, input)
	order, _ := args.Get(0).(*models.Order)
	return order, args.Error(1)
}

func TestService_PlaceOrderForwardsSnapshot(t *testing.T) {
	tests := []struct {
		name      string
		prices    []string
		promos    []string
		wantTotal string
		placeErr  error
		wantErr   bool
	}{
		{name: "single line", prices: []string{"12.99"}, wantTotal: "12.99"},
		{name: "promotion rounds half up", prices: []string{"10.05"}, promos: []string{"50"}, wantTotal: "5.03"},
		{name: "placement failure", prices: []string{"8.99"}, wantTotal: "8.99", placeErr: assert.AnError, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			placer := new(mockPlacer)
			svc, err := NewService(placer, nil)
			require.NoError(t, err)

			c := New()
			for _, price := range tc.prices {
				require.NoError(t, c.AddItem("Pizza", dec(price)))
			}
			for _, promo := range tc.promos {
				require.NoError(t, c.ApplyPromotion(dec(promo)))
			}

			matchesCart := mock.MatchedBy(func(input orders.PlaceOrderInput) bool {
				return len(input.Items) == len(tc.prices) && input.Total.StringFixed(2) == tc.wantTotal
			})
			var placed *models.Order
			if tc.placeErr == nil {
				placed = &models.Order{OrderNumber: 9, Status: enums.OrderStatusPending}
			}
			placer.On("Place", mock.Anything, matchesCart).Return(placed, tc.placeErr).Once()

			order, err := svc.PlaceOrder(context.Background(), c)
			if tc.wantErr {
				assert.ErrorIs(t, err, tc.placeErr)
				assert.False(t, c.IsEmpty())
			} else {
				require.NoError(t, err)
				assert.EqualValues(t, 9, order.OrderNumber)
				assert.True(t, c.IsEmpty())
			}
			placer.AssertExpectations(t)
		})
	}
}
