package orders

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/bistrodesk/orderflow/api/responses"
	"github.com/bistrodesk/orderflow/api/validators"
	"github.com/bistrodesk/orderflow/internal/cart"
	internalorders "github.com/bistrodesk/orderflow/internal/orders"
	"github.com/bistrodesk/orderflow/pkg/db/models"
	"github.com/bistrodesk/orderflow/pkg/enums"
	pkgerrors "github.com/bistrodesk/orderflow/pkg/errors"
	"github.com/bistrodesk/orderflow/pkg/logger"
)

type placeItemRequest struct {
	Name     string          `json:"name" validate:"required,max=200"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity" validate:"omitempty,min=1,max=100"`
}

type placeOrderRequest struct {
	Items      []placeItemRequest `json:"items" validate:"required,min=1,dive"`
	Promotions []decimal.Decimal  `json:"promotions"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type cartPlacer interface {
	PlaceOrder(ctx context.Context, c *cart.Cart) (*models.Order, error)
}

type orderReader interface {
	GetByNumber(ctx context.Context, orderNumber int64) (*models.Order, error)
	ListAll(ctx context.Context) ([]models.Order, error)
}

type statusUpdater interface {
	UpdateStatus(ctx context.Context, orderNumber int64, status enums.OrderStatus) (*models.Order, error)
}

// Place builds a request-scoped cart from the payload and places it. Each
// unit of quantity becomes its own cart line; promotions apply in order.
func Place(svc cartPlacer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		var req placeOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		c, err := buildCart(req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.PlaceOrder(r.Context(), c)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, internalorders.NewOrderDTO(order))
	}
}

func buildCart(req placeOrderRequest) (*cart.Cart, error) {
	c := cart.New()
	for _, item := range req.Items {
		quantity := item.Quantity
		if quantity == 0 {
			quantity = 1
		}
		for i := 0; i < quantity; i++ {
			if err := c.AddItem(item.Name, item.Price); err != nil {
				return nil, err
			}
		}
	}
	for _, percent := range req.Promotions {
		if err := c.ApplyPromotion(percent); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func List(svc orderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListAll(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]internalorders.OrderDTO, 0, len(list))
		for i := range list {
			out = append(out, internalorders.NewOrderDTO(&list[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

func Detail(svc orderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderNumber, err := validators.ParseOrderNumber(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderNumber(ctx, orderNumber)
		}

		order, err := svc.GetByNumber(ctx, orderNumber)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderDTO(order))
	}
}

func UpdateStatus(svc statusUpdater, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderNumber, err := validators.ParseOrderNumber(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderNumber(ctx, orderNumber)
		}

		var req updateStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		order, err := svc.UpdateStatus(ctx, orderNumber, enums.OrderStatus(req.Status))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderDTO(order))
	}
}
