package payments

import (
	"context"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bistrodesk/orderflow/api/responses"
	"github.com/bistrodesk/orderflow/api/validators"
	internalpayments "github.com/bistrodesk/orderflow/internal/payments"
	"github.com/bistrodesk/orderflow/pkg/db/models"
	"github.com/bistrodesk/orderflow/pkg/enums"
	"github.com/bistrodesk/orderflow/pkg/logger"
)

type recordRequest struct {
	Amount        decimal.Decimal `json:"amount" validate:"positive_amount"`
	PaymentMethod string          `json:"payment_method" validate:"omitempty,oneof=card cash"`
}

type updateStatusRequest struct {
	Status        string `json:"status" validate:"required"`
	TransactionID string `json:"transaction_id" validate:"omitempty,max=64"`
}

// Service is the payment ledger surface the handlers depend on.
type Service interface {
	Record(ctx context.Context, input internalpayments.RecordPaymentInput) (*internalpayments.RecordResult, error)
	LatestStatus(ctx context.Context, orderNumber int64) (*internalpayments.StatusView, error)
	UpdateStatus(ctx context.Context, input internalpayments.UpdatePaymentStatusInput) (*models.PaymentRecord, error)
	History(ctx context.Context, orderNumber int64) ([]models.PaymentRecord, error)
}

func Record(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, orderNumber, ok := orderContext(w, r, logg)
		if !ok {
			return
		}

		var req recordRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Record(ctx, internalpayments.RecordPaymentInput{
			OrderNumber:   orderNumber,
			Amount:        req.Amount,
			PaymentMethod: enums.PaymentMethod(strings.TrimSpace(req.PaymentMethod)),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func History(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, orderNumber, ok := orderContext(w, r, logg)
		if !ok {
			return
		}

		records, err := svc.History(ctx, orderNumber)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		out := make([]internalpayments.PaymentDTO, 0, len(records))
		for _, record := range records {
			out = append(out, internalpayments.NewPaymentDTO(record))
		}
		responses.WriteSuccess(w, out)
	}
}

func Latest(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, orderNumber, ok := orderContext(w, r, logg)
		if !ok {
			return
		}

		view, err := svc.LatestStatus(ctx, orderNumber)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func UpdateStatus(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, orderNumber, ok := orderContext(w, r, logg)
		if !ok {
			return
		}

		var req updateStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		record, err := svc.UpdateStatus(ctx, internalpayments.UpdatePaymentStatusInput{
			OrderNumber:   orderNumber,
			TransactionID: strings.TrimSpace(req.TransactionID),
			Status:        enums.PaymentStatus(req.Status),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalpayments.NewPaymentDTO(*record))
	}
}

func orderContext(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (context.Context, int64, bool) {
	orderNumber, err := validators.ParseOrderNumber(r)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, 0, false
	}
	ctx := r.Context()
	if logg != nil {
		ctx = logg.WithOrderNumber(ctx, orderNumber)
	}
	return ctx, orderNumber, true
}
