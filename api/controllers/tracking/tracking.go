package tracking

import (
	"context"
	"net/http"
	"strings"

	"github.com/bistrodesk/orderflow/api/responses"
	"github.com/bistrodesk/orderflow/api/validators"
	internaltracking "github.com/bistrodesk/orderflow/internal/tracking"
	"github.com/bistrodesk/orderflow/pkg/db/models"
	"github.com/bistrodesk/orderflow/pkg/enums"
	"github.com/bistrodesk/orderflow/pkg/logger"
)

const maxNoteLength = 500

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type estimatedTimeRequest struct {
	Minutes *int `json:"minutes" validate:"required,min=0,max=1440"`
}

type noteRequest struct {
	Note string `json:"note" validate:"required"`
}

type paymentMethodRequest struct {
	PaymentMethod string `json:"payment_method" validate:"required"`
}

type orderReader interface {
	GetByNumber(ctx context.Context, orderNumber int64) (*models.Order, error)
}

type mutator func(ctx context.Context, orderNumber int64) (*models.TrackingRecord, error)

// Create snapshots an existing order into a new tracking record.
func Create(orders orderReader, svc internaltracking.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, orderNumber, ok := orderContext(w, r, logg)
		if !ok {
			return
		}

		order, err := orders.GetByNumber(ctx, orderNumber)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		record, err := svc.CreateFromOrder(ctx, order)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, internaltracking.NewTrackingDTO(record))
	}
}

func Get(svc internaltracking.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(logg, svc.Get)
}

func Cancel(svc internaltracking.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(logg, svc.Cancel)
}

func SetStatus(svc internaltracking.Service, logg *logger.Logger) http.HandlerFunc {
	return withBody(logg, func(r *http.Request) (mutator, error) {
		var req statusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		return func(ctx context.Context, n int64) (*models.TrackingRecord, error) {
			return svc.SetStatus(ctx, n, enums.TrackingStatus(req.Status))
		}, nil
	})
}

func SetEstimatedTime(svc internaltracking.Service, logg *logger.Logger) http.HandlerFunc {
	return withBody(logg, func(r *http.Request) (mutator, error) {
		var req estimatedTimeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		return func(ctx context.Context, n int64) (*models.TrackingRecord, error) {
			return svc.SetEstimatedTime(ctx, n, *req.Minutes)
		}, nil
	})
}

func AddNote(svc internaltracking.Service, logg *logger.Logger) http.HandlerFunc {
	return withBody(logg, func(r *http.Request) (mutator, error) {
		var req noteRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		note := validators.SanitizeString(req.Note, maxNoteLength)
		return func(ctx context.Context, n int64) (*models.TrackingRecord, error) {
			return svc.AddNote(ctx, n, note)
		}, nil
	})
}

func SetPaymentMethod(svc internaltracking.Service, logg *logger.Logger) http.HandlerFunc {
	return withBody(logg, func(r *http.Request) (mutator, error) {
		var req paymentMethodRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		method := enums.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod)))
		return func(ctx context.Context, n int64) (*models.TrackingRecord, error) {
			return svc.SetPaymentMethod(ctx, n, method)
		}, nil
	})
}

// QRCode renders the public tracking link of the order as a PNG.
func QRCode(svc internaltracking.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, orderNumber, ok := orderContext(w, r, logg)
		if !ok {
			return
		}
		png, err := svc.QRCode(ctx, orderNumber)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteBytes(w, "image/png", png)
	}
}

func handle(logg *logger.Logger, fn mutator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, orderNumber, ok := orderContext(w, r, logg)
		if !ok {
			return
		}
		record, err := fn(ctx, orderNumber)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, internaltracking.NewTrackingDTO(record))
	}
}

func withBody(logg *logger.Logger, decode func(r *http.Request) (mutator, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, orderNumber, ok := orderContext(w, r, logg)
		if !ok {
			return
		}
		fn, err := decode(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		record, err := fn(ctx, orderNumber)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, internaltracking.NewTrackingDTO(record))
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
