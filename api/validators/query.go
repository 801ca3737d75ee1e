package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	pkgerrors "github.com/bistrodesk/orderflow/pkg/errors"
)

// ParseOrderNumber reads the {orderNumber} path parameter, which must be a
// positive integer.
func ParseOrderNumber(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderNumber"))
	if raw == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "order number is required")
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "order number must be a positive integer").WithDetails(map[string]any{"orderNumber": raw})
	}
	return value, nil
}
