package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/bistrodesk/orderflow/pkg/errors"
)

func withOrderNumber(raw string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+raw, nil)
	rc := chi.NewRouteContext()
	rc.URLParams.Add("orderNumber", raw)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestParseOrderNumber(t *testing.T) {
	n, err := ParseOrderNumber(withOrderNumber("42"))
	require.NoError(t, err)
	assert.EqualValues(t, 42, n)

	for _, raw := range []string{"0", "-3", "abc", ""} {
		_, err := ParseOrderNumber(withOrderNumber(raw))
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), raw)
	}
}

type noteRequest struct {
	Note string `json:"note" validate:"required,max=10"`
}

func TestDecodeJSONBody(t *testing.T) {
	var ok noteRequest
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"note":"hello"}`))
	require.NoError(t, DecodeJSONBody(req, &ok))
	assert.Equal(t, "hello", ok.Note)

	var missing noteRequest
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	err := DecodeJSONBody(req, &missing)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	assert.Equal(t, map[string]string{"note": "is required"}, typed.Details())

	var unknown noteRequest
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"note":"a","extra":1}`))
	assert.True(t, pkgerrors.IsCode(DecodeJSONBody(req, &unknown), pkgerrors.CodeValidation))
}

func TestDecodeJSONBodyRejectsMalformedPayloads(t *testing.T) {
	cases := map[string]string{
		"empty":    ``,
		"trailing": `{"note":"a"}{"note":"b"}`,
		"too big":  `{"note":"` + strings.Repeat("x", MaxBodyBytes) + `"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			var dest noteRequest
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
			assert.True(t, pkgerrors.IsCode(DecodeJSONBody(req, &dest), pkgerrors.CodeValidation))
		})
	}
}

type lineRequest struct {
	Name string `json:"name" validate:"required"`
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"positive_amount"`
	Lines  []lineRequest   `json:"lines" validate:"required,min=1,dive"`
}

func TestDecodeJSONBodyNestedDetails(t *testing.T) {
	var dest amountRequest
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"0","lines":[{"name":""}]}`))
	typed := pkgerrors.As(DecodeJSONBody(req, &dest))
	require.NotNil(t, typed)
	assert.Equal(t, map[string]string{
		"amount":        "must be greater than zero",
		"lines[0].name": "is required",
	}, typed.Details())

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"12.50","lines":[{"name":"Pizza"}]}`))
	require.NoError(t, DecodeJSONBody(req, &dest))
	assert.Equal(t, "12.5", dest.Amount.String())
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "abc", SanitizeString("  abcdef ", 3))
	assert.Equal(t, "abcdef", SanitizeString("abcdef", 0))
	assert.Equal(t, "prêt", SanitizeString("prêt à partir", 4))
	assert.Equal(t, "sonnez", SanitizeString("son\x00nez\t", 0))
}
