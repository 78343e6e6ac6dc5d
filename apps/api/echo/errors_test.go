package echoapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/fee"
	"github.com/trezcool/masomo-fees/core/parent"
	"github.com/trezcool/masomo-fees/tests"
)

func TestAppHTTPErrorHandler(t *testing.T) {
	conf := testutil.NewConfig()
	validate, translator := testutil.NewValidator()
	handle := newAppHTTPErrorHandler(testutil.NewLogger(conf), translator, func() {})

	type payload struct {
		ParentID int64 `json:"parent_id" validate:"required,gt=0"`
	}
	validationErr := validate.Struct(payload{})
	require.Error(t, validationErr)

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{name: "struct validation", err: validationErr, wantCode: http.StatusBadRequest, wantBody: "this field is required"},
		{name: "wrapped struct validation", err: errors.Wrap(validationErr, "binding"), wantCode: http.StatusBadRequest, wantBody: "this field is required"},
		{name: "category not found", err: errors.Wrap(fee.ErrCategoryNotFound, "finding"), wantCode: http.StatusNotFound, wantBody: fee.ErrCategoryNotFound.Error()},
		{name: "payment not found", err: fee.ErrPaymentNotFound, wantCode: http.StatusNotFound, wantBody: fee.ErrPaymentNotFound.Error()},
		{name: "parent not found", err: parent.ErrNotFound, wantCode: http.StatusNotFound, wantBody: parent.ErrNotFound.Error()},
		{name: "service validation", err: core.NewValidationError(errors.New("bad amount")), wantCode: http.StatusBadRequest, wantBody: "bad amount"},
		{name: "processing", err: core.NewProcessingError("Payment processing failed", errors.New("boom")), wantCode: http.StatusInternalServerError, wantBody: "Payment processing failed"},
		{name: "unknown", err: errors.New("boom"), wantCode: http.StatusInternalServerError, wantBody: http.StatusText(http.StatusInternalServerError)},
	}

	e := echo.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ctx := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)

			assert.NotPanics(t, func() { handle(tt.err, ctx) })
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}
