package tests

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-fees/apps/api/echo"
	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/fee"
	"github.com/trezcool/masomo-fees/tests"
)

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errInvalidToken = httpErr{Error: "invalid or expired jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

// brokenFeeService fails every payment submission.
type brokenFeeService struct {
	fee.ServiceInterface
}

func (brokenFeeService) SubmitPayment(context.Context, fee.NewPayment) (fee.Receipt, error) {
	return fee.Receipt{}, core.NewProcessingError("payment processing failed", fmt.Errorf("connection reset"))
}

func Test_home(t *testing.T) {
	app := setup(t)

	rec := app.do(newAuthRequest(http.MethodGet, "/", ""))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Masomo Fees API!", rec.Body.String())
}

func Test_feeApi_auth(t *testing.T) {
	app := setup(t)
	foreignToken := getToken(t, &core.Config{SecretKey: "not-ours", AppName: "Masomo"}, "intruder", true)

	runHTTPTests(t, app, []httpTest{
		{
			name:     "no token",
			method:   http.MethodGet,
			path:     "/v1/payments/categories",
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name:     "malformed token",
			method:   http.MethodGet,
			path:     "/v1/payments/categories",
			token:    "lol",
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errInvalidToken),
		},
		{
			name:     "token signed with another key",
			method:   http.MethodGet,
			path:     "/v1/payments/categories",
			token:    foreignToken,
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errInvalidToken),
		},
		{
			name:     "submit without token",
			method:   http.MethodPost,
			path:     "/v1/payments/submit",
			body:     []byte(`{"parent_id": 1, "amount": 10}`),
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name:     "create category as non admin",
			method:   http.MethodPost,
			path:     "/v1/payments/categories",
			body:     []byte(`{"name": "Tuition", "priority": 1, "cap_amount": 1000}`),
			token:    app.userToken,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errForbidden),
		},
		{
			name:     "update category as non admin",
			method:   http.MethodPut,
			path:     "/v1/payments/categories/1",
			body:     []byte(`{"cap_amount": 10}`),
			token:    app.userToken,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errForbidden),
		},
	})
}

func Test_feeApi_submit(t *testing.T) {
	app := setup(t)
	jane := testutil.CreateParent(t, app.prtRepo, "Jane", "jane@test.cd")
	tuition := testutil.CreateCategory(t, app.feeRepo, "Tuition", 1, "1000")
	books := testutil.CreateCategory(t, app.feeRepo, "Books", 2, "500")

	t.Run("allocates by priority", func(t *testing.T) {
		body := []byte(fmt.Sprintf(`{"parent_id": %d, "amount": 1200, "transaction_ref": "TXN-1"}`, jane.ID))
		rec := app.do(newAuthRequest(http.MethodPost, "/v1/payments/submit", app.userToken, body))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp echoapi.SubmitPaymentResponse
		unmarshallBody(t, rec, &resp)
		assert.True(t, resp.Success)
		assert.Equal(t, "Payment processed successfully", resp.Message)
		assert.NotZero(t, resp.PaymentID)
		assert.Equal(t, "TXN-1", resp.TransactionRef)
		assert.Equal(t, "cash", resp.PaymentMethod)
		assert.True(t, testutil.Dec(t, "1200").Equal(resp.TotalAmount))
		assert.True(t, resp.UnallocatedRemainder.IsZero())
		if assert.Len(t, resp.Allocations, 2) {
			assert.Equal(t, tuition.ID, resp.Allocations[0].CategoryID)
			assert.True(t, testutil.Dec(t, "1000").Equal(resp.Allocations[0].Amount))
			assert.Equal(t, books.ID, resp.Allocations[1].CategoryID)
			assert.True(t, testutil.Dec(t, "200").Equal(resp.Allocations[1].Amount))
		}
		assert.Len(t, app.mailSvc.SentMessages(), 1)
	})

	t.Run("returns the remainder", func(t *testing.T) {
		body := []byte(fmt.Sprintf(`{"parent_id": %d, "amount": "450.50", "payment_method": "Bank Transfer"}`, jane.ID))
		rec := app.do(newAuthRequest(http.MethodPost, "/v1/payments/submit", app.userToken, body))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp echoapi.SubmitPaymentResponse
		unmarshallBody(t, rec, &resp)
		assert.Equal(t, "bank transfer", resp.PaymentMethod)
		assert.Regexp(t, `^TXN-\d+-[0-9A-F]{8}$`, resp.TransactionRef)
		if assert.Len(t, resp.Allocations, 1) {
			assert.Equal(t, books.ID, resp.Allocations[0].CategoryID)
			assert.True(t, testutil.Dec(t, "300").Equal(resp.Allocations[0].Amount))
		}
		assert.True(t, testutil.Dec(t, "150.5").Equal(resp.UnallocatedRemainder))
	})

	runHTTPTests(t, app, []httpTest{
		{
			name:     "amount zero",
			method:   http.MethodPost,
			path:     "/v1/payments/submit",
			body:     []byte(fmt.Sprintf(`{"parent_id": %d, "amount": 0}`, jane.ID)),
			token:    app.userToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"amount": "amount must be greater than 0"}`),
		},
		{
			name:     "amount missing",
			method:   http.MethodPost,
			path:     "/v1/payments/submit",
			body:     []byte(fmt.Sprintf(`{"parent_id": %d}`, jane.ID)),
			token:    app.userToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"amount": "this field is required"}`),
		},
		{
			name:     "parent missing",
			method:   http.MethodPost,
			path:     "/v1/payments/submit",
			body:     []byte(`{"amount": 10}`),
			token:    app.userToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"parent_id": "this field is required"}`),
		},
		{
			name:     "bad receipt email",
			method:   http.MethodPost,
			path:     "/v1/payments/submit",
			body:     []byte(fmt.Sprintf(`{"parent_id": %d, "amount": 10, "receipt_email": "jane"}`, jane.ID)),
			token:    app.userToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"receipt_email": "receipt_email must be a valid email address"}`),
		},
		{
			name:     "unknown parent",
			method:   http.MethodPost,
			path:     "/v1/payments/submit",
			body:     []byte(`{"parent_id": 404, "amount": 10}`),
			token:    app.userToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"parent_id": "parent not found"}`),
		},
		{
			name:     "duplicate transaction ref",
			method:   http.MethodPost,
			path:     "/v1/payments/submit",
			body:     []byte(fmt.Sprintf(`{"parent_id": %d, "amount": 10, "transaction_ref": "TXN-1"}`, jane.ID)),
			token:    app.userToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"transaction_ref": "a payment with this transaction reference already exists"}`),
		},
		{
			name:     "malformed body",
			method:   http.MethodPost,
			path:     "/v1/payments/submit",
			body:     []byte(`{"parent_id": `),
			token:    app.userToken,
			wantCode: http.StatusBadRequest,
		},
	})
}

func Test_feeApi_submit_processingError(t *testing.T) {
	app := setup(t, func(svc fee.ServiceInterface) fee.ServiceInterface {
		return brokenFeeService{ServiceInterface: svc}
	})

	runHTTPTests(t, app, []httpTest{
		{
			name:     "processing failure",
			method:   http.MethodPost,
			path:     "/v1/payments/submit",
			body:     []byte(`{"parent_id": 1, "amount": 10}`),
			token:    app.userToken,
			wantCode: http.StatusInternalServerError,
			wantData: []byte(`{"success": false, "message": "payment processing failed"}`),
		},
	})
}

func Test_feeApi_reads(t *testing.T) {
	app := setup(t)
	ctx := context.Background()
	jane := testutil.CreateParent(t, app.prtRepo, "Jane", "jane@test.cd")
	tuition := testutil.CreateCategory(t, app.feeRepo, "Tuition", 1, "1000")
	books := testutil.CreateCategory(t, app.feeRepo, "Books", 2, "500")

	body := []byte(fmt.Sprintf(`{"parent_id": %d, "amount": 1200}`, jane.ID))
	rec := app.do(newAuthRequest(http.MethodPost, "/v1/payments/submit", app.userToken, body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var submitted echoapi.SubmitPaymentResponse
	unmarshallBody(t, rec, &submitted)

	pmt, err := app.feeRepo.GetPayment(ctx, submitted.PaymentID)
	require.NoError(t, err)
	pmt.Allocations, err = app.feeRepo.QueryAllocationsByPayment(ctx, pmt.ID)
	require.NoError(t, err)
	allocs, err := app.feeRepo.QueryAllocationsByParent(ctx, jane.ID)
	require.NoError(t, err)

	runHTTPTests(t, app, []httpTest{
		{
			name:     "categories",
			method:   http.MethodGet,
			path:     "/v1/payments/categories",
			token:    app.userToken,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, []fee.Category{tuition, books}),
		},
		{
			name:     "payment",
			method:   http.MethodGet,
			path:     fmt.Sprintf("/v1/payments/%d", pmt.ID),
			token:    app.userToken,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, pmt),
		},
		{
			name:     "payment (unknown)",
			method:   http.MethodGet,
			path:     "/v1/payments/999",
			token:    app.userToken,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "payment not found"}),
		},
		{
			name:     "payment (bad id)",
			method:   http.MethodGet,
			path:     "/v1/payments/abc",
			token:    app.userToken,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name:     "allocations",
			method:   http.MethodGet,
			path:     fmt.Sprintf("/v1/payments/allocations/%d", jane.ID),
			token:    app.userToken,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, allocs),
		},
		{
			name:     "allocations (no payments)",
			method:   http.MethodGet,
			path:     "/v1/payments/allocations/999",
			token:    app.userToken,
			wantCode: http.StatusOK,
			wantData: []byte(`[]`),
		},
		{
			name:     "allocations (bad parent id)",
			method:   http.MethodGet,
			path:     "/v1/payments/allocations/-3",
			token:    app.userToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"parentId": "must be a positive integer"}`),
		},
		{
			name:     "balances (bad parent id)",
			method:   http.MethodGet,
			path:     "/v1/payments/balances/abc",
			token:    app.userToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"parentId": "must be a positive integer"}`),
		},
	})

	t.Run("allocations are most recent first", func(t *testing.T) {
		require.Len(t, allocs, 2)
		assert.Equal(t, books.ID, allocs[0].CategoryID)
		assert.Equal(t, tuition.ID, allocs[1].CategoryID)
	})

	t.Run("balances", func(t *testing.T) {
		rec := app.do(newAuthRequest(http.MethodGet, fmt.Sprintf("/v1/payments/balances/%d", jane.ID), app.userToken))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var bal fee.Balance
		unmarshallBody(t, rec, &bal)
		assert.Equal(t, jane.ID, bal.ParentID)
		assert.True(t, testutil.Dec(t, "1500").Equal(bal.TotalCap))
		assert.True(t, testutil.Dec(t, "1200").Equal(bal.TotalPaid))
		assert.True(t, testutil.Dec(t, "300").Equal(bal.TotalOutstanding))
		if assert.Len(t, bal.Categories, 2) {
			assert.True(t, bal.Categories[0].Outstanding.IsZero())
			assert.True(t, testutil.Dec(t, "300").Equal(bal.Categories[1].Outstanding))
		}
	})
}

func Test_feeApi_categories(t *testing.T) {
	app := setup(t)
	tuition := testutil.CreateCategory(t, app.feeRepo, "Tuition", 1, "1000")

	t.Run("create", func(t *testing.T) {
		rec := app.do(newAuthRequest(http.MethodPost, "/v1/payments/categories", app.adminToken,
			[]byte(`{"name": " Transport ", "priority": 3, "cap_amount": "250.00"}`)))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var cat fee.Category
		unmarshallBody(t, rec, &cat)
		assert.NotZero(t, cat.ID)
		assert.Equal(t, "Transport", cat.Name)
		assert.Equal(t, 3, cat.Priority)
		assert.True(t, testutil.Dec(t, "250").Equal(cat.CapAmount))
	})

	t.Run("update", func(t *testing.T) {
		rec := app.do(newAuthRequest(http.MethodPut, fmt.Sprintf("/v1/payments/categories/%d", tuition.ID), app.adminToken,
			[]byte(`{"cap_amount": 800}`)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var cat fee.Category
		unmarshallBody(t, rec, &cat)
		assert.Equal(t, tuition.ID, cat.ID)
		assert.Equal(t, "Tuition", cat.Name)
		assert.Equal(t, 1, cat.Priority)
		assert.True(t, testutil.Dec(t, "800").Equal(cat.CapAmount))
	})

	runHTTPTests(t, app, []httpTest{
		{
			name:     "create (duplicate name)",
			method:   http.MethodPost,
			path:     "/v1/payments/categories",
			body:     []byte(`{"name": "TUITION", "priority": 1, "cap_amount": 10}`),
			token:    app.adminToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"name": "a fee category with this name already exists"}`),
		},
		{
			name:     "create (negative cap)",
			method:   http.MethodPost,
			path:     "/v1/payments/categories",
			body:     []byte(`{"name": "Sports", "priority": 1, "cap_amount": -1}`),
			token:    app.adminToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"cap_amount": "cap_amount cannot be negative"}`),
		},
		{
			name:     "create (no name)",
			method:   http.MethodPost,
			path:     "/v1/payments/categories",
			body:     []byte(`{"priority": 1, "cap_amount": 10}`),
			token:    app.adminToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"name": "this field is required"}`),
		},
		{
			name:     "update (unknown)",
			method:   http.MethodPut,
			path:     "/v1/payments/categories/999",
			body:     []byte(`{"cap_amount": 10}`),
			token:    app.adminToken,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "fee category not found"}),
		},
		{
			name:     "update (bad id)",
			method:   http.MethodPut,
			path:     "/v1/payments/categories/abc",
			body:     []byte(`{"cap_amount": 10}`),
			token:    app.adminToken,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
	})
}
