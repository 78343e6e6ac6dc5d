package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/fee"
)

const paymentProcessedMsg = "Payment processed successfully"

type SubmitPaymentResponse struct {
	Success              bool                 `json:"success"`
	Message              string               `json:"message"`
	PaymentID            int64                `json:"payment_id"`
	TotalAmount          decimal.Decimal      `json:"total_amount"`
	Allocations          []fee.AllocationLine `json:"allocations"`
	UnallocatedRemainder decimal.Decimal      `json:"unallocated_remainder"`
	TransactionRef       string               `json:"transaction_ref"`
	PaymentMethod        string               `json:"payment_method"`
}

func newSubmitPaymentResponse(rcpt fee.Receipt) SubmitPaymentResponse {
	return SubmitPaymentResponse{
		Success:              true,
		Message:              paymentProcessedMsg,
		PaymentID:            rcpt.PaymentID,
		TotalAmount:          rcpt.TotalAmount,
		Allocations:          rcpt.Allocations,
		UnallocatedRemainder: rcpt.UnallocatedRemainder,
		TransactionRef:       rcpt.TransactionRef,
		PaymentMethod:        rcpt.PaymentMethod,
	}
}

var errInvalidParentID = core.NewValidationError(nil, core.FieldError{Field: "parentId", Error: "must be a positive integer"})

type feeApi struct {
	svc fee.ServiceInterface
}

func registerFeeAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc fee.ServiceInterface, idempotent echo.MiddlewareFunc) {
	api := feeApi{svc: svc}

	pg := g.Group("/payments", jwt)
	pg.GET("/categories", api.listCategories)
	pg.POST("/categories", api.createCategory, adminMiddleware())
	pg.PUT("/categories/:id", api.updateCategory, adminMiddleware())
	pg.GET("/allocations/:parentId", api.listAllocations)
	pg.GET("/balances/:parentId", api.balance)
	pg.POST("/submit", api.submit, idempotent)
	pg.GET("/:id", api.retrievePayment)
}

// Handlers

func (api *feeApi) listCategories(ctx echo.Context) error {
	cats, err := api.svc.ListCategories(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing categories")
	}
	return ctx.JSON(http.StatusOK, cats)
}

func (api *feeApi) createCategory(ctx echo.Context) error {
	var data fee.NewCategory
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCategory")
	}

	cat, err := api.svc.CreateCategory(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating category")
	}
	return ctx.JSON(http.StatusCreated, cat)
}

func (api *feeApi) updateCategory(ctx echo.Context) error {
	id, ok := parseID(ctx, "id")
	if !ok {
		return errHttpNotFound
	}
	var data fee.UpdateCategory
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCategory")
	}

	cat, err := api.svc.UpdateCategory(ctx.Request().Context(), int(id), data)
	if err != nil {
		return errors.Wrap(err, "updating category")
	}
	return ctx.JSON(http.StatusOK, cat)
}

func (api *feeApi) listAllocations(ctx echo.Context) error {
	parentID, ok := parseID(ctx, "parentId")
	if !ok {
		return errInvalidParentID
	}

	recs, err := api.svc.ListAllocationsForParent(ctx.Request().Context(), parentID)
	if err != nil {
		return errors.Wrap(err, "listing allocations")
	}
	return ctx.JSON(http.StatusOK, recs)
}

func (api *feeApi) balance(ctx echo.Context) error {
	parentID, ok := parseID(ctx, "parentId")
	if !ok {
		return errInvalidParentID
	}

	bal, err := api.svc.ParentBalance(ctx.Request().Context(), parentID)
	if err != nil {
		return errors.Wrap(err, "computing balance")
	}
	return ctx.JSON(http.StatusOK, bal)
}

func (api *feeApi) retrievePayment(ctx echo.Context) error {
	id, ok := parseID(ctx, "id")
	if !ok {
		return errHttpNotFound
	}

	pmt, err := api.svc.GetPayment(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting payment")
	}
	return ctx.JSON(http.StatusOK, pmt)
}

func (api *feeApi) submit(ctx echo.Context) error {
	var data fee.NewPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPayment")
	}

	rcpt, err := api.svc.SubmitPayment(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, newSubmitPaymentResponse(rcpt))
}
