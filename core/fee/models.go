package fee

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/masomo-fees/core"
)

// amounts are stored as NUMERIC(12,2)
const (
	amountScale  = 2
	amountDigits = 12
)

var maxAmount = decimal.New(1, amountDigits-amountScale) // exclusive

func init() {
	// amounts are JSON numbers, not strings
	decimal.MarshalJSONWithoutQuotes = true
}

type (
	Category struct {
		ID        int             `json:"id"`
		Name      string          `json:"name"`
		Priority  int             `json:"priority"`
		CapAmount decimal.Decimal `json:"cap_amount"`
		CreatedAt time.Time       `json:"created_at"` // UTC
		UpdatedAt time.Time       `json:"updated_at"` // UTC
	}

	Payment struct {
		ID             int64           `json:"id"`
		ParentID       int64           `json:"parent_id"`
		Amount         decimal.Decimal `json:"amount"`
		TransactionRef string          `json:"transaction_ref"`
		PaymentMethod  string          `json:"payment_method"`
		CreatedAt      time.Time       `json:"created_at"` // UTC
		Allocations    []Allocation    `json:"allocations,omitempty"`
	}

	// Allocation is the part of a Payment credited to one Category.
	Allocation struct {
		ID              int64           `json:"id"`
		PaymentID       int64           `json:"payment_id"`
		CategoryID      int             `json:"category_id"`
		AmountAllocated decimal.Decimal `json:"amount_allocated"`
		CreatedAt       time.Time       `json:"created_at"` // UTC
	}

	// AllocationRecord is an Allocation joined with its Payment and Category.
	AllocationRecord struct {
		ID               int64           `json:"id"`
		PaymentID        int64           `json:"payment_id"`
		ParentID         int64           `json:"parent_id"`
		CategoryID       int             `json:"category_id"`
		CategoryName     string          `json:"category_name"`
		AmountAllocated  decimal.Decimal `json:"amount_allocated"`
		CreatedAt        time.Time       `json:"created_at"`
		TransactionRef   string          `json:"transaction_ref"`
		PaymentMethod    string          `json:"payment_method"`
		PaymentAmount    decimal.Decimal `json:"payment_amount"`
		PaymentCreatedAt time.Time       `json:"payment_created_at"`
	}

	AllocationLine struct {
		CategoryID   int             `json:"category_id"`
		CategoryName string          `json:"category_name"`
		Amount       decimal.Decimal `json:"amount"`
	}

	// Receipt is the outcome of a submitted payment.
	Receipt struct {
		PaymentID            int64            `json:"payment_id"`
		ParentID             int64            `json:"parent_id"`
		TotalAmount          decimal.Decimal  `json:"total_amount"`
		TransactionRef       string           `json:"transaction_ref"`
		PaymentMethod        string           `json:"payment_method"`
		Allocations          []AllocationLine `json:"allocations"`
		UnallocatedRemainder decimal.Decimal  `json:"unallocated_remainder"`
		CreatedAt            time.Time        `json:"created_at"`
	}

	CategoryBalance struct {
		CategoryID   int             `json:"category_id"`
		CategoryName string          `json:"category_name"`
		Priority     int             `json:"priority"`
		CapAmount    decimal.Decimal `json:"cap_amount"`
		Paid         decimal.Decimal `json:"paid"`
		Outstanding  decimal.Decimal `json:"outstanding"`
	}

	// Balance summarizes what a parent paid against every category cap.
	Balance struct {
		ParentID         int64             `json:"parent_id"`
		Categories       []CategoryBalance `json:"categories"`
		TotalCap         decimal.Decimal   `json:"total_cap"`
		TotalPaid        decimal.Decimal   `json:"total_paid"`
		TotalOutstanding decimal.Decimal   `json:"total_outstanding"`
	}
)

// AllocatedTotal is the sum of all allocation lines.
func (r Receipt) AllocatedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range r.Allocations {
		total = total.Add(l.Amount)
	}
	return total
}

// NewPayment contains information needed to submit a payment.
type NewPayment struct {
	ParentID       int64            `json:"parent_id" validate:"required,gt=0"`
	Amount         *decimal.Decimal `json:"amount"`
	TransactionRef string           `json:"transaction_ref" validate:"omitempty,max=64,txnref"`
	PaymentMethod  string           `json:"payment_method" validate:"omitempty,max=32,paymentmethod"`
	ReceiptEmail   string           `json:"receipt_email" validate:"omitempty,email"`
}

func (np *NewPayment) Validate(validate *validator.Validate) error {
	np.TransactionRef = core.CleanString(np.TransactionRef)
	np.PaymentMethod = core.CleanString(np.PaymentMethod, true /* lower */)
	np.ReceiptEmail = core.CleanString(np.ReceiptEmail, true /* lower */)

	if err := validate.Struct(np); err != nil {
		return err
	}
	if fErr := checkAmount("amount", np.Amount, false); fErr != nil {
		return core.NewValidationError(nil, *fErr)
	}
	return nil
}

// NewCategory contains information needed to create a new Category.
type NewCategory struct {
	Name      string           `json:"name" validate:"required,max=100"`
	Priority  int              `json:"priority" validate:"gte=0"`
	CapAmount *decimal.Decimal `json:"cap_amount"`
}

func (nc *NewCategory) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)

	if err := validate.Struct(nc); err != nil {
		return err
	}
	if fErr := checkAmount("cap_amount", nc.CapAmount, true); fErr != nil {
		return core.NewValidationError(nil, *fErr)
	}
	return nil
}

// UpdateCategory defines what information may be provided to modify an existing Category.
type UpdateCategory struct {
	Name      string           `json:"name" validate:"max=100"`
	Priority  *int             `json:"priority" validate:"omitempty,gte=0"`
	CapAmount *decimal.Decimal `json:"cap_amount"`
}

func (uc *UpdateCategory) Validate(validate *validator.Validate) error {
	uc.Name = core.CleanString(uc.Name)

	if err := validate.Struct(uc); err != nil {
		return err
	}
	if uc.CapAmount != nil {
		if fErr := checkAmount("cap_amount", uc.CapAmount, true); fErr != nil {
			return core.NewValidationError(nil, *fErr)
		}
	}
	return nil
}

func (uc UpdateCategory) apply(cat Category) Category {
	if uc.Name != "" {
		cat.Name = uc.Name
	}
	if uc.Priority != nil {
		cat.Priority = *uc.Priority
	}
	if uc.CapAmount != nil {
		cat.CapAmount = *uc.CapAmount
	}
	return cat
}

// checkAmount enforces the NUMERIC(12,2) money format: no rounding may ever happen after validation.
func checkAmount(field string, amount *decimal.Decimal, allowZero bool) *core.FieldError {
	switch {
	case amount == nil:
		return &core.FieldError{Field: field, Error: "this field is required"}
	case !allowZero && !amount.IsPositive():
		return &core.FieldError{Field: field, Error: field + " must be greater than 0"}
	case amount.IsNegative():
		return &core.FieldError{Field: field, Error: field + " cannot be negative"}
	case !amount.Equal(amount.Truncate(amountScale)):
		return &core.FieldError{Field: field, Error: field + " cannot have more than 2 decimal places"}
	case amount.GreaterThanOrEqual(maxAmount):
		return &core.FieldError{Field: field, Error: field + " is too large"}
	}
	return nil
}
