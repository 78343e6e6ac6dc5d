package fee

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/parent"
)

const processingFailedMsg = "payment processing failed"

var (
	// errors
	ErrCategoryNotFound     = errors.New("fee category not found")
	ErrCategoryExists       = errors.New("a fee category with this name already exists")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrParentNotFound       = errors.New("parent not found")
	ErrTransactionRefExists = errors.New("a payment with this transaction reference already exists")

	newTransactionRef = func(now time.Time) string { // mockable
		return fmt.Sprintf("TXN-%d-%s", now.UnixNano()/int64(time.Millisecond), strings.ToUpper(uuid.New().String()[:8]))
	}
)

type (
	// Repository persists categories, payments and allocations.
	// Calls taking part in a payment submission receive the transaction executor as their last argument.
	Repository interface {
		// LockParent serializes the submissions of a parent until the end of the current transaction.
		LockParent(ctx context.Context, parentID int64, exec ...core.DBExecutor) error

		QueryCategories(ctx context.Context, exec ...core.DBExecutor) ([]Category, error) // priority ASC, id ASC
		GetCategory(ctx context.Context, id int, exec ...core.DBExecutor) (Category, error)
		CreateCategory(ctx context.Context, cat Category, exec ...core.DBExecutor) (Category, error)
		UpdateCategory(ctx context.Context, cat Category, exec ...core.DBExecutor) (Category, error)

		CreatePayment(ctx context.Context, pmt Payment, exec ...core.DBExecutor) (Payment, error)
		GetPayment(ctx context.Context, id int64, exec ...core.DBExecutor) (Payment, error)

		CreateAllocation(ctx context.Context, alloc Allocation, exec ...core.DBExecutor) (Allocation, error)
		// SumAllocated is the live total allocated to a category across all the parent's payments.
		SumAllocated(ctx context.Context, parentID int64, categoryID int, exec ...core.DBExecutor) (decimal.Decimal, error)
		// SumAllocatedByCategory maps category ids to the parent's allocated totals.
		SumAllocatedByCategory(ctx context.Context, parentID int64, exec ...core.DBExecutor) (map[int]decimal.Decimal, error)
		QueryAllocationsByPayment(ctx context.Context, paymentID int64, exec ...core.DBExecutor) ([]Allocation, error)
		// QueryAllocationsByParent returns the parent's allocations, most recent first.
		QueryAllocationsByParent(ctx context.Context, parentID int64, exec ...core.DBExecutor) ([]AllocationRecord, error)
	}

	// ParentFinder looks parents up for receipts.
	ParentFinder interface {
		GetByID(ctx context.Context, id int64) (parent.Parent, error)
	}

	ServiceInterface interface {
		SubmitPayment(ctx context.Context, np NewPayment) (Receipt, error)
		GetPayment(ctx context.Context, id int64) (Payment, error)
		ListCategories(ctx context.Context) ([]Category, error)
		CreateCategory(ctx context.Context, nc NewCategory) (Category, error)
		UpdateCategory(ctx context.Context, id int, uc UpdateCategory) (Category, error)
		ListAllocationsForParent(ctx context.Context, parentID int64) ([]AllocationRecord, error)
		ParentBalance(ctx context.Context, parentID int64) (Balance, error)
	}

	Service struct {
		db            core.TxRunner
		repo          Repository
		parents       ParentFinder
		mailSvc       core.EmailService
		logger        core.Logger
		validate      *validator.Validate
		defaultMethod string
	}
)

var _ ServiceInterface = (*Service)(nil) // interface compliance check

func NewService(
	db core.TxRunner,
	repo Repository,
	parents ParentFinder,
	mailSvc core.EmailService,
	logger core.Logger,
	validate *validator.Validate,
	conf *core.Config,
) *Service {
	return &Service{
		db:            db,
		repo:          repo,
		parents:       parents,
		mailSvc:       mailSvc,
		logger:        logger,
		validate:      validate,
		defaultMethod: conf.Fees.DefaultPaymentMethod,
	}
}

// SubmitPayment records a payment and distributes its amount over the fee categories by ascending priority,
// never allocating more to a category than what is left under its cap for the parent.
// The payment and its allocations are committed together or not at all.
// What no category can take is returned as the unallocated remainder and is not stored.
func (svc *Service) SubmitPayment(ctx context.Context, np NewPayment) (Receipt, error) {
	if err := np.Validate(svc.validate); err != nil {
		return Receipt{}, err
	}

	now := core.Now()
	pmt := Payment{
		ParentID:       np.ParentID,
		Amount:         *np.Amount,
		TransactionRef: np.TransactionRef,
		PaymentMethod:  np.PaymentMethod,
		CreatedAt:      now,
	}
	if pmt.TransactionRef == "" {
		pmt.TransactionRef = newTransactionRef(now)
	}
	if pmt.PaymentMethod == "" {
		pmt.PaymentMethod = svc.defaultMethod
	}

	var rcpt Receipt
	err := svc.db.InTx(ctx, func(tx core.DBExecutor) error {
		if err := svc.repo.LockParent(ctx, pmt.ParentID, tx); err != nil {
			return errors.Wrap(err, "locking parent")
		}

		var err error
		if pmt, err = svc.repo.CreatePayment(ctx, pmt, tx); err != nil {
			return errors.Wrap(err, "creating payment")
		}
		cats, err := svc.repo.QueryCategories(ctx, tx)
		if err != nil {
			return errors.Wrap(err, "querying categories")
		}

		rcpt = Receipt{
			PaymentID:      pmt.ID,
			ParentID:       pmt.ParentID,
			TotalAmount:    pmt.Amount,
			TransactionRef: pmt.TransactionRef,
			PaymentMethod:  pmt.PaymentMethod,
			Allocations:    make([]AllocationLine, 0, len(cats)),
			CreatedAt:      pmt.CreatedAt,
		}

		remaining := pmt.Amount
		for _, cat := range cats {
			if !remaining.IsPositive() {
				break
			}

			paid, err := svc.repo.SumAllocated(ctx, pmt.ParentID, cat.ID, tx)
			if err != nil {
				return errors.Wrapf(err, "summing allocations of category %d", cat.ID)
			}
			room := decimal.Max(decimal.Zero, cat.CapAmount.Sub(paid))
			if !room.IsPositive() {
				continue // full
			}

			amount := decimal.Min(remaining, room)
			alloc := Allocation{
				PaymentID:       pmt.ID,
				CategoryID:      cat.ID,
				AmountAllocated: amount,
				CreatedAt:       pmt.CreatedAt,
			}
			if _, err = svc.repo.CreateAllocation(ctx, alloc, tx); err != nil {
				return errors.Wrapf(err, "allocating to category %d", cat.ID)
			}
			rcpt.Allocations = append(rcpt.Allocations, AllocationLine{
				CategoryID:   cat.ID,
				CategoryName: cat.Name,
				Amount:       amount,
			})
			remaining = remaining.Sub(amount)
		}
		rcpt.UnallocatedRemainder = remaining
		return nil
	})
	if err != nil {
		switch errors.Cause(err) {
		case ErrParentNotFound:
			return Receipt{}, core.NewValidationError(err, core.FieldError{Field: "parent_id", Error: ErrParentNotFound.Error()})
		case ErrTransactionRefExists:
			return Receipt{}, core.NewValidationError(err, core.FieldError{Field: "transaction_ref", Error: ErrTransactionRefExists.Error()})
		}
		return Receipt{}, core.NewProcessingError(processingFailedMsg, err)
	}

	svc.sendReceipt(ctx, np.ReceiptEmail, rcpt)
	return rcpt, nil
}

// sendReceipt emails the receipt to `email` or else to the parent's address, if any.
func (svc *Service) sendReceipt(ctx context.Context, email string, rcpt Receipt) {
	if svc.mailSvc == nil {
		return
	}

	var name string
	if svc.parents != nil {
		prt, err := svc.parents.GetByID(ctx, rcpt.ParentID)
		if err != nil {
			svc.logger.Warn("receipt: finding parent", errors.Wrap(err, "finding parent"), map[string]interface{}{"payment_id": rcpt.PaymentID})
		}
		name = prt.Name
		if email == "" {
			email = prt.Email
		}
	}
	if email == "" {
		return
	}
	if name == "" {
		name = "Parent"
	}

	svc.mailSvc.SendMessages(newReceiptMessage(mail.Address{Name: name, Address: email}, rcpt))
}

func (svc *Service) GetPayment(ctx context.Context, id int64) (Payment, error) {
	pmt, err := svc.repo.GetPayment(ctx, id)
	if err != nil {
		return Payment{}, err
	}
	if pmt.Allocations, err = svc.repo.QueryAllocationsByPayment(ctx, id); err != nil {
		return Payment{}, errors.Wrap(err, "querying payment allocations")
	}
	return pmt, nil
}

func (svc *Service) ListCategories(ctx context.Context) ([]Category, error) {
	return svc.repo.QueryCategories(ctx)
}

func (svc *Service) CreateCategory(ctx context.Context, nc NewCategory) (Category, error) {
	if err := nc.Validate(svc.validate); err != nil {
		return Category{}, err
	}
	now := core.Now()
	cat, err := svc.repo.CreateCategory(ctx, Category{
		Name:      nc.Name,
		Priority:  nc.Priority,
		CapAmount: *nc.CapAmount,
		CreatedAt: now,
		UpdatedAt: now,
	})
	return cat, trapCategoryExists(err)
}

// UpdateCategory edits a category. Allocations already made are left untouched.
func (svc *Service) UpdateCategory(ctx context.Context, id int, uc UpdateCategory) (Category, error) {
	if err := uc.Validate(svc.validate); err != nil {
		return Category{}, err
	}
	cat, err := svc.repo.GetCategory(ctx, id)
	if err != nil {
		return Category{}, err
	}
	cat = uc.apply(cat)
	cat.UpdatedAt = core.Now()
	cat, err = svc.repo.UpdateCategory(ctx, cat)
	return cat, trapCategoryExists(err)
}

func (svc *Service) ListAllocationsForParent(ctx context.Context, parentID int64) ([]AllocationRecord, error) {
	return svc.repo.QueryAllocationsByParent(ctx, parentID)
}

func (svc *Service) ParentBalance(ctx context.Context, parentID int64) (Balance, error) {
	cats, err := svc.repo.QueryCategories(ctx)
	if err != nil {
		return Balance{}, errors.Wrap(err, "querying categories")
	}
	paid, err := svc.repo.SumAllocatedByCategory(ctx, parentID)
	if err != nil {
		return Balance{}, errors.Wrap(err, "summing allocations")
	}

	bal := Balance{
		ParentID:         parentID,
		Categories:       make([]CategoryBalance, 0, len(cats)),
		TotalCap:         decimal.Zero,
		TotalPaid:        decimal.Zero,
		TotalOutstanding: decimal.Zero,
	}
	for _, cat := range cats {
		p, ok := paid[cat.ID]
		if !ok {
			p = decimal.Zero
		}
		cb := CategoryBalance{
			CategoryID:   cat.ID,
			CategoryName: cat.Name,
			Priority:     cat.Priority,
			CapAmount:    cat.CapAmount,
			Paid:         p,
			Outstanding:  decimal.Max(decimal.Zero, cat.CapAmount.Sub(p)),
		}
		bal.Categories = append(bal.Categories, cb)
		bal.TotalCap = bal.TotalCap.Add(cb.CapAmount)
		bal.TotalPaid = bal.TotalPaid.Add(cb.Paid)
		bal.TotalOutstanding = bal.TotalOutstanding.Add(cb.Outstanding)
	}
	return bal, nil
}

func trapCategoryExists(err error) error {
	if errors.Cause(err) == ErrCategoryExists {
		return core.NewValidationError(err, core.FieldError{Field: "name", Error: ErrCategoryExists.Error()})
	}
	return err
}
